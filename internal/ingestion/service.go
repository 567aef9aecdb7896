package ingestion

import (
	"context"
	"fmt"

	"github.com/ThiagoRGoveia/tracer-ingest/internal/config"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/database"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/metrics"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/models"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/persistence"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type IngestionService struct {
	dbManager        database.DBManager
	setupService     ISetup
	asyncWorker      Worker
	archiveProcessor Processor
	metrics          *metrics.Metrics
	logger           *zap.Logger
	config           config.IngestionConfig
}

func NewIngestionService(dbManager database.DBManager, setupService ISetup, worker Worker, processor Processor, m *metrics.Metrics, logger *zap.Logger, cfg config.IngestionConfig) *IngestionService {
	return &IngestionService{
		dbManager:        dbManager,
		setupService:     setupService,
		asyncWorker:      worker,
		archiveProcessor: processor,
		metrics:          m,
		logger:           logger,
		config:           cfg,
	}
}

// Execute downloads, interprets and stores the reports of one year.
func (h *IngestionService) Execute(ctx context.Context, year int, categories []models.Category) error {
	// Step 0: Setup the extraction environment.
	environmentConfig, err := h.setupService.build()
	if err != nil {
		return err
	}
	channels, waitGroups, archiveMap, archiveErrorMap, statsMap := environmentConfig.GetValues()

	// Step 0.1: Decide which archives this run downloads.
	archives, err := h.archiveProcessor.PlanArchives(year, categories)
	if err != nil {
		h.logger.Error("failed to plan archives", zap.Error(err))
		return err
	}

	// Step 0.2: Make sure the tables exist and every category has a results channel.
	if err := h.setupDatabase(ctx, archives, channels); err != nil {
		h.logger.Error("failed to setup database", zap.Error(err))
		return err
	}

	// Step 0.3: Setup the async worker channels and wait groups, workers panic without them.
	h.asyncWorker.WithChannels(channels).WithWaitGroups(waitGroups)

	runID := uuid.NewString()
	log := h.logger.With(zap.String("run_id", runID), zap.Int("year", year))

	// Step 1: Download archives and send jobs to the parser workers.
	// - Calculates the checksum and skips archives already ingested
	// - Saves the archive record to the db
	// Sharing MainWg with error worker
	dispatcherWorkerRunner, _, err := h.asyncWorker.SetupJobDispatcherWorker(ctx, runID, archives, *archiveMap)
	if err != nil {
		return err
	}
	dispatcherWorkerRunner.Run()

	// Step 2: Setup the error worker, it collects async errors per archive.
	// Sharing MainWg with dispatcher worker
	errorWorkerRunner, mainWaitGroup, err := h.asyncWorker.SetupErrorWorker()
	if err != nil {
		return err
	}
	errorWorkerRunner.Run(archiveErrorMap)

	// Step 3: Setup parser workers
	// - Extract the CSV from the archive
	// - Interpret each record and send it to the channel of its category
	parserWorkersRunner, parserWorkerWaitGroup, err := h.asyncWorker.SetupParserWorkers(h.config.ParserWorkers)
	if err != nil {
		return err
	}
	parserWorkersRunner.Run(statsMap)

	// Step 4: Configure DB workers, each category channel gets its own set.
	dbWorkersRunner, dbWorkerWaitGroup, err := h.asyncWorker.SetupDBWorkers(h.config.DBWorkersPerCategory)
	if err != nil {
		return err
	}

	// Step 5: Start DB workers with the handler that serializes and upserts a batch.
	err = dbWorkersRunner.Run(ctx, h.storeBatch)
	if err != nil {
		return err
	}

	// Step 6: Wait for all processing to complete.
	log.Info("waiting for parser workers to finish")
	parserWorkerWaitGroup.Wait()

	// Step 6.1: After parsers are done, close all category channels to signal DB workers to finish.
	for _, resultsChan := range channels.Results {
		close(resultsChan)
	}

	// Step 6.2: Wait for DB workers to finish
	log.Info("waiting for DB workers to finish")
	dbWorkerWaitGroup.Wait()

	// Step 6.3: Close the errors channel after all workers that can produce errors are done.
	close(channels.Errors)

	// Step 6.4: Wait for the error and dispatcher workers to finish
	log.Info("waiting for error worker to finish")
	mainWaitGroup.Wait()

	// Step 7: Update each archive record with its status, errors and stats.
	if err := h.archiveProcessor.UpdateArchiveStatus(ctx, archiveErrorMap, statsMap, archiveMap); err != nil {
		log.Error("failed to update archive statuses", zap.Error(err))
	}

	if ctx.Err() != nil {
		log.Warn("ingestion cancelled", zap.Error(ctx.Err()))
		return ctx.Err()
	}

	log.Info("ingestion finished", zap.Int("archives", len(*archiveMap)))
	return nil
}

func (h *IngestionService) storeBatch(ctx context.Context, category models.Category, batch []*models.InterpretedRecord) error {
	records := make([]models.Record, len(batch))
	for i, r := range batch {
		records[i] = r.Record
	}

	stored, err := persistence.Persist(ctx, h.dbManager, category, records)
	h.metrics.DocumentsUpsertedTotal.WithLabelValues(string(category)).Add(float64(stored))
	return err
}

func (h *IngestionService) setupDatabase(ctx context.Context, archives []models.ArchiveInfo, channels *models.ExtractionChannels) error {
	if err := h.dbManager.CreateArchiveRecordsTable(ctx); err != nil {
		return fmt.Errorf("failed to create archive records table: %w", err)
	}
	if err := h.dbManager.CreateReportTables(ctx); err != nil {
		return fmt.Errorf("failed to create report tables: %w", err)
	}

	for _, archive := range archives {
		if _, exists := channels.Results[archive.Category]; !exists {
			channels.Results[archive.Category] = make(chan *models.InterpretedRecord, h.config.ResultsChannelSize)
			h.logger.Debug("created results channel", zap.String("category", string(archive.Category)))
		}
	}
	return nil
}
