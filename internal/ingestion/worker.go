package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThiagoRGoveia/tracer-ingest/internal/database"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/interpret"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/metrics"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/models"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/persistence"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/retrieval"
	"github.com/ThiagoRGoveia/tracer-ingest/pkg/checksum"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Runner[T any] struct {
	Run T
}

// BatchHandler stores one batch of interpreted records of a category.
type BatchHandler func(ctx context.Context, category models.Category, batch []*models.InterpretedRecord) error

type AsyncWorkerConfig struct {
	DBWorkersPerCategory int
	DBBatchSize          int
	MaxErrorsPerArchive  int
}

// ArchiveFetcher downloads archives; satisfied by *retrieval.Client.
type ArchiveFetcher interface {
	FetchArchive(ctx context.Context, url string) ([]byte, error)
}

// Worker defines the interface for asynchronous processing tasks.
type Worker interface {
	WithChannels(channels *models.ExtractionChannels) Worker
	WithWaitGroups(waitGroups *models.ExtractionWaitGroups) Worker
	SetupErrorWorker() (Runner[func(*models.ArchiveErrorMap)], *sync.WaitGroup, error)
	SetupParserWorkers(numberOfWorkers int) (Runner[func(*models.ArchiveStatsMap)], *sync.WaitGroup, error)
	SetupDBWorkers(numDBWorkersPerCategory int) (Runner[func(context.Context, BatchHandler) error], *sync.WaitGroup, error)
	SetupJobDispatcherWorker(ctx context.Context, runID string, archives []models.ArchiveInfo, archiveMap models.ArchiveMap) (Runner[func()], *sync.WaitGroup, error)
}

type AsyncWorker struct {
	config     AsyncWorkerConfig
	dbManager  database.DBManager
	fetcher    ArchiveFetcher
	metrics    *metrics.Metrics
	logger     *zap.Logger
	channels   *models.ExtractionChannels
	waitGroups *models.ExtractionWaitGroups
}

func NewAsyncWorker(dbManager database.DBManager, fetcher ArchiveFetcher, m *metrics.Metrics, logger *zap.Logger, cfg AsyncWorkerConfig) *AsyncWorker {
	if cfg.MaxErrorsPerArchive <= 0 {
		cfg.MaxErrorsPerArchive = 100
	}
	if cfg.DBBatchSize <= 0 {
		cfg.DBBatchSize = 1
	}
	return &AsyncWorker{
		dbManager: dbManager,
		fetcher:   fetcher,
		metrics:   m,
		logger:    logger,
		config:    cfg,
	}
}

func (w *AsyncWorker) WithChannels(channels *models.ExtractionChannels) Worker {
	w.channels = channels
	return w
}

func (w *AsyncWorker) WithWaitGroups(waitGroups *models.ExtractionWaitGroups) Worker {
	w.waitGroups = waitGroups
	return w
}

// ParserWorker extracts, tokenizes and interprets archives from the jobs
// channel. Rows without a RecordID are reported instead of forwarded since
// they cannot be upserted.
func (w *AsyncWorker) ParserWorker(statsMap *models.ArchiveStatsMap) {
	defer w.waitGroups.ParserWg.Done()
	for job := range w.channels.Jobs {
		log := w.logger.With(zap.String("archive_id", job.ArchiveID), zap.String("category", string(job.Category)))
		log.Info("parser worker started archive")

		stats, err := w.parseArchive(job)
		if err != nil {
			w.channels.Errors <- models.AppError{ArchiveID: job.ArchiveID, Message: "Failed to open or read archive", Err: err}
		}

		statsMap.Mu.Lock()
		statsMap.Stats[job.ArchiveID] = stats
		statsMap.Mu.Unlock()

		log.Info("parser worker finished archive",
			zap.Int("records", stats.Records),
			zap.Int("amount_failures", stats.AmountFailures),
			zap.Int("date_failures", stats.DateFailures),
			zap.Int("flag_failures", stats.FlagFailures))
	}
}

func (w *AsyncWorker) parseArchive(job models.ArchiveJob) (*models.InterpretationStats, error) {
	stats := &models.InterpretationStats{}

	resultsChan, exists := w.channels.Results[job.Category]
	if !exists {
		return stats, fmt.Errorf("missing results channel for category %s", job.Category)
	}

	in, err := interpret.ForCategory(job.Category)
	if err != nil {
		return stats, err
	}

	content, err := retrieval.ExtractFirstFile(job.Data)
	if err != nil {
		return stats, err
	}

	for record, err := range retrieval.ReadRecords(bytes.NewReader(content)) {
		if err != nil {
			w.metrics.RowErrorsTotal.WithLabelValues(string(job.Category)).Inc()
			w.channels.Errors <- models.AppError{ArchiveID: job.ArchiveID, Message: "Failed to read row from CSV", Err: err}
			continue // Skip corrupted rows
		}

		record = in.Interpret(record)
		stats.Add(record)
		w.metrics.ObserveRecord(job.Category, record)

		if record.RecordID() == "" {
			w.channels.Errors <- models.AppError{ArchiveID: job.ArchiveID, Message: "Record without identifier", Err: persistence.ErrMissingRecordID, Record: record}
			continue
		}

		resultsChan <- &models.InterpretedRecord{ArchiveID: job.ArchiveID, Record: record}
	}

	return stats, nil
}

func (w *AsyncWorker) SetupParserWorkers(numberOfWorkers int) (Runner[func(*models.ArchiveStatsMap)], *sync.WaitGroup, error) {
	if numberOfWorkers <= 0 {
		return Runner[func(*models.ArchiveStatsMap)]{}, nil, fmt.Errorf("invalid number of parser workers: %d", numberOfWorkers)
	}
	return Runner[func(*models.ArchiveStatsMap)]{
		Run: func(statsMap *models.ArchiveStatsMap) {
			for i := 1; i <= numberOfWorkers; i++ {
				w.waitGroups.ParserWg.Add(1)
				go w.ParserWorker(statsMap)
			}
		},
	}, w.waitGroups.ParserWg, nil
}

func (w *AsyncWorker) DbWorker(ctx context.Context, workerId int, category models.Category, resultsChan <-chan *models.InterpretedRecord, errorsChan chan<- models.AppError, waitGroups *models.ExtractionWaitGroups, dbHandler BatchHandler) {
	log := w.logger.With(zap.Int("worker_id", workerId), zap.String("category", string(category)))
	log.Debug("DB worker started")
	defer waitGroups.DbWg.Done()
	batch := make([]*models.InterpretedRecord, 0, w.config.DBBatchSize)

	flush := func(message string) {
		log.Debug("upserting batch", zap.Int("size", len(batch)))
		if err := dbHandler(ctx, category, batch); err != nil {
			// The batch failed, so report an error for each archive in it.
			archiveIDs := make(map[string]bool)
			for _, r := range batch {
				archiveIDs[r.ArchiveID] = true
			}
			for archiveID := range archiveIDs {
				errorsChan <- models.AppError{ArchiveID: archiveID, Message: message, Err: err}
			}
		}
		batch = batch[:0]
	}

	for result := range resultsChan {
		batch = append(batch, result)
		if len(batch) >= w.config.DBBatchSize {
			flush("Failed to upsert batch of records")
		}
	}

	if len(batch) > 0 {
		flush("Failed to upsert remaining batch of records")
	}

	log.Debug("DB worker finished")
}

func (w *AsyncWorker) SetupDBWorkers(numDBWorkersPerCategory int) (Runner[func(context.Context, BatchHandler) error], *sync.WaitGroup, error) {
	if numDBWorkersPerCategory <= 0 {
		return Runner[func(context.Context, BatchHandler) error]{}, nil, fmt.Errorf("invalid number of DB workers: %d", numDBWorkersPerCategory)
	}
	return Runner[func(context.Context, BatchHandler) error]{
		Run: func(ctx context.Context, dbHandler BatchHandler) error {
			if dbHandler == nil {
				return errors.New("nil batch handler")
			}
			workerCounter := 1
			for category, resultsChan := range w.channels.Results {
				w.logger.Info("starting DB workers", zap.Int("count", numDBWorkersPerCategory), zap.String("category", string(category)))
				for i := 1; i <= numDBWorkersPerCategory; i++ {
					w.waitGroups.DbWg.Add(1)
					go w.DbWorker(ctx, workerCounter, category, resultsChan, w.channels.Errors, w.waitGroups, dbHandler)
					workerCounter++
				}
			}
			return nil
		},
	}, w.waitGroups.DbWg, nil
}

func (w *AsyncWorker) ErrorWorker(archiveErrorMap *models.ArchiveErrorMap) {
	defer w.waitGroups.MainWg.Done()
	for appErr := range w.channels.Errors {
		w.logger.Warn("caught error", zap.String("archive_id", appErr.ArchiveID), zap.String("message", appErr.Message), zap.Error(appErr.Err))
		if appErr.ArchiveID == "" {
			continue
		}
		// Cap the errors kept per archive; past the cap the archive is most likely malformed.
		archiveErrorMap.Mu.Lock()
		if len(archiveErrorMap.Errors[appErr.ArchiveID]) < w.config.MaxErrorsPerArchive {
			archiveErrorMap.Errors[appErr.ArchiveID] = append(archiveErrorMap.Errors[appErr.ArchiveID], appErr)
		} else if len(archiveErrorMap.Errors[appErr.ArchiveID]) == w.config.MaxErrorsPerArchive {
			w.logger.Warn("archive has too many errors, dropping the rest", zap.String("archive_id", appErr.ArchiveID))
		}
		archiveErrorMap.Mu.Unlock()
	}
}

// PreprocessAndDispatchJobs downloads each archive, skips the ones whose
// checksum was already ingested, records the rest as PROCESSING and hands
// them to the parser workers.
func (w *AsyncWorker) PreprocessAndDispatchJobs(ctx context.Context, runID string, archives []models.ArchiveInfo, archiveMap models.ArchiveMap) {
	defer close(w.channels.Jobs)
	defer w.waitGroups.MainWg.Done()

	for _, archive := range archives {
		if ctx.Err() != nil {
			w.logger.Warn("dispatch cancelled", zap.Error(ctx.Err()))
			return
		}
		log := w.logger.With(zap.String("url", archive.URL), zap.String("category", string(archive.Category)))

		data, err := w.fetcher.FetchArchive(ctx, archive.URL)
		if err != nil {
			log.Error("failed to download archive, skipping", zap.Error(err))
			w.recordFatal(ctx, runID, archive, err)
			continue
		}
		w.metrics.ArchiveBytes.WithLabelValues(string(archive.Category)).Observe(float64(len(data)))

		sum := checksum.Bytes(data)
		isProcessed, err := w.dbManager.IsArchiveAlreadyProcessed(ctx, sum)
		if err != nil {
			log.Error("failed to check if archive is already processed, skipping", zap.Error(err))
			continue
		}
		if isProcessed {
			log.Info("archive has already been processed, skipping", zap.String("checksum", sum))
			continue
		}

		archiveID := uuid.NewString()
		err = w.dbManager.InsertArchiveRecord(ctx, models.ArchiveRecord{
			ID:          archiveID,
			RunID:       runID,
			URL:         archive.URL,
			Year:        archive.Year,
			Category:    archive.Category,
			Checksum:    sum,
			Status:      database.ARCHIVE_STATUS_PROCESSING,
			ProcessedAt: time.Now().UTC(),
		})
		if err != nil {
			log.Error("failed to insert archive record, skipping", zap.Error(err))
			continue
		}

		archiveMap[archiveID] = archive

		log.Info("dispatching archive", zap.String("archive_id", archiveID))
		select {
		case w.channels.Jobs <- models.ArchiveJob{ArchiveID: archiveID, Year: archive.Year, Category: archive.Category, URL: archive.URL, Data: data}:
		case <-ctx.Done():
			w.logger.Warn("dispatch cancelled", zap.Error(ctx.Err()))
			return
		}
	}
}

// recordFatal keeps a FATAL row for an archive that never reached the
// parsers, so the failure is visible next to successful runs.
func (w *AsyncWorker) recordFatal(ctx context.Context, runID string, archive models.ArchiveInfo, cause error) {
	ctx = context.WithoutCancel(ctx)
	archiveID := uuid.NewString()
	err := w.dbManager.InsertArchiveRecord(ctx, models.ArchiveRecord{
		ID:          archiveID,
		RunID:       runID,
		URL:         archive.URL,
		Year:        archive.Year,
		Category:    archive.Category,
		Status:      database.ARCHIVE_STATUS_FATAL,
		ProcessedAt: time.Now().UTC(),
	})
	if err != nil {
		w.logger.Error("failed to record fatal archive", zap.String("url", archive.URL), zap.Error(err))
		return
	}

	appErrors := []models.AppError{{ArchiveID: archiveID, Message: "Failed to download archive", Err: cause}}
	if err := w.dbManager.UpdateArchiveStatus(ctx, archiveID, database.ARCHIVE_STATUS_FATAL, appErrors, nil); err != nil {
		w.logger.Error("failed to update fatal archive", zap.String("archive_id", archiveID), zap.Error(err))
	}
	w.metrics.ArchivesTotal.WithLabelValues(string(archive.Category), database.ARCHIVE_STATUS_FATAL).Inc()
}

func (w *AsyncWorker) SetupJobDispatcherWorker(ctx context.Context, runID string, archives []models.ArchiveInfo, archiveMap models.ArchiveMap) (Runner[func()], *sync.WaitGroup, error) {
	return Runner[func()]{
		Run: func() {
			w.waitGroups.MainWg.Add(1)
			go w.PreprocessAndDispatchJobs(ctx, runID, archives, archiveMap)
		},
	}, w.waitGroups.MainWg, nil
}

func (w *AsyncWorker) SetupErrorWorker() (Runner[func(*models.ArchiveErrorMap)], *sync.WaitGroup, error) {
	return Runner[func(*models.ArchiveErrorMap)]{
		Run: func(archiveErrorMap *models.ArchiveErrorMap) {
			w.waitGroups.MainWg.Add(1)
			go w.ErrorWorker(archiveErrorMap)
		},
	}, w.waitGroups.MainWg, nil
}
