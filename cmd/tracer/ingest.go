package main

import (
	"context"
	"time"

	"github.com/ThiagoRGoveia/tracer-ingest/internal/ingestion"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	ingestYear       int
	ingestCategories []string
)

// ingestCmd runs the concurrent ingestion pipeline
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Download, interpret and store one year of reports",
	Long: `Download one year of reports, interpret them and upsert every record into
the configured store. Archives already ingested with the same checksum are
skipped, so the command is safe to re-run.

Examples:
  tracer ingest --year 2013
  tracer ingest --year 2013 --category loans --category expenditures`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().IntVar(&ingestYear, "year", 0, "report year (2000 or later)")
	ingestCmd.Flags().StringSliceVar(&ingestCategories, "category", nil, "report categories, all when omitted")
	_ = ingestCmd.MarkFlagRequired("year")
}

func runIngest(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	categories, err := parseCategories(ingestCategories)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	dbManager, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("cleaning up resources")
		dbManager.Close(context.WithoutCancel(ctx))
	}()

	m := metrics.New(prometheus.DefaultRegisterer)
	client := newClient(cfg, logger)

	archiveProcessor := ingestion.NewArchiveProcessor(dbManager, client, m, logger)
	asyncWorker := ingestion.NewAsyncWorker(dbManager, client, m, logger, ingestion.AsyncWorkerConfig{
		DBWorkersPerCategory: cfg.Ingestion.DBWorkersPerCategory,
		DBBatchSize:          cfg.Ingestion.BatchSize,
		MaxErrorsPerArchive:  cfg.Ingestion.MaxErrorsPerArchive,
	})

	service := ingestion.NewIngestionService(
		dbManager,
		ingestion.Setup{},
		asyncWorker,
		archiveProcessor,
		m,
		logger,
		cfg.Ingestion,
	)

	logger.Info("starting ingestion", zap.Int("year", ingestYear), zap.Int("categories", len(categories)))
	if err := service.Execute(ctx, ingestYear, categories); err != nil {
		logger.Error("error during ingestion", zap.Error(err))
		return err
	}

	logger.Info("ingestion finished", zap.Duration("elapsed", time.Since(startTime)))
	return nil
}
