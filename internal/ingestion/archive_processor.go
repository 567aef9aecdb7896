package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThiagoRGoveia/tracer-ingest/internal/database"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/metrics"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/models"
	"go.uber.org/zap"
)

// Processor defines the interface for archive bookkeeping operations.
type Processor interface {
	PlanArchives(year int, categories []models.Category) ([]models.ArchiveInfo, error)
	UpdateArchiveStatus(ctx context.Context, archiveErrorMap *models.ArchiveErrorMap, statsMap *models.ArchiveStatsMap, archiveMap *models.ArchiveMap) error
}

// URLBuilder resolves where a report archive lives; satisfied by *retrieval.Client.
type URLBuilder interface {
	URL(year int, category models.Category) (string, error)
}

// ArchiveProcessor plans which archives a run downloads and closes their
// bookkeeping rows once the run is over.
type ArchiveProcessor struct {
	dbManager database.DBManager
	urls      URLBuilder
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewArchiveProcessor(dbManager database.DBManager, urls URLBuilder, m *metrics.Metrics, logger *zap.Logger) *ArchiveProcessor {
	return &ArchiveProcessor{
		dbManager: dbManager,
		urls:      urls,
		metrics:   m,
		logger:    logger,
	}
}

// PlanArchives lists one archive per requested category, all categories when
// none are given. Repeated categories are planned once.
func (ap *ArchiveProcessor) PlanArchives(year int, categories []models.Category) ([]models.ArchiveInfo, error) {
	if len(categories) == 0 {
		categories = models.Categories
	}

	seen := make(map[models.Category]bool, len(categories))
	archives := make([]models.ArchiveInfo, 0, len(categories))
	for _, category := range categories {
		if seen[category] {
			continue
		}
		seen[category] = true

		url, err := ap.urls.URL(year, category)
		if err != nil {
			return nil, fmt.Errorf("cannot plan %s archive for %d: %w", category, year, err)
		}
		archives = append(archives, models.ArchiveInfo{Year: year, Category: category, URL: url})
	}

	ap.logger.Info("archives planned", zap.Int("year", year), zap.Int("count", len(archives)))
	return archives, nil
}

// UpdateArchiveStatus writes the final status, errors and interpretation
// stats of every archive dispatched in this run. A cancelled run marks its
// archives FATAL so they are downloaded again next time.
func (ap *ArchiveProcessor) UpdateArchiveStatus(ctx context.Context, archiveErrorMap *models.ArchiveErrorMap, statsMap *models.ArchiveStatsMap, archiveMap *models.ArchiveMap) error {
	cancelled := ctx.Err() != nil
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for archiveID, archive := range *archiveMap {
		appErrors := archiveErrorMap.Errors[archiveID]
		status := database.ARCHIVE_STATUS_DONE
		switch {
		case cancelled:
			status = database.ARCHIVE_STATUS_FATAL
		case len(appErrors) > 0:
			status = database.ARCHIVE_STATUS_DONE_WITH_ERRORS
		}

		var stats any
		if s, ok := statsMap.Stats[archiveID]; ok {
			stats = s
		}

		if err := ap.dbManager.UpdateArchiveStatus(ctx, archiveID, status, appErrors, stats); err != nil {
			ap.logger.Error("failed to update archive status", zap.String("archive_id", archiveID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		ap.metrics.ArchivesTotal.WithLabelValues(string(archive.Category), status).Inc()
		ap.logger.Info("archive finished",
			zap.String("archive_id", archiveID),
			zap.String("url", archive.URL),
			zap.String("status", status),
			zap.Int("errors", len(appErrors)))
	}
	return errors.Join(errs...)
}
