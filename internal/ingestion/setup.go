package ingestion

import (
	"sync"

	"github.com/ThiagoRGoveia/tracer-ingest/internal/models"
)

type ISetup interface {
	build() (models.SetupReturn, error)
}

// Setup sizes the shared channels of one ingestion run.
type Setup struct {
	// JobsBuffer bounds how many downloaded archives wait in memory for a
	// parser worker.
	JobsBuffer   int
	ErrorsBuffer int
}

// Instantiate all channels and data structures used by the concurrent ingestion process.
// Kept in its own struct so tests can inject prepared channels.
func (h Setup) build() (models.SetupReturn, error) {
	jobsBuffer, errorsBuffer := h.JobsBuffer, h.ErrorsBuffer
	if jobsBuffer <= 0 {
		jobsBuffer = 1
	}
	if errorsBuffer <= 0 {
		errorsBuffer = 100
	}

	channels := models.ExtractionChannels{
		Results: make(map[models.Category]chan *models.InterpretedRecord),
		Errors:  make(chan models.AppError, errorsBuffer),
		Jobs:    make(chan models.ArchiveJob, jobsBuffer),
	}

	var parserWg, dbWg, mainWg sync.WaitGroup
	archiveMap := make(models.ArchiveMap)
	return models.SetupReturn{
		Channels:        &channels,
		WaitGroups:      &models.ExtractionWaitGroups{ParserWg: &parserWg, DbWg: &dbWg, MainWg: &mainWg},
		ArchiveMap:      &archiveMap,
		ArchiveErrorMap: &models.ArchiveErrorMap{Errors: make(map[string][]models.AppError)},
		ArchiveStats:    &models.ArchiveStatsMap{Stats: make(map[string]*models.InterpretationStats)},
	}, nil
}
