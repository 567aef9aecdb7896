package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ThiagoRGoveia/tracer-ingest/internal/config"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/metrics"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testYear = 2013

func BuildTestSetup() (*MockDBManager, *MockWorker, *MockProcessor, *MockSetup, models.SetupReturn, config.IngestionConfig, []models.ArchiveInfo) {
	dbManager := new(MockDBManager)
	worker := new(MockWorker)
	processor := new(MockProcessor)
	setup := new(MockSetup)

	cfg := config.IngestionConfig{
		ParserWorkers:        1,
		DBWorkersPerCategory: 3,
		ResultsChannelSize:   100,
		BatchSize:            10,
	}

	archiveMap := make(models.ArchiveMap)
	setupReturn := models.SetupReturn{
		Channels: &models.ExtractionChannels{
			Results: make(map[models.Category]chan *models.InterpretedRecord),
			Errors:  make(chan models.AppError, 100),
			Jobs:    make(chan models.ArchiveJob, 100),
		},
		WaitGroups:      &models.ExtractionWaitGroups{ParserWg: &sync.WaitGroup{}, DbWg: &sync.WaitGroup{}, MainWg: &sync.WaitGroup{}},
		ArchiveMap:      &archiveMap,
		ArchiveErrorMap: &models.ArchiveErrorMap{Errors: make(map[string][]models.AppError)},
		ArchiveStats:    &models.ArchiveStatsMap{Stats: make(map[string]*models.InterpretationStats)},
	}

	archives := []models.ArchiveInfo{{Year: testYear, Category: models.ContributionData, URL: "http://tracer/2013_ContributionData.csv.zip"}}
	return dbManager, worker, processor, setup, setupReturn, cfg, archives
}

func newTestService(dbManager *MockDBManager, setup *MockSetup, worker *MockWorker, processor *MockProcessor, cfg config.IngestionConfig) (*IngestionService, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	return NewIngestionService(dbManager, setup, worker, processor, m, zap.NewNop(), cfg), m
}

// expectUpToDispatcher registers the calls every run makes before the workers start.
func expectUpToDispatcher(dbManager *MockDBManager, worker *MockWorker, processor *MockProcessor, setup *MockSetup, setupReturn models.SetupReturn, archives []models.ArchiveInfo) {
	setup.On("build").Return(setupReturn, nil).Once()
	processor.On("PlanArchives", testYear, []models.Category(nil)).Return(archives, nil).Once()
	dbManager.On("CreateArchiveRecordsTable", mock.Anything).Return(nil).Once()
	dbManager.On("CreateReportTables", mock.Anything).Return(nil).Once()
	worker.On("WithChannels", setupReturn.Channels).Return(worker).Once()
	worker.On("WithWaitGroups", setupReturn.WaitGroups).Return(worker).Once()
}

func TestIngestionService_Execute(t *testing.T) {
	t.Run("Expect: Execute to run successfully", func(t *testing.T) {
		dbManager, worker, processor, setup, setupReturn, cfg, archives := BuildTestSetup()
		expectUpToDispatcher(dbManager, worker, processor, setup, setupReturn, archives)

		dispatcherRunner := Runner[func()]{Run: func() {}}
		worker.On("SetupJobDispatcherWorker", mock.Anything, mock.AnythingOfType("string"), archives, *setupReturn.ArchiveMap).Return(dispatcherRunner, &sync.WaitGroup{}, nil).Once()

		errorRunner := Runner[func(*models.ArchiveErrorMap)]{Run: func(_ *models.ArchiveErrorMap) {}}
		worker.On("SetupErrorWorker").Return(errorRunner, &sync.WaitGroup{}, nil).Once()

		parserRunner := Runner[func(*models.ArchiveStatsMap)]{Run: func(_ *models.ArchiveStatsMap) {}}
		worker.On("SetupParserWorkers", cfg.ParserWorkers).Return(parserRunner, &sync.WaitGroup{}, nil).Once()

		dbRunner := Runner[func(context.Context, BatchHandler) error]{Run: func(_ context.Context, _ BatchHandler) error { return nil }}
		worker.On("SetupDBWorkers", cfg.DBWorkersPerCategory).Return(dbRunner, &sync.WaitGroup{}, nil).Once()

		processor.On("UpdateArchiveStatus", mock.Anything, setupReturn.ArchiveErrorMap, setupReturn.ArchiveStats, setupReturn.ArchiveMap).Return(nil).Once()

		service, _ := newTestService(dbManager, setup, worker, processor, cfg)
		err := service.Execute(context.Background(), testYear, nil)

		require.NoError(t, err)
		assert.Contains(t, setupReturn.Channels.Results, models.ContributionData, "a results channel should exist for each planned category")

		dbManager.AssertExpectations(t)
		worker.AssertExpectations(t)
		processor.AssertExpectations(t)
		setup.AssertExpectations(t)
	})

	t.Run("Expect: DB handler to serialize and upsert the batch", func(t *testing.T) {
		dbManager, worker, processor, setup, setupReturn, cfg, archives := BuildTestSetup()
		expectUpToDispatcher(dbManager, worker, processor, setup, setupReturn, archives)
		worker.On("SetupJobDispatcherWorker", mock.Anything, mock.AnythingOfType("string"), archives, *setupReturn.ArchiveMap).Return(Runner[func()]{Run: func() {}}, &sync.WaitGroup{}, nil).Once()
		worker.On("SetupErrorWorker").Return(Runner[func(*models.ArchiveErrorMap)]{Run: func(_ *models.ArchiveErrorMap) {}}, &sync.WaitGroup{}, nil).Once()
		worker.On("SetupParserWorkers", cfg.ParserWorkers).Return(Runner[func(*models.ArchiveStatsMap)]{Run: func(_ *models.ArchiveStatsMap) {}}, &sync.WaitGroup{}, nil).Once()

		var handlerErr error
		dbRunner := Runner[func(context.Context, BatchHandler) error]{Run: func(ctx context.Context, handler BatchHandler) error {
			handlerErr = handler(ctx, models.ContributionData, []*models.InterpretedRecord{
				{ArchiveID: "a1", Record: models.Record{"RecordID": "1", "CO_ID": "C1"}},
				{ArchiveID: "a1", Record: models.Record{"RecordID": "2", "CO_ID": "C2"}},
			})
			return nil
		}}
		worker.On("SetupDBWorkers", cfg.DBWorkersPerCategory).Return(dbRunner, &sync.WaitGroup{}, nil).Once()
		dbManager.On("UpsertDocuments", mock.Anything, models.ContributionData, mock.MatchedBy(func(docs []models.Document) bool {
			return len(docs) == 2 && docs[0].ID() == "1" && docs[0]["committeeId"] == "C1"
		})).Return(nil).Once()
		processor.On("UpdateArchiveStatus", mock.Anything, setupReturn.ArchiveErrorMap, setupReturn.ArchiveStats, setupReturn.ArchiveMap).Return(nil).Once()

		service, m := newTestService(dbManager, setup, worker, processor, cfg)
		err := service.Execute(context.Background(), testYear, nil)

		require.NoError(t, err)
		assert.NoError(t, handlerErr)
		assert.Equal(t, 2.0, testutil.ToFloat64(m.DocumentsUpsertedTotal.WithLabelValues("ContributionData")))
		dbManager.AssertExpectations(t)
	})

	t.Run("Expect: Error to be returned when setupService.build() fails", func(t *testing.T) {
		dbManager, worker, processor, setup, _, cfg, _ := BuildTestSetup()
		setup.On("build").Return(models.SetupReturn{}, errors.New("build error")).Once()

		service, _ := newTestService(dbManager, setup, worker, processor, cfg)
		err := service.Execute(context.Background(), testYear, nil)

		assert.Error(t, err)
		setup.AssertExpectations(t)
		processor.AssertNotCalled(t, "PlanArchives")
		dbManager.AssertNotCalled(t, "CreateArchiveRecordsTable")
	})

	t.Run("Expect: Error to be returned when PlanArchives() fails", func(t *testing.T) {
		dbManager, worker, processor, setup, setupReturn, cfg, _ := BuildTestSetup()
		setup.On("build").Return(setupReturn, nil).Once()
		processor.On("PlanArchives", testYear, []models.Category(nil)).Return(nil, errors.New("plan error")).Once()

		service, _ := newTestService(dbManager, setup, worker, processor, cfg)
		err := service.Execute(context.Background(), testYear, nil)

		assert.Error(t, err)
		processor.AssertExpectations(t)
		dbManager.AssertNotCalled(t, "CreateArchiveRecordsTable")
	})

	t.Run("Expect: Error to be returned when setupDatabase() fails", func(t *testing.T) {
		dbManager, worker, processor, setup, setupReturn, cfg, archives := BuildTestSetup()
		setup.On("build").Return(setupReturn, nil).Once()
		processor.On("PlanArchives", testYear, []models.Category(nil)).Return(archives, nil).Once()
		dbManager.On("CreateArchiveRecordsTable", mock.Anything).Return(errors.New("table error")).Once()

		service, _ := newTestService(dbManager, setup, worker, processor, cfg)
		err := service.Execute(context.Background(), testYear, nil)

		assert.ErrorContains(t, err, "table error")
		dbManager.AssertExpectations(t)
		dbManager.AssertNotCalled(t, "CreateReportTables")
		worker.AssertNotCalled(t, "WithChannels", mock.Anything)
	})

	t.Run("Expect: Error to be returned when SetupJobDispatcherWorker() fails", func(t *testing.T) {
		dbManager, worker, processor, setup, setupReturn, cfg, archives := BuildTestSetup()
		expectUpToDispatcher(dbManager, worker, processor, setup, setupReturn, archives)
		worker.On("SetupJobDispatcherWorker", mock.Anything, mock.AnythingOfType("string"), archives, *setupReturn.ArchiveMap).Return(nil, nil, errors.New("dispatcher error")).Once()

		service, _ := newTestService(dbManager, setup, worker, processor, cfg)
		err := service.Execute(context.Background(), testYear, nil)

		assert.Error(t, err)
		worker.AssertExpectations(t)
		worker.AssertNotCalled(t, "SetupErrorWorker")
	})

	t.Run("Expect: Error to be returned when SetupErrorWorker() fails", func(t *testing.T) {
		dbManager, worker, processor, setup, setupReturn, cfg, archives := BuildTestSetup()
		expectUpToDispatcher(dbManager, worker, processor, setup, setupReturn, archives)
		worker.On("SetupJobDispatcherWorker", mock.Anything, mock.AnythingOfType("string"), archives, *setupReturn.ArchiveMap).Return(Runner[func()]{Run: func() {}}, &sync.WaitGroup{}, nil).Once()
		worker.On("SetupErrorWorker").Return(nil, nil, errors.New("error worker error")).Once()

		service, _ := newTestService(dbManager, setup, worker, processor, cfg)
		err := service.Execute(context.Background(), testYear, nil)

		assert.Error(t, err)
		worker.AssertExpectations(t)
		worker.AssertNotCalled(t, "SetupParserWorkers", mock.Anything)
	})

	t.Run("Expect: Error to be returned when SetupParserWorkers() fails", func(t *testing.T) {
		dbManager, worker, processor, setup, setupReturn, cfg, archives := BuildTestSetup()
		expectUpToDispatcher(dbManager, worker, processor, setup, setupReturn, archives)
		worker.On("SetupJobDispatcherWorker", mock.Anything, mock.AnythingOfType("string"), archives, *setupReturn.ArchiveMap).Return(Runner[func()]{Run: func() {}}, &sync.WaitGroup{}, nil).Once()
		worker.On("SetupErrorWorker").Return(Runner[func(*models.ArchiveErrorMap)]{Run: func(_ *models.ArchiveErrorMap) {}}, &sync.WaitGroup{}, nil).Once()
		worker.On("SetupParserWorkers", cfg.ParserWorkers).Return(nil, nil, errors.New("parser error")).Once()

		service, _ := newTestService(dbManager, setup, worker, processor, cfg)
		err := service.Execute(context.Background(), testYear, nil)

		assert.Error(t, err)
		worker.AssertExpectations(t)
		worker.AssertNotCalled(t, "SetupDBWorkers", mock.Anything)
	})

	t.Run("Expect: Error to be returned when SetupDBWorkers() fails", func(t *testing.T) {
		dbManager, worker, processor, setup, setupReturn, cfg, archives := BuildTestSetup()
		expectUpToDispatcher(dbManager, worker, processor, setup, setupReturn, archives)
		worker.On("SetupJobDispatcherWorker", mock.Anything, mock.AnythingOfType("string"), archives, *setupReturn.ArchiveMap).Return(Runner[func()]{Run: func() {}}, &sync.WaitGroup{}, nil).Once()
		worker.On("SetupErrorWorker").Return(Runner[func(*models.ArchiveErrorMap)]{Run: func(_ *models.ArchiveErrorMap) {}}, &sync.WaitGroup{}, nil).Once()
		worker.On("SetupParserWorkers", cfg.ParserWorkers).Return(Runner[func(*models.ArchiveStatsMap)]{Run: func(_ *models.ArchiveStatsMap) {}}, &sync.WaitGroup{}, nil).Once()
		worker.On("SetupDBWorkers", cfg.DBWorkersPerCategory).Return(nil, nil, errors.New("db worker error")).Once()

		service, _ := newTestService(dbManager, setup, worker, processor, cfg)
		err := service.Execute(context.Background(), testYear, nil)

		assert.Error(t, err)
		worker.AssertExpectations(t)
		processor.AssertNotCalled(t, "UpdateArchiveStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Expect: Error to be returned when DBWorkersRunner() fails", func(t *testing.T) {
		dbManager, worker, processor, setup, setupReturn, cfg, archives := BuildTestSetup()
		expectUpToDispatcher(dbManager, worker, processor, setup, setupReturn, archives)
		worker.On("SetupJobDispatcherWorker", mock.Anything, mock.AnythingOfType("string"), archives, *setupReturn.ArchiveMap).Return(Runner[func()]{Run: func() {}}, &sync.WaitGroup{}, nil).Once()
		worker.On("SetupErrorWorker").Return(Runner[func(*models.ArchiveErrorMap)]{Run: func(_ *models.ArchiveErrorMap) {}}, &sync.WaitGroup{}, nil).Once()
		worker.On("SetupParserWorkers", cfg.ParserWorkers).Return(Runner[func(*models.ArchiveStatsMap)]{Run: func(_ *models.ArchiveStatsMap) {}}, &sync.WaitGroup{}, nil).Once()
		dbRunner := Runner[func(context.Context, BatchHandler) error]{Run: func(_ context.Context, _ BatchHandler) error { return errors.New("db runner error") }}
		worker.On("SetupDBWorkers", cfg.DBWorkersPerCategory).Return(dbRunner, &sync.WaitGroup{}, nil).Once()

		service, _ := newTestService(dbManager, setup, worker, processor, cfg)
		err := service.Execute(context.Background(), testYear, nil)

		assert.ErrorContains(t, err, "db runner error")
		worker.AssertExpectations(t)
	})

	t.Run("Expect: Cancellation to be returned after statuses are written", func(t *testing.T) {
		dbManager, worker, processor, setup, setupReturn, cfg, archives := BuildTestSetup()
		expectUpToDispatcher(dbManager, worker, processor, setup, setupReturn, archives)
		worker.On("SetupJobDispatcherWorker", mock.Anything, mock.AnythingOfType("string"), archives, *setupReturn.ArchiveMap).Return(Runner[func()]{Run: func() {}}, &sync.WaitGroup{}, nil).Once()
		worker.On("SetupErrorWorker").Return(Runner[func(*models.ArchiveErrorMap)]{Run: func(_ *models.ArchiveErrorMap) {}}, &sync.WaitGroup{}, nil).Once()
		worker.On("SetupParserWorkers", cfg.ParserWorkers).Return(Runner[func(*models.ArchiveStatsMap)]{Run: func(_ *models.ArchiveStatsMap) {}}, &sync.WaitGroup{}, nil).Once()
		worker.On("SetupDBWorkers", cfg.DBWorkersPerCategory).Return(Runner[func(context.Context, BatchHandler) error]{Run: func(_ context.Context, _ BatchHandler) error { return nil }}, &sync.WaitGroup{}, nil).Once()
		processor.On("UpdateArchiveStatus", mock.Anything, setupReturn.ArchiveErrorMap, setupReturn.ArchiveStats, setupReturn.ArchiveMap).Return(nil).Once()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		service, _ := newTestService(dbManager, setup, worker, processor, cfg)
		err := service.Execute(ctx, testYear, nil)

		assert.ErrorIs(t, err, context.Canceled)
		processor.AssertExpectations(t)
	})
}
