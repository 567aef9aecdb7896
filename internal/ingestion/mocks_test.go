package ingestion

import (
	"context"
	"sync"

	"github.com/ThiagoRGoveia/tracer-ingest/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockDBManager is a mock implementation of the DBManager interface.
type MockDBManager struct {
	mock.Mock
}

func (m *MockDBManager) CreateArchiveRecordsTable(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDBManager) CreateReportTables(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDBManager) InsertArchiveRecord(ctx context.Context, archive models.ArchiveRecord) error {
	args := m.Called(ctx, archive)
	return args.Error(0)
}

func (m *MockDBManager) UpdateArchiveStatus(ctx context.Context, archiveID string, status string, errors any, stats any) error {
	args := m.Called(ctx, archiveID, status, errors, stats)
	return args.Error(0)
}

func (m *MockDBManager) IsArchiveAlreadyProcessed(ctx context.Context, checksum string) (bool, error) {
	args := m.Called(ctx, checksum)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBManager) UpsertDocuments(ctx context.Context, category models.Category, docs []models.Document) error {
	args := m.Called(ctx, category, docs)
	return args.Error(0)
}

func (m *MockDBManager) GetDocument(ctx context.Context, category models.Category, recordID string) (models.Document, error) {
	args := m.Called(ctx, category, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(models.Document), args.Error(1)
}

func (m *MockDBManager) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockFetcher is a mock implementation of the ArchiveFetcher interface.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchArchive(ctx context.Context, url string) ([]byte, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// MockURLBuilder is a mock implementation of the URLBuilder interface.
type MockURLBuilder struct {
	mock.Mock
}

func (m *MockURLBuilder) URL(year int, category models.Category) (string, error) {
	args := m.Called(year, category)
	return args.String(0), args.Error(1)
}

// MockWorker is a mock implementation of the Worker interface.
type MockWorker struct {
	mock.Mock
}

func (m *MockWorker) WithChannels(channels *models.ExtractionChannels) Worker {
	m.Called(channels)
	return m
}

func (m *MockWorker) WithWaitGroups(waitGroups *models.ExtractionWaitGroups) Worker {
	m.Called(waitGroups)
	return m
}

func (m *MockWorker) SetupErrorWorker() (Runner[func(*models.ArchiveErrorMap)], *sync.WaitGroup, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return Runner[func(*models.ArchiveErrorMap)]{}, nil, args.Error(2)
	}
	return args.Get(0).(Runner[func(*models.ArchiveErrorMap)]), args.Get(1).(*sync.WaitGroup), args.Error(2)
}

func (m *MockWorker) SetupParserWorkers(numWorkers int) (Runner[func(*models.ArchiveStatsMap)], *sync.WaitGroup, error) {
	args := m.Called(numWorkers)
	if args.Get(0) == nil {
		return Runner[func(*models.ArchiveStatsMap)]{}, nil, args.Error(2)
	}
	return args.Get(0).(Runner[func(*models.ArchiveStatsMap)]), args.Get(1).(*sync.WaitGroup), args.Error(2)
}

func (m *MockWorker) SetupDBWorkers(numWorkersPerCategory int) (Runner[func(context.Context, BatchHandler) error], *sync.WaitGroup, error) {
	args := m.Called(numWorkersPerCategory)
	if args.Get(0) == nil {
		return Runner[func(context.Context, BatchHandler) error]{}, nil, args.Error(2)
	}
	return args.Get(0).(Runner[func(context.Context, BatchHandler) error]), args.Get(1).(*sync.WaitGroup), args.Error(2)
}

func (m *MockWorker) SetupJobDispatcherWorker(ctx context.Context, runID string, archives []models.ArchiveInfo, archiveMap models.ArchiveMap) (Runner[func()], *sync.WaitGroup, error) {
	args := m.Called(ctx, runID, archives, archiveMap)
	if args.Get(0) == nil {
		return Runner[func()]{}, nil, args.Error(2)
	}
	return args.Get(0).(Runner[func()]), args.Get(1).(*sync.WaitGroup), args.Error(2)
}

// MockProcessor is a mock implementation of the Processor interface.
type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) PlanArchives(year int, categories []models.Category) ([]models.ArchiveInfo, error) {
	args := m.Called(year, categories)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ArchiveInfo), args.Error(1)
}

func (m *MockProcessor) UpdateArchiveStatus(ctx context.Context, archiveErrorMap *models.ArchiveErrorMap, statsMap *models.ArchiveStatsMap, archiveMap *models.ArchiveMap) error {
	args := m.Called(ctx, archiveErrorMap, statsMap, archiveMap)
	return args.Error(0)
}

// MockSetup is a mock implementation of the ISetup interface.
type MockSetup struct {
	mock.Mock
}

func (m *MockSetup) build() (models.SetupReturn, error) {
	args := m.Called()
	return args.Get(0).(models.SetupReturn), args.Error(1)
}
