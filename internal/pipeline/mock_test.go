package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cropsense/farmops/internal/model"
	"github.com/cropsense/farmops/internal/store"
	"github.com/cropsense/farmops/pkg/anthropic"
	"github.com/cropsense/farmops/pkg/exa"
)

// --- Anthropic Mock ---

type mockCompletionClient struct {
	mock.Mock
}

func (m *mockCompletionClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// --- Exa Mock ---

// Search options are not asserted on; expectations match ctx and query only.
type mockSearchClient struct {
	mock.Mock
}

func (m *mockSearchClient) Search(ctx context.Context, query string, _ ...exa.SearchOption) (*exa.SearchResponse, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exa.SearchResponse), args.Error(1)
}

// --- Store Mock ---

type mockFarmStore struct {
	mock.Mock
}

func (m *mockFarmStore) CreateReport(ctx context.Context, rec model.StoredReport) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

func (m *mockFarmStore) GetReport(ctx context.Context, id string) (*model.StoredReport, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StoredReport), args.Error(1)
}

func (m *mockFarmStore) ListReports(ctx context.Context, actorID, page, pageSize int) ([]model.ReportSummary, int, error) {
	args := m.Called(ctx, actorID, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]model.ReportSummary), args.Int(1), args.Error(2)
}

func (m *mockFarmStore) Stats(ctx context.Context, actorID int) (*model.ReportStats, error) {
	args := m.Called(ctx, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReportStats), args.Error(1)
}

func (m *mockFarmStore) CreateLogEntry(ctx context.Context, entry model.LogEntry) (string, error) {
	args := m.Called(ctx, entry)
	return args.String(0), args.Error(1)
}

func (m *mockFarmStore) CreateTask(ctx context.Context, task model.Task) (string, error) {
	args := m.Called(ctx, task)
	return args.String(0), args.Error(1)
}

func (m *mockFarmStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockFarmStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockFarmStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Ensure interface compliance ---
var (
	_ anthropic.Client = (*mockCompletionClient)(nil)
	_ exa.Client       = (*mockSearchClient)(nil)
	_ store.Store      = (*mockFarmStore)(nil)
)
