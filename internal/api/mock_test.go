package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cropsense/farmops/internal/model"
	"github.com/cropsense/farmops/internal/store"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateReport(ctx context.Context, rec model.StoredReport) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

func (m *mockStore) GetReport(ctx context.Context, id string) (*model.StoredReport, error) {
	args := m.Called(ctx, id)
	if rec := args.Get(0); rec != nil {
		return rec.(*model.StoredReport), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) ListReports(ctx context.Context, actorID, page, pageSize int) ([]model.ReportSummary, int, error) {
	args := m.Called(ctx, actorID, page, pageSize)
	return args.Get(0).([]model.ReportSummary), args.Int(1), args.Error(2)
}

func (m *mockStore) Stats(ctx context.Context, actorID int) (*model.ReportStats, error) {
	args := m.Called(ctx, actorID)
	if stats := args.Get(0); stats != nil {
		return stats.(*model.ReportStats), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) CreateLogEntry(ctx context.Context, entry model.LogEntry) (string, error) {
	args := m.Called(ctx, entry)
	return args.String(0), args.Error(1)
}

func (m *mockStore) CreateTask(ctx context.Context, task model.Task) (string, error) {
	args := m.Called(ctx, task)
	return args.String(0), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

var _ store.Store = (*mockStore)(nil)

// stubRunner returns a canned report and remembers the request it saw.
type stubRunner struct {
	report  *model.DiagnosisReport
	lastReq *model.DiagnosisRequest
}

func (s *stubRunner) Run(_ context.Context, req *model.DiagnosisRequest) *model.DiagnosisReport {
	s.lastReq = req
	return s.report
}

var _ Runner = (*stubRunner)(nil)
