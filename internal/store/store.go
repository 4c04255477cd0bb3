package store

import (
	"context"
	"math"

	"github.com/cropsense/farmops/internal/model"
)

// Paging bounds for report listings.
const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

// Store defines the persistence interface for diagnosis reports and the
// farm records the pipeline writes alongside them.
//
// GetReport returns (nil, nil) when no report exists under the given id so
// callers can map absence to a 404 without unwrapping driver errors.
type Store interface {
	// Reports
	CreateReport(ctx context.Context, rec model.StoredReport) (string, error)
	GetReport(ctx context.Context, id string) (*model.StoredReport, error)
	ListReports(ctx context.Context, actorID, page, pageSize int) ([]model.ReportSummary, int, error)
	Stats(ctx context.Context, actorID int) (*model.ReportStats, error)

	// Farm records
	CreateLogEntry(ctx context.Context, entry model.LogEntry) (string, error)
	CreateTask(ctx context.Context, task model.Task) (string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// normalizePage clamps paging inputs to the bounds shared by both store
// implementations. actorID 0 means unscoped and is handled by the queries.
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// reportColumns derives the denormalized filter columns stored next to the
// report body so Stats never has to unpack JSON.
func reportColumns(rec model.StoredReport) (disease, severity string, hasLog bool, taskCount int) {
	if rec.Report == nil {
		return "", "", false, 0
	}
	return rec.Report.Disease.Name,
		string(rec.Report.Disease.Severity),
		rec.Report.LogEntryID != "",
		len(rec.Report.TaskIDs)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
