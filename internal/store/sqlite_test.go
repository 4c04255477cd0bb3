package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cropsense/farmops/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// storedReport builds a report row with enough body to exercise the
// denormalized columns. The created-at offset keeps listing order stable.
func storedReport(actorID int, crop, disease string, severity model.Severity, confidence float64, age time.Duration) model.StoredReport {
	return model.StoredReport{
		ActorID:    actorID,
		Title:      "Disease Analysis - " + crop,
		CropType:   crop,
		Confidence: confidence,
		Report: &model.DiagnosisReport{
			AnalysisID: "analysis-" + crop,
			CropType:   crop,
			Disease: model.DiseaseCandidate{
				Name:            disease,
				Severity:        severity,
				ConfidenceScore: confidence,
			},
			OverallConfidence: confidence,
		},
		CreatedAt: time.Now().UTC().Add(-age),
	}
}

// --- Reports ---

func TestSQLite_CreateAndGetReport(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := storedReport(7, "tomato", "Early Blight", model.SeverityModerate, 0.85, 0)
	rec.HasImage = true
	rec.Report.LogEntryID = "log-1"
	rec.Report.TaskIDs = []string{"t1", "t2"}

	id, err := st.CreateReport(ctx, rec)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	fetched, err := st.GetReport(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, id, fetched.ID)
	assert.Equal(t, 7, fetched.ActorID)
	assert.Equal(t, "Disease Analysis - tomato", fetched.Title)
	assert.True(t, fetched.HasImage)
	require.NotNil(t, fetched.Report)
	assert.Equal(t, "Early Blight", fetched.Report.Disease.Name)
	assert.Equal(t, model.SeverityModerate, fetched.Report.Disease.Severity)
	assert.Equal(t, "log-1", fetched.Report.LogEntryID)
	assert.Len(t, fetched.Report.TaskIDs, 2)
}

func TestSQLite_GetReport_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	rec, err := st.GetReport(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSQLite_CreateReport_KeepsCallerID(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := storedReport(1, "rice", "Blast", model.SeveritySevere, 0.7, 0)
	rec.ID = "fixed-id"

	id, err := st.CreateReport(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id)
}

// --- Listing ---

func TestSQLite_ListReports_Pagination(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Oldest to newest: chickpea, rice, tomato.
	for i, rec := range []model.StoredReport{
		storedReport(1, "chickpea", "Wilt", model.SeverityMild, 0.6, 3*time.Minute),
		storedReport(1, "rice", "Blast", model.SeveritySevere, 0.7, 2*time.Minute),
		storedReport(1, "tomato", "Early Blight", model.SeverityModerate, 0.85, 1*time.Minute),
	} {
		_, err := st.CreateReport(ctx, rec)
		require.NoError(t, err, "report %d", i)
	}

	page1, total, err := st.ListReports(ctx, 0, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page1, 2)
	assert.Equal(t, "tomato", page1[0].CropType)
	assert.Equal(t, "rice", page1[1].CropType)
	assert.Equal(t, "Early Blight", page1[0].Disease)

	page2, total, err := st.ListReports(ctx, 0, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page2, 1)
	assert.Equal(t, "chickpea", page2[0].CropType)
}

func TestSQLite_ListReports_ActorScoping(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateReport(ctx, storedReport(1, "tomato", "Early Blight", model.SeverityModerate, 0.85, time.Minute))
	require.NoError(t, err)
	_, err = st.CreateReport(ctx, storedReport(2, "rice", "Blast", model.SeveritySevere, 0.7, 0))
	require.NoError(t, err)

	mine, total, err := st.ListReports(ctx, 1, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, mine, 1)
	assert.Equal(t, "tomato", mine[0].CropType)

	// Actor 0 means unscoped.
	all, total, err := st.ListReports(ctx, 0, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, all, 2)
}

func TestSQLite_ListReports_ClampsPaging(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateReport(ctx, storedReport(1, "tomato", "Early Blight", model.SeverityModerate, 0.85, 0))
	require.NoError(t, err)

	// Out-of-range paging inputs are normalized rather than rejected.
	summaries, total, err := st.ListReports(ctx, 0, -3, 5000)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, summaries, 1)
}

func TestSQLite_ListReports_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	summaries, total, err := st.ListReports(context.Background(), 0, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, summaries)
}

// --- Stats ---

func TestSQLite_Stats(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	withImage := storedReport(1, "tomato", "Early Blight", model.SeverityModerate, 0.9, 3*time.Minute)
	withImage.HasImage = true

	withTasks := storedReport(1, "tomato", "Early Blight", model.SeverityModerate, 0.8, 2*time.Minute)
	withTasks.Report.TaskIDs = []string{"t1", "t2"}
	withTasks.Report.LogEntryID = "log-1"

	plain := storedReport(1, "rice", "Blast", model.SeveritySevere, 0.7, time.Minute)

	for _, rec := range []model.StoredReport{withImage, withTasks, plain} {
		_, err := st.CreateReport(ctx, rec)
		require.NoError(t, err)
	}

	stats, err := st.Stats(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalAnalyses)
	assert.Equal(t, 1, stats.WithImages)
	assert.Equal(t, 1, stats.WithTasks)
	assert.Equal(t, 1, stats.WithLogs)
	assert.InDelta(t, 0.8, stats.AvgConfidence, 1e-9)
	assert.Equal(t, 2, stats.CropCounts["tomato"])
	assert.Equal(t, 1, stats.CropCounts["rice"])
	assert.Equal(t, 2, stats.DiseaseCounts["Early Blight"])
	assert.Equal(t, 2, stats.SeverityDist["moderate"])
	assert.Equal(t, 1, stats.SeverityDist["severe"])
	require.Len(t, stats.Recent, 3)
	assert.Equal(t, "rice", stats.Recent[0].CropType) // newest first
}

func TestSQLite_Stats_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	stats, err := st.Stats(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalAnalyses)
	assert.Zero(t, stats.AvgConfidence)
	assert.NotNil(t, stats.CropCounts)
	assert.Empty(t, stats.CropCounts)
	assert.Empty(t, stats.Recent)
}

func TestSQLite_Stats_ActorScoped(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateReport(ctx, storedReport(1, "tomato", "Early Blight", model.SeverityModerate, 0.9, time.Minute))
	require.NoError(t, err)
	_, err = st.CreateReport(ctx, storedReport(2, "rice", "Blast", model.SeveritySevere, 0.5, 0))
	require.NoError(t, err)

	stats, err := st.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalAnalyses)
	assert.InDelta(t, 0.9, stats.AvgConfidence, 1e-9)
	assert.NotContains(t, stats.CropCounts, "rice")
}

// --- Farm records ---

func TestSQLite_CreateLogEntry(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := model.LogEntry{
		ActorID:           7,
		CropRefID:         3,
		ActivityType:      "disease_diagnosis",
		Notes:             "AI Disease Analysis: Early Blight detected in tomato",
		HealthObservation: "diseased",
		DiseasesNoted:     "Early Blight",
		DiseaseSpotted:    true,
		Insights:          "Moderate severity infection.",
		Recommendations:   []string{"Apply copper fungicide", "Improve drainage"},
		ActivityDetails:   map[string]any{"analysis_id": "a-1", "confidence": 0.85},
	}

	id, err := st.CreateLogEntry(ctx, entry)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	var activityType, diseasesNoted string
	var spotted bool
	err = st.db.QueryRowContext(ctx,
		`SELECT activity_type, diseases_noted, disease_spotted FROM daily_logs WHERE id = ?`, id,
	).Scan(&activityType, &diseasesNoted, &spotted)
	require.NoError(t, err)
	assert.Equal(t, "disease_diagnosis", activityType)
	assert.Equal(t, "Early Blight", diseasesNoted)
	assert.True(t, spotted)
}

func TestSQLite_CreateTask(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	task := model.Task{
		ActorID:            7,
		CropRefID:          3,
		Title:              "Monitor disease progression",
		Description:        "Expected recovery: 2-3 weeks with treatment. Take photos and update daily logs.",
		Priority:           model.TaskPriorityMedium,
		Status:             model.TaskStatusPending,
		DueDate:            time.Now().UTC().Add(72 * time.Hour),
		SystemGenerated:    true,
		AIGenerated:        true,
		Recurring:          true,
		RecurrencePattern:  "weekly",
		RecurrenceInterval: 1,
	}

	id, err := st.CreateTask(ctx, task)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	var status, pattern string
	var recurring bool
	var interval int
	err = st.db.QueryRowContext(ctx,
		`SELECT status, recurrence_pattern, is_recurring, recurrence_interval FROM farm_tasks WHERE id = ?`, id,
	).Scan(&status, &pattern, &recurring, &interval)
	require.NoError(t, err)
	assert.Equal(t, "pending", status)
	assert.Equal(t, "weekly", pattern)
	assert.True(t, recurring)
	assert.Equal(t, 1, interval)
}

// --- Lifecycle ---

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)

	// Migrate was already called in newTestSQLiteStore; calling again should not error.
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)

	require.NoError(t, st.Ping(context.Background()))
}
