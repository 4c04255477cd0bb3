package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/cropsense/farmops/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS disease_reports (
	id         TEXT PRIMARY KEY,
	actor_id   INTEGER NOT NULL DEFAULT 0,
	title      TEXT NOT NULL,
	crop_type  TEXT NOT NULL,
	disease    TEXT NOT NULL DEFAULT '',
	severity   TEXT NOT NULL DEFAULT '',
	confidence REAL NOT NULL DEFAULT 0,
	has_image  INTEGER NOT NULL DEFAULT 0,
	has_log    INTEGER NOT NULL DEFAULT 0,
	task_count INTEGER NOT NULL DEFAULT 0,
	report     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_disease_reports_actor_id ON disease_reports(actor_id);
CREATE INDEX IF NOT EXISTS idx_disease_reports_created_at ON disease_reports(created_at);
CREATE INDEX IF NOT EXISTS idx_disease_reports_crop_type ON disease_reports(crop_type);

CREATE TABLE IF NOT EXISTS daily_logs (
	id                      TEXT PRIMARY KEY,
	actor_id                INTEGER NOT NULL DEFAULT 0,
	crop_ref_id             INTEGER NOT NULL DEFAULT 0,
	log_date                DATETIME NOT NULL,
	activity_type           TEXT NOT NULL,
	activity_details        TEXT,
	notes                   TEXT NOT NULL DEFAULT '',
	crop_health_observation TEXT NOT NULL DEFAULT '',
	crop_health_notes       TEXT NOT NULL DEFAULT '',
	diseases_noted          TEXT NOT NULL DEFAULT '',
	disease_spotted         INTEGER NOT NULL DEFAULT 0,
	ai_insights             TEXT NOT NULL DEFAULT '',
	ai_recommendations      TEXT,
	images                  TEXT,
	created_at              DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_daily_logs_actor_id ON daily_logs(actor_id);
CREATE INDEX IF NOT EXISTS idx_daily_logs_log_date ON daily_logs(log_date);

CREATE TABLE IF NOT EXISTS farm_tasks (
	id                  TEXT PRIMARY KEY,
	actor_id            INTEGER NOT NULL DEFAULT 0,
	crop_ref_id         INTEGER NOT NULL DEFAULT 0,
	task_title          TEXT NOT NULL,
	task_description    TEXT NOT NULL DEFAULT '',
	priority            TEXT NOT NULL DEFAULT 'medium',
	status              TEXT NOT NULL DEFAULT 'pending',
	due_date            DATETIME NOT NULL,
	is_system_generated INTEGER NOT NULL DEFAULT 1,
	ai_generated        INTEGER NOT NULL DEFAULT 1,
	is_recurring        INTEGER NOT NULL DEFAULT 0,
	recurrence_pattern  TEXT NOT NULL DEFAULT '',
	recurrence_interval INTEGER NOT NULL DEFAULT 0,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_farm_tasks_actor_id ON farm_tasks(actor_id);
CREATE INDEX IF NOT EXISTS idx_farm_tasks_status ON farm_tasks(status);
CREATE INDEX IF NOT EXISTS idx_farm_tasks_due_date ON farm_tasks(due_date);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateReport(ctx context.Context, rec model.StoredReport) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	disease, severity, hasLog, taskCount := reportColumns(rec)

	reportJSON, err := json.Marshal(rec.Report)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal report")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO disease_reports (id, actor_id, title, crop_type, disease, severity, confidence, has_image, has_log, task_count, report, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ActorID, rec.Title, rec.CropType, disease, severity,
		rec.Confidence, rec.HasImage, hasLog, taskCount, string(reportJSON), rec.CreatedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert report")
	}
	return rec.ID, nil
}

func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*model.StoredReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, actor_id, title, crop_type, confidence, has_image, report, created_at FROM disease_reports WHERE id = ?`,
		id,
	)

	var rec model.StoredReport
	var reportJSON string
	err := row.Scan(&rec.ID, &rec.ActorID, &rec.Title, &rec.CropType, &rec.Confidence, &rec.HasImage, &reportJSON, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get report %s", id)
	}

	rec.Report = &model.DiagnosisReport{}
	if err := json.Unmarshal([]byte(reportJSON), rec.Report); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal report")
	}
	return &rec, nil
}

func (s *SQLiteStore) ListReports(ctx context.Context, actorID, page, pageSize int) ([]model.ReportSummary, int, error) {
	page, pageSize = normalizePage(page, pageSize)

	where := ""
	var args []any
	if actorID > 0 {
		where = ` WHERE actor_id = ?`
		args = append(args, actorID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM disease_reports`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count reports")
	}

	query := `SELECT id, title, crop_type, disease, confidence, created_at FROM disease_reports` + where +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close()

	var summaries []model.ReportSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, 0, err
		}
		summaries = append(summaries, *sum)
	}
	return summaries, total, eris.Wrap(rows.Err(), "sqlite: list reports iterate")
}

func (s *SQLiteStore) Stats(ctx context.Context, actorID int) (*model.ReportStats, error) {
	stats := &model.ReportStats{
		CropCounts:    map[string]int{},
		DiseaseCounts: map[string]int{},
		SeverityDist:  map[string]int{},
		Recent:        []model.ReportSummary{},
	}

	where := ""
	var args []any
	if actorID > 0 {
		where = ` WHERE actor_id = ?`
		args = append(args, actorID)
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN has_image THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN task_count > 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN has_log THEN 1 ELSE 0 END), 0),
		        COALESCE(AVG(confidence), 0)
		 FROM disease_reports`+where,
		args...,
	).Scan(&stats.TotalAnalyses, &stats.WithImages, &stats.WithTasks, &stats.WithLogs, &stats.AvgConfidence)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats totals")
	}
	stats.AvgConfidence = round2(stats.AvgConfidence)

	groups := []struct {
		column string
		dest   map[string]int
	}{
		{"crop_type", stats.CropCounts},
		{"disease", stats.DiseaseCounts},
		{"severity", stats.SeverityDist},
	}
	for _, g := range groups {
		filter := ` WHERE ` + g.column + ` <> ''`
		var gargs []any
		if actorID > 0 {
			filter += ` AND actor_id = ?`
			gargs = append(gargs, actorID)
		}
		query := `SELECT ` + g.column + `, COUNT(*) FROM disease_reports` + filter +
			` GROUP BY ` + g.column + ` ORDER BY COUNT(*) DESC, ` + g.column + ` LIMIT 5`

		rows, err := s.db.QueryContext(ctx, query, gargs...)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: stats by %s", g.column)
		}
		for rows.Next() {
			var key string
			var n int
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return nil, eris.Wrapf(err, "sqlite: scan stats by %s", g.column)
			}
			g.dest[key] = n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, eris.Wrapf(err, "sqlite: stats by %s iterate", g.column)
		}
	}

	recentQuery := `SELECT id, title, crop_type, disease, confidence, created_at FROM disease_reports` + where +
		` ORDER BY created_at DESC LIMIT 5`
	rows, err := s.db.QueryContext(ctx, recentQuery, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats recent")
	}
	defer rows.Close()

	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		stats.Recent = append(stats.Recent, *sum)
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: stats recent iterate")
}

func (s *SQLiteStore) CreateLogEntry(ctx context.Context, entry model.LogEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.LogDate.IsZero() {
		entry.LogDate = now
	}

	detailsJSON, err := json.Marshal(entry.ActivityDetails)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal activity details")
	}
	recsJSON, err := json.Marshal(entry.Recommendations)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal recommendations")
	}
	imagesJSON, err := json.Marshal(entry.Images)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal images")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO daily_logs (id, actor_id, crop_ref_id, log_date, activity_type, activity_details, notes, crop_health_observation, crop_health_notes, diseases_noted, disease_spotted, ai_insights, ai_recommendations, images, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ActorID, entry.CropRefID, entry.LogDate, entry.ActivityType,
		string(detailsJSON), entry.Notes, entry.HealthObservation, entry.HealthNotes,
		entry.DiseasesNoted, entry.DiseaseSpotted, entry.Insights, string(recsJSON), string(imagesJSON), entry.CreatedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert daily log")
	}
	return entry.ID, nil
}

func (s *SQLiteStore) CreateTask(ctx context.Context, task model.Task) (string, error) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO farm_tasks (id, actor_id, crop_ref_id, task_title, task_description, priority, status, due_date, is_system_generated, ai_generated, is_recurring, recurrence_pattern, recurrence_interval, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.ActorID, task.CropRefID, task.Title, task.Description,
		string(task.Priority), string(task.Status), task.DueDate,
		task.SystemGenerated, task.AIGenerated, task.Recurring,
		task.RecurrencePattern, task.RecurrenceInterval, task.CreatedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert task")
	}
	return task.ID, nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanSummary(row scannable) (*model.ReportSummary, error) {
	var sum model.ReportSummary
	if err := row.Scan(&sum.ID, &sum.Title, &sum.CropType, &sum.Disease, &sum.Confidence, &sum.CreatedAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan report summary")
	}
	return &sum, nil
}
