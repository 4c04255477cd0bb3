package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/cropsense/farmops/internal/db"
	"github.com/cropsense/farmops/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_report": `INSERT INTO disease_reports (id, actor_id, title, crop_type, disease, severity, confidence, has_image, has_log, task_count, report, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
	"get_report":    `SELECT id, actor_id, title, crop_type, confidence, has_image, report, created_at FROM disease_reports WHERE id = $1`,
	"insert_log":    `INSERT INTO daily_logs (id, actor_id, crop_ref_id, log_date, activity_type, activity_details, notes, crop_health_observation, crop_health_notes, diseases_noted, disease_spotted, ai_insights, ai_recommendations, images, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
	"insert_task":   `INSERT INTO farm_tasks (id, actor_id, crop_ref_id, task_title, task_description, priority, status, due_date, is_system_generated, ai_generated, is_recurring, recurrence_pattern, recurrence_interval, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS disease_reports (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	actor_id   INTEGER NOT NULL DEFAULT 0,
	title      TEXT NOT NULL,
	crop_type  TEXT NOT NULL,
	disease    TEXT NOT NULL DEFAULT '',
	severity   TEXT NOT NULL DEFAULT '',
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	has_image  BOOLEAN NOT NULL DEFAULT false,
	has_log    BOOLEAN NOT NULL DEFAULT false,
	task_count INTEGER NOT NULL DEFAULT 0,
	report     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_disease_reports_actor_id ON disease_reports(actor_id);
CREATE INDEX IF NOT EXISTS idx_disease_reports_created_at ON disease_reports(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_disease_reports_crop_type ON disease_reports(crop_type);

CREATE TABLE IF NOT EXISTS daily_logs (
	id                      TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	actor_id                INTEGER NOT NULL DEFAULT 0,
	crop_ref_id             INTEGER NOT NULL DEFAULT 0,
	log_date                TIMESTAMPTZ NOT NULL,
	activity_type           TEXT NOT NULL,
	activity_details        JSONB,
	notes                   TEXT NOT NULL DEFAULT '',
	crop_health_observation TEXT NOT NULL DEFAULT '',
	crop_health_notes       TEXT NOT NULL DEFAULT '',
	diseases_noted          TEXT NOT NULL DEFAULT '',
	disease_spotted         BOOLEAN NOT NULL DEFAULT false,
	ai_insights             TEXT NOT NULL DEFAULT '',
	ai_recommendations      JSONB,
	images                  JSONB,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_daily_logs_actor_id ON daily_logs(actor_id);
CREATE INDEX IF NOT EXISTS idx_daily_logs_log_date ON daily_logs(log_date);

CREATE TABLE IF NOT EXISTS farm_tasks (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	actor_id            INTEGER NOT NULL DEFAULT 0,
	crop_ref_id         INTEGER NOT NULL DEFAULT 0,
	task_title          TEXT NOT NULL,
	task_description    TEXT NOT NULL DEFAULT '',
	priority            TEXT NOT NULL DEFAULT 'medium',
	status              TEXT NOT NULL DEFAULT 'pending',
	due_date            TIMESTAMPTZ NOT NULL,
	is_system_generated BOOLEAN NOT NULL DEFAULT true,
	ai_generated        BOOLEAN NOT NULL DEFAULT true,
	is_recurring        BOOLEAN NOT NULL DEFAULT false,
	recurrence_pattern  TEXT NOT NULL DEFAULT '',
	recurrence_interval INTEGER NOT NULL DEFAULT 0,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_farm_tasks_actor_id ON farm_tasks(actor_id);
CREATE INDEX IF NOT EXISTS idx_farm_tasks_status ON farm_tasks(status);
CREATE INDEX IF NOT EXISTS idx_farm_tasks_due_date ON farm_tasks(due_date);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateReport(ctx context.Context, rec model.StoredReport) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	disease, severity, hasLog, taskCount := reportColumns(rec)

	reportJSON, err := json.Marshal(rec.Report)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal report")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO disease_reports (id, actor_id, title, crop_type, disease, severity, confidence, has_image, has_log, task_count, report, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.ActorID, rec.Title, rec.CropType, disease, severity,
		rec.Confidence, rec.HasImage, hasLog, taskCount, reportJSON, rec.CreatedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert report")
	}
	return rec.ID, nil
}

func (s *PostgresStore) GetReport(ctx context.Context, id string) (*model.StoredReport, error) {
	var rec model.StoredReport
	var reportJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, actor_id, title, crop_type, confidence, has_image, report, created_at FROM disease_reports WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.ActorID, &rec.Title, &rec.CropType, &rec.Confidence, &rec.HasImage, &reportJSON, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get report %s", id)
	}

	rec.Report = &model.DiagnosisReport{}
	if err := json.Unmarshal(reportJSON, rec.Report); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal report")
	}
	return &rec, nil
}

func (s *PostgresStore) ListReports(ctx context.Context, actorID, page, pageSize int) ([]model.ReportSummary, int, error) {
	page, pageSize = normalizePage(page, pageSize)

	where := ""
	args := []any{}
	argIdx := 1
	if actorID > 0 {
		where = fmt.Sprintf(` WHERE actor_id = $%d`, argIdx)
		args = append(args, actorID)
		argIdx++
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM disease_reports`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count reports")
	}

	query := fmt.Sprintf(
		`SELECT id, title, crop_type, disease, confidence, created_at FROM disease_reports%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1,
	)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var summaries []model.ReportSummary
	for rows.Next() {
		var sum model.ReportSummary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.CropType, &sum.Disease, &sum.Confidence, &sum.CreatedAt); err != nil {
			return nil, 0, eris.Wrap(err, "postgres: scan report summary")
		}
		summaries = append(summaries, sum)
	}
	return summaries, total, eris.Wrap(rows.Err(), "postgres: list reports iterate")
}

func (s *PostgresStore) Stats(ctx context.Context, actorID int) (*model.ReportStats, error) {
	stats := &model.ReportStats{
		CropCounts:    map[string]int{},
		DiseaseCounts: map[string]int{},
		SeverityDist:  map[string]int{},
		Recent:        []model.ReportSummary{},
	}

	where := ""
	args := []any{}
	if actorID > 0 {
		where = ` WHERE actor_id = $1`
		args = append(args, actorID)
	}

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE has_image),
		        COUNT(*) FILTER (WHERE task_count > 0),
		        COUNT(*) FILTER (WHERE has_log),
		        COALESCE(AVG(confidence), 0)
		 FROM disease_reports`+where,
		args...,
	).Scan(&stats.TotalAnalyses, &stats.WithImages, &stats.WithTasks, &stats.WithLogs, &stats.AvgConfidence)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats totals")
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
		gargs := []any{}
		if actorID > 0 {
			filter += ` AND actor_id = $1`
			gargs = append(gargs, actorID)
		}
		query := `SELECT ` + g.column + `, COUNT(*) FROM disease_reports` + filter +
			` GROUP BY ` + g.column + ` ORDER BY COUNT(*) DESC, ` + g.column + ` LIMIT 5`

		rows, err := s.pool.Query(ctx, query, gargs...)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: stats by %s", g.column)
		}
		for rows.Next() {
			var key string
			var n int
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return nil, eris.Wrapf(err, "postgres: scan stats by %s", g.column)
			}
			g.dest[key] = n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, eris.Wrapf(err, "postgres: stats by %s iterate", g.column)
		}
	}

	recentQuery := `SELECT id, title, crop_type, disease, confidence, created_at FROM disease_reports` + where +
		` ORDER BY created_at DESC LIMIT 5`
	rows, err := s.pool.Query(ctx, recentQuery, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats recent")
	}
	defer rows.Close()

	for rows.Next() {
		var sum model.ReportSummary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.CropType, &sum.Disease, &sum.Confidence, &sum.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stats recent")
		}
		stats.Recent = append(stats.Recent, sum)
	}
	return stats, eris.Wrap(rows.Err(), "postgres: stats recent iterate")
}

func (s *PostgresStore) CreateLogEntry(ctx context.Context, entry model.LogEntry) (string, error) {
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
		return "", eris.Wrap(err, "postgres: marshal activity details")
	}
	recsJSON, err := json.Marshal(entry.Recommendations)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal recommendations")
	}
	imagesJSON, err := json.Marshal(entry.Images)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal images")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO daily_logs (id, actor_id, crop_ref_id, log_date, activity_type, activity_details, notes, crop_health_observation, crop_health_notes, diseases_noted, disease_spotted, ai_insights, ai_recommendations, images, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		entry.ID, entry.ActorID, entry.CropRefID, entry.LogDate, entry.ActivityType,
		detailsJSON, entry.Notes, entry.HealthObservation, entry.HealthNotes,
		entry.DiseasesNoted, entry.DiseaseSpotted, entry.Insights, recsJSON, imagesJSON, entry.CreatedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert daily log")
	}
	return entry.ID, nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, task model.Task) (string, error) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO farm_tasks (id, actor_id, crop_ref_id, task_title, task_description, priority, status, due_date, is_system_generated, ai_generated, is_recurring, recurrence_pattern, recurrence_interval, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		task.ID, task.ActorID, task.CropRefID, task.Title, task.Description,
		string(task.Priority), string(task.Status), task.DueDate,
		task.SystemGenerated, task.AIGenerated, task.Recurring,
		task.RecurrencePattern, task.RecurrenceInterval, task.CreatedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert task")
	}
	return task.ID, nil
}
