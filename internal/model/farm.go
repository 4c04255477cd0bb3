package model

import "time"

// TaskPriority orders farm tasks for the caller's task list.
type TaskPriority string

const (
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityLow    TaskPriority = "low"
)

// TaskStatus tracks a farm task's lifecycle. The pipeline only ever creates
// pending tasks; completion happens elsewhere.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusDone      TaskStatus = "done"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// LogEntry is one farm daily-log record. The diagnosis pipeline writes one
// per analysis when integration is requested.
type LogEntry struct {
	ID                string         `json:"id"`
	ActorID           int            `json:"actor_id"`
	CropRefID         int            `json:"crop_ref_id,omitempty"`
	LogDate           time.Time      `json:"log_date"`
	ActivityType      string         `json:"activity_type"`
	ActivityDetails   map[string]any `json:"activity_details,omitempty"`
	Notes             string         `json:"notes,omitempty"`
	HealthObservation string         `json:"crop_health_observation,omitempty"`
	HealthNotes       string         `json:"crop_health_notes,omitempty"`
	DiseasesNoted     string         `json:"diseases_noted,omitempty"`
	DiseaseSpotted    bool           `json:"disease_spotted"`
	Insights          string         `json:"ai_insights,omitempty"`
	Recommendations   []string       `json:"ai_recommendations,omitempty"`
	Images            []string       `json:"images,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Task is one farm task record derived from a diagnosis report.
type Task struct {
	ID                 string       `json:"id"`
	ActorID            int          `json:"actor_id"`
	CropRefID          int          `json:"crop_ref_id,omitempty"`
	Title              string       `json:"task_title"`
	Description        string       `json:"task_description"`
	Priority           TaskPriority `json:"priority"`
	Status             TaskStatus   `json:"status"`
	DueDate            time.Time    `json:"due_date"`
	SystemGenerated    bool         `json:"is_system_generated"`
	AIGenerated        bool         `json:"ai_generated"`
	Recurring          bool         `json:"is_recurring"`
	RecurrencePattern  string       `json:"recurrence_pattern,omitempty"`
	RecurrenceInterval int          `json:"recurrence_interval,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
}

// StoredReport is a persisted diagnosis report row. HasImage is set by the
// pipeline because the report body does not carry the submitted photo.
type StoredReport struct {
	ID         string           `json:"id"`
	ActorID    int              `json:"actor_id"`
	Title      string           `json:"title"`
	CropType   string           `json:"crop_type"`
	Confidence float64          `json:"confidence"`
	HasImage   bool             `json:"has_image"`
	Report     *DiagnosisReport `json:"report"`
	CreatedAt  time.Time        `json:"created_at"`
}

// ReportSummary is the condensed listing shape for recent analyses.
type ReportSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	CropType   string    `json:"crop_type"`
	Disease    string    `json:"disease"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReportStats aggregates an actor's diagnosis history.
type ReportStats struct {
	TotalAnalyses int             `json:"total_analyses"`
	WithImages    int             `json:"analyses_with_images"`
	WithTasks     int             `json:"analyses_with_tasks"`
	WithLogs      int             `json:"analyses_with_daily_logs"`
	AvgConfidence float64         `json:"avg_confidence_score"`
	CropCounts    map[string]int  `json:"most_analyzed_crops"`
	DiseaseCounts map[string]int  `json:"most_common_diseases"`
	SeverityDist  map[string]int  `json:"severity_distribution"`
	Recent        []ReportSummary `json:"recent_analyses"`
}
