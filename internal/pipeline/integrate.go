package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cropsense/farmops/internal/model"
	"github.com/cropsense/farmops/internal/store"
)

// Task fan-out caps: at most 5 immediate-action, 3 treatment, and 3
// prevention tasks plus the single monitoring task.
const (
	maxImmediateActionTasks = 5
	maxTreatmentTasks       = 3
	maxPreventionTasks      = 3
)

// WriteFarmRecords implements the integration stage: one daily-log entry and
// a batch of derived tasks, each written independently so a single failure
// never blocks the rest. The report's three integration fields are the only
// thing mutated.
func WriteFarmRecords(ctx context.Context, st store.Store, req *model.DiagnosisRequest, report *model.DiagnosisReport) {
	log := zap.L().With(zap.String("analysis_id", report.AnalysisID))

	logID, err := writeDailyLog(ctx, st, req, report)
	if err != nil {
		log.Warn("integration: daily log write failed", zap.Error(err))
	} else {
		report.LogEntryID = logID
	}

	report.TaskIDs = writeTasks(ctx, st, req, report)

	switch {
	case report.LogEntryID != "" && len(report.TaskIDs) > 0:
		report.IntegrationStatus = model.IntegrationCompleted
	case report.LogEntryID != "" || len(report.TaskIDs) > 0:
		report.IntegrationStatus = model.IntegrationPartial
	default:
		report.IntegrationStatus = model.IntegrationFailed
	}

	log.Info("integration: farm records written",
		zap.String("status", string(report.IntegrationStatus)),
		zap.String("daily_log_id", report.LogEntryID),
		zap.Int("task_count", len(report.TaskIDs)),
	)
}

func writeDailyLog(ctx context.Context, st store.Store, req *model.DiagnosisRequest, report *model.DiagnosisReport) (string, error) {
	recommendations := make([]string, 0, len(report.ImmediateActions)+len(report.LongTermRecommendations))
	recommendations = append(recommendations, report.ImmediateActions...)
	recommendations = append(recommendations, report.LongTermRecommendations...)

	var images []string
	if len(req.Image) > 0 {
		images = []string{fmt.Sprintf("disease_analysis_%s.jpg", report.AnalysisID)}
	}

	entry := model.LogEntry{
		ActorID:      req.ActorID,
		CropRefID:    req.CropRefID,
		LogDate:      time.Now().UTC(),
		ActivityType: "disease_analysis",
		ActivityDetails: map[string]any{
			"analysis_id":             report.AnalysisID,
			"disease_identified":      report.Disease.Name,
			"confidence":              string(report.Disease.Confidence),
			"severity":                string(report.Disease.Severity),
			"treatment_options_count": len(report.Treatments),
			"yield_impact":            report.Yield.PotentialLoss,
		},
		Notes: fmt.Sprintf("Disease analysis conducted: %s. Confidence: %s. Potential yield loss: %.1f%%.",
			report.Disease.Name, report.Disease.Confidence, report.Yield.PotentialLoss),
		HealthObservation: string(report.Disease.Severity),
		HealthNotes:       "Symptoms: " + strings.Join(report.Disease.Symptoms, ", "),
		DiseasesNoted:     report.Disease.Name,
		DiseaseSpotted:    true,
		Insights:          report.Summary,
		Recommendations:   recommendations,
		Images:            images,
	}
	return st.CreateLogEntry(ctx, entry)
}

func writeTasks(ctx context.Context, st store.Store, req *model.DiagnosisRequest, report *model.DiagnosisReport) []string {
	now := time.Now().UTC()
	created := []string{}

	add := func(task model.Task) {
		task.ActorID = req.ActorID
		task.CropRefID = req.CropRefID
		task.Status = model.TaskStatusPending
		task.SystemGenerated = true
		task.AIGenerated = true
		id, err := st.CreateTask(ctx, task)
		if err != nil {
			zap.L().Warn("integration: task write failed",
				zap.String("title", task.Title),
				zap.Error(err),
			)
			return
		}
		created = append(created, id)
	}

	for i, action := range report.ImmediateActions {
		if i == maxImmediateActionTasks {
			break
		}
		add(model.Task{
			Title:       fmt.Sprintf("Immediate Action %d: %s", i+1, truncate(action, 50)),
			Description: action,
			Priority:    model.TaskPriorityHigh,
			DueDate:     now.AddDate(0, 0, 1),
		})
	}

	for i, treatment := range report.Treatments {
		if i == maxTreatmentTasks {
			break
		}
		priority := model.TaskPriorityMedium
		if treatment.Effectiveness > 0.7 {
			priority = model.TaskPriorityHigh
		}
		add(model.Task{
			Title: "Apply " + treatment.Name,
			Description: fmt.Sprintf("Treatment: %s\nMethod: %s\nDosage: %s\nFrequency: %s\nTiming: %s\nCost: %s\nWhere to get: %s",
				treatment.Name, treatment.Method, treatment.Dosage, treatment.Frequency,
				treatment.Timing, treatment.CostEstimate, treatment.Availability),
			Priority: priority,
			DueDate:  now.AddDate(0, 0, 2),
		})
	}

	for i, strategy := range report.Prevention {
		if i == maxPreventionTasks {
			break
		}
		add(model.Task{
			Title: "Implement " + strategy.Name,
			Description: fmt.Sprintf("Prevention Strategy: %s\nDescription: %s\nSteps: %s\nTiming: %s\nCost: %s",
				strategy.Name, strategy.Description, strings.Join(strategy.Steps, "; "),
				strategy.Timing, strategy.Cost),
			Priority: model.TaskPriorityMedium,
			DueDate:  now.AddDate(0, 0, 7),
		})
	}

	add(model.Task{
		Title: "Monitor Disease Progress",
		Description: fmt.Sprintf("Monitor the progress of %s treatment.\nCheck for improvement in symptoms: %s\nExpected recovery timeline: %s\nTake photos and update daily logs.",
			report.Disease.Name, strings.Join(report.Disease.Symptoms, ", "), report.Yield.RecoveryTimeline),
		Priority:           model.TaskPriorityMedium,
		DueDate:            now.AddDate(0, 0, 3),
		Recurring:          true,
		RecurrencePattern:  "weekly",
		RecurrenceInterval: 1,
	})

	return created
}

// truncate shortens s to max bytes with an ellipsis marker.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
