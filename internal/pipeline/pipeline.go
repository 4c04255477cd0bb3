// Package pipeline implements the eight-stage crop disease diagnosis flow:
// identification, environmental correlation, literature research, treatment
// advisory, yield assessment, prevention planning, summary composition, and
// farm-record integration. Every stage degrades to a documented fallback, so
// a run always produces a usable report.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cropsense/farmops/internal/config"
	"github.com/cropsense/farmops/internal/model"
	"github.com/cropsense/farmops/internal/store"
	"github.com/cropsense/farmops/internal/weather"
	"github.com/cropsense/farmops/pkg/anthropic"
	"github.com/cropsense/farmops/pkg/exa"
)

// Pipeline wires the diagnosis stages to their capability clients.
type Pipeline struct {
	cfg     *config.Config
	store   store.Store
	ai      anthropic.Client
	search  exa.Client
	weather *weather.Synthesizer
}

// New constructs a Pipeline. The store may be nil for runs without
// persistence; report storage and farm-record integration are skipped then.
func New(cfg *config.Config, st store.Store, aiClient anthropic.Client, searchClient exa.Client, synth *weather.Synthesizer) *Pipeline {
	if synth == nil {
		synth = weather.NewSynthesizer()
	}
	return &Pipeline{
		cfg:     cfg,
		store:   st,
		ai:      aiClient,
		search:  searchClient,
		weather: synth,
	}
}

// Run executes the full diagnosis flow. It never returns an error: stage
// failures degrade to stage fallbacks, and a panic anywhere degrades to the
// whole-report fallback. The finished report is persisted best-effort.
func (p *Pipeline) Run(ctx context.Context, req *model.DiagnosisRequest) (report *model.DiagnosisReport) {
	analysisID := uuid.New().String()
	started := time.Now().UTC()
	log := zap.L().With(
		zap.String("analysis_id", analysisID),
		zap.String("crop_type", req.CropType),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline: run aborted, emitting fallback report", zap.Any("panic", r))
			report = fallbackReport(analysisID, req, fmt.Sprintf("%v", r))
			p.persist(ctx, req, report)
		}
	}()

	log.Info("pipeline: starting disease analysis",
		zap.Bool("has_image", len(req.Image) > 0),
		zap.Bool("has_symptoms", req.SymptomsText != ""),
	)

	setState := func(s model.StageState) {
		log.Debug("pipeline: state", zap.String("state", string(s)))
	}

	stageTimeout := time.Duration(p.cfg.Diagnosis.StageTimeoutSecs) * time.Second
	if stageTimeout <= 0 {
		stageTimeout = 90 * time.Second
	}

	var totalUsage anthropic.TokenUsage
	trackStage := func(name string, fn func(ctx context.Context) (*anthropic.TokenUsage, error)) {
		sctx, cancel := context.WithTimeout(ctx, stageTimeout)
		defer cancel()

		start := time.Now()
		usage, err := fn(sctx)
		if usage != nil {
			totalUsage.Add(*usage)
			usage.LogCost(p.cfg.Anthropic.Model, name)
		}
		if err != nil {
			log.Warn("pipeline: stage degraded to fallback",
				zap.String("stage", name),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.Error(err),
			)
			return
		}
		log.Info("pipeline: stage complete",
			zap.String("stage", name),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}

	setState(model.StageIdentifying)
	var disease *model.DiseaseCandidate
	trackStage("identify", func(sctx context.Context) (*anthropic.TokenUsage, error) {
		var usage *anthropic.TokenUsage
		var err error
		disease, usage, err = IdentifyDisease(sctx, req, p.ai, p.cfg.Anthropic)
		return usage, err
	})

	setState(model.StageCorrelating)
	var env *model.EnvironmentalFactors
	var snapshot *model.WeatherSnapshot
	trackStage("environment", func(sctx context.Context) (*anthropic.TokenUsage, error) {
		var usage *anthropic.TokenUsage
		var err error
		env, snapshot, usage, err = CorrelateEnvironment(sctx, req, disease.Name, p.weather, p.ai, p.cfg.Anthropic)
		return usage, err
	})

	setState(model.StageResearching)
	var findings *model.ResearchFindings
	trackStage("research", func(sctx context.Context) (*anthropic.TokenUsage, error) {
		var usage *anthropic.TokenUsage
		var err error
		findings, usage, err = ResearchDisease(sctx, disease.Name, req.CropType, p.search, p.ai, p.cfg.Anthropic, p.cfg.Diagnosis.SearchConcurrency)
		return usage, err
	})

	setState(model.StageAdvisingTreatment)
	var treatments []model.TreatmentOption
	trackStage("treatment", func(sctx context.Context) (*anthropic.TokenUsage, error) {
		var usage *anthropic.TokenUsage
		var err error
		treatments, usage, err = AdviseTreatments(sctx, disease.Name, req.CropType, disease.Severity, findings, p.search, p.ai, p.cfg.Anthropic)
		return usage, err
	})

	setState(model.StageAssessingYield)
	var impact *model.YieldImpact
	trackStage("yield", func(context.Context) (*anthropic.TokenUsage, error) {
		var err error
		impact, err = AssessYieldImpact(disease.Name, req.CropType, disease.Severity, env, len(treatments) > 0)
		return nil, err
	})

	setState(model.StagePlanningPrevention)
	var prevention []model.PreventionStrategy
	trackStage("prevention", func(sctx context.Context) (*anthropic.TokenUsage, error) {
		var usage *anthropic.TokenUsage
		var err error
		prevention, usage, err = PlanPrevention(sctx, disease, env, findings, p.ai, p.cfg.Anthropic)
		return usage, err
	})

	setState(model.StageComposingSummary)
	var summary string
	var immediate, longTerm []string
	trackStage("summary", func(sctx context.Context) (*anthropic.TokenUsage, error) {
		var usage *anthropic.TokenUsage
		var err error
		summary, immediate, longTerm, usage, err = ComposeSummary(sctx, disease, impact, treatments, prevention, p.ai, p.cfg.Anthropic)
		return usage, err
	})

	report = &model.DiagnosisReport{
		AnalysisID:              analysisID,
		Timestamp:               started,
		CropType:                req.CropType,
		Location:                req.Location,
		CropRefID:               req.CropRefID,
		Disease:                 *disease,
		Environment:             *env,
		Weather:                 snapshot,
		Research:                *findings,
		Treatments:              treatments,
		Prevention:              prevention,
		Yield:                   *impact,
		Summary:                 summary,
		ImmediateActions:        immediate,
		LongTermRecommendations: longTerm,
		OverallConfidence:       OverallConfidence(disease, findings, treatments),
		TaskIDs:                 []string{},
		IntegrationStatus:       model.IntegrationPending,
	}

	setState(model.StageIntegrating)
	if req.CreateRecords && req.ActorID > 0 && req.CropRefID > 0 {
		if p.store == nil {
			log.Warn("pipeline: integration requested without a store")
		} else {
			WriteFarmRecords(ctx, p.store, req, report)
		}
	}

	setState(model.StageDone)
	p.persist(ctx, req, report)

	log.Info("pipeline: disease analysis complete",
		zap.String("disease", report.Disease.Name),
		zap.Float64("confidence", report.OverallConfidence),
		zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		zap.Int64("input_tokens", totalUsage.InputTokens),
		zap.Int64("output_tokens", totalUsage.OutputTokens),
	)
	return report
}

// persist stores the finished report. Failures are logged, never propagated:
// the caller still gets the report.
func (p *Pipeline) persist(ctx context.Context, req *model.DiagnosisRequest, report *model.DiagnosisReport) {
	if p.store == nil {
		return
	}
	rec := model.StoredReport{
		ActorID:    req.ActorID,
		Title:      reportTitle(req),
		CropType:   req.CropType,
		Confidence: report.OverallConfidence,
		HasImage:   len(req.Image) > 0,
		Report:     report,
	}
	if _, err := p.store.CreateReport(ctx, rec); err != nil {
		zap.L().Warn("pipeline: report persist failed",
			zap.String("analysis_id", report.AnalysisID),
			zap.Error(err),
		)
	}
}

// reportTitle builds the stored listing title, e.g. "Disease Analysis -
// Tomato" or "Disease Analysis with Image - Tomato".
func reportTitle(req *model.DiagnosisRequest) string {
	crop := cases.Title(language.English).String(req.CropType)
	if len(req.Image) > 0 {
		return "Disease Analysis with Image - " + crop
	}
	return "Disease Analysis - " + crop
}

// fallbackReport is the whole-report fallback produced when Run panics. It
// still names the crop and points the farmer at expert help.
func fallbackReport(analysisID string, req *model.DiagnosisRequest, detail string) *model.DiagnosisReport {
	return &model.DiagnosisReport{
		AnalysisID: analysisID,
		Timestamp:  time.Now().UTC(),
		CropType:   req.CropType,
		Location:   req.Location,
		CropRefID:  req.CropRefID,
		Disease: model.DiseaseCandidate{
			Name:            "Unknown Disease",
			Confidence:      model.ConfidenceUncertain,
			ConfidenceScore: 0.1,
			Symptoms:        []string{"analysis failed"},
			AffectedParts:   []string{"unknown"},
			Severity:        model.SeverityMild,
		},
		Environment: model.EnvironmentalFactors{
			NutrientDeficiencies: []string{},
			StressFactors:        []string{},
		},
		Research: model.ResearchFindings{
			Causes:             []string{"analysis incomplete"},
			SpreadMechanisms:   []string{"unknown"},
			HostRange:          []string{},
			Sources:            []string{},
			RecentDevelopments: []string{},
		},
		Treatments: []model.TreatmentOption{
			{
				Name:              "Consult Expert",
				Type:              model.TreatmentCultural,
				ActiveIngredients: []string{"professional consultation"},
				Method:            "Contact agricultural extension",
				Dosage:            "As recommended by expert",
				Frequency:         "As needed",
				Timing:            "Immediately",
				CostEstimate:      "Consultation fees",
				Availability:      "Local agricultural office",
				Effectiveness:     0.5,
				SideEffects:       []string{},
			},
		},
		Prevention: []model.PreventionStrategy{
			{
				Name:          "General Best Practices",
				Description:   "Follow general agricultural best practices",
				Steps:         []string{"Maintain field hygiene", "Monitor crops regularly"},
				Timing:        "Continuous",
				Cost:          "Variable",
				Effectiveness: 0.5,
			},
		},
		Yield: model.YieldImpact{
			PotentialLoss:       20.0,
			EconomicImpact:      "Impact assessment unavailable due to analysis failure",
			QualityImpact:       "Quality impact unknown",
			RecoveryTimeline:    "Consult expert for timeline",
			MitigationPotential: 0.5,
		},
		Summary: fmt.Sprintf("Analysis failed due to technical issues: %s. Please consult local agricultural experts for proper diagnosis and treatment recommendations.", detail),
		ImmediateActions: []string{
			"Contact local agricultural extension officer",
			"Implement basic sanitation measures",
		},
		LongTermRecommendations: []string{
			"Establish regular monitoring protocols",
			"Consider professional consultation",
		},
		OverallConfidence: 0.1,
		TaskIDs:           []string{},
		IntegrationStatus: model.IntegrationPending,
	}
}
