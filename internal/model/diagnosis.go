package model

import (
	"strings"
	"time"
)

// Confidence grades how certain the identification is.
type Confidence string

const (
	ConfidenceHigh      Confidence = "high"
	ConfidenceMedium    Confidence = "medium"
	ConfidenceLow       Confidence = "low"
	ConfidenceUncertain Confidence = "uncertain"
)

// Severity grades how advanced the disease is.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityCritical Severity = "critical"
)

// TreatmentType categorizes a treatment option.
type TreatmentType string

const (
	TreatmentChemical   TreatmentType = "chemical"
	TreatmentBiological TreatmentType = "biological"
	TreatmentCultural   TreatmentType = "cultural"
	TreatmentIntegrated TreatmentType = "integrated"
)

// IntegrationStatus describes how much of the best-effort log/task write
// batch succeeded.
type IntegrationStatus string

const (
	IntegrationPending   IntegrationStatus = "pending"
	IntegrationCompleted IntegrationStatus = "completed"
	IntegrationPartial   IntegrationStatus = "partial"
	IntegrationFailed    IntegrationStatus = "failed"
)

// StageState tracks the diagnosis pipeline state machine.
type StageState string

const (
	StageIdentifying        StageState = "identifying"
	StageCorrelating        StageState = "correlating"
	StageResearching        StageState = "researching"
	StageAdvisingTreatment  StageState = "advising_treatment"
	StageAssessingYield     StageState = "assessing_yield"
	StagePlanningPrevention StageState = "planning_prevention"
	StageComposingSummary   StageState = "composing_summary"
	StageIntegrating        StageState = "integrating"
	StageDone               StageState = "done"
	StageFailedFallback     StageState = "failed_fallback"
)

// NormalizeConfidence maps free-form capability output onto a known
// confidence grade, defaulting to uncertain.
func NormalizeConfidence(s string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMedium:
		return ConfidenceMedium
	case ConfidenceLow:
		return ConfidenceLow
	default:
		return ConfidenceUncertain
	}
}

// NormalizeSeverity maps free-form capability output onto a known severity,
// defaulting to mild.
func NormalizeSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityModerate:
		return SeverityModerate
	case SeveritySevere:
		return SeveritySevere
	case SeverityCritical:
		return SeverityCritical
	default:
		return SeverityMild
	}
}

// NormalizeTreatmentType maps free-form capability output onto a known
// treatment type, defaulting to cultural.
func NormalizeTreatmentType(s string) TreatmentType {
	switch TreatmentType(strings.ToLower(strings.TrimSpace(s))) {
	case TreatmentChemical:
		return TreatmentChemical
	case TreatmentBiological:
		return TreatmentBiological
	case TreatmentIntegrated:
		return TreatmentIntegrated
	default:
		return TreatmentCultural
	}
}

// ClampScore forces a confidence/effectiveness/mitigation score into [0,1].
func ClampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClampYieldLoss forces a yield-loss percentage into [0,80].
func ClampYieldLoss(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 80 {
		return 80
	}
	return v
}

// DiagnosisRequest is the input to one pipeline run. CropType is required;
// everything else is optional. Missing symptoms and image degrade confidence
// rather than failing the run.
type DiagnosisRequest struct {
	CropType      string            `json:"crop_type"`
	SymptomsText  string            `json:"symptoms_text,omitempty"`
	Image         []byte            `json:"image,omitempty"`
	Location      string            `json:"location,omitempty"`
	SoilData      map[string]any    `json:"soil_data,omitempty"`
	Weather       *WeatherSnapshot  `json:"weather_data,omitempty"`
	ActorID       int               `json:"actor_id,omitempty"`
	CropRefID     int               `json:"crop_ref_id,omitempty"`
	CreateRecords bool              `json:"create_integration_records,omitempty"`
}

// DiseaseCandidate is the identification stage output.
type DiseaseCandidate struct {
	Name            string     `json:"disease_name"`
	ScientificName  string     `json:"scientific_name,omitempty"`
	Confidence      Confidence `json:"confidence"`
	ConfidenceScore float64    `json:"confidence_score"`
	Symptoms        []string   `json:"symptoms_observed"`
	AffectedParts   []string   `json:"affected_plant_parts"`
	Severity        Severity   `json:"severity"`
}

// EnvironmentalFactors correlates environment with disease development.
// Lists are always non-nil; empty means nothing was found, not unknown.
type EnvironmentalFactors struct {
	SoilPH               string   `json:"soil_ph_impact,omitempty"`
	Moisture             string   `json:"moisture_conditions,omitempty"`
	Temperature          string   `json:"temperature_range,omitempty"`
	Humidity             string   `json:"humidity_impact,omitempty"`
	NutrientDeficiencies []string `json:"nutrient_deficiencies"`
	StressFactors        []string `json:"environmental_stress_factors"`
}

// WeatherSnapshot holds observed or synthesized weather for a location.
// All values are rounded to one decimal.
type WeatherSnapshot struct {
	Location string  `json:"location"`
	TempAvg  float64 `json:"temperature_avg"`
	TempMin  float64 `json:"temperature_min"`
	TempMax  float64 `json:"temperature_max"`
	Humidity float64 `json:"humidity"`
	Rainfall float64 `json:"rainfall"`
	Wind     float64 `json:"wind_speed"`
	Pressure float64 `json:"pressure"`
}

// ResearchFindings is the literature stage output. Sources hold at most 10
// URLs.
type ResearchFindings struct {
	Causes             []string `json:"disease_causes"`
	PathogenLifecycle  string   `json:"pathogen_lifecycle,omitempty"`
	SpreadMechanisms   []string `json:"spread_mechanisms"`
	HostRange          []string `json:"host_range"`
	Sources            []string `json:"research_sources"`
	RecentDevelopments []string `json:"recent_developments"`
}

// TreatmentOption is one ranked treatment recommendation. Effectiveness is
// already discounted by severity when it appears in a report.
type TreatmentOption struct {
	Name              string        `json:"treatment_name"`
	Type              TreatmentType `json:"treatment_type"`
	ActiveIngredients []string      `json:"active_ingredients"`
	Method            string        `json:"application_method"`
	Dosage            string        `json:"dosage"`
	Frequency         string        `json:"frequency"`
	Timing            string        `json:"timing"`
	CostEstimate      string        `json:"cost_estimate,omitempty"`
	Availability      string        `json:"availability"`
	Effectiveness     float64       `json:"effectiveness"`
	SideEffects       []string      `json:"side_effects"`
}

// PreventionStrategy is one ranked prevention recommendation.
type PreventionStrategy struct {
	Name          string   `json:"strategy_name"`
	Description   string   `json:"description"`
	Steps         []string `json:"implementation_steps"`
	Timing        string   `json:"timing"`
	Cost          string   `json:"cost,omitempty"`
	Effectiveness float64  `json:"effectiveness"`
}

// YieldImpact is the yield assessment stage output.
type YieldImpact struct {
	PotentialLoss       float64 `json:"potential_yield_loss"`
	EconomicImpact      string  `json:"economic_impact"`
	QualityImpact       string  `json:"quality_impact"`
	MarketImpact        string  `json:"market_value_impact,omitempty"`
	RecoveryTimeline    string  `json:"recovery_timeline"`
	MitigationPotential float64 `json:"mitigation_potential"`
}

// DiagnosisReport is the aggregate result of one pipeline run. It is
// immutable after Run returns except for the three integration fields,
// which the integration writer owns.
type DiagnosisReport struct {
	AnalysisID string    `json:"analysis_id"`
	Timestamp  time.Time `json:"timestamp"`

	CropType  string `json:"crop_type"`
	Location  string `json:"location,omitempty"`
	CropRefID int    `json:"crop_ref_id,omitempty"`

	Disease     DiseaseCandidate     `json:"disease_identification"`
	Environment EnvironmentalFactors `json:"environmental_analysis"`
	Weather     *WeatherSnapshot     `json:"weather_correlation,omitempty"`
	Research    ResearchFindings     `json:"research_findings"`
	Treatments  []TreatmentOption    `json:"treatment_options"`
	Prevention  []PreventionStrategy `json:"prevention_strategies"`
	Yield       YieldImpact          `json:"yield_impact"`

	Summary                 string   `json:"executive_summary"`
	ImmediateActions        []string `json:"immediate_actions"`
	LongTermRecommendations []string `json:"long_term_recommendations"`
	OverallConfidence       float64  `json:"confidence_overall"`

	LogEntryID        string            `json:"daily_log_id,omitempty"`
	TaskIDs           []string          `json:"task_ids"`
	IntegrationStatus IntegrationStatus `json:"integration_status"`
}

// AnalysisResponse is the envelope returned to callers. The pipeline has no
// error status: a degraded report with low confidence is still a success.
type AnalysisResponse struct {
	Status     string           `json:"status"`
	AnalysisID string           `json:"analysis_id"`
	Report     *DiagnosisReport `json:"report"`
}

// NewAnalysisResponse wraps a finished report in the success envelope.
func NewAnalysisResponse(report *DiagnosisReport) AnalysisResponse {
	return AnalysisResponse{
		Status:     "success",
		AnalysisID: report.AnalysisID,
		Report:     report,
	}
}
