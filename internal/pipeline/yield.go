package pipeline

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/cropsense/farmops/internal/model"
)

// baseYieldLoss holds pre-modifier loss percentages by severity.
var baseYieldLoss = map[model.Severity]float64{
	model.SeverityMild:     5.0,
	model.SeverityModerate: 15.0,
	model.SeveritySevere:   35.0,
	model.SeverityCritical: 60.0,
}

const defaultBaseYieldLoss = 20.0

// fallbackYieldLoss holds the more conservative loss percentages used when
// the assessment cannot run.
var fallbackYieldLoss = map[model.Severity]float64{
	model.SeverityMild:     10.0,
	model.SeverityModerate: 20.0,
	model.SeveritySevere:   40.0,
	model.SeverityCritical: 65.0,
}

const defaultFallbackYieldLoss = 25.0

// AssessYieldImpact implements the yield stage. The computation is fully
// deterministic: base loss by severity, multiplied by 1.2 when more than two
// stress factors are present and by 1.1 when more than one nutrient
// deficiency is, capped at 80% and rounded to one decimal. A missing factor
// set degrades to the severity-keyed fallback.
func AssessYieldImpact(diseaseName, cropType string, severity model.Severity, env *model.EnvironmentalFactors, treatmentAvailable bool) (*model.YieldImpact, error) {
	if env == nil {
		return FallbackYieldImpact(severity), eris.Errorf("pipeline: yield assessment for %s missing environmental factors", diseaseName)
	}

	loss, ok := baseYieldLoss[severity]
	if !ok {
		loss = defaultBaseYieldLoss
	}
	if len(env.StressFactors) > 2 {
		loss *= 1.2
	}
	if len(env.NutrientDeficiencies) > 1 {
		loss *= 1.1
	}
	loss = model.ClampYieldLoss(loss)
	loss = math.Round(loss*10) / 10

	mitigation := 0.3
	if treatmentAvailable {
		mitigation = 0.7
	}

	return &model.YieldImpact{
		PotentialLoss:       loss,
		EconomicImpact:      economicImpact(loss, cropType),
		QualityImpact:       qualityImpact(severity),
		MarketImpact:        marketImpact(loss),
		RecoveryTimeline:    recoveryTimeline(severity, treatmentAvailable),
		MitigationPotential: mitigation,
	}, nil
}

func economicImpact(loss float64, cropType string) string {
	switch {
	case loss < 10:
		return fmt.Sprintf("Minor economic impact expected. %s production should remain profitable with minimal intervention.", cropType)
	case loss < 25:
		return "Moderate economic impact. Treatment costs may be offset by yield preservation. Consider immediate intervention."
	case loss < 50:
		return "Significant economic impact. Immediate treatment essential to prevent major losses. May affect seasonal profitability."
	default:
		return "Severe economic impact. Crop may become unprofitable without immediate intensive treatment. Consider crop insurance claims."
	}
}

func qualityImpact(severity model.Severity) string {
	switch severity {
	case model.SeverityMild:
		return "Minimal impact on crop quality. Marketable produce expected."
	case model.SeverityModerate:
		return "Some reduction in crop quality. May affect premium pricing."
	case model.SeveritySevere:
		return "Significant quality degradation. Reduced market value expected."
	case model.SeverityCritical:
		return "Severe quality loss. Crop may be unsuitable for premium markets."
	default:
		return "Quality impact assessment unavailable."
	}
}

func marketImpact(loss float64) string {
	switch {
	case loss < 15:
		return "Minimal impact on market value. Normal pricing expected."
	case loss < 35:
		return "Moderate impact on market value. 10-20% price reduction possible."
	default:
		return "Significant impact on market value. 25-40% price reduction likely."
	}
}

func recoveryTimeline(severity model.Severity, treatmentAvailable bool) string {
	var timeline string
	switch severity {
	case model.SeverityMild:
		timeline = "1-2 weeks with treatment"
	case model.SeverityModerate:
		timeline = "3-4 weeks with treatment"
	case model.SeveritySevere:
		timeline = "6-8 weeks with intensive treatment"
	case model.SeverityCritical:
		timeline = "Full season may be lost, focus on next season"
	default:
		timeline = "Timeline uncertain"
	}
	if !treatmentAvailable {
		timeline += " (extended without proper treatment)"
	}
	return timeline
}

// FallbackYieldImpact is the assessment used when the stage cannot run.
func FallbackYieldImpact(severity model.Severity) *model.YieldImpact {
	loss, ok := fallbackYieldLoss[severity]
	if !ok {
		loss = defaultFallbackYieldLoss
	}
	return &model.YieldImpact{
		PotentialLoss:       loss,
		EconomicImpact:      "Economic impact analysis unavailable",
		QualityImpact:       "Quality impact assessment unavailable",
		RecoveryTimeline:    "Recovery timeline uncertain",
		MitigationPotential: 0.5,
	}
}
