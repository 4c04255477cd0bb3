package pipeline

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cropsense/farmops/internal/model"
)

// FormatReport renders a diagnosis report as markdown for terminal display.
func FormatReport(report *model.DiagnosisReport) string {
	var b strings.Builder
	titleCase := cases.Title(language.English)

	fmt.Fprintf(&b, "# Disease Analysis: %s\n", titleCase.String(report.CropType))
	fmt.Fprintf(&b, "Analysis ID: %s\n", report.AnalysisID)
	fmt.Fprintf(&b, "Timestamp: %s\n", report.Timestamp.Format("2006-01-02 15:04 UTC"))
	if report.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", report.Location)
	}
	fmt.Fprintf(&b, "Overall confidence: %.0f%%\n\n", report.OverallConfidence*100)

	b.WriteString("## Identification\n")
	fmt.Fprintf(&b, "- Disease: %s", report.Disease.Name)
	if report.Disease.ScientificName != "" {
		fmt.Fprintf(&b, " (%s)", report.Disease.ScientificName)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "- Confidence: %s (%.0f%%)\n", report.Disease.Confidence, report.Disease.ConfidenceScore*100)
	fmt.Fprintf(&b, "- Severity: %s\n", report.Disease.Severity)
	fmt.Fprintf(&b, "- Symptoms: %s\n", strings.Join(report.Disease.Symptoms, ", "))
	fmt.Fprintf(&b, "- Affected parts: %s\n\n", strings.Join(report.Disease.AffectedParts, ", "))

	b.WriteString("## Environment\n")
	fmt.Fprintf(&b, "- Soil pH: %s\n", report.Environment.SoilPH)
	fmt.Fprintf(&b, "- Moisture: %s\n", report.Environment.Moisture)
	fmt.Fprintf(&b, "- Temperature: %s\n", report.Environment.Temperature)
	fmt.Fprintf(&b, "- Humidity: %s\n", report.Environment.Humidity)
	if len(report.Environment.NutrientDeficiencies) > 0 {
		fmt.Fprintf(&b, "- Nutrient deficiencies: %s\n", strings.Join(report.Environment.NutrientDeficiencies, ", "))
	}
	if len(report.Environment.StressFactors) > 0 {
		fmt.Fprintf(&b, "- Stress factors: %s\n", strings.Join(report.Environment.StressFactors, ", "))
	}
	b.WriteString("\n")

	if report.Weather != nil {
		b.WriteString("## Weather\n")
		fmt.Fprintf(&b, "- Location: %s\n", report.Weather.Location)
		fmt.Fprintf(&b, "- Temperature: %.1f°C (%.1f-%.1f°C)\n", report.Weather.TempAvg, report.Weather.TempMin, report.Weather.TempMax)
		fmt.Fprintf(&b, "- Humidity: %.1f%%, rainfall %.1fmm, wind %.1f km/h\n\n", report.Weather.Humidity, report.Weather.Rainfall, report.Weather.Wind)
	}

	b.WriteString("## Research\n")
	fmt.Fprintf(&b, "- Causes: %s\n", strings.Join(report.Research.Causes, ", "))
	if report.Research.PathogenLifecycle != "" {
		fmt.Fprintf(&b, "- Lifecycle: %s\n", report.Research.PathogenLifecycle)
	}
	fmt.Fprintf(&b, "- Spread: %s\n", strings.Join(report.Research.SpreadMechanisms, ", "))
	if len(report.Research.HostRange) > 0 {
		fmt.Fprintf(&b, "- Host range: %s\n", strings.Join(report.Research.HostRange, ", "))
	}
	fmt.Fprintf(&b, "- Sources: %d\n\n", len(report.Research.Sources))

	b.WriteString("## Treatments\n")
	for _, t := range report.Treatments {
		fmt.Fprintf(&b, "- **%s** (%s, %.0f%% effective): %s, %s, %s\n",
			t.Name, t.Type, t.Effectiveness*100, t.Method, t.Dosage, t.Frequency)
	}
	b.WriteString("\n")

	b.WriteString("## Yield Impact\n")
	fmt.Fprintf(&b, "- Potential loss: %.1f%%\n", report.Yield.PotentialLoss)
	fmt.Fprintf(&b, "- %s\n", report.Yield.EconomicImpact)
	fmt.Fprintf(&b, "- Recovery: %s\n", report.Yield.RecoveryTimeline)
	fmt.Fprintf(&b, "- Mitigation potential: %.0f%%\n\n", report.Yield.MitigationPotential*100)

	b.WriteString("## Prevention\n")
	for _, s := range report.Prevention {
		fmt.Fprintf(&b, "- **%s** (%.0f%% effective): %s\n", s.Name, s.Effectiveness*100, s.Description)
	}
	b.WriteString("\n")

	b.WriteString("## Summary\n")
	b.WriteString(strings.TrimSpace(report.Summary))
	b.WriteString("\n\n")

	b.WriteString("## Immediate Actions\n")
	for i, action := range report.ImmediateActions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, action)
	}
	b.WriteString("\n## Long-term Recommendations\n")
	for i, rec := range report.LongTermRecommendations {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rec)
	}

	if report.IntegrationStatus != model.IntegrationPending {
		b.WriteString("\n## Farm Records\n")
		fmt.Fprintf(&b, "- Status: %s\n", report.IntegrationStatus)
		if report.LogEntryID != "" {
			fmt.Fprintf(&b, "- Daily log: %s\n", report.LogEntryID)
		}
		fmt.Fprintf(&b, "- Tasks created: %d\n", len(report.TaskIDs))
	}

	return b.String()
}
