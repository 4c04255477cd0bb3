package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/cropsense/farmops/internal/config"
	"github.com/cropsense/farmops/internal/model"
	"github.com/cropsense/farmops/pkg/anthropic"
)

const summarySystemPrompt = `You are an agricultural advisor writing for a farmer. Compose an executive summary of the disease analysis plus prioritized actions, focusing on actionable insight ordered by severity and economic impact. Respond with a valid JSON object: {"executive_summary": "<2-3 paragraphs>", "immediate_actions": ["<action>"], "long_term_recommendations": ["<recommendation>"]}`

const summaryUserPrompt = `Disease: %s (confidence: %s)
Severity: %s
Potential yield loss: %.1f%%

Available treatments: %d
Prevention strategies: %d`

// ComposeSummary implements the summary stage. The overall confidence is
// always computed locally from stage outputs, never taken from the
// completion capability.
func ComposeSummary(ctx context.Context, disease *model.DiseaseCandidate, impact *model.YieldImpact, treatments []model.TreatmentOption, prevention []model.PreventionStrategy, aiClient anthropic.Client, aiCfg config.AnthropicConfig) (string, []string, []string, *anthropic.TokenUsage, error) {
	prompt := fmt.Sprintf(summaryUserPrompt,
		disease.Name,
		disease.Confidence,
		disease.Severity,
		impact.PotentialLoss,
		len(treatments),
		len(prevention),
	)

	var out struct {
		ExecutiveSummary        string   `json:"executive_summary"`
		ImmediateActions        []string `json:"immediate_actions"`
		LongTermRecommendations []string `json:"long_term_recommendations"`
	}
	usage, err := requestJSON(ctx, aiClient, anthropic.MessageRequest{
		Model:     aiCfg.Model,
		MaxTokens: aiCfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(summarySystemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	}, "summary", &out)
	if err != nil {
		summary, immediate, longTerm := FallbackSummary(disease, impact)
		return summary, immediate, longTerm, usage, err
	}
	if out.ExecutiveSummary == "" {
		summary, immediate, longTerm := FallbackSummary(disease, impact)
		return summary, immediate, longTerm, usage, eris.New("pipeline: summary synthesis returned no text")
	}

	if len(out.ImmediateActions) == 0 {
		out.ImmediateActions = []string{"Consult local agricultural extension officer"}
	}
	if len(out.LongTermRecommendations) == 0 {
		out.LongTermRecommendations = []string{"Maintain regular crop monitoring"}
	}
	return out.ExecutiveSummary, out.ImmediateActions, out.LongTermRecommendations, usage, nil
}

// FallbackSummary names the disease, confidence, and yield loss so even a
// degraded report tells the farmer what was found.
func FallbackSummary(disease *model.DiseaseCandidate, impact *model.YieldImpact) (string, []string, []string) {
	summary := fmt.Sprintf(
		"Disease analysis completed for %s with %s confidence level. Potential yield impact of %.1f%% requires immediate attention. Treatment options are available and should be implemented promptly to minimize losses.",
		disease.Name, disease.Confidence, impact.PotentialLoss,
	)
	immediate := []string{
		"Consult local agricultural extension officer",
		"Apply broad-spectrum treatment as precautionary measure",
		"Improve field sanitation practices",
	}
	longTerm := []string{
		"Implement integrated pest management practices",
		"Consider resistant varieties for future plantings",
		"Maintain regular crop monitoring",
	}
	return summary, immediate, longTerm
}

// OverallConfidence blends identification certainty with research and
// treatment coverage: 50% disease score, 30% source count out of 10, 20%
// treatment count out of 5. Rounded to two decimals.
func OverallConfidence(disease *model.DiseaseCandidate, findings *model.ResearchFindings, treatments []model.TreatmentOption) float64 {
	var diseaseScore, researchQuality float64
	if disease != nil {
		diseaseScore = disease.ConfidenceScore
	}
	if findings != nil {
		researchQuality = math.Min(float64(len(findings.Sources))/10.0, 1.0)
	}
	treatmentQuality := math.Min(float64(len(treatments))/5.0, 1.0)

	confidence := diseaseScore*0.5 + researchQuality*0.3 + treatmentQuality*0.2
	return math.Round(confidence*100) / 100
}
