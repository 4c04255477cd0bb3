package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/cropsense/farmops/internal/config"
	"github.com/cropsense/farmops/internal/model"
	"github.com/cropsense/farmops/pkg/anthropic"
)

const preventionSystemPrompt = `You are an agricultural extension specialist. Generate 3-5 prevention strategies for the named crop disease covering cultural practices, sanitation, resistant varieties, environmental management, and monitoring. Respond with a valid JSON object: {"strategies": [{"strategy_name": "<name>", "description": "<description>", "implementation_steps": ["<step>"], "timing": "<when to implement>", "cost": "<cost>", "effectiveness": <0.0-1.0>}]}`

const preventionUserPrompt = `Disease: %s
Severity: %s
Affected parts: %s

Environmental factors:
- Soil pH impact: %s
- Moisture conditions: %s
- Stress factors: %s

Research findings:
- Spread mechanisms: %s
- Disease causes: %s`

const maxPreventionStrategies = 5

// PlanPrevention implements the prevention stage: one completion call turns
// the identification, environmental, and research outputs into 3-5 ranked
// strategies.
func PlanPrevention(ctx context.Context, disease *model.DiseaseCandidate, env *model.EnvironmentalFactors, findings *model.ResearchFindings, aiClient anthropic.Client, aiCfg config.AnthropicConfig) ([]model.PreventionStrategy, *anthropic.TokenUsage, error) {
	prompt := fmt.Sprintf(preventionUserPrompt,
		disease.Name,
		disease.Severity,
		strings.Join(disease.AffectedParts, ", "),
		env.SoilPH,
		env.Moisture,
		strings.Join(env.StressFactors, ", "),
		strings.Join(findings.SpreadMechanisms, ", "),
		strings.Join(findings.Causes, ", "),
	)

	var out struct {
		Strategies []struct {
			Name          string   `json:"strategy_name"`
			Description   string   `json:"description"`
			Steps         []string `json:"implementation_steps"`
			Timing        string   `json:"timing"`
			Cost          string   `json:"cost"`
			Effectiveness float64  `json:"effectiveness"`
		} `json:"strategies"`
	}
	usage, err := requestJSON(ctx, aiClient, anthropic.MessageRequest{
		Model:     aiCfg.Model,
		MaxTokens: aiCfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(preventionSystemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	}, "prevention", &out)
	if err != nil {
		return FallbackPreventionStrategies(), usage, err
	}

	strategies := make([]model.PreventionStrategy, 0, len(out.Strategies))
	for _, s := range out.Strategies {
		if s.Name == "" {
			continue
		}
		strategy := model.PreventionStrategy{
			Name:          s.Name,
			Description:   s.Description,
			Steps:         s.Steps,
			Timing:        s.Timing,
			Cost:          s.Cost,
			Effectiveness: model.ClampScore(s.Effectiveness),
		}
		if strategy.Steps == nil {
			strategy.Steps = []string{}
		}
		strategies = append(strategies, strategy)
		if len(strategies) == maxPreventionStrategies {
			break
		}
	}
	if len(strategies) == 0 {
		return FallbackPreventionStrategies(), usage, eris.New("pipeline: prevention synthesis returned no strategies")
	}
	return strategies, usage, nil
}

// FallbackPreventionStrategies is the single generic strategy returned when
// planning fails.
func FallbackPreventionStrategies() []model.PreventionStrategy {
	return []model.PreventionStrategy{
		{
			Name:        "General Sanitation",
			Description: "Maintain good field hygiene and sanitation practices",
			Steps: []string{
				"Remove infected plant material",
				"Clean farming tools",
				"Use healthy seeds",
			},
			Timing:        "Throughout growing season",
			Cost:          "₹300-500 per acre",
			Effectiveness: 0.6,
		},
	}
}
