package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cropsense/farmops/internal/config"
	"github.com/cropsense/farmops/internal/model"
	"github.com/cropsense/farmops/internal/weather"
	"github.com/cropsense/farmops/pkg/anthropic"
)

const environmentSystemPrompt = `You are an agricultural environmental specialist. Analyze how soil and weather conditions contribute to the development and spread of the named disease. Be specific about mechanisms. Respond with a valid JSON object: {"soil_ph_impact": "<narrative>", "moisture_conditions": "<narrative>", "temperature_range": "<narrative>", "humidity_impact": "<narrative>", "nutrient_deficiencies": ["<deficiency>"], "environmental_stress_factors": ["<factor>"]}`

// CorrelateEnvironment implements the environmental correlation stage. When
// the request carries no weather snapshot and a location is known, one is
// synthesized from the regional pattern table. The snapshot is returned
// alongside the factors so the report can echo it even on fallback.
func CorrelateEnvironment(ctx context.Context, req *model.DiagnosisRequest, diseaseName string, synth *weather.Synthesizer, aiClient anthropic.Client, aiCfg config.AnthropicConfig) (*model.EnvironmentalFactors, *model.WeatherSnapshot, *anthropic.TokenUsage, error) {
	snapshot := req.Weather
	if snapshot == nil && req.Location != "" && synth != nil {
		snapshot = synth.Synthesize(req.Location)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Disease: %s\n", diseaseName)
	if len(req.SoilData) > 0 {
		if soil, err := json.Marshal(req.SoilData); err == nil {
			fmt.Fprintf(&b, "\nSoil data: %s\n", soil)
		}
	}
	if snapshot != nil {
		fmt.Fprintf(&b, "\nWeather conditions:\n")
		fmt.Fprintf(&b, "- Temperature: %.1f°C - %.1f°C (avg %.1f°C)\n", snapshot.TempMin, snapshot.TempMax, snapshot.TempAvg)
		fmt.Fprintf(&b, "- Humidity: %.1f%%\n", snapshot.Humidity)
		fmt.Fprintf(&b, "- Rainfall: %.1fmm\n", snapshot.Rainfall)
		fmt.Fprintf(&b, "- Wind speed: %.1f km/h\n", snapshot.Wind)
	}

	var out struct {
		SoilPH               string   `json:"soil_ph_impact"`
		Moisture             string   `json:"moisture_conditions"`
		Temperature          string   `json:"temperature_range"`
		Humidity             string   `json:"humidity_impact"`
		NutrientDeficiencies []string `json:"nutrient_deficiencies"`
		StressFactors        []string `json:"environmental_stress_factors"`
	}
	usage, err := requestJSON(ctx, aiClient, anthropic.MessageRequest{
		Model:     aiCfg.Model,
		MaxTokens: aiCfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(environmentSystemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: b.String()}},
	}, "environment", &out)
	if err != nil {
		return FallbackEnvironmentalFactors(), snapshot, usage, err
	}

	factors := &model.EnvironmentalFactors{
		SoilPH:               out.SoilPH,
		Moisture:             out.Moisture,
		Temperature:          out.Temperature,
		Humidity:             out.Humidity,
		NutrientDeficiencies: out.NutrientDeficiencies,
		StressFactors:        out.StressFactors,
	}
	if factors.NutrientDeficiencies == nil {
		factors.NutrientDeficiencies = []string{}
	}
	if factors.StressFactors == nil {
		factors.StressFactors = []string{}
	}
	return factors, snapshot, usage, nil
}

// FallbackEnvironmentalFactors carries placeholder narratives so downstream
// stages and report consumers never see null fields.
func FallbackEnvironmentalFactors() *model.EnvironmentalFactors {
	return &model.EnvironmentalFactors{
		SoilPH:               "Environmental analysis unavailable",
		Moisture:             "Unable to determine moisture impact",
		Temperature:          "Temperature correlation unknown",
		Humidity:             "Humidity impact unclear",
		NutrientDeficiencies: []string{},
		StressFactors:        []string{},
	}
}
