package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cropsense/farmops/internal/config"
	"github.com/cropsense/farmops/internal/model"
	"github.com/cropsense/farmops/pkg/anthropic"
	"github.com/cropsense/farmops/pkg/exa"
)

const treatmentSystemPrompt = `You are an agricultural extension specialist. Recommend 3-5 treatments for the named crop disease spanning chemical, biological, and cultural options, grounded in the supplied product research. Respond with a valid JSON object: {"treatments": [{"treatment_name": "<name>", "treatment_type": "chemical|biological|cultural|integrated", "active_ingredients": ["<ingredient>"], "application_method": "<method>", "dosage": "<dosage>", "frequency": "<frequency>", "timing": "<timing>", "cost_estimate": "<cost>", "availability": "<where to obtain>", "effectiveness": <0.0-1.0>, "side_effects": ["<precaution>"]}]}`

const treatmentUserPrompt = `Disease: %s
Crop: %s
Severity: %s
Known causes: %s

Product research:
%s`

const treatmentSearchQuery = "%s %s treatment fungicide bactericide control products"

// treatmentDomains is the supplier and extension-service allowlist for the
// product search.
var treatmentDomains = []string{
	"extension.org",
	"icar.org.in",
	"agriculture.gov.in",
	"bayer.com",
	"syngenta.com",
	"corteva.com",
	"agritech.tnau.ac.in",
	"krishijagran.com",
}

const (
	treatmentNumResults  = 8
	treatmentTextLimit   = 1200
	treatmentCorpusLimit = 6000
	maxTreatmentOptions  = 5
)

// severityDiscount scales treatment effectiveness down as the disease
// advances. Unknown severities use the severe-adjacent 0.8.
var severityDiscount = map[model.Severity]float64{
	model.SeverityMild:     1.0,
	model.SeverityModerate: 0.9,
	model.SeveritySevere:   0.8,
	model.SeverityCritical: 0.7,
}

const defaultSeverityDiscount = 0.8

// AdviseTreatments implements the treatment stage: one product search feeds a
// completion call, and every returned option's effectiveness is discounted by
// severity. A failed search still attempts synthesis from the findings alone.
func AdviseTreatments(ctx context.Context, diseaseName, cropType string, severity model.Severity, findings *model.ResearchFindings, searchClient exa.Client, aiClient anthropic.Client, aiCfg config.AnthropicConfig) ([]model.TreatmentOption, *anthropic.TokenUsage, error) {
	var corpus strings.Builder
	resp, err := searchClient.Search(ctx, fmt.Sprintf(treatmentSearchQuery, diseaseName, cropType),
		exa.WithNumResults(treatmentNumResults),
		exa.WithDomainFilter(treatmentDomains...),
		exa.WithTextLimit(treatmentTextLimit),
	)
	if err != nil {
		zap.L().Warn("treatment: product search failed", zap.Error(err))
	} else {
		for _, r := range resp.Results {
			fmt.Fprintf(&corpus, "Title: %s\nContent: %s\n\n", r.Title, r.Text)
		}
	}

	excerpts := corpus.String()
	if len(excerpts) > treatmentCorpusLimit {
		excerpts = excerpts[:treatmentCorpusLimit]
	}
	causes := ""
	if findings != nil {
		causes = strings.Join(findings.Causes, ", ")
	}

	var out struct {
		Treatments []struct {
			Name              string   `json:"treatment_name"`
			Type              string   `json:"treatment_type"`
			ActiveIngredients []string `json:"active_ingredients"`
			Method            string   `json:"application_method"`
			Dosage            string   `json:"dosage"`
			Frequency         string   `json:"frequency"`
			Timing            string   `json:"timing"`
			CostEstimate      string   `json:"cost_estimate"`
			Availability      string   `json:"availability"`
			Effectiveness     float64  `json:"effectiveness"`
			SideEffects       []string `json:"side_effects"`
		} `json:"treatments"`
	}
	usage, err := requestJSON(ctx, aiClient, anthropic.MessageRequest{
		Model:     aiCfg.Model,
		MaxTokens: aiCfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(treatmentSystemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(treatmentUserPrompt, diseaseName, cropType, severity, causes, excerpts)},
		},
	}, "treatment", &out)
	if err != nil {
		return FallbackTreatments(), usage, err
	}
	if len(out.Treatments) == 0 {
		return FallbackTreatments(), usage, eris.New("pipeline: treatment synthesis returned no options")
	}

	options := make([]model.TreatmentOption, 0, len(out.Treatments))
	for _, t := range out.Treatments {
		if t.Name == "" {
			continue
		}
		opt := model.TreatmentOption{
			Name:              t.Name,
			Type:              model.NormalizeTreatmentType(t.Type),
			ActiveIngredients: t.ActiveIngredients,
			Method:            t.Method,
			Dosage:            t.Dosage,
			Frequency:         t.Frequency,
			Timing:            t.Timing,
			CostEstimate:      t.CostEstimate,
			Availability:      t.Availability,
			Effectiveness:     model.ClampScore(t.Effectiveness),
			SideEffects:       t.SideEffects,
		}
		if opt.ActiveIngredients == nil {
			opt.ActiveIngredients = []string{}
		}
		if opt.SideEffects == nil {
			opt.SideEffects = []string{}
		}
		options = append(options, opt)
		if len(options) == maxTreatmentOptions {
			break
		}
	}
	if len(options) == 0 {
		return FallbackTreatments(), usage, eris.New("pipeline: treatment synthesis returned only unnamed options")
	}

	return applySeverityDiscount(options, severity), usage, nil
}

// applySeverityDiscount multiplies every option's effectiveness by the
// discount for the given severity.
func applySeverityDiscount(options []model.TreatmentOption, severity model.Severity) []model.TreatmentOption {
	discount, ok := severityDiscount[severity]
	if !ok {
		discount = defaultSeverityDiscount
	}
	for i := range options {
		options[i].Effectiveness = model.ClampScore(options[i].Effectiveness * discount)
	}
	return options
}

// FallbackTreatments is the single generic option returned when advisory
// synthesis fails. Its effectiveness is not severity-discounted.
func FallbackTreatments() []model.TreatmentOption {
	return []model.TreatmentOption{
		{
			Name:              "General Fungicide Treatment",
			Type:              model.TreatmentChemical,
			ActiveIngredients: []string{"broad spectrum fungicide"},
			Method:            "Foliar spray",
			Dosage:            "As per manufacturer instructions",
			Frequency:         "Weekly",
			Timing:            "Early morning",
			CostEstimate:      "₹200-400 per acre",
			Availability:      "Local agricultural stores",
			Effectiveness:     0.6,
			SideEffects:       []string{"follow safety guidelines"},
		},
	}
}
