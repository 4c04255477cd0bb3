package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/cropsense/farmops/internal/config"
	"github.com/cropsense/farmops/internal/model"
	"github.com/cropsense/farmops/pkg/anthropic"
)

const identifySystemPrompt = `You are an expert plant pathologist specializing in crop diseases. Identify the disease affecting the described crop from the symptoms and, when attached, the photo. Consider common diseases for the crop type and regional factors. Only use "high" confidence when the symptoms clearly match a specific disease. Respond with a valid JSON object: {"disease_name": "<name>", "scientific_name": "<pathogen scientific name or empty>", "confidence": "high|medium|low|uncertain", "confidence_score": <0.0-1.0>, "symptoms_observed": ["<symptom>"], "affected_plant_parts": ["<part>"], "severity": "mild|moderate|severe|critical"}`

const identifyUserPrompt = `Crop type: %s

Observed symptoms: %s`

// IdentifyDisease implements the identification stage. With an image attached
// the request goes to the vision model. On any failure the fallback candidate
// is returned together with the cause, never a nil result.
func IdentifyDisease(ctx context.Context, req *model.DiagnosisRequest, aiClient anthropic.Client, aiCfg config.AnthropicConfig) (*model.DiseaseCandidate, *anthropic.TokenUsage, error) {
	symptoms := strings.TrimSpace(req.SymptomsText)
	if symptoms == "" {
		symptoms = "none reported"
	}

	msg := anthropic.Message{
		Role:    "user",
		Content: fmt.Sprintf(identifyUserPrompt, req.CropType, symptoms),
	}
	mdl := aiCfg.Model
	if len(req.Image) > 0 {
		mdl = aiCfg.VisionModel
		msg.Images = []anthropic.ImageSource{
			{Data: base64.StdEncoding.EncodeToString(req.Image)},
		}
	}

	var out struct {
		DiseaseName     string   `json:"disease_name"`
		ScientificName  string   `json:"scientific_name"`
		Confidence      string   `json:"confidence"`
		ConfidenceScore float64  `json:"confidence_score"`
		Symptoms        []string `json:"symptoms_observed"`
		AffectedParts   []string `json:"affected_plant_parts"`
		Severity        string   `json:"severity"`
	}
	usage, err := requestJSON(ctx, aiClient, anthropic.MessageRequest{
		Model:     mdl,
		MaxTokens: aiCfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(identifySystemPrompt),
		Messages:  []anthropic.Message{msg},
	}, "identify", &out)
	if err != nil {
		return FallbackDiseaseCandidate(), usage, err
	}
	if out.DiseaseName == "" {
		return FallbackDiseaseCandidate(), usage, eris.New("pipeline: identify returned no disease name")
	}

	candidate := &model.DiseaseCandidate{
		Name:            out.DiseaseName,
		ScientificName:  out.ScientificName,
		Confidence:      model.NormalizeConfidence(out.Confidence),
		ConfidenceScore: model.ClampScore(out.ConfidenceScore),
		Symptoms:        out.Symptoms,
		AffectedParts:   out.AffectedParts,
		Severity:        model.NormalizeSeverity(out.Severity),
	}
	if len(candidate.Symptoms) == 0 {
		candidate.Symptoms = []string{"unspecified symptoms"}
	}
	if len(candidate.AffectedParts) == 0 {
		candidate.AffectedParts = []string{"unknown"}
	}
	return candidate, usage, nil
}

// WarmPromptCache fires one primer request carrying the identification system
// prompt so later diagnosis requests hit a warm prompt cache. Serve mode calls
// this at startup.
func WarmPromptCache(ctx context.Context, aiClient anthropic.Client, aiCfg config.AnthropicConfig) (*anthropic.TokenUsage, error) {
	resp, err := anthropic.PrimerRequest(ctx, aiClient, anthropic.MessageRequest{
		Model:     aiCfg.Model,
		MaxTokens: 16,
		System:    anthropic.BuildCachedSystemBlocks(identifySystemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: "Respond with the single word: ready"}},
	})
	if err != nil {
		return nil, err
	}
	return &resp.Usage, nil
}

// FallbackDiseaseCandidate is the identification result when the capability
// fails or returns unusable output.
func FallbackDiseaseCandidate() *model.DiseaseCandidate {
	return &model.DiseaseCandidate{
		Name:            "Unknown Disease",
		Confidence:      model.ConfidenceUncertain,
		ConfidenceScore: 0.1,
		Symptoms:        []string{"unspecified symptoms"},
		AffectedParts:   []string{"unknown"},
		Severity:        model.SeverityMild,
	}
}
