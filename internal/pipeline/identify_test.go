package pipeline

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/cropsense/farmops/internal/model"
	"github.com/cropsense/farmops/pkg/anthropic"
)

func TestIdentifyDisease_Decode(t *testing.T) {
	ctx := context.Background()
	aiClient := &mockCompletionClient{}
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(jsonResponse(stubIdentifyJSON), nil).Once()

	req := &model.DiagnosisRequest{CropType: "tomato", SymptomsText: "brown spots on leaves"}
	disease, usage, err := IdentifyDisease(ctx, req, aiClient, testAnthropicConfig())

	assert.NoError(t, err)
	assert.Equal(t, "Bacterial Leaf Spot", disease.Name)
	assert.Equal(t, "Xanthomonas campestris", disease.ScientificName)
	assert.Equal(t, model.ConfidenceMedium, disease.Confidence)
	assert.InDelta(t, 0.75, disease.ConfidenceScore, 0.001)
	assert.Equal(t, model.SeverityModerate, disease.Severity)
	assert.Equal(t, []string{"leaf spots", "yellowing", "wilting"}, disease.Symptoms)
	assert.Equal(t, []string{"leaves", "stems"}, disease.AffectedParts)
	assert.Equal(t, int64(100), usage.InputTokens)
	aiClient.AssertExpectations(t)
}

func TestIdentifyDisease_TextModelWithoutImage(t *testing.T) {
	ctx := context.Background()
	var captured anthropic.MessageRequest
	aiClient := &mockCompletionClient{}
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(anthropic.MessageRequest)
		}).
		Return(jsonResponse(stubIdentifyJSON), nil).Once()

	req := &model.DiagnosisRequest{CropType: "tomato", SymptomsText: "brown spots"}
	_, _, err := IdentifyDisease(ctx, req, aiClient, testAnthropicConfig())

	assert.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-5-20250929", captured.Model)
	assert.Empty(t, captured.Messages[0].Images)
}

func TestIdentifyDisease_VisionModelWithImage(t *testing.T) {
	ctx := context.Background()
	var captured anthropic.MessageRequest
	aiClient := &mockCompletionClient{}
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(anthropic.MessageRequest)
		}).
		Return(jsonResponse(stubIdentifyJSON), nil).Once()

	photo := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	req := &model.DiagnosisRequest{CropType: "tomato", Image: photo}
	_, _, err := IdentifyDisease(ctx, req, aiClient, testAnthropicConfig())

	assert.NoError(t, err)
	assert.Equal(t, "claude-opus-4-6", captured.Model)
	if assert.Len(t, captured.Messages[0].Images, 1) {
		assert.Equal(t, base64.StdEncoding.EncodeToString(photo), captured.Messages[0].Images[0].Data)
	}
}

func TestIdentifyDisease_EmptySymptomsPlaceholder(t *testing.T) {
	ctx := context.Background()
	var captured anthropic.MessageRequest
	aiClient := &mockCompletionClient{}
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(anthropic.MessageRequest)
		}).
		Return(jsonResponse(stubIdentifyJSON), nil).Once()

	req := &model.DiagnosisRequest{CropType: "rice"}
	_, _, err := IdentifyDisease(ctx, req, aiClient, testAnthropicConfig())

	assert.NoError(t, err)
	assert.Contains(t, captured.Messages[0].Content, "none reported")
}

func TestIdentifyDisease_CompletionErrorFallsBack(t *testing.T) {
	ctx := context.Background()
	aiClient := &mockCompletionClient{}
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(nil, eris.New("api down")).Once()

	req := &model.DiagnosisRequest{CropType: "tomato", SymptomsText: "spots"}
	disease, _, err := IdentifyDisease(ctx, req, aiClient, testAnthropicConfig())

	assert.Error(t, err)
	assert.Equal(t, "Unknown Disease", disease.Name)
	assert.Equal(t, model.ConfidenceUncertain, disease.Confidence)
	assert.InDelta(t, 0.1, disease.ConfidenceScore, 0.001)
	assert.Equal(t, []string{"unspecified symptoms"}, disease.Symptoms)
	assert.Equal(t, []string{"unknown"}, disease.AffectedParts)
	assert.Equal(t, model.SeverityMild, disease.Severity)
}

func TestIdentifyDisease_MissingNameFallsBack(t *testing.T) {
	ctx := context.Background()
	aiClient := &mockCompletionClient{}
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(jsonResponse(`{"confidence": "high", "confidence_score": 0.9}`), nil).Once()

	req := &model.DiagnosisRequest{CropType: "tomato", SymptomsText: "spots"}
	disease, _, err := IdentifyDisease(ctx, req, aiClient, testAnthropicConfig())

	assert.Error(t, err)
	assert.Equal(t, "Unknown Disease", disease.Name)
}

func TestIdentifyDisease_NormalizesEnumsAndClampsScore(t *testing.T) {
	ctx := context.Background()
	aiClient := &mockCompletionClient{}
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(jsonResponse(`{"disease_name": "Rust", "confidence": "Very High", "confidence_score": 1.7, "severity": "CRITICAL"}`), nil).Once()

	req := &model.DiagnosisRequest{CropType: "wheat", SymptomsText: "orange pustules"}
	disease, _, err := IdentifyDisease(ctx, req, aiClient, testAnthropicConfig())

	assert.NoError(t, err)
	assert.Equal(t, model.ConfidenceUncertain, disease.Confidence)
	assert.Equal(t, 1.0, disease.ConfidenceScore)
	assert.Equal(t, model.SeverityCritical, disease.Severity)
	// Empty lists are coerced to explicit placeholders.
	assert.Equal(t, []string{"unspecified symptoms"}, disease.Symptoms)
	assert.Equal(t, []string{"unknown"}, disease.AffectedParts)
}

func TestFallbackDiseaseCandidate(t *testing.T) {
	fb := FallbackDiseaseCandidate()
	assert.Equal(t, "Unknown Disease", fb.Name)
	assert.Equal(t, model.ConfidenceUncertain, fb.Confidence)
	assert.InDelta(t, 0.1, fb.ConfidenceScore, 0.001)
	assert.Equal(t, model.SeverityMild, fb.Severity)
}

func TestIdentifySystemPrompt_CarriesSchema(t *testing.T) {
	for _, key := range []string{"disease_name", "confidence_score", "affected_plant_parts", "severity"} {
		assert.True(t, strings.Contains(identifySystemPrompt, key), "schema key %q missing", key)
	}
}
