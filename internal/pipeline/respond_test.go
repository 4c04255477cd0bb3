package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/cropsense/farmops/pkg/anthropic"
)

func TestExtractText(t *testing.T) {
	resp := &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{
			{Text: "Hello"},
			{Text: " World"},
		},
	}
	assert.Equal(t, "Hello\n World", extractText(resp))
}

func TestExtractText_Nil(t *testing.T) {
	assert.Equal(t, "", extractText(nil))
}

func TestExtractText_SkipsEmptyBlocks(t *testing.T) {
	resp := &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{
			{Text: ""},
			{Text: "payload"},
		},
	}
	assert.Equal(t, "payload", extractText(resp))
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain json", `{"key": "value"}`, `{"key": "value"}`},
		{"code fence", "```json\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"plain fence", "```\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"with prefix", "Here's the result: {\"key\": \"value\"}", `{"key": "value"}`},
		{"with suffix", "{\"key\": \"value\"} that's the answer", `{"key": "value"}`},
		{"nested braces", `{"outer": {"inner": "value"}}`, `{"outer": {"inner": "value"}}`},
		{"no json", "no json here", "no json here"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSON(tt.input))
		})
	}
}

func TestRequestJSON_DecodesWrappedPayload(t *testing.T) {
	ctx := context.Background()
	aiClient := &mockCompletionClient{}
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(jsonResponse("```json\n{\"disease_name\": \"Late Blight\"}\n```"), nil).Once()

	var out struct {
		DiseaseName string `json:"disease_name"`
	}
	usage, err := requestJSON(ctx, aiClient, anthropic.MessageRequest{Model: "m"}, "identify", &out)

	assert.NoError(t, err)
	assert.Equal(t, "Late Blight", out.DiseaseName)
	assert.Equal(t, int64(100), usage.InputTokens)
	aiClient.AssertExpectations(t)
}

func TestRequestJSON_CompletionError(t *testing.T) {
	ctx := context.Background()
	aiClient := &mockCompletionClient{}
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(nil, eris.New("api down")).Once()

	var out struct{}
	usage, err := requestJSON(ctx, aiClient, anthropic.MessageRequest{Model: "m"}, "identify", &out)

	assert.Error(t, err)
	assert.Nil(t, usage)
}

func TestRequestJSON_MalformedJSON(t *testing.T) {
	ctx := context.Background()
	aiClient := &mockCompletionClient{}
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(jsonResponse("the crop looks unwell"), nil).Once()

	var out struct{}
	usage, err := requestJSON(ctx, aiClient, anthropic.MessageRequest{Model: "m"}, "identify", &out)

	assert.Error(t, err)
	// Usage is still reported so the run can account for the spent tokens.
	assert.NotNil(t, usage)
	assert.Equal(t, int64(25), usage.OutputTokens)
}
