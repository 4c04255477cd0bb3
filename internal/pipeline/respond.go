package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/cropsense/farmops/internal/resilience"
	"github.com/cropsense/farmops/pkg/anthropic"
)

// extractText concatenates all text content blocks from a message response.
func extractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, block := range resp.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// completionRetry is the retry policy for completion calls. Only transient
// failures are retried; malformed output goes straight to the stage fallback.
func completionRetry(stage string) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("anthropic", stage)
	return cfg
}

// requestJSON sends a completion request and decodes the JSON object in the
// response into out. Token usage is returned even when decoding fails so the
// caller can still attribute cost before falling back.
func requestJSON(ctx context.Context, aiClient anthropic.Client, req anthropic.MessageRequest, stage string, out any) (*anthropic.TokenUsage, error) {
	resp, err := resilience.DoVal(ctx, completionRetry(stage), func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return aiClient.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: %s completion", stage)
	}

	usage := resp.Usage
	if err := json.Unmarshal([]byte(cleanJSON(extractText(resp))), out); err != nil {
		return &usage, eris.Wrapf(err, "pipeline: %s returned malformed JSON", stage)
	}
	return &usage, nil
}
