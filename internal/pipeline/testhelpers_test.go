package pipeline

import (
	"github.com/cropsense/farmops/internal/config"
	"github.com/cropsense/farmops/pkg/anthropic"
	"github.com/cropsense/farmops/pkg/exa"
)

func testAnthropicConfig() config.AnthropicConfig {
	return config.AnthropicConfig{
		Model:       "claude-sonnet-4-5-20250929",
		VisionModel: "claude-opus-4-6",
		MaxTokens:   4096,
	}
}

func jsonResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:         "msg-test",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage:      anthropic.TokenUsage{InputTokens: 100, OutputTokens: 25},
	}
}

func searchResults(urls ...string) *exa.SearchResponse {
	resp := &exa.SearchResponse{RequestID: "search-test"}
	for _, u := range urls {
		resp.Results = append(resp.Results, exa.SearchResult{
			Title: "Result for " + u,
			URL:   u,
			Text:  "Excerpt describing disease management practices.",
			Score: 0.8,
		})
	}
	return resp
}
