// Package exa provides a client for the Exa neural web search API.
package exa

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Exa search operations.
type Client interface {
	// Search performs a web search and returns results with page text.
	Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
}

// SearchResponse is the parsed Exa search API response.
type SearchResponse struct {
	RequestID string         `json:"requestId"`
	Results   []SearchResult `json:"results"`
}

// SearchResult represents a single search result with retrieved contents.
type SearchResult struct {
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	PublishedDate string   `json:"publishedDate"`
	Author        string   `json:"author"`
	Score         float64  `json:"score"`
	Text          string   `json:"text"`
	Highlights    []string `json:"highlights"`
}

// SearchOption configures a search request.
type SearchOption func(*searchOpts)

type searchOpts struct {
	numResults   int
	domains      []string
	textMaxChars int
}

// WithNumResults sets the maximum number of results to return.
func WithNumResults(n int) SearchOption {
	return func(o *searchOpts) {
		o.numResults = n
	}
}

// WithDomainFilter restricts results to the given domains.
func WithDomainFilter(domains ...string) SearchOption {
	return func(o *searchOpts) {
		o.domains = domains
	}
}

// WithTextLimit caps the number of characters of page text per result.
func WithTextLimit(maxChars int) SearchOption {
	return func(o *searchOpts) {
		o.textMaxChars = maxChars
	}
}

// Option configures the Exa client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the client-side request rate limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new Exa search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.exa.ai",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// searchRequest is the wire format for POST /search.
type searchRequest struct {
	Query          string           `json:"query"`
	NumResults     int              `json:"numResults,omitempty"`
	IncludeDomains []string         `json:"includeDomains,omitempty"`
	Contents       *contentsRequest `json:"contents,omitempty"`
}

type contentsRequest struct {
	Text *textContents `json:"text,omitempty"`
}

type textContents struct {
	MaxCharacters int `json:"maxCharacters,omitempty"`
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes a POST with exponential backoff retries on transient
// failures (429, 500, 502, 503). The request is rebuilt from the payload on
// each attempt. Returns the response body and status code on success, or the
// last error after exhausting retries.
func (c *httpClient) retryDo(ctx context.Context, url string, payload []byte) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 500 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, 0, eris.Wrap(err, "exa: create request")
		}
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "exa: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("exa: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	so := &searchOpts{}
	for _, opt := range opts {
		opt(so)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "exa: rate limit wait")
	}

	sr := searchRequest{
		Query:          query,
		NumResults:     so.numResults,
		IncludeDomains: so.domains,
	}
	if so.textMaxChars > 0 {
		sr.Contents = &contentsRequest{Text: &textContents{MaxCharacters: so.textMaxChars}}
	}

	payload, err := json.Marshal(sr)
	if err != nil {
		return nil, eris.Wrap(err, "exa: marshal search request")
	}

	body, statusCode, err := c.retryDo(ctx, c.baseURL+"/search", payload)
	if err != nil {
		return nil, eris.Wrap(err, "exa: search request failed")
	}

	// Treat an unprocessable query as empty results rather than an error.
	if statusCode == http.StatusUnprocessableEntity {
		return &SearchResponse{}, nil
	}

	if statusCode != http.StatusOK {
		return nil, eris.Errorf("exa: search unexpected status %d: %s", statusCode, string(body))
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "exa: unmarshal search response")
	}

	return &result, nil
}
