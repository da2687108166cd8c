package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanhsu0429/hottea/internal/extractor"
)

// TavilyBackend reads pages through the Tavily Extract API.
type TavilyBackend struct {
	APIKey       string
	ExtractDepth string // "basic" or "advanced"
	Timeout      time.Duration
	BaseURL      string
	client       *http.Client
}

var _ Backend = (*TavilyBackend)(nil)

func NewTavilyBackend(apiKey, extractDepth string, timeout time.Duration) *TavilyBackend {
	if extractDepth == "" {
		extractDepth = "basic"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &TavilyBackend{
		APIKey:       apiKey,
		ExtractDepth: extractDepth,
		Timeout:      timeout,
		BaseURL:      "https://api.tavily.com/extract",
		client:       &http.Client{Timeout: timeout},
	}
}

func (t *TavilyBackend) Name() string {
	return "tavily"
}

func (t *TavilyBackend) IsAvailable() bool {
	return t.APIKey != ""
}

type tavilyExtractRequest struct {
	URLs         []string `json:"urls"`
	ExtractDepth string   `json:"extract_depth,omitempty"`
}

type tavilyExtractResponse struct {
	Results      []tavilyExtractResult `json:"results"`
	FailedURLs   []string              `json:"failed_results"`
	ResponseTime float64               `json:"response_time"`
}

type tavilyExtractResult struct {
	URL        string `json:"url"`
	RawContent string `json:"raw_content"`
	Title      string `json:"title"`
}

func (t *TavilyBackend) Extract(ctx context.Context, url string) (*extractor.Article, error) {
	if !t.IsAvailable() {
		return nil, fmt.Errorf("tavily: API key not configured")
	}

	payload, err := json.Marshal(tavilyExtractRequest{
		URLs:         []string{url},
		ExtractDepth: t.ExtractDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("tavily: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("tavily: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tavily: failed to read response: %w", err)
	}
	if err := checkStatus("tavily", resp.StatusCode, body); err != nil {
		return nil, err
	}

	var parsed tavilyExtractResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("tavily: failed to parse response: %w", err)
	}

	if len(parsed.Results) == 0 {
		if len(parsed.FailedURLs) > 0 {
			return nil, fmt.Errorf("tavily: extraction failed for %s", url)
		}
		return nil, fmt.Errorf("tavily: no results returned for %s", url)
	}

	result := parsed.Results[0]
	pageURL := result.URL
	if pageURL == "" {
		pageURL = url
	}
	return newArticle(t.Name(), pageURL, result.Title, result.RawContent)
}
