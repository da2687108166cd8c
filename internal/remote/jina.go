package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanhsu0429/hottea/internal/extractor"
)

// JinaBackend reads pages through Jina Reader (r.jina.ai).
type JinaBackend struct {
	APIKey  string // optional, raises rate limits
	Timeout time.Duration
	BaseURL string
	client  *http.Client
}

var _ Backend = (*JinaBackend)(nil)

func NewJinaBackend(apiKey string, timeout time.Duration) *JinaBackend {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &JinaBackend{
		APIKey:  apiKey,
		Timeout: timeout,
		BaseURL: "https://r.jina.ai/",
		client:  &http.Client{Timeout: timeout},
	}
}

func (j *JinaBackend) Name() string {
	return "jina"
}

// IsAvailable always returns true: Jina Reader works without an API key.
func (j *JinaBackend) IsAvailable() bool {
	return true
}

func (j *JinaBackend) Extract(ctx context.Context, url string) (*extractor.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.BaseURL+url, nil)
	if err != nil {
		return nil, fmt.Errorf("jina: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	if j.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+j.APIKey)
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jina: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jina: failed to read response: %w", err)
	}
	if err := checkStatus("jina", resp.StatusCode, body); err != nil {
		return nil, err
	}

	content := string(body)
	markdown := extractJinaMarkdown(content)
	if markdown == "" {
		markdown = content
	}

	return newArticle(j.Name(), url, extractJinaField(content, "Title:"), stripBasicMarkdown(markdown))
}

func extractJinaField(content, field string) string {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, field) {
			return strings.TrimSpace(strings.TrimPrefix(line, field))
		}
	}
	return ""
}

// extractJinaMarkdown returns the body after the "Markdown Content:" header,
// or from the first heading when the header is missing.
func extractJinaMarkdown(content string) string {
	const marker = "Markdown Content:"
	if idx := strings.Index(content, marker); idx != -1 {
		return strings.TrimSpace(content[idx+len(marker):])
	}

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "#") || (i > 3 && strings.TrimSpace(line) != "" && !strings.Contains(line, ":")) {
			return strings.Join(lines[i:], "\n")
		}
	}
	return content
}

func stripBasicMarkdown(md string) string {
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		line = strings.TrimLeft(line, "#")
		line = strings.ReplaceAll(line, "**", "")
		line = strings.ReplaceAll(line, "__", "")
		lines[i] = strings.TrimSpace(line)
	}
	return strings.Join(lines, "\n")
}
