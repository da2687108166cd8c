package remote

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alanhsu0429/hottea/internal/extractor"
	"github.com/alanhsu0429/hottea/internal/processor"
)

// Backend is a hosted reader API that turns a URL into article text. It is
// only consulted when local extraction finds nothing.
type Backend interface {
	// Name returns the unique identifier for this backend
	Name() string

	// Extract fetches the URL through the hosted reader
	Extract(ctx context.Context, url string) (*extractor.Article, error)

	// IsAvailable checks if the backend is properly configured
	IsAvailable() bool
}

// New returns the backend registered under name.
func New(name, apiKey, extractDepth string, timeout time.Duration) (Backend, error) {
	switch name {
	case "jina":
		return NewJinaBackend(apiKey, timeout), nil
	case "tavily":
		return NewTavilyBackend(apiKey, extractDepth, timeout), nil
	default:
		return nil, fmt.Errorf("unknown remote backend: %s (available: jina, tavily)", name)
	}
}

func newArticle(backend, pageURL, title, text string) (*extractor.Article, error) {
	content := processor.NewContentProcessor().CleanText(text, processor.MaxContentLength)
	if content == "" {
		return nil, fmt.Errorf("%s: empty content for %s", backend, pageURL)
	}

	return &extractor.Article{
		Title:      title,
		Content:    content,
		Length:     processor.Length(content),
		Source:     extractor.SourceBasic,
		Confidence: extractor.ConfidenceLow,
		URL:        pageURL,
	}, nil
}

func checkStatus(backend string, status int, body []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s: authentication failed: %s", backend, string(body))
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s: rate limited: %s", backend, string(body))
	default:
		return fmt.Errorf("%s: HTTP %d: %s", backend, status, string(body))
	}
}
