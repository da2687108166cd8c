// Package fetcher downloads pages for extraction, statically or through a
// headless browser.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

type FetchMode string

const (
	FetchModeAuto   FetchMode = "auto"
	FetchModeStatic FetchMode = "static"
	FetchModeJS     FetchMode = "javascript"
)

var (
	// ErrDisallowed is returned when robots.txt forbids the URL.
	ErrDisallowed = errors.New("fetcher: disallowed by robots.txt")
	ErrBadURL     = errors.New("fetcher: invalid URL")
)

// StatusError reports a non-success HTTP response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.Code, e.Status)
}

const maxBodyBytes = 10 << 20

type FetchOptions struct {
	Mode            FetchMode
	Timeout         time.Duration
	UserAgent       string
	BrowserAgent    string
	Cookies         []*http.Cookie
	SkipBanners     bool
	BannerTimeout   time.Duration
	WaitForSelector string
}

type FetchResult struct {
	HTML       string
	URL        string // final URL after redirects
	StatusCode int
	UsedJS     bool
	Elapsed    time.Duration
}

// Config holds settings shared by every fetch.
type Config struct {
	Timeout           time.Duration
	MaxRedirects      int
	RequestsPerSecond float64
	Burst             int
	RespectRobots     bool
}

func DefaultConfig() Config {
	return Config{
		Timeout:           30 * time.Second,
		MaxRedirects:      10,
		RequestsPerSecond: 2,
		Burst:             4,
		RespectRobots:     true,
	}
}

type ContentFetcher struct {
	client          *http.Client
	userAgentSelect *UserAgentSelector
	limiter         *Limiter
	robots          *RobotsChecker
	renderer        Renderer
}

func NewContentFetcher(cfg Config) *ContentFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	maxRedirects := cfg.MaxRedirects

	client := &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	cf := &ContentFetcher{
		client:          client,
		userAgentSelect: NewUserAgentSelector(),
		limiter:         NewLimiter(cfg.RequestsPerSecond, cfg.Burst),
		renderer:        ChromeRenderer{},
	}
	if cfg.RespectRobots {
		cf.robots = NewRobotsChecker(client)
	}
	return cf
}

// WithRenderer replaces the JavaScript renderer.
func (cf *ContentFetcher) WithRenderer(r Renderer) *ContentFetcher {
	cf.renderer = r
	return cf
}

func (cf *ContentFetcher) Fetch(ctx context.Context, rawURL string, opts FetchOptions) (*FetchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrBadURL, rawURL)
	}

	if cf.robots != nil && !cf.robots.Allowed(ctx, u) {
		return nil, fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
	}
	if err := cf.limiter.Wait(ctx, u.Host); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	start := time.Now()
	var result *FetchResult

	switch opts.Mode {
	case FetchModeStatic:
		result, err = cf.fetchStatic(ctx, rawURL, opts)
	case FetchModeJS:
		result, err = cf.fetchWithJS(ctx, rawURL, opts)
	default:
		// Auto mode: try static first, then JS if needed
		result, err = cf.fetchStatic(ctx, rawURL, opts)
		if err == nil && NeedsJSRendering(result.HTML) {
			log.Debug().Str("url", rawURL).Msg("page looks client-rendered, retrying with browser")
			if rendered, jsErr := cf.fetchWithJS(ctx, rawURL, opts); jsErr == nil {
				result = rendered
			} else {
				log.Warn().Err(jsErr).Str("url", rawURL).Msg("browser rendering failed, keeping static HTML")
			}
		}
	}
	if err != nil {
		return nil, err
	}

	result.Elapsed = time.Since(start)
	return result, nil
}

func (cf *ContentFetcher) userAgent(opts FetchOptions) string {
	if opts.UserAgent != "" {
		return opts.UserAgent
	}
	return cf.userAgentSelect.GetUserAgent(opts.BrowserAgent)
}

func (cf *ContentFetcher) fetchStatic(ctx context.Context, rawURL string, opts FetchOptions) (*FetchResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", cf.userAgent(opts))
	// Headers that make the request look like a real browser navigation
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Cache-Control", "max-age=0")

	for _, cookie := range opts.Cookies {
		req.AddCookie(cookie)
	}

	resp, err := cf.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &FetchResult{
		HTML:       string(body),
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
	}, nil
}

func (cf *ContentFetcher) fetchWithJS(ctx context.Context, rawURL string, opts FetchOptions) (*FetchResult, error) {
	if cf.renderer == nil {
		return nil, fmt.Errorf("javascript rendering is not available")
	}
	if opts.UserAgent == "" {
		opts.UserAgent = cf.userAgent(opts)
	}

	html, err := cf.renderer.Render(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	return &FetchResult{HTML: html, URL: rawURL, StatusCode: http.StatusOK, UsedJS: true}, nil
}

var spaMarkers = []string{
	"data-reactroot", "ng-app", "ng-version", "v-app", "data-server-rendered",
	`id="__next"`, `id="root"></div>`, `id="app"></div>`,
}

// NeedsJSRendering guesses whether html is an empty client-rendered shell.
func NeedsJSRendering(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}

	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	textLen := len(strings.Join(strings.Fields(body.Text()), " "))
	if textLen >= 1000 {
		return false
	}

	lower := strings.ToLower(html)
	for _, marker := range spaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	if strings.Contains(lower, "loading") && textLen < 200 {
		return true
	}
	return doc.Find("script").Length() > 5
}
