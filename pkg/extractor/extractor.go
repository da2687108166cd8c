// Package extractor is the public entry point: it fetches a page, runs the
// tiered content extractor over it, validates the result and caches it.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/alanhsu0429/hottea/internal/browser"
	"github.com/alanhsu0429/hottea/internal/cache"
	"github.com/alanhsu0429/hottea/internal/config"
	"github.com/alanhsu0429/hottea/internal/document"
	core "github.com/alanhsu0429/hottea/internal/extractor"
	"github.com/alanhsu0429/hottea/internal/fetcher"
	"github.com/alanhsu0429/hottea/internal/processor"
	"github.com/alanhsu0429/hottea/internal/remote"
	"github.com/alanhsu0429/hottea/internal/validator"
)

// ErrNoContent is returned when no tier, local or remote, found an article.
var ErrNoContent = errors.New("no readable content found")

// ErrFetch wraps every failure to retrieve the page itself.
var ErrFetch = errors.New("failed to fetch content")

type Article = core.Article

type Extractor struct {
	config    *config.Config
	fetcher   *fetcher.ContentFetcher
	processor *processor.ContentProcessor
	cookies   *browser.CookieExtractor
	unified   *core.Extractor
	cache     *cache.Articles
	remote    remote.Backend
}

type Option func(*Extractor)

func WithFetcher(f *fetcher.ContentFetcher) Option {
	return func(e *Extractor) { e.fetcher = f }
}

func WithCache(c *cache.Articles) Option {
	return func(e *Extractor) { e.cache = c }
}

func WithRemote(b remote.Backend) Option {
	return func(e *Extractor) { e.remote = b }
}

func WithEngine(engine core.Engine) Option {
	return func(e *Extractor) { e.unified = core.New(engine, e.config.Rules()) }
}

type ExtractOptions struct {
	UseJS   *bool // nil = auto, true = force, false = disable
	Timeout time.Duration
	NoCache bool
}

type Result struct {
	Article *Article
	// Issue is set when the extracted text is a consent wall, paywall or
	// similar instead of an article.
	Issue   *validator.Issue
	Cached  bool
	UsedJS  bool
	// Backend names the remote reader that supplied the article when local
	// extraction found nothing.
	Backend string
	Elapsed time.Duration
}

// New wires an Extractor from cfg. Options replace the configured parts.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Extractor, error) {
	e := &Extractor{
		config:    cfg,
		processor: processor.NewContentProcessor(),
		unified:   core.New(core.NewGoReadability(), cfg.Rules()),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.fetcher == nil {
		e.fetcher = fetcher.NewContentFetcher(cfg.Fetcher())
	}
	if cfg.Browser.Cookies != "" {
		bt, err := browser.ParseBrowserType(cfg.Browser.Cookies)
		if err != nil {
			return nil, err
		}
		e.cookies = browser.NewCookieExtractor(bt)
	}
	if e.remote == nil && cfg.Extraction.RemoteBackend != "" {
		backend, err := remote.New(cfg.Extraction.RemoteBackend, cfg.Extraction.RemoteAPIKey,
			cfg.Extraction.RemoteExtractDepth, cfg.Fetcher().Timeout)
		if err != nil {
			return nil, err
		}
		e.remote = backend
	}
	if e.cache == nil {
		cc := cfg.CacheConfig()
		store, err := cache.New(ctx, cc)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache: %w", err)
		}
		e.cache = cache.NewArticles(store, cc.TTL)
	}
	return e, nil
}

// Extract returns the article at url. A page that yields only a consent
// notice, paywall or privacy policy comes back with Result.Issue set and the
// issue as the error.
func (e *Extractor) Extract(ctx context.Context, url string, opts ExtractOptions) (*Result, error) {
	start := time.Now()

	if !opts.NoCache {
		if article, ok := e.cache.Get(ctx, url); ok {
			log.Info().Str("url", url).Msg("serving article from cache")
			return &Result{Article: article, Cached: true, Elapsed: time.Since(start)}, nil
		}
	}

	fetchOpts := e.config.FetchOptions()
	if opts.UseJS != nil {
		if *opts.UseJS {
			fetchOpts.Mode = fetcher.FetchModeJS
		} else {
			fetchOpts.Mode = fetcher.FetchModeStatic
		}
	}
	if opts.Timeout > 0 {
		fetchOpts.Timeout = opts.Timeout
	}
	if e.cookies != nil {
		cookies, err := e.cookies.ExtractCookies(ctx, url)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("cookie extraction failed, continuing without cookies")
		}
		fetchOpts.Cookies = cookies
	}

	fetched, err := e.fetcher.Fetch(ctx, url, fetchOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	page, err := document.FromString(fetched.HTML, fetched.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	result := &Result{UsedJS: fetched.UsedJS}
	article := e.unified.Extract(ctx, page)
	if article == nil && e.remote != nil && ctx.Err() == nil {
		if article = e.extractRemote(ctx, url); article != nil {
			result.Backend = e.remote.Name()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := e.accept(result, article, url); err != nil {
		result.Elapsed = time.Since(start)
		return result, err
	}

	if err := e.cache.Put(ctx, url, article); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("failed to cache article")
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

// ExtractHTML runs extraction over an already-fetched page. Nothing is
// fetched or cached.
func (e *Extractor) ExtractHTML(ctx context.Context, html, url string) (*Result, error) {
	start := time.Now()
	page, err := document.FromString(html, url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	result := &Result{}
	err = e.accept(result, e.unified.Extract(ctx, page), url)
	result.Elapsed = time.Since(start)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return result, err
}

func (e *Extractor) accept(result *Result, article *Article, url string) error {
	if article == nil {
		return ErrNoContent
	}
	result.Article = article
	if issue := validator.Detect(article.Content, url); issue != nil {
		log.Debug().Str("url", url).Str("issue", string(issue.Type)).Msg("extracted content rejected")
		result.Issue = issue
		return issue
	}
	return nil
}

func (e *Extractor) extractRemote(ctx context.Context, url string) *Article {
	if !e.remote.IsAvailable() {
		log.Debug().Str("backend", e.remote.Name()).Msg("remote backend not configured")
		return nil
	}
	article, err := e.remote.Extract(ctx, url)
	if err != nil {
		log.Warn().Err(err).Str("backend", e.remote.Name()).Str("url", url).Msg("remote extraction failed")
		return nil
	}
	return article
}

// Render formats an article for display as "text" or "markdown". Any other
// format yields the plain extracted content.
func (e *Extractor) Render(article *Article, format string) string {
	content := &processor.Content{
		Title:       article.Title,
		HTML:        article.HTMLContent,
		TextContent: article.Content,
		Author:      article.Author,
		Excerpt:     article.Excerpt,
		Metadata:    metadata(article),
	}

	switch format {
	case "markdown":
		return e.processor.ToMarkdown(content, e.config.Output.IncludeMetadata, e.config.Output.PreserveLinks)
	case "text":
		text := e.processor.ToText(content, e.config.Output.LineWidth)
		if e.config.Output.IncludeMetadata {
			return header(article) + text
		}
		return text
	default:
		return article.Content
	}
}

func metadata(article *Article) map[string]string {
	meta := map[string]string{}
	for key, value := range map[string]string{
		"url":        article.URL,
		"published":  article.PublishedTime,
		"site":       article.SiteName,
		"source":     article.Source,
		"confidence": string(article.Confidence),
	} {
		if value != "" {
			meta[key] = value
		}
	}
	return meta
}

func header(article *Article) string {
	var b strings.Builder
	b.WriteString(article.Title + "\n")
	if article.Author != "" {
		b.WriteString("By " + article.Author + "\n")
	}
	if article.URL != "" {
		b.WriteString(article.URL + "\n")
	}
	b.WriteString("\n")
	return b.String()
}

func (e *Extractor) Close() error {
	return e.cache.Close()
}
