package extractor

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/alanhsu0429/hottea/internal/document"
	"github.com/alanhsu0429/hottea/internal/processor"
)

// minReadabilityText is the exclusive lower bound on accepted textContent length.
const minReadabilityText = 100

type SuitabilityOptions struct {
	MinContentLength int
	MinScore         float64
}

type ParseOptions struct {
	MaxElemsToParse int // 0 means unlimited
	NTopCandidates  int
	CharThreshold   int
	KeepClasses     bool
	DisableJSONLD   bool
}

var (
	DefaultSuitability = SuitabilityOptions{MinContentLength: 200, MinScore: 20}

	DefaultParseOptions = ParseOptions{
		MaxElemsToParse: 0,
		NTopCandidates:  5,
		CharThreshold:   500,
		KeepClasses:     false,
		DisableJSONLD:   false,
	}
)

// ReadabilityResult is what a readability engine reports for a document.
type ReadabilityResult struct {
	Title         string
	Byline        string
	Content       string // cleaned article HTML
	TextContent   string
	Excerpt       string
	SiteName      string
	Lang          string
	PublishedTime string
	Length        int
}

// Engine is a readability-scoring implementation. Parse must not retain doc.
type Engine interface {
	IsSuitable(doc *html.Node, opts SuitabilityOptions) bool
	Parse(doc *html.Node, pageURL *url.URL, opts ParseOptions) (*ReadabilityResult, error)
}

var cookieNoticeSelectors = []string{
	"#onetrust-consent-sdk",
	"#ot-pc-sdk",
	"#ot-sdk-cookie-policy",
	`[id^="onetrust"]`,
	`[class*="cookie-notice"]`,
	`[class*="cookie-banner"]`,
	`[class*="cookie-consent"]`,
	`[class*="gdpr-banner"]`,
}

// RemoveCookieNotices strips cookie and GDPR consent subtrees from page and
// reports how many elements were removed.
func RemoveCookieNotices(page *document.Page) int {
	removed := 0

	for _, selector := range cookieNoticeSelectors {
		found := page.Doc.Find(selector)
		removed += found.Length()
		found.Remove()
	}

	labelled := page.Doc.Find("[aria-label]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(strings.ToLower(s.AttrOr("aria-label", "")), "cookie")
	})
	removed += labelled.Length()
	labelled.Remove()

	return removed
}

// ReadabilityAdapter prepares a page for the readability engine and rejects
// low-quality output. It never mutates the page it is given.
type ReadabilityAdapter struct {
	engine      Engine
	suitability SuitabilityOptions
	parse       ParseOptions
}

func NewReadabilityAdapter(engine Engine) *ReadabilityAdapter {
	return &ReadabilityAdapter{
		engine:      engine,
		suitability: DefaultSuitability,
		parse:       DefaultParseOptions,
	}
}

func (a *ReadabilityAdapter) Extract(page *document.Page) (result *ReadabilityResult, err error) {
	if a == nil || a.engine == nil {
		return nil, ErrEngineUnavailable
	}

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("readability engine panic: %v", r)
		}
	}()

	clone := page.Clone()
	root := clone.Node()
	if root == nil {
		return nil, fmt.Errorf("empty document: %w", ErrLowQuality)
	}

	// Advisory only: unsuitable pages still get a parse attempt.
	if !a.engine.IsSuitable(root, a.suitability) {
		log.Debug().Str("url", page.Href()).Msg("page does not look readerable, trying anyway")
	}

	if n := RemoveCookieNotices(clone); n > 0 {
		log.Debug().Int("removed", n).Str("url", page.Href()).Msg("removed cookie notice elements")
	}

	result, err = a.engine.Parse(root, clone.URL, a.parse)
	if err != nil {
		return nil, fmt.Errorf("readability parse failed: %w", err)
	}
	if result == nil {
		return nil, ErrLowQuality
	}

	if n := processor.Length(strings.TrimSpace(result.TextContent)); n <= minReadabilityText {
		return nil, fmt.Errorf("readability returned %d characters: %w", n, ErrLowQuality)
	}

	return result, nil
}
