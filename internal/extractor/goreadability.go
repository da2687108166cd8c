package extractor

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/alanhsu0429/hottea/internal/processor"
)

// GoReadability is the Engine backed by go-shiori/go-readability.
type GoReadability struct{}

var _ Engine = (*GoReadability)(nil)

func NewGoReadability() *GoReadability {
	return &GoReadability{}
}

// IsSuitable combines the library's readerable check with a minimum amount
// of paragraph text. The library fixes its own minimum score.
func (g *GoReadability) IsSuitable(doc *html.Node, opts SuitabilityOptions) bool {
	parser := readability.NewParser()
	if !parser.CheckDocument(doc) {
		return false
	}

	total := 0
	goquery.NewDocumentFromNode(doc).Find("p, pre, article").Each(func(_ int, s *goquery.Selection) {
		total += processor.Length(strings.TrimSpace(s.Text()))
	})
	return total >= opts.MinContentLength
}

func (g *GoReadability) Parse(doc *html.Node, pageURL *url.URL, opts ParseOptions) (*ReadabilityResult, error) {
	parser := readability.NewParser()
	parser.MaxElemsToParse = opts.MaxElemsToParse
	parser.NTopCandidates = opts.NTopCandidates
	parser.CharThresholds = opts.CharThreshold
	parser.KeepClasses = opts.KeepClasses
	parser.DisableJSONLD = opts.DisableJSONLD

	if pageURL == nil {
		pageURL = &url.URL{}
	}

	article, err := parser.ParseDocument(doc, pageURL)
	if err != nil {
		return nil, err
	}

	result := &ReadabilityResult{
		Title:       strings.TrimSpace(article.Title),
		Byline:      strings.TrimSpace(article.Byline),
		Content:     article.Content,
		TextContent: article.TextContent,
		Excerpt:     strings.TrimSpace(article.Excerpt),
		SiteName:    strings.TrimSpace(article.SiteName),
		Lang:        article.Language,
		Length:      article.Length,
	}
	if article.PublishedTime != nil {
		result.PublishedTime = article.PublishedTime.Format(time.RFC3339)
	}

	return result, nil
}
