package extractor

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/alanhsu0429/hottea/internal/document"
)

type fakeEngine struct {
	result   *ReadabilityResult
	err      error
	suitable bool
	panicMsg string

	calls     int
	lastOpts  ParseOptions
	sawBanner bool
	lastURL   *url.URL
}

func (f *fakeEngine) IsSuitable(doc *html.Node, opts SuitabilityOptions) bool {
	return f.suitable
}

func (f *fakeEngine) Parse(doc *html.Node, pageURL *url.URL, opts ParseOptions) (*ReadabilityResult, error) {
	f.calls++
	f.lastOpts = opts
	f.lastURL = pageURL
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.sawBanner = goquery.NewDocumentFromNode(doc).Find("#onetrust-consent-sdk").Length() > 0
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return nil, nil
	}
	copied := *f.result
	return &copied, nil
}

func mustPage(t *testing.T, htmlText, rawURL string) *document.Page {
	t.Helper()
	page, err := document.FromString(htmlText, rawURL)
	if err != nil {
		t.Fatalf("failed to parse page: %v", err)
	}
	return page
}

// prose returns n characters of sentence-like text.
func prose(n int) string {
	const sentence = "The city council approved the new transit budget after a long debate. "
	if n <= 0 {
		return ""
	}
	text := []byte(strings.Repeat(sentence, n/len(sentence)+1)[:n])
	if text[n-1] == ' ' {
		text[n-1] = '.'
	}
	return string(text)
}
