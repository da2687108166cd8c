package document

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Page is a parsed HTML document together with the location it was loaded from.
type Page struct {
	Doc *goquery.Document
	URL *url.URL
}

// Parse reads HTML from r and binds it to rawURL.
func Parse(r io.Reader, rawURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid page URL %q: %w", rawURL, err)
	}
	doc.Url = u

	return &Page{Doc: doc, URL: u}, nil
}

// FromString is Parse for an in-memory HTML string.
func FromString(htmlText, rawURL string) (*Page, error) {
	return Parse(strings.NewReader(htmlText), rawURL)
}

func (p *Page) Hostname() string {
	if p.URL == nil {
		return ""
	}
	return strings.ToLower(p.URL.Hostname())
}

func (p *Page) Href() string {
	if p.URL == nil {
		return ""
	}
	return p.URL.String()
}

// Title returns the trimmed text of the document's <title> element.
func (p *Page) Title() string {
	return strings.TrimSpace(p.Doc.Find("title").First().Text())
}

// Node returns the root node of the document tree.
func (p *Page) Node() *html.Node {
	if len(p.Doc.Nodes) == 0 {
		return nil
	}
	return p.Doc.Nodes[0]
}

// Clone returns a deep copy of the page. Mutating the clone never touches
// the original tree.
func (p *Page) Clone() *Page {
	cloned := p.Doc.Selection.Clone()
	doc := goquery.NewDocumentFromNode(cloned.Get(0))

	var u *url.URL
	if p.URL != nil {
		copied := *p.URL
		u = &copied
	}
	doc.Url = u

	return &Page{Doc: doc, URL: u}
}
