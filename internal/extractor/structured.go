package extractor

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/alanhsu0429/hottea/internal/document"
	"github.com/alanhsu0429/hottea/internal/processor"
)

// StructuredData holds article metadata declared by the page itself.
// A field is either absent ("") or a non-empty trimmed value.
type StructuredData struct {
	Title         string `json:"title,omitempty"`
	Author        string `json:"author,omitempty"`
	PublishedTime string `json:"publishedTime,omitempty"`
	Description   string `json:"description,omitempty"`
}

func (d StructuredData) empty() bool {
	return d.Title == "" && d.Author == "" && d.PublishedTime == "" && d.Description == ""
}

// fill sets every empty field of d from the matching field of other.
func (d *StructuredData) fill(other StructuredData) {
	if d.Title == "" {
		d.Title = other.Title
	}
	if d.Author == "" {
		d.Author = other.Author
	}
	if d.PublishedTime == "" {
		d.PublishedTime = other.PublishedTime
	}
	if d.Description == "" {
		d.Description = other.Description
	}
}

// ReadStructuredData collects JSON-LD, OpenGraph and Twitter Card metadata
// with JSON-LD taking precedence over OpenGraph, and OpenGraph over Twitter.
// It returns nil when the page declares none of the fields.
func ReadStructuredData(page *document.Page) *StructuredData {
	var data StructuredData

	data.fill(readJSONLD(page.Doc))
	data.fill(StructuredData{
		Title:         processor.FindMetaContent(page.Doc, "og:title"),
		Description:   processor.FindMetaContent(page.Doc, "og:description"),
		Author:        processor.FindMetaContent(page.Doc, "og:article:author", "article:author"),
		PublishedTime: processor.FindMetaContent(page.Doc, "og:article:published_time", "article:published_time"),
	})
	data.fill(StructuredData{
		Title:       processor.FindMetaContent(page.Doc, "twitter:title"),
		Description: processor.FindMetaContent(page.Doc, "twitter:description"),
	})

	if data.empty() {
		return nil
	}
	return &data
}

func readJSONLD(doc *goquery.Document) StructuredData {
	var found StructuredData

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &payload); err != nil {
			log.Debug().Err(err).Int("block", i).Msg("skipping malformed JSON-LD block")
			return true
		}

		for _, item := range jsonLDItems(payload) {
			if !isArticleType(item["@type"]) {
				continue
			}
			found = StructuredData{
				Title:         firstString(item["headline"], item["name"]),
				Author:        authorName(item["author"]),
				PublishedTime: firstString(item["datePublished"], item["dateCreated"]),
				Description:   firstString(item["description"]),
			}
			return false
		}
		return true
	})

	return found
}

// jsonLDItems flattens a JSON-LD payload (object, array or @graph container)
// into candidate entities.
func jsonLDItems(payload any) []map[string]any {
	var items []map[string]any

	switch v := payload.(type) {
	case map[string]any:
		items = append(items, v)
		if graph, ok := v["@graph"].([]any); ok {
			for _, entry := range graph {
				if obj, ok := entry.(map[string]any); ok {
					items = append(items, obj)
				}
			}
		}
	case []any:
		for _, entry := range v {
			items = append(items, jsonLDItems(entry)...)
		}
	}

	return items
}

func isArticleType(v any) bool {
	switch t := v.(type) {
	case string:
		return t == "NewsArticle" || t == "Article"
	case []any:
		for _, entry := range t {
			if isArticleType(entry) {
				return true
			}
		}
	}
	return false
}

func authorName(v any) string {
	switch a := v.(type) {
	case string:
		return strings.TrimSpace(a)
	case map[string]any:
		return firstString(a["name"])
	case []any:
		for _, entry := range a {
			if name := authorName(entry); name != "" {
				return name
			}
		}
	}
	return ""
}

func firstString(values ...any) string {
	for _, v := range values {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
