package extractor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/alanhsu0429/hottea/internal/document"
	"github.com/alanhsu0429/hottea/internal/processor"
)

// Extractor runs the extraction tiers in trust order: readability first,
// then site rules. Structured data is read up front and enriches whichever
// tier succeeds.
type Extractor struct {
	readability *ReadabilityAdapter
	rules       *SiteRuleMatcher
	text        *processor.ContentProcessor
}

// New builds an Extractor. A nil engine disables the readability tier.
func New(engine Engine, rules RuleTable) *Extractor {
	var adapter *ReadabilityAdapter
	if engine != nil {
		adapter = NewReadabilityAdapter(engine)
	}
	return &Extractor{
		readability: adapter,
		rules:       NewSiteRuleMatcher(rules),
		text:        processor.NewContentProcessor(),
	}
}

// Extract returns the best article found on page, or nil when no tier
// produced content. It never panics and never reports an error: failures
// are logged and absorbed.
func (e *Extractor) Extract(ctx context.Context, page *document.Page) (article *Article) {
	if page == nil || page.Doc == nil {
		return nil
	}

	logger := log.With().Str("url", page.Href()).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Warn().Str("panic", fmt.Sprint(r)).Msg("extraction aborted")
			article = nil
		}
	}()

	structured := ReadStructuredData(page)
	if structured != nil {
		logger.Debug().Str("title", structured.Title).Msg("structured data found")
	}

	if ctx.Err() != nil {
		return nil
	}

	result, err := e.readability.Extract(page)
	if err == nil {
		article = e.merge(page, result, structured)
		if article != nil {
			logger.Debug().Str("source", article.Source).Str("confidence", string(article.Confidence)).Msg("readability tier succeeded")
			return article
		}
	} else {
		logger.Debug().Err(err).Str("tier", "readability").Msg("tier rejected")
	}

	if ctx.Err() != nil {
		return nil
	}

	custom, err := e.rules.Match(page, structured)
	if err != nil {
		logger.Debug().Err(err).Str("tier", "site-rule").Msg("tier rejected")
		return nil
	}

	logger.Debug().Str("source", custom.Source).Msg("site rule tier succeeded")
	return &Article{
		Title:      custom.Title,
		Content:    custom.Content,
		Length:     processor.Length(custom.Content),
		Source:     custom.Source,
		Confidence: custom.Confidence,
		URL:        page.Href(),
	}
}

func (e *Extractor) merge(page *document.Page, rd *ReadabilityResult, structured *StructuredData) *Article {
	var meta StructuredData
	if structured != nil {
		meta = *structured
	}

	content := e.text.CleanText(rd.TextContent, processor.MaxContentLength)
	if content == "" {
		return nil
	}

	length := rd.Length
	if length <= 0 {
		length = processor.Length(rd.TextContent)
	}

	score := Score(length, structured != nil, rd.Title != "" && rd.Byline != "")

	return &Article{
		Title:         firstNonEmpty(rd.Title, meta.Title, PageTitle(page)),
		Content:       content,
		HTMLContent:   rd.Content,
		Author:        firstNonEmpty(rd.Byline, meta.Author),
		PublishedTime: firstNonEmpty(rd.PublishedTime, meta.PublishedTime),
		Excerpt:       firstNonEmpty(rd.Excerpt, meta.Description),
		Length:        length,
		SiteName:      rd.SiteName,
		Lang:          rd.Lang,
		Source:        SourceReadability,
		Confidence:    ConfidenceFor(score),
		URL:           page.Href(),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
