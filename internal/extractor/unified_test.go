package extractor

import (
	"context"
	"strings"
	"testing"

	"github.com/alanhsu0429/hottea/internal/processor"
)

func TestScore(t *testing.T) {
	tests := []struct {
		length      int
		structured  bool
		titleByline bool
		wantScore   int
		want        Confidence
	}{
		{100, false, false, 1, ConfidenceLow},
		{500, false, false, 1, ConfidenceLow},
		{501, false, false, 2, ConfidenceLow},
		{1000, false, false, 2, ConfidenceLow},
		{1001, false, false, 3, ConfidenceMedium},
		{100, true, false, 3, ConfidenceMedium},
		{501, true, false, 4, ConfidenceMedium},
		{1001, true, false, 5, ConfidenceHigh},
		{501, true, true, 5, ConfidenceHigh},
		{1001, true, true, 6, ConfidenceHigh},
		{100, false, true, 2, ConfidenceLow},
		{1001, false, true, 4, ConfidenceMedium},
	}

	for _, tt := range tests {
		score := Score(tt.length, tt.structured, tt.titleByline)
		if score != tt.wantScore {
			t.Errorf("Score(%d, %v, %v) = %d, want %d", tt.length, tt.structured, tt.titleByline, score, tt.wantScore)
		}
		if got := ConfidenceFor(score); got != tt.want {
			t.Errorf("ConfidenceFor(%d) = %q, want %q", score, got, tt.want)
		}
	}
}

func TestScore_MonotonicInLength(t *testing.T) {
	for _, structured := range []bool{false, true} {
		for _, titleByline := range []bool{false, true} {
			if Score(1200, structured, titleByline) < Score(800, structured, titleByline) {
				t.Errorf("longer content scored lower (structured=%v, titleByline=%v)", structured, titleByline)
			}
		}
	}
}

const tieredPage = `<html><head><title>Budget Passes | Daily Planet</title>
<script type="application/ld+json">{"@type":"NewsArticle","headline":"LD Headline","author":{"name":"LD Author"},"datePublished":"2024-01-15","description":"LD description"}</script>
</head><body>
<h1>Heading Title</h1>
<div class="news-content">` + "{{body}}" + `</div>
</body></html>`

func tieredHTML() string {
	return strings.Replace(tieredPage, "{{body}}", prose(400), 1)
}

func TestExtract_ReadabilityOutranksSiteRules(t *testing.T) {
	engine := &fakeEngine{result: &ReadabilityResult{
		Title:       "Readability Title",
		Byline:      "Jane Reporter",
		Content:     "<p>html</p>",
		TextContent: prose(1200),
		Length:      1200,
	}}
	page := mustPage(t, tieredHTML(), "https://www.cnyes.com/news/1")

	article := New(engine, DefaultRules()).Extract(context.Background(), page)
	if article == nil {
		t.Fatal("expected an article")
	}
	if article.Source != SourceReadability {
		t.Errorf("Source = %q, want %q", article.Source, SourceReadability)
	}
	if article.Confidence != ConfidenceHigh {
		t.Errorf("Confidence = %q, want high (3 length + 2 structured + 1 title/byline)", article.Confidence)
	}
	if article.Title != "Readability Title" || article.Author != "Jane Reporter" {
		t.Errorf("unexpected title/author: %q / %q", article.Title, article.Author)
	}
	if article.HTMLContent != "<p>html</p>" {
		t.Errorf("HTMLContent = %q", article.HTMLContent)
	}
	if article.PublishedTime != "2024-01-15" || article.Excerpt != "LD description" {
		t.Errorf("structured enrichment missing: %+v", article)
	}
	if article.URL != "https://www.cnyes.com/news/1" {
		t.Errorf("URL = %q", article.URL)
	}
}

func TestExtract_MergeFallbacks(t *testing.T) {
	engine := &fakeEngine{result: &ReadabilityResult{TextContent: prose(600), Length: 600}}

	page := mustPage(t, tieredHTML(), "https://example.com/a")
	article := New(engine, nil).Extract(context.Background(), page)
	if article == nil {
		t.Fatal("expected an article")
	}
	if article.Title != "LD Headline" {
		t.Errorf("Title = %q, want structured title", article.Title)
	}
	if article.Author != "LD Author" {
		t.Errorf("Author = %q, want structured author", article.Author)
	}
	// 2 length + 2 structured, no readability title/byline.
	if article.Confidence != ConfidenceMedium {
		t.Errorf("Confidence = %q", article.Confidence)
	}

	bare := mustPage(t, `<html><head><title>Doc Title - Site</title></head><body><p>x</p></body></html>`, "https://example.com/b")
	article = New(engine, nil).Extract(context.Background(), bare)
	if article == nil {
		t.Fatal("expected an article")
	}
	if article.Title != "Doc Title" {
		t.Errorf("Title = %q, want page-title heuristic", article.Title)
	}
	if article.Confidence != ConfidenceLow {
		t.Errorf("Confidence = %q, want low", article.Confidence)
	}
}

func TestExtract_FallsBackToSiteRule(t *testing.T) {
	engine := &fakeEngine{result: &ReadabilityResult{TextContent: "too short"}}
	page := mustPage(t, tieredHTML(), "https://m.cnyes.com/news/1")

	article := New(engine, DefaultRules()).Extract(context.Background(), page)
	if article == nil {
		t.Fatal("expected site rule article")
	}
	if article.Source != "Custom rule: cnyes.com" || article.Confidence != ConfidenceMedium {
		t.Errorf("got %q / %q", article.Source, article.Confidence)
	}
	if article.Title != "Heading Title" {
		t.Errorf("Title = %q", article.Title)
	}
	if article.Length != processor.Length(article.Content) {
		t.Errorf("Length = %d, content has %d", article.Length, processor.Length(article.Content))
	}
	if article.HTMLContent != "" || article.Author != "" {
		t.Errorf("site rule result should not carry readability fields: %+v", article)
	}
}

func TestExtract_PanickingEngineFallsThrough(t *testing.T) {
	page := mustPage(t, tieredHTML(), "https://cnyes.com/news/1")
	article := New(&fakeEngine{panicMsg: "engine exploded"}, DefaultRules()).Extract(context.Background(), page)
	if article == nil || article.Source != "Custom rule: cnyes.com" {
		t.Fatalf("expected site rule fallback, got %+v", article)
	}
}

func TestExtract_NilEngine(t *testing.T) {
	page := mustPage(t, tieredHTML(), "https://cnyes.com/news/1")
	article := New(nil, DefaultRules()).Extract(context.Background(), page)
	if article == nil || article.Source != "Custom rule: cnyes.com" {
		t.Fatalf("expected site rule result, got %+v", article)
	}
}

func TestExtract_AllTiersFail(t *testing.T) {
	engine := &fakeEngine{result: &ReadabilityResult{TextContent: "short"}}
	page := mustPage(t, `<html><body><div>tiny</div></body></html>`, "https://example.com/")

	if article := New(engine, DefaultRules()).Extract(context.Background(), page); article != nil {
		t.Errorf("expected nil, got %+v", article)
	}
}

func TestExtract_NilPage(t *testing.T) {
	if article := New(nil, nil).Extract(context.Background(), nil); article != nil {
		t.Errorf("expected nil, got %+v", article)
	}
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := &fakeEngine{result: &ReadabilityResult{TextContent: prose(600)}}
	if article := New(engine, DefaultRules()).Extract(ctx, mustPage(t, tieredHTML(), "https://cnyes.com/")); article != nil {
		t.Errorf("expected nil on cancelled context, got %+v", article)
	}
	if engine.calls != 0 {
		t.Errorf("engine should not run after cancellation, got %d calls", engine.calls)
	}
}

func TestExtract_ContentCapped(t *testing.T) {
	engine := &fakeEngine{result: &ReadabilityResult{TextContent: prose(6000), Length: 6000}}
	article := New(engine, nil).Extract(context.Background(), mustPage(t, tieredHTML(), "https://example.com/"))
	if article == nil {
		t.Fatal("expected an article")
	}
	if n := processor.Length(article.Content); n == 0 || n > processor.MaxContentLength {
		t.Errorf("content length %d out of bounds", n)
	}
	if article.Length != 6000 {
		t.Errorf("Length should report the full readability length, got %d", article.Length)
	}
}

func TestExtract_RealEngine(t *testing.T) {
	ex := New(NewGoReadability(), DefaultRules())

	first := ex.Extract(context.Background(), mustPage(t, realArticlePage, "https://news.example.com/2024/budget"))
	if first == nil {
		t.Fatal("expected an article")
	}
	if first.Source != SourceReadability {
		t.Errorf("Source = %q", first.Source)
	}
	if n := processor.Length(first.Content); n == 0 || n > processor.MaxContentLength {
		t.Errorf("content length %d out of bounds", n)
	}

	second := ex.Extract(context.Background(), mustPage(t, realArticlePage, "https://news.example.com/2024/budget"))
	if second == nil {
		t.Fatal("expected an article on second run")
	}
	if first.Title != second.Title || first.Content != second.Content || first.Confidence != second.Confidence {
		t.Error("extraction is not deterministic")
	}
}

func TestExtract_SamePageTwice(t *testing.T) {
	page := mustPage(t, realArticlePage, "https://news.example.com/2024/budget")
	ex := New(NewGoReadability(), nil)

	first := ex.Extract(context.Background(), page)
	second := ex.Extract(context.Background(), page)
	if first == nil || second == nil {
		t.Fatal("expected articles")
	}
	if first.Title != second.Title || first.Content != second.Content || first.Confidence != second.Confidence {
		t.Error("extracting the same page twice changed the result")
	}
	if page.Doc.Find("#onetrust-consent-sdk").Length() != 1 {
		t.Error("extraction mutated the live page")
	}
}
