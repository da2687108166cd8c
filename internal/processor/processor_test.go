package processor

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestCleanText(t *testing.T) {
	cp := NewContentProcessor()

	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"collapses whitespace", "  a \n\n b\t\tc  ", 0, "a b c"},
		{"truncates", "abcdef", 3, "abc"},
		{"counts runes", "新聞內容很長", 4, "新聞內容"},
		{"short input untouched", "abc", 10, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cp.CleanText(tt.in, tt.max); got != tt.want {
				t.Errorf("CleanText(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestCleanText_MaxContentLength(t *testing.T) {
	cp := NewContentProcessor()
	long := strings.Repeat("word ", 1000)

	got := cp.CleanText(long, MaxContentLength)
	if Length(got) != MaxContentLength {
		t.Errorf("expected %d characters, got %d", MaxContentLength, Length(got))
	}
}

func TestElementText_StripsScripts(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div id="c">Visible<script>var hidden = 1;</script><style>.x{}</style><noscript>nojs</noscript> text</div>`))
	if err != nil {
		t.Fatal(err)
	}

	cp := NewContentProcessor()
	sel := doc.Find("#c")
	got := cp.ElementText(sel)

	if strings.Contains(got, "hidden") || strings.Contains(got, ".x{}") || strings.Contains(got, "nojs") {
		t.Errorf("script/style/noscript text leaked: %q", got)
	}
	if !strings.Contains(got, "Visible") || !strings.Contains(got, "text") {
		t.Errorf("visible text missing: %q", got)
	}
	if doc.Find("#c script").Length() != 1 {
		t.Error("ElementText must not mutate the source selection")
	}
}

func TestElementText_Empty(t *testing.T) {
	cp := NewContentProcessor()
	if got := cp.ElementText(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestFindMetaContent(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><head>
<meta name="author" content="  Jane Doe ">
<meta property="og:title" content="OG Title">
<meta name="description" content="">
</head></html>`))
	if err != nil {
		t.Fatal(err)
	}

	if got := FindMetaContent(doc, "author"); got != "Jane Doe" {
		t.Errorf("author = %q", got)
	}
	if got := FindMetaContent(doc, "og:title"); got != "OG Title" {
		t.Errorf("og:title = %q", got)
	}
	if got := FindMetaContent(doc, "description", "og:title"); got != "OG Title" {
		t.Errorf("empty description should fall through, got %q", got)
	}
	if got := FindMetaContent(doc, "missing"); got != "" {
		t.Errorf("missing = %q", got)
	}
}

func TestCleanNewlines(t *testing.T) {
	cp := NewContentProcessor()

	in := "This sentence was\nbroken in the middle.\nNext sentence.\n\n- item one\n- item two"
	got := cp.CleanNewlines(in)

	if !strings.Contains(got, "This sentence was broken in the middle.") {
		t.Errorf("broken sentence not joined: %q", got)
	}
	if !strings.Contains(got, "\n\n- item one\n- item two") {
		t.Errorf("paragraph/list structure lost: %q", got)
	}
}

func TestToMarkdown(t *testing.T) {
	cp := NewContentProcessor()
	content := &Content{
		Title:  "Headline",
		HTML:   `<div><h2>Section</h2><p>Body with <a href="https://x.test">link</a>.</p><ul><li>one</li><li>two</li></ul><script>x()</script></div>`,
		Author: "Jane",
		Metadata: map[string]string{
			"source":     "Readability+Structured",
			"confidence": "high",
		},
	}

	md := cp.ToMarkdown(content, true, true)

	for _, want := range []string{
		"# Headline",
		"**Author:** Jane",
		"**Confidence:** high",
		"**Source:** Readability+Structured",
		"## Section",
		"[link](https://x.test)",
		"- one\n- two",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "x()") {
		t.Errorf("script content leaked into markdown:\n%s", md)
	}
	if strings.Index(md, "**Confidence:**") > strings.Index(md, "**Source:**") {
		t.Error("metadata keys should be sorted")
	}
}

func TestToMarkdown_TextOnly(t *testing.T) {
	cp := NewContentProcessor()
	md := cp.ToMarkdown(&Content{Title: "T", TextContent: "Plain body."}, false, false)
	if md != "# T\n\nPlain body." {
		t.Errorf("unexpected markdown: %q", md)
	}
}

func TestToText_Wraps(t *testing.T) {
	cp := NewContentProcessor()
	got := cp.ToText(&Content{TextContent: "one two three four five"}, 9)
	for _, line := range strings.Split(got, "\n") {
		if Length(line) > 9 {
			t.Errorf("line %q exceeds width", line)
		}
	}
}
