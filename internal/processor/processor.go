package processor

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MaxContentLength is the cap applied to extracted plain text, in characters.
const MaxContentLength = 2500

// Content is the formatter input: an extracted article flattened to the
// fields output rendering needs.
type Content struct {
	Title       string
	HTML        string
	TextContent string
	Author      string
	Excerpt     string
	Metadata    map[string]string
}

type ContentProcessor struct {
}

func NewContentProcessor() *ContentProcessor {
	return &ContentProcessor{}
}

// ElementText returns the visible text of sel with script, style and
// noscript descendants removed. sel itself is left untouched.
func (cp *ContentProcessor) ElementText(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	clone := sel.First().Clone()
	clone.Find("script, style, noscript").Remove()
	return clone.Text()
}

// CleanText collapses whitespace runs into single spaces and truncates the
// result to max characters. A non-positive max disables truncation.
func (cp *ContentProcessor) CleanText(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	return Truncate(text, max)
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// Length counts characters, not bytes.
func Length(s string) int {
	return utf8.RuneCountInString(s)
}

// FindMetaContent returns the first non-empty content attribute of a meta
// tag whose name or property matches one of properties, in order.
func FindMetaContent(doc *goquery.Document, properties ...string) string {
	for _, prop := range properties {
		if content := doc.Find(fmt.Sprintf("meta[name='%s']", prop)).AttrOr("content", ""); strings.TrimSpace(content) != "" {
			return strings.TrimSpace(content)
		}
		if content := doc.Find(fmt.Sprintf("meta[property='%s']", prop)).AttrOr("content", ""); strings.TrimSpace(content) != "" {
			return strings.TrimSpace(content)
		}
	}
	return ""
}

func (cp *ContentProcessor) ToText(content *Content, lineWidth int) string {
	var text string
	if content.TextContent != "" {
		text = content.TextContent
	} else {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(content.HTML))
		if err != nil {
			return content.HTML
		}
		text = doc.Text()
	}

	text = cp.CleanNewlines(text)
	return cp.wrapText(text, lineWidth)
}

func (cp *ContentProcessor) ToMarkdown(content *Content, includeMetadata bool, preserveLinks bool) string {
	var md strings.Builder

	if content.Title != "" {
		md.WriteString(fmt.Sprintf("# %s\n\n", content.Title))
	}

	if includeMetadata {
		if content.Author != "" {
			md.WriteString(fmt.Sprintf("**Author:** %s\n\n", content.Author))
		}
		if content.Excerpt != "" {
			md.WriteString(fmt.Sprintf("**Summary:** %s\n\n", content.Excerpt))
		}

		keys := make([]string, 0, len(content.Metadata))
		for key := range content.Metadata {
			if key != "title" {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		caser := cases.Title(language.Und)
		for _, key := range keys {
			md.WriteString(fmt.Sprintf("**%s:** %s\n\n", caser.String(key), content.Metadata[key]))
		}
	}

	// Only the custom-rule and basic tiers leave HTML empty.
	if strings.TrimSpace(content.HTML) == "" {
		md.WriteString(cp.CleanNewlines(content.TextContent))
		return md.String()
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content.HTML))
	if err != nil {
		md.WriteString(content.TextContent)
		return md.String()
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}

	before := md.Len()
	cp.convertToMarkdown(body, &md, preserveLinks)

	if strings.TrimSpace(md.String()[before:]) == "" {
		md.WriteString(cp.CleanNewlines(content.TextContent))
	}

	return md.String()
}

func (cp *ContentProcessor) convertToMarkdown(sel *goquery.Selection, md *strings.Builder, preserveLinks bool) {
	sel.Contents().Each(func(i int, s *goquery.Selection) {
		node := s.Get(0)
		switch node.Type {
		case html.ElementNode:
			tagName := strings.ToLower(node.Data)

			switch tagName {
			case "script", "style", "noscript":
			case "h1", "h2", "h3", "h4", "h5", "h6":
				level := int(tagName[1] - '0')
				md.WriteString(fmt.Sprintf("%s %s\n\n", strings.Repeat("#", level), strings.TrimSpace(s.Text())))
			case "p":
				var pContent strings.Builder
				cp.convertToMarkdown(s, &pContent, preserveLinks)
				if text := strings.TrimSpace(pContent.String()); text != "" {
					md.WriteString(text + "\n\n")
				}
			case "br":
				md.WriteString("\n")
			case "a":
				href, ok := s.Attr("href")
				if preserveLinks && ok && href != "" {
					md.WriteString(fmt.Sprintf("[%s](%s)", s.Text(), href))
				} else {
					md.WriteString(s.Text())
				}
			case "strong", "b":
				md.WriteString(fmt.Sprintf("**%s**", s.Text()))
			case "em", "i":
				md.WriteString(fmt.Sprintf("*%s*", s.Text()))
			case "code":
				md.WriteString(fmt.Sprintf("`%s`", s.Text()))
			case "pre":
				md.WriteString(fmt.Sprintf("```\n%s\n```\n\n", s.Text()))
			case "blockquote":
				for _, line := range strings.Split(s.Text(), "\n") {
					if line = strings.TrimSpace(line); line != "" {
						md.WriteString("> " + line + "\n")
					}
				}
				md.WriteString("\n")
			case "ul", "ol":
				cp.convertList(s, md, tagName == "ol", 0)
			case "img":
				if src, ok := s.Attr("src"); ok {
					md.WriteString(fmt.Sprintf("![%s](%s)\n\n", s.AttrOr("alt", ""), src))
				}
			default:
				cp.convertToMarkdown(s, md, preserveLinks)
			}
		case html.TextNode:
			if text := strings.TrimSpace(node.Data); text != "" {
				md.WriteString(text)
			}
		}
	})
}

func (cp *ContentProcessor) convertList(sel *goquery.Selection, md *strings.Builder, ordered bool, depth int) {
	prefix := strings.Repeat("  ", depth)

	sel.ChildrenFiltered("li").Each(func(i int, s *goquery.Selection) {
		marker := "- "
		if ordered {
			marker = fmt.Sprintf("%d. ", i+1)
		}

		item := s.Clone()
		item.Find("ul, ol").Remove()
		md.WriteString(fmt.Sprintf("%s%s%s\n", prefix, marker, strings.TrimSpace(item.Text())))

		s.ChildrenFiltered("ul, ol").Each(func(j int, nested *goquery.Selection) {
			cp.convertList(nested, md, nested.Is("ol"), depth+1)
		})
	})

	if depth == 0 {
		md.WriteString("\n")
	}
}

func (cp *ContentProcessor) wrapText(text string, lineWidth int) string {
	if lineWidth <= 0 {
		return text
	}

	var result strings.Builder
	for i, paragraph := range strings.Split(text, "\n\n") {
		if i > 0 {
			result.WriteString("\n\n")
		}

		words := strings.Fields(paragraph)
		if len(words) == 0 {
			continue
		}

		currentLine := words[0]
		for _, word := range words[1:] {
			if Length(currentLine)+1+Length(word) <= lineWidth {
				currentLine += " " + word
			} else {
				result.WriteString(currentLine + "\n")
				currentLine = word
			}
		}
		result.WriteString(currentLine)
	}

	return result.String()
}

// CleanNewlines joins lines that were broken mid-sentence while keeping
// paragraph breaks and list items.
func (cp *ContentProcessor) CleanNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var paragraphs []string
	for _, paragraph := range strings.Split(text, "\n\n") {
		var lines []string

		for _, line := range strings.Split(paragraph, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			if len(lines) > 0 {
				prev := lines[len(lines)-1]
				if !endsSentence(prev) && !startsSentence(line) {
					lines[len(lines)-1] = prev + " " + line
					continue
				}
			}

			lines = append(lines, line)
		}

		if len(lines) > 0 {
			paragraphs = append(paragraphs, strings.Join(lines, "\n"))
		}
	}

	result := strings.Join(paragraphs, "\n\n")
	for strings.Contains(result, "  ") {
		result = strings.ReplaceAll(result, "  ", " ")
	}

	return strings.TrimSpace(result)
}

func endsSentence(line string) bool {
	for _, suffix := range []string{".", "!", "?", ":", ";", "。", "！", "？"} {
		if strings.HasSuffix(line, suffix) {
			return true
		}
	}
	return false
}

func startsSentence(line string) bool {
	if line == "" {
		return false
	}
	c := line[0]
	return c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		strings.HasPrefix(line, "- ") ||
		strings.HasPrefix(line, "* ") ||
		strings.HasPrefix(line, "• ")
}
