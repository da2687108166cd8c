package extractor

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/alanhsu0429/hottea/internal/document"
	"github.com/alanhsu0429/hottea/internal/processor"
)

const (
	minRuleContent    = 100
	minGenericContent = 200
	minRuleTitle      = 5
	maxRuleTitle      = 200
)

var genericContentSelectors = []string{
	"article",
	"main",
	".content",
	".article-content",
	".post-content",
}

// SiteRule lists CSS selectors tried in order for one domain.
type SiteRule struct {
	ContentSelectors []string
	TitleSelectors   []string
}

// RuleTable maps a normalized domain to its rule. It is read-only once built.
type RuleTable map[string]SiteRule

// ParseRule builds a SiteRule from comma-separated selector lists.
func ParseRule(content, title string) SiteRule {
	return SiteRule{
		ContentSelectors: splitSelectors(content),
		TitleSelectors:   splitSelectors(title),
	}
}

func splitSelectors(list string) []string {
	var selectors []string
	for _, sel := range strings.Split(list, ",") {
		if sel = strings.TrimSpace(sel); sel != "" {
			selectors = append(selectors, sel)
		}
	}
	return selectors
}

func DefaultRules() RuleTable {
	return RuleTable{
		"cnyes.com": ParseRule(".news-content, .article-content, .content", "h1, .news-title"),
		"yahoo.com": ParseRule(".atoms, article, .content", "h1, .title"),
	}
}

// Merge returns a new table with overrides replacing same-domain entries.
func (t RuleTable) Merge(overrides RuleTable) RuleTable {
	merged := make(RuleTable, len(t)+len(overrides))
	for domain, rule := range t {
		merged[NormalizeDomain(domain)] = rule
	}
	for domain, rule := range overrides {
		merged[NormalizeDomain(domain)] = rule
	}
	return merged
}

// NormalizeDomain lower-cases host and strips a leading "www." or "m.".
func NormalizeDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if strings.HasPrefix(host, "www.") {
		return host[len("www."):]
	}
	if strings.HasPrefix(host, "m.") {
		return host[len("m."):]
	}
	return host
}

// lookup finds the rule for domain, falling back to parent domains so
// that regional subdomains share their publisher's rule.
func (t RuleTable) lookup(domain string) (string, SiteRule, bool) {
	for d := domain; d != ""; {
		if rule, ok := t[d]; ok {
			return d, rule, true
		}
		i := strings.IndexByte(d, '.')
		if i < 0 || !strings.Contains(d[i+1:], ".") {
			break
		}
		d = d[i+1:]
	}
	return "", SiteRule{}, false
}

// CustomRuleResult is the output of the site-rule tier.
type CustomRuleResult struct {
	Title      string
	Content    string
	Source     string
	Confidence Confidence
}

type SiteRuleMatcher struct {
	rules RuleTable
	text  *processor.ContentProcessor
}

func NewSiteRuleMatcher(rules RuleTable) *SiteRuleMatcher {
	if rules == nil {
		rules = RuleTable{}
	}
	return &SiteRuleMatcher{
		rules: rules,
		text:  processor.NewContentProcessor(),
	}
}

// Match applies the page's domain rule, then the generic selectors. The
// structured data, when present, only supplies a fallback title.
func (m *SiteRuleMatcher) Match(page *document.Page, structured *StructuredData) (*CustomRuleResult, error) {
	var meta StructuredData
	if structured != nil {
		meta = *structured
	}

	domain := NormalizeDomain(page.Hostname())
	if key, rule, ok := m.rules.lookup(domain); ok {
		if content, selector := m.firstContent(page, rule.ContentSelectors, minRuleContent); content != "" {
			log.Debug().Str("domain", key).Str("selector", selector).Msg("site rule matched")

			title := m.ruleTitle(page, rule.TitleSelectors)
			if title == "" {
				title = meta.Title
			}
			if title == "" {
				title = PageTitle(page)
			}

			return &CustomRuleResult{
				Title:      title,
				Content:    m.text.CleanText(content, processor.MaxContentLength),
				Source:     CustomRuleSource(key),
				Confidence: ConfidenceMedium,
			}, nil
		}
		log.Debug().Str("domain", key).Msg("site rule selectors missed, trying generic selectors")
	}

	content, selector := m.firstContent(page, genericContentSelectors, minGenericContent)
	if content == "" {
		return nil, ErrSelectorMiss
	}
	log.Debug().Str("selector", selector).Msg("generic selector matched")

	title := meta.Title
	if title == "" {
		title = PageTitle(page)
	}

	return &CustomRuleResult{
		Title:      title,
		Content:    m.text.CleanText(content, processor.MaxContentLength),
		Source:     SourceBasic,
		Confidence: ConfidenceLow,
	}, nil
}

// firstContent returns the text of the first selector whose first matching
// element has more than min characters.
func (m *SiteRuleMatcher) firstContent(page *document.Page, selectors []string, min int) (string, string) {
	for _, selector := range selectors {
		el := page.Doc.Find(selector).First()
		if el.Length() == 0 {
			continue
		}
		text := strings.TrimSpace(m.text.ElementText(el))
		if processor.Length(text) > min {
			return text, selector
		}
	}
	return "", ""
}

func (m *SiteRuleMatcher) ruleTitle(page *document.Page, selectors []string) string {
	for _, selector := range selectors {
		el := page.Doc.Find(selector).First()
		if el.Length() == 0 {
			continue
		}
		title := m.text.CleanText(el.Text(), 0)
		if n := processor.Length(title); n > minRuleTitle && n < maxRuleTitle {
			return title
		}
	}
	return ""
}

// PageTitle is the generic title heuristic: the first <h1>, else the
// document title cut at the first "|" and then the first "-".
func PageTitle(page *document.Page) string {
	if h1 := strings.Join(strings.Fields(page.Doc.Find("h1").First().Text()), " "); h1 != "" {
		return h1
	}

	title := page.Title()
	if i := strings.Index(title, "|"); i >= 0 {
		title = title[:i]
	}
	if i := strings.Index(title, "-"); i >= 0 {
		title = title[:i]
	}
	if title = strings.TrimSpace(title); title != "" {
		return title
	}
	return UntitledTitle
}
