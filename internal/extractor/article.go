package extractor

import "errors"

// Confidence is a heuristic quality label derived from the extraction signals.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

const (
	SourceReadability = "Readability+Structured"
	SourceBasic       = "Basic extraction"
	customRulePrefix  = "Custom rule: "
)

// UntitledTitle is used when a page exposes neither an <h1> nor a <title>.
const UntitledTitle = "Untitled"

// CustomRuleSource returns the source tag for a site rule keyed by domain.
func CustomRuleSource(domain string) string {
	return customRulePrefix + domain
}

var (
	ErrEngineUnavailable = errors.New("readability engine unavailable")
	ErrLowQuality        = errors.New("extracted content too short")
	ErrSelectorMiss      = errors.New("no selector matched")
)

// Article is the record produced by a successful extraction. Content is
// always non-empty plain text of at most processor.MaxContentLength characters.
type Article struct {
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	HTMLContent   string     `json:"htmlContent,omitempty"`
	Author        string     `json:"author,omitempty"`
	PublishedTime string     `json:"publishedTime,omitempty"`
	Excerpt       string     `json:"excerpt,omitempty"`
	Length        int        `json:"length"`
	SiteName      string     `json:"siteName,omitempty"`
	Lang          string     `json:"lang,omitempty"`
	Source        string     `json:"source"`
	Confidence    Confidence `json:"confidence"`
	URL           string     `json:"url"`
}
