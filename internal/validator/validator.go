// Package validator flags extracted text that is not article content:
// consent banners, privacy policies and paywall prompts.
package validator

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// IssueType identifies a class of false-positive content.
type IssueType string

const (
	CookieNotice  IssueType = "COOKIE_NOTICE"
	PrivacyPolicy IssueType = "PRIVACY_POLICY"
	Paywall       IssueType = "PAYWALL"
	NoContent     IssueType = "NO_CONTENT"
)

// Issue describes why extracted content should not be accepted.
type Issue struct {
	Type    IssueType `json:"type"`
	Details string    `json:"details"`
	Site    string    `json:"site,omitempty"`
}

func (i *Issue) Error() string {
	return string(i.Type) + ": " + i.Details
}

const (
	cookieWindow       = 500
	privacyWindow      = 200
	minCookieMentions  = 5
	consentRequiredMsg = "Page shows cookie consent instead of article content"
)

var strongCookieIndicators = []string{
	"this cookie notice",
	"cookie policy",
	"we use cookies",
	"this website uses cookies",
	"by continuing to use this site",
	"nbcuniversal and its affiliates",
}

var paywallIndicators = []string{
	"subscribe to continue reading",
	"become a member to read",
	"this article is for subscribers only",
	"sign in to continue reading",
}

// Bylines are matched case-sensitively so banner prose such as
// "by continuing to use" is not mistaken for an author credit.
var (
	newsMarkers = regexp.MustCompile(`(?i:published|updated|reported)`)
	bylineRe    = regexp.MustCompile(`\b[Bb]y [A-Z][a-z]+ [A-Z][a-z]+`)
)

// consentHints are publisher-specific explanations for cookie walls.
var consentHints = map[string]string{
	"cnbc.com": "CNBC requires cookie consent before showing article content",
}

var messageKeys = map[IssueType]string{
	CookieNotice:  "cookieNoticeDetected",
	PrivacyPolicy: "privacyPolicyDetected",
	Paywall:       "paywallDetected",
	NoContent:     "insufficientContent",
}

// MessageKey maps an issue type to its user-facing message identifier.
func MessageKey(t IssueType) string {
	if key, ok := messageKeys[t]; ok {
		return key
	}
	return "errorContentExtraction"
}

// IsCookieNotice reports whether content reads like a consent banner: a
// strong opening phrase, at least five mentions of "cookie" and no sign
// of news structure.
func IsCookieNotice(content string) bool {
	if content == "" {
		return false
	}

	start := strings.ToLower(prefix(content, cookieWindow))
	strong := false
	for _, indicator := range strongCookieIndicators {
		if strings.Contains(start, indicator) {
			strong = true
			break
		}
	}
	if !strong {
		return false
	}

	mentions := strings.Count(strings.ToLower(content), "cookie")
	hasNews := newsMarkers.MatchString(content) || bylineRe.MatchString(content)
	if mentions < minCookieMentions || hasNews {
		return false
	}

	log.Debug().
		Int("mentions", mentions).
		Str("preview", prefix(content, 100)).
		Msg("cookie notice detected")
	return true
}

// Detect runs the checks in order (no content, cookie notice, privacy
// policy, paywall) and returns the first issue found, or nil.
func Detect(content, pageURL string) *Issue {
	if strings.TrimSpace(content) == "" {
		return &Issue{Type: NoContent, Details: "Article data or content is missing"}
	}

	if IsCookieNotice(content) {
		site := hostname(pageURL)
		details := consentRequiredMsg
		for domain, hint := range consentHints {
			if site == domain || strings.HasSuffix(site, "."+domain) {
				details = hint
				break
			}
		}
		return &Issue{Type: CookieNotice, Details: details, Site: site}
	}

	lower := strings.ToLower(content)
	if strings.Contains(lower, "privacy policy") &&
		strings.Contains(lower, "personal information") &&
		strings.Contains(strings.ToLower(prefix(content, privacyWindow)), "privacy") {
		return &Issue{Type: PrivacyPolicy, Details: "Content appears to be a privacy policy page"}
	}

	for _, indicator := range paywallIndicators {
		if strings.Contains(lower, indicator) {
			return &Issue{Type: Paywall, Details: "Content is behind a paywall"}
		}
	}

	return nil
}

func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func hostname(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
