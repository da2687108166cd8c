// Package browser reads cookies from locally installed browsers so fetches
// can reuse a logged-in session.
package browser

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // register every browser store
	"github.com/rs/zerolog/log"
)

type BrowserType string

const (
	BrowserNone    BrowserType = ""
	BrowserAuto    BrowserType = "auto"
	BrowserChrome  BrowserType = "chrome"
	BrowserFirefox BrowserType = "firefox"
	BrowserSafari  BrowserType = "safari"
	BrowserZen     BrowserType = "zen"
)

// autoOrder is the preference order when no browser is named.
var autoOrder = []BrowserType{BrowserChrome, BrowserFirefox, BrowserZen, BrowserSafari}

// ParseBrowserType validates a configured browser name.
func ParseBrowserType(name string) (BrowserType, error) {
	switch t := BrowserType(strings.ToLower(strings.TrimSpace(name))); t {
	case BrowserNone, BrowserAuto, BrowserChrome, BrowserFirefox, BrowserSafari, BrowserZen:
		return t, nil
	default:
		return "", fmt.Errorf("unknown browser %q", name)
	}
}

type CookieExtractor struct {
	browserType BrowserType
	traverse    func(context.Context) iter.Seq2[*kooky.Cookie, error]
	now         func() time.Time
}

func NewCookieExtractor(browserType BrowserType) *CookieExtractor {
	return &CookieExtractor{
		browserType: browserType,
		traverse: func(ctx context.Context) iter.Seq2[*kooky.Cookie, error] {
			return iter.Seq2[*kooky.Cookie, error](kooky.TraverseCookies(ctx))
		},
		now: time.Now,
	}
}

// ExtractCookies returns the unexpired cookies a browser holds for targetURL's
// host. With BrowserAuto the first browser in preference order that has any
// matching cookie wins. BrowserNone returns nothing.
func (ce *CookieExtractor) ExtractCookies(ctx context.Context, targetURL string) ([]*http.Cookie, error) {
	if ce.browserType == BrowserNone {
		return nil, nil
	}
	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	host := parsedURL.Hostname()

	byBrowser := make(map[BrowserType][]*http.Cookie)
	now := ce.now()
	for cookie, err := range ce.traverse(ctx) {
		if err != nil {
			// Locked or unreadable stores are common; keep going.
			log.Debug().Err(err).Msg("skipping unreadable cookie store")
			continue
		}
		if cookie == nil || !matchesDomain(cookie.Domain, host) {
			continue
		}
		if !cookie.Expires.IsZero() && cookie.Expires.Before(now) {
			continue
		}
		bt := classify(cookie.Browser)
		if bt == BrowserNone {
			continue
		}
		c := cookie.Cookie
		byBrowser[bt] = append(byBrowser[bt], &c)
	}

	if ce.browserType != BrowserAuto {
		return byBrowser[ce.browserType], nil
	}
	for _, bt := range autoOrder {
		if cookies := byBrowser[bt]; len(cookies) > 0 {
			log.Debug().Str("browser", string(bt)).Int("count", len(cookies)).Msg("using browser cookies")
			return cookies, nil
		}
	}
	return nil, nil
}

// classify maps a kooky store to a BrowserType. Zen is a Firefox fork and is
// recognised by its profile path.
func classify(info kooky.BrowserInfo) BrowserType {
	if info == nil {
		return BrowserNone
	}
	name := strings.ToLower(info.Browser())
	path := strings.ToLower(info.FilePath())

	switch {
	case strings.Contains(name, "zen") || (strings.Contains(name, "firefox") && strings.Contains(path, "zen")):
		return BrowserZen
	case strings.Contains(name, "firefox"):
		return BrowserFirefox
	case strings.Contains(name, "chrome") || strings.Contains(name, "chromium"):
		return BrowserChrome
	case strings.Contains(name, "safari"):
		return BrowserSafari
	}
	return BrowserNone
}

func matchesDomain(cookieDomain, targetDomain string) bool {
	cookieDomain = strings.ToLower(strings.TrimPrefix(cookieDomain, "."))
	targetDomain = strings.ToLower(targetDomain)
	if cookieDomain == "" || targetDomain == "" {
		return false
	}
	return cookieDomain == targetDomain || strings.HasSuffix(targetDomain, "."+cookieDomain)
}
