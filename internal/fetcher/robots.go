package fetcher

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/temoto/robotstxt"
)

// RobotsAgent is the product token matched against robots.txt groups.
const RobotsAgent = "hottea"

// RobotsChecker caches robots.txt per origin. Unreachable or unparsable
// files are cached too and allow every path.
type RobotsChecker struct {
	client *http.Client
	mu     sync.RWMutex
	cache  map[string]*robotstxt.RobotsData
}

func NewRobotsChecker(client *http.Client) *RobotsChecker {
	return &RobotsChecker{client: client, cache: make(map[string]*robotstxt.RobotsData)}
}

// Allowed reports whether u may be fetched. Unreachable robots.txt allows.
func (rc *RobotsChecker) Allowed(ctx context.Context, u *url.URL) bool {
	data := rc.load(ctx, u)
	if data == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.TestAgent(path, RobotsAgent)
}

func (rc *RobotsChecker) load(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	origin := u.Scheme + "://" + u.Host

	rc.mu.RLock()
	data, ok := rc.cache[origin]
	rc.mu.RUnlock()
	if ok {
		return data
	}

	// A failed lookup is remembered as nil so the origin is not asked again,
	// unless the caller gave up before the lookup finished.
	data = rc.fetch(ctx, origin)
	if data == nil && ctx.Err() != nil {
		return nil
	}

	rc.mu.Lock()
	rc.cache[origin] = data
	rc.mu.Unlock()
	return data
}

func (rc *RobotsChecker) fetch(ctx context.Context, origin string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	resp, err := rc.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("origin", origin).Msg("robots.txt unavailable")
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		log.Debug().Err(err).Str("origin", origin).Msg("robots.txt unparsable")
		return nil
	}
	return data
}
