package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const articleHTML = `<html><head><title>Story</title></head><body><article><p>%s</p></article></body></html>`

func longText(n int) string {
	return strings.Repeat("word ", n/5+1)[:n]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RespectRobots = false
	cfg.RequestsPerSecond = 0
	return cfg
}

type fakeRenderer struct {
	mu    sync.Mutex
	html  string
	err   error
	calls int
	opts  FetchOptions
}

func (f *fakeRenderer) Render(ctx context.Context, rawURL string, opts FetchOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.opts = opts
	return f.html, f.err
}

func TestFetchStatic_HeadersAndCookies(t *testing.T) {
	var gotUA, gotAccept, gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		if c, err := r.Cookie("session"); err == nil {
			gotCookie = c.Value
		}
		fmt.Fprintf(w, articleHTML, longText(2000))
	}))
	defer server.Close()

	cf := NewContentFetcher(testConfig())
	result, err := cf.Fetch(context.Background(), server.URL+"/story", FetchOptions{
		Mode:      FetchModeStatic,
		UserAgent: "Custom Agent/1.0",
		Cookies:   []*http.Cookie{{Name: "session", Value: "abc123"}},
	})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if gotUA != "Custom Agent/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if !strings.HasPrefix(gotAccept, "text/html") {
		t.Errorf("Accept = %q", gotAccept)
	}
	if gotCookie != "abc123" {
		t.Errorf("cookie = %q", gotCookie)
	}
	if result.StatusCode != http.StatusOK || result.UsedJS {
		t.Errorf("unexpected result: %+v", result)
	}
	if !strings.Contains(result.HTML, "<article>") {
		t.Error("HTML missing article")
	}
}

func TestFetch_FinalURLAfterRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, articleHTML, longText(1500))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	result, err := NewContentFetcher(testConfig()).Fetch(context.Background(), server.URL+"/old", FetchOptions{Mode: FetchModeStatic})
	if err != nil {
		t.Fatal(err)
	}
	if result.URL != server.URL+"/new" {
		t.Errorf("URL = %q", result.URL)
	}
}

func TestFetch_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewContentFetcher(testConfig()).Fetch(context.Background(), server.URL, FetchOptions{Mode: FetchModeStatic})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusNotFound {
		t.Errorf("Code = %d", statusErr.Code)
	}
}

func TestFetch_InvalidURL(t *testing.T) {
	cf := NewContentFetcher(testConfig())
	for _, raw := range []string{"", "not a url", "ftp://example.com/file", "http://"} {
		if _, err := cf.Fetch(context.Background(), raw, FetchOptions{}); !errors.Is(err, ErrBadURL) {
			t.Errorf("Fetch(%q) error = %v, want ErrBadURL", raw, err)
		}
	}
}

func TestFetch_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", maxBodyBytes+1024)))
	}))
	defer server.Close()

	result, err := NewContentFetcher(testConfig()).Fetch(context.Background(), server.URL, FetchOptions{Mode: FetchModeStatic})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.HTML) != maxBodyBytes {
		t.Errorf("body length = %d, want %d", len(result.HTML), maxBodyBytes)
	}
}

func TestFetch_RobotsDisallow(t *testing.T) {
	var pageHits int
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		pageHits++
		fmt.Fprintf(w, articleHTML, longText(1500))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig()
	cfg.RespectRobots = true
	cf := NewContentFetcher(cfg)

	if _, err := cf.Fetch(context.Background(), server.URL+"/private/page", FetchOptions{Mode: FetchModeStatic}); !errors.Is(err, ErrDisallowed) {
		t.Errorf("expected ErrDisallowed, got %v", err)
	}
	if pageHits != 0 {
		t.Errorf("disallowed page was requested %d times", pageHits)
	}
	if _, err := cf.Fetch(context.Background(), server.URL+"/public", FetchOptions{Mode: FetchModeStatic}); err != nil {
		t.Errorf("allowed page failed: %v", err)
	}
}

func TestFetch_RobotsMissingAllows(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, articleHTML, longText(1500))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig()
	cfg.RespectRobots = true
	if _, err := NewContentFetcher(cfg).Fetch(context.Background(), server.URL+"/any", FetchOptions{Mode: FetchModeStatic}); err != nil {
		t.Errorf("expected fetch to be allowed, got %v", err)
	}
}

func TestFetch_AutoModeRendersShell(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="root"></div><script src="/app.js"></script></body></html>`)
	}))
	defer server.Close()

	renderer := &fakeRenderer{html: fmt.Sprintf(articleHTML, longText(1500))}
	cf := NewContentFetcher(testConfig()).WithRenderer(renderer)

	result, err := cf.Fetch(context.Background(), server.URL, FetchOptions{Mode: FetchModeAuto, BrowserAgent: "firefox"})
	if err != nil {
		t.Fatal(err)
	}
	if !result.UsedJS || renderer.calls != 1 {
		t.Errorf("expected rendered result, UsedJS=%v calls=%d", result.UsedJS, renderer.calls)
	}
	if !strings.Contains(renderer.opts.UserAgent, "Firefox") {
		t.Errorf("renderer got user agent %q", renderer.opts.UserAgent)
	}
}

func TestFetch_AutoModeKeepsStaticOnRenderFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="app"></div></body></html>`)
	}))
	defer server.Close()

	renderer := &fakeRenderer{err: errors.New("no chrome")}
	result, err := NewContentFetcher(testConfig()).WithRenderer(renderer).Fetch(context.Background(), server.URL, FetchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if result.UsedJS || !strings.Contains(result.HTML, `id="app"`) {
		t.Errorf("expected static fallback, got %+v", result)
	}
}

func TestFetch_AutoModeSkipsRenderForArticle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, articleHTML, longText(2000))
	}))
	defer server.Close()

	renderer := &fakeRenderer{}
	if _, err := NewContentFetcher(testConfig()).WithRenderer(renderer).Fetch(context.Background(), server.URL, FetchOptions{}); err != nil {
		t.Fatal(err)
	}
	if renderer.calls != 0 {
		t.Errorf("renderer should not run for a full article, ran %d times", renderer.calls)
	}
}

func TestFetch_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, articleHTML, "x")
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewContentFetcher(testConfig()).Fetch(ctx, server.URL, FetchOptions{Mode: FetchModeStatic}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNeedsJSRendering(t *testing.T) {
	tests := []struct {
		name string
		html string
		want bool
	}{
		{"react root", `<html><body><div data-reactroot></div></body></html>`, true},
		{"empty root div", `<html><body><div id="root"></div></body></html>`, true},
		{"next.js", `<html><body><div id="__next"></div></body></html>`, true},
		{"loading placeholder", `<html><body><p>Loading...</p></body></html>`, true},
		{"plain short page", `<html><body><p>Short note.</p></body></html>`, false},
		{"full article with marker", fmt.Sprintf(`<html><body><div id="__next"><p>%s</p></div></body></html>`, longText(1500)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsJSRendering(tt.html); got != tt.want {
				t.Errorf("NeedsJSRendering() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLimiter_PerHost(t *testing.T) {
	l := NewLimiter(1, 1)
	ctx := context.Background()

	if err := l.Wait(ctx, "a.example"); err != nil {
		t.Fatal(err)
	}
	// Another host has its own bucket.
	start := time.Now()
	if err := l.Wait(ctx, "b.example"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 200*time.Millisecond {
		t.Error("second host should not wait")
	}

	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := l.Wait(shortCtx, "a.example"); err == nil {
		t.Error("expected the exhausted host to block past the deadline")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background(), "a.example"); err != nil {
			t.Fatal(err)
		}
	}
}
