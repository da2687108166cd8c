package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/alanhsu0429/hottea/internal/config"
	"github.com/alanhsu0429/hottea/internal/fetcher"
	"github.com/alanhsu0429/hottea/internal/session"
	"github.com/alanhsu0429/hottea/internal/validator"
	"github.com/alanhsu0429/hottea/pkg/extractor"
)

func TestURLToFilename(t *testing.T) {
	tests := []struct {
		url, format, want string
	}{
		{"https://example.com/news/story?id=1", "text", "example.com_news_story_id_1.txt"},
		{"http://example.com/", "markdown", "example.com.md"},
		{"https://example.com/a#b", "json", "example.com_a_b.json"},
	}
	for _, tt := range tests {
		if got := urlToFilename(tt.url, tt.format); got != tt.want {
			t.Errorf("urlToFilename(%q, %q) = %q, want %q", tt.url, tt.format, got, tt.want)
		}
	}

	long := "https://example.com/" + strings.Repeat("a", 300)
	if got := urlToFilename(long, "text"); len(got) != 204 {
		t.Errorf("long name has length %d", len(got))
	}
}

func TestCollectURLs(t *testing.T) {
	listFile := filepath.Join(t.TempDir(), "urls.txt")
	if err := os.WriteFile(listFile, []byte("# comment\nhttps://b.example/\n\nnot-a-url\n"), 0644); err != nil {
		t.Fatal(err)
	}

	urls, err := collectURLs([]string{" https://a.example/ "}, listFile, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) != 2 || urls[0] != "https://a.example/" || urls[1] != "https://b.example/" {
		t.Errorf("urls = %v", urls)
	}

	urls, err = collectURLs(nil, "", strings.NewReader("https://c.example/\nftp://x\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) != 1 || urls[0] != "https://c.example/" {
		t.Errorf("stdin urls = %v", urls)
	}

	if _, err := collectURLs(nil, filepath.Join(t.TempDir(), "missing.txt"), nil); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"issue", fmt.Errorf("wrapped: %w", &validator.Issue{Type: validator.Paywall}), ExitContentIssue},
		{"no content", extractor.ErrNoContent, ExitProcessError},
		{"bad url", fmt.Errorf("x: %w", fetcher.ErrBadURL), ExitInvalidInput},
		{"http status", fmt.Errorf("%w: %w", extractor.ErrFetch, &fetcher.StatusError{Code: 500}), ExitNetworkError},
		{"fetch", fmt.Errorf("%w: %w", extractor.ErrFetch, errors.New("connection refused")), ExitNetworkError},
		{"fetch wording only", errors.New("failed to fetch models list"), ExitProcessError},
		{"robots", fetcher.ErrDisallowed, ExitNetworkError},
		{"llm unavailable", fmt.Errorf("ollama: %w", session.ErrUnavailable), ExitLLMError},
		{"other", errors.New("boom"), ExitProcessError},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("%s: exitCode() = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestShowConfigMasksSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = "sk-secret"
	cfg.Cache.RedisPassword = "hunter2"

	out, err := showConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "sk-secret") || strings.Contains(out, "hunter2") {
		t.Errorf("secrets leaked:\n%s", out)
	}
	if !strings.Contains(out, "enable_javascript: auto") {
		t.Errorf("expected yaml keys, got:\n%s", out)
	}
	if cfg.LLM.APIKey != "sk-secret" {
		t.Error("showConfig modified the caller's config")
	}
}

func TestNewLogger(t *testing.T) {
	defer func() { verbose, quiet = false, false }()

	var buf bytes.Buffer
	logger, file, err := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil || file != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info().Msg("hidden")
	logger.Warn().Str("url", "https://a.example/").Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"url":"https://a.example/"`) {
		t.Errorf("unexpected log output: %s", buf.String())
	}

	verbose = true
	logger, _, _ = newLogger(config.LoggingConfig{Level: "error"}, &buf)
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Errorf("verbose level = %v", logger.GetLevel())
	}

	path := filepath.Join(t.TempDir(), "hottea.log")
	logger, file, err = newLogger(config.LoggingConfig{Level: "info", Format: "json", File: path}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info().Msg("to file")
	file.Close()
	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), "to file") {
		t.Errorf("log file = %q", raw)
	}
}

func TestExtractCommand_HTMLInput(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(cfgPath, []byte("[cache]\nbackend = \"none\"\n[logging]\nlevel = \"error\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	sentence := "The harbour authority confirmed that the new ferry line will open next spring after a lengthy review. "
	page := `<html><head><title>Ferry Line Approved | Harbour News</title></head><body><article><h1>Ferry Line Approved</h1>` +
		strings.Repeat("<p>"+strings.Repeat(sentence, 4)+"</p>", 6) + `</article></body></html>`
	htmlPath := filepath.Join(dir, "page.html")
	if err := os.WriteFile(htmlPath, []byte(page), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"extract", "--config", cfgPath, "--html", htmlPath, "--url", "https://harbour.example/story", "--format", "json"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	var article extractor.Article
	if err := json.Unmarshal(out.Bytes(), &article); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if article.URL != "https://harbour.example/story" || !strings.Contains(article.Content, "ferry line") {
		t.Errorf("unexpected article: %+v", article)
	}
}
