package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanhsu0429/hottea/internal/extractor"
)

func TestKey(t *testing.T) {
	if got := Key("https://example.com/a"); got != "reader:https://example.com/a" {
		t.Errorf("Key() = %q", got)
	}
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute, time.Minute)

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss, got %v", err)
	}

	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	if got, err := c.Get(ctx, "k"); err != nil || string(got) != "v" {
		t.Errorf("Get() = %q, %v", got, err)
	}

	if err := c.Set(ctx, "short", []byte("v"), time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := c.Get(ctx, "short"); !errors.Is(err, ErrMiss) {
		t.Errorf("expired entry should miss, got %v", err)
	}

	_ = c.Delete(ctx, "k")
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("deleted entry should miss, got %v", err)
	}
}

func TestArticles(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCache(time.Minute, time.Minute)
	articles := NewArticles(store, time.Minute)

	if _, ok := articles.Get(ctx, "https://example.com/a"); ok {
		t.Error("expected miss on empty cache")
	}

	in := &extractor.Article{
		Title:      "Budget Passes",
		Content:    "The council approved the budget.",
		Source:     extractor.SourceReadability,
		Confidence: extractor.ConfidenceHigh,
		URL:        "https://example.com/a",
	}
	if err := articles.Put(ctx, in.URL, in); err != nil {
		t.Fatal(err)
	}

	out, ok := articles.Get(ctx, in.URL)
	if !ok {
		t.Fatal("expected hit")
	}
	if *out != *in {
		t.Errorf("got %+v, want %+v", out, in)
	}
	if _, err := store.Get(ctx, "reader:https://example.com/a"); err != nil {
		t.Errorf("entry not stored under reader key: %v", err)
	}
}

func TestArticles_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCache(time.Minute, time.Minute)
	_ = store.Set(ctx, Key("https://example.com/"), []byte("{not json"), 0)

	if _, ok := NewArticles(store, 0).Get(ctx, "https://example.com/"); ok {
		t.Error("corrupt entry should be a miss")
	}
	if _, err := store.Get(ctx, Key("https://example.com/")); !errors.Is(err, ErrMiss) {
		t.Error("corrupt entry should be deleted")
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	store, err := New(ctx, Config{Backend: "memory", TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*MemoryCache); !ok {
		t.Errorf("expected MemoryCache, got %T", store)
	}

	store, err = New(ctx, Config{Backend: "none"})
	if err != nil {
		t.Fatal(err)
	}
	_ = store.Set(ctx, "k", []byte("v"), 0)
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Error("none backend should never hit")
	}

	if _, err := New(ctx, Config{Backend: "memcached"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := New(ctx, Config{Backend: "redis", RedisAddr: "127.0.0.1:1"}); err == nil {
		t.Error("expected connection error")
	}
}
