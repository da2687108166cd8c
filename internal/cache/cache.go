// Package cache stores accepted extraction results keyed by page URL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/alanhsu0429/hottea/internal/extractor"
)

// ErrMiss is returned when a key is not cached.
var ErrMiss = errors.New("cache: key not found")

const keyPrefix = "reader:"

// Store is a byte-level key/value cache with expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Config selects and tunes the backend.
type Config struct {
	// Backend is "memory", "redis" or "none".
	Backend       string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// New returns the store named by cfg.Backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryCache(cfg.TTL, 2*cfg.TTL), nil
	case "redis":
		return NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case "none":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s (available: memory, redis, none)", cfg.Backend)
	}
}

// Key is the cache key for a page URL.
func Key(pageURL string) string {
	return keyPrefix + pageURL
}

// Articles stores article records as JSON in a Store.
type Articles struct {
	store Store
	ttl   time.Duration
}

func NewArticles(store Store, ttl time.Duration) *Articles {
	return &Articles{store: store, ttl: ttl}
}

// Get returns the cached article for pageURL. Undecodable entries are
// treated as misses.
func (a *Articles) Get(ctx context.Context, pageURL string) (*extractor.Article, bool) {
	raw, err := a.store.Get(ctx, Key(pageURL))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			log.Warn().Err(err).Str("url", pageURL).Msg("cache read failed")
		}
		return nil, false
	}

	var article extractor.Article
	if err := json.Unmarshal(raw, &article); err != nil {
		log.Warn().Err(err).Str("url", pageURL).Msg("discarding corrupt cache entry")
		_ = a.store.Delete(ctx, Key(pageURL))
		return nil, false
	}
	return &article, true
}

func (a *Articles) Put(ctx context.Context, pageURL string, article *extractor.Article) error {
	raw, err := json.Marshal(article)
	if err != nil {
		return fmt.Errorf("encoding article: %w", err)
	}
	if err := a.store.Set(ctx, Key(pageURL), raw, a.ttl); err != nil {
		return fmt.Errorf("caching article: %w", err)
	}
	return nil
}

func (a *Articles) Close() error {
	return a.store.Close()
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, error)              { return nil, ErrMiss }
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Delete(context.Context, string) error                     { return nil }
func (Noop) Close() error                                             { return nil }
