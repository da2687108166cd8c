package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Manager owns the reusable session. It creates the session lazily, shares
// one in-flight creation between concurrent callers and replaces a corrupted
// session exactly once per request. Hosts call Destroy on shutdown or reload.
type Manager struct {
	factory Factory

	mu       sync.Mutex
	current  Session
	inflight *creation
	// gen is bumped by Destroy so a creation that started before it is
	// never installed.
	gen uint64
}

type creation struct {
	done    chan struct{}
	session Session
	err     error
}

// errDestroyed is returned to callers whose session creation was overtaken by
// Destroy.
var errDestroyed = fmt.Errorf("%w: manager destroyed during session creation", ErrInvalidState)

// Status is a snapshot of the manager.
type Status struct {
	HasSession bool `json:"has_session"`
	Creating   bool `json:"creating"`
}

func (s Status) Ready() bool {
	return s.HasSession && !s.Creating
}

func NewManager(factory Factory) *Manager {
	return &Manager{factory: factory}
}

// Get returns the shared session, creating it if needed.
func (m *Manager) Get(ctx context.Context) (Session, error) {
	m.mu.Lock()
	if m.current != nil {
		s := m.current
		m.mu.Unlock()
		log.Debug().Msg("reusing language model session")
		return s, nil
	}

	if c := m.inflight; c != nil {
		m.mu.Unlock()
		log.Debug().Msg("waiting for session creation")
		select {
		case <-c.done:
			return c.session, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c := &creation{done: make(chan struct{})}
	m.inflight = c
	gen := m.gen
	m.mu.Unlock()

	c.session, c.err = m.create(ctx)

	m.mu.Lock()
	stale := m.gen != gen
	switch {
	case stale && c.err == nil:
		c.err = errDestroyed
	case c.err == nil:
		m.current = c.session
	}
	if m.inflight == c {
		m.inflight = nil
	}
	m.mu.Unlock()

	if stale && c.session != nil {
		c.session.Destroy()
		c.session = nil
		log.Debug().Msg("discarded session created across Destroy")
	}
	close(c.done)

	return c.session, c.err
}

func (m *Manager) create(ctx context.Context) (Session, error) {
	if err := m.factory.Available(ctx); err != nil {
		return nil, err
	}
	s, err := m.factory.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	log.Debug().Msg("language model session created")
	return s, nil
}

// Prompt runs input on the shared session.
func (m *Manager) Prompt(ctx context.Context, input string, opts PromptOptions) (string, error) {
	s, err := m.Get(ctx)
	if err != nil {
		return "", err
	}

	out, err := s.Prompt(ctx, input, opts)
	if !errors.Is(err, ErrInvalidState) {
		return out, err
	}

	log.Warn().Err(err).Msg("session corrupted, recreating")
	m.discard(s)
	if s, err = m.Get(ctx); err != nil {
		return "", err
	}
	return s.Prompt(ctx, input, opts)
}

// PromptStreaming opens a stream on the shared session. Corruption is only
// retried while opening; a stream that fails midway is returned as is so
// chunks are never delivered twice.
func (m *Manager) PromptStreaming(ctx context.Context, input string, opts PromptOptions) (Stream, error) {
	s, err := m.Get(ctx)
	if err != nil {
		return nil, err
	}

	stream, err := s.PromptStreaming(ctx, input, opts)
	if !errors.Is(err, ErrInvalidState) {
		return stream, err
	}

	log.Warn().Err(err).Msg("session corrupted, recreating")
	m.discard(s)
	if s, err = m.Get(ctx); err != nil {
		return nil, err
	}
	return s.PromptStreaming(ctx, input, opts)
}

// Clone returns a session owned by the caller that starts from the shared
// session's context. If cloning fails a fresh session is created instead.
func (m *Manager) Clone(ctx context.Context) (Session, error) {
	s, err := m.Get(ctx)
	if err != nil {
		return nil, err
	}

	clone, err := s.Clone(ctx)
	if err == nil {
		return clone, nil
	}
	log.Warn().Err(err).Msg("session clone failed, creating a new session")
	return m.create(ctx)
}

// WithOneTimeSession creates a private session for fn and destroys it when
// fn returns, whatever the outcome.
func (m *Manager) WithOneTimeSession(ctx context.Context, fn func(Session) error) error {
	s, err := m.create(ctx)
	if err != nil {
		return err
	}
	defer s.Destroy()

	return fn(s)
}

// Destroy releases the shared session. A creation still in flight is
// destroyed as soon as it completes. The next Get creates a new one.
func (m *Manager) Destroy() {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.inflight = nil
	m.gen++
	m.mu.Unlock()

	if s != nil {
		s.Destroy()
		log.Debug().Msg("language model session destroyed")
	}
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{HasSession: m.current != nil, Creating: m.inflight != nil}
}

// discard destroys s and forgets it if it is still the shared session.
func (m *Manager) discard(s Session) {
	m.mu.Lock()
	if m.current == s {
		m.current = nil
	}
	m.mu.Unlock()
	s.Destroy()
}
