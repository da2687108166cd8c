// Package session defines the language model session contract and the
// Manager that owns the shared, reusable session.
package session

import (
	"context"
	"errors"
)

var (
	// ErrInvalidState marks a session that can no longer serve prompts.
	// The Manager replaces such a session once before giving up.
	ErrInvalidState = errors.New("session: invalid state")

	// ErrUnavailable is returned when no model can be reached.
	ErrUnavailable = errors.New("session: language model unavailable")
)

// PromptOptions adjusts a single prompt.
type PromptOptions struct {
	// JSON asks the model for a single JSON object response.
	JSON bool
}

// Session is a conversation with a language model. Prompts on the same
// session share context.
type Session interface {
	Prompt(ctx context.Context, input string, opts PromptOptions) (string, error)
	PromptStreaming(ctx context.Context, input string, opts PromptOptions) (Stream, error)
	Clone(ctx context.Context) (Session, error)
	Destroy()
}

// Stream yields incremental response text. Next returns io.EOF after the
// last chunk.
type Stream interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// Factory creates sessions for one model backend.
type Factory interface {
	// Available returns ErrUnavailable (possibly wrapped) when the backend
	// cannot serve requests.
	Available(ctx context.Context) error
	Create(ctx context.Context) (Session, error)
}
