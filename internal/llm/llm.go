// Package llm provides session factories for hosted and local language
// models.
package llm

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alanhsu0429/hottea/internal/session"
)

// Config holds language model settings.
type Config struct {
	// Provider name: "openai", "ollama" or "" (disabled)
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	// System is the instruction every new session starts with.
	System string
}

const defaultSystemPrompt = "You are HotTea, an assistant that turns news articles into lively, accurate conversations. " +
	"Follow the requested output format exactly."

// NewFactory returns the session factory for cfg.Provider.
func NewFactory(cfg Config) (session.Factory, error) {
	if cfg.System == "" {
		cfg.System = defaultSystemPrompt
	}

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIFactory(cfg)
	case "ollama":
		return NewOllamaFactory(cfg)
	case "":
		return nil, fmt.Errorf("no language model provider configured: %w", session.ErrUnavailable)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, ollama)", cfg.Provider)
	}
}

type turn struct {
	role    string
	content string
}

// history is the shared conversation state of a session.
type history struct {
	mu        sync.Mutex
	turns     []turn
	destroyed bool
}

func newHistory(system string) *history {
	h := &history{}
	if system != "" {
		h.turns = append(h.turns, turn{role: "system", content: system})
	}
	return h
}

// with returns the turns followed by a pending user input.
func (h *history) with(input string) ([]turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return nil, fmt.Errorf("session destroyed: %w", session.ErrInvalidState)
	}
	turns := make([]turn, len(h.turns), len(h.turns)+1)
	copy(turns, h.turns)
	return append(turns, turn{role: "user", content: input}), nil
}

func (h *history) record(input, answer string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return
	}
	h.turns = append(h.turns, turn{role: "user", content: input}, turn{role: "assistant", content: answer})
}

func (h *history) clone() (*history, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return nil, fmt.Errorf("session destroyed: %w", session.ErrInvalidState)
	}
	turns := make([]turn, len(h.turns))
	copy(turns, h.turns)
	return &history{turns: turns}, nil
}

func (h *history) destroy() {
	h.mu.Lock()
	h.destroyed = true
	h.turns = nil
	h.mu.Unlock()
}

func (h *history) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}
