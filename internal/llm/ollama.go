package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanhsu0429/hottea/internal/session"
)

// OllamaFactory creates sessions against a local Ollama server.
type OllamaFactory struct {
	baseURL    string
	httpClient *http.Client
	config     Config
}

var _ session.Factory = (*OllamaFactory)(nil)

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

func NewOllamaFactory(config Config) (*OllamaFactory, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("ollama model must be specified (e.g., llama3.1:8b, mistral)")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second // local models can be slow
	}

	return &OllamaFactory{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		config:     config,
	}, nil
}

func (f *OllamaFactory) Available(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: connection to %s: %v", session.ErrUnavailable, f.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d from %s", session.ErrUnavailable, resp.StatusCode, f.baseURL)
	}
	return nil
}

func (f *OllamaFactory) Create(ctx context.Context) (session.Session, error) {
	return &ollamaSession{factory: f, history: newHistory(f.config.System)}, nil
}

// post sends a chat request; the caller owns the response body.
func (f *OllamaFactory) post(ctx context.Context, turns []turn, opts session.PromptOptions, stream bool) (*http.Response, error) {
	apiReq := ollamaChatRequest{
		Model:    f.config.Model,
		Messages: make([]ollamaMessage, len(turns)),
		Stream:   stream,
		Options: ollamaOptions{
			Temperature: f.config.Temperature,
			NumPredict:  f.config.MaxTokens,
		},
	}
	for i, t := range turns {
		apiReq.Messages[i] = ollamaMessage{Role: t.role, Content: t.content}
	}
	if opts.JSON {
		apiReq.Format = "json"
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama API error: execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		respBody, _ := io.ReadAll(resp.Body)
		var apiErr ollamaChatResponse
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
			return nil, ollamaError(resp.StatusCode, apiErr.Error)
		}
		return nil, ollamaError(resp.StatusCode, string(respBody))
	}
	return resp, nil
}

func ollamaError(status int, msg string) error {
	if strings.Contains(strings.ToLower(msg), "context") && strings.Contains(strings.ToLower(msg), "length") {
		return fmt.Errorf("ollama API error (%d): %w: %s", status, session.ErrInvalidState, msg)
	}
	return fmt.Errorf("ollama API error (%d): %s", status, msg)
}

type ollamaSession struct {
	factory *OllamaFactory
	history *history
}

func (s *ollamaSession) Prompt(ctx context.Context, input string, opts session.PromptOptions) (string, error) {
	turns, err := s.history.with(input)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.factory.config.Timeout)
	defer cancel()

	resp, err := s.factory.post(ctx, turns, opts, false)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	answer := strings.TrimSpace(out.Message.Content)
	s.history.record(input, answer)
	return answer, nil
}

func (s *ollamaSession) PromptStreaming(ctx context.Context, input string, opts session.PromptOptions) (session.Stream, error) {
	turns, err := s.history.with(input)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.factory.config.Timeout)
	resp, err := s.factory.post(ctx, turns, opts, true)
	if err != nil {
		cancel()
		return nil, err
	}

	return &ollamaStream{
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
		cancel:  cancel,
		done: func(full string) {
			s.history.record(input, full)
		},
	}, nil
}

func (s *ollamaSession) Clone(ctx context.Context) (session.Session, error) {
	h, err := s.history.clone()
	if err != nil {
		return nil, err
	}
	return &ollamaSession{factory: s.factory, history: h}, nil
}

func (s *ollamaSession) Destroy() {
	s.history.destroy()
}

// ollamaStream reads the newline-delimited chat response.
type ollamaStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	cancel  context.CancelFunc
	done    func(full string)
	full    strings.Builder
	closed  bool
}

func (st *ollamaStream) Next(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !st.scanner.Scan() {
			if err := st.scanner.Err(); err != nil {
				return "", fmt.Errorf("ollama stream: %w", err)
			}
			st.finish()
			return "", io.EOF
		}

		line := bytes.TrimSpace(st.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var msg ollamaChatResponse
		if err := json.Unmarshal(line, &msg); err != nil {
			return "", fmt.Errorf("ollama stream: unmarshal chunk: %w", err)
		}
		if msg.Error != "" {
			return "", ollamaError(http.StatusOK, msg.Error)
		}

		st.full.WriteString(msg.Message.Content)
		if msg.Done {
			st.finish()
			if msg.Message.Content == "" {
				return "", io.EOF
			}
		}
		return msg.Message.Content, nil
	}
}

func (st *ollamaStream) finish() {
	if st.done != nil {
		st.done(st.full.String())
		st.done = nil
	}
}

func (st *ollamaStream) Close() error {
	if st.closed {
		return nil
	}
	st.closed = true
	defer st.cancel()
	return st.body.Close()
}
