package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/alanhsu0429/hottea/internal/session"
)

// OpenAIFactory creates sessions against the OpenAI chat API or any
// compatible server.
type OpenAIFactory struct {
	client *openai.Client
	config Config
}

var _ session.Factory = (*OpenAIFactory)(nil)

func NewOpenAIFactory(config Config) (*OpenAIFactory, error) {
	if config.APIKey == "" && config.BaseURL == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	}
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &OpenAIFactory{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Available lists models as a lightweight reachability check.
func (f *OpenAIFactory) Available(ctx context.Context) error {
	if _, err := f.client.ListModels(ctx); err != nil {
		return fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}
	return nil
}

func (f *OpenAIFactory) Create(ctx context.Context) (session.Session, error) {
	return &openAISession{factory: f, history: newHistory(f.config.System)}, nil
}

type openAISession struct {
	factory *OpenAIFactory
	history *history
}

func (s *openAISession) request(turns []turn, opts session.PromptOptions, stream bool) openai.ChatCompletionRequest {
	cfg := s.factory.config
	req := openai.ChatCompletionRequest{
		Model:       cfg.Model,
		Messages:    make([]openai.ChatCompletionMessage, len(turns)),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Stream:      stream,
	}
	for i, t := range turns {
		req.Messages[i] = openai.ChatCompletionMessage{Role: t.role, Content: t.content}
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

func (s *openAISession) Prompt(ctx context.Context, input string, opts session.PromptOptions) (string, error) {
	turns, err := s.history.with(input)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.factory.config.Timeout)
	defer cancel()

	resp, err := s.factory.client.CreateChatCompletion(ctx, s.request(turns, opts, false))
	if err != nil {
		return "", openAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	s.history.record(input, answer)
	return answer, nil
}

func (s *openAISession) PromptStreaming(ctx context.Context, input string, opts session.PromptOptions) (session.Stream, error) {
	turns, err := s.history.with(input)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.factory.config.Timeout)
	stream, err := s.factory.client.CreateChatCompletionStream(ctx, s.request(turns, opts, true))
	if err != nil {
		cancel()
		return nil, openAIError(err)
	}

	return &openAIStream{stream: stream, cancel: cancel, done: func(full string) {
		s.history.record(input, full)
	}}, nil
}

func (s *openAISession) Clone(ctx context.Context) (session.Session, error) {
	h, err := s.history.clone()
	if err != nil {
		return nil, err
	}
	return &openAISession{factory: s.factory, history: h}, nil
}

func (s *openAISession) Destroy() {
	s.history.destroy()
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
	cancel context.CancelFunc
	done   func(full string)
	full   strings.Builder
	closed bool
}

func (st *openAIStream) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resp, err := st.stream.Recv()
	if errors.Is(err, io.EOF) {
		if st.done != nil {
			st.done(st.full.String())
			st.done = nil
		}
		return "", io.EOF
	}
	if err != nil {
		return "", openAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}

	chunk := resp.Choices[0].Delta.Content
	st.full.WriteString(chunk)
	return chunk, nil
}

func (st *openAIStream) Close() error {
	if st.closed {
		return nil
	}
	st.closed = true
	defer st.cancel()
	return st.stream.Close()
}

// openAIError marks errors that make the conversation unusable.
func openAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == "context_length_exceeded" {
		return fmt.Errorf("OpenAI API error: %w: %v", session.ErrInvalidState, err)
	}
	return fmt.Errorf("OpenAI API error: %w", err)
}
