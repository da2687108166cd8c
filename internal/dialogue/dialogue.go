// Package dialogue turns extracted articles into streamed group chats,
// suggested questions and follow-up answers.
package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/alanhsu0429/hottea/internal/extractor"
	"github.com/alanhsu0429/hottea/internal/jsonlines"
	"github.com/alanhsu0429/hottea/internal/session"
)

const (
	DefaultUserName  = "User"
	AssistantSpeaker = "HotTea"
	RelevanceCutoff  = 50
	MaxSuggestions   = 3
	OffTopicResponse = "That question seems unrelated to this article. Try asking about the people or events in the story."
	responseRejected = "rejected"
)

var (
	ErrNoArticle     = errors.New("dialogue: article has no content")
	ErrEmptyDialogue = errors.New("dialogue: model produced no messages")
	ErrInvalidReply  = errors.New("dialogue: model reply is not valid JSON")
)

// Service generates conversations through a session manager.
type Service struct {
	sessions *session.Manager
	userName string
	language string
}

func NewService(sessions *session.Manager, userName, language string) *Service {
	if userName == "" {
		userName = DefaultUserName
	}
	return &Service{sessions: sessions, userName: userName, language: language}
}

func (s *Service) UserName() string {
	return s.userName
}

// Generate streams a conversation about article, calling emit for each
// message as soon as its line is complete. Each call uses a one-time
// session so articles never share context.
func (s *Service) Generate(ctx context.Context, article *extractor.Article, emit jsonlines.EmitFunc) (jsonlines.Result, error) {
	if article == nil || strings.TrimSpace(article.Content) == "" {
		return jsonlines.Result{}, ErrNoArticle
	}

	prompt := DialoguePrompt(article.Title, article.Content, s.userName, s.language)
	var result jsonlines.Result

	err := s.sessions.WithOneTimeSession(ctx, func(sess session.Session) error {
		stream, err := sess.PromptStreaming(ctx, prompt, session.PromptOptions{})
		if err != nil {
			return fmt.Errorf("starting dialogue stream: %w", err)
		}
		defer stream.Close()

		result, err = jsonlines.Consume(ctx, stream, emit)
		return err
	})
	if err != nil {
		return result, err
	}

	log.Debug().
		Int("messages", result.MessageCount).
		Int("failures", result.ParseFailures).
		Bool("aborted", result.Aborted).
		Msg("dialogue generated")

	if result.MessageCount == 0 && !result.Aborted {
		return result, ErrEmptyDialogue
	}
	return result, nil
}

type suggestionsReply struct {
	Questions []string `json:"questions"`
}

// Suggestions returns up to three follow-up questions. A one-time session
// is used so earlier suggestions do not repeat.
func (s *Service) Suggestions(ctx context.Context, article *extractor.Article, transcript []jsonlines.Message) ([]string, error) {
	if article == nil {
		return nil, ErrNoArticle
	}

	encoded, err := json.Marshal(transcript)
	if err != nil {
		return nil, fmt.Errorf("encoding transcript: %w", err)
	}
	prompt := SuggestionsPrompt(article.Title, article.Content, string(encoded), s.language)

	var reply suggestionsReply
	err = s.sessions.WithOneTimeSession(ctx, func(sess session.Session) error {
		raw, err := sess.Prompt(ctx, prompt, session.PromptOptions{JSON: true})
		if err != nil {
			return err
		}
		return decodeReply(raw, &reply)
	})
	if err != nil {
		return nil, err
	}

	questions := make([]string, 0, MaxSuggestions)
	for _, q := range reply.Questions {
		if q = strings.TrimSpace(q); q == "" {
			continue
		}
		questions = append(questions, q)
		if len(questions) == MaxSuggestions {
			break
		}
	}
	return questions, nil
}

// Answer is the reply to a follow-up question.
type Answer struct {
	Speaker            string    `json:"speaker"`
	Response           string    `json:"response"`
	RelevanceScore     float64   `json:"relevanceScore"`
	IsRelevant         bool      `json:"isRelevant"`
	ResponseType       string    `json:"responseType"`
	SuggestedQuestions []string  `json:"suggestedQuestions,omitempty"`
	Rejected           bool      `json:"rejected"`
	Explanation        string    `json:"explanation,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// Ask answers a question about article on the shared session. Questions
// scoring below the relevance cutoff are rejected; the model's own text is
// kept as the explanation.
func (s *Service) Ask(ctx context.Context, question string, article *extractor.Article, history string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("dialogue: empty question")
	}

	var title, content string
	if article != nil {
		title, content = article.Title, article.Content
	}

	raw, err := s.sessions.Prompt(ctx, QAPrompt(question, title, content, history, s.language), session.PromptOptions{JSON: true})
	if err != nil {
		return nil, err
	}

	answer := &Answer{}
	if err := decodeReply(raw, answer); err != nil {
		return nil, err
	}
	answer.Speaker = AssistantSpeaker
	answer.Timestamp = time.Now()

	if answer.RelevanceScore < RelevanceCutoff {
		answer.Explanation = answer.Response
		answer.Response = OffTopicResponse
		answer.IsRelevant = false
		answer.ResponseType = responseRejected
		answer.Rejected = true
	}

	log.Debug().
		Float64("relevance", answer.RelevanceScore).
		Str("type", answer.ResponseType).
		Msg("question answered")
	return answer, nil
}

// decodeReply unmarshals the outermost JSON object in raw, tolerating
// markdown fences and surrounding prose.
func decodeReply(raw string, v any) error {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return fmt.Errorf("%w: %q", ErrInvalidReply, preview(raw))
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}
	return nil
}

func preview(s string) string {
	return clip(s, 80)
}
