package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alanhsu0429/hottea/internal/config"
	"github.com/alanhsu0429/hottea/internal/dialogue"
	"github.com/alanhsu0429/hottea/internal/jsonlines"
	"github.com/alanhsu0429/hottea/internal/llm"
	"github.com/alanhsu0429/hottea/internal/session"
	"github.com/alanhsu0429/hottea/pkg/extractor"
)

var (
	jsonOutput  bool
	userName    string
	language    string
	askHistory  string
	withSuggest bool
)

var dialogueCmd = &cobra.Command{
	Use:   "dialogue <url>",
	Short: "Stream a conversation about an article",
	Args:  cobra.ExactArgs(1),
	RunE:  runDialogue,
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <url>",
	Short: "Suggest questions to ask about an article",
	Args:  cobra.ExactArgs(1),
	RunE:  runSuggest,
}

var askCmd = &cobra.Command{
	Use:   "ask <url> [question]",
	Short: "Ask questions about an article",
	Long: `ask answers a question about the article at url. Without a question it reads
one question per line from stdin and answers each in the same session.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAsk,
}

func init() {
	for _, cmd := range []*cobra.Command{dialogueCmd, suggestCmd, askCmd} {
		cmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON instead of text")
		cmd.Flags().StringVar(&userName, "user", "", "name used for the reader in the conversation")
		cmd.Flags().StringVar(&language, "language", "", "reply language")
		cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the article cache")
	}
	dialogueCmd.Flags().BoolVar(&withSuggest, "suggest", false, "suggest follow-up questions after the dialogue")
	askCmd.Flags().StringVar(&askHistory, "history", "", "earlier conversation to give the model as context")
}

// conversation bundles what every LLM command needs.
type conversation struct {
	article  *extractor.Article
	service  *dialogue.Service
	sessions *session.Manager
}

func (c *conversation) Close() {
	c.sessions.Destroy()
}

func openConversation(cmd *cobra.Command, url string) (*conversation, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if userName != "" {
		cfg.LLM.UserName = userName
	}
	if language != "" {
		cfg.LLM.Language = language
	}

	factory, err := llm.NewFactory(cfg.LLMConfig())
	if err != nil {
		return nil, exitError(ExitConfigError, "failed to set up LLM: %v", err)
	}

	article, err := fetchArticle(cmd.Context(), cfg, url)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(factory)
	return &conversation{
		article:  article,
		service:  dialogue.NewService(sessions, cfg.LLM.UserName, cfg.LLM.Language),
		sessions: sessions,
	}, nil
}

func fetchArticle(ctx context.Context, cfg *config.Config, url string) (*extractor.Article, error) {
	ex, err := extractor.New(ctx, cfg)
	if err != nil {
		return nil, exitError(ExitConfigError, "failed to set up extractor: %v", err)
	}
	defer ex.Close()

	result, err := ex.Extract(ctx, url, extractor.ExtractOptions{NoCache: noCache})
	if err != nil {
		return nil, reportExtractError(url, result, err)
	}
	return result.Article, nil
}

func llmError(what string, err error) error {
	log.Error().Err(err).Msg(what + " failed")
	return &exitErr{code: exitCode(err), msg: err.Error()}
}

func runDialogue(cmd *cobra.Command, args []string) error {
	conv, err := openConversation(cmd, args[0])
	if err != nil {
		return err
	}
	defer conv.Close()

	out := cmd.OutOrStdout()
	var transcript []jsonlines.Message
	result, err := conv.service.Generate(cmd.Context(), conv.article, func(msg jsonlines.Message) {
		transcript = append(transcript, msg)
		printMessage(out, msg)
	})
	if err != nil {
		return llmError("dialogue", err)
	}

	log.Debug().
		Int("messages", result.MessageCount).
		Int("failures", result.ParseFailures).
		Float64("success_rate", result.SuccessRate()).
		Bool("aborted", result.Aborted).
		Msg("dialogue finished")

	if result.HasSummary {
		printSummary(out, result.Summary)
	}

	if withSuggest {
		questions, err := conv.service.Suggestions(cmd.Context(), conv.article, transcript)
		if err != nil {
			return llmError("suggestions", err)
		}
		printQuestions(out, questions)
	}
	return nil
}

func runSuggest(cmd *cobra.Command, args []string) error {
	conv, err := openConversation(cmd, args[0])
	if err != nil {
		return err
	}
	defer conv.Close()

	questions, err := conv.service.Suggestions(cmd.Context(), conv.article, nil)
	if err != nil {
		return llmError("suggestions", err)
	}
	printQuestions(cmd.OutOrStdout(), questions)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	conv, err := openConversation(cmd, args[0])
	if err != nil {
		return err
	}
	defer conv.Close()

	out := cmd.OutOrStdout()
	if len(args) == 2 {
		_, err := ask(cmd.Context(), conv, out, args[1], askHistory)
		return err
	}

	history := askHistory
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		answer, err := ask(cmd.Context(), conv, out, question, history)
		if err != nil {
			return err
		}
		history += fmt.Sprintf("%s: %s\n%s: %s\n", conv.service.UserName(), question, answer.Speaker, answer.Response)
	}
	if err := scanner.Err(); err != nil {
		return exitError(ExitInvalidInput, "failed to read questions: %v", err)
	}
	return nil
}

func ask(ctx context.Context, conv *conversation, out io.Writer, question, history string) (*dialogue.Answer, error) {
	answer, err := conv.service.Ask(ctx, question, conv.article, history)
	if err != nil {
		return nil, llmError("question", err)
	}

	if jsonOutput {
		return answer, printJSON(out, answer)
	}
	fmt.Fprintf(out, "%s: %s\n", answer.Speaker, answer.Response)
	if answer.Rejected && answer.Explanation != "" {
		log.Debug().Float64("relevance", answer.RelevanceScore).Str("explanation", answer.Explanation).Msg("question rejected")
	}
	for _, q := range answer.SuggestedQuestions {
		fmt.Fprintf(out, "  ? %s\n", q)
	}
	return answer, nil
}

func printMessage(out io.Writer, msg jsonlines.Message) {
	if jsonOutput {
		printJSON(out, msg)
		return
	}
	fmt.Fprintf(out, "%s: %s\n", msg.Speaker, msg.Content)
}

func printSummary(out io.Writer, summary string) {
	if jsonOutput {
		printJSON(out, map[string]string{"summary": summary})
		return
	}
	fmt.Fprintf(out, "\nSummary: %s\n", summary)
}

func printQuestions(out io.Writer, questions []string) {
	if jsonOutput {
		printJSON(out, map[string][]string{"questions": questions})
		return
	}
	for i, q := range questions {
		fmt.Fprintf(out, "%d. %s\n", i+1, q)
	}
}

func printJSON(out io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return exitError(ExitProcessError, "failed to encode output: %v", err)
	}
	fmt.Fprintln(out, string(raw))
	return nil
}
