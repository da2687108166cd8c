package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alanhsu0429/hottea/internal/config"
	"github.com/alanhsu0429/hottea/internal/fetcher"
	"github.com/alanhsu0429/hottea/internal/session"
	"github.com/alanhsu0429/hottea/internal/validator"
	"github.com/alanhsu0429/hottea/pkg/extractor"
)

// Exit codes for granular error handling
const (
	ExitSuccess      = 0
	ExitNetworkError = 1
	ExitProcessError = 2
	ExitInvalidInput = 3
	ExitConfigError  = 4
	ExitFileIOError  = 5
	ExitPartialError = 6 // some URLs failed, some succeeded
	ExitContentIssue = 7 // page is a consent wall, paywall or policy page
	ExitLLMError     = 8
)

var (
	cfgFile string
	verbose bool
	quiet   bool
)

const version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "hottea",
	Short: "Turn news articles into conversations",
	Long: `hottea extracts the main article from a web page and can turn it into a
streamed dialogue, suggest follow-up questions and answer questions about it.`,
	Version:           version,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var exit *exitErr
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitInvalidInput)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/hottea/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all non-content output")

	rootCmd.AddCommand(extractCmd, dialogueCmd, suggestCmd, askCmd, configCmd)
}

var logFile *os.File

func setupLogging(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		// Logging still needs a sink to report the config error.
		cfg = config.Default()
	}
	logger, file, setupErr := newLogger(cfg.Logging, os.Stderr)
	if setupErr != nil {
		return exitError(ExitConfigError, "failed to set up logging: %v", setupErr)
	}
	logFile = file
	log.Logger = logger
	return nil
}

func newLogger(lc config.LoggingConfig, stderr io.Writer) (zerolog.Logger, *os.File, error) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(strings.ToLower(lc.Level))
	if err != nil || lc.Level == "" {
		level = zerolog.InfoLevel
	}
	switch {
	case quiet:
		level = zerolog.ErrorLevel
	case verbose:
		level = zerolog.DebugLevel
	}

	var out io.Writer = stderr
	if lc.Format != "json" {
		out = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}
	}

	var file *os.File
	if lc.File != "" {
		file, err = os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Logger{}, nil, err
		}
		out = zerolog.MultiLevelWriter(out, file)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), file, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, exitError(ExitConfigError, "failed to load config: %v", err)
	}
	return cfg, nil
}

// exitCode maps an extraction or dialogue error to a process exit code.
func exitCode(err error) int {
	var (
		statusErr *fetcher.StatusError
		issue     *validator.Issue
	)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &issue):
		return ExitContentIssue
	case errors.Is(err, extractor.ErrNoContent):
		return ExitProcessError
	case errors.Is(err, fetcher.ErrBadURL):
		return ExitInvalidInput
	case errors.Is(err, extractor.ErrFetch), errors.As(err, &statusErr),
		errors.Is(err, fetcher.ErrDisallowed), errors.Is(err, context.DeadlineExceeded):
		return ExitNetworkError
	case errors.Is(err, session.ErrUnavailable), errors.Is(err, session.ErrInvalidState):
		return ExitLLMError
	}
	return ExitProcessError
}

type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string {
	return e.msg
}

func exitError(code int, format string, args ...interface{}) *exitErr {
	msg := fmt.Sprintf(format, args...)
	if msg != "" && !quiet {
		fmt.Fprintf(os.Stderr, "%s\n", msg)
	}
	return &exitErr{code: code, msg: msg}
}
