package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alanhsu0429/hottea/internal/config"
	"github.com/alanhsu0429/hottea/internal/validator"
	"github.com/alanhsu0429/hottea/pkg/extractor"
)

var (
	outputFile      string
	outputFormat    string
	file            string
	htmlFile        string
	sourceURL       string
	javascript      bool
	noJS            bool
	noCache         bool
	timeout         int
	userAgent       string
	browserAgent    string
	cookieBrowser   string
	remoteBackend   string
	includeMetadata bool
	continueOnError bool
	separator       string
)

var extractCmd = &cobra.Command{
	Use:   "extract [urls...]",
	Short: "Extract the main article from web pages",
	Long: `extract fetches each URL and prints the article text. URLs come from the
arguments, --file, or stdin. With --html the page is read from a file ("-" for
stdin) instead of being fetched.`,
	RunE: runExtract,
}

func init() {
	f := extractCmd.Flags()
	f.StringVarP(&file, "file", "f", "", "read URLs from file (one per line)")
	f.StringVar(&htmlFile, "html", "", "extract from an HTML file instead of fetching (- for stdin)")
	f.StringVar(&sourceURL, "url", "", "page URL for --html input")
	f.StringVarP(&outputFile, "output", "o", "", "output to file or directory (default: stdout)")
	f.StringVar(&outputFormat, "format", "", "output format (text|markdown|json)")
	f.StringVar(&separator, "separator", "---", "output separator for multiple URLs")
	f.BoolVar(&javascript, "javascript", false, "force JavaScript rendering")
	f.BoolVar(&noJS, "no-js", false, "disable JavaScript rendering")
	f.BoolVar(&noCache, "no-cache", false, "bypass the article cache")
	f.IntVar(&timeout, "timeout", 30, "request timeout in seconds")
	f.StringVar(&userAgent, "user-agent", "", "custom user agent string")
	f.StringVar(&browserAgent, "browser-agent", "", "browser agent type (auto|chrome|firefox|safari|edge)")
	f.StringVarP(&cookieBrowser, "browser", "b", "", "browser for cookie extraction (auto|chrome|firefox|safari|zen)")
	f.StringVarP(&remoteBackend, "remote", "B", "", "remote reader used when local extraction fails (jina|tavily)")
	f.BoolVar(&includeMetadata, "include-metadata", false, "include page metadata in output")
	f.BoolVar(&continueOnError, "continue-on-error", false, "continue processing remaining URLs on error")
}

// applyFlags overlays explicitly set flags on cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Output.Format = outputFormat
	}
	if flags.Changed("user-agent") {
		cfg.Network.UserAgent = userAgent
	}
	if flags.Changed("browser-agent") {
		cfg.Network.BrowserAgent = browserAgent
	}
	if flags.Changed("browser") {
		cfg.Browser.Cookies = cookieBrowser
	}
	if flags.Changed("remote") {
		cfg.Extraction.RemoteBackend = remoteBackend
	}
	if flags.Changed("include-metadata") {
		cfg.Output.IncludeMetadata = includeMetadata
	}
	if flags.Changed("timeout") {
		cfg.Network.Timeout = timeout
	}
	switch {
	case javascript:
		cfg.Extraction.EnableJavaScript = "always"
	case noJS:
		cfg.Extraction.EnableJavaScript = "never"
	}
}

func newExtractor(cmd *cobra.Command) (*extractor.Extractor, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, exitError(ExitConfigError, "invalid settings: %v", err)
	}

	ex, err := extractor.New(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, exitError(ExitConfigError, "failed to set up extractor: %v", err)
	}
	return ex, cfg, nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	if javascript && noJS {
		return exitError(ExitInvalidInput, "--javascript and --no-js are mutually exclusive")
	}

	ex, cfg, err := newExtractor(cmd)
	if err != nil {
		return err
	}
	defer ex.Close()

	if htmlFile != "" {
		result, err := extractFromHTML(cmd.Context(), ex, htmlFile, sourceURL)
		if err != nil {
			return reportExtractError(htmlFile, result, err)
		}
		return writeOutput(cmd.OutOrStdout(), render(ex, result.Article, cfg.Output.Format))
	}

	urls, err := collectURLs(args, file, cmd.InOrStdin())
	if err != nil {
		return exitError(ExitInvalidInput, "failed to collect URLs: %v", err)
	}
	if len(urls) == 0 {
		return exitError(ExitInvalidInput, "no URLs provided")
	}
	log.Debug().Int("count", len(urls)).Msg("processing URLs")

	var output io.Writer = cmd.OutOrStdout()
	var outputDir string
	if outputFile != "" {
		info, statErr := os.Stat(outputFile)
		if (statErr == nil && info.IsDir()) || strings.HasSuffix(outputFile, "/") {
			outputDir = outputFile
			if err := os.MkdirAll(outputDir, 0755); err != nil {
				return exitError(ExitFileIOError, "failed to create output directory: %v", err)
			}
		} else {
			f, err := os.Create(outputFile)
			if err != nil {
				return exitError(ExitFileIOError, "failed to create output file %s: %v", outputFile, err)
			}
			defer f.Close()
			output = f
		}
	}

	opts := extractor.ExtractOptions{NoCache: noCache}
	failures, lastCode := 0, ExitSuccess

	for i, url := range urls {
		log.Debug().Str("url", url).Msgf("processing [%d/%d]", i+1, len(urls))

		result, err := ex.Extract(cmd.Context(), url, opts)
		if err != nil {
			failures++
			lastCode = exitCode(err)
			reportExtractError(url, result, err)
			if !continueOnError {
				return &exitErr{code: lastCode}
			}
			continue
		}
		if result.Backend != "" {
			log.Info().Str("url", url).Str("backend", result.Backend).Msg("article supplied by remote backend")
		}

		content := render(ex, result.Article, cfg.Output.Format)
		if outputDir != "" {
			path := filepath.Join(outputDir, urlToFilename(url, cfg.Output.Format))
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return exitError(ExitFileIOError, "failed to write %s: %v", path, err)
			}
			log.Debug().Str("path", path).Msg("saved")
			continue
		}

		fmt.Fprint(output, content)
		if i < len(urls)-1 {
			fmt.Fprintf(output, "\n%s\n", separator)
		}
	}

	switch {
	case failures == 0:
		return nil
	case failures < len(urls):
		return &exitErr{code: ExitPartialError}
	default:
		return &exitErr{code: lastCode}
	}
}

func extractFromHTML(ctx context.Context, ex *extractor.Extractor, path, pageURL string) (*extractor.Result, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, exitError(ExitFileIOError, "failed to open %s: %v", path, err)
		}
		defer f.Close()
		r = f
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, exitError(ExitFileIOError, "failed to read %s: %v", path, err)
	}
	if pageURL == "" {
		pageURL = "file://" + path
	}
	return ex.ExtractHTML(ctx, string(raw), pageURL)
}

// reportExtractError logs err and returns the matching exit error.
func reportExtractError(url string, result *extractor.Result, err error) error {
	if exit, ok := err.(*exitErr); ok {
		return exit
	}
	if result != nil && result.Issue != nil {
		log.Error().
			Str("url", url).
			Str("issue", string(result.Issue.Type)).
			Str("message", validator.MessageKey(result.Issue.Type)).
			Msg(result.Issue.Details)
	} else {
		log.Error().Err(err).Str("url", url).Msg("extraction failed")
	}
	return &exitErr{code: exitCode(err), msg: err.Error()}
}

func render(ex *extractor.Extractor, article *extractor.Article, format string) string {
	if format == "json" {
		raw, err := json.MarshalIndent(article, "", "  ")
		if err != nil {
			return article.Content
		}
		return string(raw) + "\n"
	}
	return ex.Render(article, format)
}

func writeOutput(w io.Writer, content string) error {
	if _, err := io.WriteString(w, content); err != nil {
		return exitError(ExitFileIOError, "failed to write output: %v", err)
	}
	return nil
}

func collectURLs(args []string, file string, stdin io.Reader) ([]string, error) {
	var urls []string
	urls = append(urls, args...)

	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read URLs from file %s: %w", file, err)
		}
		defer f.Close()
		fileURLs, err := readURLs(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read URLs from file %s: %w", file, err)
		}
		urls = append(urls, fileURLs...)
	}

	if len(args) == 0 && file == "" && isPipe(stdin) {
		stdinURLs, err := readURLs(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read URLs from stdin: %w", err)
		}
		urls = append(urls, stdinURLs...)
	}

	var clean []string
	for _, url := range urls {
		url = strings.TrimSpace(url)
		if isValidURL(url) {
			clean = append(clean, url)
		} else if url != "" {
			log.Warn().Str("input", url).Msg("skipping invalid URL")
		}
	}
	return clean, nil
}

func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			urls = append(urls, line)
		}
	}
	return urls, scanner.Err()
}

// isPipe reports whether r is piped input rather than a terminal.
func isPipe(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return r != nil
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice == 0
}

func isValidURL(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// urlToFilename converts a URL to a safe filename
func urlToFilename(rawURL string, format string) string {
	name := strings.TrimPrefix(rawURL, "https://")
	name = strings.TrimPrefix(name, "http://")

	replacer := strings.NewReplacer(
		"/", "_",
		"?", "_",
		"&", "_",
		"=", "_",
		":", "_",
		"#", "_",
		"%", "_",
	)
	name = strings.TrimRight(replacer.Replace(name), "_")

	if len(name) > 200 {
		name = name[:200]
	}

	switch format {
	case "markdown":
		return name + ".md"
	case "json":
		return name + ".json"
	default:
		return name + ".txt"
	}
}
