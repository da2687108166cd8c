package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/alanhsu0429/hottea/internal/browser"
	"github.com/alanhsu0429/hottea/internal/cache"
	"github.com/alanhsu0429/hottea/internal/extractor"
	"github.com/alanhsu0429/hottea/internal/fetcher"
	"github.com/alanhsu0429/hottea/internal/llm"
)

const (
	appName   = "hottea"
	envPrefix = "HOTTEA"
)

type Config struct {
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Extraction ExtractionConfig `mapstructure:"extraction" yaml:"extraction"`
	Network    NetworkConfig    `mapstructure:"network" yaml:"network"`
	LLM        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

type BrowserConfig struct {
	// Cookies names the browser to read cookies from; empty disables it.
	Cookies string `mapstructure:"cookies" yaml:"cookies"`
}

type SiteRuleConfig struct {
	Domain  string `mapstructure:"domain" yaml:"domain"`
	Content string `mapstructure:"content" yaml:"content"`
	Title   string `mapstructure:"title" yaml:"title"`
}

type ExtractionConfig struct {
	SiteRules          []SiteRuleConfig `mapstructure:"site_rules" yaml:"site_rules"`
	RemoteBackend      string           `mapstructure:"remote_backend" yaml:"remote_backend"`
	RemoteAPIKey       string           `mapstructure:"remote_api_key" yaml:"remote_api_key"`
	RemoteExtractDepth string           `mapstructure:"remote_extract_depth" yaml:"remote_extract_depth"`
	SkipCookieBanners  bool             `mapstructure:"skip_cookie_banners" yaml:"skip_cookie_banners"`
	BannerTimeout      int              `mapstructure:"banner_timeout" yaml:"banner_timeout"`
	EnableJavaScript   string           `mapstructure:"enable_javascript" yaml:"enable_javascript"`
	JSTimeout          int              `mapstructure:"js_timeout" yaml:"js_timeout"`
	WaitForSelector    string           `mapstructure:"wait_for_selector" yaml:"wait_for_selector"`
}

type NetworkConfig struct {
	Timeout           int     `mapstructure:"timeout" yaml:"timeout"`
	UserAgent         string  `mapstructure:"user_agent" yaml:"user_agent"`
	BrowserAgent      string  `mapstructure:"browser_agent" yaml:"browser_agent"`
	MaxRedirects      int     `mapstructure:"max_redirects" yaml:"max_redirects"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
	RespectRobots     bool    `mapstructure:"respect_robots" yaml:"respect_robots"`
}

type LLMConfig struct {
	Provider    string  `mapstructure:"provider" yaml:"provider"`
	Model       string  `mapstructure:"model" yaml:"model"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	Temperature float32 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout     int     `mapstructure:"timeout" yaml:"timeout"`
	UserName    string  `mapstructure:"user_name" yaml:"user_name"`
	Language    string  `mapstructure:"language" yaml:"language"`
}

type CacheConfig struct {
	Backend       string `mapstructure:"backend" yaml:"backend"`
	TTL           int    `mapstructure:"ttl" yaml:"ttl"`
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`
}

type OutputConfig struct {
	Format          string `mapstructure:"format" yaml:"format"`
	IncludeMetadata bool   `mapstructure:"include_metadata" yaml:"include_metadata"`
	LineWidth       int    `mapstructure:"line_width" yaml:"line_width"`
	PreserveLinks   bool   `mapstructure:"preserve_links" yaml:"preserve_links"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

func Default() *Config {
	return &Config{
		Browser: BrowserConfig{
			Cookies: "",
		},
		Extraction: ExtractionConfig{
			RemoteExtractDepth: "basic",
			SkipCookieBanners:  true,
			BannerTimeout:      5,
			EnableJavaScript:   "auto",
			JSTimeout:          15,
		},
		Network: NetworkConfig{
			Timeout:           30,
			BrowserAgent:      "auto",
			MaxRedirects:      10,
			RequestsPerSecond: 2,
			Burst:             4,
			RespectRobots:     true,
		},
		LLM: LLMConfig{
			Provider:    "",
			Temperature: 0.7,
			Timeout:     60,
			UserName:    "User",
		},
		Cache: CacheConfig{
			Backend:   "memory",
			TTL:       86400,
			RedisAddr: "localhost:6379",
		},
		Output: OutputConfig{
			Format:        "text",
			LineWidth:     80,
			PreserveLinks: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultPath is config.toml under $XDG_CONFIG_HOME/hottea.
func DefaultPath() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("error finding home directory: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, appName, "config.toml"), nil
}

// envKeys are the settings that may come from HOTTEA_* variables.
var envKeys = []string{
	"llm.provider", "llm.model", "llm.base_url", "llm.api_key",
	"extraction.remote_backend", "extraction.remote_api_key",
	"cache.backend", "cache.redis_addr", "cache.redis_password",
	"logging.level",
}

// Load reads configFile, or the default location when it is empty. A missing
// default file is not an error.
func Load(configFile string) (*Config, error) {
	cfg := Default()
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		path, err := DefaultPath()
		if err != nil {
			return cfg, err
		}
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigType("toml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return cfg, fmt.Errorf("error binding %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return cfg, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Extraction.EnableJavaScript {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("invalid extraction.enable_javascript %q (auto, always, never)", c.Extraction.EnableJavaScript)
	}
	switch c.Output.Format {
	case "text", "markdown", "json":
	default:
		return fmt.Errorf("invalid output.format %q (text, markdown, json)", c.Output.Format)
	}
	switch c.Cache.Backend {
	case "", "memory", "redis", "none":
	default:
		return fmt.Errorf("invalid cache.backend %q (memory, redis, none)", c.Cache.Backend)
	}
	switch c.LLM.Provider {
	case "", "openai", "ollama":
	default:
		return fmt.Errorf("invalid llm.provider %q (openai, ollama)", c.LLM.Provider)
	}
	switch c.Extraction.RemoteBackend {
	case "", "jina", "tavily":
	default:
		return fmt.Errorf("invalid extraction.remote_backend %q (jina, tavily)", c.Extraction.RemoteBackend)
	}
	if _, err := browser.ParseBrowserType(c.Browser.Cookies); err != nil {
		return fmt.Errorf("invalid browser.cookies: %w", err)
	}
	for i, rule := range c.Extraction.SiteRules {
		if strings.TrimSpace(rule.Domain) == "" || strings.TrimSpace(rule.Content) == "" {
			return fmt.Errorf("extraction.site_rules[%d] needs a domain and content selectors", i)
		}
	}
	return nil
}

// Rules returns the built-in site rules with configured overrides applied.
func (c *Config) Rules() extractor.RuleTable {
	overrides := make(extractor.RuleTable, len(c.Extraction.SiteRules))
	for _, rule := range c.Extraction.SiteRules {
		overrides[rule.Domain] = extractor.ParseRule(rule.Content, rule.Title)
	}
	return extractor.DefaultRules().Merge(overrides)
}

func (c *Config) FetchMode() fetcher.FetchMode {
	switch c.Extraction.EnableJavaScript {
	case "always":
		return fetcher.FetchModeJS
	case "never":
		return fetcher.FetchModeStatic
	default:
		return fetcher.FetchModeAuto
	}
}

func (c *Config) Fetcher() fetcher.Config {
	return fetcher.Config{
		Timeout:           seconds(c.Network.Timeout),
		MaxRedirects:      c.Network.MaxRedirects,
		RequestsPerSecond: c.Network.RequestsPerSecond,
		Burst:             c.Network.Burst,
		RespectRobots:     c.Network.RespectRobots,
	}
}

func (c *Config) FetchOptions() fetcher.FetchOptions {
	return fetcher.FetchOptions{
		Mode:            c.FetchMode(),
		Timeout:         seconds(c.Extraction.JSTimeout),
		UserAgent:       c.Network.UserAgent,
		BrowserAgent:    c.Network.BrowserAgent,
		SkipBanners:     c.Extraction.SkipCookieBanners,
		BannerTimeout:   seconds(c.Extraction.BannerTimeout),
		WaitForSelector: c.Extraction.WaitForSelector,
	}
}

func (c *Config) LLMConfig() llm.Config {
	return llm.Config{
		Provider:    c.LLM.Provider,
		Model:       c.LLM.Model,
		APIKey:      c.LLM.APIKey,
		BaseURL:     c.LLM.BaseURL,
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
		Timeout:     seconds(c.LLM.Timeout),
	}
}

func (c *Config) CacheConfig() cache.Config {
	return cache.Config{
		Backend:       c.Cache.Backend,
		TTL:           seconds(c.Cache.TTL),
		RedisAddr:     c.Cache.RedisAddr,
		RedisPassword: c.Cache.RedisPassword,
		RedisDB:       c.Cache.RedisDB,
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (c *Config) CreateExampleConfig(configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	return os.WriteFile(configPath, []byte(exampleConfig), 0644)
}

const exampleConfig = `# hottea configuration file

[browser]
# Browser to borrow cookies from for paywalled or logged-in pages
cookies = ""  # "", auto, chrome, firefox, safari, zen

[extraction]
skip_cookie_banners = true
banner_timeout = 5          # seconds to wait for banner dismissal

# JavaScript rendering
enable_javascript = "auto"  # auto, always, never
js_timeout = 15             # seconds
wait_for_selector = ""      # CSS selector to wait for (optional)

# Remote reader used when local extraction finds nothing
remote_backend = ""         # "", jina, tavily
remote_api_key = ""         # or HOTTEA_EXTRACTION_REMOTE_API_KEY
remote_extract_depth = "basic"

# Extra site rules; selectors are tried in order
# [[extraction.site_rules]]
# domain = "example.com"
# content = ".story-body, article"
# title = "h1.headline"

[network]
timeout = 30                # seconds
user_agent = ""             # exact user agent (overrides browser_agent)
browser_agent = "auto"      # auto, chrome, firefox, safari, edge
max_redirects = 10
requests_per_second = 2     # per host, 0 = unlimited
burst = 4
respect_robots = true

[llm]
provider = ""               # "", openai, ollama
model = ""
base_url = ""
api_key = ""                # or HOTTEA_LLM_API_KEY
temperature = 0.7
timeout = 60                # seconds
user_name = "User"
language = ""               # reply language, empty = article language

[cache]
backend = "memory"          # memory, redis, none
ttl = 86400                 # seconds
redis_addr = "localhost:6379"
redis_password = ""
redis_db = 0

[output]
format = "text"             # text, markdown, json
include_metadata = false
line_width = 80             # 0 = unlimited
preserve_links = true

[logging]
level = "info"              # debug, info, warn, error
format = "console"          # console, json
file = ""                   # log file path (empty = stderr only)
`
