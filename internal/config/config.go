// Package config loads runtime settings from the environment, an optional
// .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/deusflow/pagepost/internal/domain"
)

type Config struct {
	// Source settings
	SourceType   string // "reddit" or "rss"
	SourceURL    string
	FeedURL      string
	Subreddit    string
	SourceDomain string
	UserAgent    string
	FetchLimit   int
	MinScore     int
	RunInterval  time.Duration

	// Facebook settings
	PageID          string
	PageAccessToken string
	GraphAPIURL     string
	GraphAPIVersion string

	// Language model settings
	LLMProvider    string // "gemini" or "openai"
	GeminiAPIKey   string
	GeminiModel    string
	OpenAIAPIKey   string
	OpenAIModel    string
	MaxLLMRequests int // per day, 0 = unlimited
	// Per-provider daily caps, from "gemini=100,openai=50"
	LLMProviderLimits map[string]int

	// Pipeline policy
	AllowedTopics    []string
	ArticleMaxChars  int
	ClassifyMaxChars int
	WriteMaxChars    int
	MaxPostWords     int

	// HTTP and retry
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	PageCacheTTL   time.Duration

	// Dedup state
	StateBackend   string // "memory", "file", "bolt" or "postgres"
	StatePath      string
	StateRetention time.Duration // 0 keeps ids forever
	DatabaseURL    string

	// Outcome event sinks (YAML/JSON file), empty disables
	EventsConfigPath string

	// App settings
	Debug            bool
	EnableMonitoring bool
	MonitoringPort   string
}

// Options controls where Load looks for settings besides the environment.
type Options struct {
	EnvFile    string
	ConfigFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source_type", "reddit")
	v.SetDefault("source_url", "https://www.reddit.com")
	v.SetDefault("subreddit", "learnprogramming")
	v.SetDefault("source_domain", "reddit.com")
	v.SetDefault("user_agent", "pagepost/1.0")
	v.SetDefault("fetch_limit", 1)
	v.SetDefault("min_score", 100)
	v.SetDefault("run_interval", 30000*time.Second)

	v.SetDefault("graph_api_url", "https://graph.facebook.com")
	v.SetDefault("graph_api_version", "v20.0")

	v.SetDefault("llm_provider", "gemini")
	v.SetDefault("gemini_model", "gemini-2.0-flash")
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("max_llm_requests", 0)
	v.SetDefault("llm_provider_limits", "")

	v.SetDefault("allowed_topics", "AI,WebDev")
	v.SetDefault("article_max_chars", 3000)
	v.SetDefault("classify_max_chars", 2000)
	v.SetDefault("write_max_chars", 3000)
	v.SetDefault("max_post_words", 200)

	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("retry_delay", 5*time.Second)
	v.SetDefault("page_cache_ttl", 6*time.Hour)

	v.SetDefault("state_backend", "memory")
	v.SetDefault("state_path", "pagepost.db")
	v.SetDefault("state_retention", 0)

	v.SetDefault("debug", false)
	v.SetDefault("enable_http_monitoring", false)
	v.SetDefault("monitoring_port", "8080")
}

// Load reads configuration. A missing .env file is not an error; a missing
// explicit config file is.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", opts.ConfigFile, err)
		}
	}

	cfg := fromViper(v)
	limits, err := parseLimits(v.GetString("llm_provider_limits"))
	if err != nil {
		return nil, err
	}
	cfg.LLMProviderLimits = limits
	return cfg, cfg.Validate()
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		SourceType:   strings.ToLower(strings.TrimSpace(v.GetString("source_type"))),
		SourceURL:    strings.TrimRight(v.GetString("source_url"), "/"),
		FeedURL:      v.GetString("feed_url"),
		Subreddit:    v.GetString("subreddit"),
		SourceDomain: strings.ToLower(v.GetString("source_domain")),
		UserAgent:    v.GetString("user_agent"),
		FetchLimit:   v.GetInt("fetch_limit"),
		MinScore:     v.GetInt("min_score"),
		RunInterval:  v.GetDuration("run_interval"),

		PageID:          v.GetString("page_id"),
		PageAccessToken: v.GetString("page_access_token"),
		GraphAPIURL:     strings.TrimRight(v.GetString("graph_api_url"), "/"),
		GraphAPIVersion: v.GetString("graph_api_version"),

		LLMProvider:    strings.ToLower(strings.TrimSpace(v.GetString("llm_provider"))),
		GeminiAPIKey:   v.GetString("gemini_api_key"),
		GeminiModel:    v.GetString("gemini_model"),
		OpenAIAPIKey:   v.GetString("openai_api_key"),
		OpenAIModel:    v.GetString("openai_model"),
		MaxLLMRequests: v.GetInt("max_llm_requests"),

		AllowedTopics:    splitList(v.GetString("allowed_topics")),
		ArticleMaxChars:  v.GetInt("article_max_chars"),
		ClassifyMaxChars: v.GetInt("classify_max_chars"),
		WriteMaxChars:    v.GetInt("write_max_chars"),
		MaxPostWords:     v.GetInt("max_post_words"),

		RequestTimeout: v.GetDuration("request_timeout"),
		RetryAttempts:  v.GetInt("retry_attempts"),
		RetryDelay:     v.GetDuration("retry_delay"),
		PageCacheTTL:   v.GetDuration("page_cache_ttl"),

		StateBackend:   strings.ToLower(strings.TrimSpace(v.GetString("state_backend"))),
		StatePath:      v.GetString("state_path"),
		StateRetention: v.GetDuration("state_retention"),
		DatabaseURL:    v.GetString("database_url"),

		EventsConfigPath: v.GetString("events_config"),

		Debug:            v.GetBool("debug"),
		EnableMonitoring: v.GetBool("enable_http_monitoring"),
		MonitoringPort:   v.GetString("monitoring_port"),
	}

	// GOOGLE_API_KEY is accepted as a fallback for Gemini.
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = v.GetString("google_api_key")
	}
	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseLimits reads "name=n,name=n" pairs.
func parseLimits(raw string) (map[string]int, error) {
	limits := make(map[string]int)
	for _, pair := range splitList(raw) {
		name, n, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("LLM_PROVIDER_LIMITS: %q is not name=count", pair)
		}
		count, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil || count < 0 {
			return nil, fmt.Errorf("LLM_PROVIDER_LIMITS: bad count in %q", pair)
		}
		limits[strings.ToLower(strings.TrimSpace(name))] = count
	}
	return limits, nil
}

func (c *Config) Validate() error {
	if c.PageID == "" || c.PageAccessToken == "" {
		return fmt.Errorf("PAGE_ID and PAGE_ACCESS_TOKEN are required")
	}
	switch c.SourceType {
	case "reddit":
		if c.Subreddit == "" {
			return fmt.Errorf("SUBREDDIT is required for the reddit source")
		}
	case "rss":
		if c.FeedURL == "" {
			return fmt.Errorf("FEED_URL is required for the rss source")
		}
	default:
		return fmt.Errorf("SOURCE_TYPE must be 'reddit' or 'rss', got %q", c.SourceType)
	}
	switch c.LLMProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY (or GOOGLE_API_KEY) is required")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required")
		}
	default:
		return fmt.Errorf("LLM_PROVIDER must be 'gemini' or 'openai', got %q", c.LLMProvider)
	}
	for name := range c.LLMProviderLimits {
		if name != "gemini" && name != "openai" {
			return fmt.Errorf("LLM_PROVIDER_LIMITS: unknown provider %q", name)
		}
	}
	if c.FetchLimit <= 0 {
		return fmt.Errorf("FETCH_LIMIT must be positive")
	}
	if c.RunInterval <= 0 {
		return fmt.Errorf("RUN_INTERVAL must be positive")
	}
	if c.ClassifyMaxChars <= 0 || c.WriteMaxChars <= 0 || c.ArticleMaxChars <= 0 {
		return fmt.Errorf("character limits must be positive")
	}
	if len(c.AllowedTopics) == 0 {
		return fmt.Errorf("ALLOWED_TOPICS must name at least one topic")
	}
	for _, t := range c.AllowedTopics {
		if domain.ParseTopic(t) == domain.TopicUnknown {
			return fmt.Errorf("ALLOWED_TOPICS: unknown topic %q", t)
		}
	}
	switch c.StateBackend {
	case "memory":
	case "file", "bolt":
		if c.StatePath == "" {
			return fmt.Errorf("STATE_PATH is required for the %s state backend", c.StateBackend)
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres state backend")
		}
	default:
		return fmt.Errorf("STATE_BACKEND must be memory, file, bolt or postgres, got %q", c.StateBackend)
	}
	return nil
}
