package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/digest"
	"github.com/yf-chau/news-summary/internal/feeds"
	"github.com/yf-chau/news-summary/internal/llm"
	"github.com/yf-chau/news-summary/internal/logger"
	"github.com/yf-chau/news-summary/internal/pipeline"
	"github.com/yf-chau/news-summary/internal/publish"
	"github.com/yf-chau/news-summary/internal/retry"
)

// Config holds all application configuration
type Config struct {
	App      App      `mapstructure:"app"`
	AI       AI       `mapstructure:"ai"`
	Retry    Retry    `mapstructure:"retry"`
	Pipeline Pipeline `mapstructure:"pipeline"`
	Feeds    Feeds    `mapstructure:"feeds"`
	Output   Output   `mapstructure:"output"`
	Store    Store    `mapstructure:"store"`
	Publish  Publish  `mapstructure:"publish"`
	Logging  Logging  `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug      bool   `mapstructure:"debug"`
	ConfigFile string `mapstructure:"config_file"`
}

// AI holds AI/LLM configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	Backend         string  `mapstructure:"backend"`
	Timeout         string  `mapstructure:"timeout"`
	Temperature     float32 `mapstructure:"temperature"`
	TopP            float32 `mapstructure:"top_p"`
	MaxOutputTokens int32   `mapstructure:"max_output_tokens"`
}

// Retry holds the generation retry budget
type Retry struct {
	MaxAttempts int    `mapstructure:"max_attempts"`
	Multiplier  string `mapstructure:"multiplier"`
	MinDelay    string `mapstructure:"min_delay"`
	MaxDelay    string `mapstructure:"max_delay"`
}

// Pipeline holds the digest pipeline settings
type Pipeline struct {
	Topics               int    `mapstructure:"topics"`
	BestOf               int    `mapstructure:"best_of"`
	Language             string `mapstructure:"language"`
	Sanitize             bool   `mapstructure:"sanitize"`
	SanitizePrompt       string `mapstructure:"sanitize_prompt"`
	ParallelAttempts     int    `mapstructure:"parallel_attempts"`
	SkipSingleEvaluation bool   `mapstructure:"skip_single_evaluation"`
}

// Feeds holds RSS/feed configuration
type Feeds struct {
	Sources         map[string]string `mapstructure:"sources"`
	Window          string            `mapstructure:"window"`
	UserAgent       string            `mapstructure:"user_agent"`
	Timeout         string            `mapstructure:"timeout"`
	MaxItemsPerFeed int               `mapstructure:"max_items_per_feed"`
}

// Output holds output configuration
type Output struct {
	Directory string `mapstructure:"directory"`
}

// Store holds the article archive configuration
type Store struct {
	Enabled bool   `mapstructure:"enabled"`
	DataDir string `mapstructure:"data_dir"`
}

// Publish holds publishing configuration
type Publish struct {
	Provider    string         `mapstructure:"provider"`
	TitleSuffix string         `mapstructure:"title_suffix"`
	Directory   string         `mapstructure:"directory"`
	Substack    SubstackConfig `mapstructure:"substack"`
	Notify      Notify         `mapstructure:"notify"`
}

// SubstackConfig holds Substack configuration
type SubstackConfig struct {
	PublicationURL string `mapstructure:"publication_url"`
	CookiesPath    string `mapstructure:"cookies_path"`
	Cookies        string `mapstructure:"cookies"`
	Timeout        string `mapstructure:"timeout"`
}

// Notify holds the chat webhooks announcing a published digest
type Notify struct {
	Slack   WebhookConfig `mapstructure:"slack"`
	Discord WebhookConfig `mapstructure:"discord"`
}

// WebhookConfig holds one incoming webhook
type WebhookConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var globalConfig *Config

// Load loads the configuration from various sources. It does not validate; commands call
// Validate with what they need.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			logger.Warn("Error loading .env file", "error", err.Error())
		}
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		v.SetConfigName(".newsdigest")
		v.SetConfigType("yaml")
	}

	setDefaults(v)
	bindEnvironmentVariables(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.App.ConfigFile = v.ConfigFileUsed()

	postProcessConfig(config)

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	def := llm.DefaultSettings()
	v.SetDefault("ai.gemini.model", def.Model)
	v.SetDefault("ai.gemini.backend", llm.BackendGenAI)
	v.SetDefault("ai.gemini.timeout", def.Timeout.String())
	v.SetDefault("ai.gemini.temperature", def.Temperature)
	v.SetDefault("ai.gemini.top_p", def.TopP)
	v.SetDefault("ai.gemini.max_output_tokens", def.MaxOutputTokens)

	policy := retry.Default()
	v.SetDefault("retry.max_attempts", policy.MaxAttempts)
	v.SetDefault("retry.multiplier", policy.Multiplier.String())
	v.SetDefault("retry.min_delay", policy.MinDelay.String())
	v.SetDefault("retry.max_delay", policy.MaxDelay.String())

	stages := pipeline.DefaultConfig()
	v.SetDefault("pipeline.topics", stages.Topics)
	v.SetDefault("pipeline.best_of", 1)
	v.SetDefault("pipeline.language", string(stages.Language))
	v.SetDefault("pipeline.sanitize", false)
	v.SetDefault("pipeline.sanitize_prompt", string(stages.SanitizePrompt))
	v.SetDefault("pipeline.parallel_attempts", 1)
	v.SetDefault("pipeline.skip_single_evaluation", false)

	// feeds.sources has no viper default: a configured map would be merged with it.
	v.SetDefault("feeds.window", "168h")
	v.SetDefault("feeds.user_agent", "newsdigest/1.0")
	v.SetDefault("feeds.timeout", "30s")
	v.SetDefault("feeds.max_items_per_feed", 0)

	v.SetDefault("output.directory", "output")

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.data_dir", ".newsdigest")

	v.SetDefault("publish.provider", publish.ProviderFile)
	v.SetDefault("publish.title_suffix", publish.DefaultTitleSuffix)
	v.SetDefault("publish.directory", "digests")
	v.SetDefault("publish.substack.publication_url", "https://hknewsdigest.substack.com")
	v.SetDefault("publish.substack.timeout", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables(v *viper.Viper) {
	// Gemini API key - support multiple formats
	bindEnvKeys(v, "ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys(v, "publish.substack.cookies", []string{
		"SUBSTACK_COOKIES",
	})

	bindEnvKeys(v, "publish.substack.publication_url", []string{
		"SUBSTACK_PUBLICATION_URL",
	})

	bindEnvKeys(v, "publish.notify.slack.webhook_url", []string{
		"SLACK_WEBHOOK_URL",
		"SLACK_WEBHOOK",
	})

	bindEnvKeys(v, "publish.notify.discord.webhook_url", []string{
		"DISCORD_WEBHOOK_URL",
		"DISCORD_WEBHOOK",
	})

	bindEnvKeys(v, "app.debug", []string{
		"DEBUG",
		"NEWSDIGEST_DEBUG",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(v *viper.Viper, viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			v.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) {
	config.Output.Directory = expandPath(config.Output.Directory)
	config.Store.DataDir = expandPath(config.Store.DataDir)
	config.Publish.Directory = expandPath(config.Publish.Directory)
	config.Publish.Substack.CookiesPath = expandPath(config.Publish.Substack.CookiesPath)

	if len(config.Feeds.Sources) == 0 {
		config.Feeds.Sources = make(map[string]string, len(feeds.DefaultSources))
		for name, url := range feeds.DefaultSources {
			config.Feeds.Sources[name] = url
		}
	}
	if config.App.Debug {
		config.Logging.Level = "debug"
	}
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// Needs names the optional parts of the configuration a command depends on.
type Needs struct {
	LLM     bool
	Publish bool
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate(needs Needs) error {
	var errors []string

	if needs.LLM && c.AI.Gemini.APIKey == "" {
		errors = append(errors, "Gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file.\nGet your API key from: https://aistudio.google.com/app/apikey")
	}
	switch c.AI.Gemini.Backend {
	case llm.BackendGenAI, llm.BackendLegacy:
	default:
		errors = append(errors, fmt.Sprintf("Unknown LLM backend: %s. Supported: %s, %s", c.AI.Gemini.Backend, llm.BackendGenAI, llm.BackendLegacy))
	}
	if c.AI.Gemini.Temperature < 0 || c.AI.Gemini.Temperature > 2 {
		errors = append(errors, fmt.Sprintf("ai.gemini.temperature must be within [0, 2], got %g", c.AI.Gemini.Temperature))
	}
	if c.AI.Gemini.TopP <= 0 || c.AI.Gemini.TopP > 1 {
		errors = append(errors, fmt.Sprintf("ai.gemini.top_p must be within (0, 1], got %g", c.AI.Gemini.TopP))
	}
	if c.AI.Gemini.MaxOutputTokens <= 0 {
		errors = append(errors, "ai.gemini.max_output_tokens must be positive")
	}

	if c.Retry.MaxAttempts < 1 {
		errors = append(errors, "retry.max_attempts must be at least 1")
	}

	if c.Pipeline.Topics < 1 {
		errors = append(errors, "pipeline.topics must be at least 1")
	}
	if c.Pipeline.BestOf < 1 {
		errors = append(errors, "pipeline.best_of must be at least 1")
	}
	if c.Pipeline.ParallelAttempts < 1 {
		errors = append(errors, "pipeline.parallel_attempts must be at least 1")
	}
	if _, err := core.ParseLanguage(c.Pipeline.Language); err != nil {
		errors = append(errors, "pipeline.language: "+err.Error())
	}
	switch pipeline.SanitizeVariant(c.Pipeline.SanitizePrompt) {
	case pipeline.SanitizeEditor, pipeline.SanitizeModerator:
	default:
		errors = append(errors, fmt.Sprintf("Unknown sanitize prompt: %s. Supported: %s, %s", c.Pipeline.SanitizePrompt, pipeline.SanitizeEditor, pipeline.SanitizeModerator))
	}

	for name, url := range c.Feeds.Sources {
		if strings.TrimSpace(url) == "" {
			errors = append(errors, fmt.Sprintf("feed %q has no URL", name))
		}
	}

	durations := map[string]string{
		"ai.gemini.timeout":        c.AI.Gemini.Timeout,
		"retry.multiplier":         c.Retry.Multiplier,
		"retry.min_delay":          c.Retry.MinDelay,
		"retry.max_delay":          c.Retry.MaxDelay,
		"feeds.window":             c.Feeds.Window,
		"feeds.timeout":            c.Feeds.Timeout,
		"publish.substack.timeout": c.Publish.Substack.Timeout,
	}
	for _, key := range sortedKeys(durations) {
		if d := durations[key]; d != "" {
			if _, err := time.ParseDuration(d); err != nil {
				errors = append(errors, fmt.Sprintf("invalid duration for %s: %s", key, d))
			}
		}
	}

	if c.Output.Directory == "" {
		errors = append(errors, "output.directory is required")
	}

	switch c.Publish.Provider {
	case publish.ProviderFile, publish.ProviderNone:
	case publish.ProviderSubstack:
		if needs.Publish {
			if c.Publish.Substack.PublicationURL == "" {
				errors = append(errors, "Substack publishing requires publish.substack.publication_url or SUBSTACK_PUBLICATION_URL")
			}
			if c.Publish.Substack.CookiesPath == "" && c.Publish.Substack.Cookies == "" {
				errors = append(errors, "Substack publishing requires publish.substack.cookies_path or SUBSTACK_COOKIES")
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("Unknown publish provider: %s. Supported: file, substack, none", c.Publish.Provider))
	}
	if u := c.Publish.Notify.Slack.WebhookURL; u != "" {
		if err := publish.ValidateWebhookURL(publish.PlatformSlack, u); err != nil {
			errors = append(errors, err.Error())
		}
	}
	if u := c.Publish.Notify.Discord.WebhookURL; u != "" {
		if err := publish.ValidateWebhookURL(publish.PlatformDiscord, u); err != nil {
			errors = append(errors, err.Error())
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("Unknown logging format: %s. Supported: text, json", c.Logging.Format))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// LLMSettings returns the generation parameters. Validate first.
func (c *Config) LLMSettings() llm.Settings {
	return llm.Settings{
		Model:           c.AI.Gemini.Model,
		Temperature:     c.AI.Gemini.Temperature,
		TopP:            c.AI.Gemini.TopP,
		MaxOutputTokens: c.AI.Gemini.MaxOutputTokens,
		Timeout:         duration(c.AI.Gemini.Timeout),
	}
}

// RetryPolicy returns the generation retry budget. Validate first.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		Multiplier:  duration(c.Retry.Multiplier),
		MinDelay:    duration(c.Retry.MinDelay),
		MaxDelay:    duration(c.Retry.MaxDelay),
	}
}

// StageConfig returns the per-attempt pipeline settings. Validate first.
func (c *Config) StageConfig() pipeline.Config {
	lang, _ := core.ParseLanguage(c.Pipeline.Language)
	return pipeline.Config{
		Topics:         c.Pipeline.Topics,
		Language:       lang,
		Sanitize:       c.Pipeline.Sanitize,
		SanitizePrompt: pipeline.SanitizeVariant(c.Pipeline.SanitizePrompt),
	}
}

// RunnerOptions returns the best-of-N settings. Validate first.
func (c *Config) RunnerOptions() digest.Options {
	return digest.Options{
		BestOf:               c.Pipeline.BestOf,
		Parallel:             c.Pipeline.ParallelAttempts,
		SkipSingleEvaluation: c.Pipeline.SkipSingleEvaluation,
		Stages:               c.StageConfig(),
	}
}

// FeedOptions returns the ingestion settings. Validate first.
func (c *Config) FeedOptions() feeds.Options {
	return feeds.Options{
		UserAgent:       c.Feeds.UserAgent,
		Timeout:         duration(c.Feeds.Timeout),
		MaxItemsPerFeed: c.Feeds.MaxItemsPerFeed,
	}
}

// FeedWindow returns how far back ingestion looks.
func (c *Config) FeedWindow() time.Duration {
	return duration(c.Feeds.Window)
}

// SubstackOptions returns the Substack publisher settings. Validate first.
func (c *Config) SubstackOptions() publish.SubstackOptions {
	return publish.SubstackOptions{
		PublicationURL: c.Publish.Substack.PublicationURL,
		CookiesPath:    c.Publish.Substack.CookiesPath,
		Cookies:        c.Publish.Substack.Cookies,
		Timeout:        duration(c.Publish.Substack.Timeout),
	}
}

// LoggerOptions returns the package logger settings.
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{Level: c.Logging.Level, Format: c.Logging.Format}
}

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
