// Package config loads and validates insightd configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LLM provider names.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Config holds all configuration values. Every recognized option is
// enumerated here and validated once at load; nothing is defaulted ad hoc
// at read sites.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// LLM inference
	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	OllamaHost      string `yaml:"ollama_host"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	// Embeddings (backfill job)
	EmbedProvider  string `yaml:"embed_provider"`
	EmbedModel     string `yaml:"embed_model"`
	EmbedDimension int    `yaml:"embed_dimension"`

	// Pipeline tuning
	BatchSize         int           `yaml:"batch_size"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
	InferenceTimeout  time.Duration `yaml:"-"`
	DedupWindow       time.Duration `yaml:"-"`
	MinConfidence     float64       `yaml:"min_confidence"`
	RequireValidation bool          `yaml:"require_validation"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RelateInsights    bool          `yaml:"relate_insights"`
	ArchiveAfterDays  int           `yaml:"archive_after_days"`

	// Scheduler intervals
	InsightInterval   time.Duration `yaml:"-"`
	SweepInterval     time.Duration `yaml:"-"`
	CleanupInterval   time.Duration `yaml:"-"`
	BackfillInterval  time.Duration `yaml:"-"`
	AnalyticsInterval time.Duration `yaml:"-"`
	ShutdownGrace     time.Duration `yaml:"-"`

	// Settings store
	SettingsTTL time.Duration `yaml:"-"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from an optional YAML file (INSIGHTD_CONFIG_FILE)
// overlaid by environment variables, then validates the result.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("INSIGHTD_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := cfg.applyYAML(data); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "insights",
		SurrealDBDatabase:  "core",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",

		LLMProvider: ProviderOllama,
		LLMModel:    "llama3.2",
		OllamaHost:  "http://localhost:11434",

		EmbedProvider:  ProviderOllama,
		EmbedModel:     "all-minilm:l6-v2",
		EmbedDimension: 384,

		BatchSize:         50,
		MaxConcurrent:     5,
		InferenceTimeout:  30 * time.Second,
		DedupWindow:       24 * time.Hour,
		MinConfidence:     0.3,
		RequireValidation: false,
		MaxAttempts:       3,
		RelateInsights:    true,
		ArchiveAfterDays:  90,

		InsightInterval:   5 * time.Minute,
		SweepInterval:     time.Hour,
		CleanupInterval:   24 * time.Hour,
		BackfillInterval:  15 * time.Minute,
		AnalyticsInterval: time.Hour,
		ShutdownGrace:     30 * time.Second,

		SettingsTTL: 5 * time.Minute,

		LogFile:  "/tmp/insightd.log",
		LogLevel: slog.LevelInfo,
	}
}

// fileDurations mirrors the duration options as human-readable strings
// ("30s", "24h") since YAML has no native duration type.
type fileDurations struct {
	InferenceTimeout  string `yaml:"inference_timeout"`
	DedupWindow       string `yaml:"dedup_window"`
	InsightInterval   string `yaml:"insight_interval"`
	SweepInterval     string `yaml:"sweep_interval"`
	CleanupInterval   string `yaml:"cleanup_interval"`
	BackfillInterval  string `yaml:"backfill_interval"`
	AnalyticsInterval string `yaml:"analytics_interval"`
	ShutdownGrace     string `yaml:"shutdown_grace"`
	SettingsTTL       string `yaml:"settings_ttl"`
	LogLevel          string `yaml:"log_level"`
}

func (c *Config) applyYAML(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	var durs fileDurations
	if err := yaml.Unmarshal(data, &durs); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	pairs := []struct {
		raw string
		dst *time.Duration
	}{
		{durs.InferenceTimeout, &c.InferenceTimeout},
		{durs.DedupWindow, &c.DedupWindow},
		{durs.InsightInterval, &c.InsightInterval},
		{durs.SweepInterval, &c.SweepInterval},
		{durs.CleanupInterval, &c.CleanupInterval},
		{durs.BackfillInterval, &c.BackfillInterval},
		{durs.AnalyticsInterval, &c.AnalyticsInterval},
		{durs.ShutdownGrace, &c.ShutdownGrace},
		{durs.SettingsTTL, &c.SettingsTTL},
	}
	for _, p := range pairs {
		if p.raw == "" {
			continue
		}
		d, err := time.ParseDuration(p.raw)
		if err != nil {
			return fmt.Errorf("parse config file: invalid duration %q: %w", p.raw, err)
		}
		*p.dst = d
	}

	if durs.LogLevel != "" {
		c.LogLevel = parseLogLevel(durs.LogLevel)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.SurrealDBURL, "SURREALDB_URL")
	setString(&cfg.SurrealDBNamespace, "SURREALDB_NAMESPACE")
	setString(&cfg.SurrealDBDatabase, "SURREALDB_DATABASE")
	setString(&cfg.SurrealDBUser, "SURREALDB_USER")
	setString(&cfg.SurrealDBPass, "SURREALDB_PASS")
	setString(&cfg.SurrealDBAuthLevel, "SURREALDB_AUTH_LEVEL")

	setString(&cfg.LLMProvider, "INSIGHTD_LLM_PROVIDER")
	setString(&cfg.LLMModel, "INSIGHTD_LLM_MODEL")
	setString(&cfg.OllamaHost, "OLLAMA_HOST")
	setString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")

	setString(&cfg.EmbedProvider, "INSIGHTD_EMBED_PROVIDER")
	setString(&cfg.EmbedModel, "INSIGHTD_EMBED_MODEL")
	setInt(&cfg.EmbedDimension, "INSIGHTD_EMBED_DIMENSION")

	setInt(&cfg.BatchSize, "INSIGHTD_BATCH_SIZE")
	setInt(&cfg.MaxConcurrent, "INSIGHTD_MAX_CONCURRENT")
	setDuration(&cfg.InferenceTimeout, "INSIGHTD_INFERENCE_TIMEOUT")
	setDuration(&cfg.DedupWindow, "INSIGHTD_DEDUP_WINDOW")
	setFloat(&cfg.MinConfidence, "INSIGHTD_MIN_CONFIDENCE")
	setBool(&cfg.RequireValidation, "INSIGHTD_REQUIRE_VALIDATION")
	setInt(&cfg.MaxAttempts, "INSIGHTD_MAX_ATTEMPTS")
	setBool(&cfg.RelateInsights, "INSIGHTD_RELATE_INSIGHTS")
	setInt(&cfg.ArchiveAfterDays, "INSIGHTD_ARCHIVE_AFTER_DAYS")

	setDuration(&cfg.InsightInterval, "INSIGHTD_INSIGHT_INTERVAL")
	setDuration(&cfg.SweepInterval, "INSIGHTD_SWEEP_INTERVAL")
	setDuration(&cfg.CleanupInterval, "INSIGHTD_CLEANUP_INTERVAL")
	setDuration(&cfg.BackfillInterval, "INSIGHTD_BACKFILL_INTERVAL")
	setDuration(&cfg.AnalyticsInterval, "INSIGHTD_ANALYTICS_INTERVAL")
	setDuration(&cfg.ShutdownGrace, "INSIGHTD_SHUTDOWN_GRACE")

	setDuration(&cfg.SettingsTTL, "INSIGHTD_SETTINGS_TTL")

	setString(&cfg.LogFile, "INSIGHTD_LOG_FILE")
	if v := os.Getenv("INSIGHTD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
}

// Validate checks the loaded configuration once, so downstream consumers can
// rely on every field being usable.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOllama, ProviderBedrock:
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("config: OPENAI_API_KEY required for provider %q", c.LLMProvider)
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("config: ANTHROPIC_API_KEY required for provider %q", c.LLMProvider)
		}
	default:
		return fmt.Errorf("config: unsupported LLM provider %q", c.LLMProvider)
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("config: max_concurrent must be positive, got %d", c.MaxConcurrent)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("config: min_confidence must be in [0,1], got %g", c.MinConfidence)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("config: max_attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.DedupWindow <= 0 {
		return fmt.Errorf("config: dedup_window must be positive, got %s", c.DedupWindow)
	}
	if c.InferenceTimeout <= 0 {
		return fmt.Errorf("config: inference_timeout must be positive, got %s", c.InferenceTimeout)
	}
	if c.EmbedDimension <= 0 {
		return fmt.Errorf("config: embed_dimension must be positive, got %d", c.EmbedDimension)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
