package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LLMProvider != ProviderOllama {
		t.Errorf("LLMProvider = %q, want ollama", cfg.LLMProvider)
	}
	if cfg.BatchSize != 50 || cfg.MaxConcurrent != 5 || cfg.MaxAttempts != 3 {
		t.Errorf("pipeline defaults = %d/%d/%d, want 50/5/3",
			cfg.BatchSize, cfg.MaxConcurrent, cfg.MaxAttempts)
	}
	if cfg.MinConfidence != 0.3 {
		t.Errorf("MinConfidence = %v, want 0.3", cfg.MinConfidence)
	}
	if cfg.DedupWindow != 24*time.Hour {
		t.Errorf("DedupWindow = %v, want 24h", cfg.DedupWindow)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("INSIGHTD_BATCH_SIZE", "10")
	t.Setenv("INSIGHTD_MIN_CONFIDENCE", "0.55")
	t.Setenv("INSIGHTD_DEDUP_WINDOW", "2h")
	t.Setenv("INSIGHTD_REQUIRE_VALIDATION", "true")
	t.Setenv("INSIGHTD_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.BatchSize)
	}
	if cfg.MinConfidence != 0.55 {
		t.Errorf("MinConfidence = %v, want 0.55", cfg.MinConfidence)
	}
	if cfg.DedupWindow != 2*time.Hour {
		t.Errorf("DedupWindow = %v, want 2h", cfg.DedupWindow)
	}
	if !cfg.RequireValidation {
		t.Error("RequireValidation = false, want true")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insightd.yaml")
	content := []byte(`
batch_size: 20
min_confidence: 0.5
inference_timeout: 45s
sweep_interval: 30m
log_level: warn
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INSIGHTD_CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BatchSize != 20 || cfg.MinConfidence != 0.5 {
		t.Errorf("file values not applied: %d / %v", cfg.BatchSize, cfg.MinConfidence)
	}
	if cfg.InferenceTimeout != 45*time.Second {
		t.Errorf("InferenceTimeout = %v, want 45s", cfg.InferenceTimeout)
	}
	if cfg.SweepInterval != 30*time.Minute {
		t.Errorf("SweepInterval = %v, want 30m", cfg.SweepInterval)
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Errorf("LogLevel = %v, want warn", cfg.LogLevel)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insightd.yaml")
	if err := os.WriteFile(path, []byte("batch_size: 20\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INSIGHTD_CONFIG_FILE", path)
	t.Setenv("INSIGHTD_BATCH_SIZE", "99")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BatchSize != 99 {
		t.Errorf("BatchSize = %d, want env value 99", cfg.BatchSize)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"openai without key", func(c *Config) { c.LLMProvider = ProviderOpenAI }, true},
		{"anthropic without key", func(c *Config) { c.LLMProvider = ProviderAnthropic }, true},
		{"openai with key", func(c *Config) {
			c.LLMProvider = ProviderOpenAI
			c.OpenAIAPIKey = "sk-test"
		}, false},
		{"unknown provider", func(c *Config) { c.LLMProvider = "palm" }, true},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, true},
		{"negative concurrency", func(c *Config) { c.MaxConcurrent = -1 }, true},
		{"confidence above one", func(c *Config) { c.MinConfidence = 1.2 }, true},
		{"zero max attempts", func(c *Config) { c.MaxAttempts = 0 }, true},
		{"zero dedup window", func(c *Config) { c.DedupWindow = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
