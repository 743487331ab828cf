package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	TinybirdHost  string
	TinybirdToken string
	ClickHouseDSN string

	TableName  string
	SchemaFile string

	Port            string
	MaxAttempts     int
	EvalConcurrency int
	LogLevel        slog.Level
}

// Load loads and validates all environment variables.
// Returns an error listing every required variable that is missing.
func Load() (*Config, error) {
	var missing []string

	openaiKey := os.Getenv("OPENAI_API_KEY")
	if openaiKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}

	cfg := &Config{
		OpenAIAPIKey:  openaiKey,
		OpenAIModel:   getenv("OPENAI_MODEL", "gpt-5"),
		OpenAIBaseURL: getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		TinybirdHost:  os.Getenv("TINYBIRD_HOST"),
		TinybirdToken: os.Getenv("TINYBIRD_TOKEN"),
		ClickHouseDSN: os.Getenv("CLICKHOUSE_DSN"),
		TableName:     getenv("TABLE_NAME", "github_events"),
		SchemaFile:    os.Getenv("SCHEMA_FILE"),
		Port:          getenv("PORT", "8080"),
	}

	// One execution backend is required: Tinybird or ClickHouse.
	if cfg.ClickHouseDSN == "" {
		if cfg.TinybirdHost == "" {
			missing = append(missing, "TINYBIRD_HOST")
		}
		if cfg.TinybirdToken == "" {
			missing = append(missing, "TINYBIRD_TOKEN")
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v (or set CLICKHOUSE_DSN instead of TINYBIRD_*)", missing)
	}

	var err error
	if cfg.MaxAttempts, err = getenvInt("MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.EvalConcurrency, err = getenvInt("EVAL_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = ParseLevel(os.Getenv("LOG_LEVEL")); err != nil {
		return nil, err
	}

	return cfg, nil
}

// UseClickHouse reports whether queries go to ClickHouse directly instead of Tinybird.
func (c *Config) UseClickHouse() bool {
	return c.ClickHouseDSN != ""
}

// ParseLevel maps LOG_LEVEL values to slog levels; empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, raw)
	}
	return n, nil
}
