package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL",
		"TINYBIRD_HOST", "TINYBIRD_TOKEN", "CLICKHOUSE_DSN",
		"TABLE_NAME", "SCHEMA_FILE", "PORT",
		"MAX_ATTEMPTS", "EVAL_CONCURRENCY", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadMissing(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	assert.Contains(t, err.Error(), "TINYBIRD_HOST")
	assert.Contains(t, err.Error(), "TINYBIRD_TOKEN")
}

func TestLoadTinybirdDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TINYBIRD_HOST", "https://api.tinybird.co")
	t.Setenv("TINYBIRD_TOKEN", "tb")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-5", cfg.OpenAIModel)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAIBaseURL)
	assert.Equal(t, "github_events", cfg.TableName)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 4, cfg.EvalConcurrency)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.UseClickHouse())
}

func TestLoadClickHouseReplacesTinybird(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("CLICKHOUSE_DSN", "default:@tcp(localhost:9004)/default")
	t.Setenv("MAX_ATTEMPTS", "5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.UseClickHouse())
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadInvalidNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("CLICKHOUSE_DSN", "dsn")
	t.Setenv("EVAL_CONCURRENCY", "zero")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EVAL_CONCURRENCY")
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
