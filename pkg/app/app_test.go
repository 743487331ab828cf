package app

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raindrop/eventsql/pkg/config"
	"github.com/raindrop/eventsql/pkg/schema"
	"github.com/raindrop/eventsql/pkg/tinybird"
)

func baseConfig() *config.Config {
	return &config.Config{
		OpenAIAPIKey:    "sk-test",
		OpenAIModel:     "gpt-5",
		TinybirdHost:    "http://127.0.0.1:1",
		TinybirdToken:   "t",
		TableName:       "github_events",
		MaxAttempts:     3,
		EvalConcurrency: 2,
	}
}

func TestNewWithSchemaFile(t *testing.T) {
	cfg := baseConfig()
	cfg.SchemaFile = "testdata/events.toml"

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &tinybird.Client{}, a.Executor)

	s, err := a.LoadSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "events", s.TableName)
	assert.Equal(t, []string{"stars"}, s.ColumnsIn(schema.CategoryNumeric))
	assert.NotNil(t, a.Server())
}

func TestNewMissingSchemaFile(t *testing.T) {
	cfg := baseConfig()
	cfg.SchemaFile = "testdata/missing.toml"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema: open file")
}

func TestNewLoadsSchemaFromTinybird(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"datasources":[{"name":"github_events","columns":[{"name":"repo_name","type":"String"}]}]}`))
	}))
	defer srv.Close()

	cfg := baseConfig()
	cfg.TinybirdHost = srv.URL

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)

	s, err := a.LoadSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"repo_name"}, s.ColumnsIn(schema.CategoryString))
}

func TestNewClickHouseUnreachable(t *testing.T) {
	cfg := baseConfig()
	cfg.ClickHouseDSN = "default:@tcp(127.0.0.1:1)/default"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping clickhouse")
}

func TestLoadSchemaError(t *testing.T) {
	a, err := New(context.Background(), baseConfig())
	require.NoError(t, err)

	_, err = a.LoadSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch schema")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown k=v")
	assert.NotContains(t, out, "source=")
}
