// Package app wires configuration into the executor, schema cache, model
// client, pipeline and eval runner shared by every entry point.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/raindrop/eventsql/pkg/clickhouse"
	"github.com/raindrop/eventsql/pkg/config"
	"github.com/raindrop/eventsql/pkg/eval"
	"github.com/raindrop/eventsql/pkg/llm"
	"github.com/raindrop/eventsql/pkg/pipeline"
	"github.com/raindrop/eventsql/pkg/resultset"
	"github.com/raindrop/eventsql/pkg/schema"
	"github.com/raindrop/eventsql/pkg/server"
	"github.com/raindrop/eventsql/pkg/tinybird"
)

type App struct {
	Config   *config.Config
	Executor resultset.Executor
	Schemas  *schema.Cache
	Model    *llm.Client
	Pipeline *pipeline.Pipeline
	Evals    *eval.Runner

	closers []func() error
}

// New builds an App from cfg. Backends that hold connections are closed by
// Close.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	var loader schema.Loader
	if cfg.UseClickHouse() {
		ch, err := clickhouse.Open(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, ch.Close)
		a.Executor = ch
		loader = ch.SchemaLoader(cfg.TableName)
	} else {
		tb := tinybird.NewClient(cfg.TinybirdHost, cfg.TinybirdToken)
		a.Executor = tb
		loader = tb.SchemaLoader(cfg.TableName)
	}

	if cfg.SchemaFile != "" {
		s, err := schema.LoadFile(cfg.SchemaFile)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Schemas = schema.Static(s)
	} else {
		a.Schemas = schema.NewCache(loader)
	}

	a.Model = llm.NewClient(cfg)
	a.Pipeline = pipeline.New(a.Model, a.Executor, a.Schemas, cfg.MaxAttempts)
	a.Evals = eval.NewRunner(a.Pipeline, a.Executor, a.Schemas, cfg.EvalConcurrency)
	return a, nil
}

// Server returns the HTTP handlers bound to this App.
func (a *App) Server() *server.Server {
	return server.New(a.Pipeline, a.Evals, a.Schemas)
}

// Close releases backend connections.
func (a *App) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// LoadSchema warms the schema cache and logs what was loaded.
func (a *App) LoadSchema(ctx context.Context) (schema.TableSchema, error) {
	s, err := a.Schemas.Get(ctx)
	if err != nil {
		return schema.TableSchema{}, fmt.Errorf("failed to fetch schema: %w", err)
	}
	slog.InfoContext(ctx, "Schema loaded", "table", s.TableName, "columns", len(s.Columns))
	for _, c := range s.Columns {
		slog.DebugContext(ctx, "Column loaded", "name", c.Name, "type", c.Type, "category", c.Category())
	}
	return s, nil
}

// SetupLogging installs the default text logger at level.
func SetupLogging(level slog.Level) {
	slog.SetDefault(NewLogger(os.Stdout, level))
}

// NewLogger returns a text logger writing to w. Source locations are added
// at debug level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}))
}
