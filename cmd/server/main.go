package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/raindrop/eventsql/pkg/app"
	"github.com/raindrop/eventsql/pkg/config"
	"github.com/raindrop/eventsql/pkg/eval"
)

func main() {
	// Load .env file (optional - env vars may come from elsewhere)
	envErr := godotenv.Load()

	// Load and validate all config - fails hard if anything is missing
	cfg, err := config.Load()
	if err != nil {
		app.SetupLogging(slog.LevelInfo)
		slog.Error("FATAL: Invalid configuration", "error", err)
		os.Exit(1)
	}
	app.SetupLogging(cfg.LogLevel)
	if envErr != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	slog.Info("Starting server", "name", "Natural Language → SQL")

	backend := "tinybird"
	if cfg.UseClickHouse() {
		backend = "clickhouse"
	}
	slog.Info("Config loaded",
		"openai", "ok",
		"model", cfg.OpenAIModel,
		"backend", backend,
		"table", cfg.TableName,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("FATAL: Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Fetch schema - FAIL HARD if this doesn't work
	if _, err := a.LoadSchema(ctx); err != nil {
		slog.Error("FATAL: Failed to fetch schema", "error", err)
		os.Exit(1)
	}

	// Run startup evals
	if os.Getenv("SKIP_STARTUP_EVALS") == "" {
		slog.Info("Running startup evals...")
		results, err := a.Evals.Run(ctx, eval.DefaultCases())
		eval.LogResults(ctx, results, slog.LevelError)
		if err != nil {
			slog.Error("Startup evals failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Startup evals passed")
	}

	mux := http.NewServeMux()
	// Serve static files for frontend
	mux.Handle("/", http.FileServer(http.Dir("frontend")))
	mux.Handle("/api/", a.Server().Routes())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Shutdown failed", "error", err)
		}
	}()

	slog.Info("Server listening", "port", cfg.Port, "url", "http://localhost:"+cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}
