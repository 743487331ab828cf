package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/raindrop/eventsql/pkg/app"
	"github.com/raindrop/eventsql/pkg/config"
	"github.com/raindrop/eventsql/pkg/eval"
)

// This CLI runs evals at build time and fails the build if any eval fails.
// Usage: go run ./cmd/eval-check
func main() {
	_ = godotenv.Load()

	// Load config from environment
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	app.SetupLogging(cfg.LogLevel)
	slog.Info("Running build-time evals...")

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if _, err := a.LoadSchema(ctx); err != nil {
		slog.Error("Failed to fetch schema", "error", err)
		a.Close()
		os.Exit(1)
	}

	slog.Info("Running evals...")
	results, evalErr := a.Evals.Run(ctx, eval.DefaultCases())
	eval.LogResults(ctx, results, slog.LevelError)

	if evalErr != nil {
		slog.Error("BUILD FAILED: Evals did not pass", "error", evalErr)
		a.Close()
		os.Exit(1)
	}

	slog.Info("BUILD OK: All evals passed")
}
