package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/raindrop/eventsql/pkg/app"
	"github.com/raindrop/eventsql/pkg/config"
	"github.com/raindrop/eventsql/pkg/server"
)

// Handler is the Vercel serverless function entry point
func Handler(w http.ResponseWriter, r *http.Request) {
	server.Middleware(http.HandlerFunc(handle)).ServeHTTP(w, r)
}

func handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	// Load config from environment
	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load config", "error", err)
		http.Error(w, `{"error":"server configuration error"}`, http.StatusInternalServerError)
		return
	}

	// Schema is fetched on every request in serverless - no caching across invocations
	start := time.Now()
	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to initialize", "error", err)
		http.Error(w, `{"error":"failed to initialize backend"}`, http.StatusInternalServerError)
		return
	}
	defer a.Close()
	slog.DebugContext(ctx, "App initialized", "duration", time.Since(start))

	a.Server().HandleQuery(w, r)
}
