package handler

import (
	"log/slog"
	"net/http"

	"github.com/raindrop/eventsql/pkg/app"
	"github.com/raindrop/eventsql/pkg/config"
	"github.com/raindrop/eventsql/pkg/server"
)

// Handler is the Vercel serverless function entry point for evals
func Handler(w http.ResponseWriter, r *http.Request) {
	server.Middleware(http.HandlerFunc(handle)).ServeHTTP(w, r)
}

func handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load config", "error", err)
		http.Error(w, `{"error":"server configuration error"}`, http.StatusInternalServerError)
		return
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to initialize", "error", err)
		http.Error(w, `{"error":"failed to initialize backend"}`, http.StatusInternalServerError)
		return
	}
	defer a.Close()

	if _, err := a.LoadSchema(ctx); err != nil {
		slog.ErrorContext(ctx, "Failed to fetch schema", "error", err)
		http.Error(w, `{"error":"failed to fetch schema"}`, http.StatusInternalServerError)
		return
	}

	a.Server().HandleEval(w, r)
}
