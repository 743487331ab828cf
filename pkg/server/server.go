// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/raindrop/eventsql/pkg/eval"
	"github.com/raindrop/eventsql/pkg/grammar"
	"github.com/raindrop/eventsql/pkg/llm"
	"github.com/raindrop/eventsql/pkg/pipeline"
	"github.com/raindrop/eventsql/pkg/schema"
	"github.com/raindrop/eventsql/pkg/validator"
)

// Asker runs one question through the pipeline.
type Asker interface {
	Run(ctx context.Context, question string) (*pipeline.Result, error)
}

// EvalRunner runs eval cases.
type EvalRunner interface {
	Run(ctx context.Context, cases []eval.Case) ([]eval.Result, error)
}

// Server holds the application dependencies
type Server struct {
	asker   Asker
	evals   EvalRunner
	schemas *schema.Cache
	cases   []eval.Case
}

func New(asker Asker, evals EvalRunner, schemas *schema.Cache) *Server {
	return &Server{asker: asker, evals: evals, schemas: schemas, cases: eval.DefaultCases()}
}

// WithCases replaces the eval cases run by HandleEval.
func (s *Server) WithCases(cases []eval.Case) *Server {
	s.cases = cases
	return s
}

type QueryRequest struct {
	Query string `json:"query"`
}

type QueryResponse struct {
	SQL      string             `json:"sql"`
	Columns  []string           `json:"columns,omitempty"`
	Data     []map[string]any   `json:"data"`
	Rows     int                `json:"rows"`
	Answer   string             `json:"answer,omitempty"`
	Tree     *grammar.Node      `json:"tree,omitempty"`
	Issues   []validator.Issue  `json:"issues,omitempty"`
	Attempts []pipeline.Attempt `json:"attempts,omitempty"`
	Error    string             `json:"error,omitempty"`
	Hint     string             `json:"hint,omitempty"`
}

type VerifyRequest struct {
	SQL string `json:"sql"`
}

type VerifyResponse struct {
	grammar.Diagnosis
	Derivation string            `json:"derivation"`
	Issues     []validator.Issue `json:"issues,omitempty"`
	Error      string            `json:"error,omitempty"`
}

type GrammarResponse struct {
	Table        string             `json:"table"`
	Format       grammar.ToolFormat `json:"format"`
	Capabilities string             `json:"capabilities"`
}

type EvalResponse struct {
	Results []eval.Result `json:"results"`
	Summary eval.Summary  `json:"summary"`
	Passed  bool          `json:"passed"`
	Error   string        `json:"error,omitempty"`
}

// Routes registers every handler on a new mux wrapped in the request
// middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/query", s.HandleQuery)
	mux.HandleFunc("/api/eval", s.HandleEval)
	mux.HandleFunc("/api/grammar", s.HandleGrammar)
	mux.HandleFunc("/api/verify", s.HandleVerify)
	return Middleware(mux)
}

// HandleQuery handles natural language to SQL conversion
func (s *Server) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.ErrorContext(ctx, "Invalid request body", "error", err)
		writeJSON(w, http.StatusBadRequest, QueryResponse{Error: "invalid request body"})
		return
	}

	if req.Query == "" {
		slog.WarnContext(ctx, "Empty query received")
		writeJSON(w, http.StatusBadRequest, QueryResponse{Error: "query is required"})
		return
	}

	slog.InfoContext(ctx, "Query received", "query", req.Query)

	res, err := s.asker.Run(ctx, req.Query)
	if err != nil {
		// Check if the query is unsupported (can't be answered with available data)
		var unsupportedErr llm.ErrUnsupportedQuery
		if errors.As(err, &unsupportedErr) {
			slog.InfoContext(ctx, "Unsupported query", "reason", unsupportedErr.Reason, "duration", time.Since(start))
			writeJSON(w, http.StatusBadRequest, QueryResponse{
				Error: unsupportedErr.Reason,
				Hint:  unsupportedErr.AvailableData,
			})
			return
		}

		var attemptsErr *pipeline.AttemptsError
		if errors.As(err, &attemptsErr) {
			slog.WarnContext(ctx, "No acceptable SQL", "attempts", len(attemptsErr.Attempts), "error", err, "duration", time.Since(start))
			resp := QueryResponse{Error: err.Error(), Attempts: attemptsErr.Attempts}
			if n := len(attemptsErr.Attempts); n > 0 {
				resp.SQL = attemptsErr.Attempts[n-1].SQL
			}
			writeJSON(w, http.StatusUnprocessableEntity, resp)
			return
		}

		slog.ErrorContext(ctx, "Pipeline error", "error", err, "duration", time.Since(start))
		writeJSON(w, http.StatusInternalServerError, QueryResponse{Error: err.Error()})
		return
	}

	slog.InfoContext(ctx, "Query executed",
		"sql", res.SQL,
		"rows", res.Data.Rows,
		"attempts", len(res.Attempts),
		"total_duration", time.Since(start),
	)

	if len(res.Data.Data) > 0 {
		slog.DebugContext(ctx, "Sample result", "row", res.Data.Data[0])
	}

	writeJSON(w, http.StatusOK, QueryResponse{
		SQL:      res.SQL,
		Columns:  res.Data.ColumnNames(),
		Data:     res.Data.Data,
		Rows:     res.Data.Rows,
		Answer:   res.Answer,
		Tree:     res.Tree,
		Issues:   res.Issues,
		Attempts: res.Attempts,
	})
}

// HandleEval runs evals on demand
func (s *Server) HandleEval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	slog.InfoContext(ctx, "Running evals on demand", "cases", len(s.cases))

	results, err := s.evals.Run(ctx, s.cases)
	summary := eval.LogResults(ctx, results, slog.LevelWarn)

	resp := EvalResponse{Results: results, Summary: summary, Passed: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGrammar returns the materialized grammar for the current schema.
func (s *Server) HandleGrammar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !allowMethods(w, r, http.MethodGet) {
		return
	}

	sch, err := s.schemas.Get(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to fetch schema", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch schema"})
		return
	}

	writeJSON(w, http.StatusOK, GrammarResponse{
		Table:        sch.TableName,
		Format:       grammar.BuildGrammarForOpenAI(sch),
		Capabilities: grammar.DescribeGrammarCapabilities(sch),
	})
}

// HandleVerify checks a SQL string against the grammar and the validator
// without executing it.
func (s *Server) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SQL == "" {
		writeJSON(w, http.StatusBadRequest, VerifyResponse{Error: "sql is required"})
		return
	}

	sch, err := s.schemas.Get(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to fetch schema", "error", err)
		writeJSON(w, http.StatusInternalServerError, VerifyResponse{Error: "failed to fetch schema"})
		return
	}

	diag := grammar.NewParser(sch).Diagnose(req.SQL)
	resp := VerifyResponse{
		Diagnosis:  diag,
		Derivation: grammar.FormatDerivationTree(diag.Tree),
	}
	if diag.Valid {
		resp.Issues = validator.Validate(req.SQL, sch)
	}
	slog.InfoContext(ctx, "SQL verified", "valid", diag.Valid, "offset", diag.Offset)
	writeJSON(w, http.StatusOK, resp)
}

// allowMethods answers preflight requests and rejects other methods. It
// reports whether the handler should continue.
func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return false
	}
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	slog.WarnContext(r.Context(), "Method not allowed", "method", r.Method)
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

// Middleware sets CORS headers and a request ID, and logs each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		slog.Info("Request handled",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
