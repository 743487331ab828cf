package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raindrop/eventsql/pkg/eval"
	"github.com/raindrop/eventsql/pkg/grammar"
	"github.com/raindrop/eventsql/pkg/llm"
	"github.com/raindrop/eventsql/pkg/pipeline"
	"github.com/raindrop/eventsql/pkg/resultset"
	"github.com/raindrop/eventsql/pkg/schema"
)

type fakeAsker struct {
	res *pipeline.Result
	err error
}

func (f *fakeAsker) Run(ctx context.Context, question string) (*pipeline.Result, error) {
	return f.res, f.err
}

type fakeEvals struct {
	got []eval.Case
}

func (f *fakeEvals) Run(ctx context.Context, cases []eval.Case) ([]eval.Result, error) {
	f.got = cases
	return []eval.Result{{Name: "a", Passed: true}, {Name: "b", Error: "data mismatch"}}, errors.New("eval b failed: data mismatch")
}

const goodSQL = "SELECT count() AS total FROM github_events WHERE type = 'PushEvent'"

func newServer(a *fakeAsker) (*Server, *fakeEvals) {
	evals := &fakeEvals{}
	return New(a, evals, schema.Static(schema.GitHubEvents())), evals
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleQuery(t *testing.T) {
	tree := grammar.ParseQuery(goodSQL)
	srv, _ := newServer(&fakeAsker{res: &pipeline.Result{
		SQL:      goodSQL,
		Tree:     tree,
		Data:     &resultset.Result{Columns: []string{"total"}, Data: []map[string]any{{"total": 42.0}}, Rows: 1},
		Answer:   "42 pushes.",
		Attempts: []pipeline.Attempt{{SQL: goodSQL, Stage: pipeline.StageAccepted}},
	}})

	rec := do(t, srv.Routes(), http.MethodPost, "/api/query", `{"query":"How many pushes?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, goodSQL, resp.SQL)
	assert.Equal(t, []string{"total"}, resp.Columns)
	assert.Equal(t, 1, resp.Rows)
	assert.Equal(t, "42 pushes.", resp.Answer)
	require.NotNil(t, resp.Tree)
	assert.Equal(t, grammar.RuleQuery, resp.Tree.Rule)
	assert.Equal(t, goodSQL, resp.Tree.Text)
}

func TestHandleQueryErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		err    error
		status int
		want   string
		hint   string
	}{
		{name: "method", method: http.MethodGet, status: http.StatusMethodNotAllowed, want: "method not allowed"},
		{name: "bad body", method: http.MethodPost, body: "{", status: http.StatusBadRequest, want: "invalid request body"},
		{name: "empty", method: http.MethodPost, body: `{"query":""}`, status: http.StatusBadRequest, want: "query is required"},
		{
			name: "unsupported", method: http.MethodPost, body: `{"query":"weather"}`,
			err:    llm.ErrUnsupportedQuery{Reason: "no weather data", AvailableData: "Available data: github_events"},
			status: http.StatusBadRequest, want: "no weather data", hint: "Available data: github_events",
		},
		{
			name: "exhausted", method: http.MethodPost, body: `{"query":"q"}`,
			err:    &pipeline.AttemptsError{Attempts: []pipeline.Attempt{{SQL: "SELECT *"}}, Last: pipeline.ErrGrammarRejected},
			status: http.StatusUnprocessableEntity, want: "all generation attempts failed",
		},
		{
			name: "internal", method: http.MethodPost, body: `{"query":"q"}`,
			err:    errors.New("openai error (500): boom"),
			status: http.StatusInternalServerError, want: "openai error (500): boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(&fakeAsker{err: tt.err})
			rec := do(t, srv.Routes(), tt.method, "/api/query", tt.body)
			require.Equal(t, tt.status, rec.Code)

			var resp QueryResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp.Error, tt.want)
			assert.Equal(t, tt.hint, resp.Hint)
		})
	}
}

func TestHandleQueryPreflight(t *testing.T) {
	srv, _ := newServer(&fakeAsker{})
	rec := do(t, srv.Routes(), http.MethodOptions, "/api/query", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestHandleEval(t *testing.T) {
	srv, evals := newServer(&fakeAsker{})
	cases := []eval.Case{{Name: "a"}, {Name: "b"}}
	srv.WithCases(cases)

	rec := do(t, srv.Routes(), http.MethodGet, "/api/eval", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, cases, evals.got)

	var resp EvalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Passed)
	assert.Equal(t, 2, resp.Summary.Total)
	assert.Equal(t, 1, resp.Summary.Passed)
	assert.Contains(t, resp.Error, "eval b failed")
}

func TestHandleGrammar(t *testing.T) {
	srv, _ := newServer(&fakeAsker{})
	rec := do(t, srv.Routes(), http.MethodGet, "/api/grammar", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp GrammarResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "github_events", resp.Table)
	assert.Equal(t, "lark", resp.Format.Syntax)
	assert.Equal(t, grammar.BuildGrammar(schema.GitHubEvents()), resp.Format.Definition)
	assert.Contains(t, resp.Capabilities, "YOU MUST generate syntactically valid SQL")
}

func TestHandleVerify(t *testing.T) {
	srv, _ := newServer(&fakeAsker{})
	h := srv.Routes()

	rec := do(t, h, http.MethodPost, "/api/verify", `{"sql":"`+goodSQL+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var ok VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	assert.True(t, ok.Valid)
	assert.Equal(t, len(goodSQL), ok.Offset)
	assert.True(t, strings.HasPrefix(ok.Derivation, "query\n"))
	require.NotNil(t, ok.Tree)

	rec = do(t, h, http.MethodPost, "/api/verify", `{"sql":"SELECT count() AS total FROM github_events OR 1 = 1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var bad VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bad))
	assert.False(t, bad.Valid)
	assert.Equal(t, " OR 1 = 1", bad.Remainder)
	assert.Empty(t, bad.Issues)

	rec = do(t, h, http.MethodPost, "/api/verify", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMiddlewareKeepsRequestID(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}
