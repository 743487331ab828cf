package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiStub(t *testing.T, resp queryResponse) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body["query"])
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunCasePasses(t *testing.T) {
	srv := apiStub(t, queryResponse{
		SQL:  "SELECT count() AS total FROM github_events",
		Data: []map[string]any{{"total": 10.0}},
		Rows: 1,
	})

	res := runCase(context.Background(), srv.Client(), srv.URL, testCases[0])
	assert.True(t, res.Passed, res.Details)
	assert.Equal(t, "Grammar: ✓, SQL Patterns: ✓, Semantic: ✓", res.Details)
}

func TestRunCaseGrammarFailure(t *testing.T) {
	srv := apiStub(t, queryResponse{
		SQL:  "SELECT count() FROM github_events",
		Data: []map[string]any{{"count()": 10.0}},
		Rows: 1,
	})

	res := runCase(context.Background(), srv.Client(), srv.URL, testCases[0])
	assert.False(t, res.Passed)
	assert.Equal(t, "Grammar: ✗, SQL Patterns: ✓, Semantic: ✓", res.Details)
}

func TestRunCaseResponseError(t *testing.T) {
	srv := apiStub(t, queryResponse{Error: "all generation attempts failed"})

	res := runCase(context.Background(), srv.Client(), srv.URL, testCases[1])
	assert.False(t, res.Passed)
	assert.Contains(t, res.Details, "Response error: all generation attempts failed")
}

func TestRunCaseAPIError(t *testing.T) {
	res := runCase(context.Background(), http.DefaultClient, "http://127.0.0.1:1/api/query", testCases[0])
	assert.False(t, res.Passed)
	assert.Contains(t, res.Details, "API error")
}

func TestContainsAll(t *testing.T) {
	assert.True(t, containsAll("select Count() from github_events", []string{"COUNT()", "FROM GITHUB_EVENTS"}))
	assert.False(t, containsAll("SELECT 1", []string{"FROM"}))
	assert.True(t, containsAll("SELECT 1", nil))
}
