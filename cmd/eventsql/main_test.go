package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raindrop/eventsql/pkg/eval"
	"github.com/raindrop/eventsql/pkg/grammar"
	"github.com/raindrop/eventsql/pkg/schema"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestGrammarCommand(t *testing.T) {
	out, err := run(t, "grammar")
	require.NoError(t, err)
	assert.Equal(t, grammar.BuildGrammar(schema.GitHubEvents())+"\n", out)
}

func TestGrammarCommandOpenAI(t *testing.T) {
	out, err := run(t, "grammar", "--openai", "--schema", "testdata/events.toml")
	require.NoError(t, err)

	var format grammar.ToolFormat
	require.NoError(t, json.Unmarshal([]byte(out), &format))
	assert.Equal(t, "grammar", format.Type)
	assert.Equal(t, "lark", format.Syntax)
	assert.Contains(t, format.Definition, `"events"`)
}

func TestDescribeCommand(t *testing.T) {
	out, err := run(t, "describe")
	require.NoError(t, err)
	assert.Equal(t, grammar.DescribeGrammarCapabilities(schema.GitHubEvents()), out)
}

func TestVerifyCommand(t *testing.T) {
	out, err := run(t, "verify", "SELECT count() AS total FROM github_events WHERE type = 'PushEvent'")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "query\n"), out)
	assert.True(t, strings.HasSuffix(out, "OK\n"), out)
}

func TestVerifyCommandGrammarRejection(t *testing.T) {
	out, err := run(t, "verify", "SELECT repo_name FROM github_events WHERE repo_name = 'x' OR 1 = 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected by grammar")
	assert.Contains(t, err.Error(), `" OR 1 = 1"`)
	assert.Contains(t, out, "query (partial)")
}

func TestVerifyCommandValidatorError(t *testing.T) {
	out, err := run(t, "verify", "SELECT repo_name, count() AS n FROM github_events")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, out, "error [missing_group_by]")
}

func TestVerifyCommandNeedsSQL(t *testing.T) {
	_, err := run(t, "verify")
	require.Error(t, err)
}

func TestSchemaCommand(t *testing.T) {
	out, err := run(t, "schema", "--schema", "testdata/events.toml")
	require.NoError(t, err)
	assert.Contains(t, out, `table_name = "events"`)
	assert.Contains(t, out, `name = "stars"`)

	s, err := schema.Parse(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "events", s.TableName)
	assert.Len(t, s.Columns, 3)
}

func TestSchemaCommandMissingFile(t *testing.T) {
	_, err := run(t, "schema", "--schema", "testdata/nope.toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema: open file")
}

func TestAskCommandRejectsUnknownFormat(t *testing.T) {
	_, err := run(t, "ask", "--format", "xml", "how many pushes?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestResultsTable(t *testing.T) {
	res := resultsTable([]eval.Result{
		{Name: "a", Kind: eval.KindSafety, Passed: true, Duration: 1500 * time.Microsecond},
		{Name: "b", Kind: eval.KindExpectedSQL, Attempts: 3, Error: "data mismatch"},
	})

	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, []string{"name", "kind", "passed", "attempts", "duration", "error"}, res.Columns)
	assert.Equal(t, "safety", res.Data[0]["kind"])
	assert.Equal(t, "2ms", res.Data[0]["duration"])
	assert.Equal(t, false, res.Data[1]["passed"])
	assert.Equal(t, "data mismatch", res.Data[1]["error"])
}
