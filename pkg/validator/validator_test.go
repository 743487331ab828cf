package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raindrop/eventsql/pkg/schema"
)

func codes(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}

func TestValidateAcceptsGrammarQueries(t *testing.T) {
	queries := []string{
		"SELECT count() AS total FROM github_events WHERE type = 'PushEvent'",
		"SELECT repo_name, count() AS pushes FROM github_events WHERE type = 'PushEvent' GROUP BY repo_name ORDER BY pushes DESC LIMIT 10",
		"SELECT actor_login, sum(additions) AS added FROM github_events WHERE created_at >= now() - INTERVAL 7 DAY GROUP BY actor_login",
		"SELECT uniqExact(actor_login) AS actors FROM github_events WHERE repo_name LIKE '%linux%' AND additions > 100",
		"SELECT count() AS n FROM github_events WHERE action = 'deleted'",
	}
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			issues := Validate(q, schema.GitHubEvents())
			assert.False(t, HasErrors(issues), "unexpected errors: %v", Errors(issues))
		})
	}
}

func TestValidateFindsErrors(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want string
	}{
		{"drop", "DROP TABLE github_events", "forbidden_keyword"},
		{"chained", "SELECT 1; DROP TABLE github_events", "multiple_statements"},
		{"system table", "SELECT * FROM system.processes", "system_table"},
		{"wildcard", "SELECT * FROM github_events", "wildcard"},
		{"join", "SELECT a.x FROM github_events a JOIN t b ON a.x=b.x", "join"},
		{"subquery", "SELECT repo_name FROM github_events WHERE repo_name IN (SELECT repo_name FROM github_events)", "subquery"},
		{"cte", "WITH t AS (SELECT 1) SELECT * FROM t", "cte"},
		{"unknown column", "SELECT stars FROM github_events", "unknown_column"},
		{"unknown table", "SELECT repo_name FROM repos", "unknown_table"},
		{"missing group by", "SELECT repo_name, count() AS n FROM github_events", "missing_group_by"},
		{"wrong group by", "SELECT repo_name, count() AS n FROM github_events GROUP BY actor_login", "missing_group_by"},
		{"empty range", "SELECT count() AS n FROM github_events WHERE created_at BETWEEN '2024-02-01' AND '2024-01-01'", "empty_range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := Validate(tt.sql, schema.GitHubEvents())
			assert.True(t, HasErrors(issues))
			assert.Contains(t, codes(issues), tt.want)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	issues := Validate("SELECT repo_name FROM github_events LIMIT 50000", schema.GitHubEvents())
	assert.False(t, HasErrors(issues))
	assert.Equal(t, []string{"large_limit"}, codes(issues))
}

func TestValidateUnparsedIsWarning(t *testing.T) {
	issues := Validate("SELECT repo_name FROM github_events WHERE ((", schema.GitHubEvents())
	assert.False(t, HasErrors(issues))
	assert.Contains(t, codes(issues), "unparsed")
}

func TestValidateIgnoresKeywordsInLiterals(t *testing.T) {
	issues := Validate("SELECT count() AS n FROM github_events WHERE title = 'DROP TABLE; system.x'", schema.GitHubEvents())
	assert.False(t, HasErrors(issues), "%v", issues)
}

func TestValidateUsesSchemaTable(t *testing.T) {
	s := schema.TableSchema{
		TableName: "pushes",
		Columns:   []schema.ColumnInfo{{Name: "repo", Type: "String"}},
	}
	assert.False(t, HasErrors(Validate("SELECT repo FROM pushes", s)))
	assert.Contains(t, codes(Validate("SELECT repo FROM github_events", s)), "unknown_table")
}

func TestIssueString(t *testing.T) {
	i := Issue{Level: LevelError, Code: "join", Message: "joins are not allowed"}
	assert.Equal(t, "error [join]: joins are not allowed", i.String())
}
