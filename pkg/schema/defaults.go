package schema

import "fmt"

// DefaultEventTypes are the GitHub event names stored in github_events.type.
var DefaultEventTypes = []string{
	"CommitCommentEvent",
	"CreateEvent",
	"DeleteEvent",
	"ForkEvent",
	"GollumEvent",
	"IssueCommentEvent",
	"IssuesEvent",
	"MemberEvent",
	"PublicEvent",
	"PullRequestEvent",
	"PullRequestReviewCommentEvent",
	"PullRequestReviewEvent",
	"PushEvent",
	"ReleaseEvent",
	"SponsorshipEvent",
	"WatchEvent",
}

// DefaultActionValues are the values the action column is known to carry.
// The column is a plain string upstream, so introspection cannot recover them.
var DefaultActionValues = []string{
	"created",
	"added",
	"edited",
	"deleted",
	"opened",
	"closed",
	"reopened",
	"started",
	"published",
}

// GitHubEvents returns the built-in github_events schema.
func GitHubEvents() TableSchema {
	return TableSchema{
		TableName: DefaultTableName,
		Columns: []ColumnInfo{
			{Name: "repo_name", Type: "LowCardinality(String)"},
			{Name: "actor_login", Type: "LowCardinality(String)"},
			{Name: "action", Type: "LowCardinality(String)"},
			{Name: "ref", Type: "String"},
			{Name: "title", Type: "String"},
			{Name: "number", Type: "UInt32"},
			{Name: "additions", Type: "UInt32"},
			{Name: "deletions", Type: "UInt32"},
			{Name: "is_private", Type: "UInt8"},
			{Name: "created_at", Type: "DateTime"},
			{Name: "type", Type: enum8Type(DefaultEventTypes), EnumValues: append([]string(nil), DefaultEventTypes...)},
		},
	}
}

func enum8Type(values []string) string {
	s := "Enum8("
	for i, v := range values {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("'%s' = %d", v, i+1)
	}
	return s + ")"
}
