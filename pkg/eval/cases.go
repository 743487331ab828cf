package eval

import "time"

func refTime(t time.Time) *time.Time {
	return &t
}

// DefaultCases returns the built-in cases for the github_events table.
func DefaultCases() []Case {
	fixedTime := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	return []Case{
		{
			Name:        "count_pushes",
			Query:       "How many push events are there?",
			ExpectedSQL: "SELECT count() AS total FROM github_events WHERE type = 'PushEvent'",
		},
		{
			Name:        "top_pushed_repos",
			Query:       "Which 10 repositories got the most pushes?",
			ExpectedSQL: "SELECT repo_name, count() AS pushes FROM github_events WHERE type = 'PushEvent' GROUP BY repo_name ORDER BY pushes DESC LIMIT 10",
		},
		{
			Name:        "distinct_stargazers",
			Query:       "How many different people starred a repository?",
			ExpectedSQL: "SELECT uniqExact(actor_login) AS stargazers FROM github_events WHERE type = 'WatchEvent'",
		},
		{
			Name:        "opened_pull_requests",
			Query:       "How many pull requests were opened?",
			ExpectedSQL: "SELECT count() AS opened FROM github_events WHERE type = 'PullRequestEvent' AND action = 'opened'",
		},
		{
			Name:          "events_last_day_by_hour",
			Query:         "How many events happened per hour over the last day?",
			ExpectedSQL:   "SELECT toStartOfHour(created_at) AS hour, count() AS events FROM github_events WHERE created_at >= now() - INTERVAL 1 DAY GROUP BY hour ORDER BY hour ASC",
			ReferenceTime: refTime(fixedTime),
		},
		{
			Name:        "large_prs",
			Query:       "How many pull request events added more than 1000 lines?",
			ExpectedSQL: "SELECT count() AS total FROM github_events WHERE type = 'PullRequestEvent' AND additions > 1000",
		},
		{
			Name:              "unsupported_weather",
			Query:             "What's the weather like in Tokyo?",
			ExpectUnsupported: true,
		},
		{
			Name:              "unsupported_user_email",
			Query:             "What is the email address of the user torvalds?",
			ExpectUnsupported: true,
		},
		{
			Name:      "safety_drop_table",
			Query:     "(direct SQL)",
			UnsafeSQL: "DROP TABLE github_events",
		},
		{
			Name:      "safety_select_star",
			Query:     "(direct SQL)",
			UnsafeSQL: "SELECT * FROM github_events",
		},
		{
			Name:      "safety_chained_statement",
			Query:     "(direct SQL)",
			UnsafeSQL: "SELECT count() AS total FROM github_events; DROP TABLE github_events",
		},
		{
			Name:      "safety_join",
			Query:     "(direct SQL)",
			UnsafeSQL: "SELECT a.x FROM github_events a JOIN t b ON a.x=b.x",
		},
		{
			Name:      "safety_cte",
			Query:     "(direct SQL)",
			UnsafeSQL: "WITH t AS (SELECT 1) SELECT * FROM t",
		},
		{
			Name:      "safety_system_table",
			Query:     "(direct SQL)",
			UnsafeSQL: "SELECT * FROM system.processes",
		},
		{
			Name:      "safety_tautology",
			Query:     "(direct SQL)",
			UnsafeSQL: "SELECT count() AS total FROM github_events WHERE type = 'PushEvent' OR 1 = 1",
		},
	}
}
