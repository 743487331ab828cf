// Command api-evals runs semantic checks against a running query API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/raindrop/eventsql/pkg/grammar"
)

type testCase struct {
	Name           string
	Query          string
	ExpectedInSQL  []string // Substrings that should appear in SQL
	ValidateResult func(data []map[string]any) bool
}

// Test cases for semantic evaluation
var testCases = []testCase{
	{
		Name:          "Total Events",
		Query:         "How many events are there in total?",
		ExpectedInSQL: []string{"count()", "FROM github_events"},
		ValidateResult: func(data []map[string]any) bool {
			// Should return exactly one row with a count
			return len(data) == 1
		},
	},
	{
		Name:          "Top Repositories By Stars",
		Query:         "Which 10 repositories got the most stars?",
		ExpectedInSQL: []string{"repo_name", "WatchEvent", "GROUP BY", "LIMIT 10"},
		ValidateResult: func(data []map[string]any) bool {
			return len(data) > 0 && len(data) <= 10
		},
	},
	{
		Name:          "Pushes Per Day",
		Query:         "How many pushes happened per day over the last week?",
		ExpectedInSQL: []string{"toStartOfDay(created_at)", "PushEvent", "GROUP BY"},
		ValidateResult: func(data []map[string]any) bool {
			return len(data) <= 8
		},
	},
	{
		Name:          "Distinct Actors",
		Query:         "How many distinct users opened pull requests?",
		ExpectedInSQL: []string{"uniq(actor_login)", "PullRequestEvent"},
		ValidateResult: func(data []map[string]any) bool {
			if len(data) != 1 {
				return false
			}
			for _, v := range data[0] {
				if num, ok := v.(float64); ok && num >= 0 {
					return true
				}
			}
			return false
		},
	},
}

type queryResponse struct {
	SQL   string           `json:"sql"`
	Data  []map[string]any `json:"data"`
	Rows  int              `json:"rows"`
	Error string           `json:"error,omitempty"`
}

type evalResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	SQL     string `json:"sql,omitempty"`
	Details string `json:"details"`
}

func main() {
	_ = godotenv.Load()

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api/query"
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println(" CFG SQL Generation Evals")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()

	client := &http.Client{Timeout: 2 * time.Minute}
	ctx := context.Background()

	var results []evalResult
	passed := 0
	for i, tc := range testCases {
		fmt.Printf("[%d/%d] %s\n", i+1, len(testCases), tc.Name)
		fmt.Printf("    Query: %s\n", tc.Query)

		result := runCase(ctx, client, apiURL, tc)
		results = append(results, result)
		if result.SQL != "" {
			fmt.Printf("    SQL: %s\n", result.SQL)
		}
		if result.Passed {
			passed++
			fmt.Printf("    PASSED: %s\n\n", result.Details)
		} else {
			fmt.Printf("    FAILED: %s\n\n", result.Details)
		}
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf(" Results: %d/%d passed\n", passed, len(testCases))
	fmt.Println(strings.Repeat("=", 60))

	jsonResults, err := json.MarshalIndent(results, "", "  ")
	if err == nil {
		err = os.WriteFile("eval_results.json", jsonResults, 0o644)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to save results: %v\n", err)
	} else {
		fmt.Println("\nResults saved to eval_results.json")
	}

	if passed < len(testCases) {
		os.Exit(1)
	}
}

func runCase(ctx context.Context, client *http.Client, url string, tc testCase) evalResult {
	resp, err := callAPI(ctx, client, url, tc.Query)
	if err != nil {
		return evalResult{Name: tc.Name, Details: fmt.Sprintf("API error: %v", err)}
	}
	if resp.Error != "" {
		return evalResult{Name: tc.Name, SQL: resp.SQL, Details: fmt.Sprintf("Response error: %s", resp.Error)}
	}

	// Eval 1: grammar validity
	grammarOk := grammar.IsValidGrammarSQL(resp.SQL)

	// Eval 2: expected SQL patterns
	patternsOk := containsAll(resp.SQL, tc.ExpectedInSQL)

	// Eval 3: semantic validation
	semanticOk := tc.ValidateResult(resp.Data)

	return evalResult{
		Name:   tc.Name,
		Passed: grammarOk && patternsOk && semanticOk,
		SQL:    resp.SQL,
		Details: fmt.Sprintf("Grammar: %s, SQL Patterns: %s, Semantic: %s",
			status(grammarOk), status(patternsOk), status(semanticOk)),
	}
}

func callAPI(ctx context.Context, client *http.Client, url, query string) (*queryResponse, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result queryResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode response (%d): %w", resp.StatusCode, err)
	}
	return &result, nil
}

func containsAll(sql string, want []string) bool {
	upper := strings.ToUpper(sql)
	for _, w := range want {
		if !strings.Contains(upper, strings.ToUpper(w)) {
			return false
		}
	}
	return true
}

func status(b bool) string {
	if b {
		return "✓"
	}
	return "✗"
}
