package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/raindrop/eventsql/pkg/grammar"
	"github.com/raindrop/eventsql/pkg/schema"
)

const (
	sqlToolName          = "sql_generator"
	cannotAnswerToolName = "cannot_answer"
)

// SQLRequest is one grammar-constrained generation call.
type SQLRequest struct {
	Question string
	Schema   schema.TableSchema
	// Feedback explains why the previous attempt was rejected; empty on the
	// first attempt.
	Feedback string
	// Now anchors relative time expressions. Zero means time.Now().
	Now time.Time
}

type CannotAnswerInput struct {
	Reason string `json:"reason"`
}

// GenerateSQL asks the model for one query constrained by the grammar built
// from req.Schema. A cannot_answer call comes back as ErrUnsupportedQuery.
func (c *Client) GenerateSQL(ctx context.Context, req SQLRequest) (string, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	parallel := false

	resp, err := c.createResponse(ctx, ResponsesRequest{
		Input: generatePrompt(req, now.UTC()),
		Tools: []Tool{
			{
				Type:        "custom",
				Name:        sqlToolName,
				Description: grammar.DescribeGrammarCapabilities(req.Schema),
				Format:      ptr(grammar.BuildGrammarForOpenAI(req.Schema)),
			},
			{
				Type:        "function",
				Name:        cannotAnswerToolName,
				Description: "Call this when the query cannot be answered with the available database schema. Use this for questions about data that doesn't exist in the tables, or for completely unrelated questions.",
				Parameters: objectSchema(map[string]any{
					"reason": map[string]any{
						"type":        "string",
						"description": "Brief explanation of why this query cannot be answered",
					},
				}, "reason"),
			},
		},
		ParallelToolCalls: &parallel,
	})
	if err != nil {
		return "", err
	}

	for _, item := range resp.Output {
		if item.Type == "custom_tool_call" && item.Name == sqlToolName {
			return strings.TrimSpace(item.Input), nil
		}

		if item.Type == "function_call" && item.Name == cannotAnswerToolName {
			unsupported := ErrUnsupportedQuery{
				Reason:        "Query cannot be answered with available data",
				AvailableData: req.Schema.Hint(),
			}
			var input CannotAnswerInput
			if err := json.Unmarshal([]byte(item.Arguments), &input); err == nil && input.Reason != "" {
				unsupported.Reason = input.Reason
			}
			return "", unsupported
		}
	}

	return "", fmt.Errorf("no SQL generated in response")
}

func generatePrompt(req SQLRequest, now time.Time) string {
	timeStr := now.Format("2006-01-02 15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, `Convert this natural language query to a valid ClickHouse SQL query against the %s table.

If the query CAN be answered with the available schema, call the %s tool.
If the query CANNOT be answered (asks for data not in the schema, or is unrelated to the database), call the %s tool with a brief explanation.

Current UTC time: %s
Use this timestamp for any relative time calculations (e.g., 'last 30 hours' means since %s minus 30 hours).
`, req.Schema.TableName, sqlToolName, cannotAnswerToolName, timeStr, timeStr)

	if req.Feedback != "" {
		fmt.Fprintf(&sb, "\nYour previous attempt was rejected:\n%s\nFix the problem and try again.\n", req.Feedback)
	}

	fmt.Fprintf(&sb, "\nQuery: %s", req.Question)
	return sb.String()
}

func ptr[T any](v T) *T {
	return &v
}
