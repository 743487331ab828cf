package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/raindrop/eventsql/pkg/grammar"
	"github.com/raindrop/eventsql/pkg/resultset"
	"github.com/raindrop/eventsql/pkg/schema"
)

// maxSampleRows bounds how many result rows are shown to the model.
const maxSampleRows = 20

// Intent is the outcome of ClassifyIntent.
type Intent struct {
	Answerable bool   `json:"answerable"`
	Reason     string `json:"reason"`
}

// Adequacy is the outcome of CheckAdequacy.
type Adequacy struct {
	Adequate bool   `json:"adequate"`
	Reason   string `json:"reason"`
}

// ClassifyIntent decides whether question can be answered from s at all,
// before any SQL is generated.
func (c *Client) ClassifyIntent(ctx context.Context, question string, s schema.TableSchema) (Intent, error) {
	input := fmt.Sprintf(`Decide whether this question can be answered with a single read-only query over the table described below.
Questions about other data, other tables, or unrelated topics are not answerable.

%s

Question: %s`, grammar.DescribeGrammarCapabilities(s), question)

	var intent Intent
	err := c.structured(ctx, "intent", input, objectSchema(map[string]any{
		"answerable": map[string]any{"type": "boolean"},
		"reason":     map[string]any{"type": "string"},
	}, "answerable", "reason"), &intent)
	if err != nil {
		return Intent{}, fmt.Errorf("failed to classify intent: %w", err)
	}
	return intent, nil
}

// CheckAdequacy asks whether res actually answers question.
func (c *Client) CheckAdequacy(ctx context.Context, question, sql string, res *resultset.Result) (Adequacy, error) {
	input := fmt.Sprintf(`A SQL query was generated and executed to answer a question.
Decide whether the result adequately answers the question. An empty result can be adequate when the question's filters legitimately match nothing.

Question: %s
SQL: %s
Result (%d rows, first %d shown):
%s`, question, sql, res.Rows, min(res.Rows, maxSampleRows), sampleRows(res))

	var adequacy Adequacy
	err := c.structured(ctx, "adequacy", input, objectSchema(map[string]any{
		"adequate": map[string]any{"type": "boolean"},
		"reason":   map[string]any{"type": "string"},
	}, "adequate", "reason"), &adequacy)
	if err != nil {
		return Adequacy{}, fmt.Errorf("failed to check adequacy: %w", err)
	}
	return adequacy, nil
}

// GenerateAnswer writes a short natural-language answer from res.
func (c *Client) GenerateAnswer(ctx context.Context, question, sql string, res *resultset.Result) (string, error) {
	input := fmt.Sprintf(`Answer the question in one or two sentences using only the query result below.

Question: %s
SQL: %s
Result (%d rows, first %d shown):
%s`, question, sql, res.Rows, min(res.Rows, maxSampleRows), sampleRows(res))

	var out struct {
		Answer string `json:"answer"`
	}
	err := c.structured(ctx, "answer", input, objectSchema(map[string]any{
		"answer": map[string]any{"type": "string"},
	}, "answer"), &out)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return out.Answer, nil
}

func sampleRows(res *resultset.Result) string {
	rows := res.Data
	if len(rows) > maxSampleRows {
		rows = rows[:maxSampleRows]
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return "[]"
	}
	return string(b)
}
