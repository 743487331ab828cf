// Package eval runs question/answer cases through the pipeline and reports
// pass/fail per case.
package eval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raindrop/eventsql/pkg/grammar"
	"github.com/raindrop/eventsql/pkg/llm"
	"github.com/raindrop/eventsql/pkg/pipeline"
	"github.com/raindrop/eventsql/pkg/resultset"
	"github.com/raindrop/eventsql/pkg/schema"
)

type Kind string

const (
	KindExpectedSQL Kind = "expected_sql"
	KindUnsupported Kind = "unsupported"
	KindSafety      Kind = "safety"
)

// Case is a test: natural language query + known-correct SQL, a query that
// must be refused, or adversarial SQL the verifier must reject.
type Case struct {
	Name              string
	Query             string
	ExpectedSQL       string
	ReferenceTime     *time.Time
	ExpectUnsupported bool
	// UnsafeSQL is checked directly against the grammar; no model call.
	UnsafeSQL string
}

func (c Case) Kind() Kind {
	switch {
	case c.UnsafeSQL != "":
		return KindSafety
	case c.ExpectUnsupported:
		return KindUnsupported
	}
	return KindExpectedSQL
}

// Result holds pass/fail for a single case
type Result struct {
	Name         string        `json:"name"`
	Kind         Kind          `json:"kind"`
	Passed       bool          `json:"passed"`
	Query        string        `json:"query"`
	ExpectedSQL  string        `json:"expected_sql"`
	GeneratedSQL string        `json:"generated_sql"`
	Attempts     int           `json:"attempts,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Summary is just counts
type Summary struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	PassRate float64 `json:"pass_rate"`
}

// Asker is the part of the pipeline the runner drives.
type Asker interface {
	RunRequest(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type Runner struct {
	asker       Asker
	executor    resultset.Executor
	schemas     *schema.Cache
	concurrency int
}

func NewRunner(asker Asker, executor resultset.Executor, schemas *schema.Cache, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{asker: asker, executor: executor, schemas: schemas, concurrency: concurrency}
}

// Run runs cases with at most r.concurrency in flight. Results keep the order
// of cases; the error names the first failed case.
func (r *Runner) Run(ctx context.Context, cases []Case) ([]Result, error) {
	s, err := r.schemas.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	parser := grammar.NewParser(s)

	results := make([]Result, len(cases))
	sem := make(chan struct{}, r.concurrency)

	var wg sync.WaitGroup
	for i, tc := range cases {
		wg.Add(1)
		go func(idx int, tc Case) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[idx] = Result{Name: tc.Name, Kind: tc.Kind(), Query: tc.Query, Error: ctx.Err().Error()}
				return
			}
			defer func() { <-sem }()

			start := time.Now()
			results[idx] = r.runCase(ctx, parser, tc)
			results[idx].Duration = time.Since(start)
		}(i, tc)
	}
	wg.Wait()

	var firstErr error
	for _, res := range results {
		if !res.Passed {
			firstErr = fmt.Errorf("eval %s failed: %s", res.Name, res.Error)
			break
		}
	}

	return results, firstErr
}

func (r *Runner) runCase(ctx context.Context, parser *grammar.Parser, tc Case) Result {
	switch tc.Kind() {
	case KindSafety:
		return runSafety(parser, tc)
	case KindUnsupported:
		return r.runUnsupported(ctx, tc)
	}
	return r.runExpected(ctx, tc)
}

func (r *Runner) request(tc Case) pipeline.Request {
	req := pipeline.Request{Question: tc.Query, SkipAnswer: true}
	if tc.ReferenceTime != nil {
		req.Now = *tc.ReferenceTime
	}
	return req
}

func (r *Runner) runExpected(ctx context.Context, tc Case) Result {
	result := Result{
		Name:        tc.Name,
		Kind:        KindExpectedSQL,
		Query:       tc.Query,
		ExpectedSQL: tc.ExpectedSQL,
	}

	expected, err := r.executor.Execute(ctx, tc.ExpectedSQL)
	if err != nil {
		result.Error = fmt.Sprintf("expected SQL failed: %v", err)
		return result
	}

	generated, err := r.asker.RunRequest(ctx, r.request(tc))
	if err != nil {
		var attemptsErr *pipeline.AttemptsError
		if errors.As(err, &attemptsErr) {
			result.Attempts = len(attemptsErr.Attempts)
			if n := len(attemptsErr.Attempts); n > 0 {
				result.GeneratedSQL = attemptsErr.Attempts[n-1].SQL
			}
		}
		result.Error = fmt.Sprintf("generation failed: %v", err)
		return result
	}
	result.GeneratedSQL = generated.SQL
	result.Attempts = len(generated.Attempts)

	if expected.Rows != generated.Data.Rows {
		result.Error = fmt.Sprintf("row count: expected %d, got %d", expected.Rows, generated.Data.Rows)
		return result
	}

	if !resultset.Equal(expected, generated.Data) {
		result.Error = "data mismatch"
		return result
	}

	result.Passed = true
	return result
}

func (r *Runner) runUnsupported(ctx context.Context, tc Case) Result {
	result := Result{
		Name:        tc.Name,
		Kind:        KindUnsupported,
		Query:       tc.Query,
		ExpectedSQL: "(expected to be unsupported)",
	}

	generated, err := r.asker.RunRequest(ctx, r.request(tc))
	if err == nil {
		result.GeneratedSQL = generated.SQL
		result.Error = "expected ErrUnsupportedQuery but got valid SQL"
		return result
	}

	var unsupportedErr llm.ErrUnsupportedQuery
	if !errors.As(err, &unsupportedErr) {
		result.Error = fmt.Sprintf("expected ErrUnsupportedQuery but got: %v", err)
		return result
	}

	result.GeneratedSQL = fmt.Sprintf("(refused: %s)", unsupportedErr.Reason)
	result.Passed = true
	return result
}

func runSafety(parser *grammar.Parser, tc Case) Result {
	result := Result{
		Name:         tc.Name,
		Kind:         KindSafety,
		Query:        tc.Query,
		ExpectedSQL:  "(expected to be rejected)",
		GeneratedSQL: tc.UnsafeSQL,
	}
	if parser.IsValid(tc.UnsafeSQL) {
		result.Error = "grammar verifier accepted unsafe SQL"
		return result
	}
	result.Passed = true
	return result
}

// ComputeSummary calculates pass/fail counts
func ComputeSummary(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	if s.Total > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Total) * 100
	}
	return s
}

// LogResults logs one line per case and the summary. Failures log at level.
func LogResults(ctx context.Context, results []Result, level slog.Level) Summary {
	for _, r := range results {
		if r.Passed {
			slog.InfoContext(ctx, "PASS", "name", r.Name, "kind", r.Kind, "sql", r.GeneratedSQL, "duration", r.Duration)
		} else {
			slog.Log(ctx, level, "FAIL", "name", r.Name, "kind", r.Kind, "error", r.Error, "expected", r.ExpectedSQL, "got", r.GeneratedSQL)
		}
	}

	summary := ComputeSummary(results)
	slog.InfoContext(ctx, "Eval summary",
		"passed", summary.Passed,
		"failed", summary.Failed,
		"total", summary.Total,
		"pass_rate", summary.PassRate,
	)
	return summary
}
