// Package pipeline turns a question into a verified, executed query:
// intent check, grammar-constrained generation with bounded retries,
// verification, validation, execution, adequacy check and answer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raindrop/eventsql/pkg/grammar"
	"github.com/raindrop/eventsql/pkg/llm"
	"github.com/raindrop/eventsql/pkg/resultset"
	"github.com/raindrop/eventsql/pkg/schema"
	"github.com/raindrop/eventsql/pkg/validator"
)

const DefaultMaxAttempts = 3

var (
	// ErrGrammarRejected wraps a verifier rejection of generated SQL.
	ErrGrammarRejected = errors.New("generated SQL rejected by grammar verifier")
	// ErrAttemptsExhausted is returned when no attempt produced a usable result.
	ErrAttemptsExhausted = errors.New("all generation attempts failed")
)

// Model is the LLM surface the pipeline needs. *llm.Client implements it.
type Model interface {
	ClassifyIntent(ctx context.Context, question string, s schema.TableSchema) (llm.Intent, error)
	GenerateSQL(ctx context.Context, req llm.SQLRequest) (string, error)
	CheckAdequacy(ctx context.Context, question, sql string, res *resultset.Result) (llm.Adequacy, error)
	GenerateAnswer(ctx context.Context, question, sql string, res *resultset.Result) (string, error)
}

type Pipeline struct {
	model       Model
	executor    resultset.Executor
	schemas     *schema.Cache
	maxAttempts int
}

func New(model Model, executor resultset.Executor, schemas *schema.Cache, maxAttempts int) *Pipeline {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Pipeline{
		model:       model,
		executor:    executor,
		schemas:     schemas,
		maxAttempts: maxAttempts,
	}
}

// Request is one pipeline run.
type Request struct {
	Question string
	// Now anchors relative time expressions; zero means the current time.
	Now time.Time
	// SkipIntent skips the up-front intent classification.
	SkipIntent bool
	// SkipAnswer stops after execution and adequacy.
	SkipAnswer bool
}

// Attempt records one generation round.
type Attempt struct {
	SQL      string            `json:"sql"`
	Stage    string            `json:"stage"`
	Feedback string            `json:"feedback,omitempty"`
	Issues   []validator.Issue `json:"issues,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// Result is a successful run.
type Result struct {
	SQL      string            `json:"sql"`
	Tree     *grammar.Node     `json:"tree"`
	Data     *resultset.Result `json:"result"`
	Answer   string            `json:"answer,omitempty"`
	Issues   []validator.Issue `json:"issues,omitempty"`
	Attempts []Attempt         `json:"attempts"`
}

// Attempt stages.
const (
	StageGenerate = "generate"
	StageGrammar  = "grammar"
	StageValidate = "validate"
	StageExecute  = "execute"
	StageAdequacy = "adequacy"
	StageAccepted = "accepted"
)

// AttemptsError carries the attempt log of a failed run. It unwraps to
// ErrAttemptsExhausted and to the last attempt's cause.
type AttemptsError struct {
	Attempts []Attempt
	Last     error
}

func (e *AttemptsError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrAttemptsExhausted, len(e.Attempts), e.Last)
}

func (e *AttemptsError) Unwrap() []error {
	return []error{ErrAttemptsExhausted, e.Last}
}

func (p *Pipeline) Run(ctx context.Context, question string) (*Result, error) {
	return p.RunRequest(ctx, Request{Question: question})
}

func (p *Pipeline) RunRequest(ctx context.Context, req Request) (*Result, error) {
	s, err := p.schemas.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	parser := grammar.NewParser(s)

	if !req.SkipIntent {
		intent, err := p.model.ClassifyIntent(ctx, req.Question, s)
		if err != nil {
			return nil, err
		}
		if !intent.Answerable {
			slog.InfoContext(ctx, "Question not answerable", "reason", intent.Reason)
			return nil, llm.ErrUnsupportedQuery{Reason: intent.Reason, AvailableData: s.Hint()}
		}
	}

	var (
		attempts []Attempt
		feedback string
		lastErr  error
	)
	for i := 1; i <= p.maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		res, attempt, err := p.attempt(ctx, parser, s, req, feedback)
		attempt.Duration = time.Since(start)
		attempts = append(attempts, attempt)

		if err == nil {
			res.Attempts = attempts
			slog.InfoContext(ctx, "Query accepted", "attempt", i, "sql", res.SQL, "rows", res.Data.Rows)
			if !req.SkipAnswer {
				answer, err := p.model.GenerateAnswer(ctx, req.Question, res.SQL, res.Data)
				if err != nil {
					return nil, err
				}
				res.Answer = answer
			}
			return res, nil
		}

		var unsupported llm.ErrUnsupportedQuery
		if errors.As(err, &unsupported) {
			return nil, err
		}
		if attempt.Feedback == "" {
			// Transport or model failure: retrying with feedback cannot help.
			return nil, err
		}

		slog.WarnContext(ctx, "Attempt rejected", "attempt", i, "stage", attempt.Stage, "sql", attempt.SQL, "feedback", attempt.Feedback)
		feedback = attempt.Feedback
		lastErr = err
	}

	return nil, &AttemptsError{Attempts: attempts, Last: lastErr}
}

// attempt runs one generate/verify/validate/execute/adequacy round. A
// retryable rejection comes back with a non-empty Feedback.
func (p *Pipeline) attempt(ctx context.Context, parser *grammar.Parser, s schema.TableSchema, req Request, feedback string) (*Result, Attempt, error) {
	attempt := Attempt{Stage: StageGenerate}

	sql, err := p.model.GenerateSQL(ctx, llm.SQLRequest{
		Question: req.Question,
		Schema:   s,
		Feedback: feedback,
		Now:      req.Now,
	})
	if err != nil {
		return nil, attempt, err
	}
	sql = strings.TrimSpace(sql)
	attempt.SQL = sql

	attempt.Stage = StageGrammar
	diag := parser.Diagnose(sql)
	if !diag.Valid {
		attempt.Feedback = fmt.Sprintf("SQL was rejected by the grammar verifier near: %q", diag.Remainder)
		return nil, attempt, fmt.Errorf("%w at offset %d", ErrGrammarRejected, diag.Offset)
	}

	attempt.Stage = StageValidate
	issues := validator.Validate(sql, s)
	attempt.Issues = issues
	if errs := validator.Errors(issues); len(errs) > 0 {
		lines := make([]string, len(errs))
		for i, e := range errs {
			lines[i] = "- " + e.String()
		}
		attempt.Feedback = "SQL failed semantic validation:\n" + strings.Join(lines, "\n")
		return nil, attempt, fmt.Errorf("semantic validation failed: %s", errs[0].Message)
	}

	attempt.Stage = StageExecute
	data, err := p.executor.Execute(ctx, sql)
	if err != nil {
		attempt.Feedback = fmt.Sprintf("SQL failed to execute: %v", err)
		return nil, attempt, fmt.Errorf("failed to execute query: %w", err)
	}

	attempt.Stage = StageAdequacy
	adequacy, err := p.model.CheckAdequacy(ctx, req.Question, sql, data)
	if err != nil {
		return nil, attempt, err
	}
	if !adequacy.Adequate {
		attempt.Feedback = fmt.Sprintf("The query ran but its result does not answer the question: %s", adequacy.Reason)
		return nil, attempt, fmt.Errorf("inadequate result: %s", adequacy.Reason)
	}

	attempt.Stage = StageAccepted
	return &Result{
		SQL:    sql,
		Tree:   diag.Tree,
		Data:   data,
		Issues: issues,
	}, attempt, nil
}
