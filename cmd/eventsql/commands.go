package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/raindrop/eventsql/pkg/app"
	"github.com/raindrop/eventsql/pkg/config"
	"github.com/raindrop/eventsql/pkg/eval"
	"github.com/raindrop/eventsql/pkg/grammar"
	"github.com/raindrop/eventsql/pkg/pipeline"
	"github.com/raindrop/eventsql/pkg/render"
	"github.com/raindrop/eventsql/pkg/resultset"
	"github.com/raindrop/eventsql/pkg/schema"
	"github.com/raindrop/eventsql/pkg/validator"
)

// localSchema is the schema for commands that never touch a backend.
func localSchema(path string) (schema.TableSchema, error) {
	if path == "" {
		return schema.GitHubEvents(), nil
	}
	return schema.LoadFile(path)
}

// openApp loads configuration and connects to the configured backend.
// Logs go to stderr so command output stays clean.
func openApp(ctx context.Context, schemaFile string) (*app.App, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if schemaFile != "" {
		cfg.SchemaFile = schemaFile
	}
	slog.SetDefault(app.NewLogger(os.Stderr, cfg.LogLevel))

	return app.New(ctx, cfg)
}

func grammarCmd(schemaFile *string) *cobra.Command {
	var openai bool
	cmd := &cobra.Command{
		Use:   "grammar",
		Short: "Print the Lark grammar for the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := localSchema(*schemaFile)
			if err != nil {
				return err
			}
			if !openai {
				fmt.Fprintln(cmd.OutOrStdout(), grammar.BuildGrammar(s))
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(grammar.BuildGrammarForOpenAI(s))
		},
	}
	cmd.Flags().BoolVar(&openai, "openai", false, "Print the custom tool format object instead of the bare grammar")
	return cmd
}

func describeCmd(schemaFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Print the prompt text describing what the grammar allows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := localSchema(*schemaFile)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), grammar.DescribeGrammarCapabilities(s))
			return nil
		},
	}
}

func verifyCmd(schemaFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <sql>",
		Short: "Check SQL against the grammar and the validator",
		Long: `Verify parses the SQL with the schema-bound grammar and prints the
derivation tree. Accepted SQL is then run through the validator. The command
fails when the grammar rejects the SQL or the validator reports an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := localSchema(*schemaFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			diag := grammar.NewParser(s).Diagnose(args[0])
			if diag.Tree != nil {
				fmt.Fprint(out, grammar.FormatDerivationTree(diag.Tree))
			}
			if !diag.Valid {
				return fmt.Errorf("rejected by grammar at offset %d near %q", diag.Offset, diag.Remainder)
			}

			issues := validator.Validate(args[0], s)
			for _, issue := range issues {
				fmt.Fprintln(out, issue.String())
			}
			if validator.HasErrors(issues) {
				return fmt.Errorf("validation failed with %d error(s)", len(validator.Errors(issues)))
			}
			fmt.Fprintln(out, "OK")
			return nil
		},
	}
}

func schemaCmd(schemaFile *string) *cobra.Command {
	var fromBackend bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the table schema as TOML",
		Long: `Schema prints the table schema in the same TOML layout accepted by
--schema. With --backend it is fetched from the configured Tinybird or
ClickHouse backend, which makes it easy to snapshot a schema file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				s   schema.TableSchema
				err error
			)
			if fromBackend {
				a, err := openApp(cmd.Context(), *schemaFile)
				if err != nil {
					return err
				}
				defer a.Close()
				if s, err = a.LoadSchema(cmd.Context()); err != nil {
					return err
				}
			} else if s, err = localSchema(*schemaFile); err != nil {
				return err
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(s)
		},
	}
	cmd.Flags().BoolVar(&fromBackend, "backend", false, "Fetch the schema from the configured backend")
	return cmd
}

func askCmd(schemaFile *string) *cobra.Command {
	var (
		format     string
		skipIntent bool
		skipAnswer bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question with generated SQL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			formatter, err := render.New(format, out)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), *schemaFile)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Pipeline.RunRequest(cmd.Context(), pipeline.Request{
				Question:   args[0],
				SkipIntent: skipIntent,
				SkipAnswer: skipAnswer,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "SQL: %s\n", res.SQL)
			for _, issue := range res.Issues {
				fmt.Fprintln(out, issue.String())
			}
			if err := formatter.Format(res.Data); err != nil {
				return err
			}
			if res.Answer != "" {
				fmt.Fprintf(out, "\n%s\n", res.Answer)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table, json or csv")
	cmd.Flags().BoolVar(&skipIntent, "skip-intent", false, "Skip intent classification")
	cmd.Flags().BoolVar(&skipAnswer, "skip-answer", false, "Skip the natural language answer")
	return cmd
}

func evalCmd(schemaFile *string) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the built-in eval suite",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := render.New(format, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), *schemaFile)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.LoadSchema(cmd.Context()); err != nil {
				return err
			}
			results, evalErr := a.Evals.Run(cmd.Context(), eval.DefaultCases())
			eval.LogResults(cmd.Context(), results, slog.LevelWarn)
			if err := formatter.Format(resultsTable(results)); err != nil {
				return err
			}
			return evalErr
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table, json or csv")
	return cmd
}

// resultsTable lays eval results out as rows for the result formatters.
func resultsTable(results []eval.Result) *resultset.Result {
	res := &resultset.Result{
		Columns: []string{"name", "kind", "passed", "attempts", "duration", "error"},
		Rows:    len(results),
	}
	for _, r := range results {
		res.Data = append(res.Data, map[string]any{
			"name":     r.Name,
			"kind":     string(r.Kind),
			"passed":   r.Passed,
			"attempts": r.Attempts,
			"duration": r.Duration.Round(time.Millisecond).String(),
			"error":    r.Error,
		})
	}
	return res
}
