// Command eventsql is the command line front end: it prints and checks the
// schema-bound grammar and runs questions and evals against a backend.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var schemaFile string

	rootCmd := &cobra.Command{
		Use:          "eventsql",
		Short:        "Natural language to grammar-constrained ClickHouse SQL",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&schemaFile, "schema", "s", "", "TOML schema file (defaults to the built-in github_events schema, or the backend for ask/eval)")

	rootCmd.AddCommand(grammarCmd(&schemaFile))
	rootCmd.AddCommand(describeCmd(&schemaFile))
	rootCmd.AddCommand(verifyCmd(&schemaFile))
	rootCmd.AddCommand(schemaCmd(&schemaFile))
	rootCmd.AddCommand(askCmd(&schemaFile))
	rootCmd.AddCommand(evalCmd(&schemaFile))
	return rootCmd
}
