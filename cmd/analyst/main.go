package main

import (
	"fmt"
	"log"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		log.SetFlags(0)
		log.Fatalf("analyst: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "analyst",
		Short: "Answer questions about a dataset by planning, running and revising Python analysis steps",
		Long: heredoc.Doc(`
			analyst answers natural-language questions about a data file.

			A planner breaks the question into steps, each step is turned into Python
			code that runs in a sandbox (Docker when available), and a replanner decides
			after every step whether the question is answered or what to do next.
		`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "Path to config file (default: <user config dir>/analyst/config.yaml)")
	root.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	root.PersistentFlags().Bool("json-logs", false, "Always write JSON logs, even on a terminal")

	root.AddCommand(
		newRunCmd(),
		newBatchCmd(),
		newReplCmd(),
		newHistoryCmd(),
		newConfigCmd(),
	)
	return root
}

// stdoutf writes user-facing output; logs go to stderr.
func stdoutf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format, args...)
}
