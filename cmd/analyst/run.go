package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MakeNowJust/heredoc"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/analyst/internal/analyst"
)

func newRunCmd() *cobra.Command {
	var opts runtimeOptions
	cmd := &cobra.Command{
		Use:   "run [question...]",
		Short: "Answer one question about a data file",
		Example: heredoc.Doc(`
			# Ask a question about a CSV file
			$ analyst run --file sales.csv "Which region had the highest revenue in 2023?"

			# Columns already known: skip exploration
			$ analyst run -f sales.csv --schema-json '{"schema": {"region": "str", "revenue": "float"}}' "Total revenue by region"

			# Read the question from stdin
			$ echo "How many rows are there?" | analyst run -f sales.csv
		`),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readQuery(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			env, err := prepareRuntimeEnv(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer env.Close()

			out, err := env.Orchestrator.Run(ctx, analyst.Request{Query: query, DataContext: env.DataContext})
			printOutcome(out)
			return err
		},
	}
	addRuntimeFlags(cmd, &opts)
	return cmd
}

// readQuery joins the arguments, or reads stdin when it is not a terminal.
func readQuery(args []string, stdin io.Reader) (string, error) {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		if f, ok := stdin.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return "", fmt.Errorf("failed to read question from stdin: %w", err)
			}
			query = strings.TrimSpace(string(data))
		}
	}
	if query == "" {
		return "", fmt.Errorf("no question given")
	}
	return query, nil
}
