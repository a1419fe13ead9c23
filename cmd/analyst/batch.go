package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ChamsBouzaiene/analyst/internal/analyst"
)

func newBatchCmd() *cobra.Command {
	var (
		opts     runtimeOptions
		parallel int
	)
	cmd := &cobra.Command{
		Use:   "batch <questions-file>",
		Short: "Answer every question in a file, one per line, concurrently",
		Long: heredoc.Doc(`
			Answer every question in a file. Blank lines and lines starting with # are
			skipped. Each question is an independent request; at most --parallel run at
			once and all of them share the LLM rate limit.
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queries, err := readQueries(args[0])
			if err != nil {
				return err
			}
			if len(queries) == 0 {
				return fmt.Errorf("no questions in %s", args[0])
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			env, err := prepareRuntimeEnv(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer env.Close()

			outcomes := runBatch(ctx, env.Orchestrator, env.DataContext, queries, parallel)

			failed := 0
			for i, r := range outcomes {
				stdoutf("## [%d] %s\n\n", i+1, queries[i])
				if r.out != nil {
					printOutcome(r.out)
				} else if r.err != nil {
					stdoutf("%v\n", r.err)
				}
				if r.err != nil {
					failed++
				}
				stdoutf("\n")
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d questions failed", failed, len(queries))
			}
			return nil
		},
	}
	addRuntimeFlags(cmd, &opts)
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 2, "Maximum number of questions answered at once")
	return cmd
}

type batchResult struct {
	out *analyst.Outcome
	err error
}

// runBatch answers every query; a failed query never cancels the others.
// Results are in query order.
func runBatch(ctx context.Context, o *analyst.Orchestrator, dc analyst.DataContext, queries []string, parallel int) []batchResult {
	if parallel < 1 {
		parallel = 1
	}
	results := make([]batchResult, len(queries))

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, q := range queries {
		g.Go(func() error {
			out, err := o.Run(ctx, analyst.Request{Query: q, DataContext: dc.Clone()})
			results[i] = batchResult{out: out, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var queries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	return queries, scanner.Err()
}
