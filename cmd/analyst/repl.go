package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/analyst/internal/analyst"
)

func newReplCmd() *cobra.Command {
	var opts runtimeOptions
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Ask questions interactively",
		Long: heredoc.Doc(`
			Ask questions one after another. Facts learned about the data (columns,
			row counts) are carried over to the next question, so exploration usually
			happens only once.

			Commands: :context prints the known facts, :reset forgets them, :quit exits.
		`),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			env, err := prepareRuntimeEnv(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer env.Close()

			env.Logger.Info("analyst ready", "workdir", env.WorkDir, "sandbox", env.SandboxMode)
			initial := env.DataContext.Clone()
			dc := env.DataContext.Clone()

			s := bufio.NewScanner(cmd.InOrStdin())
			for ctx.Err() == nil {
				fmt.Fprint(cmd.OutOrStdout(), "you> ")
				if !s.Scan() {
					break
				}
				line := strings.TrimSpace(s.Text())
				switch line {
				case "":
					continue
				case ":quit", ":q", "exit":
					return nil
				case ":context":
					fmt.Fprintln(cmd.OutOrStdout(), dc.JSON())
					continue
				case ":reset":
					dc = initial.Clone()
					continue
				}

				out, err := env.Orchestrator.Run(ctx, analyst.Request{Query: line, DataContext: dc})
				printOutcome(out)
				if out != nil && out.State != nil {
					dc = out.State.DataContext.Clone()
				}
				if err != nil && !errors.Is(err, context.Canceled) {
					env.Logger.Warn("question failed", "error", err)
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return s.Err()
		},
	}
	addRuntimeFlags(cmd, &opts)
	return cmd
}
