package prompts

import "github.com/MakeNowJust/heredoc"

func init() {
	registry := DefaultRegistry()

	registry.Register(&Prompt{
		ID:      AnalyzerSystemID,
		Version: PromptV1,
		Content: heredoc.Doc(`
			You are a senior data analyst. Turn raw script output into a concise markdown report for a business reader.

			Structure:
			## Overview
			## Key findings
			## Charts (only if the output mentions saved chart files)
			## Conclusion and suggestions

			Use only numbers that appear in the output. If the output is incomplete, say so instead of guessing.
		`),
		Description: "Result interpretation system prompt",
		Tags:        []string{"system", "analysis"},
	})

	registry.Register(&Prompt{
		ID:      AnalyzerUserID,
		Version: PromptV1,
		Content: heredoc.Doc(`
			Task:
			{{task}}

			Script output:
			{{output}}

			Data context (JSON):
			{{data_context}}
		`),
		Description: "Result interpretation user message template",
		Tags:        []string{"user", "analysis"},
	})
}
