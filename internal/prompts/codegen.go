package prompts

import "github.com/MakeNowJust/heredoc"

const fence = "```"

func init() {
	registry := DefaultRegistry()

	registry.Register(&Prompt{
		ID:      CodegenSystemID,
		Version: PromptV1,
		Content: heredoc.Docf(`
			You are a Python data analysis expert. Write one complete, directly runnable Python script for the task.

			Requirements:
			1. Use pandas for data handling and matplotlib (or seaborn) for charts.
			2. Read the data from the file_path given in the data context. Never invent a path.
			3. Print every result the task asks for with print(). Keep the output short: summaries, counts,
			   statistics and head() samples, never the whole dataset.
			4. Save charts with plt.savefig("<descriptive_name>.png") into the current directory and call plt.close().
			   Never call plt.show().
			5. Wrap risky operations in try/except and print a clear message on failure, then re-raise.
			6. When the task explores the data structure, print one final line with the discovered facts:
			   %[2]s {"schema": {"<column>": "<dtype>"}, "row_count": <n>}
			   The JSON after the marker must be valid and on a single line.

			Return the code in a single %[1]spython block.
		`, fence, ContextMarker),
		Description: "Code generation system prompt",
		Tags:        []string{"system", "codegen"},
	})

	registry.Register(&Prompt{
		ID:      ExecutorRulesID,
		Version: PromptV1,
		Content: heredoc.Doc(`
			Scope discipline:
			- Act ONLY on the current step. Do not attempt later steps of the plan or the overall goal.
			- Reuse facts from the data context (paths, schema) instead of rediscovering them.
			- Never fabricate output. If the step cannot be done, let the script fail with a clear error.
		`),
		Description: "Single-step execution rules appended to the code generation prompt",
		Tags:        []string{"system", "executor"},
	})

	registry.Register(&Prompt{
		ID:      CodegenUserID,
		Version: PromptV1,
		Content: heredoc.Doc(`
			Task:
			{{task}}

			Data context (JSON):
			{{data_context}}
		`),
		Description: "Code generation user message template",
		Tags:        []string{"user", "codegen"},
	})

	registry.Register(&Prompt{
		ID:      CodegenRetryID,
		Version: PromptV1,
		Content: heredoc.Doc(`
			The previous attempt failed with this error:
			{{previous_error}}

			Fix the cause of this error specifically:
			{{fix_hints}}
		`),
		Description: "Retry section appended when a previous attempt failed",
		Tags:        []string{"user", "codegen", "retry"},
	})
}
