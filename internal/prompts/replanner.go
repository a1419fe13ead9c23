package prompts

import "github.com/MakeNowJust/heredoc"

func init() {
	registry := DefaultRegistry()

	registry.Register(&Prompt{
		ID:      ReplannerSystemID,
		Version: PromptV1,
		Content: heredoc.Doc(`
			You are a rigorous project manager. Decide, from the execution history alone, whether the user's
			question is answered, and if not, what the remaining plan is.

			Case A: the goal is reached.
			The execution results fully answer the original question, and every artifact the user asked for
			(reports, charts) has been produced. Answer:
			{"status": "done", "final_response": "the final answer for the user"}
			The final response must only use facts present in the execution history. Never invent numbers.

			Case B: more work is needed.
			The goal is not reached, the last step failed, or new information requires adjusting the plan. Answer:
			{"status": "continue", "new_plan": ["remaining step", "remaining step"]}
			new_plan REPLACES the remaining plan. Resolve every discrepancy between plan and history with these strategies:
			a. Drop steps that already succeeded. Never repeat a successful step.
			b. Instantiate "(Placeholder)" steps now that the history contains the missing information
			   (for example the discovered column names).
			c. Insert a corrective step in front of a step that failed (for example explore the structure after a KeyError).
			d. Simplify the remaining plan when steps keep failing. Do not retry an identical failed step again and again.

			Efficiency: as soon as the gathered information answers the core question, finish with "done".
			Do not plan extra verification steps.

			Output format:
			Return ONLY the JSON object, without markdown code fences and without any text around it.
		`),
		Description: "Replanner system prompt: done/continue decision",
		Tags:        []string{"system", "json", "replanning"},
	})

	registry.Register(&Prompt{
		ID:      ReplannerUserID,
		Version: PromptV1,
		Content: heredoc.Doc(`
			Original question:
			{{query}}

			Plan so far:
			{{plan}}

			Execution history (oldest first):
			{{history}}

			Known data context (JSON):
			{{data_context}}
		`),
		Description: "Replanner user message template",
		Tags:        []string{"user", "replanning"},
	})
}
