package analyst

import (
	"fmt"
	"regexp"
)

// ExplorationStep is prepended to plans that would otherwise start working
// on a dataset whose structure is unknown.
const ExplorationStep Step = "Load the data and explore its structure (shape, columns, dtypes, a few sample rows) to learn the schema"

var (
	// Verbs that are about the structure of the data by themselves.
	exploreVerb = regexp.MustCompile(`(?i)\b(explore|exploration|inspect|examine|profile)\b`)

	// Verbs that only count as exploration next to a structure word.
	accessVerb    = regexp.MustCompile(`(?i)\b(load|read|open|show|print|display|list|check|describe|summari[sz]e)\b`)
	structureWord = regexp.MustCompile(`(?i)\b(structure|schema|columns?|column names|dtypes?|data types|shape|info\(\)|head\(\))`)

	// Steps that depend on knowing which columns exist: they name columns,
	// aggregate or group values, or relate one variable to another.
	columnReference = regexp.MustCompile(`(?i)\b(columns?|fields?|dtypes?|schema|group(ed)?\s+by|by|per|versus|vs\.?|against|correlat\w*|trend|distribution|average|mean|median|sum|total|maximum|minimum|max|min)\b`)

	// Steps asking for the whole dataset instead of summaries.
	dumpPattern = regexp.MustCompile(`(?i)\b(dump|print|show|display|output|list|return)\b[^.]*\b(entire|whole|full|complete|all)\s+(data\s*set|dataset|data|file|table|rows|records|content)\b|\bto_string\(\)|\bdump\b`)
)

// PrunePlan removes every step that already succeeded according to history.
// The result is always a new slice.
func PrunePlan(plan Plan, history History) Plan {
	done := history.SucceededSteps()
	out := make(Plan, 0, len(plan))
	for _, s := range plan {
		if done[s.Key()] {
			continue
		}
		out = append(out, s)
	}
	return out
}

// DetectLoop returns a *ReplanLoopError when plan contains a step that has
// already failed maxFailures times.
func DetectLoop(plan Plan, history History, maxFailures, rounds int) error {
	if maxFailures <= 0 {
		return nil
	}
	for _, s := range plan {
		if history.FailureCount(s) >= maxFailures {
			return &ReplanLoopError{Reason: "repeated failed step", Step: s, Rounds: rounds}
		}
	}
	return nil
}

// IsExplorationStep reports whether s inspects the structure of the data.
// Loading the data is not enough: "load the data and plot revenue" works on
// columns it assumes to exist.
func IsExplorationStep(s Step) bool {
	if s.IsPlaceholder() {
		return false
	}
	text := string(s)
	if exploreVerb.MatchString(text) {
		return true
	}
	return accessVerb.MatchString(text) && structureWord.MatchString(text)
}

// NeedsSchema reports whether plan depends on column information: it holds
// a placeholder or a step that refers to columns.
func NeedsSchema(plan Plan) bool {
	for _, s := range plan {
		if s.IsPlaceholder() || columnReference.MatchString(string(s)) {
			return true
		}
	}
	return false
}

// CheckPlanSafety rejects plans containing a step that asks for the whole
// dataset to be printed.
func CheckPlanSafety(plan Plan) error {
	for i, s := range plan {
		if dumpPattern.MatchString(string(s)) {
			return fmt.Errorf("step %d requests a full data dump: %q", i+1, s)
		}
	}
	return nil
}

// EnsureExploration prepends ExplorationStep when the schema is unknown,
// the plan needs it and the plan does not start by exploring. Plans that
// never touch columns, such as counting rows, are returned unchanged.
func EnsureExploration(plan Plan, dc DataContext) Plan {
	if dc.HasSchema() || !NeedsSchema(plan) {
		return plan.Clone()
	}
	if len(plan) > 0 && IsExplorationStep(plan[0]) {
		return plan.Clone()
	}
	out := make(Plan, 0, len(plan)+1)
	out = append(out, ExplorationStep)
	return append(out, plan...)
}
