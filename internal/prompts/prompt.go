package prompts

// PromptVersion represents a version identifier for prompts.
type PromptVersion string

const (
	// PromptV1 is the first version of prompts.
	PromptV1 PromptVersion = "1.0.0"
)

// Prompt IDs registered by this package.
const (
	PlannerSystemID   = "planner"
	PlannerUserID     = "planner.user"
	ReplannerSystemID = "replanner"
	ReplannerUserID   = "replanner.user"
	ExecutorRulesID   = "executor.rules"
	CodegenSystemID   = "codegen"
	CodegenUserID     = "codegen.user"
	CodegenRetryID    = "codegen.retry"
	AnalyzerSystemID  = "analyzer"
	AnalyzerUserID    = "analyzer.user"
)

// Markers shared between prompt text and the code that parses model output.
const (
	// PlaceholderMarker tags a plan step whose content depends on
	// information that is not known yet.
	PlaceholderMarker = "(Placeholder)"
	// ContextMarker prefixes a stdout line carrying newly discovered dataset
	// facts as a JSON object.
	ContextMarker = "ANALYST_CONTEXT:"
)

// Prompt represents a versioned prompt with metadata.
type Prompt struct {
	ID          string        // Unique identifier (e.g., "planner", "codegen.user")
	Version     PromptVersion // Version of this prompt
	Content     string        // The actual prompt text
	Description string        // Human-readable description
	Tags        []string      // Tags for categorization (e.g., ["system", "json"])
	Deprecated  bool          // True if this version is deprecated
}
