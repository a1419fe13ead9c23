package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry_BuiltinsRegistered(t *testing.T) {
	ids := DefaultRegistry().List()
	for _, id := range []string{
		PlannerSystemID, PlannerUserID, ReplannerSystemID, ReplannerUserID,
		ExecutorRulesID, CodegenSystemID, CodegenUserID, CodegenRetryID,
		AnalyzerSystemID, AnalyzerUserID,
	} {
		assert.Contains(t, ids, id)
	}
}

func TestCodegenPromptMentionsMarkers(t *testing.T) {
	p, err := DefaultRegistry().Get(CodegenSystemID, PromptV1)
	require.NoError(t, err)
	assert.Contains(t, p.Content, ContextMarker)
	assert.Contains(t, p.Content, "```python")
	assert.False(t, strings.HasPrefix(p.Content, "\t"), "heredoc strips indentation")
}

func TestRegistry_GetLatest(t *testing.T) {
	r := NewPromptRegistry()
	r.Register(&Prompt{ID: "x", Version: "1.0.0", Content: "one"})
	r.Register(&Prompt{ID: "x", Version: "2.0.0", Content: "two", Deprecated: true})

	p, err := r.GetLatest("x")
	require.NoError(t, err)
	assert.Equal(t, "one", p.Content, "deprecated versions lose to live ones")

	r.Register(&Prompt{ID: "y", Version: "1.0.0", Content: "old", Deprecated: true})
	p, err = r.GetLatest("y")
	require.NoError(t, err)
	assert.Equal(t, "old", p.Content)

	_, err = r.GetLatest("missing")
	assert.Error(t, err)
	assert.Equal(t, []PromptVersion{"1.0.0", "2.0.0"}, r.Versions("x"))
}

func TestPromptBuilder(t *testing.T) {
	r := NewPromptRegistry()
	r.Register(&Prompt{ID: "base", Version: PromptV1, Content: "Hello {{name}}."})
	r.Register(&Prompt{ID: "extra", Version: PromptV1, Content: "Bye {{name}}."})

	b, err := NewPromptBuilder(r, "base", PromptV1)
	require.NoError(t, err)
	require.NoError(t, b.AddPrompt(r, "extra", PromptV1))
	out, err := b.AddFragment("   ").SetVariable("name", "{{other}}").Build()
	require.NoError(t, err)
	assert.Equal(t, "Hello {{other}}.\n\nBye {{other}}.", out, "values are not expanded twice")

	b, err = NewPromptBuilder(r, "base", PromptV1)
	require.NoError(t, err)
	_, err = b.Build()
	assert.ErrorContains(t, err, "unresolved variables")
}

func TestRender(t *testing.T) {
	out, err := Render(PlannerUserID, map[string]string{
		"query":        "how many rows?",
		"data_context": `{"file_path": "data.csv"}`,
		"schema_known": "no",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "how many rows?")
	assert.Contains(t, out, `"file_path": "data.csv"`)
	assert.NotContains(t, out, "{{")
}
