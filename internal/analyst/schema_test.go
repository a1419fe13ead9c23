package analyst

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanRoundTrip(t *testing.T) {
	plans := []Plan{
		NewPlan("1. Load the data and print the number of rows"),
		NewPlan("1. Explore the structure", "2. (Placeholder) Analyze the trend using the identified columns"),
		NewPlan(`Compute "quoted" stats`, "Plot ünïcode é columns", "Save chart to out/plot.png"),
	}
	for _, p := range plans {
		raw, err := EncodePlan(p)
		require.NoError(t, err)

		got, err := ParsePlan(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, p, got.Steps)
	}
}

func TestParsePlan_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"prose", "Here is the plan: step one"},
		{"fenced", "```json\n{\"plan\": [\"a\"]}\n```"},
		{"text before", "Plan: {\"plan\": [\"a\"]}"},
		{"text after", "{\"plan\": [\"a\"]} hope this helps"},
		{"two objects", "{\"plan\": [\"a\"]}{\"plan\": [\"b\"]}"},
		{"not an object", "[\"a\"]"},
		{"missing field", "{}"},
		{"extra field", "{\"plan\": [\"a\"], \"notes\": \"x\"}"},
		{"empty plan", "{\"plan\": []}"},
		{"non string step", "{\"plan\": [1, 2]}"},
		{"blank step", "{\"plan\": [\"a\", \"  \"]}"},
		{"too many steps", "{\"plan\": [\"1\",\"2\",\"3\",\"4\",\"5\",\"6\",\"7\",\"8\",\"9\"]}"},
		{"invalid json", "{\"plan\": [\"a\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestParsePlan_TrimsSteps(t *testing.T) {
	got, err := ParsePlan("  {\"plan\": [\"  a  \", \"b\"]}\n")
	require.NoError(t, err)
	assert.Equal(t, NewPlan("a", "b"), got.Steps)
}

func TestParseReplan(t *testing.T) {
	t.Run("done", func(t *testing.T) {
		res, err := ParseReplan(`{"status": "done", "final_response": "The data has 1000 rows."}`)
		require.NoError(t, err)
		require.IsType(t, Done{}, res)
		assert.Equal(t, "The data has 1000 rows.", res.(Done).FinalResponse)
		assert.True(t, res.IsDone())
		assert.Equal(t, "done", res.Kind())
	})

	t.Run("continue", func(t *testing.T) {
		res, err := ParseReplan(`{"status": "continue", "new_plan": ["a", "b"]}`)
		require.NoError(t, err)
		require.IsType(t, Continue{}, res)
		assert.Equal(t, NewPlan("a", "b"), res.(Continue).NewPlan)
		assert.False(t, res.IsDone())
	})

	t.Run("continue with empty plan", func(t *testing.T) {
		res, err := ParseReplan(`{"status": "continue", "new_plan": []}`)
		require.NoError(t, err)
		assert.Empty(t, res.(Continue).NewPlan)
	})

	rejects := []struct {
		name string
		raw  string
	}{
		{"fenced", "```json\n{\"status\": \"done\", \"final_response\": \"x\"}\n```"},
		{"unknown status", `{"status": "maybe"}`},
		{"done without response", `{"status": "done"}`},
		{"done with blank response", `{"status": "done", "final_response": "  "}`},
		{"continue without plan", `{"status": "continue"}`},
		{"continue with blank step", `{"status": "continue", "new_plan": [""]}`},
		{"extra field", `{"status": "done", "final_response": "x", "confidence": 0.9}`},
		{"missing status", `{"final_response": "x"}`},
		{"trailing prose", `{"status": "done", "final_response": "x"} Let me know!`},
	}
	for _, tt := range rejects {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReplan(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestEncodeReplan(t *testing.T) {
	for _, r := range []ReplanResult{
		Done{FinalResponse: "answer"},
		Continue{NewPlan: NewPlan("x", "y")},
	} {
		raw, err := EncodeReplan(r)
		require.NoError(t, err)
		got, err := ParseReplan(raw)
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "销...", truncate("销售额", 4))
	assert.Equal(t, "收入...", truncate("收入: 销售额", 6))
	assert.Equal(t, "abc", truncate("abc", 40))
	assert.True(t, utf8.ValidString(truncate(" 数据 数据 数据 数据 数据 数据 数据 数据", 40)))
}
