package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "short word", text: "hello", want: 1},
		{name: "sentence", text: "hello world this is a test", want: 6},
		{name: "code snippet", text: "df = pd.read_csv('sales.csv')", want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.text))
		})
	}
}

func TestEstimateUsage(t *testing.T) {
	messages := []ChatMessage{
		{Role: RoleSystem, Content: "You are a planner."},
		{Role: RoleUser, Content: "How many rows?"},
	}
	u := EstimateUsage(messages, `{"plan": ["Load the data"]}`)
	assert.Greater(t, u.Prompt, 2*messageOverhead)
	assert.Positive(t, u.Completion)
	assert.Equal(t, u.Prompt+u.Completion, u.Total)
}

func TestUsageOrEstimate(t *testing.T) {
	msgs := []ChatMessage{{Role: RoleUser, Content: "hi there"}}

	got, estimated := usageOrEstimate(Usage{Prompt: 10, Completion: 5}, msgs, "ok")
	assert.False(t, estimated)
	assert.Equal(t, Usage{Prompt: 10, Completion: 5, Total: 15}, got)

	got, estimated = usageOrEstimate(Usage{}, msgs, "ok")
	assert.True(t, estimated)
	assert.Positive(t, got.Total)
}
