package analyst

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeGenerator_Generate(t *testing.T) {
	gen := script("Sure:\n```python\nimport pandas as pd\nprint(len(pd.read_csv('sales.csv')))\n```")
	cg := NewCodeGenerator(gen, 0)

	code, err := cg.Generate(context.Background(), GenerationRequest{
		Task:        "Count the rows",
		DataContext: DataContext{KeyFilePath: "sales.csv"},
	})
	require.NoError(t, err)
	assert.Equal(t, "import pandas as pd\nprint(len(pd.read_csv('sales.csv')))", code)

	calls := gen.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "Act ONLY on the current step")
	assert.Contains(t, calls[0].User, "Count the rows")
	assert.Contains(t, calls[0].User, `"file_path": "sales.csv"`)
	assert.NotContains(t, calls[0].User, "previous attempt failed")
}

func TestCodeGenerator_PreviousError(t *testing.T) {
	gen := script(pyReply)
	cg := NewCodeGenerator(gen, 0)

	_, err := cg.Generate(context.Background(), GenerationRequest{
		Task:          "Sum the amount column",
		PreviousError: "KeyError: 'amount'",
	})
	require.NoError(t, err)

	user := gen.calls()[0].User
	assert.Contains(t, user, "The previous attempt failed with this error:")
	assert.Contains(t, user, "KeyError: 'amount'")
	assert.Contains(t, user, "df.columns.tolist()")
}

func TestCodeGenerator_Errors(t *testing.T) {
	t.Run("generation call fails", func(t *testing.T) {
		gen := &scriptedGenerator{Errs: []error{errors.New("boom")}}
		_, err := NewCodeGenerator(gen, 0).Generate(context.Background(), GenerationRequest{Task: "x"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrGeneration)
	})

	t.Run("empty code", func(t *testing.T) {
		_, err := NewCodeGenerator(script("```python\n```"), 0).Generate(context.Background(), GenerationRequest{Task: "x"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrGeneration)
	})
}

func TestFixHints(t *testing.T) {
	tests := []struct {
		err  string
		want string
	}{
		{"FileNotFoundError: [Errno 2] No such file or directory: 'x.csv'", "os.path.exists"},
		{"KeyError: 'amount'", "df.columns.tolist()"},
		{"ValueError: could not convert string to float: 'n/a'", "pd.to_numeric"},
		{"TypeError: unsupported operand type(s)", "pd.to_numeric"},
		{"ModuleNotFoundError: No module named 'plotly'", "Only import pandas"},
		{"execution timed out after 2m0s", "too slow"},
		{"ZeroDivisionError: division by zero", "root cause"},
	}
	for _, tt := range tests {
		assert.Contains(t, FixHints(tt.err), tt.want, tt.err)
	}

	both := FixHints("KeyError: 'x'\nTypeError: bad")
	assert.Equal(t, 2, strings.Count(both, "\n- ")+1)
}
