package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/analyst/internal/analyst"
	"github.com/ChamsBouzaiene/analyst/internal/engine"
)

func TestReadQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.txt")
	require.NoError(t, os.WriteFile(path, []byte("# revenue\nTotal revenue?\n\n  Rows per region?  \n"), 0o644))

	qs, err := readQueries(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Total revenue?", "Rows per region?"}, qs)
}

func TestReadQuery(t *testing.T) {
	q, err := readQuery([]string{"how", "many", "rows?"}, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "how many rows?", q)

	q, err = readQuery(nil, strings.NewReader("  from stdin \n"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", q)

	_, err = readQuery(nil, strings.NewReader(""))
	assert.Error(t, err)
}

func TestInitialDataContext(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(data, []byte("region,revenue\n"), 0o644))

	dc, workDir, err := initialDataContext(data, `{"schema": {"region": "str", "revenue": "float"}}`)
	require.NoError(t, err)
	assert.Equal(t, dir, workDir)
	assert.Equal(t, "sales.csv", dc.FilePath())
	assert.Equal(t, []string{"region", "revenue"}, dc.Columns())

	schemaFile := filepath.Join(dir, "facts.json")
	require.NoError(t, os.WriteFile(schemaFile, []byte(`{"row_count": 10}`), 0o644))
	dc, _, err = initialDataContext(data, schemaFile)
	require.NoError(t, err)
	assert.EqualValues(t, 10, dc[analyst.KeyRowCount])
	assert.False(t, dc.HasSchema())

	_, _, err = initialDataContext(filepath.Join(dir, "missing.csv"), "")
	assert.Error(t, err)
	_, _, err = initialDataContext(dir, "")
	assert.ErrorContains(t, err, "directory")
	_, _, err = initialDataContext(data, "{not json")
	assert.ErrorContains(t, err, "JSON object")
}

func TestRunBatch_IndependentRequests(t *testing.T) {
	var executed atomic.Int32
	planner := engine.GeneratorFunc(func(_ context.Context, _, user string) (string, error) {
		return `{"plan": ["Load the data and answer"]}`, nil
	})
	replanner := engine.GeneratorFunc(func(_ context.Context, _, user string) (string, error) {
		if strings.Contains(user, "fail me") {
			return `{"status": "maybe"}`, nil
		}
		return `{"status": "done", "final_response": "answered"}`, nil
	})
	codegen := engine.GeneratorFunc(func(context.Context, string, string) (string, error) {
		return "print(1)", nil
	})
	o, err := analyst.NewOrchestratorBuilder().
		WithGenerator(analyst.RolePlanner, planner).
		WithGenerator(analyst.RoleReplanner, replanner).
		WithGenerator(analyst.RoleCodegen, codegen).
		WithInterpretation(false).
		WithExecutor(analyst.CodeExecutorFunc(func(context.Context, string) analyst.ExecutionOutcome {
			executed.Add(1)
			return analyst.ExecutionOutcome{Success: true, Stdout: "1\n"}
		})).
		Build()
	require.NoError(t, err)

	queries := []string{"first question", "please fail me", "third question"}
	results := runBatch(context.Background(), o, analyst.DataContext{"file_path": "x.csv"}, queries, 2)

	require.Len(t, results, 3)
	assert.NoError(t, results[0].err)
	assert.Equal(t, "answered", results[0].out.FinalResponse)
	assert.ErrorIs(t, results[1].err, analyst.ErrReplanParsing)
	assert.Equal(t, analyst.StatusFailed, results[1].out.Status)
	assert.NoError(t, results[2].err)
	assert.Equal(t, int32(3), executed.Load())
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "sk-a****wxyz", maskKey("sk-abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "****", maskKey("short"))
}
