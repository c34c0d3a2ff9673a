package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/animflow/internal/store"
)

func TestTraceMissingDatabaseFlag(t *testing.T) {
	_, err := execute(t, "trace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTraceNonExistentDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing.db")

	output, err := execute(t, "trace", "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, output, "database not found")
	assert.NoFileExists(t, dbPath)
}

func TestTraceEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	output, err := execute(t, "trace", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, output, "No runs found in database.")
}

func TestTraceListRuns(t *testing.T) {
	dbPath := bakeScene(t, 0, 4, "run-1", "run-2")

	output, err := execute(t, "trace", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, output, "2 run(s)")
	assert.Contains(t, output, "#1 run-1  main frames 0..4  errors=0")
	assert.Contains(t, output, "#2 run-2  main frames 0..4  errors=0")

	output, err = execute(t, "--format", "json", "trace", "--db", dbPath, "--composition", "other")
	require.NoError(t, err)
	var result TraceResult
	decodeResponse(t, []byte(output), &result)
	assert.Empty(t, result.Runs)
}

func TestTraceRunSummary(t *testing.T) {
	dbPath := bakeScene(t, 0, 4, "run-1")

	output, err := execute(t, "trace", "--db", dbPath, "--run", "run-1")
	require.NoError(t, err)
	assert.Contains(t, output, "Run run-1 (#1)")
	assert.Contains(t, output, "composition: main")
	assert.Contains(t, output, "frames:      0..4")
	assert.Contains(t, output, "no errors")
}

func TestTraceSeries(t *testing.T) {
	dbPath := bakeScene(t, 0, 20, "run-1")

	output, err := execute(t, "--format", "json", "trace", "--db", dbPath, "--run", "run-1", "--property", "box.x")
	require.NoError(t, err)

	var result TraceResult
	resp := decodeResponse(t, []byte(output), &result)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, result.Values, 21)
	for i, v := range result.Values {
		assert.Equal(t, i, v.Frame)
		assert.Equal(t, "box.x", v.Property)
		assert.Equal(t, store.NoArrayIndex, v.Index)
	}
	assert.InDelta(t, 100.0, result.Values[10].Value, 1e-9)
}

func TestTraceFrame(t *testing.T) {
	dbPath := bakeScene(t, 0, 20, "run-1")

	output, err := execute(t, "trace", "--db", dbPath, "--run", "run-1", "--frame", "10")
	require.NoError(t, err)
	assert.Contains(t, output, "  10  box.op = 50\n")
	assert.Contains(t, output, "  10  box.x = 100\n")
	assert.Contains(t, output, "  10  box.arr.off[1] = 5\n")
}

func TestTraceArraySeries(t *testing.T) {
	dbPath := bakeScene(t, 0, 20, "run-1")

	output, err := execute(t, "--format", "json", "trace", "--db", dbPath,
		"--run", "run-1", "--property", "box.arr.off", "--frame", "3")
	require.NoError(t, err)

	var result TraceResult
	decodeResponse(t, []byte(output), &result)
	require.Len(t, result.Values, 2)
	assert.Equal(t, 0, result.Values[0].Index)
	assert.Equal(t, 1, result.Values[1].Index)
	assert.InDelta(t, 5.0, result.Values[1].Value, 1e-9)
}

func TestTraceFrameOutsideRun(t *testing.T) {
	dbPath := bakeScene(t, 0, 4, "run-1")

	output, err := execute(t, "trace", "--db", dbPath, "--run", "run-1", "--frame", "25")
	require.NoError(t, err)
	assert.Contains(t, output, "No values found.")
}

func TestTraceUnknownRun(t *testing.T) {
	dbPath := bakeScene(t, 0, 4, "run-1")

	output, err := execute(t, "trace", "--db", dbPath, "--run", "ghost")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, output, "Error [E020]")
}
