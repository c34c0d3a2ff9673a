package cli

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/animflow/internal/model"
	"github.com/roach88/animflow/internal/store"
)

// editedScene writes a copy of testdata/scene.yaml with one substitution
// applied and returns its path.
func editedScene(t *testing.T, old, new string) string {
	t.Helper()
	data, err := os.ReadFile("testdata/scene.yaml")
	require.NoError(t, err)
	require.Contains(t, string(data), old)
	path := filepath.Join(t.TempDir(), "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(data), old, new, 1)), 0644))
	return path
}

func TestReplayMissingDatabaseFlag(t *testing.T) {
	_, err := execute(t, "replay", "testdata/scene.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestReplayNonExistentDatabase(t *testing.T) {
	output, err := execute(t, "replay", "testdata/scene.yaml", "--db", filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, output, "database not found")
}

func TestReplayLatestRun(t *testing.T) {
	dbPath := bakeScene(t, 0, 9, "run-1", "run-2")

	output, err := execute(t, "replay", "testdata/scene.yaml", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, output, "Run run-2: main, 10 frame(s)")
	assert.Contains(t, output, "✓ Replay matches the stored run")
}

func TestReplaySpecificRunJSON(t *testing.T) {
	dbPath := bakeScene(t, 0, 9, "run-1", "run-2")

	output, err := execute(t, "--format", "json", "replay", "testdata/scene.yaml", "--db", dbPath, "--run", "run-1")
	require.NoError(t, err)

	var result ReplayResult
	resp := decodeResponse(t, []byte(output), &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, 10, result.Frames)
	assert.True(t, result.FingerprintMatch)
	assert.True(t, result.Deterministic)
	assert.Zero(t, result.MismatchCount)
}

func TestReplayDetectsTamperedValue(t *testing.T) {
	dbPath := bakeScene(t, 0, 20, "run-1")

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE baked_values SET value = '999' WHERE run_id = 'run-1' AND frame = 10 AND property_id = 'box.x'`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	output, err := execute(t, "--format", "json", "replay", "testdata/scene.yaml", "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result ReplayResult
	resp := decodeResponse(t, []byte(output), &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNondetermism, resp.Error.Code)
	assert.Equal(t, "1 value(s) differ from the stored run", resp.Error.Message)

	assert.True(t, result.FingerprintMatch)
	assert.False(t, result.Deterministic)
	require.Equal(t, 1, result.MismatchCount)
	assert.Equal(t, ReplayMismatch{Frame: 10, Property: "box.x", Index: -1, Stored: "999", Replayed: "100"}, result.Mismatches[0])
}

func TestReplayChangedSnapshot(t *testing.T) {
	dbPath := bakeScene(t, 0, 20, "run-1")
	changed := editedScene(t, "{id: k, type: num_input, value: 2}", "{id: k, type: num_input, value: 3}")

	// Without --run, only runs of the same snapshot are candidates.
	output, err := execute(t, "replay", changed, "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, output, "Error [E020]")

	output, err = execute(t, "replay", changed, "--db", dbPath, "--run", "run-1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "snapshot fingerprint differs from the baked snapshot")
	assert.Contains(t, output, "frame 10 box.x: stored 100, replayed 150")
	assert.Contains(t, output, "✗ snapshot changed since the bake")
}

func TestReplayMismatchListIsBounded(t *testing.T) {
	dbPath := bakeScene(t, 0, 29, "run-1")
	changed := editedScene(t, "{id: k, type: num_input, value: 2}", "{id: k, type: num_input, value: 3}")

	output, err := execute(t, "--format", "json", "replay", changed, "--db", dbPath, "--run", "run-1")
	require.Error(t, err)

	var result ReplayResult
	decodeResponse(t, []byte(output), &result)
	// box.x differs on every frame but 0, where opacity is 0.
	assert.Equal(t, 29, result.MismatchCount)
	assert.Len(t, result.Mismatches, maxReportedMismatches)
}

func TestDiffFrame(t *testing.T) {
	stored := bakedValues(t, "a", 1.0, "b", 2.0)
	replayed := bakedValues(t, "a", 1.0, "c", 3.0)

	got := diffFrame(4, stored, replayed)
	assert.Equal(t, []ReplayMismatch{
		{Frame: 4, Property: "b", Index: -1, Stored: "2", Replayed: "<missing>"},
		{Frame: 4, Property: "c", Index: -1, Stored: "<missing>", Replayed: "3"},
	}, got)

	assert.Empty(t, diffFrame(4, stored, stored))
}

// bakedValues builds computed values from id, number pairs.
func bakedValues(t *testing.T, pairs ...any) []store.BakedValue {
	t.Helper()
	require.Zero(t, len(pairs)%2)
	var out []store.BakedValue
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, store.BakedValue{
			PropertyID: pairs[i].(string),
			ArrayIndex: store.NoArrayIndex,
			Value:      model.Number(pairs[i+1].(float64)),
		})
	}
	return out
}
