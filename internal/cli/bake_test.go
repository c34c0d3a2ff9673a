package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/animflow/internal/model"
	"github.com/roach88/animflow/internal/store"
)

// bakeScene bakes testdata/scene.yaml into a fresh database and returns its
// path. Runs get the given ids in order.
func bakeScene(t *testing.T, first, last int, ids ...string) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "bakes.db")
	for _, id := range ids {
		bakeInto(t, dbPath, "testdata/scene.yaml", first, last, id)
	}
	return dbPath
}

func bakeInto(t *testing.T, dbPath, snapshot string, first, last int, id string) BakeSummary {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewBakeCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})

	opts := &BakeOptions{
		RootOptions: rootOpts,
		Database:    dbPath,
		First:       first,
		Last:        last,
		IDs:         store.NewFixedGenerator(id),
	}
	require.NoError(t, runBake(opts, snapshot, cmd))

	var summary BakeSummary
	decodeResponse(t, buf.Bytes(), &summary)
	return summary
}

func TestBakeCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bakes.db")

	output, err := execute(t, "bake", "testdata/scene.yaml", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, output, "✓ Baked main frames 0..29")
	assert.Contains(t, output, "run:")
	assert.Contains(t, output, "fingerprint:")
	assert.NotContains(t, output, "errors:")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ListRuns(context.Background(), "main")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 0, runs[0].FirstFrame)
	assert.Equal(t, 29, runs[0].LastFrame)
}

func TestBakeSummaryJSON(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bakes.db")

	first := bakeInto(t, dbPath, "testdata/scene.yaml", 0, 20, "run-1")
	assert.Equal(t, "run-1", first.RunID)
	assert.Equal(t, "main", first.CompositionID)
	assert.Equal(t, 0, first.FirstFrame)
	assert.Equal(t, 20, first.LastFrame)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, 0, first.Errors)
	assert.NotEmpty(t, first.Fingerprint)

	second := bakeInto(t, dbPath, "testdata/scene.yaml", 5, -1, "run-2")
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, 5, second.FirstFrame)
	assert.Equal(t, 29, second.LastFrame)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
}

func TestBakeStoresValues(t *testing.T) {
	dbPath := bakeScene(t, 0, 20, "run-1")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	series, err := st.ReadSeries(context.Background(), "run-1", "box.x")
	require.NoError(t, err)
	require.Len(t, series, 21)
	assert.Equal(t, "100", model.Format(series[10].Value))
	assert.Equal(t, "200", model.Format(series[20].Value))
}

func TestBakeErrors(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bakes.db")

	tests := []struct {
		name     string
		args     []string
		exitCode int
		contains string
	}{
		{"missing db flag", []string{"bake", "testdata/scene.yaml"}, ExitFailure, ""},
		{"empty range", []string{"bake", "testdata/scene.yaml", "--db", dbPath, "--first", "10", "--last", "5"}, ExitCommandError, "empty frame range"},
		{"ambiguous composition", []string{"bake", "testdata/two.yaml", "--db", dbPath}, ExitCommandError, "E009"},
		{"bad snapshot", []string{"bake", "testdata/broken.yaml", "--db", dbPath}, ExitCommandError, "E004"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.exitCode, GetExitCode(err))
			if tt.contains != "" {
				assert.Contains(t, output, tt.contains)
			}
		})
	}
}
