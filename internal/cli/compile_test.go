package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawResponse decodes a CLIResponse keeping Data for a typed second pass.
type rawResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func decodeResponse(t *testing.T, out []byte, data any) rawResponse {
	t.Helper()
	var resp rawResponse
	require.NoError(t, json.Unmarshal(out, &resp), string(out))
	if data != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp
}

func runCompileCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCompileScene(t *testing.T) {
	output, err := runCompileCmd(t, "text", "testdata/scene.yaml")
	require.NoError(t, err)

	assert.Contains(t, output, "✓ Compiled 1 composition(s)")
	assert.Contains(t, output, "main: 7 node(s), 0 frame-dependent, 1 array modifier(s), 1 layer(s)")
	assert.NotContains(t, output, "compute:")
}

func TestCompileSceneJSON(t *testing.T) {
	output, err := runCompileCmd(t, "json", "testdata/scene.yaml")
	require.NoError(t, err)

	var result CompilationResult
	resp := decodeResponse(t, []byte(output), &result)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, result.Compositions, 1)

	c := result.Compositions[0]
	assert.Equal(t, "main", c.ID)
	assert.ElementsMatch(t, []string{"in", "k", "mul", "out", "arr.idx", "arr.mul", "arr.out"}, c.ToCompute)
	assert.Equal(t, []string{"box.arr"}, c.ArrayGroups)
	assert.Empty(t, c.FrameNodes)

	rank := make(map[string]int, len(c.ToCompute))
	for i, id := range c.ToCompute {
		rank[id] = i
	}
	assert.Less(t, rank["in"], rank["mul"])
	assert.Less(t, rank["k"], rank["mul"])
	assert.Less(t, rank["mul"], rank["out"])
	assert.Less(t, rank["arr.idx"], rank["arr.mul"])
	assert.Less(t, rank["arr.mul"], rank["arr.out"])
}

func TestCompileDump(t *testing.T) {
	output, err := runCompileCmd(t, "text", "--dump", "testdata/scene.yaml")
	require.NoError(t, err)

	assert.Contains(t, output, "composition: main")
	assert.Contains(t, output, "compute:")
	assert.Contains(t, output, "box.arr -> box.arr.count")
}

func TestCompileOutputToFile(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "flow.txt")

	output, err := runCompileCmd(t, "text", "-o", outFile, "testdata/scene.yaml")
	require.NoError(t, err)
	assert.Contains(t, output, "Wrote flow dump to "+outFile)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "composition: main")
	assert.Contains(t, string(data), "written:")
}

func TestCompileCycle(t *testing.T) {
	output, err := runCompileCmd(t, "text", "testdata/cycle.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, output, "✗ Compilation failed")
	assert.Contains(t, output, "composition main")
	assert.Contains(t, output, "CYCLE: cycle in flow graph")
	assert.Contains(t, output, "path: p → q → p")
}

func TestCompileCycleJSON(t *testing.T) {
	output, err := runCompileCmd(t, "json", "testdata/cycle.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var failures []CompileFailure
	resp := decodeResponse(t, []byte(output), &failures)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CYCLE", resp.Error.Code)

	require.Len(t, failures, 1)
	assert.Equal(t, "main", failures[0].CompositionID)
	assert.Equal(t, "p", failures[0].NodeID)
	assert.Equal(t, []string{"p", "q", "p"}, failures[0].Path)
}

func TestCompileLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		code string
	}{
		{"syntax error", "testdata/broken.yaml", "E004"},
		{"missing file", "testdata/nope.yaml", "E002"},
		{"build errors", "testdata/invalid.yaml", "E011"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := runCompileCmd(t, "text", tt.path)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, output, "✗ Load failed")
			assert.Contains(t, output, tt.code)
		})
	}
}

func TestCompileUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.toml")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0644))

	output, err := runCompileCmd(t, "json", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeResponse(t, []byte(output), nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E003", resp.Error.Code)
}

func TestCompileUnknownComposition(t *testing.T) {
	output, err := runCompileCmd(t, "text", "--composition", "ghost", "testdata/scene.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, output, "Error [E009]")
}

func TestCompileVerboseOutput(t *testing.T) {
	out := &bytes.Buffer{}
	diag := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "json", Verbose: true})
	cmd.SetOut(out)
	cmd.SetErr(diag)
	cmd.SetArgs([]string{"testdata/two.yaml"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, diag.String(), "Compiling composition: a")
	assert.Contains(t, diag.String(), "Compiling composition: b")

	var result CompilationResult
	decodeResponse(t, out.Bytes(), &result)
	require.Len(t, result.Compositions, 2)
	assert.Equal(t, "a", result.Compositions[0].ID)
	assert.Equal(t, "b", result.Compositions[1].ID)
}
