package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/animflow/internal/compiler"
)

func runValidateCmd(t *testing.T, format, path string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})
	err := cmd.Execute()
	return buf.String(), err
}

func errorCodes(errs []compiler.ValidationError) []string {
	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	return codes
}

func TestValidateValidSnapshot(t *testing.T) {
	output, err := runValidateCmd(t, "text", "testdata/scene.yaml")
	require.NoError(t, err)
	assert.Contains(t, output, "✓ Snapshot valid")
}

func TestValidateValidSnapshotJSON(t *testing.T) {
	output, err := runValidateCmd(t, "json", "testdata/scene.yaml")
	require.NoError(t, err)

	var result ValidationResult
	resp := decodeResponse(t, []byte(output), &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateStaleReference(t *testing.T) {
	output, err := runValidateCmd(t, "text", "testdata/stale.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, output, "✗ Validation failed")
	assert.Contains(t, output, "E103")
	assert.Contains(t, output, `parent "ghost"`)
}

func TestValidateCycle(t *testing.T) {
	output, err := runValidateCmd(t, "json", "testdata/cycle.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result ValidationResult
	resp := decodeResponse(t, []byte(output), &result)
	assert.Equal(t, "error", resp.Status)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "CYCLE", result.Errors[0].Code)
	assert.Equal(t, "composition main / node p", result.Errors[0].Field)
}

func TestValidateBuildErrorsReportedTogether(t *testing.T) {
	output, err := runValidateCmd(t, "json", "testdata/invalid.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result ValidationResult
	decodeResponse(t, []byte(output), &result)
	assert.ElementsMatch(t, []string{"E011", "E012"}, errorCodes(result.Errors))
}

func TestValidateUnreadableDocument(t *testing.T) {
	tests := []struct {
		name string
		path string
		code string
	}{
		{"syntax error", "testdata/broken.yaml", "E004"},
		{"missing file", "testdata/missing.yaml", "E002"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := runValidateCmd(t, "text", tt.path)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, output, tt.code)
		})
	}
}

func TestValidateVerboseOutput(t *testing.T) {
	out := &bytes.Buffer{}
	diag := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text", Verbose: true})
	cmd.SetOut(out)
	cmd.SetErr(diag)
	cmd.SetArgs([]string{"testdata/scene.yaml"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, diag.String(), "Read 1 composition(s) from testdata/scene.yaml")
	assert.Contains(t, diag.String(), "Compiling composition: main")
}

func TestValidateSnapshotFile(t *testing.T) {
	errs, err := ValidateSnapshotFile("testdata/scene.yaml")
	require.NoError(t, err)
	assert.Empty(t, errs)

	errs, err = ValidateSnapshotFile("testdata/stale.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{compiler.ErrUnknownParent}, errorCodes(errs))

	_, err = ValidateSnapshotFile("testdata/broken.yaml")
	require.Error(t, err)
}
