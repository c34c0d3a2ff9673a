package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func findCommand(t *testing.T, name string) *cobra.Command {
	t.Helper()
	sub, _, err := NewRootCommand().Find([]string{name})
	require.NoError(t, err)
	require.Equal(t, name, sub.Name())
	return sub
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "animflow", cmd.Use)
	assert.Contains(t, cmd.Long, "node graphs")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"compile", "validate", "eval", "bake", "trace", "replay", "test", "watch", "convert"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command string
		flag    string
		def     string
	}{
		{"compile", "composition", ""},
		{"compile", "dump", "false"},
		{"eval", "frame", "0"},
		{"eval", "property", "[]"},
		{"bake", "db", ""},
		{"bake", "last", "-1"},
		{"trace", "db", ""},
		{"trace", "run", ""},
		{"trace", "frame", "0"},
		{"replay", "db", ""},
		{"replay", "run", ""},
		{"test", "update", "false"},
		{"test", "filter", ""},
		{"watch", "debounce", "100ms"},
		{"watch", "stdin", "false"},
		{"convert", "to", "yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.command+"/"+tt.flag, func(t *testing.T) {
			f := findCommand(t, tt.command).Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
}

func TestOutputFlagShorthand(t *testing.T) {
	for _, name := range []string{"compile", "convert"} {
		f := findCommand(t, name).Flags().Lookup("output")
		require.NotNil(t, f, name)
		assert.Equal(t, "o", f.Shorthand)
	}
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, err := execute(t, "--format", "invalid", "compile", "testdata/scene.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
