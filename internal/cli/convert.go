package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/animflow/internal/loader"
)

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions
	To     string // "yaml" | "json"
	Output string
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convert <snapshot>",
		Short: "Rewrite a snapshot as YAML or JSON",
		Long: `Load a snapshot (YAML, JSON, CUE file or CUE package directory) and write
it back out in canonical form: ids sorted, defaults omitted.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.To, "to", "yaml", "output document format (yaml|json)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path (default: stdout)")

	return cmd
}

func runConvert(opts *ConvertOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	var marshal func(*loader.Document) ([]byte, error)
	switch opts.To {
	case "yaml":
		marshal = loader.MarshalYAML
	case "json":
		marshal = loader.MarshalJSON
	default:
		return formatter.fail(ExitCommandError, loader.ErrCodeFormat, fmt.Sprintf("unknown document format %q: must be yaml or json", opts.To), nil)
	}

	snap, err := loadSnapshot(formatter, path)
	if err != nil {
		return err
	}
	data, err := marshal(loader.Export(snap))
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("encoding snapshot: %v", err), nil)
	}

	if opts.Output == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(opts.Output, data, 0644); err != nil {
		return formatter.fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
	}
	formatter.VerboseLog("Wrote %s", opts.Output)
	return nil
}
