package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/animflow/internal/store"
)

// BakeOptions holds flags for the bake command.
type BakeOptions struct {
	*RootOptions
	Database    string
	Composition string
	First       int
	Last        int

	// IDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs store.RunIDGenerator
}

// BakeSummary describes a stored bake run.
type BakeSummary struct {
	RunID         string `json:"run_id"`
	CompositionID string `json:"composition_id"`
	Fingerprint   string `json:"fingerprint"`
	FirstFrame    int    `json:"first_frame"`
	LastFrame     int    `json:"last_frame"`
	Seq           int64  `json:"seq"`
	Errors        int    `json:"errors"`
}

func summarizeRun(run store.BakeRun, errs int) BakeSummary {
	return BakeSummary{
		RunID:         run.ID,
		CompositionID: run.CompositionID,
		Fingerprint:   run.Fingerprint,
		FirstFrame:    run.FirstFrame,
		LastFrame:     run.LastFrame,
		Seq:           run.Seq,
		Errors:        errs,
	}
}

// NewBakeCommand creates the bake command.
func NewBakeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BakeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bake <snapshot>",
		Short: "Evaluate a frame range and store the values",
		Long: `Evaluate every frame of a composition and store the computed values,
array-modifier instances and composition errors in a SQLite database
(creating it if it doesn't exist). Each bake is one run.

Examples:
  animflow bake scene.yaml --db ./bakes.db
  animflow bake scene.cue --db ./bakes.db --composition main --first 10 --last 20`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBake(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Composition, "composition", "", "composition id (default: the only composition)")
	cmd.Flags().IntVar(&opts.First, "first", 0, "first frame")
	cmd.Flags().IntVar(&opts.Last, "last", -1, "last frame (default: the composition's last frame)")

	return cmd
}

func runBake(opts *BakeOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	snap, err := loadSnapshot(formatter, path)
	if err != nil {
		return err
	}
	compID, err := requireComposition(formatter, snap, opts.Composition)
	if err != nil {
		return err
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to open database: %v", err), nil)
	}
	defer st.Close()

	formatter.VerboseLog("Baking %s frames %d..%d into %s", compID, opts.First, opts.Last, opts.Database)
	run, err := st.Bake(ctx, snap, compID, store.BakeOptions{
		FirstFrame: opts.First,
		LastFrame:  opts.Last,
		IDs:        opts.IDs,
		Logger:     newLogger(opts.RootOptions, formatter.GetErrWriter()),
	})
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("bake failed: %v", err), nil)
	}

	bakeErrs, err := st.ReadErrors(ctx, run.ID)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("reading bake errors: %v", err), nil)
	}
	summary := summarizeRun(run, len(bakeErrs))

	return formatter.Success(summary, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Baked %s frames %d..%d\n", summary.CompositionID, summary.FirstFrame, summary.LastFrame)
		fmt.Fprintf(w, "  run:         %s\n", summary.RunID)
		fmt.Fprintf(w, "  fingerprint: %s\n", summary.Fingerprint)
		if summary.Errors > 0 {
			fmt.Fprintf(w, "  errors:      %d (see animflow trace --run %s)\n", summary.Errors, summary.RunID)
		}
	})
}
