package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/animflow/internal/model"
	"github.com/roach88/animflow/internal/store"
)

// maxReportedMismatches bounds the mismatch list; the count stays exact.
const maxReportedMismatches = 20

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the newest run of the snapshot
}

// ReplayMismatch is a value that differs between the stored run and the
// replay.
type ReplayMismatch struct {
	Frame    int    `json:"frame"`
	Property string `json:"property"`
	Index    int    `json:"index"`
	Stored   string `json:"stored"`
	Replayed string `json:"replayed"`
}

// ReplayResult holds the outcome of a replay.
type ReplayResult struct {
	RunID            string           `json:"run_id"`
	Composition      string           `json:"composition"`
	Frames           int              `json:"frames"`
	FingerprintMatch bool             `json:"fingerprint_match"`
	MismatchCount    int              `json:"mismatch_count"`
	Mismatches       []ReplayMismatch `json:"mismatches,omitempty"`
	Deterministic    bool             `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <snapshot>",
		Short: "Re-bake a stored run and verify determinism",
		Long: `Re-evaluate the frames of a stored bake run from the snapshot and compare
every value against what was stored.

The snapshot's fingerprint must match the run's; a different fingerprint
means the snapshot changed since the bake.

Exit codes:
  0 - Replay matches the stored run
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, etc.)

Examples:
  animflow replay scene.yaml --db ./bakes.db
  animflow replay scene.yaml --db ./bakes.db --run <id> --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (default: newest run of this snapshot)")

	return cmd
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	snap, err := loadSnapshot(formatter, path)
	if err != nil {
		return err
	}
	st, err := openExisting(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	fingerprint, err := model.Fingerprint(snap)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("fingerprint: %v", err), nil)
	}

	run, err := selectRun(ctx, formatter, st, snap, opts.RunID, fingerprint)
	if err != nil {
		return err
	}
	formatter.VerboseLog("Replaying run %s (%s frames %d..%d)", run.ID, run.CompositionID, run.FirstFrame, run.LastFrame)

	result, err := replayRun(ctx, st, snap, run, formatter)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	result.FingerprintMatch = run.Fingerprint == fingerprint
	result.Deterministic = result.FingerprintMatch && result.MismatchCount == 0

	if formatter.JSON() {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter, result)
}

// selectRun resolves the run to replay: the given id, or the newest run of
// a snapshot with the same fingerprint.
func selectRun(ctx context.Context, f *OutputFormatter, st *store.Store, snap *model.Snapshot, runID, fingerprint string) (store.BakeRun, error) {
	var (
		run store.BakeRun
		err error
	)
	if runID != "" {
		run, err = st.ReadRun(ctx, runID)
	} else {
		var compID string
		if compID, err = requireComposition(f, snap, ""); err != nil {
			return store.BakeRun{}, err
		}
		run, err = st.LatestRunFor(ctx, compID, fingerprint)
	}
	if errors.Is(err, store.ErrRunNotFound) {
		return store.BakeRun{}, f.fail(ExitCommandError, ErrCodeRunNotFound, err.Error(), nil)
	}
	if err != nil {
		return store.BakeRun{}, f.fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	if _, ok := snap.Compositions[run.CompositionID]; !ok {
		return store.BakeRun{}, f.fail(ExitCommandError, ErrCodeComposition,
			fmt.Sprintf("run %s baked composition %q, which the snapshot does not have", run.ID, run.CompositionID), nil)
	}
	return run, nil
}

// replayRun bakes the run's range into a scratch in-memory store and
// compares it frame by frame with the stored values.
func replayRun(ctx context.Context, st *store.Store, snap *model.Snapshot, run store.BakeRun, f *OutputFormatter) (*ReplayResult, error) {
	scratch, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open scratch store: %w", err)
	}
	defer scratch.Close()

	replay, err := scratch.Bake(ctx, snap, run.CompositionID, store.BakeOptions{
		FirstFrame: run.FirstFrame,
		LastFrame:  run.LastFrame,
		IDs:        store.NewFixedGenerator("replay-" + run.ID),
		Logger:     newLogger(&RootOptions{}, f.GetErrWriter()),
	})
	if err != nil {
		return nil, fmt.Errorf("replay bake: %w", err)
	}

	result := &ReplayResult{RunID: run.ID, Composition: run.CompositionID}
	for frame := run.FirstFrame; frame <= run.LastFrame; frame++ {
		stored, err := st.ReadFrame(ctx, run.ID, frame)
		if err != nil {
			return nil, err
		}
		replayed, err := scratch.ReadFrame(ctx, replay.ID, frame)
		if err != nil {
			return nil, err
		}
		result.Frames++
		for _, m := range diffFrame(frame, stored, replayed) {
			result.MismatchCount++
			if len(result.Mismatches) < maxReportedMismatches {
				result.Mismatches = append(result.Mismatches, m)
			}
		}
	}
	return result, nil
}

type valueKey struct {
	property string
	index    int
}

// diffFrame compares two frames. Values are compared by their formatted
// text, so NaN matches NaN.
func diffFrame(frame int, stored, replayed []store.BakedValue) []ReplayMismatch {
	index := make(map[valueKey]string, len(replayed))
	for _, v := range replayed {
		index[valueKey{v.PropertyID, v.ArrayIndex}] = model.Format(v.Value)
	}
	var out []ReplayMismatch
	for _, v := range stored {
		key := valueKey{v.PropertyID, v.ArrayIndex}
		want := model.Format(v.Value)
		got, ok := index[key]
		delete(index, key)
		if !ok {
			got = "<missing>"
		}
		if got != want {
			out = append(out, ReplayMismatch{Frame: frame, Property: v.PropertyID, Index: v.ArrayIndex, Stored: want, Replayed: got})
		}
	}
	for _, v := range replayed {
		key := valueKey{v.PropertyID, v.ArrayIndex}
		if _, extra := index[key]; extra {
			out = append(out, ReplayMismatch{Frame: frame, Property: v.PropertyID, Index: v.ArrayIndex, Stored: "<missing>", Replayed: index[key]})
		}
	}
	return out
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result *ReplayResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if !result.Deterministic {
		response.Status = "error"
		response.Error = &CLIError{Code: ErrCodeNondetermism, Message: replayFailure(result)}
	}
	if err := formatter.Encode(response); err != nil {
		return err
	}
	if !result.Deterministic {
		return NewExitError(ExitFailure, replayFailure(result))
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(formatter *OutputFormatter, result *ReplayResult) error {
	w := formatter.Writer
	fmt.Fprintf(w, "Run %s: %s, %d frame(s)\n", result.RunID, result.Composition, result.Frames)
	if !result.FingerprintMatch {
		fmt.Fprintln(w, "  snapshot fingerprint differs from the baked snapshot")
	}
	for _, m := range result.Mismatches {
		label := m.Property
		if m.Index != store.NoArrayIndex {
			label = fmt.Sprintf("%s[%d]", m.Property, m.Index)
		}
		fmt.Fprintf(w, "  frame %d %s: stored %s, replayed %s\n", m.Frame, label, m.Stored, m.Replayed)
	}
	if extra := result.MismatchCount - len(result.Mismatches); extra > 0 {
		fmt.Fprintf(w, "  ... and %d more\n", extra)
	}

	if !result.Deterministic {
		fmt.Fprintf(w, "✗ %s\n", replayFailure(result))
		return NewExitError(ExitFailure, replayFailure(result))
	}
	fmt.Fprintln(w, "✓ Replay matches the stored run")
	return nil
}

func replayFailure(result *ReplayResult) string {
	if !result.FingerprintMatch {
		return "snapshot changed since the bake"
	}
	return fmt.Sprintf("%d value(s) differ from the stored run", result.MismatchCount)
}
