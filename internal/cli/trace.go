package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/animflow/internal/model"
	"github.com/roach88/animflow/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database    string
	RunID       string
	Composition string // filters the run listing
	Property    string
	Frame       int
}

// TraceValue is one baked value.
type TraceValue struct {
	Frame    int    `json:"frame"`
	Property string `json:"property"`
	Index    int    `json:"index"` // -1 for computed values
	Value    any    `json:"value"`
}

// TraceError is one error recorded during a bake.
type TraceError struct {
	Frame    int    `json:"frame"`
	Pass     int64  `json:"pass"`
	Code     string `json:"code"`
	Node     string `json:"node,omitempty"`
	Property string `json:"property,omitempty"`
	Message  string `json:"message"`
}

// TraceResult holds whatever the query selected.
type TraceResult struct {
	Runs   []BakeSummary `json:"runs,omitempty"`
	Run    *BakeSummary  `json:"run,omitempty"`
	Values []TraceValue  `json:"values,omitempty"`
	Errors []TraceError  `json:"errors,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query baked runs",
		Long: `Query the runs stored by bake.

Without --run, lists the stored runs (optionally of one composition).
With --run alone, shows the run and the errors recorded while baking it.
With --property, shows that property's value at every baked frame.
With --frame, shows every value baked at that frame; combined with
--property, shows the property's array-modifier instances at that frame.

Examples:
  animflow trace --db ./bakes.db
  animflow trace --db ./bakes.db --run <id> --property box.opacity
  animflow trace --db ./bakes.db --run <id> --frame 12 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "bake run id")
	cmd.Flags().StringVar(&opts.Composition, "composition", "", "list only runs of this composition")
	cmd.Flags().StringVar(&opts.Property, "property", "", "property id")
	cmd.Flags().IntVar(&opts.Frame, "frame", 0, "frame index")

	return cmd
}

// openExisting opens a database that must already exist.
func openExisting(f *OutputFormatter, path string) (*store.Store, error) {
	st, err := store.OpenExisting(path)
	if errors.Is(err, store.ErrNoDatabase) {
		return nil, f.fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to open database: %v", err), nil)
	}
	return st, nil
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openExisting(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := queryTrace(ctx, st, opts, cmd.Flags().Changed("frame"))
	if errors.Is(err, store.ErrRunNotFound) {
		return formatter.fail(ExitCommandError, ErrCodeRunNotFound, err.Error(), nil)
	}
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	return formatter.Success(result, func(w io.Writer) { writeTraceText(w, result) })
}

func queryTrace(ctx context.Context, st *store.Store, opts *TraceOptions, byFrame bool) (*TraceResult, error) {
	result := &TraceResult{}
	if opts.RunID == "" {
		runs, err := st.ListRuns(ctx, opts.Composition)
		if err != nil {
			return nil, err
		}
		result.Runs = make([]BakeSummary, 0, len(runs))
		for _, run := range runs {
			errs, err := st.ReadErrors(ctx, run.ID)
			if err != nil {
				return nil, err
			}
			result.Runs = append(result.Runs, summarizeRun(run, len(errs)))
		}
		return result, nil
	}

	run, err := st.ReadRun(ctx, opts.RunID)
	if err != nil {
		return nil, err
	}

	var values []store.BakedValue
	switch {
	case opts.Property != "" && byFrame:
		values, err = st.ReadArraySeries(ctx, run.ID, opts.Property, opts.Frame)
	case opts.Property != "":
		values, err = st.ReadSeries(ctx, run.ID, opts.Property)
	case byFrame:
		values, err = st.ReadFrame(ctx, run.ID, opts.Frame)
	default:
		bakeErrs, err := st.ReadErrors(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		summary := summarizeRun(run, len(bakeErrs))
		result.Run = &summary
		for _, e := range bakeErrs {
			result.Errors = append(result.Errors, TraceError{
				Frame:    e.Frame,
				Pass:     e.Pass,
				Code:     e.Code,
				Node:     e.NodeID,
				Property: e.PropertyID,
				Message:  e.Message,
			})
		}
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	result.Values = make([]TraceValue, len(values))
	for i, v := range values {
		result.Values[i] = TraceValue{Frame: v.Frame, Property: v.PropertyID, Index: v.ArrayIndex, Value: model.Native(v.Value)}
	}
	return result, nil
}

func writeTraceText(w io.Writer, result *TraceResult) {
	switch {
	case result.Runs != nil:
		if len(result.Runs) == 0 {
			fmt.Fprintln(w, "No runs found in database.")
			return
		}
		fmt.Fprintf(w, "%d run(s)\n\n", len(result.Runs))
		for _, r := range result.Runs {
			fmt.Fprintf(w, "  #%d %s  %s frames %d..%d  errors=%d\n",
				r.Seq, r.RunID, r.CompositionID, r.FirstFrame, r.LastFrame, r.Errors)
		}

	case result.Run != nil:
		r := result.Run
		fmt.Fprintf(w, "Run %s (#%d)\n", r.RunID, r.Seq)
		fmt.Fprintf(w, "  composition: %s\n", r.CompositionID)
		fmt.Fprintf(w, "  frames:      %d..%d\n", r.FirstFrame, r.LastFrame)
		fmt.Fprintf(w, "  fingerprint: %s\n", r.Fingerprint)
		if len(result.Errors) == 0 {
			fmt.Fprintln(w, "  no errors")
			return
		}
		fmt.Fprintf(w, "\nErrors (%d):\n", len(result.Errors))
		for _, e := range result.Errors {
			subject := e.Node
			if subject == "" {
				subject = e.Property
			}
			fmt.Fprintf(w, "  [frame %d, pass %d] %s %s: %s\n", e.Frame, e.Pass, e.Code, subject, e.Message)
		}

	default:
		if len(result.Values) == 0 {
			fmt.Fprintln(w, "No values found.")
			return
		}
		for _, v := range result.Values {
			if v.Index == store.NoArrayIndex {
				fmt.Fprintf(w, "  %4d  %s = %v\n", v.Frame, v.Property, v.Value)
				continue
			}
			fmt.Fprintf(w, "  %4d  %s[%d] = %v\n", v.Frame, v.Property, v.Index, v.Value)
		}
	}
}
