package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/animflow/internal/engine"
	"github.com/roach88/animflow/internal/model"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Composition string
	Frame       int
	Properties  []string // only report these ids
}

// EvalResult holds the values of one composition at one frame.
type EvalResult struct {
	Composition string           `json:"composition"`
	Frame       int              `json:"frame"`
	Values      map[string]any   `json:"values"`
	Arrays      map[string][]any `json:"arrays,omitempty"`
	Errors      []EvalError      `json:"errors,omitempty"`
}

// EvalError is a composition error raised while evaluating.
type EvalError struct {
	Code     string `json:"code"`
	Node     string `json:"node,omitempty"`
	Property string `json:"property,omitempty"`
	Message  string `json:"message"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <snapshot>",
		Short: "Evaluate a composition at one frame",
		Long: `Evaluate every property of a composition at one frame and print the
computed values, array-modifier instances and composition errors.

Examples:
  animflow eval scene.yaml --frame 12
  animflow eval scene.cue --composition main --property box.opacity
  animflow eval scene.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Composition, "composition", "", "composition id (default: the only composition)")
	cmd.Flags().IntVar(&opts.Frame, "frame", 0, "frame index (default: the composition's current frame)")
	cmd.Flags().StringSliceVar(&opts.Properties, "property", nil, "report only these property ids")

	return cmd
}

func runEval(opts *EvalOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	snap, err := loadSnapshot(formatter, path)
	if err != nil {
		return err
	}
	compID, err := requireComposition(formatter, snap, opts.Composition)
	if err != nil {
		return err
	}

	m := engine.New(compID, snap, engine.WithLogger(newLogger(opts.RootOptions, formatter.GetErrWriter())))
	defer m.Dispose()
	if cmd.Flags().Changed("frame") && opts.Frame != m.FrameIndex() {
		m.OnFrameIndexChanged(opts.Frame)
	}

	result := collectValues(m, snap, opts.Properties)
	if err := formatter.Success(result, func(w io.Writer) { writeEvalText(w, result) }); err != nil {
		return err
	}

	if len(result.Errors) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d composition error(s)", len(result.Errors)))
	}
	return nil
}

// collectValues reads every leaf of the manager's composition. A non-empty
// filter keeps only the listed ids; a compound or group id keeps its leaves.
func collectValues(m *engine.Manager, snap *model.Snapshot, filter []string) *EvalResult {
	keep := func(string) bool { return true }
	if len(filter) > 0 {
		wanted := make(map[string]bool)
		for _, id := range filter {
			wanted[id] = true
			if leaves, ok := snap.LeafIDs(id); ok {
				for _, leaf := range leaves {
					wanted[leaf] = true
				}
			}
		}
		keep = func(id string) bool { return wanted[id] }
	}

	result := &EvalResult{
		Composition: m.CompositionID(),
		Frame:       m.FrameIndex(),
		Values:      make(map[string]any),
	}
	for _, layer := range snap.CompositionLayers(m.CompositionID()) {
		for _, p := range snap.LayerLeaves(layer.ID) {
			if !keep(p.ID) {
				continue
			}
			if v, ok := m.PropertyValue(p.ID); ok {
				result.Values[p.ID] = model.Native(v)
			}
			n := m.ArrayEntries(p.ID)
			if n == 0 {
				continue
			}
			if result.Arrays == nil {
				result.Arrays = make(map[string][]any)
			}
			entries := make([]any, n)
			for i := range entries {
				if v, ok := m.ArrayModifierValue(p.ID, i); ok {
					entries[i] = model.Native(v)
				}
			}
			result.Arrays[p.ID] = entries
		}
	}
	for _, e := range m.Errors() {
		result.Errors = append(result.Errors, EvalError{
			Code:     string(e.Code),
			Node:     e.NodeID,
			Property: e.PropertyID,
			Message:  e.Message,
		})
	}
	return result
}

func writeEvalText(w io.Writer, result *EvalResult) {
	fmt.Fprintf(w, "Composition %s @ frame %d\n\n", result.Composition, result.Frame)
	for _, id := range sortedKeys(result.Values) {
		fmt.Fprintf(w, "  %s = %v\n", id, result.Values[id])
	}
	if len(result.Arrays) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Array modifiers:")
		for _, id := range sortedKeys(result.Arrays) {
			fmt.Fprintf(w, "  %s = %v\n", id, result.Arrays[id])
		}
	}
	if len(result.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors:")
		for _, e := range result.Errors {
			subject := e.Node
			if subject == "" {
				subject = e.Property
			}
			fmt.Fprintf(w, "  %s %s: %s\n", e.Code, subject, e.Message)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
