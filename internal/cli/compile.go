package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/animflow/internal/compiler"
	"github.com/roach88/animflow/internal/model"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Composition string // compile only this composition
	Output      string // output file path for the flow dump
	Dump        bool   // print the flow dump to stdout
}

// CompiledComposition summarizes one compiled flow.
type CompiledComposition struct {
	ID          string   `json:"id"`
	ToCompute   []string `json:"to_compute"`
	FrameNodes  []string `json:"frame_nodes"`
	ArrayGroups []string `json:"array_groups"`
}

// CompileFailure is a composition that did not compile.
type CompileFailure struct {
	CompositionID string   `json:"composition_id"`
	Code          string   `json:"code"`
	NodeID        string   `json:"node_id,omitempty"`
	Path          []string `json:"path,omitempty"`
	Message       string   `json:"message"`
}

// CompilationResult holds the compiled compositions.
type CompilationResult struct {
	Compositions []CompiledComposition `json:"compositions"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <snapshot>",
		Short: "Compile node graphs into evaluation order",
		Long: `Compile the node graphs of every composition in a snapshot into a single
evaluation order and report it.

The snapshot may be a YAML, JSON or CUE file, or a directory holding a CUE
package. Cycles and graphs the evaluator cannot run are reported per
composition.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Composition, "composition", "", "compile only this composition")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the flow dump to this file")
	cmd.Flags().BoolVar(&opts.Dump, "dump", false, "print the flow dump")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	snap, err := loadSnapshot(formatter, path)
	if err != nil {
		return err
	}
	ids, err := compositionIDs(formatter, snap, opts.Composition)
	if err != nil {
		return err
	}

	result := &CompilationResult{Compositions: []CompiledComposition{}}
	var failures []CompileFailure
	var dump bytes.Buffer
	for _, id := range ids {
		formatter.VerboseLog("Compiling composition: %s", id)
		flow, err := compiler.Compile(id, snap)
		if err != nil {
			failures = append(failures, compileFailure(id, err))
			continue
		}
		result.Compositions = append(result.Compositions, summarize(flow))
		dump.Write(compiler.Dump(flow, snap))
	}

	if len(failures) > 0 {
		return outputCompileErrors(formatter, failures)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, dump.Bytes(), 0644); err != nil {
			return formatter.fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, snap, opts, dump.Bytes())
}

func summarize(flow *compiler.CompiledFlow) CompiledComposition {
	groups := make([]string, 0, len(flow.ArrayModifierGroupToCount))
	for g := range flow.ArrayModifierGroupToCount {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	frameNodes := flow.FrameIndexNodes
	if frameNodes == nil {
		frameNodes = []string{}
	}
	return CompiledComposition{
		ID:          flow.CompositionID,
		ToCompute:   append([]string{}, flow.ToCompute...),
		FrameNodes:  frameNodes,
		ArrayGroups: groups,
	}
}

func compileFailure(compositionID string, err error) CompileFailure {
	if ce, ok := compiler.AsCompileError(err); ok {
		return CompileFailure{
			CompositionID: compositionID,
			Code:          string(ce.Code),
			NodeID:        ce.NodeID,
			Path:          ce.Path,
			Message:       ce.Message,
		}
	}
	return CompileFailure{CompositionID: compositionID, Code: ErrCodeGeneric, Message: err.Error()}
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, snap *model.Snapshot, opts *CompileOptions, dump []byte) error {
	return formatter.Success(result, func(w io.Writer) {
		writeCompileText(w, result, snap, opts, dump)
	})
}

func writeCompileText(w io.Writer, result *CompilationResult, snap *model.Snapshot, opts *CompileOptions, dump []byte) {
	fmt.Fprintf(w, "✓ Compiled %d composition(s)\n\n", len(result.Compositions))
	for _, c := range result.Compositions {
		fmt.Fprintf(w, "  %s: %d node(s), %d frame-dependent, %d array modifier(s), %d layer(s)\n",
			c.ID, len(c.ToCompute), len(c.FrameNodes), len(c.ArrayGroups),
			len(snap.Compositions[c.ID].Layers))
	}
	fmt.Fprintln(w)

	if opts.Dump {
		w.Write(dump)
		fmt.Fprintln(w)
	}
	if opts.Output != "" {
		fmt.Fprintf(w, "Wrote flow dump to %s\n", opts.Output)
	}
}

// outputCompileErrors outputs every composition that failed to compile.
func outputCompileErrors(formatter *OutputFormatter, failures []CompileFailure) error {
	if formatter.JSON() {
		response := CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: failures[0].Code, Message: failures[0].Message},
			Data:   failures,
		}
		if err := formatter.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("compilation failed for %d composition(s)", len(failures)))
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Compilation failed")
	fmt.Fprintln(w)
	for _, f := range failures {
		fmt.Fprintf(w, "composition %s\n", f.CompositionID)
		if f.NodeID != "" {
			fmt.Fprintf(w, "  node %s\n", f.NodeID)
		}
		fmt.Fprintf(w, "  %s: %s\n", f.Code, f.Message)
		for i, id := range f.Path {
			if i == 0 {
				fmt.Fprintf(w, "  path: %s", id)
				continue
			}
			fmt.Fprintf(w, " → %s", id)
		}
		if len(f.Path) > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("compilation failed for %d composition(s)", len(failures)))
}
