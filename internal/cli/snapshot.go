package cli

import (
	"fmt"
	"sort"

	"github.com/roach88/animflow/internal/loader"
	"github.com/roach88/animflow/internal/model"
)

// loadSnapshot reads a snapshot document and prints every load error. Load
// errors are command errors: nothing downstream can run without a snapshot.
func loadSnapshot(f *OutputFormatter, path string) (*model.Snapshot, error) {
	f.VerboseLog("Loading snapshot %s", path)
	snap, err := loader.Load(path)
	if err == nil {
		f.VerboseLog("Loaded %d composition(s), %d layer(s), %d node(s)",
			len(snap.Compositions), len(snap.Layers), len(snap.Nodes))
		return snap, nil
	}
	return nil, reportLoadError(f, path, err)
}

// reportLoadError prints the LoadErrors inside err and returns a command
// error.
func reportLoadError(f *OutputFormatter, path string, err error) error {
	errs := loader.Errors(err)
	if len(errs) == 0 {
		return f.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	if f.JSON() {
		cliErrors := make([]CLIError, len(errs))
		for i, e := range errs {
			cliErrors[i] = CLIError{Code: e.Code, Message: loadMessage(e)}
		}
		if encErr := f.Encode(CLIResponse{Status: "error", Error: &cliErrors[0], Data: cliErrors}); encErr != nil {
			return encErr
		}
	} else {
		fmt.Fprintln(f.Writer, "✗ Load failed")
		fmt.Fprintln(f.Writer)
		for _, e := range errs {
			if e.Pos.IsValid() {
				fmt.Fprintf(f.Writer, "%s:%d:%d\n", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
			}
			fmt.Fprintf(f.Writer, "  %s: %s\n\n", e.Code, loadMessage(e))
		}
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("loading %s failed with %d error(s)", path, len(errs)))
}

func loadMessage(e *loader.LoadError) string {
	if e.Path != "" {
		return e.Path + ": " + e.Message
	}
	return e.Message
}

// compositionIDs returns the selected composition, or every composition in
// id order when selected is empty.
func compositionIDs(f *OutputFormatter, snap *model.Snapshot, selected string) ([]string, error) {
	if selected != "" {
		if _, ok := snap.Compositions[selected]; !ok {
			return nil, f.fail(ExitCommandError, ErrCodeComposition, fmt.Sprintf("composition %q not found", selected), nil)
		}
		return []string{selected}, nil
	}
	ids := make([]string, 0, len(snap.Compositions))
	for id := range snap.Compositions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// requireComposition resolves the composition a single-composition command
// works on. With no selection, a snapshot holding exactly one composition
// selects it.
func requireComposition(f *OutputFormatter, snap *model.Snapshot, selected string) (string, error) {
	ids, err := compositionIDs(f, snap, selected)
	if err != nil {
		return "", err
	}
	if len(ids) != 1 {
		return "", f.fail(ExitCommandError, ErrCodeComposition,
			fmt.Sprintf("snapshot has %d compositions; choose one with --composition", len(ids)), ids)
	}
	return ids[0], nil
}
