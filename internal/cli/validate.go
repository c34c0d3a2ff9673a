package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/animflow/internal/compiler"
	"github.com/roach88/animflow/internal/loader"
	"github.com/roach88/animflow/internal/model"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <snapshot>",
		Short: "Validate a snapshot without evaluating it",
		Long: `Validate a snapshot document.

Checks the document against the schema, resolves every reference, and
compiles each composition to find cycles. Reports every problem found
instead of stopping at the first.

Exit codes:
  0 - Snapshot is valid
  1 - Validation failed
  2 - Command error (unreadable or unparsable document)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	doc, err := loader.ReadDocument(path)
	if err != nil {
		// Syntax and schema problems leave nothing to check further.
		return reportLoadError(formatter, path, err)
	}
	formatter.VerboseLog("Read %d composition(s) from %s", len(doc.Compositions), path)

	validationErrors := validateDocument(doc, formatter)
	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}
	return outputValidateSuccess(formatter)
}

// validateDocument builds doc and runs every snapshot check on it.
func validateDocument(doc *loader.Document, formatter *OutputFormatter) []compiler.ValidationError {
	snap, err := loader.Build(doc)
	if err != nil {
		var errs []compiler.ValidationError
		for _, e := range loader.Errors(err) {
			errs = append(errs, compiler.ValidationError{Field: e.Path, Message: e.Message, Code: e.Code})
		}
		return errs
	}
	return validateSnapshot(snap, formatter)
}

func validateSnapshot(snap *model.Snapshot, formatter *OutputFormatter) []compiler.ValidationError {
	errs := compiler.Validate(snap)
	if len(errs) > 0 {
		// Compiling over dangling references would only repeat them.
		return errs
	}
	ids, _ := compositionIDs(formatter, snap, "")
	for _, id := range ids {
		formatter.VerboseLog("Compiling composition: %s", id)
		if _, err := compiler.Compile(id, snap); err != nil {
			f := compileFailure(id, err)
			field := "composition " + id
			if f.NodeID != "" {
				field += " / node " + f.NodeID
			}
			errs = append(errs, compiler.ValidationError{Field: field, Message: f.Message, Code: f.Code})
		}
	}
	return errs
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter) error {
	return formatter.Success(ValidationResult{Valid: true}, func(w io.Writer) {
		fmt.Fprintln(w, "✓ Snapshot valid")
	})
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.JSON() {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := formatter.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Field != "" {
			fmt.Fprintln(formatter.Writer, err.Field)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// ValidateSnapshotFile validates a snapshot document.
// This is a helper function for external callers.
func ValidateSnapshotFile(path string) ([]compiler.ValidationError, error) {
	doc, err := loader.ReadDocument(path)
	if err != nil {
		return nil, err
	}
	silentFormatter := &OutputFormatter{Format: "text", Verbose: false, Writer: io.Discard}
	return validateDocument(doc, silentFormatter), nil
}
