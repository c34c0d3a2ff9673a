package loader

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error codes (E001-E099). Cross-reference problems are not load errors;
// compiler.Validate reports those with E1xx codes.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeReadFailed   = "E002" // File could not be read
	ErrCodeFormat       = "E003" // Unknown document format
	ErrCodeParseFailed  = "E004" // YAML or JSON syntax error
	ErrCodeBuildFailed  = "E005" // CUE build failed
	ErrCodeSchema       = "E006" // Document violates the #Snapshot schema
	ErrCodeDuplicateID  = "E010" // Id used twice in one id space
	ErrCodeUnknownEnum  = "E011" // Unknown layer, value, node or interpolation type
	ErrCodeBadValue     = "E012" // Literal does not coerce to the port or property kind
	ErrCodeBadOutput    = "E013" // Connection names an output that does not exist
	ErrCodeUnknownInput = "E014" // Input override for a port the node does not have
	ErrCodeShape        = "E015" // Malformed property (compound without two leaves)
)

// LoadError is one problem found while loading a document. Path locates it
// inside the document (e.g. "layer l1 / property op").
type LoadError struct {
	Code    string
	Path    string
	Message string
	Pos     token.Pos // CUE position if available
	Err     error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Errors flattens an error returned by this package into its LoadErrors.
func Errors(err error) []*LoadError {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []*LoadError
		for _, e := range joined.Unwrap() {
			out = append(out, Errors(e)...)
		}
		return out
	}
	var le *LoadError
	if errors.As(err, &le) {
		return []*LoadError{le}
	}
	return []*LoadError{{Code: ErrCodeGeneric, Message: err.Error(), Err: err}}
}

// fromCUE converts a CUE error list into LoadErrors carrying positions.
func fromCUE(code string, err error) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return &LoadError{Code: code, Message: err.Error(), Err: err}
	}
	out := make([]error, 0, len(list))
	for _, e := range list {
		le := &LoadError{Code: code, Message: e.Error(), Err: e}
		if positions := cueerrors.Positions(e); len(positions) > 0 {
			le.Pos = positions[0]
		}
		out = append(out, le)
	}
	return errors.Join(out...)
}
