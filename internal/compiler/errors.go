package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a compile failure.
type Code string

const (
	CodeCycle        Code = "CYCLE"
	CodeInvalidGraph Code = "INVALID_GRAPH"
)

// CompileError is a composition-wide structural failure. Compile returns no
// partial output alongside it.
type CompileError struct {
	Code          Code
	CompositionID string
	NodeID        string
	Path          []string // for cycles: the trip from the first revisited node back to itself
	Message       string
}

func (e *CompileError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] composition %s", e.Code, e.CompositionID)
	if e.NodeID != "" {
		fmt.Fprintf(&b, ": node %s", e.NodeID)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	if len(e.Path) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Path, " → "))
	}
	return b.String()
}

// IsCycleError returns true if err is a CompileError for a cycle.
func IsCycleError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce) && ce.Code == CodeCycle
}

// AsCompileError extracts a *CompileError from err.
func AsCompileError(err error) (*CompileError, bool) {
	var ce *CompileError
	ok := errors.As(err, &ce)
	return ce, ok
}
