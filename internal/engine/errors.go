package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/animflow/internal/compiler"
	"github.com/roach88/animflow/internal/expr"
	"github.com/roach88/animflow/internal/model"
	"github.com/roach88/animflow/internal/nodes"
)

// ErrorCode categorizes composition errors.
type ErrorCode string

const (
	// CodeCycle is a structural cycle: flow graph pointers, cross-layer
	// property coupling, or a composition that contains itself.
	CodeCycle ErrorCode = "CYCLE"

	// CodeInvalidGraph is any other compile failure.
	CodeInvalidGraph ErrorCode = "INVALID_GRAPH"

	// CodeCoercion is a value of the wrong kind reaching a typed port or
	// property. Aborts the pass.
	CodeCoercion ErrorCode = "COERCION"

	// CodeUnknownReference is a stale property id. The node contributes
	// nothing; the pass continues.
	CodeUnknownReference ErrorCode = "UNKNOWN_REFERENCE"

	// CodeArity is an expression whose variables no longer match its ports.
	CodeArity ErrorCode = "ARITY"

	// CodeExpression is expression text that does not compile.
	CodeExpression ErrorCode = "EXPRESSION"
)

// CompositionError is an error captured during a pass. Managers never
// return or panic with these; read them from Errors.
type CompositionError struct {
	Code          ErrorCode
	CompositionID string
	NodeID        string
	PropertyID    string
	Message       string
	Pass          int64
	Err           error
}

// Error implements the error interface.
func (e *CompositionError) Error() string {
	switch {
	case e.NodeID != "":
		return fmt.Sprintf("%s: %s (composition=%s, node=%s)", e.Code, e.Message, e.CompositionID, e.NodeID)
	case e.PropertyID != "":
		return fmt.Sprintf("%s: %s (composition=%s, property=%s)", e.Code, e.Message, e.CompositionID, e.PropertyID)
	}
	return fmt.Sprintf("%s: %s (composition=%s)", e.Code, e.Message, e.CompositionID)
}

func (e *CompositionError) Unwrap() error { return e.Err }

// Fatal reports whether the error aborted its pass.
func (e *CompositionError) Fatal() bool {
	return e.Code != CodeUnknownReference
}

// IsCompileError returns true if err is a CompositionError raised while
// compiling.
func IsCompileError(err error) bool {
	var ce *CompositionError
	if errors.As(err, &ce) {
		return ce.Code == CodeCycle || ce.Code == CodeInvalidGraph
	}
	return false
}

// classify converts an error from the compiler, node evaluator or sampling
// into a CompositionError.
func classify(compID string, err error) *CompositionError {
	out := &CompositionError{CompositionID: compID, Message: err.Error(), Err: err}

	var (
		compileErr  *compiler.CompileError
		coerceErr   *model.CoercionError
		unknownErr  *nodes.UnknownReferenceError
		arityErr    *expr.ArityError
		syntaxErr   *expr.SyntaxError
		evalErr     *expr.EvalError
		existingErr *CompositionError
	)
	switch {
	case errors.As(err, &existingErr):
		return existingErr
	case errors.As(err, &compileErr):
		out.Code = CodeInvalidGraph
		if compileErr.Code == compiler.CodeCycle {
			out.Code = CodeCycle
		}
		out.NodeID = compileErr.NodeID
		out.Message = compileErr.Message
	case errors.As(err, &coerceErr):
		out.Code = CodeCoercion
		out.NodeID = coerceErr.NodeID
	case errors.As(err, &unknownErr):
		out.Code = CodeUnknownReference
		out.NodeID = unknownErr.NodeID
		out.PropertyID = unknownErr.PropertyID
	case errors.As(err, &arityErr):
		out.Code = CodeArity
		out.NodeID = arityErr.NodeID
	case errors.As(err, &syntaxErr):
		out.Code = CodeExpression
	case errors.As(err, &evalErr):
		// A runtime operand of the wrong type inside an expression.
		out.Code = CodeCoercion
	default:
		out.Code = CodeInvalidGraph
	}
	return out
}
