package nodes

import (
	"errors"
	"fmt"
)

// UnknownReferenceError reports a property node whose property no longer
// exists. The node contributes nothing; it is not fatal to the pass.
type UnknownReferenceError struct {
	NodeID     string
	PropertyID string
	Err        error
}

func (e *UnknownReferenceError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("unknown property %q", e.PropertyID)
	}
	return fmt.Sprintf("node %s: unknown property %q", e.NodeID, e.PropertyID)
}

func (e *UnknownReferenceError) Unwrap() error { return e.Err }

// IsUnknownReference returns true if err wraps an *UnknownReferenceError.
func IsUnknownReference(err error) bool {
	var ue *UnknownReferenceError
	return errors.As(err, &ue)
}
