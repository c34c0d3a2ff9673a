package expr

import "fmt"

// Direction says which side of a node an arity error concerns.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// ArityError reports a mismatch between an expression's variables and the
// ports of the node that carries it.
type ArityError struct {
	NodeID    string
	Port      string
	Direction Direction
	Message   string
}

func (e *ArityError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("%s %q: %s", e.Direction, e.Port, e.Message)
	}
	return fmt.Sprintf("node %s: %s %q: %s", e.NodeID, e.Direction, e.Port, e.Message)
}

type cacheEntry struct {
	source  string
	program *Program
	err     error
}

// Cache holds one compiled program per expr node. An entry is reused while the
// node's source text is unchanged. Not safe for concurrent use.
type Cache struct {
	entries map[string]cacheEntry
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Program returns the compiled program for nodeID, compiling source when the
// node has no entry or its text changed. Compile failures are cached too.
func (c *Cache) Program(nodeID, source string) (*Program, error) {
	if e, ok := c.entries[nodeID]; ok && e.source == source {
		return e.program, e.err
	}
	p, err := Compile(source)
	c.entries[nodeID] = cacheEntry{source: source, program: p, err: err}
	return p, err
}

// Invalidate drops the entry for nodeID.
func (c *Cache) Invalidate(nodeID string) {
	delete(c.entries, nodeID)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int { return len(c.entries) }
