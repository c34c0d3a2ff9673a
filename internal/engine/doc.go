// Package engine keeps the property values of a composition current.
//
// A Manager compiles the composition's flow graphs once per structural
// change and then recomputes incrementally:
//
//  1. Changed properties are re-sampled (timeline or static value) into the
//     raw value table.
//  2. The property_input nodes reading them, plus composition nodes on a
//     frame change, seed a forward walk over the compiled successor lists.
//  3. Reached nodes run in compile order. property_output nodes write the
//     computed value table.
//  4. Array-modifier graphs whose count or inputs changed run once per
//     instance and write per-index values only.
//
// Notifications run to completion on the caller's goroutine. Host serializes
// notifications that arrive from several goroutines.
//
// Errors are recorded, never returned: read them with Manager.Errors. A
// compile error leaves the previous values in place. A coercion, arity or
// expression error stops the pass where it is, without rollback, and the
// next notification runs a full Reset. An unknown property reference only
// silences the node that made it.
//
// Every pass takes a number from a Clock shared with nested managers, and
// recorded errors carry it.
package engine
