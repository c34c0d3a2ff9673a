// Package model defines the snapshot data model evaluated by animflow and
// the tagged values that flow through it.
//
// This package imports nothing internal. Every other internal package builds
// on it, which keeps the dependency order leaves-first:
//
//	model -> timeline -> expr -> compiler -> nodes -> engine
//
// Key design constraints:
//   - PropertyNode and Value are sealed interfaces; type switches over them
//     live here (traverse.go, coerce.go) so other packages do not branch on
//     property or value shapes themselves
//   - Coercion never falls back to a default: a mismatch is a *CoercionError
//   - Snapshots are read-only to the engine; hosts own all mutation
package model
