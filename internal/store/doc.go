// Package store persists baked animation frames in SQLite.
//
// A bake evaluates every frame of a composition with an engine.Manager and
// records:
//   - bake_runs: one row per bake, keyed by a UUIDv7 run id and tagged with
//     the snapshot fingerprint
//   - baked_values: computed values per frame and leaf property, plus
//     array-modifier values per instance index
//   - bake_errors: composition errors raised while baking, once per pass
//
// Values are stored as JSON text next to their kind and decoded back through
// the model coercion functions.
//
// All reads order by (frame, property_id, array_index) or by seq, so results
// are stable across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
