// Package loader reads snapshot documents written in YAML, JSON or CUE and
// flattens them into a model.Snapshot.
//
// Documents nest properties and graphs under their owners. Node ports are
// derived from the node type (nodes.Ports), so a document only lists the
// inputs it connects or overrides. CUE documents are unified with the
// embedded #Snapshot schema (schema.cue) before decoding; YAML and JSON
// documents are decoded strictly and reject unknown fields.
//
// Export goes the other way, which lets tools rewrite a snapshot in another
// format.
package loader
