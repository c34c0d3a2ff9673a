package compiler

import (
	"fmt"
	"sort"

	"github.com/roach88/animflow/internal/model"
)

// Validation error codes (E100-E199)
const (
	// Composition and layer errors (E101-E104)
	ErrUnknownLayer       = "E101" // composition lists a layer that does not exist
	ErrUnknownComposition = "E102" // layer points at a missing composition
	ErrUnknownParent      = "E103" // parent layer missing or in another composition
	ErrNestedComposition  = "E104" // composition layer without a nested composition

	// Property errors (E110-E119)
	ErrUnknownProperty = "E110" // property id referenced but not defined
	ErrCompoundShape   = "E111" // compound must pair two number leaves
	ErrUnknownTimeline = "E112" // timeline reference does not resolve
	ErrMissingCount    = "E113" // array modifier group without a count property
	ErrPropertyOwner   = "E114" // property layer id disagrees with the layer listing it

	// Graph errors (E120-E129)
	ErrUnknownNode   = "E120" // graph lists an unknown node
	ErrNodeGraph     = "E121" // node graph id disagrees with the graph listing it
	ErrPointerTarget = "E122" // input pointer does not resolve inside the graph
	ErrNodeProperty  = "E123" // property node references an unknown property
)

// ValidationError represents a structural problem in a snapshot.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a snapshot's cross references. It reports every problem
// found (does not fail-fast) in a stable order. Compile does not require a
// clean Validate; stale references are tolerated at runtime as unknown
// references.
func Validate(snap *model.Snapshot) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateCompositions(snap)...)
	errs = append(errs, validateProperties(snap)...)
	errs = append(errs, validateGraphs(snap)...)
	return errs
}

func validateCompositions(snap *model.Snapshot) []ValidationError {
	var errs []ValidationError
	for _, id := range sortedKeys(snap.Compositions) {
		for i, layerID := range snap.Compositions[id].Layers {
			if _, ok := snap.Layers[layerID]; !ok {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("compositions.%s.layers[%d]", id, i),
					Message: fmt.Sprintf("unknown layer %q", layerID),
					Code:    ErrUnknownLayer,
				})
			}
		}
	}

	for _, id := range sortedKeys(snap.Layers) {
		layer := snap.Layers[id]
		field := "layers." + id
		if _, ok := snap.Compositions[layer.CompositionID]; !ok {
			errs = append(errs, ValidationError{
				Field:   field + ".composition",
				Message: fmt.Sprintf("unknown composition %q", layer.CompositionID),
				Code:    ErrUnknownComposition,
			})
		}
		if layer.ParentLayerID != "" {
			parent, ok := snap.Layers[layer.ParentLayerID]
			if !ok || parent.CompositionID != layer.CompositionID {
				errs = append(errs, ValidationError{
					Field:   field + ".parent",
					Message: fmt.Sprintf("parent %q is not a layer of composition %q", layer.ParentLayerID, layer.CompositionID),
					Code:    ErrUnknownParent,
				})
			}
		}
		if layer.Type == model.LayerComposition {
			if _, ok := snap.Compositions[layer.NestedCompositionID]; !ok {
				errs = append(errs, ValidationError{
					Field:   field + ".nested_composition",
					Message: fmt.Sprintf("unknown nested composition %q", layer.NestedCompositionID),
					Code:    ErrNestedComposition,
				})
			}
		}
		for i, propID := range layer.Properties {
			node, ok := snap.Properties[propID]
			if !ok {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.properties[%d]", field, i),
					Message: fmt.Sprintf("unknown property %q", propID),
					Code:    ErrUnknownProperty,
				})
				continue
			}
			if node.OwnerLayerID() != id {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.properties[%d]", field, i),
					Message: fmt.Sprintf("property %q belongs to layer %q", propID, node.OwnerLayerID()),
					Code:    ErrPropertyOwner,
				})
			}
		}
	}
	return errs
}

func validateProperties(snap *model.Snapshot) []ValidationError {
	var errs []ValidationError
	unknownChild := func(field, child string) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("unknown property %q", child), Code: ErrUnknownProperty})
	}

	for _, id := range sortedKeys(snap.Properties) {
		field := "properties." + id
		switch p := snap.Properties[id].(type) {
		case *model.Property:
			if p.TimelineID != "" {
				if _, ok := snap.Timelines[p.TimelineID]; !ok {
					errs = append(errs, ValidationError{
						Field:   field + ".timeline",
						Message: fmt.Sprintf("unknown timeline %q", p.TimelineID),
						Code:    ErrUnknownTimeline,
					})
				}
			}
		case *model.CompoundProperty:
			for i, child := range p.Properties {
				leaf, ok := snap.Properties[child].(*model.Property)
				if !ok {
					if _, exists := snap.Properties[child]; !exists {
						unknownChild(fmt.Sprintf("%s.properties[%d]", field, i), child)
						continue
					}
				}
				if !ok || leaf.ValueType != model.KindNumber {
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("%s.properties[%d]", field, i),
						Message: fmt.Sprintf("compound child %q must be a number property", child),
						Code:    ErrCompoundShape,
					})
				}
			}
		case *model.PropertyGroup:
			for i, child := range p.Properties {
				if _, ok := snap.Properties[child]; !ok {
					unknownChild(fmt.Sprintf("%s.properties[%d]", field, i), child)
				}
			}
			if p.Type == model.GroupArrayModifier {
				if _, ok := snap.CountProperty(p); !ok {
					errs = append(errs, ValidationError{
						Field:   field,
						Message: fmt.Sprintf("array modifier needs a %s property", model.NameCount),
						Code:    ErrMissingCount,
					})
				}
			}
		}
	}

	for _, id := range sortedKeys(snap.Timelines) {
		tl := snap.Timelines[id]
		if _, ok := snap.Properties[tl.PropertyID]; !ok {
			errs = append(errs, ValidationError{
				Field:   "timelines." + id + ".property",
				Message: fmt.Sprintf("unknown property %q", tl.PropertyID),
				Code:    ErrUnknownProperty,
			})
		}
	}
	return errs
}

func validateGraphs(snap *model.Snapshot) []ValidationError {
	var errs []ValidationError
	for _, id := range sortedKeys(snap.Graphs) {
		graph := snap.Graphs[id]
		members := make(map[string]bool, len(graph.Nodes))
		for _, nodeID := range graph.Nodes {
			members[nodeID] = true
		}

		for i, nodeID := range graph.Nodes {
			field := fmt.Sprintf("graphs.%s.nodes[%d]", id, i)
			node, ok := snap.Nodes[nodeID]
			if !ok {
				errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("unknown node %q", nodeID), Code: ErrUnknownNode})
				continue
			}
			if node.GraphID != id {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("node %q declares graph %q", nodeID, node.GraphID),
					Code:    ErrNodeGraph,
				})
			}
			for j, in := range node.Inputs {
				if in.Pointer != nil && !members[in.Pointer.NodeID] {
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("nodes.%s.inputs[%d]", nodeID, j),
						Message: fmt.Sprintf("pointer to %q leaves graph %q", in.Pointer.NodeID, id),
						Code:    ErrPointerTarget,
					})
				}
			}
			if node.Type == model.NodePropertyInput || node.Type == model.NodePropertyOutput {
				if _, ok := snap.Properties[node.State.PropertyID]; !ok {
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("nodes.%s.state.property", nodeID),
						Message: fmt.Sprintf("unknown property %q", node.State.PropertyID),
						Code:    ErrNodeProperty,
					})
				}
			}
		}
	}
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return errs
}
