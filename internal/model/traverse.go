package model

import "fmt"

// SubProperty is one addressable slot of a property as seen by property
// input/output nodes. Leaves lists the leaf property ids the slot covers.
type SubProperty struct {
	Name   string
	Kind   Kind
	Leaves []string
}

// Leaves resolves a property id of any shape to its leaf properties in order.
// The bool is false if id or one of its descendants does not exist.
func (s *Snapshot) Leaves(id string) ([]*Property, bool) {
	var out []*Property
	ok := s.collectLeaves(id, &out, 0)
	return out, ok
}

// maxPropertyDepth bounds group nesting; deeper trees are treated as broken.
const maxPropertyDepth = 64

func (s *Snapshot) collectLeaves(id string, out *[]*Property, depth int) bool {
	if depth > maxPropertyDepth {
		return false
	}
	node, ok := s.Properties[id]
	if !ok {
		return false
	}
	switch p := node.(type) {
	case *Property:
		*out = append(*out, p)
		return true
	case *CompoundProperty:
		for _, child := range p.Properties {
			if !s.collectLeaves(child, out, depth+1) {
				return false
			}
		}
		return true
	case *PropertyGroup:
		for _, child := range p.Properties {
			if !s.collectLeaves(child, out, depth+1) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// LeafIDs is Leaves reduced to ids.
func (s *Snapshot) LeafIDs(id string) ([]string, bool) {
	leaves, ok := s.Leaves(id)
	ids := make([]string, len(leaves))
	for i, p := range leaves {
		ids[i] = p.ID
	}
	return ids, ok
}

// Shape returns the slots a property node exposes to property_input and
// property_output nodes: one for a plain property, three (vector, x, y) for a
// compound, one per leaf for a group.
func (s *Snapshot) Shape(id string) ([]SubProperty, error) {
	node, ok := s.Properties[id]
	if !ok {
		return nil, fmt.Errorf("property %q not found", id)
	}
	switch p := node.(type) {
	case *Property:
		return []SubProperty{{Name: string(p.Name), Kind: p.ValueType, Leaves: []string{p.ID}}}, nil
	case *CompoundProperty:
		x, okX := s.Properties[p.Properties[0]].(*Property)
		y, okY := s.Properties[p.Properties[1]].(*Property)
		if !okX || !okY {
			return nil, fmt.Errorf("compound %q must reference two leaf properties", id)
		}
		return []SubProperty{
			{Name: string(p.Name), Kind: KindVec2, Leaves: []string{x.ID, y.ID}},
			{Name: string(x.Name), Kind: KindNumber, Leaves: []string{x.ID}},
			{Name: string(y.Name), Kind: KindNumber, Leaves: []string{y.ID}},
		}, nil
	case *PropertyGroup:
		leaves, ok := s.Leaves(id)
		if !ok {
			return nil, fmt.Errorf("group %q references a missing property", id)
		}
		out := make([]SubProperty, len(leaves))
		for i, leaf := range leaves {
			out[i] = SubProperty{Name: string(leaf.Name), Kind: leaf.ValueType, Leaves: []string{leaf.ID}}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("property %q has unsupported shape %T", id, node)
	}
}

// WalkLayerProperties visits every property node reachable from the layer's
// top-level properties, parents before children. Missing ids are skipped.
func (s *Snapshot) WalkLayerProperties(layerID string, fn func(PropertyNode)) {
	layer, ok := s.Layers[layerID]
	if !ok {
		return
	}
	for _, id := range layer.Properties {
		s.walkProperty(id, fn, 0)
	}
}

func (s *Snapshot) walkProperty(id string, fn func(PropertyNode), depth int) {
	if depth > maxPropertyDepth {
		return
	}
	node, ok := s.Properties[id]
	if !ok {
		return
	}
	fn(node)
	switch p := node.(type) {
	case *Property:
	case *CompoundProperty:
		for _, child := range p.Properties {
			s.walkProperty(child, fn, depth+1)
		}
	case *PropertyGroup:
		for _, child := range p.Properties {
			s.walkProperty(child, fn, depth+1)
		}
	}
}

// LayerLeaves returns every leaf property of a layer in walk order.
func (s *Snapshot) LayerLeaves(layerID string) []*Property {
	var out []*Property
	s.WalkLayerProperties(layerID, func(n PropertyNode) {
		if p, ok := n.(*Property); ok {
			out = append(out, p)
		}
	})
	return out
}

// ArrayModifierGroups returns the layer's array-modifier groups in walk order.
func (s *Snapshot) ArrayModifierGroups(layerID string) []*PropertyGroup {
	var out []*PropertyGroup
	s.WalkLayerProperties(layerID, func(n PropertyNode) {
		if g, ok := n.(*PropertyGroup); ok && g.Type == GroupArrayModifier {
			out = append(out, g)
		}
	})
	return out
}

// CountProperty returns the direct child of an array-modifier group that holds
// its instance count.
func (s *Snapshot) CountProperty(g *PropertyGroup) (*Property, bool) {
	for _, id := range g.Properties {
		if p, ok := s.Properties[id].(*Property); ok && p.Name == NameCount {
			return p, true
		}
	}
	return nil, false
}

// CompositionLayers returns the composition's layers in order, skipping ids
// that are not present.
func (s *Snapshot) CompositionLayers(compositionID string) []*Layer {
	comp, ok := s.Compositions[compositionID]
	if !ok {
		return nil
	}
	out := make([]*Layer, 0, len(comp.Layers))
	for _, id := range comp.Layers {
		if layer, ok := s.Layers[id]; ok {
			out = append(out, layer)
		}
	}
	return out
}

// CompositionGraphs returns the flow graphs of a composition: each layer's
// graph followed by its array-modifier graphs, in layer order. Nested
// compositions are not visited.
func (s *Snapshot) CompositionGraphs(compositionID string) []*FlowGraph {
	var out []*FlowGraph
	seen := make(map[string]bool)
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		if g, ok := s.Graphs[id]; ok {
			seen[id] = true
			out = append(out, g)
		}
	}
	for _, layer := range s.CompositionLayers(compositionID) {
		add(layer.GraphID)
		for _, group := range s.ArrayModifierGroups(layer.ID) {
			add(group.GraphID)
		}
	}
	return out
}

// LayerOfProperty returns the layer owning a property node.
func (s *Snapshot) LayerOfProperty(id string) (*Layer, bool) {
	node, ok := s.Properties[id]
	if !ok {
		return nil, false
	}
	layer, ok := s.Layers[node.OwnerLayerID()]
	return layer, ok
}
