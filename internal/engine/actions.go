package engine

import (
	"github.com/roach88/animflow/internal/model"
)

// Performable is a coarse refresh a host applies to a layer.
type Performable string

const (
	PerformPosition  Performable = "position"
	PerformTransform Performable = "transform"
	PerformRedraw    Performable = "redraw"
)

var performOrder = []Performable{PerformPosition, PerformTransform, PerformRedraw}

// Subject names what changed: properties, nodes, or both.
type Subject struct {
	PropertyIDs []string
	NodeIDs     []string
}

// LayerActions is the refresh a layer needs after a change.
type LayerActions struct {
	LayerID      string
	Performables []Performable
}

// ActionsToPerform maps a change to per-layer refreshes. The changed items
// are followed through the compiled flow to every property they end up
// writing. Position collapses into transform when both apply, and a moved
// layer moves its descendants.
func (m *Manager) ActionsToPerform(s Subject) []LayerActions {
	if m.disposed || m.flow == nil {
		return nil
	}
	layers := m.snap.CompositionLayers(m.compID)
	wanted := make(map[string]map[Performable]bool, len(layers))
	mark := func(layerID string, p Performable) {
		if wanted[layerID] == nil {
			wanted[layerID] = make(map[Performable]bool)
		}
		wanted[layerID][p] = true
	}
	markProperty := func(id string) {
		layer, ok := m.snap.LayerOfProperty(id)
		if !ok || layer.CompositionID != m.compID {
			return
		}
		mark(layer.ID, m.classify(id))
	}

	seeds := make(map[string]bool)
	for _, id := range s.NodeIDs {
		seeds[id] = true
	}
	for _, id := range s.PropertyIDs {
		markProperty(id)
		for _, n := range m.flow.PropertyIDToAffectedInputNodes[id] {
			seeds[n] = true
		}
		if leaves, ok := m.snap.LeafIDs(id); ok {
			for _, leaf := range leaves {
				for _, n := range m.flow.PropertyIDToAffectedInputNodes[leaf] {
					seeds[n] = true
				}
			}
		}
	}
	for _, id := range m.reachable(seeds) {
		node := m.snap.Nodes[id]
		if node == nil || node.Type != model.NodePropertyOutput {
			continue
		}
		if group, ok := m.flow.ArrayGroupOf(id); ok {
			if layer, ok := m.snap.LayerOfProperty(group); ok {
				mark(layer.ID, PerformRedraw)
			}
			continue
		}
		markProperty(node.State.PropertyID)
	}

	m.cascade(layers, wanted)

	var out []LayerActions
	for _, layer := range layers {
		set := wanted[layer.ID]
		if len(set) == 0 {
			continue
		}
		if set[PerformPosition] && set[PerformTransform] {
			delete(set, PerformPosition)
		}
		la := LayerActions{LayerID: layer.ID}
		for _, p := range performOrder {
			if set[p] {
				la.Performables = append(la.Performables, p)
			}
		}
		out = append(out, la)
	}
	for _, layerID := range m.childIDs() {
		out = append(out, m.children[layerID].ActionsToPerform(s)...)
	}
	return out
}

// classify picks the refresh for a property by name. Groups and unknown
// names redraw.
func (m *Manager) classify(id string) Performable {
	node, ok := m.snap.Properties[id]
	if !ok {
		return PerformRedraw
	}
	var name model.PropertyName
	switch p := node.(type) {
	case *model.Property:
		name = p.Name
	case *model.CompoundProperty:
		name = p.Name
	case *model.PropertyGroup:
		return PerformRedraw
	}
	switch name {
	case model.NamePosition, model.NamePositionX, model.NamePositionY:
		return PerformPosition
	case model.NameAnchor, model.NameAnchorX, model.NameAnchorY,
		model.NameScale, model.NameScaleX, model.NameScaleY,
		model.NameRotation, model.NameTransform:
		return PerformTransform
	}
	return PerformRedraw
}

// cascade gives every descendant of a moved layer a transform refresh.
func (m *Manager) cascade(layers []*model.Layer, wanted map[string]map[Performable]bool) {
	moved := func(id string) bool {
		set := wanted[id]
		return set[PerformPosition] || set[PerformTransform]
	}
	for _, layer := range layers {
		seen := map[string]bool{layer.ID: true}
		for parent := layer.ParentLayerID; parent != "" && !seen[parent]; {
			seen[parent] = true
			if moved(parent) {
				if wanted[layer.ID] == nil {
					wanted[layer.ID] = make(map[Performable]bool)
				}
				wanted[layer.ID][PerformTransform] = true
				break
			}
			p, ok := m.snap.Layers[parent]
			if !ok {
				break
			}
			parent = p.ParentLayerID
		}
	}
}
