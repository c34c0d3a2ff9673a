package engine

import (
	"fmt"

	"github.com/roach88/animflow/internal/compiler"
	"github.com/roach88/animflow/internal/model"
)

// checkNesting rejects a composition that contains itself through
// composition layers, directly or transitively.
func checkNesting(root string, snap *model.Snapshot) error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)
	path := []string{}

	var visit func(comp string) error
	visit = func(comp string) error {
		state[comp] = visiting
		path = append(path, comp)
		for _, layer := range snap.CompositionLayers(comp) {
			if layer.Type != model.LayerComposition {
				continue
			}
			nested := layer.NestedCompositionID
			switch state[nested] {
			case visiting:
				return &compiler.CompileError{
					Code:          compiler.CodeCycle,
					CompositionID: root,
					Path:          append(append([]string(nil), path...), nested),
					Message:       fmt.Sprintf("composition %s contains itself through layer %s", nested, layer.ID),
				}
			case unvisited:
				if _, ok := snap.Compositions[nested]; !ok {
					continue
				}
				if err := visit(nested); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		state[comp] = done
		return nil
	}
	return visit(root)
}

// resetChildren rebuilds the managers of nested compositions. A child whose
// layer still points at the same composition is reset in place.
func (m *Manager) resetChildren() {
	old := m.children
	m.children = make(map[string]*Manager)
	for _, layer := range m.snap.CompositionLayers(m.compID) {
		if layer.Type != model.LayerComposition {
			continue
		}
		if _, ok := m.snap.Compositions[layer.NestedCompositionID]; !ok {
			m.fail(&CompositionError{
				Code:    CodeUnknownReference,
				Message: fmt.Sprintf("layer %s references unknown composition %q", layer.ID, layer.NestedCompositionID),
			})
			continue
		}
		frame := m.frameIndex - layer.Index
		child, ok := old[layer.ID]
		if ok && child.compID == layer.NestedCompositionID {
			delete(old, layer.ID)
			child.frameIndex = frame
			child.Reset(m.snap)
		} else {
			child = m.newChild(layer.NestedCompositionID, frame)
		}
		m.children[layer.ID] = child
	}
	for _, stale := range old {
		stale.Dispose()
	}
}

func (m *Manager) newChild(compositionID string, frame int) *Manager {
	opts := make([]Option, 0, len(m.opts)+3)
	opts = append(opts, m.opts...)
	opts = append(opts, WithClock(m.clock), WithEvaluator(m.eval), WithLogger(m.logger))
	child := newManager(compositionID, opts)
	child.frameIndex = frame
	child.Reset(m.snap)
	return child
}

// moveChildren forwards the current frame to nested compositions, offset by
// each composition layer's start index.
func (m *Manager) moveChildren() {
	for _, layerID := range m.childIDs() {
		layer, ok := m.snap.Layers[layerID]
		if !ok {
			continue
		}
		m.children[layerID].OnFrameIndexChanged(m.frameIndex - layer.Index)
	}
}

// contains reports whether compositionID is this manager's composition or
// one nested below it.
func (m *Manager) contains(compositionID string) bool {
	if m.compID == compositionID {
		return true
	}
	for _, child := range m.children {
		if child.contains(compositionID) {
			return true
		}
	}
	return false
}

// childrenContaining returns the layer ids of the children through which
// compositionID is reached, sorted. A composition nested by two layers is
// reached through both.
func (m *Manager) childrenContaining(compositionID string) []string {
	var out []string
	for _, layerID := range m.childIDs() {
		if m.children[layerID].contains(compositionID) {
			out = append(out, layerID)
		}
	}
	return out
}

// forwardProperties splits ids into those owned by this composition's
// layers and those owned further down, which are handed to the nested
// managers that own them. Ids no layer owns are kept so the caller reports
// them; ids of compositions not nested here are dropped.
func (m *Manager) forwardProperties(ids []string) []string {
	var own []string
	nested := make(map[string][]string)
	for _, id := range ids {
		layer, ok := m.snap.LayerOfProperty(id)
		if !ok || layer.CompositionID == m.compID {
			own = append(own, id)
			continue
		}
		for _, layerID := range m.childrenContaining(layer.CompositionID) {
			nested[layerID] = append(nested[layerID], id)
		}
	}
	for _, layerID := range m.childIDs() {
		if ids, ok := nested[layerID]; ok {
			m.children[layerID].OnPropertyIDsChanged(ids)
		}
	}
	return own
}

// nodeComposition returns the composition whose layer owns a node's graph,
// directly or through an array modifier.
func nodeComposition(snap *model.Snapshot, nodeID string) (string, bool) {
	node, ok := snap.Nodes[nodeID]
	if !ok {
		return "", false
	}
	graph, ok := snap.Graphs[node.GraphID]
	if !ok {
		return "", false
	}
	var layer *model.Layer
	if graph.OwnerKind == model.OwnerArrayModifier {
		layer, ok = snap.LayerOfProperty(graph.OwnerID)
	} else {
		layer, ok = snap.Layers[graph.OwnerID]
	}
	if !ok {
		return "", false
	}
	return layer.CompositionID, true
}
