package loader

import (
	"bytes"
	"encoding/json"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/animflow/internal/model"
)

// Export converts a snapshot back into a document. Compositions are sorted
// by id; everything below follows the snapshot's own ordering. Properties,
// graphs and nodes not reachable from a composition are dropped.
func Export(snap *model.Snapshot) *Document {
	ids := make([]string, 0, len(snap.Compositions))
	for id := range snap.Compositions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	doc := &Document{}
	for _, id := range ids {
		c := snap.Compositions[id]
		cd := CompositionDoc{
			ID:     c.ID,
			Name:   c.Name,
			Width:  c.Width,
			Height: c.Height,
			Length: c.Length,
			Frame:  c.FrameIndex,
		}
		for _, layer := range snap.CompositionLayers(id) {
			cd.Layers = append(cd.Layers, exportLayer(snap, layer))
		}
		doc.Compositions = append(doc.Compositions, cd)
	}
	return doc
}

func exportLayer(snap *model.Snapshot, l *model.Layer) LayerDoc {
	ld := LayerDoc{
		ID:          l.ID,
		Name:        l.Name,
		Type:        l.Type.String(),
		Parent:      l.ParentLayerID,
		Index:       l.Index,
		Length:      l.Length,
		Composition: l.NestedCompositionID,
	}
	for _, id := range l.Properties {
		if pd, ok := exportProperty(snap, id); ok {
			ld.Properties = append(ld.Properties, pd)
		}
	}
	if g, ok := snap.Graphs[l.GraphID]; ok {
		ld.Graph = exportGraph(snap, g)
	}
	return ld
}

func exportProperty(snap *model.Snapshot, id string) (PropertyDoc, bool) {
	switch p := snap.Properties[id].(type) {
	case *model.Property:
		pd := PropertyDoc{ID: p.ID, Name: string(p.Name), Type: p.ValueType.String(), Value: model.Native(p.Value)}
		if tl, ok := snap.Timelines[p.TimelineID]; ok {
			for _, k := range tl.Keyframes {
				pd.Keyframes = append(pd.Keyframes, KeyframeDoc{
					ID:            k.ID,
					Index:         k.Index,
					Value:         k.Value,
					Interpolation: k.Interpolation.String(),
				})
			}
		}
		return pd, true
	case *model.CompoundProperty:
		pd := PropertyDoc{ID: p.ID, Name: string(p.Name), Separated: p.Separated}
		for _, leaf := range p.Properties {
			if ld, ok := exportProperty(snap, leaf); ok {
				pd.Compound = append(pd.Compound, ld)
			}
		}
		return pd, true
	case *model.PropertyGroup:
		pd := PropertyDoc{ID: p.ID, Name: string(p.Name), Group: p.Type.String()}
		for _, child := range p.Properties {
			if cd, ok := exportProperty(snap, child); ok {
				pd.Properties = append(pd.Properties, cd)
			}
		}
		if g, ok := snap.Graphs[p.GraphID]; ok {
			pd.Graph = exportGraph(snap, g)
		}
		return pd, true
	}
	return PropertyDoc{}, false
}

func exportGraph(snap *model.Snapshot, g *model.FlowGraph) *GraphDoc {
	gd := &GraphDoc{ID: g.ID}
	for _, id := range g.Nodes {
		n, ok := snap.Nodes[id]
		if !ok {
			continue
		}
		nd := NodeDoc{
			ID:         n.ID,
			Type:       n.Type.String(),
			Value:      model.Native(n.State.Value),
			Expression: n.State.Expression,
			Property:   n.State.PropertyID,
		}
		for _, in := range n.Inputs {
			switch {
			case in.Pointer != nil:
				nd.addInput(in.Name, InputDoc{Node: in.Pointer.NodeID, Output: in.Pointer.OutputIndex})
			case in.Value != nil && !isZeroDefault(in):
				nd.addInput(in.Name, InputDoc{Value: model.Native(in.Value)})
			}
		}
		if n.Type == model.NodeExpr {
			for _, out := range n.Outputs {
				nd.Outputs = append(nd.Outputs, out.Name)
			}
		}
		gd.Nodes = append(gd.Nodes, nd)
	}
	return gd
}

func (nd *NodeDoc) addInput(name string, in InputDoc) {
	if nd.Inputs == nil {
		nd.Inputs = make(map[string]InputDoc)
	}
	nd.Inputs[name] = in
}

// isZeroDefault reports whether an input still holds the zero literal its
// port starts with.
func isZeroDefault(in model.NodeInput) bool {
	return model.Equal(in.Value, model.Zero(in.Type))
}

// MarshalYAML renders a document as YAML.
func MarshalYAML(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalJSON renders a document as indented JSON.
func MarshalJSON(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
