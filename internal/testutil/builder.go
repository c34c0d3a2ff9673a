package testutil

import (
	"github.com/roach88/animflow/internal/model"
	"github.com/roach88/animflow/internal/nodes"
)

// Builder assembles snapshots for tests. Methods panic on misuse (unknown
// ids) since a broken fixture is a bug in the test itself.
type Builder struct {
	s *model.Snapshot
}

// NewBuilder returns a builder over an empty snapshot.
func NewBuilder() *Builder {
	return &Builder{s: model.NewSnapshot()}
}

// Snapshot returns the snapshot built so far. Later builder calls keep
// mutating it.
func (b *Builder) Snapshot() *model.Snapshot { return b.s }

// Composition adds a composition.
func (b *Builder) Composition(id string, width, height float64, length int) *Builder {
	b.s.Compositions[id] = &model.Composition{ID: id, Name: id, Width: width, Height: height, Length: length}
	return b
}

// Layer adds a shape layer at the end of the composition's layer list.
func (b *Builder) Layer(compID, layerID string) *Builder {
	return b.addLayer(&model.Layer{ID: layerID, Name: layerID, CompositionID: compID, Type: model.LayerShape})
}

// ChildLayer adds a shape layer parented to parentID.
func (b *Builder) ChildLayer(compID, layerID, parentID string) *Builder {
	return b.addLayer(&model.Layer{ID: layerID, Name: layerID, CompositionID: compID, ParentLayerID: parentID, Type: model.LayerShape})
}

// CompositionLayer adds a layer showing nestedID starting at frame index.
func (b *Builder) CompositionLayer(compID, layerID, nestedID string, index int) *Builder {
	return b.addLayer(&model.Layer{
		ID:                  layerID,
		Name:                layerID,
		CompositionID:       compID,
		Type:                model.LayerComposition,
		Index:               index,
		NestedCompositionID: nestedID,
	})
}

func (b *Builder) addLayer(l *model.Layer) *Builder {
	comp := b.comp(l.CompositionID)
	comp.Layers = append(comp.Layers, l.ID)
	b.s.Layers[l.ID] = l
	return b
}

// NumberProperty adds a top-level number property to a layer.
func (b *Builder) NumberProperty(layerID, propID string, name model.PropertyName, v float64) *Builder {
	b.Leaf(layerID, propID, name, model.KindNumber, model.Number(v))
	b.attach(layerID, propID)
	return b
}

// Property adds a top-level leaf property of any kind.
func (b *Builder) Property(layerID, propID string, name model.PropertyName, kind model.Kind, v model.Value) *Builder {
	b.Leaf(layerID, propID, name, kind, v)
	b.attach(layerID, propID)
	return b
}

// Leaf adds a leaf property without attaching it to the layer's top level.
func (b *Builder) Leaf(layerID, propID string, name model.PropertyName, kind model.Kind, v model.Value) *Builder {
	b.s.Properties[propID] = &model.Property{ID: propID, LayerID: layerID, Name: name, ValueType: kind, Value: v}
	return b
}

// Compound adds a top-level compound property with two number leaves named
// name+"X" and name+"Y" and ids id+".x" and id+".y".
func (b *Builder) Compound(layerID, id string, name model.PropertyName, x, y float64, separated bool) *Builder {
	xID, yID := id+".x", id+".y"
	b.Leaf(layerID, xID, name+"X", model.KindNumber, model.Number(x))
	b.Leaf(layerID, yID, name+"Y", model.KindNumber, model.Number(y))
	b.s.Properties[id] = &model.CompoundProperty{ID: id, LayerID: layerID, Name: name, Properties: [2]string{xID, yID}, Separated: separated}
	b.attach(layerID, id)
	return b
}

// Group adds a top-level plain group over existing properties.
func (b *Builder) Group(layerID, id string, name model.PropertyName, children ...string) *Builder {
	b.s.Properties[id] = &model.PropertyGroup{ID: id, LayerID: layerID, Name: name, Type: model.GroupPlain, Properties: children}
	b.attach(layerID, id)
	return b
}

// ArrayModifier adds an array-modifier group with a count leaf (id+".count")
// and an empty graph (id+".graph"). Extra children are appended after count.
func (b *Builder) ArrayModifier(layerID, id string, count float64, children ...string) *Builder {
	countID := id + ".count"
	graphID := id + ".graph"
	b.Leaf(layerID, countID, model.NameCount, model.KindNumber, model.Number(count))
	b.s.Properties[id] = &model.PropertyGroup{
		ID:         id,
		LayerID:    layerID,
		Name:       "ArrayModifier",
		Type:       model.GroupArrayModifier,
		Properties: append([]string{countID}, children...),
		GraphID:    graphID,
	}
	b.s.Graphs[graphID] = &model.FlowGraph{ID: graphID, OwnerID: id, OwnerKind: model.OwnerArrayModifier}
	b.attach(layerID, id)
	return b
}

// Keyframes animates propID with a timeline "tl."+propID.
func (b *Builder) Keyframes(propID string, kfs ...model.Keyframe) *Builder {
	p, ok := b.s.Properties[propID].(*model.Property)
	if !ok {
		panic("testutil: keyframes on unknown leaf " + propID)
	}
	tlID := "tl." + propID
	p.TimelineID = tlID
	b.s.Timelines[tlID] = &model.Timeline{ID: tlID, PropertyID: propID, Keyframes: kfs}
	return b
}

// LayerGraph attaches an empty graph to a layer.
func (b *Builder) LayerGraph(layerID, graphID string) *Builder {
	layer, ok := b.s.Layers[layerID]
	if !ok {
		panic("testutil: unknown layer " + layerID)
	}
	layer.GraphID = graphID
	b.s.Graphs[graphID] = &model.FlowGraph{ID: graphID, OwnerID: layerID, OwnerKind: model.OwnerLayer}
	return b
}

// AddNode appends n to a graph.
func (b *Builder) AddNode(graphID string, n *model.FlowNode) *Builder {
	g, ok := b.s.Graphs[graphID]
	if !ok {
		panic("testutil: unknown graph " + graphID)
	}
	n.GraphID = graphID
	g.Nodes = append(g.Nodes, n.ID)
	b.s.Nodes[n.ID] = n
	return b
}

// Node returns a node of type t with its default ports. Inputs given by
// name replace the default literal.
func Node(id string, t model.NodeType, inputs ...model.NodeInput) *model.FlowNode {
	def := nodes.DefinitionOf(t)
	n := &model.FlowNode{ID: id, Type: t, Inputs: def.Inputs, Outputs: def.Outputs}
	for _, in := range inputs {
		if i := n.InputIndex(in.Name); i >= 0 {
			if in.Type == model.KindAny {
				in.Type = n.Inputs[i].Type
			}
			n.Inputs[i] = in
		}
	}
	return n
}

// NumInput returns a num_input node holding v.
func NumInput(id string, v float64) *model.FlowNode {
	n := Node(id, model.NodeNumInput)
	n.State.Value = model.Number(v)
	return n
}

// Expr returns an expr node with the given input ports and Any-typed outputs.
func Expr(id, source string, inputs []model.NodeInput, outputs ...string) *model.FlowNode {
	n := &model.FlowNode{ID: id, Type: model.NodeExpr, Inputs: inputs, State: model.NodeState{Expression: source}}
	for _, o := range outputs {
		n.Outputs = append(n.Outputs, model.NodeOutput{Name: o, Type: model.KindAny})
	}
	return n
}

// PropertyInput returns a property_input node for propID, with outputs
// derived from the property's shape in the builder's snapshot.
func (b *Builder) PropertyInput(id, propID string) *model.FlowNode {
	def, err := nodes.Ports(b.s, model.NodePropertyInput, model.NodeState{PropertyID: propID})
	if err != nil {
		panic(err)
	}
	n := &model.FlowNode{ID: id, Type: model.NodePropertyInput, Outputs: def.Outputs}
	n.State.PropertyID = propID
	n.State.LayerID = b.s.Properties[propID].OwnerLayerID()
	return n
}

// PropertyOutput returns a property_output node for propID. Connections are
// given per slot name; other slots stay unconnected.
func (b *Builder) PropertyOutput(id, propID string, conns map[string]model.OutputPointer) *model.FlowNode {
	def, err := nodes.Ports(b.s, model.NodePropertyOutput, model.NodeState{PropertyID: propID})
	if err != nil {
		panic(err)
	}
	n := &model.FlowNode{ID: id, Type: model.NodePropertyOutput, Inputs: def.Inputs, Outputs: def.Outputs}
	for i := range n.Inputs {
		if p, ok := conns[n.Inputs[i].Name]; ok {
			p := p
			n.Inputs[i].Pointer = &p
		}
	}
	n.State.PropertyID = propID
	n.State.LayerID = b.s.Properties[propID].OwnerLayerID()
	return n
}

// Ptr returns an input of the given name and kind wired to nodeID's output.
func Ptr(name string, kind model.Kind, nodeID string, output int) model.NodeInput {
	return model.NodeInput{Name: name, Type: kind, Pointer: &model.OutputPointer{NodeID: nodeID, OutputIndex: output}}
}

// Lit returns a literal input.
func Lit(name string, v model.Value) model.NodeInput {
	return model.NodeInput{Name: name, Type: v.Kind(), Value: v}
}

// Out returns an output pointer.
func Out(nodeID string, output int) model.OutputPointer {
	return model.OutputPointer{NodeID: nodeID, OutputIndex: output}
}

func (b *Builder) comp(id string) *model.Composition {
	c, ok := b.s.Compositions[id]
	if !ok {
		panic("testutil: unknown composition " + id)
	}
	return c
}

func (b *Builder) attach(layerID, propID string) {
	layer, ok := b.s.Layers[layerID]
	if !ok {
		panic("testutil: unknown layer " + layerID)
	}
	layer.Properties = append(layer.Properties, propID)
}
