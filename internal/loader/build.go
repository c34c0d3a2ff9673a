package loader

import (
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/animflow/internal/model"
	"github.com/roach88/animflow/internal/nodes"
)

// Build flattens a document into a snapshot. Every problem is collected;
// the returned error joins *LoadError values (see Errors). References to
// ids that do not exist are kept as written, since hosts tolerate stale
// references and compiler.Validate reports them.
func Build(doc *Document) (*model.Snapshot, error) {
	b := &builder{snap: model.NewSnapshot()}
	for i := range doc.Compositions {
		b.composition(&doc.Compositions[i])
	}
	// Property nodes derive their ports from property shapes, so graphs go
	// after every property exists.
	for _, g := range b.graphs {
		b.graph(g)
	}
	for _, c := range b.conns {
		b.connect(c)
	}
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	return b.snap, nil
}

type builder struct {
	snap   *model.Snapshot
	graphs []pendingGraph
	conns  []pendingConn
	errs   []error
}

type pendingGraph struct {
	doc     *GraphDoc
	id      string
	ownerID string
	kind    model.OwnerKind
	layerID string
}

type pendingConn struct {
	node  *model.FlowNode
	input int
	doc   InputDoc
	path  string
}

func (b *builder) fail(code, path, format string, args ...any) {
	b.errs = append(b.errs, &LoadError{Code: code, Path: path, Message: fmt.Sprintf(format, args...)})
}

func (b *builder) composition(doc *CompositionDoc) {
	path := "composition " + doc.ID
	if _, dup := b.snap.Compositions[doc.ID]; dup {
		b.fail(ErrCodeDuplicateID, path, "duplicate composition id")
		return
	}
	name := doc.Name
	if name == "" {
		name = doc.ID
	}
	comp := &model.Composition{
		ID:         doc.ID,
		Name:       name,
		Width:      doc.Width,
		Height:     doc.Height,
		Length:     doc.Length,
		FrameIndex: doc.Frame,
	}
	b.snap.Compositions[doc.ID] = comp
	for i := range doc.Layers {
		if b.layer(comp, &doc.Layers[i]) {
			comp.Layers = append(comp.Layers, doc.Layers[i].ID)
		}
	}
}

func (b *builder) layer(comp *model.Composition, doc *LayerDoc) bool {
	path := "layer " + doc.ID
	if _, dup := b.snap.Layers[doc.ID]; dup {
		b.fail(ErrCodeDuplicateID, path, "duplicate layer id")
		return false
	}
	typ, err := model.ParseLayerType(doc.Type)
	if err != nil {
		b.fail(ErrCodeUnknownEnum, path, "%v", err)
		return false
	}
	name := doc.Name
	if name == "" {
		name = doc.ID
	}
	layer := &model.Layer{
		ID:                  doc.ID,
		Name:                name,
		CompositionID:       comp.ID,
		ParentLayerID:       doc.Parent,
		Type:                typ,
		Index:               doc.Index,
		Length:              doc.Length,
		NestedCompositionID: doc.Composition,
	}
	b.snap.Layers[doc.ID] = layer
	for i := range doc.Properties {
		if b.property(layer.ID, &doc.Properties[i], path) {
			layer.Properties = append(layer.Properties, doc.Properties[i].ID)
		}
	}
	if doc.Graph != nil {
		layer.GraphID = graphID(doc.Graph, layer.ID)
		b.graphs = append(b.graphs, pendingGraph{
			doc:     doc.Graph,
			id:      layer.GraphID,
			ownerID: layer.ID,
			kind:    model.OwnerLayer,
			layerID: layer.ID,
		})
	}
	return true
}

func graphID(doc *GraphDoc, ownerID string) string {
	if doc.ID != "" {
		return doc.ID
	}
	return ownerID + ".graph"
}

// property adds a property node and its children. It reports whether the
// node was added.
func (b *builder) property(layerID string, doc *PropertyDoc, parent string) bool {
	path := parent + " / property " + doc.ID
	if _, dup := b.snap.Properties[doc.ID]; dup {
		b.fail(ErrCodeDuplicateID, path, "duplicate property id")
		return false
	}
	switch {
	case len(doc.Compound) > 0:
		return b.compound(layerID, doc, path)
	case doc.Group != "" || len(doc.Properties) > 0:
		return b.group(layerID, doc, path)
	default:
		return b.leaf(layerID, doc, path)
	}
}

func (b *builder) leaf(layerID string, doc *PropertyDoc, path string) bool {
	kind := model.KindNumber
	if doc.Type != "" {
		k, err := model.ParseKind(doc.Type)
		if err != nil {
			b.fail(ErrCodeUnknownEnum, path, "%v", err)
			return false
		}
		kind = k
	}
	value := model.Zero(kind)
	if doc.Value != nil {
		v, err := model.FromNative(doc.Value, kind)
		if err != nil {
			b.errs = append(b.errs, &LoadError{Code: ErrCodeBadValue, Path: path, Message: err.Error(), Err: err})
			return false
		}
		value = v
	}
	prop := &model.Property{
		ID:        doc.ID,
		LayerID:   layerID,
		Name:      model.PropertyName(doc.Name),
		ValueType: kind,
		Value:     value,
	}
	if len(doc.Keyframes) > 0 {
		if kind != model.KindNumber {
			b.fail(ErrCodeShape, path, "keyframes on a %s property; only number properties animate", kind)
			return false
		}
		tl, ok := b.timeline(doc, path)
		if !ok {
			return false
		}
		prop.TimelineID = tl.ID
	}
	b.snap.Properties[doc.ID] = prop
	return true
}

func (b *builder) timeline(doc *PropertyDoc, path string) (*model.Timeline, bool) {
	tl := &model.Timeline{ID: "tl." + doc.ID, PropertyID: doc.ID}
	if _, dup := b.snap.Timelines[tl.ID]; dup {
		b.fail(ErrCodeDuplicateID, path, "duplicate timeline id %s", tl.ID)
		return nil, false
	}
	for i, kd := range doc.Keyframes {
		interp, err := model.ParseInterpolation(kd.Interpolation)
		if err != nil {
			b.fail(ErrCodeUnknownEnum, path, "keyframe %d: %v", i, err)
			return nil, false
		}
		id := kd.ID
		if id == "" {
			id = fmt.Sprintf("%s.k%d", doc.ID, i)
		}
		tl.Keyframes = append(tl.Keyframes, model.Keyframe{
			ID:            id,
			Index:         kd.Index,
			Value:         kd.Value,
			Interpolation: interp,
		})
	}
	sort.SliceStable(tl.Keyframes, func(i, j int) bool {
		return tl.Keyframes[i].Index < tl.Keyframes[j].Index
	})
	b.snap.Timelines[tl.ID] = tl
	return tl, true
}

func (b *builder) compound(layerID string, doc *PropertyDoc, path string) bool {
	if len(doc.Compound) != 2 {
		b.fail(ErrCodeShape, path, "compound needs exactly two leaves, got %d", len(doc.Compound))
		return false
	}
	c := &model.CompoundProperty{
		ID:        doc.ID,
		LayerID:   layerID,
		Name:      model.PropertyName(doc.Name),
		Separated: doc.Separated,
	}
	for i := range doc.Compound {
		leaf := &doc.Compound[i]
		if leaf.Type == "" {
			leaf.Type = model.KindNumber.String()
		}
		if !b.property(layerID, leaf, path) {
			return false
		}
		c.Properties[i] = leaf.ID
	}
	b.snap.Properties[doc.ID] = c
	return true
}

func (b *builder) group(layerID string, doc *PropertyDoc, path string) bool {
	g := &model.PropertyGroup{
		ID:      doc.ID,
		LayerID: layerID,
		Name:    model.PropertyName(doc.Name),
	}
	switch doc.Group {
	case "", "group":
		g.Type = model.GroupPlain
	case "array_modifier":
		g.Type = model.GroupArrayModifier
	default:
		b.fail(ErrCodeUnknownEnum, path, "unknown group type %q", doc.Group)
		return false
	}
	// Register before children so a child reusing the group id is a
	// duplicate.
	b.snap.Properties[doc.ID] = g
	for i := range doc.Properties {
		if b.property(layerID, &doc.Properties[i], path) {
			g.Properties = append(g.Properties, doc.Properties[i].ID)
		}
	}
	if doc.Graph != nil {
		if g.Type != model.GroupArrayModifier {
			b.fail(ErrCodeShape, path, "only array_modifier groups own a graph")
			return true
		}
		g.GraphID = graphID(doc.Graph, g.ID)
		b.graphs = append(b.graphs, pendingGraph{
			doc:     doc.Graph,
			id:      g.GraphID,
			ownerID: g.ID,
			kind:    model.OwnerArrayModifier,
			layerID: layerID,
		})
	}
	return true
}

func (b *builder) graph(p pendingGraph) {
	path := "graph " + p.id
	if _, dup := b.snap.Graphs[p.id]; dup {
		b.fail(ErrCodeDuplicateID, path, "duplicate graph id")
		return
	}
	g := &model.FlowGraph{ID: p.id, OwnerID: p.ownerID, OwnerKind: p.kind}
	b.snap.Graphs[p.id] = g
	for i := range p.doc.Nodes {
		if n := b.node(g, &p.doc.Nodes[i], path); n != nil {
			g.Nodes = append(g.Nodes, n.ID)
		}
	}
}

func (b *builder) node(g *model.FlowGraph, doc *NodeDoc, parent string) *model.FlowNode {
	path := parent + " / node " + doc.ID
	if _, dup := b.snap.Nodes[doc.ID]; dup {
		b.fail(ErrCodeDuplicateID, path, "duplicate node id")
		return nil
	}
	typ, err := model.ParseNodeType(doc.Type)
	if err != nil {
		b.fail(ErrCodeUnknownEnum, path, "%v", err)
		return nil
	}
	n := &model.FlowNode{
		ID:      doc.ID,
		GraphID: g.ID,
		Type:    typ,
		State: model.NodeState{
			Expression: doc.Expression,
			PropertyID: doc.Property,
		},
	}
	if doc.Property != "" {
		if owner, ok := b.snap.Properties[doc.Property]; ok {
			n.State.LayerID = owner.OwnerLayerID()
		}
	}

	def, err := nodes.Ports(b.snap, typ, n.State)
	if err != nil {
		// Unresolvable ports (syntax error, missing property) are reported
		// by the engine at evaluation time. Keep the ports the document
		// names so connections survive.
		def = declaredPorts(doc)
	}
	n.Inputs = def.Inputs
	n.Outputs = def.Outputs

	if doc.Value != nil {
		if len(n.Outputs) == 0 {
			b.fail(ErrCodeShape, path, "%s node takes no value", typ)
			return nil
		}
		v, err := model.FromNative(doc.Value, n.Outputs[0].Type)
		if err != nil {
			b.errs = append(b.errs, &LoadError{Code: ErrCodeBadValue, Path: path, Message: err.Error(), Err: err})
			return nil
		}
		n.State.Value = v
	} else if isInputType(typ) {
		n.State.Value = model.Zero(n.Outputs[0].Type)
	}

	for _, name := range sortedInputNames(doc.Inputs) {
		in := doc.Inputs[name]
		i := n.InputIndex(name)
		if i < 0 {
			b.fail(ErrCodeUnknownInput, path, "%s node has no input %q", typ, name)
			continue
		}
		if in.Node != "" {
			b.conns = append(b.conns, pendingConn{node: n, input: i, doc: in, path: path + " / input " + name})
			continue
		}
		if in.Value == nil {
			continue
		}
		v, err := model.FromNative(in.Value, n.Inputs[i].Type)
		if err != nil {
			b.errs = append(b.errs, &LoadError{Code: ErrCodeBadValue, Path: path + " / input " + name, Message: err.Error(), Err: err})
			continue
		}
		n.Inputs[i].Value = v
	}

	b.snap.Nodes[n.ID] = n
	return n
}

func isInputType(t model.NodeType) bool {
	switch t {
	case model.NodeNumInput, model.NodeVec2Input, model.NodeColorInput, model.NodeRectInput:
		return true
	}
	return false
}

// declaredPorts builds Any-typed ports from the names a document uses.
func declaredPorts(doc *NodeDoc) nodes.Definition {
	var def nodes.Definition
	for _, name := range sortedInputNames(doc.Inputs) {
		def.Inputs = append(def.Inputs, model.NodeInput{Name: name, Type: model.KindAny})
	}
	for _, name := range doc.Outputs {
		def.Outputs = append(def.Outputs, model.NodeOutput{Name: name, Type: model.KindAny})
	}
	return def
}

func sortedInputNames(inputs map[string]InputDoc) []string {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// connect resolves a connection once every node exists. A connection to a
// node id that does not exist is kept (by index) for Validate to report; a
// named output needs the node to resolve.
func (b *builder) connect(c pendingConn) {
	index, named, ok := outputRef(c.doc.Output)
	if !ok {
		b.fail(ErrCodeBadOutput, c.path, "output must be an index or a name, got %v", c.doc.Output)
		return
	}
	if named != "" {
		target, exists := b.snap.Nodes[c.doc.Node]
		if !exists {
			b.fail(ErrCodeBadOutput, c.path, "cannot resolve output %q of unknown node %s", named, c.doc.Node)
			return
		}
		index = -1
		for i, out := range target.Outputs {
			if out.Name == named {
				index = i
				break
			}
		}
		if index < 0 {
			b.fail(ErrCodeBadOutput, c.path, "node %s has no output %q", c.doc.Node, named)
			return
		}
	} else if target, exists := b.snap.Nodes[c.doc.Node]; exists && index >= len(target.Outputs) {
		b.fail(ErrCodeBadOutput, c.path, "node %s has %d outputs, index %d out of range", c.doc.Node, len(target.Outputs), index)
		return
	}
	c.node.Inputs[c.input].Pointer = &model.OutputPointer{NodeID: c.doc.Node, OutputIndex: index}
}

// outputRef reads an output reference decoded from YAML, JSON or CUE.
func outputRef(raw any) (index int, name string, ok bool) {
	switch v := raw.(type) {
	case nil:
		return 0, "", true
	case string:
		return 0, v, v != ""
	case int:
		return v, "", v >= 0
	case int64:
		return int(v), "", v >= 0
	case float64:
		if v < 0 || v != float64(int(v)) {
			return 0, "", false
		}
		return int(v), "", true
	}
	return 0, "", false
}
