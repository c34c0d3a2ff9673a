// Package compiler turns the flow graphs of one composition into a single
// topologically ordered compute list with the indices the engine needs for
// incremental recomputation.
package compiler

import (
	"fmt"
	"sort"

	"github.com/roach88/animflow/internal/model"
)

// CompiledFlow is the result of compiling one composition. It is immutable
// once returned.
type CompiledFlow struct {
	CompositionID string

	// ToCompute lists node ids in DFS finish order; every node appears after
	// all nodes it reads.
	ToCompute    []string
	ComputeIndex map[string]int

	// NodeToNext maps a node to the nodes that read it, ordered by
	// ComputeIndex.
	NodeToNext map[string][]string

	// PropertyIDToAffectedInputNodes maps a property id (and each of its
	// leaves) to the property_input nodes reading it.
	PropertyIDToAffectedInputNodes map[string][]string

	// FrameIndexNodes are the scheduled nodes whose output depends on the
	// current frame.
	FrameIndexNodes []string

	// ArrayModifierGroupToCount maps an array-modifier group to its count
	// property.
	ArrayModifierGroupToCount map[string]string

	NodeGraph   map[string]string // node id -> graph id
	ArrayGraphs map[string]string // graph id -> array-modifier group id

	// WrittenProperties maps a leaf property to the property_output nodes of
	// layer graphs that write it.
	WrittenProperties map[string][]string

	// CrossGraphInputs marks property_input nodes that read a property
	// written by another layer graph. They read computed values; all other
	// property_input nodes read raw values.
	CrossGraphInputs map[string]bool

	// OutputTargets holds the resolved slots of each property_output node,
	// nil when the target property does not exist.
	OutputTargets map[string][]model.SubProperty
}

// InArrayGraph reports whether nodeID belongs to an array-modifier graph.
func (f *CompiledFlow) InArrayGraph(nodeID string) bool {
	_, ok := f.ArrayGraphs[f.NodeGraph[nodeID]]
	return ok
}

// ArrayGroupOf returns the array-modifier group owning nodeID's graph.
func (f *CompiledFlow) ArrayGroupOf(nodeID string) (string, bool) {
	g, ok := f.ArrayGraphs[f.NodeGraph[nodeID]]
	return g, ok
}

type arena struct {
	ids   []string
	index map[string]int
	nodes []*model.FlowNode
	deps  [][]int
}

func (a *arena) add(n *model.FlowNode) {
	a.index[n.ID] = len(a.ids)
	a.ids = append(a.ids, n.ID)
	a.nodes = append(a.nodes, n)
	a.deps = append(a.deps, nil)
}

type compilation struct {
	compID string
	snap   *model.Snapshot
	flow   *CompiledFlow
	a      *arena
}

// Compile compiles every layer graph and array-modifier graph of a
// composition. Nested compositions are not entered. Any error is a
// *CompileError.
func Compile(compositionID string, snap *model.Snapshot) (*CompiledFlow, error) {
	c := &compilation{
		compID: compositionID,
		snap:   snap,
		flow: &CompiledFlow{
			CompositionID:                  compositionID,
			ComputeIndex:                   make(map[string]int),
			NodeToNext:                     make(map[string][]string),
			PropertyIDToAffectedInputNodes: make(map[string][]string),
			ArrayModifierGroupToCount:      make(map[string]string),
			NodeGraph:                      make(map[string]string),
			ArrayGraphs:                    make(map[string]string),
			WrittenProperties:              make(map[string][]string),
			CrossGraphInputs:               make(map[string]bool),
			OutputTargets:                  make(map[string][]model.SubProperty),
		},
		a: &arena{index: make(map[string]int)},
	}
	if _, ok := snap.Compositions[compositionID]; !ok {
		return nil, c.errorf(CodeInvalidGraph, "", "composition not found")
	}
	if err := c.collect(); err != nil {
		return nil, err
	}
	if err := c.resolveOutputs(); err != nil {
		return nil, err
	}
	if err := c.linkDependencies(); err != nil {
		return nil, err
	}
	order, err := c.sort()
	if err != nil {
		return nil, err
	}
	c.index(order)
	return c.flow, nil
}

func (c *compilation) errorf(code Code, nodeID, format string, args ...any) *CompileError {
	return &CompileError{Code: code, CompositionID: c.compID, NodeID: nodeID, Message: fmt.Sprintf(format, args...)}
}

// collect loads the composition's graphs into the arena.
func (c *compilation) collect() error {
	for _, layer := range c.snap.CompositionLayers(c.compID) {
		for _, g := range c.snap.ArrayModifierGroups(layer.ID) {
			if count, ok := c.snap.CountProperty(g); ok {
				c.flow.ArrayModifierGroupToCount[g.ID] = count.ID
			}
			if g.GraphID != "" {
				c.flow.ArrayGraphs[g.GraphID] = g.ID
			}
		}
	}

	for _, graph := range c.snap.CompositionGraphs(c.compID) {
		for _, id := range graph.Nodes {
			node, ok := c.snap.Nodes[id]
			if !ok {
				return c.errorf(CodeInvalidGraph, id, "graph %s lists an unknown node", graph.ID)
			}
			if other, dup := c.flow.NodeGraph[id]; dup {
				return c.errorf(CodeInvalidGraph, id, "node is listed by graphs %s and %s", other, graph.ID)
			}
			c.flow.NodeGraph[id] = graph.ID
			c.a.add(node)
		}
	}
	return nil
}

// resolveOutputs records the slots of every property_output node and which
// leaves layer-graph outputs write.
func (c *compilation) resolveOutputs() error {
	for _, node := range c.a.nodes {
		if node.Type != model.NodePropertyOutput {
			continue
		}
		shape, err := c.snap.Shape(node.State.PropertyID)
		if err != nil {
			c.flow.OutputTargets[node.ID] = nil
			continue
		}
		if cp, ok := c.snap.Properties[node.State.PropertyID].(*model.CompoundProperty); ok {
			if err := c.checkCompoundWrite(node, cp, shape); err != nil {
				return err
			}
		}
		c.flow.OutputTargets[node.ID] = shape

		group, inArray := c.flow.ArrayGroupOf(node.ID)
		countID := c.flow.ArrayModifierGroupToCount[group]
		for i, slot := range shape {
			if i >= len(node.Inputs) || node.Inputs[i].Pointer == nil {
				continue
			}
			for _, leaf := range slot.Leaves {
				if inArray {
					if leaf == countID {
						return c.errorf(CodeInvalidGraph, node.ID, "array modifier %s writes its own count property %s", group, countID)
					}
					continue
				}
				c.flow.WrittenProperties[leaf] = appendUnique(c.flow.WrittenProperties[leaf], node.ID)
			}
		}
	}
	return nil
}

// checkCompoundWrite enforces how a property_output may write a compound.
// Unless separated, the pair is written as one vector. A separated
// compound takes either the vector or its components, not both.
func (c *compilation) checkCompoundWrite(node *model.FlowNode, cp *model.CompoundProperty, shape []model.SubProperty) error {
	wired := func(i int) bool {
		return i < len(node.Inputs) && node.Inputs[i].Pointer != nil
	}
	parts := wired(1) || wired(2)
	switch {
	case !cp.Separated && parts:
		return c.errorf(CodeInvalidGraph, node.ID, "compound %s is not separated; write it through %s", cp.ID, shape[0].Name)
	case cp.Separated && parts && wired(0):
		return c.errorf(CodeInvalidGraph, node.ID, "compound %s is written both as %s and by component", cp.ID, shape[0].Name)
	}
	return nil
}

// linkDependencies fills each node's deps: pointer targets, then the
// writers of any property a property_input reads from another layer graph.
func (c *compilation) linkDependencies() error {
	for i, node := range c.a.nodes {
		graphID := c.flow.NodeGraph[node.ID]
		seen := make(map[int]bool)
		for _, in := range node.Inputs {
			if in.Pointer == nil {
				continue
			}
			j, ok := c.a.index[in.Pointer.NodeID]
			if !ok {
				return c.errorf(CodeInvalidGraph, node.ID, "input %q points at unknown node %s", in.Name, in.Pointer.NodeID)
			}
			if c.flow.NodeGraph[in.Pointer.NodeID] != graphID {
				return c.errorf(CodeInvalidGraph, node.ID, "input %q points outside graph %s", in.Name, graphID)
			}
			target := c.a.nodes[j]
			if in.Pointer.OutputIndex < 0 || in.Pointer.OutputIndex >= len(target.Outputs) {
				return c.errorf(CodeInvalidGraph, node.ID, "input %q points at output %d of %s, which has %d outputs",
					in.Name, in.Pointer.OutputIndex, target.ID, len(target.Outputs))
			}
			if !seen[j] {
				seen[j] = true
				c.a.deps[i] = append(c.a.deps[i], j)
			}
		}

		if node.Type != model.NodePropertyInput {
			continue
		}
		leaves, _ := c.snap.LeafIDs(node.State.PropertyID)
		for _, leaf := range leaves {
			for _, writer := range c.flow.WrittenProperties[leaf] {
				if c.flow.NodeGraph[writer] == graphID {
					continue
				}
				c.flow.CrossGraphInputs[node.ID] = true
				j := c.a.index[writer]
				if !seen[j] {
					seen[j] = true
					c.a.deps[i] = append(c.a.deps[i], j)
				}
			}
		}
	}
	return nil
}

type frame struct {
	node int
	next int
}

// sort runs an iterative post-order DFS from every property_output node. A
// global visited set skips finished nodes; reaching a node still on the
// current trip is a cycle.
func (c *compilation) sort() ([]int, error) {
	n := len(c.a.ids)
	visited := make([]bool, n)
	onTrip := make([]bool, n)
	order := make([]int, 0, n)

	for root, node := range c.a.nodes {
		if node.Type != model.NodePropertyOutput || visited[root] {
			continue
		}
		stack := []frame{{node: root}}
		onTrip[root] = true
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(c.a.deps[top.node]) {
				d := c.a.deps[top.node][top.next]
				top.next++
				if onTrip[d] {
					return nil, c.cycleError(stack, d)
				}
				if visited[d] {
					continue
				}
				onTrip[d] = true
				stack = append(stack, frame{node: d})
				continue
			}
			stack = stack[:len(stack)-1]
			onTrip[top.node] = false
			visited[top.node] = true
			order = append(order, top.node)
		}
	}
	return order, nil
}

func (c *compilation) cycleError(stack []frame, d int) *CompileError {
	var path []string
	for i, f := range stack {
		if f.node == d {
			for _, g := range stack[i:] {
				path = append(path, c.a.ids[g.node])
			}
			break
		}
	}
	path = append(path, c.a.ids[d])
	err := c.errorf(CodeCycle, c.a.ids[d], "cycle in flow graph")
	err.Path = path
	return err
}

func (c *compilation) index(order []int) {
	f := c.flow
	f.ToCompute = make([]string, len(order))
	for rank, i := range order {
		id := c.a.ids[i]
		f.ToCompute[rank] = id
		f.ComputeIndex[id] = rank
	}

	for _, i := range order {
		node := c.a.nodes[i]
		for _, d := range c.a.deps[i] {
			dep := c.a.ids[d]
			f.NodeToNext[dep] = appendUnique(f.NodeToNext[dep], node.ID)
		}
		switch node.Type {
		case model.NodeComposition:
			f.FrameIndexNodes = append(f.FrameIndexNodes, node.ID)
		case model.NodePropertyInput:
			keys := []string{node.State.PropertyID}
			if leaves, ok := c.snap.LeafIDs(node.State.PropertyID); ok {
				keys = append(keys, leaves...)
			}
			for _, k := range keys {
				f.PropertyIDToAffectedInputNodes[k] = appendUnique(f.PropertyIDToAffectedInputNodes[k], node.ID)
			}
		}
	}

	byRank := func(ids []string) {
		sort.Slice(ids, func(a, b int) bool { return f.ComputeIndex[ids[a]] < f.ComputeIndex[ids[b]] })
	}
	for _, next := range f.NodeToNext {
		byRank(next)
	}
}

func appendUnique(list []string, id string) []string {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}
