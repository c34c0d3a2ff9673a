package engine

import (
	"math"
	"sort"

	"github.com/roach88/animflow/internal/model"
	"github.com/roach88/animflow/internal/nodes"
	"github.com/roach88/animflow/internal/timeline"
)

// update is the incremental path shared by every notification. ids are
// property ids whose raw values must be re-sampled; nodeSeeds are nodes to
// recompute regardless of their inputs. Properties of nested compositions
// are re-sampled by the manager that owns them.
func (m *Manager) update(ids []string, nodeSeeds []string, frameChanged bool) {
	if m.disposed {
		return
	}
	if m.needsReset || m.flow == nil {
		m.Reset(m.latest())
		return
	}
	ids = m.forwardProperties(ids)
	m.pass = m.clock.Next()
	m.lastComputed = nil

	changed := make(map[string]bool)
	seeds := make(map[string]bool)
	for _, id := range nodeSeeds {
		seeds[id] = true
	}
	for _, id := range ids {
		leaves, ok := m.snap.Leaves(id)
		if !ok {
			m.fail(&nodes.UnknownReferenceError{PropertyID: id})
			continue
		}
		for _, n := range m.flow.PropertyIDToAffectedInputNodes[id] {
			seeds[n] = true
		}
		for _, p := range leaves {
			if err := m.resample(p, changed); err != nil {
				m.fail(err)
				return
			}
			for _, n := range m.flow.PropertyIDToAffectedInputNodes[p.ID] {
				seeds[n] = true
			}
		}
	}
	if frameChanged {
		for _, n := range m.flow.FrameIndexNodes {
			seeds[n] = true
		}
	}

	order := m.reachable(seeds)
	if err := m.runMain(order, changed); err != nil {
		return
	}

	reached := make(map[string]bool, len(order))
	for _, id := range order {
		reached[id] = true
	}
	for _, group := range m.arrayGroups() {
		if !m.arrayDirty(group, changed, reached) {
			continue
		}
		if err := m.runArray(group); err != nil {
			return
		}
	}

	m.logger.Debug("composition updated",
		"composition", m.compID,
		"pass", m.pass,
		"frame", m.frameIndex,
		"properties", len(ids),
		"nodes", len(m.lastComputed),
	)
}

func (m *Manager) arrayDirty(group string, changed, reached map[string]bool) bool {
	if count, ok := m.flow.ArrayModifierGroupToCount[group]; ok && changed[count] {
		return true
	}
	for _, id := range m.arrayNodes[group] {
		if reached[id] {
			return true
		}
	}
	return false
}

// seedAll samples every leaf of the composition's layers. Before any graph
// runs, computed values equal raw values.
func (m *Manager) seedAll() error {
	for _, layer := range m.snap.CompositionLayers(m.compID) {
		for _, p := range m.snap.LayerLeaves(layer.ID) {
			v, err := m.sample(p)
			if err != nil {
				return err
			}
			m.propertyValues[p.ID] = v
			m.computedValues[p.ID] = v
		}
	}
	return nil
}

// resample refreshes one leaf's raw value. Leaves written by a layer graph
// keep their computed value until the writer runs again.
func (m *Manager) resample(p *model.Property, changed map[string]bool) error {
	v, err := m.sample(p)
	if err != nil {
		return err
	}
	m.propertyValues[p.ID] = v
	if len(m.flow.WrittenProperties[p.ID]) == 0 {
		m.computedValues[p.ID] = v
		changed[p.ID] = true
	}
	return nil
}

func (m *Manager) sample(p *model.Property) (model.Value, error) {
	var raw model.Value
	if tl, ok := m.snap.Timelines[p.TimelineID]; ok && p.TimelineID != "" {
		req := timeline.Request{Timeline: tl, FrameIndex: m.frameIndex}
		if layer, ok := m.snap.Layers[p.LayerID]; ok {
			req.LayerIndex = layer.Index
		}
		raw = model.Number(m.sampler.ValueAtIndex(req))
	} else if p.Value != nil {
		raw = p.Value
	} else {
		return model.Zero(p.ValueType), nil
	}
	v, err := model.Coerce(raw, p.ValueType)
	if err != nil {
		return nil, &CompositionError{
			Code:          CodeCoercion,
			CompositionID: m.compID,
			PropertyID:    p.ID,
			Message:       err.Error(),
			Err:           err,
		}
	}
	return v, nil
}

func (m *Manager) keyframedLeaves() []string {
	if m.snap == nil {
		return nil
	}
	var ids []string
	for _, layer := range m.snap.CompositionLayers(m.compID) {
		for _, p := range m.snap.LayerLeaves(layer.ID) {
			if p.TimelineID != "" {
				ids = append(ids, p.ID)
			}
		}
	}
	return ids
}

// reachable returns the scheduled nodes reachable from seeds, seeds
// included, in compute order.
func (m *Manager) reachable(seeds map[string]bool) []string {
	seen := make(map[string]bool, len(seeds))
	stack := make([]string, 0, len(seeds))
	for id := range seeds {
		if _, ok := m.flow.ComputeIndex[id]; ok && !seen[id] {
			seen[id] = true
			stack = append(stack, id)
		}
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range m.flow.NodeToNext[id] {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return m.flow.ComputeIndex[out[i]] < m.flow.ComputeIndex[out[j]]
	})
	return out
}

// runMain evaluates ids in order, skipping array-graph nodes, and writes
// property outputs into the computed values. A fatal error stops the pass
// where it is; values already written stay.
func (m *Manager) runMain(ids []string, changed map[string]bool) error {
	ctx := m.context(-1)
	for _, id := range ids {
		if m.flow.InArrayGraph(id) {
			continue
		}
		node, ok := m.snap.Nodes[id]
		if !ok {
			continue
		}
		m.lastComputed = append(m.lastComputed, id)
		outs, err := m.eval.Compute(node, m.resolveInputs(node, m.nodeOutputs), ctx)
		if err != nil {
			ce := m.failNode(id, err)
			if ce.Fatal() {
				return ce
			}
			delete(m.nodeOutputs, id)
			continue
		}
		m.nodeOutputs[id] = outs
		if node.Type == model.NodePropertyOutput {
			m.writeOutputs(id, outs, func(leaf string, v model.Value) {
				m.computedValues[leaf] = v
				changed[leaf] = true
			})
		}
	}
	return nil
}

// runArray evaluates one array-modifier graph once per instance. The
// previous per-index values of the group are discarded first, so after a
// clean pass each written leaf has exactly count entries.
func (m *Manager) runArray(group string) error {
	n, err := m.arrayCount(group)
	if err != nil {
		return m.fail(err)
	}
	m.arrayCounts[group] = n
	for _, leaf := range m.arrayTargets[group] {
		m.arrayValues[leaf] = make(map[int]model.Value, n)
	}

	ids := m.arrayNodes[group]
	for i := 0; i < n; i++ {
		ctx := m.context(i)
		local := make(map[string][]model.Value, len(ids))
		for _, id := range ids {
			node := m.snap.Nodes[id]
			if i == 0 {
				m.lastComputed = append(m.lastComputed, id)
			}
			outs, err := m.eval.Compute(node, m.resolveInputs(node, local), ctx)
			if err != nil {
				ce := m.failNode(id, err)
				if ce.Fatal() {
					return ce
				}
				continue
			}
			local[id] = outs
			if node.Type == model.NodePropertyOutput {
				index := i
				m.writeOutputs(id, outs, func(leaf string, v model.Value) {
					m.arrayValues[leaf][index] = v
				})
			}
		}
	}
	return nil
}

// arrayCount reads a group's count property, rounds it and clamps it to
// [0, maxArrayCount]. NaN counts as 0.
func (m *Manager) arrayCount(group string) (int, error) {
	countID, ok := m.flow.ArrayModifierGroupToCount[group]
	if !ok {
		return 0, nil
	}
	v, ok := m.computedValues[countID]
	if !ok {
		return 0, nil
	}
	num, err := model.ToNumber(v)
	if err != nil {
		return 0, &CompositionError{
			Code:          CodeCoercion,
			CompositionID: m.compID,
			PropertyID:    countID,
			Message:       err.Error(),
			Err:           err,
		}
	}
	f := math.Round(float64(num))
	switch {
	case math.IsNaN(f) || f < 0:
		return 0, nil
	case f > float64(m.maxArrayCount):
		return m.maxArrayCount, nil
	}
	return int(f), nil
}

// resolveInputs lines up a node's inputs: a pointer reads the upstream
// output from outputs, otherwise the literal is used. Anything missing is
// nil and evaluates as the port's zero value.
func (m *Manager) resolveInputs(node *model.FlowNode, outputs map[string][]model.Value) []model.Value {
	in := make([]model.Value, len(node.Inputs))
	for i, port := range node.Inputs {
		if port.Pointer == nil {
			in[i] = port.Value
			continue
		}
		outs, ok := outputs[port.Pointer.NodeID]
		if ok && port.Pointer.OutputIndex < len(outs) {
			in[i] = outs[port.Pointer.OutputIndex]
		}
	}
	return in
}

// writeOutputs routes a property_output node's results to leaves. A Vec2
// slot on a compound property writes both leaves.
func (m *Manager) writeOutputs(nodeID string, outs []model.Value, write func(leaf string, v model.Value)) {
	for i, slot := range m.flow.OutputTargets[nodeID] {
		if i >= len(outs) || outs[i] == nil || len(slot.Leaves) == 0 {
			continue
		}
		if slot.Kind == model.KindVec2 && len(slot.Leaves) == 2 {
			vec, ok := outs[i].(model.Vec2)
			if !ok {
				continue
			}
			write(slot.Leaves[0], model.Number(vec.X))
			write(slot.Leaves[1], model.Number(vec.Y))
			continue
		}
		write(slot.Leaves[0], outs[i])
	}
}

func (m *Manager) context(arrayIndex int) *nodes.Context {
	ctx := &nodes.Context{
		Snapshot:   m.snap,
		Reader:     valueReader{m},
		FrameIndex: m.frameIndex,
		ArrayIndex: arrayIndex,
	}
	if comp, ok := m.snap.Compositions[m.compID]; ok {
		ctx.Width = comp.Width
		ctx.Height = comp.Height
	}
	return ctx
}

func (m *Manager) failNode(nodeID string, err error) *CompositionError {
	ce := m.fail(err)
	if ce.NodeID == "" {
		ce.NodeID = nodeID
	}
	return ce
}

// indexArrays groups the scheduled array-graph nodes by their modifier group
// and collects the leaves each group's outputs write.
func (m *Manager) indexArrays() {
	for _, id := range m.flow.ToCompute {
		group, ok := m.flow.ArrayGroupOf(id)
		if !ok {
			continue
		}
		m.arrayNodes[group] = append(m.arrayNodes[group], id)

		node := m.snap.Nodes[id]
		if node == nil || node.Type != model.NodePropertyOutput {
			continue
		}
		for i, slot := range m.flow.OutputTargets[id] {
			if i >= len(node.Inputs) || node.Inputs[i].Pointer == nil {
				continue
			}
			for _, leaf := range slot.Leaves {
				m.arrayTargets[group] = appendUnique(m.arrayTargets[group], leaf)
			}
		}
	}
	for group := range m.arrayTargets {
		sort.Strings(m.arrayTargets[group])
	}
}

// arrayGroups lists every array-modifier group of the composition, sorted.
func (m *Manager) arrayGroups() []string {
	set := make(map[string]bool)
	for group := range m.flow.ArrayModifierGroupToCount {
		set[group] = true
	}
	for _, group := range m.flow.ArrayGraphs {
		set[group] = true
	}
	out := make([]string, 0, len(set))
	for group := range set {
		out = append(out, group)
	}
	sort.Strings(out)
	return out
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}

// valueReader serves property_input nodes. Nodes that read a property
// written by another graph see the computed value; all others see raw.
type valueReader struct {
	m *Manager
}

func (r valueReader) ReadProperty(node *model.FlowNode, leafID string) (model.Value, bool) {
	if r.m.flow.CrossGraphInputs[node.ID] {
		v, ok := r.m.computedValues[leafID]
		return v, ok
	}
	v, ok := r.m.propertyValues[leafID]
	return v, ok
}
