package engine

import (
	"log/slog"
	"sort"

	"github.com/roach88/animflow/internal/compiler"
	"github.com/roach88/animflow/internal/model"
	"github.com/roach88/animflow/internal/nodes"
	"github.com/roach88/animflow/internal/timeline"
)

// Manager owns the live property values of one composition: raw values
// sampled from timelines or static values, computed values after the flow
// graphs ran, and per-instance array-modifier results.
//
// A Manager is not safe for concurrent use. Callers serialize notifications;
// each runs to completion before returning.
type Manager struct {
	compID  string
	snap    *model.Snapshot
	flow    *compiler.CompiledFlow
	pending *model.Snapshot // failed to compile; retried on the next notification

	logger        *slog.Logger
	sampler       timeline.Sampler
	eval          *nodes.Evaluator
	clock         *Clock
	maxArrayCount int
	opts          []Option

	frameIndex int
	pass       int64

	propertyValues map[string]model.Value         // raw, by leaf id
	computedValues map[string]model.Value         // post-graph, by leaf id
	arrayValues    map[string]map[int]model.Value // leaf id -> index -> value
	arrayCounts    map[string]int                 // group id -> evaluated count
	nodeOutputs    map[string][]model.Value

	arrayNodes   map[string][]string // group id -> scheduled nodes of its graph
	arrayTargets map[string][]string // group id -> leaves its graph writes

	children map[string]*Manager // composition layer id -> nested manager

	errors       []*CompositionError
	needsReset   bool
	disposed     bool
	lastComputed []string
}

// New creates a manager for compositionID and runs a full Reset. The initial
// frame is the composition's FrameIndex.
func New(compositionID string, snap *model.Snapshot, opts ...Option) *Manager {
	m := newManager(compositionID, opts)
	if comp, ok := snap.Compositions[compositionID]; ok {
		m.frameIndex = comp.FrameIndex
	}
	m.Reset(snap)
	return m
}

func newManager(compositionID string, opts []Option) *Manager {
	m := &Manager{
		compID:        compositionID,
		logger:        slog.Default(),
		sampler:       timeline.DefaultSampler{},
		eval:          nodes.NewEvaluator(),
		clock:         NewClock(),
		maxArrayCount: DefaultMaxArrayCount,
		opts:          opts,
		children:      make(map[string]*Manager),
	}
	m.clearValues()
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) clearValues() {
	m.propertyValues = make(map[string]model.Value)
	m.computedValues = make(map[string]model.Value)
	m.arrayValues = make(map[string]map[int]model.Value)
	m.arrayCounts = make(map[string]int)
	m.nodeOutputs = make(map[string][]model.Value)
	m.arrayNodes = make(map[string][]string)
	m.arrayTargets = make(map[string][]string)
}

// CompositionID returns the composition this manager owns.
func (m *Manager) CompositionID() string { return m.compID }

// FrameIndex returns the frame the current values were sampled at.
func (m *Manager) FrameIndex() int { return m.frameIndex }

// Reset recompiles the composition and recomputes everything. On a compile
// error the previous snapshot and values stay in place, the error is
// recorded and snap is kept for the next notification to retry.
func (m *Manager) Reset(snap *model.Snapshot) {
	if m.disposed {
		return
	}
	m.pass = m.clock.Next()
	m.errors = nil
	m.needsReset = false
	m.lastComputed = nil

	flow, err := compiler.Compile(m.compID, snap)
	if err == nil {
		err = checkNesting(m.compID, snap)
	}
	if err != nil {
		m.pending = snap
		m.fail(err)
		return
	}
	m.snap = snap
	m.pending = nil
	m.flow = flow
	m.clearValues()
	m.indexArrays()

	if err := m.seedAll(); err != nil {
		m.fail(err)
		return
	}
	changed := make(map[string]bool)
	if err := m.runMain(flow.ToCompute, changed); err != nil {
		return
	}
	for _, group := range m.arrayGroups() {
		if err := m.runArray(group); err != nil {
			return
		}
	}
	m.resetChildren()

	m.logger.Debug("composition reset",
		"composition", m.compID,
		"pass", m.pass,
		"frame", m.frameIndex,
		"nodes", len(flow.ToCompute),
	)
}

// OnPropertyIDsChanged re-samples the given properties and recomputes
// everything that depends on them.
func (m *Manager) OnPropertyIDsChanged(ids []string) {
	m.update(ids, nil, false)
}

// OnPropertyIDsChangedAt is OnPropertyIDsChanged after moving to frameIndex.
// Moving frames also re-samples every keyframed property.
func (m *Manager) OnPropertyIDsChangedAt(ids []string, frameIndex int) {
	if frameIndex == m.frameIndex {
		m.update(ids, nil, false)
		return
	}
	m.frameIndex = frameIndex
	m.update(append(append([]string(nil), ids...), m.keyframedLeaves()...), nil, true)
	m.moveChildren()
}

// OnFrameIndexChanged re-samples every keyframed property at frameIndex and
// recomputes what depends on them or on the frame itself. Nested
// compositions follow with their layer offset.
func (m *Manager) OnFrameIndexChanged(frameIndex int) {
	if m.disposed {
		return
	}
	m.frameIndex = frameIndex
	m.update(m.keyframedLeaves(), nil, true)
	m.moveChildren()
}

// OnNodeStateChange recomputes a node and everything downstream of it.
// Property nodes carry structure in their state, so for them this is a
// full Reset. Nodes of nested compositions are passed to the manager that
// owns them.
func (m *Manager) OnNodeStateChange(nodeID string) {
	if m.disposed {
		return
	}
	snap := m.latest()
	if m.needsReset || m.flow == nil {
		m.Reset(snap)
		return
	}
	if comp, ok := nodeComposition(snap, nodeID); ok && comp != m.compID {
		for _, layerID := range m.childrenContaining(comp) {
			m.children[layerID].OnNodeStateChange(nodeID)
		}
		return
	}
	node, ok := snap.Nodes[nodeID]
	if !ok || node.Type == model.NodePropertyInput || node.Type == model.NodePropertyOutput {
		m.Reset(snap)
		return
	}
	m.update(nil, []string{nodeID}, false)
}

// OnNodeExpressionChange drops the node's compiled expression and, since its
// ports may have changed, runs a full Reset.
func (m *Manager) OnNodeExpressionChange(nodeID string) {
	if m.disposed {
		return
	}
	m.eval.Invalidate(nodeID)
	m.Reset(m.latest())
}

// latest returns the snapshot the next Reset should compile: one that
// failed to compile last time, otherwise the current one.
func (m *Manager) latest() *model.Snapshot {
	if m.pending != nil {
		return m.pending
	}
	return m.snap
}

// UpdateStructure replaces the snapshot after a structural edit.
func (m *Manager) UpdateStructure(snap *model.Snapshot) {
	m.Reset(snap)
}

// AddLayer handles a layer added to the composition.
func (m *Manager) AddLayer(snap *model.Snapshot, layerID string) {
	m.logger.Debug("layer added", "composition", m.compID, "layer", layerID)
	m.Reset(snap)
}

// RemoveLayer handles a layer removed from the composition.
func (m *Manager) RemoveLayer(snap *model.Snapshot, layerID string) {
	m.logger.Debug("layer removed", "composition", m.compID, "layer", layerID)
	if child, ok := m.children[layerID]; ok {
		child.Dispose()
		delete(m.children, layerID)
	}
	m.Reset(snap)
}

// Dispose releases all state. Every later call is a no-op.
func (m *Manager) Dispose() {
	if m.disposed {
		return
	}
	for _, child := range m.children {
		child.Dispose()
	}
	m.disposed = true
	m.children = nil
	m.snap = nil
	m.pending = nil
	m.flow = nil
	m.errors = nil
	m.clearValues()
}

// Disposed reports whether Dispose was called.
func (m *Manager) Disposed() bool { return m.disposed }

// Errors returns the errors recorded since the last Reset, including those
// of nested compositions.
func (m *Manager) Errors() []CompositionError {
	out := make([]CompositionError, 0, len(m.errors))
	for _, e := range m.errors {
		out = append(out, *e)
	}
	for _, id := range m.childIDs() {
		out = append(out, m.children[id].Errors()...)
	}
	return out
}

// LastComputed returns the node ids evaluated by the most recent pass of
// this manager, in evaluation order.
func (m *Manager) LastComputed() []string {
	return append([]string(nil), m.lastComputed...)
}

// Flow returns the current compiled flow, or nil before a successful compile.
func (m *Manager) Flow() *compiler.CompiledFlow { return m.flow }

// Child returns the manager of a composition layer's nested composition.
func (m *Manager) Child(layerID string) (*Manager, bool) {
	c, ok := m.children[layerID]
	return c, ok
}

// PropertyValue returns the computed value of a property. Compound
// properties read as Vec2, groups as a map of leaf name to value.
// Properties of nested compositions are resolved through their managers.
func (m *Manager) PropertyValue(id string) (model.Value, bool) {
	if m.disposed {
		return nil, false
	}
	if v, ok := m.assemble(id, func(leaf string) (model.Value, bool) {
		v, ok := m.computedValues[leaf]
		return v, ok
	}); ok {
		return v, true
	}
	for _, layerID := range m.childIDs() {
		if v, ok := m.children[layerID].PropertyValue(id); ok {
			return v, true
		}
	}
	return nil, false
}

// RawValue returns the sampled value of a leaf before any graph ran.
func (m *Manager) RawValue(id string) (model.Value, bool) {
	v, ok := m.propertyValues[id]
	return v, ok
}

// ArrayModifierValue returns the value an array-modifier pass wrote to a
// property for one instance.
func (m *Manager) ArrayModifierValue(id string, index int) (model.Value, bool) {
	if m.disposed {
		return nil, false
	}
	if v, ok := m.assemble(id, func(leaf string) (model.Value, bool) {
		v, ok := m.arrayValues[leaf][index]
		return v, ok
	}); ok {
		return v, true
	}
	for _, layerID := range m.childIDs() {
		if v, ok := m.children[layerID].ArrayModifierValue(id, index); ok {
			return v, true
		}
	}
	return nil, false
}

// ArrayCount returns the instance count the last pass used for a group.
func (m *Manager) ArrayCount(groupID string) (int, bool) {
	n, ok := m.arrayCounts[groupID]
	return n, ok
}

// ArrayEntries returns the number of per-index values stored for a leaf.
func (m *Manager) ArrayEntries(leafID string) int {
	return len(m.arrayValues[leafID])
}

func (m *Manager) assemble(id string, leaf func(string) (model.Value, bool)) (model.Value, bool) {
	if m.snap == nil {
		return nil, false
	}
	switch p := m.snap.Properties[id].(type) {
	case *model.Property:
		return leaf(p.ID)
	case *model.CompoundProperty:
		x, okX := leaf(p.Properties[0])
		y, okY := leaf(p.Properties[1])
		if !okX || !okY {
			return nil, false
		}
		nx, errX := model.ToNumber(x)
		ny, errY := model.ToNumber(y)
		if errX != nil || errY != nil {
			return nil, false
		}
		return model.Vec2{X: float64(nx), Y: float64(ny)}, true
	case *model.PropertyGroup:
		leaves, ok := m.snap.Leaves(id)
		if !ok {
			return nil, false
		}
		out := make(map[string]any, len(leaves))
		for _, l := range leaves {
			v, ok := leaf(l.ID)
			if !ok {
				return nil, false
			}
			out[string(l.Name)] = model.Native(v)
		}
		return model.AnyValue{V: out}, true
	}
	return nil, false
}

func (m *Manager) childIDs() []string {
	ids := make([]string, 0, len(m.children))
	for id := range m.children {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// fail records err for the current pass. Fatal errors force the next
// notification to run a full Reset.
func (m *Manager) fail(err error) *CompositionError {
	ce := classify(m.compID, err)
	if ce.CompositionID == "" {
		ce.CompositionID = m.compID
	}
	ce.Pass = m.pass
	m.errors = append(m.errors, ce)
	if ce.Fatal() {
		m.needsReset = true
	}
	m.logger.Warn("composition error",
		"composition", m.compID,
		"pass", m.pass,
		"code", string(ce.Code),
		"node", ce.NodeID,
		"property", ce.PropertyID,
		"error", ce.Message,
	)
	return ce
}
