package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/roach88/animflow/internal/engine"
	"github.com/roach88/animflow/internal/loader"
	"github.com/roach88/animflow/internal/model"
	"github.com/roach88/animflow/internal/nodes"
	"github.com/roach88/animflow/internal/store"
)

// Harness plays the host: it edits the snapshot the way an editor would and
// sends the matching notification to the manager.
type Harness struct {
	snap    *model.Snapshot
	manager *engine.Manager
	logger  *slog.Logger
}

// Run loads the scenario's snapshot and executes it.
func Run(scenario *Scenario) (*Result, error) {
	snap, err := loader.Load(scenario.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return RunSnapshot(scenario, snap)
}

// RunSnapshot executes a scenario against an already loaded snapshot. The
// snapshot is mutated by the steps.
//
// Execution flow:
// 1. Create a manager (initial reset, recorded as step 0)
// 2. Apply each step and check its expect clause
// 3. Optionally bake into a fresh in-memory store
// 4. Evaluate assertions and collect final values
func RunSnapshot(scenario *Scenario, snap *model.Snapshot) (*Result, error) {
	if _, ok := snap.Compositions[scenario.Composition]; !ok {
		return nil, fmt.Errorf("composition %q not found in snapshot", scenario.Composition)
	}

	// Suppress logs in tests
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &Harness{
		snap:    snap,
		manager: engine.New(scenario.Composition, snap, engine.WithLogger(logger)),
		logger:  logger,
	}
	defer h.manager.Dispose()

	result := NewResult()
	result.AddTrace(h.trace(0, "reset", engine.Subject{}))

	for i, step := range scenario.Steps {
		subject, err := h.apply(step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		}
		event := h.trace(i+1, step.Action, subject)
		result.AddTrace(event)
		if step.Expect != nil {
			for _, msg := range checkExpect(h.manager, event, step.Expect) {
				result.AddError(fmt.Sprintf("step %d (%s): %s", i+1, step.Action, msg))
			}
		}
	}

	ctx := context.Background()
	actx := &AssertionContext{Manager: h.manager, Ctx: ctx}
	if scenario.Bake != nil {
		st, err := store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()

		last := -1
		if scenario.Bake.Last != nil {
			last = *scenario.Bake.Last
		}
		run, err := st.Bake(ctx, snap, scenario.Composition, store.BakeOptions{
			FirstFrame: scenario.Bake.First,
			LastFrame:  last,
			IDs:        store.NewFixedGenerator("scenario-" + scenario.Name),
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to bake: %w", err)
		}
		actx.Store = st
		actx.RunID = run.ID
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	for _, layer := range snap.CompositionLayers(scenario.Composition) {
		for _, p := range snap.LayerLeaves(layer.ID) {
			if v, ok := h.manager.PropertyValue(p.ID); ok {
				result.Values[p.ID] = model.Native(v)
			}
		}
	}
	return result, nil
}

// apply performs one step and returns what changed, for ActionsToPerform.
func (h *Harness) apply(step Step) (engine.Subject, error) {
	m := h.manager
	switch step.Action {
	case StepSetFrame:
		m.OnFrameIndexChanged(*step.Frame)
		return engine.Subject{PropertyIDs: h.keyframed(), NodeIDs: m.LastComputed()}, nil

	case StepSetProperty:
		ids, err := h.setProperty(step.Property, step.Value)
		if err != nil {
			return engine.Subject{}, err
		}
		m.OnPropertyIDsChanged(ids)
		return engine.Subject{PropertyIDs: ids}, nil

	case StepSetNodeState:
		node, ok := h.snap.Nodes[step.Node]
		if !ok {
			return engine.Subject{}, fmt.Errorf("unknown node %s", step.Node)
		}
		if step.Property != "" {
			node.State.PropertyID = step.Property
			if owner, ok := h.snap.Properties[step.Property]; ok {
				node.State.LayerID = owner.OwnerLayerID()
			}
			h.rederivePorts(node)
		}
		if step.Value != nil {
			if len(node.Outputs) == 0 {
				return engine.Subject{}, fmt.Errorf("node %s has no value output", node.ID)
			}
			v, err := model.FromNative(step.Value, node.Outputs[0].Type)
			if err != nil {
				return engine.Subject{}, err
			}
			node.State.Value = v
		}
		m.OnNodeStateChange(node.ID)
		return engine.Subject{NodeIDs: []string{node.ID}}, nil

	case StepSetExpression:
		node, ok := h.snap.Nodes[step.Node]
		if !ok {
			return engine.Subject{}, fmt.Errorf("unknown node %s", step.Node)
		}
		node.State.Expression = step.Expression
		h.rederivePorts(node)
		m.OnNodeExpressionChange(node.ID)
		return engine.Subject{NodeIDs: []string{node.ID}}, nil

	case StepRemoveLayer:
		layer, ok := h.snap.Layers[step.Layer]
		if !ok {
			return engine.Subject{}, fmt.Errorf("unknown layer %s", step.Layer)
		}
		if comp, ok := h.snap.Compositions[layer.CompositionID]; ok {
			kept := comp.Layers[:0]
			for _, id := range comp.Layers {
				if id != layer.ID {
					kept = append(kept, id)
				}
			}
			comp.Layers = kept
		}
		delete(h.snap.Layers, layer.ID)
		m.RemoveLayer(h.snap, layer.ID)
		return engine.Subject{}, nil
	}
	return engine.Subject{}, fmt.Errorf("unknown action %q", step.Action)
}

// setProperty writes a raw value. A compound takes a vec2 and writes both
// leaves. It returns the leaf ids that changed.
func (h *Harness) setProperty(id string, raw any) ([]string, error) {
	switch p := h.snap.Properties[id].(type) {
	case *model.Property:
		v, err := model.FromNative(raw, p.ValueType)
		if err != nil {
			return nil, err
		}
		p.Value = v
		return []string{p.ID}, nil
	case *model.CompoundProperty:
		v, err := model.FromNative(raw, model.KindVec2)
		if err != nil {
			return nil, err
		}
		vec := v.(model.Vec2)
		for i, comp := range []float64{vec.X, vec.Y} {
			leaf, ok := h.snap.Properties[p.Properties[i]].(*model.Property)
			if !ok {
				return nil, fmt.Errorf("compound %s has a missing leaf", id)
			}
			leaf.Value = model.Number(comp)
		}
		return p.Properties[:], nil
	case nil:
		// Unknown ids are passed through; the manager records them.
		return []string{id}, nil
	default:
		return nil, fmt.Errorf("property %s is a group; set its leaves", id)
	}
}

// rederivePorts refreshes a node's ports after a state edit, keeping
// connections and literals of ports whose names survive.
func (h *Harness) rederivePorts(node *model.FlowNode) {
	def, err := nodes.Ports(h.snap, node.Type, node.State)
	if err != nil {
		// Leave the old ports; the manager reports the problem.
		return
	}
	for i := range def.Inputs {
		if j := node.InputIndex(def.Inputs[i].Name); j >= 0 {
			def.Inputs[i].Pointer = node.Inputs[j].Pointer
			if node.Inputs[j].Value != nil {
				def.Inputs[i].Value = node.Inputs[j].Value
			}
		}
	}
	node.Inputs = def.Inputs
	node.Outputs = def.Outputs
}

func (h *Harness) keyframed() []string {
	var ids []string
	for _, layer := range h.snap.CompositionLayers(h.manager.CompositionID()) {
		for _, p := range h.snap.LayerLeaves(layer.ID) {
			if p.TimelineID != "" {
				ids = append(ids, p.ID)
			}
		}
	}
	return ids
}

func (h *Harness) trace(step int, action string, subject engine.Subject) TraceEvent {
	m := h.manager
	event := TraceEvent{
		Step:     step,
		Action:   action,
		Frame:    m.FrameIndex(),
		Computed: m.LastComputed(),
	}
	if len(subject.PropertyIDs)+len(subject.NodeIDs) > 0 {
		for _, la := range m.ActionsToPerform(subject) {
			lt := LayerTrace{Layer: la.LayerID}
			for _, p := range la.Performables {
				lt.Perform = append(lt.Perform, string(p))
			}
			event.Layers = append(event.Layers, lt)
		}
	}
	for _, e := range m.Errors() {
		event.Errors = append(event.Errors, ErrorTrace{Code: string(e.Code), Node: e.NodeID, Property: e.PropertyID})
	}
	sort.SliceStable(event.Errors, func(i, j int) bool {
		a, b := event.Errors[i], event.Errors[j]
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		return a.Property < b.Property
	})
	return event
}
