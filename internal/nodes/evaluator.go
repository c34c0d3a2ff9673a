// Package nodes computes the outputs of a single flow node from its resolved
// inputs. Compute is deterministic: identical inputs and context give
// identical outputs. The only state kept between calls is the compiled
// expression cache.
package nodes

import (
	"errors"
	"fmt"
	"math"

	"github.com/zclconf/go-cty/cty"

	"github.com/roach88/animflow/internal/expr"
	"github.com/roach88/animflow/internal/model"
)

// PropertyReader supplies the value a property_input node sees for a leaf
// property. The engine decides whether that is the raw or computed value.
type PropertyReader interface {
	ReadProperty(node *model.FlowNode, leafID string) (model.Value, bool)
}

// Context is the environment of one Compute call.
type Context struct {
	Snapshot   *model.Snapshot
	Reader     PropertyReader
	Width      float64
	Height     float64
	FrameIndex int
	ArrayIndex int // -1 outside an array-modifier pass
}

// Evaluator computes flow nodes.
type Evaluator struct {
	cache *expr.Cache
}

// NewEvaluator returns an evaluator with an empty expression cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: expr.NewCache()}
}

// Invalidate drops the cached program of an expr node.
func (e *Evaluator) Invalidate(nodeID string) {
	e.cache.Invalidate(nodeID)
}

// Compute returns the outputs of node given inputs aligned with node.Inputs.
// A nil input is unset and takes the zero value of its port kind.
func (e *Evaluator) Compute(node *model.FlowNode, inputs []model.Value, ctx *Context) ([]model.Value, error) {
	switch node.Type {
	case model.NodeNumInput:
		return literal(node, model.KindNumber)
	case model.NodeVec2Input:
		return literal(node, model.KindVec2)
	case model.NodeColorInput:
		return literal(node, model.KindColor)
	case model.NodeRectInput:
		return literal(node, model.KindRect)

	case model.NodeNumAdd:
		return binaryNumber(node, inputs, func(a, b float64) float64 { return a + b })
	case model.NodeNumSubtract:
		return binaryNumber(node, inputs, func(a, b float64) float64 { return a - b })
	case model.NodeNumMultiply:
		return binaryNumber(node, inputs, func(a, b float64) float64 { return a * b })
	case model.NodeNumDivide:
		// Division by zero follows IEEE 754 (±Inf, or NaN for 0/0).
		return binaryNumber(node, inputs, func(a, b float64) float64 { return a / b })
	case model.NodeNumClamp:
		xs, err := numbers(node, inputs, 3)
		if err != nil {
			return nil, err
		}
		return one(model.Number(math.Min(math.Max(xs[0], xs[1]), xs[2])))
	case model.NodeNumLerp:
		xs, err := numbers(node, inputs, 3)
		if err != nil {
			return nil, err
		}
		return one(model.Number(xs[0] + (xs[1]-xs[0])*xs[2]))

	case model.NodeVec2Add:
		a, err := vecAt(node, inputs, 0)
		if err != nil {
			return nil, err
		}
		b, err := vecAt(node, inputs, 1)
		if err != nil {
			return nil, err
		}
		return one(model.Vec2{X: a.X + b.X, Y: a.Y + b.Y})
	case model.NodeVec2Scale:
		v, err := vecAt(node, inputs, 0)
		if err != nil {
			return nil, err
		}
		s, err := numberAt(node, inputs, 1)
		if err != nil {
			return nil, err
		}
		return one(model.Vec2{X: v.X * s, Y: v.Y * s})
	case model.NodeVec2Lerp:
		a, err := vecAt(node, inputs, 0)
		if err != nil {
			return nil, err
		}
		b, err := vecAt(node, inputs, 1)
		if err != nil {
			return nil, err
		}
		t, err := numberAt(node, inputs, 2)
		if err != nil {
			return nil, err
		}
		return one(model.Vec2{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t})
	case model.NodeVec2Compose:
		xs, err := numbers(node, inputs, 2)
		if err != nil {
			return nil, err
		}
		return one(model.Vec2{X: xs[0], Y: xs[1]})
	case model.NodeVec2Decompose:
		v, err := vecAt(node, inputs, 0)
		if err != nil {
			return nil, err
		}
		return []model.Value{model.Number(v.X), model.Number(v.Y)}, nil
	case model.NodeColorCompose:
		xs, err := numbers(node, inputs, 4)
		if err != nil {
			return nil, err
		}
		return one(model.NewColor(xs[0], xs[1], xs[2], xs[3]))
	case model.NodeColorDecompose:
		v, err := inputAt(node, inputs, 0, model.KindColor)
		if err != nil {
			return nil, err
		}
		c := v.(model.Color)
		return []model.Value{model.Number(c[0]), model.Number(c[1]), model.Number(c[2]), model.Number(c[3])}, nil
	case model.NodeRectCompose:
		xs, err := numbers(node, inputs, 4)
		if err != nil {
			return nil, err
		}
		return one(model.Rect{Left: xs[0], Top: xs[1], Width: xs[2], Height: xs[3]})
	case model.NodeRectDecompose:
		v, err := inputAt(node, inputs, 0, model.KindRect)
		if err != nil {
			return nil, err
		}
		r := v.(model.Rect)
		return []model.Value{model.Number(r.Left), model.Number(r.Top), model.Number(r.Width), model.Number(r.Height)}, nil

	case model.NodeExpr:
		return e.computeExpr(node, inputs)
	case model.NodeComposition:
		return []model.Value{model.Number(ctx.Width), model.Number(ctx.Height), model.Number(ctx.FrameIndex)}, nil
	case model.NodePropertyInput:
		return propertyInput(node, ctx)
	case model.NodePropertyOutput:
		return propertyOutput(node, inputs, ctx)
	case model.NodeArrayModifierIndex:
		return one(model.Number(ctx.ArrayIndex))
	}
	return nil, fmt.Errorf("node %s: unhandled node type %s", node.ID, node.Type)
}

func one(v model.Value) ([]model.Value, error) {
	return []model.Value{v}, nil
}

func literal(node *model.FlowNode, kind model.Kind) ([]model.Value, error) {
	if node.State.Value == nil {
		return one(model.Zero(kind))
	}
	v, err := model.Coerce(node.State.Value, kind)
	if err != nil {
		return nil, annotate(err, node.ID, "value")
	}
	return one(v)
}

// inputAt coerces input i to kind. Ports of kind Any pass through.
func inputAt(node *model.FlowNode, inputs []model.Value, i int, kind model.Kind) (model.Value, error) {
	var v model.Value
	if i < len(inputs) {
		v = inputs[i]
	}
	if v == nil {
		return model.Zero(kind), nil
	}
	c, err := model.Coerce(v, kind)
	if err != nil {
		return nil, annotate(err, node.ID, portName(node, i))
	}
	return c, nil
}

func numberAt(node *model.FlowNode, inputs []model.Value, i int) (float64, error) {
	v, err := inputAt(node, inputs, i, model.KindNumber)
	if err != nil {
		return 0, err
	}
	return float64(v.(model.Number)), nil
}

func vecAt(node *model.FlowNode, inputs []model.Value, i int) (model.Vec2, error) {
	v, err := inputAt(node, inputs, i, model.KindVec2)
	if err != nil {
		return model.Vec2{}, err
	}
	return v.(model.Vec2), nil
}

func numbers(node *model.FlowNode, inputs []model.Value, n int) ([]float64, error) {
	out := make([]float64, n)
	for i := range out {
		x, err := numberAt(node, inputs, i)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func binaryNumber(node *model.FlowNode, inputs []model.Value, op func(a, b float64) float64) ([]model.Value, error) {
	xs, err := numbers(node, inputs, 2)
	if err != nil {
		return nil, err
	}
	return one(model.Number(op(xs[0], xs[1])))
}

func portName(node *model.FlowNode, i int) string {
	if i < len(node.Inputs) {
		return node.Inputs[i].Name
	}
	return fmt.Sprintf("#%d", i)
}

func annotate(err error, nodeID, port string) error {
	var ce *model.CoercionError
	if errors.As(err, &ce) {
		ce.NodeID = nodeID
		ce.Port = port
		return ce
	}
	return err
}

func (e *Evaluator) computeExpr(node *model.FlowNode, inputs []model.Value) ([]model.Value, error) {
	prog, err := e.cache.Program(node.ID, node.State.Expression)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", node.ID, err)
	}

	scope := make(map[string]cty.Value, len(node.Inputs))
	for i, port := range node.Inputs {
		v, err := inputAt(node, inputs, i, port.Type)
		if err != nil {
			return nil, err
		}
		if av, ok := v.(model.AnyValue); ok && av.V == nil {
			continue
		}
		cv, err := expr.ToCty(v)
		if err != nil {
			return nil, &model.CoercionError{Value: model.Native(v), Expected: port.Type, NodeID: node.ID, Port: port.Name, Reason: err.Error()}
		}
		scope[port.Name] = cv
	}

	results, err := prog.Eval(scope)
	if err != nil {
		var ae *expr.ArityError
		if errors.As(err, &ae) {
			ae.NodeID = node.ID
			return nil, ae
		}
		return nil, fmt.Errorf("node %s: %w", node.ID, err)
	}

	outs := make([]model.Value, len(node.Outputs))
	for i, port := range node.Outputs {
		cv, ok := results[port.Name]
		if !ok {
			return nil, &expr.ArityError{NodeID: node.ID, Port: port.Name, Direction: expr.DirectionOutput, Message: "expression does not assign this output"}
		}
		v, err := expr.FromCty(cv)
		if err != nil {
			return nil, &model.CoercionError{Value: cv.GoString(), Expected: port.Type, NodeID: node.ID, Port: port.Name, Reason: err.Error()}
		}
		if port.Type != model.KindAny {
			if v, err = model.Coerce(v, port.Type); err != nil {
				return nil, annotate(err, node.ID, port.Name)
			}
		}
		outs[i] = v
	}
	return outs, nil
}

func propertyInput(node *model.FlowNode, ctx *Context) ([]model.Value, error) {
	shape, err := ctx.Snapshot.Shape(node.State.PropertyID)
	if err != nil {
		return nil, &UnknownReferenceError{NodeID: node.ID, PropertyID: node.State.PropertyID, Err: err}
	}
	read := func(leaf string) (model.Value, error) {
		v, ok := ctx.Reader.ReadProperty(node, leaf)
		if !ok {
			return nil, &UnknownReferenceError{NodeID: node.ID, PropertyID: leaf}
		}
		return v, nil
	}

	outs := make([]model.Value, len(shape))
	for i, slot := range shape {
		if slot.Kind == model.KindVec2 && len(slot.Leaves) == 2 {
			x, err := read(slot.Leaves[0])
			if err != nil {
				return nil, err
			}
			y, err := read(slot.Leaves[1])
			if err != nil {
				return nil, err
			}
			v, err := model.ToVec2(model.AnyValue{V: []any{model.Native(x), model.Native(y)}})
			if err != nil {
				return nil, annotate(err, node.ID, slot.Name)
			}
			outs[i] = v
			continue
		}
		v, err := read(slot.Leaves[0])
		if err != nil {
			return nil, err
		}
		outs[i] = v
	}
	return outs, nil
}

// propertyOutput validates connected inputs against the target slots and
// passes them through. Unconnected slots yield nil.
func propertyOutput(node *model.FlowNode, inputs []model.Value, ctx *Context) ([]model.Value, error) {
	shape, err := ctx.Snapshot.Shape(node.State.PropertyID)
	if err != nil {
		return nil, &UnknownReferenceError{NodeID: node.ID, PropertyID: node.State.PropertyID, Err: err}
	}
	outs := make([]model.Value, len(shape))
	for i, slot := range shape {
		if i >= len(node.Inputs) || node.Inputs[i].Pointer == nil || i >= len(inputs) || inputs[i] == nil {
			continue
		}
		v, err := model.Coerce(inputs[i], slot.Kind)
		if err != nil {
			return nil, annotate(err, node.ID, slot.Name)
		}
		outs[i] = v
	}
	return outs, nil
}
