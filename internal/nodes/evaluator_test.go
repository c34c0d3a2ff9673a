package nodes_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/animflow/internal/expr"
	"github.com/roach88/animflow/internal/model"
	"github.com/roach88/animflow/internal/nodes"
	"github.com/roach88/animflow/internal/testutil"
)

// mapReader serves leaf values from a map.
type mapReader map[string]model.Value

func (m mapReader) ReadProperty(_ *model.FlowNode, leafID string) (model.Value, bool) {
	v, ok := m[leafID]
	return v, ok
}

func newContext(snap *model.Snapshot, values mapReader) *nodes.Context {
	return &nodes.Context{Snapshot: snap, Reader: values, Width: 640, Height: 480, FrameIndex: 12, ArrayIndex: -1}
}

func compute(t *testing.T, n *model.FlowNode, inputs ...model.Value) []model.Value {
	t.Helper()
	out, err := nodes.NewEvaluator().Compute(n, inputs, newContext(model.NewSnapshot(), nil))
	require.NoError(t, err)
	return out
}

// =============================================================================
// Exhaustiveness
// =============================================================================

func TestCompute_HandlesEveryNodeType(t *testing.T) {
	b := testutil.NewBuilder().
		Composition("c", 10, 10, 10).
		Layer("c", "l").
		NumberProperty("l", "p", model.NameOpacity, 1)
	snap := b.Snapshot()
	ev := nodes.NewEvaluator()

	for _, typ := range model.AllNodeTypes() {
		t.Run(typ.String(), func(t *testing.T) {
			n := testutil.Node("n", typ)
			n.State.PropertyID = "p"
			n.State.Expression = "y = 1"
			if typ == model.NodeExpr {
				n.Outputs = []model.NodeOutput{{Name: "y", Type: model.KindAny}}
			}
			_, err := ev.Compute(n, make([]model.Value, len(n.Inputs)), newContext(snap, mapReader{"p": model.Number(1)}))
			assert.NoError(t, err)
		})
	}
}

func TestDefinitionOf_FixedTypesHaveOutputs(t *testing.T) {
	for _, typ := range model.AllNodeTypes() {
		switch typ {
		case model.NodeExpr, model.NodePropertyInput, model.NodePropertyOutput:
			continue
		}
		assert.NotEmpty(t, nodes.DefinitionOf(typ).Outputs, typ.String())
	}
}

// =============================================================================
// Arithmetic
// =============================================================================

func TestCompute_NumberOps(t *testing.T) {
	tests := []struct {
		typ  model.NodeType
		in   []model.Value
		want model.Value
	}{
		{model.NodeNumAdd, []model.Value{model.Number(2), model.Number(3)}, model.Number(5)},
		{model.NodeNumSubtract, []model.Value{model.Number(2), model.Number(3)}, model.Number(-1)},
		{model.NodeNumMultiply, []model.Value{model.Number(2), model.Number(3)}, model.Number(6)},
		{model.NodeNumDivide, []model.Value{model.Number(3), model.Number(2)}, model.Number(1.5)},
		{model.NodeNumClamp, []model.Value{model.Number(12), model.Number(0), model.Number(10)}, model.Number(10)},
		{model.NodeNumLerp, []model.Value{model.Number(0), model.Number(10), model.Number(0.25)}, model.Number(2.5)},
		// Numeric strings coerce.
		{model.NodeNumAdd, []model.Value{model.AnyValue{V: "4"}, model.Number(1)}, model.Number(5)},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			out := compute(t, testutil.Node("n", tt.typ), tt.in...)
			assert.Equal(t, []model.Value{tt.want}, out)
		})
	}
}

func TestCompute_DivideByZeroIsInf(t *testing.T) {
	out := compute(t, testutil.Node("n", model.NodeNumDivide), model.Number(1), model.Number(0))
	assert.True(t, math.IsInf(float64(out[0].(model.Number)), 1))
}

func TestCompute_UnsetInputIsZero(t *testing.T) {
	out := compute(t, testutil.Node("n", model.NodeNumAdd), model.Number(2), nil)
	assert.Equal(t, model.Number(2), out[0])
}

func TestCompute_VectorOps(t *testing.T) {
	out := compute(t, testutil.Node("n", model.NodeVec2Scale), model.Vec2{X: 1, Y: 2}, model.Number(3))
	assert.Equal(t, model.Vec2{X: 3, Y: 6}, out[0])

	out = compute(t, testutil.Node("n", model.NodeVec2Add), model.AnyValue{V: []any{1.0, 1.0}}, model.Vec2{X: 2, Y: 3})
	assert.Equal(t, model.Vec2{X: 3, Y: 4}, out[0])

	out = compute(t, testutil.Node("n", model.NodeVec2Decompose), model.Vec2{X: 7, Y: 8})
	assert.Equal(t, []model.Value{model.Number(7), model.Number(8)}, out)
}

func TestCompute_ColorComposeClamps(t *testing.T) {
	out := compute(t, testutil.Node("n", model.NodeColorCompose),
		model.Number(300), model.Number(-5), model.Number(10), model.Number(255))
	assert.Equal(t, model.Color{255, 0, 10, 255}, out[0])
}

func TestCompute_RectRoundTrip(t *testing.T) {
	out := compute(t, testutil.Node("n", model.NodeRectDecompose),
		model.AnyValue{V: map[string]any{"left": 1.0, "top": 2.0, "width": 3.0, "height": 4.0}})
	assert.Equal(t, []model.Value{model.Number(1), model.Number(2), model.Number(3), model.Number(4)}, out)
}

func TestCompute_CoercionErrorNamesNodeAndPort(t *testing.T) {
	_, err := nodes.NewEvaluator().Compute(testutil.Node("n1", model.NodeNumAdd),
		[]model.Value{model.Vec2{X: 1}, model.Number(1)}, newContext(model.NewSnapshot(), nil))

	var ce *model.CoercionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "n1", ce.NodeID)
	assert.Equal(t, "a", ce.Port)
	assert.Equal(t, model.KindNumber, ce.Expected)
}

// =============================================================================
// Context nodes
// =============================================================================

func TestCompute_CompositionAndArrayIndex(t *testing.T) {
	out := compute(t, testutil.Node("n", model.NodeComposition))
	assert.Equal(t, []model.Value{model.Number(640), model.Number(480), model.Number(12)}, out)

	out = compute(t, testutil.Node("n", model.NodeArrayModifierIndex))
	assert.Equal(t, model.Number(-1), out[0])

	ctx := newContext(model.NewSnapshot(), nil)
	ctx.ArrayIndex = 4
	out, err := nodes.NewEvaluator().Compute(testutil.Node("n", model.NodeArrayModifierIndex), nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Number(4), out[0])
}

// =============================================================================
// Expressions
// =============================================================================

func TestCompute_Expr(t *testing.T) {
	n := testutil.Expr("e", "y = x * 2", []model.NodeInput{{Name: "x", Type: model.KindAny}}, "y")
	out := compute(t, n, model.Number(5))
	assert.Equal(t, model.Number(10), out[0])
}

func TestCompute_ExprMissingOutputIsArityError(t *testing.T) {
	n := testutil.Expr("e", "y = x * 2", []model.NodeInput{{Name: "x", Type: model.KindAny}}, "y", "z")
	_, err := nodes.NewEvaluator().Compute(n, []model.Value{model.Number(1)}, newContext(model.NewSnapshot(), nil))

	var ae *expr.ArityError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "e", ae.NodeID)
	assert.Equal(t, "z", ae.Port)
}

func TestCompute_ExprUnboundInputIsArityError(t *testing.T) {
	n := testutil.Expr("e", "y = x + w", []model.NodeInput{{Name: "x", Type: model.KindAny}}, "y")
	_, err := nodes.NewEvaluator().Compute(n, []model.Value{model.Number(1)}, newContext(model.NewSnapshot(), nil))

	var ae *expr.ArityError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "w", ae.Port)
}

func TestCompute_ExprTypedOutputCoerces(t *testing.T) {
	n := testutil.Expr("e", "v = vec2(1, 2)", nil, "v")
	n.Outputs[0].Type = model.KindNumber
	_, err := nodes.NewEvaluator().Compute(n, nil, newContext(model.NewSnapshot(), nil))
	assert.True(t, model.IsCoercionError(err))
}

func TestEvaluator_InvalidateRecompiles(t *testing.T) {
	ev := nodes.NewEvaluator()
	ctx := newContext(model.NewSnapshot(), nil)
	n := testutil.Expr("e", "y = 1", nil, "y")

	out, err := ev.Compute(n, nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Number(1), out[0])

	n.State.Expression = "y = 2"
	ev.Invalidate("e")
	out, err = ev.Compute(n, nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Number(2), out[0])
}

// =============================================================================
// Property nodes
// =============================================================================

func propertySnapshot() *testutil.Builder {
	b := testutil.NewBuilder().
		Composition("c", 10, 10, 10).
		Layer("c", "l").
		NumberProperty("l", "op", model.NameOpacity, 50).
		Compound("l", "pos", model.NamePosition, 1, 2, false)
	b.Leaf("l", "sx", model.NameScaleX, model.KindNumber, model.Number(1)).
		Leaf("l", "sy", model.NameScaleY, model.KindNumber, model.Number(2)).
		Group("l", "grp", "Scale", "sx", "sy")
	return b
}

func TestPropertyInput_Shapes(t *testing.T) {
	b := propertySnapshot()
	snap := b.Snapshot()
	reader := mapReader{
		"op": model.Number(50), "pos.x": model.Number(1), "pos.y": model.Number(2),
		"sx": model.Number(1), "sy": model.Number(2),
	}
	ev := nodes.NewEvaluator()

	out, err := ev.Compute(b.PropertyInput("in1", "op"), nil, newContext(snap, reader))
	require.NoError(t, err)
	assert.Equal(t, []model.Value{model.Number(50)}, out)

	out, err = ev.Compute(b.PropertyInput("in2", "pos"), nil, newContext(snap, reader))
	require.NoError(t, err)
	assert.Equal(t, []model.Value{model.Vec2{X: 1, Y: 2}, model.Number(1), model.Number(2)}, out)

	out, err = ev.Compute(b.PropertyInput("in3", "grp"), nil, newContext(snap, reader))
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestPropertyInput_UnknownReference(t *testing.T) {
	b := propertySnapshot()
	n := b.PropertyInput("in", "op")
	n.State.PropertyID = "gone"

	_, err := nodes.NewEvaluator().Compute(n, nil, newContext(b.Snapshot(), mapReader{}))
	assert.True(t, nodes.IsUnknownReference(err))
}

func TestPropertyOutput_ValidatesConnectedOnly(t *testing.T) {
	b := propertySnapshot()
	n := b.PropertyOutput("out", "pos", map[string]model.OutputPointer{
		string(model.NamePosition): testutil.Out("src", 0),
	})

	out, err := nodes.NewEvaluator().Compute(n,
		[]model.Value{model.AnyValue{V: map[string]any{"x": 3.0, "y": 4.0}}, model.AnyValue{V: "junk"}, nil},
		newContext(b.Snapshot(), nil))
	require.NoError(t, err)
	assert.Equal(t, []model.Value{model.Vec2{X: 3, Y: 4}, nil, nil}, out)
}

func TestPropertyOutput_RejectsWrongKind(t *testing.T) {
	b := propertySnapshot()
	n := b.PropertyOutput("out", "op", map[string]model.OutputPointer{
		string(model.NameOpacity): testutil.Out("src", 0),
	})

	_, err := nodes.NewEvaluator().Compute(n, []model.Value{model.Vec2{X: 1, Y: 1}}, newContext(b.Snapshot(), nil))
	var ce *model.CoercionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "out", ce.NodeID)
	assert.Equal(t, string(model.NameOpacity), ce.Port)
}

func TestPorts_Expr(t *testing.T) {
	d, err := nodes.Ports(model.NewSnapshot(), model.NodeExpr, model.NodeState{Expression: "a = x + y; b = a * 2"})
	require.NoError(t, err)
	require.Len(t, d.Inputs, 2)
	assert.Equal(t, "x", d.Inputs[0].Name)
	require.Len(t, d.Outputs, 2)
	assert.Equal(t, "b", d.Outputs[1].Name)
}
