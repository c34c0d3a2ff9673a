package harness

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/animflow/internal/engine"
	"github.com/roach88/animflow/internal/model"
	"github.com/roach88/animflow/internal/testutil"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// arrayed builds an array modifier of three instances whose offset is the
// instance index times ten.
func arrayed() *model.Snapshot {
	b := testutil.NewBuilder().
		Composition("comp", 100, 100, 10).
		Layer("comp", "l1").
		Leaf("l1", "off", "Offset", model.KindNumber, model.Number(0)).
		ArrayModifier("l1", "arr", 3, "off")
	b.AddNode("arr.graph", testutil.Node("idx", model.NodeArrayModifierIndex)).
		AddNode("arr.graph", testutil.Node("mul", model.NodeNumMultiply,
			testutil.Ptr("a", model.KindNumber, "idx", 0),
			testutil.Lit("b", model.Number(10)))).
		AddNode("arr.graph", b.PropertyOutput("out", "off", map[string]model.OutputPointer{
			"Offset": testutil.Out("mul", 0),
		}))
	return b.Snapshot()
}

func assertionManager(t *testing.T, snap *model.Snapshot) *engine.Manager {
	t.Helper()
	m := engine.New("comp", snap, engine.WithLogger(quiet()))
	t.Cleanup(m.Dispose)
	return m
}

func evaluate(m *engine.Manager, assertions ...Assertion) []string {
	return EvaluateAssertions(NewResult(), assertions, &AssertionContext{Manager: m, Ctx: context.Background()})
}

func TestEvaluateAssertions_Value(t *testing.T) {
	m := assertionManager(t, doubled())

	assert.Empty(t, evaluate(m, Assertion{Type: AssertValue, Property: "px", Expect: 10}))
	assert.Empty(t, evaluate(m, Assertion{Type: AssertValue, Property: "pos", Expect: []any{1, 2}}))

	errs := evaluate(m, Assertion{Type: AssertValue, Property: "px", Expect: 11})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Expected: px = 11")
	assert.Contains(t, errs[0], "Actual: 10")

	errs = evaluate(m, Assertion{Type: AssertValue, Property: "ghost", Expect: 1})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "no value")
}

func TestEvaluateAssertions_ExpectDoesNotCoerce(t *testing.T) {
	m := assertionManager(t, doubled())

	errs := evaluate(m, Assertion{Type: AssertValue, Property: "px", Expect: "ten"})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "expected value does not coerce")
}

func TestEvaluateAssertions_Array(t *testing.T) {
	m := assertionManager(t, arrayed())

	assert.Empty(t, evaluate(m,
		Assertion{Type: AssertArrayCount, Property: "arr", Count: 3},
		Assertion{Type: AssertArrayValue, Property: "off", Index: intp(0), Expect: 0},
		Assertion{Type: AssertArrayValue, Property: "off", Index: intp(2), Expect: 20},
	))

	errs := evaluate(m,
		Assertion{Type: AssertArrayCount, Property: "arr", Count: 4},
		Assertion{Type: AssertArrayValue, Property: "off", Index: intp(5), Expect: 50},
	)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "Actual: 3 instances")
	assert.Contains(t, errs[1], "no value (3 entries)")
}

func TestEvaluateAssertions_Errors(t *testing.T) {
	m := assertionManager(t, doubled())

	assert.Empty(t, evaluate(m, Assertion{Type: AssertNoErrors}))

	m.OnPropertyIDsChanged([]string{"ghost"})

	assert.Empty(t, evaluate(m, Assertion{Type: AssertError, Code: string(engine.CodeUnknownReference), Property: "ghost"}))

	errs := evaluate(m,
		Assertion{Type: AssertNoErrors},
		Assertion{Type: AssertError, Code: string(engine.CodeUnknownReference), Property: "px"},
		Assertion{Type: AssertError, Code: string(engine.CodeCycle)},
	)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "Expected: no errors")
	assert.Contains(t, errs[1], "UNKNOWN_REFERENCE on property px")
	assert.Contains(t, errs[2], "Expected: CYCLE")
}

func TestEvaluateAssertions_Actions(t *testing.T) {
	m := assertionManager(t, doubled())

	assert.Empty(t, evaluate(m,
		Assertion{Type: AssertActions, Layer: "l1", Node: "n.in", Perform: []string{"position"}},
		Assertion{Type: AssertActions, Layer: "l2", Property: "rot", Perform: []string{"transform"}},
		Assertion{Type: AssertActions, Layer: "l2", Node: "n.in"},
	))

	errs := evaluate(m, Assertion{Type: AssertActions, Layer: "l1", Node: "n.in", Perform: []string{"redraw"}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "layer l1 performs [redraw]")
	assert.Contains(t, errs[0], "[position]")
}

func TestEvaluateAssertions_BakedValueNeedsStore(t *testing.T) {
	m := assertionManager(t, doubled())

	errs := evaluate(m, Assertion{Type: AssertBakedValue, Property: "px", Expect: 10})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "baked_value requires a bake")
}

func TestEvaluateAssertions_NoManager(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: AssertNoErrors}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "no manager")
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	m := assertionManager(t, doubled())

	errs := evaluate(m, Assertion{Type: "vibes"})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `unknown assertion type "vibes"`)
}

// ============================================================================
// Error formatting
// ============================================================================

func TestAssertionError_IncludesTrace(t *testing.T) {
	m := assertionManager(t, doubled())
	result := NewResult()
	result.AddTrace(TraceEvent{Step: 0, Action: "reset", Computed: []string{"n.in"}})

	errs := EvaluateAssertions(result, []Assertion{{Type: AssertValue, Property: "px", Expect: 1}},
		&AssertionContext{Manager: m, Ctx: context.Background()})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Assertion failed: value")
	assert.Contains(t, errs[0], "Full trace:")
	assert.Contains(t, errs[0], "[0] reset frame=0 computed=[n.in]")
}

func TestValuesClose(t *testing.T) {
	tests := []struct {
		name string
		a, b model.Value
		want bool
	}{
		{"equal numbers", model.Number(1), model.Number(1), true},
		{"float noise", model.Number(0.1 + 0.2), model.Number(0.3), true},
		{"different numbers", model.Number(1), model.Number(1.001), false},
		{"both NaN", model.Number(math.NaN()), model.Number(math.NaN()), true},
		{"vec2", model.Vec2{X: 1, Y: 2}, model.Vec2{X: 1, Y: 2}, true},
		{"vec2 differs", model.Vec2{X: 1, Y: 2}, model.Vec2{X: 1, Y: 3}, false},
		{"color", model.Color{1, 0, 0, 1}, model.Color{1, 0, 0, 1}, true},
		{"rect differs", model.Rect{Width: 1}, model.Rect{Width: 2}, false},
		{"kinds differ", model.Number(1), model.Vec2{X: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, valuesClose(tt.a, tt.b))
		})
	}
}
