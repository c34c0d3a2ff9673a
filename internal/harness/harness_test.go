package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/animflow/internal/model"
	"github.com/roach88/animflow/internal/testutil"
)

func intp(i int) *int { return &i }

// doubled builds num_input(5) -> expr("y = x * 2") -> PositionX on l1 and a
// constant rotation on l2.
func doubled() *model.Snapshot {
	b := testutil.NewBuilder().
		Composition("comp", 100, 100, 10).
		Layer("comp", "l1").
		NumberProperty("l1", "px", model.NamePositionX, 0).
		Compound("l1", "pos", model.NamePosition, 1, 2, true).
		LayerGraph("l1", "g1").
		Layer("comp", "l2").
		NumberProperty("l2", "rot", model.NameRotation, 0).
		LayerGraph("l2", "g2")
	b.AddNode("g1", testutil.NumInput("n.in", 5)).
		AddNode("g1", testutil.Expr("n.expr", "y = x * 2",
			[]model.NodeInput{testutil.Ptr("x", model.KindAny, "n.in", 0)}, "y")).
		AddNode("g1", b.PropertyOutput("n.out", "px", map[string]model.OutputPointer{
			string(model.NamePositionX): testutil.Out("n.expr", 0),
		}))
	b.AddNode("g2", testutil.NumInput("r.in", 45)).
		AddNode("g2", b.PropertyOutput("r.out", "rot", map[string]model.OutputPointer{
			string(model.NameRotation): testutil.Out("r.in", 0),
		}))
	return b.Snapshot()
}

func TestRun_KeyframedPosition(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/keyframed_position.scenario.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 4)
	assert.Equal(t, "reset", result.Trace[0].Action)
	assert.Equal(t, []string{"in", "k", "mul", "out"}, result.Trace[0].Computed)
	assert.Empty(t, result.Trace[0].Layers)

	assert.Equal(t, 10, result.Trace[1].Frame)
	assert.Equal(t, []LayerTrace{
		{Layer: "box", Perform: []string{"position", "redraw"}},
		{Layer: "child", Perform: []string{"transform"}},
	}, result.Trace[1].Layers)

	last, ok := result.Last()
	require.True(t, ok)
	assert.Empty(t, last.Computed)
	assert.Equal(t, []LayerTrace{{Layer: "child", Perform: []string{"redraw"}}}, last.Layers)

	assert.Equal(t, map[string]any{"box.op": 50.0, "box.x": 150.0, "child.op": 40.0}, result.Values)
}

func TestRun_FailingAssertion(t *testing.T) {
	scenario, err := LoadScenario("testdata/failing.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "box.x = 7")
	assert.Contains(t, result.Errors[0], "Actual: 0")
}

func TestRun_MissingSnapshot(t *testing.T) {
	_, err := Run(&Scenario{Name: "x", Snapshot: "testdata/missing.yaml", Composition: "main"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load snapshot")
}

func TestRun_Bake(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/baked_opacity.scenario.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

// ============================================================================
// Steps
// ============================================================================

func TestRunSnapshot_UnknownComposition(t *testing.T) {
	_, err := RunSnapshot(&Scenario{Name: "x", Composition: "nope"}, doubled())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `composition "nope" not found`)
}

func TestRunSnapshot_SetExpression(t *testing.T) {
	scenario := &Scenario{
		Name:        "expr",
		Composition: "comp",
		Steps: []Step{
			{Action: StepSetExpression, Node: "n.expr", Expression: "y = x * 3",
				Expect: &ExpectClause{Values: map[string]any{"px": 15}}},
		},
	}
	result, err := RunSnapshot(scenario, doubled())
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 15.0, result.Values["px"])
	assert.Equal(t, []LayerTrace{{Layer: "l1", Perform: []string{"position"}}}, result.Trace[1].Layers)
}

func TestRunSnapshot_SetCompound(t *testing.T) {
	scenario := &Scenario{
		Name:        "compound",
		Composition: "comp",
		Steps: []Step{
			{Action: StepSetProperty, Property: "pos", Value: map[string]any{"x": 3, "y": 4}},
		},
		Assertions: []Assertion{
			{Type: AssertValue, Property: "pos", Expect: map[string]any{"x": 3, "y": 4}},
		},
	}
	result, err := RunSnapshot(scenario, doubled())
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 3.0, result.Values["pos.x"])
	assert.Equal(t, 4.0, result.Values["pos.y"])
}

func TestRunSnapshot_SetNodeStateValue(t *testing.T) {
	scenario := &Scenario{
		Name:        "state",
		Composition: "comp",
		Steps: []Step{
			{Action: StepSetNodeState, Node: "r.in", Value: 90,
				Expect: &ExpectClause{Computed: []string{"r.in", "r.out"}}},
		},
	}
	result, err := RunSnapshot(scenario, doubled())
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 90.0, result.Values["rot"])
	assert.Equal(t, []LayerTrace{{Layer: "l2", Perform: []string{"transform"}}}, result.Trace[1].Layers)
}

func TestRunSnapshot_RemoveLayer(t *testing.T) {
	scenario := &Scenario{
		Name:        "remove",
		Composition: "comp",
		Steps:       []Step{{Action: StepRemoveLayer, Layer: "l2"}},
		Assertions:  []Assertion{{Type: AssertNoErrors}},
	}
	result, err := RunSnapshot(scenario, doubled())
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.NotContains(t, result.Values, "rot")
	assert.Equal(t, 10.0, result.Values["px"])
}

func TestRunSnapshot_UnknownPropertyIsRecorded(t *testing.T) {
	scenario := &Scenario{
		Name:        "unknown",
		Composition: "comp",
		Steps: []Step{
			{Action: StepSetProperty, Property: "ghost", Value: 1,
				Expect: &ExpectClause{Errors: []string{"UNKNOWN_REFERENCE"}}},
		},
		Assertions: []Assertion{{Type: AssertError, Code: "UNKNOWN_REFERENCE", Property: "ghost"}},
	}
	result, err := RunSnapshot(scenario, doubled())
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace[1].Errors, 1)
	assert.Equal(t, ErrorTrace{Code: "UNKNOWN_REFERENCE", Property: "ghost"}, result.Trace[1].Errors[0])
}

func TestRunSnapshot_StepErrors(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		wantErr string
	}{
		{"unknown node", Step{Action: StepSetNodeState, Node: "ghost", Value: 1}, "unknown node ghost"},
		{"unknown expression node", Step{Action: StepSetExpression, Node: "ghost"}, "unknown node ghost"},
		{"unknown layer", Step{Action: StepRemoveLayer, Layer: "ghost"}, "unknown layer ghost"},
		{"bad value", Step{Action: StepSetProperty, Property: "px", Value: "wide"}, "step 1 (set_property)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RunSnapshot(&Scenario{Name: "x", Composition: "comp", Steps: []Step{tt.step}}, doubled())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunSnapshot_ExpectMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Composition: "comp",
		Steps: []Step{
			{Action: StepSetFrame, Frame: intp(3),
				Expect: &ExpectClause{Computed: []string{"n.in"}, Values: map[string]any{"px": 11}}},
		},
	}
	result, err := RunSnapshot(scenario, doubled())
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "step 1 (set_frame)")
	assert.Contains(t, result.Errors[0], "px = 11")
	assert.Contains(t, result.Errors[1], "computed [], expected [n.in]")
}
