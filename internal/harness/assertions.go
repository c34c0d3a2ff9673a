package harness

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/animflow/internal/engine"
	"github.com/roach88/animflow/internal/model"
	"github.com/roach88/animflow/internal/store"
)

// tolerance absorbs float noise from interpolation and expression math.
const tolerance = 1e-9

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s frame=%d computed=%v\n", event.Step, event.Action, event.Frame, event.Computed)
		}
	}
	return buf.String()
}

// AssertionContext provides what assertions read from.
type AssertionContext struct {
	Manager *engine.Manager
	Store   *store.Store // nil unless the scenario baked
	RunID   string
	Ctx     context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error
		if actx == nil || actx.Manager == nil {
			err = fmt.Errorf("assertion[%d]: no manager to assert against", i)
		} else {
			switch assertion.Type {
			case AssertValue:
				err = assertValue(actx.Manager, assertion)
			case AssertArrayValue:
				err = assertArrayValue(actx.Manager, assertion)
			case AssertArrayCount:
				err = assertArrayCount(actx.Manager, assertion)
			case AssertError:
				err = assertError(actx.Manager, assertion)
			case AssertNoErrors:
				err = assertNoErrors(actx.Manager)
			case AssertActions:
				err = assertActions(actx.Manager, assertion)
			case AssertBakedValue:
				if actx.Store == nil {
					err = fmt.Errorf("assertion[%d]: baked_value requires a bake", i)
				} else {
					err = assertBakedValue(actx, assertion)
				}
			default:
				err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
			}
		}

		if err != nil {
			if ae, ok := err.(*AssertionError); ok {
				ae.Trace = result.Trace
			}
			errors = append(errors, err.Error())
		}
	}
	return errors
}

func assertValue(m *engine.Manager, a Assertion) error {
	actual, ok := m.PropertyValue(a.Property)
	if !ok {
		return &AssertionError{
			Type:     AssertValue,
			Expected: fmt.Sprintf("%s = %v", a.Property, a.Expect),
			Actual:   "no value",
		}
	}
	return compare(AssertValue, a.Property, actual, a.Expect)
}

func assertArrayValue(m *engine.Manager, a Assertion) error {
	label := fmt.Sprintf("%s[%d]", a.Property, *a.Index)
	actual, ok := m.ArrayModifierValue(a.Property, *a.Index)
	if !ok {
		return &AssertionError{
			Type:     AssertArrayValue,
			Expected: fmt.Sprintf("%s = %v", label, a.Expect),
			Actual:   fmt.Sprintf("no value (%d entries)", m.ArrayEntries(a.Property)),
		}
	}
	return compare(AssertArrayValue, label, actual, a.Expect)
}

func assertArrayCount(m *engine.Manager, a Assertion) error {
	n, ok := m.ArrayCount(a.Property)
	if !ok || n != a.Count {
		actual := "no count"
		if ok {
			actual = fmt.Sprintf("%d instances", n)
		}
		return &AssertionError{
			Type:     AssertArrayCount,
			Expected: fmt.Sprintf("%d instances of %s", a.Count, a.Property),
			Actual:   actual,
		}
	}
	return nil
}

func assertError(m *engine.Manager, a Assertion) error {
	var seen []string
	for _, e := range m.Errors() {
		seen = append(seen, e.Error())
		if string(e.Code) != a.Code {
			continue
		}
		if a.Node != "" && e.NodeID != a.Node {
			continue
		}
		if a.Property != "" && e.PropertyID != a.Property {
			continue
		}
		return nil
	}
	expected := a.Code
	if a.Node != "" {
		expected += " on node " + a.Node
	}
	if a.Property != "" {
		expected += " on property " + a.Property
	}
	return &AssertionError{
		Type:     AssertError,
		Expected: expected,
		Actual:   fmt.Sprintf("errors: %v", seen),
	}
}

func assertNoErrors(m *engine.Manager) error {
	errs := m.Errors()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return &AssertionError{
		Type:     AssertNoErrors,
		Expected: "no errors",
		Actual:   strings.Join(msgs, "; "),
	}
}

func assertActions(m *engine.Manager, a Assertion) error {
	var subject engine.Subject
	if a.Property != "" {
		subject.PropertyIDs = []string{a.Property}
	}
	if a.Node != "" {
		subject.NodeIDs = []string{a.Node}
	}
	var actual []string
	for _, la := range m.ActionsToPerform(subject) {
		if la.LayerID != a.Layer {
			continue
		}
		for _, p := range la.Performables {
			actual = append(actual, string(p))
		}
	}
	if strings.Join(actual, ",") != strings.Join(a.Perform, ",") {
		return &AssertionError{
			Type:     AssertActions,
			Expected: fmt.Sprintf("layer %s performs %v", a.Layer, a.Perform),
			Actual:   fmt.Sprintf("%v", actual),
		}
	}
	return nil
}

func assertBakedValue(actx *AssertionContext, a Assertion) error {
	index := store.NoArrayIndex
	if a.Index != nil {
		index = *a.Index
	}
	label := fmt.Sprintf("%s@%d", a.Property, a.Frame)
	if index != store.NoArrayIndex {
		label = fmt.Sprintf("%s[%d]@%d", a.Property, index, a.Frame)
	}

	values, err := actx.Store.ReadFrame(actx.Ctx, actx.RunID, a.Frame)
	if err != nil {
		return fmt.Errorf("baked_value %s: %w", label, err)
	}
	for _, v := range values {
		if v.PropertyID == a.Property && v.ArrayIndex == index {
			return compare(AssertBakedValue, label, v.Value, a.Expect)
		}
	}
	return &AssertionError{
		Type:     AssertBakedValue,
		Expected: fmt.Sprintf("%s = %v", label, a.Expect),
		Actual:   "not baked",
	}
}

// compare coerces the scenario's plain value to the actual value's kind and
// compares component-wise within tolerance.
func compare(typ, label string, actual model.Value, expected any) error {
	fail := func(detail string) error {
		return &AssertionError{
			Type:     typ,
			Expected: fmt.Sprintf("%s = %v", label, expected),
			Actual:   detail,
		}
	}
	want, err := model.FromNative(expected, actual.Kind())
	if err != nil {
		return fail(fmt.Sprintf("%s (expected value does not coerce: %v)", model.Format(actual), err))
	}
	if !valuesClose(actual, want) {
		return fail(model.Format(actual))
	}
	return nil
}

// valuesClose reports whether two values of the same kind agree within
// tolerance. Any values compare by their printed form.
func valuesClose(a, b model.Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	var x, y []float64
	switch av := a.(type) {
	case model.Number:
		x, y = []float64{float64(av)}, []float64{float64(b.(model.Number))}
	case model.Vec2:
		bv := b.(model.Vec2)
		x, y = []float64{av.X, av.Y}, []float64{bv.X, bv.Y}
	case model.Color:
		bv := b.(model.Color)
		x, y = av[:], bv[:]
	case model.Rect:
		bv := b.(model.Rect)
		x = []float64{av.Left, av.Top, av.Width, av.Height}
		y = []float64{bv.Left, bv.Top, bv.Width, bv.Height}
	default:
		return model.Equal(a, b)
	}
	for i := range x {
		if math.IsNaN(x[i]) && math.IsNaN(y[i]) {
			continue
		}
		if math.Abs(x[i]-y[i]) > tolerance {
			return false
		}
	}
	return true
}

// checkExpect checks a step's expect clause and returns failure messages.
func checkExpect(m *engine.Manager, event TraceEvent, expect *ExpectClause) []string {
	var msgs []string
	for _, id := range sortedKeys(expect.Values) {
		if err := assertValue(m, Assertion{Property: id, Expect: expect.Values[id]}); err != nil {
			msgs = append(msgs, strings.TrimSpace(err.Error()))
		}
	}
	if expect.Computed != nil && strings.Join(event.Computed, ",") != strings.Join(expect.Computed, ",") {
		msgs = append(msgs, fmt.Sprintf("computed %v, expected %v", event.Computed, expect.Computed))
	}
	for _, code := range expect.Errors {
		if err := assertError(m, Assertion{Code: code}); err != nil {
			msgs = append(msgs, fmt.Sprintf("expected error %s, got %v", code, event.Errors))
		}
	}
	return msgs
}
