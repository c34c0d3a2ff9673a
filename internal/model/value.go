package model

import (
	"fmt"
	"math"
)

// Kind identifies the tag of a Value. The set is closed.
type Kind int

const (
	KindAny Kind = iota
	KindNumber
	KindVec2
	KindColor
	KindRect
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindNumber:
		return "number"
	case KindVec2:
		return "vec2"
	case KindColor:
		return "color"
	case KindRect:
		return "rect"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a wire name back into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "any", "":
		return KindAny, nil
	case "number":
		return KindNumber, nil
	case "vec2":
		return KindVec2, nil
	case "color", "rgba":
		return KindColor, nil
	case "rect":
		return KindRect, nil
	default:
		return KindAny, fmt.Errorf("unknown value kind %q", s)
	}
}

// Value is a sealed interface over the tagged values that flow between nodes
// and properties. Only Number, Vec2, Color, Rect and AnyValue implement it.
type Value interface {
	Kind() Kind
	value() // sealed
}

// Number is a scalar.
type Number float64

func (Number) Kind() Kind { return KindNumber }
func (Number) value()     {}

// Vec2 is a 2D vector.
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

func (Vec2) Kind() Kind { return KindVec2 }
func (Vec2) value()     {}

// Color is an RGBA color with every channel in [0,255].
type Color [4]float64

func (Color) Kind() Kind { return KindColor }
func (Color) value()     {}

// Rect is an axis-aligned rectangle.
type Rect struct {
	Left   float64 `json:"left" yaml:"left"`
	Top    float64 `json:"top" yaml:"top"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

func (Rect) Kind() Kind { return KindRect }
func (Rect) value()     {}

// AnyValue carries an untyped value (string, float64, bool, []any or
// map[string]any) until a typed consumer coerces it.
type AnyValue struct {
	V any
}

func (AnyValue) Kind() Kind { return KindAny }
func (AnyValue) value()     {}

// NewColor builds a Color, clamping each channel to [0,255].
func NewColor(r, g, b, a float64) Color {
	return Color{clampChannel(r), clampChannel(g), clampChannel(b), clampChannel(a)}
}

func clampChannel(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(0, math.Min(255, c))
}

// Zero returns the zero value for a kind.
func Zero(k Kind) Value {
	switch k {
	case KindNumber:
		return Number(0)
	case KindVec2:
		return Vec2{}
	case KindColor:
		return Color{}
	case KindRect:
		return Rect{}
	default:
		return AnyValue{}
	}
}

// Equal reports whether two values carry the same tag and payload.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	if av, ok := a.(AnyValue); ok {
		return fmt.Sprint(av.V) == fmt.Sprint(b.(AnyValue).V)
	}
	return a == b
}

// Native converts a value into plain Go data (float64, map[string]any,
// []any) for serialization.
func Native(v Value) any {
	switch val := v.(type) {
	case nil:
		return nil
	case Number:
		return float64(val)
	case Vec2:
		return map[string]any{"x": val.X, "y": val.Y}
	case Color:
		return []any{val[0], val[1], val[2], val[3]}
	case Rect:
		return map[string]any{"left": val.Left, "top": val.Top, "width": val.Width, "height": val.Height}
	case AnyValue:
		return val.V
	default:
		return nil
	}
}

// Format renders a value for human-readable output.
func Format(v Value) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case Number:
		return fmt.Sprintf("%g", float64(val))
	case Vec2:
		return fmt.Sprintf("(%g, %g)", val.X, val.Y)
	case Color:
		return fmt.Sprintf("rgba(%g, %g, %g, %g)", val[0], val[1], val[2], val[3])
	case Rect:
		return fmt.Sprintf("rect(%g, %g, %g, %g)", val.Left, val.Top, val.Width, val.Height)
	case AnyValue:
		return fmt.Sprintf("%v", val.V)
	default:
		return fmt.Sprintf("%v", v)
	}
}
