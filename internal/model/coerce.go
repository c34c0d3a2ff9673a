package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CoercionError reports a value that could not be converted to the kind a
// consumer requires. NodeID and Port are filled in by the node evaluator.
type CoercionError struct {
	Value    any
	Expected Kind
	NodeID   string
	Port     string
	Reason   string
}

// Error implements the error interface.
func (e *CoercionError) Error() string {
	msg := fmt.Sprintf("cannot coerce %v (%T) to %s", e.Value, e.Value, e.Expected)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.NodeID != "" {
		if e.Port != "" {
			return fmt.Sprintf("node %s port %s: %s", e.NodeID, e.Port, msg)
		}
		return fmt.Sprintf("node %s: %s", e.NodeID, msg)
	}
	return msg
}

// IsCoercionError returns true if err wraps a *CoercionError.
func IsCoercionError(err error) bool {
	var ce *CoercionError
	return errors.As(err, &ce)
}

func coercionErr(v any, want Kind, reason string) *CoercionError {
	return &CoercionError{Value: v, Expected: want, Reason: reason}
}

// Coerce converts v to the requested kind. KindAny accepts everything.
func Coerce(v Value, want Kind) (Value, error) {
	switch want {
	case KindAny:
		if v == nil {
			return AnyValue{}, nil
		}
		return v, nil
	case KindNumber:
		return ToNumber(v)
	case KindVec2:
		return ToVec2(v)
	case KindColor:
		return ToColor(v)
	case KindRect:
		return ToRect(v)
	default:
		return nil, coercionErr(Native(v), want, "unknown target kind")
	}
}

// ToNumber accepts a Number, a Go numeric, or a numeric string.
func ToNumber(v Value) (Number, error) {
	switch val := v.(type) {
	case Number:
		return val, nil
	case AnyValue:
		f, ok := nativeNumber(val.V)
		if !ok {
			return 0, coercionErr(val.V, KindNumber, "not numeric")
		}
		return Number(f), nil
	default:
		return 0, coercionErr(Native(v), KindNumber, "")
	}
}

// ToVec2 accepts a Vec2, a two element array, or an object with x and y.
func ToVec2(v Value) (Vec2, error) {
	switch val := v.(type) {
	case Vec2:
		return val, nil
	case AnyValue:
		switch raw := val.V.(type) {
		case []any:
			if len(raw) != 2 {
				return Vec2{}, coercionErr(raw, KindVec2, fmt.Sprintf("expected 2 elements, got %d", len(raw)))
			}
			x, okX := nativeNumber(raw[0])
			y, okY := nativeNumber(raw[1])
			if !okX || !okY {
				return Vec2{}, coercionErr(raw, KindVec2, "elements must be numeric")
			}
			return Vec2{X: x, Y: y}, nil
		case map[string]any:
			x, okX := nativeNumber(raw["x"])
			y, okY := nativeNumber(raw["y"])
			if !okX || !okY {
				return Vec2{}, coercionErr(raw, KindVec2, "object needs numeric x and y")
			}
			return Vec2{X: x, Y: y}, nil
		}
		return Vec2{}, coercionErr(val.V, KindVec2, "")
	default:
		return Vec2{}, coercionErr(Native(v), KindVec2, "")
	}
}

// ToColor accepts a Color or a four element array. Channels are clamped to [0,255].
func ToColor(v Value) (Color, error) {
	switch val := v.(type) {
	case Color:
		return NewColor(val[0], val[1], val[2], val[3]), nil
	case AnyValue:
		raw, ok := val.V.([]any)
		if !ok {
			return Color{}, coercionErr(val.V, KindColor, "")
		}
		if len(raw) != 4 {
			return Color{}, coercionErr(raw, KindColor, fmt.Sprintf("expected 4 elements, got %d", len(raw)))
		}
		var ch [4]float64
		for i, elem := range raw {
			f, ok := nativeNumber(elem)
			if !ok {
				return Color{}, coercionErr(raw, KindColor, fmt.Sprintf("channel %d is not numeric", i))
			}
			ch[i] = f
		}
		return NewColor(ch[0], ch[1], ch[2], ch[3]), nil
	default:
		return Color{}, coercionErr(Native(v), KindColor, "")
	}
}

// ToRect accepts a Rect or an object with left, top, width and height.
func ToRect(v Value) (Rect, error) {
	switch val := v.(type) {
	case Rect:
		return val, nil
	case AnyValue:
		raw, ok := val.V.(map[string]any)
		if !ok {
			return Rect{}, coercionErr(val.V, KindRect, "")
		}
		var out [4]float64
		for i, key := range []string{"left", "top", "width", "height"} {
			f, ok := nativeNumber(raw[key])
			if !ok {
				return Rect{}, coercionErr(raw, KindRect, fmt.Sprintf("missing numeric %q", key))
			}
			out[i] = f
		}
		return Rect{Left: out[0], Top: out[1], Width: out[2], Height: out[3]}, nil
	default:
		return Rect{}, coercionErr(Native(v), KindRect, "")
	}
}

// FromNative wraps decoded document data (YAML/JSON/CUE) and coerces it to kind.
func FromNative(raw any, kind Kind) (Value, error) {
	return Coerce(AnyValue{V: normalizeNative(raw)}, kind)
}

// normalizeNative rewrites map[any]any and integer types produced by decoders
// into the shapes the coercion functions expect.
func normalizeNative(raw any) any {
	switch val := raw.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[fmt.Sprint(k)] = normalizeNative(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalizeNative(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalizeNative(elem)
		}
		return out
	default:
		if f, ok := nativeNumber(raw); ok {
			if _, isString := raw.(string); !isString {
				return f
			}
		}
		return raw
	}
}

func nativeNumber(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case Number:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
