package expr

import (
	"fmt"
	"math"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/roach88/animflow/internal/model"
)

var rectAttrs = []string{"left", "top", "width", "height"}

// ToCty converts a model value into the cty value an expression sees.
// Vec2 and Rect become objects, Color a four-element tuple.
func ToCty(v model.Value) (cty.Value, error) {
	switch x := v.(type) {
	case model.Number:
		return numberVal(float64(x))
	case model.Vec2:
		return objectOf(map[string]float64{"x": x.X, "y": x.Y})
	case model.Color:
		elems := make([]cty.Value, 4)
		for i, c := range x {
			n, err := numberVal(c)
			if err != nil {
				return cty.NilVal, err
			}
			elems[i] = n
		}
		return cty.TupleVal(elems), nil
	case model.Rect:
		return objectOf(map[string]float64{"left": x.Left, "top": x.Top, "width": x.Width, "height": x.Height})
	case model.AnyValue:
		return nativeToCty(x.V)
	case nil:
		return cty.NilVal, fmt.Errorf("nil value")
	}
	return cty.NilVal, fmt.Errorf("unsupported value %T", v)
}

func numberVal(f float64) (cty.Value, error) {
	if math.IsNaN(f) {
		return cty.NilVal, errNotANumber
	}
	return cty.NumberFloatVal(f), nil
}

func objectOf(fields map[string]float64) (cty.Value, error) {
	attrs := make(map[string]cty.Value, len(fields))
	for k, f := range fields {
		n, err := numberVal(f)
		if err != nil {
			return cty.NilVal, fmt.Errorf("%s: %w", k, err)
		}
		attrs[k] = n
	}
	return cty.ObjectVal(attrs), nil
}

func nativeToCty(raw any) (cty.Value, error) {
	switch x := raw.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case bool:
		return cty.BoolVal(x), nil
	case string:
		return cty.StringVal(x), nil
	case float64:
		return numberVal(x)
	case int:
		return cty.NumberIntVal(int64(x)), nil
	case int64:
		return cty.NumberIntVal(x), nil
	case []any:
		if len(x) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(x))
		for i, e := range x {
			v, err := nativeToCty(e)
			if err != nil {
				return cty.NilVal, err
			}
			elems[i] = v
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		if len(x) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(x))
		for k, e := range x {
			v, err := nativeToCty(e)
			if err != nil {
				return cty.NilVal, err
			}
			attrs[k] = v
		}
		return cty.ObjectVal(attrs), nil
	case model.Value:
		return ToCty(x)
	}
	return cty.NilVal, fmt.Errorf("unsupported native value %T", raw)
}

// FromCty converts an expression result back to a model value. Objects with
// exactly x and y become Vec2, the four rect fields become Rect, and a tuple
// or list of four numbers becomes Color. Anything else is carried as Any.
func FromCty(v cty.Value) (model.Value, error) {
	if v.IsNull() || !v.IsWhollyKnown() {
		return nil, fmt.Errorf("value is null or unknown")
	}
	ty := v.Type()
	switch {
	case ty.Equals(cty.Number):
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, err
		}
		return model.Number(f), nil
	case ty.IsObjectType():
		if fs, ok := numberAttrs(v, "x", "y"); ok {
			return model.Vec2{X: fs[0], Y: fs[1]}, nil
		}
		if fs, ok := numberAttrs(v, rectAttrs...); ok {
			return model.Rect{Left: fs[0], Top: fs[1], Width: fs[2], Height: fs[3]}, nil
		}
	case ty.IsTupleType() || ty.IsListType():
		if v.LengthInt() == 4 {
			var c [4]float64
			ok := true
			for i, e := range v.AsValueSlice() {
				if !e.Type().Equals(cty.Number) || gocty.FromCtyValue(e, &c[i]) != nil {
					ok = false
					break
				}
			}
			if ok {
				return model.NewColor(c[0], c[1], c[2], c[3]), nil
			}
		}
	}
	native, err := ctyToNative(v)
	if err != nil {
		return nil, err
	}
	return model.AnyValue{V: native}, nil
}

// numberAttrs reports the named number attributes when the object has
// exactly those attributes.
func numberAttrs(v cty.Value, names ...string) ([]float64, bool) {
	attrs := v.Type().AttributeTypes()
	if len(attrs) != len(names) {
		return nil, false
	}
	out := make([]float64, len(names))
	for i, name := range names {
		at, ok := attrs[name]
		if !ok || !at.Equals(cty.Number) {
			return nil, false
		}
		if err := gocty.FromCtyValue(v.GetAttr(name), &out[i]); err != nil {
			return nil, false
		}
	}
	return out, true
}

func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty.Equals(cty.Number):
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, err
		}
		return f, nil
	case ty.Equals(cty.String):
		return v.AsString(), nil
	case ty.Equals(cty.Bool):
		return v.True(), nil
	case ty.IsObjectType() || ty.IsMapType():
		m := v.AsValueMap()
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(m))
		for _, k := range keys {
			n, err := ctyToNative(m[k])
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		elems := v.AsValueSlice()
		out := make([]any, len(elems))
		for i, e := range elems {
			n, err := ctyToNative(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported expression result type %s", ty.FriendlyName())
}
