package expr

import (
	"errors"
	"math"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zclconf/go-cty/cty/gocty"
)

var vec2Type = cty.Object(map[string]cty.Type{"x": cty.Number, "y": cty.Number})

var errNotANumber = errors.New("result is not a number")

// functions is the fixed function table available to every expression.
var functions = map[string]function.Function{
	"abs":    stdlib.AbsoluteFunc,
	"ceil":   stdlib.CeilFunc,
	"floor":  stdlib.FloorFunc,
	"log":    stdlib.LogFunc,
	"max":    stdlib.MaxFunc,
	"min":    stdlib.MinFunc,
	"pow":    stdlib.PowFunc,
	"signum": stdlib.SignumFunc,

	"sin":   unaryMath(math.Sin),
	"cos":   unaryMath(math.Cos),
	"tan":   unaryMath(math.Tan),
	"asin":  unaryMath(math.Asin),
	"acos":  unaryMath(math.Acos),
	"atan":  unaryMath(math.Atan),
	"sqrt":  unaryMath(math.Sqrt),
	"round": unaryMath(math.Round),
	"atan2": binaryMath(math.Atan2),

	"pi": function.New(&function.Spec{
		Type: function.StaticReturnType(cty.Number),
		Impl: func([]cty.Value, cty.Type) (cty.Value, error) {
			return cty.NumberFloatVal(math.Pi), nil
		},
	}),
	"clamp":     clampFunc,
	"lerp":      lerpFunc,
	"vec2":      vec2Func,
	"length":    lengthFunc,
	"normalize": normalizeFunc,
	"dot":       dotFunc,
}

// FunctionNames returns the names callable from expressions.
func FunctionNames() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	return names
}

func numberParams(names ...string) []function.Parameter {
	params := make([]function.Parameter, len(names))
	for i, n := range names {
		params[i] = function.Parameter{Name: n, Type: cty.Number}
	}
	return params
}

func floats(args []cty.Value) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		if err := gocty.FromCtyValue(a, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func numberResult(f float64) (cty.Value, error) {
	if math.IsNaN(f) {
		return cty.NilVal, errNotANumber
	}
	return cty.NumberFloatVal(f), nil
}

func unaryMath(fn func(float64) float64) function.Function {
	return function.New(&function.Spec{
		Params: numberParams("x"),
		Type:   function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			xs, err := floats(args)
			if err != nil {
				return cty.NilVal, err
			}
			return numberResult(fn(xs[0]))
		},
	})
}

func binaryMath(fn func(float64, float64) float64) function.Function {
	return function.New(&function.Spec{
		Params: numberParams("a", "b"),
		Type:   function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			xs, err := floats(args)
			if err != nil {
				return cty.NilVal, err
			}
			return numberResult(fn(xs[0], xs[1]))
		},
	})
}

var clampFunc = function.New(&function.Spec{
	Params: numberParams("value", "min", "max"),
	Type:   function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		xs, err := floats(args)
		if err != nil {
			return cty.NilVal, err
		}
		return numberResult(math.Min(math.Max(xs[0], xs[1]), xs[2]))
	},
})

var lerpFunc = function.New(&function.Spec{
	Params: numberParams("a", "b", "t"),
	Type:   function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		xs, err := floats(args)
		if err != nil {
			return cty.NilVal, err
		}
		return numberResult(xs[0] + (xs[1]-xs[0])*xs[2])
	},
})

var vec2Func = function.New(&function.Spec{
	Params: numberParams("x", "y"),
	Type:   function.StaticReturnType(vec2Type),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.ObjectVal(map[string]cty.Value{"x": args[0], "y": args[1]}), nil
	},
})

func vecParams(names ...string) []function.Parameter {
	params := make([]function.Parameter, len(names))
	for i, n := range names {
		params[i] = function.Parameter{Name: n, Type: vec2Type}
	}
	return params
}

func vecComponents(v cty.Value) (x, y float64, err error) {
	if err = gocty.FromCtyValue(v.GetAttr("x"), &x); err != nil {
		return 0, 0, err
	}
	if err = gocty.FromCtyValue(v.GetAttr("y"), &y); err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

var lengthFunc = function.New(&function.Spec{
	Params: vecParams("v"),
	Type:   function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		x, y, err := vecComponents(args[0])
		if err != nil {
			return cty.NilVal, err
		}
		return numberResult(math.Hypot(x, y))
	},
})

var normalizeFunc = function.New(&function.Spec{
	Params: vecParams("v"),
	Type:   function.StaticReturnType(vec2Type),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		x, y, err := vecComponents(args[0])
		if err != nil {
			return cty.NilVal, err
		}
		l := math.Hypot(x, y)
		if l == 0 {
			return args[0], nil
		}
		return cty.ObjectVal(map[string]cty.Value{
			"x": cty.NumberFloatVal(x / l),
			"y": cty.NumberFloatVal(y / l),
		}), nil
	},
})

var dotFunc = function.New(&function.Spec{
	Params: vecParams("a", "b"),
	Type:   function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		ax, ay, err := vecComponents(args[0])
		if err != nil {
			return cty.NilVal, err
		}
		bx, by, err := vecComponents(args[1])
		if err != nil {
			return cty.NilVal, err
		}
		return numberResult(ax*bx + ay*by)
	},
})
