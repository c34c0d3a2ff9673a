package nodes

import (
	"github.com/roach88/animflow/internal/expr"
	"github.com/roach88/animflow/internal/model"
)

// Definition lists the default ports of a node type. Types whose ports depend
// on state (expr, property_input, property_output) have no fixed ports; use
// Ports to derive them.
type Definition struct {
	Inputs  []model.NodeInput
	Outputs []model.NodeOutput
}

func in(name string, k model.Kind) model.NodeInput {
	return model.NodeInput{Name: name, Type: k, Value: model.Zero(k)}
}

func out(name string, k model.Kind) model.NodeOutput {
	return model.NodeOutput{Name: name, Type: k}
}

const (
	num  = model.KindNumber
	vec2 = model.KindVec2
	col  = model.KindColor
	rect = model.KindRect
)

// DefinitionOf returns the default ports of t.
func DefinitionOf(t model.NodeType) Definition {
	switch t {
	case model.NodeNumInput:
		return Definition{Outputs: []model.NodeOutput{out("value", num)}}
	case model.NodeVec2Input:
		return Definition{Outputs: []model.NodeOutput{out("value", vec2)}}
	case model.NodeColorInput:
		return Definition{Outputs: []model.NodeOutput{out("value", col)}}
	case model.NodeRectInput:
		return Definition{Outputs: []model.NodeOutput{out("value", rect)}}

	case model.NodeNumAdd, model.NodeNumSubtract, model.NodeNumMultiply, model.NodeNumDivide:
		return Definition{
			Inputs:  []model.NodeInput{in("a", num), in("b", num)},
			Outputs: []model.NodeOutput{out("result", num)},
		}
	case model.NodeNumClamp:
		return Definition{
			Inputs:  []model.NodeInput{in("value", num), in("min", num), in("max", num)},
			Outputs: []model.NodeOutput{out("result", num)},
		}
	case model.NodeNumLerp:
		return Definition{
			Inputs:  []model.NodeInput{in("a", num), in("b", num), in("t", num)},
			Outputs: []model.NodeOutput{out("result", num)},
		}
	case model.NodeVec2Add:
		return Definition{
			Inputs:  []model.NodeInput{in("a", vec2), in("b", vec2)},
			Outputs: []model.NodeOutput{out("result", vec2)},
		}
	case model.NodeVec2Scale:
		return Definition{
			Inputs:  []model.NodeInput{in("v", vec2), in("s", num)},
			Outputs: []model.NodeOutput{out("result", vec2)},
		}
	case model.NodeVec2Lerp:
		return Definition{
			Inputs:  []model.NodeInput{in("a", vec2), in("b", vec2), in("t", num)},
			Outputs: []model.NodeOutput{out("result", vec2)},
		}
	case model.NodeVec2Compose:
		return Definition{
			Inputs:  []model.NodeInput{in("x", num), in("y", num)},
			Outputs: []model.NodeOutput{out("vec2", vec2)},
		}
	case model.NodeVec2Decompose:
		return Definition{
			Inputs:  []model.NodeInput{in("vec2", vec2)},
			Outputs: []model.NodeOutput{out("x", num), out("y", num)},
		}
	case model.NodeColorCompose:
		return Definition{
			Inputs:  []model.NodeInput{in("r", num), in("g", num), in("b", num), in("a", num)},
			Outputs: []model.NodeOutput{out("color", col)},
		}
	case model.NodeColorDecompose:
		return Definition{
			Inputs:  []model.NodeInput{in("color", col)},
			Outputs: []model.NodeOutput{out("r", num), out("g", num), out("b", num), out("a", num)},
		}
	case model.NodeRectCompose:
		return Definition{
			Inputs:  []model.NodeInput{in("left", num), in("top", num), in("width", num), in("height", num)},
			Outputs: []model.NodeOutput{out("rect", rect)},
		}
	case model.NodeRectDecompose:
		return Definition{
			Inputs:  []model.NodeInput{in("rect", rect)},
			Outputs: []model.NodeOutput{out("left", num), out("top", num), out("width", num), out("height", num)},
		}

	case model.NodeExpr, model.NodePropertyInput, model.NodePropertyOutput:
		return Definition{}
	case model.NodeComposition:
		return Definition{Outputs: []model.NodeOutput{out("width", num), out("height", num), out("frameIndex", num)}}
	case model.NodeArrayModifierIndex:
		return Definition{Outputs: []model.NodeOutput{out("index", num)}}
	}
	return Definition{}
}

// Ports derives the ports of a node of type t. For property nodes they follow
// the shape of the referenced property; for expr nodes they follow the
// program's free and assigned variables. Other types use DefinitionOf.
func Ports(snap *model.Snapshot, t model.NodeType, state model.NodeState) (Definition, error) {
	switch t {
	case model.NodePropertyInput, model.NodePropertyOutput:
		shape, err := snap.Shape(state.PropertyID)
		if err != nil {
			return Definition{}, &UnknownReferenceError{PropertyID: state.PropertyID, Err: err}
		}
		var d Definition
		for _, slot := range shape {
			d.Outputs = append(d.Outputs, out(slot.Name, slot.Kind))
			if t == model.NodePropertyOutput {
				d.Inputs = append(d.Inputs, model.NodeInput{Name: slot.Name, Type: slot.Kind})
			}
		}
		return d, nil
	case model.NodeExpr:
		p, err := expr.Compile(state.Expression)
		if err != nil {
			return Definition{}, err
		}
		var d Definition
		for _, name := range p.Inputs() {
			d.Inputs = append(d.Inputs, model.NodeInput{Name: name, Type: model.KindAny})
		}
		for _, name := range p.Outputs() {
			d.Outputs = append(d.Outputs, out(name, model.KindAny))
		}
		return d, nil
	}
	return DefinitionOf(t), nil
}
