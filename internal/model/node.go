package model

import "fmt"

// NodeType is the closed set of flow node types. Adding a value here must be
// matched by a case in nodes.Evaluator.Compute and nodes.Definition; the
// nodes package tests iterate AllNodeTypes to enforce it.
type NodeType int

const (
	NodeNumInput NodeType = iota
	NodeVec2Input
	NodeColorInput
	NodeRectInput

	NodeNumAdd
	NodeNumSubtract
	NodeNumMultiply
	NodeNumDivide
	NodeNumClamp
	NodeNumLerp
	NodeVec2Add
	NodeVec2Scale
	NodeVec2Lerp
	NodeVec2Compose
	NodeVec2Decompose
	NodeColorCompose
	NodeColorDecompose
	NodeRectCompose
	NodeRectDecompose

	NodeExpr
	NodeComposition
	NodePropertyInput
	NodePropertyOutput
	NodeArrayModifierIndex

	nodeTypeCount
)

var nodeTypeNames = [nodeTypeCount]string{
	NodeNumInput:           "num_input",
	NodeVec2Input:          "vec2_input",
	NodeColorInput:         "color_input",
	NodeRectInput:          "rect_input",
	NodeNumAdd:             "num_add",
	NodeNumSubtract:        "num_subtract",
	NodeNumMultiply:        "num_multiply",
	NodeNumDivide:          "num_divide",
	NodeNumClamp:           "num_clamp",
	NodeNumLerp:            "num_lerp",
	NodeVec2Add:            "vec2_add",
	NodeVec2Scale:          "vec2_scale",
	NodeVec2Lerp:           "vec2_lerp",
	NodeVec2Compose:        "vec2_compose",
	NodeVec2Decompose:      "vec2_decompose",
	NodeColorCompose:       "color_compose",
	NodeColorDecompose:     "color_decompose",
	NodeRectCompose:        "rect_compose",
	NodeRectDecompose:      "rect_decompose",
	NodeExpr:               "expr",
	NodeComposition:        "composition",
	NodePropertyInput:      "property_input",
	NodePropertyOutput:     "property_output",
	NodeArrayModifierIndex: "array_modifier_index",
}

// String returns the wire name of the node type.
func (t NodeType) String() string {
	if t >= 0 && t < nodeTypeCount {
		return nodeTypeNames[t]
	}
	return fmt.Sprintf("node_type(%d)", int(t))
}

// ParseNodeType converts a wire name into a NodeType.
func ParseNodeType(s string) (NodeType, error) {
	for i, name := range nodeTypeNames {
		if name == s {
			return NodeType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown node type %q", s)
}

// AllNodeTypes lists every node type in declaration order.
func AllNodeTypes() []NodeType {
	out := make([]NodeType, nodeTypeCount)
	for i := range out {
		out[i] = NodeType(i)
	}
	return out
}
