package model

import "fmt"

// Snapshot is the read-only view of a project that one evaluation pass works
// against. Hosts mutate it only through structural edits or value edits that
// they follow with the matching notification to the engine.
type Snapshot struct {
	Compositions map[string]*Composition
	Layers       map[string]*Layer
	Properties   map[string]PropertyNode
	Timelines    map[string]*Timeline
	Graphs       map[string]*FlowGraph
	Nodes        map[string]*FlowNode
}

// NewSnapshot returns an empty snapshot with all maps allocated.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Compositions: make(map[string]*Composition),
		Layers:       make(map[string]*Layer),
		Properties:   make(map[string]PropertyNode),
		Timelines:    make(map[string]*Timeline),
		Graphs:       make(map[string]*FlowGraph),
		Nodes:        make(map[string]*FlowNode),
	}
}

// Composition is a timeline container of layers.
type Composition struct {
	ID         string
	Name       string
	Width      float64
	Height     float64
	Length     int // frame count
	FrameIndex int
	Layers     []string
}

// LayerType is the closed set of layer kinds.
type LayerType int

const (
	LayerShape LayerType = iota
	LayerComposition
	LayerNull
)

func (t LayerType) String() string {
	switch t {
	case LayerShape:
		return "shape"
	case LayerComposition:
		return "composition"
	case LayerNull:
		return "null"
	default:
		return "unknown"
	}
}

// ParseLayerType converts a wire name into a LayerType.
func ParseLayerType(s string) (LayerType, error) {
	switch s {
	case "shape", "":
		return LayerShape, nil
	case "composition":
		return LayerComposition, nil
	case "null":
		return LayerNull, nil
	default:
		return LayerShape, fmt.Errorf("unknown layer type %q", s)
	}
}

// Layer belongs to one composition. ParentLayerID forms the transform
// inheritance tree. Composition layers reference a nested composition whose
// time starts at Index.
type Layer struct {
	ID                  string
	Name                string
	CompositionID       string
	ParentLayerID       string
	Type                LayerType
	Properties          []string
	GraphID             string
	Index               int
	Length              int
	NestedCompositionID string
}

// Timeline holds the keyframes animating one numeric property.
type Timeline struct {
	ID         string
	PropertyID string
	Keyframes  []Keyframe
}

// Interpolation selects how a keyframe blends towards the next one.
type Interpolation int

const (
	InterpolationLinear Interpolation = iota
	InterpolationHold
	InterpolationEase
)

func (i Interpolation) String() string {
	switch i {
	case InterpolationLinear:
		return "linear"
	case InterpolationHold:
		return "hold"
	case InterpolationEase:
		return "ease"
	default:
		return "unknown"
	}
}

// ParseInterpolation converts a wire name into an Interpolation.
func ParseInterpolation(s string) (Interpolation, error) {
	switch s {
	case "linear", "":
		return InterpolationLinear, nil
	case "hold":
		return InterpolationHold, nil
	case "ease":
		return InterpolationEase, nil
	default:
		return InterpolationLinear, fmt.Errorf("unknown interpolation %q", s)
	}
}

// Keyframe is a value pinned at a frame index relative to the layer start.
type Keyframe struct {
	ID            string
	Index         int
	Value         float64
	Interpolation Interpolation
}

// OwnerKind says what a flow graph is attached to.
type OwnerKind int

const (
	OwnerLayer OwnerKind = iota
	OwnerArrayModifier
)

func (k OwnerKind) String() string {
	if k == OwnerArrayModifier {
		return "array_modifier"
	}
	return "layer"
}

// FlowGraph is the node graph attached to a layer or an array-modifier group.
type FlowGraph struct {
	ID        string
	OwnerID   string
	OwnerKind OwnerKind
	Nodes     []string
}

// OutputPointer addresses one output port of another node in the same graph.
type OutputPointer struct {
	NodeID      string
	OutputIndex int
}

// NodeInput is either a literal Value or a Pointer to another node's output.
type NodeInput struct {
	Name    string
	Type    Kind
	Value   Value
	Pointer *OutputPointer
}

// NodeOutput declares one output port.
type NodeOutput struct {
	Name string
	Type Kind
}

// NodeState carries the per-type configuration of a node. Literal nodes use
// Value, expression nodes use Expression, property nodes use LayerID and
// PropertyID.
type NodeState struct {
	Value      Value
	Expression string
	LayerID    string
	PropertyID string
}

// FlowNode is one node of a flow graph.
type FlowNode struct {
	ID      string
	GraphID string
	Type    NodeType
	Inputs  []NodeInput
	Outputs []NodeOutput
	State   NodeState
}

// InputIndex returns the index of the named input or -1.
func (n *FlowNode) InputIndex(name string) int {
	for i, in := range n.Inputs {
		if in.Name == name {
			return i
		}
	}
	return -1
}
