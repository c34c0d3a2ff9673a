package loader

// Document is the on-disk form of a snapshot. Properties and graphs nest
// under their owners; Build flattens them into the id-keyed maps of
// model.Snapshot.
type Document struct {
	Compositions []CompositionDoc `json:"compositions" yaml:"compositions"`
}

// CompositionDoc describes one composition and its layers in stacking order.
type CompositionDoc struct {
	ID     string     `json:"id" yaml:"id"`
	Name   string     `json:"name,omitempty" yaml:"name,omitempty"`
	Width  float64    `json:"width" yaml:"width"`
	Height float64    `json:"height" yaml:"height"`
	Length int        `json:"length" yaml:"length"`
	Frame  int        `json:"frame,omitempty" yaml:"frame,omitempty"`
	Layers []LayerDoc `json:"layers,omitempty" yaml:"layers,omitempty"`
}

// LayerDoc describes a layer. Composition names the nested composition of a
// composition layer.
type LayerDoc struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name,omitempty" yaml:"name,omitempty"`
	Type        string        `json:"type,omitempty" yaml:"type,omitempty"`
	Parent      string        `json:"parent,omitempty" yaml:"parent,omitempty"`
	Index       int           `json:"index,omitempty" yaml:"index,omitempty"`
	Length      int           `json:"length,omitempty" yaml:"length,omitempty"`
	Composition string        `json:"composition,omitempty" yaml:"composition,omitempty"`
	Properties  []PropertyDoc `json:"properties,omitempty" yaml:"properties,omitempty"`
	Graph       *GraphDoc     `json:"graph,omitempty" yaml:"graph,omitempty"`
}

// PropertyDoc is a leaf, a compound or a group, told apart by which fields
// are set:
//   - Compound holds exactly two leaves
//   - Group ("group" or "array_modifier") or nested Properties make a group
//   - anything else is a leaf with Type, Value and optional Keyframes
type PropertyDoc struct {
	ID         string        `json:"id" yaml:"id"`
	Name       string        `json:"name" yaml:"name"`
	Type       string        `json:"type,omitempty" yaml:"type,omitempty"`
	Value      any           `json:"value,omitempty" yaml:"value,omitempty"`
	Keyframes  []KeyframeDoc `json:"keyframes,omitempty" yaml:"keyframes,omitempty"`
	Compound   []PropertyDoc `json:"compound,omitempty" yaml:"compound,omitempty"`
	Separated  bool          `json:"separated,omitempty" yaml:"separated,omitempty"`
	Group      string        `json:"group,omitempty" yaml:"group,omitempty"`
	Properties []PropertyDoc `json:"properties,omitempty" yaml:"properties,omitempty"`
	Graph      *GraphDoc     `json:"graph,omitempty" yaml:"graph,omitempty"`
}

// KeyframeDoc pins a value at a frame relative to the layer start.
type KeyframeDoc struct {
	ID            string  `json:"id,omitempty" yaml:"id,omitempty"`
	Index         int     `json:"index" yaml:"index"`
	Value         float64 `json:"value" yaml:"value"`
	Interpolation string  `json:"interpolation,omitempty" yaml:"interpolation,omitempty"`
}

// GraphDoc is a flow graph. ID defaults to the owner id plus ".graph".
type GraphDoc struct {
	ID    string    `json:"id,omitempty" yaml:"id,omitempty"`
	Nodes []NodeDoc `json:"nodes" yaml:"nodes"`
}

// NodeDoc describes one flow node. Ports come from the node type; Inputs
// only overrides them by name.
type NodeDoc struct {
	ID         string              `json:"id" yaml:"id"`
	Type       string              `json:"type" yaml:"type"`
	Value      any                 `json:"value,omitempty" yaml:"value,omitempty"`
	Expression string              `json:"expression,omitempty" yaml:"expression,omitempty"`
	Property   string              `json:"property,omitempty" yaml:"property,omitempty"`
	Inputs     map[string]InputDoc `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs    []string            `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// InputDoc is either a literal Value or a connection to Node's Output, which
// is an output index or an output name (default 0).
type InputDoc struct {
	Value  any    `json:"value,omitempty" yaml:"value,omitempty"`
	Node   string `json:"node,omitempty" yaml:"node,omitempty"`
	Output any    `json:"output,omitempty" yaml:"output,omitempty"`
}
