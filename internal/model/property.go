package model

// PropertyNode is the closed union of property shapes. Only *Property,
// *CompoundProperty and *PropertyGroup implement it.
type PropertyNode interface {
	PropertyID() string
	OwnerLayerID() string
	propertyNode() // sealed
}

// PropertyName identifies well-known properties. Hosts may use other names;
// unknown names classify as redraw-only in ActionsToPerform.
type PropertyName string

const (
	NamePositionX PropertyName = "PositionX"
	NamePositionY PropertyName = "PositionY"
	NamePosition  PropertyName = "Position"
	NameAnchorX   PropertyName = "AnchorX"
	NameAnchorY   PropertyName = "AnchorY"
	NameAnchor    PropertyName = "Anchor"
	NameScaleX    PropertyName = "ScaleX"
	NameScaleY    PropertyName = "ScaleY"
	NameScale     PropertyName = "Scale"
	NameRotation  PropertyName = "Rotation"
	NameOpacity   PropertyName = "Opacity"
	NameWidth     PropertyName = "Width"
	NameHeight    PropertyName = "Height"
	NameFill      PropertyName = "Fill"
	NameStroke    PropertyName = "StrokeColor"
	NameCount     PropertyName = "ArrayModifierCount"
	NameTransform PropertyName = "Transform"
)

// Property is a leaf value, optionally animated by a timeline.
type Property struct {
	ID         string
	LayerID    string
	Name       PropertyName
	ValueType  Kind
	Value      Value
	TimelineID string
}

func (p *Property) PropertyID() string   { return p.ID }
func (p *Property) OwnerLayerID() string { return p.LayerID }
func (*Property) propertyNode()          {}

// CompoundProperty pairs two numeric leaves into a vector. Unless Separated,
// the pair is read and written as one unit.
type CompoundProperty struct {
	ID         string
	LayerID    string
	Name       PropertyName
	Properties [2]string
	Separated  bool
}

func (c *CompoundProperty) PropertyID() string   { return c.ID }
func (c *CompoundProperty) OwnerLayerID() string { return c.LayerID }
func (*CompoundProperty) propertyNode()          {}

// GroupType distinguishes plain grouping from array modifiers.
type GroupType int

const (
	GroupPlain GroupType = iota
	GroupArrayModifier
)

func (t GroupType) String() string {
	if t == GroupArrayModifier {
		return "array_modifier"
	}
	return "group"
}

// PropertyGroup orders child properties. Array-modifier groups own a graph
// evaluated once per instance.
type PropertyGroup struct {
	ID         string
	LayerID    string
	Name       PropertyName
	Type       GroupType
	Properties []string
	GraphID    string
}

func (g *PropertyGroup) PropertyID() string   { return g.ID }
func (g *PropertyGroup) OwnerLayerID() string { return g.LayerID }
func (*PropertyGroup) propertyNode()          {}
