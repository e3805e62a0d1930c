package domain

import (
	"reflect"
	"slices"
)

// Named scale ranges. Width and height resolve against the mark's layout at
// render time; the others are palette/shape schemes.
const (
	RangeWidth    = "width"
	RangeHeight   = "height"
	RangeCategory = "category"
	RangeRamp     = "ramp"
	RangeSymbol   = "symbol"
)

// Scale maps a data domain onto a visual range.
type Scale struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Type         string    `json:"type" yaml:"type"`
	Domain       *DataRef  `json:"domain,omitempty" yaml:"domain,omitempty"`
	DomainValues []any     `json:"domainValues,omitempty" yaml:"domainValues,omitempty"`
	Range        string    `json:"range,omitempty" yaml:"range,omitempty"`
	RangeValues  []float64 `json:"rangeValues,omitempty" yaml:"rangeValues,omitempty"`
	Nice         bool      `json:"nice,omitempty" yaml:"nice,omitempty"`
	Zero         bool      `json:"zero,omitempty" yaml:"zero,omitempty"`
}

// Equivalent reports whether two scales would produce the same mapping, ignoring
// identity and name.
func (s *Scale) Equivalent(o *Scale) bool {
	if s.Type != o.Type || s.Range != o.Range || !slices.Equal(s.RangeValues, o.RangeValues) {
		return false
	}
	if s.Nice != o.Nice || s.Zero != o.Zero {
		return false
	}
	if (s.Domain == nil) != (o.Domain == nil) {
		return false
	}
	if s.Domain != nil && *s.Domain != *o.Domain {
		return false
	}
	if len(s.DomainValues) == 0 && len(o.DomainValues) == 0 {
		return true
	}
	// Decoded documents may hold maps or slices here, which == cannot compare.
	return reflect.DeepEqual(s.DomainValues, o.DomainValues)
}

// Clone returns a deep copy of the scale.
func (s *Scale) Clone() *Scale {
	if s == nil {
		return nil
	}
	out := *s
	if s.Domain != nil {
		d := *s.Domain
		out.Domain = &d
	}
	out.DomainValues = slices.Clone(s.DomainValues)
	out.RangeValues = slices.Clone(s.RangeValues)
	return &out
}

// GuideKind distinguishes axes from legends.
type GuideKind string

// Guide kinds.
const (
	GuideAxis   GuideKind = "axis"
	GuideLegend GuideKind = "legend"
)

// Axis orientations.
const (
	OrientBottom = "bottom"
	OrientTop    = "top"
	OrientLeft   = "left"
	OrientRight  = "right"
)

// OppositeOrient returns the orientation on the other side of the plot.
func OppositeOrient(orient string) string {
	switch orient {
	case OrientBottom:
		return OrientTop
	case OrientTop:
		return OrientBottom
	case OrientLeft:
		return OrientRight
	case OrientRight:
		return OrientLeft
	}
	return orient
}

// Guide is an axis or legend visualizing one scale.
type Guide struct {
	ID       string    `json:"id" yaml:"id"`
	Kind     GuideKind `json:"type" yaml:"type"`
	Scale    string    `json:"scale" yaml:"scale"`
	Orient   string    `json:"orient,omitempty" yaml:"orient,omitempty"`
	Property string    `json:"property,omitempty" yaml:"property,omitempty"`
	Title    string    `json:"title,omitempty" yaml:"title,omitempty"`
}
