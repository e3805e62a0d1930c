package domain

import (
	"maps"

	"markbind/internal/vlspec"
)

// MarkType identifies the kind of graphical primitive a mark draws.
type MarkType string

// Supported mark types.
const (
	MarkRect   MarkType = "rect"
	MarkSymbol MarkType = "symbol"
	MarkText   MarkType = "text"
	MarkLine   MarkType = "line"
	MarkArea   MarkType = "area"
)

// Valid reports whether t is one of the supported mark types.
func (t MarkType) Valid() bool {
	switch t {
	case MarkRect, MarkSymbol, MarkText, MarkLine, MarkArea:
		return true
	}
	return false
}

// DataRef points at a dataset, optionally narrowed to one field.
type DataRef struct {
	Data  string `json:"data" yaml:"data"`
	Field string `json:"field,omitempty" yaml:"field,omitempty"`
}

// PropValue is the value of one visual property on a mark. A bound property
// carries a scale and/or field; an unbound one carries a literal Value.
type PropValue struct {
	Scale string `json:"scale,omitempty" yaml:"scale,omitempty"`
	Field string `json:"field,omitempty" yaml:"field,omitempty"`
	Value any    `json:"value,omitempty" yaml:"value,omitempty"`
	Band  bool   `json:"band,omitempty" yaml:"band,omitempty"`
}

// IsBound reports whether the property is driven by data.
func (v PropValue) IsBound() bool {
	return v.Scale != "" || v.Field != ""
}

// Mark is a graphical primitive in the document.
//
// UnitSpec is absent until the first binding on the mark and is replaced
// wholesale by every successful binding afterwards.
type Mark struct {
	ID         string               `json:"id" yaml:"id"`
	Name       string               `json:"name" yaml:"name"`
	Type       MarkType             `json:"type" yaml:"type"`
	From       *DataRef             `json:"from,omitempty" yaml:"from,omitempty"`
	Properties map[string]PropValue `json:"properties,omitempty" yaml:"properties,omitempty"`
	UnitSpec   *vlspec.UnitSpec     `json:"unitSpec,omitempty" yaml:"unitSpec,omitempty"`
}

// Clone returns a deep copy of the mark. The unit spec is cloned with
// vlspec.UnitSpec.Clone, so the identifier map stays shared.
func (m *Mark) Clone() *Mark {
	if m == nil {
		return nil
	}
	out := *m
	if m.From != nil {
		from := *m.From
		out.From = &from
	}
	out.Properties = maps.Clone(m.Properties)
	out.UnitSpec = m.UnitSpec.Clone()
	return &out
}

// SetProperty binds or overwrites a single visual property.
func (m *Mark) SetProperty(name string, v PropValue) {
	if m.Properties == nil {
		m.Properties = map[string]PropValue{}
	}
	m.Properties[name] = v
}
