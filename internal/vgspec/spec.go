// Package vgspec describes the low-level rendering spec produced by the compiler:
// named data sets with transforms, scales, axes, legends and marks whose
// encodings reference them by name.
package vgspec

// Well-known data set names emitted by the compiler.
const (
	DataSource  = "source"
	DataSummary = "summary"
)

// Spec is a compiled rendering spec.
type Spec struct {
	Width   int      `json:"width"`
	Height  int      `json:"height"`
	Data    []Data   `json:"data"`
	Scales  []Scale  `json:"scales,omitempty"`
	Axes    []Axis   `json:"axes,omitempty"`
	Legends []Legend `json:"legends,omitempty"`
	Marks   []Mark   `json:"marks"`
}

// Data is a named data set. Source names the upstream data set for derived sets.
type Data struct {
	Name      string      `json:"name"`
	Source    string      `json:"source,omitempty"`
	Values    []any       `json:"values,omitempty"`
	Transform []Transform `json:"transform,omitempty"`
}

// Transform is a data transform step.
type Transform struct {
	Type    string   `json:"type"`
	Field   string   `json:"field,omitempty"`
	MaxBins int      `json:"maxbins,omitempty"`
	Groupby []string `json:"groupby,omitempty"`
	Fields  []string `json:"fields,omitempty"`
	Ops     []string `json:"ops,omitempty"`
	As      []string `json:"as,omitempty"`
}

// DataRef is a data-driven scale domain.
type DataRef struct {
	Data  string `json:"data"`
	Field string `json:"field"`
}

// Scale is a compiled scale. Range is either a scheme name in RangeName or an
// explicit numeric pair in RangeValues.
type Scale struct {
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Domain      DataRef   `json:"domain"`
	RangeName   string    `json:"rangeName,omitempty"`
	RangeValues []float64 `json:"range,omitempty"`
	Nice        bool      `json:"nice,omitempty"`
	Zero        bool      `json:"zero,omitempty"`
}

// Axis is a compiled axis.
type Axis struct {
	Scale  string `json:"scale"`
	Orient string `json:"orient"`
	Title  string `json:"title,omitempty"`
}

// Legend is a compiled legend. Property names the visual property whose scale
// the legend explains (fill, stroke, size, shape or opacity).
type Legend struct {
	Property string `json:"property"`
	Scale    string `json:"scale"`
	Title    string `json:"title,omitempty"`
}

// ValueRef is one encoded property of a mark.
type ValueRef struct {
	Scale string `json:"scale,omitempty"`
	Field string `json:"field,omitempty"`
	Value any    `json:"value,omitempty"`
	Band  bool   `json:"band,omitempty"`
}

// From names the data set a mark draws from.
type From struct {
	Data string `json:"data"`
}

// Mark is a compiled mark.
type Mark struct {
	Name   string              `json:"name"`
	Type   string              `json:"type"`
	From   From                `json:"from"`
	Encode map[string]ValueRef `json:"encode"`
}

// FindData returns the data set with the given name.
func (s *Spec) FindData(name string) (*Data, bool) {
	for i := range s.Data {
		if s.Data[i].Name == name {
			return &s.Data[i], true
		}
	}
	return nil, false
}

// FindScale returns the scale with the given name.
func (s *Spec) FindScale(name string) (*Scale, bool) {
	for i := range s.Scales {
		if s.Scales[i].Name == name {
			return &s.Scales[i], true
		}
	}
	return nil, false
}
