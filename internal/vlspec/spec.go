// Package vlspec holds the high-level unit spec synthesized for a single mark:
// a mark tag, embedded data, per-channel encodings and layout config, plus the
// identifier map that ties compiled elements to document primitives.
package vlspec

import (
	"maps"
	"slices"
)

// Encoding channels understood by the compiler.
const (
	ChannelX       = "x"
	ChannelY       = "y"
	ChannelX2      = "x2"
	ChannelY2      = "y2"
	ChannelColor   = "color"
	ChannelSize    = "size"
	ChannelShape   = "shape"
	ChannelOpacity = "opacity"
	ChannelText    = "text"
	ChannelDetail  = "detail"
)

// ChannelDef binds one encoding channel to a data field.
type ChannelDef struct {
	Type      string `json:"type" yaml:"type"`
	Field     string `json:"field" yaml:"field"`
	Aggregate string `json:"aggregate,omitempty" yaml:"aggregate,omitempty"`
	Bin       bool   `json:"bin,omitempty" yaml:"bin,omitempty"`
}

// Data is the spec's data block. Values is filled in only for compilation.
type Data struct {
	Values []map[string]any `json:"values,omitempty" yaml:"values,omitempty"`
}

// CellConfig fixes the layout dimensions the compiler sizes ranges against.
type CellConfig struct {
	Width  int `json:"width,omitempty" yaml:"width,omitempty"`
	Height int `json:"height,omitempty" yaml:"height,omitempty"`
}

// MarkConfig holds mark-level config flags.
type MarkConfig struct {
	Filled bool `json:"filled,omitempty" yaml:"filled,omitempty"`
}

// Config is the spec's config block.
type Config struct {
	Cell CellConfig `json:"cell,omitzero" yaml:"cell,omitempty"`
	Mark MarkConfig `json:"mark,omitzero" yaml:"mark,omitempty"`
}

// UnitSpec is the declarative spec for one mark.
type UnitSpec struct {
	Mark     string                `json:"mark" yaml:"mark"`
	Data     Data                  `json:"data,omitzero" yaml:"data,omitempty"`
	Encoding map[string]ChannelDef `json:"encoding" yaml:"encoding"`
	Config   Config                `json:"config,omitzero" yaml:"config,omitempty"`
	Map      *IdentifierMap        `json:"_idmap,omitempty" yaml:"_idmap,omitempty"`
}

// New returns an empty unit spec for the given mark tag.
func New(mark string) *UnitSpec {
	return &UnitSpec{Mark: mark, Encoding: map[string]ChannelDef{}}
}

// Clone deep-copies the spec. The identifier map is not copied: the clone
// points at the same map, so IDs recorded through either copy are visible to both.
func (s *UnitSpec) Clone() *UnitSpec {
	if s == nil {
		return nil
	}
	out := *s
	out.Encoding = maps.Clone(s.Encoding)
	if out.Encoding == nil {
		out.Encoding = map[string]ChannelDef{}
	}
	if s.Data.Values != nil {
		out.Data.Values = make([]map[string]any, len(s.Data.Values))
		for i, row := range s.Data.Values {
			out.Data.Values[i] = maps.Clone(row)
		}
	}
	return &out
}

// SetEncoding sets or replaces one channel, leaving the others untouched.
func (s *UnitSpec) SetEncoding(channel string, def ChannelDef) {
	if s.Encoding == nil {
		s.Encoding = map[string]ChannelDef{}
	}
	s.Encoding[channel] = def
}

// Channels returns the bound channel names in sorted order.
func (s *UnitSpec) Channels() []string {
	return slices.Sorted(maps.Keys(s.Encoding))
}

// IdentifierMap records which document primitive was created for each named
// element of the compiled spec. Guides covers both axes and legends.
type IdentifierMap struct {
	Data   map[string]string `json:"data" yaml:"data"`
	Scales map[string]string `json:"scales" yaml:"scales"`
	Guides map[string]string `json:"guides" yaml:"guides"`
	Marks  map[string]string `json:"marks" yaml:"marks"`
}

// NewIdentifierMap returns an identifier map with all sub-maps allocated.
func NewIdentifierMap() *IdentifierMap {
	return &IdentifierMap{
		Data:   map[string]string{},
		Scales: map[string]string{},
		Guides: map[string]string{},
		Marks:  map[string]string{},
	}
}

// ensure allocates any sub-map left nil by decoding.
func (m *IdentifierMap) ensure() {
	if m.Data == nil {
		m.Data = map[string]string{}
	}
	if m.Scales == nil {
		m.Scales = map[string]string{}
	}
	if m.Guides == nil {
		m.Guides = map[string]string{}
	}
	if m.Marks == nil {
		m.Marks = map[string]string{}
	}
}

// Snapshot returns a copy of m whose sub-maps are independent of m's.
func (m *IdentifierMap) Snapshot() IdentifierMap {
	return IdentifierMap{
		Data:   maps.Clone(m.Data),
		Scales: maps.Clone(m.Scales),
		Guides: maps.Clone(m.Guides),
		Marks:  maps.Clone(m.Marks),
	}
}

// Restore overwrites m's entries with those of snap. m keeps its identity, so
// every spec sharing it sees the restored entries.
func (m *IdentifierMap) Restore(snap IdentifierMap) {
	*m = snap
	m.ensure()
}

// EnsureMap returns the spec's identifier map, allocating it on first use.
func (s *UnitSpec) EnsureMap() *IdentifierMap {
	if s.Map == nil {
		s.Map = NewIdentifierMap()
	}
	s.Map.ensure()
	return s.Map
}
