package domain

import (
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Row is one materialized record of a dataset.
type Row = map[string]any

// TransformType identifies a dataset transform.
type TransformType string

// Transform types produced by the compiler and understood by the store.
const (
	TransformBin       TransformType = "bin"
	TransformAggregate TransformType = "aggregate"
)

// Transform is a single step applied to a dataset's rows.
//
// Bin transforms use Field, MaxBins and As (start, mid, end column names).
// Aggregate transforms use Groupby, Fields, Ops and As (one output column per op).
type Transform struct {
	Type    TransformType `json:"type" yaml:"type"`
	Field   string        `json:"field,omitempty" yaml:"field,omitempty"`
	MaxBins int           `json:"maxbins,omitempty" yaml:"maxbins,omitempty"`
	Groupby []string      `json:"groupby,omitempty" yaml:"groupby,omitempty"`
	Fields  []string      `json:"fields,omitempty" yaml:"fields,omitempty"`
	Ops     []string      `json:"ops,omitempty" yaml:"ops,omitempty"`
	As      []string      `json:"as,omitempty" yaml:"as,omitempty"`
}

// Equal reports whether two transforms describe the same computation.
func (t Transform) Equal(o Transform) bool {
	return t.Type == o.Type && t.Field == o.Field && t.MaxBins == o.MaxBins &&
		slices.Equal(t.Groupby, o.Groupby) && slices.Equal(t.Fields, o.Fields) &&
		slices.Equal(t.Ops, o.Ops) && slices.Equal(t.As, o.As)
}

// Dataset is a table of rows belonging to exactly one pipeline. Raw datasets
// carry Values; derived datasets name their upstream dataset in Source and
// compute their rows from it.
type Dataset struct {
	ID         string      `json:"id" yaml:"id"`
	Name       string      `json:"name" yaml:"name"`
	Parent     string      `json:"_parent" yaml:"_parent"`
	Source     string      `json:"source,omitempty" yaml:"source,omitempty"`
	Values     []Row       `json:"values,omitempty" yaml:"values,omitempty"`
	Transforms []Transform `json:"transforms,omitempty" yaml:"transforms,omitempty"`
}

// Derived reports whether the dataset computes its rows from another dataset.
func (d *Dataset) Derived() bool {
	return d.Source != ""
}

// Clone returns a deep copy of the dataset's structure. Row maps are shared;
// the store never mutates a row in place.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	out := *d
	out.Values = slices.Clone(d.Values)
	out.Transforms = nil
	for _, t := range d.Transforms {
		t.Groupby = slices.Clone(t.Groupby)
		t.Fields = slices.Clone(t.Fields)
		t.Ops = slices.Clone(t.Ops)
		t.As = slices.Clone(t.As)
		out.Transforms = append(out.Transforms, t)
	}
	return &out
}

// Pipeline is the lineage linking a source dataset to everything derived from it.
//
// Aggregates maps an aggregate key (see AggregateKey) to the summary dataset
// computing that grouping of one source, so bindings sharing both share one
// dataset.
type Pipeline struct {
	ID         string            `json:"id" yaml:"id"`
	Name       string            `json:"name" yaml:"name"`
	SourceID   string            `json:"source" yaml:"source"`
	Aggregates map[string]string `json:"_aggregates,omitempty" yaml:"_aggregates,omitempty"`
}

// AggregateKey returns the registry key for a summary of sourceID grouped by
// the given fields. Every part is quoted, so no field name can collide with
// another grouping.
func AggregateKey(sourceID string, groupby []string) string {
	keys := slices.Clone(groupby)
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, strconv.Quote(sourceID))
	for _, k := range keys {
		parts = append(parts, strconv.Quote(k))
	}
	return strings.Join(parts, ",")
}

// MType is the semantic measurement type of a field.
type MType string

// Measurement types.
const (
	Quantitative MType = "quantitative"
	Ordinal      MType = "ordinal"
	Nominal      MType = "nominal"
	Temporal     MType = "temporal"
)

// Valid reports whether t is a known measurement type.
func (t MType) Valid() bool {
	switch t {
	case Quantitative, Ordinal, Nominal, Temporal:
		return true
	}
	return false
}

// FieldSchema describes one column of a dataset.
type FieldSchema struct {
	Name      string `json:"name" yaml:"name"`
	MType     MType  `json:"mtype" yaml:"mtype"`
	Aggregate string `json:"aggregate,omitempty" yaml:"aggregate,omitempty"`
	Bin       bool   `json:"bin,omitempty" yaml:"bin,omitempty"`
}

// InferSchema derives field schemas from materialized rows, ordered by name.
// A column is quantitative when every non-nil value is numeric, temporal when
// every value parses as a date, and nominal otherwise.
func InferSchema(rows []Row) []FieldSchema {
	types := map[string]MType{}
	for _, row := range rows {
		for k, v := range row {
			if v == nil {
				if _, ok := types[k]; !ok {
					types[k] = ""
				}
				continue
			}
			t := inferValueType(v)
			switch prev, ok := types[k]; {
			case !ok || prev == "":
				types[k] = t
			case prev != t:
				types[k] = Nominal
			}
		}
	}

	names := make([]string, 0, len(types))
	for k := range types {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make([]FieldSchema, 0, len(names))
	for _, n := range names {
		t := types[n]
		if t == "" {
			t = Nominal
		}
		out = append(out, FieldSchema{Name: n, MType: t})
	}
	return out
}

func inferValueType(v any) MType {
	switch x := v.(type) {
	case int, int32, int64, float32, float64, uint, uint32, uint64:
		return Quantitative
	case time.Time:
		return Temporal
	case string:
		if _, ok := ParseTime(x); ok {
			return Temporal
		}
	}
	return Nominal
}

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// ParseTime parses the date layouts accepted in dataset values.
func ParseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
