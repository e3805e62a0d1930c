package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInferSchema(t *testing.T) {
	rows := []Row{
		{"city": "Oslo", "temp": 4.0, "day": "2024-01-02", "note": nil, "mixed": 1},
		{"city": "Rome", "temp": 18, "day": "2024-01-03T10:00:00Z", "note": nil, "mixed": "one"},
		{"city": "Lima", "temp": nil, "day": time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)},
	}

	got := InferSchema(rows)

	assert.Equal(t, []FieldSchema{
		{Name: "city", MType: Nominal},
		{Name: "day", MType: Temporal},
		{Name: "mixed", MType: Nominal},
		{Name: "note", MType: Nominal},
		{Name: "temp", MType: Quantitative},
	}, got)
}

func TestInferSchema_Empty(t *testing.T) {
	assert.Empty(t, InferSchema(nil))
}

func TestAggregateKey(t *testing.T) {
	tests := []struct {
		name    string
		groupby []string
		want    string
	}{
		{"none", nil, `"src"`},
		{"single", []string{"city"}, `"src","city"`},
		{"order_independent", []string{"year", "city"}, `"src","city","year"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AggregateKey("src", tc.groupby))
		})
	}

	in := []string{"b", "a"}
	AggregateKey("src", in)
	assert.Equal(t, []string{"b", "a"}, in, "input is not reordered")

	t.Run("sources_are_distinct", func(t *testing.T) {
		assert.NotEqual(t, AggregateKey("a", []string{"city"}), AggregateKey("b", []string{"city"}))
	})
	t.Run("separator_in_field_name", func(t *testing.T) {
		assert.NotEqual(t, AggregateKey("src", []string{"a|b"}), AggregateKey("src", []string{"a", "b"}))
		assert.NotEqual(t, AggregateKey("src", []string{"a,b"}), AggregateKey("src", []string{"a", "b"}))
		assert.NotEqual(t, AggregateKey("src", []string{`a","b`}), AggregateKey("src", []string{"a", "b"}))
	})
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"2024-03-01", true},
		{"2024-03-01T12:30:00", true},
		{"2024-03-01T12:30:00+02:00", true},
		{"March 1st", false},
		{"", false},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			_, ok := ParseTime(tc.in)
			assert.Equal(t, tc.ok, ok)
		})
	}
}

func TestDatasetClone(t *testing.T) {
	ds := &Dataset{
		ID:     "d1",
		Values: []Row{{"a": 1}},
		Transforms: []Transform{
			{Type: TransformAggregate, Groupby: []string{"a"}, Fields: []string{"b"}, Ops: []string{"sum"}, As: []string{"sum_b"}},
		},
	}

	cp := ds.Clone()
	cp.Transforms[0].As[0] = "changed"
	cp.Values = append(cp.Values, Row{"a": 2})

	assert.Equal(t, "sum_b", ds.Transforms[0].As[0])
	assert.Len(t, ds.Values, 1)
	assert.Nil(t, (&Dataset{}).Clone().Transforms)
}

func TestTransformEqual(t *testing.T) {
	a := Transform{Type: TransformBin, Field: "temp", MaxBins: 10, As: []string{"s", "m", "e"}}
	b := a
	b.As = []string{"s", "m", "e"}
	assert.True(t, a.Equal(b))

	b.MaxBins = 20
	assert.False(t, a.Equal(b))
}
