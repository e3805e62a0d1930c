// Package compiler turns a unit spec into a low-level rendering spec.
//
// Compile is a pure function: it never touches the document and never mutates
// its input. It rejects specs whose channel/type combinations cannot be drawn.
package compiler

import (
	"fmt"
	"slices"
	"strings"

	"markbind/internal/vgspec"
	"markbind/internal/vlspec"
)

// Default cell size used when the spec does not configure one.
const (
	DefaultCellWidth  = 200
	DefaultCellHeight = 200
	DefaultMaxBins    = 10
)

// AggregateOps lists every aggregate operator the compiler accepts.
var AggregateOps = []string{
	"values", "count", "valid", "missing", "distinct",
	"sum", "mean", "average", "variance", "variancep",
	"stdev", "stdevp", "median", "q1", "q3", "modeskew",
	"min", "max", "argmin", "argmax",
}

// Error is returned when a spec cannot be compiled.
type Error struct {
	Channel string
	Message string
}

func (e *Error) Error() string {
	if e.Channel == "" {
		return "compile: " + e.Message
	}
	return fmt.Sprintf("compile: channel %q: %s", e.Channel, e.Message)
}

func errorf(channel, format string, args ...any) *Error {
	return &Error{Channel: channel, Message: fmt.Sprintf(format, args...)}
}

var markTypes = map[string]string{
	"bar":   "rect",
	"point": "symbol",
	"text":  "text",
	"line":  "line",
	"area":  "area",
}

var supportedChannels = []string{
	vlspec.ChannelX, vlspec.ChannelY, vlspec.ChannelX2, vlspec.ChannelY2,
	vlspec.ChannelColor, vlspec.ChannelSize, vlspec.ChannelShape,
	vlspec.ChannelOpacity, vlspec.ChannelText, vlspec.ChannelDetail,
}

var measurementTypes = []string{"quantitative", "ordinal", "nominal", "temporal"}

// channel is one validated encoding plus the field name it reads after
// aggregation or binning.
type channel struct {
	name string
	def  vlspec.ChannelDef
	ref  string
}

// Compile compiles a unit spec into a rendering spec.
func Compile(spec *vlspec.UnitSpec) (*vgspec.Spec, error) {
	if spec == nil {
		return nil, errorf("", "nil spec")
	}
	markType, ok := markTypes[spec.Mark]
	if !ok {
		return nil, errorf("", "unsupported mark %q", spec.Mark)
	}

	channels, err := validate(spec)
	if err != nil {
		return nil, err
	}

	width, height := spec.Config.Cell.Width, spec.Config.Cell.Height
	if width <= 0 {
		width = DefaultCellWidth
	}
	if height <= 0 {
		height = DefaultCellHeight
	}

	out := &vgspec.Spec{Width: width, Height: height}
	markData := compileData(out, spec, channels)

	c := &compilation{
		spec:     spec,
		out:      out,
		markType: markType,
		data:     markData,
		width:    width,
		height:   height,
	}
	for _, ch := range channels {
		c.compileChannel(ch)
	}
	out.Marks = []vgspec.Mark{{
		Name:   "marks",
		Type:   markType,
		From:   vgspec.From{Data: markData},
		Encode: c.encode,
	}}
	return out, nil
}

func validate(spec *vlspec.UnitSpec) ([]channel, error) {
	names := spec.Channels()
	channels := make([]channel, 0, len(names))
	for _, name := range names {
		def := spec.Encoding[name]
		if !slices.Contains(supportedChannels, name) {
			return nil, errorf(name, "unsupported channel")
		}
		if !slices.Contains(measurementTypes, def.Type) {
			return nil, errorf(name, "unsupported type %q", def.Type)
		}
		if def.Field == "" {
			return nil, errorf(name, "field is required")
		}
		if def.Aggregate != "" && !slices.Contains(AggregateOps, def.Aggregate) {
			return nil, errorf(name, "unknown aggregate %q", def.Aggregate)
		}
		if def.Aggregate != "" && def.Bin {
			return nil, errorf(name, "cannot both bin and aggregate")
		}
		if def.Bin && def.Type != "quantitative" {
			return nil, errorf(name, "bin requires a quantitative field, got %s", def.Type)
		}
		switch name {
		case vlspec.ChannelX2:
			if _, ok := spec.Encoding[vlspec.ChannelX]; !ok {
				return nil, errorf(name, "x2 requires x")
			}
		case vlspec.ChannelY2:
			if _, ok := spec.Encoding[vlspec.ChannelY]; !ok {
				return nil, errorf(name, "y2 requires y")
			}
		case vlspec.ChannelShape:
			if spec.Mark != "point" {
				return nil, errorf(name, "shape is only supported by point marks, not %s", spec.Mark)
			}
			if def.Type == "quantitative" && def.Aggregate == "" {
				return nil, errorf(name, "shape cannot encode a quantitative field")
			}
		case vlspec.ChannelText:
			if spec.Mark != "text" {
				return nil, errorf(name, "text is only supported by text marks, not %s", spec.Mark)
			}
		}
		channels = append(channels, channel{name: name, def: def, ref: fieldRef(def)})
	}
	return channels, nil
}

// fieldRef returns the column a channel reads from the compiled data.
func fieldRef(def vlspec.ChannelDef) string {
	switch {
	case def.Aggregate != "":
		return def.Aggregate + "_" + def.Field
	case def.Bin:
		return binField(def.Field, "start")
	}
	return def.Field
}

func binField(field, suffix string) string {
	return "bin_" + field + "_" + suffix
}

// compileData emits the source data set, bin transforms and, when any
// channel aggregates, a summary data set. It returns the data set marks draw from.
func compileData(out *vgspec.Spec, spec *vlspec.UnitSpec, channels []channel) string {
	values := make([]any, len(spec.Data.Values))
	for i, row := range spec.Data.Values {
		values[i] = row
	}
	source := vgspec.Data{Name: vgspec.DataSource, Values: values}

	var (
		groupby []string
		fields  []string
		ops     []string
		as      []string
	)
	for _, ch := range channels {
		switch {
		case ch.def.Bin:
			source.Transform = append(source.Transform, vgspec.Transform{
				Type:    "bin",
				Field:   ch.def.Field,
				MaxBins: DefaultMaxBins,
				As: []string{
					binField(ch.def.Field, "start"),
					binField(ch.def.Field, "mid"),
					binField(ch.def.Field, "end"),
				},
			})
			groupby = appendUnique(groupby, binField(ch.def.Field, "start"), binField(ch.def.Field, "end"))
		case ch.def.Aggregate != "":
			if slices.Contains(as, ch.ref) {
				continue
			}
			fields = append(fields, ch.def.Field)
			ops = append(ops, ch.def.Aggregate)
			as = append(as, ch.ref)
		default:
			groupby = appendUnique(groupby, ch.def.Field)
		}
	}
	out.Data = append(out.Data, source)

	if len(ops) == 0 {
		return vgspec.DataSource
	}
	out.Data = append(out.Data, vgspec.Data{
		Name:   vgspec.DataSummary,
		Source: vgspec.DataSource,
		Transform: []vgspec.Transform{{
			Type:    "aggregate",
			Groupby: groupby,
			Fields:  fields,
			Ops:     ops,
			As:      as,
		}},
	})
	return vgspec.DataSummary
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(list, v) {
			list = append(list, v)
		}
	}
	return list
}

type compilation struct {
	spec     *vlspec.UnitSpec
	out      *vgspec.Spec
	markType string
	data     string
	width    int
	height   int
	encode   map[string]vgspec.ValueRef
}

func (c *compilation) set(prop string, ref vgspec.ValueRef) {
	if c.encode == nil {
		c.encode = map[string]vgspec.ValueRef{}
	}
	c.encode[prop] = ref
}

func (c *compilation) compileChannel(ch channel) {
	switch ch.name {
	case vlspec.ChannelX, vlspec.ChannelY:
		c.positional(ch)
	case vlspec.ChannelX2, vlspec.ChannelY2:
		scale := vlspec.ChannelX
		if ch.name == vlspec.ChannelY2 {
			scale = vlspec.ChannelY
		}
		c.set(ch.name, vgspec.ValueRef{Scale: scale, Field: ch.ref})
	case vlspec.ChannelColor:
		prop := "stroke"
		if c.markType == "area" || c.markType == "text" || (c.spec.Config.Mark.Filled && c.markType != "line") {
			prop = "fill"
		}
		c.addScale(ch, scaleType(ch.def, "ordinal"), colorRange(ch.def), nil)
		c.out.Legends = append(c.out.Legends, vgspec.Legend{Property: prop, Scale: ch.name, Title: title(ch.def)})
		c.set(prop, vgspec.ValueRef{Scale: ch.name, Field: ch.ref})
	case vlspec.ChannelSize:
		c.addScale(ch, scaleType(ch.def, "point"), "", []float64{9, 361})
		c.out.Legends = append(c.out.Legends, vgspec.Legend{Property: "size", Scale: ch.name, Title: title(ch.def)})
		c.set("size", vgspec.ValueRef{Scale: ch.name, Field: ch.ref})
	case vlspec.ChannelOpacity:
		c.addScale(ch, scaleType(ch.def, "point"), "", []float64{0.3, 0.8})
		c.out.Legends = append(c.out.Legends, vgspec.Legend{Property: "opacity", Scale: ch.name, Title: title(ch.def)})
		c.set("opacity", vgspec.ValueRef{Scale: ch.name, Field: ch.ref})
	case vlspec.ChannelShape:
		c.addScale(ch, "ordinal", "symbol", nil)
		c.out.Legends = append(c.out.Legends, vgspec.Legend{Property: "shape", Scale: ch.name, Title: title(ch.def)})
		c.set("shape", vgspec.ValueRef{Scale: ch.name, Field: ch.ref})
	case vlspec.ChannelText:
		c.set("text", vgspec.ValueRef{Field: ch.ref})
	}
}

func (c *compilation) positional(ch channel) {
	discrete := "point"
	if c.markType == "rect" {
		discrete = "band"
	}
	typ := scaleType(ch.def, discrete)

	var rng []float64
	size, orient := "width", "bottom"
	if ch.name == vlspec.ChannelX {
		rng = []float64{0, float64(c.width)}
	} else {
		rng = []float64{float64(c.height), 0}
		size, orient = "height", "left"
	}
	scale := c.addScale(ch, typ, "", rng)
	c.out.Axes = append(c.out.Axes, vgspec.Axis{Scale: ch.name, Orient: orient, Title: title(ch.def)})

	c.set(ch.name, vgspec.ValueRef{Scale: ch.name, Field: ch.ref})
	if c.markType != "rect" {
		return
	}
	second := ch.name + "2"
	switch {
	case typ == "band":
		c.set(size, vgspec.ValueRef{Scale: ch.name, Band: true})
	case ch.def.Bin:
		c.set(second, vgspec.ValueRef{Scale: ch.name, Field: binField(ch.def.Field, "end")})
	case scale.Zero:
		if _, bound := c.spec.Encoding[second]; !bound {
			c.set(second, vgspec.ValueRef{Scale: ch.name, Value: 0})
		}
	}
}

func (c *compilation) addScale(ch channel, typ, rangeName string, rangeValues []float64) *vgspec.Scale {
	quantitative := typ == "linear"
	c.out.Scales = append(c.out.Scales, vgspec.Scale{
		Name:        ch.name,
		Type:        typ,
		Domain:      vgspec.DataRef{Data: c.data, Field: ch.ref},
		RangeName:   rangeName,
		RangeValues: rangeValues,
		Nice:        quantitative || typ == "time",
		Zero:        quantitative && !ch.def.Bin,
	})
	return &c.out.Scales[len(c.out.Scales)-1]
}

func scaleType(def vlspec.ChannelDef, discrete string) string {
	switch def.Type {
	case "quantitative":
		return "linear"
	case "temporal":
		if def.Aggregate != "" {
			return "linear"
		}
		return "time"
	}
	if def.Aggregate != "" {
		return "linear"
	}
	return discrete
}

func colorRange(def vlspec.ChannelDef) string {
	if def.Type == "quantitative" || def.Type == "temporal" || def.Aggregate != "" {
		return "ramp"
	}
	return "category"
}

func title(def vlspec.ChannelDef) string {
	switch {
	case def.Aggregate != "":
		return strings.ToUpper(def.Aggregate) + "(" + def.Field + ")"
	case def.Bin:
		return "BIN(" + def.Field + ")"
	}
	return def.Field
}
