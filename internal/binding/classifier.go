package binding

import (
	"regexp"
	"strings"

	"markbind/internal/domain"
	"markbind/internal/vlspec"
)

// FieldKind tags how a field name was decorated by an upstream transform.
type FieldKind int

// Field kinds.
const (
	FieldRaw FieldKind = iota
	FieldAggregate
	FieldBin
)

func (k FieldKind) String() string {
	switch k {
	case FieldAggregate:
		return "aggregate"
	case FieldBin:
		return "bin"
	}
	return "raw"
}

// FieldClass is the result of classifying a field name. Field is always the
// undecorated name; Op is set only for FieldAggregate.
type FieldClass struct {
	Kind  FieldKind
	Op    string
	Field string
}

var binPattern = regexp.MustCompile(`^bin_(.+)_(?:start|mid|end)$`)

// Classifier recognizes aggregate (`<op>_<field>`) and bin
// (`bin_<field>_start|_mid|_end`) field names.
type Classifier struct {
	aggregate *regexp.Regexp
}

// NewClassifier builds a classifier for the given aggregate operator names.
// With no operators, no name is classified as an aggregate.
func NewClassifier(ops []string) *Classifier {
	if len(ops) == 0 {
		return &Classifier{}
	}
	quoted := make([]string, len(ops))
	for i, op := range ops {
		quoted[i] = regexp.QuoteMeta(op)
	}
	return &Classifier{
		aggregate: regexp.MustCompile(`^(` + strings.Join(quoted, "|") + `)_(.+)$`),
	}
}

// Classify inspects a field name.
func (c *Classifier) Classify(name string) FieldClass {
	if c.aggregate != nil {
		if m := c.aggregate.FindStringSubmatch(name); m != nil {
			return FieldClass{Kind: FieldAggregate, Op: m[1], Field: m[2]}
		}
	}
	if m := binPattern.FindStringSubmatch(name); m != nil {
		return FieldClass{Kind: FieldBin, Field: m[1]}
	}
	return FieldClass{Kind: FieldRaw, Field: name}
}

// ChannelDef derives the channel definition for a field. A transform encoded
// in the name wins over the schema's explicit aggregate/bin attributes.
func (c *Classifier) ChannelDef(f domain.FieldSchema) vlspec.ChannelDef {
	cls := c.Classify(f.Name)
	def := vlspec.ChannelDef{Type: string(f.MType), Field: cls.Field}
	switch cls.Kind {
	case FieldAggregate:
		def.Aggregate = cls.Op
	case FieldBin:
		def.Bin = true
	default:
		if f.Aggregate != "" {
			def.Aggregate = f.Aggregate
		} else if f.Bin {
			def.Bin = true
		}
	}
	return def
}
