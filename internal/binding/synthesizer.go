package binding

import (
	"markbind/internal/domain"
	"markbind/internal/vlspec"
)

var markTags = map[domain.MarkType]string{
	domain.MarkRect:   "bar",
	domain.MarkSymbol: "point",
	domain.MarkText:   "text",
	domain.MarkLine:   "line",
	domain.MarkArea:   "area",
}

// Synthesize returns the unit spec to bind against: a clone of the mark's
// cached spec when it has one, otherwise a fresh spec for its mark type.
// The returned spec always carries an identifier map; this is the only place
// one is allocated.
func Synthesize(m *domain.Mark) (*vlspec.UnitSpec, error) {
	var spec *vlspec.UnitSpec
	if m.UnitSpec != nil {
		spec = m.UnitSpec.Clone()
	} else {
		tag, ok := markTags[m.Type]
		if !ok {
			return nil, domain.ErrValidation("mark %s: cannot synthesize a spec for type %q", m.ID, m.Type)
		}
		spec = vlspec.New(tag)
	}
	spec.EnsureMap()
	return spec, nil
}
