package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"markbind/internal/binding"
	"markbind/internal/domain"
	"markbind/internal/store"
	"markbind/internal/vgspec"
)

// ScaleParser maps compiled scales onto document scales. A scale this mark
// created is updated in place unless other marks also use it; otherwise an
// equivalent existing scale is shared, and only failing that is one created.
type ScaleParser struct {
	logger *slog.Logger
}

// Parse implements binding.SubParser.
func (p *ScaleParser) Parse(_ context.Context, doc *store.Document, parsed *binding.Parsed) error {
	ids := parsed.Map.Scales
	present := map[string]bool{}

	for _, sc := range parsed.Output.Scales {
		present[sc.Name] = true
		want, err := desiredScale(parsed, sc)
		if err != nil {
			return err
		}
		id, err := p.reconcile(doc, parsed.MarkID, ids[sc.Name], want)
		if err != nil {
			return fmt.Errorf("scale %q: %w", sc.Name, err)
		}
		ids[sc.Name] = id
	}

	for name := range ids {
		if !present[name] {
			delete(ids, name)
		}
	}
	return nil
}

func (p *ScaleParser) reconcile(doc *store.Document, markID, mappedID string, want *domain.Scale) (string, error) {
	if mappedID != "" {
		if cur, err := doc.Scale(mappedID); err == nil {
			if cur.Equivalent(want) {
				return cur.ID, nil
			}
			if !usedByOthers(doc, cur.ID, markID) {
				want.ID = cur.ID
				p.logger.Debug("updating scale", "scale", cur.ID, "name", want.Name)
				return cur.ID, doc.UpdateScale(*want)
			}
		}
	}

	for _, s := range doc.ListScales() {
		if s.Equivalent(want) {
			p.logger.Debug("sharing equivalent scale", "scale", s.ID, "name", want.Name)
			return s.ID, nil
		}
	}

	created, err := doc.AddScale(*want)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// desiredScale translates a compiled scale into document terms: data names
// become dataset IDs and the fixed layout extents become named ranges.
func desiredScale(parsed *binding.Parsed, sc vgspec.Scale) (*domain.Scale, error) {
	dataID, ok := parsed.Map.Data[sc.Domain.Data]
	if !ok {
		return nil, fmt.Errorf("scale %q: domain data %q not reconciled", sc.Name, sc.Domain.Data)
	}
	s := &domain.Scale{
		Name:   sc.Name,
		Type:   sc.Type,
		Domain: &domain.DataRef{Data: dataID, Field: sc.Domain.Field},
		Range:  sc.RangeName,
		Nice:   sc.Nice,
		Zero:   sc.Zero,
	}
	switch {
	case s.Range != "":
	case slices.Equal(sc.RangeValues, []float64{0, binding.CellWidth}):
		s.Range = domain.RangeWidth
	case slices.Equal(sc.RangeValues, []float64{binding.CellHeight, 0}):
		s.Range = domain.RangeHeight
	default:
		s.RangeValues = slices.Clone(sc.RangeValues)
	}
	return s, nil
}

// usedByOthers reports whether any mark other than markID binds a property to the scale.
func usedByOthers(doc *store.Document, scaleID, markID string) bool {
	for _, m := range doc.ListMarks() {
		if m.ID == markID {
			continue
		}
		for _, v := range m.Properties {
			if v.Scale == scaleID {
				return true
			}
		}
	}
	return false
}
