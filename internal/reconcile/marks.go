package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"markbind/internal/binding"
	"markbind/internal/domain"
	"markbind/internal/store"
)

// MarkParser applies the compiled mark's encodings to the bound mark: its
// data source and every data-driven property, with compiled scale names
// replaced by scale IDs.
type MarkParser struct {
	logger *slog.Logger
}

// Parse implements binding.SubParser.
func (p *MarkParser) Parse(_ context.Context, doc *store.Document, parsed *binding.Parsed) error {
	if len(parsed.Output.Marks) == 0 {
		return fmt.Errorf("compiled spec has no marks")
	}
	cm := parsed.Output.Marks[0]

	m, err := doc.Mark(parsed.MarkID)
	if err != nil {
		return err
	}

	dataID, ok := parsed.Map.Data[cm.From.Data]
	if !ok {
		return fmt.Errorf("mark %q: data %q not reconciled", cm.Name, cm.From.Data)
	}
	m.From = &domain.DataRef{Data: dataID}

	// Properties driven by this mark's scales but no longer encoded go back to unbound.
	owned := make([]string, 0, len(parsed.Map.Scales))
	for _, id := range parsed.Map.Scales {
		owned = append(owned, id)
	}
	for prop, v := range m.Properties {
		if _, encoded := cm.Encode[prop]; encoded {
			continue
		}
		if v.Scale != "" && !slices.Contains(owned, v.Scale) {
			continue
		}
		if v.IsBound() {
			delete(m.Properties, prop)
		}
	}

	for prop, ref := range cm.Encode {
		v := domain.PropValue{Field: ref.Field, Value: ref.Value, Band: ref.Band}
		if ref.Scale != "" {
			id, ok := parsed.Map.Scales[ref.Scale]
			if !ok {
				return fmt.Errorf("mark %q: property %q: scale %q not reconciled", cm.Name, prop, ref.Scale)
			}
			v.Scale = id
		}
		m.SetProperty(prop, v)
	}

	if err := doc.UpdateMark(*m); err != nil {
		return err
	}
	parsed.Map.Marks[cm.Name] = m.ID
	p.logger.Debug("mark properties applied", "mark", m.ID, "properties", len(cm.Encode))
	return nil
}
