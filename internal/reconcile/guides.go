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

// GuideParser derives axes and legends from the compiled spec. It runs after
// the sweep, against the final scale set. The guide recorded in the
// identifier map is reused while it still exists on the same scale; failing
// that, a scale that already has a guide of the right kind keeps it. A new
// axis moves to the opposite side when its default side is already taken.
type GuideParser struct {
	logger *slog.Logger
}

// Parse implements binding.SubParser.
func (p *GuideParser) Parse(_ context.Context, doc *store.Document, parsed *binding.Parsed) error {
	ids := parsed.Map.Guides
	present := map[string]bool{}

	for _, ax := range parsed.Output.Axes {
		key := "axis:" + ax.Scale
		present[key] = true
		scaleID, ok := parsed.Map.Scales[ax.Scale]
		if !ok {
			return fmt.Errorf("axis: scale %q not reconciled", ax.Scale)
		}
		id, err := p.reconcile(doc, ids[key], domain.Guide{
			Kind:   domain.GuideAxis,
			Scale:  scaleID,
			Orient: ax.Orient,
			Title:  ax.Title,
		})
		if err != nil {
			return err
		}
		ids[key] = id
	}

	for _, lg := range parsed.Output.Legends {
		key := "legend:" + lg.Property
		present[key] = true
		scaleID, ok := parsed.Map.Scales[lg.Scale]
		if !ok {
			return fmt.Errorf("legend: scale %q not reconciled", lg.Scale)
		}
		id, err := p.reconcile(doc, ids[key], domain.Guide{
			Kind:     domain.GuideLegend,
			Scale:    scaleID,
			Property: lg.Property,
			Title:    lg.Title,
		})
		if err != nil {
			return err
		}
		ids[key] = id
	}

	for key := range ids {
		if !present[key] {
			delete(ids, key)
		}
	}
	return nil
}

func (p *GuideParser) reconcile(doc *store.Document, mapped string, want domain.Guide) (string, error) {
	if mapped != "" {
		if g, err := doc.Guide(mapped); err == nil && g.Kind == want.Kind && g.Scale == want.Scale {
			return g.ID, p.retitle(doc, g, want)
		}
	}

	guides := doc.ListGuides()

	// A scale only ever gets one guide of each kind.
	for _, g := range guides {
		if g.Kind != want.Kind || g.Scale != want.Scale {
			continue
		}
		return g.ID, p.retitle(doc, g, want)
	}

	if want.Kind == domain.GuideAxis && orientTaken(guides, want.Orient) {
		want.Orient = domain.OppositeOrient(want.Orient)
	}

	created, err := doc.AddGuide(want)
	if err != nil {
		return "", err
	}
	p.logger.Debug("created guide", "guide", created.ID, "kind", created.Kind, "scale", created.Scale)
	return created.ID, nil
}

func (p *GuideParser) retitle(doc *store.Document, g *domain.Guide, want domain.Guide) error {
	if g.Title == want.Title && g.Property == want.Property {
		return nil
	}
	g.Title, g.Property = want.Title, want.Property
	return doc.UpdateGuide(*g)
}

func orientTaken(guides []*domain.Guide, orient string) bool {
	return slices.ContainsFunc(guides, func(g *domain.Guide) bool {
		return g.Kind == domain.GuideAxis && g.Orient == orient
	})
}
