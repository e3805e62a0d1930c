package reconcile

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"markbind/internal/store"
)

// Sweeper removes scales no mark property uses, the guides of those scales,
// and derived datasets nothing draws from. Raw datasets are never removed.
type Sweeper struct {
	logger *slog.Logger
}

// Sweep implements binding.Sweeper.
func (s *Sweeper) Sweep(_ context.Context, doc *store.Document) error {
	marks := doc.ListMarks()

	liveScales := map[string]bool{}
	liveData := map[string]bool{}
	for _, m := range marks {
		for _, v := range m.Properties {
			if v.Scale != "" {
				liveScales[v.Scale] = true
			}
		}
		if m.From != nil {
			liveData[m.From.Data] = true
		}
	}

	for _, g := range doc.ListGuides() {
		if liveScales[g.Scale] {
			continue
		}
		s.logger.Debug("removing orphaned guide", "guide", g.ID)
		if err := doc.DeleteGuide(g.ID); err != nil {
			return err
		}
	}
	for _, sc := range doc.ListScales() {
		if liveScales[sc.ID] {
			if sc.Domain != nil {
				liveData[sc.Domain.Data] = true
			}
			continue
		}
		s.logger.Debug("removing orphaned scale", "scale", sc.ID)
		if err := doc.DeleteScale(sc.ID); err != nil {
			return err
		}
	}

	datasets := doc.ListDatasets()
	// Anything upstream of live data is live too.
	for changed := true; changed; {
		changed = false
		for _, ds := range datasets {
			if liveData[ds.ID] && ds.Derived() && !liveData[ds.Source] {
				liveData[ds.Source] = true
				changed = true
			}
		}
	}

	removed := map[string]bool{}
	for _, ds := range datasets {
		if !ds.Derived() || liveData[ds.ID] {
			continue
		}
		s.logger.Debug("removing orphaned dataset", "dataset", ds.ID)
		if err := doc.DeleteDataset(ds.ID); err != nil {
			return err
		}
		removed[ds.ID] = true
	}
	if len(removed) == 0 {
		return nil
	}

	for _, id := range sortedPipelineIDs(doc) {
		pl, err := doc.Pipeline(id)
		if err != nil {
			return err
		}
		before := len(pl.Aggregates)
		maps.DeleteFunc(pl.Aggregates, func(_, v string) bool { return removed[v] })
		if len(pl.Aggregates) == before {
			continue
		}
		if err := doc.UpdatePipeline(*pl); err != nil {
			return err
		}
	}
	return nil
}

func sortedPipelineIDs(doc *store.Document) []string {
	return slices.Sorted(maps.Keys(doc.Pipelines))
}
