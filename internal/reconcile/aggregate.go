package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"markbind/internal/binding"
	"markbind/internal/domain"
	"markbind/internal/store"
	"markbind/internal/vgspec"
)

// AggregateTracker registers the binding's summary dataset on its pipeline,
// keyed by grouping, so later bindings reuse it and value changes on the
// pipeline's source invalidate it.
type AggregateTracker struct {
	logger *slog.Logger
}

// Parse implements binding.SubParser.
func (t *AggregateTracker) Parse(_ context.Context, doc *store.Document, parsed *binding.Parsed) error {
	id, ok := parsed.Map.Data[vgspec.DataSummary]
	if !ok {
		return nil
	}
	ds, err := doc.Dataset(id)
	if err != nil {
		return err
	}
	agg, ok := firstAggregate(ds.Transforms)
	if !ok {
		return fmt.Errorf("summary dataset %s has no aggregate transform", id)
	}
	key := domain.AggregateKey(ds.Source, agg.Groupby)

	pl, err := doc.Pipeline(ds.Parent)
	if err != nil {
		return err
	}
	if pl.Aggregates[key] == id {
		return nil
	}
	if pl.Aggregates == nil {
		pl.Aggregates = map[string]string{}
	}
	// A dataset is registered under exactly one grouping.
	maps.DeleteFunc(pl.Aggregates, func(_, v string) bool { return v == id })
	pl.Aggregates[key] = id

	t.logger.Debug("registered aggregate", "pipeline", pl.ID, "dataset", id, "groupby", key)
	return doc.UpdatePipeline(*pl)
}
