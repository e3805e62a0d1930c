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

// DataParser maps compiled data sets onto datasets. The compiled source is
// the bound dataset itself, extended with any bin transforms; a compiled
// summary becomes a derived dataset shared by every binding on the pipeline
// that groups by the same fields.
type DataParser struct {
	logger *slog.Logger
}

// Parse implements binding.SubParser.
func (p *DataParser) Parse(_ context.Context, doc *store.Document, parsed *binding.Parsed) error {
	ids := parsed.Map.Data
	present := map[string]bool{}

	for _, data := range parsed.Output.Data {
		present[data.Name] = true
		if data.Source == "" {
			if err := p.source(doc, parsed.DatasetID, data); err != nil {
				return err
			}
			ids[data.Name] = parsed.DatasetID
			continue
		}

		srcID, ok := ids[data.Source]
		if !ok {
			return fmt.Errorf("data %q: upstream %q not reconciled", data.Name, data.Source)
		}
		id, err := p.derived(doc, parsed, srcID, data)
		if err != nil {
			return err
		}
		ids[data.Name] = id
	}

	for name := range ids {
		if !present[name] {
			delete(ids, name)
		}
	}
	return nil
}

// source adds the compiled bin transforms the dataset does not already have.
func (p *DataParser) source(doc *store.Document, id string, data vgspec.Data) error {
	ds, err := doc.Dataset(id)
	if err != nil {
		return err
	}
	changed := false
	for _, t := range data.Transform {
		want := toTransform(t)
		if want.Type != domain.TransformBin {
			continue
		}
		if slices.ContainsFunc(ds.Transforms, want.Equal) {
			continue
		}
		ds.Transforms = append(ds.Transforms, want)
		changed = true
	}
	if !changed {
		return nil
	}
	p.logger.Debug("adding bin transforms", "dataset", id)
	return doc.UpdateDataset(*ds)
}

// derived finds or creates the dataset computing a compiled summary.
func (p *DataParser) derived(doc *store.Document, parsed *binding.Parsed, srcID string, data vgspec.Data) (string, error) {
	agg, ok := aggregateOf(data)
	if !ok {
		return "", fmt.Errorf("data %q: derived data set without an aggregate transform", data.Name)
	}
	key := domain.AggregateKey(srcID, agg.Groupby)

	if id, ok := p.reusable(doc, parsed, srcID, data.Name, key); ok {
		ds, err := doc.Dataset(id)
		if err != nil {
			return "", err
		}
		if mergeMeasures(ds, agg) {
			if err := doc.UpdateDataset(*ds); err != nil {
				return "", err
			}
		}
		return id, nil
	}

	src, err := doc.Dataset(srcID)
	if err != nil {
		return "", err
	}
	created, err := doc.AddDataset(domain.Dataset{
		Name:       fmt.Sprintf("%s_%s", src.Name, data.Name),
		Parent:     src.Parent,
		Source:     srcID,
		Transforms: []domain.Transform{agg},
	})
	if err != nil {
		return "", err
	}
	p.logger.Debug("created summary dataset", "dataset", created.ID, "groupby", key)
	return created.ID, nil
}

// reusable returns an existing summary over srcID grouped by key: the one
// registered on the pipeline, else the one this mark created earlier.
func (p *DataParser) reusable(doc *store.Document, parsed *binding.Parsed, srcID, name, key string) (string, bool) {
	matches := func(id string) bool {
		ds, err := doc.Dataset(id)
		if err != nil || ds.Source != srcID {
			return false
		}
		agg, ok := firstAggregate(ds.Transforms)
		return ok && domain.AggregateKey(ds.Source, agg.Groupby) == key
	}

	if pl, err := doc.Pipeline(parsed.PipelineID); err == nil {
		if id, ok := pl.Aggregates[key]; ok && matches(id) {
			return id, true
		}
	}
	if id, ok := parsed.Map.Data[name]; ok && matches(id) {
		return id, true
	}
	return "", false
}

// mergeMeasures adds the compiled measures missing from the dataset's
// aggregate transform. It reports whether the dataset changed.
func mergeMeasures(ds *domain.Dataset, want domain.Transform) bool {
	for i, t := range ds.Transforms {
		if t.Type != domain.TransformAggregate {
			continue
		}
		changed := false
		for j, as := range want.As {
			if slices.Contains(t.As, as) {
				continue
			}
			t.Fields = append(t.Fields, want.Fields[j])
			t.Ops = append(t.Ops, want.Ops[j])
			t.As = append(t.As, as)
			changed = true
		}
		ds.Transforms[i] = t
		return changed
	}
	ds.Transforms = append(ds.Transforms, want)
	return true
}

func aggregateOf(data vgspec.Data) (domain.Transform, bool) {
	for _, t := range data.Transform {
		if t.Type == string(domain.TransformAggregate) {
			return toTransform(t), true
		}
	}
	return domain.Transform{}, false
}

func firstAggregate(ts []domain.Transform) (domain.Transform, bool) {
	for _, t := range ts {
		if t.Type == domain.TransformAggregate {
			return t, true
		}
	}
	return domain.Transform{}, false
}

func toTransform(t vgspec.Transform) domain.Transform {
	return domain.Transform{
		Type:    domain.TransformType(t.Type),
		Field:   t.Field,
		MaxBins: t.MaxBins,
		Groupby: slices.Clone(t.Groupby),
		Fields:  slices.Clone(t.Fields),
		Ops:     slices.Clone(t.Ops),
		As:      slices.Clone(t.As),
	}
}
