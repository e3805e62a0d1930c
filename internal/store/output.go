package store

import (
	"encoding/json"
	"fmt"

	"github.com/zeebo/xxh3"

	"markbind/internal/domain"
)

// Output returns the materialized rows of a dataset: raw values (or the
// upstream dataset's output) with the dataset's transforms applied. Results
// are cached until the dataset or anything upstream of it changes.
func (d *Document) Output(id string) ([]domain.Row, error) {
	return d.output(id, map[string]bool{})
}

func (d *Document) output(id string, visiting map[string]bool) ([]domain.Row, error) {
	d.init()
	if rows, ok := d.outputs[id]; ok {
		return rows, nil
	}
	ds, ok := d.Datasets[id]
	if !ok {
		return nil, domain.ErrNotFound("dataset %s not found", id)
	}
	if visiting[id] {
		return nil, domain.ErrValidation("dataset %s: source cycle", id)
	}
	visiting[id] = true

	rows := ds.Values
	if ds.Derived() {
		src, err := d.output(ds.Source, visiting)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", id, err)
		}
		rows = src
	}
	for i, t := range ds.Transforms {
		var err error
		rows, err = applyTransform(rows, t)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: transform %d: %w", id, i, err)
		}
	}
	if rows == nil {
		rows = []domain.Row{}
	}
	d.outputs[id] = rows
	return rows, nil
}

// SetValues replaces a raw dataset's rows. When the rows are unchanged it is a
// no-op; otherwise every summary computed from the dataset is invalidated.
// It reports whether anything changed.
func (d *Document) SetValues(id string, rows []domain.Row) (bool, error) {
	ds, ok := d.Datasets[id]
	if !ok {
		return false, domain.ErrNotFound("dataset %s not found", id)
	}
	if ds.Derived() {
		return false, domain.ErrValidation("dataset %s is derived from %s and has no values of its own", id, ds.Source)
	}
	before, err := Fingerprint(ds.Values)
	if err != nil {
		return false, err
	}
	after, err := Fingerprint(rows)
	if err != nil {
		return false, err
	}
	if before == after {
		return false, nil
	}
	next := ds.Clone()
	next.Values = rows
	if err := d.UpdateDataset(*next); err != nil {
		return false, err
	}
	return true, nil
}

// Fingerprint hashes rows in their canonical JSON form.
func Fingerprint(rows []domain.Row) (uint64, error) {
	b, err := json.Marshal(rows)
	if err != nil {
		return 0, fmt.Errorf("fingerprint rows: %w", err)
	}
	return xxh3.Hash(b), nil
}

// invalidate drops the cached output of a dataset and of everything derived
// from it, including the summaries registered on its pipeline.
func (d *Document) invalidate(id string) {
	d.init()
	queue := []string{id}
	seen := map[string]bool{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		delete(d.outputs, cur)

		for _, ds := range d.Datasets {
			if ds.Source == cur {
				queue = append(queue, ds.ID)
			}
		}
		for _, p := range d.Pipelines {
			if p.SourceID != cur {
				continue
			}
			for _, summary := range p.Aggregates {
				queue = append(queue, summary)
			}
		}
	}
}

// Dependents returns the IDs of datasets whose output is computed from id.
func (d *Document) Dependents(id string) []string {
	var out []string
	for _, ds := range d.ListDatasets() {
		if ds.Source == id {
			out = append(out, ds.ID)
		}
	}
	return out
}
