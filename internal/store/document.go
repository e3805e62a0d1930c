// Package store is the live document: pipelines, datasets, scales, guides and
// marks, mutated through methods that record every change into the open
// history transaction.
//
// Getters return copies. Callers change a primitive by passing a modified
// copy back through the matching Update method.
package store

import (
	"maps"
	"slices"

	"markbind/internal/domain"
)

// Document is the mutable store a binding reconciles against. It is not safe
// for concurrent use.
type Document struct {
	ID        string                      `json:"id" yaml:"id"`
	Name      string                      `json:"name" yaml:"name"`
	Pipelines map[string]*domain.Pipeline `json:"pipelines" yaml:"pipelines"`
	Datasets  map[string]*domain.Dataset  `json:"datasets" yaml:"datasets"`
	Scales    map[string]*domain.Scale    `json:"scales" yaml:"scales"`
	Guides    map[string]*domain.Guide    `json:"guides" yaml:"guides"`
	Marks     map[string]*domain.Mark     `json:"marks" yaml:"marks"`
	History   []Transaction               `json:"history,omitempty" yaml:"history,omitempty"`

	tx      *txState
	outputs map[string][]domain.Row
}

// New returns an empty document.
func New(name string) *Document {
	d := &Document{ID: domain.NewID(), Name: name}
	d.init()
	return d
}

// init allocates maps left nil by decoding.
func (d *Document) init() {
	if d.Pipelines == nil {
		d.Pipelines = map[string]*domain.Pipeline{}
	}
	if d.Datasets == nil {
		d.Datasets = map[string]*domain.Dataset{}
	}
	if d.Scales == nil {
		d.Scales = map[string]*domain.Scale{}
	}
	if d.Guides == nil {
		d.Guides = map[string]*domain.Guide{}
	}
	if d.Marks == nil {
		d.Marks = map[string]*domain.Mark{}
	}
	if d.outputs == nil {
		d.outputs = map[string][]domain.Row{}
	}
}

// Normalize prepares a decoded document for use.
func (d *Document) Normalize() *Document {
	d.init()
	return d
}

// === Pipelines ===

// AddPipeline inserts a pipeline, assigning an ID when empty.
func (d *Document) AddPipeline(p domain.Pipeline) (*domain.Pipeline, error) {
	d.init()
	if p.ID == "" {
		p.ID = domain.NewID()
	}
	if _, exists := d.Pipelines[p.ID]; exists {
		return nil, domain.ErrConflict("pipeline %s already exists", p.ID)
	}
	p.Aggregates = maps.Clone(p.Aggregates)
	d.Pipelines[p.ID] = &p
	d.record(OpCreate, KindPipeline, p.ID, p.Name)
	return d.Pipeline(p.ID)
}

// Pipeline returns a copy of the pipeline with the given ID.
func (d *Document) Pipeline(id string) (*domain.Pipeline, error) {
	p, ok := d.Pipelines[id]
	if !ok {
		return nil, domain.ErrNotFound("pipeline %s not found", id)
	}
	out := *p
	out.Aggregates = maps.Clone(p.Aggregates)
	return &out, nil
}

// UpdatePipeline replaces a pipeline.
func (d *Document) UpdatePipeline(p domain.Pipeline) error {
	if _, ok := d.Pipelines[p.ID]; !ok {
		return domain.ErrNotFound("pipeline %s not found", p.ID)
	}
	p.Aggregates = maps.Clone(p.Aggregates)
	d.Pipelines[p.ID] = &p
	d.record(OpUpdate, KindPipeline, p.ID, p.Name)
	return nil
}

// === Datasets ===

// AddDataset inserts a dataset. Its parent pipeline must exist.
func (d *Document) AddDataset(ds domain.Dataset) (*domain.Dataset, error) {
	d.init()
	if ds.ID == "" {
		ds.ID = domain.NewID()
	}
	if _, exists := d.Datasets[ds.ID]; exists {
		return nil, domain.ErrConflict("dataset %s already exists", ds.ID)
	}
	if _, ok := d.Pipelines[ds.Parent]; !ok {
		return nil, domain.ErrValidation("dataset %s: parent pipeline %q not found", ds.ID, ds.Parent)
	}
	if ds.Source != "" {
		if _, ok := d.Datasets[ds.Source]; !ok {
			return nil, domain.ErrValidation("dataset %s: source dataset %q not found", ds.ID, ds.Source)
		}
	}
	d.Datasets[ds.ID] = ds.Clone()
	d.record(OpCreate, KindDataset, ds.ID, ds.Name)
	return d.Dataset(ds.ID)
}

// Dataset returns a copy of the dataset with the given ID.
func (d *Document) Dataset(id string) (*domain.Dataset, error) {
	ds, ok := d.Datasets[id]
	if !ok {
		return nil, domain.ErrNotFound("dataset %s not found", id)
	}
	return ds.Clone(), nil
}

// UpdateDataset replaces a dataset's definition and invalidates every output
// computed from it.
func (d *Document) UpdateDataset(ds domain.Dataset) error {
	if _, ok := d.Datasets[ds.ID]; !ok {
		return domain.ErrNotFound("dataset %s not found", ds.ID)
	}
	d.Datasets[ds.ID] = ds.Clone()
	d.invalidate(ds.ID)
	d.record(OpUpdate, KindDataset, ds.ID, ds.Name)
	return nil
}

// DeleteDataset removes a dataset.
func (d *Document) DeleteDataset(id string) error {
	ds, ok := d.Datasets[id]
	if !ok {
		return domain.ErrNotFound("dataset %s not found", id)
	}
	d.invalidate(id)
	delete(d.Datasets, id)
	d.record(OpDelete, KindDataset, id, ds.Name)
	return nil
}

// ListDatasets returns copies of all datasets ordered by ID.
func (d *Document) ListDatasets() []*domain.Dataset {
	out := make([]*domain.Dataset, 0, len(d.Datasets))
	for _, id := range slices.Sorted(maps.Keys(d.Datasets)) {
		out = append(out, d.Datasets[id].Clone())
	}
	return out
}

// === Scales ===

// AddScale inserts a scale.
func (d *Document) AddScale(s domain.Scale) (*domain.Scale, error) {
	d.init()
	if s.ID == "" {
		s.ID = domain.NewID()
	}
	if _, exists := d.Scales[s.ID]; exists {
		return nil, domain.ErrConflict("scale %s already exists", s.ID)
	}
	d.Scales[s.ID] = s.Clone()
	d.record(OpCreate, KindScale, s.ID, s.Name)
	return d.Scale(s.ID)
}

// Scale returns a copy of the scale with the given ID.
func (d *Document) Scale(id string) (*domain.Scale, error) {
	s, ok := d.Scales[id]
	if !ok {
		return nil, domain.ErrNotFound("scale %s not found", id)
	}
	return s.Clone(), nil
}

// UpdateScale replaces a scale.
func (d *Document) UpdateScale(s domain.Scale) error {
	if _, ok := d.Scales[s.ID]; !ok {
		return domain.ErrNotFound("scale %s not found", s.ID)
	}
	d.Scales[s.ID] = s.Clone()
	d.record(OpUpdate, KindScale, s.ID, s.Name)
	return nil
}

// DeleteScale removes a scale.
func (d *Document) DeleteScale(id string) error {
	s, ok := d.Scales[id]
	if !ok {
		return domain.ErrNotFound("scale %s not found", id)
	}
	delete(d.Scales, id)
	d.record(OpDelete, KindScale, id, s.Name)
	return nil
}

// ListScales returns copies of all scales ordered by ID.
func (d *Document) ListScales() []*domain.Scale {
	out := make([]*domain.Scale, 0, len(d.Scales))
	for _, id := range slices.Sorted(maps.Keys(d.Scales)) {
		out = append(out, d.Scales[id].Clone())
	}
	return out
}

// === Guides ===

// AddGuide inserts a guide. The scale it visualizes must exist.
func (d *Document) AddGuide(g domain.Guide) (*domain.Guide, error) {
	d.init()
	if g.ID == "" {
		g.ID = domain.NewID()
	}
	if _, exists := d.Guides[g.ID]; exists {
		return nil, domain.ErrConflict("guide %s already exists", g.ID)
	}
	if _, ok := d.Scales[g.Scale]; !ok {
		return nil, domain.ErrValidation("guide %s: scale %q not found", g.ID, g.Scale)
	}
	d.Guides[g.ID] = &g
	d.record(OpCreate, KindGuide, g.ID, guideName(&g))
	return d.Guide(g.ID)
}

// Guide returns a copy of the guide with the given ID.
func (d *Document) Guide(id string) (*domain.Guide, error) {
	g, ok := d.Guides[id]
	if !ok {
		return nil, domain.ErrNotFound("guide %s not found", id)
	}
	out := *g
	return &out, nil
}

// UpdateGuide replaces a guide.
func (d *Document) UpdateGuide(g domain.Guide) error {
	if _, ok := d.Guides[g.ID]; !ok {
		return domain.ErrNotFound("guide %s not found", g.ID)
	}
	d.Guides[g.ID] = &g
	d.record(OpUpdate, KindGuide, g.ID, guideName(&g))
	return nil
}

// DeleteGuide removes a guide.
func (d *Document) DeleteGuide(id string) error {
	g, ok := d.Guides[id]
	if !ok {
		return domain.ErrNotFound("guide %s not found", id)
	}
	delete(d.Guides, id)
	d.record(OpDelete, KindGuide, id, guideName(g))
	return nil
}

// ListGuides returns copies of all guides ordered by ID.
func (d *Document) ListGuides() []*domain.Guide {
	out := make([]*domain.Guide, 0, len(d.Guides))
	for _, id := range slices.Sorted(maps.Keys(d.Guides)) {
		g := *d.Guides[id]
		out = append(out, &g)
	}
	return out
}

func guideName(g *domain.Guide) string {
	if g.Kind == domain.GuideLegend {
		return "legend:" + g.Property
	}
	return "axis:" + g.Orient
}

// === Marks ===

// AddMark inserts a mark.
func (d *Document) AddMark(m domain.Mark) (*domain.Mark, error) {
	d.init()
	if m.ID == "" {
		m.ID = domain.NewID()
	}
	if _, exists := d.Marks[m.ID]; exists {
		return nil, domain.ErrConflict("mark %s already exists", m.ID)
	}
	if !m.Type.Valid() {
		return nil, domain.ErrValidation("mark %s: unknown type %q", m.ID, m.Type)
	}
	d.Marks[m.ID] = m.Clone()
	d.record(OpCreate, KindMark, m.ID, m.Name)
	return d.Mark(m.ID)
}

// Mark returns a copy of the mark with the given ID.
func (d *Document) Mark(id string) (*domain.Mark, error) {
	m, ok := d.Marks[id]
	if !ok {
		return nil, domain.ErrNotFound("mark %s not found", id)
	}
	return m.Clone(), nil
}

// UpdateMark replaces a mark.
func (d *Document) UpdateMark(m domain.Mark) error {
	if _, ok := d.Marks[m.ID]; !ok {
		return domain.ErrNotFound("mark %s not found", m.ID)
	}
	d.Marks[m.ID] = m.Clone()
	d.record(OpUpdate, KindMark, m.ID, m.Name)
	return nil
}

// ListMarks returns copies of all marks ordered by ID.
func (d *Document) ListMarks() []*domain.Mark {
	out := make([]*domain.Mark, 0, len(d.Marks))
	for _, id := range slices.Sorted(maps.Keys(d.Marks)) {
		out = append(out, d.Marks[id].Clone())
	}
	return out
}

// snapshot deep-copies every primitive map.
func (d *Document) snapshot() *snapshot {
	s := &snapshot{
		pipelines: make(map[string]*domain.Pipeline, len(d.Pipelines)),
		datasets:  make(map[string]*domain.Dataset, len(d.Datasets)),
		scales:    make(map[string]*domain.Scale, len(d.Scales)),
		guides:    make(map[string]*domain.Guide, len(d.Guides)),
		marks:     make(map[string]*domain.Mark, len(d.Marks)),
	}
	for id, p := range d.Pipelines {
		cp := *p
		cp.Aggregates = maps.Clone(p.Aggregates)
		s.pipelines[id] = &cp
	}
	for id, ds := range d.Datasets {
		s.datasets[id] = ds.Clone()
	}
	for id, sc := range d.Scales {
		s.scales[id] = sc.Clone()
	}
	for id, g := range d.Guides {
		cp := *g
		s.guides[id] = &cp
	}
	for id, m := range d.Marks {
		s.marks[id] = m.Clone()
	}
	return s
}

func (d *Document) restore(s *snapshot) {
	d.Pipelines = s.pipelines
	d.Datasets = s.datasets
	d.Scales = s.scales
	d.Guides = s.guides
	d.Marks = s.marks
	clear(d.outputs)
}

type snapshot struct {
	pipelines map[string]*domain.Pipeline
	datasets  map[string]*domain.Dataset
	scales    map[string]*domain.Scale
	guides    map[string]*domain.Guide
	marks     map[string]*domain.Mark
}
