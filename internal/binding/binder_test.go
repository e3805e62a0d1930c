package binding_test

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markbind/internal/binding"
	"markbind/internal/compiler"
	"markbind/internal/domain"
	"markbind/internal/reconcile"
	"markbind/internal/store"
	"markbind/internal/vgspec"
	"markbind/internal/vlspec"
)

type fixture struct {
	doc        *store.Document
	pipelineID string
	datasetID  string
	markID     string
}

func weatherRows() []domain.Row {
	return []domain.Row{
		{"city": "Oslo", "temp": 4.0, "rain": 12.0},
		{"city": "Oslo", "temp": 6.0, "rain": 8.0},
		{"city": "Rome", "temp": 18.0, "rain": 2.0},
		{"city": "Rome", "temp": 22.0, "rain": 1.0},
		{"city": "Lima", "temp": 19.0, "rain": 0.0},
	}
}

func newFixture(t *testing.T, markType domain.MarkType) *fixture {
	t.Helper()
	doc := store.New("test")

	pl, err := doc.AddPipeline(domain.Pipeline{Name: "weather"})
	require.NoError(t, err)
	ds, err := doc.AddDataset(domain.Dataset{Name: "weather", Parent: pl.ID, Values: weatherRows()})
	require.NoError(t, err)
	pl.SourceID = ds.ID
	require.NoError(t, doc.UpdatePipeline(*pl))
	m, err := doc.AddMark(domain.Mark{Name: string(markType) + "_1", Type: markType})
	require.NoError(t, err)

	return &fixture{doc: doc, pipelineID: pl.ID, datasetID: ds.ID, markID: m.ID}
}

func (f *fixture) addMark(t *testing.T, markType domain.MarkType) string {
	t.Helper()
	m, err := f.doc.AddMark(domain.Mark{Name: string(markType) + "_2", Type: markType})
	require.NoError(t, err)
	return m.ID
}

// recordingCompiler wraps the real compiler and keeps the last input it saw.
type recordingCompiler struct {
	last *vlspec.UnitSpec
}

func (r *recordingCompiler) compile(s *vlspec.UnitSpec) (*vgspec.Spec, error) {
	r.last = s
	return compiler.Compile(s)
}

func newBinder(t *testing.T, parsers binding.Parsers, compile binding.CompileFunc) *binding.Binder {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	if compile == nil {
		compile = compiler.Compile
	}
	b, err := binding.NewBinder(parsers, compile, compiler.AggregateOps, logger)
	require.NoError(t, err)
	return b
}

func bind(t *testing.T, b *binding.Binder, f *fixture, markID, property string, field domain.FieldSchema) {
	t.Helper()
	err := b.Bind(context.Background(), f.doc, domain.BindRequest{
		DatasetID: f.datasetID,
		Field:     field,
		MarkID:    markID,
		Property:  property,
	})
	require.NoError(t, err)
}

func primitiveIDs(doc *store.Document) map[string][]string {
	return map[string][]string{
		"datasets": slices.Sorted(maps.Keys(doc.Datasets)),
		"scales":   slices.Sorted(maps.Keys(doc.Scales)),
		"guides":   slices.Sorted(maps.Keys(doc.Guides)),
		"marks":    slices.Sorted(maps.Keys(doc.Marks)),
	}
}

func quant(name string) domain.FieldSchema {
	return domain.FieldSchema{Name: name, MType: domain.Quantitative}
}

func nominal(name string) domain.FieldSchema {
	return domain.FieldSchema{Name: name, MType: domain.Nominal}
}

func TestBind_FillOnSymbol(t *testing.T) {
	f := newFixture(t, domain.MarkSymbol)
	rec := &recordingCompiler{}
	b := newBinder(t, reconcile.New(nil), rec.compile)

	bind(t, b, f, f.markID, "x", quant("rain"))
	before, err := f.doc.Mark(f.markID)
	require.NoError(t, err)

	bind(t, b, f, f.markID, "fill", quant("temp"))

	require.NotNil(t, rec.last)
	assert.Equal(t, vlspec.ChannelDef{Type: "quantitative", Field: "temp"}, rec.last.Encoding["color"])
	assert.True(t, rec.last.Config.Mark.Filled)
	assert.Len(t, rec.last.Data.Values, 5)

	assert.Len(t, f.doc.History, 2, "one transaction per binding")
	assert.False(t, f.doc.InTransaction())

	after, err := f.doc.Mark(f.markID)
	require.NoError(t, err)
	require.NotNil(t, after.UnitSpec)

	assert.Equal(t, vlspec.ChannelDef{Type: "quantitative", Field: "temp"}, after.UnitSpec.Encoding["color"])
	withoutColor := maps.Clone(after.UnitSpec.Encoding)
	delete(withoutColor, "color")
	assert.Equal(t, before.UnitSpec.Encoding, withoutColor, "previously bound channels are untouched")
	assert.Equal(t, before.UnitSpec.Mark, after.UnitSpec.Mark)
	assert.Equal(t, before.UnitSpec.Config, after.UnitSpec.Config)
	assert.Empty(t, after.UnitSpec.Data.Values, "embedded values are never persisted")

	fill := after.Properties["fill"]
	require.NotEmpty(t, fill.Scale)
	assert.Equal(t, "temp", fill.Field)
	sc, err := f.doc.Scale(fill.Scale)
	require.NoError(t, err)
	assert.Equal(t, "linear", sc.Type)
	assert.Equal(t, domain.RangeRamp, sc.Range)
	assert.Equal(t, &domain.DataRef{Data: f.datasetID, Field: "temp"}, sc.Domain)

	var legends []*domain.Guide
	for _, g := range f.doc.ListGuides() {
		if g.Kind == domain.GuideLegend {
			legends = append(legends, g)
		}
	}
	require.Len(t, legends, 1)
	assert.Equal(t, "fill", legends[0].Property)
	assert.Equal(t, fill.Scale, legends[0].Scale)
}

func TestBind_ReusesIdentifierMap(t *testing.T) {
	f := newFixture(t, domain.MarkSymbol)
	b := newBinder(t, reconcile.New(nil), nil)

	bind(t, b, f, f.markID, "x", quant("rain"))
	first, err := f.doc.Mark(f.markID)
	require.NoError(t, err)
	xScale := first.Properties["x"].Scale
	require.NotEmpty(t, xScale)
	firstIDs := primitiveIDs(f.doc)

	bind(t, b, f, f.markID, "y", quant("temp"))
	second, err := f.doc.Mark(f.markID)
	require.NoError(t, err)

	assert.Same(t, first.UnitSpec.Map, second.UnitSpec.Map)
	assert.Equal(t, xScale, second.Properties["x"].Scale, "x scale is reused, not duplicated")
	assert.Contains(t, f.doc.Scales, xScale)
	assert.Len(t, f.doc.Scales, 2)
	assert.Len(t, f.doc.Guides, 2)
	for _, id := range firstIDs["guides"] {
		assert.Contains(t, f.doc.Guides, id, "x axis survives the y binding")
	}
}

func TestBind_Idempotent(t *testing.T) {
	f := newFixture(t, domain.MarkRect)
	b := newBinder(t, reconcile.New(nil), nil)

	bind(t, b, f, f.markID, "x", nominal("city"))
	bind(t, b, f, f.markID, "y", quant("sum_temp"))
	firstIDs := primitiveIDs(f.doc)
	first, err := f.doc.Mark(f.markID)
	require.NoError(t, err)

	bind(t, b, f, f.markID, "y", quant("sum_temp"))
	second, err := f.doc.Mark(f.markID)
	require.NoError(t, err)

	assert.Equal(t, firstIDs, primitiveIDs(f.doc))
	assert.Equal(t, first.UnitSpec.Encoding, second.UnitSpec.Encoding)
	assert.Equal(t, first.UnitSpec.Config, second.UnitSpec.Config)
	assert.Equal(t, first.Properties, second.Properties)
	assert.Equal(t, first.From, second.From)
}

func TestBind_CrossPipelineRejected(t *testing.T) {
	f := newFixture(t, domain.MarkSymbol)
	other, err := f.doc.AddPipeline(domain.Pipeline{Name: "other"})
	require.NoError(t, err)
	otherDS, err := f.doc.AddDataset(domain.Dataset{Name: "other", Parent: other.ID, Values: weatherRows()})
	require.NoError(t, err)

	m, err := f.doc.Mark(f.markID)
	require.NoError(t, err)
	m.From = &domain.DataRef{Data: f.datasetID}
	require.NoError(t, f.doc.UpdateMark(*m))

	before := primitiveIDs(f.doc)
	b := newBinder(t, reconcile.New(nil), nil)

	err = b.Bind(context.Background(), f.doc, domain.BindRequest{
		DatasetID: otherDS.ID,
		Field:     quant("temp"),
		MarkID:    f.markID,
		Property:  "x",
	})
	require.Error(t, err)
	var mismatch *domain.PipelineMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, f.pipelineID, mismatch.MarkPipelineID)
	assert.Equal(t, other.ID, mismatch.DatasetPipelineID)

	assert.Empty(t, f.doc.History)
	assert.False(t, f.doc.InTransaction())
	assert.Equal(t, before, primitiveIDs(f.doc))
	after, err := f.doc.Mark(f.markID)
	require.NoError(t, err)
	assert.Nil(t, after.UnitSpec)
}

func TestBind_CompilerRejectionLeavesDocumentUntouched(t *testing.T) {
	f := newFixture(t, domain.MarkRect)
	b := newBinder(t, reconcile.New(nil), nil)
	before := primitiveIDs(f.doc)

	err := b.Bind(context.Background(), f.doc, domain.BindRequest{
		DatasetID: f.datasetID,
		Field:     nominal("city"),
		MarkID:    f.markID,
		Property:  "shape",
	})
	require.Error(t, err)
	var compileErr *compiler.Error
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "shape", compileErr.Channel)

	assert.Empty(t, f.doc.History)
	assert.False(t, f.doc.InTransaction())
	assert.Equal(t, before, primitiveIDs(f.doc))
}

func TestBind_MidReconciliationFailureRollsBack(t *testing.T) {
	f := newFixture(t, domain.MarkSymbol)
	parsers := reconcile.New(nil)
	boom := errors.New("guide store unavailable")
	parsers.Guides = binding.SubParserFunc(func(context.Context, *store.Document, *binding.Parsed) error {
		return boom
	})
	b := newBinder(t, parsers, nil)
	before := primitiveIDs(f.doc)

	err := b.Bind(context.Background(), f.doc, domain.BindRequest{
		DatasetID: f.datasetID,
		Field:     quant("temp"),
		MarkID:    f.markID,
		Property:  "x",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	assert.False(t, f.doc.InTransaction(), "transaction is closed on failure")
	assert.Empty(t, f.doc.History)
	assert.Equal(t, before, primitiveIDs(f.doc), "scales created before the failure are rolled back")
	m, err := f.doc.Mark(f.markID)
	require.NoError(t, err)
	assert.Nil(t, m.UnitSpec)
	assert.Empty(t, m.Properties)
}

func TestBind_FailedRebindKeepsIdentifierMap(t *testing.T) {
	f := newFixture(t, domain.MarkSymbol)
	bind(t, newBinder(t, reconcile.New(nil), nil), f, f.markID, "x", quant("temp"))

	m, err := f.doc.Mark(f.markID)
	require.NoError(t, err)
	require.NotNil(t, m.UnitSpec)
	live := m.UnitSpec.Map
	require.NotNil(t, live)
	want := vlspec.IdentifierMap{
		Data:   maps.Clone(live.Data),
		Scales: maps.Clone(live.Scales),
		Guides: maps.Clone(live.Guides),
		Marks:  maps.Clone(live.Marks),
	}
	before := primitiveIDs(f.doc)

	parsers := reconcile.New(nil)
	boom := errors.New("guide store unavailable")
	parsers.Guides = binding.SubParserFunc(func(context.Context, *store.Document, *binding.Parsed) error {
		return boom
	})
	err = newBinder(t, parsers, nil).Bind(context.Background(), f.doc, domain.BindRequest{
		DatasetID: f.datasetID,
		Field:     quant("rain"),
		MarkID:    f.markID,
		Property:  "y",
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, before, primitiveIDs(f.doc))
	m, err = f.doc.Mark(f.markID)
	require.NoError(t, err)
	assert.Same(t, live, m.UnitSpec.Map, "the shared map keeps its identity")
	assert.Equal(t, want, *m.UnitSpec.Map, "entries written by the failed binding are undone")
	for name, id := range m.UnitSpec.Map.Scales {
		assert.Contains(t, f.doc.Scales, id, "scale entry %q points at a live scale", name)
	}
}

func TestBind_StepOrder(t *testing.T) {
	f := newFixture(t, domain.MarkRect)
	parsers := reconcile.New(nil)
	var order []string
	wrap := func(name string, p binding.SubParser) binding.SubParser {
		return binding.SubParserFunc(func(ctx context.Context, doc *store.Document, parsed *binding.Parsed) error {
			order = append(order, name)
			return p.Parse(ctx, doc, parsed)
		})
	}
	parsers.Data = wrap("data", parsers.Data)
	parsers.Scales = wrap("scales", parsers.Scales)
	parsers.Marks = wrap("marks", parsers.Marks)
	parsers.Aggregates = wrap("aggregates", parsers.Aggregates)
	parsers.Guides = wrap("guides", parsers.Guides)
	sweeper := parsers.Cleanup
	parsers.Cleanup = sweepFunc(func(ctx context.Context, doc *store.Document) error {
		order = append(order, "cleanup")
		return sweeper.Sweep(ctx, doc)
	})
	b := newBinder(t, parsers, nil)

	bind(t, b, f, f.markID, "x", nominal("city"))
	assert.Equal(t, []string{"data", "scales", "marks", "cleanup", "guides"}, order)

	order = nil
	bind(t, b, f, f.markID, "y", quant("mean_temp"))
	assert.Equal(t, []string{"data", "scales", "marks", "aggregates", "cleanup", "guides"}, order)
}

type sweepFunc func(ctx context.Context, doc *store.Document) error

func (f sweepFunc) Sweep(ctx context.Context, doc *store.Document) error { return f(ctx, doc) }

func TestBind_AggregateDependency(t *testing.T) {
	f := newFixture(t, domain.MarkRect)
	b := newBinder(t, reconcile.New(nil), nil)

	bind(t, b, f, f.markID, "x", nominal("city"))
	bind(t, b, f, f.markID, "y", quant("sum_temp"))

	m, err := f.doc.Mark(f.markID)
	require.NoError(t, err)
	require.NotNil(t, m.From)
	summaryID := m.From.Data
	require.NotEqual(t, f.datasetID, summaryID, "mark draws from the summary")

	pl, err := f.doc.Pipeline(f.pipelineID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{domain.AggregateKey(f.datasetID, []string{"city"}): summaryID}, pl.Aggregates)

	rows, err := f.doc.Output(summaryID)
	require.NoError(t, err)
	sums := map[any]any{}
	for _, r := range rows {
		sums[r["city"]] = r["sum_temp"]
	}
	assert.Equal(t, map[any]any{"Oslo": 10.0, "Rome": 40.0, "Lima": 19.0}, sums)

	changed, err := f.doc.SetValues(f.datasetID, []domain.Row{{"city": "Oslo", "temp": 1.0}})
	require.NoError(t, err)
	require.True(t, changed)
	rows, err = f.doc.Output(summaryID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Row{{"city": "Oslo", "sum_temp": 1.0}}, rows)

	t.Run("second_mark_shares_summary", func(t *testing.T) {
		other := f.addMark(t, domain.MarkRect)
		bind(t, b, f, other, "x", nominal("city"))
		bind(t, b, f, other, "y", quant("mean_temp"))

		om, err := f.doc.Mark(other)
		require.NoError(t, err)
		assert.Equal(t, summaryID, om.From.Data)

		ds, err := f.doc.Dataset(summaryID)
		require.NoError(t, err)
		require.Len(t, ds.Transforms, 1)
		assert.Equal(t, []string{"sum_temp", "mean_temp"}, ds.Transforms[0].As)
	})
}

func TestBind_SameGroupingOverTwoSources(t *testing.T) {
	f := newFixture(t, domain.MarkRect)
	b := newBinder(t, reconcile.New(nil), nil)
	other, err := f.doc.AddDataset(domain.Dataset{
		Name:   "forecast",
		Parent: f.pipelineID,
		Values: []domain.Row{{"city": "Oslo", "temp": 100.0}},
	})
	require.NoError(t, err)
	second := f.addMark(t, domain.MarkRect)

	bind(t, b, f, f.markID, "x", nominal("city"))
	bind(t, b, f, f.markID, "y", quant("sum_temp"))
	for _, property := range []string{"x", "y"} {
		field := nominal("city")
		if property == "y" {
			field = quant("sum_temp")
		}
		require.NoError(t, b.Bind(context.Background(), f.doc, domain.BindRequest{
			DatasetID: other.ID,
			Field:     field,
			MarkID:    second,
			Property:  property,
		}))
	}

	first, err := f.doc.Mark(f.markID)
	require.NoError(t, err)
	next, err := f.doc.Mark(second)
	require.NoError(t, err)
	require.NotEqual(t, first.From.Data, next.From.Data, "each source gets its own summary")

	pl, err := f.doc.Pipeline(f.pipelineID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		domain.AggregateKey(f.datasetID, []string{"city"}): first.From.Data,
		domain.AggregateKey(other.ID, []string{"city"}):    next.From.Data,
	}, pl.Aggregates)

	rows, err := f.doc.Output(next.From.Data)
	require.NoError(t, err)
	assert.Equal(t, []domain.Row{{"city": "Oslo", "sum_temp": 100.0}}, rows)
}

func TestBind_UnaggregatingSweepsSummary(t *testing.T) {
	f := newFixture(t, domain.MarkRect)
	b := newBinder(t, reconcile.New(nil), nil)

	bind(t, b, f, f.markID, "x", nominal("city"))
	bind(t, b, f, f.markID, "y", quant("sum_temp"))
	m, err := f.doc.Mark(f.markID)
	require.NoError(t, err)
	summaryID := m.From.Data

	bind(t, b, f, f.markID, "y", quant("temp"))

	assert.NotContains(t, f.doc.Datasets, summaryID)
	pl, err := f.doc.Pipeline(f.pipelineID)
	require.NoError(t, err)
	assert.Empty(t, pl.Aggregates)

	m, err = f.doc.Mark(f.markID)
	require.NoError(t, err)
	assert.Equal(t, f.datasetID, m.From.Data)
	assert.NotContains(t, m.UnitSpec.Map.Data, vgspec.DataSummary)
	for _, sc := range f.doc.ListScales() {
		assert.Equal(t, f.datasetID, sc.Domain.Data, "no scale points at the removed summary")
	}
}

func TestBind_BinAddsTransformToSource(t *testing.T) {
	f := newFixture(t, domain.MarkRect)
	b := newBinder(t, reconcile.New(nil), nil)

	bind(t, b, f, f.markID, "x", quant("bin_temp_start"))

	ds, err := f.doc.Dataset(f.datasetID)
	require.NoError(t, err)
	require.Len(t, ds.Transforms, 1)
	assert.Equal(t, domain.TransformBin, ds.Transforms[0].Type)
	assert.Equal(t, "temp", ds.Transforms[0].Field)

	m, err := f.doc.Mark(f.markID)
	require.NoError(t, err)
	assert.Equal(t, "bin_temp_start", m.Properties["x"].Field)
	assert.Equal(t, "bin_temp_end", m.Properties["x2"].Field)

	rows, err := f.doc.Output(f.datasetID)
	require.NoError(t, err)
	for _, r := range rows {
		assert.Contains(t, r, "bin_temp_start")
	}

	bind(t, b, f, f.markID, "x", quant("bin_temp_start"))
	ds, err = f.doc.Dataset(f.datasetID)
	require.NoError(t, err)
	assert.Len(t, ds.Transforms, 1, "rebinding does not duplicate the bin transform")
}

func TestBind_SecondAxisMovesToOppositeSide(t *testing.T) {
	f := newFixture(t, domain.MarkSymbol)
	b := newBinder(t, reconcile.New(nil), nil)
	other := f.addMark(t, domain.MarkSymbol)

	bind(t, b, f, f.markID, "x", quant("temp"))
	bind(t, b, f, other, "x", quant("rain"))

	orients := map[string]bool{}
	for _, g := range f.doc.ListGuides() {
		if g.Kind == domain.GuideAxis {
			orients[g.Orient] = true
		}
	}
	assert.Equal(t, map[string]bool{domain.OrientBottom: true, domain.OrientTop: true}, orients)
}

func TestBind_SharesEquivalentScaleAcrossMarks(t *testing.T) {
	f := newFixture(t, domain.MarkSymbol)
	b := newBinder(t, reconcile.New(nil), nil)
	other := f.addMark(t, domain.MarkSymbol)

	bind(t, b, f, f.markID, "x", quant("temp"))
	bind(t, b, f, other, "x", quant("temp"))

	m1, err := f.doc.Mark(f.markID)
	require.NoError(t, err)
	m2, err := f.doc.Mark(other)
	require.NoError(t, err)
	assert.Equal(t, m1.Properties["x"].Scale, m2.Properties["x"].Scale)
	assert.Len(t, f.doc.Scales, 1)
	assert.Len(t, f.doc.Guides, 1)

	t.Run("rebinding_shared_scale_forks_it", func(t *testing.T) {
		bind(t, b, f, other, "x", quant("rain"))

		m1, err := f.doc.Mark(f.markID)
		require.NoError(t, err)
		m2, err := f.doc.Mark(other)
		require.NoError(t, err)
		assert.NotEqual(t, m1.Properties["x"].Scale, m2.Properties["x"].Scale)

		sc, err := f.doc.Scale(m1.Properties["x"].Scale)
		require.NoError(t, err)
		assert.Equal(t, "temp", sc.Domain.Field, "first mark's scale is unchanged")
	})
}

func TestBind_Preconditions(t *testing.T) {
	f := newFixture(t, domain.MarkSymbol)
	b := newBinder(t, reconcile.New(nil), nil)

	tests := []struct {
		name    string
		req     domain.BindRequest
		errType interface{}
	}{
		{
			name:    "missing_mark",
			req:     domain.BindRequest{DatasetID: f.datasetID, Field: quant("temp"), MarkID: "nope", Property: "x"},
			errType: new(*domain.NotFoundError),
		},
		{
			name:    "missing_dataset",
			req:     domain.BindRequest{DatasetID: "nope", Field: quant("temp"), MarkID: f.markID, Property: "x"},
			errType: new(*domain.NotFoundError),
		},
		{
			name:    "bad_mtype",
			req:     domain.BindRequest{DatasetID: f.datasetID, Field: domain.FieldSchema{Name: "temp", MType: "weird"}, MarkID: f.markID, Property: "x"},
			errType: new(*domain.ValidationError),
		},
		{
			name:    "empty_property",
			req:     domain.BindRequest{DatasetID: f.datasetID, Field: quant("temp"), MarkID: f.markID},
			errType: new(*domain.ValidationError),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := b.Bind(context.Background(), f.doc, tc.req)
			require.Error(t, err)
			assert.ErrorAs(t, err, tc.errType)
			assert.Empty(t, f.doc.History)
			assert.False(t, f.doc.InTransaction())
		})
	}
}

func TestNewBinder_RequiresParsers(t *testing.T) {
	_, err := binding.NewBinder(binding.Parsers{}, compiler.Compile, compiler.AggregateOps, nil)
	assert.Error(t, err)
}
