package document

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markbind/internal/binding"
	"markbind/internal/compiler"
	"markbind/internal/domain"
	"markbind/internal/reconcile"
	"markbind/internal/store"
	"markbind/internal/testutil"
)

type fixture struct {
	svc       *DocumentService
	repo      *testutil.MockDocumentRepo
	docID     string
	datasetID string
	markID    string
}

func newBinder(t *testing.T) *binding.Binder {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	b, err := binding.NewBinder(reconcile.New(logger), compiler.Compile, compiler.AggregateOps, logger)
	require.NoError(t, err)
	return b
}

func sampleDocument(t *testing.T) (*store.Document, string, string) {
	t.Helper()
	doc := store.New("weather")
	pl, err := doc.AddPipeline(domain.Pipeline{Name: "weather"})
	require.NoError(t, err)
	ds, err := doc.AddDataset(domain.Dataset{
		Name:   "observations",
		Parent: pl.ID,
		Values: []domain.Row{
			{"city": "Oslo", "temp": 4.0},
			{"city": "Rome", "temp": 18.0},
			{"city": "Oslo", "temp": 6.0},
		},
	})
	require.NoError(t, err)
	pl.SourceID = ds.ID
	require.NoError(t, doc.UpdatePipeline(*pl))
	m, err := doc.AddMark(domain.Mark{Name: "bars", Type: domain.MarkRect})
	require.NoError(t, err)
	return doc, ds.ID, m.ID
}

func newFixture(t *testing.T, binder Binder) *fixture {
	t.Helper()
	repo := testutil.InMemoryDocumentRepo()
	if binder == nil {
		binder = newBinder(t)
	}
	svc := NewDocumentService(repo, binder, slog.New(slog.DiscardHandler))

	doc, dsID, markID := sampleDocument(t)
	snap, err := svc.Create(context.Background(), doc)
	require.NoError(t, err)
	return &fixture{svc: svc, repo: repo, docID: snap.Document.ID, datasetID: dsID, markID: markID}
}

func (f *fixture) bind(t *testing.T, property string, field domain.FieldSchema) *store.Transaction {
	t.Helper()
	tx, err := f.svc.Bind(context.Background(), f.docID, domain.BindRequest{
		DatasetID: f.datasetID,
		Field:     field,
		MarkID:    f.markID,
		Property:  property,
	})
	require.NoError(t, err)
	return tx
}

func TestCreate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	snap, err := f.svc.Get(ctx, f.docID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Version)
	assert.NotEmpty(t, snap.Fingerprint)
	assert.Len(t, snap.Document.Datasets, 1)
	assert.Len(t, snap.Document.Marks, 1)

	_, err = f.svc.Create(ctx, &store.Document{})
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestBind_PersistsDocumentAndLog(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tx := f.bind(t, "x", domain.FieldSchema{Name: "city", MType: domain.Nominal})
	require.NotNil(t, tx)
	assert.NotEmpty(t, tx.Changes)

	snap, err := f.svc.Get(ctx, f.docID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)
	assert.Empty(t, snap.Document.History, "history is stored in the log, not the body")
	m, err := snap.Document.Mark(f.markID)
	require.NoError(t, err)
	require.NotNil(t, m.UnitSpec)
	assert.Contains(t, m.UnitSpec.Encoding, "x")

	f.bind(t, "y", domain.FieldSchema{Name: "sum_temp", MType: domain.Quantitative})

	history, total, err := f.svc.History(ctx, f.docID, domain.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, history, 2)
	assert.Equal(t, tx.ID, history[0].ID)
	assert.Equal(t, tx.Changes, history[0].Changes)

	t.Run("identifier_map_survives_reload", func(t *testing.T) {
		snap, err := f.svc.Get(ctx, f.docID)
		require.NoError(t, err)
		m, err := snap.Document.Mark(f.markID)
		require.NoError(t, err)
		assert.NotEmpty(t, m.UnitSpec.Map.Scales)
		assert.NotEmpty(t, m.UnitSpec.Map.Data)

		scales := len(snap.Document.Scales)
		f.bind(t, "y", domain.FieldSchema{Name: "sum_temp", MType: domain.Quantitative})
		again, err := f.svc.Get(ctx, f.docID)
		require.NoError(t, err)
		assert.Len(t, again.Document.Scales, scales)
	})
}

func TestBind_FailureSavesNothing(t *testing.T) {
	boom := errors.New("boom")
	f := newFixture(t, binderFunc(func(context.Context, *store.Document, domain.BindRequest) error { return boom }))
	f.repo.UpdateFn = func(context.Context, *domain.DocumentRecord, []domain.TransactionRecord) (*domain.DocumentRecord, error) {
		t.Fatal("failed binding must not be saved")
		return nil, nil
	}

	_, err := f.svc.Bind(context.Background(), f.docID, domain.BindRequest{})
	assert.ErrorIs(t, err, boom)
}

func TestBind_DocumentNotFound(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Bind(context.Background(), "missing", domain.BindRequest{})
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestBind_CancelledWhileWaiting(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.svc.writes.Acquire(context.Background(), 1))
	defer f.svc.writes.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.Bind(ctx, f.docID, domain.BindRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBind_ConcurrentCallsAreSerialized(t *testing.T) {
	f := newFixture(t, nil)
	props := []string{"x", "y", "fill", "opacity"}
	fields := []domain.FieldSchema{
		{Name: "city", MType: domain.Nominal},
		{Name: "temp", MType: domain.Quantitative},
		{Name: "city", MType: domain.Nominal},
		{Name: "temp", MType: domain.Quantitative},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(props))
	for i := range props {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Bind(context.Background(), f.docID, domain.BindRequest{
				DatasetID: f.datasetID, Field: fields[i], MarkID: f.markID, Property: props[i],
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	snap, err := f.svc.Get(context.Background(), f.docID)
	require.NoError(t, err)
	assert.Equal(t, int64(1+len(props)), snap.Version, "no write was lost")
	m, err := snap.Document.Mark(f.markID)
	require.NoError(t, err)
	assert.Len(t, m.UnitSpec.Encoding, len(props))
}

func TestSetValues(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.bind(t, "x", domain.FieldSchema{Name: "city", MType: domain.Nominal})
	f.bind(t, "y", domain.FieldSchema{Name: "sum_temp", MType: domain.Quantitative})

	snap, err := f.svc.Get(ctx, f.docID)
	require.NoError(t, err)
	m, err := snap.Document.Mark(f.markID)
	require.NoError(t, err)
	summaryID := m.From.Data

	changed, err := f.svc.SetValues(ctx, f.docID, f.datasetID, []domain.Row{{"city": "Lima", "temp": 21.0}})
	require.NoError(t, err)
	assert.True(t, changed)

	rows, err := f.svc.Output(ctx, f.docID, summaryID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Row{{"city": "Lima", "sum_temp": 21.0}}, rows)

	before, err := f.svc.Get(ctx, f.docID)
	require.NoError(t, err)
	changed, err = f.svc.SetValues(ctx, f.docID, f.datasetID, []domain.Row{{"city": "Lima", "temp": 21.0}})
	require.NoError(t, err)
	assert.False(t, changed)
	after, err := f.svc.Get(ctx, f.docID)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version, "unchanged values are not saved")

	_, err = f.svc.SetValues(ctx, f.docID, summaryID, nil)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSchema(t *testing.T) {
	f := newFixture(t, nil)
	fields, err := f.svc.Schema(context.Background(), f.docID, f.datasetID)
	require.NoError(t, err)
	assert.Equal(t, []domain.FieldSchema{
		{Name: "city", MType: domain.Nominal},
		{Name: "temp", MType: domain.Quantitative},
	}, fields)

	_, err = f.svc.Schema(context.Background(), f.docID, "missing")
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.svc.Delete(context.Background(), f.docID))
	_, err := f.svc.Get(context.Background(), f.docID)
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

type binderFunc func(ctx context.Context, doc *store.Document, req domain.BindRequest) error

func (f binderFunc) Bind(ctx context.Context, doc *store.Document, req domain.BindRequest) error {
	return f(ctx, doc, req)
}
