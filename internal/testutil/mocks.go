// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase.
package testutil

import (
	"context"
	"sync"

	"markbind/internal/domain"
)

// === Document Repository Mock ===

// MockDocumentRepo implements domain.DocumentRepository for testing. Calls to
// a method whose Fn is nil panic.
type MockDocumentRepo struct {
	CreateFn           func(ctx context.Context, doc *domain.DocumentRecord) (*domain.DocumentRecord, error)
	GetFn              func(ctx context.Context, id string) (*domain.DocumentRecord, error)
	ListFn             func(ctx context.Context, page domain.PageRequest) ([]domain.DocumentRecord, int64, error)
	UpdateFn           func(ctx context.Context, doc *domain.DocumentRecord, txs []domain.TransactionRecord) (*domain.DocumentRecord, error)
	DeleteFn           func(ctx context.Context, id string) error
	ListTransactionsFn func(ctx context.Context, documentID string, page domain.PageRequest) ([]domain.TransactionRecord, int64, error)
}

// Create implements the interface method for testing.
func (m *MockDocumentRepo) Create(ctx context.Context, doc *domain.DocumentRecord) (*domain.DocumentRecord, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, doc)
	}
	panic("unexpected call to MockDocumentRepo.Create")
}

// Get implements the interface method for testing.
func (m *MockDocumentRepo) Get(ctx context.Context, id string) (*domain.DocumentRecord, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, id)
	}
	panic("unexpected call to MockDocumentRepo.Get")
}

// List implements the interface method for testing.
func (m *MockDocumentRepo) List(ctx context.Context, page domain.PageRequest) ([]domain.DocumentRecord, int64, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, page)
	}
	panic("unexpected call to MockDocumentRepo.List")
}

// Update implements the interface method for testing.
func (m *MockDocumentRepo) Update(ctx context.Context, doc *domain.DocumentRecord, txs []domain.TransactionRecord) (*domain.DocumentRecord, error) {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, doc, txs)
	}
	panic("unexpected call to MockDocumentRepo.Update")
}

// Delete implements the interface method for testing.
func (m *MockDocumentRepo) Delete(ctx context.Context, id string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, id)
	}
	panic("unexpected call to MockDocumentRepo.Delete")
}

// ListTransactions implements the interface method for testing.
func (m *MockDocumentRepo) ListTransactions(ctx context.Context, documentID string, page domain.PageRequest) ([]domain.TransactionRecord, int64, error) {
	if m.ListTransactionsFn != nil {
		return m.ListTransactionsFn(ctx, documentID, page)
	}
	panic("unexpected call to MockDocumentRepo.ListTransactions")
}

// InMemoryDocumentRepo returns a MockDocumentRepo whose Fn fields keep
// records in memory, with the same version and log semantics as the SQLite
// repository. It is safe for concurrent use.
func InMemoryDocumentRepo() *MockDocumentRepo {
	var mu sync.Mutex
	docs := map[string]domain.DocumentRecord{}
	logs := map[string][]domain.TransactionRecord{}

	return &MockDocumentRepo{
		CreateFn: func(_ context.Context, doc *domain.DocumentRecord) (*domain.DocumentRecord, error) {
			mu.Lock()
			defer mu.Unlock()
			if _, ok := docs[doc.ID]; ok {
				return nil, domain.ErrConflict("document %s: already exists", doc.ID)
			}
			rec := *doc
			rec.Version = 1
			docs[doc.ID] = rec
			return &rec, nil
		},
		GetFn: func(_ context.Context, id string) (*domain.DocumentRecord, error) {
			mu.Lock()
			defer mu.Unlock()
			rec, ok := docs[id]
			if !ok {
				return nil, domain.ErrNotFound("document %s not found", id)
			}
			return &rec, nil
		},
		ListFn: func(_ context.Context, _ domain.PageRequest) ([]domain.DocumentRecord, int64, error) {
			mu.Lock()
			defer mu.Unlock()
			out := make([]domain.DocumentRecord, 0, len(docs))
			for _, rec := range docs {
				rec.Body = nil
				out = append(out, rec)
			}
			return out, int64(len(out)), nil
		},
		UpdateFn: func(_ context.Context, doc *domain.DocumentRecord, txs []domain.TransactionRecord) (*domain.DocumentRecord, error) {
			mu.Lock()
			defer mu.Unlock()
			cur, ok := docs[doc.ID]
			if !ok {
				return nil, domain.ErrNotFound("document %s not found", doc.ID)
			}
			if cur.Version != doc.Version {
				return nil, domain.ErrConflict("document %s was modified concurrently", doc.ID)
			}
			rec := *doc
			rec.Version++
			docs[doc.ID] = rec
			for _, t := range txs {
				t.DocumentID = doc.ID
				t.Seq = int64(len(logs[doc.ID]) + 1)
				logs[doc.ID] = append(logs[doc.ID], t)
			}
			return &rec, nil
		},
		DeleteFn: func(_ context.Context, id string) error {
			mu.Lock()
			defer mu.Unlock()
			if _, ok := docs[id]; !ok {
				return domain.ErrNotFound("document %s not found", id)
			}
			delete(docs, id)
			delete(logs, id)
			return nil
		},
		ListTransactionsFn: func(_ context.Context, documentID string, page domain.PageRequest) ([]domain.TransactionRecord, int64, error) {
			mu.Lock()
			defer mu.Unlock()
			all := logs[documentID]
			start := min(page.Offset(), len(all))
			end := min(start+page.Limit(), len(all))
			return all[start:end], int64(len(all)), nil
		},
	}
}
