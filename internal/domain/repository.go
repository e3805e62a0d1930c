package domain

import "context"

// DocumentRepository persists document snapshots and their transaction logs.
type DocumentRepository interface {
	Create(ctx context.Context, doc *DocumentRecord) (*DocumentRecord, error)
	Get(ctx context.Context, id string) (*DocumentRecord, error)
	List(ctx context.Context, page PageRequest) ([]DocumentRecord, int64, error)
	// Update stores a new snapshot and appends txs to the log atomically. It
	// fails with ConflictError when doc.Version no longer matches the stored
	// version.
	Update(ctx context.Context, doc *DocumentRecord, txs []TransactionRecord) (*DocumentRecord, error)
	Delete(ctx context.Context, id string) error
	ListTransactions(ctx context.Context, documentID string, page PageRequest) ([]TransactionRecord, int64, error)
}
