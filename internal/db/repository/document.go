package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"markbind/internal/domain"
)

var _ domain.DocumentRepository = (*DocumentRepo)(nil)

// DocumentRepo implements domain.DocumentRepository. Writes go through the
// single-connection write pool; reads use the read pool.
type DocumentRepo struct {
	write *sql.DB
	read  *sql.DB
}

// NewDocumentRepo creates a DocumentRepo. readDB may be nil, in which case
// reads share writeDB.
func NewDocumentRepo(writeDB, readDB *sql.DB) *DocumentRepo {
	if readDB == nil {
		readDB = writeDB
	}
	return &DocumentRepo{write: writeDB, read: readDB}
}

const documentColumns = `id, name, body, fingerprint, version, created_at, updated_at`

// Create inserts a new document at version 1.
func (r *DocumentRepo) Create(ctx context.Context, doc *domain.DocumentRecord) (*domain.DocumentRecord, error) {
	now := formatTime(time.Now())
	_, err := r.write.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, 1, ?, ?)`,
		doc.ID, doc.Name, string(doc.Body), doc.Fingerprint, now, now)
	if err != nil {
		return nil, mapDBError(err, "document %s", doc.ID)
	}
	return r.get(ctx, r.write, doc.ID)
}

// Get returns a document by ID.
func (r *DocumentRepo) Get(ctx context.Context, id string) (*domain.DocumentRecord, error) {
	return r.get(ctx, r.read, id)
}

func (r *DocumentRepo) get(ctx context.Context, q *sql.DB, id string) (*domain.DocumentRecord, error) {
	row := q.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row.Scan, true)
	if err != nil {
		return nil, mapDBError(err, "document %s not found", id)
	}
	return doc, nil
}

// List returns a page of documents ordered by name then ID. Bodies are not loaded.
func (r *DocumentRepo) List(ctx context.Context, page domain.PageRequest) ([]domain.DocumentRecord, int64, error) {
	var total int64
	if err := r.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.read.QueryContext(ctx,
		`SELECT id, name, '', fingerprint, version, created_at, updated_at
		 FROM documents ORDER BY name, id LIMIT ? OFFSET ?`,
		page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.DocumentRecord
	for rows.Next() {
		doc, err := scanDocument(rows.Scan, false)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *doc)
	}
	return out, total, rows.Err()
}

// Update stores doc as the next version and appends txs to the document's
// log in one SQL transaction.
func (r *DocumentRepo) Update(ctx context.Context, doc *domain.DocumentRecord, txs []domain.TransactionRecord) (*domain.DocumentRecord, error) {
	tx, err := r.write.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET name = ?, body = ?, fingerprint = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		doc.Name, string(doc.Body), doc.Fingerprint, formatTime(time.Now()), doc.ID, doc.Version)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, doc.ID).Scan(&exists); err != nil {
			return nil, mapDBError(err, "document %s not found", doc.ID)
		}
		return nil, domain.ErrConflict("document %s was modified concurrently (expected version %d)", doc.ID, doc.Version)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM document_transactions WHERE document_id = ?`, doc.ID).Scan(&seq); err != nil {
		return nil, err
	}
	for _, t := range txs {
		seq++
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_transactions (id, document_id, seq, label, changes, committed_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, doc.ID, seq, t.Label, string(t.Changes), formatTime(t.CommittedAt)); err != nil {
			return nil, mapDBError(err, "transaction %s", t.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return r.get(ctx, r.write, doc.ID)
}

// Delete removes a document and its log.
func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	res, err := r.write.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound("document %s not found", id)
	}
	return nil
}

// ListTransactions returns a page of a document's log, oldest first.
func (r *DocumentRepo) ListTransactions(ctx context.Context, documentID string, page domain.PageRequest) ([]domain.TransactionRecord, int64, error) {
	var total int64
	if err := r.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_transactions WHERE document_id = ?`, documentID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.read.QueryContext(ctx,
		`SELECT id, document_id, seq, label, changes, committed_at
		 FROM document_transactions WHERE document_id = ? ORDER BY seq LIMIT ? OFFSET ?`,
		documentID, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.TransactionRecord
	for rows.Next() {
		var (
			t                    domain.TransactionRecord
			changes, committedAt string
		)
		if err := rows.Scan(&t.ID, &t.DocumentID, &t.Seq, &t.Label, &changes, &committedAt); err != nil {
			return nil, 0, err
		}
		t.Changes = []byte(changes)
		t.CommittedAt = parseTime(committedAt)
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func scanDocument(scan func(dest ...any) error, withBody bool) (*domain.DocumentRecord, error) {
	var (
		doc                  domain.DocumentRecord
		body                 string
		createdAt, updatedAt string
	)
	if err := scan(&doc.ID, &doc.Name, &body, &doc.Fingerprint, &doc.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if withBody {
		doc.Body = []byte(body)
	}
	doc.CreatedAt = parseTime(createdAt)
	doc.UpdatedAt = parseTime(updatedAt)
	return &doc, nil
}
