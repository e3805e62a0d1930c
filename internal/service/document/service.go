// Package document loads documents from the repository, runs bindings and
// dataset edits against them and saves the result together with the
// transactions it produced.
package document

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/semaphore"

	"markbind/internal/binding"
	"markbind/internal/domain"
	"markbind/internal/store"
)

// Binder runs one binding against a loaded document.
type Binder interface {
	Bind(ctx context.Context, doc *store.Document, req domain.BindRequest) error
}

// DocumentService provides the document operations behind the API and CLI.
//
// Mutations are serialized: a binding reconciles against a whole document
// and is not safe to interleave with another write. Waiting for the lock
// honors ctx; a mutation that has started always runs to completion.
type DocumentService struct {
	repo   domain.DocumentRepository
	binder Binder
	writes *semaphore.Weighted
	logger *slog.Logger
}

var _ Binder = (*binding.Binder)(nil)

// NewDocumentService creates a new DocumentService.
func NewDocumentService(repo domain.DocumentRepository, binder Binder, logger *slog.Logger) *DocumentService {
	return &DocumentService{
		repo:   repo,
		binder: binder,
		writes: semaphore.NewWeighted(1),
		logger: logger,
	}
}

// Snapshot is a loaded document with its stored version.
type Snapshot struct {
	Document    *store.Document
	Version     int64
	Fingerprint string
}

// Create stores a new document. An empty ID is assigned.
func (s *DocumentService) Create(ctx context.Context, doc *store.Document) (*Snapshot, error) {
	if doc.Name == "" {
		return nil, domain.ErrValidation("document name is required")
	}
	if doc.ID == "" {
		doc.ID = domain.NewID()
	}
	doc.Normalize()
	if doc.InTransaction() {
		return nil, domain.ErrConflict("document %s has an open transaction", doc.ID)
	}

	body, fp, err := encode(doc)
	if err != nil {
		return nil, err
	}
	rec, err := s.repo.Create(ctx, &domain.DocumentRecord{ID: doc.ID, Name: doc.Name, Body: body, Fingerprint: fp})
	if err != nil {
		return nil, err
	}
	s.logger.Info("document created", "document", rec.ID, "name", rec.Name)
	return s.Get(ctx, rec.ID)
}

// Get loads a document.
func (s *DocumentService) Get(ctx context.Context, id string) (*Snapshot, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := decode(rec.Body)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	return &Snapshot{Document: doc, Version: rec.Version, Fingerprint: rec.Fingerprint}, nil
}

// List returns a page of stored documents without their bodies.
func (s *DocumentService) List(ctx context.Context, page domain.PageRequest) ([]domain.DocumentRecord, int64, error) {
	return s.repo.List(ctx, page)
}

// Delete removes a document and its history.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	if err := s.writes.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.writes.Release(1)
	return s.repo.Delete(ctx, id)
}

// Bind binds a dataset field to a mark property and persists the result.
// It returns the committed transaction.
func (s *DocumentService) Bind(ctx context.Context, documentID string, req domain.BindRequest) (*store.Transaction, error) {
	var tx *store.Transaction
	err := s.mutate(ctx, documentID, func(doc *store.Document) (bool, error) {
		if err := s.binder.Bind(ctx, doc, req); err != nil {
			return false, err
		}
		tx, _ = doc.LastTransaction()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// SetValues replaces a raw dataset's rows. It reports whether the rows
// changed; unchanged rows leave the document and its history untouched.
func (s *DocumentService) SetValues(ctx context.Context, documentID, datasetID string, rows []domain.Row) (bool, error) {
	var changed bool
	err := s.mutate(ctx, documentID, func(doc *store.Document) (bool, error) {
		ds, err := doc.Dataset(datasetID)
		if err != nil {
			return false, err
		}
		if err := doc.Begin(fmt.Sprintf("set values of %s", ds.Name)); err != nil {
			return false, err
		}
		changed, err = doc.SetValues(datasetID, rows)
		if err != nil || !changed {
			if rbErr := doc.Rollback(); rbErr != nil {
				s.logger.Warn("rollback failed", "document", documentID, "error", rbErr)
			}
			return false, err
		}
		if _, err := doc.End(); err != nil {
			return false, err
		}
		s.logger.Info("dataset values replaced",
			"document", documentID,
			"dataset", datasetID,
			"rows", len(rows),
			"invalidated", len(doc.Dependents(datasetID)),
		)
		return true, nil
	})
	return changed, err
}

// Output returns a dataset's materialized rows.
func (s *DocumentService) Output(ctx context.Context, documentID, datasetID string) ([]domain.Row, error) {
	snap, err := s.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return snap.Document.Output(datasetID)
}

// Schema infers the fields of a dataset's output, ready to be bound.
func (s *DocumentService) Schema(ctx context.Context, documentID, datasetID string) ([]domain.FieldSchema, error) {
	rows, err := s.Output(ctx, documentID, datasetID)
	if err != nil {
		return nil, err
	}
	return domain.InferSchema(rows), nil
}

// History returns a page of the document's committed transactions, oldest first.
func (s *DocumentService) History(ctx context.Context, documentID string, page domain.PageRequest) ([]store.Transaction, int64, error) {
	if _, err := s.repo.Get(ctx, documentID); err != nil {
		return nil, 0, err
	}
	recs, total, err := s.repo.ListTransactions(ctx, documentID, page)
	if err != nil {
		return nil, 0, err
	}
	out := make([]store.Transaction, 0, len(recs))
	for _, r := range recs {
		t := store.Transaction{ID: r.ID, Label: r.Label, CommittedAt: r.CommittedAt}
		if err := json.Unmarshal(r.Changes, &t.Changes); err != nil {
			return nil, 0, fmt.Errorf("transaction %s: decode changes: %w", r.ID, err)
		}
		out = append(out, t)
	}
	return out, total, nil
}

// mutate loads a document, applies fn and, when fn reports a change, saves
// the document along with every transaction fn committed.
func (s *DocumentService) mutate(ctx context.Context, id string, fn func(*store.Document) (bool, error)) error {
	if err := s.writes.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.writes.Release(1)

	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	doc, err := decode(rec.Body)
	if err != nil {
		return fmt.Errorf("document %s: %w", id, err)
	}
	loaded := len(doc.History)

	changed, err := fn(doc)
	if err != nil || !changed {
		return err
	}

	txs := make([]domain.TransactionRecord, 0, len(doc.History)-loaded)
	for _, t := range doc.History[loaded:] {
		changes, err := json.Marshal(t.Changes)
		if err != nil {
			return fmt.Errorf("encode transaction %s: %w", t.ID, err)
		}
		txs = append(txs, domain.TransactionRecord{
			ID:          t.ID,
			DocumentID:  id,
			Label:       t.Label,
			Changes:     changes,
			CommittedAt: t.CommittedAt,
		})
	}

	body, fp, err := encode(doc)
	if err != nil {
		return err
	}
	_, err = s.repo.Update(ctx, &domain.DocumentRecord{
		ID:          id,
		Name:        doc.Name,
		Body:        body,
		Fingerprint: fp,
		Version:     rec.Version,
	}, txs)
	if err != nil {
		return fmt.Errorf("save document %s: %w", id, err)
	}
	return nil
}

// encode serializes a document for storage. The history lives in the
// repository's transaction log, not in the body.
func encode(doc *store.Document) (json.RawMessage, string, error) {
	stored := *doc
	stored.History = nil
	body, err := json.Marshal(&stored)
	if err != nil {
		return nil, "", fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	return body, Fingerprint(body), nil
}

func decode(body []byte) (*store.Document, error) {
	var doc store.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return doc.Normalize(), nil
}

// Fingerprint is the hex xxh3 hash of a stored document body.
func Fingerprint(body []byte) string {
	return strconv.FormatUint(xxh3.Hash(body), 16)
}
