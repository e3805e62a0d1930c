// Package api serves documents, bindings and dataset operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"markbind/internal/domain"
	"markbind/internal/service/document"
	"markbind/internal/store"
)

// maxBodyBytes caps request bodies; documents embed their dataset rows.
const maxBodyBytes = 16 << 20

// DocumentService is the document surface the handlers drive.
type DocumentService interface {
	Create(ctx context.Context, doc *store.Document) (*document.Snapshot, error)
	Get(ctx context.Context, id string) (*document.Snapshot, error)
	List(ctx context.Context, page domain.PageRequest) ([]domain.DocumentRecord, int64, error)
	Delete(ctx context.Context, id string) error
	Bind(ctx context.Context, documentID string, req domain.BindRequest) (*store.Transaction, error)
	SetValues(ctx context.Context, documentID, datasetID string, rows []domain.Row) (bool, error)
	Output(ctx context.Context, documentID, datasetID string) ([]domain.Row, error)
	Schema(ctx context.Context, documentID, datasetID string) ([]domain.FieldSchema, error)
	History(ctx context.Context, documentID string, page domain.PageRequest) ([]store.Transaction, int64, error)
}

var _ DocumentService = (*document.DocumentService)(nil)

// Handler implements the HTTP endpoints.
type Handler struct {
	docs   DocumentService
	logger *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(docs DocumentService, logger *slog.Logger) *Handler {
	return &Handler{docs: docs, logger: logger}
}

type documentResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Version     int64           `json:"version"`
	Fingerprint string          `json:"fingerprint"`
	Document    *store.Document `json:"document"`
}

type documentSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Version     int64     `json:"version"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type documentList struct {
	Documents     []documentSummary `json:"documents"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

type historyList struct {
	Transactions  []store.Transaction `json:"transactions"`
	NextPageToken string              `json:"nextPageToken,omitempty"`
}

func snapshotToAPI(s *document.Snapshot) documentResponse {
	return documentResponse{
		ID:          s.Document.ID,
		Name:        s.Document.Name,
		Version:     s.Version,
		Fingerprint: s.Fingerprint,
		Document:    s.Document,
	}
}

func etag(fingerprint string) string {
	return strconv.Quote(fingerprint)
}

// === Documents ===

func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request) {
	var doc store.Document
	if err := decodeBody(w, r, &doc); err != nil {
		h.writeError(w, r, err)
		return
	}
	snap, err := h.docs.Create(r.Context(), &doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(snap.Fingerprint))
	writeJSON(w, http.StatusCreated, snapshotToAPI(snap))
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	recs, total, err := h.docs.List(r.Context(), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := documentList{
		Documents:     make([]documentSummary, 0, len(recs)),
		NextPageToken: domain.NextPageToken(page.Offset(), page.Limit(), total),
	}
	for _, rec := range recs {
		out.Documents = append(out.Documents, documentSummary{
			ID:          rec.ID,
			Name:        rec.Name,
			Version:     rec.Version,
			Fingerprint: rec.Fingerprint,
			CreatedAt:   rec.CreatedAt,
			UpdatedAt:   rec.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	snap, err := h.docs.Get(r.Context(), chi.URLParam(r, "documentId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	tag := etag(snap.Fingerprint)
	w.Header().Set("ETag", tag)
	if r.Header.Get("If-None-Match") == tag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, snapshotToAPI(snap))
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.docs.Delete(r.Context(), chi.URLParam(r, "documentId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	txs, total, err := h.docs.History(r.Context(), chi.URLParam(r, "documentId"), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyList{
		Transactions:  txs,
		NextPageToken: domain.NextPageToken(page.Offset(), page.Limit(), total),
	})
}

// === Bindings ===

func (h *Handler) createBinding(w http.ResponseWriter, r *http.Request) {
	var req domain.BindRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	tx, err := h.docs.Bind(r.Context(), chi.URLParam(r, "documentId"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// === Datasets ===

func (h *Handler) setDatasetValues(w http.ResponseWriter, r *http.Request) {
	var rows []domain.Row
	if err := decodeBody(w, r, &rows); err != nil {
		h.writeError(w, r, err)
		return
	}
	changed, err := h.docs.SetValues(r.Context(), chi.URLParam(r, "documentId"), chi.URLParam(r, "datasetId"), rows)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

func (h *Handler) getDatasetOutput(w http.ResponseWriter, r *http.Request) {
	rows, err := h.docs.Output(r.Context(), chi.URLParam(r, "documentId"), chi.URLParam(r, "datasetId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []domain.Row{}
	}
	writeJSON(w, http.StatusOK, map[string][]domain.Row{"rows": rows})
}

func (h *Handler) getDatasetSchema(w http.ResponseWriter, r *http.Request) {
	fields, err := h.docs.Schema(r.Context(), chi.URLParam(r, "documentId"), chi.URLParam(r, "datasetId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if fields == nil {
		fields = []domain.FieldSchema{}
	}
	writeJSON(w, http.StatusOK, map[string][]domain.FieldSchema{"fields": fields})
}

// === helpers ===

// decodeBody reads a JSON request body into v. Malformed bodies are
// validation errors.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return domain.ErrValidation("invalid request body: %v", err)
	}
	return nil
}

// pageFromQuery extracts a PageRequest from optional max_results/page_token params.
func pageFromQuery(r *http.Request) (domain.PageRequest, error) {
	q := r.URL.Query()
	p := domain.PageRequest{PageToken: q.Get("page_token")}
	if v := q.Get("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, domain.ErrValidation("max_results must be a positive integer, got %q", v)
		}
		p.MaxResults = n
	}
	return p, nil
}
