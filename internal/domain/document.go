package domain

import (
	"encoding/json"
	"time"
)

// DocumentRecord is a persisted document snapshot. Body holds the document's
// JSON encoding; Version increments on every save and guards concurrent writers.
type DocumentRecord struct {
	ID          string
	Name        string
	Body        json.RawMessage
	Fingerprint string
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TransactionRecord is one committed history transaction in a document's log.
// Seq orders transactions within a document, starting at 1.
type TransactionRecord struct {
	ID          string
	DocumentID  string
	Seq         int64
	Label       string
	Changes     json.RawMessage
	CommittedAt time.Time
}
