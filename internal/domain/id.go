package domain

import (
	"github.com/google/uuid"
)

// NewID generates a UUIDv7 string for document primitives and transactions.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
