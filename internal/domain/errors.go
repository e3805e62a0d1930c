// Package domain defines the document primitives, binding requests and errors
// shared by the binding engine, its reconcilers and the outer surfaces.
package domain

import "fmt"

// NotFoundError indicates a primitive was not found in the document.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate primitive or a
// transaction already in progress).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// PipelineMismatchError is returned when a binding would make a mark draw
// from two different pipelines. It is raised before any mutation happens.
type PipelineMismatchError struct {
	MarkID            string
	MarkPipelineID    string
	DatasetID         string
	DatasetPipelineID string
}

func (e *PipelineMismatchError) Error() string {
	return fmt.Sprintf("cross-pipeline binding: mark %s draws from pipeline %s but dataset %s belongs to pipeline %s",
		e.MarkID, e.MarkPipelineID, e.DatasetID, e.DatasetPipelineID)
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}
