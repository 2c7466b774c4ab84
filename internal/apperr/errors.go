// Package apperr holds the sentinel errors shared by the content layers.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	// ErrNotImplemented marks capabilities the file-backed source does not offer
	// (create, delete, upload, publish). Callers treat it as capability-absent.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnknownModel is returned when a record's type names no registered model.
	ErrUnknownModel = errors.New("unknown model")

	// ErrUnsupportedFieldType aborts a conversion whose schema uses a field type
	// the converter cannot handle.
	ErrUnsupportedFieldType = errors.New("unsupported field type")

	ErrInvalidPath = errors.New("invalid field path")

	// ErrInvalidOperation marks an update operation missing its payload.
	ErrInvalidOperation = errors.New("invalid operation")
)
