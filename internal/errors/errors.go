package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a seatwatch error code.
type ErrorCode string

const (
	ErrAcquisitionFailed  ErrorCode = "ACQUISITION_FAILED"  // 502
	ErrPersistenceFailed  ErrorCode = "PERSISTENCE_FAILED"  // 500
	ErrNotificationFailed ErrorCode = "NOTIFICATION_FAILED" // 502
	ErrInvalidDocument    ErrorCode = "INVALID_DOCUMENT"    // 422
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrInternal           ErrorCode = "INTERNAL"            // 500
)

// WatchError represents a structured error with code, status, and details.
type WatchError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *WatchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *WatchError) Unwrap() error {
	return e.Err
}

// NewAcquisitionFailed creates a 502 error for a failed capacity observation.
// The probe folds these into error snapshots; they never escape a check run.
func NewAcquisitionFailed(err error) *WatchError {
	return &WatchError{
		Code:    ErrAcquisitionFailed,
		Status:  502,
		Message: causeMessage(err, "acquisition failed"),
		Err:     err,
	}
}

// NewPersistenceFailed creates a 500 error for a status document read or write failure.
func NewPersistenceFailed(path string, err error) *WatchError {
	return &WatchError{
		Code:    ErrPersistenceFailed,
		Status:  500,
		Message: fmt.Sprintf("status document %s: %s", path, causeMessage(err, "persistence failed")),
		Details: map[string]any{"path": path},
		Err:     err,
	}
}

// NewNotificationFailed creates a 502 error for a notifier that could not deliver.
func NewNotificationFailed(notifier string, err error) *WatchError {
	return &WatchError{
		Code:    ErrNotificationFailed,
		Status:  502,
		Message: fmt.Sprintf("%s notifier: %s", notifier, causeMessage(err, "delivery failed")),
		Details: map[string]any{"notifier": notifier},
		Err:     err,
	}
}

// NewInvalidDocument creates a 422 error for a document that violates the status model.
func NewInvalidDocument(msg string) *WatchError {
	return &WatchError{
		Code:    ErrInvalidDocument,
		Status:  422,
		Message: msg,
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *WatchError {
	return &WatchError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing resource.
func NewNotFound(identifier string) *WatchError {
	return &WatchError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *WatchError {
	return &WatchError{
		Code:    ErrInternal,
		Status:  500,
		Message: causeMessage(err, "internal error"),
		Err:     err,
	}
}

// Is checks if err, or any error it wraps, is a WatchError with the given code.
func Is(err error, code ErrorCode) bool {
	var wErr *WatchError
	if stderrors.As(err, &wErr) {
		return wErr.Code == code
	}
	return false
}

func causeMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}
