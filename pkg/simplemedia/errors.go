package simplemedia

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrValidationFailed indicates a caller-correctable input problem (size, type, URL format)
	ErrValidationFailed = errors.New("validation failed")

	// ErrConversionFailed indicates the image could not be decoded or re-encoded
	ErrConversionFailed = errors.New("image conversion failed")

	// ErrUnsupportedEnvironment indicates the runtime cannot perform raster conversion
	ErrUnsupportedEnvironment = errors.New("image conversion unsupported in this environment")

	// ErrStoreUnavailable indicates a transient blob or document store failure
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound indicates a metadata lookup miss
	ErrNotFound = errors.New("not found")

	// ErrInvalidReorder indicates a reorder request that violates collection invariants
	ErrInvalidReorder = errors.New("invalid reorder")

	// ErrInvalidPath indicates an object key with disallowed characters
	ErrInvalidPath = errors.New("invalid object path")

	// ErrVersionConflict indicates a conditional update lost a race with another writer
	ErrVersionConflict = errors.New("document version conflict")

	// ErrInvalidDocument indicates a stored document does not match the expected shape
	ErrInvalidDocument = errors.New("invalid document")
)

// ValidationError carries a human-readable reason for a rejected request.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ReorderError explains why a reorder was refused. The stored collection is untouched.
type ReorderError struct {
	Collection string
	Reason     string
}

func (e *ReorderError) Error() string {
	return fmt.Sprintf("invalid reorder of %s: %s", e.Collection, e.Reason)
}

func (e *ReorderError) Unwrap() error {
	return ErrInvalidReorder
}

// DeleteError reports a delete where at least one half (metadata or blob) failed.
type DeleteError struct {
	MediaID         string
	URL             string
	MetadataDeleted bool
	BlobDeleted     bool
	Err             error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete of media %s incomplete (metadata deleted: %t, blob deleted: %t): %v",
		e.MediaID, e.MetadataDeleted, e.BlobDeleted, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}

// Partial reports whether one half of the delete succeeded.
func (e *DeleteError) Partial() bool {
	return e.MetadataDeleted != e.BlobDeleted
}

// MediaError represents an error related to media operations
type MediaError struct {
	MediaID string
	Op      string
	Err     error
}

func (e *MediaError) Error() string {
	if e.MediaID == "" {
		return fmt.Sprintf("media operation %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("media operation %s failed for media %s: %v", e.Op, e.MediaID, e.Err)
}

func (e *MediaError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Unavailable wraps a backend transport failure so that it matches ErrStoreUnavailable.
func Unavailable(backend, key, op string, err error) error {
	return &StorageError{
		Backend: backend,
		Key:     key,
		Op:      op,
		Err:     errors.Join(ErrStoreUnavailable, err),
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func isVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
