package simplemedia

import (
	"context"
	"io"
	"time"
)

// ImageCodec normalizes raster images to WebP.
type ImageCodec interface {
	// ConvertToWebP re-encodes data as WebP and returns the new bytes and name.
	// WebP input is returned unchanged.
	ConvertToWebP(ctx context.Context, data []byte, originalName string) ([]byte, string, error)
}

// BlobStore defines the interface for storage backends
type BlobStore interface {
	// Upload writes the reader to objectKey, replacing any existing object,
	// and returns a URL that resolves to the stored bytes.
	Upload(ctx context.Context, objectKey string, reader io.Reader, params UploadParams) (string, error)

	// Download reads an object by URL or key
	Download(ctx context.Context, urlOrKey string) (io.ReadCloser, error)

	// Delete removes an object by URL or key. Missing objects are not an error.
	Delete(ctx context.Context, urlOrKey string) error

	// GetObjectMeta retrieves metadata for an object
	GetObjectMeta(ctx context.Context, urlOrKey string) (*ObjectMeta, error)
}

// DocumentStore persists schemaless documents grouped in named collections.
type DocumentStore interface {
	// Create stores fields under id, or under a store-assigned id when id is empty.
	// An existing document with the same id is replaced.
	Create(ctx context.Context, collection, id string, fields Document) (string, error)

	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, collection, id string) (*Snapshot, error)

	// Query returns every document of the collection ordered by q.OrderBy.
	// Documents without the field sort last.
	Query(ctx context.Context, collection string, q Query) (DocumentIterator, error)

	// Update merges fields into an existing document.
	Update(ctx context.Context, collection, id string, fields Document) error

	// UpdateIfVersion merges fields only when the stored version equals version,
	// otherwise it returns ErrVersionConflict. Version 0 creates the document
	// and conflicts if it already exists. Stored versions start at 1.
	UpdateIfVersion(ctx context.Context, collection, id string, version int64, fields Document) error

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Now returns the store's clock, used for ServerTimestamp fields.
	Now(ctx context.Context) (time.Time, error)
}

// DocumentIterator is a lazy, single-pass sequence of snapshots.
type DocumentIterator interface {
	Next(ctx context.Context) bool
	Snapshot() *Snapshot
	Err() error
	Close(ctx context.Context) error
}

// EventSink receives lifecycle and reconciliation events.
type EventSink interface {
	// MediaIngested is fired after a successful ingest
	MediaIngested(ctx context.Context, entry *MediaEntry) error

	// MediaDeleted is fired after a media entry is removed
	MediaDeleted(ctx context.Context, mediaID string) error

	// ReconciliationNeeded is fired when a blob and its metadata diverge
	ReconciliationNeeded(ctx context.Context, event ReconciliationEvent) error
}

// ReconciliationKind names the kind of divergence.
type ReconciliationKind string

const (
	// OrphanedBlob is a stored blob without a metadata record
	OrphanedBlob ReconciliationKind = "orphaned_blob"
	// DanglingMetadata is a metadata record whose blob could not be removed or written
	DanglingMetadata ReconciliationKind = "dangling_metadata"
)

// ReconciliationEvent describes a blob/metadata divergence for operators to sweep.
type ReconciliationEvent struct {
	Kind      ReconciliationKind `json:"kind"`
	MediaID   string             `json:"media_id,omitempty"`
	URL       string             `json:"url,omitempty"`
	ObjectKey string             `json:"object_key,omitempty"`
	Op        string             `json:"op"`
	Reason    string             `json:"reason"`
	At        time.Time          `json:"at"`
}
