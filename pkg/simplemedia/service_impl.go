package simplemedia

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const defaultMaxConflictRetries = 3

// service implements the Service interface
type service struct {
	docs      DocumentStore
	blobStore BlobStore
	codec     ImageCodec
	eventSink EventSink
	logger    *slog.Logger

	destinations       map[string]Destination
	maxConflictRetries int
	now                func() time.Time
	filenames          *filenameGenerator
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithDocumentStore sets the metadata store for the service
func WithDocumentStore(store DocumentStore) Option {
	return func(s *service) {
		s.docs = store
	}
}

// WithBlobStore sets the blob storage backend
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithCodec sets the image codec used to normalize uploads to WebP
func WithCodec(codec ImageCodec) Option {
	return func(s *service) {
		s.codec = codec
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithDestination registers per-destination behavior. Destinations that are
// not registered are archive-eligible.
func WithDestination(name string, dest Destination) Option {
	return func(s *service) {
		if s.destinations == nil {
			s.destinations = make(map[string]Destination)
		}
		dest.Name = name
		s.destinations[normalizeDestination(name)] = dest
	}
}

// WithMaxConflictRetries bounds the read-modify-write attempts of collection updates
func WithMaxConflictRetries(n int) Option {
	return func(s *service) {
		s.maxConflictRetries = n
	}
}

// WithClock overrides the clock used for upload filenames and event times.
// Stored timestamps always come from the document store.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		destinations:       make(map[string]Destination),
		maxConflictRetries: defaultMaxConflictRetries,
		now:                time.Now,
	}

	for _, option := range options {
		option(s)
	}

	if s.docs == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.codec == nil {
		return nil, fmt.Errorf("image codec is required")
	}
	if s.maxConflictRetries < 1 {
		return nil, fmt.Errorf("max conflict retries must be at least 1, got %d", s.maxConflictRetries)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	s.filenames = newFilenameGenerator(s.now)

	return s, nil
}

func normalizeDestination(name string) string {
	return strings.Trim(strings.TrimSpace(name), "/")
}

func (s *service) archiveEnabled(destination string) bool {
	dest, ok := s.destinations[normalizeDestination(destination)]
	if !ok {
		return true
	}
	return dest.Archive
}

func (s *service) reconcile(ctx context.Context, event ReconciliationEvent) {
	event.At = s.now().UTC()
	if err := s.eventSink.ReconciliationNeeded(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to report reconciliation event",
			"err", err, "kind", event.Kind, "url", event.URL, "media_id", event.MediaID)
	}
}

// updateWithRetry runs a read-modify-write cycle against one document,
// committing with UpdateIfVersion and retrying on version conflicts.
// mutate receives the current snapshot (nil if the document does not exist)
// and returns the fields to write, or nil to skip the write.
func (s *service) updateWithRetry(ctx context.Context, collection, id string, mutate func(*Snapshot) (Document, error)) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		snap, err := s.docs.Get(ctx, collection, id)
		if err != nil && !isNotFound(err) {
			return err
		}
		if isNotFound(err) {
			snap = nil
		}

		fields, err := mutate(snap)
		if err != nil {
			return err
		}
		if fields == nil {
			return nil
		}

		var version int64
		if snap != nil {
			version = snap.Version
		}
		err = s.docs.UpdateIfVersion(ctx, collection, id, version, fields)
		if err == nil {
			return nil
		}
		if !isVersionConflict(err) {
			return err
		}
		lastErr = err
		s.logger.WarnContext(ctx, "Document version conflict, retrying",
			"collection", collection, "id", id, "attempt", attempt)
	}
	return fmt.Errorf("update %s/%s gave up after %d attempts: %w", collection, id, s.maxConflictRetries, lastErr)
}
