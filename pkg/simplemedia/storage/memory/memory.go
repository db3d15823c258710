package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/urlstrategy"
)

// BaseURL prefixes the URLs returned by the in-memory backend.
const BaseURL = "memory://objects"

type object struct {
	data      []byte
	mimeType  string
	updatedAt time.Time
}

// Backend is an in-memory implementation of the simplemedia.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
	urls    urlstrategy.Mapper
	uploads int
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string]object),
		urls:    urlstrategy.NewPublicURL(BaseURL),
	}
}

// Upload stores a copy of the reader's bytes, replacing any existing object
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader, params simplemedia.UploadParams) (string, error) {
	if err := simplemedia.ValidateObjectKey(objectKey); err != nil {
		return "", err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read upload data: %w", err)
	}

	mimeType := params.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[objectKey] = object{data: data, mimeType: mimeType, updatedAt: time.Now().UTC()}
	b.uploads++
	return b.urls.URL(objectKey), nil
}

// Download returns the object referenced by a URL or key
func (b *Backend) Download(ctx context.Context, urlOrKey string) (io.ReadCloser, error) {
	key, err := b.urls.Key(urlOrKey)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, fmt.Errorf("%w: object %s", simplemedia.ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete removes an object. Missing objects are ignored.
func (b *Backend) Delete(ctx context.Context, urlOrKey string) error {
	key, err := b.urls.Key(urlOrKey)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.objects, key)
	return nil
}

// GetObjectMeta retrieves metadata for an object in memory
func (b *Backend) GetObjectMeta(ctx context.Context, urlOrKey string) (*simplemedia.ObjectMeta, error) {
	key, err := b.urls.Key(urlOrKey)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, fmt.Errorf("%w: object %s", simplemedia.ErrNotFound, key)
	}
	return &simplemedia.ObjectMeta{
		Key:         key,
		Size:        int64(len(obj.data)),
		ContentType: obj.mimeType,
		UpdatedAt:   obj.updatedAt,
		Metadata:    map[string]string{"mime_type": obj.mimeType},
	}, nil
}

// Len returns the number of stored objects
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

// Uploads returns the number of successful Upload calls
func (b *Backend) Uploads() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.uploads
}
