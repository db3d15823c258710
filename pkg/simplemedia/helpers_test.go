package simplemedia_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/simplemedia"
	docmemory "github.com/tendant/simple-media/pkg/simplemedia/docstore/memory"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

var (
	jpegMagic  = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	webpHeader = []byte("RIFF\x24\x00\x00\x00WEBPVP8 \x18\x00\x00\x00")
)

// jpegOfSize returns a buffer that sniffs as JPEG.
func jpegOfSize(n int) []byte {
	data := make([]byte, n)
	copy(data, jpegMagic)
	return data
}

// fakeCodec turns any non-corrupt input into a fixed WebP payload.
type fakeCodec struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *fakeCodec) ConvertToWebP(ctx context.Context, data []byte, name string) ([]byte, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, "", c.err
	}
	return append([]byte(nil), webpHeader...), simplemedia.WebPName(name), nil
}

func (c *fakeCodec) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// recordingSink keeps every event it receives.
type recordingSink struct {
	mu             sync.Mutex
	ingested       []*simplemedia.MediaEntry
	deleted        []string
	reconciliation []simplemedia.ReconciliationEvent
}

func (r *recordingSink) MediaIngested(ctx context.Context, entry *simplemedia.MediaEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingested = append(r.ingested, entry)
	return nil
}

func (r *recordingSink) MediaDeleted(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *recordingSink) ReconciliationNeeded(ctx context.Context, event simplemedia.ReconciliationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconciliation = append(r.reconciliation, event)
	return nil
}

func (r *recordingSink) Reconciliations() []simplemedia.ReconciliationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]simplemedia.ReconciliationEvent(nil), r.reconciliation...)
}

var errInjected = errors.New("injected failure")

// faultyDocs wraps a DocumentStore and fails selected operations.
type faultyDocs struct {
	simplemedia.DocumentStore
	failCreate map[string]bool
	failDelete map[string]bool
	// beforeCAS runs once before the first conditional update
	beforeCAS func()
}

func (f *faultyDocs) Create(ctx context.Context, collection, id string, fields simplemedia.Document) (string, error) {
	if f.failCreate[collection] {
		return "", simplemedia.Unavailable("test", collection, "create", errInjected)
	}
	return f.DocumentStore.Create(ctx, collection, id, fields)
}

func (f *faultyDocs) Delete(ctx context.Context, collection, id string) error {
	if f.failDelete[collection] {
		return simplemedia.Unavailable("test", collection, "delete", errInjected)
	}
	return f.DocumentStore.Delete(ctx, collection, id)
}

func (f *faultyDocs) UpdateIfVersion(ctx context.Context, collection, id string, version int64, fields simplemedia.Document) error {
	if f.beforeCAS != nil {
		hook := f.beforeCAS
		f.beforeCAS = nil
		hook()
	}
	return f.DocumentStore.UpdateIfVersion(ctx, collection, id, version, fields)
}

// faultyBlobs wraps the memory backend and can refuse deletes.
type faultyBlobs struct {
	*memorystorage.Backend
	failDelete bool
}

func (f *faultyBlobs) Delete(ctx context.Context, urlOrKey string) error {
	if f.failDelete {
		return simplemedia.Unavailable("test", urlOrKey, "delete", errInjected)
	}
	return f.Backend.Delete(ctx, urlOrKey)
}

type fixture struct {
	svc   simplemedia.Service
	docs  *docmemory.Store
	blobs *memorystorage.Backend
	codec *fakeCodec
	sink  *recordingSink
}

var storeEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// steppingClock advances by one second per call.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := storeEpoch
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func setupTestService(t *testing.T, opts ...simplemedia.Option) *fixture {
	t.Helper()
	f := &fixture{
		docs:  docmemory.New(docmemory.WithClock(steppingClock())),
		blobs: memorystorage.New(),
		codec: &fakeCodec{},
		sink:  &recordingSink{},
	}
	base := []simplemedia.Option{
		simplemedia.WithDocumentStore(f.docs),
		simplemedia.WithBlobStore(f.blobs),
		simplemedia.WithCodec(f.codec),
		simplemedia.WithEventSink(f.sink),
	}
	svc, err := simplemedia.New(append(base, opts...)...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func readBlob(t *testing.T, store simplemedia.BlobStore, url string) []byte {
	t.Helper()
	rc, err := store.Download(context.Background(), url)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func imagePolicy() simplemedia.UploadPolicy {
	return simplemedia.UploadPolicy{MaxSizeMB: 10, AllowedMimePrefixes: []string{"image/"}}
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[8:12], []byte("WEBP"))
}
