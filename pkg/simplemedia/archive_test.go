package simplemedia_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/simplemedia"
	docmemory "github.com/tendant/simple-media/pkg/simplemedia/docstore/memory"
	fsstorage "github.com/tendant/simple-media/pkg/simplemedia/storage/fs"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

func TestDeleteMedia_URLMustBelongToEntry(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	a, err := f.svc.IngestAndArchive(ctx, simplemedia.IngestRequest{
		Data: jpegOfSize(64), FileName: "a.jpg", Destination: "ads", Policy: imagePolicy(),
	})
	require.NoError(t, err)
	b, err := f.svc.IngestAndArchive(ctx, simplemedia.IngestRequest{
		Data: jpegOfSize(64), FileName: "b.jpg", Destination: "ads", Policy: imagePolicy(),
	})
	require.NoError(t, err)

	err = f.svc.DeleteMedia(ctx, a.MediaID, b.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, simplemedia.ErrValidationFailed), "got %v", err)

	// nothing was touched
	_, err = f.svc.GetMedia(ctx, a.MediaID)
	require.NoError(t, err)
	_, err = f.svc.GetMedia(ctx, b.MediaID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.blobs.Len())
	assert.Empty(t, f.sink.Reconciliations())

	t.Run("object key is accepted", func(t *testing.T) {
		entry, err := f.svc.GetMedia(ctx, a.MediaID)
		require.NoError(t, err)
		require.NoError(t, f.svc.DeleteMedia(ctx, a.MediaID, entry.ObjectKey))

		_, err = f.blobs.Download(ctx, a.URL)
		assert.True(t, errors.Is(err, simplemedia.ErrNotFound))
		assert.Equal(t, webpHeader, readBlob(t, f.blobs, b.URL))
	})

	t.Run("missing entry", func(t *testing.T) {
		err := f.svc.DeleteMedia(ctx, "missing", b.URL)
		assert.True(t, errors.Is(err, simplemedia.ErrNotFound))
		assert.Equal(t, 1, f.blobs.Len())
	})
}

func TestDeleteBlob_ReturnsStorageError(t *testing.T) {
	blobs := &faultyBlobs{Backend: memorystorage.New(), failDelete: true}
	svc, err := simplemedia.New(
		simplemedia.WithDocumentStore(docmemory.New()),
		simplemedia.WithBlobStore(blobs),
		simplemedia.WithCodec(&fakeCodec{}),
	)
	require.NoError(t, err)

	err = svc.DeleteBlob(context.Background(), "memory://ads/x.webp")
	require.Error(t, err)
	assert.True(t, errors.Is(err, simplemedia.ErrStoreUnavailable))

	var derr *simplemedia.DeleteError
	assert.False(t, errors.As(err, &derr), "no metadata was involved")

	assert.True(t, errors.Is(svc.DeleteBlob(context.Background(), ""), simplemedia.ErrValidationFailed))
}

func TestIngest_LongFileNameOnFilesystem(t *testing.T) {
	blobs, err := fsstorage.New(fsstorage.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	svc, err := simplemedia.New(
		simplemedia.WithDocumentStore(docmemory.New()),
		simplemedia.WithBlobStore(blobs),
		simplemedia.WithCodec(&fakeCodec{}),
	)
	require.NoError(t, err)
	ctx := context.Background()

	res, err := svc.IngestAndArchive(ctx, simplemedia.IngestRequest{
		Data:        jpegOfSize(64),
		FileName:    strings.Repeat("a", 300) + ".jpg",
		Destination: "ads",
		Policy:      imagePolicy(),
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Name), 255)
	assert.True(t, strings.HasSuffix(res.Name, ".webp"))
	assert.Equal(t, webpHeader, readBlob(t, blobs, res.URL))
}
