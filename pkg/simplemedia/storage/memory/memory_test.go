package memory_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/simplemedia"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

func TestMemoryBackend(t *testing.T) {
	backend := memorystorage.New()
	ctx := context.Background()
	testKey := "media/beach_1700000000000.webp"
	testData := "RIFF....WEBPVP8 "

	var url string
	t.Run("Upload", func(t *testing.T) {
		var err error
		url, err = backend.Upload(ctx, testKey, strings.NewReader(testData), simplemedia.UploadParams{MimeType: "image/webp"})
		require.NoError(t, err)
		assert.Equal(t, memorystorage.BaseURL+"/"+testKey, url)
		assert.Equal(t, 1, backend.Uploads())
	})

	t.Run("GetObjectMeta", func(t *testing.T) {
		meta, err := backend.GetObjectMeta(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, testKey, meta.Key)
		assert.Equal(t, int64(len(testData)), meta.Size)
		assert.Equal(t, "image/webp", meta.ContentType)
	})

	t.Run("Download by URL", func(t *testing.T) {
		reader, err := backend.Download(ctx, url)
		require.NoError(t, err)
		defer reader.Close()

		data, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, testData, string(data))
	})

	t.Run("Upload overwrites", func(t *testing.T) {
		_, err := backend.Upload(ctx, testKey, strings.NewReader("second"), simplemedia.UploadParams{})
		require.NoError(t, err)

		reader, err := backend.Download(ctx, testKey)
		require.NoError(t, err)
		data, _ := io.ReadAll(reader)
		assert.Equal(t, "second", string(data))
		assert.Equal(t, 1, backend.Len())
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, url))
		_, err := backend.Download(ctx, testKey)
		assert.True(t, errors.Is(err, simplemedia.ErrNotFound))
	})

	t.Run("Delete missing object", func(t *testing.T) {
		assert.NoError(t, backend.Delete(ctx, "media/missing.webp"))
	})

	t.Run("Invalid keys", func(t *testing.T) {
		_, err := backend.Upload(ctx, "../escape.webp", strings.NewReader("x"), simplemedia.UploadParams{})
		assert.True(t, errors.Is(err, simplemedia.ErrInvalidPath))
	})
}
