package minio

import (
	"context"
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/simplemedia"
)

func TestNew(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, Config{Bucket: "media"})
	assert.Error(t, err)

	_, err = New(ctx, Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)

	b, err := New(ctx, Config{Endpoint: "localhost:9000", Bucket: "media", AccessKeyID: "k", SecretAccessKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/media/ads/x.webp", b.urls.URL("ads/x.webp"))
}

func TestPublicBaseURL(t *testing.T) {
	assert.Equal(t, "https://s3.example.com/media",
		publicBaseURL(Config{Endpoint: "s3.example.com", Bucket: "media", UseSSL: true}))
	assert.Equal(t, "https://cdn.example.com",
		publicBaseURL(Config{Endpoint: "s3.example.com", Bucket: "media", PublicBaseURL: "https://cdn.example.com"}))
}

func TestMapError(t *testing.T) {
	err := mapError("media/x.webp", "stat", minio.ErrorResponse{Code: "NoSuchKey"})
	assert.True(t, errors.Is(err, simplemedia.ErrNotFound))

	err = mapError("media/x.webp", "stat", errors.New("dial tcp: connection refused"))
	assert.True(t, errors.Is(err, simplemedia.ErrStoreUnavailable))
}
