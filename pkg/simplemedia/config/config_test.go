package config

import (
	"bytes"
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/simplemedia"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.DatabaseType)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 80, cfg.WebPQuality)
	assert.Equal(t, 3, cfg.MaxConflictRetries)
}

func TestOptions(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{"empty port", []Option{WithPort("")}, true},
		{"unknown database", []Option{WithDatabase("mysql", "x")}, true},
		{"postgres without url", []Option{WithDatabase("postgres", "")}, true},
		{"mongo", []Option{WithDatabase("mongo", "mongodb://localhost"), WithMongoDatabase("media")}, false},
		{"fs without dir", []Option{WithFilesystemStorage("", "")}, true},
		{"fs", []Option{WithFilesystemStorage(t.TempDir(), "https://cdn.example.com")}, false},
		{"s3 without bucket", []Option{WithS3Storage(StorageConfig{})}, true},
		{"minio without endpoint", []Option{WithMinioStorage(StorageConfig{Bucket: "media"})}, true},
		{"quality out of range", []Option{WithWebPQuality(101)}, true},
		{"nil option is skipped", []Option{nil, WithPort("1")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.opts...)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuildService_Memory(t *testing.T) {
	cfg, err := Load(WithNoArchive("drafts"))
	require.NoError(t, err)

	rt, err := cfg.BuildService(context.Background(), nil)
	require.NoError(t, err)
	defer rt.Close()

	require.NotNil(t, rt.Service)
	assert.NotNil(t, rt.Registry)
	assert.Nil(t, rt.Reconcile)

	webp := []byte("RIFF\x24\x00\x00\x00WEBPVP8 \x18\x00\x00\x00")
	res, err := rt.Service.IngestAndArchive(context.Background(), simplemedia.IngestRequest{
		Data:        webp,
		FileName:    "banner.webp",
		Destination: "drafts",
		Policy:      simplemedia.UploadPolicy{MaxSizeMB: 1, AllowedMimePrefixes: []string{"image/"}},
	})
	require.NoError(t, err)
	assert.Empty(t, res.ArchiveID)

	archive, err := rt.Service.ListArchive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, archive)
}

func TestBuildService_FilesystemAndRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg, err := Load(
		WithFilesystemStorage(t.TempDir(), ""),
		WithRedis("redis://"+mr.Addr()),
		WithMetrics(false),
	)
	require.NoError(t, err)

	rt, err := cfg.BuildService(context.Background(), nil)
	require.NoError(t, err)
	defer rt.Close()

	require.NotNil(t, rt.Reconcile)
	assert.Nil(t, rt.Registry)

	url, err := rt.Blobs.Upload(context.Background(), "media/x.webp", bytes.NewReader([]byte("x")), simplemedia.UploadParams{})
	require.NoError(t, err)
	assert.Contains(t, url, "file://")
}

func TestBuildService_Unreachable(t *testing.T) {
	cfg, err := Load(WithRedis("redis://127.0.0.1:1"))
	require.NoError(t, err)

	_, err = cfg.BuildService(context.Background(), nil)
	assert.Error(t, err)
}
