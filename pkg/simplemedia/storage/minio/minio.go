package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/urlstrategy"
)

const backendName = "minio"

// Config options for the MinIO backend
type Config struct {
	Endpoint        string // host:port, without scheme
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	PublicBaseURL   string // Defaults to <scheme>://<endpoint>/<bucket>
	EnsureBucket    bool   // Create the bucket on startup if it is missing
}

// Backend stores objects in a MinIO bucket
type Backend struct {
	client *minio.Client
	bucket string
	urls   urlstrategy.Mapper
}

// New creates a MinIO client. No request is made unless EnsureBucket is set.
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	b := &Backend{
		client: client,
		bucket: config.Bucket,
		urls:   urlstrategy.NewPublicURL(publicBaseURL(config)),
	}

	if config.EnsureBucket {
		if err := b.ensureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
		}
	}
	return b, nil
}

func publicBaseURL(config Config) string {
	if config.PublicBaseURL != "" {
		return config.PublicBaseURL
	}
	scheme := "http"
	if config.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, strings.TrimRight(config.Endpoint, "/"), config.Bucket)
}

func (b *Backend) ensureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Upload streams the reader into the bucket, replacing any existing object
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader, params simplemedia.UploadParams) (string, error) {
	if err := simplemedia.ValidateObjectKey(objectKey); err != nil {
		return "", err
	}

	contentType := params.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := b.client.PutObject(ctx, b.bucket, objectKey, reader, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", simplemedia.Unavailable(backendName, objectKey, "upload", err)
	}
	return b.urls.URL(objectKey), nil
}

func (b *Backend) Download(ctx context.Context, urlOrKey string) (io.ReadCloser, error) {
	key, err := b.urls.Key(urlOrKey)
	if err != nil {
		return nil, err
	}

	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapError(key, "download", err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller reads
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, mapError(key, "download", err)
	}
	return obj, nil
}

// Delete removes an object. MinIO reports success for missing keys.
func (b *Backend) Delete(ctx context.Context, urlOrKey string) error {
	key, err := b.urls.Key(urlOrKey)
	if err != nil {
		return err
	}

	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return simplemedia.Unavailable(backendName, key, "delete", err)
	}
	return nil
}

func (b *Backend) GetObjectMeta(ctx context.Context, urlOrKey string) (*simplemedia.ObjectMeta, error) {
	key, err := b.urls.Key(urlOrKey)
	if err != nil {
		return nil, err
	}

	info, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, mapError(key, "stat", err)
	}

	metadata := make(map[string]string, len(info.UserMetadata)+1)
	for k, v := range info.UserMetadata {
		metadata[k] = v
	}
	metadata["content_type"] = info.ContentType

	return &simplemedia.ObjectMeta{
		Key:         key,
		Size:        info.Size,
		ContentType: info.ContentType,
		UpdatedAt:   info.LastModified.UTC(),
		ETag:        strings.Trim(info.ETag, "\""),
		Metadata:    metadata,
	}, nil
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject", "NotFound":
		return true
	}
	return false
}

func mapError(key, op string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: object %s", simplemedia.ErrNotFound, key)
	}
	return simplemedia.Unavailable(backendName, key, op, err)
}
