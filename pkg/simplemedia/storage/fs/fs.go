package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/urlstrategy"
)

const backendName = "fs"

// Backend is a filesystem implementation of the simplemedia.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	baseDir string
	urls    urlstrategy.Mapper
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
	BaseURL string // Public URL prefix, defaults to file://<abs BaseDir>
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	baseDir, err := filepath.Abs(config.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "file://" + filepath.ToSlash(baseDir)
	}

	return &Backend{
		baseDir: baseDir,
		urls:    urlstrategy.NewPublicURL(baseURL),
	}, nil
}

func (b *Backend) path(urlOrKey string) (string, string, error) {
	key, err := b.urls.Key(urlOrKey)
	if err != nil {
		return "", "", err
	}
	return key, filepath.Join(b.baseDir, filepath.FromSlash(key)), nil
}

// Upload writes the object through a temporary file and renames it into
// place, replacing any existing object.
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader, params simplemedia.UploadParams) (string, error) {
	if err := simplemedia.ValidateObjectKey(objectKey); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	filePath := filepath.Join(b.baseDir, filepath.FromSlash(objectKey))

	b.mu.Lock()
	defer b.mu.Unlock()

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", simplemedia.Unavailable(backendName, objectKey, "upload", fmt.Errorf("failed to create directory: %w", err))
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", simplemedia.Unavailable(backendName, objectKey, "upload", fmt.Errorf("failed to create file: %w", err))
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return "", simplemedia.Unavailable(backendName, objectKey, "upload", fmt.Errorf("failed to write file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return "", simplemedia.Unavailable(backendName, objectKey, "upload", fmt.Errorf("failed to close file: %w", err))
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return "", simplemedia.Unavailable(backendName, objectKey, "upload", fmt.Errorf("failed to move file into place: %w", err))
	}

	return b.urls.URL(objectKey), nil
}

// Download opens the object referenced by a URL or key
func (b *Backend) Download(ctx context.Context, urlOrKey string) (io.ReadCloser, error) {
	key, filePath, err := b.path(urlOrKey)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: object %s", simplemedia.ErrNotFound, key)
	} else if err != nil {
		return nil, simplemedia.Unavailable(backendName, key, "download", err)
	}
	return file, nil
}

// Delete removes the object and any parent directories left empty.
// Deleting a missing object is not an error.
func (b *Backend) Delete(ctx context.Context, urlOrKey string) error {
	key, filePath, err := b.path(urlOrKey)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return simplemedia.Unavailable(backendName, key, "delete", fmt.Errorf("failed to delete file: %w", err))
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// GetObjectMeta retrieves metadata for an object in the filesystem
func (b *Backend) GetObjectMeta(ctx context.Context, urlOrKey string) (*simplemedia.ObjectMeta, error) {
	key, filePath, err := b.path(urlOrKey)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: object %s", simplemedia.ErrNotFound, key)
	} else if err != nil {
		return nil, simplemedia.Unavailable(backendName, key, "stat", err)
	}

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(filePath); err == nil {
		contentType = strings.SplitN(mt.String(), ";", 2)[0]
	}

	return &simplemedia.ObjectMeta{
		Key:         key,
		Size:        info.Size(),
		ContentType: contentType,
		UpdatedAt:   info.ModTime().UTC(),
		Metadata:    map[string]string{"content_type": contentType},
	}, nil
}

// cleanupEmptyDirectories recursively removes empty directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir || !strings.HasPrefix(dir, b.baseDir) {
		return
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}
