package simplemedia

import (
	"context"
)

// Service defines the main interface for the simple-media library
type Service interface {
	// Ingest operations
	IngestAndArchive(ctx context.Context, req IngestRequest) (*IngestResult, error)

	// Media operations
	GetMedia(ctx context.Context, id string) (*MediaEntry, error)
	ListMedia(ctx context.Context, req ListMediaRequest) ([]*MediaEntry, error)
	DeleteMedia(ctx context.Context, id, url string) error
	DeleteBlob(ctx context.Context, url string) error

	// Archive operations
	ListArchive(ctx context.Context) ([]*ArchiveImage, error)

	// Positioned collection operations
	ListPositioned(ctx context.Context, collection string) ([]PositionedEntry, error)
	InsertPositioned(ctx context.Context, collection string, entry PositionedEntry) error
	RemovePositioned(ctx context.Context, collection string, match PositionedMatch) error
	ReorderPositioned(ctx context.Context, collection string, entries []PositionedEntry) error
	MigratePositioned(ctx context.Context, collection string) (int, error)

	// Screen carousel operations
	ListCarousel(ctx context.Context, name string) ([]ScreenCarouselEntry, error)
	AppendCarousel(ctx context.Context, name string, entry ScreenCarouselEntry) error
	RemoveCarouselAt(ctx context.Context, name string, index int) error
}
