package simplemedia

import (
	"time"
)

// Document collection names used by the service.
const (
	CollectionMedia      = "media"
	CollectionArchive    = "archive"
	CollectionPositioned = "positioned"
	CollectionCarousels  = "carousels"
)

// Unpositioned is the position of legacy entries stored without one. Valid
// positions start at 1, so it never collides with a real slot.
const Unpositioned = 0

// MediaEntry is the metadata record for one uploaded blob.
type MediaEntry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Destination string    `json:"destination,omitempty"`
	ObjectKey   string    `json:"object_key,omitempty"`
	MimeType    string    `json:"mime_type,omitempty"`
	Size        int64     `json:"size,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ArchiveImage is a reusable reference to a previously uploaded image.
type ArchiveImage struct {
	ID        string     `json:"id"`
	ImageURL  string     `json:"image_url"`
	MediaID   string     `json:"media_id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// PositionedEntry is one slot of an ordered collection (advertisements, slides).
type PositionedEntry struct {
	ImageURL       string `json:"imageUrl" validate:"required"`
	Position       int    `json:"position" validate:"gte=0"`
	RedirectionURL string `json:"redirectionURL,omitempty" validate:"omitempty,url"`
}

// IsPositioned reports whether the entry occupies a real slot.
func (e PositionedEntry) IsPositioned() bool {
	return e.Position >= 1
}

// identity is the part of an entry that survives a reorder.
func (e PositionedEntry) identity() string {
	return e.ImageURL + "\x00" + e.RedirectionURL
}

// PositionedMatch selects entries for removal.
type PositionedMatch struct {
	ImageURL string `json:"imageUrl" validate:"required"`
	Position int    `json:"position"`
}

// ScreenCarouselEntry is an item of an append-only carousel.
type ScreenCarouselEntry struct {
	ImageURL     string    `json:"imageUrl" validate:"required"`
	CarouselName string    `json:"carouselName"`
	ScreenName   string    `json:"screenName" validate:"required"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UploadPolicy is the caller-supplied size and type policy for an ingest.
type UploadPolicy struct {
	MaxSizeMB           int      `json:"max_size_mb"`
	AllowedMimePrefixes []string `json:"allowed_mime_prefixes"`
}

// Destination describes a logical upload target.
type Destination struct {
	Name    string
	Archive bool
}

// IngestRequest contains parameters for IngestAndArchive
type IngestRequest struct {
	Data        []byte
	FileName    string
	Destination string
	Policy      UploadPolicy
}

// IngestResult is returned by a successful ingest.
type IngestResult struct {
	URL       string `json:"url"`
	MediaID   string `json:"media_id"`
	ArchiveID string `json:"archive_id,omitempty"`
	Name      string `json:"name"`
}

// ListMediaRequest contains parameters for ListMedia
type ListMediaRequest struct {
	Destination string
	Descending  bool
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	MimeType string
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}
