package simplemedia

import (
	"bytes"
	"context"
	"fmt"
)

const webpMimeType = "image/webp"

// IngestAndArchive validates, converts, uploads and records an image.
func (s *service) IngestAndArchive(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	destination := normalizeDestination(req.Destination)
	if destination == "" {
		return nil, validationf("Destination is required")
	}
	if err := ValidateObjectKey(destination); err != nil {
		return nil, validationf("Invalid destination %q: %v", req.Destination, err)
	}
	if req.FileName == "" {
		return nil, validationf("File name is required")
	}

	mimeType, err := req.Policy.Check(req.Data)
	if err != nil {
		return nil, err
	}

	data, name := req.Data, req.FileName
	if mimeType != webpMimeType {
		data, name, err = s.codec.ConvertToWebP(ctx, req.Data, req.FileName)
		if err != nil {
			return nil, &MediaError{Op: "convert", Err: err}
		}
	}

	filename := s.filenames.next(name)
	objectKey := objectKeyFor(destination, filename)
	if err := ValidateObjectKey(objectKey); err != nil {
		return nil, &MediaError{Op: "upload", Err: err}
	}

	url, err := s.blobStore.Upload(ctx, objectKey, bytes.NewReader(data), UploadParams{MimeType: webpMimeType})
	if err != nil {
		return nil, &MediaError{Op: "upload", Err: err}
	}

	entry := &MediaEntry{
		Name:        filename,
		URL:         url,
		Destination: destination,
		ObjectKey:   objectKey,
		MimeType:    webpMimeType,
		Size:        int64(len(data)),
	}
	mediaID, err := s.docs.Create(ctx, CollectionMedia, "", encodeMediaEntry(entry))
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to record media entry, blob is orphaned",
			"err", err, "url", url, "object_key", objectKey)
		s.reconcile(ctx, ReconciliationEvent{
			Kind:      OrphanedBlob,
			URL:       url,
			ObjectKey: objectKey,
			Op:        "ingest",
			Reason:    err.Error(),
		})
		return nil, &MediaError{Op: "record", Err: err}
	}
	entry.ID = mediaID

	result := &IngestResult{URL: url, MediaID: mediaID, Name: filename}

	if s.archiveEnabled(destination) {
		archiveID, err := s.docs.Create(ctx, CollectionArchive, "", encodeArchiveImage(url, mediaID))
		if err != nil {
			s.rollbackMedia(ctx, entry, err)
			return nil, &MediaError{MediaID: mediaID, Op: "archive", Err: err}
		}
		result.ArchiveID = archiveID
	}

	if err := s.eventSink.MediaIngested(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "Event sink failed", "err", err, "event", "media_ingested", "media_id", mediaID)
	}

	return result, nil
}

// rollbackMedia removes the media document of a failed ingest and reports
// whatever is left behind.
func (s *service) rollbackMedia(ctx context.Context, entry *MediaEntry, cause error) {
	if err := s.docs.Delete(ctx, CollectionMedia, entry.ID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to roll back media entry",
			"err", err, "media_id", entry.ID, "url", entry.URL)
		s.reconcile(ctx, ReconciliationEvent{
			Kind:      DanglingMetadata,
			MediaID:   entry.ID,
			URL:       entry.URL,
			ObjectKey: entry.ObjectKey,
			Op:        "ingest",
			Reason:    fmt.Sprintf("archive write failed: %v; rollback failed: %v", cause, err),
		})
		return
	}
	s.reconcile(ctx, ReconciliationEvent{
		Kind:      OrphanedBlob,
		URL:       entry.URL,
		ObjectKey: entry.ObjectKey,
		Op:        "ingest",
		Reason:    fmt.Sprintf("archive write failed: %v", cause),
	})
}

func (s *service) GetMedia(ctx context.Context, id string) (*MediaEntry, error) {
	if id == "" {
		return nil, validationf("Media id is required")
	}
	snap, err := s.docs.Get(ctx, CollectionMedia, id)
	if err != nil {
		return nil, &MediaError{MediaID: id, Op: "get", Err: err}
	}
	entry, err := decodeMediaEntry(snap)
	if err != nil {
		return nil, &MediaError{MediaID: id, Op: "get", Err: err}
	}
	return entry, nil
}

// ListMedia returns media entries ordered by creation time, newest last unless
// Descending is set.
func (s *service) ListMedia(ctx context.Context, req ListMediaRequest) ([]*MediaEntry, error) {
	dir := Ascending
	if req.Descending {
		dir = Descending
	}
	it, err := s.docs.Query(ctx, CollectionMedia, Query{OrderBy: "createdAt", Direction: dir})
	if err != nil {
		return nil, &MediaError{Op: "list", Err: err}
	}
	snaps, err := CollectSnapshots(ctx, it)
	if err != nil {
		return nil, &MediaError{Op: "list", Err: err}
	}

	destination := normalizeDestination(req.Destination)
	entries := make([]*MediaEntry, 0, len(snaps))
	for _, snap := range snaps {
		entry, err := decodeMediaEntry(snap)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping invalid media document", "id", snap.ID, "err", err)
			continue
		}
		if destination != "" && entry.Destination != destination {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// DeleteMedia removes the metadata record first and then the blob. The blob
// is always the one recorded on the entry; a non-empty url must name it,
// either as its URL or its object key.
func (s *service) DeleteMedia(ctx context.Context, id, url string) error {
	if id == "" {
		return validationf("Media id is required")
	}
	entry, err := s.GetMedia(ctx, id)
	if err != nil {
		return err
	}
	if url != "" && url != entry.URL && url != entry.ObjectKey {
		return validationf("URL %q does not belong to media %s", url, id)
	}
	url = entry.URL

	if err := s.docs.Delete(ctx, CollectionMedia, id); err != nil {
		return &DeleteError{MediaID: id, URL: url, Err: err}
	}

	if err := s.blobStore.Delete(ctx, url); err != nil {
		s.logger.ErrorContext(ctx, "Failed to delete blob after deleting its metadata",
			"err", err, "media_id", id, "url", url)
		s.reconcile(ctx, ReconciliationEvent{
			Kind:      OrphanedBlob,
			MediaID:   id,
			URL:       url,
			ObjectKey: entry.ObjectKey,
			Op:        "delete",
			Reason:    err.Error(),
		})
		return &DeleteError{MediaID: id, URL: url, MetadataDeleted: true, Err: err}
	}

	if err := s.eventSink.MediaDeleted(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "Event sink failed", "err", err, "event", "media_deleted", "media_id", id)
	}
	return nil
}

// DeleteBlob retries the blob half of a partially failed DeleteMedia. It
// touches no metadata, so failures are returned as the storage error itself.
func (s *service) DeleteBlob(ctx context.Context, url string) error {
	if url == "" {
		return validationf("Blob url is required")
	}
	if err := s.blobStore.Delete(ctx, url); err != nil {
		return fmt.Errorf("delete blob %s: %w", url, err)
	}
	return nil
}

// ListArchive returns archive images, newest first.
func (s *service) ListArchive(ctx context.Context) ([]*ArchiveImage, error) {
	it, err := s.docs.Query(ctx, CollectionArchive, Query{OrderBy: "createdAt", Direction: Descending})
	if err != nil {
		return nil, &MediaError{Op: "list_archive", Err: err}
	}
	snaps, err := CollectSnapshots(ctx, it)
	if err != nil {
		return nil, &MediaError{Op: "list_archive", Err: err}
	}

	images := make([]*ArchiveImage, 0, len(snaps))
	for _, snap := range snaps {
		img, err := decodeArchiveImage(snap)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping invalid archive document", "id", snap.ID, "err", err)
			continue
		}
		images = append(images, img)
	}
	return images, nil
}
