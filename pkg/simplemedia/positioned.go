package simplemedia

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const itemsField = "items"

// positionedState is the decoded array of one collection document. Elements
// that fail to decode are kept verbatim in invalid and written back unchanged.
type positionedState struct {
	entries  []PositionedEntry
	invalid  []interface{}
	migrated int
}

func (st *positionedState) document() Document {
	items := encodePositionedEntries(st.entries)
	items = append(items, st.invalid...)
	return Document{
		itemsField:  items,
		"updatedAt": ServerTimestamp,
	}
}

func validateCollectionName(name string) error {
	if strings.TrimSpace(name) == "" {
		return validationf("Collection name is required")
	}
	if strings.ContainsAny(name, "/\\") {
		return validationf("Collection name %q must not contain path separators", name)
	}
	return nil
}

func validateRedirectionURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return validationf("Invalid redirection URL %q", raw)
	}
	return nil
}

func (s *service) readPositioned(ctx context.Context, collection string, snap *Snapshot) (*positionedState, error) {
	st := &positionedState{}
	if snap == nil {
		return st, nil
	}
	items, err := fieldSlice(snap.Fields, itemsField)
	if err != nil {
		return nil, err
	}
	for i, item := range items {
		entry, migrated, err := decodePositionedEntry(item)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping invalid positioned entry",
				"collection", collection, "index", i, "err", err)
			st.invalid = append(st.invalid, item)
			continue
		}
		if migrated {
			st.migrated++
		}
		st.entries = append(st.entries, entry)
	}
	return st, nil
}

// sortPositioned orders entries by position; unpositioned entries keep their
// stored order after all positioned ones.
func sortPositioned(entries []PositionedEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.IsPositioned() && b.IsPositioned():
			return a.Position < b.Position
		case a.IsPositioned():
			return true
		default:
			return false
		}
	})
}

// ListPositioned returns the migrated entries of a collection sorted by position.
// A collection that was never written is empty.
func (s *service) ListPositioned(ctx context.Context, collection string) ([]PositionedEntry, error) {
	if err := validateCollectionName(collection); err != nil {
		return nil, err
	}
	snap, err := s.docs.Get(ctx, CollectionPositioned, collection)
	if err != nil {
		if isNotFound(err) {
			return []PositionedEntry{}, nil
		}
		return nil, fmt.Errorf("list positioned %s: %w", collection, err)
	}
	st, err := s.readPositioned(ctx, collection, snap)
	if err != nil {
		return nil, fmt.Errorf("list positioned %s: %w", collection, err)
	}

	entries := make([]PositionedEntry, len(st.entries))
	copy(entries, st.entries)
	sortPositioned(entries)
	return entries, nil
}

// InsertPositioned adds entry at its position. If the position is taken,
// every entry at or after it moves one slot down first.
func (s *service) InsertPositioned(ctx context.Context, collection string, entry PositionedEntry) error {
	if err := validateCollectionName(collection); err != nil {
		return err
	}
	if entry.ImageURL == "" {
		return validationf("Image URL is required")
	}
	if entry.Position < 1 {
		return validationf("Position must be at least 1, got %d", entry.Position)
	}
	if err := validateRedirectionURL(entry.RedirectionURL); err != nil {
		return err
	}

	err := s.updateWithRetry(ctx, CollectionPositioned, collection, func(snap *Snapshot) (Document, error) {
		st, err := s.readPositioned(ctx, collection, snap)
		if err != nil {
			return nil, err
		}

		collides := false
		for _, e := range st.entries {
			if e.Position == entry.Position {
				collides = true
				break
			}
		}
		if collides {
			for i := range st.entries {
				if st.entries[i].IsPositioned() && st.entries[i].Position >= entry.Position {
					st.entries[i].Position++
				}
			}
		}
		st.entries = append(st.entries, entry)
		return st.document(), nil
	})
	if err != nil {
		return fmt.Errorf("insert into %s: %w", collection, err)
	}
	return nil
}

// RemovePositioned deletes every entry equal to match on image URL and position.
// Remaining positions are not renumbered.
func (s *service) RemovePositioned(ctx context.Context, collection string, match PositionedMatch) error {
	if err := validateCollectionName(collection); err != nil {
		return err
	}
	if match.ImageURL == "" {
		return validationf("Image URL is required")
	}

	err := s.updateWithRetry(ctx, CollectionPositioned, collection, func(snap *Snapshot) (Document, error) {
		if snap == nil {
			return nil, ErrNotFound
		}
		st, err := s.readPositioned(ctx, collection, snap)
		if err != nil {
			return nil, err
		}

		kept := st.entries[:0]
		for _, e := range st.entries {
			if e.ImageURL == match.ImageURL && e.Position == match.Position {
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == len(st.entries) {
			return nil, fmt.Errorf("%w: no entry %q at position %d", ErrNotFound, match.ImageURL, match.Position)
		}
		st.entries = kept
		return st.document(), nil
	})
	if err != nil {
		return fmt.Errorf("remove from %s: %w", collection, err)
	}
	return nil
}

// ReorderPositioned replaces every position of a collection at once. The
// assignment must keep the same entries and give each a distinct position of
// at least 1; otherwise nothing is written.
func (s *service) ReorderPositioned(ctx context.Context, collection string, entries []PositionedEntry) error {
	if err := validateCollectionName(collection); err != nil {
		return err
	}
	if err := checkAssignment(collection, entries); err != nil {
		return err
	}

	err := s.updateWithRetry(ctx, CollectionPositioned, collection, func(snap *Snapshot) (Document, error) {
		st, err := s.readPositioned(ctx, collection, snap)
		if err != nil {
			return nil, err
		}
		if err := checkSameEntries(collection, st.entries, entries); err != nil {
			return nil, err
		}
		if snap == nil {
			return nil, nil
		}

		next := make([]PositionedEntry, len(entries))
		copy(next, entries)
		sortPositioned(next)
		st.entries = next
		return st.document(), nil
	})
	if err != nil {
		return fmt.Errorf("reorder %s: %w", collection, err)
	}
	return nil
}

func checkAssignment(collection string, entries []PositionedEntry) error {
	seen := make(map[int]string, len(entries))
	for _, e := range entries {
		if e.Position < 1 {
			return &ReorderError{Collection: collection,
				Reason: fmt.Sprintf("position %d of %q must be at least 1", e.Position, e.ImageURL)}
		}
		if other, dup := seen[e.Position]; dup {
			return &ReorderError{Collection: collection,
				Reason: fmt.Sprintf("position %d is assigned to both %q and %q", e.Position, other, e.ImageURL)}
		}
		seen[e.Position] = e.ImageURL
	}
	return nil
}

func checkSameEntries(collection string, current, proposed []PositionedEntry) error {
	counts := make(map[string]int, len(current))
	for _, e := range current {
		counts[e.identity()]++
	}
	for _, e := range proposed {
		id := e.identity()
		if counts[id] == 0 {
			return &ReorderError{Collection: collection,
				Reason: fmt.Sprintf("entry %q is not in the collection", e.ImageURL)}
		}
		counts[id]--
	}
	for _, e := range current {
		if counts[e.identity()] > 0 {
			return &ReorderError{Collection: collection,
				Reason: fmt.Sprintf("entry %q is missing from the assignment", e.ImageURL)}
		}
	}
	return nil
}

// MigratePositioned rewrites legacy entries of a collection in the current
// shape and returns how many were migrated.
func (s *service) MigratePositioned(ctx context.Context, collection string) (int, error) {
	if err := validateCollectionName(collection); err != nil {
		return 0, err
	}

	var migrated int
	err := s.updateWithRetry(ctx, CollectionPositioned, collection, func(snap *Snapshot) (Document, error) {
		st, err := s.readPositioned(ctx, collection, snap)
		if err != nil {
			return nil, err
		}
		migrated = st.migrated
		if migrated == 0 {
			return nil, nil
		}
		return st.document(), nil
	})
	if err != nil {
		return 0, fmt.Errorf("migrate %s: %w", collection, err)
	}
	if migrated > 0 {
		s.logger.InfoContext(ctx, "Migrated legacy positioned entries", "collection", collection, "count", migrated)
	}
	return migrated, nil
}
