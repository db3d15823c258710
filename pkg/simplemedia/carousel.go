package simplemedia

import (
	"context"
	"fmt"
)

type carouselState struct {
	entries []ScreenCarouselEntry
	raw     []interface{}
	// index of each valid entry in raw
	rawIndex []int
}

func (s *service) readCarousel(ctx context.Context, name string, snap *Snapshot) (*carouselState, error) {
	st := &carouselState{}
	if snap == nil {
		return st, nil
	}
	items, err := fieldSlice(snap.Fields, itemsField)
	if err != nil {
		return nil, err
	}
	st.raw = items
	for i, item := range items {
		entry, err := decodeCarouselEntry(item)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping invalid carousel entry", "carousel", name, "index", i, "err", err)
			continue
		}
		st.entries = append(st.entries, entry)
		st.rawIndex = append(st.rawIndex, i)
	}
	return st, nil
}

// ListCarousel returns the entries of a carousel in insertion order.
func (s *service) ListCarousel(ctx context.Context, name string) ([]ScreenCarouselEntry, error) {
	if err := validateCollectionName(name); err != nil {
		return nil, err
	}
	snap, err := s.docs.Get(ctx, CollectionCarousels, name)
	if err != nil {
		if isNotFound(err) {
			return []ScreenCarouselEntry{}, nil
		}
		return nil, fmt.Errorf("list carousel %s: %w", name, err)
	}
	st, err := s.readCarousel(ctx, name, snap)
	if err != nil {
		return nil, fmt.Errorf("list carousel %s: %w", name, err)
	}
	if st.entries == nil {
		return []ScreenCarouselEntry{}, nil
	}
	return st.entries, nil
}

// AppendCarousel adds entry to the end of the carousel. Its creation time is
// assigned by the document store.
func (s *service) AppendCarousel(ctx context.Context, name string, entry ScreenCarouselEntry) error {
	if err := validateCollectionName(name); err != nil {
		return err
	}
	if entry.ImageURL == "" {
		return validationf("Image URL is required")
	}
	if entry.ScreenName == "" {
		return validationf("Screen name is required")
	}
	entry.CarouselName = name

	item := encodeCarouselEntry(entry)
	item["createdAt"] = ServerTimestamp

	err := s.updateWithRetry(ctx, CollectionCarousels, name, func(snap *Snapshot) (Document, error) {
		var items []interface{}
		if snap != nil {
			existing, err := fieldSlice(snap.Fields, itemsField)
			if err != nil {
				return nil, err
			}
			items = append(items, existing...)
		}
		items = append(items, item)
		return Document{itemsField: items, "updatedAt": ServerTimestamp}, nil
	})
	if err != nil {
		return fmt.Errorf("append to carousel %s: %w", name, err)
	}
	return nil
}

// RemoveCarouselAt removes the entry at index, as returned by ListCarousel.
func (s *service) RemoveCarouselAt(ctx context.Context, name string, index int) error {
	if err := validateCollectionName(name); err != nil {
		return err
	}
	if index < 0 {
		return validationf("Index must not be negative, got %d", index)
	}

	err := s.updateWithRetry(ctx, CollectionCarousels, name, func(snap *Snapshot) (Document, error) {
		if snap == nil {
			return nil, fmt.Errorf("%w: carousel %s", ErrNotFound, name)
		}
		st, err := s.readCarousel(ctx, name, snap)
		if err != nil {
			return nil, err
		}
		if index >= len(st.entries) {
			return nil, fmt.Errorf("%w: index %d out of range (%d entries)", ErrNotFound, index, len(st.entries))
		}

		drop := st.rawIndex[index]
		items := make([]interface{}, 0, len(st.raw)-1)
		items = append(items, st.raw[:drop]...)
		items = append(items, st.raw[drop+1:]...)
		return Document{itemsField: items, "updatedAt": ServerTimestamp}, nil
	})
	if err != nil {
		return fmt.Errorf("remove from carousel %s: %w", name, err)
	}
	return nil
}
