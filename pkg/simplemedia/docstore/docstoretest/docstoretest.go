// Package docstoretest holds behaviour tests shared by every DocumentStore
// backend.
package docstoretest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Factory returns an empty store. Collections are unique per call so
// backends that share a database do not see each other's documents.
type Factory func(t *testing.T) (store simplemedia.DocumentStore, collection string)

// Run exercises the DocumentStore contract against the store built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore) })
	t.Run("ServerTimestamps", func(t *testing.T) { testServerTimestamps(t, newStore) })
	t.Run("QueryOrdering", func(t *testing.T) { testQueryOrdering(t, newStore) })
	t.Run("UpdateMerges", func(t *testing.T) { testUpdateMerges(t, newStore) })
	t.Run("UpdateIfVersion", func(t *testing.T) { testUpdateIfVersion(t, newStore) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, newStore) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore) })
	t.Run("NilDocument", func(t *testing.T) { testNilDocument(t, newStore) })
}

// testNilDocument checks that a nil document is stored as an empty one and
// can be merged into afterwards.
func testNilDocument(t *testing.T, newStore Factory) {
	store, coll := newStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, coll, "empty", nil)
	require.NoError(t, err)

	snap, err := store.Get(ctx, coll, id)
	require.NoError(t, err)
	assert.Empty(t, snap.Fields)

	require.NoError(t, store.Update(ctx, coll, id, simplemedia.Document{"a": 1}))
	snap, err = store.Get(ctx, coll, id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap.Fields["a"])

	require.NoError(t, store.UpdateIfVersion(ctx, coll, "created", 0, nil))
	require.NoError(t, store.UpdateIfVersion(ctx, coll, "created", 1, simplemedia.Document{"b": "x"}))
	snap, err = store.Get(ctx, coll, "created")
	require.NoError(t, err)
	assert.Equal(t, "x", snap.Fields["b"])
	assert.Equal(t, int64(2), snap.Version)
}

func testCreateAndGet(t *testing.T, newStore Factory) {
	store, coll := newStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, coll, "", simplemedia.Document{
		"name":  "beach.webp",
		"size":  int64(42),
		"items": []interface{}{map[string]interface{}{"imageUrl": "a", "position": 1}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap, err := store.Get(ctx, coll, id)
	require.NoError(t, err)
	assert.Equal(t, id, snap.ID)
	assert.Equal(t, int64(1), snap.Version)
	assert.Equal(t, "beach.webp", snap.Fields["name"])
	assert.EqualValues(t, 42, snap.Fields["size"])

	items, ok := snap.Fields["items"].([]interface{})
	require.True(t, ok, "items is %T", snap.Fields["items"])
	require.Len(t, items, 1)
	item, ok := items[0].(map[string]interface{})
	require.True(t, ok, "item is %T", items[0])
	assert.Equal(t, "a", item["imageUrl"])
	assert.EqualValues(t, 1, item["position"])

	_, err = store.Get(ctx, coll, "missing")
	assert.True(t, errors.Is(err, simplemedia.ErrNotFound))

	explicit, err := store.Create(ctx, coll, "fixed-id", simplemedia.Document{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", explicit)
}

func testServerTimestamps(t *testing.T, newStore Factory) {
	store, coll := newStore(t)
	ctx := context.Background()

	before, err := store.Now(ctx)
	require.NoError(t, err)

	id, err := store.Create(ctx, coll, "", simplemedia.Document{
		"createdAt": simplemedia.ServerTimestamp,
		"items":     []interface{}{map[string]interface{}{"createdAt": simplemedia.ServerTimestamp}},
	})
	require.NoError(t, err)

	snap, err := store.Get(ctx, coll, id)
	require.NoError(t, err)
	createdAt, ok := snap.Fields["createdAt"].(time.Time)
	require.True(t, ok, "createdAt is %T", snap.Fields["createdAt"])
	assert.False(t, createdAt.Before(before.Add(-time.Second)))

	item := snap.Fields["items"].([]interface{})[0].(map[string]interface{})
	_, ok = item["createdAt"].(time.Time)
	assert.True(t, ok, "nested createdAt is %T", item["createdAt"])
}

func testQueryOrdering(t *testing.T, newStore Factory) {
	store, coll := newStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := map[string]simplemedia.Document{
		"b": {"createdAt": base.Add(2 * time.Hour)},
		"a": {"createdAt": base.Add(1 * time.Hour)},
		"c": {"createdAt": base.Add(3 * time.Hour)},
		"z": {"other": "no createdAt"},
	}
	for id, doc := range docs {
		_, err := store.Create(ctx, coll, id, doc)
		require.NoError(t, err)
	}

	ids := func(dir simplemedia.Direction) []string {
		it, err := store.Query(ctx, coll, simplemedia.Query{OrderBy: "createdAt", Direction: dir})
		require.NoError(t, err)
		snaps, err := simplemedia.CollectSnapshots(ctx, it)
		require.NoError(t, err)
		out := make([]string, len(snaps))
		for i, s := range snaps {
			out[i] = s.ID
		}
		return out
	}

	assert.Equal(t, []string{"a", "b", "c", "z"}, ids(simplemedia.Ascending))
	assert.Equal(t, []string{"c", "b", "a", "z"}, ids(simplemedia.Descending))
}

func testUpdateMerges(t *testing.T, newStore Factory) {
	store, coll := newStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, coll, "doc", simplemedia.Document{"keep": "yes", "change": 1})
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, coll, "doc", simplemedia.Document{"change": 2, "added": true}))

	snap, err := store.Get(ctx, coll, "doc")
	require.NoError(t, err)
	assert.Equal(t, "yes", snap.Fields["keep"])
	assert.EqualValues(t, 2, snap.Fields["change"])
	assert.Equal(t, true, snap.Fields["added"])
	assert.Equal(t, int64(2), snap.Version)

	err = store.Update(ctx, coll, "missing", simplemedia.Document{"a": 1})
	assert.True(t, errors.Is(err, simplemedia.ErrNotFound))
}

func testUpdateIfVersion(t *testing.T, newStore Factory) {
	store, coll := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpdateIfVersion(ctx, coll, "doc", 0, simplemedia.Document{"n": 1}))
	err := store.UpdateIfVersion(ctx, coll, "doc", 0, simplemedia.Document{"n": 99})
	assert.True(t, errors.Is(err, simplemedia.ErrVersionConflict), "create over existing: %v", err)

	snap, err := store.Get(ctx, coll, "doc")
	require.NoError(t, err)
	require.Equal(t, int64(1), snap.Version)

	require.NoError(t, store.UpdateIfVersion(ctx, coll, "doc", 1, simplemedia.Document{"n": 2}))
	err = store.UpdateIfVersion(ctx, coll, "doc", 1, simplemedia.Document{"n": 3})
	assert.True(t, errors.Is(err, simplemedia.ErrVersionConflict), "stale version: %v", err)

	snap, err = store.Get(ctx, coll, "doc")
	require.NoError(t, err)
	assert.EqualValues(t, 2, snap.Fields["n"])
	assert.Equal(t, int64(2), snap.Version)

	err = store.UpdateIfVersion(ctx, coll, "gone", 4, simplemedia.Document{"n": 1})
	assert.True(t, errors.Is(err, simplemedia.ErrVersionConflict), "missing doc: %v", err)
}

func testConcurrentCreate(t *testing.T, newStore Factory) {
	store, coll := newStore(t)
	ctx := context.Background()

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.UpdateIfVersion(ctx, coll, "race", 0, simplemedia.Document{"writer": fmt.Sprint(i)})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, simplemedia.ErrVersionConflict), "writer %d: %v", i, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func testDelete(t *testing.T, newStore Factory) {
	store, coll := newStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, coll, "doc", simplemedia.Document{"a": 1})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, coll, "doc"))
	require.NoError(t, store.Delete(ctx, coll, "doc"))

	_, err = store.Get(ctx, coll, "doc")
	assert.True(t, errors.Is(err, simplemedia.ErrNotFound))
}
