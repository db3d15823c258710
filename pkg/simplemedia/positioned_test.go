package simplemedia_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/simplemedia"
	docmemory "github.com/tendant/simple-media/pkg/simplemedia/docstore/memory"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

const ads = "advertisement"

func positions(entries []simplemedia.PositionedEntry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Position
	}
	return out
}

func urls(entries []simplemedia.PositionedEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ImageURL
	}
	return out
}

func seedPositioned(t *testing.T, f *fixture, items ...map[string]interface{}) {
	t.Helper()
	raw := make([]interface{}, len(items))
	for i, item := range items {
		raw[i] = item
	}
	_, err := f.docs.Create(context.Background(), simplemedia.CollectionPositioned, ads, simplemedia.Document{"items": raw})
	require.NoError(t, err)
}

func TestInsertPositioned(t *testing.T) {
	ctx := context.Background()

	t.Run("empty collection lists nothing", func(t *testing.T) {
		f := setupTestService(t)
		entries, err := f.svc.ListPositioned(ctx, ads)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("collision shifts later entries", func(t *testing.T) {
		f := setupTestService(t)
		for i, url := range []string{"a", "b", "c"} {
			require.NoError(t, f.svc.InsertPositioned(ctx, ads, simplemedia.PositionedEntry{ImageURL: url, Position: i + 1}))
		}

		require.NoError(t, f.svc.InsertPositioned(ctx, ads, simplemedia.PositionedEntry{
			ImageURL:       "new",
			Position:       2,
			RedirectionURL: "https://example.com/offer",
		}))

		entries, err := f.svc.ListPositioned(ctx, ads)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3, 4}, positions(entries))
		assert.Equal(t, []string{"a", "new", "b", "c"}, urls(entries))
		assert.Equal(t, "https://example.com/offer", entries[1].RedirectionURL)
	})

	t.Run("no collision appends", func(t *testing.T) {
		f := setupTestService(t)
		require.NoError(t, f.svc.InsertPositioned(ctx, ads, simplemedia.PositionedEntry{ImageURL: "a", Position: 5}))
		require.NoError(t, f.svc.InsertPositioned(ctx, ads, simplemedia.PositionedEntry{ImageURL: "b", Position: 2}))

		entries, err := f.svc.ListPositioned(ctx, ads)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 5}, positions(entries))
		assert.Equal(t, []string{"b", "a"}, urls(entries))
	})

	t.Run("validation", func(t *testing.T) {
		f := setupTestService(t)
		bad := []simplemedia.PositionedEntry{
			{ImageURL: "", Position: 1},
			{ImageURL: "a", Position: 0},
			{ImageURL: "a", Position: -3},
			{ImageURL: "a", Position: 1, RedirectionURL: "not a url"},
			{ImageURL: "a", Position: 1, RedirectionURL: "ftp://example.com/x"},
		}
		for _, e := range bad {
			err := f.svc.InsertPositioned(ctx, ads, e)
			assert.True(t, errors.Is(err, simplemedia.ErrValidationFailed), "entry %+v: %v", e, err)
		}
		assert.True(t, errors.Is(f.svc.InsertPositioned(ctx, "", simplemedia.PositionedEntry{ImageURL: "a", Position: 1}),
			simplemedia.ErrValidationFailed))
		assert.Equal(t, 0, f.docs.Len(simplemedia.CollectionPositioned))
	})
}

func TestInsertPositioned_UniqueUnderRandomInsertion(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	var previous []string
	for i := 0; i < 40; i++ {
		pos := rng.Intn(len(previous)+3) + 1
		url := fmt.Sprintf("img-%d", i)
		require.NoError(t, f.svc.InsertPositioned(ctx, ads, simplemedia.PositionedEntry{ImageURL: url, Position: pos}))

		entries, err := f.svc.ListPositioned(ctx, ads)
		require.NoError(t, err)

		seen := map[int]bool{}
		var others []string
		for _, e := range entries {
			require.False(t, seen[e.Position], "duplicate position %d after insert %d", e.Position, i)
			seen[e.Position] = true
			if e.ImageURL == url {
				assert.Equal(t, pos, e.Position)
				continue
			}
			others = append(others, e.ImageURL)
		}
		// shifting keeps the relative order of existing entries
		assert.Equal(t, previous, others)
		previous = urls(entries)
	}
}

func TestInsertPositioned_RetriesOnConflict(t *testing.T) {
	docs := docmemory.New()
	ctx := context.Background()
	faulty := &faultyDocs{DocumentStore: docs}
	svc, err := simplemedia.New(
		simplemedia.WithDocumentStore(faulty),
		simplemedia.WithBlobStore(memorystorage.New()),
		simplemedia.WithCodec(&fakeCodec{}),
	)
	require.NoError(t, err)

	require.NoError(t, svc.InsertPositioned(ctx, ads, simplemedia.PositionedEntry{ImageURL: "a", Position: 1}))

	// another writer lands between our read and our write
	faulty.beforeCAS = func() {
		other, err := simplemedia.New(
			simplemedia.WithDocumentStore(docs),
			simplemedia.WithBlobStore(memorystorage.New()),
			simplemedia.WithCodec(&fakeCodec{}),
		)
		require.NoError(t, err)
		require.NoError(t, other.InsertPositioned(ctx, ads, simplemedia.PositionedEntry{ImageURL: "other", Position: 1}))
	}
	require.NoError(t, svc.InsertPositioned(ctx, ads, simplemedia.PositionedEntry{ImageURL: "mine", Position: 1}))

	entries, err := svc.ListPositioned(ctx, ads)
	require.NoError(t, err)
	assert.Equal(t, []string{"mine", "other", "a"}, urls(entries))
	assert.Equal(t, []int{1, 2, 3}, positions(entries))
}

func TestInsertPositioned_GivesUpAfterRetries(t *testing.T) {
	docs := docmemory.New()
	ctx := context.Background()
	faulty := &faultyDocs{DocumentStore: docs}
	svc, err := simplemedia.New(
		simplemedia.WithDocumentStore(&alwaysConflict{faulty}),
		simplemedia.WithBlobStore(memorystorage.New()),
		simplemedia.WithCodec(&fakeCodec{}),
		simplemedia.WithMaxConflictRetries(2),
	)
	require.NoError(t, err)

	err = svc.InsertPositioned(ctx, ads, simplemedia.PositionedEntry{ImageURL: "a", Position: 1})
	assert.True(t, errors.Is(err, simplemedia.ErrVersionConflict))
}

type alwaysConflict struct {
	simplemedia.DocumentStore
}

func (a *alwaysConflict) UpdateIfVersion(ctx context.Context, collection, id string, version int64, fields simplemedia.Document) error {
	return simplemedia.ErrVersionConflict
}

func TestRemovePositioned(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	for i, url := range []string{"a", "b", "c"} {
		require.NoError(t, f.svc.InsertPositioned(ctx, ads, simplemedia.PositionedEntry{ImageURL: url, Position: i + 1}))
	}

	require.NoError(t, f.svc.RemovePositioned(ctx, ads, simplemedia.PositionedMatch{ImageURL: "b", Position: 2}))

	entries, err := f.svc.ListPositioned(ctx, ads)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, positions(entries), "gaps are kept")

	err = f.svc.RemovePositioned(ctx, ads, simplemedia.PositionedMatch{ImageURL: "a", Position: 3})
	assert.True(t, errors.Is(err, simplemedia.ErrNotFound))

	err = f.svc.RemovePositioned(ctx, "never-written", simplemedia.PositionedMatch{ImageURL: "a", Position: 1})
	assert.True(t, errors.Is(err, simplemedia.ErrNotFound))
}

func TestReorderPositioned(t *testing.T) {
	ctx := context.Background()
	setup := func(t *testing.T) *fixture {
		f := setupTestService(t)
		for i, url := range []string{"a", "b", "c"} {
			require.NoError(t, f.svc.InsertPositioned(ctx, ads, simplemedia.PositionedEntry{ImageURL: url, Position: i + 1}))
		}
		return f
	}

	t.Run("valid assignment", func(t *testing.T) {
		f := setup(t)
		require.NoError(t, f.svc.ReorderPositioned(ctx, ads, []simplemedia.PositionedEntry{
			{ImageURL: "a", Position: 3},
			{ImageURL: "b", Position: 1},
			{ImageURL: "c", Position: 7},
		}))
		entries, err := f.svc.ListPositioned(ctx, ads)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a", "c"}, urls(entries))
		assert.Equal(t, []int{1, 3, 7}, positions(entries))
	})

	invalid := []struct {
		name    string
		entries []simplemedia.PositionedEntry
		reason  string
	}{
		{
			name:    "duplicate position",
			entries: []simplemedia.PositionedEntry{{ImageURL: "a", Position: 1}, {ImageURL: "b", Position: 1}, {ImageURL: "c", Position: 2}},
			reason:  "assigned to both",
		},
		{
			name:    "missing entry",
			entries: []simplemedia.PositionedEntry{{ImageURL: "a", Position: 1}, {ImageURL: "b", Position: 2}},
			reason:  "missing from the assignment",
		},
		{
			name:    "added entry",
			entries: []simplemedia.PositionedEntry{{ImageURL: "a", Position: 1}, {ImageURL: "b", Position: 2}, {ImageURL: "c", Position: 3}, {ImageURL: "d", Position: 4}},
			reason:  "not in the collection",
		},
		{
			name:    "position below one",
			entries: []simplemedia.PositionedEntry{{ImageURL: "a", Position: 0}, {ImageURL: "b", Position: 2}, {ImageURL: "c", Position: 3}},
			reason:  "must be at least 1",
		},
		{
			name:    "changed redirection",
			entries: []simplemedia.PositionedEntry{{ImageURL: "a", Position: 1, RedirectionURL: "https://x.example"}, {ImageURL: "b", Position: 2}, {ImageURL: "c", Position: 3}},
			reason:  "not in the collection",
		},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			before, err := f.docs.Get(ctx, simplemedia.CollectionPositioned, ads)
			require.NoError(t, err)

			err = f.svc.ReorderPositioned(ctx, ads, tt.entries)
			require.Error(t, err)
			assert.True(t, errors.Is(err, simplemedia.ErrInvalidReorder))
			var rerr *simplemedia.ReorderError
			require.True(t, errors.As(err, &rerr))
			assert.Contains(t, rerr.Reason, tt.reason)

			after, err := f.docs.Get(ctx, simplemedia.CollectionPositioned, ads)
			require.NoError(t, err)
			assert.Equal(t, before.Version, after.Version)
			assert.Equal(t, before.Fields, after.Fields)
		})
	}
}

func TestPositioned_LegacyMigration(t *testing.T) {
	ctx := context.Background()
	f := setupTestService(t)
	seedPositioned(t, f,
		map[string]interface{}{"imageUrl": "u3", "position": 3, "imageLink": "https://legacy.example/3"},
		map[string]interface{}{"imageUrl": "loose", "enquireNowURL": "https://enquire.example"},
		map[string]interface{}{"imageUrl": "u1", "position": 1, "imageLink": "https://legacy.example/1", "redirectionURL": "https://current.example/1", "enquireNowLink": "x"},
		map[string]interface{}{"imageUrl": "u2", "position": 2.0},
		map[string]interface{}{"position": 4},
	)

	first, err := f.svc.ListPositioned(ctx, ads)
	require.NoError(t, err)
	second, err := f.svc.ListPositioned(ctx, ads)
	require.NoError(t, err)
	assert.Equal(t, first, second, "migration on read is idempotent")

	assert.Equal(t, []simplemedia.PositionedEntry{
		{ImageURL: "u1", Position: 1, RedirectionURL: "https://current.example/1"},
		{ImageURL: "u2", Position: 2},
		{ImageURL: "u3", Position: 3, RedirectionURL: "https://legacy.example/3"},
		{ImageURL: "loose", Position: simplemedia.Unpositioned},
	}, first)

	t.Run("MigratePositioned persists the current shape", func(t *testing.T) {
		n, err := f.svc.MigratePositioned(ctx, ads)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		snap, err := f.docs.Get(ctx, simplemedia.CollectionPositioned, ads)
		require.NoError(t, err)
		items := snap.Fields["items"].([]interface{})
		require.Len(t, items, 5, "undecodable items are preserved")
		for _, item := range items[:4] {
			m := item.(map[string]interface{})
			assert.NotContains(t, m, "imageLink")
			assert.NotContains(t, m, "enquireNowURL")
			assert.NotContains(t, m, "enquireNowLink")
		}

		n, err = f.svc.MigratePositioned(ctx, ads)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		after, err := f.svc.ListPositioned(ctx, ads)
		require.NoError(t, err)
		assert.Equal(t, first, after)
	})

	t.Run("insert does not collide with unpositioned entries", func(t *testing.T) {
		require.NoError(t, f.svc.InsertPositioned(ctx, ads, simplemedia.PositionedEntry{ImageURL: "u4", Position: 4}))
		entries, err := f.svc.ListPositioned(ctx, ads)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3, 4, simplemedia.Unpositioned}, positions(entries))
		assert.Equal(t, "loose", entries[4].ImageURL)
	})
}
