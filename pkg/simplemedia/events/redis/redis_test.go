package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/simplemedia"
)

// setupTestRedis creates an in-memory Redis server for testing
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestReconciliationQueue(t *testing.T) {
	mr, client := setupTestRedis(t)
	sink := New(client, WithReconcileKey("test:reconcile"))
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	events := []simplemedia.ReconciliationEvent{
		{Kind: simplemedia.OrphanedBlob, URL: "memory://objects/media/a.webp", ObjectKey: "media/a.webp", Op: "ingest", Reason: "media write failed", At: at},
		{Kind: simplemedia.DanglingMetadata, MediaID: "m1", Op: "rollback", Reason: "delete failed", At: at},
	}
	for _, e := range events {
		require.NoError(t, sink.ReconciliationNeeded(ctx, e))
	}

	stored, err := mr.List("test:reconcile")
	require.NoError(t, err)
	require.Len(t, stored, 2)

	var first simplemedia.ReconciliationEvent
	require.NoError(t, json.Unmarshal([]byte(stored[0]), &first))
	assert.Equal(t, simplemedia.OrphanedBlob, first.Kind)

	pending, err := sink.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, events, pending)

	pending, err = sink.Pending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ingest", pending[0].Op)

	require.NoError(t, sink.Ack(ctx, 1))
	pending, err = sink.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "m1", pending[0].MediaID)
}

func TestNotifications(t *testing.T) {
	_, client := setupTestRedis(t)
	sink := New(client, WithChannel("test:media"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, "test:media")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	messages := sub.Channel()

	require.NoError(t, sink.MediaIngested(ctx, &simplemedia.MediaEntry{ID: "m1", Name: "a.webp", URL: "u"}))
	require.NoError(t, sink.MediaDeleted(ctx, "m1"))

	for _, want := range []string{"ingested", "deleted"} {
		select {
		case msg := <-messages:
			var n Notification
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
			assert.Equal(t, want, n.Type)
			assert.Equal(t, "m1", n.ID)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for %s notification", want)
		}
	}
}

func TestUnavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	sink := New(client)
	mr.Close()

	err := sink.ReconciliationNeeded(context.Background(), simplemedia.ReconciliationEvent{Kind: simplemedia.OrphanedBlob})
	assert.True(t, errors.Is(err, simplemedia.ErrStoreUnavailable))
}

func TestDial(t *testing.T) {
	mr, _ := setupTestRedis(t)

	sink, err := Dial(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer sink.Close()

	_, err = Dial(context.Background(), "not-a-url")
	assert.Error(t, err)
}
