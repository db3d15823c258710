// Package redis publishes media events to Redis. Reconciliation events are
// queued on a list so an operator or sweeper can drain them later; ingest and
// delete notifications go out on a pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Default keys
const (
	DefaultReconcileKey = "simplemedia:reconcile"
	DefaultChannel      = "simplemedia:media"
)

// Notification is published on the media channel.
type Notification struct {
	Type  string                  `json:"type"`
	ID    string                  `json:"id"`
	Entry *simplemedia.MediaEntry `json:"entry,omitempty"`
}

// Sink implements simplemedia.EventSink on top of a Redis client
type Sink struct {
	client       *redis.Client
	reconcileKey string
	channel      string
}

// Option configures a Sink
type Option func(*Sink)

// WithReconcileKey sets the list that receives reconciliation events
func WithReconcileKey(key string) Option {
	return func(s *Sink) {
		s.reconcileKey = key
	}
}

// WithChannel sets the pub/sub channel for ingest and delete notifications
func WithChannel(channel string) Option {
	return func(s *Sink) {
		s.channel = channel
	}
}

// New creates a sink on an existing client
func New(client *redis.Client, opts ...Option) *Sink {
	s := &Sink{
		client:       client,
		reconcileKey: DefaultReconcileKey,
		channel:      DefaultChannel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial parses a redis:// URL and pings the server.
func Dial(ctx context.Context, url string, opts ...Option) (*Sink, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return New(client, opts...), nil
}

// Close closes the underlying client
func (s *Sink) Close() error {
	return s.client.Close()
}

func (s *Sink) MediaIngested(ctx context.Context, entry *simplemedia.MediaEntry) error {
	return s.publish(ctx, Notification{Type: "ingested", ID: entry.ID, Entry: entry})
}

func (s *Sink) MediaDeleted(ctx context.Context, mediaID string) error {
	return s.publish(ctx, Notification{Type: "deleted", ID: mediaID})
}

func (s *Sink) publish(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return simplemedia.Unavailable("redis", s.channel, "publish", err)
	}
	return nil
}

// ReconciliationNeeded appends the event to the reconcile list.
func (s *Sink) ReconciliationNeeded(ctx context.Context, event simplemedia.ReconciliationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, s.reconcileKey, data).Err(); err != nil {
		return simplemedia.Unavailable("redis", s.reconcileKey, "rpush", err)
	}
	return nil
}

// Pending returns up to limit queued reconciliation events, oldest first,
// without removing them. A limit of 0 returns all of them.
func (s *Sink) Pending(ctx context.Context, limit int64) ([]simplemedia.ReconciliationEvent, error) {
	stop := limit - 1
	if limit <= 0 {
		stop = -1
	}
	values, err := s.client.LRange(ctx, s.reconcileKey, 0, stop).Result()
	if err != nil {
		return nil, simplemedia.Unavailable("redis", s.reconcileKey, "lrange", err)
	}
	return decodeEvents(values)
}

// Ack removes the n oldest events, typically after they were handled.
func (s *Sink) Ack(ctx context.Context, n int64) error {
	if n <= 0 {
		return nil
	}
	if err := s.client.LTrim(ctx, s.reconcileKey, n, -1).Err(); err != nil {
		return simplemedia.Unavailable("redis", s.reconcileKey, "ltrim", err)
	}
	return nil
}

func decodeEvents(values []string) ([]simplemedia.ReconciliationEvent, error) {
	events := make([]simplemedia.ReconciliationEvent, 0, len(values))
	for _, v := range values {
		var event simplemedia.ReconciliationEvent
		if err := json.Unmarshal([]byte(v), &event); err != nil {
			return nil, fmt.Errorf("decode reconciliation event: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}
