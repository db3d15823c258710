package simplemedia

import (
	"context"
	"errors"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// MediaIngested does nothing and returns nil
func (n *NoopEventSink) MediaIngested(ctx context.Context, entry *MediaEntry) error {
	return nil
}

// MediaDeleted does nothing and returns nil
func (n *NoopEventSink) MediaDeleted(ctx context.Context, mediaID string) error {
	return nil
}

// ReconciliationNeeded does nothing and returns nil
func (n *NoopEventSink) ReconciliationNeeded(ctx context.Context, event ReconciliationEvent) error {
	return nil
}

// LoggingEventSink writes every event to a structured logger.
// Reconciliation events are logged at error level so they reach alerting.
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) MediaIngested(ctx context.Context, entry *MediaEntry) error {
	l.logger.InfoContext(ctx, "Media ingested",
		"media_id", entry.ID, "name", entry.Name, "destination", entry.Destination, "url", entry.URL)
	return nil
}

func (l *LoggingEventSink) MediaDeleted(ctx context.Context, mediaID string) error {
	l.logger.InfoContext(ctx, "Media deleted", "media_id", mediaID)
	return nil
}

func (l *LoggingEventSink) ReconciliationNeeded(ctx context.Context, event ReconciliationEvent) error {
	l.logger.ErrorContext(ctx, "Reconciliation needed",
		"kind", event.Kind,
		"op", event.Op,
		"media_id", event.MediaID,
		"url", event.URL,
		"object_key", event.ObjectKey,
		"reason", event.Reason)
	return nil
}

// MultiEventSink fans events out to several sinks. Every sink is called even
// if an earlier one fails; the errors are joined.
type MultiEventSink []EventSink

func (m MultiEventSink) MediaIngested(ctx context.Context, entry *MediaEntry) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.MediaIngested(ctx, entry))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) MediaDeleted(ctx context.Context, mediaID string) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.MediaDeleted(ctx, mediaID))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) ReconciliationNeeded(ctx context.Context, event ReconciliationEvent) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.ReconciliationNeeded(ctx, event))
	}
	return errors.Join(errs...)
}
