// Package metrics exports media events as Prometheus counters.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/simple-media/pkg/simplemedia"
)

const defaultNamespace = "simplemedia"

// Sink implements simplemedia.EventSink by counting events.
type Sink struct {
	ingested       *prometheus.CounterVec
	ingestedBytes  *prometheus.CounterVec
	deleted        prometheus.Counter
	reconciliation *prometheus.CounterVec
}

// NewSink registers the media counters on reg. A nil reg uses the default
// registerer; collectors that are already registered are reused.
func NewSink(namespace string, reg prometheus.Registerer) (*Sink, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	s := &Sink{
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_ingested_total",
			Help:      "Images ingested, by destination.",
		}, []string{"destination"}),
		ingestedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_ingested_bytes_total",
			Help:      "Bytes of WebP written to blob storage, by destination.",
		}, []string{"destination"}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_deleted_total",
			Help:      "Media entries deleted.",
		}),
		reconciliation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_events_total",
			Help:      "Blob and metadata divergences reported, by kind and operation.",
		}, []string{"kind", "op"}),
	}

	var err error
	if s.ingested, err = registerCounterVec(reg, s.ingested); err != nil {
		return nil, err
	}
	if s.ingestedBytes, err = registerCounterVec(reg, s.ingestedBytes); err != nil {
		return nil, err
	}
	if s.reconciliation, err = registerCounterVec(reg, s.reconciliation); err != nil {
		return nil, err
	}
	if err := reg.Register(s.deleted); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register deleted counter: %w", err)
		}
		existing, ok := are.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, fmt.Errorf("register deleted counter: %w", err)
		}
		s.deleted = existing
	}
	return s, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register counter: %w", err)
	}
	return c, nil
}

func (s *Sink) MediaIngested(ctx context.Context, entry *simplemedia.MediaEntry) error {
	s.ingested.WithLabelValues(entry.Destination).Inc()
	s.ingestedBytes.WithLabelValues(entry.Destination).Add(float64(entry.Size))
	return nil
}

func (s *Sink) MediaDeleted(ctx context.Context, mediaID string) error {
	s.deleted.Inc()
	return nil
}

func (s *Sink) ReconciliationNeeded(ctx context.Context, event simplemedia.ReconciliationEvent) error {
	s.reconciliation.WithLabelValues(string(event.Kind), event.Op).Inc()
	return nil
}

// Handler returns an http.Handler for Prometheus scraping of gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
