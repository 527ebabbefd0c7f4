package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	otelx "github.com/sightline-hq/sightline/internal/adapter/otel"
	"github.com/sightline-hq/sightline/internal/domain"
	"github.com/sightline-hq/sightline/internal/domain/telemetry"
	"github.com/sightline-hq/sightline/internal/port/broadcast"
	"github.com/sightline-hq/sightline/internal/port/eventsource"
)

// IngestService is the single write path for execution events: it
// normalizes producer input, fans it out through the hub, and persists it
// to the durable store. Fan-out comes first — a slow or down store must
// not delay the live view.
type IngestService struct {
	store   eventsource.Source
	hub     broadcast.Publisher
	metrics *otelx.Metrics
	now     func() time.Time
}

// NewIngestService creates an IngestService. metrics may be nil.
func NewIngestService(store eventsource.Source, hub broadcast.Publisher, metrics *otelx.Metrics) *IngestService {
	return &IngestService{
		store:   store,
		hub:     hub,
		metrics: metrics,
		now:     time.Now,
	}
}

// Record accepts one producer event. A missing ID or timestamp is filled
// in; invalid events are rejected with domain.ErrValidation. Store errors
// are logged, not returned: durable history is best-effort while the live
// stream is authoritative for connected observers.
func (s *IngestService) Record(ctx context.Context, ev telemetry.ExecutionEvent) (telemetry.ExecutionEvent, error) {
	if err := validateEvent(&ev); err != nil {
		return telemetry.ExecutionEvent{}, err
	}

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}

	s.hub.Publish(ev)
	s.metrics.AddIngested(ctx, 1)

	if err := s.store.Append(ctx, &ev); err != nil {
		slog.Error("event store append failed", "event", ev.ID, "error", err)
	}

	return ev, nil
}

// Recent returns the most recent durable events, newest first.
func (s *IngestService) Recent(ctx context.Context, limit int) ([]telemetry.ExecutionEvent, error) {
	return s.store.Recent(ctx, limit)
}

func validateEvent(ev *telemetry.ExecutionEvent) error {
	if ev.HookEvent == "" {
		return fmt.Errorf("%w: hook_event is required", domain.ErrValidation)
	}
	if ev.Status != telemetry.StatusSuccess && ev.Status != telemetry.StatusError {
		return fmt.Errorf("%w: status must be success or error", domain.ErrValidation)
	}
	if ev.DurationMS != nil && *ev.DurationMS < 0 {
		return fmt.Errorf("%w: duration_ms must be non-negative", domain.ErrValidation)
	}
	if ev.CostUSD != nil && *ev.CostUSD < 0 {
		return fmt.Errorf("%w: cost_usd must be non-negative", domain.ErrValidation)
	}
	return nil
}
