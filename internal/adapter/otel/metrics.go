// Package otel holds the OpenTelemetry metric instruments for the
// telemetry pipeline. The metric provider is whatever the process
// installed globally; with none installed the instruments are no-ops.
package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "sightline"

// Metrics holds all pipeline metric instruments. A nil *Metrics is valid
// and records nothing, so components take it as an optional dependency.
type Metrics struct {
	EventsIngested  metric.Int64Counter
	EventsPublished metric.Int64Counter
	FanoutDropped   metric.Int64Counter
	MalformedFrames metric.Int64Counter
	ActiveObservers metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.EventsIngested, err = meter.Int64Counter("sightline.events.ingested",
		metric.WithDescription("Execution events accepted from producers"))
	if err != nil {
		return nil, err
	}

	m.EventsPublished, err = meter.Int64Counter("sightline.events.published",
		metric.WithDescription("Execution events fanned out by the hub"))
	if err != nil {
		return nil, err
	}

	m.FanoutDropped, err = meter.Int64Counter("sightline.events.fanout_dropped",
		metric.WithDescription("Frames evicted from slow observer queues"))
	if err != nil {
		return nil, err
	}

	m.MalformedFrames, err = meter.Int64Counter("sightline.events.malformed",
		metric.WithDescription("Inbound payloads dropped as unparseable"))
	if err != nil {
		return nil, err
	}

	m.ActiveObservers, err = meter.Int64UpDownCounter("sightline.observers.active",
		metric.WithDescription("Currently connected observers"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// AddIngested records events accepted from producers.
func (m *Metrics) AddIngested(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.EventsIngested.Add(ctx, n)
}

// AddPublished records events fanned out by the hub.
func (m *Metrics) AddPublished(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.EventsPublished.Add(ctx, n)
}

// AddFanoutDropped records frames evicted from slow observer queues.
func (m *Metrics) AddFanoutDropped(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.FanoutDropped.Add(ctx, n)
}

// AddMalformed records inbound payloads dropped as unparseable.
func (m *Metrics) AddMalformed(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.MalformedFrames.Add(ctx, n)
}

// ObserverConnected increments the active observer gauge.
func (m *Metrics) ObserverConnected(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveObservers.Add(ctx, 1)
}

// ObserverDisconnected decrements the active observer gauge.
func (m *Metrics) ObserverDisconnected(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveObservers.Add(ctx, -1)
}
