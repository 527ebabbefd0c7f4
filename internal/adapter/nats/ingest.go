// Package nats implements the producer ingest path using NATS JetStream.
// Agent runtimes publish ExecutionEvents as JSON to telemetry subjects;
// the subscriber feeds them into the recording pipeline.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	otelx "github.com/sightline-hq/sightline/internal/adapter/otel"
	"github.com/sightline-hq/sightline/internal/domain/telemetry"
)

const streamName = "SIGHTLINE"

// EventHandler receives one decoded producer event.
type EventHandler func(ctx context.Context, ev telemetry.ExecutionEvent)

// Ingest consumes producer events from a JetStream stream.
type Ingest struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
	metrics *otelx.Metrics
}

// Connect establishes a connection to NATS and ensures the telemetry
// stream exists for the given subject pattern. metrics may be nil.
func Connect(ctx context.Context, url, subject string, metrics *otelx.Metrics) (*Ingest, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subject},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName, "subject", subject)
	return &Ingest{nc: nc, js: js, subject: subject, metrics: metrics}, nil
}

// Start consumes events and passes each decoded event to handler. A
// payload that does not decode is terminated rather than redelivered; a
// poison message must not wedge the ingest path. Returns a stop function.
func (i *Ingest) Start(ctx context.Context, handler EventHandler) (func(), error) {
	consumer, err := i.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: i.subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		i.handleMsg(ctx, msg, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

// handleMsg decodes and dispatches one stream message. A payload that does
// not decode is counted, terminated, and never redelivered.
func (i *Ingest) handleMsg(ctx context.Context, msg jetstream.Msg, handler EventHandler) {
	ev, err := decodeEvent(msg.Data())
	if err != nil {
		slog.Warn("dropping malformed producer event", "subject", msg.Subject(), "error", err)
		i.metrics.AddMalformed(ctx, 1)
		if termErr := msg.Term(); termErr != nil {
			slog.Error("nats term failed", "error", termErr)
		}
		return
	}
	handler(ctx, ev)
	if ackErr := msg.Ack(); ackErr != nil {
		slog.Error("nats ack failed", "error", ackErr)
	}
}

// decodeEvent parses a producer payload, rejecting events that lack the
// fields every execution event must carry.
func decodeEvent(data []byte) (telemetry.ExecutionEvent, error) {
	var ev telemetry.ExecutionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return telemetry.ExecutionEvent{}, err
	}
	if ev.HookEvent == "" {
		return telemetry.ExecutionEvent{}, fmt.Errorf("missing hook_event")
	}
	if ev.Status != telemetry.StatusSuccess && ev.Status != telemetry.StatusError {
		return telemetry.ExecutionEvent{}, fmt.Errorf("invalid status %q", ev.Status)
	}
	return ev, nil
}

// Close shuts down the NATS connection.
func (i *Ingest) Close() error {
	i.nc.Close()
	return nil
}
