// Package ws implements the WebSocket broadcast hub: the single fan-out
// point for execution events to any number of connected observers.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	otelx "github.com/sightline-hq/sightline/internal/adapter/otel"
	"github.com/sightline-hq/sightline/internal/domain/telemetry"
)

// StreamConn is the subset of *websocket.Conn the hub writes to. Tests
// substitute an in-memory implementation.
type StreamConn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Hub owns the observer registry and the rolling event backlog. All
// mutations happen under one mutex with short critical sections; delivery
// to observers is decoupled through per-observer bounded queues so Publish
// never blocks on observer I/O.
type Hub struct {
	backlogCap int
	queueCap   int
	metrics    *otelx.Metrics

	mu        sync.Mutex
	observers map[*Observer]struct{}
	backlog   []telemetry.ExecutionEvent // oldest-first
	closed    bool
}

// NewHub creates a hub with the given backlog and per-observer queue
// capacities. Both must be positive; config validation enforces this.
func NewHub(backlogCap, queueCap int, metrics *otelx.Metrics) *Hub {
	return &Hub{
		backlogCap: backlogCap,
		queueCap:   queueCap,
		metrics:    metrics,
		observers:  make(map[*Observer]struct{}),
	}
}

// Publish appends the event to the backlog and enqueues it to every
// registered observer. The oldest backlog entry is evicted at capacity.
// A full observer queue drops that observer's oldest unsent frame; other
// observers and the publisher are unaffected.
func (h *Hub) Publish(ev telemetry.ExecutionEvent) {
	frame, err := json.Marshal(telemetry.EventFrame(ev))
	if err != nil {
		slog.Error("marshal event frame", "error", err)
		return
	}

	var dropped int64
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	if len(h.backlog) == h.backlogCap {
		copy(h.backlog, h.backlog[1:])
		h.backlog = h.backlog[:len(h.backlog)-1]
	}
	h.backlog = append(h.backlog, ev)

	// Enqueueing under the hub lock is what gives every observer the same
	// relative event order.
	for o := range h.observers {
		if o.enqueue(frame) {
			dropped++
		}
	}
	h.mu.Unlock()

	ctx := context.Background()
	h.metrics.AddPublished(ctx, 1)
	if dropped > 0 {
		h.metrics.AddFanoutDropped(ctx, dropped)
	}
}

// Connect registers a new observer over the given connection and starts
// its sender. The snapshot of the current backlog (oldest-first) is fixed
// at registration time and is always the first frame on the wire, so no
// live event can precede it.
func (h *Hub) Connect(conn StreamConn) (*Observer, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}

	snapshot, err := json.Marshal(telemetry.SnapshotFrame(h.backlog))
	if err != nil {
		h.mu.Unlock()
		return nil, err
	}

	o := newObserver(h, conn, snapshot, h.queueCap)
	h.observers[o] = struct{}{}
	h.mu.Unlock()

	go o.run()

	h.metrics.ObserverConnected(context.Background())
	slog.Info("observer connected", "observer", o.ID())
	return o, nil
}

// Disconnect deregisters the observer and releases its resources. Safe to
// call more than once and from any goroutine.
func (h *Hub) Disconnect(o *Observer) {
	h.remove(o)
}

func (h *Hub) remove(o *Observer) {
	h.mu.Lock()
	_, registered := h.observers[o]
	delete(h.observers, o)
	h.mu.Unlock()

	if !registered {
		return
	}

	o.stop()
	h.metrics.ObserverDisconnected(context.Background())
	slog.Info("observer disconnected", "observer", o.ID(), "dropped_frames", o.Dropped())
}

// Close proactively disconnects all observers and rejects further
// connects and publishes.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	all := make([]*Observer, 0, len(h.observers))
	for o := range h.observers {
		all = append(all, o)
	}
	h.observers = make(map[*Observer]struct{})
	h.mu.Unlock()

	ctx := context.Background()
	for _, o := range all {
		o.stop()
		h.metrics.ObserverDisconnected(ctx)
	}
}

// ConnectionCount returns the number of registered observers.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Backlog returns a copy of the current backlog, oldest-first.
func (h *Hub) Backlog() []telemetry.ExecutionEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]telemetry.ExecutionEvent, len(h.backlog))
	copy(out, h.backlog)
	return out
}
