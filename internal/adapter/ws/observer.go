package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// ErrHubClosed is returned by Connect after the hub has shut down.
var ErrHubClosed = errors.New("hub is closed")

// Observer is one registered stream connection. A dedicated sender
// goroutine drains its bounded outbound queue so a slow connection can
// never stall the publisher or starve other observers.
type Observer struct {
	id       string
	hub      *Hub
	conn     StreamConn
	snapshot []byte
	out      chan []byte

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	dropped  atomic.Int64
}

func newObserver(h *Hub, conn StreamConn, snapshot []byte, queueCap int) *Observer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Observer{
		id:       uuid.NewString(),
		hub:      h,
		conn:     conn,
		snapshot: snapshot,
		out:      make(chan []byte, queueCap),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ID returns the observer's connection identifier.
func (o *Observer) ID() string { return o.id }

// Dropped returns how many frames were evicted from this observer's queue
// because the connection could not keep up.
func (o *Observer) Dropped() int64 { return o.dropped.Load() }

// enqueue places a frame on the outbound queue, evicting the oldest unsent
// frame when full. Called with the hub lock held; the sender goroutine is
// the only consumer, so the post-eviction send cannot fail.
func (o *Observer) enqueue(frame []byte) (droppedOne bool) {
	select {
	case o.out <- frame:
		return false
	default:
	}

	select {
	case <-o.out:
	default:
	}
	select {
	case o.out <- frame:
	default:
	}
	o.dropped.Add(1)
	return true
}

// run is the sender loop: snapshot first, then queued frames in order.
// A write failure tears the observer down; the client reseeds from the next
// snapshot on reconnect.
func (o *Observer) run() {
	defer o.hub.remove(o)

	if err := o.conn.Write(o.ctx, websocket.MessageText, o.snapshot); err != nil {
		slog.Debug("observer snapshot write failed", "observer", o.id, "error", err)
		return
	}

	for {
		select {
		case <-o.ctx.Done():
			return
		case frame := <-o.out:
			if err := o.conn.Write(o.ctx, websocket.MessageText, frame); err != nil {
				slog.Debug("observer write failed", "observer", o.id, "error", err)
				return
			}
		}
	}
}

// stop cancels the sender and closes the connection. Idempotent.
func (o *Observer) stop() {
	o.stopOnce.Do(func() {
		o.cancel()
		_ = o.conn.Close(websocket.StatusNormalClosure, "")
	})
}
