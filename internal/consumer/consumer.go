// Package consumer implements the resilient stream consumer: a bounded
// local view of the hub's event stream that survives disconnects through
// capped exponential-backoff reconnection.
package consumer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sightline-hq/sightline/internal/domain/telemetry"
)

// State is the consumer's connection state. Transitions:
// Disconnected -> Connecting -> Connected -> (on failure) Disconnected.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Conn is one established stream connection. Read blocks until the next
// frame, a read error, or context cancellation.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// DialFunc opens a new connection to the hub. The context carries the
// connect timeout; a hung dial must respect its cancellation.
type DialFunc func(ctx context.Context) (Conn, error)

// Options configure a Consumer. Zero fields fall back to defaults.
type Options struct {
	WindowCapacity int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	ConnectTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.WindowCapacity <= 0 {
		o.WindowCapacity = 1000
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffCap < o.BackoffBase {
		o.BackoffCap = 30 * time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	return o
}

// Consumer maintains a live bounded window of the event stream. One
// goroutine owns the connect/read/backoff cycle, so the window is never
// mutated from more than one path and frames are processed strictly in
// arrival order.
type Consumer struct {
	dial DialFunc
	opts Options

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// retryNow wakes a pending backoff wait; buffered so Reconnect never
	// blocks.
	retryNow chan struct{}

	mu      sync.Mutex
	state   State
	attempt int
	lastErr error
	active  Conn
	win     *window
	stats   telemetry.WindowStats
}

// New creates a consumer that dials the hub with dial. Call Start to begin
// the connection loop.
func New(dial DialFunc, opts Options) *Consumer {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		dial:     dial,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		retryNow: make(chan struct{}, 1),
		win:      newWindow(opts.WindowCapacity),
	}
}

// Start launches the connection loop. It returns immediately.
func (c *Consumer) Start() {
	go c.run()
}

// Close shuts the consumer down: the pending backoff timer and any
// in-flight connect are cancelled, the active connection is closed, and
// Close blocks until the loop has exited.
func (c *Consumer) Close() {
	c.cancel()
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active != nil {
		_ = active.Close()
	}
	<-c.done
}

// Reconnect cancels any scheduled retry, resets the attempt counter, and
// forces an immediate connection attempt. If currently connected, the
// active connection is closed first.
func (c *Consumer) Reconnect() {
	c.mu.Lock()
	c.attempt = 0
	active := c.active
	c.mu.Unlock()

	select {
	case c.retryNow <- struct{}{}:
	default:
	}
	if active != nil {
		_ = active.Close()
	}
}

// State returns the current connection state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the consumer is currently connected. Always
// current and never blocks on connection I/O.
func (c *Consumer) Connected() bool {
	return c.State() == StateConnected
}

// LastErr returns the most recent connection error, or nil while healthy.
func (c *Consumer) LastErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Events returns a copy of the local window, newest-first.
func (c *Consumer) Events() []telemetry.ExecutionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]telemetry.ExecutionEvent, c.win.len())
	copy(out, c.win.view())
	return out
}

// Stats returns the rollup over the current window. It is recomputed on
// every window mutation, so reads are a plain copy.
func (c *Consumer) Stats() telemetry.WindowStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// WindowLen returns the number of events currently held.
func (c *Consumer) WindowLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.win.len()
}

func (c *Consumer) run() {
	defer close(c.done)

	for {
		if c.ctx.Err() != nil {
			return
		}

		c.setState(StateConnecting)
		conn, err := c.dialWithTimeout()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.connectionLost(err)
			if !c.waitBackoff() {
				return
			}
			continue
		}

		c.setConnected(conn)
		err = c.readLoop(conn)
		c.clearActive()
		_ = conn.Close()

		if c.ctx.Err() != nil {
			return
		}
		c.connectionLost(err)
		if !c.waitBackoff() {
			return
		}
	}
}

// dialWithTimeout bounds the connect attempt separately from the backoff
// delay, so a hung dial cannot stall reconnect scheduling.
func (c *Consumer) dialWithTimeout() (Conn, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.ConnectTimeout)
	defer cancel()
	return c.dial(ctx)
}

func (c *Consumer) readLoop(conn Conn) error {
	for {
		data, err := conn.Read(c.ctx)
		if err != nil {
			return err
		}
		c.handleFrame(data)
	}
}

// handleFrame applies one wire message to the window. A malformed frame is
// logged and dropped; it never terminates the session.
func (c *Consumer) handleFrame(data []byte) {
	frame, err := telemetry.ParseFrame(data)
	if err != nil {
		slog.Warn("dropping malformed frame", "error", err, "bytes", len(data))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch frame.Type {
	case telemetry.FrameSnapshot:
		c.win.replace(frame.Events)
	case telemetry.FrameEvent:
		c.win.prepend(*frame.Event)
	}
	c.stats = telemetry.ComputeStats(c.win.view())
}

// waitBackoff sleeps for the current backoff delay. It returns early on
// manual Reconnect and returns false when the consumer is shutting down.
func (c *Consumer) waitBackoff() bool {
	c.mu.Lock()
	delay := backoffDelay(c.opts.BackoffBase, c.opts.BackoffCap, c.attempt)
	c.attempt++
	c.mu.Unlock()

	slog.Debug("scheduling reconnect", "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.retryNow:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Consumer) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// setConnected records the new connection and resets the attempt counter;
// the next failure starts the backoff schedule from the base delay again.
func (c *Consumer) setConnected(conn Conn) {
	c.mu.Lock()
	c.state = StateConnected
	c.attempt = 0
	c.lastErr = nil
	c.active = conn
	c.mu.Unlock()
	slog.Info("stream connected")
}

func (c *Consumer) clearActive() {
	c.mu.Lock()
	c.active = nil
	c.mu.Unlock()
}

func (c *Consumer) connectionLost(err error) {
	c.mu.Lock()
	c.state = StateDisconnected
	c.lastErr = err
	c.mu.Unlock()
	slog.Warn("stream disconnected", "error", err)
}
