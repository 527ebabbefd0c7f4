package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sightline-hq/sightline/internal/domain/telemetry"
)

// fakeConn is a scriptable stream connection fed through a channel.
type fakeConn struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.frames:
		return data, nil
	case <-f.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) send(t *testing.T, frame telemetry.Frame) {
	t.Helper()
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	f.frames <- data
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func fastOpts() Options {
	return Options{
		WindowCapacity: 100,
		BackoffBase:    time.Millisecond,
		BackoffCap:     5 * time.Millisecond,
		ConnectTimeout: time.Second,
	}
}

func TestConsumerSnapshotThenLive(t *testing.T) {
	conn := newFakeConn()
	c := New(func(ctx context.Context) (Conn, error) { return conn, nil }, fastOpts())
	c.Start()
	defer c.Close()

	waitFor(t, c.Connected, "connected state")

	conn.send(t, telemetry.SnapshotFrame([]telemetry.ExecutionEvent{
		{ID: "1", Status: telemetry.StatusSuccess},
		{ID: "2", Status: telemetry.StatusSuccess},
	}))
	conn.send(t, telemetry.EventFrame(telemetry.ExecutionEvent{ID: "3", Status: telemetry.StatusError}))

	waitFor(t, func() bool { return c.WindowLen() == 3 }, "window to hold 3 events")

	events := c.Events()
	want := []string{"3", "2", "1"}
	for i, id := range want {
		if events[i].ID != id {
			t.Fatalf("Events = %v, want newest-first %v", ids(events), want)
		}
	}

	st := c.Stats()
	if st.Total != 3 || st.Success != 2 || st.Errors != 1 {
		t.Errorf("Stats = %+v, want total 3 / success 2 / errors 1", st)
	}
}

func TestConsumerMalformedFrameSurvives(t *testing.T) {
	conn := newFakeConn()
	c := New(func(ctx context.Context) (Conn, error) { return conn, nil }, fastOpts())
	c.Start()
	defer c.Close()

	waitFor(t, c.Connected, "connected state")

	conn.frames <- []byte(`{"type":"garbage"`)
	conn.frames <- []byte(`{"type":"unknown_type"}`)
	conn.send(t, telemetry.EventFrame(telemetry.ExecutionEvent{ID: "ok", Status: telemetry.StatusSuccess}))

	waitFor(t, func() bool { return c.WindowLen() == 1 }, "live event after malformed frames")

	if !c.Connected() {
		t.Error("malformed frames must not terminate the connection")
	}
	if got := c.Events()[0].ID; got != "ok" {
		t.Errorf("surviving event = %q, want ok", got)
	}
}

func TestConsumerReconnectsAfterDrop(t *testing.T) {
	var dials atomic.Int32
	conns := make(chan *fakeConn, 4)
	dial := func(ctx context.Context) (Conn, error) {
		dials.Add(1)
		conn := newFakeConn()
		conns <- conn
		return conn, nil
	}

	c := New(dial, fastOpts())
	c.Start()
	defer c.Close()

	first := <-conns
	waitFor(t, c.Connected, "first connection")

	first.Close() // server drops us

	second := <-conns
	waitFor(t, c.Connected, "reconnection")

	if dials.Load() < 2 {
		t.Fatalf("dials = %d, want at least 2", dials.Load())
	}

	// The stream is usable again after the reseeded snapshot.
	second.send(t, telemetry.SnapshotFrame([]telemetry.ExecutionEvent{{ID: "s", Status: telemetry.StatusSuccess}}))
	waitFor(t, func() bool { return c.WindowLen() == 1 }, "snapshot after reconnect")
}

func TestConsumerBackoffOnDialFailure(t *testing.T) {
	var dials atomic.Int32
	dial := func(ctx context.Context) (Conn, error) {
		dials.Add(1)
		return nil, errors.New("connection refused")
	}

	c := New(dial, fastOpts())
	c.Start()
	defer c.Close()

	waitFor(t, func() bool { return dials.Load() >= 3 }, "repeated dial attempts")

	if c.Connected() {
		t.Error("consumer should not report connected while dials fail")
	}
	if c.LastErr() == nil {
		t.Error("LastErr should carry the dial failure")
	}
}

func TestConsumerManualReconnect(t *testing.T) {
	var dials atomic.Int32
	dial := func(ctx context.Context) (Conn, error) {
		dials.Add(1)
		return nil, errors.New("unreachable")
	}

	// Huge backoff: without manual intervention there is one dial, then
	// the loop parks in waitBackoff.
	c := New(dial, Options{
		BackoffBase:    time.Hour,
		BackoffCap:     time.Hour,
		ConnectTimeout: time.Second,
	})
	c.Start()
	defer c.Close()

	waitFor(t, func() bool { return dials.Load() == 1 }, "initial dial")

	c.Reconnect()
	waitFor(t, func() bool { return dials.Load() >= 2 }, "immediate retry after Reconnect")
}

func TestConsumerCloseUnblocksBackoff(t *testing.T) {
	dial := func(ctx context.Context) (Conn, error) {
		return nil, errors.New("unreachable")
	}

	c := New(dial, Options{
		BackoffBase:    time.Hour,
		BackoffCap:     time.Hour,
		ConnectTimeout: time.Second,
	})
	c.Start()

	waitFor(t, func() bool { return c.State() == StateDisconnected }, "first failure")

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return while loop was parked in backoff")
	}
}

func TestConsumerCloseCancelsHungDial(t *testing.T) {
	dial := func(ctx context.Context) (Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	c := New(dial, Options{ConnectTimeout: time.Hour})
	c.Start()

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the in-flight dial")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
