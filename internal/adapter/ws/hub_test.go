package ws

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/sightline-hq/sightline/internal/domain/telemetry"
)

// fakeStreamConn records written frames in order. When gated, writes after
// the snapshot block until released, simulating a slow client.
type fakeStreamConn struct {
	mu     sync.Mutex
	frames [][]byte

	gateLive bool
	gate     chan struct{}
}

func newFakeStreamConn() *fakeStreamConn {
	return &fakeStreamConn{gate: make(chan struct{})}
}

func (f *fakeStreamConn) Write(ctx context.Context, _ websocket.MessageType, p []byte) error {
	f.mu.Lock()
	isSnapshot := len(f.frames) == 0
	f.mu.Unlock()

	if f.gateLive && !isSnapshot {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	buf := make([]byte, len(p))
	copy(buf, p)
	f.mu.Lock()
	f.frames = append(f.frames, buf)
	f.mu.Unlock()
	return nil
}

func (f *fakeStreamConn) Close(websocket.StatusCode, string) error { return nil }

func (f *fakeStreamConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeStreamConn) frame(i int) telemetry.Frame {
	f.mu.Lock()
	data := f.frames[i]
	f.mu.Unlock()

	frame, err := telemetry.ParseFrame(data)
	if err != nil {
		panic(err)
	}
	return frame
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

func publishN(h *Hub, n int) {
	for i := range n {
		h.Publish(telemetry.ExecutionEvent{ID: strconv.Itoa(i), Status: telemetry.StatusSuccess})
	}
}

func TestHubSnapshotIsFirstFrame(t *testing.T) {
	h := NewHub(10, 8, nil)
	defer h.Close()

	publishN(h, 3)

	conn := newFakeStreamConn()
	o, err := h.Connect(conn)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer h.Disconnect(o)

	h.Publish(telemetry.ExecutionEvent{ID: "live", Status: telemetry.StatusSuccess})

	waitFor(t, func() bool { return conn.count() >= 2 }, "snapshot plus live frame")

	first := conn.frame(0)
	if first.Type != telemetry.FrameSnapshot {
		t.Fatalf("first frame type = %q, want %q", first.Type, telemetry.FrameSnapshot)
	}
	if len(first.Events) != 3 || first.Events[0].ID != "0" || first.Events[2].ID != "2" {
		t.Errorf("snapshot events = %+v, want 0..2 oldest-first", first.Events)
	}

	second := conn.frame(1)
	if second.Type != telemetry.FrameEvent || second.Event.ID != "live" {
		t.Errorf("second frame = %+v, want live event", second)
	}
}

func TestHubSameOrderToAllObservers(t *testing.T) {
	h := NewHub(100, 64, nil)
	defer h.Close()

	connA := newFakeStreamConn()
	connB := newFakeStreamConn()
	oa, _ := h.Connect(connA)
	ob, _ := h.Connect(connB)
	defer h.Disconnect(oa)
	defer h.Disconnect(ob)

	const n = 20
	publishN(h, n)

	waitFor(t, func() bool { return connA.count() == n+1 && connB.count() == n+1 }, "fan-out to both observers")

	for i := 1; i <= n; i++ {
		a, b := connA.frame(i), connB.frame(i)
		want := strconv.Itoa(i - 1)
		if a.Event.ID != want || b.Event.ID != want {
			t.Fatalf("frame %d: observer A got %q, B got %q, want %q", i, a.Event.ID, b.Event.ID, want)
		}
	}
}

func TestHubSlowObserverDropsOldestOnly(t *testing.T) {
	const queueCap = 4
	h := NewHub(100, queueCap, nil)
	defer h.Close()

	slow := newFakeStreamConn()
	slow.gateLive = true
	fast := newFakeStreamConn()

	so, _ := h.Connect(slow)
	fo, _ := h.Connect(fast)
	defer h.Disconnect(so)
	defer h.Disconnect(fo)

	waitFor(t, func() bool { return slow.count() == 1 && fast.count() == 1 }, "snapshots delivered")

	// Overflow the slow observer's queue. Publish must return promptly
	// every time regardless.
	const n = queueCap + 6
	done := make(chan struct{})
	go func() {
		publishN(h, n)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow observer")
	}

	// The fast observer is unaffected.
	waitFor(t, func() bool { return fast.count() == n+1 }, "fast observer to receive everything")

	waitFor(t, func() bool { return so.Dropped() > 0 }, "drops recorded for the slow observer")

	// Release the slow client; it receives the retained frames, which are
	// the newest ones.
	close(slow.gate)
	waitFor(t, func() bool { return slow.count() >= 2 }, "slow observer to drain")

	last := slow.frame(slow.count() - 1)
	if last.Event == nil {
		t.Fatal("expected a live frame after drain")
	}
}

func TestHubBacklogEvictsOldest(t *testing.T) {
	h := NewHub(3, 8, nil)
	defer h.Close()

	publishN(h, 5)

	backlog := h.Backlog()
	if len(backlog) != 3 {
		t.Fatalf("backlog len = %d, want 3", len(backlog))
	}
	want := []string{"2", "3", "4"}
	for i, id := range want {
		if backlog[i].ID != id {
			t.Fatalf("backlog = %+v, want IDs %v oldest-first", backlog, want)
		}
	}
}

func TestHubDisconnectIdempotent(t *testing.T) {
	h := NewHub(10, 8, nil)
	defer h.Close()

	conn := newFakeStreamConn()
	o, err := h.Connect(conn)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	h.Disconnect(o)
	h.Disconnect(o)
	h.Disconnect(o)

	if n := h.ConnectionCount(); n != 0 {
		t.Errorf("ConnectionCount = %d, want 0", n)
	}
}

func TestHubClose(t *testing.T) {
	h := NewHub(10, 8, nil)

	conn := newFakeStreamConn()
	if _, err := h.Connect(conn); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	h.Close()

	if n := h.ConnectionCount(); n != 0 {
		t.Errorf("ConnectionCount after Close = %d, want 0", n)
	}
	if _, err := h.Connect(newFakeStreamConn()); err != ErrHubClosed {
		t.Errorf("Connect after Close = %v, want ErrHubClosed", err)
	}

	// Publish after Close is a no-op, not a panic.
	h.Publish(telemetry.ExecutionEvent{ID: "late"})
	if len(h.Backlog()) != 0 {
		t.Error("Publish after Close must not grow the backlog")
	}

	h.Close() // idempotent
}

func TestHubLateObserverSeesEmptySnapshot(t *testing.T) {
	h := NewHub(10, 8, nil)
	defer h.Close()

	conn := newFakeStreamConn()
	o, err := h.Connect(conn)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer h.Disconnect(o)

	waitFor(t, func() bool { return conn.count() == 1 }, "snapshot frame")

	first := conn.frame(0)
	if first.Type != telemetry.FrameSnapshot || len(first.Events) != 0 {
		t.Errorf("snapshot = %+v, want empty initial_snapshot", first)
	}
}
