package consumer

import "github.com/sightline-hq/sightline/internal/domain/telemetry"

// window is a size-bounded, newest-first view of the event stream. It is
// not time-bounded: once full it holds exactly capacity events, evicting
// the oldest on each prepend.
type window struct {
	events   []telemetry.ExecutionEvent // newest-first
	capacity int
}

func newWindow(capacity int) *window {
	return &window{capacity: capacity}
}

// prepend inserts a live event at the front, evicting the oldest entry
// when the window is at capacity.
func (w *window) prepend(ev telemetry.ExecutionEvent) {
	if len(w.events) == w.capacity {
		copy(w.events[1:], w.events)
		w.events[0] = ev
		return
	}
	w.events = append(w.events, telemetry.ExecutionEvent{})
	copy(w.events[1:], w.events)
	w.events[0] = ev
}

// replace discards the window and reseeds it from a snapshot. The hub
// sends snapshots oldest-first; the window keeps the newest capacity
// events reversed into its newest-first order.
func (w *window) replace(snapshot []telemetry.ExecutionEvent) {
	n := min(len(snapshot), w.capacity)
	w.events = make([]telemetry.ExecutionEvent, n)
	for i := range n {
		w.events[i] = snapshot[len(snapshot)-1-i]
	}
}

// view returns the backing slice, newest-first. Callers must copy before
// handing it out.
func (w *window) view() []telemetry.ExecutionEvent {
	return w.events
}

func (w *window) len() int {
	return len(w.events)
}
