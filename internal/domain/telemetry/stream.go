package telemetry

import "encoding/json"

// Frame types for the duplex event stream. A connection carries exactly one
// FrameSnapshot (the first message) followed by any number of FrameEvent.
const (
	FrameSnapshot = "initial_snapshot"
	FrameEvent    = "event"
)

// Frame is the JSON envelope for every message on the event stream.
// Snapshot events are ordered oldest-first; consumers that keep a
// newest-first window reverse on receipt.
type Frame struct {
	Type   string           `json:"type"`
	Events []ExecutionEvent `json:"events,omitempty"`
	Event  *ExecutionEvent  `json:"event,omitempty"`
}

// SnapshotFrame builds the initial_snapshot frame for the given backlog,
// which must already be in oldest-first order.
func SnapshotFrame(events []ExecutionEvent) Frame {
	return Frame{Type: FrameSnapshot, Events: events}
}

// EventFrame builds a single-event frame.
func EventFrame(ev ExecutionEvent) Frame {
	return Frame{Type: FrameEvent, Event: &ev}
}

// ParseFrame decodes one wire message. It rejects frames whose type is
// unknown or whose payload does not match the declared type, so a corrupt
// frame can be dropped without touching connection state.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	switch f.Type {
	case FrameSnapshot:
		return f, nil
	case FrameEvent:
		if f.Event == nil {
			return Frame{}, ErrBadFrame
		}
		return f, nil
	default:
		return Frame{}, ErrBadFrame
	}
}
