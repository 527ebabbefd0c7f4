// Package broadcast defines the port for fanning out execution events to
// connected observers.
package broadcast

import "github.com/sightline-hq/sightline/internal/domain/telemetry"

// Publisher accepts events for fan-out. Implementations must never block
// the caller on observer I/O.
type Publisher interface {
	Publish(ev telemetry.ExecutionEvent)
}
