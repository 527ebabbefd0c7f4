// Package eventsource defines the port for the durable event store the
// aggregator pulls from. The store is external to the streaming core; the
// hub and consumers never depend on it.
package eventsource

import (
	"context"
	"time"

	"github.com/sightline-hq/sightline/internal/domain/telemetry"
)

// AgentUsage is one pre-aggregated row of the usage query: totals for a
// single agent within the requested lookback window.
type AgentUsage struct {
	AgentName      string
	ExecutionCount int
	TotalCostUSD   float64
	TotalTokens    int64
}

// Source provides append and window-scoped aggregate access to the durable
// event history.
type Source interface {
	// Append persists one event. Events are append-only; there is no
	// update or delete.
	Append(ctx context.Context, ev *telemetry.ExecutionEvent) error

	// UsageByAgent returns per-agent totals for events at or after since.
	// A zero since means no lower bound.
	UsageByAgent(ctx context.Context, since time.Time) ([]AgentUsage, error)

	// Recent returns the most recent events, newest first, up to limit.
	Recent(ctx context.Context, limit int) ([]telemetry.ExecutionEvent, error)
}
