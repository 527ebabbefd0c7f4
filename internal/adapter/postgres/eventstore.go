package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sightline-hq/sightline/internal/domain/telemetry"
	"github.com/sightline-hq/sightline/internal/port/eventsource"
)

// EventStore implements eventsource.Source using PostgreSQL (append-only).
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts a new event into the execution_events table. An empty ID
// gets a fresh UUID; timestamps are stored as given.
func (s *EventStore) Append(ctx context.Context, ev *telemetry.ExecutionEvent) error {
	id := ev.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO execution_events (id, ts, session_id, hook_event, tool_name, agent_name, phase, status, duration_ms, cost_usd, total_tokens, budget_exceeded)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id, ev.Timestamp, ev.SessionID, string(ev.HookEvent), ev.ToolName, ev.AgentName, ev.Phase,
		string(ev.Status), ev.DurationMS, ev.CostUSD, ev.TotalTokens, ev.BudgetExceeded)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// UsageByAgent returns per-agent totals for events at or after since,
// ordered by total cost descending. A zero since means all time. Events
// without an agent name are producer-side noise and excluded.
func (s *EventStore) UsageByAgent(ctx context.Context, since time.Time) ([]eventsource.AgentUsage, error) {
	const q = `SELECT agent_name, COUNT(*), COALESCE(SUM(cost_usd), 0), COALESCE(SUM(total_tokens), 0)
		 FROM execution_events
		 WHERE agent_name <> '' AND ($1::timestamptz IS NULL OR ts >= $1)
		 GROUP BY agent_name
		 ORDER BY 3 DESC, agent_name ASC`

	var lower *time.Time
	if !since.IsZero() {
		lower = &since
	}

	rows, err := s.pool.Query(ctx, q, lower)
	if err != nil {
		return nil, fmt.Errorf("usage by agent: %w", err)
	}
	defer rows.Close()

	var usage []eventsource.AgentUsage
	for rows.Next() {
		var u eventsource.AgentUsage
		if err := rows.Scan(&u.AgentName, &u.ExecutionCount, &u.TotalCostUSD, &u.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

// eventColumns is the SELECT column list for execution_events queries.
const eventColumns = `id, ts, session_id, hook_event, tool_name, agent_name, phase, status, duration_ms, cost_usd, total_tokens, budget_exceeded`

// Recent returns the most recent events, newest first, up to limit.
func (s *EventStore) Recent(ctx context.Context, limit int) ([]telemetry.ExecutionEvent, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM execution_events ORDER BY ts DESC LIMIT $1`, eventColumns), limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var events []telemetry.ExecutionEvent
	for rows.Next() {
		var ev telemetry.ExecutionEvent
		if err := rows.Scan(
			&ev.ID, &ev.Timestamp, &ev.SessionID, &ev.HookEvent, &ev.ToolName, &ev.AgentName,
			&ev.Phase, &ev.Status, &ev.DurationMS, &ev.CostUSD, &ev.TotalTokens, &ev.BudgetExceeded,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
