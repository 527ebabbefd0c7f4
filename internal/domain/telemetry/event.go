// Package telemetry defines the ExecutionEvent domain entity and the
// derived statistics computed over a bounded event window.
package telemetry

import "time"

// HookEvent identifies the lifecycle point at which an event was emitted.
type HookEvent string

const (
	HookPreAction    HookEvent = "pre_action"
	HookPostAction   HookEvent = "post_action"
	HookSessionStart HookEvent = "session_start"
	HookSessionEnd   HookEvent = "session_end"
	HookStop         HookEvent = "stop"
)

// Status is the outcome of an execution event.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ExecutionEvent is a single immutable record of agent activity. Producers
// emit one per lifecycle point; the pipeline only ever appends or evicts,
// never edits.
type ExecutionEvent struct {
	ID             string    `json:"id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	SessionID      string    `json:"session_id"`
	HookEvent      HookEvent `json:"hook_event"`
	ToolName       string    `json:"tool_name,omitempty"`
	AgentName      string    `json:"agent_name,omitempty"`
	Phase          string    `json:"phase,omitempty"`
	Status         Status    `json:"status"`
	DurationMS     *int64    `json:"duration_ms,omitempty"`
	CostUSD        *float64  `json:"cost_usd,omitempty"`
	TotalTokens    *int64    `json:"total_tokens,omitempty"`
	BudgetExceeded *bool     `json:"budget_exceeded,omitempty"`
}

// Cost returns the billable cost of the event, treating an absent cost as 0.
func (e *ExecutionEvent) Cost() float64 {
	if e.CostUSD == nil {
		return 0
	}
	return *e.CostUSD
}

// Tokens returns the token count of the event, treating absence as 0.
func (e *ExecutionEvent) Tokens() int64 {
	if e.TotalTokens == nil {
		return 0
	}
	return *e.TotalTokens
}

// OverBudget reports whether the producer flagged this event as having
// crossed the agent's configured spend ceiling.
func (e *ExecutionEvent) OverBudget() bool {
	return e.BudgetExceeded != nil && *e.BudgetExceeded
}
