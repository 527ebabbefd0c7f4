// Package cost defines domain types for per-agent cost aggregation and
// budget threshold classification.
package cost

import "time"

// Period selects the lookback window for an aggregation pass.
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// ParsePeriod validates a period string, defaulting empty to PeriodToday.
func ParsePeriod(s string) (Period, bool) {
	switch Period(s) {
	case PeriodToday, PeriodWeek, PeriodMonth, PeriodAll:
		return Period(s), true
	case "":
		return PeriodToday, true
	default:
		return "", false
	}
}

// Cutoff returns the start instant of the period relative to now.
// PeriodAll returns the zero time, meaning no lower bound.
func (p Period) Cutoff(now time.Time) time.Time {
	switch p {
	case PeriodToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	case PeriodMonth:
		return now.AddDate(0, 0, -30)
	default:
		return time.Time{}
	}
}

// BudgetState is the three-state threshold classification of an agent's
// spend against its budget ceiling.
type BudgetState string

const (
	BudgetOK       BudgetState = "ok"
	BudgetWarning  BudgetState = "warning"
	BudgetExceeded BudgetState = "exceeded"
)

// warningThreshold is the utilization percentage at which an agent moves
// from ok to warning.
const warningThreshold = 80.0

// Classify maps a raw utilization percentage to a BudgetState.
// Boundaries: <80 ok, [80,100) warning, >=100 exceeded.
func Classify(utilizationPercent float64) BudgetState {
	switch {
	case utilizationPercent >= 100:
		return BudgetExceeded
	case utilizationPercent >= warningThreshold:
		return BudgetWarning
	default:
		return BudgetOK
	}
}

// AgentSummary is the per-agent roll-up for one aggregation pass. It is
// recomputed from scratch each pass and replaced wholesale, never edited.
type AgentSummary struct {
	AgentID        string  `json:"agent_id"`
	ExecutionCount int     `json:"execution_count"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
	TotalTokens    int64   `json:"total_tokens"`
	AvgCostUSD     float64 `json:"avg_cost_usd"`

	// BudgetUSD is the externally configured ceiling; nil means unbounded
	// and leaves the utilization fields undefined.
	BudgetUSD *float64 `json:"budget_usd,omitempty"`

	// UtilizationPercent is clamped to 100 for display. RawUtilization
	// carries the unclamped ratio so "at limit" and "over limit" remain
	// distinguishable.
	UtilizationPercent *float64    `json:"budget_utilization_percent,omitempty"`
	RawUtilization     float64     `json:"-"`
	BudgetState        BudgetState `json:"budget_state"`
}

// SetBudget joins an externally supplied ceiling onto the summary and
// derives the utilization fields. A nil or non-positive budget leaves the
// summary unbounded with state ok.
func (s *AgentSummary) SetBudget(budgetUSD *float64) {
	s.BudgetState = BudgetOK
	if budgetUSD == nil || *budgetUSD <= 0 {
		s.BudgetUSD = nil
		s.UtilizationPercent = nil
		s.RawUtilization = 0
		return
	}
	b := *budgetUSD
	s.BudgetUSD = &b
	s.RawUtilization = 100 * s.TotalCostUSD / b
	display := min(s.RawUtilization, 100)
	s.UtilizationPercent = &display
	s.BudgetState = Classify(s.RawUtilization)
}

// Totals is the fleet-wide roll-up across all agents in one pass.
type Totals struct {
	TotalCostUSD       float64 `json:"total_cost_usd"`
	TotalBudgetUSD     float64 `json:"total_budget_usd"`
	TotalExecutions    int     `json:"total_executions"`
	UtilizationPercent float64 `json:"utilization_percent"`
}

// Report is the full output of one aggregation pass. Stale marks a report
// served from the last successful pass because the event source was
// unreachable.
type Report struct {
	Period      Period         `json:"period"`
	Agents      []AgentSummary `json:"agents"`
	Totals      Totals         `json:"totals"`
	GeneratedAt time.Time      `json:"generated_at"`
	Stale       bool           `json:"stale"`
}
