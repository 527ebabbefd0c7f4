package telemetry

// WindowStats holds counts derived from a consumer's current event window.
// It is always recomputed wholesale; there is no incremental state to drift.
type WindowStats struct {
	Total          int     `json:"total"`
	Success        int     `json:"success"`
	Errors         int     `json:"errors"`
	AvgDurationMS  float64 `json:"avg_duration_ms"`
	BudgetWarnings int     `json:"budget_warnings"`
}

// ComputeStats folds the given events into a WindowStats. AvgDurationMS is
// the mean over events that carry a duration and 0 when none do.
func ComputeStats(events []ExecutionEvent) WindowStats {
	st := WindowStats{Total: len(events)}

	var durSum int64
	var durCount int
	for i := range events {
		ev := &events[i]
		switch ev.Status {
		case StatusSuccess:
			st.Success++
		case StatusError:
			st.Errors++
		}
		if ev.DurationMS != nil {
			durSum += *ev.DurationMS
			durCount++
		}
		if ev.OverBudget() {
			st.BudgetWarnings++
		}
	}
	if durCount > 0 {
		st.AvgDurationMS = float64(durSum) / float64(durCount)
	}
	return st
}
