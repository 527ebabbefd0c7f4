// Package service wires the domain to its ports: cost aggregation passes
// over the durable event store and the producer ingest pipeline.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sightline-hq/sightline/internal/domain/agent"
	"github.com/sightline-hq/sightline/internal/domain/cost"
	"github.com/sightline-hq/sightline/internal/port/cache"
	"github.com/sightline-hq/sightline/internal/port/eventsource"
	"github.com/sightline-hq/sightline/internal/resilience"
)

// CostService turns raw event history into per-agent financial summaries.
// Each aggregation pass is independent and builds its accumulator from
// scratch, so concurrent passes for different periods never interfere.
// Identical concurrent requests are collapsed through singleflight.
type CostService struct {
	source  eventsource.Source
	catalog *agent.Catalog
	cache   cache.Cache // optional
	breaker *resilience.Breaker
	ttl     time.Duration
	group   singleflight.Group
	now     func() time.Time

	mu       sync.RWMutex
	lastGood map[cost.Period]*cost.Report
}

// NewCostService creates a CostService. cache may be nil to disable
// summary caching; breaker may not be nil.
func NewCostService(source eventsource.Source, catalog *agent.Catalog, c cache.Cache, breaker *resilience.Breaker, ttl time.Duration) *CostService {
	return &CostService{
		source:   source,
		catalog:  catalog,
		cache:    c,
		breaker:  breaker,
		ttl:      ttl,
		now:      time.Now,
		lastGood: make(map[cost.Period]*cost.Report),
	}
}

// Summary returns the cost report for the given period. When the event
// source is unreachable the last successfully computed report for that
// period is returned with Stale set; the viewer never sees a hard failure
// for a source outage.
func (s *CostService) Summary(ctx context.Context, period cost.Period) (*cost.Report, error) {
	if r := s.cached(ctx, period); r != nil {
		return r, nil
	}

	// The pass runs detached from the caller's cancellation: other callers
	// collapsed into the same flight must not inherit the first caller's
	// deadline, and an abandoned pass still refreshes lastGood.
	passCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(string(period), func() (any, error) {
		return s.compute(passCtx, period), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cost.Report), nil
}

// Totals returns only the fleet-wide roll-up for the period.
func (s *CostService) Totals(ctx context.Context, period cost.Period) (cost.Totals, bool, error) {
	report, err := s.Summary(ctx, period)
	if err != nil {
		return cost.Totals{}, false, err
	}
	return report.Totals, report.Stale, nil
}

// compute runs one aggregation pass. The threshold classification is part
// of the pass and is never carried over from a previous one.
func (s *CostService) compute(ctx context.Context, period cost.Period) *cost.Report {
	since := period.Cutoff(s.now())

	var rows []eventsource.AgentUsage
	err := s.breaker.Execute(func() error {
		var qerr error
		rows, qerr = s.source.UsageByAgent(ctx, since)
		return qerr
	})
	if err != nil {
		slog.Error("aggregation source unavailable", "period", period, "error", err)
		return s.staleFallback(period)
	}

	report := &cost.Report{
		Period:      period,
		Agents:      make([]cost.AgentSummary, 0, len(rows)),
		GeneratedAt: s.now(),
	}

	for _, row := range rows {
		sum := cost.AgentSummary{
			AgentID:        row.AgentName,
			ExecutionCount: row.ExecutionCount,
			TotalCostUSD:   row.TotalCostUSD,
			TotalTokens:    row.TotalTokens,
			AvgCostUSD:     row.TotalCostUSD / float64(max(row.ExecutionCount, 1)),
		}
		sum.SetBudget(s.catalog.Budget(row.AgentName))
		report.Agents = append(report.Agents, sum)

		report.Totals.TotalCostUSD += sum.TotalCostUSD
		report.Totals.TotalExecutions += sum.ExecutionCount
		if sum.BudgetUSD != nil {
			report.Totals.TotalBudgetUSD += *sum.BudgetUSD
		}
	}
	if report.Totals.TotalBudgetUSD > 0 {
		report.Totals.UtilizationPercent = 100 * report.Totals.TotalCostUSD / report.Totals.TotalBudgetUSD
	}

	sort.SliceStable(report.Agents, func(i, j int) bool {
		if report.Agents[i].TotalCostUSD != report.Agents[j].TotalCostUSD {
			return report.Agents[i].TotalCostUSD > report.Agents[j].TotalCostUSD
		}
		return report.Agents[i].AgentID < report.Agents[j].AgentID
	})

	s.remember(ctx, period, report)
	return report
}

// staleFallback serves the last good report for the period, marked stale.
// With no prior pass the report is empty but still marked stale so the
// presentation layer can distinguish "no data yet" from "no spend".
func (s *CostService) staleFallback(period cost.Period) *cost.Report {
	s.mu.RLock()
	last := s.lastGood[period]
	s.mu.RUnlock()

	if last == nil {
		return &cost.Report{Period: period, Agents: []cost.AgentSummary{}, Stale: true}
	}
	stale := *last
	stale.Stale = true
	return &stale
}

func (s *CostService) remember(ctx context.Context, period cost.Period, report *cost.Report) {
	s.mu.Lock()
	s.lastGood[period] = report
	s.mu.Unlock()

	if s.cache == nil || s.ttl <= 0 {
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, summaryKey(period), data, s.ttl); err != nil {
		slog.Debug("summary cache set failed", "period", period, "error", err)
	}
}

func (s *CostService) cached(ctx context.Context, period cost.Period) *cost.Report {
	if s.cache == nil {
		return nil
	}
	data, ok, err := s.cache.Get(ctx, summaryKey(period))
	if err != nil || !ok {
		return nil
	}
	var report cost.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil
	}
	return &report
}

func summaryKey(period cost.Period) string {
	return "costs:" + string(period)
}
