// Package http exposes the read-only query surface for the presentation
// layer and the HTTP ingest endpoint for producers without a NATS path.
package http

import (
	"net/http"
	"strconv"

	"github.com/sightline-hq/sightline/internal/domain/agent"
	"github.com/sightline-hq/sightline/internal/domain/cost"
	"github.com/sightline-hq/sightline/internal/domain/telemetry"
	"github.com/sightline-hq/sightline/internal/service"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// Handlers aggregates the services the HTTP layer needs.
type Handlers struct {
	Cost    *service.CostService
	Ingest  *service.IngestService
	Catalog *agent.Catalog
}

// ListAgentProfiles handles GET /api/v1/agents
func (h *Handlers) ListAgentProfiles(w http.ResponseWriter, _ *http.Request) {
	profiles := h.Catalog.Profiles()
	if profiles == nil {
		profiles = []agent.Profile{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

// CostSummary handles GET /api/v1/costs?period=
func (h *Handlers) CostSummary(w http.ResponseWriter, r *http.Request) {
	period, ok := cost.ParsePeriod(r.URL.Query().Get("period"))
	if !ok {
		writeError(w, http.StatusBadRequest, "period must be one of today, week, month, all")
		return
	}
	report, err := h.Cost.Summary(r.Context(), period)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// CostTotals handles GET /api/v1/costs/totals?period=
func (h *Handlers) CostTotals(w http.ResponseWriter, r *http.Request) {
	period, ok := cost.ParsePeriod(r.URL.Query().Get("period"))
	if !ok {
		writeError(w, http.StatusBadRequest, "period must be one of today, week, month, all")
		return
	}
	totals, stale, err := h.Cost.Totals(r.Context(), period)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		cost.Totals
		Stale bool `json:"stale"`
	}{Totals: totals, Stale: stale})
}

// RecentEvents handles GET /api/v1/events/recent?limit=
func (h *Handlers) RecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}
	events, err := h.Ingest.Recent(r.Context(), limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if events == nil {
		events = []telemetry.ExecutionEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// PostEvent handles POST /api/v1/events
func (h *Handlers) PostEvent(w http.ResponseWriter, r *http.Request) {
	ev, ok := readJSON[telemetry.ExecutionEvent](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	recorded, err := h.Ingest.Record(r.Context(), ev)
	if err != nil {
		writeDomainError(w, err, "event rejected")
		return
	}
	writeJSON(w, http.StatusAccepted, recorded)
}
