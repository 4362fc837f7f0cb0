package schedulers

import (
	"context"
	"time"
)

// MetricsProvider is a narrow read of a set of named counters, shaped to
// avoid an import cycle between pkg/orchestrator and pkg/schedulers (the
// orchestrator wires a Runner that includes Health) and between
// pkg/substrate and pkg/schedulers beyond what Backup/Email already need.
type MetricsProvider func() map[string]any

// Health aggregates orchestrator loop metrics and substrate cache/error
// counters into its Result data, which the Runner hands to its emit
// callback (pkg/app emits it as a health_check_complete event), per spec §4
// "Supporting schedulers". The /api/health handler does not include it.
type Health struct {
	loopMetrics MetricsProvider
	cacheStats  MetricsProvider
	errorCounts func() map[string]int64
	cronExpr    string
}

// NewHealth builds a Health scheduler. Any provider may be nil, in which
// case that section of the payload is simply omitted.
func NewHealth(loopMetrics, cacheStats MetricsProvider, errorCounts func() map[string]int64, cronExpr string) *Health {
	return &Health{loopMetrics: loopMetrics, cacheStats: cacheStats, errorCounts: errorCounts, cronExpr: cronExpr}
}

func (h *Health) Name() string { return "health" }

func (h *Health) NextRun(after time.Time) (time.Time, bool) {
	return gronxNextRun(h.cronExpr, after)
}

// Tick assembles the health payload. It never fails: a missing provider
// just leaves its section out, since health reporting must never be the
// reason the orchestrator loop stalls.
func (h *Health) Tick(ctx context.Context, now time.Time) (Result, error) {
	payload := map[string]any{"checkedAt": now.UTC().Format(time.RFC3339)}

	if h.loopMetrics != nil {
		payload["loop"] = h.loopMetrics()
	}
	if h.cacheStats != nil {
		payload["substrateCache"] = h.cacheStats()
	}
	if h.errorCounts != nil {
		errs := h.errorCounts()
		total := int64(0)
		for _, c := range errs {
			total += c
		}
		payload["errors"] = errs
		payload["errorTotal"] = total
	}

	return Result{Ran: true, Data: payload}, nil
}
