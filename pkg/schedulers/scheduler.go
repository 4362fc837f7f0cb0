// Package schedulers implements the pluggable Backup, Email, and Health
// maintenance jobs that the orchestrator driver ticks opportunistically
// between cycles, per spec §4 "Supporting schedulers".
package schedulers

import (
	"context"
	"time"

	"github.com/adhocore/gronx"
)

// Result is what a Scheduler's Tick produced, carried into the event the
// caller emits on success.
type Result struct {
	Ran  bool
	Data map[string]any
}

// Scheduler is a cron-driven maintenance job. NextRun is advisory — Runner
// uses it to avoid calling Tick more often than the cron expression allows,
// but Tick itself must be safe to call redundantly (idempotent no-op when
// nothing is due).
type Scheduler interface {
	Name() string
	Tick(ctx context.Context, now time.Time) (Result, error)
	NextRun(after time.Time) (time.Time, bool)
}

// gronxNextRun computes the next firing time for a cron expression after a
// given instant, using gronx's NextTickAfter. A malformed or empty
// expression yields ok=false rather than a panic, since the whole point of
// this layer is to stay peripheral to the orchestrator loop; Runner treats a
// scheduler with no next run as due on every TickAll.
func gronxNextRun(expr string, after time.Time) (time.Time, bool) {
	if expr == "" {
		return time.Time{}, false
	}
	next, err := gronx.NextTickAfter(expr, after, false)
	if err != nil {
		return time.Time{}, false
	}
	return next, true
}

// Runner ticks a fixed set of Schedulers opportunistically, calling Tick
// only once NextRun says one is due, and emitting a scheduler-named event
// through emit for every successful, non-empty Result.
type Runner struct {
	schedulers []Scheduler
	lastTick   map[string]time.Time
	emit       func(name string, data map[string]any)
}

// NewRunner builds a Runner over the given schedulers. emit is called once
// per scheduler whose Tick both succeeds and reports Ran==true.
func NewRunner(emit func(name string, data map[string]any), schedulers ...Scheduler) *Runner {
	return &Runner{
		schedulers: schedulers,
		lastTick:   make(map[string]time.Time),
		emit:       emit,
	}
}

// TickAll calls Tick on every scheduler whose NextRun is due at or before
// now, or that reports no next run at all, swallowing individual scheduler errors into the onError callback
// (if non-nil) rather than propagating them, since a scheduler failure must
// never interrupt the orchestrator's own cycle loop.
func (r *Runner) TickAll(ctx context.Context, now time.Time, onError func(name string, err error)) {
	for _, s := range r.schedulers {
		last, seen := r.lastTick[s.Name()]
		if !seen {
			last = now.Add(-24 * time.Hour)
		}
		next, ok := s.NextRun(last)
		if ok && next.After(now) {
			continue
		}

		res, err := s.Tick(ctx, now)
		r.lastTick[s.Name()] = now
		if err != nil {
			if onError != nil {
				onError(s.Name(), err)
			}
			continue
		}
		if res.Ran && r.emit != nil {
			r.emit(s.Name(), res.Data)
		}
	}
}
