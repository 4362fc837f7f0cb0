package orchestrator

import "context"

// IdleOutcome is the result kind returned by an IdleHandler, per spec §4.9
// step 5.
type IdleOutcome string

const (
	IdleNotIdle     IdleOutcome = "not_idle"
	IdlePlanCreated IdleOutcome = "plan_created"
	IdleNoGoals     IdleOutcome = "no_goals"
	IdleAllRejected IdleOutcome = "all_rejected"
)

// IdleHandler is invoked once consecutiveIdle crosses the configured
// threshold, giving the caller a chance to generate new work (typically by
// driving the Id role shim) before the loop sleeps or stops.
type IdleHandler interface {
	HandleIdle(ctx context.Context) (IdleOutcome, error)
}

// IdleHandlerFunc adapts a function to IdleHandler.
type IdleHandlerFunc func(ctx context.Context) (IdleOutcome, error)

func (f IdleHandlerFunc) HandleIdle(ctx context.Context) (IdleOutcome, error) { return f(ctx) }
