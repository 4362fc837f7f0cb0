package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sipeed/cortexd/pkg/clock"
	"github.com/sipeed/cortexd/pkg/conversation"
	"github.com/sipeed/cortexd/pkg/launcher"
	"github.com/sipeed/cortexd/pkg/logger"
	"github.com/sipeed/cortexd/pkg/ratelimit"
	"github.com/sipeed/cortexd/pkg/roles"
	"github.com/sipeed/cortexd/pkg/substrate"
)

// Orchestrator is the cycle/tick driver state machine from spec §4.9.
type Orchestrator struct {
	Ego          *roles.Ego
	Subconscious *roles.Subconscious
	Superego     *roles.Superego
	Id           *roles.Id

	Reader          *substrate.Reader
	Conversation    *conversation.Manager
	RateLimit       *ratelimit.StateManager
	Reconsideration *Reconsideration
	IdleHandler     IdleHandler

	TickLauncher launcher.Launcher
	TickPrompts  TickPrompts
	TickModel    string

	// SchedulerTick, if set, is invoked opportunistically between cycles
	// (never while a cycle is in flight) so pluggable maintenance jobs
	// (backup/email/health, per SPEC_FULL.md §4.12) can run without the
	// orchestrator depending on pkg/schedulers directly.
	SchedulerTick func(ctx context.Context, now time.Time)

	// ReportSink, if set, persists each completed audit as a governance
	// report (SPEC_FULL.md §3's supplemented data model) without the
	// orchestrator depending on pkg/reports directly.
	ReportSink func(cycle int64, findings []string, summary string)

	Clock clock.Clock
	Timer *Timer
	Sink  Sink
	Cfg   Config

	ShutdownFunc func(exitCode int)

	mu                        sync.Mutex
	state                     LoopState
	metrics                   metricsCell
	auditRequested            bool
	auditInFlight             bool
	tickInProgress            bool
	conversationSessionActive bool
	tickRequested             bool
	conversationQueue         []string
	activeInjector            launcher.Injector
}

// New finishes initializing a field-populated Orchestrator: STOPPED state,
// and defaults for any Timer/Sink/Clock left nil.
func New(o *Orchestrator) *Orchestrator {
	o.state = StateStopped
	if o.Timer == nil {
		o.Timer = NewTimer()
	}
	if o.Sink == nil {
		o.Sink = NewMemorySink()
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}

// State returns the current loop state.
func (o *Orchestrator) State() LoopState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// MetricsSnapshot returns a consistent-by-copy view of the loop counters.
func (o *Orchestrator) MetricsSnapshot() Metrics {
	return o.metrics.Snapshot()
}

func (o *Orchestrator) emit(t EventType, data map[string]any) {
	o.Sink.Emit(newEvent(t, o.Clock.Now(), data))
}

// transition applies event to the public state machine, per spec §4.9's
// transition diagram. Returns InvalidTransitionError for anything not in
// the diagram.
func (o *Orchestrator) transition(event string) error {
	o.mu.Lock()
	to, err := next(o.state, event)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	from := o.state
	o.state = to
	o.mu.Unlock()

	o.emit(EventStateChanged, map[string]any{"from": string(from), "to": string(to), "event": event})
	return nil
}

// setStateDirect bypasses the public transition table for internal-only
// moves (rate-limit hibernation sleep/wake), per spec §4.9 step 4: "this is
// the only way to hit the SLEEPING branch without explicit
// initializeSleeping".
func (o *Orchestrator) setStateDirect(to LoopState, reason string) {
	o.mu.Lock()
	from := o.state
	o.state = to
	o.mu.Unlock()
	o.emit(EventStateChanged, map[string]any{"from": string(from), "to": string(to), "reason": reason})
}

// Start transitions STOPPED/SLEEPING -> RUNNING.
func (o *Orchestrator) Start() error { return o.transition("start") }

// Pause transitions RUNNING -> PAUSED.
func (o *Orchestrator) Pause() error { return o.transition("pause") }

// Resume transitions PAUSED -> RUNNING.
func (o *Orchestrator) Resume() error { return o.transition("resume") }

// InitializeSleeping transitions STOPPED -> SLEEPING, used to resume a
// process that restarted while mid-hibernation.
func (o *Orchestrator) InitializeSleeping() error { return o.transition("initializeSleeping") }

// Wake transitions SLEEPING -> RUNNING.
func (o *Orchestrator) Wake() error { return o.transition("wake") }

// RequestAudit marks an audit as due on the next loop iteration, per spec
// HTTP endpoint POST /api/loop/audit.
func (o *Orchestrator) RequestAudit() {
	o.mu.Lock()
	o.auditRequested = true
	o.mu.Unlock()
}

func (o *Orchestrator) consumeAuditRequest() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.auditRequested {
		o.auditRequested = false
		return true
	}
	return false
}

// Nudge interrupts any in-progress cycle-delay sleep, per spec §4.9.
func (o *Orchestrator) Nudge() { o.Timer.Wake() }

// Stop injects a persist-state message into any active session, emits
// message_injected, and transitions toward STOPPED.
func (o *Orchestrator) Stop() error {
	o.injectIntoActiveSession("Persist your state before shutting down")
	if err := o.transition("stop"); err != nil {
		return err
	}
	o.Timer.Wake()
	return nil
}

// RequestRestart does the same as Stop but also invokes the configured
// shutdown callback with exit code 75, so a supervisor can re-exec.
func (o *Orchestrator) RequestRestart() error {
	o.injectIntoActiveSession("Persist your state before shutting down")
	if err := o.transition("stop"); err != nil {
		return err
	}
	o.emit(EventRestartRequested, nil)
	if o.ShutdownFunc != nil {
		o.ShutdownFunc(75)
	}
	return nil
}

func (o *Orchestrator) injectIntoActiveSession(message string) {
	o.mu.Lock()
	injector := o.activeInjector
	o.mu.Unlock()
	if injector != nil {
		_ = injector.Inject(message)
	}
	o.emit(EventMessageInjected, map[string]any{"message": message})
	logger.DebugCF("orchestrator", "injected message", map[string]any{"active": injector != nil})
}

// RunOneCycle executes exactly one decide-dispatch-execute-observe cycle,
// per spec §4.9 step 2. It does not evaluate audits or handle idle
// escalation — RunLoop composes those around it. Its only sleep is the
// rate-limit hibernation after a failed dispatch whose summary names a
// reset time.
func (o *Orchestrator) RunOneCycle(ctx context.Context) CycleResult {
	cycleNum := o.metrics.cycleNumber()

	planRead, err := o.Reader.Read(substrate.PLAN)
	if err != nil {
		o.metrics.recordFailure()
		return CycleResult{Cycle: cycleNum, Action: ActionIdle, Success: false, Summary: err.Error()}
	}

	task, err := o.Ego.DispatchNext()
	if err != nil {
		o.metrics.recordFailure()
		return CycleResult{Cycle: cycleNum, Action: ActionIdle, Success: false, Summary: err.Error()}
	}

	if task == nil {
		o.metrics.recordIdle()
		o.emit(EventIdle, map[string]any{"cycle": cycleNum})
		return CycleResult{Cycle: cycleNum, Action: ActionIdle, Success: true}
	}

	result := o.runDispatch(ctx, cycleNum, *task, planRead.Raw)
	if result.Success {
		o.metrics.recordSuccess()
	} else {
		o.metrics.recordFailure()
	}
	return result
}

func (o *Orchestrator) runDispatch(ctx context.Context, cycleNum int64, task substrate.Task, planRaw string) CycleResult {
	onLog := func(e launcher.ProcessLogEntry) {
		o.emit(EventProcessOutput, map[string]any{
			"source": "cycle", "role": "SUBCONSCIOUS", "cycleNumber": cycleNum,
			"type": e.Type, "content": e.Content,
		})
	}

	exec := o.Subconscious.Execute(ctx, task, planRaw, onLog)

	switch exec.Outcome {
	case roles.ExecSuccess:
		if err := o.Subconscious.MarkTaskComplete(planRaw, task.ID); err != nil {
			logger.WarnCF("orchestrator", "markTaskComplete failed", map[string]any{"error": err.Error()})
		}
		o.applyExecuteMutations(exec)
		_ = o.Conversation.Append(ctx, string(roles.RoleSubconscious), exec.Summary)
	case roles.ExecPartial:
		o.applyExecuteMutations(exec)
		_ = o.Conversation.Append(ctx, string(roles.RoleSubconscious), exec.Summary)
	default:
		_ = o.Conversation.Append(ctx, string(roles.RoleSubconscious), exec.Summary)
	}

	if len(exec.Proposals) > 0 {
		o.handleProposals(ctx, exec.Proposals)
	}

	success := exec.Outcome != roles.ExecFailure
	if success {
		o.runReconsideration(ctx, exec.Summary)
	}

	o.emit(EventCycleComplete, map[string]any{"cycle": cycleNum, "taskId": task.ID, "success": success})

	if !success {
		if resetTime := ratelimit.ParseRateLimitReset(exec.Summary, o.Clock.Now()); resetTime != nil {
			o.handleRateLimitHibernation(ctx, *resetTime, task.ID)
		}
	}

	return CycleResult{Cycle: cycleNum, Action: ActionDispatch, TaskID: task.ID, Success: success, Summary: exec.Summary}
}

func (o *Orchestrator) applyExecuteMutations(exec roles.ExecuteResult) {
	if exec.ProgressEntry != "" {
		if err := o.Subconscious.LogProgress(exec.ProgressEntry); err != nil {
			logger.WarnCF("orchestrator", "logProgress failed", map[string]any{"error": err.Error()})
		}
	}
	if exec.SkillUpdates != nil {
		if err := o.Subconscious.UpdateSkills(*exec.SkillUpdates); err != nil {
			logger.WarnCF("orchestrator", "updateSkills failed", map[string]any{"error": err.Error()})
		}
	}
	if exec.MemoryUpdates != nil {
		if err := o.Subconscious.UpdateMemory(*exec.MemoryUpdates); err != nil {
			logger.WarnCF("orchestrator", "updateMemory failed", map[string]any{"error": err.Error()})
		}
	}
}

func (o *Orchestrator) handleProposals(ctx context.Context, proposals []roles.Proposal) {
	o.emit(EventEvaluationRequested, map[string]any{"count": len(proposals)})
	evaluations := o.Superego.EvaluateProposals(ctx, proposals)
	for _, e := range evaluations {
		if !e.Approved {
			logger.InfoCF("orchestrator", "proposal rejected", map[string]any{"kind": string(e.Proposal.Kind), "reason": e.Reason})
			continue
		}
		var err error
		switch e.Proposal.Kind {
		case roles.ProposalMemory:
			err = o.Subconscious.UpdateMemory(e.Proposal.Content)
		case roles.ProposalSkill:
			err = o.Subconscious.UpdateSkills(e.Proposal.Content)
		}
		if err != nil {
			logger.WarnCF("orchestrator", "approved proposal write failed", map[string]any{"error": err.Error()})
		}
	}
}

func (o *Orchestrator) runReconsideration(ctx context.Context, cycleSummary string) {
	matches, quality, needsReassessment, err := o.Reconsideration.Evaluate(ctx, cycleSummary)
	if err != nil {
		logger.WarnCF("orchestrator", "reconsideration failed, using conservative defaults", map[string]any{"error": err.Error()})
	}
	o.emit(EventReconsiderationComplete, map[string]any{
		"outcomeMatchesIntent": matches,
		"qualityScore":         quality,
		"needsReassessment":    needsReassessment,
	})
}

func (o *Orchestrator) handleRateLimitHibernation(ctx context.Context, resetTime time.Time, interruptedTaskID string) {
	if err := o.RateLimit.SaveStateBeforeSleep(resetTime, interruptedTaskID); err != nil {
		logger.ErrorCF("orchestrator", "saveStateBeforeSleep failed", err, nil)
		return
	}

	o.setStateDirect(StateSleeping, "rate_limited")
	o.sleepUntil(resetTime)
	if o.State() == StateStopped {
		return
	}
	if err := o.RateLimit.ClearRestartContext(); err != nil {
		logger.WarnCF("orchestrator", "clearRestartContext failed", map[string]any{"error": err.Error()})
	}
	if o.State() == StateSleeping {
		o.setStateDirect(StateRunning, "rate_limit_reset")
	}
}

// sleepUntil sleeps until resetTime, re-sleeping for the remainder on every
// early wake per spec §4.9 step 4 / design note §9: nudge() must never
// bypass a rate-limit backoff. A stop() during hibernation does end the
// sleep — the state check below distinguishes it from a spurious nudge.
func (o *Orchestrator) sleepUntil(resetTime time.Time) {
	for {
		if o.State() == StateStopped {
			return
		}
		remaining := resetTime.Sub(o.Clock.Now())
		if remaining <= 0 {
			return
		}
		o.Timer.Delay(remaining)
		if !o.Clock.Now().Before(resetTime) {
			return
		}
	}
}

// RunLoop is the main RUNNING driver, per spec §4.9. It returns when the
// state leaves RUNNING (paused, stopped, or transitioned to sleeping by an
// idle handler).
func (o *Orchestrator) RunLoop(ctx context.Context) {
	for o.State() == StateRunning {
		select {
		case <-ctx.Done():
			return
		default:
		}

		o.maybeFireAudit(ctx)

		result := o.RunOneCycle(ctx)
		o.maybeInjectAutonomyReminder(result.Cycle)

		if o.State() != StateRunning {
			return
		}

		if o.metrics.consecutiveIdle() >= o.Cfg.MaxConsecutiveIdleCycles {
			if o.handleIdleEscalation(ctx) {
				return
			}
		}

		if o.State() != StateRunning {
			return
		}
		if o.SchedulerTick != nil {
			o.SchedulerTick(ctx, o.Clock.Now())
		}
		o.Timer.Delay(time.Duration(o.Cfg.CycleDelayMs) * time.Millisecond)
	}
}

func (o *Orchestrator) maybeFireAudit(ctx context.Context) {
	o.mu.Lock()
	inFlight := o.auditInFlight
	o.mu.Unlock()
	if inFlight {
		return
	}

	total := o.metrics.Snapshot().Total
	due := (o.Cfg.SuperegoAuditInterval > 0 && total%o.Cfg.SuperegoAuditInterval == 0) || o.consumeAuditRequest()
	if !due {
		return
	}

	o.mu.Lock()
	o.auditInFlight = true
	o.mu.Unlock()

	o.metrics.incrementAudits()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorCF("orchestrator", "audit panicked", fmt.Errorf("%v", r), nil)
				o.emit(EventAuditComplete, map[string]any{"error": fmt.Sprintf("%v", r)})
			}
			o.mu.Lock()
			o.auditInFlight = false
			o.mu.Unlock()
		}()
		result := o.Superego.Audit(ctx, nil, nil)
		o.emit(EventAuditComplete, map[string]any{
			"findings": result.Findings,
			"summary":  result.Summary,
		})
		if o.ReportSink != nil {
			o.ReportSink(total, result.Findings, result.Summary)
		}
	}()
}

func (o *Orchestrator) maybeInjectAutonomyReminder(cycleNum int64) {
	interval := o.Cfg.AutonomyReminderInterval
	if interval <= 0 || cycleNum <= 0 || cycleNum%interval != 0 {
		return
	}
	o.injectIntoActiveSession(o.Cfg.AutonomyReminderText)
	o.emit(EventAutonomyReminderInjected, map[string]any{"cycle": cycleNum})
}

// handleIdleEscalation runs the configured IdleHandler (or the implicit
// no_goals default when none is configured) and returns true if RunLoop
// should return immediately (the state left RUNNING).
func (o *Orchestrator) handleIdleEscalation(ctx context.Context) bool {
	var outcome IdleOutcome
	var err error
	if o.IdleHandler != nil {
		outcome, err = o.IdleHandler.HandleIdle(ctx)
		if err != nil {
			logger.WarnCF("orchestrator", "idle handler error", map[string]any{"error": err.Error()})
			outcome = IdleNoGoals
		}
	} else {
		outcome = IdleNoGoals
	}

	o.emit(EventIdleHandler, map[string]any{"outcome": string(outcome)})

	switch outcome {
	case IdleNotIdle:
		return false
	case IdlePlanCreated:
		o.metrics.resetConsecutiveIdle()
		return false
	case IdleNoGoals, IdleAllRejected:
		if o.Cfg.IdleSleepEnabled {
			o.setStateDirect(StateSleeping, string(outcome))
		} else {
			_ = o.transition("stop")
		}
		return true
	default:
		return false
	}
}
