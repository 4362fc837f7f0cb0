package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/cortexd/pkg/clock"
	"github.com/sipeed/cortexd/pkg/conversation"
	"github.com/sipeed/cortexd/pkg/launcher"
	"github.com/sipeed/cortexd/pkg/ratelimit"
	"github.com/sipeed/cortexd/pkg/roles"
	"github.com/sipeed/cortexd/pkg/substrate"
)

// fakePrompts satisfies roles.PromptBuilder, orchestrator.TickPrompts, and
// orchestrator.ReconsiderPrompts with placeholder text; prompt construction
// itself is out of scope.
type fakePrompts struct{}

func (fakePrompts) EgoDecide(string) (string, string)             { return "sys", "decide" }
func (fakePrompts) EgoRespond(message, _ string) (string, string) { return "sys", message }
func (fakePrompts) SubconsciousExecute(substrate.Task, string) (string, string) {
	return "sys", "execute"
}
func (fakePrompts) SuperegoAudit(map[substrate.Identifier]string) (string, string) {
	return "sys", "audit"
}
func (fakePrompts) SuperegoEvaluate([]roles.Proposal) (string, string) { return "sys", "evaluate" }
func (fakePrompts) IdGenerateDrives(map[substrate.Identifier]string) (string, string) {
	return "sys", "drives"
}
func (fakePrompts) Tick(planRaw, conversationRaw string) (string, string) { return "sys", "tick" }
func (fakePrompts) Reconsider(cycleSummary string) (string, string)       { return "sys", cycleSummary }

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(ctx context.Context, lines string) (string, error) {
	return "summarized", nil
}

const planOneTask = "# Plan\n\n## Tasks\n\n- [ ] ship the feature\n"
const planNoTasks = "# Plan\n\n## Tasks\n\n- [x] already done\n"

type harness struct {
	orch   *Orchestrator
	fs     *substrate.MemFS
	reader *substrate.Reader
	writer *substrate.Writer
	app    *substrate.Appender
	clk    *clock.Fake
	sink   *MemorySink
	egoL   *launcher.Fake
	subL   *launcher.Fake
	supL   *launcher.Fake
	idL    *launcher.Fake
	tickL  *launcher.Fake
}

func newHarness(t *testing.T, planBody string) *harness {
	t.Helper()
	root := "/substrate"
	fs := substrate.NewMemFS(nil)
	layout := substrate.DefaultLayout()
	fs.Seed(filepath.Join(root, "PLAN.md"), planBody)
	fs.Seed(filepath.Join(root, "PROGRESS.md"), "# Progress Log\n")
	fs.Seed(filepath.Join(root, "CONVERSATION.md"), "# Conversation\n")
	fs.Seed(filepath.Join(root, "SKILLS.md"), "# Skills\n")
	fs.Seed(filepath.Join(root, "MEMORY.md"), "# Memory\n")
	fs.Seed(filepath.Join(root, "RESTART_CONTEXT.md"), "# Restart Context\n\nNo hibernation in progress.\n")
	fs.Seed(filepath.Join(root, "SUPEREGO.md"), "# Superego\n")

	lock := substrate.NewFileLock()
	fakeClk := clock.NewFake(time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC))
	reader := substrate.NewReader(fs, root, layout, true)
	writer := substrate.NewOverwriteWriter(fs, reader, lock, layout)
	appender := substrate.NewAppendWriter(fs, reader, lock, layout, root, fakeClk, substrate.DefaultRotationThreshold)

	perms := roles.DefaultPermissionMatrix()
	egoL := launcher.NewFake()
	subL := launcher.NewFake()
	supL := launcher.NewFake()
	idL := launcher.NewFake()
	tickL := launcher.NewFake()

	convSubstrate := ConversationSubstrate{Reader: reader, Appender: appender}
	convMgr := conversation.NewManager(
		convSubstrate, convSubstrate, convSubstrate,
		conversation.DefaultPermissions(),
		conversation.NewCompactor(fakeSummarizer{}),
		nil,
		fakeClk.Now,
	)

	rlMgr := ratelimit.NewStateManager(reader, writer, appender, fakeClk)
	sink := NewMemorySink()

	o := New(&Orchestrator{
		Ego:          &roles.Ego{Launcher: egoL, Prompts: fakePrompts{}, Reader: reader, Appender: appender, Perms: perms},
		Subconscious: &roles.Subconscious{Launcher: subL, Prompts: fakePrompts{}, Writer: writer, Appender: appender, Perms: perms},
		Superego:     &roles.Superego{Launcher: supL, Prompts: fakePrompts{}, Appender: appender, Perms: perms},
		Id:           &roles.Id{Launcher: idL, Prompts: fakePrompts{}, Reader: reader, Appender: appender},
		Reader:       reader,
		Conversation: convMgr,
		RateLimit:    rlMgr,
		TickLauncher: tickL,
		TickPrompts:  fakePrompts{},
		Clock:        fakeClk,
		Sink:         sink,
		Cfg:          DefaultConfig(),
	})

	return &harness{orch: o, fs: fs, reader: reader, writer: writer, app: appender, clk: fakeClk, sink: sink, egoL: egoL, subL: subL, supL: supL, idL: idL, tickL: tickL}
}

func execSuccessJSON(summary, progressEntry string) string {
	return `{"result":"success","summary":"` + summary + `","progressEntry":"` + progressEntry + `"}`
}

func TestRunOneCycle_DispatchAndMarkComplete(t *testing.T) {
	h := newHarness(t, planOneTask)
	h.subL.EnqueueSuccess(execSuccessJSON("shipped it", "implemented the feature end to end"))

	result := h.orch.RunOneCycle(context.Background())

	assert.Equal(t, ActionDispatch, result.Action)
	assert.True(t, result.Success)
	assert.Equal(t, "task-1", result.TaskID)

	planRead, err := h.reader.Read(substrate.PLAN)
	require.NoError(t, err)
	assert.Contains(t, planRead.Raw, "- [x] ship the feature")

	progressRead, err := h.reader.Read(substrate.PROGRESS)
	require.NoError(t, err)
	assert.Contains(t, progressRead.Raw, "implemented the feature end to end")

	convRead, err := h.reader.Read(substrate.CONVERSATION)
	require.NoError(t, err)
	assert.Contains(t, convRead.Raw, "shipped it")

	snap := h.orch.MetricsSnapshot()
	assert.Equal(t, int64(1), snap.Successful)
	assert.Equal(t, int64(0), snap.ConsecutiveIdle)
}

func TestRunOneCycle_NoPendingTasksIsIdle(t *testing.T) {
	h := newHarness(t, planNoTasks)

	result := h.orch.RunOneCycle(context.Background())

	assert.Equal(t, ActionIdle, result.Action)
	assert.True(t, result.Success)
	assert.Equal(t, 0, h.subL.Pending()) // Subconscious never launched for an idle cycle

	snap := h.orch.MetricsSnapshot()
	assert.Equal(t, int64(1), snap.Idle)
	assert.Equal(t, int64(1), snap.ConsecutiveIdle)
}

func TestRunLoop_IdleWithNoHandlerStops(t *testing.T) {
	h := newHarness(t, planNoTasks)
	h.orch.Cfg.MaxConsecutiveIdleCycles = 1
	h.orch.Cfg.CycleDelayMs = 0
	require.NoError(t, h.orch.Start())

	h.orch.RunLoop(context.Background())

	assert.Equal(t, StateStopped, h.orch.State())
	events := h.sink.OfType(EventIdleHandler)
	require.Len(t, events, 1)
	assert.Equal(t, string(IdleNoGoals), events[0].Data["outcome"])
}

func TestRunLoop_IdleHandlerPlanCreatedKeepsRunning(t *testing.T) {
	h := newHarness(t, planNoTasks)
	h.orch.Cfg.MaxConsecutiveIdleCycles = 1
	h.orch.Cfg.CycleDelayMs = 0
	calls := 0
	h.orch.IdleHandler = IdleHandlerFunc(func(ctx context.Context) (IdleOutcome, error) {
		calls++
		if calls == 1 {
			return IdlePlanCreated, nil
		}
		return IdleNoGoals, nil
	})
	require.NoError(t, h.orch.Start())

	h.orch.RunLoop(context.Background())

	assert.Equal(t, StateStopped, h.orch.State())
	assert.GreaterOrEqual(t, calls, 2)
}

func TestRateLimitHibernation_SleepsThenWakesOnReset(t *testing.T) {
	h := newHarness(t, planOneTask)
	h.subL.Enqueue(launcher.Canned{
		Err: &launcher.LaunchError{Kind: launcher.ErrUnknown, Message: "rate limit exceeded, resets 5pm (UTC)"},
	})

	done := make(chan struct{})
	go func() {
		h.orch.RunOneCycle(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return h.orch.State() == StateSleeping
	}, time.Second, time.Millisecond, "orchestrator should enter SLEEPING")

	restartRead, err := h.reader.Read(substrate.RESTART_CONTEXT)
	require.NoError(t, err)
	assert.Contains(t, restartRead.Raw, "Expected Reset")

	// Jump the fake clock past the reset instant and interrupt the sleep;
	// sleepUntil re-validates now() >= resetTime before returning.
	h.clk.Set(time.Date(2026, 2, 15, 17, 0, 1, 0, time.UTC))
	h.orch.Timer.Wake()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("orchestrator did not wake from hibernation")
	}

	assert.Equal(t, StateRunning, h.orch.State())
	restartAfter, err := h.reader.Read(substrate.RESTART_CONTEXT)
	require.NoError(t, err)
	assert.Contains(t, restartAfter.Raw, "No hibernation in progress")
}

func TestConversation_CompactsAfterOneHour(t *testing.T) {
	h := newHarness(t, planOneTask)
	ctx := context.Background()

	// Seed a line that predates baseline initialization, so the first
	// due compaction has something to classify as "old".
	convPath := filepath.Join("/substrate", "CONVERSATION.md")
	h.fs.Seed(convPath, "# Conversation\n\n[2026-02-15T08:00:00.000Z] [EGO] two hours earlier entry\n")
	h.reader.Invalidate(convPath)

	require.NoError(t, h.orch.Conversation.Append(ctx, string(roles.RoleEgo), "baseline entry")) // initializes the compaction baseline at 10:00

	h.clk.Advance(61 * time.Minute)
	require.NoError(t, h.orch.Conversation.Append(ctx, string(roles.RoleEgo), "second entry after the hour boundary"))

	convRead, err := h.reader.Read(substrate.CONVERSATION)
	require.NoError(t, err)
	assert.Contains(t, convRead.Raw, "## Summary of Earlier Conversation")
	assert.Contains(t, convRead.Raw, "baseline entry")
	assert.Contains(t, convRead.Raw, "second entry after the hour boundary")
}

func TestRunLoop_SuperegoAuditFiresOnConfiguredInterval(t *testing.T) {
	h := newHarness(t, planNoTasks)
	h.orch.Cfg.SuperegoAuditInterval = 3
	h.orch.Cfg.MaxConsecutiveIdleCycles = 3
	h.orch.Cfg.CycleDelayMs = 0
	h.supL.EnqueueSuccess(`{"summary":"clean","findings":[]}`)
	require.NoError(t, h.orch.Start())

	h.orch.RunLoop(context.Background())

	assert.Equal(t, StateStopped, h.orch.State())
	require.Eventually(t, func() bool {
		return len(h.supL.Calls()) == 1
	}, time.Second, time.Millisecond, "audit should fire exactly once")
	assert.Len(t, h.sink.OfType(EventAuditComplete), 1)
}

func TestHandleUserMessage_HappyPathAppendsReply(t *testing.T) {
	h := newHarness(t, planOneTask)
	h.egoL.EnqueueSuccess("glad to help")

	h.orch.HandleUserMessage(context.Background(), "what's the plan?")

	responses := h.sink.OfType(EventConversationResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, "glad to help", responses[0].Data["response"])

	convRead, err := h.reader.Read(substrate.CONVERSATION)
	require.NoError(t, err)
	assert.Contains(t, convRead.Raw, "glad to help")
}

// TestHandleUserMessage_QueuesDuringActiveSession drives the
// conversationSessionActive branch directly (rather than racing a second
// goroutine against an instantaneous fake launch) for a deterministic
// assertion on the queueing behavior itself.
func TestHandleUserMessage_QueuesDuringActiveSession(t *testing.T) {
	h := newHarness(t, planOneTask)

	h.orch.mu.Lock()
	h.orch.conversationSessionActive = true
	h.orch.mu.Unlock()

	h.orch.HandleUserMessage(context.Background(), "queued message")

	h.orch.mu.Lock()
	queue := append([]string(nil), h.orch.conversationQueue...)
	h.orch.mu.Unlock()
	assert.Equal(t, []string{"queued message"}, queue)
}

// TestHandleUserMessage_InjectsDuringActiveTick drives the tickInProgress
// branch directly for the same reason.
func TestHandleUserMessage_InjectsDuringActiveTick(t *testing.T) {
	h := newHarness(t, planOneTask)

	h.orch.mu.Lock()
	h.orch.tickInProgress = true
	h.orch.activeInjector = h.tickL
	h.orch.mu.Unlock()

	h.orch.HandleUserMessage(context.Background(), "interrupt please")

	assert.Contains(t, h.tickL.Injected(), "interrupt please")
}

func TestRunOneTick_LaunchesTickSession(t *testing.T) {
	h := newHarness(t, planOneTask)
	h.tickL.EnqueueSuccess("worked through the plan")

	h.orch.RunOneTick(context.Background())

	assert.Len(t, h.sink.OfType(EventTickStarted), 1)
	completes := h.sink.OfType(EventTickComplete)
	require.Len(t, completes, 1)
	assert.Equal(t, true, completes[0].Data["success"])
}

func TestRunOneTick_DeferredWhileConversationActive(t *testing.T) {
	h := newHarness(t, planOneTask)

	h.orch.mu.Lock()
	h.orch.conversationSessionActive = true
	h.orch.mu.Unlock()

	h.orch.RunOneTick(context.Background())

	h.orch.mu.Lock()
	deferred := h.orch.tickRequested
	h.orch.mu.Unlock()
	assert.True(t, deferred)
	assert.Empty(t, h.sink.OfType(EventTickStarted))
}

func TestStop_EmitsMessageInjectedWithoutActiveSession(t *testing.T) {
	h := newHarness(t, planOneTask)
	require.NoError(t, h.orch.Start())

	require.NoError(t, h.orch.Stop())

	injected := h.sink.OfType(EventMessageInjected)
	require.Len(t, injected, 1)
	assert.Contains(t, injected[0].Data["message"], "Persist your state")
	assert.Equal(t, StateStopped, h.orch.State())
}

func TestTransitions_RejectIllegalRequests(t *testing.T) {
	h := newHarness(t, planOneTask)

	// STOPPED accepts neither pause nor resume.
	assert.Error(t, h.orch.Pause())
	assert.Error(t, h.orch.Resume())

	require.NoError(t, h.orch.InitializeSleeping())
	assert.Equal(t, StateSleeping, h.orch.State())
	assert.Error(t, h.orch.Pause())

	require.NoError(t, h.orch.Wake())
	assert.Equal(t, StateRunning, h.orch.State())

	var invalid *InvalidTransitionError
	err := h.orch.Resume()
	require.Error(t, err)
	assert.ErrorAs(t, err, &invalid)
}
