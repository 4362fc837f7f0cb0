package orchestrator

import (
	"context"
	"time"

	"github.com/sipeed/cortexd/pkg/launcher"
	"github.com/sipeed/cortexd/pkg/roles"
	"github.com/sipeed/cortexd/pkg/substrate"
)

// TickPrompts composes the long-lived tick-session prompt from current
// substrate content. Prompt construction is out of scope (spec §1); only
// this narrow interface is specified.
type TickPrompts interface {
	Tick(planRaw, conversationRaw string) (system, user string)
}

// HandleUserMessage routes an inbound user message per spec §4.9's
// conversation-gating rules. tickInProgress and conversationSessionActive
// are mutually exclusive by construction (only one of the two branches
// below ever starts a new session).
func (o *Orchestrator) HandleUserMessage(ctx context.Context, message string) {
	o.mu.Lock()
	switch {
	case o.tickInProgress:
		injector := o.activeInjector
		o.mu.Unlock()
		if injector != nil {
			_ = injector.Inject(message)
		}
		o.emit(EventConversationResponse, map[string]any{"response": "injected"})
		return

	case o.conversationSessionActive:
		o.conversationQueue = append(o.conversationQueue, message)
		o.mu.Unlock()
		return

	default:
		o.conversationSessionActive = true
		o.mu.Unlock()
	}

	o.runConversationSession(ctx, message)
}

func (o *Orchestrator) runConversationSession(ctx context.Context, message string) {
	defer o.closeConversationSession(ctx)

	o.emit(EventConversationMessage, map[string]any{"message": message})

	sessionCtx, cancel := context.WithTimeout(ctx, o.Cfg.MaxConversationDuration)
	defer cancel()

	convRead, err := o.Reader.Read(substrate.CONVERSATION)
	var conversationRaw string
	if err == nil {
		conversationRaw = convRead.Raw
	}

	reply, err := o.Ego.RespondToMessage(sessionCtx, message, conversationRaw, nil, o.Cfg.ConversationIdleTimeoutMs)
	if err != nil {
		if sessionCtx.Err() == context.DeadlineExceeded {
			o.emit(EventConversationResponse, map[string]any{"error": "exceeded max duration"})
		} else {
			o.emit(EventConversationResponse, map[string]any{"error": err.Error()})
		}
		return
	}

	if appendErr := o.Conversation.Append(ctx, string(roles.RoleEgo), reply); appendErr != nil {
		o.emit(EventConversationResponse, map[string]any{"error": appendErr.Error()})
		return
	}
	o.emit(EventConversationResponse, map[string]any{"response": reply})
}

func (o *Orchestrator) closeConversationSession(ctx context.Context) {
	o.mu.Lock()
	o.conversationSessionActive = false
	var queued string
	hasQueued := false
	if len(o.conversationQueue) > 0 {
		queued = o.conversationQueue[0]
		o.conversationQueue = o.conversationQueue[1:]
		hasQueued = true
	}
	// A deferred tick waits until the queued messages are handled too.
	deferredTick := false
	if !hasQueued {
		deferredTick = o.tickRequested
		o.tickRequested = false
	}
	o.mu.Unlock()

	if hasQueued {
		o.HandleUserMessage(ctx, queued)
		return
	}
	if deferredTick {
		go o.RunOneTick(ctx)
	}
}

// RunOneTick runs one long-lived tick session, per spec §4.9's "tick mode"
// driver. If a conversation session is currently active, the tick is
// deferred and runs immediately once the conversation closes.
func (o *Orchestrator) RunOneTick(ctx context.Context) {
	o.mu.Lock()
	if o.conversationSessionActive {
		o.tickRequested = true
		o.mu.Unlock()
		return
	}
	o.tickInProgress = true
	var injector launcher.Injector
	if inj, ok := o.TickLauncher.(launcher.Injector); ok {
		injector = inj
	}
	o.activeInjector = injector
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.tickInProgress = false
		o.activeInjector = nil
		o.mu.Unlock()
	}()

	o.emit(EventTickStarted, nil)

	planRaw, convRaw := "", ""
	if r, err := o.Reader.Read(substrate.PLAN); err == nil {
		planRaw = r.Raw
	}
	if r, err := o.Reader.Read(substrate.CONVERSATION); err == nil {
		convRaw = r.Raw
	}

	system, user := o.TickPrompts.Tick(planRaw, convRaw)
	onLog := func(e launcher.ProcessLogEntry) {
		o.emit(EventProcessOutput, map[string]any{"source": "tick", "type": e.Type, "content": e.Content})
	}

	result, err := o.TickLauncher.Launch(ctx, launcher.Request{SystemPrompt: system, InitialUser: user}, launcher.Options{
		Model:      o.TickModel,
		OnLogEntry: onLog,
	})
	if err != nil {
		o.emit(EventTickComplete, map[string]any{"error": err.Error()})
		return
	}
	o.emit(EventTickComplete, map[string]any{"success": result.Success})
}

// RunTickLoop is the tick-mode analogue of RunLoop: it repeatedly runs one
// tick session, separated by the configured cycle delay, while RUNNING.
func (o *Orchestrator) RunTickLoop(ctx context.Context) {
	for o.State() == StateRunning {
		select {
		case <-ctx.Done():
			return
		default:
		}

		o.maybeFireAudit(ctx)
		o.RunOneTick(ctx)

		if o.State() != StateRunning {
			return
		}
		o.Timer.Delay(time.Duration(o.Cfg.CycleDelayMs) * time.Millisecond)
	}
}
