package roles

import (
	"context"

	"github.com/sipeed/cortexd/pkg/launcher"
	"github.com/sipeed/cortexd/pkg/logger"
	"github.com/sipeed/cortexd/pkg/substrate"
)

// Ego is the dispatch-and-converse role shim, per spec §4.6.
type Ego struct {
	Launcher launcher.Launcher
	Prompts  PromptBuilder
	Reader   *substrate.Reader
	Appender *substrate.Appender
	Perms    *PermissionMatrix
	Model    string
}

// Decide asks the model to choose the next orchestrator action. Parse
// failures return ActionIdle with the parser error in Summary, never an
// error return — per spec §4.6 "never a panic".
func (e *Ego) Decide(ctx context.Context, planRaw string) DecideResult {
	system, user := e.Prompts.EgoDecide(planRaw)
	result, err := e.Launcher.Launch(ctx, launcher.Request{SystemPrompt: system, InitialUser: user}, launcher.Options{Model: e.Model})
	if err != nil {
		return DecideResult{Action: ActionIdle, Summary: err.Error()}
	}

	parsed, perr := e.parseDecide(result.RawOutput)
	if perr != nil {
		logger.WarnCF("roles.ego", "decide parse failure", map[string]any{"error": perr.Error()})
		return DecideResult{Action: ActionIdle, Summary: perr.Error()}
	}
	return parsed
}

func (e *Ego) parseDecide(raw string) (DecideResult, error) {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return DecideResult{}, err
	}
	action := DecideAction(obj.Get("action").String())
	switch action {
	case ActionDispatch, ActionUpdatePlan, ActionConverse, ActionIdle:
	default:
		action = ActionIdle
	}
	return DecideResult{
		Action:  action,
		TaskID:  obj.Get("taskId").String(),
		Summary: obj.Get("summary").String(),
	}, nil
}

// RespondToMessage answers a conversational turn with free text (not JSON).
func (e *Ego) RespondToMessage(ctx context.Context, message, conversationRaw string, onLogEntry func(launcher.ProcessLogEntry), idleTimeoutMs int64) (string, error) {
	system, user := e.Prompts.EgoRespond(message, conversationRaw)
	result, err := e.Launcher.Launch(ctx, launcher.Request{SystemPrompt: system, InitialUser: user}, launcher.Options{
		Model:         e.Model,
		OnLogEntry:    onLogEntry,
		IdleTimeoutMs: idleTimeoutMs,
	})
	if err != nil {
		return "", err
	}
	return result.RawOutput, nil
}

// DispatchNext reads PLAN directly (no LLM call — deterministic per spec
// §4.6: "reads PLAN and returns the first pending task") and returns the
// first pending task, or nil if none remain.
func (e *Ego) DispatchNext() (*substrate.Task, error) {
	read, err := e.Reader.Read(substrate.PLAN)
	if err != nil {
		return nil, err
	}
	tasks := substrate.ParseTasks(read.Raw)
	return substrate.FirstPending(tasks), nil
}

// AppendConversation appends entry to CONVERSATION as EGO, enforcing the
// permission matrix per spec §4.7 step 1.
func (e *Ego) AppendConversation(entry string) error {
	if !e.Perms.Allowed(RoleEgo, substrate.CONVERSATION, OpAppend) {
		return &PermissionDeniedError{Role: RoleEgo, ID: substrate.CONVERSATION, Op: OpAppend}
	}
	return e.Appender.Append(substrate.CONVERSATION, string(RoleEgo), entry)
}

// AppendProgress appends a system-tagged entry to PROGRESS, e.g. for
// failure summaries surfaced from a dispatch attempt that never reached
// Subconscious.
func (e *Ego) AppendProgress(entry string) error {
	return e.Appender.Append(substrate.PROGRESS, string(RoleEgo), entry)
}
