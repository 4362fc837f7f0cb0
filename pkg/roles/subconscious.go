package roles

import (
	"context"

	"github.com/sipeed/cortexd/pkg/launcher"
	"github.com/sipeed/cortexd/pkg/logger"
	"github.com/sipeed/cortexd/pkg/substrate"
)

// Subconscious is the task-execution role shim, per spec §4.6.
type Subconscious struct {
	Launcher launcher.Launcher
	Prompts  PromptBuilder
	Writer   *substrate.Writer
	Appender *substrate.Appender
	Perms    *PermissionMatrix
	Model    string
}

// Execute runs task through a launched session and parses the structured
// reply. Parse failures return ExecFailure with the parser error in
// Summary, never an error return.
func (s *Subconscious) Execute(ctx context.Context, task substrate.Task, planRaw string, onLogEntry func(launcher.ProcessLogEntry)) ExecuteResult {
	system, user := s.Prompts.SubconsciousExecute(task, planRaw)
	result, err := s.Launcher.Launch(ctx, launcher.Request{SystemPrompt: system, InitialUser: user}, launcher.Options{
		Model:      s.Model,
		OnLogEntry: onLogEntry,
	})
	if err != nil {
		return ExecuteResult{Outcome: ExecFailure, Summary: err.Error()}
	}

	parsed, perr := s.parseExecute(result.RawOutput)
	if perr != nil {
		logger.WarnCF("roles.subconscious", "execute parse failure", map[string]any{"error": perr.Error()})
		return ExecuteResult{Outcome: ExecFailure, Summary: perr.Error()}
	}
	return parsed
}

func (s *Subconscious) parseExecute(raw string) (ExecuteResult, error) {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return ExecuteResult{}, err
	}

	outcome := ExecOutcome(obj.Get("result").String())
	switch outcome {
	case ExecSuccess, ExecPartial, ExecFailure:
	default:
		outcome = ExecFailure
	}

	out := ExecuteResult{
		Outcome:       outcome,
		Summary:       obj.Get("summary").String(),
		ProgressEntry: obj.Get("progressEntry").String(),
	}
	if v := obj.Get("skillUpdates"); v.Exists() && v.Type.String() != "Null" {
		text := v.String()
		out.SkillUpdates = &text
	}
	if v := obj.Get("memoryUpdates"); v.Exists() && v.Type.String() != "Null" {
		text := v.String()
		out.MemoryUpdates = &text
	}
	for _, p := range obj.Get("proposals").Array() {
		kind := ProposalKind(p.Get("type").String())
		if kind != ProposalMemory && kind != ProposalSkill {
			continue
		}
		out.Proposals = append(out.Proposals, Proposal{Kind: kind, Content: p.Get("content").String()})
	}
	return out, nil
}

// LogProgress appends entry to PROGRESS as SUBCONSCIOUS.
func (s *Subconscious) LogProgress(entry string) error {
	return s.Appender.Append(substrate.PROGRESS, string(RoleSubconscious), entry)
}

// LogConversation appends entry to CONVERSATION as SUBCONSCIOUS, enforcing
// the permission matrix.
func (s *Subconscious) LogConversation(entry string) error {
	if !s.Perms.Allowed(RoleSubconscious, substrate.CONVERSATION, OpAppend) {
		return &PermissionDeniedError{Role: RoleSubconscious, ID: substrate.CONVERSATION, Op: OpAppend}
	}
	return s.Appender.Append(substrate.CONVERSATION, string(RoleSubconscious), entry)
}

// MarkTaskComplete flips task taskID to done in planRaw and writes PLAN.
// Idempotent per spec §8 (MarkComplete on an already-done task is a no-op
// content change).
func (s *Subconscious) MarkTaskComplete(planRaw, taskID string) error {
	updated, err := substrate.MarkComplete(planRaw, taskID)
	if err != nil {
		return err
	}
	if !s.Perms.Allowed(RoleSubconscious, substrate.PLAN, OpWrite) {
		return &PermissionDeniedError{Role: RoleSubconscious, ID: substrate.PLAN, Op: OpWrite}
	}
	return s.Writer.Write(substrate.PLAN, updated)
}

// UpdateSkills overwrites SKILLS with content, if non-nil.
func (s *Subconscious) UpdateSkills(content string) error {
	if !s.Perms.Allowed(RoleSubconscious, substrate.SKILLS, OpWrite) {
		return &PermissionDeniedError{Role: RoleSubconscious, ID: substrate.SKILLS, Op: OpWrite}
	}
	return s.Writer.Write(substrate.SKILLS, content)
}

// UpdateMemory overwrites MEMORY with content, used for approved memory
// proposals.
func (s *Subconscious) UpdateMemory(content string) error {
	if !s.Perms.Allowed(RoleSubconscious, substrate.MEMORY, OpWrite) {
		return &PermissionDeniedError{Role: RoleSubconscious, ID: substrate.MEMORY, Op: OpWrite}
	}
	return s.Writer.Write(substrate.MEMORY, content)
}
