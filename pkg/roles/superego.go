package roles

import (
	"context"

	"github.com/sipeed/cortexd/pkg/launcher"
	"github.com/sipeed/cortexd/pkg/logger"
	"github.com/sipeed/cortexd/pkg/substrate"
)

// Superego is the governance role shim, per spec §4.6.
type Superego struct {
	Launcher launcher.Launcher
	Prompts  PromptBuilder
	Appender *substrate.Appender
	Perms    *PermissionMatrix
	Model    string
}

// Audit runs a governance pass over snapshot and parses the structured
// reply. Parse failures return a zero-value AuditResult with the parser
// error as Summary, never an error return.
func (s *Superego) Audit(ctx context.Context, snapshot map[substrate.Identifier]string, onLogEntry func(launcher.ProcessLogEntry)) AuditResult {
	system, user := s.Prompts.SuperegoAudit(snapshot)
	result, err := s.Launcher.Launch(ctx, launcher.Request{SystemPrompt: system, InitialUser: user}, launcher.Options{
		Model:      s.Model,
		OnLogEntry: onLogEntry,
	})
	if err != nil {
		return AuditResult{Summary: err.Error()}
	}

	parsed, perr := s.parseAudit(result.RawOutput)
	if perr != nil {
		logger.WarnCF("roles.superego", "audit parse failure", map[string]any{"error": perr.Error()})
		return AuditResult{Summary: perr.Error()}
	}
	return parsed
}

func (s *Superego) parseAudit(raw string) (AuditResult, error) {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return AuditResult{}, err
	}

	out := AuditResult{Summary: obj.Get("summary").String()}
	for _, f := range obj.Get("findings").Array() {
		out.Findings = append(out.Findings, f.String())
	}
	for _, e := range obj.Get("proposalEvaluations").Array() {
		kind := ProposalKind(e.Get("proposal.type").String())
		out.ProposalEvaluations = append(out.ProposalEvaluations, ProposalEvaluation{
			Proposal: Proposal{Kind: kind, Content: e.Get("proposal.content").String()},
			Approved: e.Get("approved").Bool(),
			Reason:   e.Get("reason").String(),
		})
	}
	return out, nil
}

// EvaluateProposals asks the model to accept/reject each proposal
// individually, returning one ProposalEvaluation per input proposal in the
// same order. A parse failure rejects every proposal conservatively.
func (s *Superego) EvaluateProposals(ctx context.Context, proposals []Proposal) []ProposalEvaluation {
	if len(proposals) == 0 {
		return nil
	}

	system, user := s.Prompts.SuperegoEvaluate(proposals)
	result, err := s.Launcher.Launch(ctx, launcher.Request{SystemPrompt: system, InitialUser: user}, launcher.Options{Model: s.Model})
	if err != nil {
		return rejectAll(proposals, err.Error())
	}

	obj, perr := ExtractJSON(result.RawOutput)
	if perr != nil {
		logger.WarnCF("roles.superego", "evaluateProposals parse failure", map[string]any{"error": perr.Error()})
		return rejectAll(proposals, perr.Error())
	}

	decisions := obj.Get("evaluations").Array()
	out := make([]ProposalEvaluation, len(proposals))
	for i, p := range proposals {
		if i >= len(decisions) {
			out[i] = ProposalEvaluation{Proposal: p, Approved: false, Reason: "no evaluation returned"}
			continue
		}
		out[i] = ProposalEvaluation{
			Proposal: p,
			Approved: decisions[i].Get("approved").Bool(),
			Reason:   decisions[i].Get("reason").String(),
		}
	}
	return out
}

func rejectAll(proposals []Proposal, reason string) []ProposalEvaluation {
	out := make([]ProposalEvaluation, len(proposals))
	for i, p := range proposals {
		out[i] = ProposalEvaluation{Proposal: p, Approved: false, Reason: reason}
	}
	return out
}

// LogFindings appends a SUPEREGO-tagged entry to PROGRESS summarizing the
// audit, per the permission matrix (SUPEREGO may append PROGRESS but not
// CONVERSATION).
func (s *Superego) LogFindings(entry string) error {
	return s.Appender.Append(substrate.PROGRESS, string(RoleSuperego), entry)
}
