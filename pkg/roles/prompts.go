package roles

import "github.com/sipeed/cortexd/pkg/substrate"

// PromptBuilder composes role-specific prompts from substrate content.
// Prompt construction is explicitly out of scope (spec §1: "only its
// interface surface is specified") — concrete implementations live outside
// this package; shims here only depend on this interface.
type PromptBuilder interface {
	EgoDecide(planRaw string) (system, user string)
	EgoRespond(message, conversationRaw string) (system, user string)
	SubconsciousExecute(task substrate.Task, planRaw string) (system, user string)
	SuperegoAudit(snapshot map[substrate.Identifier]string) (system, user string)
	SuperegoEvaluate(proposals []Proposal) (system, user string)
	IdGenerateDrives(snapshot map[substrate.Identifier]string) (system, user string)
}
