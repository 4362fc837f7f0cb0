// Package prompts is the one concrete implementation of roles.PromptBuilder
// shipped with cortexd. Prompt construction is explicitly out of scope per
// spec §1 ("only its interface surface is specified"); this package exists
// so `cortexd run` has something to wire by default, in the identity +
// section-join style of the teacher's pkg/agent.ContextBuilder
// (BuildSystemPrompt joins named sections with a "---" separator).
package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sipeed/cortexd/pkg/roles"
	"github.com/sipeed/cortexd/pkg/substrate"
)

// Builder is the default roles.PromptBuilder. Identity is a short
// free-text description of the agent substituted into every system prompt.
type Builder struct {
	Identity string
}

// New returns a Builder with a default identity line.
func New(identity string) *Builder {
	if identity == "" {
		identity = "You are cortexd, an autonomous agent that drives its own PLAN forward one task at a time."
	}
	return &Builder{Identity: identity}
}

func (b *Builder) section(title, body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	return fmt.Sprintf("# %s\n\n%s", title, body)
}

func (b *Builder) join(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n---\n\n")
}

// EgoDecide composes the prompt for the dispatch-or-idle decision.
func (b *Builder) EgoDecide(planRaw string) (system, user string) {
	system = b.join(
		b.section("Identity", b.Identity),
		b.section("Rules", "Reply with a single JSON object: "+
			`{"action":"dispatch|update_plan|converse|idle","taskId":"...","summary":"..."}`+
			". Use \"dispatch\" when PLAN has a pending task worth starting now."),
	)
	user = b.section("PLAN", planRaw)
	return system, user
}

// EgoRespond composes the prompt for a free-text conversational reply.
func (b *Builder) EgoRespond(message, conversationRaw string) (system, user string) {
	system = b.join(
		b.section("Identity", b.Identity),
		b.section("Rules", "Reply in plain text, conversationally. Do not emit JSON here."),
	)
	user = b.join(
		b.section("Recent conversation", conversationRaw),
		b.section("Message", message),
	)
	return system, user
}

// SubconsciousExecute composes the prompt for executing one dispatched task.
func (b *Builder) SubconsciousExecute(task substrate.Task, planRaw string) (system, user string) {
	system = b.join(
		b.section("Identity", b.Identity),
		b.section("Rules", "Reply with a single JSON object: "+
			`{"result":"success|partial|failure","summary":"...","progressEntry":"...",`+
			`"skillUpdates":null,"memoryUpdates":null,"proposals":[]}`),
	)
	user = b.join(
		b.section("Task", fmt.Sprintf("%s: %s", task.ID, task.Title)),
		b.section("PLAN", planRaw),
	)
	return system, user
}

// SuperegoAudit composes the prompt for a governance audit pass over a
// snapshot of substrate content.
func (b *Builder) SuperegoAudit(snapshot map[substrate.Identifier]string) (system, user string) {
	system = b.join(
		b.section("Identity", b.Identity),
		b.section("Rules", "You are the governance reviewer. Reply with a single JSON object: "+
			`{"findings":["..."],"proposalEvaluations":[],"summary":"..."}`),
	)
	var buf strings.Builder
	for id, content := range snapshot {
		fmt.Fprintf(&buf, "## %s\n\n%s\n\n", id, content)
	}
	user = b.section("Substrate snapshot", buf.String())
	return system, user
}

// SuperegoEvaluate composes the prompt for approving/rejecting a batch of
// subconscious-originated proposals.
func (b *Builder) SuperegoEvaluate(proposals []roles.Proposal) (system, user string) {
	system = b.join(
		b.section("Identity", b.Identity),
		b.section("Rules", "Reply with a single JSON object whose evaluations array "+
			"has one entry per proposal, in the same order: "+
			`{"evaluations":[{"approved":true,"reason":"..."}]}`),
	)
	encoded, _ := json.Marshal(proposals)
	user = b.section("Proposals", string(encoded))
	return system, user
}

// IdGenerateDrives composes the prompt for generating candidate goals when
// PLAN is empty.
func (b *Builder) IdGenerateDrives(snapshot map[substrate.Identifier]string) (system, user string) {
	system = b.join(
		b.section("Identity", b.Identity),
		b.section("Rules", "PLAN has no pending tasks. Reply with a single JSON object: "+
			`{"goalCandidates":["..."]}`),
	)
	var buf strings.Builder
	for id, content := range snapshot {
		fmt.Fprintf(&buf, "## %s\n\n%s\n\n", id, content)
	}
	user = b.section("Substrate snapshot", buf.String())
	return system, user
}

// Tick composes the prompt for a long-lived tick-mode session, satisfying
// orchestrator.TickPrompts.
func (b *Builder) Tick(planRaw, conversationRaw string) (system, user string) {
	system = b.join(
		b.section("Identity", b.Identity),
		b.section("Rules", "This is a long-lived session. Work through PLAN's pending "+
			"tasks one at a time, narrating progress, until instructed otherwise."),
	)
	user = b.join(
		b.section("PLAN", planRaw),
		b.section("Recent conversation", conversationRaw),
	)
	return system, user
}

// Reconsider composes the bounded self-evaluation prompt run after a
// dispatched cycle, satisfying orchestrator.ReconsiderPrompts.
func (b *Builder) Reconsider(cycleSummary string) (system, user string) {
	system = b.join(
		b.section("Identity", b.Identity),
		b.section("Rules", "Reply with a single JSON object: "+
			`{"outcomeMatchesIntent":true,"qualityScore":0.0,"needsReassessment":false}`+
			". Score quality from 0 to 1."),
	)
	user = b.section("Cycle summary", cycleSummary)
	return system, user
}

var _ roles.PromptBuilder = (*Builder)(nil)
