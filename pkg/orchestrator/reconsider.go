package orchestrator

import (
	"context"

	"github.com/sipeed/cortexd/pkg/launcher"
	"github.com/sipeed/cortexd/pkg/roles"
)

// ReconsiderPrompts composes the bounded self-evaluation prompt run after a
// successful or partial cycle, per spec §4.9 step 2's "launch
// reconsideration" line. Prompt construction is out of scope (spec §1);
// only this narrow interface is specified.
type ReconsiderPrompts interface {
	Reconsider(cycleSummary string) (system, user string)
}

// Reconsideration is the optional bounded self-evaluation step. A nil
// *Reconsideration (or one with a nil Launcher) is treated as "not
// configured": Evaluate returns the conservative defaults with no error,
// matching the swallow-errors-with-conservative-defaults policy in spec
// §4.9 step 2.
type Reconsideration struct {
	Launcher launcher.Launcher
	Prompts  ReconsiderPrompts
	Model    string
}

// Evaluate runs the reconsideration session and parses its reply. On any
// failure (launch error or parse error) it returns the conservative
// defaults (outcomeMatchesIntent=false, qualityScore=0,
// needsReassessment=true) alongside the error, so the caller can log it
// without letting it escape the cycle.
func (r *Reconsideration) Evaluate(ctx context.Context, cycleSummary string) (outcomeMatchesIntent bool, qualityScore float64, needsReassessment bool, err error) {
	needsReassessment = true
	if r == nil || r.Launcher == nil || r.Prompts == nil {
		return false, 0, true, nil
	}

	system, user := r.Prompts.Reconsider(cycleSummary)
	result, launchErr := r.Launcher.Launch(ctx, launcher.Request{SystemPrompt: system, InitialUser: user}, launcher.Options{Model: r.Model})
	if launchErr != nil {
		return false, 0, true, launchErr
	}

	obj, parseErr := roles.ExtractJSON(result.RawOutput)
	if parseErr != nil {
		return false, 0, true, parseErr
	}
	return obj.Get("outcomeMatchesIntent").Bool(), obj.Get("qualityScore").Float(), obj.Get("needsReassessment").Bool(), nil
}
