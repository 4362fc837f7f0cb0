package roles

import (
	"context"

	"github.com/sipeed/cortexd/pkg/launcher"
	"github.com/sipeed/cortexd/pkg/logger"
	"github.com/sipeed/cortexd/pkg/substrate"
)

// Id is the drive-generation role shim, per spec §4.6.
type Id struct {
	Launcher launcher.Launcher
	Prompts  PromptBuilder
	Reader   *substrate.Reader
	Appender *substrate.Appender
	Model    string
}

// DetectIdle is deterministic — no LLM call — per spec §4.6: true iff PLAN
// has no pending tasks.
func (i *Id) DetectIdle() (bool, error) {
	read, err := i.Reader.Read(substrate.PLAN)
	if err != nil {
		return false, err
	}
	tasks := substrate.ParseTasks(read.Raw)
	return substrate.FirstPending(tasks) == nil, nil
}

// GenerateDrives asks the model for new goal candidates given the current
// substrate snapshot. Parse failures return an empty DrivesResult.
func (i *Id) GenerateDrives(ctx context.Context, snapshot map[substrate.Identifier]string) DrivesResult {
	system, user := i.Prompts.IdGenerateDrives(snapshot)
	result, err := i.Launcher.Launch(ctx, launcher.Request{SystemPrompt: system, InitialUser: user}, launcher.Options{Model: i.Model})
	if err != nil {
		logger.WarnCF("roles.id", "generateDrives launch failure", map[string]any{"error": err.Error()})
		return DrivesResult{}
	}

	obj, perr := ExtractJSON(result.RawOutput)
	if perr != nil {
		logger.WarnCF("roles.id", "generateDrives parse failure", map[string]any{"error": perr.Error()})
		return DrivesResult{}
	}

	var out DrivesResult
	for _, g := range obj.Get("goalCandidates").Array() {
		out.GoalCandidates = append(out.GoalCandidates, g.String())
	}
	return out
}

// LogDrives appends an ID-tagged entry to PROGRESS recording generated
// drives, per the permission matrix (ID may append PROGRESS but not
// CONVERSATION).
func (i *Id) LogDrives(entry string) error {
	return i.Appender.Append(substrate.PROGRESS, string(RoleId), entry)
}
