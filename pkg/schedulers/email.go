package schedulers

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sipeed/cortexd/pkg/substrate"
)

// emailState is the persisted config/email-scheduler-state.json shape.
type emailState struct {
	LastSentAt  time.Time `json:"lastSentAt"`
	DigestsSent int       `json:"digestsSent"`
}

// Email is a no-op unless enabled; when enabled it writes a progress
// digest file on its cron schedule and tracks send history, per spec §4
// "Supporting schedulers".
type Email struct {
	fs         substrate.Filesystem
	reader     *substrate.Reader
	configDir  string
	recipients []string
	enabled    bool
	cronExpr   string
}

// NewEmail builds an Email scheduler. reader is used to pull PROGRESS
// content into the digest body.
func NewEmail(fs substrate.Filesystem, reader *substrate.Reader, configDir string, recipients []string, enabled bool, cronExpr string) *Email {
	return &Email{fs: fs, reader: reader, configDir: configDir, recipients: recipients, enabled: enabled, cronExpr: cronExpr}
}

func (e *Email) Name() string { return "email" }

func (e *Email) NextRun(after time.Time) (time.Time, bool) {
	if !e.enabled {
		return time.Time{}, false
	}
	return gronxNextRun(e.cronExpr, after)
}

// Tick writes a digest file summarizing recent PROGRESS entries and
// updates the send-history state file. A disabled Email always reports
// Ran==false so the caller never emits an email_sent event for it.
func (e *Email) Tick(ctx context.Context, now time.Time) (Result, error) {
	if !e.enabled {
		return Result{Ran: false}, nil
	}

	progress, err := e.reader.Read(substrate.PROGRESS)
	if err != nil {
		return Result{}, fmt.Errorf("schedulers: email reading progress: %w", err)
	}

	digestPath := filepath.Join(e.configDir, fmt.Sprintf("digest-%s.md", now.UTC().Format("20060102T150405Z")))
	body := fmt.Sprintf("# Progress Digest\n\nGenerated %s\n\n%s", now.UTC().Format(time.RFC3339), progress.Raw)
	if err := e.fs.WriteFile(digestPath, []byte(body), 0o644); err != nil {
		return Result{}, fmt.Errorf("schedulers: email writing digest: %w", err)
	}

	state := e.loadState()
	state.LastSentAt = now
	state.DigestsSent++
	if err := e.saveState(state); err != nil {
		return Result{}, fmt.Errorf("schedulers: email persisting state: %w", err)
	}

	return Result{Ran: true, Data: map[string]any{
		"digestPath": digestPath, "recipients": e.recipients, "digestsSent": state.DigestsSent,
	}}, nil
}

func (e *Email) statePath() string {
	return filepath.Join(e.configDir, "email-scheduler-state.json")
}

func (e *Email) loadState() emailState {
	data, err := e.fs.ReadFile(e.statePath())
	if err != nil {
		return emailState{}
	}
	var st emailState
	if err := json.Unmarshal(data, &st); err != nil {
		return emailState{}
	}
	return st
}

func (e *Email) saveState(st emailState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return e.fs.WriteFile(e.statePath(), data, 0o644)
}
