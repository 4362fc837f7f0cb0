package ratelimit

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sipeed/cortexd/pkg/clock"
	"github.com/sipeed/cortexd/pkg/substrate"
)

// Context is the {hibernation start, expected reset, optional interrupted
// task id, plan snapshot} tuple from spec §3, serialized into
// RESTART_CONTEXT.
type Context struct {
	HibernationStart  time.Time
	ExpectedReset     time.Time
	InterruptedTaskID string
	PlanSnapshot      string
}

const neutralMarker = "# Restart Context\n\nNo hibernation in progress.\n"

// StateManager persists rate-limit hibernation context across restarts by
// writing RESTART_CONTEXT, tagging PLAN, and logging to PROGRESS, per
// spec §4.8.
type StateManager struct {
	reader   *substrate.Reader
	writer   *substrate.Writer
	appender *substrate.Appender
	clock    clock.Clock
}

// NewStateManager builds a StateManager over the shared substrate I/O
// components.
func NewStateManager(reader *substrate.Reader, writer *substrate.Writer, appender *substrate.Appender, clk clock.Clock) *StateManager {
	return &StateManager{reader: reader, writer: writer, appender: appender, clock: clk}
}

var planTagRE = regexp.MustCompile(`(?m)^\[RATE LIMITED - resuming at [^\]]+\]\n`)
var interruptedTaskRE = regexp.MustCompile(`(?m)^Task "[^"]+" was interrupted\n`)

func extractGoal(plan string) string {
	for _, l := range strings.Split(plan, "\n") {
		t := strings.TrimSpace(l)
		if strings.HasPrefix(t, "## Goal") {
			continue
		}
		if strings.HasPrefix(t, "# ") {
			continue
		}
		if t != "" && !strings.HasPrefix(t, "#") && !strings.HasPrefix(t, "-") {
			return t
		}
	}
	return ""
}

// SaveStateBeforeSleep writes durable hibernation context and tags PLAN so
// a restart can resume correctly, per spec §4.8 scenario 3.
func (s *StateManager) SaveStateBeforeSleep(resetTime time.Time, interruptedTaskID string) error {
	planResult, err := s.reader.Read(substrate.PLAN)
	if err != nil {
		return err
	}

	start := s.clock.Now().UTC()
	durationMinutes := resetTime.Sub(start).Minutes()
	goal := extractGoal(planResult.Raw)

	var sb strings.Builder
	sb.WriteString("# Restart Context\n\n")
	fmt.Fprintf(&sb, "- **Hibernation Start**: %s\n", start.Format("2006-01-02T15:04:05.000Z"))
	fmt.Fprintf(&sb, "- **Expected Reset**: %s\n", resetTime.UTC().Format("2006-01-02T15:04:05.000Z"))
	fmt.Fprintf(&sb, "- **Duration**: %.0f minutes\n", durationMinutes)
	if goal != "" {
		fmt.Fprintf(&sb, "- **Current Goal**: %s\n", goal)
	}
	if interruptedTaskID != "" {
		fmt.Fprintf(&sb, "- **Interrupted Task**: %s\n", interruptedTaskID)
	}
	sb.WriteString("\n## Plan Snapshot\n\n")
	sb.WriteString(planResult.Raw)

	if err := s.writer.Write(substrate.RESTART_CONTEXT, sb.String()); err != nil {
		return err
	}

	if err := s.tagPlan(planResult.Raw, resetTime, interruptedTaskID); err != nil {
		return err
	}

	minutes := int(durationMinutes + 0.5)
	entry := fmt.Sprintf("Rate limit hibernation starting. Reset expected at %s (~%d minutes)",
		resetTime.UTC().Format("2006-01-02T15:04:05.000Z"), minutes)
	return s.appender.Append(substrate.PROGRESS, "SYSTEM", entry)
}

func (s *StateManager) tagPlan(plan string, resetTime time.Time, interruptedTaskID string) error {
	cleaned := planTagRE.ReplaceAllString(plan, "")
	cleaned = interruptedTaskRE.ReplaceAllString(cleaned, "")

	var prefix strings.Builder
	fmt.Fprintf(&prefix, "[RATE LIMITED - resuming at %s]\n", resetTime.UTC().Format("2006-01-02T15:04:05.000Z"))
	if interruptedTaskID != "" {
		fmt.Fprintf(&prefix, "Task %q was interrupted\n", interruptedTaskID)
	}

	// Insert the tag right after the first heading line so the document
	// still starts with "# " per substrate validation.
	lines := strings.SplitN(cleaned, "\n", 2)
	var tagged string
	if len(lines) == 2 {
		tagged = lines[0] + "\n\n" + prefix.String() + "\n" + lines[1]
	} else {
		tagged = cleaned + "\n\n" + prefix.String()
	}

	return s.writer.Write(substrate.PLAN, tagged)
}

// ClearRestartContext overwrites RESTART_CONTEXT with a neutral "no
// hibernation" marker. Idempotent per spec §8.
func (s *StateManager) ClearRestartContext() error {
	return s.writer.Write(substrate.RESTART_CONTEXT, neutralMarker)
}
