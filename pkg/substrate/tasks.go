package substrate

import (
	"fmt"
	"regexp"
	"strings"
)

// TaskState is a PLAN checkbox state.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskDone
)

// Task is one parsed PLAN `## Tasks` line. IDs are generated deterministically
// from ordinal position and are stable only for the lifetime of a single
// read — the orchestrator never persists them, per spec §3.
type Task struct {
	ID    string
	Title string
	State TaskState
	Line  int // zero-based index within the Tasks section
}

var taskLineRE = regexp.MustCompile(`^- \[( |x|X)\]\s*(.+)$`)

// ParseTasks extracts the ordered task list from a PLAN document's
// `## Tasks` section. Returns an empty slice (not an error) if the section
// is absent or has no items — callers treat "no tasks" as idle, per Id's
// detectIdle in spec §4.6.
func ParseTasks(plan string) []Task {
	lines := strings.Split(plan, "\n")
	start := -1
	for i, l := range lines {
		if strings.TrimSpace(l) == "## Tasks" {
			start = i + 1
			break
		}
	}
	if start == -1 {
		return nil
	}

	var tasks []Task
	n := 0
	for i := start; i < len(lines); i++ {
		l := lines[i]
		if strings.HasPrefix(strings.TrimSpace(l), "## ") {
			break // next section
		}
		m := taskLineRE.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		state := TaskPending
		if strings.EqualFold(m[1], "x") {
			state = TaskDone
		}
		tasks = append(tasks, Task{
			ID:    fmt.Sprintf("task-%d", n+1),
			Title: strings.TrimSpace(m[2]),
			State: state,
			Line:  n,
		})
		n++
	}
	return tasks
}

// FirstPending returns the first pending task, or nil if every task is done
// (or there are none).
func FirstPending(tasks []Task) *Task {
	for i := range tasks {
		if tasks[i].State == TaskPending {
			return &tasks[i]
		}
	}
	return nil
}

// AddTask appends a new pending task line to plan's `## Tasks` section,
// creating the section at the end of the document if it is absent.
func AddTask(plan, title string) string {
	lines := strings.Split(plan, "\n")
	start := -1
	end := len(lines)
	for i, l := range lines {
		if strings.TrimSpace(l) == "## Tasks" {
			start = i + 1
			continue
		}
		if start != -1 && strings.HasPrefix(strings.TrimSpace(l), "## ") {
			end = i
			break
		}
	}

	newLine := fmt.Sprintf("- [ ] %s", title)
	if start == -1 {
		if strings.TrimSpace(plan) == "" {
			return fmt.Sprintf("## Tasks\n\n%s\n", newLine)
		}
		return strings.TrimRight(plan, "\n") + "\n\n## Tasks\n\n" + newLine + "\n"
	}

	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:end]...)
	out = append(out, newLine)
	out = append(out, lines[end:]...)
	return strings.Join(out, "\n")
}

// MarkComplete flips the N-th `- [ ]` to `- [x]` in plan's Tasks section,
// where N is the ordinal embedded in taskID (e.g. "task-3" -> the 3rd task
// line). Idempotent: marking an already-done task leaves the content
// unchanged, per spec §8.
func MarkComplete(plan, taskID string) (string, error) {
	var ordinal int
	if _, err := fmt.Sscanf(taskID, "task-%d", &ordinal); err != nil || ordinal < 1 {
		return plan, newErr(KindContractViolation, "PLAN", fmt.Sprintf("invalid task id %q", taskID), err)
	}

	lines := strings.Split(plan, "\n")
	start := -1
	for i, l := range lines {
		if strings.TrimSpace(l) == "## Tasks" {
			start = i + 1
			break
		}
	}
	if start == -1 {
		return plan, newErr(KindContractViolation, "PLAN", "no '## Tasks' section", nil)
	}

	seen := 0
	for i := start; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "## ") {
			break
		}
		if taskLineRE.MatchString(lines[i]) {
			seen++
			if seen == ordinal {
				lines[i] = taskLineRE.ReplaceAllString(lines[i], "- [x] $2")
				return strings.Join(lines, "\n"), nil
			}
		}
	}
	return plan, newErr(KindContractViolation, "PLAN", fmt.Sprintf("task id %q not found", taskID), nil)
}
