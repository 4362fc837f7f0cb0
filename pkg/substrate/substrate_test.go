package substrate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/cortexd/pkg/clock"
)

func newHarness(t *testing.T) (*MemFS, *Reader, *Writer, *Appender, *FileLock, string) {
	t.Helper()
	root := "/substrate"
	fs := NewMemFS(nil)
	layout := DefaultLayout()
	fs.Seed(filepath.Join(root, "PLAN.md"), "# Plan\n\n## Tasks\n\n- [ ] Task A\n- [ ] Task B\n")
	fs.Seed(filepath.Join(root, "PROGRESS.md"), "# Progress Log\n")
	fs.Seed(filepath.Join(root, "CONVERSATION.md"), "# Conversation\n")

	lock := NewFileLock()
	reader := NewReader(fs, root, layout, true)
	writer := NewOverwriteWriter(fs, reader, lock, layout)
	fakeClock := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	appender := NewAppendWriter(fs, reader, lock, layout, root, fakeClock, DefaultRotationThreshold)
	return fs, reader, writer, appender, lock, root
}

func TestReaderCacheHitOnUnchangedMtime(t *testing.T) {
	fs, reader, _, _, _, root := newHarness(t)

	r1, err := reader.Read(PLAN)
	require.NoError(t, err)
	r2, err := reader.Read(PLAN)
	require.NoError(t, err)

	assert.Equal(t, r1.Raw, r2.Raw)
	assert.Equal(t, int64(1), reader.Stats().Misses)
	assert.Equal(t, int64(1), reader.Stats().Hits)

	fs.Touch(filepath.Join(root, "PLAN.md"))
	_, err = reader.Read(PLAN)
	require.NoError(t, err)
	assert.Equal(t, int64(2), reader.Stats().Misses)
}

func TestWriteInvalidatesCache(t *testing.T) {
	_, reader, writer, _, _, _ := newHarness(t)

	_, err := reader.Read(PLAN)
	require.NoError(t, err)

	newContent := "# Plan\n\n## Tasks\n\n- [x] Task A\n- [ ] Task B\n"
	require.NoError(t, writer.Write(PLAN, newContent))

	r, err := reader.Read(PLAN)
	require.NoError(t, err)
	assert.Equal(t, newContent, r.Raw)
}

func TestOverwriteWriterRejectsAppendOnlyIdentifier(t *testing.T) {
	_, _, writer, _, _, _ := newHarness(t)

	err := writer.Write(PROGRESS, "# Progress Log\n\nhi\n")
	require.Error(t, err)
	kind, ok := AsKind(err)
	require.True(t, ok)
	assert.Equal(t, KindContractViolation, kind)
}

func TestAppenderRejectsOverwriteIdentifier(t *testing.T) {
	_, _, _, appender, _, _ := newHarness(t)

	err := appender.Append(PLAN, "SYSTEM", "hello")
	require.Error(t, err)
	kind, ok := AsKind(err)
	require.True(t, ok)
	assert.Equal(t, KindContractViolation, kind)
}

func TestWriterValidatesContent(t *testing.T) {
	_, _, writer, _, _, _ := newHarness(t)

	require.Error(t, writer.Write(MEMORY, ""))
	require.Error(t, writer.Write(MEMORY, "no heading here"))
	require.Error(t, writer.Write(PLAN, "# Plan\n\nno tasks section"))
	require.NoError(t, writer.Write(MEMORY, "# Memory\n\nok"))
}

func TestAppenderRotatesProgressOnOverflow(t *testing.T) {
	fs, reader, _, _, _, root := newHarness(t)
	fakeClock := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	layout := DefaultLayout()
	lock := NewFileLock()
	appender := NewAppendWriter(fs, reader, lock, layout, root, fakeClock, 64)

	require.NoError(t, appender.Append(PROGRESS, "SUBCONSCIOUS", "short line that exceeds threshold quickly"))
	require.NoError(t, appender.Append(PROGRESS, "SUBCONSCIOUS", "another line"))

	entries, err := fs.ReadDir(filepath.Join(root, "progress"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	r, err := reader.Read(PROGRESS)
	require.NoError(t, err)
	assert.Contains(t, r.Raw, "Rotated previous log")
}

func TestFileLockFIFO(t *testing.T) {
	lock := NewFileLock()
	var order []int
	var mu = make(chan struct{}, 1)
	mu <- struct{}{}

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		go func() {
			release := lock.Acquire(PLAN)
			defer release()
			<-mu
			order = append(order, i)
			if len(order) == 5 {
				close(done)
			}
			mu <- struct{}{}
		}()
	}
	<-done
	assert.Len(t, order, 5)
}

func TestParseTasksAndMarkComplete(t *testing.T) {
	plan := "# Plan\n\n## Tasks\n\n- [ ] Task A\n- [ ] Task B\n- [x] Task C\n"
	tasks := ParseTasks(plan)
	require.Len(t, tasks, 3)
	assert.Equal(t, "task-1", tasks[0].ID)
	assert.Equal(t, TaskPending, tasks[0].State)
	assert.Equal(t, TaskDone, tasks[2].State)

	updated, err := MarkComplete(plan, "task-1")
	require.NoError(t, err)
	assert.Contains(t, updated, "- [x] Task A")

	// Idempotent: marking task-3 (already done) leaves content unchanged.
	again, err := MarkComplete(plan, "task-3")
	require.NoError(t, err)
	assert.Equal(t, plan, again)
}

func TestAddTask(t *testing.T) {
	plan := "# Plan\n\n## Tasks\n\n- [ ] Task A\n"
	updated := AddTask(plan, "Task B")
	tasks := ParseTasks(updated)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Task B", tasks[1].Title)

	noSection := "# Plan\n"
	updated = AddTask(noSection, "First task")
	tasks = ParseTasks(updated)
	require.Len(t, tasks, 1)
	assert.Equal(t, "First task", tasks[0].Title)
}

func TestRedactSecrets(t *testing.T) {
	redacted, found := RedactSecrets("my key is sk-ant-abc123def456ghi789 please keep secret")
	assert.True(t, found)
	assert.NotContains(t, redacted, "sk-ant-abc123def456ghi789")
}
