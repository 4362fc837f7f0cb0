package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/cortexd/pkg/clock"
	"github.com/sipeed/cortexd/pkg/launcher"
	"github.com/sipeed/cortexd/pkg/orchestrator"
	"github.com/sipeed/cortexd/pkg/prompts"
	"github.com/sipeed/cortexd/pkg/roles"
	"github.com/sipeed/cortexd/pkg/substrate"
)

func newIdleHarness(t *testing.T, planRaw string) (*roles.Id, *substrate.Writer, *substrate.Reader, *launcher.Fake) {
	t.Helper()
	root := "/substrate"
	fs := substrate.NewMemFS(nil)
	layout := substrate.DefaultLayout()
	fs.Seed(filepath.Join(root, "PLAN.md"), planRaw)
	fs.Seed(filepath.Join(root, "VALUES.md"), "# Values\n")
	fs.Seed(filepath.Join(root, "CHARTER.md"), "# Charter\n")
	fs.Seed(filepath.Join(root, "MEMORY.md"), "# Memory\n")
	fs.Seed(filepath.Join(root, "PROGRESS.md"), "# Progress Log\n")

	lock := substrate.NewFileLock()
	reader := substrate.NewReader(fs, root, layout, true)
	writer := substrate.NewOverwriteWriter(fs, reader, lock, layout)
	fakeClock := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	appender := substrate.NewAppendWriter(fs, reader, lock, layout, root, fakeClock, substrate.DefaultRotationThreshold)

	fakeLauncher := launcher.NewFake()
	id := &roles.Id{Launcher: fakeLauncher, Prompts: prompts.New(""), Reader: reader, Appender: appender, Model: "test-model"}
	return id, writer, reader, fakeLauncher
}

func TestIdleHandler_NotIdleWhenPlanHasPendingTask(t *testing.T) {
	id, writer, reader, _ := newIdleHarness(t, "# Plan\n\n## Tasks\n\n- [ ] still working\n")
	handler := newIdleHandler(id, writer, reader)

	outcome, err := handler.HandleIdle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, orchestrator.IdleNotIdle, outcome)
}

func TestIdleHandler_NoGoalsWhenLauncherReturnsNone(t *testing.T) {
	id, writer, reader, fakeLauncher := newIdleHarness(t, "# Plan\n\n## Tasks\n")
	fakeLauncher.EnqueueSuccess(`{"goalCandidates":[]}`)
	handler := newIdleHandler(id, writer, reader)

	outcome, err := handler.HandleIdle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, orchestrator.IdleNoGoals, outcome)
}

func TestIdleHandler_PlanCreatedAppendsTaskAndLogsDrive(t *testing.T) {
	id, writer, reader, fakeLauncher := newIdleHarness(t, "# Plan\n\n## Tasks\n")
	fakeLauncher.EnqueueSuccess(`{"goalCandidates":["investigate new capability"]}`)
	handler := newIdleHandler(id, writer, reader)

	outcome, err := handler.HandleIdle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, orchestrator.IdlePlanCreated, outcome)

	plan, err := reader.Read(substrate.PLAN)
	require.NoError(t, err)
	assert.Contains(t, plan.Raw, "investigate new capability")

	progress, err := reader.Read(substrate.PROGRESS)
	require.NoError(t, err)
	assert.Contains(t, progress.Raw, "investigate new capability")
}
