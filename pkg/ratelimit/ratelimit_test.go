package ratelimit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/cortexd/pkg/clock"
	"github.com/sipeed/cortexd/pkg/substrate"
)

func TestParseRateLimitResetBareForm(t *testing.T) {
	now := time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)
	reset := ParseRateLimitReset("You've hit your limit · resets 12pm (UTC)", now)
	require.NotNil(t, reset)
	assert.Equal(t, time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC), *reset)
}

func TestParseRateLimitResetBareFormCrossesMidnight(t *testing.T) {
	now := time.Date(2026, 2, 15, 23, 30, 0, 0, time.UTC)
	reset := ParseRateLimitReset("resets 11pm (UTC)", now)
	require.NotNil(t, reset)
	assert.Equal(t, time.Date(2026, 2, 16, 23, 0, 0, 0, time.UTC), *reset)
}

func TestParseRateLimitResetDatedForm(t *testing.T) {
	now := time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)
	reset := ParseRateLimitReset("limit resets Mar 3, 9am (UTC)", now)
	require.NotNil(t, reset)
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), *reset)
}

func TestParseRateLimitResetNoMatch(t *testing.T) {
	reset := ParseRateLimitReset("everything is fine", time.Now())
	assert.Nil(t, reset)
}

func TestParseRateLimitResetAlwaysAfterNow(t *testing.T) {
	now := time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)
	for _, msg := range []string{"resets 12am (UTC)", "resets 9am (UTC)", "resets 10am (UTC)", "resets Feb 15, 10am (UTC)"} {
		reset := ParseRateLimitReset(msg, now)
		require.NotNil(t, reset, msg)
		assert.True(t, reset.After(now), msg)
	}
}

func newStateManagerHarness(t *testing.T) (*StateManager, *substrate.Reader, *clock.Fake, string) {
	t.Helper()
	root := "/substrate"
	fs := substrate.NewMemFS(nil)
	layout := substrate.DefaultLayout()
	fs.Seed(filepath.Join(root, "PLAN.md"), "# Plan\n\nShip the widget\n\n## Tasks\n\n- [ ] Task A\n")
	fs.Seed(filepath.Join(root, "PROGRESS.md"), "# Progress Log\n")
	fs.Seed(filepath.Join(root, "RESTART_CONTEXT.md"), neutralMarker)

	lock := substrate.NewFileLock()
	reader := substrate.NewReader(fs, root, layout, true)
	writer := substrate.NewOverwriteWriter(fs, reader, lock, layout)
	fakeClock := clock.NewFake(time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC))
	appender := substrate.NewAppendWriter(fs, reader, lock, layout, root, fakeClock, substrate.DefaultRotationThreshold)

	return NewStateManager(reader, writer, appender, fakeClock), reader, fakeClock, root
}

func TestSaveStateBeforeSleep(t *testing.T) {
	sm, reader, fakeClock, _ := newStateManagerHarness(t)
	resetTime := fakeClock.Now().Add(2 * time.Hour)

	require.NoError(t, sm.SaveStateBeforeSleep(resetTime, "task-1"))

	ctx, err := reader.Read(substrate.RESTART_CONTEXT)
	require.NoError(t, err)
	assert.Contains(t, ctx.Raw, "Hibernation Start**: 2026-02-15T10:00:00.000Z")
	assert.Contains(t, ctx.Raw, "Expected Reset**: 2026-02-15T12:00:00.000Z")

	plan, err := reader.Read(substrate.PLAN)
	require.NoError(t, err)
	assert.Contains(t, plan.Raw, "[RATE LIMITED - resuming at 2026-02-15T12:00:00.000Z]")
	assert.Contains(t, plan.Raw, `Task "task-1" was interrupted`)

	progress, err := reader.Read(substrate.PROGRESS)
	require.NoError(t, err)
	assert.Contains(t, progress.Raw, "Rate limit hibernation starting")
	assert.Contains(t, progress.Raw, "2026-02-15T12:00:00.000Z")
}

func TestClearRestartContextIdempotent(t *testing.T) {
	sm, reader, _, _ := newStateManagerHarness(t)
	require.NoError(t, sm.ClearRestartContext())
	r1, err := reader.Read(substrate.RESTART_CONTEXT)
	require.NoError(t, err)

	require.NoError(t, sm.ClearRestartContext())
	r2, err := reader.Read(substrate.RESTART_CONTEXT)
	require.NoError(t, err)

	assert.Equal(t, r1.Raw, r2.Raw)
}
