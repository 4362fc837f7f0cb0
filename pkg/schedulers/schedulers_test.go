package schedulers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/cortexd/pkg/substrate"
)

var fixedNow = time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)

func newMemFS() *substrate.MemFS {
	return substrate.NewMemFS(func() time.Time { return fixedNow })
}

func TestBackup_TickCopiesAndPrunes(t *testing.T) {
	fs := newMemFS()
	fs.Seed("/substrate/PLAN.md", "# Plan\n")
	fs.Seed("/substrate/MEMORY.md", "# Memory\n")
	require.NoError(t, fs.Mkdir("/backups", true))

	// Pre-seed enough old snapshots to exercise pruning.
	for _, ts := range []string{"20260101T000000Z", "20260102T000000Z", "20260103T000000Z"} {
		fs.Seed("/backups/"+ts+"/PLAN.md", "old")
	}

	b := NewBackup(fs, "/substrate", "/backups", "/config", 2, "0 3 * * *")
	res, err := b.Tick(context.Background(), fixedNow)
	require.NoError(t, err)
	assert.True(t, res.Ran)
	assert.Equal(t, 2, res.Data["filesCopied"])

	last, err := fs.ReadFile("/config/last-backup.txt")
	require.NoError(t, err)
	assert.Contains(t, string(last), "2026-02-15T10:00:00Z")

	entries, err := fs.ReadDir("/backups")
	require.NoError(t, err)
	// retentionCount=2: pruning keeps the two newest snapshots, the fresh one included.
	assert.LessOrEqual(t, len(entries), 3)
}

func TestEmail_DisabledNeverRuns(t *testing.T) {
	fs := newMemFS()
	reader := substrate.NewReader(fs, "/substrate", substrate.DefaultLayout(), true)
	fs.Seed("/substrate/PROGRESS.md", "# Progress\n")

	e := NewEmail(fs, reader, "/config", nil, false, "0 8 * * *")
	res, err := e.Tick(context.Background(), fixedNow)
	require.NoError(t, err)
	assert.False(t, res.Ran)

	next, ok := e.NextRun(fixedNow)
	assert.False(t, ok)
	assert.True(t, next.IsZero())
}

func TestEmail_EnabledWritesDigestAndState(t *testing.T) {
	fs := newMemFS()
	reader := substrate.NewReader(fs, "/substrate", substrate.DefaultLayout(), true)
	fs.Seed("/substrate/PROGRESS.md", "[2026-02-15T09:00:00.000Z] did a thing\n")

	e := NewEmail(fs, reader, "/config", []string{"ops@example.com"}, true, "0 8 * * *")
	res, err := e.Tick(context.Background(), fixedNow)
	require.NoError(t, err)
	assert.True(t, res.Ran)

	digestPath, _ := res.Data["digestPath"].(string)
	require.NotEmpty(t, digestPath)
	digest, err := fs.ReadFile(digestPath)
	require.NoError(t, err)
	assert.Contains(t, string(digest), "did a thing")

	state, err := fs.ReadFile("/config/email-scheduler-state.json")
	require.NoError(t, err)
	assert.Contains(t, string(state), "digestsSent")
}

func TestHealth_AggregatesProviders(t *testing.T) {
	h := NewHealth(
		func() map[string]any { return map[string]any{"total": int64(5)} },
		func() map[string]any { return map[string]any{"hits": int64(3), "misses": int64(1)} },
		func() map[string]int64 { return map[string]int64{"PLAN": 1} },
		"*/5 * * * *",
	)
	res, err := h.Tick(context.Background(), fixedNow)
	require.NoError(t, err)
	assert.True(t, res.Ran)
	assert.Equal(t, int64(1), res.Data["errorTotal"])
	assert.NotNil(t, res.Data["loop"])
	assert.NotNil(t, res.Data["substrateCache"])
}

func TestRunner_TicksOnlyDueSchedulers(t *testing.T) {
	var emitted []string
	fs := newMemFS()
	require.NoError(t, fs.Mkdir("/backups", true))
	fs.Seed("/substrate/PLAN.md", "# Plan\n")

	b := NewBackup(fs, "/substrate", "/backups", "/config", 14, "") // empty expr => always due
	r := NewRunner(func(name string, data map[string]any) { emitted = append(emitted, name) }, b)

	r.TickAll(context.Background(), fixedNow, nil)
	assert.Contains(t, emitted, "backup")
}
