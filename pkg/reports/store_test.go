package reports

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveAndList(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)
	defer store.Close()

	now := time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)
	r1, err := store.Save(3, now, "all clear", []string{"no issues found"})
	require.NoError(t, err)
	r2, err := store.Save(6, now.Add(time.Hour), "one concern", []string{"task drift detected"})
	require.NoError(t, err)

	list, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	// Newest first.
	assert.Equal(t, r2.ID, list[0].ID)
	assert.Equal(t, r1.ID, list[1].ID)

	body, err := store.Get(r2.ID)
	require.NoError(t, err)
	assert.Contains(t, body, "one concern")
	assert.Contains(t, body, "task drift detected")
}

func TestStore_ListRespectsLimit(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)
	defer store.Close()

	now := time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := store.Save(int64(i), now.Add(time.Duration(i)*time.Minute), "summary", nil)
		require.NoError(t, err)
	}

	list, err := store.List(2)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestStore_RebuildsIndexFromDiskWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)

	now := time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)
	saved, err := store.Save(1, now, "pre-existing", []string{"x"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Simulate a lost index by deleting it, leaving only the Markdown file.
	require.NoError(t, os.Remove(filepath.Join(dir, "index.sqlite")))

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	list, err := reopened.List(0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, saved.ID, list[0].ID)
	assert.Equal(t, int64(1), list[0].Cycle)
}
