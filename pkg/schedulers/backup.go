package schedulers

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/sipeed/cortexd/pkg/logger"
	"github.com/sipeed/cortexd/pkg/substrate"
)

// Backup copies the substrate root to backupPath/<ts>/ on its cron
// schedule and prunes beyond retentionCount, per spec §4 "Supporting
// schedulers".
type Backup struct {
	fs             substrate.Filesystem
	substrateRoot  string
	backupPath     string
	configDir      string
	retentionCount int
	cronExpr       string
}

// NewBackup builds a Backup scheduler. configDir is where last-backup.txt is
// persisted, independent of backupPath so it survives pruning.
func NewBackup(fs substrate.Filesystem, substrateRoot, backupPath, configDir string, retentionCount int, cronExpr string) *Backup {
	if retentionCount <= 0 {
		retentionCount = 14
	}
	return &Backup{
		fs: fs, substrateRoot: substrateRoot, backupPath: backupPath,
		configDir: configDir, retentionCount: retentionCount, cronExpr: cronExpr,
	}
}

func (b *Backup) Name() string { return "backup" }

func (b *Backup) NextRun(after time.Time) (time.Time, bool) {
	return gronxNextRun(b.cronExpr, after)
}

// Tick copies every regular file directly under substrateRoot into
// backupPath/<ts>/ (subdirectories are not copied), records the backup time
// in configDir/last-backup.txt, then prunes the oldest snapshots beyond
// retentionCount.
func (b *Backup) Tick(ctx context.Context, now time.Time) (Result, error) {
	ts := now.UTC().Format("20060102T150405Z")
	dest := filepath.Join(b.backupPath, ts)
	if err := b.fs.Mkdir(dest, true); err != nil {
		return Result{}, fmt.Errorf("schedulers: backup mkdir: %w", err)
	}

	entries, err := b.fs.ReadDir(b.substrateRoot)
	if err != nil {
		return Result{}, fmt.Errorf("schedulers: backup listing substrate root: %w", err)
	}
	copied := 0
	for _, name := range entries {
		src := filepath.Join(b.substrateRoot, name)
		if info, err := b.fs.Stat(src); err != nil || info.IsDir {
			continue
		}
		if err := b.fs.CopyFile(src, filepath.Join(dest, name)); err != nil {
			return Result{}, fmt.Errorf("schedulers: backup copy %s: %w", name, err)
		}
		copied++
	}

	if err := b.fs.WriteFile(filepath.Join(b.configDir, "last-backup.txt"), []byte(now.UTC().Format(time.RFC3339)+"\n"), 0o644); err != nil {
		logger.WarnCF("schedulers.backup", "failed to persist last-backup marker",
			map[string]any{"error": err.Error()})
	}

	pruned, err := b.prune()
	if err != nil {
		logger.WarnCF("schedulers.backup", "prune failed", map[string]any{"error": err.Error()})
	}

	return Result{Ran: true, Data: map[string]any{
		"path": dest, "filesCopied": copied, "pruned": pruned,
	}}, nil
}

// prune removes the oldest snapshot directories beyond retentionCount,
// ordering lexically since snapshot names are timestamp-formatted.
func (b *Backup) prune() (int, error) {
	names, err := b.fs.ReadDir(b.backupPath)
	if err != nil {
		return 0, err
	}
	sort.Strings(names)
	if len(names) <= b.retentionCount {
		return 0, nil
	}
	toRemove := names[:len(names)-b.retentionCount]
	removed := 0
	for _, name := range toRemove {
		if err := b.fs.RemoveAll(filepath.Join(b.backupPath, name)); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
