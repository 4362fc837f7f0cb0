package substrate

import (
	"fmt"
	"path/filepath"

	"github.com/sipeed/cortexd/pkg/clock"
	"github.com/sipeed/cortexd/pkg/logger"
)

// DefaultRotationThreshold is the default PROGRESS rotation size (512 KiB)
// per spec §4.4.
const DefaultRotationThreshold = 512 * 1024

// Appender validates write-mode, redacts, timestamps, locks, and appends
// entries for append-only identifiers, rotating PROGRESS on overflow.
type Appender struct {
	fs                Filesystem
	reader            *Reader
	lock              *FileLock
	layout            map[Identifier]FileSpec
	clock             clock.Clock
	rotationThreshold int64
	root              string
}

// NewAppendWriter builds an Appender. rotationThreshold <= 0 selects
// DefaultRotationThreshold.
func NewAppendWriter(fs Filesystem, reader *Reader, lock *FileLock, layout map[Identifier]FileSpec, root string, clk clock.Clock, rotationThreshold int64) *Appender {
	if rotationThreshold <= 0 {
		rotationThreshold = DefaultRotationThreshold
	}
	return &Appender{
		fs: fs, reader: reader, lock: lock, layout: layout,
		clock: clk, rotationThreshold: rotationThreshold, root: root,
	}
}

// Append writes entry to identifier id as "[ts] entry\n", per spec §4.4.
// role, if non-empty, is embedded as a "[ROLE]" tag between the timestamp
// and the free text, matching the PROGRESS/CONVERSATION line format in
// spec §6.
func (a *Appender) Append(id Identifier, role, entry string) error {
	spec, ok := a.layout[id]
	if !ok {
		return newErr(KindContractViolation, string(id), "unknown substrate identifier", nil)
	}
	if spec.Mode != AppendOnly {
		return newErr(KindContractViolation, string(id), "identifier is not write-mode append-only", nil)
	}

	redacted, found := RedactSecrets(entry)
	if found {
		logger.WarnCF("substrate.appender", "redacted secret in entry before append",
			map[string]any{"identifier": string(id)})
	}

	path, err := a.reader.PathFor(id)
	if err != nil {
		return err
	}

	ts := a.clock.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	var line string
	if role != "" {
		line = fmt.Sprintf("[%s] [%s] %s\n", ts, role, redacted)
	} else {
		line = fmt.Sprintf("[%s] %s\n", ts, redacted)
	}

	return a.lock.WithLock(id, func() error {
		if id == PROGRESS {
			if err := a.rotateIfNeeded(path); err != nil {
				return err
			}
		}
		if err := a.fs.AppendFile(path, []byte(line), 0o644); err != nil {
			return err
		}
		a.reader.Invalidate(path)
		return nil
	})
}

// Overwrite replaces the entire content of an append-only identifier's
// file. It exists solely for conversation maintenance (compaction and
// archiving per spec §4.7), which must rewrite history rather than append
// one new line; ordinary callers use Append instead.
func (a *Appender) Overwrite(id Identifier, content string) error {
	spec, ok := a.layout[id]
	if !ok {
		return newErr(KindContractViolation, string(id), "unknown substrate identifier", nil)
	}
	if spec.Mode != AppendOnly {
		return newErr(KindContractViolation, string(id), "identifier is not write-mode append-only", nil)
	}

	path, err := a.reader.PathFor(id)
	if err != nil {
		return err
	}

	return a.lock.WithLock(id, func() error {
		if err := writeAtomic(a.fs, path, []byte(content)); err != nil {
			return err
		}
		a.reader.Invalidate(path)
		return nil
	})
}

// rotateIfNeeded copies the current PROGRESS file to
// progress/PROGRESS-<ts>Z.md and re-initializes the live file with a
// rotation header, when its size meets or exceeds the rotation threshold.
// Must be called while already holding the PROGRESS lock.
func (a *Appender) rotateIfNeeded(path string) error {
	info, err := a.fs.Stat(path)
	if err != nil {
		if k, ok := AsKind(err); ok && k == KindNotFound {
			return nil
		}
		return err
	}
	if info.Size < a.rotationThreshold {
		return nil
	}

	ts := a.clock.Now().UTC().Format("20060102T150405Z")
	archiveDir := filepath.Join(a.root, "progress")
	if err := a.fs.Mkdir(archiveDir, true); err != nil {
		return err
	}
	archivePath := filepath.Join(archiveDir, fmt.Sprintf("PROGRESS-%sZ.md", ts))

	if err := a.fs.CopyFile(path, archivePath); err != nil {
		return err
	}

	header := fmt.Sprintf("# Progress Log\n\n[%s] [SYSTEM] Rotated previous log to %s (size >= %d bytes)\n",
		a.clock.Now().UTC().Format("2006-01-02T15:04:05.000Z"), archivePath, a.rotationThreshold)
	if err := a.fs.WriteFile(path, []byte(header), 0o644); err != nil {
		return err
	}
	a.reader.Invalidate(path)

	logger.InfoCF("substrate.appender", "rotated PROGRESS",
		map[string]any{"archive": archivePath, "size": info.Size})
	return nil
}
