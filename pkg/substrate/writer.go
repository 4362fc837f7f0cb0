package substrate

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sipeed/cortexd/pkg/logger"
)

// Writer validates, redacts, locks, and atomically writes content for
// overwrite-mode identifiers, invalidating the reader cache afterward.
type Writer struct {
	fs     Filesystem
	reader *Reader
	lock   *FileLock
	layout map[Identifier]FileSpec
}

// NewOverwriteWriter builds a Writer sharing fs/reader/lock with the rest of
// the substrate I/O layer.
func NewOverwriteWriter(fs Filesystem, reader *Reader, lock *FileLock, layout map[Identifier]FileSpec) *Writer {
	return &Writer{fs: fs, reader: reader, lock: lock, layout: layout}
}

// Write overwrites identifier id's file with content, per spec §4.4.
func (w *Writer) Write(id Identifier, content string) error {
	spec, ok := w.layout[id]
	if !ok {
		return newErr(KindContractViolation, string(id), "unknown substrate identifier", nil)
	}
	if spec.Mode != Overwrite {
		return newErr(KindContractViolation, string(id), "identifier is not write-mode overwrite", nil)
	}

	if err := Validate(id, content); err != nil {
		return err
	}

	redacted, found := RedactSecrets(content)
	if found {
		logger.WarnCF("substrate.writer", "redacted secret in content before write",
			map[string]any{"identifier": string(id)})
	}

	path, err := w.reader.PathFor(id)
	if err != nil {
		return err
	}

	return w.lock.WithLock(id, func() error {
		if err := writeAtomic(w.fs, path, []byte(redacted)); err != nil {
			return err
		}
		w.reader.Invalidate(path)
		return nil
	})
}

// writeAtomic writes data to a temp file in the same directory as path and
// renames it into place, so readers never observe a half-written file.
// Grounded on the write-then-rename idiom used by markdown state persisters
// in the retrieval corpus (temp file + fsync + rename).
func writeAtomic(fs Filesystem, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.Mkdir(dir, true); err != nil {
		return err
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d", filepath.Base(path), time.Now().UnixNano()))
	if err := fs.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	if osfs, ok := fs.(OSFilesystem); ok {
		_ = osfs
		if err := os.Rename(tmp, path); err != nil {
			_ = fs.Remove(tmp)
			return newErr(KindIOError, path, "rename failed", err)
		}
		return nil
	}

	// Non-OS filesystems (fakes) don't need a real rename; copy+remove
	// keeps the same observable behavior.
	if err := fs.CopyFile(tmp, path); err != nil {
		return err
	}
	return fs.Remove(tmp)
}
