package substrate

import (
	"io"
	"os"
	"path/filepath"
	"time"
)

// FileInfo is the subset of os.FileInfo the substrate layer needs.
type FileInfo struct {
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Filesystem is the capability interface consumed pervasively by the reader,
// writers, and appenders. All operations fail with a distinguishable
// KindNotFound error when the target path is absent, per spec §4.1.
type Filesystem interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm os.FileMode) error
	AppendFile(path string, data []byte, perm os.FileMode) error
	Stat(path string) (FileInfo, error)
	Mkdir(path string, recursive bool) error
	Exists(path string) bool
	CopyFile(src, dst string) error
	ReadDir(path string) ([]string, error)
	Remove(path string) error
	RemoveAll(path string) error
}

// OSFilesystem is the production Filesystem backed by the host OS.
type OSFilesystem struct{}

// NewOSFilesystem returns the production Filesystem implementation.
func NewOSFilesystem() Filesystem { return OSFilesystem{} }

func wrapIOErr(path string, err error) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return newErr(KindNotFound, path, "not found", err)
	}
	return newErr(KindIOError, path, err.Error(), err)
}

func (OSFilesystem) ReadFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapIOErr(path, err)
	}
	return b, nil
}

func (OSFilesystem) WriteFile(path string, data []byte, perm os.FileMode) error {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return wrapIOErr(path, err)
	}
	return nil
}

func (OSFilesystem) AppendFile(path string, data []byte, perm os.FileMode) error {
	if perm == 0 {
		perm = 0o644
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, perm)
	if err != nil {
		return wrapIOErr(path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return wrapIOErr(path, err)
	}
	return nil
}

func (OSFilesystem) Stat(path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, wrapIOErr(path, err)
	}
	return FileInfo{Size: info.Size(), ModTime: info.ModTime(), IsDir: info.IsDir()}, nil
}

func (OSFilesystem) Mkdir(path string, recursive bool) error {
	var err error
	if recursive {
		err = os.MkdirAll(path, 0o755)
	} else {
		err = os.Mkdir(path, 0o755)
	}
	if err != nil && !os.IsExist(err) {
		return wrapIOErr(path, err)
	}
	return nil
}

func (OSFilesystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSFilesystem) CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return wrapIOErr(src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return wrapIOErr(dst, err)
	}

	perm := os.FileMode(0o644)
	if info, err := in.Stat(); err == nil {
		perm = info.Mode()
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return wrapIOErr(dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return wrapIOErr(dst, err)
	}
	return out.Sync()
}

func (OSFilesystem) ReadDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, wrapIOErr(path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (OSFilesystem) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return wrapIOErr(path, err)
	}
	return nil
}

func (OSFilesystem) RemoveAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return wrapIOErr(path, err)
	}
	return nil
}
