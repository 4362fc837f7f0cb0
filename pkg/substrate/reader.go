package substrate

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"sync"
	"time"
)

// Metadata is the (identifier, path, mtime, hash) tuple from spec §3. The
// hash is a deterministic digest of the raw bytes used only for cache
// revalidation and integrity reporting, never for content addressing.
type Metadata struct {
	Identifier   Identifier
	Path         string
	LastModified time.Time
	Hash         string
}

// ReadResult is the value returned by Reader.Read.
type ReadResult struct {
	Metadata Metadata
	Raw      string
}

type cacheEntry struct {
	content string
	mtime   time.Time
	hash    string
}

// CacheStats exposes hit/miss counters for observability per spec §4.3.
type CacheStats struct {
	Hits   int64
	Misses int64
}

// Reader resolves substrate identifiers to file content, optionally caching
// by mtime so repeated reads of an unchanged file avoid disk I/O.
type Reader struct {
	fs     Filesystem
	root   string
	layout map[Identifier]FileSpec
	cache  bool

	mu      sync.Mutex
	entries map[string]cacheEntry
	stats   CacheStats
}

// NewReader builds a Reader rooted at root, resolving identifiers via
// layout. When cacheEnabled is false, every Read always hits the filesystem.
func NewReader(fs Filesystem, root string, layout map[Identifier]FileSpec, cacheEnabled bool) *Reader {
	return &Reader{
		fs:      fs,
		root:    root,
		layout:  layout,
		cache:   cacheEnabled,
		entries: make(map[string]cacheEntry),
	}
}

func (r *Reader) pathFor(id Identifier) (string, error) {
	spec, ok := r.layout[id]
	if !ok {
		return "", newErr(KindContractViolation, string(id), "unknown substrate identifier", nil)
	}
	return filepath.Join(r.root, spec.RelPath), nil
}

// Read returns the metadata and raw markdown for identifier id, using the
// mtime cache when enabled and valid.
func (r *Reader) Read(id Identifier) (*ReadResult, error) {
	path, err := r.pathFor(id)
	if err != nil {
		return nil, err
	}

	info, err := r.fs.Stat(path)
	if err != nil {
		return nil, err
	}

	if r.cache {
		r.mu.Lock()
		entry, ok := r.entries[path]
		r.mu.Unlock()
		if ok && entry.mtime.Equal(info.ModTime) {
			r.mu.Lock()
			r.stats.Hits++
			r.mu.Unlock()
			return &ReadResult{
				Metadata: Metadata{Identifier: id, Path: path, LastModified: entry.mtime, Hash: entry.hash},
				Raw:      entry.content,
			}, nil
		}
	}

	raw, err := r.fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	hash := digest(raw)

	if r.cache {
		r.mu.Lock()
		r.entries[path] = cacheEntry{content: string(raw), mtime: info.ModTime, hash: hash}
		r.stats.Misses++
		r.mu.Unlock()
	}

	return &ReadResult{
		Metadata: Metadata{Identifier: id, Path: path, LastModified: info.ModTime, Hash: hash},
		Raw:      string(raw),
	}, nil
}

// Invalidate removes the cache entry for path, if any. Writers and
// appenders call this after every successful mutation.
func (r *Reader) Invalidate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, path)
}

// PathFor exposes the resolved path for id, used by writers/appenders that
// share this Reader's layout and root.
func (r *Reader) PathFor(id Identifier) (string, error) { return r.pathFor(id) }

// Stats returns a snapshot of the cache hit/miss counters.
func (r *Reader) Stats() CacheStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
