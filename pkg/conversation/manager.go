package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sipeed/cortexd/pkg/logger"
)

// Appender is the narrow substrate capability the Manager needs: append one
// timestamped entry to CONVERSATION. Satisfied by *substrate.Appender via a
// thin adapter in the orchestrator wiring layer.
type Appender interface {
	Append(role, entry string) error
}

// ContentReader is the narrow substrate capability needed to read the
// current CONVERSATION content for compaction/archive threshold checks.
type ContentReader interface {
	Read() (string, error)
}

// ContentWriter is the narrow substrate capability needed to persist a
// compacted or archived CONVERSATION body back to disk. CONVERSATION is
// declared append-only to callers (spec §4.7 step 4 uses the append-only
// writer for new entries), but compaction/archiving necessarily rewrite the
// whole file, so the Manager is handed a dedicated overwrite capability
// scoped to this one maintenance use.
type ContentWriter interface {
	Write(content string) error
}

// PermissionChecker decides whether a role may append to CONVERSATION.
// Per spec §4.7, SUPEREGO and ID may not append (the defaultPermissions
// below encodes exactly that).
type PermissionChecker interface {
	Allowed(role string) bool
}

type defaultPermissions struct{}

func (defaultPermissions) Allowed(role string) bool {
	switch role {
	case "SUPEREGO", "ID":
		return false
	default:
		return true
	}
}

// DefaultPermissions returns the spec-mandated CONVERSATION permission
// matrix: every role may append except SUPEREGO and ID.
func DefaultPermissions() PermissionChecker { return defaultPermissions{} }

// Manager implements append-with-compaction and append-with-archive over
// the CONVERSATION substrate file, per spec §4.7.
type Manager struct {
	appender Appender
	reader   ContentReader
	writer   ContentWriter
	perms    PermissionChecker
	compact  *Compactor
	archiver *Archiver
	now      func() time.Time

	mu                   sync.Mutex
	compactionBaseline   time.Time
	lastArchiveAt        time.Time
	lastCompactionAt     time.Time
	compactionInitalized bool
}

// NewManager builds a conversation Manager. archiver may be nil to disable
// archiving entirely (equivalent to ArchiveConfig.Enabled=false).
func NewManager(appender Appender, reader ContentReader, writer ContentWriter, perms PermissionChecker, compact *Compactor, archiver *Archiver, now func() time.Time) *Manager {
	if perms == nil {
		perms = DefaultPermissions()
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{appender: appender, reader: reader, writer: writer, perms: perms, compact: compact, archiver: archiver, now: now}
}

// Append appends entry under role to CONVERSATION, after permission
// checking, archive-threshold checking, and compaction-throttle checking,
// per the four steps in spec §4.7.
func (m *Manager) Append(ctx context.Context, role, entry string) error {
	if !m.perms.Allowed(role) {
		return fmt.Errorf("<PermissionDenied> role %s may not append to CONVERSATION", role)
	}

	if err := m.maybeArchive(); err != nil {
		logger.WarnCF("conversation.manager", "archive check failed", map[string]any{"error": err.Error()})
	}

	if err := m.maybeCompact(ctx); err != nil {
		logger.WarnCF("conversation.manager", "compaction check failed", map[string]any{"error": err.Error()})
	}

	return m.appender.Append(role, entry)
}

func (m *Manager) maybeArchive() error {
	if m.archiver == nil {
		return nil
	}
	content, err := m.reader.Read()
	if err != nil {
		return err
	}

	m.mu.Lock()
	lastArchive := m.lastArchiveAt
	m.mu.Unlock()

	if !m.archiver.ShouldArchive(content, lastArchive) {
		return nil
	}

	newContent, err := m.archiver.Archive(content)
	if err != nil {
		return err
	}
	if err := m.writer.Write(newContent); err != nil {
		return err
	}

	m.mu.Lock()
	m.lastArchiveAt = m.now()
	m.mu.Unlock()
	return nil
}

func (m *Manager) maybeCompact(ctx context.Context) error {
	now := m.now()

	m.mu.Lock()
	if !m.compactionInitalized {
		m.compactionBaseline = now
		m.compactionInitalized = true
		m.mu.Unlock()
		return nil
	}
	due := !now.Before(m.compactionBaseline.Add(time.Hour))
	baseline := m.compactionBaseline
	m.mu.Unlock()

	if !due {
		return nil
	}

	content, err := m.reader.Read()
	if err != nil {
		return err
	}

	oneHourAgo := baseline
	newContent, err := m.compact.Compact(ctx, content, oneHourAgo)
	if err != nil {
		return err
	}
	if newContent != content {
		if err := m.writer.Write(newContent); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.compactionBaseline = now
	m.lastCompactionAt = now
	m.mu.Unlock()
	return nil
}

// ForceCompaction bypasses throttling for tests/tooling, per spec §4.7.
func (m *Manager) ForceCompaction(ctx context.Context) (string, error) {
	content, err := m.reader.Read()
	if err != nil {
		return "", err
	}
	oneHourAgo := m.now().Add(-time.Hour)
	result, err := m.compact.Compact(ctx, content, oneHourAgo)
	if err != nil {
		return result, err
	}
	if result != content {
		if err := m.writer.Write(result); err != nil {
			return result, err
		}
	}
	m.mu.Lock()
	m.lastCompactionAt = m.now()
	m.compactionBaseline = m.now()
	m.mu.Unlock()
	return result, nil
}

// ForceArchive bypasses throttling for tests/tooling, per spec §4.7.
func (m *Manager) ForceArchive() (string, error) {
	content, err := m.reader.Read()
	if err != nil {
		return "", err
	}
	newContent, err := m.archiver.Archive(content)
	if err != nil {
		return "", err
	}
	if err := m.writer.Write(newContent); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.lastArchiveAt = m.now()
	m.mu.Unlock()
	return newContent, nil
}

// GetLastMaintenanceTime returns the most recent of the last compaction or
// archive time, per spec §4.7.
func (m *Manager) GetLastMaintenanceTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastCompactionAt.After(m.lastArchiveAt) {
		return m.lastCompactionAt
	}
	return m.lastArchiveAt
}
