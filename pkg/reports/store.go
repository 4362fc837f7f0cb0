// Package reports persists governance (Superego audit) reports as Markdown
// files under reports/<id>.md — the durable source of truth — indexed in a
// small SQLite table for list/query without a full directory scan, per
// spec §3's supplemented data model.
package reports

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
	_ "modernc.org/sqlite"

	"github.com/sipeed/cortexd/pkg/logger"
)

// Report is one persisted governance audit record.
type Report struct {
	ID          string
	Cycle       int64
	GeneratedAt time.Time
	Findings    []string
	Summary     string
	Path        string
}

// Store writes report bodies to dir/<id>.md and maintains a SQLite index
// at dir/index.sqlite. The Markdown files are authoritative; the index is
// a disposable accelerator rebuildable by rescanning dir.
type Store struct {
	dir string
	db  *sql.DB
}

// Open creates dir if needed, opens (or creates) the SQLite index, and
// rebuilds it from disk if it's empty but reports/ already has files — so
// the index can never diverge from the Markdown source of truth in a way
// that loses data, per spec §9.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("reports: creating %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "index.sqlite"))
	if err != nil {
		return nil, fmt.Errorf("reports: opening index: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			cycle INTEGER NOT NULL,
			generated_at TEXT NOT NULL,
			summary TEXT NOT NULL,
			path TEXT NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("reports: creating table: %w", err)
	}

	s := &Store{dir: dir, db: db}
	if err := s.rebuildIfEmpty(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying SQLite handle.
func (s *Store) Close() error { return s.db.Close() }

// Save writes findings+summary to a new reports/<id>.md file and records
// it in the index. The Markdown body matches the format described in
// spec §6's governance report section.
func (s *Store) Save(cycle int64, generatedAt time.Time, summary string, findings []string) (Report, error) {
	id := uuid.NewString()
	path := filepath.Join(s.dir, id+".md")

	var b strings.Builder
	fmt.Fprintf(&b, "# Governance Report %s\n\n", id)
	fmt.Fprintf(&b, "Cycle: %d\nGenerated: %s\n\n", cycle, generatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "## Summary\n\n%s\n\n## Findings\n\n", summary)
	for _, f := range findings {
		fmt.Fprintf(&b, "- %s\n", f)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return Report{}, fmt.Errorf("reports: writing %s: %w", path, err)
	}

	if err := s.writeSidecar(id, cycle, generatedAt, summary, findings); err != nil {
		return Report{}, err
	}

	if _, err := s.db.ExecContext(context.Background(),
		`INSERT INTO reports (id, cycle, generated_at, summary, path) VALUES (?, ?, ?, ?, ?)`,
		id, cycle, generatedAt.UTC().Format(time.RFC3339), summary, path); err != nil {
		return Report{}, fmt.Errorf("reports: indexing %s: %w", id, err)
	}

	return Report{ID: id, Cycle: cycle, GeneratedAt: generatedAt.UTC(), Findings: findings, Summary: summary, Path: path}, nil
}

// writeSidecar writes reports/<id>.json next to the Markdown body: a
// machine-readable twin built field-by-field with sjson rather than a
// marshaled struct, so external tooling can consume it without depending
// on this package's Report type.
func (s *Store) writeSidecar(id string, cycle int64, generatedAt time.Time, summary string, findings []string) error {
	doc := "{}"
	var err error
	for _, set := range []struct {
		path string
		val  any
	}{
		{"id", id},
		{"cycle", cycle},
		{"generatedAt", generatedAt.UTC().Format(time.RFC3339)},
		{"summary", summary},
		{"findings", findings},
	} {
		doc, err = sjson.Set(doc, set.path, set.val)
		if err != nil {
			return fmt.Errorf("reports: building sidecar for %s: %w", id, err)
		}
	}
	path := filepath.Join(s.dir, id+".json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("reports: writing sidecar %s: %w", path, err)
	}
	return nil
}

// List returns reports newest-first, optionally limited to `limit` rows
// (0 means unlimited).
func (s *Store) List(limit int) ([]Report, error) {
	query := `SELECT id, cycle, generated_at, summary, path FROM reports ORDER BY generated_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("reports: listing: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var r Report
		var generatedAt string
		if err := rows.Scan(&r.ID, &r.Cycle, &generatedAt, &r.Summary, &r.Path); err != nil {
			return nil, fmt.Errorf("reports: scanning row: %w", err)
		}
		r.GeneratedAt, _ = time.Parse(time.RFC3339, generatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get reads one report's full Markdown body by id.
func (s *Store) Get(id string) (string, error) {
	row := s.db.QueryRowContext(context.Background(), `SELECT path FROM reports WHERE id = ?`, id)
	var path string
	if err := row.Scan(&path); err != nil {
		return "", fmt.Errorf("reports: %s not found: %w", id, err)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reports: reading %s: %w", path, err)
	}
	return string(body), nil
}

// rebuildIfEmpty scans dir for *.md files and re-indexes any that are
// missing from the table, recovering from a deleted or corrupted index
// without losing the Markdown source of truth.
func (s *Store) rebuildIfEmpty() error {
	var count int
	if err := s.db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM reports`).Scan(&count); err != nil {
		return fmt.Errorf("reports: counting index: %w", err)
	}
	if count > 0 {
		return nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("reports: scanning %s: %w", s.dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		id := strings.TrimSuffix(name, ".md")
		path := filepath.Join(s.dir, name)
		body, err := os.ReadFile(path)
		if err != nil {
			logger.WarnCF("reports.store", "skipping unreadable report during rebuild",
				map[string]any{"path": path, "error": err.Error()})
			continue
		}
		cycle, generatedAt, summary := parseHeader(string(body))
		if _, err := s.db.ExecContext(context.Background(),
			`INSERT OR IGNORE INTO reports (id, cycle, generated_at, summary, path) VALUES (?, ?, ?, ?, ?)`,
			id, cycle, generatedAt, summary, path); err != nil {
			return fmt.Errorf("reports: reindexing %s: %w", id, err)
		}
	}

	if len(names) > 0 {
		logger.InfoCF("reports.store", "rebuilt index from disk", map[string]any{"count": len(names)})
	}
	return nil
}

// parseHeader extracts cycle/generated/summary back out of the Markdown
// body Save wrote, tolerating any body that doesn't match (a report
// written by a future format still gets indexed, just with zero values).
func parseHeader(body string) (cycle int64, generatedAt string, summary string) {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "Cycle: "):
			fmt.Sscanf(line, "Cycle: %d", &cycle)
		case strings.HasPrefix(line, "Generated: "):
			generatedAt = strings.TrimPrefix(line, "Generated: ")
		case strings.TrimSpace(line) == "## Summary" && i+2 < len(lines):
			summary = strings.TrimSpace(lines[i+2])
		}
	}
	if generatedAt == "" {
		generatedAt = time.Unix(0, 0).UTC().Format(time.RFC3339)
	}
	return cycle, generatedAt, summary
}
