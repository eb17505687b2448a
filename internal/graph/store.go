// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package graph is the knowledge graph the query handler searches. Concepts,
// the relations between them, and their sources live in a SQLite database
// with an FTS5 index over concept text.
package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/explainer-engine/internal/slug"
	"github.com/pdiddy/explainer-engine/pkg/types"
)

const (
	conceptsDir = "concepts"
	indexDir    = "index"
	dbFile      = "graph.db"

	// putPrefix marks indexing_status rows for concepts added without a file.
	putPrefix = "put:"
)

// ErrNoConcept is returned when a search matches nothing or a concept ID
// is not in the graph.
var ErrNoConcept = errors.New("no matching concept")

// Store manages the knowledge graph SQLite database.
type Store struct {
	db         *sql.DB
	graphDir   string
	maxResults int
	maxRelated int
}

// NewStore opens or creates the graph database at graphDir/index/graph.db
// and creates the schema if it does not exist.
func NewStore(cfg types.GraphConfig) (*Store, error) {
	dbDir := filepath.Join(cfg.GraphDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:         db,
		graphDir:   cfg.GraphDir,
		maxResults: cfg.MaxResults,
		maxRelated: cfg.MaxRelated,
	}
	if s.maxResults <= 0 {
		s.maxResults = 20
	}
	if s.maxRelated <= 0 {
		s.maxRelated = 8
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS concepts (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			summary TEXT,
			body TEXT,
			tags TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS relations (
			from_id TEXT NOT NULL REFERENCES concepts(id) ON DELETE CASCADE,
			to_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			note TEXT,
			PRIMARY KEY (from_id, to_id, kind)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relations_to ON relations(to_id)`,
		`CREATE TABLE IF NOT EXISTS sources (
			concept_id TEXT NOT NULL REFERENCES concepts(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			url TEXT NOT NULL,
			PRIMARY KEY (concept_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS indexing_status (
			file TEXT PRIMARY KEY,
			concept_id TEXT NOT NULL,
			file_mod_time TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='concepts_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE concepts_fts USING fts5(name, summary, body, content=concepts, content_rowid=rowid)`,
			`CREATE TRIGGER concepts_ai AFTER INSERT ON concepts BEGIN
				INSERT INTO concepts_fts(rowid, name, summary, body) VALUES (new.rowid, new.name, new.summary, new.body);
			END`,
			`CREATE TRIGGER concepts_ad AFTER DELETE ON concepts BEGIN
				INSERT INTO concepts_fts(concepts_fts, rowid, name, summary, body) VALUES('delete', old.rowid, old.name, old.summary, old.body);
			END`,
			`CREATE TRIGGER concepts_au AFTER UPDATE ON concepts BEGIN
				INSERT INTO concepts_fts(concepts_fts, rowid, name, summary, body) VALUES('delete', old.rowid, old.name, old.summary, old.body);
				INSERT INTO concepts_fts(rowid, name, summary, body) VALUES (new.rowid, new.name, new.summary, new.body);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// ConceptFile is the on-disk YAML form of one concept under graphDir/concepts/.
type ConceptFile struct {
	// ID overrides the slug derived from Name.
	ID      string         `yaml:"id,omitempty"`
	Name    string         `yaml:"name"`
	Summary string         `yaml:"summary"`
	Body    string         `yaml:"body"`
	Tags    []string       `yaml:"tags,omitempty"`
	Related []RelationFile `yaml:"related,omitempty"`
	Sources []string       `yaml:"sources,omitempty"`
}

// RelationFile is an outgoing edge declared inside a ConceptFile. To is a
// concept ID or name; names are slugified.
type RelationFile struct {
	To   string             `yaml:"to"`
	Kind types.RelationKind `yaml:"kind,omitempty"`
	Note string             `yaml:"note,omitempty"`
}

// conceptID returns the explicit ID or the slug of the name.
func (f ConceptFile) conceptID() string {
	if f.ID != "" {
		return slug.Make(f.ID)
	}
	return slug.Make(f.Name)
}

// IngestSummary holds counts from a graph indexing run.
type IngestSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int

	// Removed counts concepts dropped because their file disappeared.
	Removed int
}

// Total returns the number of concept files processed.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// Changed reports whether the run wrote anything to the database.
func (s IngestSummary) Changed() bool {
	return s.Indexed > 0 || s.Updated > 0 || s.Removed > 0
}

// Ingest reads concept YAML files from graphDir/concepts/ and populates the
// database. Files whose modification time matches the last indexed run are
// skipped. Per-file progress and a final summary are written to w. After a
// run that changed something, export.yaml is rewritten.
func (s *Store) Ingest(ctx context.Context, w io.Writer) (IngestSummary, error) {
	dir := filepath.Join(s.graphDir, conceptsDir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("reading concepts directory %s: %w", dir, err)
	}

	var summary IngestSummary
	seen := make(map[string]bool)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		seen[name] = true

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", name, err)
			summary.Failed++
			continue
		}
		modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

		var storedModTime string
		err = s.db.QueryRowContext(ctx,
			`SELECT file_mod_time FROM indexing_status WHERE file = ?`, name,
		).Scan(&storedModTime)

		if err == nil && storedModTime == modTime {
			fmt.Fprintf(w, "skipped %s\n", name)
			summary.Skipped++
			continue
		}
		isUpdate := err == nil

		cf, err := readConceptFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", name, err)
			summary.Failed++
			continue
		}

		if err := s.ingestConcept(ctx, name, cf, modTime); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", name, err)
			summary.Failed++
			continue
		}

		if isUpdate {
			fmt.Fprintf(w, "updated %s (%s)\n", name, cf.conceptID())
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexing %s (%s)\n", name, cf.conceptID())
			summary.Indexed++
		}
	}

	removed, err := s.pruneRemoved(ctx, seen, w)
	if err != nil {
		return summary, err
	}
	summary.Removed = removed

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d, removed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed, summary.Removed)

	if summary.Changed() {
		if err := s.ExportYAML(ctx); err != nil {
			fmt.Fprintf(w, "warning: export.yaml write failed: %v\n", err)
		}
	}

	return summary, nil
}

// pruneRemoved drops concepts whose file is no longer in the concepts
// directory. Concepts added with Put have no file and are kept, as are IDs
// still defined by another file. Relations and sources go with the concept.
func (s *Store) pruneRemoved(ctx context.Context, seen map[string]bool, w io.Writer) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file, concept_id FROM indexing_status`)
	if err != nil {
		return 0, fmt.Errorf("listing indexed files: %w", err)
	}
	type status struct{ file, id string }
	var gone []status
	live := make(map[string]bool)
	for rows.Next() {
		var st status
		if err := rows.Scan(&st.file, &st.id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("reading indexing status: %w", err)
		}
		if seen[st.file] || strings.HasPrefix(st.file, putPrefix) {
			live[st.id] = true
			continue
		}
		gone = append(gone, st)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("reading indexing status: %w", err)
	}
	if len(gone) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	removed := 0
	for _, st := range gone {
		if _, err := tx.ExecContext(ctx, `DELETE FROM indexing_status WHERE file = ?`, st.file); err != nil {
			return 0, fmt.Errorf("clearing status for %s: %w", st.file, err)
		}
		if live[st.id] {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM concepts WHERE id = ?`, st.id); err != nil {
			return 0, fmt.Errorf("removing concept %s: %w", st.id, err)
		}
		fmt.Fprintf(w, "removed %s (%s)\n", st.file, st.id)
		removed++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing removals: %w", err)
	}
	return removed, nil
}

// readConceptFile parses and validates one concept file.
func readConceptFile(path string) (ConceptFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ConceptFile{}, err
	}
	var cf ConceptFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return ConceptFile{}, fmt.Errorf("parse error: %w", err)
	}
	if strings.TrimSpace(cf.Name) == "" {
		return ConceptFile{}, fmt.Errorf("concept has no name")
	}
	if cf.conceptID() == "" {
		return ConceptFile{}, fmt.Errorf("concept name %q yields an empty ID", cf.Name)
	}
	return cf, nil
}

func (s *Store) ingestConcept(ctx context.Context, file string, cf ConceptFile, modTime string) error {
	id := cf.conceptID()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// A file that used to define a different concept drops the old one.
	var previousID string
	err = tx.QueryRowContext(ctx,
		`SELECT concept_id FROM indexing_status WHERE file = ?`, file,
	).Scan(&previousID)
	if err == nil && previousID != id {
		if _, err := tx.ExecContext(ctx, `DELETE FROM concepts WHERE id = ?`, previousID); err != nil {
			return fmt.Errorf("deleting renamed concept %s: %w", previousID, err)
		}
	}

	tagsJSON, _ := json.Marshal(cf.Tags)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO concepts (id, name, summary, body, tags) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, summary=excluded.summary, body=excluded.body, tags=excluded.tags`,
		id, strings.TrimSpace(cf.Name), strings.TrimSpace(cf.Summary), strings.TrimSpace(cf.Body), string(tagsJSON),
	)
	if err != nil {
		return fmt.Errorf("upserting concept: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM relations WHERE from_id = ?`, id); err != nil {
		return fmt.Errorf("deleting old relations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE concept_id = ?`, id); err != nil {
		return fmt.Errorf("deleting old sources: %w", err)
	}

	for _, r := range cf.Related {
		to := slug.Make(r.To)
		if to == "" || to == id {
			continue
		}
		kind := r.Kind
		if kind == "" {
			kind = types.RelationRelated
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO relations (from_id, to_id, kind, note) VALUES (?, ?, ?, ?)`,
			id, to, string(kind), r.Note,
		)
		if err != nil {
			return fmt.Errorf("inserting relation %s -> %s: %w", id, to, err)
		}
	}

	for i, u := range cf.Sources {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sources (concept_id, position, url) VALUES (?, ?, ?)`, id, i, u,
		); err != nil {
			return fmt.Errorf("inserting source: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO indexing_status (file, concept_id, file_mod_time) VALUES (?, ?, ?)
		 ON CONFLICT(file) DO UPDATE SET concept_id=excluded.concept_id, file_mod_time=excluded.file_mod_time`,
		file, id, modTime,
	)
	if err != nil {
		return fmt.Errorf("updating indexing status: %w", err)
	}

	return tx.Commit()
}

// Put inserts or replaces a single concept without going through a file.
// It is used by tests and by callers that build graphs programmatically.
func (s *Store) Put(ctx context.Context, cf ConceptFile) (string, error) {
	if strings.TrimSpace(cf.Name) == "" {
		return "", fmt.Errorf("concept has no name")
	}
	id := cf.conceptID()
	if err := s.ingestConcept(ctx, putPrefix+id, cf, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return "", err
	}
	return id, nil
}
