// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package storage persists rendered videos on the local filesystem and keeps
// a SQLite catalog of which query produced which video.
package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/explainer-engine/internal/slug"
	"github.com/pdiddy/explainer-engine/pkg/types"
)

const (
	videosDir   = "videos"
	catalogFile = "catalog.db"
	sidecarExt  = ".yaml"

	// timeLayout is fixed width so catalog timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// ErrNotFound is returned when no video has been saved for a query.
var ErrNotFound = errors.New("video not found")

// Record is a saved video together with the query it answers.
type Record struct {
	Query   string      `json:"query" yaml:"query"`
	Key     string      `json:"key" yaml:"key"`
	Video   types.Video `json:"video" yaml:"video"`
	SavedAt time.Time   `json:"saved_at" yaml:"saved_at"`
}

// FileStore saves videos under <storage-dir>/videos/<key>/, each with a
// <video-id>.yaml sidecar, and records them in <storage-dir>/catalog.db.
type FileStore struct {
	dir    string
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithLogger sets the logger used for save events.
func WithLogger(l *zap.Logger) Option {
	return func(s *FileStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewFileStore opens or creates the store rooted at cfg.StorageDir.
func NewFileStore(cfg types.StorageConfig, opts ...Option) (*FileStore, error) {
	if cfg.StorageDir == "" {
		return nil, fmt.Errorf("storage directory not configured")
	}
	if err := os.MkdirAll(filepath.Join(cfg.StorageDir, videosDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	dbPath := filepath.Join(cfg.StorageDir, catalogFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	s := &FileStore{
		dir:    cfg.StorageDir,
		db:     db,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		key TEXT NOT NULL,
		topic TEXT,
		path TEXT NOT NULL,
		format TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		checksum TEXT,
		duration_ms INTEGER NOT NULL,
		slide_count INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		saved_at TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating catalog schema: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_videos_query ON videos(query, saved_at)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating catalog index: %w", err)
	}

	return s, nil
}

// Close releases the catalog connection.
func (s *FileStore) Close() error {
	return s.db.Close()
}

// Key returns the directory name used for query: a readable slug plus a
// short hash of the exact query text.
func Key(query string) string {
	return slug.Hashed(query)
}

// Save copies the video file into the store and records it against query.
// The caller's Video is not modified; the stored copy points at the new
// location.
func (s *FileStore) Save(ctx context.Context, video types.Video, query string) error {
	if video.ID == "" {
		return fmt.Errorf("saving video: missing ID")
	}
	if video.Path == "" {
		return fmt.Errorf("saving video %s: missing path", video.ID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := Key(query)
	dir := filepath.Join(s.dir, videosDir, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating video directory: %w", err)
	}

	stored := video
	if stored.Format == "" {
		stored.Format = "mp4"
	}
	stored.Path = filepath.Join(dir, stored.ID+"."+stored.Format)

	sidecar := filepath.Join(dir, stored.ID+sidecarExt)

	// Nothing from a failed save is left behind in dir.
	saved := false
	defer func() {
		if saved {
			return
		}
		os.Remove(sidecar)
		os.Remove(stored.Path)
		os.Remove(dir) // only succeeds when empty
	}()

	sum, err := copyFile(video.Path, stored.Path)
	if err != nil {
		return fmt.Errorf("copying video %s: %w", video.ID, err)
	}
	if video.Checksum != "" && sum != video.Checksum {
		return fmt.Errorf("copying video %s: checksum mismatch: got %s, want %s", video.ID, sum, video.Checksum)
	}
	stored.Checksum = sum

	rec := Record{Query: query, Key: key, Video: stored, SavedAt: s.now().UTC()}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO videos
			(id, query, key, topic, path, format, size_bytes, checksum, duration_ms, slide_count, created_at, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, query, key, stored.Topic, stored.Path, stored.Format, stored.SizeBytes, stored.Checksum,
		stored.Duration.Milliseconds(), stored.SlideCount,
		stored.CreatedAt.UTC().Format(timeLayout), rec.SavedAt.Format(timeLayout),
	); err != nil {
		return fmt.Errorf("recording video %s: %w", stored.ID, err)
	}

	if err := writeSidecar(sidecar, rec); err != nil {
		if _, derr := s.db.ExecContext(context.WithoutCancel(ctx), `DELETE FROM videos WHERE id = ?`, stored.ID); derr != nil {
			s.logger.Error("could not roll back catalog row", zap.String("id", stored.ID), zap.Error(derr))
		}
		return fmt.Errorf("writing sidecar: %w", err)
	}
	saved = true

	s.logger.Info("video saved",
		zap.String("id", stored.ID),
		zap.String("key", key),
		zap.String("path", stored.Path),
		zap.Int64("size_bytes", stored.SizeBytes))
	return nil
}

// Lookup returns the most recently saved video for the exact query.
func (s *FileStore) Lookup(ctx context.Context, query string) (Record, error) {
	rows, err := s.db.QueryContext(ctx, selectRecords+` WHERE query = ? ORDER BY saved_at DESC, rowid DESC LIMIT 1`, query)
	if err != nil {
		return Record{}, fmt.Errorf("looking up %q: %w", query, err)
	}
	recs, err := scanRecords(rows)
	if err != nil {
		return Record{}, fmt.Errorf("looking up %q: %w", query, err)
	}
	if len(recs) == 0 {
		return Record{}, fmt.Errorf("%w: %q", ErrNotFound, query)
	}
	return recs[0], nil
}

// List returns saved videos newest first. A limit of zero or less returns
// all of them.
func (s *FileStore) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectRecords+` ORDER BY saved_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing videos: %w", err)
	}
	recs, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("listing videos: %w", err)
	}
	return recs, nil
}

const selectRecords = `SELECT id, query, key, topic, path, format, size_bytes, checksum,
	duration_ms, slide_count, created_at, saved_at FROM videos`

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var (
			r                  Record
			topic, checksum    sql.NullString
			durationMS         int64
			createdAt, savedAt string
		)
		if err := rows.Scan(&r.Video.ID, &r.Query, &r.Key, &topic, &r.Video.Path, &r.Video.Format,
			&r.Video.SizeBytes, &checksum, &durationMS, &r.Video.SlideCount, &createdAt, &savedAt); err != nil {
			return nil, err
		}
		r.Video.Topic = topic.String
		r.Video.Checksum = checksum.String
		r.Video.Duration = time.Duration(durationMS) * time.Millisecond
		r.Video.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		r.SavedAt, _ = time.Parse(timeLayout, savedAt)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// copyFile copies src to dst through a temporary file and returns the hex
// SHA-256 of the copied bytes.
func copyFile(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".partial-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), in); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeSidecar(path string, rec Record) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
