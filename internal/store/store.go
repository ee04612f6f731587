// Package store persists playback sessions, media progress and cached
// library items in a local SQLite database.
package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	dbutil "github.com/lvaillant/cadenza/internal/db"
)

const currentSchemaVersion = 4

// Manager owns the database handle and hands out table-scoped accessors.
type Manager struct {
	db *sql.DB
}

// Open opens (or creates) the database at the given path and brings the
// schema up to date.
func Open(path string) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Manager{db: db}, nil
}

// Close closes the underlying database.
func (m *Manager) Close() error {
	return m.db.Close()
}

// DB exposes the raw handle for packages composing their own queries.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Sessions returns the playback session accessor.
func (m *Manager) Sessions() *Sessions {
	return &Sessions{db: m.db}
}

// Progress returns the media progress accessor.
func (m *Manager) Progress() *Progress {
	return &Progress{db: m.db}
}

// Items returns the cached library item accessor.
func (m *Manager) Items() *Items {
	return &Items{db: m.db}
}

func initSchema(db *sql.DB) error {
	err := dbutil.WithTx(db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS playback_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			library_item_id TEXT NOT NULL,
			episode_id TEXT NOT NULL DEFAULT '',
			position REAL NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			ended_at INTEGER,
			synced_at INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_active
			ON playback_sessions(user_id, library_item_id, updated_at DESC);

		CREATE TABLE IF NOT EXISTS media_progress (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			library_item_id TEXT NOT NULL,
			episode_id TEXT NOT NULL DEFAULT '',
			position REAL NOT NULL DEFAULT 0,
			duration REAL NOT NULL DEFAULT 0,
			is_finished INTEGER NOT NULL DEFAULT 0,
			last_update INTEGER NOT NULL,
			UNIQUE(user_id, library_item_id, episode_id)
		);

		CREATE INDEX IF NOT EXISTS idx_progress_item
			ON media_progress(user_id, library_item_id, last_update DESC);

		CREATE TABLE IF NOT EXISTS library_items (
			id TEXT NOT NULL,
			episode_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			author TEXT,
			duration REAL NOT NULL DEFAULT 0,
			cover_path TEXT,
			chapters TEXT,
			last_played_at INTEGER,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (id, episode_id)
		);

		CREATE TABLE IF NOT EXISTS lastfm_session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			username TEXT NOT NULL,
			session_key TEXT NOT NULL,
			linked_at INTEGER NOT NULL
		);
	`); err != nil {
			return err
		}

		_, err := tx.Exec(`
			INSERT OR IGNORE INTO schema_version (version) VALUES (?)
		`, currentSchemaVersion)
		return err
	})
	if err != nil {
		return err
	}

	// Migration: add synced_at column if missing
	_, _ = db.Exec(`ALTER TABLE playback_sessions ADD COLUMN synced_at INTEGER`)

	// Migration: add cover_path and last_played_at columns if missing
	_, _ = db.Exec(`ALTER TABLE library_items ADD COLUMN cover_path TEXT`)
	_, _ = db.Exec(`ALTER TABLE library_items ADD COLUMN last_played_at INTEGER`)

	return nil
}

// unixPtr converts a nullable unix-seconds column to a time pointer.
func unixPtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0)
	return &t
}
