package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Session is one playback session row. A session is active until its
// EndedAt is set; SyncedAt records the last successful server sync.
type Session struct {
	ID            string
	UserID        string
	LibraryItemID string
	EpisodeID     string
	Position      float64
	StartedAt     time.Time
	UpdatedAt     time.Time
	EndedAt       *time.Time
	SyncedAt      *time.Time
}

// Sessions provides database operations for playback sessions.
type Sessions struct {
	db *sql.DB
}

// NewSessions creates a session accessor for an existing handle.
func NewSessions(db *sql.DB) *Sessions {
	return &Sessions{db: db}
}

// Create starts a new session at the given position.
func (s *Sessions) Create(ctx context.Context, userID, libraryItemID, episodeID string, position float64) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		LibraryItemID: libraryItemID,
		EpisodeID:     episodeID,
		Position:      position,
		StartedAt:     now,
		UpdatedAt:     now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO playback_sessions (id, user_id, library_item_id, episode_id, position, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.UserID, sess.LibraryItemID, sess.EpisodeID, sess.Position, now.Unix(), now.Unix())
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// UpdatePosition advances an active session. Ended sessions are left
// untouched.
func (s *Sessions) UpdatePosition(ctx context.Context, id string, position float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE playback_sessions
		SET position = ?, updated_at = ?
		WHERE id = ? AND ended_at IS NULL
	`, position, time.Now().Unix(), id)
	return err
}

// End closes a session at its final position. Ending an already ended
// session is a no-op.
func (s *Sessions) End(ctx context.Context, id string, position float64) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		UPDATE playback_sessions
		SET position = ?, updated_at = ?, ended_at = ?
		WHERE id = ? AND ended_at IS NULL
	`, position, now, now, id)
	return err
}

// MarkSynced records a successful server sync.
func (s *Sessions) MarkSynced(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE playback_sessions SET synced_at = ? WHERE id = ?
	`, time.Now().Unix(), id)
	return err
}

// Active returns the most recently updated un-ended session for the
// item, or nil when none exists.
func (s *Sessions) Active(ctx context.Context, userID, libraryItemID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, library_item_id, episode_id, position, started_at, updated_at, ended_at, synced_at
		FROM playback_sessions
		WHERE user_id = ? AND library_item_id = ? AND ended_at IS NULL
		ORDER BY updated_at DESC
		LIMIT 1
	`, userID, libraryItemID)
	return scanSession(row)
}

// Get returns a session by id, or nil when it does not exist.
func (s *Sessions) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, library_item_id, episode_id, position, started_at, updated_at, ended_at, synced_at
		FROM playback_sessions
		WHERE id = ?
	`, id)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	var startedAt, updatedAt int64
	var endedAt, syncedAt sql.NullInt64
	err := row.Scan(&sess.ID, &sess.UserID, &sess.LibraryItemID, &sess.EpisodeID,
		&sess.Position, &startedAt, &updatedAt, &endedAt, &syncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess.StartedAt = time.Unix(startedAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)
	sess.EndedAt = unixPtr(endedAt)
	sess.SyncedAt = unixPtr(syncedAt)
	return &sess, nil
}
