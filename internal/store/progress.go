package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// MediaProgress is the saved listening progress for one playable unit.
// Progress outlives sessions: it is what resumes an item days later.
type MediaProgress struct {
	UserID        string
	LibraryItemID string
	EpisodeID     string
	Position      float64
	Duration      float64
	IsFinished    bool
	UpdatedAt     time.Time
}

// Progress provides database operations for media progress.
type Progress struct {
	db *sql.DB
}

// NewProgress creates a progress accessor for an existing handle.
func NewProgress(db *sql.DB) *Progress {
	return &Progress{db: db}
}

// Upsert inserts or replaces the progress row for the record's playable
// unit. A zero UpdatedAt means now. Upserting the same record twice is
// idempotent.
func (p *Progress) Upsert(ctx context.Context, rec MediaProgress) error {
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO media_progress (user_id, library_item_id, episode_id, position, duration, is_finished, last_update)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, library_item_id, episode_id) DO UPDATE SET
			position = excluded.position,
			duration = excluded.duration,
			is_finished = excluded.is_finished,
			last_update = excluded.last_update
	`, rec.UserID, rec.LibraryItemID, rec.EpisodeID, rec.Position, rec.Duration,
		boolToInt(rec.IsFinished), updatedAt.UnixMilli())
	return err
}

// Get returns the progress for one playable unit, or nil when none is
// saved.
func (p *Progress) Get(ctx context.Context, userID, libraryItemID, episodeID string) (*MediaProgress, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT user_id, library_item_id, episode_id, position, duration, is_finished, last_update
		FROM media_progress
		WHERE user_id = ? AND library_item_id = ? AND episode_id = ?
	`, userID, libraryItemID, episodeID)
	return scanProgress(row)
}

// Latest returns the most recently updated progress row for the item
// across episodes, or nil when the item has none.
func (p *Progress) Latest(ctx context.Context, userID, libraryItemID string) (*MediaProgress, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT user_id, library_item_id, episode_id, position, duration, is_finished, last_update
		FROM media_progress
		WHERE user_id = ? AND library_item_id = ?
		ORDER BY last_update DESC
		LIMIT 1
	`, userID, libraryItemID)
	return scanProgress(row)
}

// MarkFinished flags the playable unit as finished.
func (p *Progress) MarkFinished(ctx context.Context, userID, libraryItemID, episodeID string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE media_progress
		SET is_finished = 1, last_update = ?
		WHERE user_id = ? AND library_item_id = ? AND episode_id = ?
	`, time.Now().UnixMilli(), userID, libraryItemID, episodeID)
	return err
}

func scanProgress(row *sql.Row) (*MediaProgress, error) {
	var rec MediaProgress
	var finished int
	var lastUpdate int64
	err := row.Scan(&rec.UserID, &rec.LibraryItemID, &rec.EpisodeID,
		&rec.Position, &rec.Duration, &finished, &lastUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.IsFinished = finished != 0
	rec.UpdatedAt = time.UnixMilli(lastUpdate)
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
