package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	dbutil "github.com/lvaillant/cadenza/internal/db"
	"github.com/lvaillant/cadenza/internal/playback"
)

// Items caches library item metadata locally so the daemon can rebuild
// the last played track at startup without the media server.
type Items struct {
	db *sql.DB
}

// NewItems creates an item accessor for an existing handle.
func NewItems(db *sql.DB) *Items {
	return &Items{db: db}
}

// Upsert stores or refreshes the cached metadata for a track.
func (i *Items) Upsert(ctx context.Context, track playback.Track) error {
	var chapters []byte
	if len(track.Chapters) > 0 {
		var err error
		chapters, err = json.Marshal(track.Chapters)
		if err != nil {
			return err
		}
	}
	_, err := i.db.ExecContext(ctx, `
		INSERT INTO library_items (id, episode_id, title, author, duration, cover_path, chapters, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, episode_id) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			duration = excluded.duration,
			cover_path = excluded.cover_path,
			chapters = excluded.chapters,
			updated_at = excluded.updated_at
	`, track.LibraryItemID, track.EpisodeID, track.Title, nullString(track.Author),
		track.Duration, nullString(track.CoverPath), nullBytes(chapters), time.Now().Unix())
	return err
}

// Get returns the cached track for one playable unit, or nil when it is
// not cached.
func (i *Items) Get(ctx context.Context, libraryItemID, episodeID string) (*playback.Track, error) {
	row := i.db.QueryRowContext(ctx, `
		SELECT id, episode_id, title, author, duration, cover_path, chapters
		FROM library_items
		WHERE id = ? AND episode_id = ?
	`, libraryItemID, episodeID)
	return scanItem(row)
}

// TouchPlayed records that the playable unit just played.
func (i *Items) TouchPlayed(ctx context.Context, libraryItemID, episodeID string) error {
	_, err := i.db.ExecContext(ctx, `
		UPDATE library_items SET last_played_at = ? WHERE id = ? AND episode_id = ?
	`, time.Now().Unix(), libraryItemID, episodeID)
	return err
}

// LastPlayed returns the most recently played cached track, or nil when
// nothing has played yet.
func (i *Items) LastPlayed(ctx context.Context) (*playback.Track, error) {
	row := i.db.QueryRowContext(ctx, `
		SELECT id, episode_id, title, author, duration, cover_path, chapters
		FROM library_items
		WHERE last_played_at IS NOT NULL
		ORDER BY last_played_at DESC
		LIMIT 1
	`)
	return scanItem(row)
}

// List returns every cached item ordered by title.
func (i *Items) List(ctx context.Context) ([]playback.Track, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT id, episode_id, title, author, duration, cover_path, chapters
		FROM library_items
		ORDER BY title, episode_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []playback.Track
	for rows.Next() {
		var track playback.Track
		var author, coverPath sql.NullString
		var chapters []byte
		if err := rows.Scan(&track.LibraryItemID, &track.EpisodeID, &track.Title,
			&author, &track.Duration, &coverPath, &chapters); err != nil {
			return nil, err
		}
		track.Author = dbutil.NullStringValue(author)
		track.CoverPath = dbutil.NullStringValue(coverPath)
		if len(chapters) > 0 {
			if err := json.Unmarshal(chapters, &track.Chapters); err != nil {
				return nil, err
			}
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

// Delete removes one playable unit from the cache.
func (i *Items) Delete(ctx context.Context, libraryItemID, episodeID string) error {
	_, err := i.db.ExecContext(ctx, `
		DELETE FROM library_items WHERE id = ? AND episode_id = ?
	`, libraryItemID, episodeID)
	return err
}

func scanItem(row *sql.Row) (*playback.Track, error) {
	var track playback.Track
	var author, coverPath sql.NullString
	var chapters []byte
	err := row.Scan(&track.LibraryItemID, &track.EpisodeID, &track.Title,
		&author, &track.Duration, &coverPath, &chapters)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	track.Author = dbutil.NullStringValue(author)
	track.CoverPath = dbutil.NullStringValue(coverPath)
	if len(chapters) > 0 {
		if err := json.Unmarshal(chapters, &track.Chapters); err != nil {
			return nil, err
		}
	}
	return &track, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
