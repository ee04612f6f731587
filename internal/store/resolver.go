package store

import (
	"context"

	"github.com/lvaillant/cadenza/internal/playback"
)

// PositionSource adapts the sessions and progress tables to the
// coordinator's position resolution lookups, bound to one user.
type PositionSource struct {
	sessions *Sessions
	progress *Progress
	userID   string
}

var _ playback.PositionSources = (*PositionSource)(nil)

// NewPositionSource binds the manager's tables to the given user.
func NewPositionSource(m *Manager, userID string) *PositionSource {
	return &PositionSource{
		sessions: m.Sessions(),
		progress: m.Progress(),
		userID:   userID,
	}
}

// ActiveSession returns the newest un-ended session for the item.
func (s *PositionSource) ActiveSession(ctx context.Context, libraryItemID string) (*playback.SessionRecord, error) {
	sess, err := s.sessions.Active(ctx, s.userID, libraryItemID)
	if err != nil || sess == nil {
		return nil, err
	}
	return &playback.SessionRecord{
		Position:  sess.Position,
		UpdatedAt: sess.UpdatedAt,
	}, nil
}

// SavedProgress returns the newest progress row for the item across
// episodes.
func (s *PositionSource) SavedProgress(ctx context.Context, libraryItemID string) (*playback.ProgressRecord, error) {
	rec, err := s.progress.Latest(ctx, s.userID, libraryItemID)
	if err != nil || rec == nil {
		return nil, err
	}
	return &playback.ProgressRecord{
		Position:   rec.Position,
		IsFinished: rec.IsFinished,
		UpdatedAt:  rec.UpdatedAt,
	}, nil
}
