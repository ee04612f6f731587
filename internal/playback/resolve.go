package playback

import (
	"context"
	"math"
	"time"

	"github.com/lvaillant/cadenza/internal/errmsg"
)

// ResumeSource names which source produced the canonical position.
type ResumeSource string

const (
	SourceStore         ResumeSource = "store"
	SourceAsyncStorage  ResumeSource = "asyncStorage"
	SourceActiveSession ResumeSource = "activeSession"
	SourceSavedProgress ResumeSource = "savedProgress"
)

// ResumePositionInfo is the result of multi-source position resolution.
// Computed on demand, never persisted.
type ResumePositionInfo struct {
	Position float64
	Source   ResumeSource

	// AuthoritativePosition is set when a server-derived record (session
	// or saved progress) decided the outcome.
	AuthoritativePosition *float64

	// AsyncStoragePosition reports what the local scalar held, whether or
	// not it won.
	AsyncStoragePosition *float64
}

// SessionRecord is an active playback session as read from durable
// storage.
type SessionRecord struct {
	Position  float64
	UpdatedAt time.Time
}

// ProgressRecord is saved media progress as read from durable storage.
type ProgressRecord struct {
	Position   float64
	IsFinished bool
	UpdatedAt  time.Time
}

// PositionSources looks up the durable position records for the
// authenticated user. A nil record with a nil error means "no record".
type PositionSources interface {
	ActiveSession(ctx context.Context, libraryItemID string) (*SessionRecord, error)
	SavedProgress(ctx context.Context, libraryItemID string) (*ProgressRecord, error)
}

// LocalPosition is the locally persisted scalar, keyed by a single fixed
// key outside this interface.
type LocalPosition interface {
	Get() (float64, bool, error)
	Set(position float64) error
	Clear() error
}

// ResolveCanonicalPosition determines where playback of the given item
// should resume, consulting in descending authority the in-memory
// context, the locally persisted scalar, and the user's active session
// and saved progress. Every lookup may fail independently; failures
// degrade to the next-lower-authority source and never abort.
//
// The chosen position is written back to the local scalar when it
// differs from what was stored, and a POSITION_RECONCILED event is
// dispatched so the outcome flows through the normal pipeline.
func (c *Coordinator) ResolveCanonicalPosition(ctx context.Context, libraryItemID string) ResumePositionInfo {
	info := ResumePositionInfo{Source: SourceStore}

	// (a) in-memory value, when the context is already about this item.
	snap := c.Context()
	if snap.CurrentTrack != nil && snap.CurrentTrack.LibraryItemID == libraryItemID {
		info.Position = snap.Position
	}

	// (b) locally persisted scalar overrides.
	var localHeld *float64
	if c.local != nil {
		v, ok, err := c.local.Get()
		if err != nil {
			c.log.Warn(errmsg.Format(errmsg.OpPositionLoad, err))
		} else if ok {
			info.Position = v
			info.Source = SourceAsyncStorage
			held := v
			localHeld = &held
			stored := v
			info.AsyncStoragePosition = &stored
		}
	}

	// (c) durable records.
	var session *SessionRecord
	var progress *ProgressRecord
	if c.sources != nil {
		var err error
		session, err = c.sources.ActiveSession(ctx, libraryItemID)
		if err != nil {
			c.log.Warn(errmsg.Format(errmsg.OpResolvePosition, err))
			session = nil
		}
		progress, err = c.sources.SavedProgress(ctx, libraryItemID)
		if err != nil {
			c.log.Warn(errmsg.Format(errmsg.OpResolvePosition, err))
			progress = nil
		}
	}

	switch {
	case progress != nil && progress.IsFinished:
		// A finished item never resumes from where it ended.
		info.Position = 0
		info.Source = SourceSavedProgress
		zero := 0.0
		info.AuthoritativePosition = &zero
		if c.local != nil && localHeld != nil {
			if err := c.local.Clear(); err != nil {
				c.log.Warn(errmsg.Format(errmsg.OpPositionClear, err))
			}
		}
		c.Dispatch(PositionReconciled{Position: 0})
		return info

	case session != nil:
		pos, source := c.chooseSessionPosition(session, progress, localHeld)
		info.Position = pos
		info.Source = source
		if source == SourceActiveSession || source == SourceSavedProgress {
			chosen := pos
			info.AuthoritativePosition = &chosen
		}

	case progress != nil:
		info.Position = progress.Position
		info.Source = SourceSavedProgress
		chosen := progress.Position
		info.AuthoritativePosition = &chosen
	}

	c.writeBack(info.Position, localHeld)
	c.Dispatch(PositionReconciled{Position: info.Position})
	return info
}

// chooseSessionPosition arbitrates between an active session, saved
// progress and the local scalar when a session exists.
func (c *Coordinator) chooseSessionPosition(session *SessionRecord, progress *ProgressRecord, localHeld *float64) (float64, ResumeSource) {
	minPlausible := c.resCfg.MinPlausible

	if session.Position < minPlausible {
		// Native players briefly report position 0 before seeking to the
		// real resume point; only trust that when nothing better exists.
		if progress != nil && progress.Position >= minPlausible {
			return progress.Position, SourceSavedProgress
		}
		if localHeld != nil && *localHeld >= minPlausible {
			return *localHeld, SourceAsyncStorage
		}
		return session.Position, SourceActiveSession
	}

	if progress != nil && progress.Position >= minPlausible {
		if math.Abs(session.Position-progress.Position) > c.resCfg.LargeDiscrepancy {
			// Large disagreement: the most recently updated record wins.
			if progress.UpdatedAt.After(session.UpdatedAt) {
				return progress.Position, SourceSavedProgress
			}
			return session.Position, SourceActiveSession
		}
	}

	// Sessions are updated more frequently, so they win close calls.
	return session.Position, SourceActiveSession
}

// writeBack persists the chosen position to the local scalar when it
// differs from what was already stored.
func (c *Coordinator) writeBack(position float64, localHeld *float64) {
	if c.local == nil {
		return
	}
	if localHeld != nil && *localHeld == position {
		return
	}
	if err := c.local.Set(position); err != nil {
		c.log.Warn(errmsg.Format(errmsg.OpPositionSave, err))
	}
}
