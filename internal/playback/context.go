package playback

import "time"

// StateContext is the coordinator's single mutable record of playback
// reality. It is owned by the coordinator, mutated only inside the
// serialized event loop, and handed out exclusively as snapshot copies.
type StateContext struct {
	CurrentState  State
	PreviousState State

	CurrentTrack   *Track
	CurrentChapter *Chapter

	Position float64 // seconds, media time
	Duration float64 // seconds

	PlaybackRate float64
	Volume       float64

	SessionID        string
	SessionStartTime time.Time // zero when no session

	LastPositionUpdate time.Time

	IsPlaying      bool
	IsBuffering    bool
	IsSeeking      bool
	IsLoadingTrack bool

	// PreSeekState remembers the state a seek interrupted so playback can
	// resume after the seek settles. Nil outside a seek.
	PreSeekState *State

	LastServerSync      time.Time
	PendingSyncPosition *float64

	LastError string
}

// newStateContext returns the initial context: IDLE, nominal rate and
// volume, optional fields empty.
func newStateContext() *StateContext {
	return &StateContext{
		CurrentState:  StateIdle,
		PreviousState: StateIdle,
		PlaybackRate:  1.0,
		Volume:        1.0,
	}
}

// Snapshot returns a copy deep enough that callers can never observe a
// partial mutation or alias the coordinator's own pointers.
func (c *StateContext) Snapshot() StateContext {
	out := *c
	if c.CurrentTrack != nil {
		t := c.CurrentTrack.Clone()
		out.CurrentTrack = &t
	}
	if c.CurrentChapter != nil {
		ch := *c.CurrentChapter
		out.CurrentChapter = &ch
	}
	if c.PreSeekState != nil {
		s := *c.PreSeekState
		out.PreSeekState = &s
	}
	if c.PendingSyncPosition != nil {
		p := *c.PendingSyncPosition
		out.PendingSyncPosition = &p
	}
	return out
}
