// Package session turns committed playback transitions into durable
// session and progress rows, and reports each flush outcome back onto
// the bus as sync events.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lvaillant/cadenza/internal/bus"
	"github.com/lvaillant/cadenza/internal/errmsg"
	"github.com/lvaillant/cadenza/internal/logging"
	"github.com/lvaillant/cadenza/internal/playback"
	"github.com/lvaillant/cadenza/internal/store"
)

// Options configures a Tracker.
type Options struct {
	Coordinator *playback.Coordinator
	Bus         *bus.Bus
	Store       *store.Manager
	UserID      string
	Interval    time.Duration // flush cadence, default 15s
	Log         *logrus.Entry
}

// Tracker follows the coordinator's committed transitions: a track load
// opens a session, periodic flushes persist its position and progress,
// and stops or end-of-file close it.
type Tracker struct {
	log      *logrus.Entry
	coord    *playback.Coordinator
	bus      *bus.Bus
	sessions *store.Sessions
	progress *store.Progress
	items    *store.Items
	userID   string
	interval time.Duration

	sub     *playback.Subscription
	done    chan struct{}
	stopped chan struct{}

	mu      sync.Mutex
	current *activeSession
}

// activeSession is the tracker's view of the session being written.
type activeSession struct {
	id       string
	track    playback.Track
	position float64
	duration float64
	dirty    bool
}

// New creates a tracker. Call Start to begin following the coordinator.
func New(opts Options) *Tracker {
	log := opts.Log
	if log == nil {
		log = logging.ForComponent(logging.Discard(), "session")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Tracker{
		log:      log,
		coord:    opts.Coordinator,
		bus:      opts.Bus,
		sessions: opts.Store.Sessions(),
		progress: opts.Store.Progress(),
		items:    opts.Store.Items(),
		userID:   opts.UserID,
		interval: interval,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start subscribes to the coordinator and launches the tracking loop.
func (t *Tracker) Start() {
	t.sub = t.coord.Subscribe()
	go t.run()
}

// Close ends the current session, if any, and stops the loop.
func (t *Tracker) Close() {
	close(t.done)
	<-t.stopped
	t.coord.Unsubscribe(t.sub)
	t.endCurrent(false)
}

func (t *Tracker) run() {
	defer close(t.stopped)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case pe, ok := <-t.sub.Processed:
			if !ok {
				return
			}
			t.handleProcessed(pe)
		case pc, ok := <-t.sub.PositionChanged:
			if !ok {
				return
			}
			t.handlePosition(pc)
		case <-ticker.C:
			t.flush()
		}
	}
}

func (t *Tracker) handleProcessed(pe playback.ProcessedEvent) {
	if !pe.Result.Allowed {
		return
	}

	switch ev := pe.Event.(type) {
	case playback.LoadTrack:
		t.endCurrent(false)
		t.open(ev.Track, 0)

	case playback.RestoreState:
		if ev.State.Track == nil {
			return
		}
		if ev.State.SessionID != "" {
			// A restored context continues its previous session.
			t.adopt(ev.State.SessionID, *ev.State.Track, ev.State.Position)
			return
		}
		t.open(*ev.State.Track, ev.State.Position)

	case playback.Stop:
		t.endCurrent(false)

	case playback.NativeStateChanged:
		if pe.Result.NextState != playback.StateIdle {
			return
		}
		// Reaching idle through "ended" means the listener ran the item
		// off its end; anything else is an ordinary teardown.
		t.endCurrent(ev.State == playback.NativeEnded)
	}
}

func (t *Tracker) handlePosition(pc playback.PositionChange) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return
	}
	t.current.position = pc.Position
	if pc.Duration > 0 {
		t.current.duration = pc.Duration
	}
	t.current.dirty = true
}

// open starts a durable session for the track and announces it.
func (t *Tracker) open(track playback.Track, position float64) {
	ctx := context.Background()

	if err := t.items.Upsert(ctx, track); err != nil {
		t.log.Warn(errmsg.Format(errmsg.OpItemUpsert, err))
	} else if err := t.items.TouchPlayed(ctx, track.LibraryItemID, track.EpisodeID); err != nil {
		t.log.Warn(errmsg.Format(errmsg.OpItemUpsert, err))
	}

	sess, err := t.sessions.Create(ctx, t.userID, track.LibraryItemID, track.EpisodeID, position)
	if err != nil {
		t.log.Error(errmsg.Format(errmsg.OpSessionCreate, err))
		return
	}

	t.mu.Lock()
	t.current = &activeSession{
		id:       sess.ID,
		track:    track,
		position: position,
		duration: track.Duration,
	}
	t.mu.Unlock()

	t.bus.Dispatch(playback.SessionCreated{SessionID: sess.ID})
}

// adopt resumes writing an existing session without creating a row.
func (t *Tracker) adopt(sessionID string, track playback.Track, position float64) {
	t.mu.Lock()
	t.current = &activeSession{
		id:       sessionID,
		track:    track,
		position: position,
		duration: track.Duration,
	}
	t.mu.Unlock()
}

// flush persists the current position and progress, then reports the
// outcome as a sync event.
func (t *Tracker) flush() {
	t.mu.Lock()
	if t.current == nil || !t.current.dirty {
		t.mu.Unlock()
		return
	}
	snap := *t.current
	t.current.dirty = false
	t.mu.Unlock()

	ctx := context.Background()

	if err := t.sessions.UpdatePosition(ctx, snap.id, snap.position); err != nil {
		t.log.Warn(errmsg.Format(errmsg.OpSessionUpdate, err))
		t.bus.Dispatch(playback.SessionSyncFailed{Error: err.Error()})
		return
	}
	t.bus.Dispatch(playback.SessionUpdated{SessionID: snap.id, Position: snap.position})

	if err := t.progress.Upsert(ctx, t.progressRecord(snap, false)); err != nil {
		t.log.Warn(errmsg.Format(errmsg.OpProgressSave, err))
		t.bus.Dispatch(playback.SessionSyncFailed{Error: err.Error()})
		return
	}
	if err := t.sessions.MarkSynced(ctx, snap.id); err != nil {
		t.log.Warn(errmsg.Format(errmsg.OpSessionSync, err))
	}
	t.bus.Dispatch(playback.SessionSyncCompleted{})
}

// endCurrent closes the active session at its last known position.
func (t *Tracker) endCurrent(finished bool) {
	t.mu.Lock()
	snap := t.current
	t.current = nil
	t.mu.Unlock()
	if snap == nil {
		return
	}

	ctx := context.Background()

	if err := t.sessions.End(ctx, snap.id, snap.position); err != nil {
		t.log.Warn(errmsg.Format(errmsg.OpSessionEnd, err))
	}
	if err := t.progress.Upsert(ctx, t.progressRecord(*snap, finished)); err != nil {
		t.log.Warn(errmsg.Format(errmsg.OpProgressSave, err))
	}

	t.bus.Dispatch(playback.SessionEnded{SessionID: snap.id})
}

func (t *Tracker) progressRecord(snap activeSession, finished bool) store.MediaProgress {
	position := snap.position
	if finished {
		position = 0
	}
	return store.MediaProgress{
		UserID:        t.userID,
		LibraryItemID: snap.track.LibraryItemID,
		EpisodeID:     snap.track.EpisodeID,
		Position:      position,
		Duration:      snap.duration,
		IsFinished:    finished,
	}
}
