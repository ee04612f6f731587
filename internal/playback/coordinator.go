package playback

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lvaillant/cadenza/internal/errmsg"
	"github.com/lvaillant/cadenza/internal/logging"
	"github.com/lvaillant/cadenza/internal/runtime"
)

// metadataDebounce is how long chapter flapping is absorbed before the
// now-playing metadata projection fires.
const metadataDebounce = 500 * time.Millisecond

// ResolutionConfig tunes canonical position resolution thresholds,
// both in media seconds.
type ResolutionConfig struct {
	MinPlausible     float64
	LargeDiscrepancy float64
}

// Options wires a coordinator's collaborators. Player, Store, Sources
// and Local may be nil: a context without a player validates and records
// but executes nothing, and missing stores simply degrade.
type Options struct {
	Runtime    runtime.Context
	Player     Service
	Store      StoreBridge
	Sources    PositionSources
	Local      LocalPosition
	Resolution ResolutionConfig
	Log        *logrus.Entry
}

// Coordinator owns the canonical StateContext and processes every event
// through a single serialized loop: capture, validate, context update,
// diagnostics, commit, side effect, metrics, notify. Dispatch never
// blocks; processing happens on the coordinator's own goroutine.
type Coordinator struct {
	log    *logrus.Entry
	rt     runtime.Context
	player Service
	store  StoreBridge

	sources PositionSources
	local   LocalPosition
	resCfg  ResolutionConfig

	// mu is the state-transition lock: context mutation, validation and
	// side-effect execution for one event all complete under it before
	// the next event is processed.
	mu      sync.Mutex
	sctx    *StateContext
	metrics CoordinatorMetrics
	history *ring[TransitionHistoryEntry]
	diags   *ring[DiagnosticEvent]

	lastSyncedChapter int
	metaTimer         *time.Timer

	qmu    sync.Mutex
	queue  []Event
	closed bool

	signal  chan struct{}
	done    chan struct{}
	stopped chan struct{}

	observer atomic.Bool

	subMu sync.RWMutex
	subs  []*Subscription
}

// New constructs a coordinator for one execution context and starts its
// event loop. The context starts in IDLE with execution mode enabled.
func New(opts Options) *Coordinator {
	log := opts.Log
	if log == nil {
		log = logging.ForComponent(logging.Discard(), "coordinator")
	}
	store := opts.Store
	if store == nil {
		store = NopStoreBridge{}
	}
	res := opts.Resolution
	if res.MinPlausible <= 0 {
		res.MinPlausible = 5
	}
	if res.LargeDiscrepancy <= 0 {
		res.LargeDiscrepancy = 30
	}

	c := &Coordinator{
		log:               log.WithField("runtime", opts.Runtime.String()),
		rt:                opts.Runtime,
		player:            opts.Player,
		store:             store,
		sources:           opts.Sources,
		local:             opts.Local,
		resCfg:            res,
		sctx:              newStateContext(),
		history:           newRing[TransitionHistoryEntry](historyCapacity),
		diags:             newRing[DiagnosticEvent](historyCapacity),
		lastSyncedChapter: -1,
		signal:            make(chan struct{}, 1),
		done:              make(chan struct{}),
		stopped:           make(chan struct{}),
	}
	c.metrics.StartedAt = time.Now()

	go c.run()
	return c
}

// Dispatch enqueues an event and returns immediately. Events from a
// closed coordinator are dropped.
func (c *Coordinator) Dispatch(ev Event) {
	c.qmu.Lock()
	if c.closed {
		c.qmu.Unlock()
		return
	}
	c.queue = append(c.queue, ev)
	c.qmu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// Close stops the loop after draining already-queued events and closes
// all subscriptions.
func (c *Coordinator) Close() {
	c.qmu.Lock()
	if c.closed {
		c.qmu.Unlock()
		return
	}
	c.closed = true
	c.qmu.Unlock()

	close(c.done)
	<-c.stopped

	c.mu.Lock()
	if c.metaTimer != nil {
		c.metaTimer.Stop()
	}
	c.mu.Unlock()

	c.subMu.Lock()
	for _, s := range c.subs {
		s.close()
	}
	c.subs = nil
	c.subMu.Unlock()
}

// Subscribe returns a new subscription to coordinator notifications.
func (c *Coordinator) Subscribe() *Subscription {
	sub := newSubscription()
	c.subMu.Lock()
	c.subs = append(c.subs, sub)
	c.subMu.Unlock()
	return sub
}

// Unsubscribe removes a subscription and closes its Done channel.
func (c *Coordinator) Unsubscribe(sub *Subscription) {
	c.subMu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			sub.close()
			break
		}
	}
	c.subMu.Unlock()
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sctx.CurrentState
}

// Context returns a snapshot copy of the state context. Callers never
// observe partial mutation and never alias coordinator-owned memory.
func (c *Coordinator) Context() StateContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sctx.Snapshot()
}

// Metrics returns a copy of the cumulative counters.
func (c *Coordinator) Metrics() CoordinatorMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// TransitionHistory returns the bounded history, oldest first.
func (c *Coordinator) TransitionHistory() []TransitionHistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.items()
}

// DiagnosticEvents returns the bounded diagnostic trail, oldest first.
func (c *Coordinator) DiagnosticEvents() []DiagnosticEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diags.items()
}

// ExportDiagnostics renders a human-readable report for incident logs.
func (c *Coordinator) ExportDiagnostics() string {
	c.mu.Lock()
	snap := c.sctx.Snapshot()
	metrics := c.metrics
	history := c.history.items()
	c.mu.Unlock()
	return formatDiagnostics(c.rt.String(), c.observer.Load(), snap, metrics, history, time.Now())
}

// SetObserverMode toggles side-effect execution. Observer mode still
// validates, updates context and records diagnostics; it only stops the
// coordinator from commanding the player.
func (c *Coordinator) SetObserverMode(enabled bool) {
	c.observer.Store(enabled)
	c.log.WithField("enabled", enabled).Info("observer mode changed")
}

// IsObserverMode reports whether side effects are suppressed.
func (c *Coordinator) IsObserverMode() bool {
	return c.observer.Load()
}

func (c *Coordinator) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.signal:
			c.drain()
		case <-c.done:
			c.drain()
			return
		}
	}
}

// drain pops queued events in FIFO order and processes them one at a
// time until the queue is empty.
func (c *Coordinator) drain() {
	for {
		c.qmu.Lock()
		if len(c.queue) == 0 {
			c.qmu.Unlock()
			return
		}
		ev := c.queue[0]
		c.queue = c.queue[1:]
		c.qmu.Unlock()

		c.process(ev)
	}
}

// process runs the full per-event pipeline under the state-transition
// lock. A failure in one event never aborts the loop.
func (c *Coordinator) process(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("event", ev.Type()).Errorf("%s", errmsg.Format(errmsg.OpProcessEvent, fmt.Errorf("panic: %v", r)))
			c.mu.Lock()
			c.metrics.SideEffectErrors++
			c.mu.Unlock()
		}
	}()

	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	// (1) capture, (2) validate
	prior := c.sctx.CurrentState
	result := Validate(prior, ev)

	prevTrack := c.sctx.CurrentTrack
	prevKey := ""
	if prevTrack != nil {
		prevKey = prevTrack.Key()
	}
	prevPosition := c.sctx.Position

	// (3) context fields implied by the payload update even when the
	// transition is rejected: native-origin fields must reflect reality
	// for diagnostics and for future validation.
	c.applyEvent(ev, start)

	// (4) diagnostics
	c.history.append(TransitionHistoryEntry{
		Time:    start,
		Event:   ev.Type(),
		From:    prior,
		To:      result.NextState,
		Allowed: result.Allowed,
		Reason:  result.Reason,
	})
	c.diags.append(DiagnosticEvent{
		Time:     start,
		Event:    ev.Type(),
		State:    prior,
		Allowed:  result.Allowed,
		Reason:   result.Reason,
		Position: c.sctx.Position,
	})

	// (5) commit
	committed := false
	var preSeek *State
	if result.Allowed && result.NextState != prior {
		if ps := c.sctx.PreSeekState; ps != nil {
			v := *ps
			preSeek = &v
		}
		c.commit(prior, result.NextState)
		c.metrics.TransitionCount++
		committed = true
	}

	// (6)/(7) side effect or rejection bookkeeping
	if result.Allowed {
		if !c.observer.Load() {
			c.execute(ev, prior, result, committed, preSeek)
		}
	} else {
		c.metrics.RejectionCount++
		c.log.WithFields(logrus.Fields{
			"event": ev.Type(),
			"state": prior,
		}).Debugf("event rejected: %s", result.Reason)
	}

	// store projection, best-effort
	c.projectLocked(ev, result)

	// (8) metrics
	c.metrics.observeProcessing(time.Since(start), time.Now())

	// (9) notify
	newKey := ""
	if c.sctx.CurrentTrack != nil {
		newKey = c.sctx.CurrentTrack.Key()
	}
	snap := c.sctx.Snapshot()

	processed := ProcessedEvent{Event: ev, Result: result, State: snap.CurrentState}
	var stateChange *StateChange
	if committed {
		stateChange = &StateChange{Previous: prior, Current: snap.CurrentState}
	}
	var trackChange *TrackChange
	if newKey != prevKey {
		var prevCopy *Track
		if prevTrack != nil {
			t := prevTrack.Clone()
			prevCopy = &t
		}
		trackChange = &TrackChange{Previous: prevCopy, Current: snap.CurrentTrack}
	}
	positionMoved := snap.Position != prevPosition

	c.subMu.RLock()
	for _, sub := range c.subs {
		sub.sendProcessed(processed)
		if stateChange != nil {
			sub.sendState(*stateChange)
		}
		if trackChange != nil {
			sub.sendTrack(*trackChange)
		}
		if positionMoved {
			sub.sendPosition(PositionChange{Position: snap.Position, Duration: snap.Duration})
		}
	}
	c.subMu.RUnlock()
}

// applyEvent mirrors the event's payload into the context. This runs for
// every event, accepted or not.
func (c *Coordinator) applyEvent(ev Event, now time.Time) {
	switch e := ev.(type) {
	case LoadTrack:
		t := e.Track.Clone()
		c.sctx.CurrentTrack = &t
		c.sctx.Duration = e.Track.Duration
		c.sctx.Position = 0
		c.sctx.CurrentChapter = nil
		c.sctx.LastError = ""

	case Seek:
		c.sctx.Position = e.Position
		c.sctx.LastPositionUpdate = now

	case SetRate:
		c.sctx.PlaybackRate = e.Rate

	case SetVolume:
		c.sctx.Volume = e.Volume

	case RestoreState:
		if e.State.Track != nil {
			t := e.State.Track.Clone()
			c.sctx.CurrentTrack = &t
			if e.State.Duration <= 0 {
				c.sctx.Duration = t.Duration
			}
		}
		if e.State.Duration > 0 {
			c.sctx.Duration = e.State.Duration
		}
		c.sctx.Position = e.State.Position
		// A zeroed rate or volume means the snapshot never recorded one.
		if e.State.Rate > 0 {
			c.sctx.PlaybackRate = e.State.Rate
		}
		if e.State.Volume > 0 {
			c.sctx.Volume = e.State.Volume
		}
		c.sctx.SessionID = e.State.SessionID
		c.sctx.LastPositionUpdate = now

	case QueueReloaded:
		c.sctx.Position = e.Position
		c.sctx.LastPositionUpdate = now

	case ChapterChanged:
		ch := e.Chapter
		c.sctx.CurrentChapter = &ch

	case BufferingStarted:
		c.sctx.IsBuffering = true

	case BufferingCompleted:
		c.sctx.IsBuffering = false

	case SessionCreated:
		c.sctx.SessionID = e.SessionID
		c.sctx.SessionStartTime = now

	case SessionUpdated:
		if e.SessionID != "" {
			c.sctx.SessionID = e.SessionID
		}

	case SessionEnded:
		// A stale end for a previous session must not clear the current one.
		if c.sctx.SessionID == "" || c.sctx.SessionID == e.SessionID {
			c.sctx.SessionID = ""
			c.sctx.SessionStartTime = time.Time{}
		}

	case SessionSyncCompleted:
		c.sctx.LastServerSync = now
		c.sctx.PendingSyncPosition = nil

	case SessionSyncFailed:
		p := c.sctx.Position
		c.sctx.PendingSyncPosition = &p

	case PositionReconciled:
		c.sctx.Position = e.Position
		c.sctx.LastPositionUpdate = now

	case NativeStateChanged:
		c.sctx.IsPlaying = e.State == NativePlaying
		c.sctx.IsBuffering = e.State == NativeBuffering

	case NativeProgressUpdated:
		c.sctx.Position = e.Position
		if e.Duration > 0 {
			c.sctx.Duration = e.Duration
		}
		c.sctx.LastPositionUpdate = now
		c.sctx.IsSeeking = false
		if t := c.sctx.CurrentTrack; t != nil && len(t.Chapters) > 0 {
			c.sctx.CurrentChapter = t.ChapterAt(e.Position)
		}

	case NativeTrackChanged:
		t := e.Track.Clone()
		c.sctx.CurrentTrack = &t
		c.sctx.Duration = e.Track.Duration
		c.sctx.CurrentChapter = nil

	case NativeError:
		c.sctx.LastError = e.Error
		c.sctx.IsPlaying = false
		c.sctx.IsBuffering = false

	case NativePlaybackError:
		c.sctx.LastError = fmt.Sprintf("%s: %s", e.Code, e.Message)
		c.sctx.IsPlaying = false
	}
}

// commit moves the context to the next state and maintains the flags
// that are implied by the transition itself rather than by any payload.
func (c *Coordinator) commit(prior, next State) {
	c.sctx.PreviousState = prior
	c.sctx.CurrentState = next

	switch next {
	case StatePlaying:
		c.sctx.IsPlaying = true
	case StateReady, StatePaused, StateIdle, StateError, StateStopping:
		c.sctx.IsPlaying = false
	case StateSeeking, StateBuffering:
		// Native reports own the truth while in flight.
	}

	c.sctx.IsBuffering = next == StateBuffering

	if next == StateSeeking {
		ps := prior
		c.sctx.PreSeekState = &ps
		c.sctx.IsSeeking = true
	}
	if prior == StateSeeking && next != StateSeeking {
		c.sctx.IsSeeking = false
		// Cleared on leave so a later, unrelated READY entry can never
		// trigger a second resume.
		c.sctx.PreSeekState = nil
	}

	if next == StateLoading {
		c.sctx.IsLoadingTrack = true
	}
	if prior == StateLoading && next != StateLoading {
		c.sctx.IsLoadingTrack = false
	}

	if prior == StateError && next != StateError {
		c.sctx.LastError = ""
	}
}

// execute maps an accepted event to at most one player command.
// Commands are idempotent and never dispatch back into the coordinator;
// the one resume that must re-enter the pipeline is self-dispatched as a
// synthetic PLAY event instead of a direct player call.
func (c *Coordinator) execute(ev Event, prior State, result TransitionResult, committed bool, preSeek *State) {
	switch e := ev.(type) {
	case LoadTrack:
		if committed {
			c.callPlayer(errmsg.OpExecuteLoad, func() error {
				return c.player.ExecuteLoadTrack(e.Track.LibraryItemID, e.Track.EpisodeID)
			})
		}

	case ReloadQueue:
		if committed {
			c.callPlayer(errmsg.OpExecuteLoad, func() error {
				return c.player.ExecuteLoadTrack(e.LibraryItemID, "")
			})
		}

	case Play:
		// Entering PLAYING from any other event type never calls play.
		if result.NextState == StatePlaying {
			c.callPlayer(errmsg.OpExecutePlay, func() error { return c.player.ExecutePlay() })
		}

	case Pause:
		if result.NextState == StatePaused {
			c.callPlayer(errmsg.OpExecutePause, func() error { return c.player.ExecutePause() })
		}

	case Stop:
		if committed && result.NextState == StateStopping {
			c.callPlayer(errmsg.OpExecuteStop, func() error { return c.player.ExecuteStop() })
		}

	case Seek:
		// Context-mutating command: runs whether or not the state changed.
		c.callPlayer(errmsg.OpExecuteSeek, func() error {
			return c.player.ExecuteSeek(e.Position)
		})

	case SetRate:
		c.callPlayer(errmsg.OpExecuteSetRate, func() error {
			return c.player.ExecuteSetRate(e.Rate)
		})

	case SetVolume:
		c.callPlayer(errmsg.OpExecuteSetVolume, func() error {
			return c.player.ExecuteSetVolume(e.Volume)
		})

	case SeekComplete, NativeProgressUpdated:
		if committed && prior == StateSeeking && result.NextState == StateReady &&
			preSeek != nil && *preSeek == StatePlaying {
			c.Dispatch(Play{})
		}
	}
}

// callPlayer runs one player command, logging failures without aborting
// the loop. The committed transition is intentionally not rolled back; a
// later native event corrects the context to ground truth.
func (c *Coordinator) callPlayer(op errmsg.Op, fn func() error) {
	if c.player == nil {
		return
	}
	if err := fn(); err != nil {
		c.metrics.SideEffectErrors++
		c.log.Warn(errmsg.Format(op, err))
	}
}

// projectLocked pushes context into the external store. A position-only
// path bounds re-render cost for high-frequency progress ticks;
// everything else allowed gets the full structural projection. Both are
// best-effort.
func (c *Coordinator) projectLocked(ev Event, result TransitionResult) {
	if !result.Allowed {
		return
	}

	if ev.Type() == EventNativeProgress {
		c.tryStore(func() error { return c.store.UpdatePosition(c.sctx.Position) })

		chID := -1
		if c.sctx.CurrentChapter != nil {
			chID = c.sctx.CurrentChapter.ID
		}
		if chID != c.lastSyncedChapter {
			c.lastSyncedChapter = chID
			c.scheduleMetadataRefresh()
		}
		return
	}

	c.tryStore(func() error { return c.store.UpdatePosition(c.sctx.Position) })
	c.tryStore(func() error { return c.store.UpdatePlayingState(c.sctx.IsPlaying) })
	c.tryStore(func() error { return c.store.SetTrackLoading(c.sctx.IsLoadingTrack) })
	c.tryStore(func() error { return c.store.SetSeeking(c.sctx.IsSeeking) })
	c.tryStore(func() error { return c.store.SetPlaybackRate(c.sctx.PlaybackRate) })
	c.tryStore(func() error { return c.store.SetVolume(c.sctx.Volume) })
	c.tryStore(func() error { return c.store.SetPlaySessionID(c.sctx.SessionID) })

	var track *Track
	if c.sctx.CurrentTrack != nil {
		t := c.sctx.CurrentTrack.Clone()
		track = &t
	}
	var chapter *Chapter
	if c.sctx.CurrentChapter != nil {
		ch := *c.sctx.CurrentChapter
		chapter = &ch
	}
	c.tryStore(func() error { return c.store.SetCurrentTrack(track) })
	c.tryStore(func() error { return c.store.UpdateNowPlayingMetadata(track, chapter) })
}

// tryStore swallows projection failures; an unreachable store must never
// fail event processing.
func (c *Coordinator) tryStore(fn func() error) {
	if err := fn(); err != nil {
		c.log.Debug(errmsg.Format(errmsg.OpProjectState, err))
	}
}

// scheduleMetadataRefresh debounces now-playing metadata pushes caused
// by chapter changes during progress ticks.
func (c *Coordinator) scheduleMetadataRefresh() {
	if c.metaTimer != nil {
		c.metaTimer.Stop()
	}
	c.metaTimer = time.AfterFunc(metadataDebounce, func() {
		c.mu.Lock()
		var track *Track
		if c.sctx.CurrentTrack != nil {
			t := c.sctx.CurrentTrack.Clone()
			track = &t
		}
		var chapter *Chapter
		if c.sctx.CurrentChapter != nil {
			ch := *c.sctx.CurrentChapter
			chapter = &ch
		}
		c.mu.Unlock()

		if err := c.store.UpdateNowPlayingMetadata(track, chapter); err != nil {
			c.log.Debug(errmsg.Format(errmsg.OpProjectState, err))
		}
	})
}
