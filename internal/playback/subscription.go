package playback

const eventBufferSize = 16

// ProcessedEvent is emitted after every event finishes the pipeline,
// whether it was accepted, a no-op or rejected.
type ProcessedEvent struct {
	Event  Event
	Result TransitionResult
	State  State
}

// StateChange is emitted when a transition commits a new state.
type StateChange struct {
	Previous State
	Current  State
}

// TrackChange is emitted when the current track identity changes.
type TrackChange struct {
	Previous *Track
	Current  *Track
}

// PositionChange is emitted when the context position moves.
type PositionChange struct {
	Position float64
	Duration float64
}

// Subscription provides event channels for a subscriber. Sends are
// non-blocking; a slow consumer loses events rather than stalling the
// coordinator loop.
type Subscription struct {
	Processed       <-chan ProcessedEvent
	StateChanged    <-chan StateChange
	TrackChanged    <-chan TrackChange
	PositionChanged <-chan PositionChange
	Done            <-chan struct{}

	// Internal write channels
	processedCh chan ProcessedEvent
	stateCh     chan StateChange
	trackCh     chan TrackChange
	positionCh  chan PositionChange
	doneCh      chan struct{}
}

// newSubscription creates a new subscription with buffered channels.
func newSubscription() *Subscription {
	s := &Subscription{
		processedCh: make(chan ProcessedEvent, eventBufferSize),
		stateCh:     make(chan StateChange, eventBufferSize),
		trackCh:     make(chan TrackChange, eventBufferSize),
		positionCh:  make(chan PositionChange, eventBufferSize),
		doneCh:      make(chan struct{}),
	}
	s.Processed = s.processedCh
	s.StateChanged = s.stateCh
	s.TrackChanged = s.trackCh
	s.PositionChanged = s.positionCh
	s.Done = s.doneCh
	return s
}

// close signals subscribers to stop by closing doneCh.
func (s *Subscription) close() {
	close(s.doneCh)
}

// sendProcessed sends a processed notification (non-blocking).
func (s *Subscription) sendProcessed(e ProcessedEvent) {
	select {
	case s.processedCh <- e:
	default:
		// Drop if buffer full
	}
}

// sendState sends a state change event (non-blocking).
func (s *Subscription) sendState(e StateChange) {
	select {
	case s.stateCh <- e:
	default:
	}
}

// sendTrack sends a track change event (non-blocking).
func (s *Subscription) sendTrack(e TrackChange) {
	select {
	case s.trackCh <- e:
	default:
	}
}

// sendPosition sends a position change event (non-blocking).
func (s *Subscription) sendPosition(e PositionChange) {
	select {
	case s.positionCh <- e:
	default:
	}
}
