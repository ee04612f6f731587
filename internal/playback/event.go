package playback

// EventType names an event variant. Values match the wire names used on
// the native transport.
type EventType string

const (
	EventLoadTrack            EventType = "LOAD_TRACK"
	EventPlay                 EventType = "PLAY"
	EventPause                EventType = "PAUSE"
	EventStop                 EventType = "STOP"
	EventSeek                 EventType = "SEEK"
	EventSeekComplete         EventType = "SEEK_COMPLETE"
	EventSetRate              EventType = "SET_RATE"
	EventSetVolume            EventType = "SET_VOLUME"
	EventRestoreState         EventType = "RESTORE_STATE"
	EventReloadQueue          EventType = "RELOAD_QUEUE"
	EventQueueReloaded        EventType = "QUEUE_RELOADED"
	EventChapterChanged       EventType = "CHAPTER_CHANGED"
	EventBufferingStarted     EventType = "BUFFERING_STARTED"
	EventBufferingCompleted   EventType = "BUFFERING_COMPLETED"
	EventSessionCreated       EventType = "SESSION_CREATED"
	EventSessionUpdated       EventType = "SESSION_UPDATED"
	EventSessionEnded         EventType = "SESSION_ENDED"
	EventSessionSyncCompleted EventType = "SESSION_SYNC_COMPLETED"
	EventSessionSyncFailed    EventType = "SESSION_SYNC_FAILED"
	EventPositionReconciled   EventType = "POSITION_RECONCILED"
	EventNativeStateChanged   EventType = "NATIVE_STATE_CHANGED"
	EventNativeProgress       EventType = "NATIVE_PROGRESS_UPDATED"
	EventNativeTrackChanged   EventType = "NATIVE_TRACK_CHANGED"
	EventNativeError          EventType = "NATIVE_ERROR"
	EventNativePlaybackError  EventType = "NATIVE_PLAYBACK_ERROR"
)

// Event is the closed set of things that can happen to the coordinator.
// Each variant carries exactly the payload its context update needs.
// The unexported method keeps the set closed to this package.
type Event interface {
	Type() EventType
	isEvent()
}

// NativePlaybackState is the player state as reported by the native layer.
type NativePlaybackState string

const (
	NativePlaying   NativePlaybackState = "playing"
	NativePaused    NativePlaybackState = "paused"
	NativeBuffering NativePlaybackState = "buffering"
	NativeReady     NativePlaybackState = "ready"
	NativeLoading   NativePlaybackState = "loading"
	NativeIdle      NativePlaybackState = "idle"
	NativeStopped   NativePlaybackState = "stopped"
	NativeEnded     NativePlaybackState = "ended"
)

// LoadTrack requests that a new track be loaded into the player.
type LoadTrack struct {
	Track Track `json:"track"`
}

// Play requests playback to start or resume.
type Play struct{}

// Pause requests playback to pause.
type Pause struct{}

// Stop requests playback to stop and the player to unload.
type Stop struct{}

// Seek requests a jump to an absolute media position in seconds.
type Seek struct {
	Position float64 `json:"position"`
}

// SeekComplete reports that a previously requested seek has settled.
type SeekComplete struct{}

// SetRate requests a playback-rate change.
type SetRate struct {
	Rate float64 `json:"rate"`
}

// SetVolume requests a volume change in [0, 1].
type SetVolume struct {
	Volume float64 `json:"volume"`
}

// RestoredState is the persisted snapshot a fresh coordinator can be
// rehydrated from at boot.
type RestoredState struct {
	Track     *Track  `json:"track,omitempty"`
	Position  float64 `json:"position"`
	Duration  float64 `json:"duration"`
	Rate      float64 `json:"rate"`
	Volume    float64 `json:"volume"`
	SessionID string  `json:"sessionId,omitempty"`
}

// RestoreState rehydrates an idle coordinator from a persisted snapshot.
type RestoreState struct {
	State RestoredState `json:"state"`
}

// ReloadQueue requests the current item's track list be rebuilt, for
// example after a download finished and local files became available.
type ReloadQueue struct {
	LibraryItemID string `json:"libraryItemId"`
}

// QueueReloaded reports that a queue rebuild finished and playback can
// continue from the given position.
type QueueReloaded struct {
	Position float64 `json:"position"`
}

// ChapterChanged reports that playback crossed into a different chapter.
type ChapterChanged struct {
	Chapter Chapter `json:"chapter"`
}

// BufferingStarted reports that the native player stalled on I/O.
type BufferingStarted struct{}

// BufferingCompleted reports that buffering finished.
type BufferingCompleted struct{}

// SessionCreated reports that a playback session row now exists.
type SessionCreated struct {
	SessionID string `json:"sessionId"`
}

// SessionUpdated reports a periodic progress write for the session.
type SessionUpdated struct {
	SessionID string  `json:"sessionId"`
	Position  float64 `json:"position"`
}

// SessionEnded reports that the playback session was closed.
type SessionEnded struct {
	SessionID string `json:"sessionId"`
}

// SessionSyncCompleted reports a successful server sync.
type SessionSyncCompleted struct{}

// SessionSyncFailed reports a failed server sync. The coordinator keeps
// the current position as pending so a later sync can retry it.
type SessionSyncFailed struct {
	Error string `json:"error"`
}

// PositionReconciled carries the canonical position chosen by
// multi-source resolution back through the normal event pipeline.
type PositionReconciled struct {
	Position float64 `json:"position"`
}

// NativeStateChanged reports the native player's own state. The native
// layer is authoritative; these events are accepted from almost any state.
type NativeStateChanged struct {
	State NativePlaybackState `json:"state"`
}

// NativeProgressUpdated reports a position/duration tick from the player.
type NativeProgressUpdated struct {
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
}

// NativeTrackChanged reports that the native player moved to a different
// track on its own, for example at an episode boundary.
type NativeTrackChanged struct {
	Track Track `json:"track"`
}

// NativeError reports a fatal native-layer failure.
type NativeError struct {
	Error string `json:"error"`
}

// NativePlaybackError reports a recoverable playback failure with a
// native error code.
type NativePlaybackError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (LoadTrack) Type() EventType             { return EventLoadTrack }
func (Play) Type() EventType                  { return EventPlay }
func (Pause) Type() EventType                 { return EventPause }
func (Stop) Type() EventType                  { return EventStop }
func (Seek) Type() EventType                  { return EventSeek }
func (SeekComplete) Type() EventType          { return EventSeekComplete }
func (SetRate) Type() EventType               { return EventSetRate }
func (SetVolume) Type() EventType             { return EventSetVolume }
func (RestoreState) Type() EventType          { return EventRestoreState }
func (ReloadQueue) Type() EventType           { return EventReloadQueue }
func (QueueReloaded) Type() EventType         { return EventQueueReloaded }
func (ChapterChanged) Type() EventType        { return EventChapterChanged }
func (BufferingStarted) Type() EventType      { return EventBufferingStarted }
func (BufferingCompleted) Type() EventType    { return EventBufferingCompleted }
func (SessionCreated) Type() EventType        { return EventSessionCreated }
func (SessionUpdated) Type() EventType        { return EventSessionUpdated }
func (SessionEnded) Type() EventType          { return EventSessionEnded }
func (SessionSyncCompleted) Type() EventType  { return EventSessionSyncCompleted }
func (SessionSyncFailed) Type() EventType     { return EventSessionSyncFailed }
func (PositionReconciled) Type() EventType    { return EventPositionReconciled }
func (NativeStateChanged) Type() EventType    { return EventNativeStateChanged }
func (NativeProgressUpdated) Type() EventType { return EventNativeProgress }
func (NativeTrackChanged) Type() EventType    { return EventNativeTrackChanged }
func (NativeError) Type() EventType           { return EventNativeError }
func (NativePlaybackError) Type() EventType   { return EventNativePlaybackError }

func (LoadTrack) isEvent()             {}
func (Play) isEvent()                  {}
func (Pause) isEvent()                 {}
func (Stop) isEvent()                  {}
func (Seek) isEvent()                  {}
func (SeekComplete) isEvent()          {}
func (SetRate) isEvent()               {}
func (SetVolume) isEvent()             {}
func (RestoreState) isEvent()          {}
func (ReloadQueue) isEvent()           {}
func (QueueReloaded) isEvent()         {}
func (ChapterChanged) isEvent()        {}
func (BufferingStarted) isEvent()      {}
func (BufferingCompleted) isEvent()    {}
func (SessionCreated) isEvent()        {}
func (SessionUpdated) isEvent()        {}
func (SessionEnded) isEvent()          {}
func (SessionSyncCompleted) isEvent()  {}
func (SessionSyncFailed) isEvent()     {}
func (PositionReconciled) isEvent()    {}
func (NativeStateChanged) isEvent()    {}
func (NativeProgressUpdated) isEvent() {}
func (NativeTrackChanged) isEvent()    {}
func (NativeError) isEvent()           {}
func (NativePlaybackError) isEvent()   {}

// AllEventTypes lists every event type. Used by decode and by tests that
// sweep the transition matrix.
func AllEventTypes() []EventType {
	return []EventType{
		EventLoadTrack,
		EventPlay,
		EventPause,
		EventStop,
		EventSeek,
		EventSeekComplete,
		EventSetRate,
		EventSetVolume,
		EventRestoreState,
		EventReloadQueue,
		EventQueueReloaded,
		EventChapterChanged,
		EventBufferingStarted,
		EventBufferingCompleted,
		EventSessionCreated,
		EventSessionUpdated,
		EventSessionEnded,
		EventSessionSyncCompleted,
		EventSessionSyncFailed,
		EventPositionReconciled,
		EventNativeStateChanged,
		EventNativeProgress,
		EventNativeTrackChanged,
		EventNativeError,
		EventNativePlaybackError,
	}
}
