package playback

// State represents the coordinator's playback state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateSeeking
	StateBuffering
	StateStopping
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateLoading:
		return "LOADING"
	case StateReady:
		return "READY"
	case StatePlaying:
		return "PLAYING"
	case StatePaused:
		return "PAUSED"
	case StateSeeking:
		return "SEEKING"
	case StateBuffering:
		return "BUFFERING"
	case StateStopping:
		return "STOPPING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// IsActive returns true if a track is loaded and playback is underway
// in some form (playing, paused, seeking or buffering).
func (s State) IsActive() bool {
	switch s {
	case StatePlaying, StatePaused, StateSeeking, StateBuffering:
		return true
	default:
		return false
	}
}

// AllStates lists every state, in declaration order. Used by the
// transition table to stay total and by tests that sweep the matrix.
func AllStates() []State {
	return []State{
		StateIdle,
		StateLoading,
		StateReady,
		StatePlaying,
		StatePaused,
		StateSeeking,
		StateBuffering,
		StateStopping,
		StateError,
	}
}
