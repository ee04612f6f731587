package playback

import "fmt"

// TransitionResult is the verdict for one (state, event) pair.
// NextState equals the input state for no-op acceptances and for
// rejections; Reason is set only when the event is rejected.
type TransitionResult struct {
	Allowed   bool
	NextState State
	Reason    string
}

// IsNoop reports whether the result accepts the event without a state
// change relative to the given state.
func (r TransitionResult) IsNoop(state State) bool {
	return r.Allowed && r.NextState == state
}

func transitionTo(next State) TransitionResult {
	return TransitionResult{Allowed: true, NextState: next}
}

func noop(current State) TransitionResult {
	return TransitionResult{Allowed: true, NextState: current}
}

func reject(current State, reason string) TransitionResult {
	return TransitionResult{Allowed: false, NextState: current, Reason: reason}
}

func rejectIn(current State, ev Event) TransitionResult {
	return reject(current, fmt.Sprintf("%s is not valid in %s", ev.Type(), current))
}

// Validate decides whether an event is allowed in a state and what state
// it leads to. Pure and total: every (state, event) pair yields a
// well-formed result, and unspecified pairs reject.
//
// Policy notes:
//   - Native events are accepted from most states because the native
//     layer is authoritative about real playback; blocking them would
//     only make the model lag further behind.
//   - Duplicate LOAD_TRACK while LOADING is rejected, not ignored, so a
//     second native load (and a second session) can never start.
//   - Session and sync bookkeeping is permissive; it trails the playback
//     it reports on and carries no structural meaning.
func Validate(state State, ev Event) TransitionResult {
	switch e := ev.(type) {
	case LoadTrack:
		switch state {
		case StateLoading:
			return reject(state, "track load already in progress")
		case StateStopping:
			return reject(state, "cannot load a track while stopping")
		default:
			return transitionTo(StateLoading)
		}

	case Play:
		switch state {
		case StateReady, StatePaused:
			return transitionTo(StatePlaying)
		case StatePlaying:
			return noop(state)
		case StateIdle:
			return reject(state, "no track loaded")
		case StateLoading:
			return reject(state, "track is still loading")
		case StateSeeking:
			return reject(state, "seek in progress")
		case StateBuffering:
			return reject(state, "buffering in progress")
		default:
			return rejectIn(state, ev)
		}

	case Pause:
		switch state {
		case StatePlaying, StateBuffering:
			return transitionTo(StatePaused)
		case StatePaused:
			return noop(state)
		default:
			return rejectIn(state, ev)
		}

	case Stop:
		switch state {
		case StateIdle, StateStopping:
			return noop(state)
		default:
			return transitionTo(StateStopping)
		}

	case Seek:
		switch state {
		case StateReady, StatePlaying, StatePaused, StateBuffering:
			return transitionTo(StateSeeking)
		case StateSeeking:
			return noop(state)
		default:
			return rejectIn(state, ev)
		}

	case SeekComplete:
		if state == StateSeeking {
			return transitionTo(StateReady)
		}
		return reject(state, "no seek in progress")

	case SetRate, SetVolume:
		switch state {
		case StateIdle, StateReady, StatePlaying, StatePaused, StateBuffering:
			return noop(state)
		default:
			return rejectIn(state, ev)
		}

	case RestoreState:
		if state == StateIdle {
			return transitionTo(StateReady)
		}
		return reject(state, "state can only be restored when idle")

	case ReloadQueue:
		switch state {
		case StateReady, StatePlaying, StatePaused:
			return transitionTo(StateLoading)
		default:
			return rejectIn(state, ev)
		}

	case QueueReloaded:
		if state == StateLoading {
			return transitionTo(StateReady)
		}
		return reject(state, "no queue reload in progress")

	case ChapterChanged:
		switch state {
		case StateReady, StatePlaying, StatePaused, StateSeeking, StateBuffering:
			return noop(state)
		default:
			return rejectIn(state, ev)
		}

	case BufferingStarted:
		switch state {
		case StateReady, StatePlaying, StateSeeking:
			return transitionTo(StateBuffering)
		case StateBuffering:
			return noop(state)
		default:
			return rejectIn(state, ev)
		}

	case BufferingCompleted:
		switch state {
		case StateBuffering:
			return transitionTo(StateReady)
		case StateReady, StatePlaying, StatePaused:
			// Stale completion after the native layer already moved on.
			return noop(state)
		default:
			return rejectIn(state, ev)
		}

	case SessionCreated, SessionUpdated:
		switch state {
		case StateIdle, StateStopping:
			return reject(state, "no active playback to attach a session to")
		default:
			return noop(state)
		}

	case SessionEnded, SessionSyncCompleted, SessionSyncFailed:
		// Pure bookkeeping; may land at any time, including after the
		// playback it refers to is gone.
		return noop(state)

	case PositionReconciled:
		switch state {
		case StateIdle, StateLoading, StateReady, StatePaused:
			return noop(state)
		default:
			return reject(state, "position is live; reconciled value is stale")
		}

	case NativeStateChanged:
		mapped, ok := nativeToState(e.State)
		if !ok {
			return reject(state, fmt.Sprintf("unknown native state %q", e.State))
		}
		switch state {
		case StateIdle:
			return reject(state, "no track loaded")
		case StateStopping:
			if mapped == StateIdle {
				return transitionTo(StateIdle)
			}
			return reject(state, "stale native report while stopping")
		default:
			if mapped == state {
				return noop(state)
			}
			return transitionTo(mapped)
		}

	case NativeProgressUpdated:
		switch state {
		case StateSeeking:
			// First progress tick after a seek means the seek settled.
			return transitionTo(StateReady)
		case StateLoading, StateReady, StatePlaying, StatePaused, StateBuffering:
			return noop(state)
		default:
			return rejectIn(state, ev)
		}

	case NativeTrackChanged:
		switch state {
		case StateLoading, StateReady, StatePlaying, StatePaused, StateSeeking, StateBuffering:
			return noop(state)
		default:
			return rejectIn(state, ev)
		}

	case NativeError, NativePlaybackError:
		switch state {
		case StateError:
			return noop(state)
		case StateIdle:
			return reject(state, "no track loaded")
		default:
			return transitionTo(StateError)
		}

	default:
		return reject(state, fmt.Sprintf("unknown event %s", ev.Type()))
	}
}

// nativeToState maps a native player state report to a coordinator state.
func nativeToState(s NativePlaybackState) (State, bool) {
	switch s {
	case NativePlaying:
		return StatePlaying, true
	case NativePaused:
		return StatePaused, true
	case NativeBuffering:
		return StateBuffering, true
	case NativeReady:
		return StateReady, true
	case NativeLoading:
		return StateLoading, true
	case NativeIdle, NativeStopped, NativeEnded:
		return StateIdle, true
	default:
		return StateIdle, false
	}
}
