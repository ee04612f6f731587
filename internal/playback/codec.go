package playback

import (
	"encoding/json"
	"fmt"
)

// EncodeEvent serializes an event into its wire type name and JSON
// payload. Events without payload fields encode a nil payload.
func EncodeEvent(ev Event) (EventType, json.RawMessage, error) {
	switch ev.(type) {
	case Play, Pause, Stop, SeekComplete, BufferingStarted, BufferingCompleted, SessionSyncCompleted:
		return ev.Type(), nil, nil
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return ev.Type(), nil, fmt.Errorf("encode %s: %w", ev.Type(), err)
	}
	return ev.Type(), raw, nil
}

// DecodeEvent reconstructs an event from its wire type name and JSON
// payload. Unknown types and malformed payloads are errors; the caller
// decides whether to drop or surface them.
func DecodeEvent(t EventType, payload json.RawMessage) (Event, error) {
	decode := func(v any) error {
		if len(payload) == 0 {
			return nil
		}
		return json.Unmarshal(payload, v)
	}

	var (
		ev  Event
		err error
	)
	switch t {
	case EventLoadTrack:
		var e LoadTrack
		err = decode(&e)
		ev = e
	case EventPlay:
		ev = Play{}
	case EventPause:
		ev = Pause{}
	case EventStop:
		ev = Stop{}
	case EventSeek:
		var e Seek
		err = decode(&e)
		ev = e
	case EventSeekComplete:
		ev = SeekComplete{}
	case EventSetRate:
		var e SetRate
		err = decode(&e)
		ev = e
	case EventSetVolume:
		var e SetVolume
		err = decode(&e)
		ev = e
	case EventRestoreState:
		var e RestoreState
		err = decode(&e)
		ev = e
	case EventReloadQueue:
		var e ReloadQueue
		err = decode(&e)
		ev = e
	case EventQueueReloaded:
		var e QueueReloaded
		err = decode(&e)
		ev = e
	case EventChapterChanged:
		var e ChapterChanged
		err = decode(&e)
		ev = e
	case EventBufferingStarted:
		ev = BufferingStarted{}
	case EventBufferingCompleted:
		ev = BufferingCompleted{}
	case EventSessionCreated:
		var e SessionCreated
		err = decode(&e)
		ev = e
	case EventSessionUpdated:
		var e SessionUpdated
		err = decode(&e)
		ev = e
	case EventSessionEnded:
		var e SessionEnded
		err = decode(&e)
		ev = e
	case EventSessionSyncCompleted:
		ev = SessionSyncCompleted{}
	case EventSessionSyncFailed:
		var e SessionSyncFailed
		err = decode(&e)
		ev = e
	case EventPositionReconciled:
		var e PositionReconciled
		err = decode(&e)
		ev = e
	case EventNativeStateChanged:
		var e NativeStateChanged
		err = decode(&e)
		ev = e
	case EventNativeProgress:
		var e NativeProgressUpdated
		err = decode(&e)
		ev = e
	case EventNativeTrackChanged:
		var e NativeTrackChanged
		err = decode(&e)
		ev = e
	case EventNativeError:
		var e NativeError
		err = decode(&e)
		ev = e
	case EventNativePlaybackError:
		var e NativePlaybackError
		err = decode(&e)
		ev = e
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return ev, nil
}
