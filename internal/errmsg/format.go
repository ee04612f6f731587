// Package errmsg provides consistent error formatting for log and diagnostic messages.
package errmsg

import "fmt"

// Op represents an operation that can fail.
type Op string

// Operation constants - grouped by domain.
const (
	// Playback execution operations
	OpExecuteLoad      Op = "execute track load"
	OpExecutePlay      Op = "execute play"
	OpExecutePause     Op = "execute pause"
	OpExecuteStop      Op = "execute stop"
	OpExecuteSeek      Op = "execute seek"
	OpExecuteSetRate   Op = "execute rate change"
	OpExecuteSetVolume Op = "execute volume change"

	// Coordinator operations
	OpProcessEvent    Op = "process playback event"
	OpProjectState    Op = "project state to store"
	OpProjectPosition Op = "project position to store"
	OpResolvePosition Op = "resolve resume position"
	OpRestoreState    Op = "restore playback state"

	// Bridge operations
	OpBridgeSend    Op = "forward event over bridge"
	OpBridgeReceive Op = "decode bridged event"

	// Session operations
	OpSessionCreate Op = "create playback session"
	OpSessionUpdate Op = "update playback session"
	OpSessionEnd    Op = "end playback session"
	OpSessionSync   Op = "sync playback session"

	// Store operations
	OpProgressSave Op = "save media progress"
	OpProgressLoad Op = "load media progress"
	OpItemUpsert   Op = "upsert library item"
	OpItemLoad     Op = "load library item"

	// Local position cache
	OpPositionSave  Op = "save local position"
	OpPositionLoad  Op = "load local position"
	OpPositionClear Op = "clear local position"

	// Scrobbling
	OpNowPlaying Op = "update now playing"
	OpScrobble   Op = "submit scrobble"

	// Initialization
	OpInitialize Op = "initialize daemon"
)

// Format creates a consistent failure message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}

// FormatWith creates a failure message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v", op, context, err)
}
