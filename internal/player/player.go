// Package player drives a local mpv process over its JSON IPC socket:
// commands flow in through the playback.Service contract, native events
// flow out through a property listener onto the event bus.
package player

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// URLResolver maps a playable unit to the URL or path handed to the
// player. The default resolver treats the library item id as the target
// itself.
type URLResolver func(libraryItemID, episodeID string) (string, error)

func identityResolver(libraryItemID, _ string) (string, error) {
	return libraryItemID, nil
}

const commandReadDeadline = 2 * time.Second

type ipcCommand struct {
	Command   []any `json:"command"`
	RequestID int   `json:"request_id,omitempty"`
}

type ipcResponse struct {
	Error     string `json:"error"`
	Data      any    `json:"data"`
	RequestID int    `json:"request_id"`
	Event     string `json:"event"`
}

// sendCommands writes a batch of commands on a fresh connection and
// collects one response per command, skipping interleaved event lines.
func sendCommands(socketPath string, cmds ...ipcCommand) ([]ipcResponse, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to player socket: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(commandReadDeadline))

	encoder := json.NewEncoder(conn)
	for _, cmd := range cmds {
		if err := encoder.Encode(cmd); err != nil {
			return nil, fmt.Errorf("send player command: %w", err)
		}
	}

	var responses []ipcResponse
	scanner := bufio.NewScanner(conn)
	for len(responses) < len(cmds) && scanner.Scan() {
		var resp ipcResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue
		}
		if resp.Event != "" {
			continue
		}
		if resp.Error != "" && resp.Error != "success" {
			return nil, fmt.Errorf("player rejected command: %s", resp.Error)
		}
		responses = append(responses, resp)
	}
	if len(responses) < len(cmds) {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read player response: %w", err)
		}
		return nil, fmt.Errorf("player closed connection mid-command")
	}
	return responses, nil
}
