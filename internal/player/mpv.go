package player

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lvaillant/cadenza/internal/logging"
	"github.com/lvaillant/cadenza/internal/playback"
)

const (
	socketCheckRetries  = 20
	socketCheckInterval = 100 * time.Millisecond
)

// Options configures the mpv-backed service.
type Options struct {
	Binary     string // player binary, default "mpv"
	SocketPath string
	Resolve    URLResolver
	Log        *logrus.Entry
}

// MPV executes playback commands against an mpv process over its IPC
// socket. It never dispatches events itself; the Listener does that.
type MPV struct {
	log        *logrus.Entry
	binary     string
	socketPath string
	resolve    URLResolver

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
}

var _ playback.Service = (*MPV)(nil)

// NewMPV creates the service. Call Start to spawn the player process;
// commands against an already-running mpv work without Start.
func NewMPV(opts Options) *MPV {
	log := opts.Log
	if log == nil {
		log = logging.ForComponent(logging.Discard(), "player")
	}
	binary := opts.Binary
	if binary == "" {
		binary = "mpv"
	}
	resolve := opts.Resolve
	if resolve == nil {
		resolve = identityResolver
	}
	return &MPV{
		log:        log,
		binary:     binary,
		socketPath: opts.SocketPath,
		resolve:    resolve,
	}
}

// Start spawns an idle mpv process and waits for its IPC socket.
func (m *MPV) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd != nil {
		select {
		case <-m.exited:
			m.cmd = nil
		default:
			return nil
		}
	}

	os.Remove(m.socketPath)
	m.log.WithField("binary", m.binary).Info("starting player process")

	cmd := exec.Command(m.binary,
		"--idle=yes",
		"--no-video",
		"--no-terminal",
		"--really-quiet",
		"--input-ipc-server="+m.socketPath,
	)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", m.binary, err)
	}

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	m.cmd = cmd
	m.exited = exited

	for i := 0; i < socketCheckRetries; i++ {
		if _, err := os.Stat(m.socketPath); err == nil {
			return nil
		}
		time.Sleep(socketCheckInterval)
	}

	_ = cmd.Process.Kill()
	m.cmd = nil
	return fmt.Errorf("player socket did not appear at %s", m.socketPath)
}

// Close kills the player process and removes its socket.
func (m *MPV) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd != nil && m.cmd.Process != nil {
		if err := m.cmd.Process.Kill(); err != nil {
			m.log.Warnf("could not terminate player process: %v", err)
		}
		m.cmd = nil
	}
	os.Remove(m.socketPath)
	return nil
}

// ExecuteLoadTrack loads the playable unit paused at position zero.
func (m *MPV) ExecuteLoadTrack(libraryItemID, episodeID string) error {
	target, err := m.resolve(libraryItemID, episodeID)
	if err != nil {
		return fmt.Errorf("resolve media target: %w", err)
	}
	_, err = sendCommands(m.socketPath,
		ipcCommand{Command: []any{"loadfile", target, "replace"}},
		ipcCommand{Command: []any{"set_property", "pause", true}},
	)
	return err
}

// ExecutePlay resumes playback. Playing while already playing is a no-op.
func (m *MPV) ExecutePlay() error {
	_, err := sendCommands(m.socketPath, ipcCommand{Command: []any{"set_property", "pause", false}})
	return err
}

// ExecutePause pauses playback. Pausing while paused is a no-op.
func (m *MPV) ExecutePause() error {
	_, err := sendCommands(m.socketPath, ipcCommand{Command: []any{"set_property", "pause", true}})
	return err
}

// ExecuteStop unloads the current file and returns the player to idle.
func (m *MPV) ExecuteStop() error {
	_, err := sendCommands(m.socketPath, ipcCommand{Command: []any{"stop"}})
	return err
}

// ExecuteSeek jumps to an absolute position in seconds.
func (m *MPV) ExecuteSeek(position float64) error {
	_, err := sendCommands(m.socketPath, ipcCommand{Command: []any{"seek", position, "absolute"}})
	return err
}

// ExecuteSetRate sets the playback speed multiplier.
func (m *MPV) ExecuteSetRate(rate float64) error {
	_, err := sendCommands(m.socketPath, ipcCommand{Command: []any{"set_property", "speed", rate}})
	return err
}

// ExecuteSetVolume sets the volume. The coordinator's scale is 0..1,
// mpv's is 0..100.
func (m *MPV) ExecuteSetVolume(volume float64) error {
	_, err := sendCommands(m.socketPath, ipcCommand{Command: []any{"set_property", "volume", volume * 100}})
	return err
}
