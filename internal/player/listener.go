package player

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lvaillant/cadenza/internal/bus"
	"github.com/lvaillant/cadenza/internal/logging"
	"github.com/lvaillant/cadenza/internal/playback"
)

// progressInterval throttles position ticks; mpv reports time-pos many
// times per second.
const progressInterval = time.Second

// Listener observes the mpv process over a persistent IPC connection
// and translates its property changes into native events on the bus.
type Listener struct {
	socketPath string
	bus        *bus.Bus
	log        *logrus.Entry

	mu     sync.Mutex
	conn   net.Conn
	closed bool

	// read-loop state, touched only by readLoop's goroutine.
	position     float64
	duration     float64
	lastProgress time.Time
}

// NewListener creates a listener for the player socket.
func NewListener(socketPath string, b *bus.Bus, log *logrus.Entry) *Listener {
	if log == nil {
		log = logging.ForComponent(logging.Discard(), "player")
	}
	return &Listener{socketPath: socketPath, bus: b, log: log}
}

// Start connects, registers property observers on the connection, and
// launches the read loop. Observers die with their connection, so they
// are issued on the same one the loop reads from.
func (l *Listener) Start() error {
	conn, err := net.Dial("unix", l.socketPath)
	if err != nil {
		return fmt.Errorf("connect to player socket: %w", err)
	}

	enc := json.NewEncoder(conn)
	for i, name := range []string{"time-pos", "pause", "seeking", "eof-reached", "duration"} {
		if err := enc.Encode(ipcCommand{Command: []any{"observe_property", i + 1, name}}); err != nil {
			conn.Close()
			return fmt.Errorf("observe %s: %w", name, err)
		}
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		conn.Close()
		return fmt.Errorf("listener already closed")
	}
	l.conn = conn
	l.mu.Unlock()

	go l.readLoop(conn)
	return nil
}

// Close stops the read loop by closing its connection.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}

func (l *Listener) readLoop(conn net.Conn) {
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), maxEventLine)
	for sc.Scan() {
		l.handleLine(sc.Bytes())
	}

	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if !closed {
		l.log.Warnf("player event stream ended: %v", sc.Err())
	}
}

const maxEventLine = 1 << 16

type mpvEvent struct {
	Event     string `json:"event"`
	Name      string `json:"name"`
	Data      any    `json:"data"`
	Reason    string `json:"reason"`
	FileError string `json:"file_error"`
	Error     string `json:"error"`
}

func (l *Listener) handleLine(line []byte) {
	var ev mpvEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return
	}

	switch ev.Event {
	case "":
		// Response to an observe command.
		if ev.Error != "" && ev.Error != "success" {
			l.log.Warnf("player rejected observer: %s", ev.Error)
		}

	case "property-change":
		l.handleProperty(ev.Name, ev.Data)

	case "file-loaded":
		l.bus.Dispatch(playback.NativeStateChanged{State: playback.NativeReady})

	case "end-file":
		if ev.Reason == "error" {
			msg := ev.FileError
			if msg == "" {
				msg = "playback ended with an error"
			}
			l.bus.Dispatch(playback.NativePlaybackError{Code: "MEDIA_FAILED", Message: msg})
		}
	}
}

func (l *Listener) handleProperty(name string, data any) {
	switch name {
	case "time-pos":
		pos, ok := data.(float64)
		if !ok {
			return
		}
		l.position = pos
		l.progress(false)

	case "duration":
		if dur, ok := data.(float64); ok {
			l.duration = dur
		}

	case "pause":
		paused, ok := data.(bool)
		if !ok {
			return
		}
		state := playback.NativePlaying
		if paused {
			state = playback.NativePaused
		}
		l.bus.Dispatch(playback.NativeStateChanged{State: state})

	case "seeking":
		// The end of a native seek reports the landing position right
		// away rather than waiting out the throttle window.
		if seeking, ok := data.(bool); ok && !seeking {
			l.progress(true)
		}

	case "eof-reached":
		if eof, ok := data.(bool); ok && eof {
			l.bus.Dispatch(playback.NativeStateChanged{State: playback.NativeEnded})
		}
	}
}

func (l *Listener) progress(force bool) {
	if !force && time.Since(l.lastProgress) < progressInterval {
		return
	}
	l.lastProgress = time.Now()
	l.bus.Dispatch(playback.NativeProgressUpdated{Position: l.position, Duration: l.duration})
}
