package bridge

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lvaillant/cadenza/internal/logging"
)

// maxLineBytes bounds a single newline-delimited message on the socket.
const maxLineBytes = 1 << 20

// ListenTransport is the daemon side of the bridge socket. It accepts
// any number of peers, reads newline-delimited JSON messages from each,
// and fans outgoing messages to all of them. Malformed lines are
// dropped without closing the connection.
type ListenTransport struct {
	log *logrus.Entry

	mu     sync.Mutex
	path   string
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed bool
}

// Listen binds the bridge socket, replacing any stale socket file.
func Listen(path string, log *logrus.Entry) (*ListenTransport, error) {
	if log == nil {
		log = logging.ForComponent(logging.Discard(), "bridge")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	return &ListenTransport{
		log:   log,
		path:  path,
		ln:    ln,
		conns: make(map[net.Conn]struct{}),
	}, nil
}

// Start launches the accept loop. Each peer gets its own read loop
// feeding the handler.
func (t *ListenTransport) Start(handler func(Message)) error {
	go func() {
		for {
			conn, err := t.ln.Accept()
			if err != nil {
				t.mu.Lock()
				closed := t.closed
				t.mu.Unlock()
				if closed {
					return
				}
				t.log.Debugf("accept failed: %v", err)
				continue
			}

			t.mu.Lock()
			if t.closed {
				t.mu.Unlock()
				conn.Close()
				return
			}
			t.conns[conn] = struct{}{}
			t.mu.Unlock()

			go t.read(conn, handler)
		}
	}()
	return nil
}

func (t *ListenTransport) read(conn net.Conn, handler func(Message)) {
	defer func() {
		t.mu.Lock()
		delete(t.conns, conn)
		t.mu.Unlock()
		conn.Close()
	}()

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			t.log.Warnf("dropped malformed message: %v", err)
			continue
		}
		handler(msg)
	}
}

// Send writes the message to every connected peer. Peers whose write
// fails are dropped; Send itself never fails once marshalling succeeds.
func (t *ListenTransport) Send(m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	for conn := range t.conns {
		if _, err := conn.Write(data); err != nil {
			t.log.Debugf("dropping peer after write failure: %v", err)
			delete(t.conns, conn)
			conn.Close()
		}
	}
	return nil
}

// Close shuts the listener, disconnects all peers, and removes the
// socket file.
func (t *ListenTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conns := make([]net.Conn, 0, len(t.conns))
	for conn := range t.conns {
		conns = append(conns, conn)
	}
	t.conns = nil
	t.mu.Unlock()

	err := t.ln.Close()
	for _, conn := range conns {
		conn.Close()
	}
	_ = os.Remove(t.path)
	return err
}

// DialTransport is the client side of the bridge socket.
type DialTransport struct {
	log *logrus.Entry

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// Dial connects to a listening bridge socket.
func Dial(path string, log *logrus.Entry) (*DialTransport, error) {
	if log == nil {
		log = logging.ForComponent(logging.Discard(), "bridge")
	}
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", path, err)
	}
	return &DialTransport{log: log, conn: conn}, nil
}

// Start launches the read loop feeding the handler.
func (t *DialTransport) Start(handler func(Message)) error {
	go func() {
		sc := bufio.NewScanner(t.conn)
		sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			var msg Message
			if err := json.Unmarshal(line, &msg); err != nil {
				t.log.Warnf("dropped malformed message: %v", err)
				continue
			}
			handler(msg)
		}
	}()
	return nil
}

// Send writes one newline-delimited message.
func (t *DialTransport) Send(m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	_, err = t.conn.Write(data)
	return err
}

// Close disconnects from the socket.
func (t *DialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}
