package bridge

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Send on a closed transport end.
var ErrClosed = errors.New("bridge: transport closed")

// pairEnd is one side of an in-process transport pair. Delivery is
// synchronous: Send returns after the peer's handler has run.
type pairEnd struct {
	mu      sync.Mutex
	peer    *pairEnd
	handler func(Message)
	closed  bool
}

// Pair returns two linked in-process transports. Messages sent on one
// end are delivered to the other's handler. Used when both contexts
// live in one process, and by tests.
func Pair() (Transport, Transport) {
	a := &pairEnd{}
	b := &pairEnd{}
	a.peer = b
	b.peer = a
	return a, b
}

func (e *pairEnd) Start(handler func(Message)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.handler = handler
	return nil
}

func (e *pairEnd) Send(m Message) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	peer := e.peer
	e.mu.Unlock()

	peer.mu.Lock()
	handler := peer.handler
	if peer.closed {
		handler = nil
	}
	peer.mu.Unlock()

	// A peer with no handler yet behaves like a socket with no
	// connected client: the message goes nowhere.
	if handler != nil {
		handler(m)
	}
	return nil
}

func (e *pairEnd) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.handler = nil
	return nil
}
