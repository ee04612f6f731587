// Package bus is the in-process publish/subscribe channel that decouples
// event producers (commands, native callbacks, the cross-context bridge)
// from the coordinator.
package bus

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lvaillant/cadenza/internal/logging"
	"github.com/lvaillant/cadenza/internal/playback"
)

// historyCapacity bounds the dispatch history kept for diagnostics.
const historyCapacity = 100

// Listener receives every dispatched event. A panicking listener is
// isolated: it is logged and never blocks siblings or the dispatcher.
type Listener func(playback.Event)

// HistoryEntry records one dispatched event for diagnostics.
type HistoryEntry struct {
	Event playback.Event
	Time  time.Time
}

// Bus fans events out synchronously to all subscribed listeners.
type Bus struct {
	log *logrus.Entry

	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
	history   []HistoryEntry
}

// New creates an empty bus.
func New(log *logrus.Entry) *Bus {
	if log == nil {
		log = logging.ForComponent(logging.Discard(), "bus")
	}
	return &Bus{
		log:       log,
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers a listener and returns its unsubscribe function.
func (b *Bus) Subscribe(fn Listener) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// Dispatch delivers the event to every listener before returning.
// Listener failures are logged per listener and do not stop the fan-out.
// No ordering is guaranteed between concurrent Dispatch calls, only
// that each call's own fan-out completes before it returns.
func (b *Bus) Dispatch(ev playback.Event) {
	b.mu.Lock()
	b.history = append(b.history, HistoryEntry{Event: ev, Time: time.Now()})
	if len(b.history) > historyCapacity {
		b.history = b.history[len(b.history)-historyCapacity:]
	}
	fns := make([]Listener, 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		b.deliver(fn, ev)
	}
}

func (b *Bus) deliver(fn Listener, ev playback.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithField("event", ev.Type()).Errorf("listener panicked: %v", r)
		}
	}()
	fn(ev)
}

// History returns a copy of the bounded dispatch history, oldest first.
func (b *Bus) History() []HistoryEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]HistoryEntry, len(b.history))
	copy(out, b.history)
	return out
}
