package bridge

import (
	"sync"
	"testing"

	"github.com/lvaillant/cadenza/internal/bus"
	"github.com/lvaillant/cadenza/internal/playback"
)

// captureTransport records sends and lets tests inject received messages.
type captureTransport struct {
	mu      sync.Mutex
	handler func(Message)
	sent    []Message
}

func (t *captureTransport) Start(h func(Message)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
	return nil
}

func (t *captureTransport) Send(m Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, m)
	return nil
}

func (t *captureTransport) Close() error { return nil }

func (t *captureTransport) deliver(m Message) {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	h(m)
}

func (t *captureTransport) sentMessages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.sent))
	copy(out, t.sent)
	return out
}

// echoTransport bounces every send straight back to its own handler,
// simulating a native layer that reflects broadcasts to their origin.
type echoTransport struct {
	mu      sync.Mutex
	handler func(Message)
}

func (t *echoTransport) Start(h func(Message)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
	return nil
}

func (t *echoTransport) Send(m Message) error {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	h(m)
	return nil
}

func (t *echoTransport) Close() error { return nil }

func countByType(events []playback.Event, want playback.EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type() == want {
			n++
		}
	}
	return n
}

func TestIntegrator_ForwardsLocalEventsWithOwnContextID(t *testing.T) {
	b := bus.New(nil)
	tr := &captureTransport{}
	i, err := NewIntegrator(b, tr, nil)
	if err != nil {
		t.Fatalf("NewIntegrator failed: %v", err)
	}
	defer i.Close()

	b.Dispatch(playback.Seek{Position: 301.5})

	sent := tr.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 forwarded message, got %d", len(sent))
	}
	if sent[0].Type != string(playback.EventSeek) {
		t.Errorf("forwarded type = %q, want %q", sent[0].Type, playback.EventSeek)
	}
	if sent[0].ContextID != i.ContextID() {
		t.Errorf("forwarded contextId = %q, want integrator's own %q", sent[0].ContextID, i.ContextID())
	}
	if sent[0].ContextID == "" {
		t.Error("contextId must not be empty")
	}
}

func TestIntegrator_DropsOwnEcho(t *testing.T) {
	b := bus.New(nil)

	var mu sync.Mutex
	var seen []playback.Event
	b.Subscribe(func(ev playback.Event) {
		mu.Lock()
		seen = append(seen, ev)
		mu.Unlock()
	})

	i, err := NewIntegrator(b, &echoTransport{}, nil)
	if err != nil {
		t.Fatalf("NewIntegrator failed: %v", err)
	}
	defer i.Close()

	// The echo transport reflects the broadcast straight back, so a
	// bouncing implementation would dispatch PLAY a second time (and
	// then loop forever).
	b.Dispatch(playback.Play{})

	mu.Lock()
	defer mu.Unlock()
	if got := countByType(seen, playback.EventPlay); got != 1 {
		t.Fatalf("local listeners saw PLAY %d times, want exactly 1", got)
	}
}

func TestIntegrator_CrossContextDeliveryExactlyOnce(t *testing.T) {
	busA := bus.New(nil)
	busB := bus.New(nil)
	endA, endB := Pair()

	var mu sync.Mutex
	var seenA, seenB []playback.Event
	busA.Subscribe(func(ev playback.Event) {
		mu.Lock()
		seenA = append(seenA, ev)
		mu.Unlock()
	})
	busB.Subscribe(func(ev playback.Event) {
		mu.Lock()
		seenB = append(seenB, ev)
		mu.Unlock()
	})

	ia, err := NewIntegrator(busA, endA, nil)
	if err != nil {
		t.Fatalf("integrator A failed: %v", err)
	}
	defer ia.Close()
	ib, err := NewIntegrator(busB, endB, nil)
	if err != nil {
		t.Fatalf("integrator B failed: %v", err)
	}
	defer ib.Close()

	// Pair delivery is synchronous, so the full A -> B chain has
	// completed by the time Dispatch returns.
	busA.Dispatch(playback.Seek{Position: 88})

	mu.Lock()
	defer mu.Unlock()
	if got := countByType(seenB, playback.EventSeek); got != 1 {
		t.Fatalf("context B saw SEEK %d times, want exactly 1", got)
	}
	if got := countByType(seenA, playback.EventSeek); got != 1 {
		t.Fatalf("context A saw SEEK %d times, want exactly 1 (no bounce-back)", got)
	}

	ev, ok := seenB[0].(playback.Seek)
	if !ok {
		t.Fatalf("context B received %T, want playback.Seek", seenB[0])
	}
	if ev.Position != 88 {
		t.Errorf("payload lost in transit: position = %v, want 88", ev.Position)
	}
}

func TestIntegrator_ReinjectedEventIsNotRebroadcast(t *testing.T) {
	b := bus.New(nil)
	tr := &captureTransport{}
	i, err := NewIntegrator(b, tr, nil)
	if err != nil {
		t.Fatalf("NewIntegrator failed: %v", err)
	}
	defer i.Close()

	tr.deliver(Message{Type: string(playback.EventPause), ContextID: "other-context"})

	if got := len(tr.sentMessages()); got != 0 {
		t.Fatalf("remote event was re-broadcast outward %d times, want 0", got)
	}
}

func TestIntegrator_UnknownMessageTypeIsDropped(t *testing.T) {
	b := bus.New(nil)

	var mu sync.Mutex
	var seen []playback.Event
	b.Subscribe(func(ev playback.Event) {
		mu.Lock()
		seen = append(seen, ev)
		mu.Unlock()
	})

	tr := &captureTransport{}
	i, err := NewIntegrator(b, tr, nil)
	if err != nil {
		t.Fatalf("NewIntegrator failed: %v", err)
	}
	defer i.Close()

	tr.deliver(Message{Type: "SELF_DESTRUCT", ContextID: "other-context"})
	tr.deliver(Message{Type: string(playback.EventPlay), ContextID: "other-context"})

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0].Type() != playback.EventPlay {
		t.Fatalf("expected only PLAY to survive, got %v", seen)
	}
}

func TestIntegrator_CloseStopsForwarding(t *testing.T) {
	b := bus.New(nil)
	tr := &captureTransport{}
	i, err := NewIntegrator(b, tr, nil)
	if err != nil {
		t.Fatalf("NewIntegrator failed: %v", err)
	}

	b.Dispatch(playback.Play{})
	if err := i.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	b.Dispatch(playback.Pause{})

	sent := tr.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 forwarded message after close, got %d", len(sent))
	}
}
