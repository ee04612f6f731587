package player

import (
	"sync"
	"testing"
	"time"

	"github.com/lvaillant/cadenza/internal/bus"
	"github.com/lvaillant/cadenza/internal/playback"
)

type eventSink struct {
	mu     sync.Mutex
	events []playback.Event
}

func (s *eventSink) add(ev playback.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) all() []playback.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]playback.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *eventSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func startListener(t *testing.T) (*fakeMpv, *eventSink) {
	t.Helper()
	fake, path := newFakeMpv(t)
	b := bus.New(nil)
	sink := &eventSink{}
	b.Subscribe(sink.add)

	l := NewListener(path, b, nil)
	if err := l.Start(); err != nil {
		t.Fatalf("listener start failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	// Five observers register before events can flow.
	waitUntil(t, 2*time.Second, func() bool { return fake.commandCount() == 5 })
	return fake, sink
}

func TestListener_RegistersObservers(t *testing.T) {
	fake, _ := startListener(t)

	want := map[string]bool{"time-pos": false, "pause": false, "seeking": false, "eof-reached": false, "duration": false}
	for _, cmd := range fake.commands() {
		if len(cmd) == 3 && cmd[0] == "observe_property" {
			if name, ok := cmd[2].(string); ok {
				want[name] = true
			}
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("property %s was not observed", name)
		}
	}
}

func TestListener_ProgressTicksAreThrottled(t *testing.T) {
	fake, sink := startListener(t)

	fake.push(`{"event":"property-change","id":5,"name":"duration","data":3600}`)
	fake.push(`{"event":"property-change","id":1,"name":"time-pos","data":10}`)
	waitUntil(t, 2*time.Second, func() bool { return sink.count() == 1 })

	// Ticks inside the throttle window are dropped.
	fake.push(`{"event":"property-change","id":1,"name":"time-pos","data":10.2}`)
	fake.push(`{"event":"property-change","id":1,"name":"time-pos","data":10.4}`)
	time.Sleep(50 * time.Millisecond)

	events := sink.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 (throttled)", len(events))
	}
	prog, ok := events[0].(playback.NativeProgressUpdated)
	if !ok {
		t.Fatalf("got %T, want NativeProgressUpdated", events[0])
	}
	if prog.Position != 10 || prog.Duration != 3600 {
		t.Errorf("progress = %+v, want position 10 / duration 3600", prog)
	}
}

func TestListener_SeekEndFlushesImmediately(t *testing.T) {
	fake, sink := startListener(t)

	fake.push(`{"event":"property-change","id":1,"name":"time-pos","data":10}`)
	waitUntil(t, 2*time.Second, func() bool { return sink.count() == 1 })

	// Landing position arrives inside the throttle window, but the end
	// of a seek must not wait for it.
	fake.push(`{"event":"property-change","id":1,"name":"time-pos","data":500}`)
	fake.push(`{"event":"property-change","id":3,"name":"seeking","data":false}`)
	waitUntil(t, 2*time.Second, func() bool { return sink.count() == 2 })

	prog, ok := sink.all()[1].(playback.NativeProgressUpdated)
	if !ok {
		t.Fatalf("got %T, want NativeProgressUpdated", sink.all()[1])
	}
	if prog.Position != 500 {
		t.Errorf("flushed position = %v, want 500", prog.Position)
	}
}

func TestListener_PauseMapsToNativeState(t *testing.T) {
	fake, sink := startListener(t)

	fake.push(`{"event":"property-change","id":2,"name":"pause","data":true}`)
	fake.push(`{"event":"property-change","id":2,"name":"pause","data":false}`)
	waitUntil(t, 2*time.Second, func() bool { return sink.count() == 2 })

	events := sink.all()
	first, ok := events[0].(playback.NativeStateChanged)
	if !ok || first.State != playback.NativePaused {
		t.Errorf("first event = %+v, want native paused", events[0])
	}
	second, ok := events[1].(playback.NativeStateChanged)
	if !ok || second.State != playback.NativePlaying {
		t.Errorf("second event = %+v, want native playing", events[1])
	}
}

func TestListener_EofDispatchesEnded(t *testing.T) {
	fake, sink := startListener(t)

	fake.push(`{"event":"property-change","id":4,"name":"eof-reached","data":false}`)
	fake.push(`{"event":"property-change","id":4,"name":"eof-reached","data":true}`)
	waitUntil(t, 2*time.Second, func() bool { return sink.count() == 1 })

	ev, ok := sink.all()[0].(playback.NativeStateChanged)
	if !ok || ev.State != playback.NativeEnded {
		t.Errorf("event = %+v, want native ended", sink.all()[0])
	}
}

func TestListener_FileLoadedDispatchesReady(t *testing.T) {
	fake, sink := startListener(t)

	fake.push(`{"event":"file-loaded"}`)
	waitUntil(t, 2*time.Second, func() bool { return sink.count() == 1 })

	ev, ok := sink.all()[0].(playback.NativeStateChanged)
	if !ok || ev.State != playback.NativeReady {
		t.Errorf("event = %+v, want native ready", sink.all()[0])
	}
}

func TestListener_EndFileErrorDispatchesPlaybackError(t *testing.T) {
	fake, sink := startListener(t)

	fake.push(`{"event":"end-file","reason":"error","file_error":"loading failed"}`)
	waitUntil(t, 2*time.Second, func() bool { return sink.count() == 1 })

	ev, ok := sink.all()[0].(playback.NativePlaybackError)
	if !ok {
		t.Fatalf("got %T, want NativePlaybackError", sink.all()[0])
	}
	if ev.Code != "MEDIA_FAILED" || ev.Message != "loading failed" {
		t.Errorf("error event = %+v", ev)
	}
}

func TestListener_IgnoresGarbageAndIdleTicks(t *testing.T) {
	fake, sink := startListener(t)

	fake.push(`not json at all`)
	fake.push(`{"event":"property-change","id":1,"name":"time-pos","data":null}`)
	fake.push(`{"event":"property-change","id":2,"name":"pause","data":true}`)
	waitUntil(t, 2*time.Second, func() bool { return sink.count() == 1 })

	if _, ok := sink.all()[0].(playback.NativeStateChanged); !ok {
		t.Errorf("surviving event = %T, want NativeStateChanged", sink.all()[0])
	}
}
