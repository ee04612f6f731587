package bus

import (
	"fmt"
	"sync"
	"testing"

	"github.com/lvaillant/cadenza/internal/playback"
)

func TestBus_DispatchFansOutToAllListeners(t *testing.T) {
	b := New(nil)

	var got1, got2 []playback.EventType
	b.Subscribe(func(ev playback.Event) { got1 = append(got1, ev.Type()) })
	b.Subscribe(func(ev playback.Event) { got2 = append(got2, ev.Type()) })

	b.Dispatch(playback.Play{})
	b.Dispatch(playback.Pause{})

	want := []playback.EventType{playback.EventPlay, playback.EventPause}
	for i, w := range want {
		if got1[i] != w || got2[i] != w {
			t.Fatalf("listener mismatch at %d: got %v / %v, want %v", i, got1[i], got2[i], w)
		}
	}
}

func TestBus_DispatchCompletesBeforeReturning(t *testing.T) {
	b := New(nil)

	delivered := false
	b.Subscribe(func(playback.Event) { delivered = true })

	b.Dispatch(playback.Stop{})
	if !delivered {
		t.Fatal("expected synchronous delivery before Dispatch returned")
	}
}

func TestBus_PanickingListenerDoesNotBlockSiblings(t *testing.T) {
	b := New(nil)

	var before, after int
	b.Subscribe(func(playback.Event) { before++ })
	b.Subscribe(func(playback.Event) { panic("listener bug") })
	b.Subscribe(func(playback.Event) { after++ })

	b.Dispatch(playback.Play{})
	b.Dispatch(playback.Pause{})

	if before != 2 || after != 2 {
		t.Fatalf("siblings missed deliveries: before=%d after=%d, want 2/2", before, after)
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)

	var count int
	unsubscribe := b.Subscribe(func(playback.Event) { count++ })

	b.Dispatch(playback.Play{})
	unsubscribe()
	b.Dispatch(playback.Pause{})

	if count != 1 {
		t.Fatalf("expected 1 delivery after unsubscribe, got %d", count)
	}
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	b := New(nil)

	unsubscribe := b.Subscribe(func(playback.Event) {})
	unsubscribe()
	unsubscribe()

	var count int
	b.Subscribe(func(playback.Event) { count++ })
	b.Dispatch(playback.Play{})
	if count != 1 {
		t.Fatalf("expected surviving listener to receive event, got %d deliveries", count)
	}
}

func TestBus_HistoryIsBounded(t *testing.T) {
	b := New(nil)

	for i := 0; i < historyCapacity+30; i++ {
		b.Dispatch(playback.Seek{Position: float64(i)})
	}

	h := b.History()
	if len(h) != historyCapacity {
		t.Fatalf("history length = %d, want %d", len(h), historyCapacity)
	}
	first, ok := h[0].Event.(playback.Seek)
	if !ok {
		t.Fatalf("unexpected event type in history: %T", h[0].Event)
	}
	if first.Position != 30 {
		t.Errorf("oldest retained entry = %v, want position 30", first.Position)
	}
	last := h[len(h)-1].Event.(playback.Seek)
	if last.Position != float64(historyCapacity+29) {
		t.Errorf("newest entry = %v, want position %d", last.Position, historyCapacity+29)
	}
}

func TestBus_ConcurrentDispatchIsSafe(t *testing.T) {
	b := New(nil)

	var mu sync.Mutex
	var count int
	b.Subscribe(func(playback.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				b.Dispatch(playback.SessionUpdated{SessionID: fmt.Sprintf("s%d", n), Position: float64(j)})
			}
		}(i)
	}
	wg.Wait()

	if count != 200 {
		t.Fatalf("expected 200 deliveries, got %d", count)
	}
	if len(b.History()) != historyCapacity {
		t.Fatalf("history length = %d, want %d", len(b.History()), historyCapacity)
	}
}

func TestBus_SubscribeDuringDispatchDoesNotDeadlock(t *testing.T) {
	b := New(nil)

	var lateCount int
	b.Subscribe(func(ev playback.Event) {
		if ev.Type() == playback.EventLoadTrack {
			b.Subscribe(func(playback.Event) { lateCount++ })
		}
	})

	b.Dispatch(playback.LoadTrack{})
	b.Dispatch(playback.Play{})

	if lateCount != 1 {
		t.Fatalf("late subscriber deliveries = %d, want 1", lateCount)
	}
}
