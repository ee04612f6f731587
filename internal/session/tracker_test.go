package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lvaillant/cadenza/internal/bus"
	"github.com/lvaillant/cadenza/internal/playback"
	"github.com/lvaillant/cadenza/internal/player"
	"github.com/lvaillant/cadenza/internal/store"
)

type fixture struct {
	bus     *bus.Bus
	coord   *playback.Coordinator
	store   *store.Manager
	tracker *Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	m, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	b := bus.New(nil)
	c := playback.New(playback.Options{Player: &player.Mock{}})
	t.Cleanup(c.Close)
	b.Subscribe(c.Dispatch)

	tr := New(Options{
		Coordinator: c,
		Bus:         b,
		Store:       m,
		UserID:      "u1",
		Interval:    25 * time.Millisecond,
	})
	tr.Start()
	t.Cleanup(tr.Close)

	return &fixture{bus: b, coord: c, store: m, tracker: tr}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func testTrack(id string) playback.Track {
	return playback.Track{
		LibraryItemID: id,
		Title:         "Track " + id,
		Duration:      3600,
	}
}

func (f *fixture) activeSession(t *testing.T, itemID string) *store.Session {
	t.Helper()
	sess, err := f.store.Sessions().Active(context.Background(), "u1", itemID)
	if err != nil {
		t.Fatalf("active lookup failed: %v", err)
	}
	return sess
}

func TestTracker_LoadOpensSessionAndCachesItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bus.Dispatch(playback.LoadTrack{Track: testTrack("li_1")})

	waitUntil(t, 2*time.Second, func() bool { return f.activeSession(t, "li_1") != nil })

	item, err := f.store.Items().Get(ctx, "li_1", "")
	if err != nil {
		t.Fatalf("item lookup failed: %v", err)
	}
	if item == nil || item.Title != "Track li_1" {
		t.Errorf("item cache = %+v, want cached track", item)
	}

	// The announced session id flows through the bus back into the
	// coordinator's context.
	sess := f.activeSession(t, "li_1")
	waitUntil(t, 2*time.Second, func() bool { return f.coord.Context().SessionID == sess.ID })
}

func TestTracker_SecondLoadEndsFirstSession(t *testing.T) {
	f := newFixture(t)

	f.bus.Dispatch(playback.LoadTrack{Track: testTrack("li_1")})
	waitUntil(t, 2*time.Second, func() bool { return f.activeSession(t, "li_1") != nil })

	// The coordinator rejects loads while one is in progress, so finish
	// the first load before issuing the next.
	f.bus.Dispatch(playback.NativeStateChanged{State: playback.NativeReady})
	f.bus.Dispatch(playback.LoadTrack{Track: testTrack("li_2")})

	waitUntil(t, 2*time.Second, func() bool { return f.activeSession(t, "li_2") != nil })
	waitUntil(t, 2*time.Second, func() bool { return f.activeSession(t, "li_1") == nil })
}

func TestTracker_PeriodicFlushPersistsPositionAndProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bus.Dispatch(playback.LoadTrack{Track: testTrack("li_1")})
	f.bus.Dispatch(playback.NativeStateChanged{State: playback.NativeReady})
	f.bus.Dispatch(playback.Play{})
	f.bus.Dispatch(playback.NativeProgressUpdated{Position: 120, Duration: 3600})

	waitUntil(t, 2*time.Second, func() bool {
		sess := f.activeSession(t, "li_1")
		return sess != nil && sess.Position == 120
	})

	waitUntil(t, 2*time.Second, func() bool {
		rec, err := f.store.Progress().Get(ctx, "u1", "li_1", "")
		if err != nil {
			t.Fatalf("progress lookup failed: %v", err)
		}
		return rec != nil && rec.Position == 120 && rec.Duration == 3600
	})

	sess := f.activeSession(t, "li_1")
	if sess.SyncedAt == nil {
		t.Error("expected synced_at after a successful flush")
	}
}

func TestTracker_FlushOutcomeReachesCoordinator(t *testing.T) {
	f := newFixture(t)

	f.bus.Dispatch(playback.LoadTrack{Track: testTrack("li_1")})
	f.bus.Dispatch(playback.NativeStateChanged{State: playback.NativeReady})
	f.bus.Dispatch(playback.NativeProgressUpdated{Position: 60, Duration: 3600})

	// A completed flush stamps the context: sync time set, no pending
	// position left behind.
	waitUntil(t, 2*time.Second, func() bool {
		snap := f.coord.Context()
		return !snap.LastServerSync.IsZero() && snap.PendingSyncPosition == nil
	})
}

func TestTracker_StopEndsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bus.Dispatch(playback.LoadTrack{Track: testTrack("li_1")})
	waitUntil(t, 2*time.Second, func() bool { return f.activeSession(t, "li_1") != nil })
	sess := f.activeSession(t, "li_1")

	f.bus.Dispatch(playback.NativeStateChanged{State: playback.NativeReady})
	f.bus.Dispatch(playback.Stop{})

	waitUntil(t, 2*time.Second, func() bool { return f.activeSession(t, "li_1") == nil })

	got, err := f.store.Sessions().Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.EndedAt == nil {
		t.Error("expected ended_at on stopped session")
	}

	// SESSION_ENDED flows back and clears the coordinator's context.
	waitUntil(t, 2*time.Second, func() bool { return f.coord.Context().SessionID == "" })
}

func TestTracker_EndOfFileMarksFinished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bus.Dispatch(playback.LoadTrack{Track: testTrack("li_1")})
	f.bus.Dispatch(playback.NativeStateChanged{State: playback.NativeReady})
	f.bus.Dispatch(playback.Play{})
	f.bus.Dispatch(playback.NativeProgressUpdated{Position: 3595, Duration: 3600})
	f.bus.Dispatch(playback.NativeStateChanged{State: playback.NativeEnded})

	waitUntil(t, 2*time.Second, func() bool {
		rec, err := f.store.Progress().Get(ctx, "u1", "li_1", "")
		if err != nil {
			t.Fatalf("progress lookup failed: %v", err)
		}
		return rec != nil && rec.IsFinished
	})

	rec, _ := f.store.Progress().Get(ctx, "u1", "li_1", "")
	if rec.Position != 0 {
		t.Errorf("finished progress position = %v, want 0 (start over)", rec.Position)
	}
	waitUntil(t, 2*time.Second, func() bool { return f.activeSession(t, "li_1") == nil })
}

func TestTracker_RestoreWithoutSessionOpensOne(t *testing.T) {
	f := newFixture(t)

	track := testTrack("li_1")
	f.bus.Dispatch(playback.RestoreState{State: playback.RestoredState{
		Track:    &track,
		Position: 300,
		Duration: 3600,
	}})

	waitUntil(t, 2*time.Second, func() bool {
		sess := f.activeSession(t, "li_1")
		return sess != nil && sess.Position == 300
	})
}

func TestTracker_RestoreWithSessionAdoptsIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	existing, err := f.store.Sessions().Create(ctx, "u1", "li_1", "", 250)
	if err != nil {
		t.Fatalf("seed session failed: %v", err)
	}

	track := testTrack("li_1")
	f.bus.Dispatch(playback.RestoreState{State: playback.RestoredState{
		Track:     &track,
		Position:  250,
		Duration:  3600,
		SessionID: existing.ID,
	}})
	f.bus.Dispatch(playback.NativeProgressUpdated{Position: 260, Duration: 3600})

	// The adopted session advances instead of a second one appearing.
	waitUntil(t, 2*time.Second, func() bool {
		sess := f.activeSession(t, "li_1")
		return sess != nil && sess.ID == existing.ID && sess.Position == 260
	})
}

func TestTracker_CloseEndsSession(t *testing.T) {
	m, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store failed: %v", err)
	}
	defer m.Close()

	b := bus.New(nil)
	c := playback.New(playback.Options{Player: &player.Mock{}})
	defer c.Close()
	b.Subscribe(c.Dispatch)

	tr := New(Options{Coordinator: c, Bus: b, Store: m, UserID: "u1", Interval: time.Hour})
	tr.Start()

	b.Dispatch(playback.LoadTrack{Track: testTrack("li_1")})
	waitUntil(t, 2*time.Second, func() bool {
		sess, err := m.Sessions().Active(context.Background(), "u1", "li_1")
		if err != nil {
			t.Fatalf("active lookup failed: %v", err)
		}
		return sess != nil
	})

	tr.Close()

	sess, err := m.Sessions().Active(context.Background(), "u1", "li_1")
	if err != nil {
		t.Fatalf("active lookup failed: %v", err)
	}
	if sess != nil {
		t.Errorf("session still active after tracker close: %+v", sess)
	}
}
