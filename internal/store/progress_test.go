package store

import (
	"context"
	"testing"
	"time"
)

func TestProgress_UpsertIsIdempotent(t *testing.T) {
	m := openTestStore(t)
	ctx := context.Background()

	rec := MediaProgress{UserID: "u1", LibraryItemID: "li_1", Position: 100, Duration: 3600}
	if err := m.Progress().Upsert(ctx, rec); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	rec.Position = 250
	if err := m.Progress().Upsert(ctx, rec); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	var count int
	if err := m.DB().QueryRow(`SELECT COUNT(*) FROM media_progress`).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row after repeated upsert, got %d", count)
	}

	got, err := m.Progress().Get(ctx, "u1", "li_1", "")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil || got.Position != 250 {
		t.Errorf("progress = %+v, want position 250", got)
	}
}

func TestProgress_GetReturnsNilWhenMissing(t *testing.T) {
	m := openTestStore(t)

	got, err := m.Progress().Get(context.Background(), "u1", "li_missing", "")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestProgress_LatestPicksNewestAcrossEpisodes(t *testing.T) {
	m := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	episodes := []MediaProgress{
		{UserID: "u1", LibraryItemID: "li_pod", EpisodeID: "ep_1", Position: 600, UpdatedAt: base},
		{UserID: "u1", LibraryItemID: "li_pod", EpisodeID: "ep_2", Position: 45, UpdatedAt: base.Add(time.Hour)},
	}
	for _, rec := range episodes {
		if err := m.Progress().Upsert(ctx, rec); err != nil {
			t.Fatalf("upsert %s failed: %v", rec.EpisodeID, err)
		}
	}

	got, err := m.Progress().Latest(ctx, "u1", "li_pod")
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if got == nil || got.EpisodeID != "ep_2" {
		t.Errorf("latest = %+v, want ep_2", got)
	}
}

func TestProgress_MarkFinished(t *testing.T) {
	m := openTestStore(t)
	ctx := context.Background()

	rec := MediaProgress{UserID: "u1", LibraryItemID: "li_1", Position: 3590, Duration: 3600}
	if err := m.Progress().Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := m.Progress().MarkFinished(ctx, "u1", "li_1", ""); err != nil {
		t.Fatalf("mark finished failed: %v", err)
	}

	got, err := m.Progress().Get(ctx, "u1", "li_1", "")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil || !got.IsFinished {
		t.Errorf("progress = %+v, want finished", got)
	}
}

func TestProgress_TimestampKeepsMillisecondPrecision(t *testing.T) {
	m := openTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 0, 250e6, time.UTC)
	rec := MediaProgress{UserID: "u1", LibraryItemID: "li_1", Position: 10, UpdatedAt: at}
	if err := m.Progress().Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := m.Progress().Get(ctx, "u1", "li_1", "")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.UpdatedAt.Equal(at) {
		t.Errorf("timestamp round trip lost precision: got %v, want %v", got.UpdatedAt, at)
	}
}
