package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newMemoryStore(t *testing.T) Store {
	t.Helper()
	store, err := Open(Options{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndListExchanges(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	older := Exchange{
		ID:           "ex-1",
		RequestID:    101,
		Query:        "how many pods are failing",
		Answer:       "two pods are failing in batch",
		StopReason:   "end_turn",
		ToolName:     "get_pods_information",
		LatencyMs:    820,
		InputTokens:  140,
		OutputTokens: 32,
		CreatedAt:    time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	newer := Exchange{
		ID:         "ex-2",
		RequestID:  102,
		Query:      "what is 40 + 13",
		Answer:     "The result is 53.",
		StopReason: "end_turn",
		ToolName:   "calculate",
		LatencyMs:  210,
		CreatedAt:  time.Date(2025, 6, 1, 11, 30, 0, 0, time.UTC),
	}
	if err := store.RecordExchange(ctx, older); err != nil {
		t.Fatalf("record older: %v", err)
	}
	if err := store.RecordExchange(ctx, newer); err != nil {
		t.Fatalf("record newer: %v", err)
	}

	got, err := store.RecentExchanges(ctx, 10)
	if err != nil {
		t.Fatalf("RecentExchanges: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "ex-2" || got[1].ID != "ex-1" {
		t.Fatalf("order = %s, %s; want newest first", got[0].ID, got[1].ID)
	}

	first := got[1]
	if first.RequestID != 101 {
		t.Fatalf("request id = %d", first.RequestID)
	}
	if first.Query != older.Query || first.Answer != older.Answer {
		t.Fatalf("text fields lost: %+v", first)
	}
	if first.ToolName != "get_pods_information" || first.StopReason != "end_turn" {
		t.Fatalf("metadata lost: %+v", first)
	}
	if first.LatencyMs != 820 || first.InputTokens != 140 || first.OutputTokens != 32 {
		t.Fatalf("telemetry lost: %+v", first)
	}
	if !first.CreatedAt.Equal(older.CreatedAt) {
		t.Fatalf("created at = %v, want %v", first.CreatedAt, older.CreatedAt)
	}
}

func TestRecentExchangesHonorsLimit(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ex := Exchange{
			ID:        "ex-" + string(rune('a'+i)),
			RequestID: uint64(200 + i),
			Query:     "q",
			Answer:    "a",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.RecordExchange(ctx, ex); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	got, err := store.RecentExchanges(ctx, 2)
	if err != nil {
		t.Fatalf("RecentExchanges: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].RequestID != 204 || got[1].RequestID != 203 {
		t.Fatalf("got ids %d, %d", got[0].RequestID, got[1].RequestID)
	}
}

func TestRecordExchangeRequiresID(t *testing.T) {
	store := newMemoryStore(t)
	err := store.RecordExchange(context.Background(), Exchange{Query: "q", Answer: "a"})
	if err == nil {
		t.Fatal("expected error for blank id")
	}
}

func TestRecordExchangeFillsCreatedAt(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	if err := store.RecordExchange(ctx, Exchange{ID: "ex-now", Query: "q", Answer: "a"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err := store.RecentExchanges(ctx, 1)
	if err != nil {
		t.Fatalf("RecentExchanges: %v", err)
	}
	if len(got) != 1 || got[0].CreatedAt.IsZero() {
		t.Fatalf("created at not filled: %+v", got)
	}
}

func TestSQLiteCreatesNestedPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.sqlite3")
	store, err := Open(Options{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.RecordExchange(context.Background(), Exchange{ID: "ex-file", Query: "q", Answer: "a"}); err != nil {
		t.Fatalf("record: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Options{Driver: "mysql"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
