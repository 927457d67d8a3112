package chat_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"media_bot/internal/chat"
	"media_bot/internal/model"
	"media_bot/internal/storage"
)

var ignoreUpdatedAt = cmpopts.IgnoreFields(model.ChatRecord{}, "UpdatedAt")

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRegistryGetCreatesAndCaches(t *testing.T) {
	ctx := context.Background()
	reg := chat.NewRegistry(newTestStore(t))

	a, err := reg.Get(ctx, 42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.LastReadMessageID() != 0 || len(a.IDsToRetry()) != 0 {
		t.Errorf("new chat state not empty: cursor=%d retry=%v", a.LastReadMessageID(), a.IDsToRetry())
	}
	b, err := reg.Get(ctx, 42)
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if a != b {
		t.Error("Get returned a different config for the same chat")
	}
}

func TestRegistryPersistRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.SaveChat(ctx, model.ChatRecord{ChatID: 7, LastReadMessageID: 10, IDsToRetry: []int64{3, 4}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	reg := chat.NewRegistry(store)
	c, err := reg.Get(ctx, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	c.SetFilter("media_type == 'video'")
	c.Begin(11)
	c.RecordOutcome(11, model.StatusFailed)
	c.Begin(3)
	c.RecordOutcome(3, model.StatusSuccess)

	if err := reg.PersistAll(ctx); err != nil {
		t.Fatalf("persist: %v", err)
	}

	got, err := store.LoadChat(ctx, 7)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := model.ChatRecord{
		ChatID:            7,
		LastReadMessageID: 11,
		IDsToRetry:        []int64{4, 11},
		DownloadFilter:    "media_type == 'video'",
	}
	if diff := cmp.Diff(want, got, ignoreUpdatedAt); diff != "" {
		t.Errorf("persisted record mismatch (-want +got):\n%s", diff)
	}
}
