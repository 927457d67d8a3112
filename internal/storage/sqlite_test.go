package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"media_bot/internal/model"
)

var ignoreUpdatedAt = cmpopts.IgnoreFields(model.ChatRecord{}, "UpdatedAt")

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr(v int64) *int64 { return &v }

func TestChatRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	tests := []struct {
		name string
		rec  model.ChatRecord
	}{
		{
			name: "with retry set and filter",
			rec: model.ChatRecord{
				ChatID:            -1001,
				LastReadMessageID: 120,
				IDsToRetry:        []int64{5, 9},
				DownloadFilter:    "file_size > 10MB",
			},
		},
		{
			name: "empty retry set",
			rec:  model.ChatRecord{ChatID: 42, LastReadMessageID: 0, IDsToRetry: []int64{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.SaveChat(ctx, tt.rec); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := s.LoadChat(ctx, tt.rec.ChatID)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if diff := cmp.Diff(tt.rec, got, ignoreUpdatedAt); diff != "" {
				t.Errorf("LoadChat mismatch (-want +got):\n%s", diff)
			}
		})
	}

	recs, err := s.ListChats(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff([]model.ChatRecord{tests[0].rec, tests[1].rec}, recs, ignoreUpdatedAt); diff != "" {
		t.Errorf("ListChats mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadChatNotFound(t *testing.T) {
	s := newTestDB(t)
	if _, err := s.LoadChat(context.Background(), 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveChatReplacesRetrySetAndKeepsCursor(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	if err := s.SaveChat(ctx, model.ChatRecord{ChatID: 1, LastReadMessageID: 50, IDsToRetry: []int64{1, 2, 3}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveChat(ctx, model.ChatRecord{ChatID: 1, LastReadMessageID: 40, IDsToRetry: []int64{3, 4}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LoadChat(ctx, 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := model.ChatRecord{ChatID: 1, LastReadMessageID: 50, IDsToRetry: []int64{3, 4}}
	if diff := cmp.Diff(want, got, ignoreUpdatedAt); diff != "" {
		t.Errorf("LoadChat mismatch (-want +got):\n%s", diff)
	}
}

func TestMessages(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	base := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

	msgs := []model.Message{
		{ChatID: 1, ID: 10, Date: base, Sender: "alice", Caption: "first", Media: &model.Media{
			Kind: model.MediaVideo, FileID: "f10", UniqueID: "u10", FileName: "a.mp4", MimeType: "video/mp4",
			FileSize: ptr(2048), Width: ptr(1280), Height: ptr(720), Duration: ptr(31),
		}},
		{ChatID: 1, ID: 11, Date: base.Add(time.Hour), Caption: "text only"},
		{ChatID: 1, ID: 12, Date: base.Add(2 * time.Hour), Media: &model.Media{Kind: model.MediaPhoto, FileID: "f12", FileSize: ptr(99)}},
		{ChatID: 2, ID: 10, Date: base, Media: &model.Media{Kind: model.MediaDocument, FileID: "other"}},
	}
	for _, m := range msgs {
		if err := s.SaveMessage(ctx, m); err != nil {
			t.Fatalf("save message %d: %v", m.ID, err)
		}
	}

	tests := []struct {
		name  string
		query func() ([]model.Message, error)
		want  []model.Message
	}{
		{
			name:  "list all after id",
			query: func() ([]model.Message, error) { return s.ListMessages(ctx, 1, 0, 0) },
			want:  msgs[:3],
		},
		{
			name:  "list bounded",
			query: func() ([]model.Message, error) { return s.ListMessages(ctx, 1, 10, 1) },
			want:  msgs[1:2],
		},
		{
			name:  "get by ids",
			query: func() ([]model.Message, error) { return s.GetMessages(ctx, 1, []int64{12, 10, 77}) },
			want:  []model.Message{msgs[0], msgs[2]},
		},
		{
			name:  "since",
			query: func() ([]model.Message, error) { return s.ListMessagesSince(ctx, 1, base.Add(30*time.Minute)) },
			want:  msgs[1:3],
		},
		{
			name:  "other chat",
			query: func() ([]model.Message, error) { return s.ListMessages(ctx, 2, 0, 0) },
			want:  msgs[3:],
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.query()
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("messages mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSaveMessageReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	date := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

	_ = s.SaveMessage(ctx, model.Message{ChatID: 1, ID: 1, Date: date, Caption: "old"})
	if err := s.SaveMessage(ctx, model.Message{ChatID: 1, ID: 1, Date: date, Caption: "edited"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetMessages(ctx, 1, []int64{1})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 || got[0].Caption != "edited" {
		t.Errorf("got %+v, want edited caption", got)
	}
}
