package chat

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"media_bot/internal/model"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name      string
		retry     []int64
		succeeded []int64
		skipped   []int64
		failed    []int64
		want      []int64
	}{
		{
			name:      "succeeded dropped, failed added, untouched kept",
			retry:     []int64{5, 6, 7},
			succeeded: []int64{6, 7},
			failed:    []int64{9},
			want:      []int64{5, 9},
		},
		{
			name:  "nothing attempted keeps retry set",
			retry: []int64{1, 2},
			want:  []int64{1, 2},
		},
		{
			name:    "skipped counts as resolved",
			retry:   []int64{3},
			skipped: []int64{3},
			want:    []int64{},
		},
		{
			name:      "failed retry stays pending",
			retry:     []int64{4},
			failed:    []int64{4},
			succeeded: []int64{10},
			want:      []int64{4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Load(model.ChatRecord{ChatID: 1, IDsToRetry: tt.retry})
			for _, id := range tt.succeeded {
				c.RecordOutcome(id, model.StatusSuccess)
			}
			for _, id := range tt.skipped {
				c.RecordOutcome(id, model.StatusSkipped)
			}
			for _, id := range tt.failed {
				c.RecordOutcome(id, model.StatusFailed)
			}
			got := c.Reconcile()
			if diff := cmp.Diff(tt.want, got.IDsToRetry); diff != "" {
				t.Errorf("IDsToRetry mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.want, c.IDsToRetry()); diff != "" {
				t.Errorf("retry set not installed (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReconcileClearsRunSets(t *testing.T) {
	c := Load(model.ChatRecord{ChatID: 1, IDsToRetry: []int64{5}})
	c.RecordOutcome(9, model.StatusFailed)
	c.Reconcile()

	c.RecordOutcome(9, model.StatusSuccess)
	got := c.Reconcile()
	if diff := cmp.Diff([]int64{5}, got.IDsToRetry); diff != "" {
		t.Errorf("second run mismatch (-want +got):\n%s", diff)
	}
}

func TestOutcomeOverrides(t *testing.T) {
	c := Load(model.ChatRecord{ChatID: 1})
	c.RecordOutcome(3, model.StatusFailed)
	c.RecordOutcome(3, model.StatusSuccess)
	if diff := cmp.Diff([]int64{}, c.Reconcile().IDsToRetry); diff != "" {
		t.Errorf("success after failure mismatch (-want +got):\n%s", diff)
	}
}

func TestCursorAdvancesContiguously(t *testing.T) {
	c := Load(model.ChatRecord{ChatID: 1, LastReadMessageID: 10})
	for _, id := range []int64{11, 12, 13, 14} {
		c.Begin(id)
	}

	steps := []struct {
		name   string
		finish func()
		want   int64
	}{
		{name: "out of order completion holds cursor", finish: func() { c.RecordOutcome(13, model.StatusSuccess) }, want: 10},
		{name: "filtered item holds cursor", finish: func() { c.Processed(12) }, want: 10},
		{name: "lowest completes and cursor jumps", finish: func() { c.RecordOutcome(11, model.StatusFailed) }, want: 13},
		{name: "last completes", finish: func() { c.RecordOutcome(14, model.StatusSuccess) }, want: 14},
	}
	for _, s := range steps {
		s.finish()
		if diff := cmp.Diff(s.want, c.LastReadMessageID()); diff != "" {
			t.Errorf("%s: cursor mismatch (-want +got):\n%s", s.name, diff)
		}
	}
	if diff := cmp.Diff(0, c.Pending()); diff != "" {
		t.Errorf("pending mismatch (-want +got):\n%s", diff)
	}
}

func TestCursorNeverRegresses(t *testing.T) {
	c := Load(model.ChatRecord{ChatID: 1, LastReadMessageID: 50})
	c.Begin(7)
	c.RecordOutcome(7, model.StatusSuccess)
	if diff := cmp.Diff(int64(50), c.LastReadMessageID()); diff != "" {
		t.Errorf("cursor mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(int64(50), c.Reconcile().LastReadMessageID); diff != "" {
		t.Errorf("reconciled cursor mismatch (-want +got):\n%s", diff)
	}
}

func TestTotalTaskAndFilter(t *testing.T) {
	c := Load(model.ChatRecord{ChatID: 7, DownloadFilter: "file_size > 1MB"})
	c.IncTotalTask()
	c.IncTotalTask()
	if diff := cmp.Diff(2, c.TotalTask()); diff != "" {
		t.Errorf("total task mismatch (-want +got):\n%s", diff)
	}
	c.SetFilter("id > 5")
	if diff := cmp.Diff("id > 5", c.Reconcile().DownloadFilter); diff != "" {
		t.Errorf("filter mismatch (-want +got):\n%s", diff)
	}
}
