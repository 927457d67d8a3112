package bot

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"media_bot/internal/browse"
	"media_bot/internal/filter"
	"media_bot/internal/model"
	"media_bot/internal/throughput"
)

func TestParseDownloadArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    RangeArgs
		wantErr bool
	}{
		{
			name: "chat only",
			args: "-1001234",
			want: RangeArgs{ChatID: -1001234},
		},
		{
			name: "offset and limit",
			args: "-1001234 500 20",
			want: RangeArgs{ChatID: -1001234, OffsetID: 500, Limit: 20},
		},
		{
			name: "offset limit and filter",
			args: "-1001234 0 5 media_type == 'video' && file_size > 10MB",
			want: RangeArgs{ChatID: -1001234, Limit: 5, Filter: "media_type == 'video' && file_size > 10MB"},
		},
		{
			name: "filter keeps inner spacing",
			args: "42 caption == 'a  b'",
			want: RangeArgs{ChatID: 42, Filter: "caption == 'a  b'"},
		},
		{
			name: "offset then filter",
			args: "42 100 file_size > 1MB",
			want: RangeArgs{ChatID: 42, OffsetID: 100, Filter: "file_size > 1MB"},
		},
		{
			name:    "empty args",
			args:    "",
			wantErr: true,
		},
		{
			name:    "invalid chat id",
			args:    "channel 10",
			wantErr: true,
		},
		{
			name:    "zero chat id",
			args:    "0",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDownloadArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseDownloadArgs() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseForwardArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    RangeArgs
		wantErr bool
	}{
		{
			name: "from and to",
			args: "-100 -200",
			want: RangeArgs{ChatID: -100, TargetID: -200},
		},
		{
			name: "with range and filter",
			args: "-100 -200 10 3 id > 5",
			want: RangeArgs{ChatID: -100, TargetID: -200, OffsetID: 10, Limit: 3, Filter: "id > 5"},
		},
		{
			name:    "missing destination",
			args:    "-100",
			wantErr: true,
		},
		{
			name:    "same chat",
			args:    "-100 -100",
			wantErr: true,
		},
		{
			name:    "invalid destination",
			args:    "-100 abc",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseForwardArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseForwardArgs() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseBrowseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    BrowseArgs
		wantErr bool
	}{
		{name: "default window", args: "-100", want: BrowseArgs{ChatID: -100, Minutes: 60}},
		{name: "explicit window", args: "-100 15", want: BrowseArgs{ChatID: -100, Minutes: 15}},
		{name: "zero minutes", args: "-100 0", wantErr: true},
		{name: "too long", args: "-100 20000", wantErr: true},
		{name: "extra args", args: "-100 15 x", wantErr: true},
		{name: "empty", args: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBrowseArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseBrowseArgs() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseChatFilterArgs(t *testing.T) {
	id, text, err := ParseChatFilterArgs("  -100   file_size > 1MB ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != -100 || text != "file_size > 1MB" {
		t.Errorf("got (%d, %q)", id, text)
	}

	for _, args := range []string{"", "-100", "abc id > 1"} {
		if _, _, err := ParseChatFilterArgs(args); err == nil {
			t.Errorf("ParseChatFilterArgs(%q): expected error", args)
		}
	}
}

func TestParseIDArg(t *testing.T) {
	tests := []struct {
		args    string
		want    int64
		wantErr bool
	}{
		{"1", 1, false},
		{"  42  ", 42, false},
		{"7 extra", 7, false},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseIDArg(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseIDArg(%q) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseIDArg(%q) = %d, want %d", tt.args, got, tt.want)
		}
	}
}

func TestFormatTaskStatus(t *testing.T) {
	n := &model.TaskNode{ID: 4, Kind: model.TaskForward, ChatID: -100, DestinationID: -200, Limit: 10}
	n.SetStatus("done: 1/2/0 of 3")
	n.Record(8, model.StatusFailed)
	n.Record(5, model.StatusFailed)

	want := "Task #4: forward -100 → -200 (limit 10)\ndone: 1/2/0 of 3\nfailed: 5, 8"
	if diff := cmp.Diff(want, FormatTaskStatus(n)); diff != "" {
		t.Errorf("FormatTaskStatus() mismatch (-want +got):\n%s", diff)
	}

	n.SetFailureReason(8, "timed out after 3 retries")
	want += "\n8: timed out after 3 retries"
	if diff := cmp.Diff(want, FormatTaskStatus(n)); diff != "" {
		t.Errorf("FormatTaskStatus() with reason mismatch (-want +got):\n%s", diff)
	}

	n.SetRunning(true)
	if strings.Contains(FormatTaskStatus(n), "failed:") {
		t.Error("failed ids listed while the task is running")
	}
}

func TestFormatStatus(t *testing.T) {
	got := FormatStatus(nil, throughput.GlobalSnapshot{DownloadSpeed: 2048, UploadSpeed: 0})
	want := "Download 2.0 KiB/s, upload 0 B/s\n\nNo running tasks."
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatStatus() mismatch (-want +got):\n%s", diff)
	}

	n := &model.TaskNode{ID: 2, Kind: model.TaskDownload, ChatID: 9, CreatedAt: time.Now()}
	n.SetStatus("0/0/0 of 1 · 0 B/s")
	got = FormatStatus([]*model.TaskNode{n}, throughput.GlobalSnapshot{})
	for _, want := range []string{"#2 download 9", "0/0/0 of 1"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatStatus() missing %q:\n%s", want, got)
		}
	}
}

func TestFormatFilterCheck(t *testing.T) {
	expr, err := filter.Compile("file_size > 1KB && media_type == 'video'")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	got := FormatFilterCheck(expr)
	if !strings.HasPrefix(got, "Filter OK.") {
		t.Errorf("got %q", got)
	}
	if !strings.Contains(got, "Uses: file_size, media_type") {
		t.Errorf("names missing:\n%s", got)
	}
}

func TestFormatBrowseItem(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)
	tests := []struct {
		name string
		item browse.Item
		want string
	}{
		{
			name: "available",
			item: browse.Item{ID: 12, Kind: model.MediaVideo, Date: at, Sender: "anna", FileName: "clip.mp4"},
			want: "[ ] 12 video 03-09 14:05 anna clip.mp4",
		},
		{
			name: "selected without sender",
			item: browse.Item{ID: 13, Kind: model.MediaPhoto, Date: at, State: browse.Selected},
			want: "[x] 13 photo 03-09 14:05",
		},
		{
			name: "downloaded",
			item: browse.Item{ID: 14, Kind: model.MediaDocument, Date: at, State: browse.Downloaded, FileName: "a.pdf"},
			want: "[done] 14 document 03-09 14:05 a.pdf",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, FormatBrowseItem(tt.item, time.UTC)); diff != "" {
				t.Errorf("FormatBrowseItem() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestJoinIDs(t *testing.T) {
	if got := joinIDs([]int64{1, 2, 3}, 2); got != "1, 2, and 1 more" {
		t.Errorf("joinIDs = %q", got)
	}
}
