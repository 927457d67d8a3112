// Package model defines the domain types used across the application.
package model

import (
	"sort"
	"sync"
	"time"
)

// MediaKind identifies the kind of media attached to a message.
type MediaKind string

// Supported media kinds.
const (
	MediaNone      MediaKind = ""
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaDocument  MediaKind = "document"
	MediaAudio     MediaKind = "audio"
	MediaVoice     MediaKind = "voice"
	MediaAnimation MediaKind = "animation"
	MediaVideoNote MediaKind = "video_note"
)

// Media describes the downloadable payload of a message.
// Optional numeric attributes are nil when the source does not report them.
type Media struct {
	Kind     MediaKind
	FileID   string
	UniqueID string
	FileName string
	MimeType string
	URL      string
	FileSize *int64
	Width    *int64
	Height   *int64
	Duration *int64
}

// Message is a single item of a source chat.
type Message struct {
	ChatID  int64
	ID      int64
	Date    time.Time
	Sender  string
	Caption string
	Media   *Media
}

// HasMedia reports whether the message carries a downloadable payload.
func (m Message) HasMedia() bool {
	return m.Media != nil && m.Media.Kind != MediaNone
}

// DownloadStatus is the outcome of an attempted item.
type DownloadStatus string

// Download outcomes.
const (
	StatusSuccess DownloadStatus = "success"
	StatusFailed  DownloadStatus = "failed"
	StatusSkipped DownloadStatus = "skipped"
)

// ChatRecord is the persisted per-chat state.
type ChatRecord struct {
	ChatID            int64
	LastReadMessageID int64
	IDsToRetry        []int64
	DownloadFilter    string
	UpdatedAt         time.Time
}

// TaskKind distinguishes download tasks from forward tasks.
type TaskKind string

// Task kinds.
const (
	TaskDownload TaskKind = "download"
	TaskForward  TaskKind = "forward"
)

// TaskNode is one unit of scheduled work against a source chat.
// Mutable fields are guarded by the node's own lock.
type TaskNode struct {
	ID              int64
	Kind            TaskKind
	ChatID          int64
	DestinationID   int64
	RequestedBy     int64
	ReplyChatID     int64
	StatusMessageID int
	Limit           int
	CreatedAt       time.Time

	mu       sync.Mutex
	running  bool
	status   string
	outcomes map[DownloadStatus]int
	failed   []int64
	reasons  map[int64]string
}

// SetRunning updates the running flag.
func (n *TaskNode) SetRunning(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.running = v
}

// IsRunning reports whether the node is still dispatching or waiting on work.
func (n *TaskNode) IsRunning() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

// SetStatus replaces the human-readable status text.
func (n *TaskNode) SetStatus(s string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = s
}

// Status returns the human-readable status text.
func (n *TaskNode) Status() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// Record counts an item outcome against the node.
func (n *TaskNode) Record(id int64, st DownloadStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.outcomes == nil {
		n.outcomes = make(map[DownloadStatus]int)
	}
	n.outcomes[st]++
	if st == StatusFailed {
		n.failed = append(n.failed, id)
	}
}

// Count returns how many items finished with the given outcome.
func (n *TaskNode) Count(st DownloadStatus) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.outcomes[st]
}

// SetFailureReason keeps the user-facing reason a failed item gave up with.
func (n *TaskNode) SetFailureReason(id int64, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.reasons == nil {
		n.reasons = make(map[int64]string)
	}
	n.reasons[id] = reason
}

// FailureReason returns the reason recorded for a failed item, if any.
func (n *TaskNode) FailureReason(id int64) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reasons[id]
}

// FailedIDs returns the ids that failed in this node, ascending.
func (n *TaskNode) FailedIDs() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := append([]int64(nil), n.failed...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
