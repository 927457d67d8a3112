// Package throughput aggregates byte counters of running transfers into
// windowed speed estimates per transfer, per task and globally.
package throughput

import (
	"sort"
	"sync"
	"time"
)

// Window is the sliding interval used for speed estimates.
const Window = time.Second

// Progress is one progress report of a running transfer. Bytes is the
// cumulative count since the transfer started.
type Progress struct {
	TaskID    int64
	ChatID    int64
	MessageID int64
	FileName  string
	SavePath  string
	Bytes     int64
	Total     int64
	Start     time.Time
}

// TransferSnapshot is the externally visible state of one transfer.
type TransferSnapshot struct {
	ID        int64   `json:"id"`
	ChatID    int64   `json:"chat_id"`
	TaskID    int64   `json:"task_id"`
	FileName  string  `json:"filename"`
	TotalSize int64   `json:"total_size"`
	Progress  float64 `json:"download_progress"`
	Speed     float64 `json:"download_speed"`
	SavePath  string  `json:"save_path"`
}

// GlobalSnapshot is the process-wide transfer speed in bytes per second.
type GlobalSnapshot struct {
	DownloadSpeed float64 `json:"download_speed"`
	UploadSpeed   float64 `json:"upload_speed"`
}

type key struct {
	chatID    int64
	messageID int64
}

type transfer struct {
	taskID   int64
	fileName string
	savePath string
	bytes    int64
	total    int64
	start    time.Time
	meter    meter
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	now       func() time.Time
	transfers map[key]*transfer
	tasks     map[int64]*meter
	download  meter
	upload    meter
}

// New creates a tracker. A nil clock uses time.Now.
func New(clock func() time.Time) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{
		now:       clock,
		transfers: make(map[key]*transfer),
		tasks:     make(map[int64]*meter),
	}
}

// Observe records a progress report. A report with fewer cumulative bytes
// than the previous one resets the counter without producing negative speed.
func (t *Tracker) Observe(p Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	k := key{chatID: p.ChatID, messageID: p.MessageID}
	tr, ok := t.transfers[k]
	if !ok {
		tr = &transfer{start: p.Start}
		t.transfers[k] = tr
	}
	tr.taskID = p.TaskID
	tr.fileName = p.FileName
	tr.savePath = p.SavePath
	tr.total = p.Total

	delta := p.Bytes - tr.bytes
	tr.bytes = p.Bytes
	if delta <= 0 {
		return
	}

	tr.meter.add(now, delta)
	t.download.add(now, delta)
	tm, ok := t.tasks[p.TaskID]
	if !ok {
		tm = &meter{}
		t.tasks[p.TaskID] = tm
	}
	tm.add(now, delta)
}

// Finish drops a completed transfer.
func (t *Tracker) Finish(chatID, messageID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.transfers, key{chatID: chatID, messageID: messageID})
}

// FinishTask drops the aggregate of a completed task.
func (t *Tracker) FinishTask(taskID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tasks, taskID)
}

// ObserveUpload records uploaded bytes.
func (t *Tracker) ObserveUpload(delta int64) {
	if delta <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.upload.add(t.now(), delta)
}

// Snapshot lists the running transfers ordered by chat and message id.
func (t *Tracker) Snapshot() []TransferSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	out := make([]TransferSnapshot, 0, len(t.transfers))
	for k, tr := range t.transfers {
		var pct float64
		if tr.total > 0 {
			pct = float64(tr.bytes) * 100 / float64(tr.total)
			if pct > 100 {
				pct = 100
			}
		}
		out = append(out, TransferSnapshot{
			ID:        k.messageID,
			ChatID:    k.chatID,
			TaskID:    tr.taskID,
			FileName:  tr.fileName,
			TotalSize: tr.total,
			Progress:  pct,
			Speed:     tr.meter.speed(now),
			SavePath:  tr.savePath,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChatID != out[j].ChatID {
			return out[i].ChatID < out[j].ChatID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Global returns the aggregate download and upload speed.
func (t *Tracker) Global() GlobalSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	return GlobalSnapshot{
		DownloadSpeed: t.download.speed(now),
		UploadSpeed:   t.upload.speed(now),
	}
}

// TaskSpeed returns the aggregate download speed of one task.
func (t *Tracker) TaskSpeed(taskID int64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.tasks[taskID]
	if !ok {
		return 0
	}
	return m.speed(t.now())
}
