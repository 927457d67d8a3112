// Package chat keeps the resumable download state of a source chat: the
// resume cursor, the outcome sets of the current run and the retry set that
// carries failures over to the next run.
package chat

import (
	"sort"
	"sync"

	"media_bot/internal/model"
)

// DownloadConfig is the in-memory state of one source chat. It is created the
// first time a chat is referenced and lives for the rest of the process.
type DownloadConfig struct {
	mu         sync.Mutex
	chatID     int64
	cursor     *cursor
	downloaded map[int64]bool
	failed     map[int64]bool
	retry      map[int64]bool
	filter     string
	totalTask  int
}

// Load builds the state of a chat from its persisted record.
func Load(rec model.ChatRecord) *DownloadConfig {
	c := &DownloadConfig{
		chatID:     rec.ChatID,
		cursor:     newCursor(rec.LastReadMessageID),
		downloaded: make(map[int64]bool),
		failed:     make(map[int64]bool),
		retry:      make(map[int64]bool, len(rec.IDsToRetry)),
		filter:     rec.DownloadFilter,
	}
	for _, id := range rec.IDsToRetry {
		c.retry[id] = true
	}
	return c
}

// ChatID returns the source chat this state belongs to.
func (c *DownloadConfig) ChatID() int64 { return c.chatID }

// LastReadMessageID returns the resume cursor.
func (c *DownloadConfig) LastReadMessageID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor.value
}

// Filter returns the stored download filter source, or "".
func (c *DownloadConfig) Filter() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// SetFilter replaces the stored download filter source.
func (c *DownloadConfig) SetFilter(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = text
}

// IDsToRetry returns the pending retry set, ascending.
func (c *DownloadConfig) IDsToRetry() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedIDs(c.retry)
}

// Begin registers id as submitted for processing in id order.
func (c *DownloadConfig) Begin(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor.begin(id)
}

// Processed marks id as finished without an outcome, e.g. filtered out.
func (c *DownloadConfig) Processed(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor.finish(id)
}

// RecordOutcome stores the result of an attempted item and finishes it.
// Skipped items already exist at the destination and count as downloaded.
func (c *DownloadConfig) RecordOutcome(id int64, st model.DownloadStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch st {
	case model.StatusSuccess, model.StatusSkipped:
		c.downloaded[id] = true
		delete(c.failed, id)
	case model.StatusFailed:
		c.failed[id] = true
		delete(c.downloaded, id)
	}
	c.cursor.finish(id)
}

// IncTotalTask counts one dispatched item.
func (c *DownloadConfig) IncTotalTask() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalTask++
}

// TotalTask returns how many items were dispatched in this process.
func (c *DownloadConfig) TotalTask() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalTask
}

// Pending returns how many submitted ids are still in flight.
func (c *DownloadConfig) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor.outstanding()
}

// Reconcile folds the outcomes of the current run into the retry set:
// (ids_to_retry - downloaded) ∪ failed. The per-run sets are cleared and the
// resulting record is ready to persist.
func (c *DownloadConfig) Reconcile() model.ChatRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[int64]bool, len(c.retry)+len(c.failed))
	for id := range c.retry {
		if !c.downloaded[id] {
			next[id] = true
		}
	}
	for id := range c.failed {
		next[id] = true
	}
	c.retry = next
	c.downloaded = make(map[int64]bool)
	c.failed = make(map[int64]bool)

	return model.ChatRecord{
		ChatID:            c.chatID,
		LastReadMessageID: c.cursor.value,
		IDsToRetry:        sortedIDs(next),
		DownloadFilter:    c.filter,
	}
}

func sortedIDs(set map[int64]bool) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
