package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"media_bot/internal/model"
	"media_bot/internal/storage"
)

// Store persists chat records.
type Store interface {
	LoadChat(ctx context.Context, chatID int64) (model.ChatRecord, error)
	SaveChat(ctx context.Context, rec model.ChatRecord) error
}

// Registry hands out one DownloadConfig per chat for the life of the process.
type Registry struct {
	store Store

	mu    sync.Mutex
	chats map[int64]*DownloadConfig
}

// NewRegistry creates a registry backed by store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store, chats: make(map[int64]*DownloadConfig)}
}

// Get returns the state of chatID, loading it from the store on first use.
// A chat without a stored record starts from an empty state.
func (r *Registry) Get(ctx context.Context, chatID int64) (*DownloadConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.chats[chatID]; ok {
		return c, nil
	}
	rec, err := r.store.LoadChat(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		rec = model.ChatRecord{ChatID: chatID}
	} else if err != nil {
		return nil, fmt.Errorf("load chat %d: %w", chatID, err)
	}
	c := Load(rec)
	r.chats[chatID] = c
	return c, nil
}

// Persist reconciles c and writes the result to the store.
func (r *Registry) Persist(ctx context.Context, c *DownloadConfig) error {
	if err := r.store.SaveChat(ctx, c.Reconcile()); err != nil {
		return fmt.Errorf("save chat %d: %w", c.ChatID(), err)
	}
	return nil
}

// PersistAll persists every loaded chat and returns the first error.
func (r *Registry) PersistAll(ctx context.Context) error {
	var firstErr error
	for _, c := range r.loaded() {
		if err := r.Persist(ctx, c); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Registry) loaded() []*DownloadConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*DownloadConfig, 0, len(r.chats))
	for _, c := range r.chats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].chatID < out[j].chatID })
	return out
}
