// Package source provides the item sources that tasks drain.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"media_bot/internal/model"
	"media_bot/internal/storage"
)

// ErrStop may be returned by an Iter callback to end iteration early
// without an error.
var ErrStop = errors.New("stop iteration")

// Source yields the messages of a chat.
type Source interface {
	// Iter calls fn for every message with id > offsetID, oldest first,
	// stopping after limit messages when limit > 0.
	Iter(ctx context.Context, chatID, offsetID int64, limit int, fn func(model.Message) error) error
	// Get returns the messages with the given ids that still exist.
	Get(ctx context.Context, chatID int64, ids []int64) ([]model.Message, error)
	// Since returns the messages dated at or after t, oldest first.
	Since(ctx context.Context, chatID int64, t time.Time) ([]model.Message, error)
}

const pageSize = 100

// Archive serves messages captured into storage.
type Archive struct {
	store storage.Storage
}

// NewArchive creates a source over the message archive.
func NewArchive(store storage.Storage) *Archive {
	return &Archive{store: store}
}

// Iter pages through the archive.
func (a *Archive) Iter(ctx context.Context, chatID, offsetID int64, limit int, fn func(model.Message) error) error {
	seen := 0
	after := offsetID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := pageSize
		if limit > 0 && limit-seen < n {
			n = limit - seen
		}
		page, err := a.store.ListMessages(ctx, chatID, after, n)
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}
		for _, m := range page {
			if err := fn(m); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
			after = m.ID
			seen++
		}
		if len(page) < n || (limit > 0 && seen >= limit) {
			return nil
		}
	}
}

// Get returns archived messages by id.
func (a *Archive) Get(ctx context.Context, chatID int64, ids []int64) ([]model.Message, error) {
	msgs, err := a.store.GetMessages(ctx, chatID, ids)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return msgs, nil
}

// Since returns archived messages dated at or after t.
func (a *Archive) Since(ctx context.Context, chatID int64, t time.Time) ([]model.Message, error) {
	msgs, err := a.store.ListMessagesSince(ctx, chatID, t)
	if err != nil {
		return nil, fmt.Errorf("list messages since: %w", err)
	}
	return msgs, nil
}
