// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"media_bot/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	LoadChat(ctx context.Context, chatID int64) (model.ChatRecord, error)
	SaveChat(ctx context.Context, rec model.ChatRecord) error
	ListChats(ctx context.Context) ([]model.ChatRecord, error)

	SaveMessage(ctx context.Context, msg model.Message) error
	GetMessages(ctx context.Context, chatID int64, ids []int64) ([]model.Message, error)
	ListMessages(ctx context.Context, chatID, afterID int64, limit int) ([]model.Message, error)
	ListMessagesSince(ctx context.Context, chatID int64, since time.Time) ([]model.Message, error)

	Close() error
}
