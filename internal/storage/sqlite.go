package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"media_bot/internal/model"
	"media_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

const messageColumns = `chat_id, message_id, date, sender, caption, media_kind, file_id, unique_id,
	file_name, mime_type, url, file_size, width, height, duration`

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if dsn == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// LoadChat returns the persisted state of a chat or ErrNotFound.
func (s *SQLite) LoadChat(ctx context.Context, chatID int64) (model.ChatRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT chat_id, last_read_message_id, download_filter, updated_at FROM chats WHERE chat_id = ?`, chatID,
	)
	rec, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ChatRecord{}, ErrNotFound
	}
	if err != nil {
		return model.ChatRecord{}, err
	}
	if rec.IDsToRetry, err = s.retryIDs(ctx, chatID); err != nil {
		return model.ChatRecord{}, err
	}
	return rec, nil
}

// SaveChat upserts the chat state and replaces its retry set.
func (s *SQLite) SaveChat(ctx context.Context, rec model.ChatRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO chats (chat_id, last_read_message_id, download_filter, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (chat_id) DO UPDATE SET
		   last_read_message_id = MAX(chats.last_read_message_id, excluded.last_read_message_id),
		   download_filter = excluded.download_filter,
		   updated_at = excluded.updated_at`,
		rec.ChatID, rec.LastReadMessageID, rec.DownloadFilter, now,
	)
	if err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM retry_ids WHERE chat_id = ?`, rec.ChatID); err != nil {
		return fmt.Errorf("clear retry ids: %w", err)
	}
	for _, id := range rec.IDsToRetry {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO retry_ids (chat_id, message_id) VALUES (?, ?)`, rec.ChatID, id,
		); err != nil {
			return fmt.Errorf("insert retry id: %w", err)
		}
	}
	return tx.Commit()
}

// ListChats returns the state of every persisted chat.
func (s *SQLite) ListChats(ctx context.Context) ([]model.ChatRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, last_read_message_id, download_filter, updated_at FROM chats ORDER BY chat_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	var recs []model.ChatRecord
	for rows.Next() {
		rec, err := scanChat(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range recs {
		if recs[i].IDsToRetry, err = s.retryIDs(ctx, recs[i].ChatID); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func (s *SQLite) retryIDs(ctx context.Context, chatID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id FROM retry_ids WHERE chat_id = ? ORDER BY message_id`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query retry ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan retry id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveMessage archives a message, replacing an earlier copy.
func (s *SQLite) SaveMessage(ctx context.Context, msg model.Message) error {
	md := msg.Media
	if md == nil {
		md = &model.Media{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO messages (`+messageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ChatID, msg.ID, msg.Date.UTC().Format(timeLayout), msg.Sender, msg.Caption,
		string(md.Kind), md.FileID, md.UniqueID, md.FileName, md.MimeType, md.URL,
		md.FileSize, md.Width, md.Height, md.Duration,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessages returns the archived messages with the given ids, ascending.
// Unknown ids are omitted.
func (s *SQLite) GetMessages(ctx context.Context, chatID int64, ids []int64) ([]model.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, chatID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE chat_id = ? AND message_id IN (`+placeholders+`) ORDER BY message_id`,
		args...,
	)
}

// ListMessages returns up to limit messages with id > afterID, ascending.
// A limit of 0 returns all of them.
func (s *SQLite) ListMessages(ctx context.Context, chatID, afterID int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE chat_id = ? AND message_id > ? ORDER BY message_id LIMIT ?`,
		chatID, afterID, limit,
	)
}

// ListMessagesSince returns the messages dated at or after since, ascending.
func (s *SQLite) ListMessagesSince(ctx context.Context, chatID int64, since time.Time) ([]model.Message, error) {
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE chat_id = ? AND date >= ? ORDER BY message_id`,
		chatID, since.UTC().Format(timeLayout),
	)
}

func (s *SQLite) queryMessages(ctx context.Context, query string, args ...any) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanChat(row scannable) (model.ChatRecord, error) {
	var rec model.ChatRecord
	var updated string
	err := row.Scan(&rec.ChatID, &rec.LastReadMessageID, &rec.DownloadFilter, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scan chat: %w", err)
	}
	rec.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return rec, nil
}

func scanMessage(row scannable) (model.Message, error) {
	var m model.Message
	var md model.Media
	var date, kind string
	var size, width, height, duration sql.NullInt64
	err := row.Scan(&m.ChatID, &m.ID, &date, &m.Sender, &m.Caption, &kind,
		&md.FileID, &md.UniqueID, &md.FileName, &md.MimeType, &md.URL,
		&size, &width, &height, &duration)
	if err != nil {
		return m, fmt.Errorf("scan message: %w", err)
	}
	m.Date, _ = time.Parse(timeLayout, date)
	if kind != "" {
		md.Kind = model.MediaKind(kind)
		md.FileSize = nullable(size)
		md.Width = nullable(width)
		md.Height = nullable(height)
		md.Duration = nullable(duration)
		m.Media = &md
	}
	return m, nil
}

func nullable(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}
