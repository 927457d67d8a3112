package bot

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"media_bot/internal/model"
)

// capture archives a chat message so it can later be drained or browsed.
// Messages without media are archived too; they keep the id sequence of the
// chat contiguous for the resume cursor.
func (b *Bot) capture(ctx context.Context, m *tgbotapi.Message) {
	if m.Chat == nil {
		return
	}
	msg := MessageFromTelegram(m)
	if err := b.store.SaveMessage(ctx, msg); err != nil {
		b.log.Error("archive message", "chat_id", msg.ChatID, "message_id", msg.ID, "error", err)
		return
	}
	b.log.Debug("archived message", "chat_id", msg.ChatID, "message_id", msg.ID, "media", msg.HasMedia())
}

// MessageFromTelegram converts a Bot API message to the archive form.
func MessageFromTelegram(m *tgbotapi.Message) model.Message {
	msg := model.Message{
		ChatID:  m.Chat.ID,
		ID:      int64(m.MessageID),
		Date:    time.Unix(int64(m.Date), 0).UTC(),
		Sender:  senderName(m),
		Caption: m.Caption,
		Media:   mediaOf(m),
	}
	if msg.Caption == "" {
		msg.Caption = m.Text
	}
	return msg
}

func mediaOf(m *tgbotapi.Message) *model.Media {
	switch {
	case m.Video != nil:
		v := m.Video
		return &model.Media{
			Kind: model.MediaVideo, FileID: v.FileID, UniqueID: v.FileUniqueID,
			FileName: v.FileName, MimeType: v.MimeType,
			FileSize: optional(int64(v.FileSize)), Width: optional(int64(v.Width)),
			Height: optional(int64(v.Height)), Duration: optional(int64(v.Duration)),
		}
	case m.Animation != nil:
		a := m.Animation
		return &model.Media{
			Kind: model.MediaAnimation, FileID: a.FileID, UniqueID: a.FileUniqueID,
			FileName: a.FileName, MimeType: a.MimeType,
			FileSize: optional(int64(a.FileSize)), Width: optional(int64(a.Width)),
			Height: optional(int64(a.Height)), Duration: optional(int64(a.Duration)),
		}
	case m.Document != nil:
		d := m.Document
		return &model.Media{
			Kind: model.MediaDocument, FileID: d.FileID, UniqueID: d.FileUniqueID,
			FileName: d.FileName, MimeType: d.MimeType,
			FileSize: optional(int64(d.FileSize)),
		}
	case m.Audio != nil:
		a := m.Audio
		return &model.Media{
			Kind: model.MediaAudio, FileID: a.FileID, UniqueID: a.FileUniqueID,
			FileName: a.FileName, MimeType: a.MimeType,
			FileSize: optional(int64(a.FileSize)), Duration: optional(int64(a.Duration)),
		}
	case m.Voice != nil:
		v := m.Voice
		return &model.Media{
			Kind: model.MediaVoice, FileID: v.FileID, UniqueID: v.FileUniqueID,
			MimeType: v.MimeType,
			FileSize: optional(int64(v.FileSize)), Duration: optional(int64(v.Duration)),
		}
	case m.VideoNote != nil:
		v := m.VideoNote
		return &model.Media{
			Kind: model.MediaVideoNote, FileID: v.FileID, UniqueID: v.FileUniqueID,
			FileSize: optional(int64(v.FileSize)), Width: optional(int64(v.Length)),
			Height: optional(int64(v.Length)), Duration: optional(int64(v.Duration)),
		}
	case len(m.Photo) > 0:
		p := largestPhoto(m.Photo)
		return &model.Media{
			Kind: model.MediaPhoto, FileID: p.FileID, UniqueID: p.FileUniqueID,
			MimeType: "image/jpeg",
			FileSize: optional(int64(p.FileSize)), Width: optional(int64(p.Width)),
			Height: optional(int64(p.Height)),
		}
	}
	return nil
}

func largestPhoto(sizes []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := sizes[0]
	for _, p := range sizes[1:] {
		if p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}
	return best
}

func senderName(m *tgbotapi.Message) string {
	switch {
	case m.AuthorSignature != "":
		return m.AuthorSignature
	case m.From != nil:
		if m.From.UserName != "" {
			return m.From.UserName
		}
		return strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
	case m.SenderChat != nil:
		return m.SenderChat.Title
	case m.Chat != nil:
		return m.Chat.Title
	}
	return ""
}

// optional maps the Bot API's zero for "not reported" to nil.
func optional(v int64) *int64 {
	if v <= 0 {
		return nil
	}
	return &v
}
