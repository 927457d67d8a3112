package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"media_bot/internal/browse"
	"media_bot/internal/model"
	"media_bot/internal/task"
)

// browseNamespace prefixes the callback tokens of browse keyboards.
const browseNamespace = "br"

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil {
		b.answer(cb.ID, "")
		return
	}
	chatID := cb.Message.Chat.ID

	tok, err := browse.ParseToken(cb.Data)
	if err != nil || tok.Namespace != browseNamespace {
		b.answer(cb.ID, "This button is no longer valid.")
		return
	}
	if b.browser == nil {
		b.answer(cb.ID, "Browsing is not available.")
		return
	}

	b.log.Info("callback",
		"action", tok.Action,
		"session_id", tok.SessionID,
		"item_id", tok.ItemID,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	key := browse.Key{Surface: chatID, SessionID: tok.SessionID}
	switch tok.Action {
	case browse.ActionToggle:
		st, err := b.browser.Toggle(key, tok.ItemID)
		if err != nil {
			b.answer(cb.ID, browseNotice(err))
			return
		}
		b.answer(cb.ID, fmt.Sprintf("%d %s", tok.ItemID, st))
		b.refreshBrowse(key, cb.Message.MessageID)
	case browse.ActionDone:
		ids, err := b.browser.Done(ctx, key)
		if err != nil {
			b.answer(cb.ID, browseNotice(err))
			return
		}
		b.answer(cb.ID, fmt.Sprintf("Queued %d item(s).", len(ids)))
		b.refreshBrowse(key, cb.Message.MessageID)
	case browse.ActionCancel:
		if err := b.browser.Cancel(ctx, key); err != nil {
			b.answer(cb.ID, browseNotice(err))
			return
		}
		b.answer(cb.ID, "Cancelled.")
	}
}

// DispatchSelection submits the selected items of a browse session as one
// download task reporting into the session's chat.
func (b *Bot) DispatchSelection(ctx context.Context, s browse.Session, ids []int64) error {
	cfg, err := b.registry.Get(ctx, s.SourceChat)
	if err != nil {
		return err
	}
	node := b.tasks.NewNode(model.TaskDownload, s.SourceChat)
	b.startTask(ctx, s.Key.Surface, cfg, node, task.Bounds{IDs: ids})
	return nil
}

// Cleanup deletes the keyboard messages of a destroyed browse session.
func (b *Bot) Cleanup(_ context.Context, s browse.Session) {
	for _, msgID := range s.Artifacts {
		if _, err := b.api.Request(tgbotapi.NewDeleteMessage(s.Key.Surface, msgID)); err != nil {
			b.log.Warn("delete browse message", "chat_id", s.Key.Surface, "message_id", msgID, "error", err)
		}
	}
}

func (b *Bot) sendBrowseBatch(s browse.Session, batch, batches int) {
	markup, err := b.browseKeyboard(s)
	if err != nil {
		b.log.Error("build browse keyboard", "session_id", s.Key.SessionID, "error", err)
		return
	}
	msg := tgbotapi.NewMessage(s.Key.Surface, FormatBrowseHeader(s, batch, batches))
	msg.ReplyMarkup = markup
	sent, err := b.api.Send(msg)
	if err != nil {
		b.log.Error("send browse batch", "chat_id", s.Key.Surface, "error", err)
		return
	}
	if err := b.browser.AddArtifact(s.Key, sent.MessageID); err != nil {
		b.log.Warn("track browse message", "session_id", s.Key.SessionID, "error", err)
	}
}

func (b *Bot) refreshBrowse(key browse.Key, msgID int) {
	s, ok := b.browser.Get(key)
	if !ok {
		return
	}
	markup, err := b.browseKeyboard(s)
	if err != nil {
		b.log.Error("build browse keyboard", "session_id", key.SessionID, "error", err)
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(key.Surface, msgID, markup)
	if _, err := b.api.Request(edit); err != nil {
		b.log.Warn("edit browse keyboard", "chat_id", key.Surface, "error", err)
	}
}

func (b *Bot) browseKeyboard(s browse.Session) (tgbotapi.InlineKeyboardMarkup, error) {
	token := func(itemID int64, action browse.Action) (string, error) {
		return browse.Token{
			Namespace: browseNamespace,
			SessionID: s.Key.SessionID,
			ItemID:    itemID,
			Action:    action,
		}.Encode()
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(s.Items)+1)
	for _, it := range s.Items {
		data, err := token(it.ID, browse.ActionToggle)
		if err != nil {
			return tgbotapi.InlineKeyboardMarkup{}, err
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(FormatBrowseItem(it, b.settings.Location()), data),
		))
	}
	done, err := token(0, browse.ActionDone)
	if err != nil {
		return tgbotapi.InlineKeyboardMarkup{}, err
	}
	cancel, err := token(0, browse.ActionCancel)
	if err != nil {
		return tgbotapi.InlineKeyboardMarkup{}, err
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Download", done),
		tgbotapi.NewInlineKeyboardButtonData("Cancel", cancel),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...), nil
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
}

// browseNotice maps browse errors to short user-facing notices.
func browseNotice(err error) string {
	switch {
	case errors.Is(err, browse.ErrSessionNotFound):
		return "This selection has expired. Use /browse again."
	case errors.Is(err, browse.ErrItemNotFound):
		return "Item not found."
	case errors.Is(err, browse.ErrAlreadyDownloaded):
		return "Already downloaded."
	case errors.Is(err, browse.ErrNothingSelected):
		return "Nothing selected."
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
