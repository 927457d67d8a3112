package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"media_bot/internal/browse"
	"media_bot/internal/filter"
	"media_bot/internal/model"
	"media_bot/internal/task"
)

const (
	cmdDownload    = "download"
	cmdForward     = "forward"
	cmdBrowse      = "browse"
	cmdSetFilter   = "set_filter"
	cmdFilter      = "filter"
	cmdCheckFilter = "check_filter"
	cmdStop        = "stop"
	cmdStatus      = "status"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Media Bot!

Download and forward the media of your chats, filtered by expressions.

Quick start:
1. /download <chat_id> — download new media of a chat
2. /set_filter <chat_id> <filter> — keep only matching media
3. /browse <chat_id> — pick recent media by hand

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Tasks:
/download <chat_id> [offset_id] [limit] [filter] — download media
/forward <from> <to> [offset_id] [limit] [filter] — forward media
/browse <chat_id> [minutes] — pick recent media (default 60 min)
/stop <task_id> — stop a running task
/status — running tasks and speed

Filters:
/set_filter <chat_id> <filter> — store the chat's filter
/filter <chat_id> — show the chat's filter
/check_filter <filter> — validate an expression

Filter example:
media_type == 'video' && file_size > 10MB && message_date >= 2024-01-01 00:00:00`)
}

func (b *Bot) handleDownload(ctx context.Context, chatID, userID int64, args string) {
	parsed, err := ParseDownloadArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	b.submitRange(ctx, chatID, userID, model.TaskDownload, parsed)
}

func (b *Bot) handleForward(ctx context.Context, chatID, userID int64, args string) {
	parsed, err := ParseForwardArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	b.submitRange(ctx, chatID, userID, model.TaskForward, parsed)
}

func (b *Bot) submitRange(ctx context.Context, chatID, userID int64, kind model.TaskKind, args RangeArgs) {
	if args.Filter != "" {
		if err := b.validateFilter(args.Filter); err != nil {
			b.reply(chatID, fmt.Sprintf("Invalid filter: %v", err))
			return
		}
	}

	cfg, err := b.registry.Get(ctx, args.ChatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	node := b.tasks.NewNode(kind, args.ChatID)
	node.DestinationID = args.TargetID
	node.RequestedBy = userID
	node.Limit = args.Limit

	bounds := task.Bounds{
		OffsetID: args.OffsetID,
		Limit:    args.Limit,
		Filter:   b.filterFor(cfg, args.Filter),
	}
	if cs, ok := b.settings.Chat(args.ChatID); ok {
		bounds.RestrictForward = cs.RestrictForward
	}
	b.startTask(ctx, chatID, cfg, node, bounds)
}

func (b *Bot) handleBrowse(ctx context.Context, chatID int64, args string) {
	parsed, err := ParseBrowseArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	if b.browser == nil {
		b.reply(chatID, "Browsing is not available.")
		return
	}

	target := strconv.FormatInt(parsed.ChatID, 10)
	sessions, err := b.browser.Open(ctx, chatID, parsed.ChatID, target, parsed.Minutes)
	if errors.Is(err, browse.ErrNothingToBrowse) {
		b.reply(chatID, fmt.Sprintf("No media in chat %d during the last %d min.", parsed.ChatID, parsed.Minutes))
		return
	}
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	for i, s := range sessions {
		b.sendBrowseBatch(s, i+1, len(sessions))
	}
}

func (b *Bot) handleSetFilter(ctx context.Context, chatID int64, args string) {
	target, text, err := ParseChatFilterArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	if err := b.validateFilter(text); err != nil {
		b.reply(chatID, fmt.Sprintf("Invalid filter: %v", err))
		return
	}

	cfg, err := b.registry.Get(ctx, target)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	cfg.SetFilter(text)
	if err := b.registry.Persist(ctx, cfg); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Filter of chat %d set to: %s", target, text))
}

func (b *Bot) handleFilter(ctx context.Context, chatID int64, args string) {
	target, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /filter <chat_id>")
		return
	}
	cfg, err := b.registry.Get(ctx, target)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if text := cfg.Filter(); text != "" {
		b.reply(chatID, fmt.Sprintf("Filter of chat %d: %s", target, text))
		return
	}
	if cs, ok := b.settings.Chat(target); ok && cs.DownloadFilter != "" {
		b.reply(chatID, fmt.Sprintf("Filter of chat %d (from settings): %s", target, cs.DownloadFilter))
		return
	}
	b.reply(chatID, fmt.Sprintf("Chat %d has no filter; all media is downloaded.", target))
}

func (b *Bot) handleCheckFilter(chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /check_filter <filter>")
		return
	}
	if err := b.validateFilter(args); err != nil {
		b.reply(chatID, fmt.Sprintf("Invalid filter: %v", err))
		return
	}
	expr, err := filter.CompileIn(args, b.settings.Location())
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Invalid filter: %v", err))
		return
	}
	b.reply(chatID, FormatFilterCheck(expr))
}

func (b *Bot) handleStop(chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /stop <task_id>")
		return
	}
	if !b.tasks.Cancel(id) {
		b.reply(chatID, fmt.Sprintf("Task #%d is not running.", id))
		return
	}
	b.reply(chatID, fmt.Sprintf("Stopping task #%d; transfers in progress will finish.", id))
}

func (b *Bot) handleStatus(chatID int64) {
	b.reply(chatID, FormatStatus(b.tasks.Running(), b.speeds.Global()))
}
