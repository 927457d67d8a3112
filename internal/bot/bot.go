package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"media_bot/internal/browse"
	"media_bot/internal/chat"
	"media_bot/internal/config"
	"media_bot/internal/filter"
	"media_bot/internal/model"
	"media_bot/internal/storage"
	"media_bot/internal/task"
	"media_bot/internal/throughput"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetFileDirectURL(fileID string) (string, error)
}

// Tasks is the interface for submitting and controlling task nodes.
type Tasks interface {
	NewNode(kind model.TaskKind, chatID int64) *model.TaskNode
	Submit(ctx context.Context, cfg *chat.DownloadConfig, node *model.TaskNode, b task.Bounds) *task.Handle
	Cancel(taskID int64) bool
	Running() []*model.TaskNode
}

// Speeds reports the process-wide transfer speed.
type Speeds interface {
	Global() throughput.GlobalSnapshot
}

// NewAPI connects to the Bot API, through a local server when configured.
func NewAPI(cfg *config.Config) (*tgbotapi.BotAPI, error) {
	if cfg.TelegramAPIEndpoint != "" {
		endpoint := strings.TrimRight(cfg.TelegramAPIEndpoint, "/") + "/bot%s/%s"
		api, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.TelegramBotToken, endpoint)
		if err != nil {
			return nil, fmt.Errorf("create bot api: %w", err)
		}
		return api, nil
	}
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return api, nil
}

// Bot is the Telegram bot that handles user commands, browse callbacks and
// captures channel posts into the message archive.
type Bot struct {
	api      telegramAPI
	cfg      *config.Config
	settings *config.Settings
	store    storage.Storage
	registry *chat.Registry
	tasks    Tasks
	speeds   Speeds
	browser  *browse.Manager
	log      *slog.Logger

	wg sync.WaitGroup
}

// New creates a Bot. The browse manager is attached with SetBrowser because
// it dispatches back into the bot.
func New(api telegramAPI, cfg *config.Config, settings *config.Settings, store storage.Storage, registry *chat.Registry, tasks Tasks, speeds Speeds, log *slog.Logger) *Bot {
	return &Bot{
		api:      api,
		cfg:      cfg,
		settings: settings,
		store:    store,
		registry: registry,
		tasks:    tasks,
		speeds:   speeds,
		log:      log,
	}
}

// SetBrowser attaches the browse session manager.
func (b *Bot) SetBrowser(m *browse.Manager) {
	b.browser = m
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled
// and every task started from the bot has been persisted.
func (b *Bot) Run(ctx context.Context) {
	defer b.wg.Wait()

	b.registerCommands()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if update.CallbackQuery.From != nil && !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
			b.answer(update.CallbackQuery.ID, "Access denied.")
			return
		}
		b.handleCallback(ctx, update.CallbackQuery)
	case update.ChannelPost != nil:
		b.capture(ctx, update.ChannelPost)
	case update.EditedChannelPost != nil:
		b.capture(ctx, update.EditedChannelPost)
	case update.Message != nil:
		msg := update.Message
		if !msg.IsCommand() {
			if msg.Chat != nil && !msg.Chat.IsPrivate() {
				b.capture(ctx, msg)
			}
			return
		}
		if msg.From == nil || !b.cfg.IsUserAllowed(msg.From.ID) {
			b.reply(msg.Chat.ID, "Access denied.")
			return
		}
		b.handleCommand(ctx, msg)
	}
}

// SendMessage sends a text message to the given chat and returns its id.
func (b *Bot) SendMessage(chatID int64, text string) int {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	sent, err := b.api.Send(msg)
	if err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
		return 0
	}
	return sent.MessageID
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) registerCommands() {
	cmds := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: cmdDownload, Description: "download media of a chat"},
		tgbotapi.BotCommand{Command: cmdForward, Description: "forward media to another chat"},
		tgbotapi.BotCommand{Command: cmdBrowse, Description: "pick recent media to download"},
		tgbotapi.BotCommand{Command: cmdSetFilter, Description: "set the download filter of a chat"},
		tgbotapi.BotCommand{Command: cmdFilter, Description: "show the download filter of a chat"},
		tgbotapi.BotCommand{Command: cmdCheckFilter, Description: "validate a filter expression"},
		tgbotapi.BotCommand{Command: cmdStop, Description: "stop a running task"},
		tgbotapi.BotCommand{Command: cmdStatus, Description: "show running tasks"},
	)
	if _, err := b.api.Request(cmds); err != nil {
		b.log.Warn("register commands", "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case cmdDownload:
		b.handleDownload(ctx, chatID, msg.From.ID, args)
	case cmdForward:
		b.handleForward(ctx, chatID, msg.From.ID, args)
	case cmdBrowse:
		b.handleBrowse(ctx, chatID, args)
	case cmdSetFilter:
		b.handleSetFilter(ctx, chatID, args)
	case cmdFilter:
		b.handleFilter(ctx, chatID, args)
	case cmdCheckFilter:
		b.handleCheckFilter(chatID, args)
	case cmdStop:
		b.handleStop(chatID, args)
	case cmdStatus:
		b.handleStatus(chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}

// startTask posts a status message for node, submits it and persists the
// chat once the task is done.
func (b *Bot) startTask(ctx context.Context, replyChat int64, cfg *chat.DownloadConfig, node *model.TaskNode, bounds task.Bounds) {
	node.ReplyChatID = replyChat
	node.SetStatus("queued")
	node.StatusMessageID = b.SendMessage(replyChat, FormatTaskStatus(node))

	h := b.tasks.Submit(ctx, cfg, node, bounds)
	b.log.Info("task submitted", "task_id", node.ID, "chat_id", node.ChatID, "kind", node.Kind)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		h.Wait()
		if err := b.registry.Persist(context.WithoutCancel(ctx), cfg); err != nil {
			b.log.Error("persist chat", "chat_id", cfg.ChatID(), "error", err)
		}
	}()
}

// filterFor returns the filter a command should run with: the explicit
// argument, else the stored one, else the configured default.
func (b *Bot) filterFor(cfg *chat.DownloadConfig, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if cfg.Filter() != "" {
		return ""
	}
	if cs, ok := b.settings.Chat(cfg.ChatID()); ok {
		return cs.DownloadFilter
	}
	return ""
}

func (b *Bot) validateFilter(text string) error {
	return filter.Validate(text, b.settings.Location())
}
