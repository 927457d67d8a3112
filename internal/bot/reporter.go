package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"media_bot/internal/model"
)

// statusEditInterval is the minimum spacing of status message edits per task.
const statusEditInterval = 2 * time.Second

// Reporter renders task status into the status message posted when the task
// was started. Intermediate edits are throttled; the final edit always goes out.
// It implements task.Reporter.
type Reporter struct {
	api telegramAPI
	log *slog.Logger

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	every    time.Duration
}

// NewReporter creates a Reporter.
func NewReporter(api telegramAPI, log *slog.Logger) *Reporter {
	return &Reporter{
		api:      api,
		log:      log,
		limiters: make(map[int64]*rate.Limiter),
		every:    statusEditInterval,
	}
}

// Report edits the status message of node. Nodes without a status message,
// such as scheduled runs, are only logged.
func (r *Reporter) Report(_ context.Context, node *model.TaskNode, final bool) {
	if final {
		r.log.Info("task status", "task_id", node.ID, "status", node.Status())
	}
	if node.ReplyChatID == 0 || node.StatusMessageID == 0 {
		return
	}
	if !r.allow(node.ID, final) {
		return
	}

	edit := tgbotapi.NewEditMessageText(node.ReplyChatID, node.StatusMessageID, FormatTaskStatus(node))
	if _, err := r.api.Request(edit); err != nil && !notModified(err) {
		r.log.Warn("edit status message", "task_id", node.ID, "chat_id", node.ReplyChatID, "error", err)
	}
}

func (r *Reporter) allow(taskID int64, final bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if final {
		delete(r.limiters, taskID)
		return true
	}
	lim, ok := r.limiters[taskID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(r.every), 1)
		r.limiters[taskID] = lim
	}
	return lim.Allow()
}

func notModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}
