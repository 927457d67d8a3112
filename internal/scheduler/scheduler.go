package scheduler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"media_bot/internal/chat"
	"media_bot/internal/config"
	"media_bot/internal/fetcher"
	"media_bot/internal/model"
	"media_bot/internal/task"
)

// Tasks is the interface for submitting task nodes.
type Tasks interface {
	NewNode(kind model.TaskKind, chatID int64) *model.TaskNode
	Submit(ctx context.Context, cfg *chat.DownloadConfig, node *model.TaskNode, b task.Bounds) *task.Handle
}

// job is one configured chat with its parsed schedule.
type job struct {
	settings config.ChatSettings
	schedule cron.Schedule
	next     time.Time
}

// Scheduler periodically mirrors chat feeds and runs scheduled downloads.
type Scheduler struct {
	registry *chat.Registry
	tasks    Tasks
	archive  fetcher.Saver
	fetcher  *fetcher.Fetcher
	jobs     []*job
	log      *slog.Logger
	tick     time.Duration
	now      func() time.Time
}

// New creates a Scheduler with the default HTTP client.
func New(registry *chat.Registry, tasks Tasks, archive fetcher.Saver, chats []config.ChatSettings, log *slog.Logger) *Scheduler {
	return NewWithFetcher(registry, tasks, archive, fetcher.New(http.DefaultClient), chats, log)
}

// NewWithFetcher creates a Scheduler with a custom fetcher (useful for testing).
func NewWithFetcher(registry *chat.Registry, tasks Tasks, archive fetcher.Saver, f *fetcher.Fetcher, chats []config.ChatSettings, log *slog.Logger) *Scheduler {
	s := &Scheduler{
		registry: registry,
		tasks:    tasks,
		archive:  archive,
		fetcher:  f,
		log:      log,
		tick:     1 * time.Minute,
		now:      time.Now,
	}
	for _, c := range chats {
		j := &job{settings: c}
		if c.Schedule != "" {
			sched, err := cron.ParseStandard(c.Schedule)
			if err != nil {
				log.Error("invalid schedule", "chat_id", c.ChatID, "schedule", c.Schedule, "error", err)
				continue
			}
			j.schedule = sched
		}
		if j.schedule == nil && c.FeedURL == "" {
			continue
		}
		s.jobs = append(s.jobs, j)
	}
	return s
}

// SetTickInterval overrides the default 1-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled. On return
// every chat state loaded in this process is persisted.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.persistAll()

	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

func (s *Scheduler) checkAll(ctx context.Context) {
	now := s.now()
	for _, j := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		if j.settings.FeedURL != "" {
			s.syncFeed(ctx, j.settings)
		}
		if j.schedule == nil {
			continue
		}
		if j.next.IsZero() {
			j.next = j.schedule.Next(now)
			continue
		}
		if now.Before(j.next) {
			continue
		}
		j.next = j.schedule.Next(now)
		s.runChat(ctx, j.settings)
	}
}

func (s *Scheduler) syncFeed(ctx context.Context, c config.ChatSettings) {
	n, err := s.fetcher.Sync(ctx, s.archive, c.ChatID, c.FeedURL)
	if err != nil {
		s.log.Error("sync feed", "chat_id", c.ChatID, "url", c.FeedURL, "error", err)
		return
	}
	s.log.Debug("synced feed", "chat_id", c.ChatID, "items", n)
}

// runChat drains one chat and persists its state once the task is done.
func (s *Scheduler) runChat(ctx context.Context, c config.ChatSettings) {
	cfg, err := s.registry.Get(ctx, c.ChatID)
	if err != nil {
		s.log.Error("load chat", "chat_id", c.ChatID, "error", err)
		return
	}

	kind := model.TaskDownload
	if c.ForwardTo != 0 {
		kind = model.TaskForward
	}
	node := s.tasks.NewNode(kind, c.ChatID)
	node.DestinationID = c.ForwardTo

	b := task.Bounds{RestrictForward: c.RestrictForward}
	if cfg.Filter() == "" {
		b.Filter = c.DownloadFilter
	}

	s.log.Info("scheduled run", "chat_id", c.ChatID, "task_id", node.ID, "kind", kind)
	h := s.tasks.Submit(ctx, cfg, node, b)
	h.Wait()

	if err := s.registry.Persist(context.WithoutCancel(ctx), cfg); err != nil {
		s.log.Error("persist chat", "chat_id", c.ChatID, "error", err)
	}
}

func (s *Scheduler) persistAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.registry.PersistAll(ctx); err != nil {
		s.log.Error("persist chats", "error", err)
	}
}
