// Package task drains chats into download and forward work with a global
// concurrency bound, retry classification and resumable bookkeeping.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"media_bot/internal/chat"
	"media_bot/internal/filter"
	"media_bot/internal/model"
	"media_bot/internal/source"
	"media_bot/internal/throughput"
)

// MaxAttempts bounds the attempts per item for retryable failures.
const MaxAttempts = 3

const (
	defaultMaxConcurrent = 5
	defaultRetryDelay    = 2 * time.Second
)

// Downloader retrieves the media of a message to dest, calling progress with
// the cumulative byte count. It returns the number of bytes written.
type Downloader interface {
	Download(ctx context.Context, msg model.Message, dest string, progress func(written int64)) (int64, error)
}

// Forwarder relays messages between chats.
type Forwarder interface {
	Forward(ctx context.Context, fromChat, toChat, msgID int64) error
	SendFile(ctx context.Context, toChat int64, path, caption string) error
}

// Uploader copies a finished download to remote storage.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string, progress func(delta int64)) error
}

// Reporter renders node status somewhere visible. final is set once per node
// when the work has completed.
type Reporter interface {
	Report(ctx context.Context, node *model.TaskNode, final bool)
}

// Options configures an Orchestrator.
type Options struct {
	Source        source.Source
	Downloader    Downloader
	Forwarder     Forwarder
	Uploader      Uploader
	Tracker       *throughput.Tracker
	Reporter      Reporter
	MaxConcurrent int
	RetryDelay    time.Duration
	SavePath      string
	DeleteLocal   bool
	Logger        *slog.Logger
	FilterCache   *filter.Cache
}

// Bounds selects the messages of a task. When IDs is set only those
// messages are processed. Otherwise the chat is drained from OffsetID (or
// the chat's resume cursor when 0), at most Limit messages (0 = unbounded),
// after the chat's pending retry set. Only a drain starting at or below the
// resume cursor advances it; explicit ids and retries never do.
type Bounds struct {
	OffsetID int64
	Limit    int
	IDs      []int64
	// Filter overrides the chat's stored download filter when set. Explicit
	// IDs are only filtered by this field.
	Filter string
	// RestrictForward skips relaying and re-uploads instead.
	RestrictForward bool
}

// Orchestrator schedules task nodes.
type Orchestrator struct {
	opts   Options
	sem    *semaphore.Weighted
	nextID atomic.Int64

	mu      sync.Mutex
	running map[int64]*Handle
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FilterCache == nil {
		opts.FilterCache = filter.NewCache(time.UTC)
	}
	if opts.Tracker == nil {
		opts.Tracker = throughput.New(nil)
	}
	return &Orchestrator{
		opts:    opts,
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		running: make(map[int64]*Handle),
	}
}

// NewNode allocates a task node with the next task id.
func (o *Orchestrator) NewNode(kind model.TaskKind, chatID int64) *model.TaskNode {
	return &model.TaskNode{
		ID:        o.nextID.Add(1),
		Kind:      kind,
		ChatID:    chatID,
		CreatedAt: time.Now(),
	}
}

// Handle controls a submitted task.
type Handle struct {
	node   *model.TaskNode
	cancel context.CancelFunc
	done   chan struct{}
}

// Node returns the task node.
func (h *Handle) Node() *model.TaskNode { return h.node }

// Cancel stops dispatching new items. In-flight items finish naturally.
func (h *Handle) Cancel() { h.cancel() }

// Done is closed when the task has completed.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task has completed.
func (h *Handle) Wait() { <-h.done }

// Submit starts draining cfg's chat for node. Cancelling ctx aborts
// in-flight transfers as well.
func (o *Orchestrator) Submit(ctx context.Context, cfg *chat.DownloadConfig, node *model.TaskNode, b Bounds) *Handle {
	dispatchCtx, cancel := context.WithCancel(ctx)
	h := &Handle{node: node, cancel: cancel, done: make(chan struct{})}

	o.mu.Lock()
	o.running[node.ID] = h
	o.mu.Unlock()

	node.SetRunning(true)
	go func() {
		defer close(h.done)
		defer cancel()
		o.run(ctx, dispatchCtx, cfg, node, b)

		o.mu.Lock()
		delete(o.running, node.ID)
		o.mu.Unlock()
	}()
	return h
}

// Cancel stops dispatch of a running task. It reports whether the task exists.
func (o *Orchestrator) Cancel(taskID int64) bool {
	o.mu.Lock()
	h, ok := o.running[taskID]
	o.mu.Unlock()
	if ok {
		h.Cancel()
	}
	return ok
}

// Running returns the nodes of running tasks ordered by id.
func (o *Orchestrator) Running() []*model.TaskNode {
	o.mu.Lock()
	defer o.mu.Unlock()
	nodes := make([]*model.TaskNode, 0, len(o.running))
	for _, h := range o.running {
		nodes = append(nodes, h.node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// run is one task: a sequential dispatch loop feeding bounded workers.
func (o *Orchestrator) run(ctx, dispatchCtx context.Context, cfg *chat.DownloadConfig, node *model.TaskNode, b Bounds) {
	log := o.opts.Logger.With("task_id", node.ID, "chat_id", node.ChatID, "kind", node.Kind)
	log.Info("task started", "offset_id", b.OffsetID, "limit", b.Limit, "ids", len(b.IDs))

	var (
		dispatched atomic.Int64
		failure    string
	)
	defer func() {
		node.SetRunning(false)
		if failure != "" {
			node.SetStatus(failure)
		} else {
			node.SetStatus(finalStatus(node, int(dispatched.Load()), dispatchCtx.Err() != nil && ctx.Err() == nil))
		}
		o.report(ctx, node, true)
		o.opts.Tracker.FinishTask(node.ID)
		log.Info("task finished",
			"dispatched", dispatched.Load(),
			"success", node.Count(model.StatusSuccess),
			"failed", node.Count(model.StatusFailed),
			"skipped", node.Count(model.StatusSkipped))
	}()

	text := b.Filter
	if text == "" && len(b.IDs) == 0 {
		text = cfg.Filter()
	}
	var expr *filter.Expr
	if text != "" {
		var err error
		if expr, err = o.opts.FilterCache.Compile(text); err != nil {
			log.Warn("invalid filter", "filter", text, "error", err)
			failure = fmt.Sprintf("invalid filter: %v", err)
			return
		}
	}

	var g errgroup.Group
	seen := make(map[int64]bool)
	// ranged is set for items of a drain that starts at the resume cursor;
	// only those move it.
	dispatch := func(msg model.Message, ranged bool) error {
		if err := dispatchCtx.Err(); err != nil {
			return err
		}
		if seen[msg.ID] {
			return nil
		}
		seen[msg.ID] = true

		if !o.accept(expr, msg, log) {
			if ranged {
				cfg.Begin(msg.ID)
				cfg.Processed(msg.ID)
			}
			return nil
		}
		if err := o.sem.Acquire(dispatchCtx, 1); err != nil {
			return err
		}
		if ranged {
			cfg.Begin(msg.ID)
		}
		cfg.IncTotalTask()
		dispatched.Add(1)
		g.Go(func() error {
			defer o.sem.Release(1)
			o.process(ctx, cfg, node, msg, b, &dispatched, log)
			return nil
		})
		return nil
	}

	err := o.drain(dispatchCtx, cfg, b, dispatch)
	_ = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("drain source", "error", err)
	}
}

// drain feeds dispatch with explicit ids, or with the retry set followed by
// the range. Explicit and retry ids record outcomes without moving the
// cursor, and so does a range starting above it.
func (o *Orchestrator) drain(ctx context.Context, cfg *chat.DownloadConfig, b Bounds, dispatch func(model.Message, bool) error) error {
	if len(b.IDs) > 0 {
		return o.dispatchIDs(ctx, cfg.ChatID(), b.IDs, dispatch)
	}
	if retryIDs := cfg.IDsToRetry(); len(retryIDs) > 0 {
		if err := o.dispatchIDs(ctx, cfg.ChatID(), retryIDs, dispatch); err != nil {
			return err
		}
	}
	last := cfg.LastReadMessageID()
	offset := b.OffsetID
	if offset == 0 {
		offset = last
	}
	ranged := offset <= last
	return o.opts.Source.Iter(ctx, cfg.ChatID(), offset, b.Limit, func(m model.Message) error {
		return dispatch(m, ranged)
	})
}

func (o *Orchestrator) dispatchIDs(ctx context.Context, chatID int64, ids []int64, dispatch func(model.Message, bool) error) error {
	msgs, err := o.opts.Source.Get(ctx, chatID, ids)
	if err != nil {
		return fmt.Errorf("get messages: %w", err)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	for _, m := range msgs {
		if err := dispatch(m, false); err != nil {
			return err
		}
	}
	return nil
}

// accept reports whether msg should be dispatched. A filter that cannot be
// evaluated for this message rejects it.
func (o *Orchestrator) accept(expr *filter.Expr, msg model.Message, log *slog.Logger) bool {
	if !msg.HasMedia() {
		return false
	}
	if expr == nil {
		return true
	}
	ok, err := expr.Match(filter.Bind(msg))
	if err != nil {
		log.Warn("filter evaluation", "message_id", msg.ID, "error", err)
		return false
	}
	return ok
}

func (o *Orchestrator) process(ctx context.Context, cfg *chat.DownloadConfig, node *model.TaskNode, msg model.Message, b Bounds, dispatched *atomic.Int64, log *slog.Logger) {
	st, err := o.attempt(ctx, node, msg, b, log)
	switch {
	case err == nil:
	case errors.Is(err, ErrReferenceExpired):
		log.Warn("timed out after retries", "message_id", msg.ID, "attempts", MaxAttempts, "error", err)
	case errors.Is(err, ErrTimeout):
		log.Warn("transfer timed out", "message_id", msg.ID, "attempts", MaxAttempts, "error", err)
	default:
		var sizeErr *SizeMismatchError
		if errors.As(err, &sizeErr) {
			log.Warn("downloaded size mismatch", "message_id", msg.ID, "got", sizeErr.Got, "want", sizeErr.Want)
		} else {
			log.Error("transfer failed", "message_id", msg.ID, "error", err)
		}
	}

	cfg.RecordOutcome(msg.ID, st)
	node.Record(msg.ID, st)
	if err != nil {
		reason := failureReason(err)
		node.SetFailureReason(msg.ID, reason)
		node.SetStatus(failedStatus(msg.ID, reason))
		o.report(ctx, node, false)
	}
	node.SetStatus(progressStatus(node, int(dispatched.Load()), o.opts.Tracker.TaskSpeed(node.ID)))
	o.report(ctx, node, false)
}

// attempt runs the transfer of one item with retries for retryable failures.
func (o *Orchestrator) attempt(ctx context.Context, node *model.TaskNode, msg model.Message, b Bounds, log *slog.Logger) (model.DownloadStatus, error) {
	var (
		n      int
		status model.DownloadStatus
	)
	backoff := retry.WithMaxRetries(MaxAttempts-1, retry.NewConstant(o.opts.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		n++
		if n > 1 {
			node.SetStatus(retryStatus(msg.ID, n))
			o.report(ctx, node, false)
			log.Info("retrying", "message_id", msg.ID, "attempt", n)
		}

		st, err := o.transfer(ctx, node, msg, b)
		if err == nil {
			status = st
			return nil
		}
		if errors.Is(err, ErrReferenceExpired) {
			if fresh, ferr := o.refetch(ctx, msg); ferr == nil {
				msg = fresh
			} else {
				log.Warn("refetch message", "message_id", msg.ID, "error", ferr)
			}
		}
		if retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return model.StatusFailed, err
	}
	return status, nil
}

func (o *Orchestrator) refetch(ctx context.Context, msg model.Message) (model.Message, error) {
	msgs, err := o.opts.Source.Get(ctx, msg.ChatID, []int64{msg.ID})
	if err != nil {
		return msg, err
	}
	if len(msgs) == 0 {
		return msg, fmt.Errorf("message %d no longer exists", msg.ID)
	}
	return msgs[0], nil
}

func (o *Orchestrator) report(ctx context.Context, node *model.TaskNode, final bool) {
	if o.opts.Reporter != nil {
		o.opts.Reporter.Report(ctx, node, final)
	}
}
