// Package browse holds short-lived interactive selection sessions over the
// recent media of a chat and expires them after a fixed time-to-live.
package browse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"media_bot/internal/model"
)

const (
	// BatchSize is the number of items per session.
	BatchSize = 10
	// DefaultTTL is how long a session lives regardless of user action.
	DefaultTTL = 30 * time.Minute
)

// Browse errors surfaced to the user as notices.
var (
	ErrSessionNotFound   = errors.New("browse session not found")
	ErrItemNotFound      = errors.New("item not found in session")
	ErrAlreadyDownloaded = errors.New("item already downloaded")
	ErrNothingSelected   = errors.New("nothing selected")
	ErrNothingToBrowse   = errors.New("no media in the requested window")
)

// ItemState is the selection state of a browse item.
type ItemState int

// Item states.
const (
	Available ItemState = iota
	Selected
	Downloaded
)

func (s ItemState) String() string {
	switch s {
	case Selected:
		return "selected"
	case Downloaded:
		return "downloaded"
	default:
		return "available"
	}
}

// Item is one browsable message.
type Item struct {
	ID       int64
	Kind     model.MediaKind
	Date     time.Time
	Sender   string
	FileName string
	State    ItemState
}

// Key identifies a session on a requesting surface (the chat it was opened in).
type Key struct {
	Surface   int64
	SessionID string
}

// Session is a copy of a session's state.
type Session struct {
	Key        Key
	SourceChat int64
	Target     string
	Minutes    int
	CreatedAt  time.Time
	Items      []Item
	Artifacts  []int
}

// Selected returns the ids of selected items, oldest first.
func (s Session) Selected() []int64 {
	var ids []int64
	for _, it := range s.Items {
		if it.State == Selected {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

// Lister returns the messages of a chat dated at or after t.
type Lister interface {
	Since(ctx context.Context, chatID int64, t time.Time) ([]model.Message, error)
}

// Dispatcher hands the selected ids of a session to the task orchestrator as
// a single task node.
type Dispatcher interface {
	DispatchSelection(ctx context.Context, s Session, ids []int64) error
}

// Cleaner removes the UI artifacts of a destroyed session.
type Cleaner interface {
	Cleanup(ctx context.Context, s Session)
}

// Options configures a Manager.
type Options struct {
	Lister     Lister
	Dispatcher Dispatcher
	Cleaner    Cleaner
	TTL        time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
}

type session struct {
	Session
	index map[int64]int
}

// Manager owns the session table. It is safe for concurrent use; sweeps and
// explicit cancel/done remove a session with a single pop under the lock.
type Manager struct {
	opts     Options
	mu       sync.Mutex
	sessions map[Key]*session
}

// NewManager creates a session manager.
func NewManager(opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{opts: opts, sessions: make(map[Key]*session)}
}

// Open creates one session per batch of media items newer than now-minutes.
func (m *Manager) Open(ctx context.Context, surface, sourceChat int64, target string, minutes int) ([]Session, error) {
	now := m.opts.Now()
	msgs, err := m.opts.Lister.Since(ctx, sourceChat, now.Add(-time.Duration(minutes)*time.Minute))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	items := make([]Item, 0, len(msgs))
	for _, msg := range msgs {
		if !msg.HasMedia() {
			continue
		}
		items = append(items, Item{
			ID:       msg.ID,
			Kind:     msg.Media.Kind,
			Date:     msg.Date,
			Sender:   msg.Sender,
			FileName: msg.Media.FileName,
		})
	}
	if len(items) == 0 {
		return nil, ErrNothingToBrowse
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	var out []Session
	m.mu.Lock()
	defer m.mu.Unlock()
	for start := 0; start < len(items); start += BatchSize {
		end := min(start+BatchSize, len(items))
		s := &session{
			Session: Session{
				Key:        Key{Surface: surface, SessionID: newSessionID()},
				SourceChat: sourceChat,
				Target:     target,
				Minutes:    minutes,
				CreatedAt:  now,
				Items:      append([]Item(nil), items[start:end]...),
			},
			index: make(map[int64]int, end-start),
		}
		for i, it := range s.Items {
			s.index[it.ID] = i
		}
		m.sessions[s.Key] = s
		out = append(out, s.copy())
	}
	return out, nil
}

// Get returns a copy of a live session.
func (m *Manager) Get(key Key) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return Session{}, false
	}
	return s.copy(), true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// AddArtifact attaches a UI message to a session for later cleanup.
func (m *Manager) AddArtifact(key Key, msgID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return ErrSessionNotFound
	}
	s.Artifacts = append(s.Artifacts, msgID)
	return nil
}

// Toggle flips the selection of an item. Downloaded items are rejected
// without changing state.
func (m *Manager) Toggle(key Key, itemID int64) (ItemState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return Available, ErrSessionNotFound
	}
	i, ok := s.index[itemID]
	if !ok {
		return Available, ErrItemNotFound
	}
	it := &s.Items[i]
	switch it.State {
	case Available:
		it.State = Selected
	case Selected:
		it.State = Available
	case Downloaded:
		return Downloaded, ErrAlreadyDownloaded
	}
	return it.State, nil
}

// Done dispatches the selected items as one task node and marks them
// downloaded. The session stays open for further picks.
func (m *Manager) Done(ctx context.Context, key Key) ([]int64, error) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	ids := s.Selected()
	if len(ids) == 0 {
		m.mu.Unlock()
		return nil, ErrNothingSelected
	}
	snap := s.copy()
	m.mu.Unlock()

	if err := m.opts.Dispatcher.DispatchSelection(ctx, snap, ids); err != nil {
		return nil, fmt.Errorf("dispatch selection: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// The session may have been swept while dispatching; the task still runs.
	if s, ok := m.sessions[key]; ok {
		for _, id := range ids {
			if i, ok := s.index[id]; ok {
				s.Items[i].State = Downloaded
			}
		}
	}
	return ids, nil
}

// Cancel destroys a session and its artifacts.
func (m *Manager) Cancel(ctx context.Context, key Key) error {
	s, ok := m.pop(key)
	if !ok {
		return ErrSessionNotFound
	}
	m.cleanup(ctx, s)
	return nil
}

// Sweep destroys every session older than the TTL at now and returns how many
// were removed.
func (m *Manager) Sweep(ctx context.Context, now time.Time) int {
	m.mu.Lock()
	var expired []Session
	for k, s := range m.sessions {
		if now.Sub(s.CreatedAt) > m.opts.TTL {
			expired = append(expired, s.copy())
			delete(m.sessions, k)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.cleanup(ctx, s)
	}
	if len(expired) > 0 {
		m.opts.Logger.Debug("browse sessions expired", "count", len(expired))
	}
	return len(expired)
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx, m.opts.Now())
		}
	}
}

func (m *Manager) pop(key Key) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return Session{}, false
	}
	delete(m.sessions, key)
	return s.copy(), true
}

func (m *Manager) cleanup(ctx context.Context, s Session) {
	if m.opts.Cleaner != nil {
		m.opts.Cleaner.Cleanup(ctx, s)
	}
}

func (s *session) copy() Session {
	c := s.Session
	c.Items = append([]Item(nil), s.Items...)
	c.Artifacts = append([]int(nil), s.Artifacts...)
	return c
}

// newSessionID returns a 32 character hex id so tokens fit the callback limit.
func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
