// Package dashboard keeps the scheduled and sent collections for the active
// session and refreshes them on demand.
package dashboard

import (
	"context"
	"log/slog"
	"sync"

	"github.io/infrasutra/outboxlab/internal/backend"
	"github.io/infrasutra/outboxlab/internal/pagination"
	"github.io/infrasutra/outboxlab/internal/session"
)

type Lister interface {
	ScheduledEmails(ctx context.Context, userID string, page pagination.Params) (backend.ListResponse[backend.ScheduledEmailItem], error)
	SentEmails(ctx context.Context, userID string, page pagination.Params) (backend.ListResponse[backend.SentEmailItem], error)
}

type SessionSource interface {
	Current() (session.Session, bool)
}

// Notifier hears about every applied collection update.
type Notifier interface {
	CollectionUpdated(sessionID string, kind Kind)
}

type Kind string

const (
	KindScheduled Kind = "scheduled"
	KindSent      Kind = "sent"
)

type Collection[T any] struct {
	Items     []T  `json:"items"`
	Total     int  `json:"total"`
	IsLoading bool `json:"isLoading"`
}

// Snapshot is both collections as of one instant.
type Snapshot struct {
	SessionID string                                 `json:"sessionId,omitempty"`
	Scheduled Collection[backend.ScheduledEmailItem] `json:"scheduled"`
	Sent      Collection[backend.SentEmailItem]      `json:"sent"`
}

// slot is one collection plus the generation of the fetch allowed to write it.
type slot[T any] struct {
	collection Collection[T]
	generation uint64
}

// Synchronizer runs the two list fetches independently and concurrently. Only
// the most recently issued fetch for a collection may apply its result, and
// nothing applies once Close has been called.
type Synchronizer struct {
	lister   Lister
	sessions SessionSource
	notifier Notifier
	logger   *slog.Logger
	page     pagination.Params

	lifetime context.Context
	cancel   context.CancelFunc

	mu        sync.Mutex
	sessionID string
	scheduled slot[backend.ScheduledEmailItem]
	sent      slot[backend.SentEmailItem]
}

type Option func(*Synchronizer)

func WithNotifier(n Notifier) Option {
	return func(s *Synchronizer) {
		s.notifier = n
	}
}

func WithPage(p pagination.Params) Option {
	return func(s *Synchronizer) {
		s.page = p
	}
}

func New(lister Lister, sessions SessionSource, logger *slog.Logger, opts ...Option) *Synchronizer {
	lifetime, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		lister:   lister,
		sessions: sessions,
		logger:   logger,
		page:     pagination.Default(),
		lifetime: lifetime,
		cancel:   cancel,
	}
	s.scheduled.collection = Collection[backend.ScheduledEmailItem]{Items: []backend.ScheduledEmailItem{}, IsLoading: true}
	s.sent.collection = Collection[backend.SentEmailItem]{Items: []backend.SentEmailItem{}, IsLoading: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionID: s.sessionID,
		Scheduled: cloneCollection(s.scheduled.collection),
		Sent:      cloneCollection(s.sent.collection),
	}
}

// Refresh fetches both collections for the active session and waits for both
// to settle. Without a session nothing is fetched and state is left as is. A
// failed fetch empties only its own collection.
func (s *Synchronizer) Refresh(ctx context.Context) {
	active, ok := s.sessions.Current()
	if !ok {
		return
	}
	if s.lifetime.Err() != nil {
		return
	}

	ctx, stop := mergeCancel(ctx, s.lifetime)
	defer stop()

	s.mu.Lock()
	// The session may have switched since it was read; Follow has already
	// reset the collections for the new one.
	if current, ok := s.sessions.Current(); !ok || current.ID != active.ID {
		s.mu.Unlock()
		return
	}
	s.sessionID = active.ID
	scheduledGen := beginLocked(&s.scheduled)
	sentGen := beginLocked(&s.sent)
	s.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		list, err := s.lister.ScheduledEmails(ctx, active.ID, s.page)
		settle(ctx, s, &s.scheduled, scheduledGen, KindScheduled, active.ID, list, err)
	}()
	go func() {
		defer wg.Done()
		list, err := s.lister.SentEmails(ctx, active.ID, s.page)
		settle(ctx, s, &s.sent, sentGen, KindSent, active.ID, list, err)
	}()
	wg.Wait()
}

// Close cancels in-flight fetches; their late results are discarded.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel()
}

// Reset drops both collections, used when the session goes away.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = ""
	s.scheduled.generation++
	s.sent.generation++
	s.scheduled.collection = Collection[backend.ScheduledEmailItem]{Items: []backend.ScheduledEmailItem{}, IsLoading: true}
	s.sent.collection = Collection[backend.SentEmailItem]{Items: []backend.SentEmailItem{}, IsLoading: true}
}

// Follow is a session change hook. When the active identity changes the
// collections of the previous one are dropped, so nothing fetched for it can
// show up under the new session.
func (s *Synchronizer) Follow(prev, next session.State) {
	if sessionID(prev) != sessionID(next) {
		s.Reset()
	}
}

func sessionID(state session.State) string {
	if state.Session == nil {
		return ""
	}
	return state.Session.ID
}

// settle applies one finished fetch. After Close the result is dropped. If only
// the caller gave up, the loading flag is cleared and the previous items stay.
func settle[T any](ctx context.Context, s *Synchronizer, sl *slot[T], generation uint64, kind Kind, sessionID string, list backend.ListResponse[T], err error) {
	s.mu.Lock()
	if s.lifetime.Err() != nil {
		s.mu.Unlock()
		s.logger.Debug("discard dashboard fetch", "collection", kind)
		return
	}
	var applied bool
	if ctx.Err() != nil {
		if sl.generation == generation {
			sl.collection.IsLoading = false
		}
	} else {
		if err != nil {
			s.logger.Warn("fetch dashboard collection", "collection", kind, "error", err)
		}
		applied = applyLocked(sl, generation, list, err)
	}
	s.mu.Unlock()

	if applied && s.notifier != nil {
		s.notifier.CollectionUpdated(sessionID, kind)
	}
}

func beginLocked[T any](sl *slot[T]) uint64 {
	sl.generation++
	sl.collection.IsLoading = true
	return sl.generation
}

func applyLocked[T any](sl *slot[T], generation uint64, list backend.ListResponse[T], err error) bool {
	if sl.generation != generation {
		return false
	}
	if err != nil {
		sl.collection = Collection[T]{Items: []T{}}
		return true
	}
	items := list.Items
	if items == nil {
		items = []T{}
	}
	sl.collection = Collection[T]{Items: items, Total: list.Total}
	return true
}

func cloneCollection[T any](c Collection[T]) Collection[T] {
	c.Items = append([]T{}, c.Items...)
	return c
}

// mergeCancel returns a context cancelled when either parent is done.
func mergeCancel(ctx, lifetime context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(lifetime, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}
