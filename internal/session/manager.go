package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Storage is the durable client-local key/value store the session lives in.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Userinfo resolves an access token into identity claims.
type Userinfo interface {
	Fetch(ctx context.Context, accessToken string) (Session, error)
}

// Manager owns the session lifecycle: hydrate once, replace on login, clear on
// logout. Readers get copy-on-write snapshots; writers are serialized.
type Manager struct {
	storage  Storage
	userinfo Userinfo
	logger   *slog.Logger
	onChange []func(prev, next State)

	writeMu sync.Mutex
	state   atomic.Pointer[State]
	hydrate sync.Once
}

type Option func(*Manager)

// WithChangeHook registers a callback run after every state transition.
func WithChangeHook(fn func(prev, next State)) Option {
	return func(m *Manager) {
		m.onChange = append(m.onChange, fn)
	}
}

func NewManager(storage Storage, userinfo Userinfo, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		storage:  storage,
		userinfo: userinfo,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state.Store(&State{})
	return m
}

// Snapshot returns the current state. The returned value is never mutated.
// OnChange adds a hook for components built after the manager. Hooks run with
// the write lock held and must not call back into the manager's writers.
func (m *Manager) OnChange(fn func(prev, next State)) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.onChange = append(m.onChange, fn)
}

func (m *Manager) Snapshot() State {
	return *m.state.Load()
}

// Current returns a copy of the active session, if any.
func (m *Manager) Current() (Session, bool) {
	s := m.Snapshot().Session
	if s == nil {
		return Session{}, false
	}
	return *s, true
}

// Hydrate reads the stored record once. Malformed or invalid records are
// discarded quietly. Later calls return the current state without reading.
func (m *Manager) Hydrate(ctx context.Context) State {
	m.hydrate.Do(func() {
		// The read happens under writeMu so a concurrent Logout cannot delete
		// the record between the read and the swap.
		m.writeMu.Lock()
		defer m.writeMu.Unlock()

		var restored *Session
		raw, ok, err := m.storage.Get(ctx, StorageKey)
		switch {
		case err != nil:
			m.logger.Warn("read stored session", "error", err)
		case ok:
			s, err := decodeStored(raw)
			if err != nil {
				m.logger.Debug("discard stored session", "error", err)
			} else {
				restored = &s
			}
		}

		current := m.Snapshot()
		next := State{Session: current.Session, Loaded: true}
		// A login that raced ahead of hydration wins over the stored record.
		if next.Session == nil {
			next.Session = restored
		}
		m.swap(next)
	})
	return m.Snapshot()
}

// LoginWithCredential decodes an identity credential and makes it the active
// session. On failure the state is left untouched.
func (m *Manager) LoginWithCredential(ctx context.Context, credential string) (Session, error) {
	s, err := DecodeCredential(credential)
	if err != nil {
		m.logger.Warn("decode identity credential", "error", err)
		return Session{}, err
	}
	if err := m.replace(ctx, s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// LoginWithAccessToken exchanges an access token at the userinfo endpoint.
func (m *Manager) LoginWithAccessToken(ctx context.Context, accessToken string) (Session, error) {
	s, err := m.userinfo.Fetch(ctx, accessToken)
	if err != nil {
		m.logger.Warn("userinfo exchange", "error", err)
		return Session{}, err
	}
	if err := m.replace(ctx, s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Logout deletes the stored record and clears the in-memory session as a single
// transition, then reports where the shell should navigate.
func (m *Manager) Logout(ctx context.Context) (string, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.storage.Delete(ctx, StorageKey); err != nil {
		return "", fmt.Errorf("clear stored session: %w", err)
	}
	current := m.Snapshot()
	m.swap(State{Loaded: current.Loaded})
	return LandingPath, nil
}

func (m *Manager) replace(ctx context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.storage.Set(ctx, StorageKey, string(data)); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	current := m.Snapshot()
	m.swap(State{Session: &s, Loaded: current.Loaded})
	return nil
}

// swap must be called with writeMu held.
func (m *Manager) swap(next State) {
	prev := m.state.Swap(&next)
	for _, fn := range m.onChange {
		fn(*prev, next)
	}
}
