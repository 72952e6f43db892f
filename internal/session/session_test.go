package session

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.io/infrasutra/outboxlab/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openStore(t *testing.T, path string) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(ctx))
	t.Cleanup(func() { s.Close() })
	return s
}

type userinfoStub struct {
	calls   atomic.Int32
	session Session
	err     error
}

func (u *userinfoStub) Fetch(context.Context, string) (Session, error) {
	u.calls.Add(1)
	return u.session, u.err
}

func signedCredential(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not-checked"))
	require.NoError(t, err)
	return token
}

func TestDecodeCredential(t *testing.T) {
	token := signedCredential(t, jwt.MapClaims{
		"sub":     "1234",
		"email":   "ada@example.org",
		"name":    "Ada",
		"picture": "https://example.org/ada.png",
	})
	s, err := DecodeCredential(token)
	require.NoError(t, err)
	assert.Equal(t, Session{ID: "1234", Email: "ada@example.org", Name: "Ada", Picture: "https://example.org/ada.png"}, s)
}

func TestDecodeCredentialRejects(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	tests := map[string]string{
		"empty":         "",
		"one segment":   "abc",
		"bad base64":    header + ".!!!.sig",
		"bad json":      header + "." + base64.RawURLEncoding.EncodeToString([]byte("{nope")) + ".sig",
		"missing email": signedCredential(t, jwt.MapClaims{"sub": "1"}),
		"missing sub":   signedCredential(t, jwt.MapClaims{"email": "a@b.com"}),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCredential(token)
			require.Error(t, err)
		})
	}
}

func TestDecodeCredentialIgnoresSignature(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u1","email":"a@b.com"}`))
	s, err := DecodeCredential(header + "." + payload + ".forged")
	require.NoError(t, err)
	assert.Equal(t, "u1", s.ID)
}

func TestHydrateRestoresStoredSession(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, "")
	require.NoError(t, st.Set(ctx, StorageKey, `{"id":"u1","email":"a@b.com"}`))
	userinfo := &userinfoStub{}

	m := NewManager(st, userinfo, discardLogger())
	assert.False(t, m.Snapshot().Loaded)

	state := m.Hydrate(ctx)
	require.True(t, state.Loaded)
	require.NotNil(t, state.Session)
	assert.Equal(t, Session{ID: "u1", Email: "a@b.com"}, *state.Session)
	assert.Zero(t, userinfo.calls.Load())
}

func TestHydrateDiscardsInvalidRecords(t *testing.T) {
	for name, raw := range map[string]string{
		"missing email": `{"id":"u1"}`,
		"missing id":    `{"email":"a@b.com"}`,
		"not json":      `{{{`,
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := openStore(t, "")
			require.NoError(t, st.Set(ctx, StorageKey, raw))

			state := NewManager(st, &userinfoStub{}, discardLogger()).Hydrate(ctx)
			assert.True(t, state.Loaded)
			assert.False(t, state.Authenticated())
		})
	}
}

func TestHydrateRunsOnce(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, "")
	var transitions []State
	m := NewManager(st, &userinfoStub{}, discardLogger(), WithChangeHook(func(_, next State) {
		transitions = append(transitions, next)
	}))

	m.Hydrate(ctx)
	require.NoError(t, st.Set(ctx, StorageKey, `{"id":"u1","email":"a@b.com"}`))
	state := m.Hydrate(ctx)

	assert.False(t, state.Authenticated())
	require.Len(t, transitions, 1)
	assert.True(t, transitions[0].Loaded)
}

type failingStorage struct{ err error }

func (f failingStorage) Get(context.Context, string) (string, bool, error) { return "", false, f.err }
func (f failingStorage) Set(context.Context, string, string) error        { return f.err }
func (f failingStorage) Delete(context.Context, string) error             { return f.err }

func TestHydrateStorageErrorStillLoads(t *testing.T) {
	m := NewManager(failingStorage{err: errors.New("locked")}, &userinfoStub{}, discardLogger())
	state := m.Hydrate(context.Background())
	assert.True(t, state.Loaded)
	assert.False(t, state.Authenticated())
}

// slowReadStorage parks the first Get until release is closed.
type slowReadStorage struct {
	Storage
	reading chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowReadStorage) Get(ctx context.Context, key string) (string, bool, error) {
	s.once.Do(func() {
		close(s.reading)
		<-s.release
	})
	return s.Storage.Get(ctx, key)
}

func TestHydrateSerializesWithLogout(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, "")
	require.NoError(t, st.Set(ctx, StorageKey, `{"id":"u1","email":"a@b.com"}`))
	slow := &slowReadStorage{Storage: st, reading: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(slow, &userinfoStub{}, discardLogger())

	hydrated := make(chan State)
	go func() { hydrated <- m.Hydrate(ctx) }()
	<-slow.reading

	loggedOut := make(chan error)
	go func() {
		_, err := m.Logout(ctx)
		loggedOut <- err
	}()

	select {
	case <-loggedOut:
		t.Fatal("logout finished while hydration was still reading")
	case <-time.After(50 * time.Millisecond):
	}
	close(slow.release)

	assert.True(t, (<-hydrated).Loaded)
	require.NoError(t, <-loggedOut)
	assert.False(t, m.Snapshot().Authenticated())
	_, ok, err := st.Get(ctx, StorageKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOnChangeAddsHooks(t *testing.T) {
	ctx := context.Background()
	var first, second int
	m := NewManager(openStore(t, ""), &userinfoStub{}, discardLogger(), WithChangeHook(func(State, State) { first++ }))
	m.OnChange(func(State, State) { second++ })

	m.Hydrate(ctx)
	_, err := m.Logout(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first)
	assert.Equal(t, 2, second)
}

func TestLoginWithCredentialPersists(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, "")
	m := NewManager(st, &userinfoStub{}, discardLogger())
	m.Hydrate(ctx)

	token := signedCredential(t, jwt.MapClaims{"sub": "u2", "email": "b@c.com", "name": "Bea"})
	s, err := m.LoginWithCredential(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "u2", s.ID)

	current, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, s, current)

	raw, ok, err := st.Get(ctx, StorageKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"u2","email":"b@c.com","name":"Bea"}`, raw)
}

func TestLoginFailureLeavesSessionUnchanged(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, "")
	require.NoError(t, st.Set(ctx, StorageKey, `{"id":"u1","email":"a@b.com"}`))
	userinfo := &userinfoStub{err: errors.New("401")}
	m := NewManager(st, userinfo, discardLogger())
	m.Hydrate(ctx)

	_, err := m.LoginWithCredential(ctx, "garbage")
	require.Error(t, err)
	_, err = m.LoginWithAccessToken(ctx, "expired")
	require.Error(t, err)

	current, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "u1", current.ID)
}

func TestLoginWithAccessToken(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, "")
	userinfo := &userinfoStub{session: Session{ID: "u3", Email: "c@d.com"}}
	m := NewManager(st, userinfo, discardLogger())

	s, err := m.LoginWithAccessToken(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "u3", s.ID)
	assert.Equal(t, int32(1), userinfo.calls.Load())

	// Hydration after an early login keeps the fresh session.
	state := m.Hydrate(ctx)
	require.True(t, state.Authenticated())
	assert.Equal(t, "u3", state.Session.ID)
}

func TestLogoutClearsStorageAcrossRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "outboxlab.db")
	st := openStore(t, path)
	require.NoError(t, st.Set(ctx, StorageKey, `{"id":"u1","email":"a@b.com"}`))

	var seen []State
	m := NewManager(st, &userinfoStub{}, discardLogger(), WithChangeHook(func(_, next State) {
		seen = append(seen, next)
	}))
	require.True(t, m.Hydrate(ctx).Authenticated())

	redirect, err := m.Logout(ctx)
	require.NoError(t, err)
	assert.Equal(t, LandingPath, redirect)
	assert.False(t, m.Snapshot().Authenticated())
	assert.True(t, m.Snapshot().Loaded)
	require.Len(t, seen, 2)
	assert.False(t, seen[1].Authenticated())
	require.NoError(t, st.Close())

	restarted := NewManager(openStore(t, path), &userinfoStub{}, discardLogger())
	assert.False(t, restarted.Hydrate(ctx).Authenticated())
}

func TestRedirectPath(t *testing.T) {
	user := &Session{ID: "u1", Email: "a@b.com"}
	assert.Equal(t, "", State{}.RedirectPath(DashboardPath))
	assert.Equal(t, LandingPath, State{Loaded: true}.RedirectPath(DashboardPath))
	assert.Equal(t, "", State{Loaded: true}.RedirectPath(LandingPath))
	assert.Equal(t, DashboardPath, State{Loaded: true, Session: user}.RedirectPath(LandingPath))
	assert.Equal(t, "", State{Loaded: true, Session: user}.RedirectPath(DashboardPath))
}

func TestUserinfoClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"42","email":"x@y.org","name":"X","picture":"p"}`))
	}))
	defer srv.Close()

	client := NewUserinfoClient(srv.URL, srv.Client())
	s, err := client.Fetch(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, Session{ID: "42", Email: "x@y.org", Name: "X", Picture: "p"}, s)

	_, err = client.Fetch(context.Background(), "bad")
	require.Error(t, err)

	_, err = client.Fetch(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrMissingAccessToken)
}

func TestUserinfoClientRejectsIncompletePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"sub":"42"}`))
	}))
	defer srv.Close()

	_, err := NewUserinfoClient(srv.URL, srv.Client()).Fetch(context.Background(), "good")
	assert.ErrorIs(t, err, ErrInvalidSession)
}
