// Package session derives, persists and hydrates the client's display identity.
//
// A Session is built from claims the client never verifies. It identifies the
// user in the interface and scopes requests; it must not be used to make
// authorization decisions, which belong to the backend.
package session

import (
	"encoding/json"
	"errors"
	"strings"
)

// StorageKey is the single client-local key holding the serialized Session.
const StorageKey = "outboxlab_user"

const (
	LandingPath   = "/"
	DashboardPath = "/dashboard"
)

var (
	ErrInvalidSession = errors.New("session requires id and email")
	ErrMalformedToken = errors.New("malformed identity credential")
)

type Session struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Valid reports whether both id and email are present.
func (s Session) Valid() bool {
	return strings.TrimSpace(s.ID) != "" && strings.TrimSpace(s.Email) != ""
}

// State is an immutable snapshot. Loaded turns true once, after the startup
// hydration attempt; until then a nil Session does not mean logged out.
type State struct {
	Session *Session
	Loaded  bool
}

func (s State) Authenticated() bool {
	return s.Session != nil
}

// RedirectPath tells the shell where an anonymous or authenticated visitor
// belongs. It returns "" while hydration is still pending.
func (s State) RedirectPath(current string) string {
	if !s.Loaded {
		return ""
	}
	switch {
	case s.Session != nil && current == LandingPath:
		return DashboardPath
	case s.Session == nil && current != LandingPath:
		return LandingPath
	}
	return ""
}

// identityClaims is the shape shared by the credential payload and the userinfo
// response.
type identityClaims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (c identityClaims) session() (Session, error) {
	s := Session{
		ID:      strings.TrimSpace(c.Subject),
		Email:   strings.TrimSpace(c.Email),
		Name:    strings.TrimSpace(c.Name),
		Picture: strings.TrimSpace(c.Picture),
	}
	if !s.Valid() {
		return Session{}, ErrInvalidSession
	}
	return s, nil
}

func decodeStored(raw string) (Session, error) {
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Session{}, err
	}
	if !s.Valid() {
		return Session{}, ErrInvalidSession
	}
	return s, nil
}
