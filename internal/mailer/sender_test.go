package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.io/infrasutra/outboxlab/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type delivery struct {
	from string
	to   []string
	data string
}

// relay is an SMTP server that keeps every message it accepts.
type relay struct {
	mu         sync.Mutex
	deliveries []delivery
	username   string
	password   string
}

func (r *relay) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &relaySession{relay: r}, nil
}

func (r *relay) received() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.deliveries...)
}

type relaySession struct {
	relay         *relay
	from          string
	to            []string
	authenticated bool
}

func (s *relaySession) AuthMechanisms() []string {
	if s.relay.username == "" {
		return nil
	}
	return []string{sasl.Plain}
}

func (s *relaySession) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, errors.New("unsupported authentication mechanism")
	}
	return sasl.NewPlainServer(func(_, username, password string) error {
		if username == s.relay.username && password == s.relay.password {
			s.authenticated = true
			return nil
		}
		return errors.New("invalid credentials")
	}), nil
}

func (s *relaySession) Mail(from string, _ *smtp.MailOptions) error {
	if s.relay.username != "" && !s.authenticated {
		return smtp.ErrAuthRequired
	}
	s.from = from
	return nil
}

func (s *relaySession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *relaySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.relay.mu.Lock()
	s.relay.deliveries = append(s.relay.deliveries, delivery{from: s.from, to: s.to, data: string(data)})
	s.relay.mu.Unlock()
	return nil
}

func (s *relaySession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *relaySession) Logout() error {
	return nil
}

func startRelay(t *testing.T, r *relay) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := smtp.NewServer(r)
	server.Domain = "localhost"
	server.AllowInsecureAuth = true
	server.ReadTimeout = 5 * time.Second
	server.WriteTimeout = 5 * time.Second
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = server.Close() })
	return ln.Addr().String()
}

func testMessage() Message {
	return Message{
		From:    "ada@example.com",
		To:      []string{"ada@example.com"},
		Subject: "Launch",
		Text:    "Hello",
		HTML:    "<p>Hello</p>",
		Raw:     []byte("From: ada@example.com\r\nTo: ada@example.com\r\nSubject: Launch\r\n\r\nHello\r\n"),
	}
}

func TestSMTPSenderDelivers(t *testing.T) {
	r := &relay{}
	addr := startRelay(t, r)

	sender := NewSMTPSender(SMTPConfig{Addr: addr, From: "outboxlab@localhost"}, testLogger())
	result, err := sender.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "smtp", result.Provider)

	got := r.received()
	require.Len(t, got, 1)
	assert.Equal(t, "outboxlab@localhost", got[0].from)
	assert.Equal(t, []string{"ada@example.com"}, got[0].to)
	assert.Contains(t, got[0].data, "Subject: Launch")
}

func TestSMTPSenderAuthenticates(t *testing.T) {
	r := &relay{username: "user", password: "secret"}
	addr := startRelay(t, r)

	sender := NewSMTPSender(SMTPConfig{Addr: addr, Username: "user", Password: "secret"}, testLogger())
	_, err := sender.Send(context.Background(), testMessage())
	require.NoError(t, err)
	require.Len(t, r.received(), 1)
	assert.Equal(t, "ada@example.com", r.received()[0].from)

	wrong := NewSMTPSender(SMTPConfig{Addr: addr, Username: "user", Password: "nope"}, testLogger())
	_, err = wrong.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Len(t, r.received(), 1)
}

func TestSMTPSenderUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	sender := NewSMTPSender(SMTPConfig{Addr: addr}, testLogger())
	_, err = sender.Send(context.Background(), testMessage())
	require.Error(t, err)
}

func TestSendersRejectEmptyRecipients(t *testing.T) {
	msg := testMessage()
	msg.To = nil
	for _, sender := range []Sender{
		NewSMTPSender(SMTPConfig{Addr: "127.0.0.1:1"}, testLogger()),
		NewResendSender("re_test", "outboxlab@localhost", testLogger()),
		NewNoopSender(testLogger()),
	} {
		_, err := sender.Send(context.Background(), msg)
		assert.ErrorIs(t, err, ErrNoRecipient)
	}
}

func TestResendSenderPostsEmail(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/emails"))
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email_123"}`))
	}))
	defer srv.Close()

	sender := NewResendSender("re_test", "outboxlab@localhost", testLogger())
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	sender.client.BaseURL = base

	result, err := sender.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "email_123", result.MessageID)
	assert.Equal(t, "resend", result.Provider)
	assert.Equal(t, "outboxlab@localhost", body["from"])
	assert.Equal(t, "<p>Hello</p>", body["html"])
	assert.Equal(t, "ada@example.com", body["reply_to"])
}

func TestFromConfig(t *testing.T) {
	logger := testLogger()
	assert.IsType(t, &NoopSender{}, FromConfig(config.Config{}, logger))
	assert.IsType(t, &SMTPSender{}, FromConfig(config.Config{SMTPAddr: "localhost:25"}, logger))
	assert.IsType(t, &ResendSender{}, FromConfig(config.Config{SMTPAddr: "localhost:25", ResendKey: "re_x"}, logger))
}
