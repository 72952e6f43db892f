// Package mailer delivers a test copy of the draft campaign to the signed-in
// user. It never talks to the scheduling backend.
package mailer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.io/infrasutra/outboxlab/internal/config"
)

var ErrNoRecipient = errors.New("test copy needs a recipient")

// Message is one rendered test copy. Raw is the full RFC 5322 message used by
// transports that speak SMTP; HTML and Text feed API based providers.
type Message struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
	Raw     []byte
}

type Result struct {
	MessageID string    `json:"messageId"`
	Provider  string    `json:"provider"`
	SentAt    time.Time `json:"sentAt"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) (Result, error)
}

// FromConfig picks the transport: Resend when a key is set, then SMTP, then
// a sender that only logs.
func FromConfig(cfg config.Config, logger *slog.Logger) Sender {
	switch {
	case cfg.ResendKey != "":
		return NewResendSender(cfg.ResendKey, cfg.TestSendFrom, logger)
	case cfg.SMTPAddr != "":
		return NewSMTPSender(SMTPConfig{
			Addr:     cfg.SMTPAddr,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.TestSendFrom,
		}, logger)
	default:
		return NewNoopSender(logger)
	}
}
