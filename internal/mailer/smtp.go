package mailer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

type SMTPConfig struct {
	Addr     string
	Username string
	Password string
	From     string
}

type SMTPSender struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, logger: logger}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) (Result, error) {
	if len(msg.To) == 0 {
		return Result{}, ErrNoRecipient
	}
	from := s.cfg.From
	if from == "" {
		from = msg.From
	}

	var auth sasl.Client
	if s.cfg.Username != "" || s.cfg.Password != "" {
		auth = sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(s.cfg.Addr, auth, from, msg.To, bytes.NewReader(msg.Raw))
	}()

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case err := <-done:
		if err != nil {
			s.logger.Error("send test copy", "transport", "smtp", "addr", s.cfg.Addr, "error", err)
			return Result{}, fmt.Errorf("smtp send: %w", err)
		}
	}

	s.logger.Info("test copy sent", "transport", "smtp", "to", msg.To, "subject", msg.Subject)
	return Result{Provider: "smtp", SentAt: time.Now()}, nil
}
