package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// NoopSender logs test copies instead of delivering them.
type NoopSender struct {
	logger *slog.Logger
}

func NewNoopSender(logger *slog.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

func (s *NoopSender) Send(_ context.Context, msg Message) (Result, error) {
	if len(msg.To) == 0 {
		return Result{}, ErrNoRecipient
	}
	s.logger.Info("test copy not delivered", "transport", "noop", "to", msg.To, "subject", msg.Subject, "bytes", len(msg.Raw))
	now := time.Now()
	return Result{
		MessageID: fmt.Sprintf("noop-%d", now.UnixNano()),
		Provider:  "noop",
		SentAt:    now,
	}, nil
}
