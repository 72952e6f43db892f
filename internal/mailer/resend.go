package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/resend/resend-go/v2"
)

type ResendSender struct {
	client *resend.Client
	from   string
	logger *slog.Logger
}

func NewResendSender(apiKey, from string, logger *slog.Logger) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
		logger: logger,
	}
}

func (s *ResendSender) Send(ctx context.Context, msg Message) (Result, error) {
	if len(msg.To) == 0 {
		return Result{}, ErrNoRecipient
	}
	from := s.from
	if from == "" {
		from = msg.From
	}

	params := &resend.SendEmailRequest{
		From:    from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: msg.From,
	}
	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		s.logger.Error("send test copy", "transport", "resend", "error", err)
		return Result{}, fmt.Errorf("resend send: %w", err)
	}

	s.logger.Info("test copy sent", "transport", "resend", "message_id", sent.Id, "to", msg.To)
	return Result{MessageID: sent.Id, Provider: "resend", SentAt: time.Now()}, nil
}
