package compose

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.io/infrasutra/outboxlab/internal/session"
)

// Preview renders the draft as the message a recipient would get: a plain text
// part plus the body rendered from Markdown to HTML. to may be empty, in which
// case the first loaded recipient is used.
func Preview(sess session.Session, form Form, to string, now time.Time) ([]byte, error) {
	if !sess.Valid() {
		return nil, ErrNotLoggedIn
	}
	if to == "" && len(form.Recipients) > 0 {
		to = form.Recipients[0]
	}
	if to == "" {
		return nil, ErrNoRecipients
	}

	text, html, err := RenderBody(form.Body)
	if err != nil {
		return nil, err
	}

	var h mail.Header
	h.SetDate(now)
	h.SetSubject(strings.TrimSpace(form.Subject))
	h.SetAddressList("From", []*mail.Address{{Name: sess.Name, Address: sess.Email}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetMessageID(uuid.NewString() + "@outboxlab")

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	alt, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline: %w", err)
	}
	if err := writePart(alt, "text/plain", text); err != nil {
		return nil, err
	}
	if err := writePart(alt, "text/html", html); err != nil {
		return nil, err
	}
	if err := alt.Close(); err != nil {
		return nil, fmt.Errorf("close inline: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderBody returns the trimmed body and its Markdown rendering.
func RenderBody(body string) (string, string, error) {
	text := strings.TrimSpace(body)
	var html bytes.Buffer
	if err := goldmark.Convert([]byte(text), &html); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return text, html.String(), nil
}

func writePart(alt *mail.InlineWriter, contentType, content string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	part, err := alt.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	return part.Close()
}
