package compose

import (
	"strings"
	"time"

	"github.io/infrasutra/outboxlab/internal/backend"
	"github.io/infrasutra/outboxlab/internal/recipients"
	"github.io/infrasutra/outboxlab/internal/session"
)

// DefaultStartDelay is added to the validation time when the start field is blank.
const DefaultStartDelay = 5 * time.Minute

// isoMillis matches what browsers produce for Date.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ScheduleRequest is the validated, immutable outbound request. It only comes
// out of BuildRequest.
type ScheduleRequest struct {
	sessionID      string
	senderEmail    string
	senderName     string
	subject        string
	body           string
	recipients     recipients.Set
	startTime      time.Time
	delayBetweenMs int
	hourlyLimit    int
}

func (r ScheduleRequest) SessionID() string { return r.sessionID }

func (r ScheduleRequest) SenderEmail() string { return r.senderEmail }

func (r ScheduleRequest) SenderName() string { return r.senderName }

func (r ScheduleRequest) Subject() string { return r.subject }

func (r ScheduleRequest) Body() string { return r.body }

func (r ScheduleRequest) StartTime() time.Time { return r.startTime }

func (r ScheduleRequest) DelayBetweenMs() int { return r.delayBetweenMs }

func (r ScheduleRequest) HourlyLimit() int { return r.hourlyLimit }

func (r ScheduleRequest) Recipients() recipients.Set {
	return append(recipients.Set(nil), r.recipients...)
}

func (r ScheduleRequest) Payload() backend.SchedulePayload {
	return backend.SchedulePayload{
		UserID:         r.sessionID,
		UserEmail:      r.senderEmail,
		UserName:       r.senderName,
		Subject:        r.subject,
		Body:           r.body,
		Recipients:     r.Recipients(),
		StartTime:      r.startTime.UTC().Format(isoMillis),
		DelayBetweenMs: r.delayBetweenMs,
		HourlyLimit:    r.hourlyLimit,
	}
}

// BuildRequest applies the validation rules in order and stops at the first
// failure. now is the validation instant; loc interprets zone-less start times.
func BuildRequest(sess *session.Session, form Form, now time.Time, loc *time.Location) (ScheduleRequest, error) {
	if sess == nil || !sess.Valid() {
		return ScheduleRequest{}, invalid(ErrNotLoggedIn)
	}
	subject := strings.TrimSpace(form.Subject)
	if subject == "" {
		return ScheduleRequest{}, invalid(ErrSubjectRequired)
	}
	body := strings.TrimSpace(form.Body)
	if body == "" {
		return ScheduleRequest{}, invalid(ErrBodyRequired)
	}
	if len(form.Recipients) == 0 {
		return ScheduleRequest{}, invalid(ErrNoRecipients)
	}
	start, err := ResolveStartTime(form.StartTime, now, loc)
	if err != nil {
		return ScheduleRequest{}, err
	}
	if form.DelayBetweenMs < 0 || form.HourlyLimit < 1 {
		return ScheduleRequest{}, invalid(ErrInvalidPacing)
	}

	return ScheduleRequest{
		sessionID:      sess.ID,
		senderEmail:    sess.Email,
		senderName:     sess.Name,
		subject:        subject,
		body:           body,
		recipients:     append(recipients.Set(nil), form.Recipients...),
		startTime:      start.UTC(),
		delayBetweenMs: form.DelayBetweenMs,
		hourlyLimit:    form.HourlyLimit,
	}, nil
}

// ResolveStartTime turns the raw field into an instant strictly after now.
func ResolveStartTime(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.Add(DefaultStartDelay), nil
	}
	if loc == nil {
		loc = time.Local
	}
	start, ok := parseStart(raw, loc)
	if !ok || !start.After(now) {
		return time.Time{}, invalid(ErrStartTimeNotFuture)
	}
	return start, nil
}

func parseStart(raw string, loc *time.Location) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatLocal renders t the way a datetime-local field holds it.
func FormatLocal(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("2006-01-02T15:04")
}
