// Package compose owns the compose surface: form state, validation against the
// recipient set and timing rules, and submission of the schedule request.
package compose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.io/infrasutra/outboxlab/internal/backend"
	"github.io/infrasutra/outboxlab/internal/recipients"
	"github.io/infrasutra/outboxlab/internal/session"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseSubmitting Phase = "submitting"
	PhaseSuccess    Phase = "success"
	PhaseError      Phase = "error"
)

type Scheduler interface {
	ScheduleEmails(ctx context.Context, payload backend.SchedulePayload) (backend.ScheduleResponse, error)
}

type SessionSource interface {
	Current() (session.Session, bool)
}

// RefreshFunc is called after every successful submission.
type RefreshFunc func(ctx context.Context)

// State is a copy of the composer's state for rendering.
type State struct {
	Open     bool                      `json:"open"`
	Phase    Phase                     `json:"phase"`
	Form     Form                      `json:"form"`
	Error    string                    `json:"error,omitempty"`
	Campaign *backend.ScheduleResponse `json:"campaign,omitempty"`
}

type Composer struct {
	sessions     SessionSource
	scheduler    Scheduler
	refresh      RefreshFunc
	logger       *slog.Logger
	now          func() time.Time
	loc          *time.Location
	onTransition func(from, to Phase)

	mu    sync.Mutex
	state State
}

type Option func(*Composer)

func WithClock(now func() time.Time) Option {
	return func(c *Composer) {
		c.now = now
	}
}

// WithLocation sets the zone used for start times typed without an offset.
func WithLocation(loc *time.Location) Option {
	return func(c *Composer) {
		c.loc = loc
	}
}

// WithTransitionHook observes phase changes. fn runs with the composer locked
// and must not call back into it.
func WithTransitionHook(fn func(from, to Phase)) Option {
	return func(c *Composer) {
		c.onTransition = fn
	}
}

func New(sessions SessionSource, scheduler Scheduler, refresh RefreshFunc, logger *slog.Logger, opts ...Option) *Composer {
	c := &Composer{
		sessions:  sessions,
		scheduler: scheduler,
		refresh:   refresh,
		logger:    logger,
		now:       time.Now,
		loc:       time.Local,
		state:     State{Phase: PhaseIdle, Form: NewForm()},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Composer) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Composer) snapshotLocked() State {
	s := c.state
	s.Form.Recipients = append(recipients.Set{}, s.Form.Recipients...)
	if s.Campaign != nil {
		campaign := *s.Campaign
		s.Campaign = &campaign
	}
	return s
}

func (c *Composer) Open() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Open = true
	c.state.Error = ""
	return c.snapshotLocked()
}

// Close hides the compose surface and drops the loaded recipient set. Typed
// fields stay so reopening resumes the draft.
func (c *Composer) Close() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Open = false
	c.state.Error = ""
	c.state.Form.Recipients = recipients.Set{}
	return c.snapshotLocked()
}

// Reset discards the draft entirely, used when the session goes away.
func (c *Composer) Reset() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Open = false
	c.state.Error = ""
	c.state.Campaign = nil
	c.state.Form = NewForm()
	return c.snapshotLocked()
}

func (c *Composer) Update(u FormUpdate) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	u.apply(&c.state.Form)
	return c.snapshotLocked()
}

// LoadRecipients replaces the recipient set with the addresses found in r. A
// read failure leaves an empty set behind and is returned.
func (c *Composer) LoadRecipients(ctx context.Context, r io.Reader) (recipients.Set, error) {
	set, err := recipients.ExtractFrom(ctx, r)
	if err != nil {
		set = recipients.Set{}
	}
	c.mu.Lock()
	c.state.Form.Recipients = set
	c.mu.Unlock()
	if err != nil {
		return set, err
	}
	return append(recipients.Set(nil), set...), nil
}

func (c *Composer) Suggestions() []Suggestion {
	return Suggestions(c.now(), c.loc)
}

// ApplySuggestion writes the index-th suggested time into the start field.
func (c *Composer) ApplySuggestion(index int) (State, error) {
	suggestions := c.Suggestions()
	if index < 0 || index >= len(suggestions) {
		return c.Snapshot(), ErrUnknownSuggestion
	}
	value := FormatLocal(suggestions[index].At, c.loc)
	return c.Update(FormUpdate{StartTime: &value}), nil
}

// Submit validates the form and sends it. Validation failures never reach the
// scheduler. On success the form is cleared, the surface closes and refresh
// runs; on failure the message is kept for display and the form is untouched.
// There is no automatic retry.
func (c *Composer) Submit(ctx context.Context) (backend.ScheduleResponse, error) {
	c.mu.Lock()
	if c.state.Phase != PhaseIdle {
		c.mu.Unlock()
		return backend.ScheduleResponse{}, ErrSubmitInProgress
	}
	c.state.Error = ""
	c.transitionLocked(PhaseValidating)
	form := c.state.Form
	form.Recipients = append(recipients.Set(nil), form.Recipients...)
	c.mu.Unlock()

	var active *session.Session
	if s, ok := c.sessions.Current(); ok {
		active = &s
	}
	req, err := BuildRequest(active, form, c.now(), c.loc)
	if err != nil {
		c.fail(err)
		return backend.ScheduleResponse{}, err
	}

	c.mu.Lock()
	c.transitionLocked(PhaseSubmitting)
	c.mu.Unlock()

	resp, err := c.scheduler.ScheduleEmails(ctx, req.Payload())
	if err != nil {
		c.logger.Warn("schedule campaign", "recipients", len(req.Recipients()), "error", err)
		c.fail(err)
		return backend.ScheduleResponse{}, err
	}
	c.logger.Info("campaign scheduled", "campaign_id", resp.CampaignID, "total", resp.TotalScheduled)

	c.mu.Lock()
	c.transitionLocked(PhaseSuccess)
	c.state.Open = false
	c.state.Campaign = &resp
	clearSubmitted(&c.state.Form, form)
	c.transitionLocked(PhaseIdle)
	c.mu.Unlock()

	if c.refresh != nil {
		c.refresh(ctx)
	}
	return resp, nil
}

// clearSubmitted empties the fields that went out with the request. A field
// edited while the request was in flight keeps the newer value.
func clearSubmitted(live *Form, sent Form) {
	if live.Subject == sent.Subject {
		live.Subject = ""
	}
	if live.Body == sent.Body {
		live.Body = ""
	}
	if slices.Equal(live.Recipients, sent.Recipients) {
		live.Recipients = recipients.Set{}
	}
	if live.StartTime == sent.StartTime {
		live.StartTime = ""
	}
}

func (c *Composer) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Error = displayMessage(err)
	c.transitionLocked(PhaseError)
	c.transitionLocked(PhaseIdle)
}

func (c *Composer) transitionLocked(to Phase) {
	from := c.state.Phase
	c.state.Phase = to
	if c.onTransition != nil {
		c.onTransition(from, to)
	}
}

func displayMessage(err error) string {
	var validation *ValidationError
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &validation):
		return validation.Error()
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, backend.ErrUnreachable):
		return err.Error()
	case errors.Is(err, backend.ErrMalformedResponse):
		return fmt.Sprintf("%s: the backend sent an unexpected response", fallbackMessage)
	}
	return fallbackMessage
}

const fallbackMessage = "Failed to schedule"
