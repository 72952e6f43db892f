package compose

import (
	"errors"

	"github.io/infrasutra/outboxlab/internal/recipients"
)

const (
	DefaultDelayBetweenMs = 2000
	DefaultHourlyLimit    = 200
)

// Form is the editable compose state. StartTime holds the raw field value; an
// empty string means "five minutes after submission".
type Form struct {
	Subject        string         `json:"subject"`
	Body           string         `json:"body"`
	Recipients     recipients.Set `json:"recipients"`
	StartTime      string         `json:"startTime"`
	DelayBetweenMs int            `json:"delayBetweenMs"`
	HourlyLimit    int            `json:"hourlyLimit"`
}

func NewForm() Form {
	return Form{
		Recipients:     recipients.Set{},
		DelayBetweenMs: DefaultDelayBetweenMs,
		HourlyLimit:    DefaultHourlyLimit,
	}
}

// FormUpdate carries the fields a client changed; nil fields are left alone.
type FormUpdate struct {
	Subject        *string `json:"subject,omitempty"`
	Body           *string `json:"body,omitempty"`
	StartTime      *string `json:"startTime,omitempty"`
	DelayBetweenMs *int    `json:"delayBetweenMs,omitempty"`
	HourlyLimit    *int    `json:"hourlyLimit,omitempty"`
}

func (u FormUpdate) apply(f *Form) {
	if u.Subject != nil {
		f.Subject = *u.Subject
	}
	if u.Body != nil {
		f.Body = *u.Body
	}
	if u.StartTime != nil {
		f.StartTime = *u.StartTime
	}
	if u.DelayBetweenMs != nil {
		f.DelayBetweenMs = *u.DelayBetweenMs
	}
	if u.HourlyLimit != nil {
		f.HourlyLimit = *u.HourlyLimit
	}
}

// Validation rule failures, in evaluation order.
var (
	ErrNotLoggedIn        = errors.New("You must be logged in")
	ErrSubjectRequired    = errors.New("Subject is required")
	ErrBodyRequired       = errors.New("Body is required")
	ErrNoRecipients       = errors.New("Upload a list with at least one email address")
	ErrStartTimeNotFuture = errors.New("Start time must be in the future")
	ErrInvalidPacing      = errors.New("Delay and hourly limit must be valid")
)

var (
	ErrSubmitInProgress  = errors.New("a submission is already in progress")
	ErrUnknownSuggestion = errors.New("unknown suggested time")
)

// ValidationError is a rule failure caught before anything reaches the network.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(err error) error {
	return &ValidationError{Err: err}
}
