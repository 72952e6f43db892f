package backend

import (
	"fmt"
	"strings"
	"time"
)

type SchedulePayload struct {
	UserID         string   `json:"userId"`
	UserEmail      string   `json:"userEmail,omitempty"`
	UserName       string   `json:"userName,omitempty"`
	Subject        string   `json:"subject"`
	Body           string   `json:"body"`
	Recipients     []string `json:"recipients"`
	StartTime      string   `json:"startTime"`
	DelayBetweenMs int      `json:"delayBetweenMs"`
	HourlyLimit    int      `json:"hourlyLimit"`
}

type ScheduledJob struct {
	ID             string `json:"id"`
	RecipientEmail string `json:"recipientEmail"`
	ScheduledAt    string `json:"scheduledAt"`
}

type ScheduleResponse struct {
	CampaignID     string         `json:"campaignId"`
	TotalScheduled int            `json:"totalScheduled"`
	StartTime      string         `json:"startTime"`
	Jobs           []ScheduledJob `json:"jobs"`
}

func (r ScheduleResponse) validate() error {
	if strings.TrimSpace(r.CampaignID) == "" {
		return fmt.Errorf("%w: campaignId missing", ErrMalformedResponse)
	}
	return nil
}

type ScheduledEmailItem struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Subject     string `json:"subject"`
	ScheduledAt string `json:"scheduledAt"`
	Status      string `json:"status"`
}

// Variant is the display bucket: "delayed" or "pending".
func (i ScheduledEmailItem) Variant() string {
	if i.Status == "delayed" {
		return "delayed"
	}
	return "pending"
}

func (i ScheduledEmailItem) validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("%w: scheduled item without id", ErrMalformedResponse)
	}
	if _, err := time.Parse(time.RFC3339, i.ScheduledAt); err != nil {
		return fmt.Errorf("%w: scheduled item %s has bad scheduledAt", ErrMalformedResponse, i.ID)
	}
	return nil
}

type SentEmailItem struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Subject      string `json:"subject"`
	SentAt       string `json:"sentAt"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Variant is the display bucket: "failed" or "sent".
func (i SentEmailItem) Variant() string {
	if i.Status == "failed" {
		return "failed"
	}
	return "sent"
}

func (i SentEmailItem) validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("%w: sent item without id", ErrMalformedResponse)
	}
	return nil
}

// ListResponse is the envelope both list endpoints return.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// listEnvelope decodes with pointers so a missing field can be told apart from
// an empty one.
type listEnvelope[T any] struct {
	Items  *[]T `json:"items"`
	Total  *int `json:"total"`
	Limit  int  `json:"limit"`
	Offset int  `json:"offset"`
}

func (e listEnvelope[T]) response(check func(T) error) (ListResponse[T], error) {
	if e.Items == nil {
		return ListResponse[T]{}, fmt.Errorf("%w: items missing", ErrMalformedResponse)
	}
	if e.Total == nil || *e.Total < 0 {
		return ListResponse[T]{}, fmt.Errorf("%w: total missing", ErrMalformedResponse)
	}
	for _, item := range *e.Items {
		if err := check(item); err != nil {
			return ListResponse[T]{}, err
		}
	}
	return ListResponse[T]{Items: *e.Items, Total: *e.Total, Limit: e.Limit, Offset: e.Offset}, nil
}
