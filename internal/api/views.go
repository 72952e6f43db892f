package api

import (
	"net/url"
	"time"

	"github.io/infrasutra/outboxlab/internal/backend"
	"github.io/infrasutra/outboxlab/internal/compose"
	"github.io/infrasutra/outboxlab/internal/dashboard"
	"github.io/infrasutra/outboxlab/internal/pagination"
	"github.io/infrasutra/outboxlab/internal/session"
)

const recipientPreviewSize = 5

type sessionView struct {
	Loaded        bool             `json:"loaded"`
	Authenticated bool             `json:"authenticated"`
	User          *session.Session `json:"user"`
	Redirect      string           `json:"redirect,omitempty"`
}

func newSessionView(state session.State) sessionView {
	return sessionView{
		Loaded:        state.Loaded,
		Authenticated: state.Authenticated(),
		User:          state.Session,
	}
}

type suggestionView struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type composeView struct {
	compose.State
	RecipientCount    int              `json:"recipientCount"`
	RecipientPreview  []string         `json:"recipientPreview"`
	RecipientOverflow int              `json:"recipientOverflow"`
	Suggestions       []suggestionView `json:"suggestions"`
}

func (s *Server) composeView(state compose.State) composeView {
	shown, overflow := state.Form.Recipients.Preview(recipientPreviewSize)
	view := composeView{
		State:             state,
		RecipientCount:    len(state.Form.Recipients),
		RecipientPreview:  shown,
		RecipientOverflow: overflow,
		Suggestions:       []suggestionView{},
	}
	for _, suggestion := range s.composer.Suggestions() {
		view.Suggestions = append(view.Suggestions, suggestionView{
			Label: suggestion.Label,
			Value: suggestion.At.Format(time.RFC3339),
		})
	}
	return view
}

type scheduledView struct {
	backend.ScheduledEmailItem
	Variant string `json:"variant"`
}

type sentView struct {
	backend.SentEmailItem
	Variant string `json:"variant"`
}

type pageView[T any] struct {
	Items     []T   `json:"items"`
	Total     int   `json:"total"`
	IsLoading bool  `json:"isLoading"`
	Page      int32 `json:"page"`
	Limit     int32 `json:"limit"`
	HasNext   bool  `json:"hasNext"`
}

type dashboardView struct {
	Scheduled pageView[scheduledView] `json:"scheduled"`
	Sent      pageView[sentView]      `json:"sent"`
}

func newDashboardView(snapshot dashboard.Snapshot, q url.Values) dashboardView {
	params := pagination.GetPaginationParams(q)
	return dashboardView{
		Scheduled: pageOf(snapshot.Scheduled, params, func(item backend.ScheduledEmailItem) scheduledView {
			return scheduledView{ScheduledEmailItem: item, Variant: item.Variant()}
		}),
		Sent: pageOf(snapshot.Sent, params, func(item backend.SentEmailItem) sentView {
			return sentView{SentEmailItem: item, Variant: item.Variant()}
		}),
	}
}

// pageOf slices the locally held collection; Total stays the backend's count.
func pageOf[T, V any](c dashboard.Collection[T], params pagination.Params, view func(T) V) pageView[V] {
	out := pageView[V]{
		Items:     []V{},
		Total:     c.Total,
		IsLoading: c.IsLoading,
		Page:      params.Page,
		Limit:     params.Limit,
		HasNext:   pagination.GetHasNext(params.Offset, params.Limit, int32(len(c.Items))),
	}
	start := int(params.Offset)
	if start >= len(c.Items) {
		return out
	}
	end := min(start+int(params.Limit), len(c.Items))
	for _, item := range c.Items[start:end] {
		out.Items = append(out.Items, view(item))
	}
	return out
}
