package api

import (
	"log/slog"

	"github.io/infrasutra/outboxlab/internal/dashboard"
	"github.io/infrasutra/outboxlab/internal/session"
	"github.io/infrasutra/outboxlab/internal/sse"
)

// DashboardEvents tells the shell which collection to re-read.
type DashboardEvents struct {
	hub    *sse.Hub
	logger *slog.Logger
}

func NewDashboardEvents(hub *sse.Hub, logger *slog.Logger) *DashboardEvents {
	return &DashboardEvents{hub: hub, logger: logger}
}

func (d *DashboardEvents) CollectionUpdated(sessionID string, kind dashboard.Kind) {
	if err := d.hub.Publish(sessionID, "dashboard", map[string]string{"collection": string(kind)}); err != nil {
		d.logger.Warn("publish dashboard event", "error", err)
	}
}

// SessionEvents returns a session change hook that publishes the new state to
// everyone watching the old or the new session.
func SessionEvents(hub *sse.Hub, logger *slog.Logger) func(prev, next session.State) {
	return func(prev, next session.State) {
		view := newSessionView(next)
		for _, topic := range sessionTopics(prev, next) {
			if err := hub.Publish(topic, "session", view); err != nil {
				logger.Warn("publish session event", "error", err)
			}
		}
	}
}

func sessionTopics(prev, next session.State) []string {
	var topics []string
	if prev.Session != nil {
		topics = append(topics, prev.Session.ID)
	}
	if next.Session != nil && (prev.Session == nil || prev.Session.ID != next.Session.ID) {
		topics = append(topics, next.Session.ID)
	}
	return topics
}
