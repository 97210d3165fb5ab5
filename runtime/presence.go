package runtime

import (
	"context"
	"log/slog"
	"time"

	"messenger-lab/domain/event"
)

// PresenceTracker turns registry edges into PresenceChanged events pushed
// to every other connected session. It keeps no state of its own: online
// queries are answered by the registry so the two can never drift.
type PresenceTracker struct {
	log             *slog.Logger
	registry        *Registry
	dispatchTimeout time.Duration
}

func NewPresenceTracker(log *slog.Logger, registry *Registry, dispatchTimeout time.Duration) *PresenceTracker {
	return &PresenceTracker{log: log, registry: registry, dispatchTimeout: dispatchTimeout}
}

// PresenceChanged implements contract.PresenceListener. The registry only
// calls it on 0->1 and 1->0 session count edges, so a burst of joins from
// one user produces a single broadcast.
func (t *PresenceTracker) PresenceChanged(userID string, isOnline bool) {
	evt := event.PresenceChanged{
		UserID:   userID,
		IsOnline: isOnline,
		At:       time.Now().UTC(),
	}

	for _, session := range t.registry.AllSessions() {
		if session.UserID == userID {
			// The transitioning user already knows.
			continue
		}
		sink, ok := t.registry.Sink(session.ID)
		if !ok {
			continue
		}
		go func(s string) {
			ctx, cancel := context.WithTimeout(context.Background(), t.dispatchTimeout)
			defer cancel()
			if err := sink.Consume(ctx, evt); err != nil {
				t.log.Debug("Presence push skipped", "session_id", s, "error", err)
			}
		}(string(session.ID))
	}
}

// IsOnline answers point-in-time presence queries for chat headers.
func (t *PresenceTracker) IsOnline(userID string) bool {
	return t.registry.IsOnline(userID)
}
