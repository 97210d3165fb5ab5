// Package projection builds local timelines from observed events.
// Handles ordering and per-chat grouping; it does not emit events or
// interact with the transport directly.
package projection

import (
	"context"
	"sync"

	"messenger-lab/domain"
	"messenger-lab/domain/event"
)

// Timeline accumulates accepted messages per chat, in the order the
// store accepted them. It is safe for concurrent consumption.
type Timeline struct {
	mu       sync.RWMutex
	messages map[string][]domain.Message
}

func NewTimeline() *Timeline {
	return &Timeline{messages: make(map[string][]domain.Message)}
}

func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	accepted, ok := e.(event.MessageAccepted)
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages[accepted.Chat] = append(t.messages[accepted.Chat], fromEvent(accepted))
	return nil
}

// Messages returns a copy of one chat's timeline.
func (t *Timeline) Messages(chatID string) []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.Message(nil), t.messages[chatID]...)
}

func fromEvent(e event.MessageAccepted) domain.Message {
	return domain.Message{
		ID:        e.ID,
		ChatID:    e.Chat,
		SenderID:  e.SenderID,
		Body:      e.Body,
		Kind:      e.Kind,
		CreatedAt: e.At,
		State:     domain.StateSent,
	}
}
