// Package event defines the closed set of typed events flowing from the
// delivery core to connected sessions. Handlers switch on the concrete
// type; there is no string-keyed bus and no untyped payload.
package event

import (
	"time"

	"github.com/google/uuid"

	"messenger-lab/domain"
)

type DomainEvent interface {
	ChatID() string
}

// MessageAccepted is the fan-out copy of a persisted message.
// It goes to every live session of every chat participant except the
// originating session. CorrelationID is only populated when the
// recipient session belongs to the sender (multi-device reconciliation).
type MessageAccepted struct {
	ID            uuid.UUID
	Chat          string
	SenderID      string
	Body          string
	Kind          domain.MessageKind
	CorrelationID string
	At            time.Time
}

func (e MessageAccepted) ChatID() string { return e.Chat }

// MessageAcked confirms durable persistence to the originating session only.
type MessageAcked struct {
	ServerID      uuid.UUID
	Chat          string
	CorrelationID string
	At            time.Time
}

func (e MessageAcked) ChatID() string { return e.Chat }

// MessageFailed reports a rejected or unpersisted submission to the
// originating session only, carrying the correlation id so the sender
// can flip that specific optimistic entry.
type MessageFailed struct {
	Chat          string
	CorrelationID string
	Reason        string
}

func (e MessageFailed) ChatID() string { return e.Chat }

// PresenceChanged is edge-triggered: emitted only on the 0->1 and 1->0
// session count transitions of a user, never on every join or leave.
type PresenceChanged struct {
	UserID   string
	IsOnline bool
	At       time.Time
}

// ChatID is empty: presence is user-scoped, not chat-scoped.
func (e PresenceChanged) ChatID() string { return "" }

// TypingChanged relays a typing indicator to the other chat participants.
// Never persisted.
type TypingChanged struct {
	Chat     string
	UserID   string
	IsTyping bool
}

func (e TypingChanged) ChatID() string { return e.Chat }
