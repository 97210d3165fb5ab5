package ws

import (
	"encoding/json"
	"time"

	"messenger-lab/domain/event"
)

// Frame is the wire envelope. The type field selects one member of the
// closed payload set below; unknown types are dropped by the read pump.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

const (
	frameSubmitMessage = "submit_message"
	frameTypingStart   = "typing_start"
	frameTypingStop    = "typing_stop"

	frameNewMessage      = "new_message"
	frameMessageAck      = "message_ack"
	frameMessageError    = "message_error"
	framePresenceChanged = "presence_changed"
	frameUserTyping      = "user_typing"
)

type submitPayload struct {
	ChatID        string `json:"chat_id" validate:"required"`
	Body          string `json:"body" validate:"required"`
	Kind          string `json:"kind" validate:"omitempty,oneof=text image video audio file"`
	CorrelationID string `json:"correlation_id" validate:"required"`
}

type typingPayload struct {
	ChatID string `json:"chat_id" validate:"required"`
}

type newMessagePayload struct {
	ServerID      string `json:"server_id"`
	ChatID        string `json:"chat_id"`
	SenderID      string `json:"sender_id"`
	Body          string `json:"body"`
	Kind          string `json:"kind"`
	CorrelationID string `json:"correlation_id,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type ackPayload struct {
	ServerID      string `json:"server_id"`
	ChatID        string `json:"chat_id"`
	CorrelationID string `json:"correlation_id"`
	CreatedAt     string `json:"created_at"`
}

type errorPayload struct {
	ChatID        string `json:"chat_id"`
	CorrelationID string `json:"correlation_id"`
	Reason        string `json:"reason"`
}

type presencePayload struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}

type userTypingPayload struct {
	ChatID   string `json:"chat_id"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// toFrame maps a domain event onto its wire frame. Returning false means
// the event has no wire representation for this connection.
func toFrame(e event.DomainEvent) (Frame, bool) {
	switch evt := e.(type) {
	case event.MessageAccepted:
		return marshalFrame(frameNewMessage, newMessagePayload{
			ServerID:      evt.ID.String(),
			ChatID:        evt.Chat,
			SenderID:      evt.SenderID,
			Body:          evt.Body,
			Kind:          string(evt.Kind),
			CorrelationID: evt.CorrelationID,
			CreatedAt:     evt.At.Format(time.RFC3339Nano),
		})
	case event.MessageAcked:
		return marshalFrame(frameMessageAck, ackPayload{
			ServerID:      evt.ServerID.String(),
			ChatID:        evt.Chat,
			CorrelationID: evt.CorrelationID,
			CreatedAt:     evt.At.Format(time.RFC3339Nano),
		})
	case event.MessageFailed:
		return marshalFrame(frameMessageError, errorPayload{
			ChatID:        evt.Chat,
			CorrelationID: evt.CorrelationID,
			Reason:        evt.Reason,
		})
	case event.PresenceChanged:
		return marshalFrame(framePresenceChanged, presencePayload{
			UserID:   evt.UserID,
			IsOnline: evt.IsOnline,
		})
	case event.TypingChanged:
		return marshalFrame(frameUserTyping, userTypingPayload{
			ChatID:   evt.Chat,
			UserID:   evt.UserID,
			IsTyping: evt.IsTyping,
		})
	}
	return Frame{}, false
}

func marshalFrame(frameType string, payload any) (Frame, bool) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, false
	}
	return Frame{Type: frameType, Payload: raw}, true
}
