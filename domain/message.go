// Package domain contains core concepts of the messaging system.
// This file defines Message entities and the delivery lifecycle rules.
// Messages are validated by the domain and their state only moves forward.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind tags the payload carried by a message body.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindVideo MessageKind = "video"
	KindAudio MessageKind = "audio"
	KindFile  MessageKind = "file"
)

// ParseKind maps a wire string to a MessageKind.
// An empty string defaults to text, matching legacy senders.
func ParseKind(s string) (MessageKind, bool) {
	switch MessageKind(s) {
	case "":
		return KindText, true
	case KindText, KindImage, KindVideo, KindAudio, KindFile:
		return MessageKind(s), true
	}
	return "", false
}

// DeliveryState is the lifecycle position of a message as seen by its sender.
type DeliveryState int

const (
	StateSending DeliveryState = iota
	StateSent
	StateDelivered
	StateRead
	StateFailed
)

func (s DeliveryState) String() string {
	switch s {
	case StateSending:
		return "sending"
	case StateSent:
		return "sent"
	case StateDelivered:
		return "delivered"
	case StateRead:
		return "read"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// CanAdvance reports whether moving to next respects the lifecycle.
// Allowed paths: sending -> {sent|failed}, sent -> delivered -> read.
// Failed is terminal; a failed entry is resubmitted as a new message, never revived.
func (s DeliveryState) CanAdvance(next DeliveryState) bool {
	switch s {
	case StateSending:
		return next == StateSent || next == StateFailed
	case StateSent:
		return next == StateDelivered
	case StateDelivered:
		return next == StateRead
	}
	return false
}

// Message represents one chat message.
// ID is the authoritative server identifier, assigned at persistence time.
// CorrelationID is the sender-local reconciliation token; it is never shown
// to other participants and may be empty for legacy submission paths.
type Message struct {
	ID            uuid.UUID
	CorrelationID string
	ChatID        string
	SenderID      string
	Body          string
	Kind          MessageKind
	CreatedAt     time.Time
	State         DeliveryState
}

// Advance moves the message forward in its lifecycle.
// Regressions are refused and leave the state untouched.
func (m *Message) Advance(next DeliveryState) bool {
	if !m.State.CanAdvance(next) {
		return false
	}
	m.State = next
	return true
}
