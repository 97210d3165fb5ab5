// Package outbox implements the sending side of the optimistic message
// lifecycle. A submitted message is visible immediately in the local
// timeline as "sending" and is later reconciled against the server ack,
// the fan-out copy from another own device, or an error.
package outbox

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"messenger-lab/domain"
	"messenger-lab/errors"
)

// Transmitter pushes a submission towards the delivery router. The
// concrete type decides the transport (socket or REST); the outbox only
// ever submits through one path per message.
type Transmitter interface {
	Transmit(cmd domain.SubmitMessage) error
}

// Outbox holds the local message timelines of one client. Submit, acks,
// errors and incoming messages are serialized by its mutex so an
// optimistic insert can never race its own reconciliation. Different
// clients (or different chat views) use independent outboxes.
type Outbox struct {
	mu          sync.Mutex
	log         *slog.Logger
	selfID      string
	transmitter Transmitter
	timelines   map[string][]*domain.Message
	pending     map[string]*domain.Message
	matchWindow time.Duration
	ackTimeout  time.Duration
	now         func() time.Time
}

func NewOutbox(log *slog.Logger, selfID string, transmitter Transmitter,
	matchWindow, ackTimeout time.Duration) *Outbox {
	return &Outbox{
		log:         log,
		selfID:      selfID,
		transmitter: transmitter,
		timelines:   make(map[string][]*domain.Message),
		pending:     make(map[string]*domain.Message),
		matchWindow: matchWindow,
		ackTimeout:  ackTimeout,
		now:         time.Now,
	}
}

// newCorrelationID combines a random token with a timestamp so ids stay
// unique across app restarts.
func newCorrelationID(at time.Time) string {
	return fmt.Sprintf("%s-%d", uuid.NewString(), at.UnixNano())
}

// Submit appends an optimistic "sending" entry and hands the submission
// to the transmitter without waiting for the network. The returned
// correlation id is the reconciliation key for the eventual ack or error.
func (o *Outbox) Submit(chatID, body string, kind domain.MessageKind) string {
	now := o.now().UTC()
	correlationID := newCorrelationID(now)

	entry := &domain.Message{
		CorrelationID: correlationID,
		ChatID:        chatID,
		SenderID:      o.selfID,
		Body:          body,
		Kind:          kind,
		CreatedAt:     now,
		State:         domain.StateSending,
	}

	o.mu.Lock()
	o.timelines[chatID] = append(o.timelines[chatID], entry)
	o.pending[correlationID] = entry
	o.mu.Unlock()

	go func() {
		err := o.transmitter.Transmit(domain.SubmitMessage{
			ChatID:        chatID,
			SenderID:      o.selfID,
			Body:          body,
			Kind:          kind,
			CorrelationID: correlationID,
			SubmittedAt:   now,
		})
		if err != nil {
			_ = o.OnError(correlationID, err.Error())
		}
	}()

	return correlationID
}

// OnAck transitions the matching pending entry to "sent" and stamps it
// with the authoritative id and timestamp. An ack with no matching entry
// (app restarted, local state gone) reports ErrReconciliationMiss and
// changes nothing: we never fabricate an entry from an ack.
func (o *Outbox) OnAck(serverID uuid.UUID, correlationID string, createdAt time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.pending[correlationID]
	if !ok {
		o.log.Debug("Reconciliation miss on ack", "correlation_id", correlationID)
		return errors.ErrReconciliationMiss
	}
	o.resolve(entry, serverID, createdAt)
	return nil
}

// OnError flips the matching pending entry to "failed". The entry stays
// visible so the user can retry, which resubmits as a brand-new message
// with a fresh correlation id.
func (o *Outbox) OnError(correlationID, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.pending[correlationID]
	if !ok {
		o.log.Debug("Reconciliation miss on error", "correlation_id", correlationID)
		return errors.ErrReconciliationMiss
	}
	entry.Advance(domain.StateFailed)
	delete(o.pending, correlationID)
	o.log.Warn("Message send failed", "chat_id", entry.ChatID, "reason", reason)
	return nil
}

// OnIncoming appends a message received through the fan-out path.
// Foreign messages go straight into the timeline as "delivered". A copy
// of our own message (possible with several own sessions) reconciles by
// correlation id first; only when the server sent no correlation id does
// the content heuristic run.
func (o *Outbox) OnIncoming(msg domain.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if msg.SenderID == o.selfID {
		if msg.CorrelationID != "" {
			if entry, ok := o.pending[msg.CorrelationID]; ok {
				o.resolve(entry, msg.ID, msg.CreatedAt)
				return
			}
			o.log.Debug("Reconciliation miss on own copy", "correlation_id", msg.CorrelationID)
		} else if entry := o.matchByContent(msg); entry != nil {
			o.resolve(entry, msg.ID, msg.CreatedAt)
			return
		}
		// Own message we cannot merge: a visible duplicate is the accepted
		// degraded outcome, guessing further is not.
	}

	appended := msg
	appended.State = domain.StateDelivered
	o.timelines[msg.ChatID] = append(o.timelines[msg.ChatID], &appended)
}

// MarkRead advances a delivered message to read. Regressions are refused
// by the domain, so marking twice or out of order is harmless.
func (o *Outbox) MarkRead(chatID string, serverID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, entry := range o.timelines[chatID] {
		if entry.ID == serverID {
			entry.Advance(domain.StateRead)
			return
		}
	}
}

// MarkDelivered advances the sender's copy once a recipient received it.
func (o *Outbox) MarkDelivered(chatID string, serverID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, entry := range o.timelines[chatID] {
		if entry.ID == serverID {
			entry.Advance(domain.StateDelivered)
			return
		}
	}
}

// Messages returns a copy of the chat timeline in insertion order.
func (o *Outbox) Messages(chatID string) []domain.Message {
	o.mu.Lock()
	defer o.mu.Unlock()

	timeline := o.timelines[chatID]
	res := make([]domain.Message, 0, len(timeline))
	for _, entry := range timeline {
		res = append(res, *entry)
	}
	return res
}

// resolve is the shared ack path: stamp the authoritative identity and
// move sending -> sent. Callers hold the mutex.
func (o *Outbox) resolve(entry *domain.Message, serverID uuid.UUID, createdAt time.Time) {
	if !entry.Advance(domain.StateSent) {
		return
	}
	entry.ID = serverID
	entry.CreatedAt = createdAt
	delete(o.pending, entry.CorrelationID)
}

// expire flips pending entries older than the ack timeout to "failed".
// Silence from the server is a failure signal, not a silent success.
func (o *Outbox) expire(now time.Time) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	expired := 0
	for correlationID, entry := range o.pending {
		if now.Sub(entry.CreatedAt) < o.ackTimeout {
			continue
		}
		entry.Advance(domain.StateFailed)
		delete(o.pending, correlationID)
		o.log.Warn("Message timed out waiting for ack", "chat_id", entry.ChatID)
		expired++
	}
	return expired
}
