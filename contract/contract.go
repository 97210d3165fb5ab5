//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"

	"messenger-lab/domain"
	"messenger-lab/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one session's receive side. Consume must honor ctx so a
// slow connection cannot stall the caller past its dispatch timeout.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry tracks which sessions are live for which user.
type IRegistry interface {
	Join(userID string, sink EventSink) (domain.SessionID, error)
	Leave(id domain.SessionID)
	SessionsFor(userID string) []domain.Session
	Sink(id domain.SessionID) (EventSink, bool)
	IsOnline(userID string) bool
}

// PersistedMessage is what the store hands back once a message is durable.
type PersistedMessage struct {
	ServerID  uuid.UUID
	CreatedAt time.Time
}

// IMessageStore is the persistence collaborator. It owns server id
// assignment and must keep ids unique under concurrent writers.
type IMessageStore interface {
	Persist(ctx context.Context, chatID, senderID, body string, kind domain.MessageKind) (PersistedMessage, error)
	History(ctx context.Context, chatID string, limit, offset int) ([]domain.Message, error)
}

// IChatDirectory resolves fan-out targets. Membership is managed elsewhere.
type IChatDirectory interface {
	ChatOf(ctx context.Context, chatID string) (domain.Chat, error)
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
}

// INotifier reaches participants with zero live sessions through an
// external push channel. Delivery mechanics are out of scope here.
type INotifier interface {
	NotifyOffline(ctx context.Context, userID, preview string)
}

// PresenceListener receives edge-triggered online/offline transitions.
type PresenceListener interface {
	PresenceChanged(userID string, isOnline bool)
}
