package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"messenger-lab/contract"
	"messenger-lab/domain"
	"messenger-lab/domain/event"
	"messenger-lab/errors"
)

// BodyFilter rewrites a message body before it becomes durable, so that
// history and fan-out always agree on the stored text.
type BodyFilter interface {
	Censor(body string) string
}

// Router validates, persists and fans out submitted messages.
//
// Persistence is the only serialization point: a message is durable
// before any recipient can observe it, and the store's timestamp order
// is the authoritative order within a chat. Fan-out is parallel and
// independent per session so one dead connection cannot stall the rest.
type Router struct {
	log             *slog.Logger
	registry        contract.IRegistry
	store           contract.IMessageStore
	directory       contract.IChatDirectory
	notifier        contract.INotifier
	filter          BodyFilter
	permanentSinks  []contract.EventSink
	submissions     chan domain.SubmitMessage
	dispatchTimeout time.Duration
	previewLen      int
}

func NewRouter(
	log *slog.Logger,
	registry contract.IRegistry,
	store contract.IMessageStore,
	directory contract.IChatDirectory,
	notifier contract.INotifier,
	filter BodyFilter,
	bufferSize int,
	dispatchTimeout time.Duration,
	previewLen int,
) *Router {
	return &Router{
		log:             log,
		registry:        registry,
		store:           store,
		directory:       directory,
		notifier:        notifier,
		filter:          filter,
		submissions:     make(chan domain.SubmitMessage, bufferSize),
		dispatchTimeout: dispatchTimeout,
		previewLen:      previewLen,
	}
}

// Add registers always-on sinks (projections, search index) that observe
// every accepted message exactly once, independently of sessions.
func (r *Router) Add(sinks ...contract.EventSink) {
	r.permanentSinks = append(r.permanentSinks, sinks...)
}

// Submit queues a message for delivery without blocking the caller.
// A full queue is reported immediately so the sender can flip its
// optimistic entry instead of waiting for a watchdog timeout.
func (r *Router) Submit(cmd domain.SubmitMessage) error {
	select {
	case r.submissions <- cmd:
		return nil
	default:
		r.log.Warn("Submission queue full, rejecting", "chat_id", cmd.ChatID)
		return errors.ErrPersistence
	}
}

// Run drains the submission queue. Several Run workers may share the
// queue; ordering within a chat is decided by the store, not by arrival.
func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.log.Debug("Stopping router worker")
			return ctx.Err()
		case cmd, ok := <-r.submissions:
			if !ok {
				return nil
			}
			r.Handle(ctx, cmd)
		}
	}
}

// Handle runs the full pipeline for one submission:
// validate -> censor -> persist -> ack sender -> fan out.
func (r *Router) Handle(ctx context.Context, cmd domain.SubmitMessage) {
	chat, kind, err := r.validate(ctx, cmd)
	if err != nil {
		r.failOrigin(cmd, err.Error())
		return
	}
	cmd.Kind = kind

	body := cmd.Body
	if r.filter != nil {
		body = r.filter.Censor(body)
	}

	persisted, err := r.store.Persist(ctx, cmd.ChatID, cmd.SenderID, body, cmd.Kind)
	if err != nil {
		r.log.Error("Persistence failed", "chat_id", cmd.ChatID, "error", err)
		r.failOrigin(cmd, errors.ErrPersistence.Error())
		return
	}

	r.ackOrigin(cmd, persisted)
	r.fanout(ctx, cmd, chat, body, persisted)
}

func (r *Router) validate(ctx context.Context, cmd domain.SubmitMessage) (domain.Chat, domain.MessageKind, error) {
	if cmd.ChatID == "" || cmd.Body == "" || cmd.SenderID == "" {
		return domain.Chat{}, "", errors.ErrInvalidMessage
	}
	kind, ok := domain.ParseKind(string(cmd.Kind))
	if !ok {
		return domain.Chat{}, "", errors.ErrInvalidMessage
	}
	chat, err := r.directory.ChatOf(ctx, cmd.ChatID)
	if err != nil {
		return domain.Chat{}, "", errors.ErrInvalidMessage
	}
	if !chat.HasParticipant(cmd.SenderID) {
		return domain.Chat{}, "", errors.ErrNotParticipant
	}
	return chat, kind, nil
}

// fanout dispatches the accepted message to every live session of every
// participant except the originating one. The sender's other devices do
// receive the message; only the origin gets the ack instead. Participants
// with no live session are reached through the offline notifier unless
// they muted the chat.
func (r *Router) fanout(ctx context.Context, cmd domain.SubmitMessage, chat domain.Chat, body string, persisted contract.PersistedMessage) {
	canonical := event.MessageAccepted{
		ID:       persisted.ServerID,
		Chat:     cmd.ChatID,
		SenderID: cmd.SenderID,
		Body:     body,
		Kind:     cmd.Kind,
		At:       persisted.CreatedAt,
	}
	for _, sink := range r.permanentSinks {
		sinkCtx, cancel := context.WithTimeout(ctx, r.dispatchTimeout)
		if err := sink.Consume(sinkCtx, canonical); err != nil {
			r.log.Warn("Permanent sink rejected event", "error", err)
		}
		cancel()
	}

	for _, participant := range chat.Participants {
		sessions := r.registry.SessionsFor(participant)

		if len(sessions) == 0 {
			if participant == cmd.SenderID || chat.IsMuted(participant) {
				continue
			}
			r.notifier.NotifyOffline(ctx, participant, preview(body, r.previewLen))
			continue
		}

		for _, session := range sessions {
			if session.ID == cmd.Origin {
				continue
			}
			evt := canonical
			if participant == cmd.SenderID {
				// Multi-device: let the sender's other sessions reconcile too.
				evt.CorrelationID = cmd.CorrelationID
			}
			r.dispatch(session.ID, evt)
		}
	}
}

// dispatch writes one event to one session, independently and with a
// bounded timeout. A failed write is logged and skipped: the recipient
// still owns the message through the next history fetch.
func (r *Router) dispatch(id domain.SessionID, evt event.DomainEvent) {
	sink, ok := r.registry.Sink(id)
	if !ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.dispatchTimeout)
		defer cancel()
		if err := sink.Consume(ctx, evt); err != nil {
			r.log.Warn("Session dispatch failed, skipping",
				"session_id", string(id), "error", err)
		}
	}()
}

func (r *Router) ackOrigin(cmd domain.SubmitMessage, persisted contract.PersistedMessage) {
	sink, ok := r.registry.Sink(cmd.Origin)
	if !ok {
		// REST submissions have no live origin session; the HTTP response
		// already carried the server id.
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.dispatchTimeout)
	defer cancel()
	err := sink.Consume(ctx, event.MessageAcked{
		ServerID:      persisted.ServerID,
		Chat:          cmd.ChatID,
		CorrelationID: cmd.CorrelationID,
		At:            persisted.CreatedAt,
	})
	if err != nil {
		r.log.Warn("Ack push failed", "chat_id", cmd.ChatID, "error", err)
	}
}

// failOrigin reports a rejected or unpersisted submission to the sender
// only. Nothing was fanned out, so nobody else hears about it.
func (r *Router) failOrigin(cmd domain.SubmitMessage, reason string) {
	sink, ok := r.registry.Sink(cmd.Origin)
	if !ok {
		r.log.Debug("No origin session for failure report", "chat_id", cmd.ChatID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.dispatchTimeout)
	defer cancel()
	err := sink.Consume(ctx, event.MessageFailed{
		Chat:          cmd.ChatID,
		CorrelationID: cmd.CorrelationID,
		Reason:        reason,
	})
	if err != nil {
		r.log.Warn("Failure push failed", "chat_id", cmd.ChatID, "error", err)
	}
}

// Relay forwards a typing indicator to the other participants' live
// sessions. Typing state is ephemeral and never persisted.
func (r *Router) Relay(ctx context.Context, typing event.TypingChanged) {
	chat, err := r.directory.ChatOf(ctx, typing.Chat)
	if err != nil {
		r.log.Debug(fmt.Sprintf("Typing relay dropped, chat %s unknown", typing.Chat))
		return
	}
	for _, participant := range chat.Participants {
		if participant == typing.UserID {
			continue
		}
		for _, session := range r.registry.SessionsFor(participant) {
			r.dispatch(session.ID, typing)
		}
	}
}

func preview(body string, limit int) string {
	if limit <= 0 {
		return body
	}
	runes := []rune(body)
	if len(runes) <= limit {
		return body
	}
	return string(runes[:limit]) + "…"
}
