// Package services exposes the delivery core to the transports as one
// thin facade. Handlers depend on IChatService, never on the runtime
// internals.
package services

import (
	"context"

	"messenger-lab/contract"
	"messenger-lab/domain"
	"messenger-lab/domain/event"
	"messenger-lab/runtime"
	"messenger-lab/search"
)

type IChatService interface {
	Submit(cmd domain.SubmitMessage) error
	History(ctx context.Context, chatID string, limit, offset int) ([]domain.Message, error)
	Search(ctx context.Context, chatID, query string, limit int) ([]search.Hit, error)
	Join(userID string, sink contract.EventSink) (domain.SessionID, error)
	Leave(id domain.SessionID)
	IsOnline(userID string) bool
	Typing(ctx context.Context, chatID, userID string, isTyping bool)
}

type ChatService struct {
	router   *runtime.Router
	registry *runtime.Registry
	presence *runtime.PresenceTracker
	store    contract.IMessageStore
	index    *search.Index
}

func NewChatService(router *runtime.Router, registry *runtime.Registry,
	presence *runtime.PresenceTracker, store contract.IMessageStore,
	index *search.Index) *ChatService {
	return &ChatService{
		router:   router,
		registry: registry,
		presence: presence,
		store:    store,
		index:    index,
	}
}

func (s *ChatService) Submit(cmd domain.SubmitMessage) error {
	return s.router.Submit(cmd)
}

func (s *ChatService) History(ctx context.Context, chatID string, limit, offset int) ([]domain.Message, error) {
	return s.store.History(ctx, chatID, limit, offset)
}

func (s *ChatService) Search(ctx context.Context, chatID, query string, limit int) ([]search.Hit, error) {
	return s.index.Search(ctx, chatID, query, limit)
}

func (s *ChatService) Join(userID string, sink contract.EventSink) (domain.SessionID, error) {
	return s.registry.Join(userID, sink)
}

func (s *ChatService) Leave(id domain.SessionID) {
	s.registry.Leave(id)
}

func (s *ChatService) IsOnline(userID string) bool {
	return s.presence.IsOnline(userID)
}

func (s *ChatService) Typing(ctx context.Context, chatID, userID string, isTyping bool) {
	s.router.Relay(ctx, event.TypingChanged{Chat: chatID, UserID: userID, IsTyping: isTyping})
}
