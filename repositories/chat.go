package repositories

import (
	"context"
	"sync"

	"messenger-lab/domain"
	"messenger-lab/errors"
)

// ChatDirectory is the read-mostly membership lookup the router fans out
// against. Membership is managed by the external chat service; Save is
// how that collaborator (or a seed script) pushes reference data in.
type ChatDirectory struct {
	mu    sync.RWMutex
	chats map[string]domain.Chat
}

func NewChatDirectory() *ChatDirectory {
	return &ChatDirectory{chats: make(map[string]domain.Chat)}
}

func (d *ChatDirectory) Save(chat domain.Chat) error {
	if err := chat.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chats[chat.ID] = chat
	return nil
}

func (d *ChatDirectory) ChatOf(_ context.Context, chatID string) (domain.Chat, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	chat, ok := d.chats[chatID]
	if !ok {
		return domain.Chat{}, errors.ErrInvalidChat
	}
	return chat, nil
}

func (d *ChatDirectory) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	chat, err := d.ChatOf(ctx, chatID)
	if err != nil {
		return false, err
	}
	return chat.HasParticipant(userID), nil
}
