// Package repositories persists messages in BadgerDB behind the message
// store contract. The store is the single owner of server id assignment:
// ids are generated here, under a durable write, and nowhere else.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"messenger-lab/contract"
	"messenger-lab/domain"
	"messenger-lab/errors"
)

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// diskMessage is the stored shape. Correlation ids are deliberately not
// persisted: they only exist to reconcile the sender's optimistic copy.
type diskMessage struct {
	ID       string `json:"id"`
	ChatID   string `json:"chat_id"`
	SenderID string `json:"sender_id"`
	Body     string `json:"body"`
	Kind     string `json:"kind"`
	At       int64  `json:"at"`
}

// key is formatted as "msg:{chat_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two
//     messages arrive at the same nanosecond.
func key(chatID string, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", chatID, at.UnixNano(), id))
}

// Persist durably records a message and returns the authoritative server
// id and timestamp. Concurrent writers in the same chat race here, and
// the timestamp order assigned here is the order every reader sees.
func (m MessageRepository) Persist(ctx context.Context, chatID, senderID, body string,
	kind domain.MessageKind) (contract.PersistedMessage, error) {
	if err := ctx.Err(); err != nil {
		return contract.PersistedMessage{}, err
	}

	serverID := uuid.New()
	createdAt := time.Now().UTC()

	bytes, err := json.Marshal(diskMessage{
		ID:       serverID.String(),
		ChatID:   chatID,
		SenderID: senderID,
		Body:     body,
		Kind:     string(kind),
		At:       createdAt.UnixNano(),
	})
	if err != nil {
		return contract.PersistedMessage{}, err
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(chatID, createdAt, serverID), bytes)
	})
	if err != nil {
		return contract.PersistedMessage{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	return contract.PersistedMessage{ServerID: serverID, CreatedAt: createdAt}, nil
}

// History returns one page of a chat's messages, oldest first. Thanks to
// the padded timestamp in the key, a forward prefix scan is already in
// chronological order; offset and limit make the scan restartable.
func (m MessageRepository) History(ctx context.Context, chatID string, limit, offset int) ([]domain.Message, error) {
	var raw [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", chatID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		skipped := 0
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if skipped < offset {
				skipped++
				continue
			}
			if limit > 0 && len(raw) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(raw))
	for _, bytes := range raw {
		var dm diskMessage
		if err := json.Unmarshal(bytes, &dm); err != nil {
			return nil, err
		}
		msg, err := toDomain(dm)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func toDomain(dm diskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(dm.ID)
	if err != nil {
		return domain.Message{}, err
	}
	kind, _ := lo.Coalesce(domain.MessageKind(dm.Kind), domain.KindText)
	return domain.Message{
		ID:        parsedID,
		ChatID:    dm.ChatID,
		SenderID:  dm.SenderID,
		Body:      dm.Body,
		Kind:      kind,
		CreatedAt: time.Unix(0, dm.At).UTC(),
		State:     domain.StateSent,
	}, nil
}
