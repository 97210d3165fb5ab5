// Package search maintains a full-text index over accepted messages so
// clients can search history without scanning the store.
package search

import (
	"context"
	"log/slog"
	"sync"

	"github.com/blugelabs/bluge"

	"messenger-lab/domain/event"
)

// Index is an EventSink fed by the router's permanent fan-out. Indexing
// is best-effort: a missed document only degrades search, never delivery.
type Index struct {
	mu     sync.Mutex
	log    *slog.Logger
	writer *bluge.Writer
}

func NewIndex(log *slog.Logger, path string) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return &Index{log: log, writer: writer}, nil
}

func (i *Index) Close() error {
	return i.writer.Close()
}

// Consume indexes accepted messages and ignores every other event type.
func (i *Index) Consume(_ context.Context, e event.DomainEvent) error {
	accepted, ok := e.(event.MessageAccepted)
	if !ok {
		return nil
	}

	doc := bluge.NewDocument(accepted.ID.String()).
		AddField(bluge.NewTextField("body", accepted.Body).StoreValue()).
		AddField(bluge.NewKeywordField("chat_id", accepted.Chat).StoreValue()).
		AddField(bluge.NewKeywordField("sender_id", accepted.SenderID).StoreValue()).
		AddField(bluge.NewDateTimeField("at", accepted.At))

	i.mu.Lock()
	defer i.mu.Unlock()
	return i.writer.Update(doc.ID(), doc)
}

// Hit is one search result, newest-ranked first.
type Hit struct {
	MessageID string
	ChatID    string
	SenderID  string
}

// Search returns up to limit messages whose body matches the query,
// optionally restricted to one chat.
func (i *Index) Search(ctx context.Context, chatID, query string, limit int) ([]Hit, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("Failed to close index reader", "error", err)
		}
	}()

	boolean := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query).SetField("body"))
	if chatID != "" {
		boolean.AddMust(bluge.NewTermQuery(chatID).SetField("chat_id"))
	}

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, boolean))
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}
		var hit Hit
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID = string(value)
			case "chat_id":
				hit.ChatID = string(value)
			case "sender_id":
				hit.SenderID = string(value)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
