package search

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"messenger-lab/domain"
	"messenger-lab/domain/event"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	index, err := NewIndex(log, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func accepted(chatID, senderID, body string) event.MessageAccepted {
	return event.MessageAccepted{
		ID:       uuid.New(),
		Chat:     chatID,
		SenderID: senderID,
		Body:     body,
		Kind:     domain.KindText,
		At:       time.Now().UTC(),
	}
}

func TestIndex_Search_Finds_By_Body(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)
	ctx := context.Background()

	first := accepted("c1", "alice", "let's meet at the harbor tomorrow")
	req.NoError(index.Consume(ctx, first))
	req.NoError(index.Consume(ctx, accepted("c1", "bob", "sounds good to me")))

	hits, err := index.Search(ctx, "", "harbor", 10)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(first.ID.String(), hits[0].MessageID)
	req.Equal("c1", hits[0].ChatID)
	req.Equal("alice", hits[0].SenderID)
}

func TestIndex_Search_Scopes_To_One_Chat(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)
	ctx := context.Background()

	req.NoError(index.Consume(ctx, accepted("c1", "alice", "harbor plans")))
	req.NoError(index.Consume(ctx, accepted("c2", "alice", "harbor pictures")))

	hits, err := index.Search(ctx, "c2", "harbor", 10)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal("c2", hits[0].ChatID)

	// Without the chat filter both documents match
	hits, err = index.Search(ctx, "", "harbor", 10)
	req.NoError(err)
	req.Len(hits, 2)
}

func TestIndex_Search_No_Match(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)
	ctx := context.Background()

	req.NoError(index.Consume(ctx, accepted("c1", "alice", "hello world")))

	hits, err := index.Search(ctx, "", "submarine", 10)
	req.NoError(err)
	req.Empty(hits)
}

func TestIndex_Consume_Ignores_Other_Events(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)
	ctx := context.Background()

	// Acks and presence never reach the index
	req.NoError(index.Consume(ctx, event.MessageAcked{ServerID: uuid.New(), Chat: "c1"}))
	req.NoError(index.Consume(ctx, event.PresenceChanged{UserID: "alice", IsOnline: true}))

	hits, err := index.Search(ctx, "", "alice", 10)
	req.NoError(err)
	req.Empty(hits)
}
