package runtime

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"messenger-lab/contract"
	"messenger-lab/domain"
	"messenger-lab/domain/event"
	"messenger-lab/errors"
	"messenger-lab/mocks"
	"messenger-lab/projection"
)

// chanSink records dispatched events for one fake session. Dispatch is
// asynchronous, so assertions read from the channel with a deadline.
type chanSink struct {
	ch chan event.DomainEvent
}

func newChanSink() *chanSink {
	return &chanSink{ch: make(chan event.DomainEvent, 16)}
}

func (s *chanSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *chanSink) next(t *testing.T) event.DomainEvent {
	t.Helper()
	select {
	case e := <-s.ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("expected an event, got none")
		return nil
	}
}

func (s *chanSink) quiet(t *testing.T) {
	t.Helper()
	select {
	case e := <-s.ch:
		t.Fatalf("expected silence, got %T", e)
	case <-time.After(100 * time.Millisecond):
	}
}

type upperFilter struct{}

func (upperFilter) Censor(body string) string { return strings.ToUpper(body) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type routerFixture struct {
	router    *Router
	registry  *Registry
	store     *mocks.MockIMessageStore
	directory *mocks.MockIChatDirectory
	notifier  *mocks.MockINotifier
}

func newRouterFixture(t *testing.T, filter BodyFilter) *routerFixture {
	ctrl := gomock.NewController(t)
	f := &routerFixture{
		registry:  NewRegistry(0),
		store:     mocks.NewMockIMessageStore(ctrl),
		directory: mocks.NewMockIChatDirectory(ctrl),
		notifier:  mocks.NewMockINotifier(ctrl),
	}
	f.router = NewRouter(testLogger(), f.registry, f.store, f.directory,
		f.notifier, filter, 16, time.Second, 10)
	return f
}

func directChat(id, a, b string) domain.Chat {
	return domain.Chat{ID: id, Type: domain.ChatDirect, Participants: []string{a, b}}
}

func TestRouter_Accepted_Message_Acks_Origin_And_Reaches_Recipient(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	senderSink := newChanSink()
	recipientSink := newChanSink()
	origin, err := f.registry.Join("alice", senderSink)
	req.NoError(err)
	_, err = f.registry.Join("bob", recipientSink)
	req.NoError(err)

	serverID := uuid.New()
	createdAt := time.Now().UTC()
	f.directory.EXPECT().ChatOf(gomock.Any(), "c1").
		Return(directChat("c1", "alice", "bob"), nil)
	f.store.EXPECT().Persist(gomock.Any(), "c1", "alice", "hello", domain.KindText).
		Return(contract.PersistedMessage{ServerID: serverID, CreatedAt: createdAt}, nil)

	// When alice submits a message from her live session
	f.router.Handle(context.Background(), domain.SubmitMessage{
		ChatID:        "c1",
		SenderID:      "alice",
		Body:          "hello",
		Kind:          domain.KindText,
		CorrelationID: "corr-1",
		Origin:        origin,
	})

	// Then the origin gets exactly one ack carrying the correlation id
	ack, ok := senderSink.next(t).(event.MessageAcked)
	req.True(ok)
	req.Equal(serverID, ack.ServerID)
	req.Equal("corr-1", ack.CorrelationID)
	req.Equal(createdAt, ack.At)
	senderSink.quiet(t)

	// And the recipient gets exactly one copy, without a correlation id
	msg, ok := recipientSink.next(t).(event.MessageAccepted)
	req.True(ok)
	req.Equal(serverID, msg.ID)
	req.Equal("c1", msg.Chat)
	req.Equal("alice", msg.SenderID)
	req.Equal("hello", msg.Body)
	req.Empty(msg.CorrelationID)
	recipientSink.quiet(t)
}

func TestRouter_Sender_Other_Devices_Receive_Copy_With_CorrelationID(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	phone := newChanSink()
	laptop := newChanSink()
	origin, err := f.registry.Join("alice", phone)
	req.NoError(err)
	_, err = f.registry.Join("alice", laptop)
	req.NoError(err)
	recipientSink := newChanSink()
	_, err = f.registry.Join("bob", recipientSink)
	req.NoError(err)

	f.directory.EXPECT().ChatOf(gomock.Any(), "c1").
		Return(directChat("c1", "alice", "bob"), nil)
	f.store.EXPECT().Persist(gomock.Any(), "c1", "alice", "hi", domain.KindText).
		Return(contract.PersistedMessage{ServerID: uuid.New(), CreatedAt: time.Now().UTC()}, nil)

	// When alice sends from her phone
	f.router.Handle(context.Background(), domain.SubmitMessage{
		ChatID:        "c1",
		SenderID:      "alice",
		Body:          "hi",
		Kind:          domain.KindText,
		CorrelationID: "corr-7",
		Origin:        origin,
	})

	// Then the phone gets the ack only
	_, ok := phone.next(t).(event.MessageAcked)
	req.True(ok)
	phone.quiet(t)

	// The laptop gets the message copy with the correlation id set
	copyEvt, ok := laptop.next(t).(event.MessageAccepted)
	req.True(ok)
	req.Equal("corr-7", copyEvt.CorrelationID)

	// And bob's copy carries no correlation id
	bobEvt, ok := recipientSink.next(t).(event.MessageAccepted)
	req.True(ok)
	req.Empty(bobEvt.CorrelationID)
}

func TestRouter_Persist_Failure_Reaches_Sender_Only(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	senderSink := newChanSink()
	recipientSink := newChanSink()
	origin, err := f.registry.Join("alice", senderSink)
	req.NoError(err)
	_, err = f.registry.Join("bob", recipientSink)
	req.NoError(err)

	f.directory.EXPECT().ChatOf(gomock.Any(), "c1").
		Return(directChat("c1", "alice", "bob"), nil)
	f.store.EXPECT().Persist(gomock.Any(), "c1", "alice", "hello", domain.KindText).
		Return(contract.PersistedMessage{}, errors.ErrPersistence)

	// When persistence fails
	f.router.Handle(context.Background(), domain.SubmitMessage{
		ChatID:        "c1",
		SenderID:      "alice",
		Body:          "hello",
		Kind:          domain.KindText,
		CorrelationID: "corr-1",
		Origin:        origin,
	})

	// Then the sender gets a failure with the correlation id
	failed, ok := senderSink.next(t).(event.MessageFailed)
	req.True(ok)
	req.Equal("corr-1", failed.CorrelationID)
	req.Equal(errors.ErrPersistence.Error(), failed.Reason)

	// And nothing at all was fanned out
	senderSink.quiet(t)
	recipientSink.quiet(t)
}

func TestRouter_Invalid_Submission_Never_Touches_The_Store(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	senderSink := newChanSink()
	origin, err := f.registry.Join("alice", senderSink)
	req.NoError(err)

	// When the body is empty, the store and directory stay untouched
	f.router.Handle(context.Background(), domain.SubmitMessage{
		ChatID:        "c1",
		SenderID:      "alice",
		Body:          "",
		CorrelationID: "corr-1",
		Origin:        origin,
	})

	failed, ok := senderSink.next(t).(event.MessageFailed)
	req.True(ok)
	req.Equal(errors.ErrInvalidMessage.Error(), failed.Reason)
}

func TestRouter_NonParticipant_Is_Rejected(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	senderSink := newChanSink()
	origin, err := f.registry.Join("mallory", senderSink)
	req.NoError(err)

	f.directory.EXPECT().ChatOf(gomock.Any(), "c1").
		Return(directChat("c1", "alice", "bob"), nil)

	f.router.Handle(context.Background(), domain.SubmitMessage{
		ChatID:        "c1",
		SenderID:      "mallory",
		Body:          "let me in",
		Kind:          domain.KindText,
		CorrelationID: "corr-1",
		Origin:        origin,
	})

	failed, ok := senderSink.next(t).(event.MessageFailed)
	req.True(ok)
	req.Equal(errors.ErrNotParticipant.Error(), failed.Reason)
}

func TestRouter_Offline_Recipient_Gets_A_Push_Preview(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	senderSink := newChanSink()
	origin, err := f.registry.Join("alice", senderSink)
	req.NoError(err)
	// bob has no live session

	f.directory.EXPECT().ChatOf(gomock.Any(), "c1").
		Return(directChat("c1", "alice", "bob"), nil)
	f.store.EXPECT().Persist(gomock.Any(), "c1", "alice", "a body longer than ten runes", domain.KindText).
		Return(contract.PersistedMessage{ServerID: uuid.New(), CreatedAt: time.Now().UTC()}, nil)

	// The preview is truncated to the configured length
	pushed := make(chan string, 1)
	f.notifier.EXPECT().NotifyOffline(gomock.Any(), "bob", gomock.Any()).
		Do(func(_ context.Context, _ string, preview string) {
			pushed <- preview
		})

	f.router.Handle(context.Background(), domain.SubmitMessage{
		ChatID:        "c1",
		SenderID:      "alice",
		Body:          "a body longer than ten runes",
		Kind:          domain.KindText,
		CorrelationID: "corr-1",
		Origin:        origin,
	})

	select {
	case preview := <-pushed:
		req.Equal("a body lon…", preview)
	case <-time.After(time.Second):
		t.Fatal("expected an offline push")
	}
}

func TestRouter_Muted_Offline_Recipient_Is_Not_Pushed(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	senderSink := newChanSink()
	origin, err := f.registry.Join("alice", senderSink)
	req.NoError(err)

	chat := directChat("c1", "alice", "bob")
	chat.Muted = map[string]bool{"bob": true}
	f.directory.EXPECT().ChatOf(gomock.Any(), "c1").Return(chat, nil)
	f.store.EXPECT().Persist(gomock.Any(), "c1", "alice", "psst", domain.KindText).
		Return(contract.PersistedMessage{ServerID: uuid.New(), CreatedAt: time.Now().UTC()}, nil)
	// No NotifyOffline expectation: a push would fail the test.

	f.router.Handle(context.Background(), domain.SubmitMessage{
		ChatID:        "c1",
		SenderID:      "alice",
		Body:          "psst",
		Kind:          domain.KindText,
		CorrelationID: "corr-1",
		Origin:        origin,
	})

	_, ok := senderSink.next(t).(event.MessageAcked)
	req.True(ok)
}

func TestRouter_Persistence_Happens_Before_Any_Fanout(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	var mu sync.Mutex
	var order []string

	senderSink := newChanSink()
	origin, err := f.registry.Join("alice", senderSink)
	req.NoError(err)

	f.directory.EXPECT().ChatOf(gomock.Any(), "c1").
		Return(directChat("c1", "alice", "bob"), nil)
	f.store.EXPECT().Persist(gomock.Any(), "c1", "alice", "hello", domain.KindText).
		DoAndReturn(func(context.Context, string, string, string, domain.MessageKind) (contract.PersistedMessage, error) {
			time.Sleep(50 * time.Millisecond)
			mu.Lock()
			order = append(order, "persist")
			mu.Unlock()
			return contract.PersistedMessage{ServerID: uuid.New(), CreatedAt: time.Now().UTC()}, nil
		})

	f.notifier.EXPECT().NotifyOffline(gomock.Any(), "bob", gomock.Any())

	// A permanent sink observes fan-out synchronously, so its position in
	// the recorded order proves the durability-before-visibility rule.
	f.router.Add(contract.EventSink(sinkFunc(func(_ context.Context, _ event.DomainEvent) error {
		mu.Lock()
		order = append(order, "fanout")
		mu.Unlock()
		return nil
	})))

	f.router.Handle(context.Background(), domain.SubmitMessage{
		ChatID:        "c1",
		SenderID:      "alice",
		Body:          "hello",
		Kind:          domain.KindText,
		CorrelationID: "corr-1",
		Origin:        origin,
	})

	mu.Lock()
	defer mu.Unlock()
	req.Equal([]string{"persist", "fanout"}, order)
}

type sinkFunc func(ctx context.Context, e event.DomainEvent) error

func (f sinkFunc) Consume(ctx context.Context, e event.DomainEvent) error { return f(ctx, e) }

func TestRouter_Censored_Body_Is_Persisted_And_Fanned_Out(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, upperFilter{})

	senderSink := newChanSink()
	recipientSink := newChanSink()
	origin, err := f.registry.Join("alice", senderSink)
	req.NoError(err)
	_, err = f.registry.Join("bob", recipientSink)
	req.NoError(err)

	f.directory.EXPECT().ChatOf(gomock.Any(), "c1").
		Return(directChat("c1", "alice", "bob"), nil)

	// The filtered body is what gets stored, so history and fan-out agree
	f.store.EXPECT().Persist(gomock.Any(), "c1", "alice", "HELLO", domain.KindText).
		Return(contract.PersistedMessage{ServerID: uuid.New(), CreatedAt: time.Now().UTC()}, nil)

	f.router.Handle(context.Background(), domain.SubmitMessage{
		ChatID:        "c1",
		SenderID:      "alice",
		Body:          "hello",
		Kind:          domain.KindText,
		CorrelationID: "corr-1",
		Origin:        origin,
	})

	msg, ok := recipientSink.next(t).(event.MessageAccepted)
	req.True(ok)
	req.Equal("HELLO", msg.Body)
}

func TestRouter_Timeline_Projection_Observes_Accepted_Messages(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	timeline := projection.NewTimeline()
	f.router.Add(timeline)

	senderSink := newChanSink()
	origin, err := f.registry.Join("alice", senderSink)
	req.NoError(err)

	serverID := uuid.New()
	f.directory.EXPECT().ChatOf(gomock.Any(), "c1").
		Return(directChat("c1", "alice", "bob"), nil)
	f.store.EXPECT().Persist(gomock.Any(), "c1", "alice", "hello", domain.KindText).
		Return(contract.PersistedMessage{ServerID: serverID, CreatedAt: time.Now().UTC()}, nil)
	f.notifier.EXPECT().NotifyOffline(gomock.Any(), "bob", gomock.Any())

	f.router.Handle(context.Background(), domain.SubmitMessage{
		ChatID:        "c1",
		SenderID:      "alice",
		Body:          "hello",
		Kind:          domain.KindText,
		CorrelationID: "corr-1",
		Origin:        origin,
	})

	// Permanent sinks are fed synchronously, so the projection already
	// holds the accepted message when Handle returns
	messages := timeline.Messages("c1")
	req.Len(messages, 1)
	req.Equal(serverID, messages[0].ID)
	req.Equal("hello", messages[0].Body)
	req.Equal(domain.StateSent, messages[0].State)
}

func TestRouter_Empty_Kind_Defaults_To_Text(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	senderSink := newChanSink()
	origin, err := f.registry.Join("alice", senderSink)
	req.NoError(err)

	f.directory.EXPECT().ChatOf(gomock.Any(), "c1").
		Return(directChat("c1", "alice", "bob"), nil)
	f.store.EXPECT().Persist(gomock.Any(), "c1", "alice", "hello", domain.KindText).
		Return(contract.PersistedMessage{ServerID: uuid.New(), CreatedAt: time.Now().UTC()}, nil)
	f.notifier.EXPECT().NotifyOffline(gomock.Any(), "bob", gomock.Any())

	f.router.Handle(context.Background(), domain.SubmitMessage{
		ChatID:        "c1",
		SenderID:      "alice",
		Body:          "hello",
		CorrelationID: "corr-1",
		Origin:        origin,
	})

	_, ok := senderSink.next(t).(event.MessageAcked)
	req.True(ok)
}

func TestRouter_Submit_Rejects_When_The_Queue_Is_Full(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	router := NewRouter(testLogger(), NewRegistry(0),
		mocks.NewMockIMessageStore(ctrl), mocks.NewMockIChatDirectory(ctrl),
		mocks.NewMockINotifier(ctrl), nil, 1, time.Second, 10)

	// Nobody drains the queue: the first submission fills it
	req.NoError(router.Submit(domain.SubmitMessage{ChatID: "c1"}))

	// The second one is refused immediately instead of blocking
	req.ErrorIs(router.Submit(domain.SubmitMessage{ChatID: "c1"}), errors.ErrPersistence)
}

func TestRouter_Typing_Relay_Skips_The_Typist(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	aliceSink := newChanSink()
	bobSink := newChanSink()
	_, err := f.registry.Join("alice", aliceSink)
	req.NoError(err)
	_, err = f.registry.Join("bob", bobSink)
	req.NoError(err)

	f.directory.EXPECT().ChatOf(gomock.Any(), "c1").
		Return(directChat("c1", "alice", "bob"), nil)

	// When alice starts typing
	f.router.Relay(context.Background(), event.TypingChanged{
		Chat: "c1", UserID: "alice", IsTyping: true,
	})

	// Then bob hears about it and alice does not
	typing, ok := bobSink.next(t).(event.TypingChanged)
	req.True(ok)
	req.Equal("alice", typing.UserID)
	req.True(typing.IsTyping)
	aliceSink.quiet(t)
}

func TestRouter_Independent_Correlations_Are_Acked_Separately(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, nil)

	senderSink := newChanSink()
	origin, err := f.registry.Join("alice", senderSink)
	req.NoError(err)

	f.directory.EXPECT().ChatOf(gomock.Any(), "c1").
		Return(directChat("c1", "alice", "bob"), nil).Times(3)
	f.store.EXPECT().Persist(gomock.Any(), "c1", "alice", gomock.Any(), domain.KindText).
		DoAndReturn(func(context.Context, string, string, string, domain.MessageKind) (contract.PersistedMessage, error) {
			return contract.PersistedMessage{ServerID: uuid.New(), CreatedAt: time.Now().UTC()}, nil
		}).Times(3)
	f.notifier.EXPECT().NotifyOffline(gomock.Any(), "bob", gomock.Any()).Times(3)

	// When three messages are in flight at once
	for _, corr := range []string{"corr-a", "corr-b", "corr-c"} {
		f.router.Handle(context.Background(), domain.SubmitMessage{
			ChatID:        "c1",
			SenderID:      "alice",
			Body:          "msg " + corr,
			Kind:          domain.KindText,
			CorrelationID: corr,
			Origin:        origin,
		})
	}

	// Then each ack names its own correlation id
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		ack, ok := senderSink.next(t).(event.MessageAcked)
		req.True(ok)
		seen[ack.CorrelationID] = true
	}
	req.Len(seen, 3)
}
