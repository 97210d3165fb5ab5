package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeliveryState_ForwardPath(t *testing.T) {
	req := require.New(t)
	msg := Message{State: StateSending}

	// When the message walks the happy path
	req.True(msg.Advance(StateSent))
	req.True(msg.Advance(StateDelivered))
	req.True(msg.Advance(StateRead))

	// Then it ends read and cannot move anymore
	req.Equal(StateRead, msg.State)
	req.False(msg.Advance(StateDelivered))
	req.Equal(StateRead, msg.State)
}

func TestDeliveryState_NoRegression(t *testing.T) {
	req := require.New(t)
	msg := Message{State: StateDelivered}

	// A delivered message can never go back to sent or sending
	req.False(msg.Advance(StateSent))
	req.False(msg.Advance(StateSending))
	req.Equal(StateDelivered, msg.State)
}

func TestDeliveryState_FailureIsTerminal(t *testing.T) {
	req := require.New(t)
	msg := Message{State: StateSending}

	req.True(msg.Advance(StateFailed))

	// A failed entry is resubmitted as a new message, never revived
	req.False(msg.Advance(StateSent))
	req.False(msg.Advance(StateSending))
	req.Equal(StateFailed, msg.State)
}

func TestDeliveryState_SkippingStatesIsRefused(t *testing.T) {
	req := require.New(t)
	msg := Message{State: StateSending}

	// sending cannot jump straight to delivered or read
	req.False(msg.Advance(StateDelivered))
	req.False(msg.Advance(StateRead))
	req.Equal(StateSending, msg.State)
}

func TestParseKind(t *testing.T) {
	req := require.New(t)

	kind, ok := ParseKind("")
	req.True(ok)
	req.Equal(KindText, kind)

	kind, ok = ParseKind("image")
	req.True(ok)
	req.Equal(KindImage, kind)

	_, ok = ParseKind("hologram")
	req.False(ok)
}

func TestChat_Validate(t *testing.T) {
	req := require.New(t)

	// Direct chats carry exactly two participants
	req.Error(Chat{ID: "c1", Type: ChatDirect, Participants: []string{"alice"}}.Validate())
	req.NoError(Chat{ID: "c1", Type: ChatDirect, Participants: []string{"alice", "bob"}}.Validate())

	req.Error(Chat{Type: ChatGroup, Participants: []string{"alice"}}.Validate())
	req.NoError(Chat{ID: "g1", Type: ChatGroup, Participants: []string{"alice", "bob", "clara"}}.Validate())
}
