package domain

import "messenger-lab/errors"

type ChatType string

const (
	ChatDirect ChatType = "direct"
	ChatGroup  ChatType = "group"
)

// Chat is read-mostly reference data: the core only needs it to resolve
// fan-out targets and mute preferences. Membership changes happen in the
// external chat management service, never here.
type Chat struct {
	ID           string
	Type         ChatType
	Participants []string
	Muted        map[string]bool // participant id -> suppress offline push
}

func (c Chat) Validate() error {
	if c.ID == "" || len(c.Participants) == 0 {
		return errors.ErrInvalidChat
	}
	if c.Type == ChatDirect && len(c.Participants) != 2 {
		return errors.ErrInvalidChat
	}
	return nil
}

// HasParticipant reports membership without exposing the participant slice.
func (c Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// IsMuted reports whether the participant suppressed notifications for this chat.
func (c Chat) IsMuted(userID string) bool {
	return c.Muted[userID]
}
