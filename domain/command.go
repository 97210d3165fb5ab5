package domain

import "time"

type Command interface {
	Chat() string
}

// SubmitMessage is the single submission path into the delivery router,
// whether it arrived over the socket or the legacy REST endpoint.
// Origin is the session that sent it; it receives the ack or the error,
// never the fan-out copy. Origin is empty for REST submissions.
type SubmitMessage struct {
	ChatID        string
	SenderID      string
	Body          string
	Kind          MessageKind
	CorrelationID string
	Origin        SessionID
	SubmittedAt   time.Time
}

func (c SubmitMessage) Chat() string {
	return c.ChatID
}
