package domain

import "time"

// SessionID is an opaque handle for one live transport connection.
type SessionID string

// Session binds one connection to one user. A user may own several
// sessions at once (multi-device). Sessions are owned exclusively by
// the registry; nothing else mutates them.
type Session struct {
	ID       SessionID
	UserID   string
	JoinedAt time.Time
}
