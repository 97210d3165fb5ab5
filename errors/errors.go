package errors

import "fmt"

var (
	ErrInvalidMessage     = fmt.Errorf("invalid message submission")
	ErrNotParticipant     = fmt.Errorf("sender is not a chat participant")
	ErrInvalidChat        = fmt.Errorf("invalid chat")
	ErrPersistence        = fmt.Errorf("message persistence failed")
	ErrTooManySessions    = fmt.Errorf("too many concurrent sessions for user")
	ErrReconciliationMiss = fmt.Errorf("no pending entry for correlation id")
	ErrInvalidToken       = fmt.Errorf("invalid identity token")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrEmptyWords         = fmt.Errorf("no censored words have been found")
)
