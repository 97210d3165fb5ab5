package services

import (
	"context"
	"log/slog"
)

// LogNotifier stands in for the push gateway: the core only decides WHEN
// an offline participant should be reached, not how. Swap this for a real
// push client without touching the router.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyOffline(_ context.Context, userID, preview string) {
	n.log.Info("Offline push requested", "user_id", userID, "preview", preview)
}
