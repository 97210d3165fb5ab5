package outbox

import (
	"context"
	"log/slog"
	"time"
)

// Watchdog periodically expires pending entries that never got an ack or
// an error. It runs as a supervised worker on the client side.
type Watchdog struct {
	log      *slog.Logger
	outbox   *Outbox
	interval time.Duration
}

func NewWatchdog(log *slog.Logger, outbox *Outbox, interval time.Duration) *Watchdog {
	return &Watchdog{log: log, outbox: outbox, interval: interval}
}

func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping outbox watchdog")
			return ctx.Err()
		case <-ticker.C:
			if n := w.outbox.expire(time.Now().UTC()); n > 0 {
				w.log.Debug("Expired pending entries", "count", n)
			}
		}
	}
}
