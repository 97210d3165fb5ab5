package outbox

import (
	"messenger-lab/domain"
)

// matchByContent is the degraded reconciliation path for server messages
// carrying no correlation id (legacy senders, plain REST submissions).
// It merges only on a conservative match: same chat, same sender, same
// body, entry still pending and submitted within the recency window of
// the server timestamp. The oldest candidate wins. A miss leaves a
// harmless duplicate in the timeline; this is accepted, not papered over.
// Callers hold the outbox mutex.
func (o *Outbox) matchByContent(msg domain.Message) *domain.Message {
	var oldest *domain.Message
	for _, entry := range o.timelines[msg.ChatID] {
		if entry.State != domain.StateSending {
			continue
		}
		if entry.SenderID != msg.SenderID || entry.Body != msg.Body {
			continue
		}
		gap := msg.CreatedAt.Sub(entry.CreatedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap > o.matchWindow {
			continue
		}
		if oldest == nil || entry.CreatedAt.Before(oldest.CreatedAt) {
			oldest = entry
		}
	}
	return oldest
}
