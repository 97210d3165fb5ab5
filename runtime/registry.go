// Package runtime hosts the live parts of the delivery core: the session
// registry, the presence tracker and the delivery router. It coordinates
// connections and fan-out without containing domain rules.
package runtime

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"messenger-lab/contract"
	"messenger-lab/domain"
	"messenger-lab/errors"
)

type sessionEntry struct {
	session domain.Session
	sink    contract.EventSink
}

// Registry is the single shared mutable resource of the server side.
// All membership mutations go through its mutex; reads hand out copies,
// never the internal maps.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[domain.SessionID]sessionEntry
	byUser     map[string]map[domain.SessionID]struct{}
	maxPerUser int
	listeners  []contract.PresenceListener

	// notifyMu is held from before a membership mutation until its
	// listeners have been told, so the offline edge of a join/leave pair
	// can never overtake its online edge. Listeners may read the registry:
	// they run outside mu.
	notifyMu sync.Mutex
}

func NewRegistry(maxSessionsPerUser int) *Registry {
	return &Registry{
		sessions:   make(map[domain.SessionID]sessionEntry),
		byUser:     make(map[string]map[domain.SessionID]struct{}),
		maxPerUser: maxSessionsPerUser,
	}
}

// AddListener registers an observer for online/offline edges.
// Listeners are invoked outside the registry lock.
func (r *Registry) AddListener(l contract.PresenceListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Join registers a new session for userID and returns its handle.
// The online transition fires only when this is the user's first live
// session. Join fails only on resource exhaustion.
func (r *Registry) Join(userID string, sink contract.EventSink) (domain.SessionID, error) {
	id := domain.SessionID(uuid.NewString())

	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	owned := r.byUser[userID]
	if r.maxPerUser > 0 && len(owned) >= r.maxPerUser {
		r.mu.Unlock()
		return "", errors.ErrTooManySessions
	}
	if owned == nil {
		owned = make(map[domain.SessionID]struct{})
		r.byUser[userID] = owned
	}
	wentOnline := len(owned) == 0
	owned[id] = struct{}{}
	r.sessions[id] = sessionEntry{
		session: domain.Session{ID: id, UserID: userID, JoinedAt: time.Now().UTC()},
		sink:    sink,
	}
	listeners := r.listeners
	r.mu.Unlock()

	if wentOnline {
		for _, l := range listeners {
			l.PresenceChanged(userID, true)
		}
	}
	return id, nil
}

// Leave removes a session. Removing an unknown or already removed handle
// is a no-op. The offline transition fires only when the user's last
// session disappears.
func (r *Registry) Leave(id domain.SessionID) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	entry, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, id)
	userID := entry.session.UserID
	wentOffline := false
	if owned, ok := r.byUser[userID]; ok {
		delete(owned, id)
		if len(owned) == 0 {
			delete(r.byUser, userID)
			wentOffline = true
		}
	}
	listeners := r.listeners
	r.mu.Unlock()

	if wentOffline {
		for _, l := range listeners {
			l.PresenceChanged(userID, false)
		}
	}
}

// SessionsFor returns a point-in-time copy of the user's live sessions.
func (r *Registry) SessionsFor(userID string) []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owned, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	res := make([]domain.Session, 0, len(owned))
	for id := range owned {
		res = append(res, r.sessions[id].session)
	}
	return res
}

// Sink resolves the transport sink bound to a session handle.
func (r *Registry) Sink(id domain.SessionID) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return entry.sink, true
}

// IsOnline reports whether the user owns at least one live session.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// AllSessions returns a snapshot of every live session, for broadcasts.
func (r *Registry) AllSessions() []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]domain.Session, 0, len(r.sessions))
	for _, entry := range r.sessions {
		res = append(res, entry.session)
	}
	return res
}
