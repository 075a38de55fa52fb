package checkout

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clothesfashion/backend-checkout/internal/common"
	"github.com/clothesfashion/backend-checkout/internal/obs"
)

// Store keeps active checkout sessions in memory. Sessions are transient by
// design; an expired or lost session simply restarts checkout from the cart.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]string
	ttl      time.Duration
}

// NewStore builds a session store with the given session lifetime.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Store{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]string),
		ttl:      ttl,
	}
}

// Create registers a fresh session for the user, replacing any previous one.
func (st *Store) Create(userID, username string) *Session {
	s := newSession(uuid.NewString(), st.ttl)
	s.UserID = userID
	s.Username = username

	st.mu.Lock()
	defer st.mu.Unlock()
	if prev, ok := st.byUser[userID]; ok {
		delete(st.sessions, prev)
	}
	st.sessions[s.ID] = s
	st.byUser[userID] = s.ID
	obs.SetSessionsActive(float64(len(st.sessions)))
	return s
}

// Get returns the session when it exists, belongs to the user, and has not
// expired. Ownership mismatches read as not found.
func (st *Store) Get(id, userID string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok || s.UserID != userID {
		return nil, common.NewAppError(common.CodeNotFound, "checkout session not found", http.StatusNotFound, nil)
	}
	if s.expired(time.Now().UTC()) {
		st.Delete(id)
		return nil, common.NewAppError(common.CodeNotFound, "checkout session expired", http.StatusNotFound, nil)
	}
	return s, nil
}

// Delete removes a session.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		delete(st.sessions, id)
		if st.byUser[s.UserID] == id {
			delete(st.byUser, s.UserID)
		}
	}
	obs.SetSessionsActive(float64(len(st.sessions)))
}

// Sweep removes expired sessions. Run it periodically from main.
func (st *Store) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			st.mu.Lock()
			for id, s := range st.sessions {
				if s.expired(now) {
					delete(st.sessions, id)
					if st.byUser[s.UserID] == id {
						delete(st.byUser, s.UserID)
					}
				}
			}
			obs.SetSessionsActive(float64(len(st.sessions)))
			st.mu.Unlock()
		}
	}
}
