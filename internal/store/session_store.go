package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/csvpilot/csvpilot/internal/domain"
)

// SessionStore is an in-memory, TTL-keyed store of session records.
//
// Expiry is lazy: Get treats a session past its TTL as absent whether or
// not the sweep has reclaimed it, so correctness never depends on the
// sweep having run. The sweep only bounds memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session

	ttl    time.Duration
	logger *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewSessionStore creates a session store. A positive sweepInterval starts
// a background sweep reclaiming expired records; Close stops it.
func NewSessionStore(ttl, sweepInterval time.Duration, logger *zap.Logger) *SessionStore {
	if ttl <= 0 {
		ttl = domain.DefaultSessionTTL
	}
	s := &SessionStore{
		sessions: make(map[string]*domain.Session),
		ttl:      ttl,
		logger:   logger,
		stop:     make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.sweepLoop(sweepInterval)
	}
	return s
}

// Create registers a new session bound to a remote thread. The TTL is
// fixed at creation and never extended by reads.
func (s *SessionStore) Create(threadID string) *domain.Session {
	now := time.Now()
	session := &domain.Session{
		ID:           uuid.New().String(),
		ThreadID:     threadID,
		CreatedAt:    now,
		TTLExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	copied := *session
	return &copied
}

// Get returns a copy of the session, or false if it is unknown or expired.
func (s *SessionStore) Get(id string) (*domain.Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || session.Expired(time.Now()) {
		return nil, false
	}
	copied := *session
	return &copied, true
}

// Update applies fn to the session under the store lock, giving callers an
// atomic read-modify-write. It returns false when the session is unknown
// or expired; fn is not called in that case.
func (s *SessionStore) Update(id string, fn func(*domain.Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || session.Expired(time.Now()) {
		return false
	}
	fn(session)
	return true
}

// Delete removes the session immediately, bypassing the TTL.
func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// Len reports the number of physically present records, expired or not.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the background sweep.
func (s *SessionStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *SessionStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.sweepExpired(); n > 0 && s.logger != nil {
				s.logger.Info("swept expired sessions", zap.Int("count", n))
			}
		}
	}
}

// sweepExpired reclaims memory for expired records. Victims are collected
// under a read lock first so unrelated access is not blocked for the whole
// sweep.
func (s *SessionStore) sweepExpired() int {
	now := time.Now()

	s.mu.RLock()
	var victims []string
	for id, session := range s.sessions {
		if session.Expired(now) {
			victims = append(victims, id)
		}
	}
	s.mu.RUnlock()

	if len(victims) == 0 {
		return 0
	}

	s.mu.Lock()
	removed := 0
	for _, id := range victims {
		if session, ok := s.sessions[id]; ok && session.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	s.mu.Unlock()
	return removed
}
