package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultSessionTTL    = 24 * time.Hour
	DefaultSessionCookie = "session"
)

// Sessions maps opaque session tokens to user ids.
// Get returns "" with a nil error when the token is unknown or expired.
type Sessions interface {
	Create(ctx context.Context, userID string) (string, error)
	Get(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
}

func newSessionID() string {
	return uuid.New().String()
}

// SessionStore wraps Redis for session management.
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{rdb: rdb, ttl: ttl}
}

// Create stores a new session mapping sessionID -> userID.
func (s *SessionStore) Create(ctx context.Context, userID string) (string, error) {
	sid := newSessionID()
	err := s.rdb.Set(ctx, "session:"+sid, userID, s.ttl).Err()
	return sid, err
}

// Get returns the userID for a session, or "" if not found / expired.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (string, error) {
	val, err := s.rdb.Get(ctx, "session:"+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

// Delete removes a session.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, "session:"+sessionID).Err()
}

type memSession struct {
	userID    string
	expiresAt time.Time
}

// MemorySessionStore keeps sessions in process memory. Entries expire after
// the TTL; Run evicts them periodically.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memSession
	ttl      time.Duration
	now      func() time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemorySessionStore{
		sessions: make(map[string]memSession),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemorySessionStore) Create(ctx context.Context, userID string) (string, error) {
	sid := newSessionID()
	s.mu.Lock()
	s.sessions[sid] = memSession{userID: userID, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return sid, nil
}

func (s *MemorySessionStore) Get(ctx context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return "", nil
	}
	if !s.now().Before(sess.expiresAt) {
		delete(s.sessions, sessionID)
		return "", nil
	}
	return sess.userID, nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

// Evict drops every expired session and returns how many were removed.
func (s *MemorySessionStore) Evict() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for sid, sess := range s.sessions {
		if !now.Before(sess.expiresAt) {
			delete(s.sessions, sid)
			n++
		}
	}
	return n
}

// Len returns the number of stored sessions, expired or not.
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run calls Evict every interval until ctx is cancelled.
func (s *MemorySessionStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Evict()
		}
	}
}
