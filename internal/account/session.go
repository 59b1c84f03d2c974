package account

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alecgard/liftline/internal/auth"
	"github.com/alecgard/liftline/internal/model"
)

// ErrSessionNotFound is returned for unknown, revoked and expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// DefaultSessionDuration is the absolute session lifetime.
const DefaultSessionDuration = 7 * 24 * time.Hour

// Session is the server-held copy of a logged-in member. It never carries
// the password hash.
type Session struct {
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Role           string    `json:"role"`
	Phone          string    `json:"phone,omitempty"`
	PushToken      string    `json:"pushToken,omitempty"`
	LoginTimestamp time.Time `json:"loginTimestamp"`
}

// Member converts the session to the request identity.
func (s Session) Member() *auth.Member {
	return &auth.Member{
		Email:     s.Email,
		Name:      s.Name,
		Role:      s.Role,
		Phone:     s.Phone,
		PushToken: s.PushToken,
	}
}

// SessionStore persists sessions by token hash.
type SessionStore interface {
	Put(ctx context.Context, tokenHash string, s Session, ttl time.Duration) error
	Get(ctx context.Context, tokenHash string) (Session, error)
	Delete(ctx context.Context, tokenHash string) error
}

// Sessions issues and resolves session tokens. Sessions expire a fixed
// duration after login regardless of activity.
type Sessions struct {
	store    SessionStore
	duration time.Duration
	now      func() time.Time
}

// NewSessions creates a session manager. A non-positive duration selects
// DefaultSessionDuration.
func NewSessions(store SessionStore, duration time.Duration) *Sessions {
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	return &Sessions{store: store, duration: duration, now: time.Now}
}

// Create starts a session for m and returns the plaintext token.
func (s *Sessions) Create(ctx context.Context, m model.TeamMember) (string, Session, error) {
	token, err := auth.GenerateToken()
	if err != nil {
		return "", Session{}, err
	}
	sess := Session{
		Email:          m.Email,
		Name:           m.DisplayName(),
		Role:           m.RoleOrDefault(),
		Phone:          m.Phone.String(),
		PushToken:      m.PushToken,
		LoginTimestamp: s.now().UTC(),
	}
	if err := s.store.Put(ctx, auth.HashToken(token), sess, s.duration); err != nil {
		return "", Session{}, fmt.Errorf("creating session: %w", err)
	}
	return token, sess, nil
}

// Get resolves a plaintext token. Expired sessions are deleted and reported
// as ErrSessionNotFound.
func (s *Sessions) Get(ctx context.Context, token string) (Session, error) {
	hash := auth.HashToken(token)
	sess, err := s.store.Get(ctx, hash)
	if err != nil {
		return Session{}, err
	}
	if !s.now().Before(sess.LoginTimestamp.Add(s.duration)) {
		_ = s.store.Delete(ctx, hash)
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// Update applies fn to the session and stores it for its remaining lifetime.
func (s *Sessions) Update(ctx context.Context, token string, fn func(*Session)) error {
	sess, err := s.Get(ctx, token)
	if err != nil {
		return err
	}
	fn(&sess)
	remaining := sess.LoginTimestamp.Add(s.duration).Sub(s.now())
	return s.store.Put(ctx, auth.HashToken(token), sess, remaining)
}

// Revoke deletes the session.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	return s.store.Delete(ctx, auth.HashToken(token))
}

// LookupSession implements auth.SessionLookup.
func (s *Sessions) LookupSession(ctx context.Context, token string) (*auth.Member, error) {
	sess, err := s.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	return sess.Member(), nil
}

// MemorySessionStore keeps sessions in process memory.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	now      func() time.Time
}

type memorySession struct {
	session   Session
	expiresAt time.Time
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]memorySession), now: time.Now}
}

func (m *MemorySessionStore) Put(_ context.Context, tokenHash string, s Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[tokenHash] = memorySession{session: s, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, tokenHash string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[tokenHash]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if !m.now().Before(ms.expiresAt) {
		delete(m.sessions, tokenHash)
		return Session{}, ErrSessionNotFound
	}
	return ms.session, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, tokenHash)
	return nil
}

// CleanExpired removes expired sessions and returns how many were removed.
func (m *MemorySessionStore) CleanExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, ms := range m.sessions {
		if !now.Before(ms.expiresAt) {
			delete(m.sessions, k)
			n++
		}
	}
	return n
}
