package account

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alecgard/liftline/internal/auth"
	"github.com/alecgard/liftline/internal/docstore"
	"github.com/alecgard/liftline/internal/model"
)

func newTestStore(t *testing.T) (*Store, *docstore.MemoryStore) {
	t.Helper()
	docs := docstore.NewMemoryStore()
	return NewStore(docs), docs
}

func TestCreateAndLogin(t *testing.T) {
	ctx := context.Background()
	s, docs := newTestStore(t)

	m, err := s.Create(ctx, CreateInput{Email: "ravi@example.com", Password: "correct-horse", Name: "Ravi"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.Role != model.RoleInstaller {
		t.Errorf("expected default role installer, got %q", m.Role)
	}

	doc, _ := docs.Get(ctx, "team/ravi@example.com")
	if _, ok := doc.Data["password"]; ok {
		t.Error("plaintext password must not be stored")
	}
	if h, _ := doc.Data["passwordHash"].(string); !strings.HasPrefix(h, "$2") {
		t.Errorf("expected bcrypt hash, got %q", h)
	}

	got, err := s.Login(ctx, "ravi@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.Name != "Ravi" || got.Email != "ravi@example.com" {
		t.Errorf("unexpected member %+v", got)
	}

	if _, err := s.Create(ctx, CreateInput{Email: "ravi@example.com", Password: "another-pass", Name: "R"}); !errors.Is(err, ErrAccountExists) {
		t.Errorf("expected ErrAccountExists, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		in   CreateInput
		want string
	}{
		{"missing email", CreateInput{Password: "correct-horse", Name: "Ravi"}, "email is required"},
		{"bad email", CreateInput{Email: "ravi", Password: "correct-horse", Name: "Ravi"}, "email must be a valid email"},
		{"short password", CreateInput{Email: "ravi@example.com", Password: "short", Name: "Ravi"}, "password must be at least 8 characters"},
		{"unknown role", CreateInput{Email: "ravi@example.com", Password: "correct-horse", Name: "Ravi", Role: "owner"}, "role must be one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, docs := newTestStore(t)
			_, err := s.Create(context.Background(), tt.in)
			if !errors.Is(err, model.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
			if _, err := docs.Get(context.Background(), "team/ravi@example.com"); !errors.Is(err, docstore.ErrNotFound) {
				t.Error("nothing should be written")
			}
		})
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	s, docs := newTestStore(t)
	if _, err := s.Create(ctx, CreateInput{Email: "ravi@example.com", Password: "correct-horse", Name: "Ravi"}); err != nil {
		t.Fatal(err)
	}
	_ = docs.Set(ctx, "team/old@example.com", map[string]any{"name": "Old", "password": "plaintext1"})
	_ = docs.Set(ctx, "team/nohash@example.com", map[string]any{"name": "No Hash"})

	tests := []struct {
		name, email, password string
	}{
		{"wrong password", "ravi@example.com", "wrong-horse"},
		{"unknown account", "nobody@example.com", "correct-horse"},
		{"legacy plaintext", "old@example.com", "plaintext1"},
		{"no hash", "nohash@example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Login(ctx, tt.email, tt.password)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestSetPasswordRekeysLegacyAccount(t *testing.T) {
	ctx := context.Background()
	s, docs := newTestStore(t)
	_ = docs.Set(ctx, "team/old@example.com", map[string]any{"name": "Old", "password": "plaintext1"})

	if err := s.SetPassword(ctx, "old@example.com", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("expected ErrWeakPassword, got %v", err)
	}
	if err := s.SetPassword(ctx, "old@example.com", "new-password"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	doc, _ := docs.Get(ctx, "team/old@example.com")
	if doc.Data["password"] != nil {
		t.Errorf("legacy password not cleared: %v", doc.Data["password"])
	}
	if _, err := s.Login(ctx, "old@example.com", "new-password"); err != nil {
		t.Errorf("Login after re-key: %v", err)
	}
	if err := s.SetPassword(ctx, "missing@example.com", "new-password"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegisterPushToken(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	if _, err := s.Create(ctx, CreateInput{Email: "ravi@example.com", Password: "correct-horse", Name: "Ravi"}); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterPushToken(ctx, "ravi@example.com", "fcm-token"); err != nil {
		t.Fatal(err)
	}
	m, _ := s.Get(ctx, "ravi@example.com")
	if m.PushToken != "fcm-token" {
		t.Errorf("push token = %q", m.PushToken)
	}
	if err := s.RegisterPushToken(ctx, "nobody@example.com", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCustomerPushToken(t *testing.T) {
	ctx := context.Background()
	s, docs := newTestStore(t)
	_ = docs.Set(ctx, "Users/owner@example.com", map[string]any{"name": "Anita", "pushToken": "owner-token"})

	tok, err := s.CustomerPushToken(ctx, "owner@example.com")
	if err != nil || tok != "owner-token" {
		t.Errorf("got %q, %v", tok, err)
	}
	tok, err = s.CustomerPushToken(ctx, "ghost@example.com")
	if err != nil || tok != "" {
		t.Errorf("missing customer: got %q, %v", tok, err)
	}
}

func TestSessionsLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	store := NewMemorySessionStore()
	store.now = func() time.Time { return now }
	sessions := NewSessions(store, 7*24*time.Hour)
	sessions.now = func() time.Time { return now }

	token, sess, err := sessions.Create(ctx, model.TeamMember{Email: "ravi@example.com", Name: "Ravi", PasswordHash: "$2a$..."})
	if err != nil {
		t.Fatal(err)
	}
	if sess.Role != model.RoleInstaller || !sess.LoginTimestamp.Equal(now) {
		t.Errorf("unexpected session %+v", sess)
	}

	if _, err := store.Get(ctx, token); !errors.Is(err, ErrSessionNotFound) {
		t.Error("sessions must be stored by token hash, not plaintext")
	}

	m, err := sessions.LookupSession(ctx, token)
	if err != nil || m.Email != "ravi@example.com" {
		t.Fatalf("LookupSession: %+v, %v", m, err)
	}

	if err := sessions.Update(ctx, token, func(s *Session) { s.PushToken = "fcm" }); err != nil {
		t.Fatal(err)
	}
	got, _ := sessions.Get(ctx, token)
	if got.PushToken != "fcm" || !got.LoginTimestamp.Equal(now) {
		t.Errorf("update lost fields: %+v", got)
	}

	// One second before the absolute expiry the session is still valid.
	now = now.Add(7*24*time.Hour - time.Second)
	if _, err := sessions.Get(ctx, token); err != nil {
		t.Errorf("session expired early: %v", err)
	}
	now = now.Add(time.Second)
	if _, err := sessions.Get(ctx, token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected expiry, got %v", err)
	}
}

func TestSessionsRevoke(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessions(NewMemorySessionStore(), 0)
	token, _, err := sessions.Create(ctx, model.TeamMember{Email: "ravi@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if err := sessions.Revoke(ctx, token); err != nil {
		t.Fatal(err)
	}
	if _, err := sessions.LookupSession(ctx, token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemorySessionStoreCleanExpired(t *testing.T) {
	now := time.Now()
	store := NewMemorySessionStore()
	store.now = func() time.Time { return now }
	_ = store.Put(context.Background(), "a", Session{}, time.Minute)
	_ = store.Put(context.Background(), "b", Session{}, time.Hour)

	now = now.Add(2 * time.Minute)
	if n := store.CleanExpired(); n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}
}

func TestRedisSessionStoreUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	store := NewRedisSessionStore(client)

	_, err := store.Get(context.Background(), auth.HashToken("lft_x"))
	if err == nil || errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected connection error, got %v", err)
	}
	if sessionKey("abc") != "liftline:session:abc" {
		t.Errorf("sessionKey = %q", sessionKey("abc"))
	}
}
