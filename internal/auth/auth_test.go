package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alecgard/liftline/internal/model"
)

// --- mock lookup ---

type mockSessionLookup struct {
	members map[string]*Member
}

func (m *mockSessionLookup) LookupSession(ctx context.Context, token string) (*Member, error) {
	member, ok := m.members[token]
	if !ok {
		return nil, errors.New("not found")
	}
	return member, nil
}

type countingObserver struct {
	successes, failures int
}

func (c *countingObserver) IncAuthSuccess(string) { c.successes++ }
func (c *countingObserver) IncAuthFailure(string) { c.failures++ }

// --- GenerateToken tests ---

func TestGenerateToken_PrefixAndLength(t *testing.T) {
	token, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}
	if !strings.HasPrefix(token, "lft_") {
		t.Errorf("token should start with 'lft_', got %q", token)
	}
	// "lft_" (4) + 43 random chars = 47
	if len(token) != 47 {
		t.Errorf("expected token length 47, got %d", len(token))
	}
}

func TestGenerateToken_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken() error: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token generated: %s", token)
		}
		seen[token] = true
	}
}

// --- HashToken tests ---

func TestHashToken(t *testing.T) {
	if HashToken("lft_a") != HashToken("lft_a") {
		t.Error("HashToken should be deterministic")
	}
	if HashToken("lft_a") == HashToken("lft_b") {
		t.Error("different tokens should produce different hashes")
	}
	// SHA-256 produces 64 hex characters
	if len(HashToken("anything")) != 64 {
		t.Errorf("expected hash length 64, got %d", len(HashToken("anything")))
	}
}

// --- Member tests ---

func TestMemberRoles(t *testing.T) {
	tests := []struct {
		role    string
		canEdit bool
		isAdmin bool
	}{
		{model.RoleInstaller, false, false},
		{model.RoleSupervisor, true, false},
		{model.RoleQualityInspector, true, false},
		{model.RoleAdmin, true, true},
		{"", false, false},
	}
	for _, tt := range tests {
		m := &Member{Role: tt.role}
		if m.CanEditQualityChecks() != tt.canEdit {
			t.Errorf("role %q: CanEditQualityChecks = %v", tt.role, !tt.canEdit)
		}
		if m.IsAdmin() != tt.isAdmin {
			t.Errorf("role %q: IsAdmin = %v", tt.role, !tt.isAdmin)
		}
	}
}

// --- Context helpers tests ---

func TestMemberContext_RoundTrip(t *testing.T) {
	member := &Member{Email: "ravi@example.com", Role: model.RoleInstaller}
	ctx := ContextWithMember(context.Background(), member, "lft_tok")
	if got := MemberFromContext(ctx); got == nil || got.Email != member.Email {
		t.Errorf("expected member from context, got %+v", got)
	}
	if TokenFromContext(ctx) != "lft_tok" {
		t.Errorf("expected token from context, got %q", TokenFromContext(ctx))
	}
}

func TestMemberFromContext_Empty(t *testing.T) {
	if got := MemberFromContext(context.Background()); got != nil {
		t.Errorf("expected nil from empty context, got %+v", got)
	}
}

// --- SessionMiddleware tests ---

func TestSessionMiddleware(t *testing.T) {
	lookup := &mockSessionLookup{
		members: map[string]*Member{
			"lft_valid": {Email: "ravi@example.com", Role: model.RoleInstaller},
		},
	}

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if MemberFromContext(r.Context()) == nil {
			t.Error("expected member in context inside handler")
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		authHeader string
		query      string
		wantStatus int
	}{
		{"valid token", "Bearer lft_valid", "", http.StatusOK},
		{"valid query token", "", "?access_token=lft_valid", http.StatusOK},
		{"invalid token", "Bearer lft_wrong", "", http.StatusUnauthorized},
		{"missing header", "", "", http.StatusUnauthorized},
		{"malformed header", "Token lft_valid", "", http.StatusUnauthorized},
		{"bearer only no token", "Bearer", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			obs := &countingObserver{}

			SessionMiddleware(lookup, obs)(okHandler).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if tt.wantStatus == http.StatusOK {
				if obs.successes != 1 {
					t.Errorf("expected one success, got %d", obs.successes)
				}
				return
			}
			if obs.failures != 1 {
				t.Errorf("expected one failure, got %d", obs.failures)
			}
			assertJSONError(t, rr, "unauthorized")
		})
	}
}

func TestRequireRole(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := RequireRole(model.RoleAdmin)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req.WithContext(ContextWithMember(req.Context(), &Member{Role: model.RoleInstaller}, "t")))
	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rr.Code)
	}
	assertJSONError(t, rr, "forbidden")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req.WithContext(ContextWithMember(req.Context(), &Member{Role: model.RoleAdmin}, "t")))
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

// assertJSONError checks that the response body contains the expected error JSON structure.
func assertJSONError(t *testing.T, rr *httptest.ResponseRecorder, code string) {
	t.Helper()

	ct := rr.Header().Get("Content-Type")
	if !strings.Contains(ct, "application/json") {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var resp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if resp.Error.Code != code {
		t.Errorf("expected error code %q, got %q", code, resp.Error.Code)
	}
	if resp.Error.Message == "" {
		t.Error("expected non-empty error message")
	}
}
