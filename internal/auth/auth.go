package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/alecgard/liftline/internal/model"
)

// tokenPrefix marks Liftline session tokens.
const tokenPrefix = "lft_"

// Member represents an authenticated team member.
type Member struct {
	Email     string
	Name      string
	Role      string
	Phone     string
	PushToken string
}

// CanEditQualityChecks returns true if the member may record quality-check results.
func (m *Member) CanEditQualityChecks() bool {
	return model.CanEditQualityChecks(m.Role)
}

// IsAdmin returns true if the member has the admin role.
func (m *Member) IsAdmin() bool {
	return m.Role == model.RoleAdmin
}

// SessionLookup is the interface for resolving session tokens to members.
type SessionLookup interface {
	LookupSession(ctx context.Context, token string) (*Member, error)
}

// GenerateToken creates a new session token with the "lft_" prefix followed
// by 43 URL-safe random characters.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return tokenPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken returns the hex-encoded SHA-256 hash of the given plaintext token.
func HashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
