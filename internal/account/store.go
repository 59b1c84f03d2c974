// Package account manages team member accounts stored at team/{email} and
// the sessions issued when they log in.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/alecgard/liftline/internal/docstore"
	"github.com/alecgard/liftline/internal/model"
)

var (
	// ErrInvalidCredentials covers unknown accounts, accounts without a
	// password hash and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotFound           = errors.New("account not found")
	ErrAccountExists      = errors.New("account already exists")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

const minPasswordLength = 8

// Store provides account operations over the document store.
type Store struct {
	docs docstore.Store
}

// NewStore creates a new account store.
func NewStore(docs docstore.Store) *Store {
	return &Store{docs: docs}
}

// CreateInput holds the fields required to provision a team member.
type CreateInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=installer supervisor quality_inspector admin"`
	Phone    string `json:"phone"`
}

// Get loads the account at team/{email}.
func (s *Store) Get(ctx context.Context, email string) (model.TeamMember, error) {
	email = normalizeEmail(email)
	doc, err := s.docs.Get(ctx, docstore.TeamMemberPath(email))
	if errors.Is(err, docstore.ErrNotFound) {
		return model.TeamMember{}, ErrNotFound
	}
	if err != nil {
		return model.TeamMember{}, fmt.Errorf("getting account: %w", err)
	}
	var m model.TeamMember
	if err := model.Decode(doc.Data, &m); err != nil {
		return model.TeamMember{}, err
	}
	m.Email = email
	return m, nil
}

// Login verifies password against the stored bcrypt hash.
func (s *Store) Login(ctx context.Context, email, password string) (model.TeamMember, error) {
	m, err := s.Get(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return model.TeamMember{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.TeamMember{}, err
	}
	if m.PasswordHash == "" {
		if m.LegacyPassword != "" {
			slog.Warn("login refused for account with plaintext password; run account set-password",
				"email", m.Email,
			)
		}
		return model.TeamMember{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)) != nil {
		return model.TeamMember{}, ErrInvalidCredentials
	}
	return m, nil
}

// Create provisions a new account with a bcrypt-hashed password.
func (s *Store) Create(ctx context.Context, in CreateInput) (model.TeamMember, error) {
	if err := model.ValidateStruct(in); err != nil {
		return model.TeamMember{}, err
	}
	email := normalizeEmail(in.Email)
	if _, err := s.Get(ctx, email); err == nil {
		return model.TeamMember{}, ErrAccountExists
	} else if !errors.Is(err, ErrNotFound) {
		return model.TeamMember{}, err
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return model.TeamMember{}, err
	}
	m := model.TeamMember{
		Email:        email,
		Name:         in.Name,
		Role:         in.Role,
		Phone:        model.FlexString(in.Phone),
		PasswordHash: hash,
	}
	m.Role = m.RoleOrDefault()

	fields, err := model.Encode(m)
	if err != nil {
		return model.TeamMember{}, err
	}
	if err := s.docs.Set(ctx, docstore.TeamMemberPath(email), fields); err != nil {
		return model.TeamMember{}, fmt.Errorf("creating account: %w", err)
	}
	return m, nil
}

// SetPassword replaces the password hash and clears any legacy plaintext
// password on an existing account.
func (s *Store) SetPassword(ctx context.Context, email, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	err = s.docs.Update(ctx, docstore.TeamMemberPath(normalizeEmail(email)), []docstore.Update{
		{Path: "passwordHash", Value: hash},
		{Path: "password", Value: nil},
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("setting password: %w", err)
	}
	return nil
}

// RegisterPushToken stores the device push token on the account.
func (s *Store) RegisterPushToken(ctx context.Context, email, token string) error {
	err := s.docs.Update(ctx, docstore.TeamMemberPath(normalizeEmail(email)), []docstore.Update{
		{Path: "pushToken", Value: token},
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("registering push token: %w", err)
	}
	return nil
}

// CustomerPushToken returns the push token of the customer at Users/{email},
// or "" when the customer or token is absent.
func (s *Store) CustomerPushToken(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", nil
	}
	doc, err := s.docs.Get(ctx, docstore.CustomerPath(email))
	if errors.Is(err, docstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting customer: %w", err)
	}
	var c model.Customer
	if err := model.Decode(doc.Data, &c); err != nil {
		return "", err
	}
	return c.PushToken, nil
}

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}
