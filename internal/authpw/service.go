// Package authpw checks the site administrator's email/password pair
// against a bcrypt hash from configuration.
package authpw

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotConfigured      = errors.New("admin credentials not configured")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

// Identity is the authenticated administrator.
type Identity struct {
	Email string
	Role  string
}

// Service provides email/password authentication
type Service struct {
	email string
	hash  []byte
	// dummy is compared against when the email does not match, so both
	// failure paths cost one bcrypt comparison.
	dummy []byte
}

// NewService validates the configured hash. An empty email or hash yields a
// service that rejects every sign-in with ErrNotConfigured.
func NewService(email, passwordHash string) (*Service, error) {
	s := &Service{email: normalizeEmail(email), hash: []byte(passwordHash)}
	if s.Configured() {
		cost, err := bcrypt.Cost(s.hash)
		if err != nil {
			return nil, fmt.Errorf("parse admin password hash: %w", err)
		}
		dummy, err := bcrypt.GenerateFromPassword([]byte("not-the-password"), cost)
		if err != nil {
			return nil, fmt.Errorf("prepare dummy hash: %w", err)
		}
		s.dummy = dummy
	}
	return s, nil
}

func (s *Service) Configured() bool {
	return s.email != "" && len(s.hash) > 0
}

// Authenticate returns the admin identity when both email and password
// match.
func (s *Service) Authenticate(email, password string) (Identity, error) {
	if !s.Configured() {
		return Identity{}, ErrNotConfigured
	}
	if password == "" {
		return Identity{}, ErrInvalidCredentials
	}

	if normalizeEmail(email) != s.email {
		_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(password))
		return Identity{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.hash, []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{Email: s.email, Role: "admin"}, nil
}

// HashPassword produces the value for ADMIN_PASSWORD_HASH. cost 0 means
// bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
