// Package auth signs users up and in against the profiles table and issues
// JWT sessions. Signed-out tokens are remembered in a denylist until they
// would have expired anyway.
package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrInvalidToken       = errors.New("invalid session token")
	ErrTokenRevoked       = errors.New("session token revoked")
	ErrProfileNotFound    = errors.New("profile not found")
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type Session struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Provider is what the HTTP layer needs from authentication.
type Provider interface {
	GetSession(ctx context.Context, token string) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context, token string) error
	Role(ctx context.Context, userID string) (Role, error)
}
