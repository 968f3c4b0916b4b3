package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/records"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenTTL   = 24 * time.Hour
	minPasswordLength = 6
)

type Config struct {
	Secret   []byte
	TokenTTL time.Duration
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Service implements Provider over the profiles table.
type Service struct {
	store    records.Store
	denylist Denylist
	secret   []byte
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(store records.Store, denylist Denylist, cfg Config, logger *zap.Logger) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: empty signing secret")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &Service{
		store:    store,
		denylist: denylist,
		secret:   cfg.Secret,
		ttl:      cfg.TokenTTL,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (s *Service) SignUp(ctx context.Context, email, password string) (*User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	row, err := s.store.Insert(ctx, records.TableProfiles, records.Row{
		"id":            uuid.NewString(),
		"email":         email,
		"password_hash": string(hash),
		"role":          string(RoleCustomer),
		"created_at":    s.now(),
	})
	if err != nil {
		if errors.Is(err, records.ErrUniqueViolation) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert profile: %w", err)
	}

	s.logger.Info("user signed up", zap.String("user_id", row.String("id")))
	return &User{ID: row.String("id"), Email: row.String("email")}, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	rows, err := s.store.Select(ctx, records.TableProfiles, records.Filter{"email": email})
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrInvalidCredentials
	}

	profile := rows[0]
	if err := bcrypt.CompareHashAndPassword([]byte(profile.String("password_hash")), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(User{ID: profile.String("id"), Email: profile.String("email")})
}

// GetSession validates the token and checks that it has not been signed out.
func (s *Service) GetSession(ctx context.Context, token string) (*Session, error) {
	c, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.denylist.Revoked(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("check denylist: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	return &Session{
		User:      User{ID: c.Subject, Email: c.Email},
		Token:     token,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// SignOut revokes the token for the rest of its lifetime. Signing out an
// expired or malformed token is a no-op.
func (s *Service) SignOut(ctx context.Context, token string) error {
	c, err := s.parse(token)
	if err != nil {
		return nil
	}
	if err := s.denylist.Revoke(ctx, c.ID, c.ExpiresAt.Sub(s.now())); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.logger.Info("user signed out", zap.String("user_id", c.Subject))
	return nil
}

func (s *Service) Role(ctx context.Context, userID string) (Role, error) {
	rows, err := s.store.Select(ctx, records.TableProfiles, records.Filter{"id": userID})
	if err != nil {
		return "", fmt.Errorf("query profile: %w", err)
	}
	if len(rows) == 0 {
		return "", ErrProfileNotFound
	}
	return Role(rows[0].String("role")), nil
}

func (s *Service) issue(u User) (*Session, error) {
	now := s.now()
	expires := now.Add(s.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &Session{User: u, Token: signed, ExpiresAt: expires}, nil
}

func (s *Service) parse(token string) (*claims, error) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(token, c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Subject == "" || c.ID == "" {
		return nil, ErrInvalidToken
	}
	return c, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
