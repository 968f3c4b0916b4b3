package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/auth"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	SessionCookie    = "cart_session"
	sessionCookieAge = 30 * 24 * time.Hour
)

type ctxKey int

const principalKey ctxKey = iota

// Principal is who is calling. UserID and Token are empty for guests;
// SessionID identifies the guest cart either way.
type Principal struct {
	UserID    string
	Email     string
	Token     string
	SessionID string
}

func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

func principalFrom(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey).(Principal)
	return p
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// RequestLogger logs one line per request with the chi request id.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// SessionMiddleware resolves the bearer token, if any, and makes sure every
// caller has a guest cart session cookie.
func SessionMiddleware(provider auth.Provider, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var p Principal

			if header := r.Header.Get("Authorization"); header != "" {
				scheme, token, ok := strings.Cut(header, " ")
				token = strings.TrimSpace(token)
				if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
					respondError(w, http.StatusUnauthorized, "unauthorized", "invalid authorization header format")
					return
				}

				session, err := provider.GetSession(r.Context(), token)
				if err != nil {
					if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrTokenRevoked) {
						logger.Error("session lookup failed", zap.Error(err))
					}
					respondError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired session")
					return
				}
				p.UserID = session.User.ID
				p.Email = session.User.Email
				p.Token = token
			}

			if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
				p.SessionID = c.Value
			} else {
				p.SessionID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    p.SessionID,
					Path:     "/",
					MaxAge:   int(sessionCookieAge.Seconds()),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}

			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
		})
	}
}

func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !principalFrom(r.Context()).Authenticated() {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin looks the caller's role up on every request, so a demoted
// admin loses access without signing out.
func RequireAdmin(provider auth.Provider, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := principalFrom(r.Context())
			if !p.Authenticated() {
				respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
				return
			}

			role, err := provider.Role(r.Context(), p.UserID)
			if err != nil && !errors.Is(err, auth.ErrProfileNotFound) {
				logger.Error("role lookup failed", zap.String("user_id", p.UserID), zap.Error(err))
				respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
				return
			}
			if role != auth.RoleAdmin {
				respondError(w, http.StatusForbidden, "forbidden", "admin privileges required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
