package http

import (
	"errors"
	"net/http"

	"github.com/fjod/storefront/internal/auth"
	"go.uber.org/zap"
)

type AuthHandler struct {
	provider auth.Provider
	carts    Carts
	logger   *zap.Logger
}

func NewAuthHandler(provider auth.Provider, carts Carts, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		provider: provider,
		carts:    carts,
		logger:   logger,
	}
}

type CredentialsDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SessionResponseDTO struct {
	User      auth.User `json:"user"`
	Role      auth.Role `json:"role"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt string    `json:"expires_at,omitempty"`
}

// POST /api/v1/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req CredentialsDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.provider.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			respondError(w, http.StatusConflict, "email_taken", err.Error())
		case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "invalid_credentials", err.Error())
		default:
			h.logger.Error("sign up failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		}
		return
	}

	respondJSON(w, http.StatusCreated, SessionResponseDTO{User: *user, Role: auth.RoleCustomer})
}

// POST /api/v1/auth/signin
//
// The caller's guest cart is merged into the user's cart.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req CredentialsDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.provider.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
			return
		}
		h.logger.Error("sign in failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	role, err := h.provider.Role(r.Context(), session.User.ID)
	if err != nil {
		h.logger.Warn("role lookup failed", zap.String("user_id", session.User.ID), zap.Error(err))
		role = auth.RoleCustomer
	}

	sessionID := principalFrom(r.Context()).SessionID
	if _, err := h.carts.MergeGuest(r.Context(), sessionID, session.User.ID); err != nil {
		h.logger.Warn("guest cart merge failed",
			zap.String("user_id", session.User.ID),
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	respondJSON(w, http.StatusOK, SessionResponseDTO{
		User:      session.User,
		Role:      role,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.UTC().Format(http.TimeFormat),
	})
}

// POST /api/v1/auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.provider.SignOut(r.Context(), principalFrom(r.Context()).Token); err != nil {
		h.logger.Error("sign out failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())

	role, err := h.provider.Role(r.Context(), p.UserID)
	if err != nil && !errors.Is(err, auth.ErrProfileNotFound) {
		h.logger.Error("role lookup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	if role == "" {
		role = auth.RoleCustomer
	}

	respondJSON(w, http.StatusOK, SessionResponseDTO{
		User: auth.User{ID: p.UserID, Email: p.Email},
		Role: role,
	})
}
