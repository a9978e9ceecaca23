package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/eventsphere/server/internal/api/middleware"
	"github.com/eventsphere/server/internal/api/problem"
	"github.com/eventsphere/server/internal/auth"
	"github.com/eventsphere/server/internal/domain/accounts"
	"github.com/rs/zerolog"
)

// AuthHandler handles account registration and session endpoints
type AuthHandler struct {
	accounts *accounts.Service
	tokens   *auth.TokenService
	tokenTTL time.Duration
	logger   zerolog.Logger
	env      string
}

func NewAuthHandler(accountsService *accounts.Service, tokens *auth.TokenService, tokenTTL time.Duration, logger zerolog.Logger, env string) *AuthHandler {
	return &AuthHandler{
		accounts: accountsService,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		logger:   logger.With().Str("handler", "auth").Logger(),
		env:      env,
	}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DefaultLang string `json:"default_lang"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at"`
	Account   accountInfo `json:"account"`
}

type accountInfo struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	DefaultLang string `json:"default_lang"`
}

// Register handles POST /api/v1/auth/register. New accounts always get the
// user role; elevation is an admin action, never self-service.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidationError, "Invalid request", err, h.env)
		return
	}
	if req.Email == "" || req.Password == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidationError, "Email and password are required", nil, h.env)
		return
	}

	account, err := h.accounts.Register(r.Context(), req.Email, req.Password, req.DefaultLang)
	if err != nil {
		if errors.Is(err, accounts.ErrEmailTaken) {
			problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Email already registered", nil, h.env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.env)
		return
	}

	writeJSON(w, http.StatusCreated, accountInfo{
		ID:          account.ID,
		Email:       account.Email,
		Role:        string(account.Role),
		DefaultLang: account.DefaultLang,
	})
}

// Login handles POST /api/v1/auth/login. On success a JWT is returned in the
// body and set as an HttpOnly cookie for browser sessions.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidationError, "Invalid request", err, h.env)
		return
	}
	if req.Email == "" || req.Password == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidationError, "Email and password are required", nil, h.env)
		return
	}

	account, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, accounts.ErrInvalidCredentials):
			problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthenticated, "Invalid credentials", nil, h.env)
		case errors.Is(err, accounts.ErrAccountInactive):
			problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Account is inactive", nil, h.env)
		default:
			problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.env)
		}
		return
	}

	token, err := h.tokens.Issue(account.ID, account.Role)
	if err != nil {
		h.logger.Error().Err(err).Str("account_id", account.ID).Msg("failed to issue token")
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.env)
		return
	}

	expiresAt := time.Now().Add(h.tokenTTL)
	h.setSessionCookie(w, token, expiresAt)

	writeJSON(w, http.StatusOK, sessionResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		Account: accountInfo{
			ID:          account.ID,
			Email:       account.Email,
			Role:        string(account.Role),
			DefaultLang: account.DefaultLang,
		},
	})
}

type refreshRequest struct {
	Token string `json:"token"`
}

// Refresh handles POST /api/v1/auth/refresh. The presented token may be
// expired within the grace period; a fresh token with a new ID is returned.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	// An empty body is fine; cookie-based clients send no payload at all.
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidationError, "Invalid request", err, h.env)
		return
	}
	raw := req.Token
	if raw == "" {
		if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil {
			raw = cookie.Value
		}
	}
	if raw == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidationError, "Token is required", nil, h.env)
		return
	}

	refreshed, err := h.tokens.Refresh(raw)
	if err != nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthenticated, "Token cannot be refreshed", err, h.env)
		return
	}

	expiresAt := time.Now().Add(h.tokenTTL)
	h.setSessionCookie(w, refreshed, expiresAt)

	writeJSON(w, http.StatusOK, map[string]string{
		"token":      refreshed,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

// Logout handles POST /api/v1/auth/logout by clearing the session cookie.
// Tokens are stateless, so the client discarding its copy is the logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.env == "production",
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.env == "production",
		SameSite: http.SameSiteLaxMode,
	})
}
