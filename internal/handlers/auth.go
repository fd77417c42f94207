package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tubepilot/backend/internal/auth"
	"github.com/tubepilot/backend/internal/logging"
	"github.com/tubepilot/backend/internal/models"
)

const (
	stateCookie     = "tubepilot_oauth_state"
	stateCookiePath = "/api/v1/auth/google"
	stateCookieTTL  = 10 * time.Minute
)

// AuthHandler implements Google sign-in and session refresh.
type AuthHandler struct {
	Users         UserStore
	Sessions      SessionManager
	Identity      IdentityProvider
	SecureCookies bool
	NowFunc       func() time.Time
}

// GoogleLogin handles GET /api/v1/auth/google/login by redirecting to Google consent.
func (h AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if h.Identity == nil {
		logging.FromContext(ctx).Error("identity provider unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "sign-in unavailable"})
		return
	}

	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     stateCookiePath,
		Expires:  h.now().Add(stateCookieTTL),
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.Identity.AuthCodeURL(state), http.StatusFound)
}

// GoogleCallback handles GET /api/v1/auth/google/callback. It exchanges the code,
// stores the user's Google tokens and issues an app session.
func (h AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Sessions == nil || h.Identity == nil {
		logger.Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasSessions", h.Sessions != nil, "hasIdentity", h.Identity != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "authentication services unavailable"})
		return
	}

	query := r.URL.Query()
	if reason := query.Get("error"); reason != "" {
		logger.Warn("google consent denied", "reason", reason)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "google sign-in was not completed"})
		return
	}

	cookie, err := r.Cookie(stateCookie)
	state := query.Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		logger.Warn("oauth state mismatch")
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid oauth state"})
		return
	}
	h.clearState(w)

	code := strings.TrimSpace(query.Get("code"))
	if code == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "authorization code is required"})
		return
	}

	token, err := h.Identity.Exchange(ctx, code)
	if err != nil {
		logger.Warn("google code exchange failed", "error", err)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "google sign-in failed"})
		return
	}

	email, err := h.Identity.Email(ctx, token)
	if err != nil {
		logger.Warn("google email lookup failed", "error", err)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "google sign-in failed"})
		return
	}

	user, err := h.Users.UpsertOnSignIn(ctx, email, models.GoogleToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	})
	if err != nil {
		logger.Error("failed to store signed-in user", "error", err, "email", email)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to sign in"})
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		logger.Error("failed to issue session", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
		return
	}

	logger.Info("user signed in", "userId", user.ID)
	respondJSON(ctx, w, http.StatusOK, authResponse{
		Tokens: tokens,
		User:   &userResponse{ID: user.ID, Email: user.Email},
	})
}

// Refresh exchanges a refresh token for a new session.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Sessions == nil {
		logger.Error("session manager unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "session service unavailable"})
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid refresh payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		logger.Warn("missing refresh token")
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "refresh token is required"})
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrRefreshTokenExpired) || errors.Is(err, auth.ErrSessionNotFound) {
			status = http.StatusUnauthorized
		}
		logger.Warn("refresh failed", "error", err, "status", status)
		respondJSON(ctx, w, status, map[string]string{"error": "unable to refresh session"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{Tokens: tokens})
}

func (h AuthHandler) clearState(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     stateCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type authResponse struct {
	Tokens models.SessionTokens `json:"tokens"`
	User   *userResponse        `json:"user,omitempty"`
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}
