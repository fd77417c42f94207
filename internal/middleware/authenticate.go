package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tubepilot/backend/internal/auth"
	"github.com/tubepilot/backend/internal/logging"
)

// Authenticator resolves bearer tokens to callers.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (auth.Identity, error)
}

// RequireSession rejects requests without a valid bearer session. Rejections carry the
// sign-in URL so clients can restart the Google consent flow.
func RequireSession(authenticator Authenticator, signInURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			identity, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				logging.FromContext(r.Context()).Info("session rejected", slog.Any("error", err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized", "authUrl": signInURL})
				return
			}

			ctx := auth.WithIdentity(r.Context(), identity)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With(slog.String("user_id", identity.UserID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
