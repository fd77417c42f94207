package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	youtube "google.golang.org/api/youtube/v3"

	"github.com/tubepilot/backend/internal/config"
	"github.com/tubepilot/backend/internal/logging"
	"github.com/tubepilot/backend/internal/metrics"
	"github.com/tubepilot/backend/internal/models"
	"github.com/tubepilot/backend/internal/repositories"
)

var (
	// ErrReauthRequired indicates the user must go through Google consent again.
	ErrReauthRequired = errors.New("google re-authorization required")
	// ErrRefreshFailed indicates a refresh attempt failed for reasons other than rejection.
	ErrRefreshFailed = errors.New("google token refresh failed")
)

// Scopes requested at sign-in: identity plus YouTube upload.
var Scopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	youtube.YoutubeUploadScope,
	youtube.YoutubeReadonlyScope,
}

// UserStore loads users and persists refreshed Google tokens.
type UserStore interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	UpdateGoogleToken(ctx context.Context, userID string, token models.GoogleToken) error
}

// Manager hands out usable Google tokens, refreshing and persisting them when needed.
type Manager struct {
	oauth      *oauth2.Config
	users      UserStore
	timeout    time.Duration
	skew       time.Duration
	httpClient *http.Client
	now        func() time.Time
}

// OAuthConfig builds the Google OAuth client configuration.
func OAuthConfig(cfg config.GoogleConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       Scopes,
	}
}

// NewManager constructs a Manager. timeout bounds each refresh call.
func NewManager(oauth *oauth2.Config, users UserStore, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Manager{
		oauth:   oauth,
		users:   users,
		timeout: timeout,
		skew:    time.Minute,
		now:     time.Now,
	}
}

// WithHTTPClient routes token refresh calls through client.
func (m *Manager) WithHTTPClient(client *http.Client) *Manager {
	m.httpClient = client
	return m
}

// Ensure returns a non-expired Google token for the user. A refreshed token is
// persisted before Ensure returns, so later calls never see the stale one.
func (m *Manager) Ensure(ctx context.Context, userID string) (*oauth2.Token, error) {
	user, err := m.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", ErrReauthRequired)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if user.GoogleAccessToken != "" && !user.TokenExpiry.IsZero() && m.now().Add(m.skew).Before(user.TokenExpiry) {
		return &oauth2.Token{
			AccessToken:  user.GoogleAccessToken,
			RefreshToken: user.GoogleRefreshToken,
			TokenType:    "Bearer",
			Expiry:       user.TokenExpiry,
		}, nil
	}

	if strings.TrimSpace(user.GoogleRefreshToken) == "" {
		metrics.RecordTokenRefresh("missing")
		return nil, fmt.Errorf("%w: no refresh token on file", ErrReauthRequired)
	}

	token, err := m.refresh(ctx, user.GoogleRefreshToken)
	if err != nil {
		return nil, err
	}
	if token.RefreshToken == "" {
		token.RefreshToken = user.GoogleRefreshToken
	}

	if err := m.users.UpdateGoogleToken(ctx, user.ID, models.GoogleToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}); err != nil {
		metrics.RecordTokenRefresh("persist_error")
		return nil, fmt.Errorf("persist refreshed token: %w", err)
	}

	metrics.RecordTokenRefresh("success")
	logging.FromContext(ctx).Info("google token refreshed", slog.Time("expiry", token.Expiry))
	return token, nil
}

func (m *Manager) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if m.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}

	token, err := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err == nil {
		return token, nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
		retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
		metrics.RecordTokenRefresh("rejected")
		return nil, fmt.Errorf("%w: %w", ErrReauthRequired, err)
	}
	metrics.RecordTokenRefresh("error")
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, context.DeadlineExceeded)
	}
	return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
}
