package handlers

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/tubepilot/backend/internal/models"
	"github.com/tubepilot/backend/internal/publish"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	UpsertOnSignIn(ctx context.Context, email string, token models.GoogleToken) (models.User, error)
}

// SessionManager issues and refreshes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
}

// IdentityProvider runs the Google authorization-code flow.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Email(ctx context.Context, token *oauth2.Token) (string, error)
}

// VideoStore reads upload records.
type VideoStore interface {
	FindByID(ctx context.Context, videoID string) (models.Video, error)
	ListForUser(ctx context.Context, userID string) ([]models.Video, error)
}

// Publisher runs the publish pipeline for one upload.
type Publisher interface {
	Run(ctx context.Context, req publish.Request) (publish.Result, error)
}
