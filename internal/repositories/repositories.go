package repositories

import (
	"context"
	"errors"

	"github.com/tubepilot/backend/internal/models"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the write would violate a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
)

// UserRepository stores signed-in users and their Google grants.
type UserRepository interface {
	UpsertOnSignIn(ctx context.Context, email string, token models.GoogleToken) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	UpdateGoogleToken(ctx context.Context, userID string, token models.GoogleToken) error
}

// VideoRepository tracks upload records from PENDING to UPLOADED or UPLOAD_FAILED.
type VideoRepository interface {
	Create(ctx context.Context, video models.Video) error
	MarkUploaded(ctx context.Context, videoID, youtubeVideoID string) error
	MarkFailed(ctx context.Context, videoID, reason string) error
	FindByID(ctx context.Context, videoID string) (models.Video, error)
	ListForUser(ctx context.Context, userID string) ([]models.Video, error)
}

var (
	_ UserRepository  = (*PostgresUserRepository)(nil)
	_ VideoRepository = (*PostgresVideoRepository)(nil)
)
