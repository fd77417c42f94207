package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tubepilot/backend/internal/db"
	"github.com/tubepilot/backend/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

const userColumns = `id, email, google_access_token, google_refresh_token, token_expiry, created_at, updated_at`

// UpsertOnSignIn creates the user on first sign-in or replaces the stored Google credentials.
// An empty refresh token keeps the previously stored one, since Google only returns it on consent.
func (r *PostgresUserRepository) UpsertOnSignIn(ctx context.Context, email string, token models.GoogleToken) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return models.User{}, fmt.Errorf("upsert user: email is required")
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	now := time.Now().UTC()
	row := conn.QueryRow(ctx, `
        INSERT INTO users (id, email, google_access_token, google_refresh_token, token_expiry, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $6)
        ON CONFLICT (email) DO UPDATE SET
            google_access_token = EXCLUDED.google_access_token,
            google_refresh_token = CASE
                WHEN EXCLUDED.google_refresh_token = '' THEN users.google_refresh_token
                ELSE EXCLUDED.google_refresh_token
            END,
            token_expiry = EXCLUDED.token_expiry,
            updated_at = EXCLUDED.updated_at
        RETURNING `+userColumns,
		uuid.NewString(), email, token.AccessToken, token.RefreshToken, nullTime(token.Expiry), now)

	user, err := scanUser(row)
	if err != nil {
		return models.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return user, nil
}

// FindByID fetches a user by identifier.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, "id", id)
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (r *PostgresUserRepository) findOne(ctx context.Context, column, value string) (models.User, error) {
	if _, err := uuid.Parse(value); column == "id" && err != nil {
		return models.User{}, ErrNotFound
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by %s: %w", column, err)
	}
	return user, nil
}

// UpdateGoogleToken replaces the access token, expiry and (when rotated) refresh token in
// one statement so readers never observe a token paired with another token's expiry.
func (r *PostgresUserRepository) UpdateGoogleToken(ctx context.Context, userID string, token models.GoogleToken) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET google_access_token = $2,
            google_refresh_token = CASE WHEN $3 = '' THEN google_refresh_token ELSE $3 END,
            token_expiry = $4,
            updated_at = $5
        WHERE id = $1
    `, userID, token.AccessToken, token.RefreshToken, nullTime(token.Expiry), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update google token: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var (
		user   models.User
		expiry *time.Time
	)
	if err := row.Scan(&user.ID, &user.Email, &user.GoogleAccessToken, &user.GoogleRefreshToken, &expiry, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return models.User{}, err
	}
	if expiry != nil {
		user.TokenExpiry = expiry.UTC()
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

// PostgresVideoRepository provides PostgreSQL-backed persistence for upload records.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

const videoColumns = `id, user_id, file_path, title, description, category, hashtags, thumbnail,
    privacy_status, status, youtube_video_id, failure_reason, created_at, updated_at`

// Create stores a new upload record. Records always start out PENDING; a zero
// CreatedAt is stamped with the current time.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	hashtags := video.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}
	createdAt := video.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	category := video.Category
	if category == "" {
		category = models.DefaultCategory
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (id, user_id, file_path, title, description, category, hashtags, thumbnail,
            privacy_status, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
    `, video.ID, video.UserID, video.FilePath, video.Title, video.Description, category, hashtags,
		nullString(video.Thumbnail), video.PrivacyStatus, models.VideoStatusPending, createdAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrConflict
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert video: %w", err)
	}

	return nil
}

// MarkUploaded records the external id of a successful publish.
func (r *PostgresVideoRepository) MarkUploaded(ctx context.Context, videoID, youtubeVideoID string) error {
	return r.transition(ctx, videoID, `
        UPDATE videos
        SET status = $2, youtube_video_id = $3, failure_reason = '', updated_at = $4
        WHERE id = $1
    `, models.VideoStatusUploaded, youtubeVideoID, time.Now().UTC())
}

// MarkFailed records a failed publish along with its reason.
func (r *PostgresVideoRepository) MarkFailed(ctx context.Context, videoID, reason string) error {
	return r.transition(ctx, videoID, `
        UPDATE videos
        SET status = $2, failure_reason = $3, updated_at = $4
        WHERE id = $1
    `, models.VideoStatusUploadFailed, reason, time.Now().UTC())
}

func (r *PostgresVideoRepository) transition(ctx context.Context, videoID, query string, args ...any) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, append([]any{videoID}, args...)...)
	if err != nil {
		return fmt.Errorf("update video status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByID fetches a single upload record.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, videoID string) (models.Video, error) {
	if _, err := uuid.Parse(videoID); err != nil {
		return models.Video{}, ErrNotFound
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	video, err := scanVideo(conn.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, videoID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}
	return video, nil
}

// ListForUser returns the caller's upload records, newest first.
func (r *PostgresVideoRepository) ListForUser(ctx context.Context, userID string) ([]models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+videoColumns+`
        FROM videos
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT 100
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}

	return videos, nil
}

func scanVideo(row pgx.Row) (models.Video, error) {
	var (
		video     models.Video
		thumbnail *string
		youtubeID *string
	)
	if err := row.Scan(&video.ID, &video.UserID, &video.FilePath, &video.Title, &video.Description, &video.Category,
		&video.Hashtags, &thumbnail, &video.PrivacyStatus, &video.Status, &youtubeID, &video.FailureReason,
		&video.CreatedAt, &video.UpdatedAt); err != nil {
		return models.Video{}, err
	}
	if thumbnail != nil {
		video.Thumbnail = *thumbnail
	}
	if youtubeID != nil {
		video.YouTubeVideoID = *youtubeID
	}
	video.CreatedAt = video.CreatedAt.UTC()
	video.UpdatedAt = video.UpdatedAt.UTC()
	return video, nil
}

func nullString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func nullTime(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ VideoRepository = (*PostgresVideoRepository)(nil)
