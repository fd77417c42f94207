package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tubepilot/backend/internal/auth"
	"github.com/tubepilot/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	if os.Getenv("TUBEPILOT_INTEGRATION") != "1" {
		os.Exit(m.Run())
	}

	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresUserRepository_UpsertFindAndUpdateToken(t *testing.T) {
	requireDatabase(t)
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	expiry := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)

	user, err := repo.UpsertOnSignIn(ctx, "Alice@Example.com", models.GoogleToken{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expiry:       expiry,
	})
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if user.Email != "alice@example.com" || user.GoogleRefreshToken != "refresh-1" {
		t.Fatalf("unexpected user: %+v", user)
	}

	again, err := repo.UpsertOnSignIn(ctx, "alice@example.com", models.GoogleToken{AccessToken: "access-2", Expiry: expiry})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if again.ID != user.ID {
		t.Fatalf("expected sign-in to keep user id %s, got %s", user.ID, again.ID)
	}
	if again.GoogleAccessToken != "access-2" || again.GoogleRefreshToken != "refresh-1" {
		t.Fatalf("expected access token replaced and refresh token kept, got %+v", again)
	}

	newExpiry := expiry.Add(time.Hour)
	if err := repo.UpdateGoogleToken(ctx, user.ID, models.GoogleToken{AccessToken: "access-3", RefreshToken: "refresh-2", Expiry: newExpiry}); err != nil {
		t.Fatalf("update token: %v", err)
	}

	fetched, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if fetched.GoogleAccessToken != "access-3" || fetched.GoogleRefreshToken != "refresh-2" || !timesClose(fetched.TokenExpiry, newExpiry, time.Millisecond) {
		t.Fatalf("expected refreshed token persisted, got %+v", fetched)
	}

	if _, err := repo.FindByEmail(ctx, "missing@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing email, got %v", err)
	}
	if err := repo.UpdateGoogleToken(ctx, uuid.NewString(), models.GoogleToken{AccessToken: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating missing user, got %v", err)
	}
}

func TestPostgresVideoRepository_Lifecycle(t *testing.T) {
	requireDatabase(t)
	ctx := context.Background()
	resetDatabase(t)

	owner := createTestUser(t, "owner@example.com")
	other := createTestUser(t, "other@example.com")
	repo := NewPostgresVideoRepository(testPool)

	first := models.Video{
		ID:            uuid.NewString(),
		UserID:        owner.ID,
		FilePath:      "/tmp/run-1/video.mp4",
		Title:         "Knife skills",
		Description:   "Dicing onions fast",
		Category:      "Howto & Style",
		Hashtags:      []string{"#cooking", "#knife", "#tutorial"},
		PrivacyStatus: "private",
		CreatedAt:     time.Now().UTC().Add(-time.Minute),
	}
	second := first
	second.ID = uuid.NewString()
	second.Title = "Stock basics"
	second.Thumbnail = "http://localhost/uploads/thumbnails/x.jpg"
	second.CreatedAt = time.Now().UTC()

	for _, video := range []models.Video{first, second} {
		if err := repo.Create(ctx, video); err != nil {
			t.Fatalf("create video: %v", err)
		}
	}
	if err := repo.Create(ctx, first); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate id, got %v", err)
	}

	orphan := first
	orphan.ID = uuid.NewString()
	orphan.UserID = uuid.NewString()
	if err := repo.Create(ctx, orphan); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown owner, got %v", err)
	}

	fetched, err := repo.FindByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("find video: %v", err)
	}
	if fetched.Status != models.VideoStatusPending || fetched.YouTubeVideoID != "" || fetched.Thumbnail != "" {
		t.Fatalf("expected pending record without external id, got %+v", fetched)
	}
	if strings.Join(fetched.Hashtags, ",") != "#cooking,#knife,#tutorial" {
		t.Fatalf("expected hashtag order preserved, got %v", fetched.Hashtags)
	}

	if err := repo.MarkUploaded(ctx, first.ID, "yt-123"); err != nil {
		t.Fatalf("mark uploaded: %v", err)
	}
	if err := repo.MarkFailed(ctx, second.ID, "publish: 403"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkUploaded(ctx, uuid.NewString(), "yt-x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound marking missing video, got %v", err)
	}

	list, err := repo.ListForUser(ctx, owner.ID)
	if err != nil {
		t.Fatalf("list videos: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if list[0].Status != models.VideoStatusUploadFailed || list[0].FailureReason != "publish: 403" {
		t.Fatalf("unexpected failed record: %+v", list[0])
	}
	if list[1].Status != models.VideoStatusUploaded || list[1].YouTubeVideoID != "yt-123" {
		t.Fatalf("unexpected uploaded record: %+v", list[1])
	}

	empty, err := repo.ListForUser(ctx, other.ID)
	if err != nil {
		t.Fatalf("list other: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no videos for other user, got %d", len(empty))
	}

	if _, err := repo.FindByID(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed id, got %v", err)
	}
}

func TestPostgresVideoRepository_CreateStampsDefaults(t *testing.T) {
	requireDatabase(t)
	ctx := context.Background()
	resetDatabase(t)

	owner := createTestUser(t, "stamp@example.com")
	repo := NewPostgresVideoRepository(testPool)

	before := time.Now().UTC().Add(-time.Second)
	video := models.Video{
		ID:            uuid.NewString(),
		UserID:        owner.ID,
		FilePath:      "/tmp/run-2/video.mp4",
		Title:         "Cooking tutorial",
		Description:   "Weeknight pasta",
		Hashtags:      []string{"#cooking", "#pasta", "#dinner"},
		PrivacyStatus: "private",
	}
	if err := repo.Create(ctx, video); err != nil {
		t.Fatalf("create video: %v", err)
	}

	fetched, err := repo.FindByID(ctx, video.ID)
	if err != nil {
		t.Fatalf("find video: %v", err)
	}
	if fetched.CreatedAt.Before(before) || fetched.UpdatedAt.Before(before) {
		t.Fatalf("expected creation time stamped, got created=%s updated=%s", fetched.CreatedAt, fetched.UpdatedAt)
	}
	if fetched.Category != models.DefaultCategory {
		t.Fatalf("expected default category, got %q", fetched.Category)
	}
}

func TestPostgresSessionStore_RoundTrip(t *testing.T) {
	requireDatabase(t)
	ctx := context.Background()
	resetDatabase(t)

	user := createTestUser(t, "session@example.com")
	store := NewPostgresSessionStore(testPool)
	manager := auth.NewManager(time.Minute, time.Hour, store)

	tokens, err := manager.Issue(ctx, user.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	identity, err := manager.Authenticate(ctx, tokens.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if identity.UserID != user.ID {
		t.Fatalf("unexpected identity %+v", identity)
	}

	session, err := store.Find(ctx, tokens.RefreshToken)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if !timesClose(session.ExpiresAt, tokens.RefreshExpiresAt, time.Millisecond) {
		t.Fatalf("expected refresh expiry %v got %v", tokens.RefreshExpiresAt, session.ExpiresAt)
	}

	if _, err := manager.Refresh(ctx, tokens.RefreshToken); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := store.FindByAccessToken(ctx, tokens.AccessToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected old access token removed, got %v", err)
	}
	if err := store.Delete(ctx, tokens.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound deleting rotated token, got %v", err)
	}
}

func requireDatabase(t *testing.T) {
	t.Helper()
	if testPool == nil {
		t.Skip("set TUBEPILOT_INTEGRATION=1 to run database integration tests")
	}
}

// applyMigrations runs every migration the test server understands; pgvector ones are
// skipped because CockroachDB does not provide the extension.
func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") || strings.Contains(entry.Name(), "pgvector") {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE sessions, videos, users CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestUser(t *testing.T, email string) models.User {
	t.Helper()
	user, err := NewPostgresUserRepository(testPool).UpsertOnSignIn(context.Background(), email, models.GoogleToken{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().UTC().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}

func timesClose(a, b time.Time, delta time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}
