package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/tubepilot/backend/internal/auth"
	"github.com/tubepilot/backend/internal/config"
	"github.com/tubepilot/backend/internal/credentials"
	"github.com/tubepilot/backend/internal/db"
	"github.com/tubepilot/backend/internal/grounding"
	"github.com/tubepilot/backend/internal/handlers"
	"github.com/tubepilot/backend/internal/metadata"
	"github.com/tubepilot/backend/internal/middleware"
	"github.com/tubepilot/backend/internal/publish"
	"github.com/tubepilot/backend/internal/repositories"
	"github.com/tubepilot/backend/internal/storage"
	"github.com/tubepilot/backend/internal/thumbnail"
	"github.com/tubepilot/backend/internal/youtube"
)

const signInPath = "/api/v1/auth/google/login"

type cleanupFunc func(ctx context.Context) error

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, cleanupFunc, error) {
	var closers []func() error
	cleanup := func(context.Context) error {
		var errs []error
		for _, closeFn := range closers {
			errs = append(errs, closeFn())
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (handlers.Dependencies, cleanupFunc, error) {
		_ = cleanup(ctx)
		return handlers.Dependencies{}, nil, err
	}

	users := repositories.NewPostgresUserRepository(pool)
	videos := repositories.NewPostgresVideoRepository(pool)
	sessions := auth.NewManager(cfg.SessionAccessTTL, cfg.SessionRefreshTTL, repositories.NewPostgresSessionStore(pool))

	oauthCfg := credentials.OAuthConfig(cfg.Google)
	creds := credentials.NewManager(oauthCfg, users, cfg.Google.RefreshTimeout)

	completer, err := metadata.NewOpenAICompleter(metadata.CompleterConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		return fail(err)
	}

	indexer, closeIndex, err := buildGrounding(ctx, pool, cfg.Grounding)
	if err != nil {
		return fail(err)
	}
	if closeIndex != nil {
		closers = append(closers, closeIndex)
	}

	// Typed nils must not leak into the interfaces below.
	var grounder metadata.Grounder
	var remember publish.Indexer
	if indexer != nil {
		grounder = indexer
		remember = indexer
	}

	generator := metadata.NewGenerator(completer, grounder, metadata.Options{
		Attempts: cfg.LLM.Attempts,
		Backoff:  cfg.LLM.Backoff,
		Timeout:  cfg.LLM.Timeout,
		TopK:     cfg.Grounding.TopK,
	})

	publisher, thumbnailDir, err := buildThumbnailPublisher(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	thumbs := thumbnail.NewGenerator(cfg.Thumbnail.FFmpegPath, cfg.Thumbnail.Offset, cfg.Thumbnail.Width, cfg.Thumbnail.Height, cfg.Thumbnail.Timeout, publisher)

	factory := youtube.Factory{RegionCode: cfg.Google.RegionCode}
	publishers := func(ctx context.Context, token *oauth2.Token) (publish.Publisher, error) {
		client, err := factory.ForToken(ctx, token)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	pipeline := publish.NewPipeline(generator, thumbs, remember, videos, creds, publishers, publish.Options{
		ScratchDir:        cfg.ScratchDir,
		MaxVideoBytes:     cfg.MaxVideoBytes,
		DefaultPrivacy:    cfg.DefaultPrivacy,
		DefaultCategoryID: cfg.Google.DefaultCategoryID,
		Language:          cfg.Google.DefaultLanguage,
		UploadTimeout:     cfg.UploadTimeout,
		AuthURL:           signInPath,
	})

	deps := handlers.Dependencies{
		Users:          users,
		Sessions:       sessions,
		Authenticator:  sessions,
		Identity:       credentials.GoogleIdentity{Config: oauthCfg},
		Videos:         videos,
		Publisher:      pipeline,
		AuthLimiter:    middleware.NewIPRateLimiter(10, time.Minute, 5, 10*time.Minute),
		UploadLimiter:  middleware.NewIPRateLimiter(5, time.Minute, 2, 10*time.Minute),
		MaxUploadBytes: cfg.MaxVideoBytes,
		SignInURL:      signInPath,
		ThumbnailDir:   thumbnailDir,
		SecureCookies:  strings.HasPrefix(cfg.PublicURL, "https://"),
	}
	return deps, cleanup, nil
}

// buildGrounding returns nil when grounding is disabled.
func buildGrounding(ctx context.Context, pool db.Pool, cfg config.GroundingConfig) (*grounding.Indexer, func() error, error) {
	var index grounding.Index
	switch strings.ToLower(cfg.Index) {
	case "", "off":
		return nil, nil, nil
	case "postgres":
		index = repositories.NewPostgresMetadataIndex(pool)
	case "memory":
		index = grounding.NewMemoryIndex()
	default:
		return nil, nil, fmt.Errorf("unsupported grounding index %q", cfg.Index)
	}

	base, err := grounding.NewCohereEmbedder(cfg.CohereAPIKey, cfg.EmbeddingModel, cfg.Timeout)
	if err != nil {
		return nil, nil, err
	}

	var (
		cache   grounding.Cache
		closeFn func() error
	)
	switch strings.ToLower(cfg.Cache) {
	case "memory":
		memory, err := grounding.NewMemoryCache(cfg.CacheSize, cfg.CacheTTL)
		if err != nil {
			return nil, nil, err
		}
		cache = memory
	case "redis":
		redisCache, err := grounding.NewRedisCache(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			return nil, nil, err
		}
		cache = redisCache
		closeFn = redisCache.Close
	}

	embedder := grounding.NewCachingEmbedder(base, cache, cfg.EmbeddingModel)
	return grounding.NewIndexer(embedder, index, cfg.Timeout), closeFn, nil
}

// buildThumbnailPublisher prefers the object store and falls back to a local directory
// served under /uploads/thumbnails/. The returned directory is empty for the object store.
func buildThumbnailPublisher(ctx context.Context, cfg config.Config) (thumbnail.Publisher, string, error) {
	if strings.TrimSpace(cfg.ObjectStore.Bucket) != "" {
		s3Storage, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, "", err
		}
		return s3Storage, "", nil
	}
	local, err := storage.NewLocalStorage(cfg.Thumbnail.PublicDir, strings.TrimSuffix(cfg.PublicURL, "/")+"/uploads/thumbnails")
	if err != nil {
		return nil, "", err
	}
	return local, local.Dir(), nil
}
