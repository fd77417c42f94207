package handlers

import (
	"net/http"

	"github.com/tubepilot/backend/internal/metrics"
	"github.com/tubepilot/backend/internal/middleware"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Database: deps.Database}
	authHandler := AuthHandler{
		Users:         deps.Users,
		Sessions:      deps.Sessions,
		Identity:      deps.Identity,
		SecureCookies: deps.SecureCookies,
	}
	videos := VideoHandler{
		Videos:         deps.Videos,
		Publisher:      deps.Publisher,
		MaxUploadBytes: deps.MaxUploadBytes,
		SignInURL:      deps.SignInURL,
	}

	authLimit := middleware.RateLimit(deps.AuthLimiter, "auth")
	uploadLimit := middleware.RateLimit(deps.UploadLimiter, "upload")
	session := middleware.RequireSession(deps.Authenticator, deps.SignInURL)

	mux.HandleFunc("/healthz", health.Handle)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/api/v1/auth/google/login", authLimit(http.HandlerFunc(authHandler.GoogleLogin)))
	mux.Handle("/api/v1/auth/google/callback", authLimit(http.HandlerFunc(authHandler.GoogleCallback)))
	mux.Handle("/api/v1/auth/refresh", authLimit(http.HandlerFunc(authHandler.Refresh)))
	mux.Handle("/api/v1/videos/upload", uploadLimit(session(http.HandlerFunc(videos.Upload))))
	mux.Handle("/api/v1/videos", session(http.HandlerFunc(videos.List)))
	mux.Handle("/api/v1/videos/{id}", session(http.HandlerFunc(videos.Get)))

	if deps.ThumbnailDir != "" {
		mux.Handle("/uploads/thumbnails/", http.StripPrefix("/uploads/thumbnails/", http.FileServer(http.Dir(deps.ThumbnailDir))))
	}
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Database      Pinger
	Users         UserStore
	Sessions      SessionManager
	Authenticator middleware.Authenticator
	Identity      IdentityProvider
	Videos        VideoStore
	Publisher     Publisher
	AuthLimiter   middleware.RateLimiter
	UploadLimiter middleware.RateLimiter

	MaxUploadBytes int64
	SignInURL      string
	ThumbnailDir   string
	SecureCookies  bool
}
