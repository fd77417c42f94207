package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/tubepilot/backend/internal/auth"
	"github.com/tubepilot/backend/internal/logging"
	"github.com/tubepilot/backend/internal/models"
	"github.com/tubepilot/backend/internal/publish"
	"github.com/tubepilot/backend/internal/repositories"
)

const (
	uploadMemory   = 32 << 20
	formOverhead   = 16 << 20
	successMessage = "Video uploaded successfully"
)

// VideoHandler serves upload and listing endpoints.
type VideoHandler struct {
	Videos         VideoStore
	Publisher      Publisher
	MaxUploadBytes int64
	SignInURL      string
}

// Upload handles POST /api/v1/videos/upload.
func (h VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized", "authUrl": h.SignInURL})
		return
	}
	if h.Publisher == nil {
		logger.Error("publisher unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "upload service unavailable"})
		return
	}

	if h.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes+formOverhead)
	}
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "Invalid upload", Details: "video exceeds the upload size limit"})
			return
		}
		logger.Warn("invalid multipart form", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid multipart form"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	video := formFile(r.MultipartForm, "video")
	if video == nil {
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "Missing required fields", Details: "video is required"})
		return
	}

	hashtags, err := parseHashtags(r.FormValue("hashtags"))
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "Invalid upload", Details: err.Error()})
		return
	}

	result, err := h.Publisher.Run(ctx, publish.Request{
		UserID:        identity.UserID,
		Title:         r.FormValue("title"),
		Description:   r.FormValue("description"),
		Hashtags:      hashtags,
		Category:      r.FormValue("category"),
		Context:       r.FormValue("context"),
		PrivacyStatus: r.FormValue("privacyStatus"),
		Video:         video,
		Thumbnail:     formFile(r.MultipartForm, "thumbnail"),
	})
	if err != nil {
		h.respondPublishError(w, r, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, uploadResponse{
		Title:       result.Metadata.Title,
		Description: result.Metadata.Description,
		Hashtags:    result.Metadata.Hashtags,
		Category:    result.Metadata.Category,
		Thumbnail:   result.ThumbnailURL,
		VideoID:     result.VideoID,
		RecordID:    result.RecordID,
		Message:     successMessage,
	})
}

func (h VideoHandler) respondPublishError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var perr *publish.Error
	if !errors.As(err, &perr) {
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "Failed to upload video"})
		return
	}

	status := perr.HTTPStatus()
	switch perr.Kind {
	case publish.KindAuthentication:
		authURL := perr.AuthURL
		if authURL == "" {
			authURL = h.SignInURL
		}
		respondJSON(ctx, w, status, errorResponse{Error: "Google authorization required", AuthURL: authURL})
	case publish.KindValidation:
		respondJSON(ctx, w, status, errorResponse{Error: "Invalid upload", Details: errorDetail(perr)})
	case publish.KindGeneration:
		respondJSON(ctx, w, status, errorResponse{Error: "Failed to generate metadata", Details: errorDetail(perr)})
	case publish.KindTimeout:
		respondJSON(ctx, w, status, errorResponse{Error: "Upload timed out", Details: "try again with a smaller file"})
	case publish.KindPublish:
		message := "Failed to upload video"
		if status == http.StatusForbidden {
			message = "YouTube refused the upload"
		}
		respondJSON(ctx, w, status, errorResponse{Error: message, Details: errorDetail(perr)})
	default:
		respondJSON(ctx, w, status, errorResponse{Error: "Failed to upload video"})
	}
}

// List handles GET /api/v1/videos and returns the caller's upload records, newest first.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized", "authUrl": h.SignInURL})
		return
	}

	videos, err := h.Videos.ListForUser(ctx, identity.UserID)
	if err != nil {
		logging.FromContext(ctx).Error("list videos failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "failed to load videos"})
		return
	}

	items := make([]videoResponse, 0, len(videos))
	for _, v := range videos {
		items = append(items, toVideoResponse(v))
	}
	respondJSON(ctx, w, http.StatusOK, map[string][]videoResponse{"videos": items})
}

// Get handles GET /api/v1/videos/{id}.
func (h VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized", "authUrl": h.SignInURL})
		return
	}

	video, err := h.Videos.FindByID(ctx, r.PathValue("id"))
	if errors.Is(err, repositories.ErrNotFound) || (err == nil && video.UserID != identity.UserID) {
		respondJSON(ctx, w, http.StatusNotFound, errorResponse{Error: "video not found"})
		return
	}
	if err != nil {
		logging.FromContext(ctx).Error("load video failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "failed to load video"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, toVideoResponse(video))
}

func formFile(form *multipart.Form, field string) *publish.File {
	if form == nil || len(form.File[field]) == 0 {
		return nil
	}
	header := form.File[field][0]
	return &publish.File{
		Name: header.Filename,
		Size: header.Size,
		Open: func() (io.ReadCloser, error) { return header.Open() },
	}
}

// parseHashtags accepts a JSON array or a comma separated list.
func parseHashtags(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			return nil, errors.New("hashtags must be a JSON array of strings or a comma separated list")
		}
		return tags, nil
	}
	return strings.Split(raw, ","), nil
}

func errorDetail(err *publish.Error) string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	AuthURL string `json:"authUrl,omitempty"`
}

type uploadResponse struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags"`
	Category    string   `json:"category,omitempty"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
	VideoID     string   `json:"videoId"`
	RecordID    string   `json:"recordId"`
	Message     string   `json:"message"`
}

type videoResponse struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       string    `json:"category,omitempty"`
	Hashtags       []string  `json:"hashtags"`
	Thumbnail      string    `json:"thumbnail,omitempty"`
	PrivacyStatus  string    `json:"privacyStatus"`
	Status         string    `json:"status"`
	YouTubeVideoID string    `json:"youtubeVideoId,omitempty"`
	YouTubeURL     string    `json:"youtubeUrl,omitempty"`
	FailureReason  string    `json:"failureReason,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func toVideoResponse(v models.Video) videoResponse {
	resp := videoResponse{
		ID:             v.ID,
		Title:          v.Title,
		Description:    v.Description,
		Category:       v.Category,
		Hashtags:       v.Hashtags,
		Thumbnail:      v.Thumbnail,
		PrivacyStatus:  v.PrivacyStatus,
		Status:         v.Status,
		YouTubeVideoID: v.YouTubeVideoID,
		FailureReason:  v.FailureReason,
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
	}
	if resp.Hashtags == nil {
		resp.Hashtags = []string{}
	}
	if v.YouTubeVideoID != "" {
		resp.YouTubeURL = "https://www.youtube.com/watch?v=" + v.YouTubeVideoID
	}
	return resp
}
