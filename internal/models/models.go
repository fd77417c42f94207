package models

import "time"

// User represents a Google-authenticated account along with the delegated YouTube credentials.
type User struct {
	ID                 string
	Email              string
	GoogleAccessToken  string
	GoogleRefreshToken string
	TokenExpiry        time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// GoogleToken is the credential triple replaced on every refresh.
type GoogleToken struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Video tracks one upload attempt through its publish lifecycle.
type Video struct {
	ID             string
	UserID         string
	FilePath       string
	Title          string
	Description    string
	Category       string
	Hashtags       []string
	Thumbnail      string
	PrivacyStatus  string
	Status         string
	YouTubeVideoID string
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DefaultCategory is stored when neither the caller nor the generator names a category.
const DefaultCategory = "Uncategorized"

const (
	VideoStatusPending      = "PENDING"
	VideoStatusUploaded     = "UPLOADED"
	VideoStatusUploadFailed = "UPLOAD_FAILED"
)

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// GeneratedMetadata is the title/description/hashtags/category set drafted for a video.
type GeneratedMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags"`
	Category    string   `json:"category,omitempty"`
}

// MetadataEmbedding is one grounding corpus entry keyed by the video it was generated for.
type MetadataEmbedding struct {
	VideoID   string
	Embedding []float32
	Metadata  GeneratedMetadata
	CreatedAt time.Time
}

// MetadataMatch is a grounding hit ordered by similarity.
type MetadataMatch struct {
	VideoID  string
	Metadata GeneratedMetadata
	Score    float64
}
