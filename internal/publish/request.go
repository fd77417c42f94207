package publish

import (
	"io"
	"strings"
	"unicode/utf8"

	"github.com/tubepilot/backend/internal/metadata"
	"github.com/tubepilot/backend/internal/models"
)

// File is an uploaded payload. Open may be called more than once.
type File struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// Request is one upload submitted for publishing.
type Request struct {
	UserID        string
	Title         string
	Description   string
	Hashtags      []string
	Category      string
	Context       string
	PrivacyStatus string
	Video         *File
	Thumbnail     *File
}

// Result describes a completed run.
type Result struct {
	RecordID     string
	VideoID      string
	Metadata     models.GeneratedMetadata
	ThumbnailURL string
	State        State
}

var privacyStatuses = map[string]bool{"private": true, "public": true, "unlisted": true}

// supplied returns the client's own metadata, normalized. complete reports whether
// title, description and hashtags were all given.
func (r Request) supplied() (meta models.GeneratedMetadata, complete bool) {
	meta = metadata.Normalize(models.GeneratedMetadata{
		Title:       r.Title,
		Description: r.Description,
		Hashtags:    r.Hashtags,
		Category:    r.Category,
	})
	complete = meta.Title != "" && meta.Description != "" && len(meta.Hashtags) > 0
	return meta, complete
}

// validate checks everything that can be checked without touching the payload.
func (r Request) validate(maxBytes int64) (string, error) {
	if strings.TrimSpace(r.UserID) == "" {
		return "", invalid("authenticated user required")
	}
	if r.Video == nil || r.Video.Open == nil {
		return "", invalid("video file is required")
	}
	if r.Video.Size == 0 {
		return "", invalid("video file is empty")
	}
	if maxBytes > 0 && r.Video.Size > maxBytes {
		return "", invalid("video exceeds %d bytes", maxBytes)
	}
	if r.Thumbnail != nil && r.Thumbnail.Open == nil {
		return "", invalid("thumbnail file is unreadable")
	}

	privacy := strings.ToLower(strings.TrimSpace(r.PrivacyStatus))
	if privacy != "" && !privacyStatuses[privacy] {
		return "", invalid("privacyStatus must be one of private, public or unlisted")
	}

	meta, complete := r.supplied()
	if complete {
		if err := metadata.Validate(meta); err != nil {
			return "", invalid("%v", err)
		}
		return privacy, nil
	}
	switch {
	case utf8.RuneCountInString(meta.Title) > metadata.MaxTitleLength:
		return "", invalid("title exceeds %d characters", metadata.MaxTitleLength)
	case utf8.RuneCountInString(meta.Description) > metadata.MaxDescriptionLength:
		return "", invalid("description exceeds %d characters", metadata.MaxDescriptionLength)
	case len(meta.Hashtags) > metadata.MaxHashtags:
		return "", invalid("at most %d hashtags allowed", metadata.MaxHashtags)
	case utf8.RuneCountInString(meta.Category) > metadata.MaxCategoryLength:
		return "", invalid("category exceeds %d characters", metadata.MaxCategoryLength)
	}
	return privacy, nil
}

// generationContext is the free text the metadata generator drafts from.
func (r Request) generationContext() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{r.Context, r.Title, r.Description} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 && r.Video != nil {
		parts = append(parts, r.Video.Name)
	}
	return strings.Join(parts, "\n")
}
