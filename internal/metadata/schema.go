package metadata

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tubepilot/backend/internal/models"
)

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
	MaxCategoryLength    = 50
	MinHashtags          = 3
	MaxHashtags          = 5
)

type document struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags"`
	Category    *string  `json:"category"`
}

// Parse extracts, decodes and validates a completion into metadata.
func Parse(raw string) (models.GeneratedMetadata, error) {
	payload, err := ExtractJSON(raw)
	if err != nil {
		return models.GeneratedMetadata{}, err
	}

	var doc document
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return models.GeneratedMetadata{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	meta := models.GeneratedMetadata{
		Title:       doc.Title,
		Description: doc.Description,
		Hashtags:    doc.Hashtags,
	}
	if doc.Category != nil {
		meta.Category = *doc.Category
	}
	meta = Normalize(meta)
	if err := Validate(meta); err != nil {
		return models.GeneratedMetadata{}, err
	}
	return meta, nil
}

// Normalize trims every field, drops blank hashtags and prefixes the rest with '#'.
func Normalize(meta models.GeneratedMetadata) models.GeneratedMetadata {
	meta.Title = strings.TrimSpace(meta.Title)
	meta.Description = strings.TrimSpace(meta.Description)
	meta.Category = strings.TrimSpace(meta.Category)

	tags := make([]string, 0, len(meta.Hashtags))
	for _, tag := range meta.Hashtags {
		tag = strings.TrimSpace(tag)
		tag = strings.TrimLeft(tag, "#")
		if tag == "" {
			continue
		}
		tags = append(tags, "#"+strings.Join(strings.Fields(tag), ""))
	}
	meta.Hashtags = tags
	return meta
}

// Validate enforces the length and count bounds. Lengths are counted in code points.
func Validate(meta models.GeneratedMetadata) error {
	switch {
	case meta.Title == "":
		return fmt.Errorf("%w: title is required", ErrSchema)
	case utf8.RuneCountInString(meta.Title) > MaxTitleLength:
		return fmt.Errorf("%w: title exceeds %d characters", ErrSchema, MaxTitleLength)
	case utf8.RuneCountInString(meta.Description) > MaxDescriptionLength:
		return fmt.Errorf("%w: description exceeds %d characters", ErrSchema, MaxDescriptionLength)
	case len(meta.Hashtags) < MinHashtags || len(meta.Hashtags) > MaxHashtags:
		return fmt.Errorf("%w: expected %d-%d hashtags, got %d", ErrSchema, MinHashtags, MaxHashtags, len(meta.Hashtags))
	case utf8.RuneCountInString(meta.Category) > MaxCategoryLength:
		return fmt.Errorf("%w: category exceeds %d characters", ErrSchema, MaxCategoryLength)
	}
	return nil
}
