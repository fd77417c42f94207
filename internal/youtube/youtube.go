package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

var (
	// ErrUnauthorized indicates YouTube rejected the user's access token.
	ErrUnauthorized = errors.New("youtube rejected credentials")
	// ErrForbidden indicates the account may not perform the operation (quota, unverified channel).
	ErrForbidden = errors.New("youtube refused the operation")
)

// Upload describes a video to insert.
type Upload struct {
	Title         string
	Description   string
	Tags          []string
	CategoryID    string
	PrivacyStatus string
	Language      string
}

// Client performs YouTube Data API calls on behalf of one user.
type Client struct {
	svc        *yt.Service
	regionCode string
}

// Factory builds request-scoped clients from a user's token.
type Factory struct {
	RegionCode string
	// Endpoint overrides the API base URL; used by tests.
	Endpoint string
	// Base is the transport the OAuth transport wraps.
	Base http.RoundTripper
}

// ForToken returns a client authenticated as the token's owner. The client holds no
// state shared with other users.
func (f Factory) ForToken(ctx context.Context, token *oauth2.Token) (*Client, error) {
	if token == nil || token.AccessToken == "" {
		return nil, ErrUnauthorized
	}
	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: oauth2.StaticTokenSource(token), Base: f.Base},
	}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if f.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.Endpoint))
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	region := f.RegionCode
	if region == "" {
		region = "US"
	}
	return &Client{svc: svc, regionCode: region}, nil
}

// InsertVideo uploads media with snippet and status and returns the new video id.
func (c *Client) InsertVideo(ctx context.Context, upload Upload, media io.Reader) (string, error) {
	video := &yt.Video{
		Snippet: &yt.VideoSnippet{
			Title:                upload.Title,
			Description:          upload.Description,
			Tags:                 upload.Tags,
			CategoryId:           upload.CategoryID,
			DefaultLanguage:      upload.Language,
			DefaultAudioLanguage: upload.Language,
		},
		Status: &yt.VideoStatus{
			PrivacyStatus: upload.PrivacyStatus,
		},
	}

	inserted, err := c.svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(media, googleapi.ContentType("application/octet-stream")).
		Context(ctx).
		Do()
	if err != nil {
		return "", classify("insert video", err)
	}
	if inserted == nil || inserted.Id == "" {
		return "", errors.New("insert video: youtube returned no id")
	}
	return inserted.Id, nil
}

// SetThumbnail attaches an image to a previously inserted video.
func (c *Client) SetThumbnail(ctx context.Context, videoID string, image io.Reader) error {
	_, err := c.svc.Thumbnails.Set(videoID).Media(image).Context(ctx).Do()
	if err != nil {
		return classify("set thumbnail", err)
	}
	return nil
}

// ResolveCategory maps a free-text category name to a YouTube category id, falling
// back when nothing matches or the lookup fails.
func (c *Client) ResolveCategory(ctx context.Context, name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}
	resp, err := c.svc.VideoCategories.List([]string{"snippet"}).RegionCode(c.regionCode).Context(ctx).Do()
	if err != nil || resp == nil {
		return fallback
	}
	return MatchCategory(resp.Items, name, fallback)
}

// MatchCategory picks the assignable category whose title best matches name.
func MatchCategory(items []*yt.VideoCategory, name, fallback string) string {
	want := strings.ToLower(strings.TrimSpace(name))
	partial := ""
	for _, item := range items {
		if item == nil || item.Snippet == nil || !item.Snippet.Assignable {
			continue
		}
		title := strings.ToLower(item.Snippet.Title)
		if title == want {
			return item.Id
		}
		if partial == "" && (strings.Contains(title, want) || strings.Contains(want, title)) {
			partial = item.Id
		}
	}
	if partial != "" {
		return partial
	}
	return fallback
}

// StatusCode extracts the HTTP status of a YouTube API error, if any.
func StatusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

func classify(op string, err error) error {
	switch StatusCode(err) {
	case http.StatusUnauthorized:
		return fmt.Errorf("%s: %w: %w", op, ErrUnauthorized, err)
	case http.StatusForbidden:
		return fmt.Errorf("%s: %w: %w", op, ErrForbidden, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
