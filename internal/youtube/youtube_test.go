package youtube

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"golang.org/x/oauth2"
	yt "google.golang.org/api/youtube/v3"
)

type fakeYouTube struct {
	mu          sync.Mutex
	insertCode  int
	auth        []string
	insertBody  string
	thumbnailed bool
}

func (f *fakeYouTube) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	w.Header().Set("Content-Type", "application/json")

	switch {
	case strings.HasSuffix(r.URL.Path, "/videos") && r.Method == http.MethodPost:
		data, _ := io.ReadAll(r.Body)
		f.insertBody = string(data)
		if f.insertCode != 0 {
			w.WriteHeader(f.insertCode)
			_, _ = io.WriteString(w, `{"error":{"code":`+itoa(f.insertCode)+`,"message":"denied"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"yt-123"}`)
	case strings.HasSuffix(r.URL.Path, "/thumbnails/set"):
		f.thumbnailed = true
		_, _ = io.WriteString(w, `{"items":[]}`)
	case strings.HasSuffix(r.URL.Path, "/videoCategories"):
		_, _ = io.WriteString(w, `{"items":[
			{"id":"1","snippet":{"title":"Film & Animation","assignable":true}},
			{"id":"22","snippet":{"title":"People & Blogs","assignable":true}},
			{"id":"26","snippet":{"title":"Howto & Style","assignable":true}},
			{"id":"27","snippet":{"title":"Education","assignable":true}},
			{"id":"30","snippet":{"title":"Movies","assignable":false}}
		]}`)
	default:
		http.NotFound(w, r)
	}
}

func itoa(code int) string {
	switch code {
	case http.StatusUnauthorized:
		return "401"
	case http.StatusForbidden:
		return "403"
	default:
		return "500"
	}
}

func newClient(t *testing.T, fake *fakeYouTube) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(server.Close)

	client, err := Factory{Endpoint: server.URL + "/", RegionCode: "US"}.ForToken(context.Background(), &oauth2.Token{AccessToken: "user-token"})
	if err != nil {
		t.Fatalf("for token: %v", err)
	}
	return client
}

func TestInsertVideoAndSetThumbnail(t *testing.T) {
	fake := &fakeYouTube{}
	client := newClient(t, fake)

	id, err := client.InsertVideo(context.Background(), Upload{
		Title:         "Knife skills",
		Description:   "Dice onions",
		Tags:          []string{"#cooking"},
		CategoryID:    "27",
		PrivacyStatus: "private",
		Language:      "en",
	}, strings.NewReader("video-bytes"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != "yt-123" {
		t.Fatalf("unexpected id %q", id)
	}
	if !strings.Contains(fake.insertBody, `"privacyStatus":"private"`) || !strings.Contains(fake.insertBody, "video-bytes") {
		t.Fatalf("expected metadata and media in upload body: %s", fake.insertBody)
	}

	if err := client.SetThumbnail(context.Background(), id, strings.NewReader("jpeg")); err != nil {
		t.Fatalf("set thumbnail: %v", err)
	}
	if !fake.thumbnailed {
		t.Fatal("expected thumbnail call")
	}
	for _, header := range fake.auth {
		if header != "Bearer user-token" {
			t.Fatalf("expected user token on every call, got %q", header)
		}
	}
}

func TestInsertVideoClassifiesErrors(t *testing.T) {
	fake := &fakeYouTube{insertCode: http.StatusUnauthorized}
	client := newClient(t, fake)
	_, err := client.InsertVideo(context.Background(), Upload{Title: "t"}, strings.NewReader("v"))
	if !errors.Is(err, ErrUnauthorized) || StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	fake.insertCode = http.StatusForbidden
	_, err = client.InsertVideo(context.Background(), Upload{Title: "t"}, strings.NewReader("v"))
	if !errors.Is(err, ErrForbidden) || errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestResolveCategory(t *testing.T) {
	client := newClient(t, &fakeYouTube{})
	ctx := context.Background()

	cases := map[string]string{
		"Education": "27",
		"howto":     "26",
		"Movies":    "22",
		"Cooking":   "22",
		"":          "22",
	}
	for name, want := range cases {
		if got := client.ResolveCategory(ctx, name, "22"); got != want {
			t.Fatalf("ResolveCategory(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestMatchCategorySkipsNilEntries(t *testing.T) {
	items := []*yt.VideoCategory{nil, {Id: "10", Snippet: &yt.VideoCategorySnippet{Title: "Music", Assignable: true}}}
	if got := MatchCategory(items, "music", "22"); got != "10" {
		t.Fatalf("unexpected category %q", got)
	}
}

func TestForTokenRequiresAccessToken(t *testing.T) {
	if _, err := (Factory{}).ForToken(context.Background(), &oauth2.Token{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
