package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/tubepilot/backend/internal/auth"
	"github.com/tubepilot/backend/internal/models"
)

type inMemoryUserStore struct {
	users map[string]models.User
	err   error
}

func newInMemoryUserStore() *inMemoryUserStore {
	return &inMemoryUserStore{users: make(map[string]models.User)}
}

func (s *inMemoryUserStore) UpsertOnSignIn(_ context.Context, email string, token models.GoogleToken) (models.User, error) {
	if s.err != nil {
		return models.User{}, s.err
	}
	user, ok := s.users[email]
	if !ok {
		user = models.User{ID: "user-" + email, Email: email}
	}
	user.GoogleAccessToken = token.AccessToken
	if token.RefreshToken != "" {
		user.GoogleRefreshToken = token.RefreshToken
	}
	user.TokenExpiry = token.Expiry
	s.users[email] = user
	return user, nil
}

type stubIdentity struct {
	email       string
	exchangeErr error
	codes       []string
}

func (s *stubIdentity) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state)
}

func (s *stubIdentity) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	s.codes = append(s.codes, code)
	if s.exchangeErr != nil {
		return nil, s.exchangeErr
	}
	return &oauth2.Token{AccessToken: "google-access", RefreshToken: "google-refresh", Expiry: time.Now().Add(time.Hour)}, nil
}

func (s *stubIdentity) Email(context.Context, *oauth2.Token) (string, error) {
	return s.email, nil
}

func newAuthHandler() (AuthHandler, *inMemoryUserStore, *stubIdentity) {
	store := newInMemoryUserStore()
	identity := &stubIdentity{email: "creator@example.com"}
	manager := auth.NewManager(time.Minute, time.Hour, auth.NewInMemorySessionStore())
	return AuthHandler{Users: store, Sessions: manager, Identity: identity}, store, identity
}

func TestGoogleLoginRedirectsWithStateCookie(t *testing.T) {
	handler, _, _ := newAuthHandler()

	rec := httptest.NewRecorder()
	handler.GoogleLogin(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/login", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("expected status %d got %d", http.StatusFound, rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != stateCookie || cookies[0].Value == "" || !cookies[0].HttpOnly {
		t.Fatalf("expected http-only state cookie, got %+v", cookies)
	}
	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if location.Query().Get("state") != cookies[0].Value {
		t.Fatalf("redirect state %q does not match cookie %q", location.Query().Get("state"), cookies[0].Value)
	}
}

func callbackRequest(state, cookieState, code string) *http.Request {
	target := "/api/v1/auth/google/callback?state=" + url.QueryEscape(state) + "&code=" + url.QueryEscape(code)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if cookieState != "" {
		req.AddCookie(&http.Cookie{Name: stateCookie, Value: cookieState})
	}
	return req
}

func TestGoogleCallbackSignsInUser(t *testing.T) {
	handler, store, identity := newAuthHandler()

	rec := httptest.NewRecorder()
	handler.GoogleCallback(rec, callbackRequest("s1", "s1", "code-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var resp authResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
		t.Fatalf("expected tokens to be issued, got %+v", resp.Tokens)
	}
	if resp.User == nil || resp.User.Email != "creator@example.com" {
		t.Fatalf("expected signed-in user, got %+v", resp.User)
	}
	if len(identity.codes) != 1 || identity.codes[0] != "code-1" {
		t.Fatalf("expected one exchange for code-1, got %v", identity.codes)
	}

	stored := store.users["creator@example.com"]
	if stored.GoogleAccessToken != "google-access" || stored.GoogleRefreshToken != "google-refresh" {
		t.Fatalf("expected google tokens stored, got %+v", stored)
	}
}

func TestGoogleCallbackRejectsStateMismatch(t *testing.T) {
	cases := map[string]*http.Request{
		"missing cookie": callbackRequest("s1", "", "code-1"),
		"different":      callbackRequest("s1", "s2", "code-1"),
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			handler, _, identity := newAuthHandler()
			rec := httptest.NewRecorder()

			handler.GoogleCallback(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
			}
			if len(identity.codes) != 0 {
				t.Fatal("code must not be exchanged on state mismatch")
			}
		})
	}
}

func TestGoogleCallbackExchangeFailure(t *testing.T) {
	handler, _, identity := newAuthHandler()
	identity.exchangeErr = errors.New("invalid_grant")

	rec := httptest.NewRecorder()
	handler.GoogleCallback(rec, callbackRequest("s1", "s1", "code-1"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestGoogleCallbackConsentDenied(t *testing.T) {
	handler, _, _ := newAuthHandler()

	rec := httptest.NewRecorder()
	handler.GoogleCallback(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?error=access_denied", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestAuthHandlerRefresh(t *testing.T) {
	handler, _, _ := newAuthHandler()

	tokens, err := handler.Sessions.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	body, _ := json.Marshal(refreshRequest{RefreshToken: tokens.RefreshToken})
	rec := httptest.NewRecorder()
	handler.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	var resp authResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Tokens.RefreshToken == "" || resp.Tokens.RefreshToken == tokens.RefreshToken {
		t.Fatalf("expected rotated refresh token, got %+v", resp.Tokens)
	}

	body, _ = json.Marshal(refreshRequest{RefreshToken: "unknown"})
	rec = httptest.NewRecorder()
	handler.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", bytes.NewReader(body)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestAuthHandlerRefreshValidation(t *testing.T) {
	handler, _, _ := newAuthHandler()

	rec := httptest.NewRecorder()
	handler.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", bytes.NewReader([]byte(`{}`))))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.Refresh(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/refresh", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}
