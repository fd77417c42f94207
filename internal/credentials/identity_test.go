package credentials

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

func googleServer(t *testing.T, email string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		values, _ := url.ParseQuery(string(data))
		if values.Get("code") != "auth-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"access-1","refresh_token":"refresh-1","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","email":"`+email+`","verified_email":true}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newIdentity(server *httptest.Server) GoogleIdentity {
	return GoogleIdentity{
		Config: &oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURL:  "http://localhost/callback",
			Endpoint: oauth2.Endpoint{
				AuthURL:   server.URL + "/auth",
				TokenURL:  server.URL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: Scopes,
		},
		UserinfoEndpoint: server.URL + "/",
	}
}

func TestGoogleIdentityAuthCodeURLRequestsOfflineAccess(t *testing.T) {
	identity := newIdentity(googleServer(t, "a@example.com"))

	u, err := url.Parse(identity.AuthCodeURL("state-1"))
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	if q.Get("state") != "state-1" || q.Get("access_type") != "offline" || q.Get("prompt") != "consent" {
		t.Fatalf("unexpected consent url query %v", q)
	}
	if !strings.Contains(q.Get("scope"), "youtube.upload") {
		t.Fatalf("expected youtube upload scope, got %q", q.Get("scope"))
	}
}

func TestGoogleIdentityExchangeAndEmail(t *testing.T) {
	identity := newIdentity(googleServer(t, " Creator@Example.com "))
	ctx := context.Background()

	token, err := identity.Exchange(ctx, "auth-code")
	if err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}
	if token.RefreshToken != "refresh-1" {
		t.Fatalf("expected refresh token, got %q", token.RefreshToken)
	}

	email, err := identity.Email(ctx, token)
	if err != nil {
		t.Fatalf("Email returned error: %v", err)
	}
	if email != "creator@example.com" {
		t.Fatalf("expected normalized email, got %q", email)
	}
}

func TestGoogleIdentityRejectsBadCode(t *testing.T) {
	identity := newIdentity(googleServer(t, "a@example.com"))

	if _, err := identity.Exchange(context.Background(), "wrong"); err == nil {
		t.Fatal("expected exchange error")
	}
}

func TestGoogleIdentityMissingEmail(t *testing.T) {
	identity := newIdentity(googleServer(t, ""))
	token := &oauth2.Token{AccessToken: "access-1", TokenType: "Bearer"}

	if _, err := identity.Email(context.Background(), token); !errors.Is(err, ErrNoEmail) {
		t.Fatalf("expected ErrNoEmail, got %v", err)
	}
}
