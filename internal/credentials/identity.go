package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// ErrNoEmail is returned when Google does not disclose a verified email for the account.
var ErrNoEmail = errors.New("google account has no email")

// GoogleIdentity drives the authorization-code leg of Google sign-in.
type GoogleIdentity struct {
	Config *oauth2.Config
	// UserinfoEndpoint overrides the userinfo API base URL; used by tests.
	UserinfoEndpoint string
}

// AuthCodeURL returns the consent URL. Offline access with forced consent makes Google
// return a refresh token on every sign-in.
func (g GoogleIdentity) AuthCodeURL(state string) string {
	return g.Config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token.
func (g GoogleIdentity) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := g.Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return token, nil
}

// Email looks up the signed-in account's email address.
func (g GoogleIdentity) Email(ctx context.Context, token *oauth2.Token) (string, error) {
	opts := []option.ClientOption{option.WithTokenSource(g.Config.TokenSource(ctx, token))}
	if g.UserinfoEndpoint != "" {
		opts = append(opts, option.WithEndpoint(g.UserinfoEndpoint))
	}
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("userinfo service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("userinfo: %w", err)
	}
	email := strings.ToLower(strings.TrimSpace(info.Email))
	if email == "" {
		return "", ErrNoEmail
	}
	return email, nil
}
