// Package google wraps the OAuth flow and Gmail API access of gmail mailbox
// accounts.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	apperrors "github.com/welldanyogia/webrana-crm-mail/internal/errors"
)

// Scopes requested on connect. The full mail scope covers both IMAP and sending.
var Scopes = []string{gmail.MailGoogleComScope}

// OAuth holds the client configuration of the Gmail integration
type OAuth struct {
	config     *oauth2.Config
	apiOptions []option.ClientOption
}

// NewOAuth creates the Gmail OAuth configuration
func NewOAuth(clientID, clientSecret, redirectURL string) (*OAuth, error) {
	if clientID == "" || clientSecret == "" {
		return nil, apperrors.ErrNotConfigured
	}
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     googleoauth.Endpoint,
			RedirectURL:  redirectURL,
			Scopes:       Scopes,
		},
	}, nil
}

// WithEndpoints points the OAuth and Gmail API calls at other servers
func (o *OAuth) WithEndpoints(authURL, tokenURL, apiBaseURL string) *OAuth {
	cfg := *o.config
	cfg.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
	return &OAuth{
		config:     &cfg,
		apiOptions: []option.ClientOption{option.WithEndpoint(strings.TrimSuffix(apiBaseURL, "/") + "/")},
	}
}

// AuthURL is the consent page URL. Offline access is requested so that a
// refresh token is issued.
func (o *OAuth) AuthURL(state string) string {
	return o.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token
func (o *OAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := o.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return tok, nil
}

// TokenSource refreshes tok as needed
func (o *OAuth) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return o.config.TokenSource(ctx, tok)
}

// AccessToken returns a currently valid access token for tok
func (o *OAuth) AccessToken(ctx context.Context, tok *oauth2.Token) (string, error) {
	fresh, err := o.TokenSource(ctx, tok).Token()
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	return fresh.AccessToken, nil
}

// Gmail returns a Gmail API client authorized by tok
func (o *OAuth) Gmail(ctx context.Context, tok *oauth2.Token) (*gmail.Service, error) {
	opts := append([]option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, o.TokenSource(ctx, tok)))}, o.apiOptions...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return svc, nil
}

// Address returns the mailbox address tok belongs to
func (o *OAuth) Address(ctx context.Context, tok *oauth2.Token) (string, error) {
	svc, err := o.Gmail(ctx, tok)
	if err != nil {
		return "", err
	}
	profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to read Gmail profile: %w", err)
	}
	return profile.EmailAddress, nil
}

// EncodeToken serializes tok for storage in the credential vault
func EncodeToken(tok *oauth2.Token) (string, error) {
	if tok == nil || (tok.AccessToken == "" && tok.RefreshToken == "") {
		return "", errors.New("empty token")
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return "", fmt.Errorf("failed to encode token: %w", err)
	}
	return string(b), nil
}

// DecodeToken parses a stored token. Anything unusable is ErrCredentialUnusable.
func DecodeToken(s string) (*oauth2.Token, error) {
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(s), &tok); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCredentialUnusable, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, apperrors.ErrCredentialUnusable
	}
	return &tok, nil
}
