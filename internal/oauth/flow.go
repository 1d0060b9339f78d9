// Package oauth implements the authorization-code + PKCE handshake with the
// Supabase OAuth provider: the pending authorization, the authorize URL,
// the cookies that carry state between redirect and callback, and the code
// exchange.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// ClientConfig identifies the OAuth application.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	Scope        string
}

// Flow builds authorize URLs and exchanges codes for one OAuth application.
type Flow struct {
	cfg        ClientConfig
	httpClient *http.Client
}

// NewFlow returns a Flow. httpClient may be nil to use the default client.
func NewFlow(cfg ClientConfig, httpClient *http.Client) *Flow {
	return &Flow{cfg: cfg, httpClient: httpClient}
}

func (f *Flow) oauth2Config(redirectURI string) *oauth2.Config {
	var scopes []string
	if f.cfg.Scope != "" {
		scopes = []string{f.cfg.Scope}
	}
	return &oauth2.Config{
		ClientID:     f.cfg.ClientID,
		ClientSecret: f.cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   f.cfg.AuthURL,
			TokenURL:  f.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// CheckClientID fails when no client id is configured.
func (f *Flow) CheckClientID() error {
	if f.cfg.ClientID == "" {
		return &Error{
			Status:  http.StatusInternalServerError,
			Message: "Missing SUPABASE_CLIENT_ID environment variable",
			Kind:    ErrMissingServerConfig,
		}
	}
	return nil
}

// CheckServerConfig fails when the client id or secret is missing.
func (f *Flow) CheckServerConfig() error {
	if err := f.CheckClientID(); err != nil {
		return err
	}
	if f.cfg.ClientSecret == "" {
		return &Error{
			Status:  http.StatusInternalServerError,
			Message: "Missing SUPABASE_CLIENT_SECRET environment variable",
			Kind:    ErrMissingServerConfig,
		}
	}
	return nil
}

// AuthorizeURL returns the provider URL for p with response_type=code and
// an S256 code challenge.
func (f *Flow) AuthorizeURL(p PendingAuthorization, redirectURI string) string {
	return f.oauth2Config(redirectURI).AuthCodeURL(p.State, oauth2.S256ChallengeOption(p.CodeVerifier))
}

// Exchange trades code for tokens, authenticating with HTTP Basic
// client_id:client_secret. A non-2xx answer is an *Error with status 400
// wrapping an *ExchangeError; anything else is an *Error with status 500.
func (f *Flow) Exchange(ctx context.Context, code, codeVerifier, redirectURI string) (*oauth2.Token, error) {
	if f.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	}

	tok, err := f.oauth2Config(redirectURI).Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, &Error{
				Status:  http.StatusBadRequest,
				Message: "Failed to exchange code for token",
				Kind:    ErrUpstreamExchange,
				Cause:   &ExchangeError{StatusCode: re.Response.StatusCode, Body: string(re.Body), Err: err},
			}
		}
		return nil, &Error{
			Status:  http.StatusInternalServerError,
			Message: "Error exchanging code for token",
			Kind:    ErrExchange,
			Cause:   fmt.Errorf("token exchange: %w", err),
		}
	}
	return tok, nil
}
