// Package supabase is a small client for the Supabase Management API: just
// the calls needed to validate a credential and list its projects.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"
)

// DefaultAPIURL is the public Management API.
const DefaultAPIURL = "https://api.supabase.com"

const (
	projectsPath = "/v1/projects"
	profilePath  = "/v1/profile"

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Client calls the Management API with a bearer credential.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	base    *http.Client
	timeout time.Duration
}

// WithHTTPClient sets the client whose transport carries the requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.base = hc }
}

// WithTimeout overrides the 30s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// NewClient returns a client authenticating every request with token.
func NewClient(ctx context.Context, baseURL, token string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" || strings.TrimSpace(token) == "" {
		return nil, ErrClientInit
	}

	o := clientOptions{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.base)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = o.timeout

	return &Client{baseURL: baseURL, httpClient: hc}, nil
}

// ListProjects returns every project visible to the credential.
func (c *Client) ListProjects(ctx context.Context) (*ProjectList, error) {
	var list ProjectList
	if err := c.getJSON(ctx, projectsPath, &list); err != nil {
		return nil, err
	}
	list.normalize()
	if err := validate.Struct(&list); err != nil {
		return nil, &UpstreamSchemaError{Path: projectsPath, Err: err}
	}
	return &list, nil
}

// GetProfile returns the account the credential belongs to. A successful
// call is what validates a credential.
func (c *Client) GetProfile(ctx context.Context) (*UserProfile, error) {
	var profile UserProfile
	if err := c.getJSON(ctx, profilePath, &profile); err != nil {
		return nil, err
	}
	if err := validate.Struct(&profile); err != nil {
		return nil, &UpstreamSchemaError{Path: profilePath, Err: err}
	}
	return &profile, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamFetchError{
			Method:     http.MethodGet,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &UpstreamSchemaError{Path: path, Err: err}
	}
	return nil
}
