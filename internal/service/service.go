package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/moasq/supalink/internal/connection"
	"github.com/moasq/supalink/internal/metrics"
	"github.com/moasq/supalink/internal/oauth"
	"github.com/moasq/supalink/internal/supabase"
)

var (
	// ErrEmptyCredential is returned by ConnectWithToken for a blank token.
	ErrEmptyCredential = errors.New("access token is empty")
	// ErrNotConnected is returned when an operation needs a stored credential.
	ErrNotConnected = errors.New("not connected to Supabase")
)

// User-facing notification messages.
const (
	msgFetchFailed    = "Failed to fetch Supabase projects"
	msgConnectFailed  = "Failed to connect to Supabase"
	msgValidateFailed = "Failed to validate Supabase credential"
	msgConnected      = "Connected to Supabase"
	msgDisconnected   = "Disconnected from Supabase"
)

// Level classifies a notification.
type Level int

const (
	LevelSuccess Level = iota
	LevelError
)

// Notifier shows a short message to the user.
type Notifier func(level Level, msg string)

// API is the subset of the Management API the service uses.
type API interface {
	ListProjects(ctx context.Context) (*supabase.ProjectList, error)
	GetProfile(ctx context.Context) (*supabase.UserProfile, error)
}

// ClientFactory builds an API client for one access token.
type ClientFactory func(ctx context.Context, token string) (API, error)

// Service coordinates the Supabase connection lifecycle on top of the
// connection store.
type Service struct {
	store     *connection.Store
	flow      *oauth.Flow
	newClient ClientFactory
	notify    Notifier
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// ServiceOpts holds optional collaborators. Zero values get sensible
// defaults.
type ServiceOpts struct {
	APIURL     string
	HTTPClient *http.Client
	NewClient  ClientFactory
	Notify     Notifier
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewService creates a service over store. flow may be nil when the OAuth
// handshake is not used (the CLI's manual token path).
func NewService(store *connection.Store, flow *oauth.Flow, opts ...ServiceOpts) *Service {
	var o ServiceOpts
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Notify == nil {
		o.Notify = func(Level, string) {}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewClient == nil {
		apiURL := o.APIURL
		if apiURL == "" {
			apiURL = supabase.DefaultAPIURL
		}
		hc := o.HTTPClient
		o.NewClient = func(ctx context.Context, token string) (API, error) {
			var copts []supabase.Option
			if hc != nil {
				copts = append(copts, supabase.WithHTTPClient(hc))
			}
			return supabase.NewClient(ctx, apiURL, token, copts...)
		}
	}

	return &Service{
		store:     store,
		flow:      flow,
		newClient: o.NewClient,
		notify:    o.Notify,
		metrics:   o.Metrics,
		logger:    o.Logger.Named("service"),
		now:       o.Now,
	}
}

// Store returns the underlying connection store.
func (s *Service) Store() *connection.Store { return s.store }

// BeginConnect prepares a pending authorization and the provider URL to
// redirect to. The connecting flag is held only while preparing.
func (s *Service) BeginConnect(redirectURI string) (oauth.PendingAuthorization, string, error) {
	s.store.SetConnecting(true)
	defer s.store.SetConnecting(false)

	if s.flow == nil {
		return oauth.PendingAuthorization{}, "", fmt.Errorf("oauth flow not configured")
	}
	if err := s.flow.CheckClientID(); err != nil {
		return oauth.PendingAuthorization{}, "", err
	}
	p, err := oauth.NewPendingAuthorization()
	if err != nil {
		s.logger.Error("Failed to prepare authorization", zap.Error(err))
		return oauth.PendingAuthorization{}, "", err
	}
	return p, s.flow.AuthorizeURL(p, redirectURI), nil
}

// CompleteConnect stores the exchanged token. The user and project
// snapshot are cleared until the credential is validated again.
func (s *Service) CompleteConnect(ctx context.Context, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return ErrEmptyCredential
	}
	err := s.store.Update(
		connection.WithCredential(connection.Credential{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			TokenType:    tok.TokenType,
			Expiry:       tok.Expiry,
		}),
		connection.WithUser(nil),
		connection.WithProjects(nil),
		connection.WithStats(nil),
	)
	s.metrics.SetProjectsConnected(0)
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	s.logger.Info("Stored Supabase credential", zap.Bool("refresh_token", tok.RefreshToken != ""))
	return nil
}

// ValidateCredential loads the profile for the stored token and records it
// as the connected user. On failure the user stays unset.
func (s *Service) ValidateCredential(ctx context.Context) error {
	cred := s.store.Get().Credential
	if cred.Empty() {
		return ErrNotConnected
	}

	profile, err := s.profile(ctx, cred.AccessToken)
	if err != nil {
		s.logger.Error("Credential validation failed", zap.Error(err))
		s.notify(LevelError, msgValidateFailed)
		return err
	}
	if err := s.store.Update(connection.WithUser(profile)); err != nil {
		return fmt.Errorf("store profile: %w", err)
	}
	return nil
}

// Hydrate brings a freshly loaded store up to date: it validates a
// credential that has no user yet, then refreshes projects. Without a
// credential it does nothing.
func (s *Service) Hydrate(ctx context.Context) error {
	conn := s.store.Get()
	if conn.Credential.Empty() {
		return nil
	}
	if conn.User == nil {
		if err := s.ValidateCredential(ctx); err != nil {
			return err
		}
	}
	return s.FetchProjects(ctx)
}

// ConnectWithToken validates a personal access token and stores it. A blank
// token is rejected without touching the network or the store.
func (s *Service) ConnectWithToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyCredential
	}

	s.store.SetConnecting(true)
	defer s.store.SetConnecting(false)

	profile, err := s.profile(ctx, token)
	if err != nil {
		s.logger.Error("Failed to authenticate with Supabase", zap.Error(err))
		s.notify(LevelError, msgConnectFailed)
		return err
	}

	err = s.store.Update(
		connection.WithCredential(connection.Credential{AccessToken: token, TokenType: "bearer"}),
		connection.WithUser(profile),
		connection.WithProjects(nil),
		connection.WithStats(nil),
	)
	s.metrics.SetProjectsConnected(0)
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	s.notify(LevelSuccess, msgConnected)
	return nil
}

// Disconnect forgets the credential, user and projects. Token secrets are
// deleted from the secret store.
func (s *Service) Disconnect(ctx context.Context) error {
	err := s.store.Update(
		connection.WithUser(nil),
		connection.WithCredential(connection.Credential{}),
		connection.WithProjects(nil),
		connection.WithStats(nil),
	)
	s.metrics.SetProjectsConnected(0)
	if err != nil {
		return fmt.Errorf("clear connection: %w", err)
	}
	s.notify(LevelSuccess, msgDisconnected)
	return nil
}

// FetchProjects replaces the project snapshot and stats with the current
// list from the API. On failure the previous snapshot is kept, one error
// notification is shown and the error is returned. Concurrent calls are not
// coalesced.
func (s *Service) FetchProjects(ctx context.Context) error {
	token := s.store.Get().Credential.AccessToken
	if token == "" {
		return ErrNotConnected
	}

	s.store.SetFetchingProjects(true)
	defer s.store.SetFetchingProjects(false)

	list, err := s.listProjects(ctx, token)
	s.metrics.ProjectFetch(err)
	if err != nil {
		s.logger.Error(msgFetchFailed, zap.Error(err))
		s.notify(LevelError, msgFetchFailed)
		return err
	}

	err = s.store.Update(
		connection.WithProjects(list.Projects),
		connection.WithStats(&connection.Stats{
			TotalProjects: list.TotalProjects,
			FetchedAt:     s.now().UTC(),
		}),
	)
	s.metrics.SetProjectsConnected(list.TotalProjects)
	if err != nil {
		return fmt.Errorf("store projects: %w", err)
	}
	s.logger.Debug("Fetched projects", zap.Int("total", list.TotalProjects))
	return nil
}

// FetchStats refreshes the project list and returns the resulting stats.
func (s *Service) FetchStats(ctx context.Context) (*connection.Stats, error) {
	if err := s.FetchProjects(ctx); err != nil {
		return nil, err
	}
	return s.store.Get().Stats, nil
}

func (s *Service) listProjects(ctx context.Context, token string) (*supabase.ProjectList, error) {
	client, err := s.newClient(ctx, token)
	if err != nil {
		return nil, err
	}
	return client.ListProjects(ctx)
}

func (s *Service) profile(ctx context.Context, token string) (*supabase.UserProfile, error) {
	client, err := s.newClient(ctx, token)
	if err != nil {
		return nil, err
	}
	return client.GetProfile(ctx)
}
