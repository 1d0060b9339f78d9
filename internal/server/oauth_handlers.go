package server

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/moasq/supalink/internal/config"
	"github.com/moasq/supalink/internal/connection"
	"github.com/moasq/supalink/internal/oauth"
)

// handleAuthorize starts the handshake: it stores a fresh pending
// authorization in cookies and redirects to the provider.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	redirectURI := s.cfg.RedirectURI(requestOrigin(r))
	p, authURL, err := s.svc.BeginConnect(redirectURI)
	if err != nil {
		var oe *oauth.Error
		if errors.As(err, &oe) {
			s.logger.Error("Cannot start authorization", zap.String("reason", oe.Message))
			respondError(w, oe.Status, oe.Message)
			return
		}
		s.logger.Error("Cannot start authorization", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to start authorization")
		return
	}

	oauth.SetPendingCookies(w, r, p)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleCallback completes the handshake. Each check is terminal; the
// pending-authorization cookies are cleared once they have been read.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := oauth.CallbackParams{
		Code:  q.Get("code"),
		State: q.Get("state"),
	}
	if params.Code != "" && params.State != "" {
		params.StoredState, params.CodeVerifier = oauth.ReadPendingCookies(r)
		oauth.ClearPendingCookies(w, r)
	}

	if err := params.Validate(); err != nil {
		s.callbackFailed(w, err)
		return
	}
	if err := s.flow.CheckServerConfig(); err != nil {
		s.callbackFailed(w, err)
		return
	}

	redirectURI := s.cfg.RedirectURI(requestOrigin(r))
	tok, err := s.flow.Exchange(r.Context(), params.Code, params.CodeVerifier, redirectURI)
	s.metrics.TokenExchange(err)
	if err != nil {
		s.callbackFailed(w, err)
		return
	}

	if err := s.svc.CompleteConnect(r.Context(), tok); err != nil {
		if !errors.Is(err, connection.ErrPersist) {
			s.logger.Error("Failed to store credential", zap.Error(err))
			s.metrics.OAuthCallback("store_error")
			respondError(w, http.StatusInternalServerError, "Failed to store credential")
			return
		}
		s.logger.Warn("Credential not persisted; kept for this process only", zap.Error(err))
	}

	s.metrics.OAuthCallback("success")
	s.logger.Info("Supabase connected")
	http.Redirect(w, r, config.SettingsPath, http.StatusFound)
}

func (s *Server) callbackFailed(w http.ResponseWriter, err error) {
	var oe *oauth.Error
	if !errors.As(err, &oe) {
		s.logger.Error("OAuth callback failed", zap.Error(err))
		s.metrics.OAuthCallback("error")
		respondError(w, http.StatusInternalServerError, "Error exchanging code for token")
		return
	}

	fields := []zap.Field{zap.Int("status", oe.Status), zap.String("reason", oe.Message)}
	var ee *oauth.ExchangeError
	if errors.As(oe.Cause, &ee) {
		fields = append(fields, zap.Int("upstream_status", ee.StatusCode), zap.String("upstream_body", ee.Body))
	} else if oe.Cause != nil {
		fields = append(fields, zap.Error(oe.Cause))
	}
	if oe.Status >= http.StatusInternalServerError {
		s.logger.Error("OAuth callback failed", fields...)
	} else {
		s.logger.Warn("OAuth callback rejected", fields...)
	}

	s.metrics.OAuthCallback(callbackResult(oe.Kind))
	respondError(w, oe.Status, oe.Message)
}

func callbackResult(kind error) string {
	switch kind {
	case oauth.ErrMissingParameter:
		return "missing_parameter"
	case oauth.ErrStateMismatch:
		return "state_mismatch"
	case oauth.ErrMissingServerConfig:
		return "server_config"
	case oauth.ErrUpstreamExchange:
		return "exchange_rejected"
	default:
		return "exchange_error"
	}
}
