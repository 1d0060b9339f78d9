package server

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/moasq/supalink/internal/service"
)

// handleSettings is the post-connect landing page. Like the settings view
// it refreshes a stored credential before showing the connection.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Hydrate(r.Context()); err != nil {
		s.logger.Warn("Could not refresh connection", zap.Error(err))
	}
	respondJSON(w, http.StatusOK, s.svc.Store().Summary())
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.Store().Summary())
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Disconnect(r.Context()); err != nil {
		s.logger.Error("Disconnect failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to disconnect")
		return
	}
	respondJSON(w, http.StatusOK, s.svc.Store().Summary())
}

func (s *Server) handleRefreshProjects(w http.ResponseWriter, r *http.Request) {
	err := s.svc.FetchProjects(r.Context())
	switch {
	case errors.Is(err, service.ErrNotConnected):
		respondError(w, http.StatusConflict, "Not connected to Supabase")
		return
	case err != nil:
		respondError(w, http.StatusBadGateway, "Failed to fetch Supabase projects")
		return
	}
	respondJSON(w, http.StatusOK, s.svc.Store().Summary())
}
