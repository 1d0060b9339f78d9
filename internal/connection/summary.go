package connection

import (
	"time"

	"github.com/moasq/supalink/internal/supabase"
)

// Summary is the token-free view of the connection shown to users and
// tools.
type Summary struct {
	Connected        bool                      `json:"connected"`
	HasCredential    bool                      `json:"has_credential"`
	HasRefreshToken  bool                      `json:"has_refresh_token"`
	ExpiresAt        *time.Time                `json:"expires_at,omitempty"`
	User             *supabase.UserProfile     `json:"user"`
	Projects         []supabase.ProjectSummary `json:"projects"`
	Stats            *Stats                    `json:"stats,omitempty"`
	Connecting       bool                      `json:"connecting"`
	FetchingProjects bool                      `json:"fetching_projects"`
}

// Summary returns the current state without any token values.
func (s *Store) Summary() Summary {
	conn := s.Get()
	sum := Summary{
		Connected:        conn.Connected(),
		HasCredential:    !conn.Credential.Empty(),
		HasRefreshToken:  conn.Credential.RefreshToken != "",
		User:             conn.User,
		Projects:         conn.Projects,
		Stats:            conn.Stats,
		Connecting:       s.Connecting(),
		FetchingProjects: s.FetchingProjects(),
	}
	if sum.Projects == nil {
		sum.Projects = []supabase.ProjectSummary{}
	}
	if !conn.Credential.Expiry.IsZero() {
		exp := conn.Credential.Expiry
		sum.ExpiresAt = &exp
	}
	return sum
}
