// Package connection holds the Supabase connection state: credential,
// validated user profile and the last fetched project snapshot. Every
// committed change is persisted to the durable key-value store.
package connection

import (
	"time"

	"github.com/moasq/supalink/internal/supabase"
)

// Credential is the OAuth token pair (or a personal access token with no
// refresh token).
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

// Empty reports whether there is no access token.
func (c Credential) Empty() bool { return c.AccessToken == "" }

// Stats summarizes the last project fetch.
type Stats struct {
	TotalProjects int       `json:"total_projects"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// Connection is the whole persisted state. User is set only after the
// credential has been accepted by the API at least once. A nil Projects
// means "never fetched"; an empty slice means the account has none.
type Connection struct {
	User       *supabase.UserProfile     `json:"user"`
	Credential Credential                `json:"credential"`
	Projects   []supabase.ProjectSummary `json:"projects"`
	Stats      *Stats                    `json:"stats,omitempty"`
}

// Connected reports whether a validated credential is present.
func (c Connection) Connected() bool {
	return c.User != nil && !c.Credential.Empty()
}

func (c Connection) clone() Connection {
	out := c
	if c.User != nil {
		u := *c.User
		out.User = &u
	}
	if c.Projects != nil {
		out.Projects = append([]supabase.ProjectSummary{}, c.Projects...)
	}
	if c.Stats != nil {
		st := *c.Stats
		out.Stats = &st
	}
	return out
}

// Field replaces one top-level field of a Connection. Update applies a
// list of Fields as a shallow merge.
type Field func(*Connection)

// WithUser sets (or, with nil, clears) the validated profile.
func WithUser(u *supabase.UserProfile) Field {
	return func(c *Connection) {
		if u == nil {
			c.User = nil
			return
		}
		cp := *u
		c.User = &cp
	}
}

// WithCredential replaces the credential.
func WithCredential(cred Credential) Field {
	return func(c *Connection) { c.Credential = cred }
}

// WithProjects replaces the project snapshot.
func WithProjects(projects []supabase.ProjectSummary) Field {
	return func(c *Connection) {
		if projects == nil {
			c.Projects = nil
			return
		}
		c.Projects = append([]supabase.ProjectSummary{}, projects...)
	}
}

// WithStats replaces the stats snapshot.
func WithStats(st *Stats) Field {
	return func(c *Connection) {
		if st == nil {
			c.Stats = nil
			return
		}
		cp := *st
		c.Stats = &cp
	}
}
