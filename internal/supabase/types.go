package supabase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// UserProfile is the account behind an access token.
type UserProfile struct {
	ID        string `json:"id" validate:"required"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// UnmarshalJSON accepts both the Management API profile shape
// (gotrue_id, primary_email, username) and the flat shape stored locally.
func (u *UserProfile) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	first := func(fields ...string) string {
		for _, f := range fields {
			if v, ok := raw[f].(string); ok && v != "" {
				return v
			}
		}
		return ""
	}
	u.ID = first("id", "gotrue_id")
	u.Email = first("email", "primary_email")
	u.Name = first("name", "username", "full_name")
	u.AvatarURL = first("avatar_url")
	if u.Name == "" {
		u.Name = u.Email
	}
	return nil
}

// ProjectSummary is one entry of the account's project list.
type ProjectSummary struct {
	ID             string `json:"id" validate:"required"`
	Name           string `json:"name" validate:"required"`
	OrganizationID string `json:"organization_id,omitempty"`
	Region         string `json:"region,omitempty"`
	Status         string `json:"status,omitempty"`
	URL            string `json:"url,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// Created parses CreatedAt. The zero time is returned when it is absent or
// malformed.
func (p ProjectSummary) Created() time.Time {
	t, err := time.Parse(time.RFC3339, p.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ProjectURL returns the REST endpoint for a project ref.
func ProjectURL(ref string) string {
	return fmt.Sprintf("https://%s.supabase.co", ref)
}

// ProjectList is the normalized "list projects" response.
type ProjectList struct {
	Projects      []ProjectSummary `json:"projects" validate:"dive"`
	TotalProjects int              `json:"totalProjects" validate:"gte=0"`
}

// UnmarshalJSON accepts either a bare array of projects or an object of the
// form {"projects": [...], "totalProjects": n}.
func (l *ProjectList) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		return fmt.Errorf("project list is null")
	}
	var arr []ProjectSummary
	if err := json.Unmarshal(data, &arr); err == nil {
		l.Projects = arr
		l.TotalProjects = len(arr)
		return nil
	}

	var obj struct {
		Projects      *[]ProjectSummary `json:"projects"`
		TotalProjects *int              `json:"totalProjects"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("expected array or {projects, totalProjects}: %w", err)
	}
	if obj.Projects == nil {
		return fmt.Errorf("missing \"projects\" field")
	}
	l.Projects = *obj.Projects
	l.TotalProjects = len(l.Projects)
	if obj.TotalProjects != nil {
		l.TotalProjects = *obj.TotalProjects
	}
	return nil
}

// normalize fills derived fields and guarantees a non-nil slice.
func (l *ProjectList) normalize() {
	if l.Projects == nil {
		l.Projects = []ProjectSummary{}
	}
	for i := range l.Projects {
		if l.Projects[i].URL == "" {
			l.Projects[i].URL = ProjectURL(l.Projects[i].ID)
		}
	}
}
