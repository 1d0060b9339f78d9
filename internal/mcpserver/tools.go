package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/moasq/supalink/internal/service"
	"github.com/moasq/supalink/internal/supabase"
)

type textOutput struct {
	Message string `json:"message"`
}

type tools struct {
	svc *service.Service
}

func jsonOutput(v any) (textOutput, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return textOutput{}, fmt.Errorf("encode result: %w", err)
	}
	return textOutput{Message: string(raw)}, nil
}

// --- connection_status ---

type connectionStatusInput struct{}

func (t *tools) handleConnectionStatus(ctx context.Context, req *mcp.CallToolRequest, input connectionStatusInput) (*mcp.CallToolResult, textOutput, error) {
	out, err := jsonOutput(t.svc.Store().Summary())
	return nil, out, err
}

// --- list_projects ---

type listProjectsInput struct{}

func (t *tools) handleListProjects(ctx context.Context, req *mcp.CallToolRequest, input listProjectsInput) (*mcp.CallToolResult, textOutput, error) {
	conn := t.svc.Store().Get()
	if conn.Credential.Empty() {
		return nil, textOutput{}, service.ErrNotConnected
	}
	if conn.Projects == nil {
		return nil, textOutput{Message: "Projects have not been fetched yet. Call refresh_projects."}, nil
	}
	out, err := jsonOutput(conn.Projects)
	return nil, out, err
}

// --- refresh_projects ---

type refreshProjectsInput struct{}

func (t *tools) handleRefreshProjects(ctx context.Context, req *mcp.CallToolRequest, input refreshProjectsInput) (*mcp.CallToolResult, textOutput, error) {
	if err := t.svc.FetchProjects(ctx); err != nil {
		return nil, textOutput{}, err
	}
	// A disconnect may land between the fetch and this read.
	conn := t.svc.Store().Get()
	total := len(conn.Projects)
	if conn.Stats != nil {
		total = conn.Stats.TotalProjects
	}
	out, err := jsonOutput(struct {
		TotalProjects int                       `json:"total_projects"`
		Projects      []supabase.ProjectSummary `json:"projects"`
	}{total, conn.Projects})
	return nil, out, err
}

// --- get_project_url ---

type getProjectURLInput struct {
	Project string `json:"project" jsonschema:"Project ref or name"`
}

func (t *tools) handleGetProjectURL(ctx context.Context, req *mcp.CallToolRequest, input getProjectURLInput) (*mcp.CallToolResult, textOutput, error) {
	want := strings.TrimSpace(input.Project)
	if want == "" {
		return nil, textOutput{}, fmt.Errorf("project is required")
	}
	for _, p := range t.svc.Store().Get().Projects {
		if p.ID == want || strings.EqualFold(p.Name, want) {
			return nil, textOutput{Message: p.URL}, nil
		}
	}
	return nil, textOutput{}, fmt.Errorf("project %q not found in the cached list", want)
}
