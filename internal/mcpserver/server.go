// Package mcpserver exposes the Supabase connection to MCP clients over
// stdio. No tool ever returns a token.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/moasq/supalink/internal/service"
)

// NewServer registers the connection tools on a new MCP server.
func NewServer(svc *service.Service, version string) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "supalink",
			Version: version,
		},
		nil,
	)
	t := &tools{svc: svc}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "connection_status",
		Description: "Show whether a Supabase account is connected, which user it belongs to and when projects were last fetched. Never includes tokens.",
	}, t.handleConnectionStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_projects",
		Description: "List the Supabase projects from the last fetch (id, name, region, status, url). Does not call the API; use refresh_projects for fresh data.",
	}, t.handleListProjects)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "refresh_projects",
		Description: "Fetch the project list from the Supabase Management API and replace the cached snapshot. Requires a connected account.",
	}, t.handleRefreshProjects)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_project_url",
		Description: "Get the REST URL (https://<ref>.supabase.co) of a project by ref or name.",
	}, t.handleGetProjectURL)

	return server
}

// Run serves the tools over stdio until the client disconnects or ctx is
// cancelled.
func Run(ctx context.Context, svc *service.Service, version string) error {
	return NewServer(svc, version).Run(ctx, &mcp.StdioTransport{})
}
