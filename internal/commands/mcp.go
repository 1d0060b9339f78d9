package commands

import (
	"github.com/spf13/cobra"

	"github.com/moasq/supalink/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server over stdio",
	Long:  "Starts an MCP server over stdio exposing the connection status and the project list. Tokens are never returned.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(appOpts{server: true})
		if err != nil {
			return err
		}
		defer a.Close()
		return mcpserver.Run(cmd.Context(), a.svc, Version)
	},
}
