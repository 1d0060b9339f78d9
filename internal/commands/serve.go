package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moasq/supalink/internal/config"
	"github.com/moasq/supalink/internal/server"
	"github.com/moasq/supalink/internal/terminal"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local OAuth callback server",
	Long:  "Serves the OAuth authorize and callback endpoints, a JSON API over the connection and Prometheus metrics until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(appOpts{server: true, metrics: true})
		if err != nil {
			return err
		}
		defer a.Close()

		if a.cfg.Supabase.ClientID == "" || a.cfg.Supabase.ClientSecret == "" {
			terminal.Warning("SUPABASE_CLIENT_ID or SUPABASE_CLIENT_SECRET is not set; OAuth connect will fail.")
		}

		go func() {
			if err := a.svc.Hydrate(cmd.Context()); err != nil {
				a.logger.Warn("Startup refresh failed", zap.Error(err))
			}
		}()

		terminal.Banner(Version)
		terminal.Detail("Connect", a.cfg.ServerURL()+config.AuthorizePath)
		terminal.Detail("Callback", a.cfg.RedirectURI(a.cfg.ServerURL()))
		terminal.Detail("Storage", string(a.cfg.Storage.Backend)+" "+a.cfg.StoragePath())

		srv := server.New(a.cfg, a.svc, a.flow, a.metrics, a.logger)
		return srv.Start(cmd.Context())
	},
}
