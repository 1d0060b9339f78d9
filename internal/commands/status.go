package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/moasq/supalink/internal/connection"
	"github.com/moasq/supalink/internal/service"
	"github.com/moasq/supalink/internal/terminal"
)

var projectsRefresh bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the Supabase connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(appOpts{})
		if err != nil {
			return err
		}
		defer a.Close()
		printSummary(a.store.Summary())
		return nil
	},
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List the account's Supabase projects",
	Long:  "Lists the cached project snapshot. With --refresh the list is fetched from the Management API first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(appOpts{})
		if err != nil {
			return err
		}
		defer a.Close()

		if projectsRefresh {
			spinner := terminal.NewSpinner("Fetching projects")
			spinner.Start()
			err := a.svc.FetchProjects(cmd.Context())
			spinner.Stop()
			if err != nil {
				return fmt.Errorf("%s", userMessage(err))
			}
		}

		sum := a.store.Summary()
		if !sum.HasCredential {
			terminal.Info(userMessage(service.ErrNotConnected))
			return nil
		}
		if sum.Stats == nil {
			terminal.Info("No projects fetched yet. Run `supalink projects --refresh`.")
			return nil
		}
		printProjects(sum)
		return nil
	},
}

func init() {
	projectsCmd.Flags().BoolVar(&projectsRefresh, "refresh", false, "fetch the list from the API first")
}

func printSummary(sum connection.Summary) {
	terminal.Header("Supabase")
	switch {
	case sum.Connected:
		terminal.Detail("Status", terminal.Green+"connected"+terminal.Reset)
	case sum.HasCredential:
		terminal.Detail("Status", terminal.Yellow+"credential stored, not validated"+terminal.Reset)
	default:
		terminal.Detail("Status", "not connected")
		return
	}
	if sum.User != nil {
		terminal.Detail("User", sum.User.Name)
		if sum.User.Email != "" && sum.User.Email != sum.User.Name {
			terminal.Detail("Email", sum.User.Email)
		}
	}
	if sum.ExpiresAt != nil {
		terminal.Detail("Token expires", sum.ExpiresAt.Local().Format(time.RFC1123))
	}
	if sum.Stats != nil {
		terminal.Detail("Projects", strconv.Itoa(sum.Stats.TotalProjects))
		terminal.Detail("Fetched", sum.Stats.FetchedAt.Local().Format(time.RFC1123))
	}
}

func printProjects(sum connection.Summary) {
	terminal.Header(fmt.Sprintf("Projects (%d)", sum.Stats.TotalProjects))
	rows := make([][]string, 0, len(sum.Projects))
	for _, p := range sum.Projects {
		rows = append(rows, []string{p.ID, p.Name, p.Region, p.Status, p.URL})
	}
	terminal.Table([]string{"REF", "NAME", "REGION", "STATUS", "URL"}, rows)
}
