package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moasq/supalink/internal/config"
	"github.com/moasq/supalink/internal/connection"
	"github.com/moasq/supalink/internal/service"
	"github.com/moasq/supalink/internal/terminal"
)

// supabaseTokensURL is the dashboard page where users generate access tokens.
const supabaseTokensURL = "https://supabase.com/dashboard/account/tokens"

const (
	connectPollInterval = time.Second
	connectTimeout      = 5 * time.Minute
)

var (
	connectNoWait bool
	connectNoOpen bool
	loginToken    string
	disconnectYes bool
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect a Supabase account with OAuth",
	Long:  "Opens the running server's authorize endpoint in the browser and waits until the callback has stored a credential. Requires `supalink serve`.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFlag)
		if err != nil {
			return err
		}
		base := cfg.ServerURL()
		hc := &http.Client{Timeout: 5 * time.Second}

		if err := checkServer(cmd.Context(), hc, base); err != nil {
			return fmt.Errorf("supalink server not reachable at %s, start it with `supalink serve`: %w", base, err)
		}

		// Anything already stored must not count as the new authorization.
		baseline, err := fetchSummary(cmd.Context(), hc, base)
		if err != nil {
			return fmt.Errorf("read connection state from %s: %w", base, err)
		}

		authorizeURL := base + config.AuthorizePath
		if connectNoOpen {
			terminal.Info("Open this URL in your browser: " + authorizeURL)
		} else if err := openBrowser(authorizeURL); err != nil {
			terminal.Warning("Could not open a browser. Open this URL: " + authorizeURL)
		} else {
			terminal.Info("Opened " + authorizeURL)
		}
		if connectNoWait {
			return nil
		}

		spinner := terminal.NewSpinner("Waiting for Supabase authorization")
		spinner.Start()
		ctx, cancel := context.WithTimeout(cmd.Context(), connectTimeout)
		defer cancel()
		sum, err := waitForConnection(ctx, hc, base, baseline, connectPollInterval)
		spinner.Stop()
		if err != nil {
			return err
		}

		terminal.Success("Connected to Supabase")
		printSummary(sum)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Connect with a personal access token",
	Long:  "Validates a Supabase personal access token against the Management API and stores it. Without --token the token is read from a hidden prompt.",
	RunE: func(cmd *cobra.Command, args []string) error {
		token := loginToken
		if token == "" {
			terminal.Info("Create a token at " + supabaseTokensURL)
			var err error
			if token, err = terminal.ReadSecret("Access token:"); err != nil {
				return err
			}
		}

		a, err := loadApp(appOpts{})
		if err != nil {
			return err
		}
		defer a.Close()
		return loginRun(cmd.Context(), a, token)
	},
}

func loginRun(ctx context.Context, a *app, token string) error {
	if err := a.svc.ConnectWithToken(ctx, token); err != nil {
		if errors.Is(err, service.ErrEmptyCredential) {
			return errors.New(userMessage(err))
		}
		return err
	}
	if err := a.svc.FetchProjects(ctx); err != nil {
		a.logger.Warn("Project fetch after login failed", zap.Error(err))
	}
	printSummary(a.store.Summary())
	return nil
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Forget the stored Supabase credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(appOpts{})
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.store.Summary().HasCredential {
			terminal.Info("Not connected.")
			return nil
		}
		if !disconnectYes && !terminal.Confirm("Disconnect from Supabase?") {
			return nil
		}
		return a.svc.Disconnect(cmd.Context())
	},
}

func init() {
	connectCmd.Flags().BoolVar(&connectNoWait, "no-wait", false, "return right after opening the browser")
	connectCmd.Flags().BoolVar(&connectNoOpen, "no-open", false, "print the URL instead of opening a browser")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "personal access token (prompted when omitted)")
	disconnectCmd.Flags().BoolVarP(&disconnectYes, "yes", "y", false, "do not ask for confirmation")
}

func checkServer(ctx context.Context, hc *http.Client, base string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthz returned %d", resp.StatusCode)
	}
	return nil
}

// waitForConnection polls the server until it reports a validated
// connection that differs from baseline, or ctx ends. Reaching the deadline
// is always an error, even when an older credential is stored.
func waitForConnection(ctx context.Context, hc *http.Client, base string, baseline connection.Summary, interval time.Duration) (connection.Summary, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sum, err := fetchSummary(ctx, hc, base)
		if err == nil && sum.Connected && newConnection(baseline, sum) {
			return sum, nil
		}

		select {
		case <-ctx.Done():
			return connection.Summary{}, fmt.Errorf("timed out waiting for authorization: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// newConnection reports whether sum reflects a credential stored after
// baseline was taken.
func newConnection(baseline, sum connection.Summary) bool {
	if !baseline.HasCredential {
		return sum.HasCredential
	}
	if !sameTime(baseline.ExpiresAt, sum.ExpiresAt) {
		return true
	}
	return userID(baseline) != userID(sum)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func userID(s connection.Summary) string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

func fetchSummary(ctx context.Context, hc *http.Client, base string) (connection.Summary, error) {
	var sum connection.Summary
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/supabase/connection", nil)
	if err != nil {
		return sum, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return sum, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return sum, fmt.Errorf("connection endpoint returned %d", resp.StatusCode)
	}
	err = json.NewDecoder(resp.Body).Decode(&sum)
	return sum, err
}
