package commands

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"

	"go.uber.org/zap"

	"github.com/moasq/supalink/internal/config"
	"github.com/moasq/supalink/internal/connection"
	"github.com/moasq/supalink/internal/kv"
	"github.com/moasq/supalink/internal/logging"
	"github.com/moasq/supalink/internal/metrics"
	"github.com/moasq/supalink/internal/oauth"
	"github.com/moasq/supalink/internal/secrets"
	"github.com/moasq/supalink/internal/service"
	"github.com/moasq/supalink/internal/terminal"
)

// cliLogLevel keeps terminal output clean unless --log-level says otherwise.
const cliLogLevel = "warn"

// app is the wired set of components one command works with.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	kv      kv.Store
	store   *connection.Store
	flow    *oauth.Flow
	metrics *metrics.Metrics
	svc     *service.Service
}

type appOpts struct {
	// server selects the config log level and log-only notifications.
	server  bool
	metrics bool
}

func loadApp(opts appOpts) (*app, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if !opts.server {
		level = cliLogLevel
	}
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	logger, err := logging.New(level, logging.Format(cfg.Log.Format))
	if err != nil {
		return nil, err
	}

	kvs, err := kv.Open(string(cfg.Storage.Backend), cfg.StoragePath())
	if err != nil {
		if cfg.Storage.Backend == config.StorageBadger {
			return nil, fmt.Errorf("open %s (is `supalink serve` running?): %w", cfg.StoragePath(), err)
		}
		return nil, err
	}
	// Memory storage keeps tokens inline so nothing reaches the keychain.
	var ss secrets.SecretStore
	if cfg.Storage.Backend != config.StorageMemory {
		ss = secrets.New(cfg.Root)
	}

	store := connection.NewStore(kvs, ss, logger)
	if err := store.Load(); err != nil {
		kvs.Close()
		return nil, err
	}

	flow := oauth.NewFlow(oauth.ClientConfig{
		ClientID:     cfg.Supabase.ClientID,
		ClientSecret: cfg.Supabase.ClientSecret,
		AuthURL:      cfg.Supabase.AuthorizeURL(),
		TokenURL:     cfg.Supabase.TokenURL(),
		Scope:        cfg.Supabase.Scope,
	}, nil)

	var m *metrics.Metrics
	if opts.metrics {
		m = metrics.New()
	}

	notify := terminalNotifier
	if opts.server {
		notify = logNotifier(logger)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		kv:      kvs,
		store:   store,
		flow:    flow,
		metrics: m,
		svc: service.NewService(store, flow, service.ServiceOpts{
			APIURL:  cfg.Supabase.APIURL,
			Notify:  notify,
			Metrics: m,
			Logger:  logger,
		}),
	}, nil
}

// Close releases the storage and flushes the logger.
func (a *app) Close() {
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			a.logger.Warn("Failed to close storage", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func terminalNotifier(level service.Level, msg string) {
	if level == service.LevelError {
		terminal.Error(msg)
		return
	}
	terminal.Success(msg)
}

func logNotifier(logger *zap.Logger) service.Notifier {
	return func(level service.Level, msg string) {
		if level == service.LevelError {
			logger.Warn(msg)
			return
		}
		logger.Info(msg)
	}
}

// openBrowser opens url with the platform's default handler.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// userMessage turns a service error into a short hint for the terminal.
func userMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrNotConnected):
		return "Not connected. Run `supalink connect` or `supalink login` first."
	case errors.Is(err, service.ErrEmptyCredential):
		return "No access token given."
	default:
		return err.Error()
	}
}
