package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load. The client secret is only ever taken
// from the environment.
const (
	EnvClientID     = "SUPABASE_CLIENT_ID"
	EnvClientSecret = "SUPABASE_CLIENT_SECRET"
	EnvAPIURL       = "SUPABASE_API_URL"
	EnvListen       = "SUPALINK_LISTEN"
	EnvBaseURL      = "SUPALINK_BASE_URL"
	EnvStorage      = "SUPALINK_STORAGE"
	EnvLogLevel     = "SUPALINK_LOG_LEVEL"
	EnvHome         = "SUPALINK_HOME"
)

const (
	defaultAPIURL = "https://api.supabase.com"
	defaultListen = "127.0.0.1:5173"
	defaultScope  = "supabase"

	// CallbackPath is where the provider sends the browser back to.
	CallbackPath = "/api/supabase/callback"
	// AuthorizePath starts the OAuth handshake.
	AuthorizePath = "/api/supabase/authorize"
	// SettingsPath is the post-connect landing page.
	SettingsPath = "/settings/connections"

	configFile = "config.yaml"
)

// StorageBackend selects the durable key-value implementation.
type StorageBackend string

const (
	StorageFile   StorageBackend = "file"
	StorageBadger StorageBackend = "badger"
	StorageMemory StorageBackend = "memory"
)

// Config holds the supalink configuration.
type Config struct {
	// Root is the state directory (~/.supalink).
	Root string `yaml:"-"`

	// Listen is the address the HTTP server binds to.
	Listen string `yaml:"listen"`

	// BaseURL is the externally visible origin of the server. Empty means
	// the callback derives it from each request.
	BaseURL string `yaml:"base_url"`

	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
	Supabase SupabaseConfig `yaml:"supabase"`
}

// StorageConfig selects and locates the durable store.
type StorageConfig struct {
	Backend StorageBackend `yaml:"backend"`
	// Path is a file for the file backend and a directory for badger.
	// Relative paths resolve against Root.
	Path string `yaml:"path"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// SupabaseConfig holds the OAuth application and API endpoints.
type SupabaseConfig struct {
	APIURL       string `yaml:"api_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"-"`
	Scope        string `yaml:"scope"`
}

// AuthorizeURL is the provider's authorization endpoint.
func (s SupabaseConfig) AuthorizeURL() string {
	return strings.TrimRight(s.APIURL, "/") + "/v1/oauth/authorize"
}

// TokenURL is the provider's token endpoint.
func (s SupabaseConfig) TokenURL() string {
	return strings.TrimRight(s.APIURL, "/") + "/v1/oauth/token"
}

// Default returns a config with every default filled in, rooted at root.
func Default(root string) *Config {
	return &Config{
		Root:   root,
		Listen: defaultListen,
		Storage: StorageConfig{
			Backend: StorageFile,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Supabase: SupabaseConfig{
			APIURL: defaultAPIURL,
			Scope:  defaultScope,
		},
	}
}

// Load builds the config from defaults, the YAML file, a .env file in the
// working directory and finally the environment. path may be empty, in which
// case <root>/config.yaml is used if present.
func Load(path string) (*Config, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	root, err := rootDir()
	if err != nil {
		return nil, err
	}
	cfg := Default(root)

	if path == "" {
		path = filepath.Join(root, configFile)
	}
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func rootDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(EnvHome)); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".supalink"), nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Supabase.ClientID, EnvClientID)
	set(&c.Supabase.ClientSecret, EnvClientSecret)
	set(&c.Supabase.APIURL, EnvAPIURL)
	set(&c.Listen, EnvListen)
	set(&c.BaseURL, EnvBaseURL)
	set(&c.Log.Level, EnvLogLevel)
	if v := strings.TrimSpace(os.Getenv(EnvStorage)); v != "" {
		c.Storage.Backend = StorageBackend(v)
	}
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageFile, StorageBadger, StorageMemory:
	default:
		return fmt.Errorf("unknown storage backend %q (want file, badger or memory)", c.Storage.Backend)
	}
	if c.Supabase.APIURL == "" {
		return fmt.Errorf("supabase.api_url must not be empty")
	}
	if c.BaseURL != "" && !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base_url must start with http:// or https://, got %q", c.BaseURL)
	}
	return nil
}

// StoragePath resolves Storage.Path against Root, picking a per-backend
// default when it is empty.
func (c *Config) StoragePath() string {
	p := c.Storage.Path
	if p == "" {
		if c.Storage.Backend == StorageBadger {
			p = "badger"
		} else {
			p = "state.json"
		}
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// RedirectURI returns the callback URL for the given request origin. A
// configured BaseURL wins over the origin.
func (c *Config) RedirectURI(origin string) string {
	base := c.BaseURL
	if base == "" {
		base = origin
	}
	return strings.TrimRight(base, "/") + CallbackPath
}

// ServerURL returns the URL a local browser should use to reach the server.
func (c *Config) ServerURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return "http://" + c.Listen
}
