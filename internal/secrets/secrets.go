// Package secrets stores OAuth tokens outside the plain-text state file.
// It uses the OS keychain (macOS Keychain, Linux Secret Service) when
// available and falls back to a 0600 JSON file in containers and CI.
package secrets

import "errors"

// serviceName is the keychain service identifier for all supalink secrets.
const serviceName = "supalink"

// checkKey is written and removed once to see whether a keychain is usable.
const checkKey = "__supalink_check__"

// Keys under which the connection's tokens are stored.
const (
	AccessTokenKey  = "supabase_access_token"
	RefreshTokenKey = "supabase_refresh_token"
)

// SecretStore provides credential storage.
type SecretStore interface {
	// Get retrieves a secret by key. Returns ErrNotFound if not present.
	Get(key string) (string, error)
	// Set stores a secret under the given key, replacing any existing value.
	Set(key, value string) error
	// Delete removes a secret. No error if the key doesn't exist.
	Delete(key string) error
}

// ErrNotFound is returned when a secret key does not exist.
var ErrNotFound = errors.New("secret not found")

// New returns the best available SecretStore for the current environment.
// It tries the OS keychain first, falling back to a file in dir.
func New(dir string) SecretStore {
	ks := newKeychainStore(serviceName)
	if err := ks.Set(checkKey, "ok"); err != nil {
		return NewFileStore(dir)
	}
	_ = ks.Delete(checkKey)
	return ks
}
