package supabase

import (
	"errors"
	"fmt"
)

// ErrClientInit is returned by NewClient when it lacks a base URL or token.
var ErrClientInit = errors.New("supabase client requires an API URL and an access token")

// UpstreamFetchError is a non-2xx response from the Management API. Body is
// kept for server-side logs; Error never includes it.
type UpstreamFetchError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("API %s %s returned %d", e.Method, e.Path, e.StatusCode)
}

// Unauthorized reports whether the credential was rejected.
func (e *UpstreamFetchError) Unauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// UpstreamSchemaError is a 2xx response whose body does not match the
// expected schema.
type UpstreamSchemaError struct {
	Path string
	Err  error
}

func (e *UpstreamSchemaError) Error() string {
	return fmt.Sprintf("unexpected response shape from %s: %v", e.Path, e.Err)
}

func (e *UpstreamSchemaError) Unwrap() error { return e.Err }
