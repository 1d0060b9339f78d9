package oauth

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every *Error unwraps to exactly one of these.
var (
	ErrMissingParameter    = errors.New("missing parameter")
	ErrStateMismatch       = errors.New("state mismatch")
	ErrMissingServerConfig = errors.New("missing server configuration")
	ErrUpstreamExchange    = errors.New("upstream token exchange failed")
	ErrExchange            = errors.New("token exchange error")
)

// Error is a terminal handshake failure with the HTTP status and the
// message that may be shown to the browser. Cause is for logs only.
type Error struct {
	Status  int
	Message string
	Kind    error
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

func badRequest(kind error, msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: msg, Kind: kind}
}

// ExchangeError is a non-2xx answer from the token endpoint. Body is only
// ever logged.
type ExchangeError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token endpoint returned %d", e.StatusCode)
}

func (e *ExchangeError) Unwrap() error { return e.Err }
