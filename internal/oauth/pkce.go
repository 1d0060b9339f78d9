package oauth

import (
	"crypto/subtle"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// PendingAuthorization is the anti-forgery state and PKCE verifier created
// for one connect attempt. It is single-use.
type PendingAuthorization struct {
	State        string
	CodeVerifier string
}

// NewPendingAuthorization generates a random UUID state and a fresh PKCE
// verifier.
func NewPendingAuthorization() (PendingAuthorization, error) {
	state, err := uuid.NewRandom()
	if err != nil {
		return PendingAuthorization{}, fmt.Errorf("generate state: %w", err)
	}
	return PendingAuthorization{
		State:        state.String(),
		CodeVerifier: oauth2.GenerateVerifier(),
	}, nil
}

// CodeChallenge returns BASE64URL(SHA256(verifier)) for the S256 method.
func (p PendingAuthorization) CodeChallenge() string {
	return oauth2.S256ChallengeFromVerifier(p.CodeVerifier)
}

// CallbackParams is what the callback has to work with: the query
// parameters and the values stored at redirect time.
type CallbackParams struct {
	Code         string
	State        string
	StoredState  string
	CodeVerifier string
}

// Validate runs the callback checks in order and returns the first failure.
// The state comparison is constant-time.
func (p CallbackParams) Validate() error {
	if p.Code == "" {
		return badRequest(ErrMissingParameter, "Missing code parameter")
	}
	if p.State == "" {
		return badRequest(ErrMissingParameter, "Missing state parameter")
	}
	if p.StoredState == "" {
		return badRequest(ErrMissingParameter, "Missing stored state")
	}
	if subtle.ConstantTimeCompare([]byte(p.State), []byte(p.StoredState)) != 1 {
		return badRequest(ErrStateMismatch, "Invalid state parameter")
	}
	if p.CodeVerifier == "" {
		return badRequest(ErrMissingParameter, "Missing code verifier")
	}
	return nil
}
