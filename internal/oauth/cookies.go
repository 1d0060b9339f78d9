package oauth

import (
	"net/http"
	"time"
)

// Cookie names shared by the redirect initiator and the callback.
const (
	StateCookie    = "supabase_auth_state"
	VerifierCookie = "supabase_code_verifier"

	cookiePath   = "/api/supabase"
	cookieMaxAge = 10 * time.Minute
)

// SetPendingCookies stores p in two short-lived HttpOnly cookies scoped to
// the OAuth endpoints.
func SetPendingCookies(w http.ResponseWriter, r *http.Request, p PendingAuthorization) {
	for name, value := range map[string]string{
		StateCookie:    p.State,
		VerifierCookie: p.CodeVerifier,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     cookiePath,
			MaxAge:   int(cookieMaxAge.Seconds()),
			Expires:  time.Now().Add(cookieMaxAge),
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// ReadPendingCookies returns the stored state and verifier; missing cookies
// read as "".
func ReadPendingCookies(r *http.Request) (state, verifier string) {
	if c, err := r.Cookie(StateCookie); err == nil {
		state = c.Value
	}
	if c, err := r.Cookie(VerifierCookie); err == nil {
		verifier = c.Value
	}
	return state, verifier
}

// ClearPendingCookies expires both cookies so a pending authorization
// cannot be replayed.
func ClearPendingCookies(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{StateCookie, VerifierCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     cookiePath,
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
