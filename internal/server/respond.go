package server

import (
	"encoding/json"
	"net/http"
)

func setJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Referrer-Policy", "no-referrer")
}

// respondJSON sends payload with status.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	setJSONHeaders(w)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError sends {"error": msg}. msg must be safe to show to a browser.
func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}
