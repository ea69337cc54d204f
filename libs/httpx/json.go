package httpx

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes v as a JSON response body with the given status.
// Encoding errors after the header is sent cannot be reported to the
// client and are dropped.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a machine-readable error body.
func WriteError(w http.ResponseWriter, status int, code string, message string) {
	WriteJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
