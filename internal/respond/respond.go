// Package respond writes the JSON bodies shared by every HTTP surface.
package respond

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the envelope for every error response.
type ErrorBody struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// JSON writes payload with the given status.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// Error writes an ErrorBody. The optional suggestion is included when given.
func Error(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := ErrorBody{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	JSON(w, status, resp)
}

// InternalError writes a 500 carrying err's message.
func InternalError(w http.ResponseWriter, err error) {
	Error(w, http.StatusInternalServerError, "Internal error", err.Error())
}
