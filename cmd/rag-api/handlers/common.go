// Package handlers provides HTTP handlers for the RAG engine API.
package handlers

import (
	"encoding/json"
	"net/http"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError emits the JSON error body. The primary field is detail; when a
// hint is supplied it is appended after the message.
func writeError(w http.ResponseWriter, status int, message, hint string) {
	detail := message
	if hint != "" {
		detail = message + ": " + hint
	}
	writeJSON(w, status, map[string]string{"detail": detail})
}
