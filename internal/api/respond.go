// Package api holds the shared HTTP response helpers: JSON writing and the
// mapping from store/lock errors to status codes.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Sreeharicse/Metal-management-system/internal/keymutex"
	"github.com/Sreeharicse/Metal-management-system/internal/store"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, message string, status int) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// Error maps a sentinel error to its status code and writes the response.
// Unknown errors become 500 without leaking internals.
func Error(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteError(w, "not found", http.StatusNotFound)
	case errors.Is(err, store.ErrConflict):
		WriteError(w, "conflict", http.StatusConflict)
	case errors.Is(err, store.ErrInsufficientStock):
		WriteError(w, "insufficient platform stock", http.StatusConflict)
	case errors.Is(err, store.ErrInsufficientHoldings):
		WriteError(w, "insufficient holdings", http.StatusConflict)
	case errors.Is(err, keymutex.ErrTimeout):
		WriteError(w, "operation timed out acquiring the metal lock", http.StatusServiceUnavailable)
	default:
		WriteError(w, "internal error", http.StatusInternalServerError)
	}
}
