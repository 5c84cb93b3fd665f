package api

import (
	"net/http"

	"github.com/Sreeharicse/Metal-management-system/internal/auth"
)

// Caller returns the authenticated identity or writes 401 and returns
// ok=false. The auth middleware normally guarantees an identity is present;
// this guards routes wired without it.
func Caller(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		WriteError(w, "authentication required", http.StatusUnauthorized)
		return auth.Identity{}, false
	}
	return identity, true
}

// AdminCaller returns the authenticated identity if it carries the admin
// role, otherwise writes the failure response and returns ok=false.
func AdminCaller(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, ok := Caller(w, r)
	if !ok {
		return identity, false
	}
	if !identity.IsAdmin() {
		WriteError(w, "admin role required", http.StatusForbidden)
		return identity, false
	}
	return identity, true
}
