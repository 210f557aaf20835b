package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/driftfs/driftfs/pkg/api/middleware"
	"github.com/driftfs/driftfs/pkg/vfs"
)

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns true if successful, false if decoding fails (error response is written automatically).
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// principalOrError extracts the authenticated principal. A missing identity
// means a route was wired without the Authenticate middleware; that is a
// server bug, not a client error.
func principalOrError(w http.ResponseWriter, r *http.Request) (vfs.Principal, bool) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		InternalServerError(w, "request reached a protected handler without an identity")
		return vfs.Principal{}, false
	}
	return identity.Principal, true
}

// requiredQuery returns a query parameter, writing 400 when it is absent.
func requiredQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value := r.URL.Query().Get(name)
	if value == "" {
		BadRequest(w, "query parameter '"+name+"' is required")
		return "", false
	}
	return value, true
}

// intQuery parses an optional integer query parameter, writing 400 on junk.
func intQuery(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		BadRequest(w, "query parameter '"+name+"' must be an integer")
		return 0, false
	}
	return value, true
}

// boolQuery parses an optional boolean query parameter. Absent or
// unparseable values yield the fallback.
func boolQuery(r *http.Request, name string, fallback bool) bool {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
