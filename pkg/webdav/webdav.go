// Package webdav exposes the filesystem engine over WebDAV. The adapter
// translates DAV verbs to facade calls and adds the interop headers Windows
// and macOS clients expect. Locks are per-process in-memory, matching the
// engine's cache coherence stance.
package webdav

import (
	"net/http"

	"golang.org/x/net/webdav"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/pkg/api/auth"
	"github.com/driftfs/driftfs/pkg/api/middleware"
	"github.com/driftfs/driftfs/pkg/controlplane/models"
)

// Prefix is the URL prefix the endpoint is mounted under.
const Prefix = "/dav"

// supportedMethods is the Allow/Public method list.
const supportedMethods = "OPTIONS, GET, HEAD, PUT, DELETE, PROPFIND, PROPPATCH, MKCOL, COPY, MOVE, LOCK, UNLOCK"

// Handler serves the WebDAV endpoint. Authentication is HTTP Basic: the admin
// username/password or an API key as "<prefix>"/"<secret>".
type Handler struct {
	config Config
	engine Engine
	admin  auth.AdminCredentials
	keys   middleware.KeyStore
	locks  webdav.LockSystem
}

// NewHandler creates the WebDAV handler.
func NewHandler(config Config, engine Engine, admin auth.AdminCredentials, keys middleware.KeyStore) *Handler {
	config.applyDefaults()
	return &Handler{
		config: config,
		engine: engine,
		admin:  admin,
		keys:   keys,
		locks:  webdav.NewMemLS(),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.setHeaders(w)

	// OPTIONS is answered without auth; clients probe it before sending
	// credentials.
	if r.Method == http.MethodOptions {
		w.Header().Set("Allow", supportedMethods)
		w.Header().Set("Public", supportedMethods)
		w.WriteHeader(http.StatusOK)
		return
	}

	username, password, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="DriftFS"`)
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	identity, err := middleware.ResolveBasicAuth(r.Context(), username, password, h.admin, h.keys)
	if err != nil {
		logger.WarnCtx(r.Context(), "WebDAV authentication failed", "username", username)
		w.Header().Set("WWW-Authenticate", `Basic realm="DriftFS"`)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if !identity.HasPermission(requiredPermission(r.Method)) {
		http.Error(w, "Permission denied", http.StatusForbidden)
		return
	}

	dav := &webdav.Handler{
		Prefix:     Prefix,
		FileSystem: &davFS{engine: h.engine, principal: identity.Principal},
		LockSystem: h.locks,
		Logger: func(r *http.Request, err error) {
			if err != nil {
				logger.DebugCtx(r.Context(), "WebDAV request failed",
					"method", r.Method,
					"path", r.URL.Path,
					"error", err,
				)
			}
		},
	}
	dav.ServeHTTP(w, r)
}

// setHeaders writes the protocol and CORS headers every response carries.
func (h *Handler) setHeaders(w http.ResponseWriter) {
	hdr := w.Header()
	hdr.Set("DAV", "1,2")
	hdr.Set("MS-Author-Via", "DAV")
	hdr.Set("Microsoft-Server-WebDAV-Extensions", "1")
	hdr.Set("X-MSDAVEXT", "1")
	hdr.Set("Access-Control-Allow-Origin", h.config.AllowOrigin)
	hdr.Set("Access-Control-Allow-Methods", supportedMethods)
	hdr.Set("Access-Control-Allow-Headers", h.config.AllowHeaders)
	hdr.Set("Access-Control-Max-Age", "86400")
	for k, v := range h.config.HeaderOverrides {
		hdr.Set(k, v)
	}
}

// requiredPermission maps a DAV method to the API key permission flag that
// gates it.
func requiredPermission(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, "PROPFIND":
		return models.APIKeyPermRead
	default:
		return models.APIKeyPermWrite
	}
}
