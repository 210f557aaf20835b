package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/pkg/api/auth"
	"github.com/driftfs/driftfs/pkg/api/handlers"
	apiMiddleware "github.com/driftfs/driftfs/pkg/api/middleware"
	"github.com/driftfs/driftfs/pkg/controlplane/models"
	"github.com/driftfs/driftfs/pkg/metrics"
	"github.com/driftfs/driftfs/pkg/secret"
	"github.com/driftfs/driftfs/pkg/vfs"
)

// ControlPlaneStore is the store surface the HTTP layer consumes: admin CRUD,
// API key resolution for authentication, and the readiness ping.
type ControlPlaneStore interface {
	handlers.MountStore
	handlers.ConfigStore
	handlers.APIKeyStore
	handlers.Pinger
	GetAPIKeyByPrefix(ctx context.Context, prefix string) (*models.APIKey, error)
	TouchAPIKey(ctx context.Context, id string) error
}

// Deps bundles everything the router needs. DAV is optional; when non-nil it
// is mounted under /dav.
type Deps struct {
	Admin   auth.AdminCredentials
	JWT     *auth.JWTService
	Store   ControlPlaneStore
	FS      *vfs.FileSystem
	Secrets *secret.Box
	Engine  *handlers.EngineControl
	Metrics *metrics.Metrics
	DAV     http.Handler
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
//   - GET /metrics - Prometheus metrics
//   - POST /api/auth/login - Admin authentication
//   - POST /api/auth/refresh - Token refresh
//   - GET /api/auth/me - Current caller identity
//   - /api/fs/* - Filesystem operations (JWT or API key)
//   - /api/admin/* - Mount, S3 config and API key management (admin only)
//   - /dav/* - WebDAV endpoint (when enabled)
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(requestMetrics(deps.Metrics))
	r.Use(middleware.Recoverer)

	// Health check handlers
	healthHandler := handlers.NewHealthHandler(deps.Store)

	// Health routes - unauthenticated
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	if deps.Metrics != nil {
		r.Get("/metrics", deps.Metrics.Handler().ServeHTTP)
	}

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	authHandler := handlers.NewAuthHandler(deps.Admin, deps.JWT)
	fsHandler := handlers.NewFSHandler(deps.FS, deps.Metrics)

	r.Route("/api", func(r chi.Router) {
		// Auth routes
		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(apiMiddleware.Authenticate(deps.JWT, deps.Store))
				r.Get("/me", authHandler.Me)
			})
		})

		// Filesystem routes - JWT or API key, gated per permission flag.
		// No request timeout here: download and upload streams carry full
		// object bodies and are bounded by the server timeouts instead.
		r.Route("/fs", func(r chi.Router) {
			r.Use(apiMiddleware.Authenticate(deps.JWT, deps.Store))

			r.Group(func(r chi.Router) {
				r.Use(apiMiddleware.RequirePermission(models.APIKeyPermRead))

				r.Get("/list", fsHandler.List)
				r.Get("/info", fsHandler.Info)
				r.Get("/download", fsHandler.Download)
				r.Get("/preview", fsHandler.Preview)
				r.Get("/search", fsHandler.Search)
				r.Get("/mpu", fsHandler.MpuList)
				r.Get("/mpu/parts", fsHandler.MpuParts)
			})

			r.Group(func(r chi.Router) {
				r.Use(apiMiddleware.RequirePermission(models.APIKeyPermWrite))

				r.Post("/upload", fsHandler.Upload)
				r.Post("/mkdir", fsHandler.Mkdir)
				r.Delete("/rm", fsHandler.Remove)
				r.Post("/rename", fsHandler.Rename)
				r.Post("/copy", fsHandler.Copy)
				r.Post("/batch/remove", fsHandler.BatchRemove)
				r.Post("/batch/copy", fsHandler.BatchCopy)
				r.Post("/mpu/init", fsHandler.MpuInit)
				r.Post("/mpu/complete", fsHandler.MpuComplete)
				r.Post("/mpu/abort", fsHandler.MpuAbort)
				r.Post("/mpu/part-urls", fsHandler.MpuPartURLs)
				r.Post("/mpu/refresh", fsHandler.MpuRefresh)
			})

			r.Group(func(r chi.Router) {
				r.Use(apiMiddleware.RequirePermission(models.APIKeyPermPresign))
				r.Post("/presign", fsHandler.Presign)
			})
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Use(apiMiddleware.Authenticate(deps.JWT, deps.Store))
			r.Use(apiMiddleware.RequireAdmin())

			r.Route("/admin/mounts", func(r chi.Router) {
				mountHandler := handlers.NewMountHandler(deps.Store, deps.Engine)
				r.Post("/", mountHandler.Create)
				r.Get("/", mountHandler.List)
				r.Get("/{id}", mountHandler.Get)
				r.Put("/{id}", mountHandler.Update)
				r.Delete("/{id}", mountHandler.Delete)
			})

			r.Route("/admin/s3-configs", func(r chi.Router) {
				configHandler := handlers.NewS3ConfigHandler(deps.Store, deps.Secrets, deps.Engine)
				r.Post("/", configHandler.Create)
				r.Get("/", configHandler.List)
				r.Get("/{id}", configHandler.Get)
				r.Put("/{id}", configHandler.Update)
				r.Delete("/{id}", configHandler.Delete)
				r.Post("/{id}/test", configHandler.Test)
			})

			r.Route("/admin/api-keys", func(r chi.Router) {
				keyHandler := handlers.NewAPIKeyHandler(deps.Store)
				r.Post("/", keyHandler.Create)
				r.Get("/", keyHandler.List)
				r.Get("/{id}", keyHandler.Get)
				r.Delete("/{id}", keyHandler.Delete)
			})
		})
	})

	// WebDAV endpoint - does its own Basic auth
	if deps.DAV != nil {
		r.Mount("/dav", deps.DAV)
	}

	return r
}

// isHealthPath returns true if the request path is a healthcheck endpoint.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
//   - Healthcheck requests are logged at DEBUG level to reduce noise
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		}

		// Log healthcheck requests at DEBUG to avoid polluting logs in k8s
		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}

// requestMetrics records per-route request counts and latencies. The chi
// route pattern is used as the label so path parameters do not explode
// cardinality.
func requestMetrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequest(r.Method, route, ww.Status(), time.Since(start))
		})
	}
}
