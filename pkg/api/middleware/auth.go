// Package middleware provides HTTP middleware for the DriftFS API.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/pkg/api/auth"
	"github.com/driftfs/driftfs/pkg/controlplane/models"
	"github.com/driftfs/driftfs/pkg/vfs"
)

// APIKeyPrefixMarker is the leading tag of every generated API key. A full
// key has the wire form "<prefix>.<secret>" where prefix starts with this
// marker; only the prefix is stored in clear.
const APIKeyPrefixMarker = "dfk_"

// KeyStore is the slice of the control plane store the auth middleware needs.
type KeyStore interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) (*models.APIKey, error)
	TouchAPIKey(ctx context.Context, id string) error
}

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	Principal vfs.Principal

	// Permissions carries the API key permission flags; empty for admins,
	// who implicitly hold every permission.
	Permissions []string
}

// IsAdmin reports whether the identity is the administrator.
func (id *Identity) IsAdmin() bool {
	return id.Principal.Kind == vfs.PrincipalAdmin
}

// HasPermission reports whether the identity may perform operations gated on
// the given API key permission flag.
func (id *Identity) HasPermission(perm string) bool {
	if id.IsAdmin() {
		return true
	}
	for _, p := range id.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Context key type for storing the identity
type contextKey string

const identityContextKey contextKey = "identity"

// IdentityFromContext retrieves the authenticated identity from the request
// context. Returns nil if the request did not pass the Authenticate
// middleware.
func IdentityFromContext(ctx context.Context) *Identity {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok {
		return nil
	}
	return id
}

// WithIdentity attaches an identity to a context. Exposed for handler tests.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// extractBearerToken extracts the token from a Bearer Authorization header.
// Returns the token string and true if successful, or empty string and false if not.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	return parts[1], true
}

// Authenticate resolves the Authorization header into an Identity.
//
// Two credential shapes are accepted:
//   - "Bearer <jwt>": an admin access token signed by jwtService
//   - "Bearer dfk_<prefix>.<secret>": an API key looked up by prefix and
//     checked against its bcrypt hash
//
// Requests without a valid credential receive 401.
func Authenticate(jwtService *auth.JWTService, keys KeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearerToken(r)
			if !ok {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			identity, err := resolveToken(r.Context(), token, jwtService, keys)
			if err != nil {
				http.Error(w, "Invalid or expired credentials", http.StatusUnauthorized)
				return
			}

			ctx := WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin blocks non-admin identities.
// Must be used after the Authenticate middleware.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if identity == nil {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}
			if !identity.IsAdmin() {
				http.Error(w, "Admin access required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission blocks API keys that lack the given permission flag.
// Admins always pass. Must be used after the Authenticate middleware.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if identity == nil {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}
			if !identity.HasPermission(perm) {
				http.Error(w, "Permission required: "+perm, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// resolveToken turns a bearer token into an Identity.
func resolveToken(ctx context.Context, token string, jwtService *auth.JWTService, keys KeyStore) (*Identity, error) {
	if strings.HasPrefix(token, APIKeyPrefixMarker) {
		prefix, secret, found := strings.Cut(token, ".")
		if !found {
			return nil, vfs.NewUnauthenticatedError("malformed API key")
		}
		return ResolveAPIKey(ctx, keys, prefix, secret)
	}

	claims, err := jwtService.ValidateAccessToken(token)
	if err != nil {
		return nil, vfs.NewUnauthenticatedError("invalid access token")
	}
	return &Identity{Principal: vfs.NewAdminPrincipal(claims.Username)}, nil
}

// ResolveAPIKey authenticates an API key by prefix lookup and bcrypt check.
// Disabled and expired keys are rejected. The key's last-used stamp is
// updated off the request path.
func ResolveAPIKey(ctx context.Context, keys KeyStore, prefix, secret string) (*Identity, error) {
	key, err := keys.GetAPIKeyByPrefix(ctx, prefix)
	if err != nil {
		return nil, vfs.NewUnauthenticatedError("unknown API key")
	}
	if !key.IsEnabled {
		return nil, vfs.NewUnauthenticatedError("API key is disabled")
	}
	if key.IsExpired() {
		return nil, vfs.NewUnauthenticatedError("API key has expired")
	}
	if !key.CheckSecret(secret) {
		return nil, vfs.NewUnauthenticatedError("invalid API key")
	}

	go func() {
		touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := keys.TouchAPIKey(touchCtx, key.ID); err != nil {
			logger.Debug("failed to update API key last-used time", "key_id", key.ID, "error", err)
		}
	}()

	return &Identity{
		Principal:   vfs.NewAPIKeyPrincipal(key.ID, key.MountIDs(), key.BasePath),
		Permissions: key.PermissionList(),
	}, nil
}

// ResolveBasicAuth authenticates a Basic username/password pair for the
// WebDAV surface. The admin signs in with the configured credentials; API
// keys use the key prefix as username and the key secret as password.
func ResolveBasicAuth(ctx context.Context, username, password string, admin auth.AdminCredentials, keys KeyStore) (*Identity, error) {
	if strings.HasPrefix(username, APIKeyPrefixMarker) {
		return ResolveAPIKey(ctx, keys, username, password)
	}
	if admin.Verify(username, password) {
		return &Identity{Principal: vfs.NewAdminPrincipal(username)}, nil
	}
	return nil, vfs.NewUnauthenticatedError("invalid credentials")
}
