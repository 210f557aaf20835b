package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/driftfs/driftfs/pkg/api/middleware"
	"github.com/driftfs/driftfs/pkg/controlplane/models"
)

// APIKeyHandler handles API key management endpoints.
type APIKeyHandler struct {
	store APIKeyStore
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(store APIKeyStore) *APIKeyHandler {
	return &APIKeyHandler{store: store}
}

// CreateAPIKeyRequest is the request body for POST /api/admin/api-keys.
type CreateAPIKeyRequest struct {
	Name            string     `json:"name"`
	PermittedMounts []string   `json:"permitted_mounts"`
	BasePath        string     `json:"base_path,omitempty"`
	Permissions     []string   `json:"permissions"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

// APIKeyResponse is the response body for API key endpoints. Key is populated
// only on creation and is never shown again.
type APIKeyResponse struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	KeyPrefix       string     `json:"key_prefix"`
	Key             string     `json:"key,omitempty"`
	PermittedMounts []string   `json:"permitted_mounts"`
	BasePath        string     `json:"base_path"`
	Permissions     []string   `json:"permissions"`
	IsEnabled       bool       `json:"is_enabled"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Create handles POST /api/admin/api-keys.
// Generates the key material server side and returns the full key exactly
// once; only the bcrypt hash is stored.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAPIKeyRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Name == "" {
		BadRequest(w, "Key name is required")
		return
	}
	if len(req.PermittedMounts) == 0 {
		BadRequest(w, "At least one permitted mount is required")
		return
	}
	if len(req.Permissions) == 0 {
		BadRequest(w, "At least one permission is required")
		return
	}
	for _, p := range req.Permissions {
		switch p {
		case models.APIKeyPermRead, models.APIKeyPermWrite, models.APIKeyPermPresign:
		default:
			BadRequest(w, "Unknown permission: "+p)
			return
		}
	}

	prefix, secret, err := generateKeyMaterial()
	if err != nil {
		InternalServerError(w, "Failed to generate key material")
		return
	}

	basePath := req.BasePath
	if basePath == "" {
		basePath = "/"
	}

	key := &models.APIKey{
		Name:      req.Name,
		KeyPrefix: prefix,
		BasePath:  basePath,
		IsEnabled: true,
		ExpiresAt: req.ExpiresAt,
	}
	if err := key.SetSecret(secret); err != nil {
		InternalServerError(w, "Failed to hash key secret")
		return
	}
	if err := key.SetMountIDs(req.PermittedMounts); err != nil {
		InternalServerError(w, "Failed to encode permitted mounts")
		return
	}
	if err := key.SetPermissionList(req.Permissions); err != nil {
		InternalServerError(w, "Failed to encode permissions")
		return
	}

	if _, err := h.store.CreateAPIKey(r.Context(), key); err != nil {
		storeError(w, err, "create api key")
		return
	}

	resp := apiKeyToResponse(key)
	resp.Key = prefix + "." + secret
	WriteJSONCreated(w, resp)
}

// List handles GET /api/admin/api-keys.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		storeError(w, err, "list api keys")
		return
	}

	response := make([]APIKeyResponse, len(keys))
	for i, k := range keys {
		response[i] = apiKeyToResponse(k)
	}
	WriteJSONOK(w, response)
}

// Get handles GET /api/admin/api-keys/{id}.
func (h *APIKeyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		BadRequest(w, "Key ID is required")
		return
	}

	key, err := h.store.GetAPIKey(r.Context(), id)
	if err != nil {
		storeError(w, err, "get api key")
		return
	}
	WriteJSONOK(w, apiKeyToResponse(key))
}

// Delete handles DELETE /api/admin/api-keys/{id}.
func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		BadRequest(w, "Key ID is required")
		return
	}

	if err := h.store.DeleteAPIKey(r.Context(), id); err != nil {
		storeError(w, err, "delete api key")
		return
	}
	WriteNoContent(w)
}

// generateKeyMaterial draws a fresh lookup prefix and secret. The prefix is
// public and indexed; the secret only ever leaves the process inside the
// creation response.
func generateKeyMaterial() (prefix, secret string, err error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	prefix = middleware.APIKeyPrefixMarker + hex.EncodeToString(raw[:4])
	secret = hex.EncodeToString(raw[4:])
	return prefix, secret, nil
}

// apiKeyToResponse converts a models.APIKey to APIKeyResponse.
func apiKeyToResponse(k *models.APIKey) APIKeyResponse {
	mounts := k.MountIDs()
	if mounts == nil {
		mounts = []string{}
	}
	perms := k.PermissionList()
	if perms == nil {
		perms = []string{}
	}
	return APIKeyResponse{
		ID:              k.ID,
		Name:            k.Name,
		KeyPrefix:       k.KeyPrefix,
		PermittedMounts: mounts,
		BasePath:        k.BasePath,
		Permissions:     perms,
		IsEnabled:       k.IsEnabled,
		ExpiresAt:       k.ExpiresAt,
		LastUsedAt:      k.LastUsedAt,
		CreatedAt:       k.CreatedAt,
	}
}
