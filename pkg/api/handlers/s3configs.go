package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/driftfs/driftfs/pkg/controlplane/models"
	"github.com/driftfs/driftfs/pkg/secret"
	"github.com/driftfs/driftfs/pkg/vfs/s3"
)

// connectionTestTimeout bounds the HeadBucket round trip of the config test
// endpoint.
const connectionTestTimeout = 10 * time.Second

// S3ConfigHandler handles S3 configuration management API endpoints.
type S3ConfigHandler struct {
	store   ConfigStore
	secrets *secret.Box
	engine  *EngineControl
}

// NewS3ConfigHandler creates a new S3ConfigHandler.
func NewS3ConfigHandler(store ConfigStore, secrets *secret.Box, engine *EngineControl) *S3ConfigHandler {
	return &S3ConfigHandler{store: store, secrets: secrets, engine: engine}
}

// CreateS3ConfigRequest is the request body for POST /api/admin/s3-configs.
type CreateS3ConfigRequest struct {
	Name          string `json:"name"`
	Endpoint      string `json:"endpoint"`
	Region        string `json:"region,omitempty"`
	Bucket        string `json:"bucket"`
	AccessKeyID   string `json:"access_key_id"`
	SecretKey     string `json:"secret_key"`
	PathStyle     *bool  `json:"path_style,omitempty"`
	RootPrefix    string `json:"root_prefix,omitempty"`
	DefaultFolder string `json:"default_folder,omitempty"`
	ProviderType  string `json:"provider_type,omitempty"`
}

// UpdateS3ConfigRequest is the request body for PUT /api/admin/s3-configs/{id}.
// An absent or empty secret_key keeps the stored secret.
type UpdateS3ConfigRequest struct {
	Name          *string `json:"name,omitempty"`
	Endpoint      *string `json:"endpoint,omitempty"`
	Region        *string `json:"region,omitempty"`
	Bucket        *string `json:"bucket,omitempty"`
	AccessKeyID   *string `json:"access_key_id,omitempty"`
	SecretKey     string  `json:"secret_key,omitempty"`
	PathStyle     *bool   `json:"path_style,omitempty"`
	RootPrefix    *string `json:"root_prefix,omitempty"`
	DefaultFolder *string `json:"default_folder,omitempty"`
	ProviderType  *string `json:"provider_type,omitempty"`
}

// Create handles POST /api/admin/s3-configs.
// The secret key is encrypted before it touches the store.
func (h *S3ConfigHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateS3ConfigRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Name == "" {
		BadRequest(w, "Config name is required")
		return
	}
	if req.Endpoint == "" {
		BadRequest(w, "Endpoint is required")
		return
	}
	if req.Bucket == "" {
		BadRequest(w, "Bucket is required")
		return
	}
	if req.AccessKeyID == "" || req.SecretKey == "" {
		BadRequest(w, "Access key ID and secret key are required")
		return
	}

	encrypted, err := h.secrets.Encrypt(req.SecretKey)
	if err != nil {
		InternalServerError(w, "Failed to encrypt secret key")
		return
	}

	region := req.Region
	if region == "" {
		region = "auto"
	}
	pathStyle := true
	if req.PathStyle != nil {
		pathStyle = *req.PathStyle
	}

	cfg := &models.S3Config{
		Name:               req.Name,
		Endpoint:           req.Endpoint,
		Region:             region,
		Bucket:             req.Bucket,
		AccessKeyID:        req.AccessKeyID,
		EncryptedSecretKey: encrypted,
		PathStyle:          pathStyle,
		RootPrefix:         req.RootPrefix,
		DefaultFolder:      req.DefaultFolder,
		ProviderType:       req.ProviderType,
		SignatureVersion:   "v4",
	}

	if _, err := h.store.CreateS3Config(r.Context(), cfg); err != nil {
		storeError(w, err, "create s3 config")
		return
	}

	WriteJSONCreated(w, cfg)
}

// List handles GET /api/admin/s3-configs.
func (h *S3ConfigHandler) List(w http.ResponseWriter, r *http.Request) {
	configs, err := h.store.ListS3Configs(r.Context())
	if err != nil {
		storeError(w, err, "list s3 configs")
		return
	}
	WriteJSONOK(w, configs)
}

// Get handles GET /api/admin/s3-configs/{id}.
func (h *S3ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		BadRequest(w, "Config ID is required")
		return
	}

	cfg, err := h.store.GetS3Config(r.Context(), id)
	if err != nil {
		storeError(w, err, "get s3 config")
		return
	}
	WriteJSONOK(w, cfg)
}

// Update handles PUT /api/admin/s3-configs/{id}.
// Pooled drivers built from the config are evicted and the caches of every
// mount that references it are purged.
func (h *S3ConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		BadRequest(w, "Config ID is required")
		return
	}

	var req UpdateS3ConfigRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	cfg, err := h.store.GetS3Config(r.Context(), id)
	if err != nil {
		storeError(w, err, "get s3 config")
		return
	}

	if req.Name != nil {
		cfg.Name = *req.Name
	}
	if req.Endpoint != nil {
		cfg.Endpoint = *req.Endpoint
	}
	if req.Region != nil {
		cfg.Region = *req.Region
	}
	if req.Bucket != nil {
		cfg.Bucket = *req.Bucket
	}
	if req.AccessKeyID != nil {
		cfg.AccessKeyID = *req.AccessKeyID
	}
	if req.PathStyle != nil {
		cfg.PathStyle = *req.PathStyle
	}
	if req.RootPrefix != nil {
		cfg.RootPrefix = *req.RootPrefix
	}
	if req.DefaultFolder != nil {
		cfg.DefaultFolder = *req.DefaultFolder
	}
	if req.ProviderType != nil {
		cfg.ProviderType = *req.ProviderType
	}

	cfg.EncryptedSecretKey = ""
	if req.SecretKey != "" {
		encrypted, err := h.secrets.Encrypt(req.SecretKey)
		if err != nil {
			InternalServerError(w, "Failed to encrypt secret key")
			return
		}
		cfg.EncryptedSecretKey = encrypted
	}

	if err := h.store.UpdateS3Config(r.Context(), cfg); err != nil {
		storeError(w, err, "update s3 config")
		return
	}

	h.invalidate(r.Context(), id)
	WriteJSONOK(w, cfg)
}

// Delete handles DELETE /api/admin/s3-configs/{id}.
// Configs still referenced by mounts are refused with 409.
func (h *S3ConfigHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		BadRequest(w, "Config ID is required")
		return
	}

	if err := h.store.DeleteS3Config(r.Context(), id); err != nil {
		storeError(w, err, "delete s3 config")
		return
	}

	h.invalidate(r.Context(), id)
	WriteNoContent(w)
}

// Test handles POST /api/admin/s3-configs/{id}/test.
// Verifies that the stored credentials reach the configured bucket.
func (h *S3ConfigHandler) Test(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		BadRequest(w, "Config ID is required")
		return
	}

	cfg, err := h.store.GetS3Config(r.Context(), id)
	if err != nil {
		storeError(w, err, "get s3 config")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), connectionTestTimeout)
	defer cancel()

	if err := s3.TestConnection(ctx, cfg, h.secrets); err != nil {
		WriteJSONOK(w, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	WriteJSONOK(w, map[string]any{"ok": true})
}

// invalidate drops pooled drivers and cached mount state for a config.
func (h *S3ConfigHandler) invalidate(ctx context.Context, configID string) {
	mounts, err := h.store.ListMountsForConfig(ctx, configID)
	if err != nil {
		mounts = nil
	}
	h.engine.evictConfig(configID, mounts)
}
