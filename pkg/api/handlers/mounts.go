package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/driftfs/driftfs/pkg/api/middleware"
	"github.com/driftfs/driftfs/pkg/controlplane/models"
)

// MountHandler handles mount management API endpoints.
type MountHandler struct {
	store  MountStore
	engine *EngineControl
}

// NewMountHandler creates a new MountHandler.
func NewMountHandler(store MountStore, engine *EngineControl) *MountHandler {
	return &MountHandler{store: store, engine: engine}
}

// CreateMountRequest is the request body for POST /api/admin/mounts.
type CreateMountRequest struct {
	Name            string `json:"name"`
	MountPath       string `json:"mount_path"`
	StorageConfigID string `json:"storage_config_id"`
	CacheTTL        *int   `json:"cache_ttl,omitempty"`
	SortOrder       int    `json:"sort_order,omitempty"`
	IsActive        *bool  `json:"is_active,omitempty"`
}

// UpdateMountRequest is the request body for PUT /api/admin/mounts/{id}.
type UpdateMountRequest struct {
	Name            *string `json:"name,omitempty"`
	MountPath       *string `json:"mount_path,omitempty"`
	StorageConfigID *string `json:"storage_config_id,omitempty"`
	CacheTTL        *int    `json:"cache_ttl,omitempty"`
	SortOrder       *int    `json:"sort_order,omitempty"`
	IsActive        *bool   `json:"is_active,omitempty"`
}

// Create handles POST /api/admin/mounts.
func (h *MountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateMountRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Name == "" {
		BadRequest(w, "Mount name is required")
		return
	}
	if req.MountPath == "" {
		BadRequest(w, "Mount path is required")
		return
	}
	if req.StorageConfigID == "" {
		BadRequest(w, "Storage config ID is required")
		return
	}

	cacheTTL := 300
	if req.CacheTTL != nil {
		cacheTTL = *req.CacheTTL
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	createdBy := ""
	if identity := middleware.IdentityFromContext(r.Context()); identity != nil {
		createdBy = identity.Principal.OwnerTag()
	}

	mount := &models.Mount{
		Name:            req.Name,
		MountPath:       req.MountPath,
		StorageType:     models.StorageTypeS3,
		StorageConfigID: req.StorageConfigID,
		CreatedBy:       createdBy,
		CacheTTL:        cacheTTL,
		SortOrder:       req.SortOrder,
		IsActive:        isActive,
	}

	if _, err := h.store.CreateMount(r.Context(), mount); err != nil {
		storeError(w, err, "create mount")
		return
	}

	WriteJSONCreated(w, mount)
}

// List handles GET /api/admin/mounts.
func (h *MountHandler) List(w http.ResponseWriter, r *http.Request) {
	mounts, err := h.store.ListMounts(r.Context())
	if err != nil {
		storeError(w, err, "list mounts")
		return
	}
	WriteJSONOK(w, mounts)
}

// Get handles GET /api/admin/mounts/{id}.
func (h *MountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		BadRequest(w, "Mount ID is required")
		return
	}

	mount, err := h.store.GetMount(r.Context(), id)
	if err != nil {
		storeError(w, err, "get mount")
		return
	}
	WriteJSONOK(w, mount)
}

// Update handles PUT /api/admin/mounts/{id}.
// Cached listings for the mount are dropped so the change takes effect
// immediately.
func (h *MountHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		BadRequest(w, "Mount ID is required")
		return
	}

	var req UpdateMountRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	mount, err := h.store.GetMount(r.Context(), id)
	if err != nil {
		storeError(w, err, "get mount")
		return
	}

	if req.Name != nil {
		mount.Name = *req.Name
	}
	if req.MountPath != nil {
		mount.MountPath = *req.MountPath
	}
	if req.StorageConfigID != nil {
		mount.StorageConfigID = *req.StorageConfigID
	}
	if req.CacheTTL != nil {
		mount.CacheTTL = *req.CacheTTL
	}
	if req.SortOrder != nil {
		mount.SortOrder = *req.SortOrder
	}
	if req.IsActive != nil {
		mount.IsActive = *req.IsActive
	}

	if err := h.store.UpdateMount(r.Context(), mount); err != nil {
		storeError(w, err, "update mount")
		return
	}

	h.engine.purgeMount(mount.ID)
	WriteJSONOK(w, mount)
}

// Delete handles DELETE /api/admin/mounts/{id}.
func (h *MountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		BadRequest(w, "Mount ID is required")
		return
	}

	if err := h.store.DeleteMount(r.Context(), id); err != nil {
		storeError(w, err, "delete mount")
		return
	}

	h.engine.purgeMount(id)
	WriteNoContent(w)
}
