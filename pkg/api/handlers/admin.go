package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/pkg/controlplane/models"
	"github.com/driftfs/driftfs/pkg/vfs"
	"github.com/driftfs/driftfs/pkg/vfs/cache"
)

// MountStore is the slice of the control plane store the mount admin API uses.
type MountStore interface {
	GetMount(ctx context.Context, id string) (*models.Mount, error)
	ListMounts(ctx context.Context) ([]*models.Mount, error)
	CreateMount(ctx context.Context, mount *models.Mount) (string, error)
	UpdateMount(ctx context.Context, mount *models.Mount) error
	DeleteMount(ctx context.Context, id string) error
}

// ConfigStore is the slice of the control plane store the S3 config admin API
// uses.
type ConfigStore interface {
	GetS3Config(ctx context.Context, id string) (*models.S3Config, error)
	ListS3Configs(ctx context.Context) ([]*models.S3Config, error)
	CreateS3Config(ctx context.Context, cfg *models.S3Config) (string, error)
	UpdateS3Config(ctx context.Context, cfg *models.S3Config) error
	DeleteS3Config(ctx context.Context, id string) error
	ListMountsForConfig(ctx context.Context, configID string) ([]*models.Mount, error)
}

// APIKeyStore is the slice of the control plane store the API key admin API
// uses.
type APIKeyStore interface {
	GetAPIKey(ctx context.Context, id string) (*models.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	CreateAPIKey(ctx context.Context, key *models.APIKey) (string, error)
	DeleteAPIKey(ctx context.Context, id string) error
}

// EngineControl bundles the engine caches the admin API invalidates when
// mounts or storage configs change. Any field may be nil.
type EngineControl struct {
	Dirs    *cache.DirectoryCache
	Search  *cache.SearchCache
	Drivers *vfs.Manager
}

// purgeMount drops all cached state for one mount.
func (c *EngineControl) purgeMount(mountID string) {
	if c == nil {
		return
	}
	if c.Dirs != nil {
		c.Dirs.PurgeMount(mountID)
	}
	if c.Search != nil {
		c.Search.InvalidateMount(mountID)
	}
}

// evictConfig closes pooled drivers for a storage config and purges the
// caches of every mount that referenced it.
func (c *EngineControl) evictConfig(configID string, mounts []*models.Mount) {
	if c == nil {
		return
	}
	if c.Drivers != nil {
		if n := c.Drivers.EvictConfig(configID); n > 0 {
			logger.Debug("evicted pooled drivers", "config_id", configID, "count", n)
		}
	}
	for _, m := range mounts {
		c.purgeMount(m.ID)
	}
}

// storeError maps control plane store errors onto problem responses.
func storeError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, models.ErrMountNotFound):
		NotFound(w, "Mount not found")
	case errors.Is(err, models.ErrConfigNotFound):
		NotFound(w, "S3 config not found")
	case errors.Is(err, models.ErrAPIKeyNotFound):
		NotFound(w, "API key not found")
	case errors.Is(err, models.ErrDuplicateMount):
		Conflict(w, "Mount already exists")
	case errors.Is(err, models.ErrDuplicateConfig):
		Conflict(w, "S3 config already exists")
	case errors.Is(err, models.ErrDuplicateAPIKey):
		Conflict(w, "API key already exists")
	case errors.Is(err, models.ErrConfigInUse):
		Conflict(w, "S3 config is still referenced by mounts")
	case errors.Is(err, models.ErrReservedPath), errors.Is(err, models.ErrInvalidPath):
		BadRequest(w, err.Error())
	default:
		logger.Error("store operation failed", "action", action, "error", err)
		InternalServerError(w, "Failed to "+action)
	}
}
