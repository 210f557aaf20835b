package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/driftfs/driftfs/pkg/controlplane/models"
)

// Logical path segments that may never be used as mount path roots; the HTTP
// layer owns these routes.
var reservedMountSegments = []string{"api", "dav", "health", "metrics"}

// GetMount returns a mount by id with its storage config preloaded.
func (s *GORMStore) GetMount(ctx context.Context, id string) (*models.Mount, error) {
	var mount models.Mount
	err := s.db.WithContext(ctx).
		Preload("StorageConfig").
		Where("id = ?", id).
		First(&mount).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrMountNotFound)
	}
	return &mount, nil
}

// ListMounts returns all mounts ordered by sort order then mount path.
func (s *GORMStore) ListMounts(ctx context.Context) ([]*models.Mount, error) {
	var mounts []*models.Mount
	if err := s.db.WithContext(ctx).
		Preload("StorageConfig").
		Order("sort_order asc, mount_path asc").
		Find(&mounts).Error; err != nil {
		return nil, err
	}
	return mounts, nil
}

// ListActiveMounts returns the active mounts that participate in resolution.
func (s *GORMStore) ListActiveMounts(ctx context.Context) ([]*models.Mount, error) {
	var mounts []*models.Mount
	if err := s.db.WithContext(ctx).
		Preload("StorageConfig").
		Where("is_active = ?", true).
		Order("sort_order asc, mount_path asc").
		Find(&mounts).Error; err != nil {
		return nil, err
	}
	return mounts, nil
}

// CreateMount persists a new mount. Mount paths rooted at a reserved segment
// ("/api", "/dav", ...) are rejected.
func (s *GORMStore) CreateMount(ctx context.Context, mount *models.Mount) (string, error) {
	if err := validateMountPath(mount.MountPath); err != nil {
		return "", err
	}

	if mount.ID == "" {
		mount.ID = uuid.New().String()
	}
	if mount.StorageType == "" {
		mount.StorageType = models.StorageTypeS3
	}
	now := time.Now()
	mount.CreatedAt = now
	mount.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(mount).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", models.ErrDuplicateMount
		}
		return "", err
	}
	return mount.ID, nil
}

// UpdateMount updates the mutable fields of a mount.
func (s *GORMStore) UpdateMount(ctx context.Context, mount *models.Mount) error {
	if err := validateMountPath(mount.MountPath); err != nil {
		return err
	}
	mount.UpdatedAt = time.Now()

	result := s.db.WithContext(ctx).
		Model(&models.Mount{}).
		Where("id = ?", mount.ID).
		Updates(map[string]any{
			"name":              mount.Name,
			"mount_path":        mount.MountPath,
			"storage_config_id": mount.StorageConfigID,
			"cache_ttl":         mount.CacheTTL,
			"sort_order":        mount.SortOrder,
			"is_active":         mount.IsActive,
			"updated_at":        mount.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrMountNotFound
	}
	return nil
}

// DeleteMount removes a mount by id.
func (s *GORMStore) DeleteMount(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Mount{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrMountNotFound
	}
	return nil
}

// UpdateMountLastUsed stamps the mount's last use time. Best effort: callers
// run it off the data path and swallow failures.
func (s *GORMStore) UpdateMountLastUsed(ctx context.Context, id string) error {
	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&models.Mount{}).
		Where("id = ?", id).
		Update("last_used_at", &now).Error
}

// ListMountsForConfig returns the mounts referencing an S3 config.
func (s *GORMStore) ListMountsForConfig(ctx context.Context, configID string) ([]*models.Mount, error) {
	var mounts []*models.Mount
	if err := s.db.WithContext(ctx).
		Where("storage_config_id = ?", configID).
		Order("sort_order asc, mount_path asc").
		Find(&mounts).Error; err != nil {
		return nil, err
	}
	return mounts, nil
}

// CountMountsForConfig returns the number of mounts referencing an S3 config.
func (s *GORMStore) CountMountsForConfig(ctx context.Context, configID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Mount{}).
		Where("storage_config_id = ?", configID).
		Count(&count).Error
	return count, err
}

func validateMountPath(mountPath string) error {
	trimmed := strings.TrimPrefix(mountPath, "/")
	root := trimmed
	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		root = trimmed[:idx]
	}
	for _, reserved := range reservedMountSegments {
		if strings.EqualFold(root, reserved) {
			return models.ErrReservedPath
		}
	}
	if !strings.HasPrefix(mountPath, "/") || root == "" {
		return models.ErrInvalidPath
	}
	return nil
}
