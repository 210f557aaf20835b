package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/driftfs/driftfs/pkg/controlplane/models"
)

// GetS3Config returns an S3 configuration by id.
func (s *GORMStore) GetS3Config(ctx context.Context, id string) (*models.S3Config, error) {
	var cfg models.S3Config
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&cfg).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrConfigNotFound)
	}
	return &cfg, nil
}

// ListS3Configs returns all S3 configurations.
func (s *GORMStore) ListS3Configs(ctx context.Context) ([]*models.S3Config, error) {
	var configs []*models.S3Config
	if err := s.db.WithContext(ctx).Order("name asc").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

// CreateS3Config persists a new S3 configuration. The secret key must already
// be encrypted by the caller.
func (s *GORMStore) CreateS3Config(ctx context.Context, cfg *models.S3Config) (string, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	now := time.Now()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(cfg).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", models.ErrDuplicateConfig
		}
		return "", err
	}
	return cfg.ID, nil
}

// UpdateS3Config updates an S3 configuration. An empty EncryptedSecretKey
// keeps the stored secret.
func (s *GORMStore) UpdateS3Config(ctx context.Context, cfg *models.S3Config) error {
	cfg.UpdatedAt = time.Now()

	updates := map[string]any{
		"name":           cfg.Name,
		"endpoint":       cfg.Endpoint,
		"region":         cfg.Region,
		"bucket":         cfg.Bucket,
		"access_key_id":  cfg.AccessKeyID,
		"path_style":     cfg.PathStyle,
		"root_prefix":    cfg.RootPrefix,
		"default_folder": cfg.DefaultFolder,
		"provider_type":  cfg.ProviderType,
		"updated_at":     cfg.UpdatedAt,
	}
	if cfg.EncryptedSecretKey != "" {
		updates["encrypted_secret_key"] = cfg.EncryptedSecretKey
	}

	result := s.db.WithContext(ctx).
		Model(&models.S3Config{}).
		Where("id = ?", cfg.ID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrConfigNotFound
	}
	return nil
}

// DeleteS3Config removes an S3 configuration. Configs still referenced by
// mounts are refused.
func (s *GORMStore) DeleteS3Config(ctx context.Context, id string) error {
	count, err := s.CountMountsForConfig(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return models.ErrConfigInUse
	}

	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.S3Config{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrConfigNotFound
	}
	return nil
}
