package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/driftfs/driftfs/pkg/controlplane/models"
)

// GetAPIKeyByPrefix looks up an API key by its public lookup prefix.
func (s *GORMStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) (*models.APIKey, error) {
	var key models.APIKey
	err := s.db.WithContext(ctx).Where("key_prefix = ?", prefix).First(&key).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrAPIKeyNotFound)
	}
	return &key, nil
}

// GetAPIKey returns an API key by id.
func (s *GORMStore) GetAPIKey(ctx context.Context, id string) (*models.APIKey, error) {
	var key models.APIKey
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&key).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrAPIKeyNotFound)
	}
	return &key, nil
}

// ListAPIKeys returns all API keys.
func (s *GORMStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	if err := s.db.WithContext(ctx).Order("created_at asc").Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// CreateAPIKey persists a new API key. The secret must already be hashed via
// APIKey.SetSecret.
func (s *GORMStore) CreateAPIKey(ctx context.Context, key *models.APIKey) (string, error) {
	if key.ID == "" {
		key.ID = uuid.New().String()
	}
	now := time.Now()
	key.CreatedAt = now
	key.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", models.ErrDuplicateAPIKey
		}
		return "", err
	}
	return key.ID, nil
}

// DeleteAPIKey removes an API key by id.
func (s *GORMStore) DeleteAPIKey(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.APIKey{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrAPIKeyNotFound
	}
	return nil
}

// TouchAPIKey stamps the key's last use time. Best effort.
func (s *GORMStore) TouchAPIKey(ctx context.Context, id string) error {
	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", &now).Error
}
