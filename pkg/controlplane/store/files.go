package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/driftfs/driftfs/pkg/controlplane/models"
)

// CreateFileRecord persists the metadata row for an uploaded file.
// The slug is derived from the generated id.
func (s *GORMStore) CreateFileRecord(ctx context.Context, record *models.FileRecord) (string, error) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Slug == "" {
		record.Slug = models.SlugForID(record.ID)
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return "", err
	}
	return record.ID, nil
}

// GetFileRecordBySlug returns a file record by its shareable slug.
func (s *GORMStore) GetFileRecordBySlug(ctx context.Context, slug string) (*models.FileRecord, error) {
	var record models.FileRecord
	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&record).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrFileNotFound)
	}
	return &record, nil
}

// DeleteFileRecordsByStoragePath removes all file records whose storage path
// equals path, or lives under it when path ends with a slash. Used as a
// best-effort cleanup after object deletion.
func (s *GORMStore) DeleteFileRecordsByStoragePath(ctx context.Context, configID, path string) (int64, error) {
	query := s.db.WithContext(ctx).Where("s3_config_id = ?", configID)
	if len(path) > 0 && path[len(path)-1] == '/' {
		query = query.Where("storage_path LIKE ?", path+"%")
	} else {
		query = query.Where("storage_path = ?", path)
	}
	result := query.Delete(&models.FileRecord{})
	return result.RowsAffected, result.Error
}

// UpdateFileRecordStoragePath rewrites the storage path of the records under
// oldPath after a rename. Only exact file matches are rewritten; directory
// renames delete and re-create records lazily on next upload.
func (s *GORMStore) UpdateFileRecordStoragePath(ctx context.Context, configID, oldPath, newPath string) error {
	return s.db.WithContext(ctx).
		Model(&models.FileRecord{}).
		Where("s3_config_id = ? AND storage_path = ?", configID, oldPath).
		Updates(map[string]any{
			"storage_path": newPath,
			"updated_at":   time.Now(),
		}).Error
}
