package models

import "time"

// StorageTypeS3 is the only storage type supported by this release.
const StorageTypeS3 = "S3"

// Mount binds a logical path prefix to a storage configuration for one
// principal. Only active mounts participate in path resolution; when several
// mounts match a path, the longest mount path wins.
type Mount struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	Name            string    `gorm:"not null;size:255" json:"name"`
	MountPath       string    `gorm:"not null;size:1024;index" json:"mount_path"` // absolute logical prefix, e.g. "/documents"
	StorageType     string    `gorm:"not null;size:50;default:S3" json:"storage_type"`
	StorageConfigID string    `gorm:"not null;size:36;index" json:"storage_config_id"`
	CreatedBy       string    `gorm:"not null;size:100;index" json:"created_by"` // "admin:<id>" | "apikey:<id>"
	CacheTTL        int       `gorm:"default:300" json:"cache_ttl"`              // directory cache TTL in seconds, 0 disables
	SortOrder       int       `gorm:"default:0" json:"sort_order"`
	IsActive        bool      `gorm:"default:true" json:"is_active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`

	// Relationships
	StorageConfig S3Config `gorm:"foreignKey:StorageConfigID" json:"storage_config,omitempty"`
}

// TableName returns the table name for Mount.
func (Mount) TableName() string {
	return "mounts"
}
