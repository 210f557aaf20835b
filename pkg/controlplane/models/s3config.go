package models

import (
	"strings"
	"time"
)

// S3Config holds one S3-compatible endpoint configuration. The secret key is
// stored encrypted; it is decrypted only when a driver client is constructed.
type S3Config struct {
	ID                 string    `gorm:"primaryKey;size:36" json:"id"`
	Name               string    `gorm:"not null;size:255" json:"name"`
	Endpoint           string    `gorm:"not null;size:1024" json:"endpoint"`
	Region             string    `gorm:"size:100;default:auto" json:"region"`
	Bucket             string    `gorm:"not null;size:255" json:"bucket"`
	AccessKeyID        string    `gorm:"not null;size:255" json:"access_key_id"`
	EncryptedSecretKey string    `gorm:"not null;type:text" json:"-"`
	PathStyle          bool      `gorm:"default:true" json:"path_style"`
	RootPrefix         string    `gorm:"size:1024" json:"root_prefix"`     // optional bucket-wide prefix
	DefaultFolder      string    `gorm:"size:1024" json:"default_folder"`  // optional per-config folder
	ProviderType       string    `gorm:"size:100" json:"provider_type"`    // aws, r2, minio, b2, ...
	SignatureVersion   string    `gorm:"size:10;default:v4" json:"signature_version"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for S3Config.
func (S3Config) TableName() string {
	return "s3_configs"
}

// KeyPrefix returns the effective object key prefix for this configuration:
// root prefix plus default folder, each non-empty component normalized to end
// with a slash.
func (c *S3Config) KeyPrefix() string {
	var b strings.Builder
	for _, part := range []string{c.RootPrefix, c.DefaultFolder} {
		part = strings.Trim(part, "/")
		if part == "" {
			continue
		}
		b.WriteString(part)
		b.WriteString("/")
	}
	return b.String()
}
