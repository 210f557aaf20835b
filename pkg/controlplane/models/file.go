package models

import "time"

// FileRecord is the metadata row created for every uploaded file.
// StoragePath is the full object key inside the bucket; Slug is the short
// shareable identifier ("M-" + first five characters of the id).
type FileRecord struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Filename    string    `gorm:"not null;size:1024" json:"filename"`
	StoragePath string    `gorm:"not null;size:2048;index" json:"storage_path"`
	S3URL       string    `gorm:"size:2048" json:"s3_url"`
	MimeType    string    `gorm:"size:255" json:"mimetype"`
	Size        int64     `gorm:"not null;default:0" json:"size"`
	S3ConfigID  string    `gorm:"not null;size:36;index" json:"s3_config_id"`
	Slug        string    `gorm:"uniqueIndex;size:16" json:"slug"`
	ETag        string    `gorm:"size:255" json:"etag"`
	CreatedBy   string    `gorm:"not null;size:100;index" json:"created_by"` // "admin:<id>" | "apikey:<id>"
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for FileRecord.
func (FileRecord) TableName() string {
	return "files"
}

// SlugForID derives the shareable slug from a file record id.
func SlugForID(id string) string {
	if len(id) < 5 {
		return "M-" + id
	}
	return "M-" + id[:5]
}
