package models

import (
	"encoding/json"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// API key permission flags.
const (
	APIKeyPermRead    = "read"
	APIKeyPermWrite   = "write"
	APIKeyPermPresign = "presign"
)

// APIKey is a non-admin credential scoped to an explicit mount set.
// The key secret is stored as a bcrypt hash alongside a lookup prefix.
type APIKey struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	Name            string     `gorm:"not null;size:255" json:"name"`
	KeyPrefix       string     `gorm:"uniqueIndex;not null;size:16" json:"key_prefix"`
	KeyHash         string     `gorm:"not null;size:255" json:"-"`
	PermittedMounts string     `gorm:"type:text" json:"-"` // JSON array of mount ids
	BasePath        string     `gorm:"size:1024;default:/" json:"base_path"`
	Permissions     string     `gorm:"type:text" json:"-"` // JSON array of permission flags
	IsEnabled       bool       `gorm:"default:true" json:"is_enabled"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for APIKey.
func (APIKey) TableName() string {
	return "api_keys"
}

// SetSecret hashes and stores the key secret.
func (k *APIKey) SetSecret(secret string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	k.KeyHash = string(hash)
	return nil
}

// CheckSecret verifies a presented key secret against the stored hash.
func (k *APIKey) CheckSecret(secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(secret)) == nil
}

// IsExpired reports whether the key has an expiry in the past.
func (k *APIKey) IsExpired() bool {
	return k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt)
}

// MountIDs returns the decoded permitted mount id list.
func (k *APIKey) MountIDs() []string {
	return decodeStringList(k.PermittedMounts)
}

// SetMountIDs stores the permitted mount id list.
func (k *APIKey) SetMountIDs(ids []string) error {
	return encodeStringList(ids, &k.PermittedMounts)
}

// PermissionList returns the decoded permission flags.
func (k *APIKey) PermissionList() []string {
	return decodeStringList(k.Permissions)
}

// SetPermissionList stores the permission flags.
func (k *APIKey) SetPermissionList(perms []string) error {
	return encodeStringList(perms, &k.Permissions)
}

// HasPermission reports whether the key carries the given flag.
func (k *APIKey) HasPermission(perm string) bool {
	for _, p := range k.PermissionList() {
		if p == perm {
			return true
		}
	}
	return false
}

func decodeStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func encodeStringList(list []string, dst *string) error {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	*dst = string(data)
	return nil
}
