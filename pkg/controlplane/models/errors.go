package models

import "errors"

// Common errors for control plane operations.
var (
	// Mount errors
	ErrMountNotFound  = errors.New("mount not found")
	ErrDuplicateMount = errors.New("mount already exists")
	ErrReservedPath   = errors.New("mount path uses a reserved segment")
	ErrInvalidPath    = errors.New("mount path must be an absolute logical prefix")

	// S3 config errors
	ErrConfigNotFound  = errors.New("s3 config not found")
	ErrDuplicateConfig = errors.New("s3 config already exists")
	ErrConfigInUse     = errors.New("s3 config is referenced by mounts")

	// File record errors
	ErrFileNotFound = errors.New("file record not found")

	// API key errors
	ErrAPIKeyNotFound  = errors.New("api key not found")
	ErrDuplicateAPIKey = errors.New("api key already exists")
	ErrAPIKeyDisabled  = errors.New("api key is disabled")
	ErrAPIKeyExpired   = errors.New("api key has expired")
)
