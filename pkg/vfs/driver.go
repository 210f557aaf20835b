package vfs

import (
	"context"

	"github.com/driftfs/driftfs/pkg/controlplane/models"
)

// Driver is the common surface every storage driver implements. A driver is
// constructed per storage configuration and shared by all mounts referencing
// it; per-call mount state (cache TTL, mount id) travels as an argument.
//
// Beyond Driver itself, a driver advertises the operations it supports
// through its CapabilitySet and the corresponding narrow interfaces below.
// The facade checks the declared capability before asserting the interface,
// so a driver that omits a capability never sees the call.
type Driver interface {
	// Type returns the storage type the driver serves, e.g. "S3".
	Type() string

	// Capabilities returns the declared capability set.
	Capabilities() CapabilitySet

	// Close releases pooled resources when the driver is evicted.
	Close() error
}

// Reader covers listing, stat, download, and search.
type Reader interface {
	// ListDirectory lists one directory level under subPath (a directory
	// reference). Consults and populates the directory cache when the
	// mount's cache TTL is positive.
	ListDirectory(ctx context.Context, mount *models.Mount, subPath string) (*DirectoryListing, error)

	// GetFileInfo stats a file or directory.
	GetFileInfo(ctx context.Context, mount *models.Mount, subPath string) (*FileInfo, error)

	// Download streams an object. inline selects the preview disposition.
	Download(ctx context.Context, mount *models.Mount, subPath string, inline bool) (*DownloadResult, error)

	// Exists probes a file (or, for directory references, a non-empty prefix).
	Exists(ctx context.Context, mount *models.Mount, subPath string) (bool, error)

	// Search walks the mount and returns raw, unranked filename matches,
	// at most maxResults.
	Search(ctx context.Context, mount *models.Mount, query string, maxResults int) ([]SearchHit, error)
}

// Writer covers upload, mkdir, and remove.
type Writer interface {
	// Upload stores a file under the parent directory of subPath.
	// The parent must exist; executable payload types are refused.
	Upload(ctx context.Context, mount *models.Mount, subPath string, input UploadInput, principal Principal) (*UploadResult, error)

	// CreateDirectory creates a directory marker at subPath.
	CreateDirectory(ctx context.Context, mount *models.Mount, subPath string) error

	// Remove deletes a file, or recursively deletes a directory reference.
	Remove(ctx context.Context, mount *models.Mount, subPath string) error
}

// Atomic covers rename and copy. Object stores emulate both with server-side
// copy plus delete; "atomic" is the capability name, not a guarantee for
// directory trees.
type Atomic interface {
	// Rename moves a file or directory tree within one mount.
	Rename(ctx context.Context, mount *models.Mount, oldSubPath, newSubPath string) error

	// Copy copies a file or directory tree between two mounts that share
	// the driver's storage configuration.
	Copy(ctx context.Context, srcMount *models.Mount, srcSubPath string, dstMount *models.Mount, dstSubPath string, skipExisting bool) (*CopyResult, error)
}

// Presigned covers presigned URL generation.
type Presigned interface {
	PresignURL(ctx context.Context, mount *models.Mount, subPath string, opts PresignOptions) (*PresignResult, error)
}

// Multipart covers the frontend multipart upload protocol: the server signs
// per-part URLs and the client uploads parts directly to the provider.
type Multipart interface {
	InitMultipart(ctx context.Context, mount *models.Mount, subPath string, fileSize int64) (*MultipartInit, error)
	CompleteMultipart(ctx context.Context, mount *models.Mount, subPath, uploadID string, parts []CompletedPart, principal Principal) (*UploadResult, error)
	AbortMultipart(ctx context.Context, mount *models.Mount, subPath, uploadID string) error
	ListMultipartUploads(ctx context.Context, mount *models.Mount, subPath string) ([]MultipartUploadInfo, error)
	ListMultipartParts(ctx context.Context, mount *models.Mount, subPath, uploadID string) ([]PartInfo, error)
	RefreshMultipartURLs(ctx context.Context, mount *models.Mount, subPath, uploadID string, partNumbers []int32) ([]PartURL, error)
}
