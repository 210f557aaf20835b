// Package vfs implements the DriftFS virtual filesystem engine: mount
// resolution, the capability-gated storage driver abstraction, and the
// facade that dispatches user-facing operations to the resolved driver.
package vfs

import (
	"io"
	"time"
)

// PrincipalKind distinguishes the two authenticated caller variants.
type PrincipalKind int

const (
	// PrincipalAdmin is an authenticated administrator user.
	PrincipalAdmin PrincipalKind = iota + 1

	// PrincipalAPIKey is an API key with a restricted mount set.
	PrincipalAPIKey
)

// Principal identifies the already-authenticated caller of an engine
// operation. Drivers see it only to compute file-record ownership tags;
// authorization happens in the mount registry, which restricts the candidate
// mount set per principal.
type Principal struct {
	Kind PrincipalKind

	// UserID is set for admin principals.
	UserID string

	// KeyID, PermittedMountIDs and BasePath are set for API key principals.
	KeyID             string
	PermittedMountIDs []string
	BasePath          string
}

// NewAdminPrincipal returns an admin principal for the given user id.
func NewAdminPrincipal(userID string) Principal {
	return Principal{Kind: PrincipalAdmin, UserID: userID}
}

// NewAPIKeyPrincipal returns an API key principal restricted to the given mounts.
func NewAPIKeyPrincipal(keyID string, mountIDs []string, basePath string) Principal {
	return Principal{
		Kind:              PrincipalAPIKey,
		KeyID:             keyID,
		PermittedMountIDs: mountIDs,
		BasePath:          basePath,
	}
}

// OwnerTag returns the ownership string recorded on file records,
// "admin:<id>" or "apikey:<id>".
func (p Principal) OwnerTag() string {
	if p.Kind == PrincipalAPIKey {
		return "apikey:" + p.KeyID
	}
	return "admin:" + p.UserID
}

// Identity returns a stable identity string used as a cache key component.
func (p Principal) Identity() string {
	return p.OwnerTag()
}

// CanUseMount reports whether the principal may resolve paths through the
// given mount. Admins own their mounts; API keys carry an explicit allow list.
func (p Principal) CanUseMount(mountID, mountOwner string) bool {
	switch p.Kind {
	case PrincipalAdmin:
		return mountOwner == p.OwnerTag()
	case PrincipalAPIKey:
		for _, id := range p.PermittedMountIDs {
			if id == mountID {
				return true
			}
		}
	}
	return false
}

// Entry is one item of a directory listing.
type Entry struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	IsDirectory bool      `json:"isDirectory"`
	Size        int64     `json:"size,omitempty"`
	Modified    time.Time `json:"modified"`
	ETag        string    `json:"etag,omitempty"`
	MountID     string    `json:"mountId,omitempty"`
	IsMount     bool      `json:"isMount,omitempty"`
	IsVirtual   bool      `json:"isVirtual,omitempty"`
}

// DirectoryListing is the result of listing a logical directory.
// A virtual listing is synthesized from the mount table for an ancestor
// directory no single mount covers.
type DirectoryListing struct {
	Path        string  `json:"path"`
	IsVirtual   bool    `json:"isVirtual"`
	IsRoot      bool    `json:"isRoot"`
	MountID     string  `json:"mountId,omitempty"`
	StorageType string  `json:"storageType,omitempty"`
	Items       []Entry `json:"items"`
}

// FileInfo describes a single file or directory.
type FileInfo struct {
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	IsDirectory bool      `json:"isDirectory"`
	Size        int64     `json:"size"`
	Modified    time.Time `json:"modified"`
	ETag        string    `json:"etag,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
	MountID     string    `json:"mountId,omitempty"`
}

// DownloadResult carries a streaming object body plus the response metadata
// the HTTP layer forwards. Ownership of Body transfers to the caller, which
// must close it on every exit path.
type DownloadResult struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	ETag          string
	LastModified  time.Time
	Disposition   string
}

// UploadInput describes a single-shot upload.
type UploadInput struct {
	FileName    string
	Body        io.Reader
	Size        int64
	ContentType string
}

// UploadResult is returned by a successful upload or multipart completion.
type UploadResult struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	ETag   string `json:"etag"`
	FileID string `json:"fileId"`
	Slug   string `json:"slug"`
}

// CopyOutcome tags the CopyResult variant.
type CopyOutcome int

const (
	// CopyLocal means the copy completed inside one storage configuration.
	CopyLocal CopyOutcome = iota + 1

	// CopySkipped means the destination existed and skipExisting was set.
	CopySkipped

	// CopyCrossStorage means the copy spans storage configurations; the
	// caller executes the transfer with the presigned URL pair.
	CopyCrossStorage
)

// CrossStorageTransfer is the presigned URL pair for a cross-storage copy.
type CrossStorageTransfer struct {
	Source      string    `json:"source"`
	Target      string    `json:"target"`
	GetURL      string    `json:"presignedGetUrl"`
	PutURL      string    `json:"targetPresignedPut"`
	FileName    string    `json:"fileName"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// CopyResult is the tagged result of a copy operation.
type CopyResult struct {
	Outcome CopyOutcome

	// CopiedObjects counts objects copied for a local copy (1 for a file,
	// the object count for a directory tree).
	CopiedObjects int

	// Transfer is set when Outcome is CopyCrossStorage.
	Transfer *CrossStorageTransfer
}

// BatchFailure records a single failed item of a batch operation.
type BatchFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// BatchRemoveResult aggregates a batch remove.
// Success + len(Failed) always equals the number of requested paths.
type BatchRemoveResult struct {
	Success int            `json:"success"`
	Failed  []BatchFailure `json:"failed"`
}

// CopyDetail records the per-item status of a batch copy.
type CopyDetail struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Status string `json:"status"` // copied, skipped, cross-storage, failed
	Error  string `json:"error,omitempty"`
}

// BatchCopyResult aggregates a batch copy.
type BatchCopyResult struct {
	Success      int                    `json:"success"`
	Skipped      int                    `json:"skipped"`
	Failed       []BatchFailure         `json:"failed"`
	Details      []CopyDetail           `json:"details"`
	CrossStorage []CrossStorageTransfer `json:"crossStorageResults,omitempty"`
}

// BatchCopyItem is one source/target pair of a batch copy request.
type BatchCopyItem struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// PresignOptions controls presigned URL generation.
type PresignOptions struct {
	// Method is the HTTP method the URL authorizes. Default GET.
	Method string

	// ExpiresIn is the URL lifetime. Default 7 days.
	ExpiresIn time.Duration

	// ForceDownload adds a response-content-disposition=attachment override.
	ForceDownload bool
}

// DefaultPresignExpiry is the default presigned URL lifetime (7 days).
const DefaultPresignExpiry = 604800 * time.Second

// PresignResult is a generated presigned URL.
type PresignResult struct {
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PartURL is one presigned part upload URL of a multipart session.
type PartURL struct {
	PartNumber int32  `json:"partNumber"`
	URL        string `json:"url"`
}

// MultipartInit is returned by multipart initialization.
type MultipartInit struct {
	UploadID string    `json:"uploadId"`
	Key      string    `json:"key"`
	Path     string    `json:"path"`
	PartSize int64     `json:"partSize"`
	PartURLs []PartURL `json:"partUrls"`
}

// CompletedPart identifies one uploaded part on completion.
type CompletedPart struct {
	PartNumber int32  `json:"partNumber"`
	ETag       string `json:"etag"`
}

// MultipartUploadInfo describes one in-progress provider multipart session.
type MultipartUploadInfo struct {
	UploadID  string    `json:"uploadId"`
	Key       string    `json:"key"`
	Path      string    `json:"path"`
	Initiated time.Time `json:"initiated"`
}

// PartInfo describes one already-uploaded part of a session.
type PartInfo struct {
	PartNumber   int32     `json:"partNumber"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"lastModified"`
}

// SearchScope restricts the mount set a search fans out to.
type SearchScope string

const (
	SearchScopeGlobal    SearchScope = "global"
	SearchScopeMount     SearchScope = "mount"
	SearchScopeDirectory SearchScope = "directory"
)

// SearchParams are the validated search arguments.
type SearchParams struct {
	Query string
	Scope SearchScope

	// ScopeTarget is the mount id for scope=mount or the directory path for
	// scope=directory.
	ScopeTarget string

	Limit  int
	Offset int
}

// SearchHit is one raw search result before ranking.
type SearchHit struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	IsDirectory bool      `json:"isDirectory"`
	Size        int64     `json:"size"`
	Modified    time.Time `json:"modified"`
	MountID     string    `json:"mountId"`
}

// SearchResult is a ranked, paginated search response.
type SearchResult struct {
	Total   int         `json:"total"`
	Offset  int         `json:"offset"`
	Limit   int         `json:"limit"`
	Hits    []SearchHit `json:"hits"`
	Partial bool        `json:"partial,omitempty"` // true when one or more mounts failed
}
