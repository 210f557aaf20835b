package vfs

import (
	"context"
	"strings"

	"github.com/driftfs/driftfs/pkg/controlplane/models"
)

// SearchResultCache is the slice of the search cache the facade consumes.
// A nil cache disables search caching.
type SearchResultCache interface {
	Lookup(query string, scope SearchScope, target, principal string) ([]SearchHit, bool)
	Store(query string, scope SearchScope, target, principal string, hits []SearchHit)
	InvalidateMount(mountID string) int
}

// FileSystem is the engine facade. Every user-facing operation resolves the
// logical path to (driver, mount, subPath), checks the driver's declared
// capability, and forwards. Drivers own cache invalidation for their own
// mutations; the facade additionally drops search cache pages for mutated
// mounts and records mount usage.
type FileSystem struct {
	registry *Registry
	manager  *Manager
	search   SearchResultCache
}

// NewFileSystem assembles the facade.
func NewFileSystem(registry *Registry, manager *Manager, search SearchResultCache) *FileSystem {
	return &FileSystem{registry: registry, manager: manager, search: search}
}

// Registry exposes the mount registry for surfaces that list mounts directly.
func (fs *FileSystem) Registry() *Registry {
	return fs.registry
}

// Manager exposes the driver pool for admin-side cache eviction.
func (fs *FileSystem) Manager() *Manager {
	return fs.manager
}

// resolveDriver resolves a logical path to its driver, mount and sub-path.
// Virtual resolutions are rejected; callers that can serve virtual
// directories resolve through the registry themselves.
func (fs *FileSystem) resolveDriver(ctx context.Context, principal Principal, logicalPath string) (Driver, *models.Mount, string, error) {
	res, err := fs.registry.Resolve(ctx, principal, logicalPath)
	if err != nil {
		return nil, nil, "", err
	}
	if res.Virtual {
		return nil, nil, "", NewBadRequestError("path is not inside a mount: " + logicalPath)
	}
	driver, err := fs.manager.DriverFor(ctx, res.Mount)
	if err != nil {
		return nil, nil, "", err
	}
	return driver, res.Mount, res.SubPath, nil
}

// finish runs the shared post-mutation bookkeeping.
func (fs *FileSystem) finish(mount *models.Mount, mutated bool) {
	fs.registry.TouchLastUsed(mount.ID)
	if mutated && fs.search != nil {
		fs.search.InvalidateMount(mount.ID)
	}
}

func asReader(d Driver) (Reader, error) {
	if r, ok := d.(Reader); ok && d.Capabilities().Has(CapabilityReader) {
		return r, nil
	}
	return nil, NewUnimplementedError(d.Type(), CapabilityReader)
}

func asWriter(d Driver) (Writer, error) {
	if w, ok := d.(Writer); ok && d.Capabilities().Has(CapabilityWriter) {
		return w, nil
	}
	return nil, NewUnimplementedError(d.Type(), CapabilityWriter)
}

func asAtomic(d Driver) (Atomic, error) {
	if a, ok := d.(Atomic); ok && d.Capabilities().Has(CapabilityAtomic) {
		return a, nil
	}
	return nil, NewUnimplementedError(d.Type(), CapabilityAtomic)
}

func asPresigned(d Driver) (Presigned, error) {
	if p, ok := d.(Presigned); ok && d.Capabilities().Has(CapabilityPresigned) {
		return p, nil
	}
	return nil, NewUnimplementedError(d.Type(), CapabilityPresigned)
}

func asMultipart(d Driver) (Multipart, error) {
	if m, ok := d.(Multipart); ok && d.Capabilities().Has(CapabilityMultipart) {
		return m, nil
	}
	return nil, NewUnimplementedError(d.Type(), CapabilityMultipart)
}

// ListDirectory lists a logical directory. Ancestor directories that no mount
// covers are served as virtual listings synthesized from the mount table.
func (fs *FileSystem) ListDirectory(ctx context.Context, principal Principal, path string) (*DirectoryListing, error) {
	normalized, err := NormalizePath(path, true)
	if err != nil {
		return nil, err
	}
	res, err := fs.registry.Resolve(ctx, principal, normalized)
	if err != nil {
		return nil, err
	}
	if res.Virtual {
		return res.Listing, nil
	}

	driver, err := fs.manager.DriverFor(ctx, res.Mount)
	if err != nil {
		return nil, err
	}
	reader, err := asReader(driver)
	if err != nil {
		return nil, err
	}
	listing, err := reader.ListDirectory(ctx, res.Mount, res.SubPath)
	if err != nil {
		return nil, err
	}
	fs.finish(res.Mount, false)
	return listing, nil
}

// GetFileInfo stats a file or directory. Virtual directories stat as
// directories.
func (fs *FileSystem) GetFileInfo(ctx context.Context, principal Principal, path string) (*FileInfo, error) {
	normalized, err := NormalizePath(path, strings.HasSuffix(path, "/"))
	if err != nil {
		return nil, err
	}
	res, err := fs.registry.Resolve(ctx, principal, normalized)
	if err != nil {
		return nil, err
	}
	if res.Virtual {
		return &FileInfo{
			Path:        res.Listing.Path,
			Name:        BaseName(res.Listing.Path),
			IsDirectory: true,
		}, nil
	}

	driver, err := fs.manager.DriverFor(ctx, res.Mount)
	if err != nil {
		return nil, err
	}
	reader, err := asReader(driver)
	if err != nil {
		return nil, err
	}
	info, err := reader.GetFileInfo(ctx, res.Mount, res.SubPath)
	if err != nil {
		return nil, err
	}
	fs.finish(res.Mount, false)
	return info, nil
}

// Download streams a file, as an attachment or, with inline set, for preview.
func (fs *FileSystem) Download(ctx context.Context, principal Principal, path string, inline bool) (*DownloadResult, error) {
	normalized, err := NormalizePath(path, false)
	if err != nil {
		return nil, err
	}
	driver, mount, subPath, err := fs.resolveDriver(ctx, principal, normalized)
	if err != nil {
		return nil, err
	}
	reader, err := asReader(driver)
	if err != nil {
		return nil, err
	}
	result, err := reader.Download(ctx, mount, subPath, inline)
	if err != nil {
		return nil, err
	}
	fs.finish(mount, false)
	return result, nil
}

// Upload stores input under the logical directory dirPath.
func (fs *FileSystem) Upload(ctx context.Context, principal Principal, dirPath string, input UploadInput) (*UploadResult, error) {
	if input.FileName == "" {
		return nil, NewBadRequestError("file name is required")
	}
	normalizedDir, err := NormalizePath(dirPath, true)
	if err != nil {
		return nil, err
	}
	target, err := NormalizePath(JoinPath(normalizedDir, input.FileName), false)
	if err != nil {
		return nil, err
	}

	driver, mount, subPath, err := fs.resolveDriver(ctx, principal, target)
	if err != nil {
		return nil, err
	}
	writer, err := asWriter(driver)
	if err != nil {
		return nil, err
	}
	result, err := writer.Upload(ctx, mount, subPath, input, principal)
	if err != nil {
		return nil, err
	}
	fs.finish(mount, true)
	return result, nil
}

// CreateDirectory creates a directory at the logical path.
func (fs *FileSystem) CreateDirectory(ctx context.Context, principal Principal, path string) error {
	normalized, err := NormalizePath(path, true)
	if err != nil {
		return err
	}
	driver, mount, subPath, err := fs.resolveDriver(ctx, principal, normalized)
	if err != nil {
		return err
	}
	writer, err := asWriter(driver)
	if err != nil {
		return err
	}
	if err := writer.CreateDirectory(ctx, mount, subPath); err != nil {
		return err
	}
	fs.finish(mount, true)
	return nil
}

// Remove deletes a file or directory tree at the logical path.
func (fs *FileSystem) Remove(ctx context.Context, principal Principal, path string) error {
	normalized, err := NormalizePath(path, strings.HasSuffix(path, "/"))
	if err != nil {
		return err
	}
	driver, mount, subPath, err := fs.resolveDriver(ctx, principal, normalized)
	if err != nil {
		return err
	}
	writer, err := asWriter(driver)
	if err != nil {
		return err
	}
	if err := writer.Remove(ctx, mount, subPath); err != nil {
		return err
	}
	fs.finish(mount, true)
	return nil
}

// Rename moves a file or directory within one mount. Paths resolving to
// different mounts are rejected.
func (fs *FileSystem) Rename(ctx context.Context, principal Principal, oldPath, newPath string) error {
	oldNorm, err := NormalizePath(oldPath, strings.HasSuffix(oldPath, "/"))
	if err != nil {
		return err
	}
	newNorm, err := NormalizePath(newPath, strings.HasSuffix(newPath, "/"))
	if err != nil {
		return err
	}

	driver, oldMount, oldSub, err := fs.resolveDriver(ctx, principal, oldNorm)
	if err != nil {
		return err
	}
	newRes, err := fs.registry.Resolve(ctx, principal, newNorm)
	if err != nil {
		return err
	}
	if newRes.Virtual || newRes.Mount.ID != oldMount.ID {
		return NewBadRequestError("rename across mounts is not supported")
	}

	atomic, err := asAtomic(driver)
	if err != nil {
		return err
	}
	if err := atomic.Rename(ctx, oldMount, oldSub, newRes.SubPath); err != nil {
		return err
	}
	fs.finish(oldMount, true)
	return nil
}

// Copy copies a file or directory tree. Copies inside one storage
// configuration run server-side; copies across configurations return a
// presigned URL pair for the caller to execute.
func (fs *FileSystem) Copy(ctx context.Context, principal Principal, srcPath, dstPath string, skipExisting bool) (*CopyResult, error) {
	srcNorm, err := NormalizePath(srcPath, strings.HasSuffix(srcPath, "/"))
	if err != nil {
		return nil, err
	}
	dstNorm, err := NormalizePath(dstPath, strings.HasSuffix(dstPath, "/"))
	if err != nil {
		return nil, err
	}
	// A directory source forces a directory destination.
	if IsDirectoryPath(srcNorm) && !IsDirectoryPath(dstNorm) {
		dstNorm += "/"
	}

	srcDriver, srcMount, srcSub, err := fs.resolveDriver(ctx, principal, srcNorm)
	if err != nil {
		return nil, err
	}
	dstDriver, dstMount, dstSub, err := fs.resolveDriver(ctx, principal, dstNorm)
	if err != nil {
		return nil, err
	}

	if srcMount.StorageConfigID == dstMount.StorageConfigID {
		atomic, err := asAtomic(srcDriver)
		if err != nil {
			return nil, err
		}
		result, err := atomic.Copy(ctx, srcMount, srcSub, dstMount, dstSub, skipExisting)
		if err != nil {
			return nil, err
		}
		fs.finish(dstMount, true)
		return result, nil
	}

	result, err := fs.crossStorageCopy(ctx, srcDriver, srcMount, srcSub, srcNorm, dstDriver, dstMount, dstSub, dstNorm, skipExisting)
	if err != nil {
		return nil, err
	}
	fs.finish(dstMount, result.Outcome == CopyCrossStorage)
	return result, nil
}

// crossStorageCopy builds the presigned GET/PUT pair for a copy spanning two
// storage configurations. Only single files can cross; the transfer itself is
// executed by the caller.
func (fs *FileSystem) crossStorageCopy(
	ctx context.Context,
	srcDriver Driver, srcMount *models.Mount, srcSub, srcNorm string,
	dstDriver Driver, dstMount *models.Mount, dstSub, dstNorm string,
	skipExisting bool,
) (*CopyResult, error) {
	if IsDirectoryPath(srcNorm) {
		return nil, NewBadRequestError("directory copies across storage configurations are not supported")
	}

	srcReader, err := asReader(srcDriver)
	if err != nil {
		return nil, err
	}
	srcPresign, err := asPresigned(srcDriver)
	if err != nil {
		return nil, err
	}
	dstPresign, err := asPresigned(dstDriver)
	if err != nil {
		return nil, err
	}

	// A directory destination receives the source file name.
	if IsDirectoryPath(dstSub) {
		dstSub = JoinPath(dstSub, BaseName(srcSub))
		dstNorm = JoinPath(dstNorm, BaseName(srcNorm))
	}

	info, err := srcReader.GetFileInfo(ctx, srcMount, srcSub)
	if err != nil {
		return nil, err
	}
	if skipExisting {
		dstReader, readerErr := asReader(dstDriver)
		if readerErr == nil {
			exists, existsErr := dstReader.Exists(ctx, dstMount, dstSub)
			if existsErr == nil && exists {
				return &CopyResult{Outcome: CopySkipped}, nil
			}
		}
	}

	getURL, err := srcPresign.PresignURL(ctx, srcMount, srcSub, PresignOptions{Method: "GET"})
	if err != nil {
		return nil, err
	}
	putURL, err := dstPresign.PresignURL(ctx, dstMount, dstSub, PresignOptions{Method: "PUT"})
	if err != nil {
		return nil, err
	}

	return &CopyResult{
		Outcome: CopyCrossStorage,
		Transfer: &CrossStorageTransfer{
			Source:      srcNorm,
			Target:      dstNorm,
			GetURL:      getURL.URL,
			PutURL:      putURL.URL,
			FileName:    BaseName(srcNorm),
			Size:        info.Size,
			ContentType: info.ContentType,
			ExpiresAt:   getURL.ExpiresAt,
		},
	}, nil
}

// Presign generates a presigned URL for direct provider access to path.
// Only files can be presigned; a directory reference is rejected.
func (fs *FileSystem) Presign(ctx context.Context, principal Principal, path string, opts PresignOptions) (*PresignResult, error) {
	if strings.HasSuffix(path, "/") {
		return nil, NewBadRequestError("cannot presign a directory")
	}
	normalized, err := NormalizePath(path, false)
	if err != nil {
		return nil, err
	}
	driver, mount, subPath, err := fs.resolveDriver(ctx, principal, normalized)
	if err != nil {
		return nil, err
	}
	presigned, err := asPresigned(driver)
	if err != nil {
		return nil, err
	}
	result, err := presigned.PresignURL(ctx, mount, subPath, opts)
	if err != nil {
		return nil, err
	}
	fs.finish(mount, false)
	return result, nil
}

// InitMultipart starts a multipart upload session for a file under dirPath.
func (fs *FileSystem) InitMultipart(ctx context.Context, principal Principal, dirPath, fileName string, fileSize int64) (*MultipartInit, error) {
	if fileName == "" {
		return nil, NewBadRequestError("file name is required")
	}
	normalizedDir, err := NormalizePath(dirPath, true)
	if err != nil {
		return nil, err
	}
	target, err := NormalizePath(JoinPath(normalizedDir, fileName), false)
	if err != nil {
		return nil, err
	}

	driver, mount, subPath, err := fs.resolveDriver(ctx, principal, target)
	if err != nil {
		return nil, err
	}
	multipart, err := asMultipart(driver)
	if err != nil {
		return nil, err
	}
	init, err := multipart.InitMultipart(ctx, mount, subPath, fileSize)
	if err != nil {
		return nil, err
	}
	fs.finish(mount, false)
	return init, nil
}

// CompleteMultipart finalizes a session and records the uploaded file.
func (fs *FileSystem) CompleteMultipart(ctx context.Context, principal Principal, path, uploadID string, parts []CompletedPart) (*UploadResult, error) {
	normalized, err := NormalizePath(path, false)
	if err != nil {
		return nil, err
	}
	driver, mount, subPath, err := fs.resolveDriver(ctx, principal, normalized)
	if err != nil {
		return nil, err
	}
	multipart, err := asMultipart(driver)
	if err != nil {
		return nil, err
	}
	result, err := multipart.CompleteMultipart(ctx, mount, subPath, uploadID, parts, principal)
	if err != nil {
		return nil, err
	}
	fs.finish(mount, true)
	return result, nil
}

// AbortMultipart abandons a multipart session.
func (fs *FileSystem) AbortMultipart(ctx context.Context, principal Principal, path, uploadID string) error {
	normalized, err := NormalizePath(path, false)
	if err != nil {
		return err
	}
	driver, mount, subPath, err := fs.resolveDriver(ctx, principal, normalized)
	if err != nil {
		return err
	}
	multipart, err := asMultipart(driver)
	if err != nil {
		return err
	}
	if err := multipart.AbortMultipart(ctx, mount, subPath, uploadID); err != nil {
		return err
	}
	fs.finish(mount, false)
	return nil
}

// ListMultipartUploads lists in-progress sessions under a logical directory.
func (fs *FileSystem) ListMultipartUploads(ctx context.Context, principal Principal, path string) ([]MultipartUploadInfo, error) {
	normalized, err := NormalizePath(path, true)
	if err != nil {
		return nil, err
	}
	driver, mount, subPath, err := fs.resolveDriver(ctx, principal, normalized)
	if err != nil {
		return nil, err
	}
	multipart, err := asMultipart(driver)
	if err != nil {
		return nil, err
	}
	return multipart.ListMultipartUploads(ctx, mount, subPath)
}

// ListMultipartParts lists the uploaded parts of a session.
func (fs *FileSystem) ListMultipartParts(ctx context.Context, principal Principal, path, uploadID string) ([]PartInfo, error) {
	normalized, err := NormalizePath(path, false)
	if err != nil {
		return nil, err
	}
	driver, mount, subPath, err := fs.resolveDriver(ctx, principal, normalized)
	if err != nil {
		return nil, err
	}
	multipart, err := asMultipart(driver)
	if err != nil {
		return nil, err
	}
	return multipart.ListMultipartParts(ctx, mount, subPath, uploadID)
}

// RefreshMultipartURLs re-signs part upload URLs for a resumable session.
func (fs *FileSystem) RefreshMultipartURLs(ctx context.Context, principal Principal, path, uploadID string, partNumbers []int32) ([]PartURL, error) {
	normalized, err := NormalizePath(path, false)
	if err != nil {
		return nil, err
	}
	driver, mount, subPath, err := fs.resolveDriver(ctx, principal, normalized)
	if err != nil {
		return nil, err
	}
	multipart, err := asMultipart(driver)
	if err != nil {
		return nil, err
	}
	return multipart.RefreshMultipartURLs(ctx, mount, subPath, uploadID, partNumbers)
}
