// Write-side operations: upload, mkdir, remove, rename, and same-config copy.
package s3

import (
	"context"
	"mime"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/pkg/controlplane/models"
	"github.com/driftfs/driftfs/pkg/vfs"
)

// deleteBatchSize is the S3 DeleteObjects limit.
const deleteBatchSize = 1000

// executableMimeTypes is the closed set of refused upload content types.
var executableMimeTypes = map[string]struct{}{
	"application/x-msdownload":                      {},
	"application/x-msdos-program":                   {},
	"application/x-executable":                      {},
	"application/x-elf":                             {},
	"application/x-mach-binary":                     {},
	"application/x-sh":                              {},
	"application/x-bat":                             {},
	"application/vnd.microsoft.portable-executable": {},
}

// executableExtensions backs the MIME gate for filenames whose extension has
// no registered MIME type.
var executableExtensions = map[string]struct{}{
	".exe": {}, ".dll": {}, ".msi": {}, ".com": {}, ".scr": {},
	".bat": {}, ".cmd": {}, ".sh": {}, ".ps1": {},
}

// resolveContentType derives the effective content type for an upload and
// reports whether the file is refused as executable.
func resolveContentType(fileName, declared string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if _, blocked := executableExtensions[ext]; blocked {
		return "", true
	}

	contentType := declared
	if contentType == "" {
		contentType = mime.TypeByExtension(ext)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	base := contentType
	if idx := strings.Index(base, ";"); idx >= 0 {
		base = strings.TrimSpace(base[:idx])
	}
	_, blocked := executableMimeTypes[strings.ToLower(base)]
	return contentType, blocked
}

// Upload stores a single object at subPath. The parent directory must already
// exist; executable content types are refused. On success a file record is
// written and the containing listing chain invalidated.
func (d *Driver) Upload(ctx context.Context, mount *models.Mount, subPath string, input vfs.UploadInput, principal vfs.Principal) (*vfs.UploadResult, error) {
	logicalPath := vfs.JoinPath(mount.MountPath, subPath)

	contentType, blocked := resolveContentType(input.FileName, input.ContentType)
	if blocked {
		return nil, vfs.NewForbiddenError(logicalPath, "executable files are not allowed")
	}

	if err := d.requireParent(ctx, mount, subPath); err != nil {
		return nil, err
	}

	key := d.keyFor(subPath)
	put := &awss3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        input.Body,
		ContentType: aws.String(contentType),
	}
	if input.Size > 0 {
		put.ContentLength = aws.Int64(input.Size)
	}
	out, err := d.client.PutObject(ctx, put)
	if err != nil {
		return nil, mapError(logicalPath, err)
	}
	etag := strings.Trim(aws.ToString(out.ETag), `"`)

	result := &vfs.UploadResult{
		Path: logicalPath,
		Size: input.Size,
		ETag: etag,
	}
	d.recordUpload(ctx, result, input.FileName, key, contentType, input.Size, etag, principal)
	d.invalidateListings(mount, subPath)
	return result, nil
}

// recordUpload persists the file record for a stored object and fills the
// record fields of result. Failures are logged, not returned; the object is
// already durable.
func (d *Driver) recordUpload(ctx context.Context, result *vfs.UploadResult, fileName, key, contentType string, size int64, etag string, principal vfs.Principal) {
	if d.records == nil {
		return
	}
	record := &models.FileRecord{
		Filename:    fileName,
		StoragePath: key,
		S3URL:       d.objectURL(key),
		MimeType:    contentType,
		Size:        size,
		S3ConfigID:  d.configID,
		ETag:        etag,
		CreatedBy:   principal.OwnerTag(),
	}
	id, err := d.records.CreateFileRecord(ctx, record)
	if err != nil {
		logger.Warn("failed to create file record", "key", key, "error", err)
		return
	}
	result.FileID = id
	result.Slug = record.Slug
}

func (d *Driver) objectURL(key string) string {
	if d.endpoint == "" {
		return d.bucket + "/" + key
	}
	return strings.TrimSuffix(d.endpoint, "/") + "/" + d.bucket + "/" + key
}

// requireParent fails with Conflict unless subPath's parent directory exists.
func (d *Driver) requireParent(ctx context.Context, mount *models.Mount, subPath string) error {
	parent := vfs.ParentPath(subPath)
	if parent == "/" {
		return nil
	}
	ok, err := d.prefixExists(ctx, d.keyFor(parent))
	if err != nil {
		return mapError(vfs.JoinPath(mount.MountPath, parent), err)
	}
	if !ok {
		return vfs.NewConflictError(vfs.JoinPath(mount.MountPath, parent), "parent directory does not exist")
	}
	return nil
}

// CreateDirectory writes a zero-byte directory marker at subPath.
func (d *Driver) CreateDirectory(ctx context.Context, mount *models.Mount, subPath string) error {
	logicalPath := vfs.JoinPath(mount.MountPath, subPath)
	key := d.keyFor(subPath)

	exists, err := d.Exists(ctx, mount, subPath)
	if err != nil {
		return err
	}
	if exists {
		return vfs.NewConflictError(logicalPath, "directory already exists")
	}
	if err := d.requireParent(ctx, mount, subPath); err != nil {
		return err
	}

	_, err = d.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(key),
		Body:          strings.NewReader(""),
		ContentLength: aws.Int64(0),
		ContentType:   aws.String(directoryMarkerType),
	})
	if err != nil {
		return mapError(logicalPath, err)
	}
	d.invalidateListings(mount, subPath)
	return nil
}

// Remove deletes a file, or recursively deletes every object under a
// directory reference. A directory whose scan yields no key at all is
// reported NotFound.
func (d *Driver) Remove(ctx context.Context, mount *models.Mount, subPath string) error {
	logicalPath := vfs.JoinPath(mount.MountPath, subPath)

	if !vfs.IsDirectoryPath(subPath) {
		exists, err := d.Exists(ctx, mount, subPath)
		if err != nil {
			return err
		}
		if !exists {
			return vfs.NewNotFoundError(logicalPath, "file")
		}

		key := d.keyFor(subPath)
		if _, err := d.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(key),
		}); err != nil {
			return mapError(logicalPath, err)
		}
		d.cleanupRecords(ctx, key)
		d.invalidateListings(mount, subPath)
		return nil
	}

	prefix := d.keyFor(subPath)
	deleted := 0
	paginator := awss3.NewListObjectsV2Paginator(d.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return mapError(logicalPath, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		for start := 0; start < len(page.Contents); start += deleteBatchSize {
			end := min(start+deleteBatchSize, len(page.Contents))
			batch := make([]types.ObjectIdentifier, 0, end-start)
			for _, obj := range page.Contents[start:end] {
				batch = append(batch, types.ObjectIdentifier{Key: obj.Key})
			}
			if _, err := d.client.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
				Bucket: aws.String(d.bucket),
				Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
			}); err != nil {
				return mapError(logicalPath, err)
			}
			deleted += len(batch)
		}
	}
	if deleted == 0 {
		return vfs.NewNotFoundError(logicalPath, "directory")
	}

	d.cleanupRecords(ctx, prefix)
	d.invalidateListings(mount, subPath)
	return nil
}

// cleanupRecords drops file records under a storage path. Best effort.
func (d *Driver) cleanupRecords(ctx context.Context, storagePath string) {
	if d.records == nil {
		return
	}
	if _, err := d.records.DeleteFileRecordsByStoragePath(ctx, d.configID, storagePath); err != nil {
		logger.Warn("failed to delete file records", "storage_path", storagePath, "error", err)
	}
}

// Rename moves a file or a directory tree within one mount via copy+delete.
func (d *Driver) Rename(ctx context.Context, mount *models.Mount, oldSubPath, newSubPath string) error {
	oldLogical := vfs.JoinPath(mount.MountPath, oldSubPath)
	newLogical := vfs.JoinPath(mount.MountPath, newSubPath)

	if vfs.IsDirectoryPath(oldSubPath) != vfs.IsDirectoryPath(newSubPath) {
		return vfs.NewBadRequestError("source and destination must both be files or both be directories")
	}
	if err := d.requireParent(ctx, mount, newSubPath); err != nil {
		return err
	}
	exists, err := d.Exists(ctx, mount, newSubPath)
	if err != nil {
		return err
	}
	if exists {
		return vfs.NewConflictError(newLogical, "destination already exists")
	}

	if !vfs.IsDirectoryPath(oldSubPath) {
		oldKey, newKey := d.keyFor(oldSubPath), d.keyFor(newSubPath)
		if err := d.copyAndDelete(ctx, oldLogical, oldKey, newKey); err != nil {
			return err
		}
		d.moveRecord(ctx, oldKey, newKey)
	} else {
		oldPrefix, newPrefix := d.keyFor(oldSubPath), d.keyFor(newSubPath)
		moved := 0
		paginator := awss3.NewListObjectsV2Paginator(d.client, &awss3.ListObjectsV2Input{
			Bucket: aws.String(d.bucket),
			Prefix: aws.String(oldPrefix),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return mapError(oldLogical, err)
			}
			for _, obj := range page.Contents {
				oldKey := aws.ToString(obj.Key)
				newKey := newPrefix + strings.TrimPrefix(oldKey, oldPrefix)
				if err := d.copyAndDelete(ctx, oldLogical, oldKey, newKey); err != nil {
					return err
				}
				d.moveRecord(ctx, oldKey, newKey)
				moved++
			}
		}
		if moved == 0 {
			return vfs.NewNotFoundError(oldLogical, "directory")
		}
	}

	d.invalidateListings(mount, oldSubPath)
	d.invalidateListings(mount, newSubPath)
	return nil
}

func (d *Driver) copyAndDelete(ctx context.Context, logicalPath, oldKey, newKey string) error {
	if _, err := d.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     aws.String(d.bucket),
		Key:        aws.String(newKey),
		CopySource: aws.String(url.PathEscape(d.bucket + "/" + oldKey)),
	}); err != nil {
		return mapError(logicalPath, err)
	}
	if _, err := d.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(oldKey),
	}); err != nil {
		return mapError(logicalPath, err)
	}
	return nil
}

func (d *Driver) moveRecord(ctx context.Context, oldKey, newKey string) {
	if d.records == nil {
		return
	}
	if err := d.records.UpdateFileRecordStoragePath(ctx, d.configID, oldKey, newKey); err != nil {
		logger.Debug("failed to move file record", "old_key", oldKey, "error", err)
	}
}

// Copy copies a file or directory tree between two mounts backed by this
// driver's storage configuration. Cross-configuration copies are composed by
// the facade from presigned URLs and never reach here.
func (d *Driver) Copy(ctx context.Context, srcMount *models.Mount, srcSubPath string, dstMount *models.Mount, dstSubPath string, skipExisting bool) (*vfs.CopyResult, error) {
	srcLogical := vfs.JoinPath(srcMount.MountPath, srcSubPath)

	if err := d.requireParent(ctx, dstMount, dstSubPath); err != nil {
		return nil, err
	}

	if !vfs.IsDirectoryPath(srcSubPath) {
		if skipExisting {
			exists, err := d.Exists(ctx, dstMount, dstSubPath)
			if err != nil {
				return nil, err
			}
			if exists {
				return &vfs.CopyResult{Outcome: vfs.CopySkipped}, nil
			}
		}
		if _, err := d.client.CopyObject(ctx, &awss3.CopyObjectInput{
			Bucket:     aws.String(d.bucket),
			Key:        aws.String(d.keyFor(dstSubPath)),
			CopySource: aws.String(url.PathEscape(d.bucket + "/" + d.keyFor(srcSubPath))),
		}); err != nil {
			return nil, mapError(srcLogical, err)
		}
		d.invalidateListings(dstMount, dstSubPath)
		return &vfs.CopyResult{Outcome: vfs.CopyLocal, CopiedObjects: 1}, nil
	}

	srcPrefix, dstPrefix := d.keyFor(srcSubPath), d.keyFor(dstSubPath)
	copied := 0
	seen := 0
	paginator := awss3.NewListObjectsV2Paginator(d.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(srcPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError(srcLogical, err)
		}
		for _, obj := range page.Contents {
			seen++
			srcKey := aws.ToString(obj.Key)
			dstKey := dstPrefix + strings.TrimPrefix(srcKey, srcPrefix)
			if skipExisting {
				_, headErr := d.client.HeadObject(ctx, &awss3.HeadObjectInput{
					Bucket: aws.String(d.bucket),
					Key:    aws.String(dstKey),
				})
				if headErr == nil {
					continue
				}
				if !isNotFound(headErr) {
					return nil, mapError(srcLogical, headErr)
				}
			}
			if _, err := d.client.CopyObject(ctx, &awss3.CopyObjectInput{
				Bucket:     aws.String(d.bucket),
				Key:        aws.String(dstKey),
				CopySource: aws.String(url.PathEscape(d.bucket + "/" + srcKey)),
			}); err != nil {
				return nil, mapError(srcLogical, err)
			}
			copied++
		}
	}
	if seen == 0 {
		return nil, vfs.NewNotFoundError(srcLogical, "directory")
	}

	d.invalidateListings(dstMount, dstSubPath)
	if copied == 0 {
		return &vfs.CopyResult{Outcome: vfs.CopySkipped}, nil
	}
	return &vfs.CopyResult{Outcome: vfs.CopyLocal, CopiedObjects: copied}, nil
}
