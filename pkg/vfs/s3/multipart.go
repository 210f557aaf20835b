// Frontend multipart protocol: the server creates the provider session and
// signs per-part PUT URLs; clients upload parts directly to the provider and
// hand the collected etags back for completion.
package s3

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/driftfs/driftfs/pkg/controlplane/models"
	"github.com/driftfs/driftfs/pkg/vfs"
)

// maxParts is the S3 part-count ceiling.
const maxParts = 10000

// partURLExpiry is how long signed part URLs stay valid. Long enough for slow
// uplinks; clients refresh expired URLs through RefreshMultipartURLs.
const partURLExpiry = 24 * time.Hour

// InitMultipart creates a provider multipart session for subPath and returns
// one presigned PUT URL per part. The part size grows past the default when
// the file would otherwise exceed the provider's part-count ceiling.
func (d *Driver) InitMultipart(ctx context.Context, mount *models.Mount, subPath string, fileSize int64) (*vfs.MultipartInit, error) {
	logicalPath := vfs.JoinPath(mount.MountPath, subPath)

	fileName := vfs.BaseName(subPath)
	contentType, blocked := resolveContentType(fileName, "")
	if blocked {
		return nil, vfs.NewForbiddenError(logicalPath, "executable files are not allowed")
	}
	if err := d.requireParent(ctx, mount, subPath); err != nil {
		return nil, err
	}

	partSize := d.partSize
	if fileSize > partSize*maxParts {
		partSize = (fileSize + maxParts - 1) / maxParts
	}
	partCount := int((fileSize + partSize - 1) / partSize)
	if partCount < 1 {
		partCount = 1
	}

	key := d.keyFor(subPath)
	created, err := d.client.CreateMultipartUpload(ctx, &awss3.CreateMultipartUploadInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, mapError(logicalPath, err)
	}
	uploadID := aws.ToString(created.UploadId)

	urls, err := d.signPartURLs(ctx, key, uploadID, partRange(1, partCount))
	if err != nil {
		// Orphaned sessions cost storage; try to abort before failing.
		_, _ = d.client.AbortMultipartUpload(ctx, &awss3.AbortMultipartUploadInput{
			Bucket:   aws.String(d.bucket),
			Key:      aws.String(key),
			UploadId: aws.String(uploadID),
		})
		return nil, mapError(logicalPath, err)
	}

	return &vfs.MultipartInit{
		UploadID: uploadID,
		Key:      key,
		Path:     logicalPath,
		PartSize: partSize,
		PartURLs: urls,
	}, nil
}

// CompleteMultipart finalizes a session, records file metadata and
// invalidates the containing listing chain.
func (d *Driver) CompleteMultipart(ctx context.Context, mount *models.Mount, subPath, uploadID string, parts []vfs.CompletedPart, principal vfs.Principal) (*vfs.UploadResult, error) {
	logicalPath := vfs.JoinPath(mount.MountPath, subPath)
	if len(parts) == 0 {
		return nil, vfs.NewBadRequestError("at least one completed part is required")
	}

	sorted := make([]vfs.CompletedPart, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	completed := make([]types.CompletedPart, 0, len(sorted))
	for _, p := range sorted {
		completed = append(completed, types.CompletedPart{
			PartNumber: aws.Int32(p.PartNumber),
			ETag:       aws.String(p.ETag),
		})
	}

	key := d.keyFor(subPath)
	out, err := d.client.CompleteMultipartUpload(ctx, &awss3.CompleteMultipartUploadInput{
		Bucket:          aws.String(d.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return nil, mapError(logicalPath, err)
	}
	etag := strings.Trim(aws.ToString(out.ETag), `"`)

	// The completed size is not in the completion response; stat the object.
	var size int64
	if head, headErr := d.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	}); headErr == nil {
		size = aws.ToInt64(head.ContentLength)
	}

	fileName := vfs.BaseName(subPath)
	contentType, _ := resolveContentType(fileName, "")
	result := &vfs.UploadResult{
		Path: logicalPath,
		Size: size,
		ETag: etag,
	}
	d.recordUpload(ctx, result, fileName, key, contentType, size, etag, principal)
	d.invalidateListings(mount, subPath)
	return result, nil
}

// AbortMultipart abandons a session and discards its uploaded parts.
func (d *Driver) AbortMultipart(ctx context.Context, mount *models.Mount, subPath, uploadID string) error {
	logicalPath := vfs.JoinPath(mount.MountPath, subPath)
	_, err := d.client.AbortMultipartUpload(ctx, &awss3.AbortMultipartUploadInput{
		Bucket:   aws.String(d.bucket),
		Key:      aws.String(d.keyFor(subPath)),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return mapError(logicalPath, err)
	}
	return nil
}

// ListMultipartUploads lists in-progress provider sessions under subPath
// ("/" for the whole mount).
func (d *Driver) ListMultipartUploads(ctx context.Context, mount *models.Mount, subPath string) ([]vfs.MultipartUploadInfo, error) {
	logicalPath := vfs.JoinPath(mount.MountPath, subPath)
	out, err := d.client.ListMultipartUploads(ctx, &awss3.ListMultipartUploadsInput{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(d.keyFor(subPath)),
	})
	if err != nil {
		return nil, mapError(logicalPath, err)
	}

	uploads := make([]vfs.MultipartUploadInfo, 0, len(out.Uploads))
	for _, u := range out.Uploads {
		key := aws.ToString(u.Key)
		uploads = append(uploads, vfs.MultipartUploadInfo{
			UploadID:  aws.ToString(u.UploadId),
			Key:       key,
			Path:      vfs.JoinPath(mount.MountPath, d.subPathFromKey(key)),
			Initiated: aws.ToTime(u.Initiated),
		})
	}
	return uploads, nil
}

// ListMultipartParts lists the parts already uploaded to a session.
func (d *Driver) ListMultipartParts(ctx context.Context, mount *models.Mount, subPath, uploadID string) ([]vfs.PartInfo, error) {
	logicalPath := vfs.JoinPath(mount.MountPath, subPath)
	out, err := d.client.ListParts(ctx, &awss3.ListPartsInput{
		Bucket:   aws.String(d.bucket),
		Key:      aws.String(d.keyFor(subPath)),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return nil, mapError(logicalPath, err)
	}

	parts := make([]vfs.PartInfo, 0, len(out.Parts))
	for _, p := range out.Parts {
		parts = append(parts, vfs.PartInfo{
			PartNumber:   aws.ToInt32(p.PartNumber),
			Size:         aws.ToInt64(p.Size),
			ETag:         strings.Trim(aws.ToString(p.ETag), `"`),
			LastModified: aws.ToTime(p.LastModified),
		})
	}
	return parts, nil
}

// RefreshMultipartURLs re-signs part URLs for a resumable session.
func (d *Driver) RefreshMultipartURLs(ctx context.Context, mount *models.Mount, subPath, uploadID string, partNumbers []int32) ([]vfs.PartURL, error) {
	urls, err := d.signPartURLs(ctx, d.keyFor(subPath), uploadID, partNumbers)
	if err != nil {
		return nil, mapError(vfs.JoinPath(mount.MountPath, subPath), err)
	}
	return urls, nil
}

func (d *Driver) signPartURLs(ctx context.Context, key, uploadID string, partNumbers []int32) ([]vfs.PartURL, error) {
	urls := make([]vfs.PartURL, 0, len(partNumbers))
	for _, n := range partNumbers {
		req, err := d.presign.PresignUploadPart(ctx, &awss3.UploadPartInput{
			Bucket:     aws.String(d.bucket),
			Key:        aws.String(key),
			UploadId:   aws.String(uploadID),
			PartNumber: aws.Int32(n),
		}, func(po *awss3.PresignOptions) { po.Expires = partURLExpiry })
		if err != nil {
			return nil, err
		}
		urls = append(urls, vfs.PartURL{PartNumber: n, URL: req.URL})
	}
	return urls, nil
}

func partRange(from, count int) []int32 {
	nums := make([]int32, 0, count)
	for i := 0; i < count; i++ {
		nums = append(nums, int32(from+i))
	}
	return nums
}
