// Read-side operations: listing, stat, download, existence probes, and the
// per-mount search walk.
package s3

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/pkg/controlplane/models"
	"github.com/driftfs/driftfs/pkg/vfs"
)

// defaultSearchLimit caps how many raw hits one mount walk collects.
const defaultSearchLimit = 1000

// ListDirectory lists one level under subPath using a delimiter query.
// Results are cached per (mount, subPath) when the mount carries a positive
// cache TTL.
func (d *Driver) ListDirectory(ctx context.Context, mount *models.Mount, subPath string) (*vfs.DirectoryListing, error) {
	ttl := time.Duration(mount.CacheTTL) * time.Second
	if ttl > 0 && d.dirCache != nil {
		if listing, ok := d.dirCache.Get(mount.ID, subPath); ok {
			return listing, nil
		}
	}

	prefix := d.keyFor(subPath)
	logicalDir := vfs.JoinPath(mount.MountPath, subPath)

	var (
		files []vfs.Entry
		dirs  []vfs.Entry
		found bool
	)

	paginator := awss3.NewListObjectsV2Paginator(d.client, &awss3.ListObjectsV2Input{
		Bucket:    aws.String(d.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError(logicalDir, err)
		}

		for _, cp := range page.CommonPrefixes {
			found = true
			key := aws.ToString(cp.Prefix)
			name := vfs.BaseName(d.subPathFromKey(key))
			dirs = append(dirs, vfs.Entry{
				Name:        name,
				Path:        logicalDir + name + "/",
				IsDirectory: true,
				MountID:     mount.ID,
			})
		}
		for _, obj := range page.Contents {
			found = true
			key := aws.ToString(obj.Key)
			if key == prefix {
				// The directory's own marker object.
				continue
			}
			name := vfs.BaseName(d.subPathFromKey(key))
			files = append(files, vfs.Entry{
				Name:     name,
				Path:     logicalDir + name,
				Size:     aws.ToInt64(obj.Size),
				Modified: aws.ToTime(obj.LastModified),
				ETag:     strings.Trim(aws.ToString(obj.ETag), `"`),
				MountID:  mount.ID,
			})
		}
	}

	if !found && subPath != "/" {
		return nil, vfs.NewNotFoundError(logicalDir, "directory")
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	listing := &vfs.DirectoryListing{
		Path:        logicalDir,
		MountID:     mount.ID,
		StorageType: mount.StorageType,
		Items:       append(dirs, files...),
	}
	if listing.Items == nil {
		listing.Items = []vfs.Entry{}
	}

	if ttl > 0 && d.dirCache != nil {
		d.dirCache.Set(mount.ID, subPath, listing, ttl)
	}
	return listing, nil
}

// GetFileInfo stats a file or directory.
//
// Files are probed with HeadObject; providers that refuse HEAD (some return
// 403 or an opaque error for signed HEAD requests) fall back to a GetObject
// whose body is discarded. A 404 on a file path triggers a one-key prefix
// probe so a path that is really a directory still resolves.
func (d *Driver) GetFileInfo(ctx context.Context, mount *models.Mount, subPath string) (*vfs.FileInfo, error) {
	logicalPath := vfs.JoinPath(mount.MountPath, subPath)

	if vfs.IsDirectoryPath(subPath) {
		ok, err := d.prefixExists(ctx, d.keyFor(subPath))
		if err != nil {
			return nil, mapError(logicalPath, err)
		}
		if !ok && subPath != "/" {
			return nil, vfs.NewNotFoundError(logicalPath, "directory")
		}
		return &vfs.FileInfo{
			Path:        logicalPath,
			Name:        vfs.BaseName(logicalPath),
			IsDirectory: true,
			MountID:     mount.ID,
		}, nil
	}

	key := d.keyFor(subPath)
	head, err := d.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return &vfs.FileInfo{
			Path:        logicalPath,
			Name:        vfs.BaseName(logicalPath),
			Size:        aws.ToInt64(head.ContentLength),
			Modified:    aws.ToTime(head.LastModified),
			ETag:        strings.Trim(aws.ToString(head.ETag), `"`),
			ContentType: aws.ToString(head.ContentType),
			MountID:     mount.ID,
		}, nil
	}

	if isNotFound(err) {
		// The path may name a directory without its trailing slash.
		ok, probeErr := d.prefixExists(ctx, key+"/")
		if probeErr == nil && ok {
			return &vfs.FileInfo{
				Path:        logicalPath + "/",
				Name:        vfs.BaseName(logicalPath),
				IsDirectory: true,
				MountID:     mount.ID,
			}, nil
		}
		return nil, vfs.NewNotFoundError(logicalPath, "file")
	}

	// HEAD refused; retry with GET and discard the body.
	info, getErr := d.statViaGet(ctx, mount, subPath)
	if getErr != nil {
		return nil, mapError(logicalPath, err)
	}
	return info, nil
}

func (d *Driver) statViaGet(ctx context.Context, mount *models.Mount, subPath string) (*vfs.FileInfo, error) {
	logicalPath := vfs.JoinPath(mount.MountPath, subPath)
	out, err := d.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.keyFor(subPath)),
	})
	if err != nil {
		return nil, err
	}
	if closeErr := out.Body.Close(); closeErr != nil {
		logger.Debug("failed to close stat body", "path", logicalPath, "error", closeErr)
	}
	return &vfs.FileInfo{
		Path:        logicalPath,
		Name:        vfs.BaseName(logicalPath),
		Size:        aws.ToInt64(out.ContentLength),
		Modified:    aws.ToTime(out.LastModified),
		ETag:        strings.Trim(aws.ToString(out.ETag), `"`),
		ContentType: aws.ToString(out.ContentType),
		MountID:     mount.ID,
	}, nil
}

// Download streams an object. Ownership of the body transfers to the caller.
func (d *Driver) Download(ctx context.Context, mount *models.Mount, subPath string, inline bool) (*vfs.DownloadResult, error) {
	logicalPath := vfs.JoinPath(mount.MountPath, subPath)
	out, err := d.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.keyFor(subPath)),
	})
	if err != nil {
		return nil, mapError(logicalPath, err)
	}

	kind := "attachment"
	if inline {
		kind = "inline"
	}
	return &vfs.DownloadResult{
		Body:          out.Body,
		ContentType:   aws.ToString(out.ContentType),
		ContentLength: aws.ToInt64(out.ContentLength),
		ETag:          strings.Trim(aws.ToString(out.ETag), `"`),
		LastModified:  aws.ToTime(out.LastModified),
		Disposition:   fmt.Sprintf("%s; filename=%q", kind, vfs.BaseName(subPath)),
	}, nil
}

// Exists probes a file key, or a non-empty prefix for directory references.
func (d *Driver) Exists(ctx context.Context, mount *models.Mount, subPath string) (bool, error) {
	if vfs.IsDirectoryPath(subPath) {
		ok, err := d.prefixExists(ctx, d.keyFor(subPath))
		if err != nil {
			return false, mapError(vfs.JoinPath(mount.MountPath, subPath), err)
		}
		return ok, nil
	}

	_, err := d.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.keyFor(subPath)),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, mapError(vfs.JoinPath(mount.MountPath, subPath), err)
}

// prefixExists reports whether at least one key lives under prefix.
func (d *Driver) prefixExists(ctx context.Context, prefix string) (bool, error) {
	out, err := d.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket:  aws.String(d.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, err
	}
	return len(out.Contents) > 0 || len(out.CommonPrefixes) > 0, nil
}

// Search walks every object of the mount and matches the query
// case-insensitively against the final path segment. Directory markers match
// as directories. The walk stops once maxResults hits are collected.
func (d *Driver) Search(ctx context.Context, mount *models.Mount, query string, maxResults int) ([]vfs.SearchHit, error) {
	if maxResults <= 0 {
		maxResults = defaultSearchLimit
	}
	needle := strings.ToLower(query)

	var hits []vfs.SearchHit
	paginator := awss3.NewListObjectsV2Paginator(d.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(d.keyPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError(mount.MountPath, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			sub := d.subPathFromKey(key)
			name := vfs.BaseName(sub)
			if name == "" || !strings.Contains(strings.ToLower(name), needle) {
				continue
			}

			hit := vfs.SearchHit{
				Name:        name,
				Path:        vfs.JoinPath(mount.MountPath, sub),
				IsDirectory: vfs.IsDirectoryPath(sub),
				Size:        aws.ToInt64(obj.Size),
				Modified:    aws.ToTime(obj.LastModified),
				MountID:     mount.ID,
			}
			hits = append(hits, hit)
			if len(hits) >= maxResults {
				return hits, nil
			}
		}
	}
	return hits, nil
}
