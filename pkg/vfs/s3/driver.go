// Package s3 implements the S3 storage driver for DriftFS.
//
// This file contains the driver type, configuration, client construction and
// the shared key-mapping and error-mapping helpers. Read, write, presign and
// multipart operations live in their own files.
package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/driftfs/driftfs/pkg/controlplane/models"
	"github.com/driftfs/driftfs/pkg/secret"
	"github.com/driftfs/driftfs/pkg/vfs"
	"github.com/driftfs/driftfs/pkg/vfs/cache"
)

// directoryMarkerType is the content type of zero-byte directory marker
// objects. Keys of marker objects end with a slash.
const directoryMarkerType = "application/x-directory"

// defaultPartSize is the multipart part size offered to clients (16MB).
// S3 requires parts of at least 5MB except the last.
const defaultPartSize int64 = 16 * 1024 * 1024

// api is the slice of the S3 client the driver calls. *s3.Client satisfies
// it; tests substitute a fake.
type api interface {
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, params *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *awss3.CopyObjectInput, optFns ...func(*awss3.Options)) (*awss3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *awss3.DeleteObjectsInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error)
	CreateMultipartUpload(ctx context.Context, params *awss3.CreateMultipartUploadInput, optFns ...func(*awss3.Options)) (*awss3.CreateMultipartUploadOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *awss3.CompleteMultipartUploadInput, optFns ...func(*awss3.Options)) (*awss3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *awss3.AbortMultipartUploadInput, optFns ...func(*awss3.Options)) (*awss3.AbortMultipartUploadOutput, error)
	ListMultipartUploads(ctx context.Context, params *awss3.ListMultipartUploadsInput, optFns ...func(*awss3.Options)) (*awss3.ListMultipartUploadsOutput, error)
	ListParts(ctx context.Context, params *awss3.ListPartsInput, optFns ...func(*awss3.Options)) (*awss3.ListPartsOutput, error)
}

// presigner is the slice of the S3 presign client the driver calls.
// *s3.PresignClient satisfies it.
type presigner interface {
	PresignGetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignUploadPart(ctx context.Context, params *awss3.UploadPartInput, optFns ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// RecordStore persists file records for uploaded objects. The control plane
// store implements it; a nil RecordStore disables record bookkeeping.
type RecordStore interface {
	CreateFileRecord(ctx context.Context, record *models.FileRecord) (string, error)
	DeleteFileRecordsByStoragePath(ctx context.Context, configID, path string) (int64, error)
	UpdateFileRecordStoragePath(ctx context.Context, configID, oldPath, newPath string) error
}

// Driver serves every mount that references one S3 storage configuration.
// It is safe for concurrent use; all state besides the injected caches is
// immutable after construction.
type Driver struct {
	client    api
	presign   presigner
	bucket    string
	endpoint  string
	keyPrefix string
	configID  string
	partSize  int64

	dirCache *cache.DirectoryCache
	records  RecordStore
}

// Options are the collaborators a Driver is built with.
type Options struct {
	// Secrets opens the encrypted secret key of the configuration.
	Secrets *secret.Box

	// DirCache is the shared directory listing cache. Optional.
	DirCache *cache.DirectoryCache

	// Records persists file records for uploads. Optional.
	Records RecordStore

	// PartSize overrides the multipart part size. Optional.
	PartSize int64

	// client and presign override the AWS clients in tests.
	client  api
	presign presigner
}

// New builds a driver for the given storage configuration. The sealed secret
// key is decrypted here and handed to the AWS credentials provider; it is not
// retained anywhere else.
func New(ctx context.Context, cfg *models.S3Config, opts Options) (*Driver, error) {
	d := &Driver{
		client:    opts.client,
		presign:   opts.presign,
		bucket:    cfg.Bucket,
		endpoint:  cfg.Endpoint,
		keyPrefix: cfg.KeyPrefix(),
		configID:  cfg.ID,
		partSize:  opts.PartSize,
		dirCache:  opts.DirCache,
		records:   opts.Records,
	}
	if d.partSize <= 0 {
		d.partSize = defaultPartSize
	}

	if d.client == nil {
		if opts.Secrets == nil {
			return nil, fmt.Errorf("secret box is required")
		}
		secretKey, err := opts.Secrets.Decrypt(cfg.EncryptedSecretKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt secret key for config %q: %w", cfg.Name, err)
		}
		client, err := newClient(ctx, cfg, secretKey)
		if err != nil {
			return nil, err
		}
		d.client = client
		d.presign = awss3.NewPresignClient(client)
	}
	return d, nil
}

// Factory adapts New into the shape the driver pool expects.
func Factory(opts Options) func(ctx context.Context, cfg *models.S3Config) (vfs.Driver, error) {
	return func(ctx context.Context, cfg *models.S3Config) (vfs.Driver, error) {
		return New(ctx, cfg, opts)
	}
}

// newClient builds an S3 client for a custom endpoint with static credentials.
func newClient(ctx context.Context, cfg *models.S3Config, secretKey string) (*awss3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	}), nil
}

// Type returns the storage type this driver serves.
func (d *Driver) Type() string {
	return models.StorageTypeS3
}

// Capabilities declares the full S3 feature set.
func (d *Driver) Capabilities() vfs.CapabilitySet {
	return vfs.NewCapabilitySet(
		vfs.CapabilityReader,
		vfs.CapabilityWriter,
		vfs.CapabilityAtomic,
		vfs.CapabilityPresigned,
		vfs.CapabilityMultipart,
	)
}

// Close releases driver resources. The underlying HTTP client is shared and
// needs no teardown.
func (d *Driver) Close() error {
	return nil
}

// keyFor maps a mount-relative sub-path to the full object key. Directory
// references keep their trailing slash, so the result doubles as the listing
// prefix. The mount root maps to the bare configuration prefix.
func (d *Driver) keyFor(subPath string) string {
	return d.keyPrefix + strings.TrimPrefix(subPath, "/")
}

// subPathFromKey is the inverse of keyFor.
func (d *Driver) subPathFromKey(key string) string {
	return "/" + strings.TrimPrefix(key, d.keyPrefix)
}

// invalidateListings drops the cached listing chain containing subPath.
func (d *Driver) invalidateListings(mount *models.Mount, subPath string) {
	if d.dirCache != nil {
		d.dirCache.InvalidatePathAndAncestors(mount.ID, subPath)
	}
}

// mapError converts an AWS SDK failure into an engine error. Cancellation is
// reported as Cancelled, 404s as NotFound; everything else becomes a provider
// error classified from the HTTP status.
func mapError(path string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return vfs.NewCancelledError(err)
	}

	status := 0
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchUpload":
			status = http.StatusNotFound
		case "AccessDenied", "Forbidden":
			if status == 0 {
				status = http.StatusForbidden
			}
		}
	}

	if status == http.StatusNotFound {
		return vfs.NewNotFoundError(path, "object")
	}
	return vfs.NewProviderError(path, status, err)
}

// isNotFound reports whether an AWS SDK failure means the object is absent.
func isNotFound(err error) bool {
	return vfs.IsCode(mapError("", err), vfs.ErrNotFound)
}
