package s3

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftfs/driftfs/pkg/controlplane/models"
	"github.com/driftfs/driftfs/pkg/vfs"
	"github.com/driftfs/driftfs/pkg/vfs/cache"
)

type fakeObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

type fakeUpload struct {
	key       string
	initiated time.Time
	parts     map[int32]int64
}

// fakeS3 is an in-memory stand-in for the S3 API surface the driver uses.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	uploads map[string]*fakeUpload
	nextID  int

	headErr error // forced HeadObject failure when set
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects: make(map[string]fakeObject),
		uploads: make(map[string]*fakeUpload),
	}
}

func (f *fakeS3) put(key, data, contentType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = fakeObject{data: []byte(data), contentType: contentType, modified: time.Now()}
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.objects))
	for k := range f.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func notFoundErr() error {
	return &smithy.GenericAPIError{Code: "NoSuchKey", Message: "no such key"}
}

func etagFor(data []byte) string {
	return fmt.Sprintf(`"%x"`, md5.Sum(data))
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)
	maxKeys := int(aws.ToInt32(in.MaxKeys))

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := &awss3.ListObjectsV2Output{}
	seenPrefix := map[string]bool{}
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if delim != "" {
			if i := strings.Index(rest, delim); i >= 0 && rest != "" {
				cp := prefix + rest[:i+1]
				if !seenPrefix[cp] {
					seenPrefix[cp] = true
					out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(cp)})
				}
				continue
			}
		}
		obj := f.objects[key]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.modified),
			ETag:         aws.String(etagFor(obj.data)),
		})
		if maxKeys > 0 && len(out.Contents) >= maxKeys {
			break
		}
	}
	return out, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *awss3.HeadObjectInput, _ ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return nil, f.headErr
	}
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, notFoundErr()
	}
	return &awss3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		LastModified:  aws.Time(obj.modified),
		ETag:          aws.String(etagFor(obj.data)),
	}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, notFoundErr()
	}
	return &awss3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		LastModified:  aws.Time(obj.modified),
		ETag:          aws.String(etagFor(obj.data)),
	}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = fakeObject{
		data:        data,
		contentType: aws.ToString(in.ContentType),
		modified:    time.Now(),
	}
	return &awss3.PutObjectOutput{ETag: aws.String(etagFor(data))}, nil
}

func (f *fakeS3) CopyObject(ctx context.Context, in *awss3.CopyObjectInput, _ ...func(*awss3.Options)) (*awss3.CopyObjectOutput, error) {
	source, err := url.PathUnescape(aws.ToString(in.CopySource))
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	srcKey := strings.TrimPrefix(source, "b/")
	obj, ok := f.objects[srcKey]
	if !ok {
		return nil, notFoundErr()
	}
	f.objects[aws.ToString(in.Key)] = obj
	return &awss3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *awss3.DeleteObjectsInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, obj := range in.Delete.Objects {
		delete(f.objects, aws.ToString(obj.Key))
	}
	return &awss3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *awss3.CreateMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("upload-%d", f.nextID)
	f.uploads[id] = &fakeUpload{
		key:       aws.ToString(in.Key),
		initiated: time.Now(),
		parts:     make(map[int32]int64),
	}
	return &awss3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *awss3.CompleteMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.ToString(in.UploadId)
	up, ok := f.uploads[id]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchUpload"}
	}
	delete(f.uploads, id)
	f.objects[up.key] = fakeObject{modified: time.Now()}
	return &awss3.CompleteMultipartUploadOutput{ETag: aws.String(`"multipart-etag"`)}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *awss3.AbortMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.ToString(in.UploadId)
	if _, ok := f.uploads[id]; !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchUpload"}
	}
	delete(f.uploads, id)
	return &awss3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) ListMultipartUploads(ctx context.Context, in *awss3.ListMultipartUploadsInput, _ ...func(*awss3.Options)) (*awss3.ListMultipartUploadsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := aws.ToString(in.Prefix)
	out := &awss3.ListMultipartUploadsOutput{}
	for id, up := range f.uploads {
		if !strings.HasPrefix(up.key, prefix) {
			continue
		}
		out.Uploads = append(out.Uploads, types.MultipartUpload{
			UploadId:  aws.String(id),
			Key:       aws.String(up.key),
			Initiated: aws.Time(up.initiated),
		})
	}
	return out, nil
}

func (f *fakeS3) ListParts(ctx context.Context, in *awss3.ListPartsInput, _ ...func(*awss3.Options)) (*awss3.ListPartsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.uploads[aws.ToString(in.UploadId)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchUpload"}
	}
	out := &awss3.ListPartsOutput{}
	for n, size := range up.parts {
		out.Parts = append(out.Parts, types.Part{
			PartNumber:   aws.Int32(n),
			Size:         aws.Int64(size),
			ETag:         aws.String(fmt.Sprintf(`"part-%d"`, n)),
			LastModified: aws.Time(up.initiated),
		})
	}
	return out, nil
}

// fakePresigner signs URLs by formatting the request parameters.
type fakePresigner struct{}

func (fakePresigner) PresignGetObject(ctx context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	u := "https://signed.test/" + aws.ToString(in.Key) + "?method=GET"
	if in.ResponseContentDisposition != nil {
		u += "&disposition=attachment"
	}
	return &v4.PresignedHTTPRequest{URL: u, Method: "GET"}, nil
}

func (fakePresigner) PresignPutObject(ctx context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: "https://signed.test/" + aws.ToString(in.Key) + "?method=PUT", Method: "PUT"}, nil
}

func (fakePresigner) PresignUploadPart(ctx context.Context, in *awss3.UploadPartInput, _ ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	u := fmt.Sprintf("https://signed.test/%s?part=%d&upload=%s", aws.ToString(in.Key), aws.ToInt32(in.PartNumber), aws.ToString(in.UploadId))
	return &v4.PresignedHTTPRequest{URL: u, Method: "PUT"}, nil
}

// fakeRecords collects file record calls.
type fakeRecords struct {
	mu      sync.Mutex
	created []*models.FileRecord
	deleted []string
	moved   [][2]string
}

func (r *fakeRecords) CreateFileRecord(ctx context.Context, record *models.FileRecord) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.ID = fmt.Sprintf("file-%05d", len(r.created)+1)
	record.Slug = models.SlugForID(record.ID)
	r.created = append(r.created, record)
	return record.ID, nil
}

func (r *fakeRecords) DeleteFileRecordsByStoragePath(ctx context.Context, configID, path string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, path)
	return 1, nil
}

func (r *fakeRecords) UpdateFileRecordStoragePath(ctx context.Context, configID, oldPath, newPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moved = append(r.moved, [2]string{oldPath, newPath})
	return nil
}

type testEnv struct {
	driver  *Driver
	fake    *fakeS3
	records *fakeRecords
	cache   *cache.DirectoryCache
	mount   *models.Mount
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := newFakeS3()
	records := &fakeRecords{}
	dirCache := cache.NewDirectoryCache(nil)

	cfg := &models.S3Config{
		ID:            "c1",
		Name:          "test",
		Endpoint:      "http://localhost:9000",
		Bucket:        "b",
		DefaultFolder: "root",
	}
	driver, err := New(context.Background(), cfg, Options{
		DirCache: dirCache,
		Records:  records,
		client:   fake,
		presign:  fakePresigner{},
	})
	require.NoError(t, err)

	return &testEnv{
		driver:  driver,
		fake:    fake,
		records: records,
		cache:   dirCache,
		mount: &models.Mount{
			ID:              "m1",
			Name:            "files",
			MountPath:       "/files",
			StorageType:     models.StorageTypeS3,
			StorageConfigID: "c1",
			StorageConfig:   *cfg,
			CacheTTL:        300,
			IsActive:        true,
		},
	}
}

func TestListDirectory(t *testing.T) {
	env := newTestEnv(t)
	env.fake.put("root/a.txt", "alpha", "text/plain")
	env.fake.put("root/docs/", "", directoryMarkerType)
	env.fake.put("root/docs/x.txt", "x", "text/plain")

	listing, err := env.driver.ListDirectory(context.Background(), env.mount, "/")
	require.NoError(t, err)
	require.Len(t, listing.Items, 2)

	assert.True(t, listing.Items[0].IsDirectory, "directories sort first")
	assert.Equal(t, "docs", listing.Items[0].Name)
	assert.Equal(t, "/files/docs/", listing.Items[0].Path)
	assert.Equal(t, "a.txt", listing.Items[1].Name)
	assert.Equal(t, "/files/a.txt", listing.Items[1].Path)
	assert.Equal(t, int64(5), listing.Items[1].Size)
	assert.NotContains(t, listing.Items[1].ETag, `"`)
}

func TestListDirectorySkipsMarker(t *testing.T) {
	env := newTestEnv(t)
	env.fake.put("root/docs/", "", directoryMarkerType)
	env.fake.put("root/docs/x.txt", "x", "text/plain")

	listing, err := env.driver.ListDirectory(context.Background(), env.mount, "/docs/")
	require.NoError(t, err)
	require.Len(t, listing.Items, 1)
	assert.Equal(t, "x.txt", listing.Items[0].Name)
}

func TestListDirectoryUsesCache(t *testing.T) {
	env := newTestEnv(t)
	env.fake.put("root/a.txt", "alpha", "text/plain")

	first, err := env.driver.ListDirectory(context.Background(), env.mount, "/")
	require.NoError(t, err)

	env.fake.put("root/b.txt", "beta", "text/plain")
	second, err := env.driver.ListDirectory(context.Background(), env.mount, "/")
	require.NoError(t, err)
	assert.Equal(t, len(first.Items), len(second.Items), "second read is served from cache")
}

func TestListDirectoryNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.driver.ListDirectory(context.Background(), env.mount, "/missing/")
	assert.True(t, vfs.IsCode(err, vfs.ErrNotFound))
}

func TestGetFileInfo(t *testing.T) {
	env := newTestEnv(t)
	env.fake.put("root/docs/x.txt", "hello", "text/plain")

	info, err := env.driver.GetFileInfo(context.Background(), env.mount, "/docs/x.txt")
	require.NoError(t, err)
	assert.Equal(t, "/files/docs/x.txt", info.Path)
	assert.Equal(t, int64(5), info.Size)
	assert.False(t, info.IsDirectory)
	assert.Equal(t, "text/plain", info.ContentType)
}

func TestGetFileInfoDirectoryWithoutSlash(t *testing.T) {
	env := newTestEnv(t)
	env.fake.put("root/docs/x.txt", "x", "text/plain")

	info, err := env.driver.GetFileInfo(context.Background(), env.mount, "/docs")
	require.NoError(t, err)
	assert.True(t, info.IsDirectory)
	assert.Equal(t, "/files/docs/", info.Path)
}

func TestGetFileInfoHeadRefusedFallsBackToGet(t *testing.T) {
	env := newTestEnv(t)
	env.fake.put("root/x.txt", "hello", "text/plain")
	env.fake.headErr = &smithy.GenericAPIError{Code: "AccessDenied"}

	info, err := env.driver.GetFileInfo(context.Background(), env.mount, "/x.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
}

func TestGetFileInfoNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.driver.GetFileInfo(context.Background(), env.mount, "/missing.txt")
	assert.True(t, vfs.IsCode(err, vfs.ErrNotFound))
}

func TestDownload(t *testing.T) {
	env := newTestEnv(t)
	env.fake.put("root/x.txt", "payload", "text/plain")

	res, err := env.driver.Download(context.Background(), env.mount, "/x.txt", false)
	require.NoError(t, err)
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Contains(t, res.Disposition, "attachment")

	preview, err := env.driver.Download(context.Background(), env.mount, "/x.txt", true)
	require.NoError(t, err)
	preview.Body.Close()
	assert.Contains(t, preview.Disposition, "inline")
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t)
	env.fake.put("root/docs/", "", directoryMarkerType)
	env.cache.Set("m1", "/docs/", &vfs.DirectoryListing{Path: "/files/docs/"}, time.Minute)

	result, err := env.driver.Upload(context.Background(), env.mount, "/docs/new.txt", vfs.UploadInput{
		FileName:    "new.txt",
		Body:        strings.NewReader("content"),
		Size:        7,
		ContentType: "text/plain",
	}, vfs.NewAdminPrincipal("1"))
	require.NoError(t, err)

	assert.Equal(t, "/files/docs/new.txt", result.Path)
	assert.NotEmpty(t, result.FileID)
	assert.Equal(t, models.SlugForID(result.FileID), result.Slug)
	assert.Contains(t, env.fake.keys(), "root/docs/new.txt")

	require.Len(t, env.records.created, 1)
	assert.Equal(t, "root/docs/new.txt", env.records.created[0].StoragePath)
	assert.Equal(t, "admin:1", env.records.created[0].CreatedBy)

	_, cached := env.cache.Get("m1", "/docs/")
	assert.False(t, cached, "containing listing must be invalidated")
}

func TestUploadParentMissing(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.driver.Upload(context.Background(), env.mount, "/nowhere/new.txt", vfs.UploadInput{
		FileName: "new.txt",
		Body:     strings.NewReader("x"),
		Size:     1,
	}, vfs.NewAdminPrincipal("1"))
	assert.True(t, vfs.IsCode(err, vfs.ErrConflict))
}

func TestUploadRejectsExecutables(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"evil.exe", "script.sh", "setup.msi"} {
		_, err := env.driver.Upload(context.Background(), env.mount, "/"+name, vfs.UploadInput{
			FileName: name,
			Body:     strings.NewReader("x"),
			Size:     1,
		}, vfs.NewAdminPrincipal("1"))
		assert.True(t, vfs.IsCode(err, vfs.ErrForbidden), name)
	}
}

func TestCreateDirectory(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.driver.CreateDirectory(context.Background(), env.mount, "/docs/"))
	assert.Contains(t, env.fake.keys(), "root/docs/")

	err := env.driver.CreateDirectory(context.Background(), env.mount, "/docs/")
	assert.True(t, vfs.IsCode(err, vfs.ErrConflict))

	err = env.driver.CreateDirectory(context.Background(), env.mount, "/a/b/c/")
	assert.True(t, vfs.IsCode(err, vfs.ErrConflict), "missing ancestor chain")
}

func TestRemoveFile(t *testing.T) {
	env := newTestEnv(t)
	env.fake.put("root/x.txt", "x", "text/plain")

	require.NoError(t, env.driver.Remove(context.Background(), env.mount, "/x.txt"))
	assert.NotContains(t, env.fake.keys(), "root/x.txt")
	assert.Contains(t, env.records.deleted, "root/x.txt")

	err := env.driver.Remove(context.Background(), env.mount, "/x.txt")
	assert.True(t, vfs.IsCode(err, vfs.ErrNotFound))
}

func TestRemoveDirectory(t *testing.T) {
	env := newTestEnv(t)
	env.fake.put("root/docs/", "", directoryMarkerType)
	env.fake.put("root/docs/a.txt", "a", "text/plain")
	env.fake.put("root/docs/sub/b.txt", "b", "text/plain")
	env.fake.put("root/keep.txt", "keep", "text/plain")

	require.NoError(t, env.driver.Remove(context.Background(), env.mount, "/docs/"))
	assert.Equal(t, []string{"root/keep.txt"}, env.fake.keys())

	err := env.driver.Remove(context.Background(), env.mount, "/gone/")
	assert.True(t, vfs.IsCode(err, vfs.ErrNotFound), "empty scan reports NotFound")
}

func TestRenameFile(t *testing.T) {
	env := newTestEnv(t)
	env.fake.put("root/old.txt", "data", "text/plain")

	require.NoError(t, env.driver.Rename(context.Background(), env.mount, "/old.txt", "/new.txt"))
	assert.Contains(t, env.fake.keys(), "root/new.txt")
	assert.NotContains(t, env.fake.keys(), "root/old.txt")
	require.Len(t, env.records.moved, 1)
	assert.Equal(t, [2]string{"root/old.txt", "root/new.txt"}, env.records.moved[0])
}

func TestRenameDestinationExists(t *testing.T) {
	env := newTestEnv(t)
	env.fake.put("root/a.txt", "a", "text/plain")
	env.fake.put("root/b.txt", "b", "text/plain")

	err := env.driver.Rename(context.Background(), env.mount, "/a.txt", "/b.txt")
	assert.True(t, vfs.IsCode(err, vfs.ErrConflict))
}

func TestRenameMixedTypesRejected(t *testing.T) {
	env := newTestEnv(t)
	err := env.driver.Rename(context.Background(), env.mount, "/a.txt", "/b/")
	assert.True(t, vfs.IsCode(err, vfs.ErrBadRequest))
}

func TestRenameDirectory(t *testing.T) {
	env := newTestEnv(t)
	env.fake.put("root/old/", "", directoryMarkerType)
	env.fake.put("root/old/a.txt", "a", "text/plain")
	env.fake.put("root/old/sub/b.txt", "b", "text/plain")

	require.NoError(t, env.driver.Rename(context.Background(), env.mount, "/old/", "/new/"))
	assert.Equal(t, []string{"root/new/", "root/new/a.txt", "root/new/sub/b.txt"}, env.fake.keys())
}

func TestCopyFile(t *testing.T) {
	env := newTestEnv(t)
	env.fake.put("root/src.txt", "data", "text/plain")

	res, err := env.driver.Copy(context.Background(), env.mount, "/src.txt", env.mount, "/dst.txt", true)
	require.NoError(t, err)
	assert.Equal(t, vfs.CopyLocal, res.Outcome)
	assert.Equal(t, 1, res.CopiedObjects)
	assert.Contains(t, env.fake.keys(), "root/src.txt")
	assert.Contains(t, env.fake.keys(), "root/dst.txt")
}

func TestCopySkipExisting(t *testing.T) {
	env := newTestEnv(t)
	env.fake.put("root/src.txt", "data", "text/plain")
	env.fake.put("root/dst.txt", "other", "text/plain")

	res, err := env.driver.Copy(context.Background(), env.mount, "/src.txt", env.mount, "/dst.txt", true)
	require.NoError(t, err)
	assert.Equal(t, vfs.CopySkipped, res.Outcome)
}

func TestCopyDirectory(t *testing.T) {
	env := newTestEnv(t)
	env.fake.put("root/src/", "", directoryMarkerType)
	env.fake.put("root/src/a.txt", "a", "text/plain")
	env.fake.put("root/src/b.txt", "b", "text/plain")

	res, err := env.driver.Copy(context.Background(), env.mount, "/src/", env.mount, "/dst/", false)
	require.NoError(t, err)
	assert.Equal(t, vfs.CopyLocal, res.Outcome)
	assert.Equal(t, 3, res.CopiedObjects)
	assert.Contains(t, env.fake.keys(), "root/dst/a.txt")
}

func TestPresignURL(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.driver.PresignURL(context.Background(), env.mount, "/x.txt", vfs.PresignOptions{})
	require.NoError(t, err)
	assert.Equal(t, "GET", res.Method)
	assert.Contains(t, res.URL, "root/x.txt")
	assert.WithinDuration(t, time.Now().Add(vfs.DefaultPresignExpiry), res.ExpiresAt, time.Minute)

	forced, err := env.driver.PresignURL(context.Background(), env.mount, "/x.txt", vfs.PresignOptions{ForceDownload: true})
	require.NoError(t, err)
	assert.Contains(t, forced.URL, "disposition=attachment")

	put, err := env.driver.PresignURL(context.Background(), env.mount, "/x.txt", vfs.PresignOptions{Method: "PUT"})
	require.NoError(t, err)
	assert.Equal(t, "PUT", put.Method)

	_, err = env.driver.PresignURL(context.Background(), env.mount, "/x.txt", vfs.PresignOptions{Method: "DELETE"})
	assert.True(t, vfs.IsCode(err, vfs.ErrBadRequest))
}

func TestMultipartLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	init, err := env.driver.InitMultipart(ctx, env.mount, "/big.bin", 40*1024*1024)
	require.NoError(t, err)
	assert.Equal(t, "root/big.bin", init.Key)
	assert.Equal(t, defaultPartSize, init.PartSize)
	require.Len(t, init.PartURLs, 3, "40MB at 16MB parts needs 3 parts")
	assert.Equal(t, int32(1), init.PartURLs[0].PartNumber)

	uploads, err := env.driver.ListMultipartUploads(ctx, env.mount, "/")
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, init.UploadID, uploads[0].UploadID)

	refreshed, err := env.driver.RefreshMultipartURLs(ctx, env.mount, "/big.bin", init.UploadID, []int32{2, 3})
	require.NoError(t, err)
	require.Len(t, refreshed, 2)
	assert.Contains(t, refreshed[0].URL, "part=2")

	result, err := env.driver.CompleteMultipart(ctx, env.mount, "/big.bin", init.UploadID, []vfs.CompletedPart{
		{PartNumber: 2, ETag: "e2"},
		{PartNumber: 1, ETag: "e1"},
		{PartNumber: 3, ETag: "e3"},
	}, vfs.NewAdminPrincipal("1"))
	require.NoError(t, err)
	assert.Equal(t, "multipart-etag", result.ETag)
	assert.Contains(t, env.fake.keys(), "root/big.bin")
	require.Len(t, env.records.created, 1)
}

func TestMultipartAbort(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	init, err := env.driver.InitMultipart(ctx, env.mount, "/big.bin", 1024)
	require.NoError(t, err)
	require.NoError(t, env.driver.AbortMultipart(ctx, env.mount, "/big.bin", init.UploadID))

	err = env.driver.AbortMultipart(ctx, env.mount, "/big.bin", init.UploadID)
	assert.True(t, vfs.IsCode(err, vfs.ErrNotFound))
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	env.fake.put("root/docs/Report.pdf", "r", "application/pdf")
	env.fake.put("root/docs/notes.txt", "n", "text/plain")
	env.fake.put("root/report-2024.xlsx", "x", "application/vnd.ms-excel")

	hits, err := env.driver.Search(context.Background(), env.mount, "report", 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	paths := []string{hits[0].Path, hits[1].Path}
	assert.Contains(t, paths, "/files/docs/Report.pdf")
	assert.Contains(t, paths, "/files/report-2024.xlsx")
}

func TestSearchMaxResults(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		env.fake.put(fmt.Sprintf("root/file-%d.txt", i), "x", "text/plain")
	}

	hits, err := env.driver.Search(context.Background(), env.mount, "file", 3)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}
