package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftfs/driftfs/pkg/controlplane/models"
	"github.com/driftfs/driftfs/pkg/vfs"
)

// fakeMountSource serves a fixed mount table.
type fakeMountSource struct {
	mounts []*models.Mount
}

func (s *fakeMountSource) ListActiveMounts(_ context.Context) ([]*models.Mount, error) {
	return s.mounts, nil
}

func (s *fakeMountSource) UpdateMountLastUsed(_ context.Context, _ string) error { return nil }

// stubDriver answers every engine capability with canned results and records
// the sub-paths it was called with.
type stubDriver struct {
	calls []string
}

func (d *stubDriver) record(call string) { d.calls = append(d.calls, call) }

func (d *stubDriver) Type() string { return models.StorageTypeS3 }

func (d *stubDriver) Capabilities() vfs.CapabilitySet {
	return vfs.NewCapabilitySet(
		vfs.CapabilityReader,
		vfs.CapabilityWriter,
		vfs.CapabilityAtomic,
		vfs.CapabilityPresigned,
		vfs.CapabilityMultipart,
	)
}

func (d *stubDriver) Close() error { return nil }

func (d *stubDriver) ListDirectory(_ context.Context, mount *models.Mount, subPath string) (*vfs.DirectoryListing, error) {
	d.record("list:" + subPath)
	return &vfs.DirectoryListing{
		Path:    vfs.JoinPath(mount.MountPath, subPath),
		MountID: mount.ID,
		Items: []vfs.Entry{
			{Name: "report.pdf", Path: vfs.JoinPath(mount.MountPath, subPath) + "report.pdf", Size: 12, Modified: time.Now()},
		},
	}, nil
}

func (d *stubDriver) GetFileInfo(_ context.Context, mount *models.Mount, subPath string) (*vfs.FileInfo, error) {
	d.record("info:" + subPath)
	return &vfs.FileInfo{
		Path: vfs.JoinPath(mount.MountPath, subPath), Name: vfs.BaseName(subPath),
		Size: 5, ContentType: "text/plain", MountID: mount.ID, Modified: time.Now(),
	}, nil
}

func (d *stubDriver) Download(_ context.Context, _ *models.Mount, subPath string, _ bool) (*vfs.DownloadResult, error) {
	d.record("download:" + subPath)
	return &vfs.DownloadResult{
		Body:          io.NopCloser(strings.NewReader("hello")),
		ContentType:   "text/plain",
		ContentLength: 5,
		ETag:          "abc123",
		LastModified:  time.Unix(1700000000, 0),
	}, nil
}

func (d *stubDriver) Exists(_ context.Context, _ *models.Mount, _ string) (bool, error) {
	return false, nil
}

func (d *stubDriver) Search(_ context.Context, mount *models.Mount, query string, _ int) ([]vfs.SearchHit, error) {
	d.record("search:" + query)
	return []vfs.SearchHit{{Name: "report.pdf", Path: mount.MountPath + "/report.pdf", MountID: mount.ID}}, nil
}

func (d *stubDriver) Upload(_ context.Context, mount *models.Mount, subPath string, input vfs.UploadInput, _ vfs.Principal) (*vfs.UploadResult, error) {
	d.record("upload:" + subPath)
	return &vfs.UploadResult{Path: vfs.JoinPath(mount.MountPath, subPath), Size: input.Size, ETag: "up1"}, nil
}

func (d *stubDriver) CreateDirectory(_ context.Context, _ *models.Mount, subPath string) error {
	d.record("mkdir:" + subPath)
	return nil
}

func (d *stubDriver) Remove(_ context.Context, _ *models.Mount, subPath string) error {
	d.record("remove:" + subPath)
	return nil
}

func (d *stubDriver) Rename(_ context.Context, _ *models.Mount, oldSubPath, newSubPath string) error {
	d.record("rename:" + oldSubPath + "->" + newSubPath)
	return nil
}

func (d *stubDriver) Copy(_ context.Context, _ *models.Mount, srcSubPath string, _ *models.Mount, dstSubPath string, _ bool) (*vfs.CopyResult, error) {
	d.record("copy:" + srcSubPath + "->" + dstSubPath)
	return &vfs.CopyResult{Outcome: vfs.CopyLocal, CopiedObjects: 1}, nil
}

func (d *stubDriver) PresignURL(_ context.Context, mount *models.Mount, subPath string, opts vfs.PresignOptions) (*vfs.PresignResult, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	d.record("presign:" + subPath)
	return &vfs.PresignResult{URL: "https://signed.test" + mount.MountPath + subPath, Method: method, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (d *stubDriver) InitMultipart(_ context.Context, mount *models.Mount, subPath string, _ int64) (*vfs.MultipartInit, error) {
	d.record("mpinit:" + subPath)
	return &vfs.MultipartInit{
		UploadID: "mpu-1",
		Path:     vfs.JoinPath(mount.MountPath, subPath),
		PartSize: 16 << 20,
		PartURLs: []vfs.PartURL{{PartNumber: 1, URL: "https://signed.test/part/1"}},
	}, nil
}

func (d *stubDriver) CompleteMultipart(_ context.Context, mount *models.Mount, subPath, _ string, _ []vfs.CompletedPart, _ vfs.Principal) (*vfs.UploadResult, error) {
	d.record("mpcomplete:" + subPath)
	return &vfs.UploadResult{Path: vfs.JoinPath(mount.MountPath, subPath), Size: 1, ETag: "done"}, nil
}

func (d *stubDriver) AbortMultipart(_ context.Context, _ *models.Mount, subPath, _ string) error {
	d.record("mpabort:" + subPath)
	return nil
}

func (d *stubDriver) ListMultipartUploads(_ context.Context, _ *models.Mount, _ string) ([]vfs.MultipartUploadInfo, error) {
	return nil, nil
}

func (d *stubDriver) ListMultipartParts(_ context.Context, _ *models.Mount, _, _ string) ([]vfs.PartInfo, error) {
	return nil, nil
}

func (d *stubDriver) RefreshMultipartURLs(_ context.Context, _ *models.Mount, _, _ string, partNumbers []int32) ([]vfs.PartURL, error) {
	urls := make([]vfs.PartURL, len(partNumbers))
	for i, n := range partNumbers {
		urls[i] = vfs.PartURL{PartNumber: n, URL: "https://signed.test/part/refreshed"}
	}
	return urls, nil
}

func newTestFSHandler() (*FSHandler, *stubDriver) {
	driver := &stubDriver{}
	mount := &models.Mount{
		ID:              "m1",
		Name:            "docs",
		MountPath:       "/docs",
		StorageType:     models.StorageTypeS3,
		StorageConfigID: "c1",
		StorageConfig:   models.S3Config{ID: "c1", Bucket: "bucket"},
		CreatedBy:       "admin:root",
		CacheTTL:        300,
		IsActive:        true,
		UpdatedAt:       time.Now(),
	}

	registry := vfs.NewRegistry(&fakeMountSource{mounts: []*models.Mount{mount}})
	manager := vfs.NewManager()
	manager.Register(models.StorageTypeS3, func(_ context.Context, _ *models.S3Config) (vfs.Driver, error) {
		return driver, nil
	})
	engine := vfs.NewFileSystem(registry, manager, nil)
	return NewFSHandler(engine, nil), driver
}

func fsRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	return adminContext(req)
}

func fsJSONRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := fsRequest(method, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestFSList_VirtualRoot(t *testing.T) {
	h, _ := newTestFSHandler()
	rec := httptest.NewRecorder()

	h.List(rec, fsRequest(http.MethodGet, "/api/fs/list?path=/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var listing vfs.DirectoryListing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.True(t, listing.IsVirtual)
	require.Len(t, listing.Items, 1)
	assert.Equal(t, "docs", listing.Items[0].Name)
	assert.True(t, listing.Items[0].IsMount)
}

func TestFSList_InsideMount(t *testing.T) {
	h, driver := newTestFSHandler()
	rec := httptest.NewRecorder()

	h.List(rec, fsRequest(http.MethodGet, "/api/fs/list?path="+url.QueryEscape("/docs/sub/"), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, driver.calls, "list:/sub/")
}

func TestFSList_MissingPath(t *testing.T) {
	h, _ := newTestFSHandler()
	rec := httptest.NewRecorder()

	h.List(rec, fsRequest(http.MethodGet, "/api/fs/list", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFSList_Unauthenticated(t *testing.T) {
	h, _ := newTestFSHandler()
	rec := httptest.NewRecorder()

	// No identity in context: the route was wired without Authenticate.
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/fs/list?path=/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestFSDownload(t *testing.T) {
	h, _ := newTestFSHandler()
	rec := httptest.NewRecorder()

	h.Download(rec, fsRequest(http.MethodGet, "/api/fs/download?path="+url.QueryEscape("/docs/report.pdf"), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "5", rec.Header().Get("Content-Length"))
	assert.Equal(t, `"abc123"`, rec.Header().Get("ETag"))
	assert.NotEmpty(t, rec.Header().Get("Last-Modified"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "ETag")
}

func TestFSDownload_OutsideMounts(t *testing.T) {
	h, _ := newTestFSHandler()
	rec := httptest.NewRecorder()

	h.Download(rec, fsRequest(http.MethodGet, "/api/fs/download?path="+url.QueryEscape("/elsewhere/f.txt"), nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ContentTypeProblemJSON, rec.Header().Get("Content-Type"))
}

func TestFSUpload_Form(t *testing.T) {
	h, driver := newTestFSHandler()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	require.NoError(t, form.WriteField("path", "/docs/"))
	part, err := form.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("contents"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := fsRequest(http.MethodPost, "/api/fs/upload", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.UseMultipart)
	assert.Equal(t, int64(8), resp.Size)
	assert.NotEmpty(t, driver.calls)
	assert.Contains(t, driver.calls[len(driver.calls)-1], "upload:")
}

func TestFSUpload_SmallAnnouncement(t *testing.T) {
	h, _ := newTestFSHandler()
	rec := httptest.NewRecorder()

	h.Upload(rec, fsJSONRequest(t, http.MethodPost, "/api/fs/upload", uploadIntent{
		Path: "/docs/", FileName: "small.bin", Size: 1 << 20,
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.UseMultipart)
	assert.Empty(t, resp.UploadID)
}

func TestFSUpload_LargeAnnouncementStartsMultipart(t *testing.T) {
	h, driver := newTestFSHandler()
	rec := httptest.NewRecorder()

	h.Upload(rec, fsJSONRequest(t, http.MethodPost, "/api/fs/upload", uploadIntent{
		Path: "/docs/", FileName: "huge.bin", Size: 200 << 20,
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.UseMultipart)
	assert.Equal(t, "mpu-1", resp.UploadID)
	assert.NotEmpty(t, resp.PartURLs)
	assert.Contains(t, driver.calls, "mpinit:/huge.bin")
}

func TestFSMkdir(t *testing.T) {
	h, driver := newTestFSHandler()
	rec := httptest.NewRecorder()

	h.Mkdir(rec, fsJSONRequest(t, http.MethodPost, "/api/fs/mkdir", map[string]string{"path": "/docs/new/"}))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, driver.calls, "mkdir:/new/")
}

func TestFSMkdir_MissingPath(t *testing.T) {
	h, _ := newTestFSHandler()
	rec := httptest.NewRecorder()

	h.Mkdir(rec, fsJSONRequest(t, http.MethodPost, "/api/fs/mkdir", map[string]string{}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFSRemove(t *testing.T) {
	h, driver := newTestFSHandler()
	rec := httptest.NewRecorder()

	h.Remove(rec, fsRequest(http.MethodDelete, "/api/fs/rm?path="+url.QueryEscape("/docs/old.txt"), nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, driver.calls, "remove:/old.txt")
}

func TestFSRename(t *testing.T) {
	h, driver := newTestFSHandler()
	rec := httptest.NewRecorder()

	h.Rename(rec, fsJSONRequest(t, http.MethodPost, "/api/fs/rename", map[string]string{
		"oldPath": "/docs/a.txt",
		"newPath": "/docs/b.txt",
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, driver.calls, "rename:/a.txt->/b.txt")
}

func TestFSCopy(t *testing.T) {
	h, _ := newTestFSHandler()
	rec := httptest.NewRecorder()

	h.Copy(rec, fsJSONRequest(t, http.MethodPost, "/api/fs/copy", map[string]string{
		"source": "/docs/a.txt",
		"target": "/docs/b.txt",
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp copyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "copied", resp.Status)
	assert.Equal(t, 1, resp.CopiedObjects)
}

func TestFSSearch(t *testing.T) {
	h, _ := newTestFSHandler()
	rec := httptest.NewRecorder()

	h.Search(rec, fsRequest(http.MethodGet, "/api/fs/search?q=report", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var result vfs.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotEmpty(t, result.Hits)
	assert.Equal(t, "report.pdf", result.Hits[0].Name)
}

func TestFSSearch_MissingQuery(t *testing.T) {
	h, _ := newTestFSHandler()
	rec := httptest.NewRecorder()

	h.Search(rec, fsRequest(http.MethodGet, "/api/fs/search", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFSPresign(t *testing.T) {
	h, _ := newTestFSHandler()
	rec := httptest.NewRecorder()

	h.Presign(rec, fsRequest(http.MethodPost, "/api/fs/presign?path="+url.QueryEscape("/docs/f.txt")+"&expiresIn=600", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var result vfs.PresignResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Contains(t, result.URL, "https://signed.test")
}

func TestFSPresign_DirectoryPath(t *testing.T) {
	h, driver := newTestFSHandler()
	rec := httptest.NewRecorder()

	h.Presign(rec, fsRequest(http.MethodPost, "/api/fs/presign?path="+url.QueryEscape("/docs/a/"), nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, driver.calls, "directory refs are rejected before the driver")
}

func TestFSPresign_NegativeExpiry(t *testing.T) {
	h, _ := newTestFSHandler()
	rec := httptest.NewRecorder()

	h.Presign(rec, fsRequest(http.MethodPost, "/api/fs/presign?path="+url.QueryEscape("/docs/f.txt")+"&expiresIn=-1", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFSMpuLifecycle(t *testing.T) {
	h, driver := newTestFSHandler()

	rec := httptest.NewRecorder()
	h.MpuInit(rec, fsJSONRequest(t, http.MethodPost, "/api/fs/mpu/init", map[string]any{
		"path": "/docs/", "fileName": "big.bin", "fileSize": 500 << 20,
	}))
	require.Equal(t, http.StatusCreated, rec.Code)
	var init vfs.MultipartInit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &init))
	require.Equal(t, "mpu-1", init.UploadID)

	rec = httptest.NewRecorder()
	h.MpuPartURLs(rec, fsJSONRequest(t, http.MethodPost, "/api/fs/mpu/part-urls", map[string]any{
		"path": init.Path, "uploadId": init.UploadID, "partNumbers": []int32{2, 3},
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.MpuComplete(rec, fsJSONRequest(t, http.MethodPost, "/api/fs/mpu/complete", map[string]any{
		"path":     init.Path,
		"uploadId": init.UploadID,
		"parts":    []vfs.CompletedPart{{PartNumber: 1, ETag: "p1"}},
	}))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, driver.calls, "mpcomplete:/big.bin")
}

func TestFSMpuAbort_MissingSession(t *testing.T) {
	h, _ := newTestFSHandler()
	rec := httptest.NewRecorder()

	h.MpuAbort(rec, fsJSONRequest(t, http.MethodPost, "/api/fs/mpu/abort", map[string]string{"path": "/docs/x"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
