package webdav

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/driftfs/driftfs/pkg/api/auth"
	"github.com/driftfs/driftfs/pkg/controlplane/models"
	"github.com/driftfs/driftfs/pkg/vfs"
)

// stubEngine is an in-memory Engine backed by plain maps.
type stubEngine struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
}

func newStubEngine() *stubEngine {
	return &stubEngine{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
	}
}

func trimDir(p string) string {
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

func (s *stubEngine) ListDirectory(_ context.Context, _ vfs.Principal, dirPath string) (*vfs.DirectoryListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := trimDir(dirPath)
	listing := &vfs.DirectoryListing{Path: dir}
	for p, content := range s.files {
		if path.Dir(p) == dir {
			listing.Items = append(listing.Items, vfs.Entry{
				Name:     path.Base(p),
				Path:     p,
				Size:     int64(len(content)),
				Modified: time.Now(),
			})
		}
	}
	for p := range s.dirs {
		if path.Dir(p) == dir {
			listing.Items = append(listing.Items, vfs.Entry{
				Name:        path.Base(p),
				Path:        p,
				IsDirectory: true,
			})
		}
	}
	return listing, nil
}

func (s *stubEngine) GetFileInfo(_ context.Context, _ vfs.Principal, p string) (*vfs.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p = trimDir(p)
	if content, ok := s.files[p]; ok {
		return &vfs.FileInfo{Path: p, Name: path.Base(p), Size: int64(len(content)), Modified: time.Now()}, nil
	}
	if s.dirs[p] || p == "/" {
		return &vfs.FileInfo{Path: p, Name: path.Base(p), IsDirectory: true}, nil
	}
	return nil, vfs.NewNotFoundError(p, "object")
}

func (s *stubEngine) Download(_ context.Context, _ vfs.Principal, p string, _ bool) (*vfs.DownloadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, ok := s.files[p]
	if !ok {
		return nil, vfs.NewNotFoundError(p, "object")
	}
	return &vfs.DownloadResult{
		Body:          io.NopCloser(bytes.NewReader(content)),
		ContentLength: int64(len(content)),
		ContentType:   "application/octet-stream",
	}, nil
}

func (s *stubEngine) Upload(_ context.Context, _ vfs.Principal, dirPath string, input vfs.UploadInput) (*vfs.UploadResult, error) {
	content, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	target := path.Join(trimDir(dirPath), input.FileName)
	s.files[target] = content
	return &vfs.UploadResult{Path: target, Size: int64(len(content))}, nil
}

func (s *stubEngine) CreateDirectory(_ context.Context, _ vfs.Principal, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[trimDir(p)] = true
	return nil
}

func (s *stubEngine) Remove(_ context.Context, _ vfs.Principal, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p = trimDir(p)
	if _, ok := s.files[p]; ok {
		delete(s.files, p)
		return nil
	}
	if s.dirs[p] {
		delete(s.dirs, p)
		return nil
	}
	return vfs.NewNotFoundError(p, "object")
}

func (s *stubEngine) Rename(_ context.Context, _ vfs.Principal, oldPath, newPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldPath, newPath = trimDir(oldPath), trimDir(newPath)
	if content, ok := s.files[oldPath]; ok {
		delete(s.files, oldPath)
		s.files[newPath] = content
		return nil
	}
	if s.dirs[oldPath] {
		delete(s.dirs, oldPath)
		s.dirs[newPath] = true
		return nil
	}
	return vfs.NewNotFoundError(oldPath, "object")
}

// fakeKeys resolves a single read-only API key.
type fakeKeys struct {
	key *models.APIKey
}

func (f *fakeKeys) GetAPIKeyByPrefix(_ context.Context, prefix string) (*models.APIKey, error) {
	if f.key != nil && f.key.KeyPrefix == prefix {
		return f.key, nil
	}
	return nil, models.ErrAPIKeyNotFound
}

func (f *fakeKeys) TouchAPIKey(context.Context, string) error { return nil }

func testAdmin(t *testing.T) auth.AdminCredentials {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("swordfish"), bcrypt.MinCost)
	require.NoError(t, err)
	return auth.AdminCredentials{Username: "root", PasswordHash: string(hash)}
}

func newTestHandler(t *testing.T, engine Engine, keys *fakeKeys) *Handler {
	t.Helper()
	if keys == nil {
		keys = &fakeKeys{}
	}
	return NewHandler(Config{}, engine, testAdmin(t), keys)
}

func davRequest(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.SetBasicAuth("root", "swordfish")
	return req
}

func TestOptionsWithoutAuth(t *testing.T) {
	h := newTestHandler(t, newStubEngine(), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/dav/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1,2", rec.Header().Get("DAV"))
	assert.Equal(t, "DAV", rec.Header().Get("MS-Author-Via"))
	assert.Equal(t, "1", rec.Header().Get("X-MSDAVEXT"))
	assert.Contains(t, rec.Header().Get("Allow"), "PROPFIND")
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	h := newTestHandler(t, newStubEngine(), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/dav/file.txt", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
}

func TestGetDownloadsFile(t *testing.T) {
	engine := newStubEngine()
	engine.files["/docs/hello.txt"] = []byte("hello webdav")
	h := newTestHandler(t, engine, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, davRequest("GET", "/dav/docs/hello.txt", ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello webdav", rec.Body.String())
}

func TestGetMissingFileReturns404(t *testing.T) {
	h := newTestHandler(t, newStubEngine(), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, davRequest("GET", "/dav/nope.txt", ""))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutUploadsFile(t *testing.T) {
	engine := newStubEngine()
	engine.dirs["/docs"] = true
	h := newTestHandler(t, engine, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, davRequest("PUT", "/dav/docs/new.txt", "fresh content"))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []byte("fresh content"), engine.files["/docs/new.txt"])
}

func TestMkcolCreatesDirectory(t *testing.T) {
	engine := newStubEngine()
	h := newTestHandler(t, engine, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, davRequest("MKCOL", "/dav/photos", ""))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, engine.dirs["/photos"])
}

func TestDeleteRemovesFile(t *testing.T) {
	engine := newStubEngine()
	engine.files["/docs/old.txt"] = []byte("x")
	h := newTestHandler(t, engine, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, davRequest("DELETE", "/dav/docs/old.txt", ""))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, engine.files, "/docs/old.txt")
}

func TestMoveRenamesFile(t *testing.T) {
	engine := newStubEngine()
	engine.files["/docs/a.txt"] = []byte("content")
	h := newTestHandler(t, engine, nil)

	req := davRequest("MOVE", "/dav/docs/a.txt", "")
	req.Header.Set("Destination", "/dav/docs/b.txt")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, engine.files, "/docs/a.txt")
	assert.Equal(t, []byte("content"), engine.files["/docs/b.txt"])
}

func TestPropfindListsDirectory(t *testing.T) {
	engine := newStubEngine()
	engine.dirs["/docs"] = true
	engine.files["/docs/report.pdf"] = []byte("pdf bytes")
	h := newTestHandler(t, engine, nil)

	req := davRequest("PROPFIND", "/dav/docs", "")
	req.Header.Set("Depth", "1")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Contains(t, rec.Body.String(), "report.pdf")
}

func TestReadOnlyKeyCannotWrite(t *testing.T) {
	engine := newStubEngine()
	engine.files["/docs/a.txt"] = []byte("content")

	key := &models.APIKey{
		ID:        "key-1",
		KeyPrefix: "dfk_test1234",
		BasePath:  "/",
		IsEnabled: true,
	}
	require.NoError(t, key.SetSecret("s3cret"))
	require.NoError(t, key.SetMountIDs([]string{"m1"}))
	require.NoError(t, key.SetPermissionList([]string{models.APIKeyPermRead}))

	h := newTestHandler(t, engine, &fakeKeys{key: key})

	get := httptest.NewRequest("GET", "/dav/docs/a.txt", nil)
	get.SetBasicAuth("dfk_test1234", "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, get)
	assert.Equal(t, http.StatusOK, rec.Code)

	put := httptest.NewRequest("PUT", "/dav/docs/a.txt", strings.NewReader("overwrite"))
	put.SetBasicAuth("dfk_test1234", "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, put)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
