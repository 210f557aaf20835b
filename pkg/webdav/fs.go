package webdav

import (
	"context"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/net/webdav"

	"github.com/driftfs/driftfs/pkg/vfs"
)

// Engine is the slice of the filesystem facade the WebDAV adapter consumes.
type Engine interface {
	ListDirectory(ctx context.Context, principal vfs.Principal, path string) (*vfs.DirectoryListing, error)
	GetFileInfo(ctx context.Context, principal vfs.Principal, path string) (*vfs.FileInfo, error)
	Download(ctx context.Context, principal vfs.Principal, path string, inline bool) (*vfs.DownloadResult, error)
	Upload(ctx context.Context, principal vfs.Principal, dirPath string, input vfs.UploadInput) (*vfs.UploadResult, error)
	CreateDirectory(ctx context.Context, principal vfs.Principal, path string) error
	Remove(ctx context.Context, principal vfs.Principal, path string) error
	Rename(ctx context.Context, principal vfs.Principal, oldPath, newPath string) error
}

// davFS adapts the engine to webdav.FileSystem for one authenticated
// principal. A fresh instance is bound per request.
type davFS struct {
	engine    Engine
	principal vfs.Principal
}

// Mkdir implements webdav.FileSystem.
func (d *davFS) Mkdir(ctx context.Context, name string, _ os.FileMode) error {
	return mapError(name, d.engine.CreateDirectory(ctx, d.principal, cleanPath(name)+"/"))
}

// RemoveAll implements webdav.FileSystem.
func (d *davFS) RemoveAll(ctx context.Context, name string) error {
	p, err := d.pathFor(ctx, name)
	if err != nil {
		return err
	}
	return mapError(name, d.engine.Remove(ctx, d.principal, p))
}

// Rename implements webdav.FileSystem. The engine rejects cross-mount moves.
func (d *davFS) Rename(ctx context.Context, oldName, newName string) error {
	p, err := d.pathFor(ctx, oldName)
	if err != nil {
		return err
	}
	newPath := cleanPath(newName)
	if strings.HasSuffix(p, "/") {
		newPath += "/"
	}
	return mapError(oldName, d.engine.Rename(ctx, d.principal, p, newPath))
}

// Stat implements webdav.FileSystem.
func (d *davFS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	p := cleanPath(name)
	if p == "/" {
		return dirInfo("/", time.Time{}), nil
	}
	info, err := d.engine.GetFileInfo(ctx, d.principal, p)
	if err != nil {
		return nil, mapError(name, err)
	}
	return fromFileInfo(info), nil
}

// OpenFile implements webdav.FileSystem. Writes spool to a temp file and
// upload on Close; reads stream the object lazily.
func (d *davFS) OpenFile(ctx context.Context, name string, flag int, _ os.FileMode) (webdav.File, error) {
	p := cleanPath(name)

	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE) != 0 {
		return newWriteFile(ctx, d, p)
	}

	fi, err := d.Stat(ctx, name)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return &dirHandle{ctx: ctx, fs: d, path: p, info: fi}, nil
	}
	return &readFile{ctx: ctx, fs: d, path: p, info: fi}, nil
}

// pathFor returns the engine path for a DAV name, with a trailing slash when
// the target is a directory.
func (d *davFS) pathFor(ctx context.Context, name string) (string, error) {
	p := cleanPath(name)
	info, err := d.engine.GetFileInfo(ctx, d.principal, p)
	if err != nil {
		return "", mapError(name, err)
	}
	if info.IsDirectory {
		return p + "/", nil
	}
	return p, nil
}

// cleanPath normalizes a DAV resource name to an absolute slash path without
// a trailing slash (except the root).
func cleanPath(name string) string {
	p := path.Clean("/" + name)
	return p
}

// mapError translates engine errors to the os sentinel errors the webdav
// package maps onto HTTP statuses.
func mapError(name string, err error) error {
	if err == nil {
		return nil
	}
	switch vfs.CodeOf(err) {
	case vfs.ErrNotFound:
		return &os.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	case vfs.ErrConflict:
		return &os.PathError{Op: "open", Path: name, Err: fs.ErrExist}
	case vfs.ErrForbidden, vfs.ErrUnauthenticated:
		return &os.PathError{Op: "open", Path: name, Err: fs.ErrPermission}
	default:
		return err
	}
}

// entryInfo implements os.FileInfo over engine metadata.
type entryInfo struct {
	name    string
	size    int64
	modTime time.Time
	isDir   bool
}

func (e *entryInfo) Name() string       { return e.name }
func (e *entryInfo) Size() int64        { return e.size }
func (e *entryInfo) ModTime() time.Time { return e.modTime }
func (e *entryInfo) IsDir() bool        { return e.isDir }
func (e *entryInfo) Sys() any           { return nil }

func (e *entryInfo) Mode() os.FileMode {
	if e.isDir {
		return os.ModeDir | 0o755
	}
	return 0o644
}

func dirInfo(name string, modTime time.Time) os.FileInfo {
	base := path.Base(name)
	if base == "" {
		base = "/"
	}
	return &entryInfo{name: base, modTime: modTime, isDir: true}
}

func fromFileInfo(info *vfs.FileInfo) os.FileInfo {
	name := info.Name
	if name == "" {
		name = path.Base(info.Path)
	}
	return &entryInfo{
		name:    name,
		size:    info.Size,
		modTime: info.Modified,
		isDir:   info.IsDirectory,
	}
}

func fromEntry(entry vfs.Entry) os.FileInfo {
	return &entryInfo{
		name:    entry.Name,
		size:    entry.Size,
		modTime: entry.Modified,
		isDir:   entry.IsDirectory,
	}
}
