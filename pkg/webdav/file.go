package webdav

import (
	"context"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/pkg/vfs"
)

// readFile streams an object for GET/HEAD. The body is opened lazily on the
// first Read; seeks are virtual against the known size, and a seek backwards
// reopens the stream.
type readFile struct {
	ctx  context.Context
	fs   *davFS
	path string
	info os.FileInfo

	body      io.ReadCloser
	pos       int64
	streamPos int64
}

func (f *readFile) Read(p []byte) (int, error) {
	if f.body == nil || f.streamPos != f.pos {
		if err := f.reopen(); err != nil {
			return 0, err
		}
	}
	n, err := f.body.Read(p)
	f.pos += int64(n)
	f.streamPos += int64(n)
	return n, err
}

// reopen starts a fresh download and discards up to the virtual position.
func (f *readFile) reopen() error {
	if f.body != nil {
		f.body.Close()
		f.body = nil
	}
	res, err := f.fs.engine.Download(f.ctx, f.fs.principal, f.path, true)
	if err != nil {
		return mapError(f.path, err)
	}
	f.body = res.Body
	f.streamPos = 0
	if f.pos > 0 {
		if _, err := io.CopyN(io.Discard, f.body, f.pos); err != nil {
			f.body.Close()
			f.body = nil
			return err
		}
		f.streamPos = f.pos
	}
	return nil
}

func (f *readFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.pos = offset
	case io.SeekCurrent:
		f.pos += offset
	case io.SeekEnd:
		f.pos = f.info.Size() + offset
	default:
		return 0, fs.ErrInvalid
	}
	if f.pos < 0 {
		f.pos = 0
		return 0, fs.ErrInvalid
	}
	return f.pos, nil
}

func (f *readFile) Write([]byte) (int, error) {
	return 0, fs.ErrPermission
}

func (f *readFile) Readdir(int) ([]os.FileInfo, error) {
	return nil, fs.ErrInvalid
}

func (f *readFile) Stat() (os.FileInfo, error) {
	return f.info, nil
}

func (f *readFile) Close() error {
	if f.body != nil {
		err := f.body.Close()
		f.body = nil
		return err
	}
	return nil
}

// dirHandle serves PROPFIND listings for a collection.
type dirHandle struct {
	ctx  context.Context
	fs   *davFS
	path string
	info os.FileInfo

	entries []os.FileInfo
	listed  bool
	offset  int
}

func (d *dirHandle) Readdir(count int) ([]os.FileInfo, error) {
	if !d.listed {
		listing, err := d.fs.engine.ListDirectory(d.ctx, d.fs.principal, d.path+"/")
		if err != nil {
			return nil, mapError(d.path, err)
		}
		d.entries = make([]os.FileInfo, len(listing.Items))
		for i, entry := range listing.Items {
			d.entries[i] = fromEntry(entry)
		}
		d.listed = true
	}

	if count <= 0 {
		rest := d.entries[d.offset:]
		d.offset = len(d.entries)
		return rest, nil
	}
	if d.offset >= len(d.entries) {
		return nil, io.EOF
	}
	end := d.offset + count
	if end > len(d.entries) {
		end = len(d.entries)
	}
	chunk := d.entries[d.offset:end]
	d.offset = end
	return chunk, nil
}

func (d *dirHandle) Read([]byte) (int, error)       { return 0, fs.ErrInvalid }
func (d *dirHandle) Write([]byte) (int, error)      { return 0, fs.ErrPermission }
func (d *dirHandle) Seek(int64, int) (int64, error) { return 0, fs.ErrInvalid }
func (d *dirHandle) Stat() (os.FileInfo, error)     { return d.info, nil }
func (d *dirHandle) Close() error                   { return nil }

// writeFile spools a PUT body to a temp file and uploads it on Close, so the
// object store sees the full size up front.
type writeFile struct {
	ctx  context.Context
	fs   *davFS
	path string

	tmp  *os.File
	size int64
}

func newWriteFile(ctx context.Context, d *davFS, p string) (*writeFile, error) {
	tmp, err := os.CreateTemp("", "driftfs-dav-*")
	if err != nil {
		return nil, err
	}
	return &writeFile{ctx: ctx, fs: d, path: p, tmp: tmp}, nil
}

func (f *writeFile) Write(p []byte) (int, error) {
	n, err := f.tmp.Write(p)
	f.size += int64(n)
	return n, err
}

func (f *writeFile) Read(p []byte) (int, error) {
	return f.tmp.Read(p)
}

func (f *writeFile) Seek(offset int64, whence int) (int64, error) {
	return f.tmp.Seek(offset, whence)
}

func (f *writeFile) Readdir(int) ([]os.FileInfo, error) {
	return nil, fs.ErrInvalid
}

func (f *writeFile) Stat() (os.FileInfo, error) {
	return &entryInfo{name: path.Base(f.path), size: f.size}, nil
}

// Close uploads the spooled body and removes the temp file.
func (f *writeFile) Close() error {
	defer func() {
		name := f.tmp.Name()
		f.tmp.Close()
		if err := os.Remove(name); err != nil {
			logger.Debug("failed to remove spool file", "path", name, "error", err)
		}
	}()

	if _, err := f.tmp.Seek(0, io.SeekStart); err != nil {
		return err
	}

	contentType := mime.TypeByExtension(path.Ext(f.path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := f.fs.engine.Upload(f.ctx, f.fs.principal, path.Dir(f.path)+"/", vfs.UploadInput{
		FileName:    path.Base(f.path),
		Body:        f.tmp,
		Size:        f.size,
		ContentType: contentType,
	})
	return mapError(f.path, err)
}
