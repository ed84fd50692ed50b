package encfsgo

import (
	"io"
	"os"
	"path/filepath"

	"github.com/absfs/absfs"
)

// FileProvider is the spec's C7 capability interface (SPEC_FULL.md §6): the
// minimal surface the volume facade needs from whatever is storing the
// ciphertext. It is deliberately smaller than absfs.FileSystem so the core
// never has to know about permissions, ownership, or working directories.
type FileProvider interface {
	GetRootPath() string
	Exists(path string) (bool, error)
	IsDirectory(path string) (bool, error)
	ListFiles(path string) ([]os.FileInfo, error)
	OpenInputStream(path string) (InputStream, error)
	// OpenOutputStream opens path for writing. length is the total on-disk
	// byte count the caller will write (SPEC_FULL.md §4.C6's
	// open_write(path, length?)), or -1 when the caller doesn't know it up
	// front. Providers that can benefit from knowing the size in advance
	// (e.g. preallocating) may use it as a hint; they must not rely on the
	// caller actually writing exactly that many bytes.
	OpenOutputStream(path string, length int64) (OutputStream, error)
	CreateDirectory(path string) error
	Rename(oldPath, newPath string) error
	Delete(path string) error
	GetFileInfo(path string) (os.FileInfo, error)
}

// InputStream is a readable, seekable, closeable ciphertext stream. Seeking
// support lets the content codec do random-access block reads.
type InputStream interface {
	io.Reader
	io.Seeker
	io.Closer
}

// OutputStream is a writable, closeable ciphertext stream.
type OutputStream interface {
	io.Writer
	io.Closer
}

// absFSProvider adapts any github.com/absfs/absfs.FileSystem (the local
// disk, github.com/absfs/memfs's in-memory filesystem, or any other
// implementation) into the FileProvider capability interface, grounded on
// the teacher's EncryptFS, which wraps the same interface directly
// (encryptfs.go).
type absFSProvider struct {
	fs   absfs.FileSystem
	root string
}

// NewAbsFSProvider builds a FileProvider backed by an absfs.FileSystem.
func NewAbsFSProvider(fs absfs.FileSystem, root string) FileProvider {
	return &absFSProvider{fs: fs, root: root}
}

func (p *absFSProvider) GetRootPath() string { return p.root }

func (p *absFSProvider) Exists(path string) (bool, error) {
	_, err := p.fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, wrapIOError("stat", path, err)
}

func (p *absFSProvider) IsDirectory(path string) (bool, error) {
	info, err := p.fs.Stat(path)
	if err != nil {
		return false, wrapIOError("stat", path, err)
	}
	return info.IsDir(), nil
}

func (p *absFSProvider) ListFiles(path string) ([]os.FileInfo, error) {
	dir, err := p.fs.Open(path)
	if err != nil {
		return nil, wrapIOError("open", path, err)
	}
	defer dir.Close()
	entries, err := dir.Readdir(-1)
	if err != nil {
		return nil, wrapIOError("readdir", path, err)
	}
	return entries, nil
}

func (p *absFSProvider) OpenInputStream(path string) (InputStream, error) {
	f, err := p.fs.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, wrapIOError("open", path, err)
	}
	return f, nil
}

func (p *absFSProvider) OpenOutputStream(path string, length int64) (OutputStream, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		_ = p.fs.MkdirAll(dir, 0o755)
	}
	f, err := p.fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, wrapIOError("open", path, err)
	}
	if length >= 0 {
		if t, ok := f.(interface{ Truncate(int64) error }); ok {
			_ = t.Truncate(length)
		}
	}
	return f, nil
}

func (p *absFSProvider) CreateDirectory(path string) error {
	if err := p.fs.MkdirAll(path, 0o755); err != nil {
		return wrapIOError("mkdir", path, err)
	}
	return nil
}

func (p *absFSProvider) Rename(oldPath, newPath string) error {
	dir := filepath.Dir(newPath)
	if dir != "." && dir != "/" {
		_ = p.fs.MkdirAll(dir, 0o755)
	}
	if err := p.fs.Rename(oldPath, newPath); err != nil {
		return wrapIOError("rename", oldPath, err)
	}
	return nil
}

func (p *absFSProvider) Delete(path string) error {
	if err := p.fs.Remove(path); err != nil {
		return wrapIOError("remove", path, err)
	}
	return nil
}

func (p *absFSProvider) GetFileInfo(path string) (os.FileInfo, error) {
	info, err := p.fs.Stat(path)
	if err != nil {
		return nil, wrapIOError("stat", path, err)
	}
	return info, nil
}
