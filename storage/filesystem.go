package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
	"github.com/YuminosukeSato/petalnet/pkg/log"
)

// FS is a filesystem-based blob store rooted at a directory.
type FS struct {
	Root string
	log  log.Logger
}

var _ Storage = (*FS)(nil)

// NewFS returns a store rooted at root. The directory is created on first write.
func NewFS(root string) (*FS, error) {
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.NewIOError("resolve", root, err)
	}
	return &FS{
		Root: absRoot,
		log:  log.GetLoggerWithName("storage"),
	}, nil
}

func (fs *FS) path(name string) string {
	return filepath.Join(fs.Root, filepath.FromSlash(name))
}

func (fs *FS) Location(name string) string {
	return fs.path(name)
}

// WriteFile writes to a temporary file next to the target and renames it into place on Close.
func (fs *FS) WriteFile(_ context.Context, name string) (io.WriteCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	fullPath := fs.path(name)
	fs.log.Debug("Writing file", log.PathKey, fullPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, errors.NewIOError("mkdir", filepath.Dir(fullPath), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), "."+filepath.Base(fullPath)+".tmp-*")
	if err != nil {
		return nil, errors.NewIOError("create", fullPath, err)
	}
	return &atomicFile{File: tmp, target: fullPath}, nil
}

func (fs *FS) ReadFile(_ context.Context, name string) (*File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	fullPath := fs.path(name)
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, errors.NewIOError("open", fullPath, err)
	}
	st, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.NewIOError("stat", fullPath, err)
	}
	if st.IsDir() {
		file.Close()
		return nil, errors.NewIOError("open", fullPath, errors.New("is a directory"))
	}
	return &File{
		Reader:     file,
		ModifiedAt: st.ModTime(),
		Size:       st.Size(),
	}, nil
}

func (fs *FS) DeleteFile(_ context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	fullPath := fs.path(name)
	fs.log.Debug("Deleting file", log.PathKey, fullPath)
	if err := os.Remove(fullPath); err != nil {
		return errors.NewIOError("remove", fullPath, err)
	}
	return nil
}

type atomicFile struct {
	*os.File
	target string
	done   bool
}

func (f *atomicFile) Close() error {
	if f.done {
		return nil
	}
	f.done = true
	if err := f.File.Sync(); err != nil {
		f.discard()
		return err
	}
	if err := f.File.Close(); err != nil {
		os.Remove(f.File.Name())
		return err
	}
	if err := os.Rename(f.File.Name(), f.target); err != nil {
		os.Remove(f.File.Name())
		return err
	}
	return nil
}

// Abort drops the partial write.
func (f *atomicFile) Abort() {
	if f.done {
		return
	}
	f.done = true
	f.discard()
}

func (f *atomicFile) discard() {
	f.File.Close()
	os.Remove(f.File.Name())
}
