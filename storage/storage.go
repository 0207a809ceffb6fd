// Package storage is a small blob store abstraction for checkpoints: a local
// filesystem backend and a Google Cloud Storage backend.
package storage

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// Storage is an abstraction of a blob store (eg GCS)
type Storage interface {
	// When finished, you must close the WriteCloser. Content becomes visible
	// to readers only after a successful Close.
	WriteFile(ctx context.Context, name string) (io.WriteCloser, error)

	// When finished, you must close File.Reader
	ReadFile(ctx context.Context, name string) (*File, error)

	DeleteFile(ctx context.Context, name string) error

	// Location renders name as a user-facing path or URL.
	Location(name string) string
}

// File is an element in blob storage.
type File struct {
	Reader     io.ReadCloser
	ModifiedAt time.Time
	Size       int64
}

const gcsScheme = "gs://"

// Open selects a backend from root: "gs://bucket/prefix" uses GCS, anything
// else is a local directory.
func Open(ctx context.Context, root string) (Storage, error) {
	if strings.HasPrefix(root, gcsScheme) {
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(root, gcsScheme), "/")
		if bucket == "" {
			return nil, errors.NewConfigError("root", "gs:// location needs a bucket name", root)
		}
		return NewGCS(ctx, bucket, prefix)
	}
	return NewFS(root)
}

// WriteFile stores content under name.
func WriteFile(ctx context.Context, s Storage, name string, content io.Reader) error {
	f, err := s.WriteFile(ctx, name)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, content)
	if err != nil {
		if a, ok := f.(interface{ Abort() }); ok {
			a.Abort()
		} else {
			f.Close()
		}
		return errors.NewIOError("write", s.Location(name), err)
	}
	if err := f.Close(); err != nil {
		return errors.NewIOError("write", s.Location(name), err)
	}
	return nil
}

// ReadFile reads the whole object.
func ReadFile(ctx context.Context, s Storage, name string) ([]byte, error) {
	f, err := s.ReadFile(ctx, name)
	if err != nil {
		return nil, err
	}
	defer f.Reader.Close()
	b, err := io.ReadAll(f.Reader)
	if err != nil {
		return nil, errors.NewIOError("read", s.Location(name), err)
	}
	return b, nil
}

func validName(name string) error {
	if name == "" || strings.Contains(name, "..") {
		return errors.NewConfigError("name", "invalid file name", name)
	}
	return nil
}
