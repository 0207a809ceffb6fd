package storage

import (
	"context"
	"io"
	"path"

	gcs "cloud.google.com/go/storage"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
	"github.com/YuminosukeSato/petalnet/pkg/log"
)

// GCS is a Google Cloud Storage-based blob store. Objects live under prefix.
type GCS struct {
	bucketName string
	prefix     string
	bucket     *gcs.BucketHandle
	log        log.Logger
}

var _ Storage = (*GCS)(nil)

// NewGCS connects with application default credentials.
func NewGCS(ctx context.Context, bucketName, prefix string) (*GCS, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, errors.NewIOError("connect", gcsScheme+bucketName, err)
	}
	return NewGCSWithClient(client, bucketName, prefix), nil
}

// NewGCSWithClient uses an existing client.
func NewGCSWithClient(client *gcs.Client, bucketName, prefix string) *GCS {
	return &GCS{
		bucketName: bucketName,
		prefix:     prefix,
		bucket:     client.Bucket(bucketName),
		log:        log.GetLoggerWithName("storage"),
	}
}

func (s *GCS) object(name string) string {
	return path.Join(s.prefix, name)
}

func (s *GCS) Location(name string) string {
	return gcsScheme + s.bucketName + "/" + s.object(name)
}

// WriteFile returns an object writer; GCS only commits the object on Close.
func (s *GCS) WriteFile(ctx context.Context, name string) (io.WriteCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	s.log.Debug("Writing object", log.PathKey, s.Location(name))
	ctx, cancel := context.WithCancel(ctx)
	w := s.bucket.Object(s.object(name)).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	return &gcsWriter{Writer: w, cancel: cancel}, nil
}

func (s *GCS) ReadFile(ctx context.Context, name string) (*File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	r, err := s.bucket.Object(s.object(name)).NewReader(ctx)
	if err != nil {
		return nil, errors.NewIOError("open", s.Location(name), err)
	}
	return &File{
		Reader:     r,
		ModifiedAt: r.Attrs.LastModified,
		Size:       r.Attrs.Size,
	}, nil
}

func (s *GCS) DeleteFile(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := s.bucket.Object(s.object(name)).Delete(ctx); err != nil {
		return errors.NewIOError("delete", s.Location(name), err)
	}
	return nil
}

type gcsWriter struct {
	*gcs.Writer
	cancel context.CancelFunc
}

func (w *gcsWriter) Close() error {
	defer w.cancel()
	return w.Writer.Close()
}

// Abort cancels the upload so no object is created.
func (w *gcsWriter) Abort() {
	w.cancel()
	w.Writer.Close()
}
