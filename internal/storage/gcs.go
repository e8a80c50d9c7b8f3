package storage

import (
	"bytes"
	"context"
	"errors"
	"io"

	gcs "cloud.google.com/go/storage"
)

// maxObjectBytes bounds how much of one object GCSStore.Open buffers.
const maxObjectBytes = 64 << 20

type GCSStore struct {
	client *gcs.Client
	bucket string
}

func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("GCS_BUCKET is not set")
	}
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSStore{client: c, bucket: bucket}, nil
}

func (s *GCSStore) Close() error { return s.client.Close() }

// Put uploads the artifact privately; playback goes through the
// authenticated artifact endpoints, not public URLs.
func (s *GCSStore) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return key, nil
}

// Open buffers the object so the caller gets a seekable reader.
func (s *GCSStore) Open(ctx context.Context, key string) (*Object, error) {
	obj := s.client.Bucket(s.bucket).Object(key)
	attrs, err := obj.Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if attrs.Size > maxObjectBytes {
		return nil, errors.New("storage: object too large to serve")
	}

	rc, err := obj.NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	ct := attrs.ContentType
	if ct == "" {
		ct = ContentTypeFor(key)
	}
	return &Object{
		Reader:      bytes.NewReader(data),
		Size:        int64(len(data)),
		ModTime:     attrs.Updated,
		ContentType: ct,
	}, nil
}
