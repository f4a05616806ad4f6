package storage

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"context"
	"io"
	"io/ioutil"
	"path"

	gcs "cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSHandler serves paths as objects below a Google Cloud Storage bucket
// prefix.
type GCSHandler struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	name   string
	prefix string
}

func newGCSHandler(ctx context.Context, bucket, prefix string, cfg *Config) (*GCSHandler, error) {

	var opts []option.ClientOption
	if cfg.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating storage client")
	}

	return &GCSHandler{
		client: client,
		bucket: client.Bucket(bucket),
		name:   bucket,
		prefix: prefix,
	}, nil
}

func (h *GCSHandler) key(p string) string {
	return path.Join(h.prefix, p)
}

type gcsFile struct {
	obj  *gcs.ObjectHandle
	size int64
}

func (f *gcsFile) ReadAt(p []byte, off int64) (int, error) {

	if off >= f.size {
		return 0, io.EOF
	}

	r, err := f.obj.NewRangeReader(context.Background(), off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	defer r.Close()

	n, err := io.ReadFull(r, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}

	return n, err
}

func (f *gcsFile) WriteAt(p []byte, off int64) (int, error) {
	return 0, errReadOnly
}

func (f *gcsFile) Size() (int64, error) {
	return f.size, nil
}

func (f *gcsFile) Close() error {
	return nil
}

func (h *GCSHandler) OpenFile(ctx context.Context, p string) (OpenResult, error) {

	key := h.key(p)
	obj := h.bucket.Object(key)

	attrs, err := obj.Attrs(ctx)
	if err == nil {
		return OpenResult{Kind: RegularFile, File: &gcsFile{obj: obj, size: attrs.Size}}, nil
	}
	if err != gcs.ErrObjectNotExist {
		return OpenResult{}, errors.Wrapf(err, "opening gs://%s/%s", h.name, key)
	}

	it := h.bucket.Objects(ctx, &gcs.Query{Prefix: key + "/"})
	_, err = it.Next()
	if err == iterator.Done {
		return OpenResult{}, notExist(p)
	}
	if err != nil {
		return OpenResult{}, errors.Wrapf(err, "listing gs://%s/%s/", h.name, key)
	}

	return OpenResult{Kind: IsDirectory}, nil
}

func (h *GCSHandler) CreateFile(ctx context.Context, p string) (File, error) {
	return newMemFile(func(data []byte) error {
		return h.WriteFile(ctx, p, data)
	}), nil
}

func (h *GCSHandler) OpenReader(ctx context.Context, p string) (io.ReadCloser, error) {
	r, err := h.bucket.Object(h.key(p)).NewReader(ctx)
	if err == gcs.ErrObjectNotExist {
		return nil, notExist(p)
	}
	return r, err
}

func (h *GCSHandler) ReadFile(ctx context.Context, p string) ([]byte, error) {

	r, err := h.OpenReader(ctx, p)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return ioutil.ReadAll(r)
}

func (h *GCSHandler) WriteFile(ctx context.Context, p string, data []byte) error {

	w := h.bucket.Object(h.key(p)).NewWriter(ctx)

	_, err := w.Write(data)
	if err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "writing gs://%s/%s", h.name, h.key(p))
	}

	return w.Close()
}

func (h *GCSHandler) MkdirAll(ctx context.Context, p string) error {
	return nil
}

func (h *GCSHandler) Close() error {
	return h.client.Close()
}
