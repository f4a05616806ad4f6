package storage

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
)

// S3Handler serves paths as objects below a bucket prefix. Directories are
// key prefixes.
type S3Handler struct {
	client s3iface.S3API
	bucket string
	prefix string
}

func NewS3Handler(client s3iface.S3API, bucket, prefix string) *S3Handler {
	return &S3Handler{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// NewS3Client builds an S3 client from cfg, falling back to the shared AWS
// configuration for anything left empty.
func NewS3Client(cfg *Config) (s3iface.S3API, error) {

	awsCfg := aws.NewConfig()
	if cfg.S3Region != "" {
		awsCfg = awsCfg.WithRegion(cfg.S3Region)
	}
	if cfg.S3Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.S3Endpoint)
	}
	if cfg.S3ForcePathStyle {
		awsCfg = awsCfg.WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *awsCfg,
		Profile:           cfg.S3Profile,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating aws session")
	}

	return s3.New(sess), nil
}

func newS3HandlerFromConfig(bucket, prefix string, cfg *Config) (*S3Handler, error) {
	client, err := NewS3Client(cfg)
	if err != nil {
		return nil, err
	}
	return NewS3Handler(client, bucket, prefix), nil
}

func (h *S3Handler) key(p string) string {
	return path.Join(h.prefix, p)
}

func isS3NotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

type s3File struct {
	h    *S3Handler
	key  string
	size int64
}

func (f *s3File) ReadAt(p []byte, off int64) (int, error) {

	if len(p) == 0 {
		return 0, nil
	}
	if off >= f.size {
		return 0, io.EOF
	}

	end := off + int64(len(p)) - 1
	if end >= f.size {
		end = f.size - 1
	}

	out, err := f.h.client.GetObjectWithContext(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(f.h.bucket),
		Key:    aws.String(f.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end)),
	})
	if err != nil {
		return 0, errors.Wrapf(err, "reading s3://%s/%s", f.h.bucket, f.key)
	}
	defer out.Body.Close()

	n, err := io.ReadFull(out.Body, p[:end-off+1])
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

func (f *s3File) WriteAt(p []byte, off int64) (int, error) {
	return 0, errReadOnly
}

func (f *s3File) Size() (int64, error) {
	return f.size, nil
}

func (f *s3File) Close() error {
	return nil
}

func (h *S3Handler) OpenFile(ctx context.Context, p string) (OpenResult, error) {

	key := h.key(p)

	head, err := h.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return OpenResult{
			Kind: RegularFile,
			File: &s3File{h: h, key: key, size: aws.Int64Value(head.ContentLength)},
		}, nil
	}

	if !isS3NotFound(err) {
		return OpenResult{}, errors.Wrapf(err, "opening s3://%s/%s", h.bucket, key)
	}

	list, err := h.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(h.bucket),
		Prefix:  aws.String(key + "/"),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return OpenResult{}, errors.Wrapf(err, "listing s3://%s/%s/", h.bucket, key)
	}

	if len(list.Contents) > 0 {
		return OpenResult{Kind: IsDirectory}, nil
	}

	return OpenResult{}, notExist(p)
}

func (h *S3Handler) CreateFile(ctx context.Context, p string) (File, error) {
	return newMemFile(func(data []byte) error {
		return h.WriteFile(ctx, p, data)
	}), nil
}

func (h *S3Handler) OpenReader(ctx context.Context, p string) (io.ReadCloser, error) {

	out, err := h.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.key(p)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, notExist(p)
		}
		return nil, errors.Wrapf(err, "reading s3://%s/%s", h.bucket, h.key(p))
	}

	return out.Body, nil
}

func (h *S3Handler) ReadFile(ctx context.Context, p string) ([]byte, error) {

	r, err := h.OpenReader(ctx, p)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return ioutil.ReadAll(r)
}

func (h *S3Handler) WriteFile(ctx context.Context, p string, data []byte) error {

	_, err := h.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.key(p)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return errors.Wrapf(err, "writing s3://%s/%s", h.bucket, h.key(p))
	}

	return nil
}

// MkdirAll is a no-op, prefixes exist as soon as an object is stored below
// them.
func (h *S3Handler) MkdirAll(ctx context.Context, p string) error {
	return nil
}

func (h *S3Handler) Close() error {
	return nil
}
