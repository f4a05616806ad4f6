package storage

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"path"

	"github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/pkg/errors"
)

// AzureHandler serves paths as block blobs below a container prefix.
type AzureHandler struct {
	container azblob.ContainerURL
	name      string
	prefix    string
}

func newAzureHandler(container, prefix string, cfg *Config) (*AzureHandler, error) {

	if cfg.AzureAccountName == "" || cfg.AzureAccountKey == "" {
		return nil, errors.New("azure storage needs an account name and key")
	}

	creds, err := azblob.NewSharedKeyCredential(cfg.AzureAccountName, cfg.AzureAccountKey)
	if err != nil {
		return nil, err
	}
	pi := azblob.NewPipeline(creds, azblob.PipelineOptions{})

	u, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s",
		cfg.AzureAccountName, container))
	if err != nil {
		return nil, err
	}

	return &AzureHandler{
		container: azblob.NewContainerURL(*u, pi),
		name:      container,
		prefix:    prefix,
	}, nil
}

func (h *AzureHandler) key(p string) string {
	return path.Join(h.prefix, p)
}

func isAzureNotFound(err error) bool {
	serr, ok := err.(azblob.StorageError)
	if !ok {
		return false
	}
	if serr.ServiceCode() == azblob.ServiceCodeBlobNotFound {
		return true
	}
	return serr.Response() != nil && serr.Response().StatusCode == http.StatusNotFound
}

type azureFile struct {
	blob azblob.BlobURL
	size int64
}

func (f *azureFile) ReadAt(p []byte, off int64) (int, error) {

	if len(p) == 0 {
		return 0, nil
	}
	if off >= f.size {
		return 0, io.EOF
	}

	count := int64(len(p))
	if off+count > f.size {
		count = f.size - off
	}

	resp, err := f.blob.Download(context.Background(), off, count, azblob.BlobAccessConditions{}, false)
	if err != nil {
		return 0, err
	}
	body := resp.Body(azblob.RetryReaderOptions{MaxRetryRequests: 3})
	defer body.Close()

	n, err := io.ReadFull(body, p[:count])
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

func (f *azureFile) WriteAt(p []byte, off int64) (int, error) {
	return 0, errReadOnly
}

func (f *azureFile) Size() (int64, error) {
	return f.size, nil
}

func (f *azureFile) Close() error {
	return nil
}

func (h *AzureHandler) OpenFile(ctx context.Context, p string) (OpenResult, error) {

	key := h.key(p)
	blob := h.container.NewBlobURL(key)

	props, err := blob.GetProperties(ctx, azblob.BlobAccessConditions{})
	if err == nil {
		return OpenResult{Kind: RegularFile, File: &azureFile{blob: blob, size: props.ContentLength()}}, nil
	}
	if !isAzureNotFound(err) {
		return OpenResult{}, errors.Wrapf(err, "opening az://%s/%s", h.name, key)
	}

	list, err := h.container.ListBlobsFlatSegment(ctx, azblob.Marker{}, azblob.ListBlobsSegmentOptions{
		Prefix:     key + "/",
		MaxResults: 1,
	})
	if err != nil {
		return OpenResult{}, errors.Wrapf(err, "listing az://%s/%s/", h.name, key)
	}

	if len(list.Segment.BlobItems) > 0 {
		return OpenResult{Kind: IsDirectory}, nil
	}

	return OpenResult{}, notExist(p)
}

func (h *AzureHandler) CreateFile(ctx context.Context, p string) (File, error) {
	return newMemFile(func(data []byte) error {
		return h.WriteFile(ctx, p, data)
	}), nil
}

func (h *AzureHandler) OpenReader(ctx context.Context, p string) (io.ReadCloser, error) {

	resp, err := h.container.NewBlobURL(h.key(p)).Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, notExist(p)
		}
		return nil, errors.Wrapf(err, "reading az://%s/%s", h.name, h.key(p))
	}

	return resp.Body(azblob.RetryReaderOptions{MaxRetryRequests: 3}), nil
}

func (h *AzureHandler) ReadFile(ctx context.Context, p string) ([]byte, error) {

	r, err := h.OpenReader(ctx, p)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return ioutil.ReadAll(r)
}

func (h *AzureHandler) WriteFile(ctx context.Context, p string, data []byte) error {

	blob := h.container.NewBlockBlobURL(h.key(p))

	_, err := azblob.UploadBufferToBlockBlob(ctx, data, blob, azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024,
		Parallelism: 16,
	})
	if err != nil {
		return errors.Wrapf(err, "writing az://%s/%s", h.name, h.key(p))
	}

	return nil
}

func (h *AzureHandler) MkdirAll(ctx context.Context, p string) error {
	return nil
}

func (h *AzureHandler) Close() error {
	return nil
}
