package storage

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
)

// LocalHandler serves paths below a root directory of the local file system.
// An empty root resolves paths against the working directory.
type LocalHandler struct {
	root string
}

func NewLocalHandler(root string) *LocalHandler {
	return &LocalHandler{root: root}
}

func (h *LocalHandler) resolve(path string) string {
	path = filepath.FromSlash(path)
	if h.root == "" {
		return path
	}
	return filepath.Join(h.root, path)
}

type localFile struct {
	*os.File
}

func (f *localFile) Size() (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (h *LocalHandler) OpenFile(ctx context.Context, path string) (OpenResult, error) {

	name := h.resolve(path)

	fi, err := os.Stat(name)
	if err != nil {
		return OpenResult{}, err
	}

	if fi.IsDir() {
		return OpenResult{Kind: IsDirectory}, nil
	}

	f, err := os.Open(name)
	if err != nil {
		return OpenResult{}, err
	}

	return OpenResult{Kind: RegularFile, File: &localFile{f}}, nil
}

func (h *LocalHandler) CreateFile(ctx context.Context, path string) (File, error) {

	name := h.resolve(path)

	err := os.MkdirAll(filepath.Dir(name), 0777)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}

	return &localFile{f}, nil
}

func (h *LocalHandler) OpenReader(ctx context.Context, path string) (io.ReadCloser, error) {
	return os.Open(h.resolve(path))
}

func (h *LocalHandler) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return ioutil.ReadFile(h.resolve(path))
}

func (h *LocalHandler) WriteFile(ctx context.Context, path string, data []byte) error {

	name := h.resolve(path)

	err := os.MkdirAll(filepath.Dir(name), 0777)
	if err != nil {
		return err
	}

	return ioutil.WriteFile(name, data, 0644)
}

func (h *LocalHandler) MkdirAll(ctx context.Context, path string) error {
	return os.MkdirAll(h.resolve(path), 0777)
}

func (h *LocalHandler) Close() error {
	return nil
}
