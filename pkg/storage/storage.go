// Package storage provides the handlers VHD images are read from and written
// to, addressed by URL: file://, s3://, gs:// and az://.
package storage

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Kind is the outcome of opening a path as a file.
type Kind int

// Open outcomes.
const (
	RegularFile Kind = iota
	IsDirectory
)

func (k Kind) String() string {
	switch k {
	case RegularFile:
		return "regular file"
	case IsDirectory:
		return "directory"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// OpenResult is returned by Handler.OpenFile. File is nil when Kind is
// IsDirectory.
type OpenResult struct {
	Kind Kind
	File File
}

// File is a random access file.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Size() (int64, error)
}

// Handler gives access to the named paths of one storage location. Paths use
// forward slashes and are relative to the handler root.
type Handler interface {
	// OpenFile opens an existing path for reading. A path naming a directory
	// (or an object prefix) is reported through OpenResult.Kind.
	OpenFile(ctx context.Context, path string) (OpenResult, error)
	// CreateFile creates or truncates path for writing.
	CreateFile(ctx context.Context, path string) (File, error)
	OpenReader(ctx context.Context, path string) (io.ReadCloser, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	MkdirAll(ctx context.Context, path string) error
	Close() error
}

// Config holds backend settings.
type Config struct {
	S3Region         string
	S3Endpoint       string
	S3ForcePathStyle bool
	S3Profile        string

	GCSCredentialsFile string

	AzureAccountName string
	AzureAccountKey  string
}

// IsNotExist reports whether err means a path does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

func notExist(path string) error {
	return &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
}

// NewHandler returns the handler for rawurl. A URL without a scheme is
// treated as a local directory.
func NewHandler(ctx context.Context, rawurl string, cfg *Config) (Handler, error) {

	if cfg == nil {
		cfg = new(Config)
	}

	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid storage url '%s'", rawurl)
	}

	switch u.Scheme {
	case "", "file":
		root := u.Path
		if u.Scheme == "" {
			root = rawurl
		}
		return NewLocalHandler(root), nil
	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("missing bucket in '%s'", rawurl)
		}
		return newS3HandlerFromConfig(u.Host, strings.Trim(u.Path, "/"), cfg)
	case "gs":
		if u.Host == "" {
			return nil, fmt.Errorf("missing bucket in '%s'", rawurl)
		}
		return newGCSHandler(ctx, u.Host, strings.Trim(u.Path, "/"), cfg)
	case "az":
		if u.Host == "" {
			return nil, fmt.Errorf("missing container in '%s'", rawurl)
		}
		return newAzureHandler(u.Host, strings.Trim(u.Path, "/"), cfg)
	default:
		return nil, fmt.Errorf("unsupported storage scheme '%s'", u.Scheme)
	}
}
