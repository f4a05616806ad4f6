package storage

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"errors"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
)

var errReadOnly = errors.New("file is opened read-only")

// memFile buffers a file being created on an object store. The object is
// uploaded by flush when the file is closed.
type memFile struct {
	buf   *aws.WriteAtBuffer
	flush func(data []byte) error

	lock   sync.Mutex
	closed bool
}

func newMemFile(flush func(data []byte) error) *memFile {
	return &memFile{
		buf:   aws.NewWriteAtBuffer(nil),
		flush: flush,
	}
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	return f.buf.WriteAt(p, off)
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	data := f.buf.Bytes()
	if off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) Size() (int64, error) {
	return int64(len(f.buf.Bytes())), nil
}

func (f *memFile) Close() error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	return f.flush(f.buf.Bytes())
}
