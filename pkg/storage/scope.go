package storage

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// Scope tracks resources acquired together and releases them in reverse
// acquisition order.
type Scope struct {
	lock    sync.Mutex
	closers []io.Closer
}

// Add registers c for release and returns it.
func (s *Scope) Add(c io.Closer) io.Closer {
	s.lock.Lock()
	s.closers = append(s.closers, c)
	s.lock.Unlock()
	return c
}

// Close releases every registered resource, last acquired first. All
// resources are released even when some fail; the first failure is returned.
func (s *Scope) Close() error {
	s.lock.Lock()
	closers := s.closers
	s.closers = nil
	s.lock.Unlock()

	var first error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// Use runs fn with a fresh scope and releases the scope on every exit path.
// A release failure is returned on its own when fn succeeded, and appended to
// fn's error otherwise; errors.Is still matches fn's error.
func Use(fn func(s *Scope) error) (err error) {
	s := new(Scope)
	defer func() {
		cerr := s.Close()
		if cerr == nil {
			return
		}
		if err == nil {
			err = errors.Wrap(cerr, "releasing resources")
			return
		}
		err = errors.Wrapf(err, "releasing resources: %v", cerr)
	}()
	return fn(s)
}
