// Package vhdcopy copies the allocated content of a dynamic image into a new
// image, reading and writing blocks concurrently.
package vhdcopy

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"context"
	"sync/atomic"

	"github.com/cloudfoundry/bytefmt"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vorteil/vhd-tools/pkg/elog"
	"github.com/vorteil/vhd-tools/pkg/vhd"
)

// DefaultConcurrency is the number of block copies in flight when Options
// does not say otherwise.
const DefaultConcurrency = 16

// Options tunes Copy. The zero value is usable.
type Options struct {
	Concurrency int
	// Progress is called after each block is written. Calls may happen
	// concurrently.
	Progress func(index uint32)
	Logger   elog.View
}

func (o *Options) concurrency() int64 {
	if o.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return int64(o.Concurrency)
}

func copyBlock(ctx context.Context, src vhd.Reader, dest vhd.Writer, i uint32) error {

	b, err := src.ReadBlock(ctx, i)
	if err != nil {
		return errors.Wrapf(err, "reading block %d", i)
	}

	err = dest.WriteEntireBlock(ctx, b)
	if err != nil {
		return errors.Wrapf(err, "writing block %d", i)
	}

	return nil
}

// Copy copies header, footer, allocated blocks and parent locators from src
// to dest, then writes the footer, the header and the block allocation table
// of dest in that order.
//
// The first failing block copy stops the scheduling of new ones. Copies
// already running are waited for, and the first error is returned. Nothing
// written to dest is rolled back.
func Copy(ctx context.Context, src vhd.Reader, dest vhd.Writer, opts *Options) error {

	if opts == nil {
		opts = new(Options)
	}
	log := elog.OrDiscard(opts.Logger)

	header := *src.Header()
	dest.SetHeader(&header)

	footer := *src.Footer()
	dest.SetFooter(&footer)

	err := src.ReadBlockAllocationTable(ctx)
	if err != nil {
		return errors.Wrap(err, "reading block allocation table")
	}

	var work []uint32
	for i := uint32(0); i < header.MaxTableEntries; i++ {
		if src.ContainsBlock(i) {
			work = append(work, i)
		}
	}

	log.Infof("copying %d of %d blocks (%s)", len(work), header.MaxTableEntries,
		bytefmt.ByteSize(uint64(int64(len(work))*header.BlockAndBitmapSize())))

	sem := semaphore.NewWeighted(opts.concurrency())
	g, gctx := errgroup.WithContext(ctx)

	var failed int32
	var acquireErr error

	for _, i := range work {

		err = sem.Acquire(gctx, 1)
		if err != nil {
			acquireErr = err
			break
		}

		if atomic.LoadInt32(&failed) != 0 {
			sem.Release(1)
			break
		}

		i := i
		g.Go(func() error {
			defer sem.Release(1)
			err := copyBlock(ctx, src, dest, i)
			if err != nil {
				atomic.StoreInt32(&failed, 1)
				return err
			}
			if opts.Progress != nil {
				opts.Progress(i)
			}
			return nil
		})
	}

	err = g.Wait()
	if err != nil {
		return err
	}
	if acquireErr != nil {
		return acquireErr
	}

	for id := 0; id < vhd.ParentLocatorCount; id++ {
		pl, err := src.ReadParentLocator(ctx, id)
		if err != nil {
			return errors.Wrapf(err, "reading parent locator %d", id)
		}
		err = dest.WriteParentLocator(ctx, pl)
		if err != nil {
			return errors.Wrapf(err, "writing parent locator %d", id)
		}
	}

	err = dest.WriteFooter(ctx)
	if err != nil {
		return errors.Wrap(err, "writing footer")
	}

	err = dest.WriteHeader(ctx)
	if err != nil {
		return errors.Wrap(err, "writing header")
	}

	err = dest.WriteBlockAllocationTable(ctx)
	if err != nil {
		return errors.Wrap(err, "writing block allocation table")
	}

	log.Debugf("copy finished")

	return nil
}
