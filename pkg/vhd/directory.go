package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"context"
	"fmt"
	"path"
	"strconv"

	"github.com/pkg/errors"

	"github.com/vorteil/vhd-tools/pkg/storage"
)

// Directory file names.
const (
	directoryFooter = "footer"
	directoryHeader = "header"
	directoryBAT    = "bat"
	directoryBlocks = "blocks"
)

// Directory is an image stored as one object per structure, which suits
// object stores where rewriting a single large file is expensive:
//
//	<path>/footer
//	<path>/header
//	<path>/bat
//	<path>/blocks/<index>
//	<path>/parentLocatorEntry<id>
//
// Allocated BAT entries hold the block index; only the distinction from the
// unused sentinel is meaningful.
type Directory struct {
	base
	h    storage.Handler
	path string
}

// OpenDirectory opens the directory image at path.
func OpenDirectory(ctx context.Context, h storage.Handler, path string) (*Directory, error) {

	d := &Directory{h: h, path: path}

	buf, err := h.ReadFile(ctx, d.join(directoryFooter))
	if err != nil {
		return nil, errors.Wrapf(err, "reading footer of %s", path)
	}

	d.footer, err = UnpackFooter(buf)
	if err != nil {
		return nil, err
	}

	buf, err = h.ReadFile(ctx, d.join(directoryHeader))
	if err != nil {
		return nil, errors.Wrapf(err, "reading header of %s", path)
	}

	d.header, err = UnpackHeader(buf)
	if err != nil {
		return nil, err
	}

	err = d.header.CheckLimits()
	if err != nil {
		return nil, errors.Wrap(err, path)
	}

	return d, nil
}

// CreateDirectory prepares an empty directory image at path.
func CreateDirectory(ctx context.Context, h storage.Handler, path string) (*Directory, error) {

	err := h.MkdirAll(ctx, path)
	if err != nil {
		return nil, err
	}

	return &Directory{h: h, path: path}, nil
}

func (d *Directory) join(elem ...string) string {
	return path.Join(append([]string{d.path}, elem...)...)
}

func (d *Directory) blockPath(i uint32) string {
	return d.join(directoryBlocks, strconv.FormatUint(uint64(i), 10))
}

func (d *Directory) locatorPath(id int) string {
	return d.join(fmt.Sprintf("parentLocatorEntry%d", id))
}

func (d *Directory) ReadBlockAllocationTable(ctx context.Context) error {

	bat, err := d.h.ReadFile(ctx, d.join(directoryBAT))
	if err != nil {
		return errors.Wrapf(err, "reading block allocation table of %s", d.path)
	}

	return d.setBAT(bat)
}

func (d *Directory) ReadBlock(ctx context.Context, i uint32) (*Block, error) {

	err := d.checkBlock(i)
	if err != nil {
		return nil, err
	}

	buf, err := d.h.ReadFile(ctx, d.blockPath(i))
	if err != nil {
		return nil, errors.Wrapf(err, "reading block %d of %s", i, d.path)
	}

	if int64(len(buf)) != d.header.BlockAndBitmapSize() {
		return nil, fmt.Errorf("block %d of %s has %d bytes, expected %d", i, d.path, len(buf), d.header.BlockAndBitmapSize())
	}

	return &Block{ID: i, Buffer: buf, BitmapSize: d.header.BitmapSize()}, nil
}

func (d *Directory) ReadParentLocator(ctx context.Context, id int) (*ParentLocator, error) {

	entry, err := d.parentLocatorEntry(id)
	if err != nil {
		return nil, err
	}

	pl := &ParentLocator{ID: id, PlatformCode: entry.PlatformCode}
	if entry.Empty() {
		return pl, nil
	}

	pl.Data, err = d.h.ReadFile(ctx, d.locatorPath(id))
	if storage.IsNotExist(err) {
		return pl, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading parent locator %d of %s", id, d.path)
	}

	return pl, nil
}

func (d *Directory) ReadParentLocatorData(ctx context.Context, id int) ([]byte, error) {
	pl, err := d.ReadParentLocator(ctx, id)
	if err != nil {
		return nil, err
	}
	return pl.Data, nil
}

func (d *Directory) Blocks() *BlockIterator {
	return newBlockIterator(d)
}

func (d *Directory) WriteEntireBlock(ctx context.Context, b *Block) error {

	err := d.checkBlockWrite(b)
	if err != nil {
		return err
	}

	err = d.h.WriteFile(ctx, d.blockPath(b.ID), b.Buffer)
	if err != nil {
		return err
	}

	d.setBATEntry(b.ID, b.ID)
	return nil
}

func (d *Directory) WriteParentLocator(ctx context.Context, pl *ParentLocator) error {

	if pl == nil || pl.Data == nil {
		return nil
	}

	_, err := d.checkWritable(pl)
	if err != nil {
		return err
	}

	return d.h.WriteFile(ctx, d.locatorPath(pl.ID), pl.Data)
}

func (d *Directory) WriteFooter(ctx context.Context) error {
	if d.footer == nil {
		return ErrFooterNotSet
	}
	return d.h.WriteFile(ctx, d.join(directoryFooter), d.footer.Bytes())
}

func (d *Directory) WriteHeader(ctx context.Context) error {
	if d.header == nil {
		return ErrHeaderNotSet
	}
	return d.h.WriteFile(ctx, d.join(directoryHeader), d.header.Bytes())
}

func (d *Directory) WriteBlockAllocationTable(ctx context.Context) error {
	if d.header == nil {
		return ErrHeaderNotSet
	}
	return d.h.WriteFile(ctx, d.join(directoryBAT), d.batBytes())
}

// Close is a no-op, the handler is owned by the caller.
func (d *Directory) Close() error {
	return nil
}
