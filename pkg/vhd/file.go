package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/vorteil/vhd-tools/pkg/storage"
)

// File is an image stored as a single file: footer, header, block allocation
// table, then parent locators and blocks, then the footer again.
type File struct {
	base
	f    storage.File
	path string

	// write side
	alloc  sync.Mutex
	cursor int64
}

// OpenFile opens the image stored in the file at path.
func OpenFile(ctx context.Context, h storage.Handler, path string) (*File, error) {

	res, err := h.OpenFile(ctx, path)
	if err != nil {
		return nil, err
	}

	if res.Kind != storage.RegularFile {
		return nil, fmt.Errorf("%s is a %s, not a vhd file", path, res.Kind)
	}

	return openFile(res.File, path)
}

func openFile(f storage.File, path string) (*File, error) {

	vf := &File{f: f, path: path}

	buf, err := vf.readAt(0, FooterSize)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "reading footer of %s", path)
	}

	vf.footer, err = UnpackFooter(buf)
	if err != nil {
		f.Close()
		return nil, err
	}

	if !vf.footer.IsDynamic() {
		f.Close()
		return nil, errors.Wrap(ErrUnsupportedDiskType, path)
	}

	buf, err = vf.readAt(HeaderOffset, HeaderSize)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "reading header of %s", path)
	}

	vf.header, err = UnpackHeader(buf)
	if err != nil {
		f.Close()
		return nil, err
	}

	err = vf.header.CheckLimits()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, path)
	}

	return vf, nil
}

// CreateFile creates an empty image file at path.
func CreateFile(ctx context.Context, h storage.Handler, path string) (*File, error) {

	f, err := h.CreateFile(ctx, path)
	if err != nil {
		return nil, err
	}

	return &File{f: f, path: path}, nil
}

func (f *File) readAt(off, size int64) ([]byte, error) {
	buf := make([]byte, size)
	n, err := f.f.ReadAt(buf, off)
	if n == len(buf) {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, err
}

func (f *File) writeAt(buf []byte, off int64) error {
	_, err := f.f.WriteAt(buf, off)
	if err != nil {
		return errors.Wrapf(err, "writing %d bytes at %d of %s", len(buf), off, f.path)
	}
	return nil
}

func (f *File) ReadBlockAllocationTable(ctx context.Context) error {

	bat, err := f.readAt(int64(f.header.TableOffset), f.header.BATSize())
	if err != nil {
		return errors.Wrapf(err, "reading block allocation table of %s", f.path)
	}

	return f.setBAT(bat)
}

func (f *File) ReadBlock(ctx context.Context, i uint32) (*Block, error) {

	err := f.checkBlock(i)
	if err != nil {
		return nil, err
	}

	sector, _ := f.batEntry(i)
	buf, err := f.readAt(int64(sector)*SectorSize, f.header.BlockAndBitmapSize())
	if err != nil {
		return nil, errors.Wrapf(err, "reading block %d of %s", i, f.path)
	}

	return &Block{ID: i, Buffer: buf, BitmapSize: f.header.BitmapSize()}, nil
}

func (f *File) ReadParentLocator(ctx context.Context, id int) (*ParentLocator, error) {

	entry, err := f.parentLocatorEntry(id)
	if err != nil {
		return nil, err
	}

	pl := &ParentLocator{ID: id, PlatformCode: entry.PlatformCode}
	if entry.Empty() {
		return pl, nil
	}

	pl.Data, err = f.readAt(entry.Offset(), entry.Size())
	if err != nil {
		return nil, errors.Wrapf(err, "reading parent locator %d of %s", id, f.path)
	}

	return pl, nil
}

func (f *File) ReadParentLocatorData(ctx context.Context, id int) ([]byte, error) {
	pl, err := f.ReadParentLocator(ctx, id)
	if err != nil {
		return nil, err
	}
	return pl.Data, nil
}

func (f *File) Blocks() *BlockIterator {
	return newBlockIterator(f)
}

// dataEnd returns the first byte after the block allocation table and every
// parent locator region reserved by the header. Must hold alloc.
func (f *File) dataEnd() (int64, error) {

	if f.cursor > 0 {
		return f.cursor, nil
	}

	if f.header.TableOffset < MinTableOffset {
		return 0, ErrInvalidTableOffset
	}

	end := f.header.DataStart()
	for i := range f.header.ParentLocatorEntry {
		entry := &f.header.ParentLocatorEntry[i]
		if entry.Empty() {
			continue
		}
		if e := entry.Offset() + entry.Size(); e > end {
			end = e
		}
	}

	f.cursor = (end + SectorSize - 1) / SectorSize * SectorSize
	return f.cursor, nil
}

// WriteEntireBlock appends the block after the data written so far, or
// overwrites it in place if the block is already allocated.
func (f *File) WriteEntireBlock(ctx context.Context, b *Block) error {

	err := f.checkBlockWrite(b)
	if err != nil {
		return err
	}

	var off int64
	if sector, _ := f.batEntry(b.ID); sector != BlockUnused {
		off = int64(sector) * SectorSize
	} else {
		f.alloc.Lock()
		off, err = f.dataEnd()
		if err != nil {
			f.alloc.Unlock()
			return err
		}
		f.cursor += int64(len(b.Buffer))
		f.setBATEntry(b.ID, uint32(off/SectorSize))
		f.alloc.Unlock()
	}

	return f.writeAt(b.Buffer, off)
}

func (f *File) WriteParentLocator(ctx context.Context, pl *ParentLocator) error {

	if pl == nil || pl.Data == nil {
		return nil
	}

	entry, err := f.checkWritable(pl)
	if err != nil {
		return err
	}

	return f.writeAt(pl.Data, entry.Offset())
}

// WriteFooter writes the footer at the start of the file and after the last
// block.
func (f *File) WriteFooter(ctx context.Context) error {

	if f.footer == nil {
		return ErrFooterNotSet
	}
	if f.header == nil {
		return ErrHeaderNotSet
	}

	f.alloc.Lock()
	end, err := f.dataEnd()
	f.alloc.Unlock()
	if err != nil {
		return err
	}

	buf := f.footer.Bytes()

	err = f.writeAt(buf, 0)
	if err != nil {
		return err
	}

	return f.writeAt(buf, end)
}

func (f *File) WriteHeader(ctx context.Context) error {
	if f.header == nil {
		return ErrHeaderNotSet
	}
	return f.writeAt(f.header.Bytes(), HeaderOffset)
}

func (f *File) WriteBlockAllocationTable(ctx context.Context) error {
	if f.header == nil {
		return ErrHeaderNotSet
	}
	if f.header.TableOffset < MinTableOffset {
		return ErrInvalidTableOffset
	}
	return f.writeAt(f.batBytes(), int64(f.header.TableOffset))
}

func (f *File) Close() error {
	return f.f.Close()
}
