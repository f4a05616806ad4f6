// Package vhd models dynamic VHD images: the footer, header and block
// allocation table layout, and random access readers and writers for images
// stored as a single file or as a directory.
package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrBlockNotAllocated     = errors.New("block is not allocated")
	ErrBATNotLoaded          = errors.New("block allocation table not loaded")
	ErrBadParentLocator      = errors.New("parent locator id out of range")
	ErrHeaderNotSet          = errors.New("header not set")
	ErrFooterNotSet          = errors.New("footer not set")
	ErrUnsupportedDiskType   = errors.New("only dynamic disks are supported")
	ErrParentLocatorTooLarge = errors.New("parent locator data exceeds its reserved space")
	ErrInvalidTableOffset    = errors.New("block allocation table overlaps footer or header")
	ErrHeaderOutOfRange      = errors.New("header describes an image larger than supported")
)

// Block is one allocated block: its sector bitmap followed by its data.
type Block struct {
	ID         uint32
	Buffer     []byte
	BitmapSize int64
}

func (b *Block) Bitmap() []byte {
	return b.Buffer[:b.BitmapSize]
}

func (b *Block) Data() []byte {
	return b.Buffer[b.BitmapSize:]
}

// ParentLocator is the content of one parent locator entry. Data is nil when
// the entry reserves no space.
type ParentLocator struct {
	ID           int
	PlatformCode uint32
	Data         []byte
}

// Reader gives random access to an image.
type Reader interface {
	Footer() *Footer
	Header() *Header
	// ReadBlockAllocationTable must be called before block queries.
	ReadBlockAllocationTable(ctx context.Context) error
	ContainsBlock(i uint32) bool
	ReadBlock(ctx context.Context, i uint32) (*Block, error)
	ReadParentLocator(ctx context.Context, id int) (*ParentLocator, error)
	ReadParentLocatorData(ctx context.Context, id int) ([]byte, error)
	// Blocks iterates over allocated blocks in ascending index order. Each
	// call starts a new iteration.
	Blocks() *BlockIterator
	Close() error
}

// Writer builds an image. Footer, header and block allocation table are kept
// in memory until written explicitly.
type Writer interface {
	Footer() *Footer
	Header() *Header
	SetFooter(f *Footer)
	SetHeader(h *Header)
	ContainsBlock(i uint32) bool
	// WriteEntireBlock may be called concurrently for distinct blocks.
	WriteEntireBlock(ctx context.Context, b *Block) error
	// WriteParentLocator is a no-op for a locator without data.
	WriteParentLocator(ctx context.Context, pl *ParentLocator) error
	WriteFooter(ctx context.Context) error
	WriteHeader(ctx context.Context) error
	WriteBlockAllocationTable(ctx context.Context) error
	Close() error
}

// BlockIterator walks the allocated blocks of a Reader.
//
//	it := r.Blocks()
//	for it.Next(ctx) {
//		b := it.Block()
//	}
//	if err := it.Err(); err != nil {
//	}
type BlockIterator struct {
	r     Reader
	next  uint32
	block *Block
	err   error
}

func newBlockIterator(r Reader) *BlockIterator {
	return &BlockIterator{r: r}
}

// Next reads the next allocated block. It returns false at the end or on
// error.
func (it *BlockIterator) Next(ctx context.Context) bool {

	if it.err != nil {
		return false
	}

	header := it.r.Header()
	if header == nil {
		it.err = ErrHeaderNotSet
		return false
	}

	for ; it.next < header.MaxTableEntries; it.next++ {
		if !it.r.ContainsBlock(it.next) {
			continue
		}
		it.block, it.err = it.r.ReadBlock(ctx, it.next)
		it.next++
		return it.err == nil
	}

	it.block = nil
	return false
}

func (it *BlockIterator) Block() *Block {
	return it.block
}

func (it *BlockIterator) Err() error {
	return it.err
}

// base holds the structures shared by every representation.
type base struct {
	footer *Footer
	header *Header

	lock sync.RWMutex
	bat  []byte
}

func (b *base) Footer() *Footer {
	return b.footer
}

func (b *base) Header() *Header {
	return b.header
}

func (b *base) SetFooter(f *Footer) {
	b.footer = f
}

// SetHeader replaces the header and resets the block allocation table to a
// table of unused entries sized for it.
func (b *base) SetHeader(h *Header) {
	b.header = h
	b.lock.Lock()
	b.bat = NewBAT(h.MaxTableEntries)
	b.lock.Unlock()
}

func (b *base) setBAT(bat []byte) error {
	if int64(len(bat)) < int64(b.header.MaxTableEntries)*4 {
		return fmt.Errorf("block allocation table of %d bytes is too short for %d entries", len(bat), b.header.MaxTableEntries)
	}
	b.lock.Lock()
	b.bat = bat
	b.lock.Unlock()
	return nil
}

func (b *base) batBytes() []byte {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return append([]byte(nil), b.bat...)
}

func (b *base) batEntry(i uint32) (uint32, bool) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	if b.bat == nil || b.header == nil || i >= b.header.MaxTableEntries {
		return BlockUnused, false
	}
	return BATEntry(b.bat, i), true
}

func (b *base) setBATEntry(i uint32, sector uint32) {
	b.lock.Lock()
	SetBATEntry(b.bat, i, sector)
	b.lock.Unlock()
}

// ContainsBlock reports whether block i has data.
func (b *base) ContainsBlock(i uint32) bool {
	sector, ok := b.batEntry(i)
	return ok && sector != BlockUnused
}

func (b *base) checkBlock(i uint32) error {
	b.lock.RLock()
	loaded := b.bat != nil
	b.lock.RUnlock()

	if !loaded {
		return ErrBATNotLoaded
	}
	if !b.ContainsBlock(i) {
		return fmt.Errorf("block %d: %w", i, ErrBlockNotAllocated)
	}
	return nil
}

func (b *base) parentLocatorEntry(id int) (*ParentLocatorEntry, error) {
	if b.header == nil {
		return nil, ErrHeaderNotSet
	}
	if id < 0 || id >= ParentLocatorCount {
		return nil, fmt.Errorf("parent locator %d: %w", id, ErrBadParentLocator)
	}
	return &b.header.ParentLocatorEntry[id], nil
}

func (b *base) checkWritable(pl *ParentLocator) (*ParentLocatorEntry, error) {
	entry, err := b.parentLocatorEntry(pl.ID)
	if err != nil {
		return nil, err
	}
	if int64(len(pl.Data)) > entry.Size() {
		return nil, fmt.Errorf("parent locator %d: %w", pl.ID, ErrParentLocatorTooLarge)
	}
	return entry, nil
}

func (b *base) checkBlockWrite(blk *Block) error {
	if b.header == nil {
		return ErrHeaderNotSet
	}
	if blk.ID >= b.header.MaxTableEntries {
		return fmt.Errorf("block %d is beyond the %d table entries", blk.ID, b.header.MaxTableEntries)
	}
	if int64(len(blk.Buffer)) != b.header.BlockAndBitmapSize() {
		return fmt.Errorf("block %d has %d bytes, expected %d", blk.ID, len(blk.Buffer), b.header.BlockAndBitmapSize())
	}
	return nil
}
