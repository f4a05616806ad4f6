// Package vhdtest builds small dynamic images for tests.
package vhdtest

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"context"
	"fmt"
	"time"

	"github.com/vorteil/vhd-tools/pkg/storage"
	"github.com/vorteil/vhd-tools/pkg/vhd"
)

// SmallBlockSize keeps test images tiny: one bitmap sector and eight data
// sectors per block.
const SmallBlockSize = 4096

// Image describes a test image.
type Image struct {
	Entries   uint32
	BlockSize uint32
	// Allocated selects the blocks holding data. Nil allocates none.
	Allocated func(i uint32) bool
	// Locators is the number of populated parent locators, 0 to 8. They are
	// stored right after the block allocation table.
	Locators int
	// Seed varies block contents between images of the same shape.
	Seed byte
	// Directory builds a directory image instead of a file.
	Directory bool
}

func (img Image) blockSize() uint32 {
	if img.BlockSize == 0 {
		return SmallBlockSize
	}
	return img.BlockSize
}

// All, None and Sparse are common allocation patterns.
func All(uint32) bool      { return true }
func None(uint32) bool     { return false }
func Sparse(i uint32) bool { return i%3 != 1 }

// BlockBuffer returns the deterministic bitmap and data of block i.
func BlockBuffer(img Image, i uint32) []byte {
	bitmap := vhd.BitmapSize(img.blockSize())
	buf := make([]byte, bitmap+int64(img.blockSize()))
	for j := int64(0); j < bitmap; j++ {
		buf[j] = 0xFF
	}
	for j := bitmap; j < int64(len(buf)); j++ {
		buf[j] = byte(int64(i)*7+j) ^ img.Seed
	}
	return buf
}

// LocatorData returns the contents of parent locator id, one sector long.
func LocatorData(id int) []byte {
	data := make([]byte, vhd.SectorSize)
	copy(data, fmt.Sprintf("./parent-%d.vhd", id))
	return data
}

// Header returns the header Build writes for img.
func Header(img Image) *vhd.Header {

	header := vhd.NewDynamicHeader(img.Entries, img.blockSize())

	sector := uint64(header.DataStart() / vhd.SectorSize)
	for id := 0; id < img.Locators; id++ {
		header.ParentLocatorEntry[id] = vhd.ParentLocatorEntry{
			PlatformCode:       vhd.PlatformCodeW2ku,
			PlatformDataSpace:  1,
			PlatformDataLength: uint32(len(fmt.Sprintf("./parent-%d.vhd", id))),
			PlatformDataOffset: sector,
		}
		sector++
	}

	header.UpdateChecksum()

	return header
}

// UniqueID is the identifier of every image built here, so that images of
// the same shape have identical footers.
var UniqueID = [16]byte{0x76, 0x68, 0x64, 0x74, 0x65, 0x73, 0x74, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01}

// Footer returns the footer Build writes for img.
func Footer(img Image) *vhd.Footer {
	size := int64(img.Entries) * int64(img.blockSize())
	footer := vhd.NewDynamicFooter(size, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	footer.UniqueID = UniqueID
	footer.UpdateChecksum()
	return footer
}

// Build writes img at path.
func Build(ctx context.Context, h storage.Handler, path string, img Image) error {

	if img.BlockSize == 0 {
		img.BlockSize = SmallBlockSize
	}
	if img.Allocated == nil {
		img.Allocated = None
	}

	w, err := vhd.Create(ctx, h, path, img.Directory)
	if err != nil {
		return err
	}
	defer w.Close()

	w.SetFooter(Footer(img))
	w.SetHeader(Header(img))

	for i := uint32(0); i < img.Entries; i++ {
		if !img.Allocated(i) {
			continue
		}
		err = w.WriteEntireBlock(ctx, &vhd.Block{
			ID:         i,
			Buffer:     BlockBuffer(img, i),
			BitmapSize: vhd.BitmapSize(img.BlockSize),
		})
		if err != nil {
			return err
		}
	}

	for id := 0; id < img.Locators; id++ {
		err = w.WriteParentLocator(ctx, &vhd.ParentLocator{
			ID:           id,
			PlatformCode: vhd.PlatformCodeW2ku,
			Data:         LocatorData(id),
		})
		if err != nil {
			return err
		}
	}

	err = w.WriteFooter(ctx)
	if err != nil {
		return err
	}

	err = w.WriteHeader(ctx)
	if err != nil {
		return err
	}

	err = w.WriteBlockAllocationTable(ctx)
	if err != nil {
		return err
	}

	return w.Close()
}
