package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Sizes and sentinels of the dynamic disk format.
const (
	SectorSize         = 512
	FooterSize         = 512
	HeaderSize         = 1024
	HeaderOffset       = FooterSize
	ParentLocatorCount = 8

	// BlockUnused marks a BAT entry without backing data.
	BlockUnused = 0xFFFFFFFF

	// MinTableOffset is the first byte after the leading footer and the header.
	MinTableOffset = FooterSize + HeaderSize
)

// Disk types stored in the footer.
const (
	DiskTypeFixed        = 2
	DiskTypeDynamic      = 3
	DiskTypeDifferencing = 4
)

// Parent locator platform codes.
const (
	PlatformCodeNone = 0x00000000
	PlatformCodeWi2r = 0x57693272
	PlatformCodeWi2k = 0x5769326B
	PlatformCodeW2ru = 0x57327275
	PlatformCodeW2ku = 0x57326B75
	PlatformCodeMac  = 0x4D616320
	PlatformCodeMacX = 0x4D616358
)

var (
	footerCookie = [8]byte{'c', 'o', 'n', 'e', 'c', 't', 'i', 'x'}
	headerCookie = [8]byte{'c', 'x', 's', 'p', 'a', 'r', 's', 'e'}
)

// Footer is the 512 byte structure found at the start and at the end of a
// dynamic disk.
type Footer struct { // 512 bytes
	Cookie             [8]byte
	Features           uint32
	FileFormatVersion  uint32
	DataOffset         uint64
	TimeStamp          uint32
	CreatorApplication uint32
	CreatorVersion     uint32
	CreatorHostOS      uint32
	OriginalSize       uint64
	CurrentSize        uint64
	DiskGeometry       uint32
	DiskType           uint32
	Checksum           uint32
	UniqueID           [16]byte
	SavedState         byte
	Reserved           [427]byte
}

// ParentLocatorEntry points at a parent locator blob. Space and offset are
// expressed in sectors.
type ParentLocatorEntry struct { // 24 bytes
	PlatformCode       uint32
	PlatformDataSpace  uint32
	PlatformDataLength uint32
	Reserved           uint32
	PlatformDataOffset uint64
}

// Header is the 1024 byte dynamic disk header stored right after the leading
// footer.
type Header struct { // 1024 bytes
	Cookie             [8]byte
	DataOffset         uint64
	TableOffset        uint64
	HeaderVersion      uint32
	MaxTableEntries    uint32
	BlockSize          uint32
	Checksum           uint32
	ParentUniqueID     [16]byte
	ParentTimeStamp    uint32
	Reserved           uint32
	ParentUnicodeName  [512]byte
	ParentLocatorEntry [ParentLocatorCount]ParentLocatorEntry
	Reserved2          [256]byte
}

// UnpackFooter decodes the first FooterSize bytes of b.
func UnpackFooter(b []byte) (*Footer, error) {
	if len(b) < FooterSize {
		return nil, fmt.Errorf("footer needs %d bytes, got %d", FooterSize, len(b))
	}

	footer := new(Footer)
	err := binary.Read(bytes.NewReader(b[:FooterSize]), binary.BigEndian, footer)
	if err != nil {
		return nil, err
	}

	return footer, nil
}

// UnpackHeader decodes the first HeaderSize bytes of b.
func UnpackHeader(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("header needs %d bytes, got %d", HeaderSize, len(b))
	}

	header := new(Header)
	err := binary.Read(bytes.NewReader(b[:HeaderSize]), binary.BigEndian, header)
	if err != nil {
		return nil, err
	}

	return header, nil
}

// Bytes encodes the footer.
func (f *Footer) Bytes() []byte {
	return pack(f, FooterSize)
}

// Bytes encodes the header.
func (h *Header) Bytes() []byte {
	return pack(h, HeaderSize)
}

func pack(v interface{}, size int) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, size))
	// only fails for types that are not fixed size
	if err := binary.Write(buf, binary.BigEndian, v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// IsDynamic reports whether the footer describes an image with a header and
// a block allocation table.
func (f *Footer) IsDynamic() bool {
	return f.DataOffset != 0xFFFFFFFFFFFFFFFF
}

// BATSize returns the on-disk size of a block allocation table holding
// entries entries, rounded up to whole sectors.
func BATSize(entries uint32) int64 {
	n := int64(entries) * 4
	if n < 1 {
		n = 1
	}
	return (n + SectorSize - 1) / SectorSize * SectorSize
}

// BitmapSize returns the size of the sector bitmap preceding each block.
func BitmapSize(blockSize uint32) int64 {
	const bitsPerBitmapSector = SectorSize * 8 * SectorSize
	return (int64(blockSize) + bitsPerBitmapSector - 1) / bitsPerBitmapSector * SectorSize
}

// Upper bounds on header geometry. A 2 TiB image with 512 KiB blocks needs
// 4M entries.
const (
	MaxTableEntries = 1 << 24
	MaxBlockSize    = 1 << 28
)

// CheckLimits rejects headers whose table or block sizes exceed the supported
// bounds. Readers call it before allocating anything the header sizes.
func (h *Header) CheckLimits() error {
	if h.MaxTableEntries > MaxTableEntries {
		return fmt.Errorf("%d table entries: %w", h.MaxTableEntries, ErrHeaderOutOfRange)
	}
	if h.BlockSize > MaxBlockSize {
		return fmt.Errorf("block size %d: %w", h.BlockSize, ErrHeaderOutOfRange)
	}
	return nil
}

func (h *Header) BATSize() int64 {
	return BATSize(h.MaxTableEntries)
}

func (h *Header) BitmapSize() int64 {
	return BitmapSize(h.BlockSize)
}

// BlockAndBitmapSize is the size of one allocated block region.
func (h *Header) BlockAndBitmapSize() int64 {
	return h.BitmapSize() + int64(h.BlockSize)
}

// DataStart is the first byte after the block allocation table.
func (h *Header) DataStart() int64 {
	return int64(h.TableOffset) + h.BATSize()
}

// Empty reports whether the entry has no data in the image.
func (e *ParentLocatorEntry) Empty() bool {
	return e.PlatformDataSpace == 0
}

// Offset returns the byte offset of the locator data.
func (e *ParentLocatorEntry) Offset() int64 {
	return int64(e.PlatformDataOffset) * SectorSize
}

// Size returns the byte size reserved for the locator data.
func (e *ParentLocatorEntry) Size() int64 {
	return int64(e.PlatformDataSpace) * SectorSize
}

// BATEntry returns the sector offset stored at index i of a raw BAT.
func BATEntry(bat []byte, i uint32) uint32 {
	return binary.BigEndian.Uint32(bat[4*i : 4*(i+1)])
}

// SetBATEntry stores a sector offset at index i of a raw BAT.
func SetBATEntry(bat []byte, i uint32, sector uint32) {
	binary.BigEndian.PutUint32(bat[4*i:4*(i+1)], sector)
}

// NewBAT returns a table of the right size with every entry unused.
func NewBAT(entries uint32) []byte {
	return bytes.Repeat([]byte{0xFF}, int(BATSize(entries)))
}
