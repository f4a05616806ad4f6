package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultBlockSize is the block size used by most writers.
	DefaultBlockSize = 0x200000

	footerChecksumOffset = 64
	headerChecksumOffset = 36

	vhdEpoch = 946684800 // 2000-01-01T00:00:00Z
)

// NewDynamicFooter returns a checksummed footer for a dynamic disk exposing
// size bytes.
func NewDynamicFooter(size int64, now time.Time) *Footer {

	footer := &Footer{
		Cookie:             footerCookie,
		Features:           0x00000002,
		FileFormatVersion:  0x00010000,
		DataOffset:         HeaderOffset,
		TimeStamp:          uint32(now.Unix() - vhdEpoch),
		CreatorApplication: 0x76636C69,
		CreatorVersion:     0x00010000,
		CreatorHostOS:      0x5769326B,
		OriginalSize:       uint64(size),
		CurrentSize:        uint64(size),
		DiskGeometry:       geometry(size),
		DiskType:           DiskTypeDynamic,
		UniqueID:           uuid.New(),
	}

	footer.UpdateChecksum()

	return footer
}

// NewDynamicHeader returns a checksummed header whose block allocation table
// directly follows it.
func NewDynamicHeader(maxTableEntries, blockSize uint32) *Header {

	header := &Header{
		Cookie:          headerCookie,
		DataOffset:      0xFFFFFFFFFFFFFFFF,
		TableOffset:     MinTableOffset,
		HeaderVersion:   0x00010000,
		MaxTableEntries: maxTableEntries,
		BlockSize:       blockSize,
	}

	header.UpdateChecksum()

	return header
}

func geometry(size int64) uint32 {

	// CHS crap
	var cylinders, heads, sectorsPerTrack int64
	var cylinderTimesHeads int64

	totalSectors := size / SectorSize
	if totalSectors > 65535*16*255 {
		totalSectors = 65535 * 16 * 255
	}

	if totalSectors >= 65535*16*63 {
		sectorsPerTrack = 255
		heads = 16
		cylinderTimesHeads = totalSectors / sectorsPerTrack
	} else {
		sectorsPerTrack = 17
		cylinderTimesHeads = totalSectors / sectorsPerTrack
		heads = (cylinderTimesHeads + 1023) / 1024
		if heads < 4 {
			heads = 4
		}
		if cylinderTimesHeads >= (heads*1024) || heads > 16 {
			sectorsPerTrack = 31
			heads = 16
			cylinderTimesHeads = totalSectors / sectorsPerTrack
		}
		if cylinderTimesHeads >= heads*1024 {
			sectorsPerTrack = 63
			heads = 16
			cylinderTimesHeads = totalSectors / sectorsPerTrack
		}
	}
	cylinders = cylinderTimesHeads / heads

	return uint32(cylinders<<16 | heads<<8 | sectorsPerTrack)
}

// checksum is the one's complement of the byte sum of b, skipping the four
// checksum bytes at skip.
func checksum(b []byte, skip int) uint32 {
	var sum uint32
	for i, x := range b {
		if i >= skip && i < skip+4 {
			continue
		}
		sum += uint32(x)
	}
	return ^sum
}

// UpdateChecksum recomputes the footer checksum.
func (f *Footer) UpdateChecksum() {
	f.Checksum = checksum(f.Bytes(), footerChecksumOffset)
}

// ValidChecksum reports whether the stored checksum matches the contents.
func (f *Footer) ValidChecksum() bool {
	return f.Checksum == checksum(f.Bytes(), footerChecksumOffset)
}

// UpdateChecksum recomputes the header checksum.
func (h *Header) UpdateChecksum() {
	h.Checksum = checksum(h.Bytes(), headerChecksumOffset)
}

// ValidChecksum reports whether the stored checksum matches the contents.
func (h *Header) ValidChecksum() bool {
	return h.Checksum == checksum(h.Bytes(), headerChecksumOffset)
}
