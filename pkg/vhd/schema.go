package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

// Kind tags the shape of a Value.
type Kind int

// Value kinds. KindInvalid is the zero Value, used for missing fields.
const (
	KindInvalid Kind = iota
	KindScalar
	KindBytes
	KindStruct
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindBytes:
		return "bytes"
	case KindStruct:
		return "struct"
	default:
		return "missing"
	}
}

// Value is one decoded field value.
type Value struct {
	Kind   Kind
	Scalar uint64
	Bytes  []byte
	Fields []Field
}

func (v Value) String() string {
	switch v.Kind {
	case KindScalar:
		return strconv.FormatUint(v.Scalar, 10)
	case KindBytes:
		return hex.EncodeToString(v.Bytes)
	case KindStruct:
		return fmt.Sprintf("struct(%d fields)", len(v.Fields))
	default:
		return "<missing>"
	}
}

// Field is a named Value. Structures enumerate their fields in wire order.
type Field struct {
	Name  string
	Value Value
}

func scalar(name string, v uint64) Field {
	return Field{Name: name, Value: Value{Kind: KindScalar, Scalar: v}}
}

func raw(name string, b []byte) Field {
	return Field{Name: name, Value: Value{Kind: KindBytes, Bytes: b}}
}

func nested(name string, fields []Field) Field {
	return Field{Name: name, Value: Value{Kind: KindStruct, Fields: fields}}
}

// Fields lists every footer field.
func (f *Footer) Fields() []Field {
	return []Field{
		raw("cookie", f.Cookie[:]),
		scalar("features", uint64(f.Features)),
		scalar("fileFormatVersion", uint64(f.FileFormatVersion)),
		scalar("dataOffset", f.DataOffset),
		scalar("timestamp", uint64(f.TimeStamp)),
		scalar("creatorApplication", uint64(f.CreatorApplication)),
		scalar("creatorVersion", uint64(f.CreatorVersion)),
		scalar("creatorHostOs", uint64(f.CreatorHostOS)),
		scalar("originalSize", f.OriginalSize),
		scalar("currentSize", f.CurrentSize),
		scalar("diskGeometry", uint64(f.DiskGeometry)),
		scalar("diskType", uint64(f.DiskType)),
		scalar("checksum", uint64(f.Checksum)),
		raw("uuid", f.UniqueID[:]),
		scalar("saved", uint64(f.SavedState)),
		raw("reserved", f.Reserved[:]),
	}
}

// Fields lists every parent locator entry field.
func (e *ParentLocatorEntry) Fields() []Field {
	return []Field{
		scalar("platformCode", uint64(e.PlatformCode)),
		scalar("platformDataSpace", uint64(e.PlatformDataSpace)),
		scalar("platformDataLength", uint64(e.PlatformDataLength)),
		scalar("reserved", uint64(e.Reserved)),
		scalar("platformDataOffset", e.PlatformDataOffset),
	}
}

// Fields lists every header field, parent locator entries as a nested
// structure keyed by entry id.
func (h *Header) Fields() []Field {
	locators := make([]Field, ParentLocatorCount)
	for i := range h.ParentLocatorEntry {
		locators[i] = nested(strconv.Itoa(i), h.ParentLocatorEntry[i].Fields())
	}

	return []Field{
		raw("cookie", h.Cookie[:]),
		scalar("dataOffset", h.DataOffset),
		scalar("tableOffset", h.TableOffset),
		scalar("headerVersion", uint64(h.HeaderVersion)),
		scalar("maxTableEntries", uint64(h.MaxTableEntries)),
		scalar("blockSize", uint64(h.BlockSize)),
		scalar("checksum", uint64(h.Checksum)),
		raw("parentUuid", h.ParentUniqueID[:]),
		scalar("parentTimestamp", uint64(h.ParentTimeStamp)),
		scalar("reserved1", uint64(h.Reserved)),
		raw("parentUnicodeName", h.ParentUnicodeName[:]),
		nested("parentLocatorEntry", locators),
		raw("reserved2", h.Reserved2[:]),
	}
}
