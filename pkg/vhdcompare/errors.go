package vhdcompare

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"

	"github.com/vorteil/vhd-tools/pkg/vhd"
)

// TypeMismatchError means a field has a different shape on each side, or is
// missing from the destination.
type TypeMismatchError struct {
	Path   string
	Source vhd.Kind
	Dest   vhd.Kind
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: type mismatch, %s in source and %s in destination", e.Path, e.Source, e.Dest)
}

// ValueMismatchError means a scalar or byte field differs.
type ValueMismatchError struct {
	Path   string
	Source vhd.Value
	Dest   vhd.Value
}

func (e *ValueMismatchError) Error() string {
	return fmt.Sprintf("%s: %s != %s", e.Path, e.Source, e.Dest)
}

// BlockPresenceError means a block is allocated on one side only.
type BlockPresenceError struct {
	Index    uint32
	InSource bool
}

func (e *BlockPresenceError) Error() string {
	return fmt.Sprintf("block %d is only present in %s", e.Index, side(e.InSource))
}

// BlockContentError means a block is allocated on both sides with different
// bitmaps or data.
type BlockContentError struct {
	Index uint32
}

func (e *BlockContentError) Error() string {
	return fmt.Sprintf("block %d content differs", e.Index)
}

// LocatorPresenceError means a parent locator has data on one side only.
type LocatorPresenceError struct {
	ID       int
	InSource bool
}

func (e *LocatorPresenceError) Error() string {
	return fmt.Sprintf("parent locator %d is only present in %s", e.ID, side(e.InSource))
}

type LocatorContentError struct {
	ID int
}

func (e *LocatorContentError) Error() string {
	return fmt.Sprintf("parent locator %d content differs", e.ID)
}

func side(inSource bool) string {
	if inSource {
		return "source"
	}
	return "destination"
}
