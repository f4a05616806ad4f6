// Package vhdcompare checks two dynamic images for structural equality. Every
// comparison stops at the first difference and reports where it is.
package vhdcompare

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"context"

	"github.com/pkg/errors"

	"github.com/vorteil/vhd-tools/pkg/elog"
	"github.com/vorteil/vhd-tools/pkg/vhd"
)

func lookup(fields []vhd.Field, name string) vhd.Value {
	for _, f := range fields {
		if f.Name == name {
			return f.Value
		}
	}
	return vhd.Value{}
}

// Compare walks the source fields and checks each against the destination
// field of the same name. Nested structures extend path with "/<name>".
func Compare(src, dest []vhd.Field, path string) error {

	for _, f := range src {

		p := path + "/" + f.Name
		a := f.Value
		b := lookup(dest, f.Name)

		if a.Kind != b.Kind {
			return &TypeMismatchError{Path: p, Source: a.Kind, Dest: b.Kind}
		}

		switch a.Kind {
		case vhd.KindStruct:
			err := Compare(a.Fields, b.Fields, p)
			if err != nil {
				return err
			}
		case vhd.KindBytes:
			if !bytes.Equal(a.Bytes, b.Bytes) {
				return &ValueMismatchError{Path: p, Source: a, Dest: b}
			}
		default:
			if a.Scalar != b.Scalar {
				return &ValueMismatchError{Path: p, Source: a, Dest: b}
			}
		}
	}

	return nil
}

func Footers(src, dest *vhd.Footer) error {
	return Compare(src.Fields(), dest.Fields(), "footer")
}

func Headers(src, dest *vhd.Header) error {
	return Compare(src.Fields(), dest.Fields(), "header")
}

// Blocks compares every block of the source table. Allocation is checked
// before any content is read.
func Blocks(ctx context.Context, src, dest vhd.Reader) error {

	n := src.Header().MaxTableEntries

	for i := uint32(0); i < n; i++ {

		inSource := src.ContainsBlock(i)
		if inSource != dest.ContainsBlock(i) {
			return &BlockPresenceError{Index: i, InSource: inSource}
		}
		if !inSource {
			continue
		}

		a, err := src.ReadBlock(ctx, i)
		if err != nil {
			return errors.Wrapf(err, "reading source block %d", i)
		}

		b, err := dest.ReadBlock(ctx, i)
		if err != nil {
			return errors.Wrapf(err, "reading destination block %d", i)
		}

		if !bytes.Equal(a.Buffer, b.Buffer) {
			return &BlockContentError{Index: i}
		}
	}

	return nil
}

// ParentLocators compares the data of all eight parent locators.
func ParentLocators(ctx context.Context, src, dest vhd.Reader) error {

	for id := 0; id < vhd.ParentLocatorCount; id++ {

		a, err := src.ReadParentLocatorData(ctx, id)
		if err != nil {
			return errors.Wrapf(err, "reading source parent locator %d", id)
		}

		b, err := dest.ReadParentLocatorData(ctx, id)
		if err != nil {
			return errors.Wrapf(err, "reading destination parent locator %d", id)
		}

		if (a == nil) != (b == nil) {
			return &LocatorPresenceError{ID: id, InSource: a != nil}
		}

		if !bytes.Equal(a, b) {
			return &LocatorContentError{ID: id}
		}
	}

	return nil
}

// Vhds compares headers, footers, blocks and parent locators in that order.
// It loads both block allocation tables.
func Vhds(ctx context.Context, src, dest vhd.Reader, log elog.View) error {

	log = elog.OrDiscard(log)

	err := Headers(src.Header(), dest.Header())
	if err != nil {
		return err
	}

	err = Footers(src.Footer(), dest.Footer())
	if err != nil {
		return err
	}

	log.Debugf("headers and footers match")

	err = src.ReadBlockAllocationTable(ctx)
	if err != nil {
		return errors.Wrap(err, "reading source block allocation table")
	}

	err = dest.ReadBlockAllocationTable(ctx)
	if err != nil {
		return errors.Wrap(err, "reading destination block allocation table")
	}

	err = Blocks(ctx, src, dest)
	if err != nil {
		return err
	}

	log.Debugf("blocks match")

	return ParentLocators(ctx, src, dest)
}
