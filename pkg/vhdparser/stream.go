package vhdparser

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"sort"

	"github.com/armon/circbuf"
	"github.com/pkg/errors"

	"github.com/vorteil/vhd-tools/pkg/elog"
	"github.com/vorteil/vhd-tools/pkg/vhd"
)

// StreamParser reads an image front to back and emits its structures in
// offset order.
//
// Blocks and parent locators must follow the block allocation table with no
// gaps between them. Free space between regions desynchronises the read and
// is not supported.
type StreamParser struct {
	r      io.Reader
	Logger elog.View
}

func NewStreamParser(r io.Reader) *StreamParser {
	return &StreamParser{r: r}
}

type region struct {
	typ    EventType
	offset int64
	size   int64
}

func (p *StreamParser) read(what string, n int64) ([]byte, error) {
	buf := make([]byte, n)
	_, err := io.ReadFull(p.r, buf)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", what)
	}
	return buf, nil
}

// regions builds the index of blocks and parent locators, sorted by offset.
func regions(header *vhd.Header, bat []byte) ([]region, error) {

	batEnd := header.DataStart()
	size := header.BlockAndBitmapSize()

	var index []region

	for i := uint32(0); i < header.MaxTableEntries; i++ {
		sector := vhd.BATEntry(bat, i)
		if sector == vhd.BlockUnused {
			continue
		}
		off := int64(sector) * vhd.SectorSize
		if off < batEnd {
			return nil, fmt.Errorf("block %d at %d: %w", i, off, ErrRegionOverlapsBAT)
		}
		index = append(index, region{typ: EventBlock, offset: off, size: size})
	}

	for id := range header.ParentLocatorEntry {
		entry := &header.ParentLocatorEntry[id]
		if entry.Empty() {
			continue
		}
		if entry.Offset() < batEnd {
			return nil, fmt.Errorf("parent locator %d at %d: %w", id, entry.Offset(), ErrRegionOverlapsBAT)
		}
		index = append(index, region{typ: EventParentLocator, offset: entry.Offset(), size: entry.Size()})
	}

	sort.SliceStable(index, func(i, j int) bool {
		return index[i].offset < index[j].offset
	})

	return index, nil
}

// Parse reads the whole stream. It fails if the image is corrupt or if any
// handler fails.
func (p *StreamParser) Parse(ctx context.Context, handlers ...Handler) error {

	log := elog.OrDiscard(p.Logger)

	footer, err := p.read("footer", vhd.FooterSize)
	if err != nil {
		return err
	}

	err = dispatch(ctx, handlers, &Event{Type: EventFooter, Data: footer, Offset: 0})
	if err != nil {
		return err
	}

	buf, err := p.read("header", vhd.HeaderSize)
	if err != nil {
		return err
	}

	header, err := vhd.UnpackHeader(buf)
	if err != nil {
		return err
	}

	err = header.CheckLimits()
	if err != nil {
		return err
	}

	err = dispatch(ctx, handlers, &Event{Type: EventHeader, Data: buf, Offset: vhd.HeaderOffset})
	if err != nil {
		return err
	}

	if header.TableOffset < vhd.MinTableOffset {
		return fmt.Errorf("table offset %d: %w", header.TableOffset, vhd.ErrInvalidTableOffset)
	}

	padding := int64(header.TableOffset) - vhd.MinTableOffset
	if padding > 0 {
		log.Debugf("skipping %d bytes before the block allocation table", padding)
		_, err = io.CopyN(ioutil.Discard, p.r, padding)
		if err != nil {
			return errors.Wrap(err, "skipping padding")
		}
	}

	bat, err := p.read("block allocation table", header.BATSize())
	if err != nil {
		return err
	}

	err = dispatch(ctx, handlers, &Event{Type: EventBAT, Data: bat, Offset: int64(header.TableOffset)})
	if err != nil {
		return err
	}

	index, err := regions(header, bat)
	if err != nil {
		return err
	}

	log.Debugf("reading %d regions", len(index))

	for _, rg := range index {
		if err = ctx.Err(); err != nil {
			return err
		}
		data, err := p.read(string(rg.typ), rg.size)
		if err != nil {
			return err
		}
		err = dispatch(ctx, handlers, &Event{Type: rg.typ, Data: data, Offset: rg.offset, Size: rg.size})
		if err != nil {
			return err
		}
	}

	tail, err := circbuf.NewBuffer(vhd.FooterSize)
	if err != nil {
		return err
	}

	_, err = io.Copy(tail, p.r)
	if err != nil {
		return errors.Wrap(err, "reading trailing footer")
	}

	if tail.TotalWritten() < vhd.FooterSize || !bytes.Equal(footer, tail.Bytes()) {
		return ErrFooterMismatch
	}

	return dispatch(ctx, handlers, &Event{Type: EventEnd})
}
