// Package vhdparser turns dynamic VHD images into a sequence of events, one
// per on-disk structure, either from a sequential byte stream or from an
// object store holding one object per structure.
package vhdparser

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/vorteil/vhd-tools/pkg/elog"
)

// EventType names the structure an event carries.
type EventType string

// Event types.
const (
	EventFooter        EventType = "footer"
	EventHeader        EventType = "header"
	EventBAT           EventType = "bat"
	EventBlock         EventType = "block"
	EventParentLocator EventType = "parentLocator"
	EventEnd           EventType = "end"
)

var eventTypes = map[string]EventType{
	string(EventFooter):        EventFooter,
	string(EventHeader):        EventHeader,
	string(EventBAT):           EventBAT,
	string(EventBlock):         EventBlock,
	string(EventParentLocator): EventParentLocator,
}

var (
	ErrRegionOverlapsBAT = errors.New("region overlaps the block allocation table")
	ErrFooterMismatch    = errors.New("trailing footer does not match the leading footer")
)

// Event is one structure read from an image. Data and Offset are zero for
// EventEnd. Size is only set by the stream parser for block and parent
// locator regions.
type Event struct {
	Type   EventType
	Data   []byte
	Offset int64
	Size   int64
}

func (ev *Event) String() string {
	if ev.Type == EventEnd {
		return string(ev.Type)
	}
	return fmt.Sprintf("%s@%d (%d bytes)", ev.Type, ev.Offset, len(ev.Data))
}

// Handler consumes events. A parser does not read further until the handler
// returns; a non-nil error aborts the parse.
type Handler func(ctx context.Context, ev *Event) error

// dispatch calls every handler in order and stops at the first error.
func dispatch(ctx context.Context, handlers []Handler, ev *Event) error {
	for _, fn := range handlers {
		err := fn(ctx, ev)
		if err != nil {
			return err
		}
	}
	return nil
}

// Parser emits the events of one image to its handlers.
type Parser interface {
	Parse(ctx context.Context, handlers ...Handler) error
}

// ParserType selects a Parser implementation.
type ParserType string

const (
	ParserStream ParserType = "stream"
	ParserS3     ParserType = "s3"
)

// Args configures NewParser. Stream is required for ParserStream; S3, Bucket
// and Prefix for ParserS3.
type Args struct {
	Stream io.Reader

	S3     s3iface.S3API
	Bucket string
	Prefix string

	Logger elog.View
}

// NewParser returns the parser of the given type.
func NewParser(kind ParserType, args *Args) (Parser, error) {

	if args == nil {
		args = new(Args)
	}

	switch kind {
	case ParserStream:
		if args.Stream == nil {
			return nil, errors.New("stream parser needs a stream")
		}
		p := NewStreamParser(args.Stream)
		p.Logger = args.Logger
		return p, nil
	case ParserS3:
		if args.S3 == nil || args.Bucket == "" {
			return nil, errors.New("s3 parser needs a client and a bucket")
		}
		p := NewObjectStoreParser(args.S3, args.Bucket, args.Prefix)
		p.Logger = args.Logger
		return p, nil
	default:
		return nil, fmt.Errorf("parser type '%s' is not supported", kind)
	}
}
