package vhdparser

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"context"
	"fmt"
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"

	"github.com/vorteil/vhd-tools/pkg/elog"
)

// ObjectStoreParser emits one event per object below a bucket prefix. Events
// come in listing order, which says nothing about their offsets.
//
// Keys are either "<offset>.<type>[.<codec>]" or "<offset>/<type>[.<codec>]".
type ObjectStoreParser struct {
	client s3iface.S3API
	bucket string
	prefix string
	Logger elog.View
}

func NewObjectStoreParser(client s3iface.S3API, bucket, prefix string) *ObjectStoreParser {
	return &ObjectStoreParser{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// parseKey extracts the event type, offset and codec from an object key.
func parseKey(key string) (EventType, int64, Codec, error) {

	segments := strings.Split(key, "/")
	parts := strings.Split(segments[len(segments)-1], ".")

	var offset string
	if _, err := strconv.ParseInt(parts[0], 10, 64); err == nil {
		offset = parts[0]
		parts = parts[1:]
	} else if len(segments) > 1 {
		offset = segments[len(segments)-2]
	}

	if len(parts) < 1 || len(parts) > 2 {
		return "", 0, CodecNone, fmt.Errorf("malformed key '%s'", key)
	}

	typ, ok := eventTypes[parts[0]]
	if !ok {
		return "", 0, CodecNone, fmt.Errorf("unknown event type '%s' in key '%s'", parts[0], key)
	}

	off, err := strconv.ParseInt(offset, 10, 64)
	if err != nil || off < 0 {
		return "", 0, CodecNone, fmt.Errorf("invalid offset '%s' in key '%s'", offset, key)
	}

	codec := CodecNone
	if len(parts) == 2 {
		codec, err = ParseCodec(parts[1])
		if err != nil || codec == CodecNone {
			return "", 0, CodecNone, &UnknownCodecError{Codec: parts[1]}
		}
	}

	return typ, off, codec, nil
}

func (p *ObjectStoreParser) fetch(ctx context.Context, key string) ([]byte, error) {

	out, err := p.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching '%s'", key)
	}
	defer out.Body.Close()

	data, err := ioutil.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading '%s'", key)
	}

	return data, nil
}

func (p *ObjectStoreParser) object(ctx context.Context, key string, handlers []Handler) error {

	typ, off, codec, err := parseKey(key)
	if err != nil {
		return err
	}

	data, err := p.fetch(ctx, key)
	if err != nil {
		return err
	}

	data, err = codec.decompress(data)
	if err != nil {
		return errors.Wrapf(err, "decompressing '%s'", key)
	}

	return dispatch(ctx, handlers, &Event{Type: typ, Data: data, Offset: off})
}

// Parse lists every page below the prefix and emits EventEnd once the
// listing is exhausted.
func (p *ObjectStoreParser) Parse(ctx context.Context, handlers ...Handler) error {

	log := elog.OrDiscard(p.Logger)

	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
	}
	if p.prefix != "" {
		in.Prefix = aws.String(p.prefix + "/")
	}

	for page := 1; ; page++ {

		out, err := p.client.ListObjectsV2WithContext(ctx, in)
		if err != nil {
			return errors.Wrapf(err, "listing s3://%s/%s", p.bucket, p.prefix)
		}

		log.Debugf("page %d: %d objects", page, len(out.Contents))

		for _, obj := range out.Contents {
			err = p.object(ctx, aws.StringValue(obj.Key), handlers)
			if err != nil {
				return err
			}
		}

		if aws.StringValue(out.NextContinuationToken) == "" {
			break
		}
		in.ContinuationToken = out.NextContinuationToken
	}

	return dispatch(ctx, handlers, &Event{Type: EventEnd})
}
