package vhdparser

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync/atomic"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/cloudfoundry/bytefmt"
	"github.com/pkg/errors"

	"github.com/vorteil/vhd-tools/pkg/elog"
)

// ObjectStoreSink stores every event it handles as one object, in the layout
// ObjectStoreParser reads back.
type ObjectStoreSink struct {
	client s3iface.S3API
	bucket string
	prefix string

	Codec  Codec
	Logger elog.View

	objects int64
	written int64
}

func NewObjectStoreSink(client s3iface.S3API, bucket, prefix string, codec Codec) *ObjectStoreSink {
	return &ObjectStoreSink{
		client: client,
		bucket: bucket,
		prefix: prefix,
		Codec:  codec,
	}
}

// Key returns the object key of an event.
func (s *ObjectStoreSink) Key(ev *Event) string {
	name := fmt.Sprintf("%d.%s", ev.Offset, ev.Type)
	if s.Codec != CodecNone {
		name += "." + string(s.Codec)
	}
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Handle is a Handler.
func (s *ObjectStoreSink) Handle(ctx context.Context, ev *Event) error {

	log := elog.OrDiscard(s.Logger)

	if ev.Type == EventEnd {
		log.Infof("exported %d objects, %s", atomic.LoadInt64(&s.objects), bytefmt.ByteSize(uint64(atomic.LoadInt64(&s.written))))
		return nil
	}

	data, err := s.Codec.compress(ev.Data)
	if err != nil {
		return errors.Wrapf(err, "compressing %s", ev)
	}

	key := s.Key(ev)
	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return errors.Wrapf(err, "uploading '%s'", key)
	}

	atomic.AddInt64(&s.objects, 1)
	atomic.AddInt64(&s.written, int64(len(data)))
	log.Debugf("uploaded %s (%s)", key, bytefmt.ByteSize(uint64(len(data))))

	return nil
}
