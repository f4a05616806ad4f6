// Package s3mem is an in-memory bucket implementing the parts of
// s3iface.S3API used by this module. It is meant for tests.
package s3mem

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// Client stores objects of any bucket in one map keyed by bucket and key.
// Calling methods that are not implemented panics.
type Client struct {
	s3iface.S3API

	// PageSize caps the number of keys per listing page. Zero means 1000.
	PageSize int
	// PageOrder, when set, may reorder the keys of each listing page.
	PageOrder func(keys []string)

	lock    sync.Mutex
	objects map[string][]byte
	lists   int
}

func New() *Client {
	return &Client{objects: make(map[string][]byte)}
}

func id(bucket, key string) string {
	return bucket + "\x00" + key
}

// Put stores an object directly.
func (c *Client) Put(bucket, key string, data []byte) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.objects[id(bucket, key)] = append([]byte(nil), data...)
}

// Get returns a stored object.
func (c *Client) Get(bucket, key string) ([]byte, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	data, ok := c.objects[id(bucket, key)]
	return data, ok
}

// Keys returns the sorted keys of bucket.
func (c *Client) Keys(bucket string) []string {
	c.lock.Lock()
	defer c.lock.Unlock()

	var keys []string
	for k := range c.objects {
		s := strings.SplitN(k, "\x00", 2)
		if s[0] == bucket {
			keys = append(keys, s[1])
		}
	}
	sort.Strings(keys)
	return keys
}

// ListCalls returns how many listing requests were served.
func (c *Client) ListCalls() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.lists
}

func noSuchKey(key string) error {
	return awserr.New(s3.ErrCodeNoSuchKey, fmt.Sprintf("key %s does not exist", key), nil)
}

func (c *Client) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	var data []byte
	if in.Body != nil {
		var err error
		data, err = ioutil.ReadAll(in.Body)
		if err != nil {
			return nil, err
		}
	}
	c.Put(aws.StringValue(in.Bucket), aws.StringValue(in.Key), data)
	return &s3.PutObjectOutput{}, nil
}

func (c *Client) HeadObjectWithContext(ctx aws.Context, in *s3.HeadObjectInput, opts ...request.Option) (*s3.HeadObjectOutput, error) {
	data, ok := c.Get(aws.StringValue(in.Bucket), aws.StringValue(in.Key))
	if !ok {
		return nil, awserr.New("NotFound", "Not Found", nil)
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (c *Client) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {

	data, ok := c.Get(aws.StringValue(in.Bucket), aws.StringValue(in.Key))
	if !ok {
		return nil, noSuchKey(aws.StringValue(in.Key))
	}

	if rng := aws.StringValue(in.Range); rng != "" {
		var begin, end int64
		_, err := fmt.Sscanf(rng, "bytes=%d-%d", &begin, &end)
		if err != nil || begin > end || end >= int64(len(data)) {
			return nil, awserr.New("InvalidRange", "invalid range "+rng, err)
		}
		data = data[begin : end+1]
	}

	return &s3.GetObjectOutput{
		Body:          ioutil.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (c *Client) ListObjectsV2WithContext(ctx aws.Context, in *s3.ListObjectsV2Input, opts ...request.Option) (*s3.ListObjectsV2Output, error) {

	c.lock.Lock()
	c.lists++
	c.lock.Unlock()

	var keys []string
	for _, k := range c.Keys(aws.StringValue(in.Bucket)) {
		if strings.HasPrefix(k, aws.StringValue(in.Prefix)) {
			keys = append(keys, k)
		}
	}

	start := 0
	if token := aws.StringValue(in.ContinuationToken); token != "" {
		var err error
		start, err = strconv.Atoi(token)
		if err != nil || start > len(keys) {
			return nil, awserr.New("InvalidArgument", "bad continuation token", err)
		}
	}

	size := c.PageSize
	if size <= 0 {
		size = 1000
	}
	if in.MaxKeys != nil && int(*in.MaxKeys) < size {
		size = int(*in.MaxKeys)
	}

	end := start + size
	if end > len(keys) {
		end = len(keys)
	}

	page := append([]string(nil), keys[start:end]...)
	if c.PageOrder != nil {
		c.PageOrder(page)
	}

	out := &s3.ListObjectsV2Output{
		KeyCount:    aws.Int64(int64(len(page))),
		IsTruncated: aws.Bool(end < len(keys)),
	}
	for _, k := range page {
		out.Contents = append(out.Contents, &s3.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}

	return out, nil
}
