package vhdparser

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"fmt"
	"io/ioutil"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Codec is the compression applied to an exported object, named by the key
// suffix.
type Codec string

// Supported codecs.
const (
	CodecNone Codec = ""
	CodecGzip Codec = "gz"
	CodecZstd Codec = "zstd"
)

// UnknownCodecError is returned for a key suffix that names no codec.
type UnknownCodecError struct {
	Codec string
}

func (e *UnknownCodecError) Error() string {
	return fmt.Sprintf("unknown codec '%s'", e.Codec)
}

// ParseCodec accepts the codec names used in keys and on the command line.
// "none" is an alias for CodecNone.
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "", "none":
		return CodecNone, nil
	case string(CodecGzip), "gzip":
		return CodecGzip, nil
	case string(CodecZstd):
		return CodecZstd, nil
	}
	return CodecNone, &UnknownCodecError{Codec: s}
}

func (c Codec) compress(data []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return data, nil
	case CodecGzip:
		buf := new(bytes.Buffer)
		gz, err := gzip.NewWriterLevel(buf, gzip.BestSpeed)
		if err != nil {
			return nil, err
		}
		_, err = gz.Write(data)
		if err != nil {
			_ = gz.Close()
			return nil, err
		}
		err = gz.Close()
		if err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CodecZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	}
	return nil, &UnknownCodecError{Codec: string(c)}
}

func (c Codec) decompress(data []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return data, nil
	case CodecGzip:
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "gzip")
		}
		defer gz.Close()
		out, err := ioutil.ReadAll(gz)
		if err != nil {
			return nil, errors.Wrap(err, "gzip")
		}
		return out, nil
	case CodecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, errors.Wrap(err, "zstd")
		}
		return out, nil
	}
	return nil, &UnknownCodecError{Codec: string(c)}
}
