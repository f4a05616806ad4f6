package cli

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/gobwas/glob"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vorteil/vhd-tools/pkg/storage"
	"github.com/vorteil/vhd-tools/pkg/vhd"
	"github.com/vorteil/vhd-tools/pkg/vhdparser"
)

var (
	flagS3    string
	flagCodec string
	flagMatch string
)

// newS3Client is replaced in tests.
var newS3Client = storage.NewS3Client

// parseS3URL splits s3://bucket/prefix.
func parseS3URL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("expected s3://bucket/prefix, got '%s'", raw)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

// eventLogger prints events whose type matches pattern. Decoded footers and
// headers are dumped at debug level.
func eventLogger(pattern string) (vhdparser.Handler, error) {

	if pattern == "" {
		pattern = "*"
	}

	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid match pattern '%s': %v", pattern, err)
	}

	return func(ctx context.Context, ev *vhdparser.Event) error {

		if !g.Match(string(ev.Type)) {
			return nil
		}

		log.Printf("%s", ev)

		switch ev.Type {
		case vhdparser.EventFooter:
			if f, err := vhd.UnpackFooter(ev.Data); err == nil {
				log.Debugf("%s", spew.Sdump(f))
			}
		case vhdparser.EventHeader:
			if h, err := vhd.UnpackHeader(ev.Data); err == nil {
				log.Debugf("%s", spew.Sdump(h))
			}
		}

		return nil
	}, nil
}

func runParse(ctx context.Context, args []string, s3url, match string) error {

	logEvent, err := eventLogger(match)
	if err != nil {
		return err
	}

	if s3url != "" {
		bucket, prefix, err := parseS3URL(s3url)
		if err != nil {
			return err
		}
		client, err := newS3Client(storageConfig())
		if err != nil {
			return err
		}
		p, err := vhdparser.NewParser(vhdparser.ParserS3, &vhdparser.Args{
			S3:     client,
			Bucket: bucket,
			Prefix: prefix,
			Logger: log,
		})
		if err != nil {
			return err
		}
		return p.Parse(ctx, logEvent)
	}

	return storage.Use(func(s *storage.Scope) error {

		h, err := newHandler(ctx, s, args[0])
		if err != nil {
			return err
		}

		r, err := h.OpenReader(ctx, args[1])
		if err != nil {
			return err
		}
		s.Add(r)

		p, err := vhdparser.NewParser(vhdparser.ParserStream, &vhdparser.Args{
			Stream: r,
			Logger: log,
		})
		if err != nil {
			return err
		}

		return p.Parse(ctx, logEvent)
	})
}

var parseCmd = &cobra.Command{
	Use:   "parse URL PATH",
	Short: "List the structures of a VHD in the order they are stored",
	Long: `Read a dynamic VHD sequentially and print one line per structure: footer,
header, block allocation table, blocks and parent locators. With --s3 the
structures of an exported VHD are listed from a bucket instead, in no
particular order.`,
	Example: `  vhd-cli parse file:///backups vm1/disk.vhd
  vhd-cli parse --s3 s3://bucket/exports/vm1
  vhd-cli parse file:///backups vm1/disk.vhd --match 'parent*'`,
	Run: func(cmd *cobra.Command, args []string) {

		if len(args) < 2 && flagS3 == "" {
			_ = cmd.Usage()
			return
		}

		err := runParse(context.Background(), args, flagS3, flagMatch)
		if err != nil {
			SetError(err, 3)
			return
		}
	},
}

func runExport(ctx context.Context, args []string, codecName string) error {

	codec, err := vhdparser.ParseCodec(codecName)
	if err != nil {
		return err
	}

	bucket, prefix, err := parseS3URL(args[2])
	if err != nil {
		return err
	}

	client, err := newS3Client(storageConfig())
	if err != nil {
		return err
	}

	return storage.Use(func(s *storage.Scope) error {

		h, err := newHandler(ctx, s, args[0])
		if err != nil {
			return err
		}

		r, err := h.OpenReader(ctx, args[1])
		if err != nil {
			return err
		}
		s.Add(r)

		sink := vhdparser.NewObjectStoreSink(client, bucket, prefix, codec)
		sink.Logger = log

		p := vhdparser.NewStreamParser(r)
		p.Logger = log

		return p.Parse(ctx, sink.Handle)
	})
}

var exportCmd = &cobra.Command{
	Use:   "export URL PATH S3_URL",
	Short: "Store every structure of a VHD as an object",
	Long: `Read a dynamic VHD sequentially and upload each structure as its own object
named <offset>.<type>[.<codec>] below the S3 prefix. The result can be read
back with 'parse --s3'.`,
	Example: `  vhd-cli export file:///backups vm1/disk.vhd s3://bucket/exports/vm1 --codec zstd`,
	Run: func(cmd *cobra.Command, args []string) {

		if len(args) < 3 {
			_ = cmd.Usage()
			return
		}

		codec := viper.GetString(configExportCodec)
		if cmd.Flags().Changed("codec") {
			codec = flagCodec
		}

		err := runExport(context.Background(), args, codec)
		if err != nil {
			SetError(err, 4)
			return
		}
	},
}

func init() {
	parseCmd.Flags().StringVar(&flagS3, "s3", "", "list an exported VHD from s3://bucket/prefix")
	parseCmd.Flags().StringVar(&flagMatch, "match", "", "only print structures whose type matches the glob (e.g. 'block', 'parent*')")
	exportCmd.Flags().StringVar(&flagCodec, "codec", string(vhdparser.CodecGzip), "object compression (gz, zstd, none)")
}
