package cli

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"context"

	"github.com/cloudfoundry/bytefmt"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"

	"github.com/vorteil/vhd-tools/pkg/elog"
	"github.com/vorteil/vhd-tools/pkg/storage"
	"github.com/vorteil/vhd-tools/pkg/vhd"
	"github.com/vorteil/vhd-tools/pkg/vhdcompare"
	"github.com/vorteil/vhd-tools/pkg/vhdcopy"
)

const noDifference = "there is no difference between these vhd"

var (
	flagDirectory   bool
	flagConcurrency int
)

// newHandler opens the storage at url and releases it with the scope.
func newHandler(ctx context.Context, s *storage.Scope, url string) (storage.Handler, error) {
	h, err := storage.NewHandler(ctx, url, storageConfig())
	if err != nil {
		return nil, err
	}
	s.Add(h)
	return h, nil
}

func openVhd(ctx context.Context, s *storage.Scope, url, path string) (vhd.Reader, error) {

	h, err := newHandler(ctx, s, url)
	if err != nil {
		return nil, err
	}

	r, err := vhd.OpenVhd(ctx, h, path)
	if err != nil {
		return nil, err
	}
	s.Add(r)

	log.Debugf("opened %s %s", url, path)

	return r, nil
}

func runCompare(ctx context.Context, args []string) error {

	return storage.Use(func(s *storage.Scope) error {

		src, err := openVhd(ctx, s, args[0], args[1])
		if err != nil {
			return err
		}

		dest, err := openVhd(ctx, s, args[2], args[3])
		if err != nil {
			return err
		}

		err = vhdcompare.Vhds(ctx, src, dest, log)
		if err != nil {
			return err
		}

		log.Printf(noDifference)
		return nil
	})
}

var compareCmd = &cobra.Command{
	Use:   "compare SOURCE_URL SOURCE_PATH DEST_URL DEST_PATH",
	Short: "Check that two VHDs hold the same structures and blocks",
	Long: `Compare the header, footer, allocated blocks and parent locators of two dynamic
VHDs. The first difference found is reported.`,
	Example: `  vhd-cli compare file:///backups vm1/disk.vhd s3://bucket/backups vm1/disk.vhd`,
	Run: func(cmd *cobra.Command, args []string) {

		if len(args) < 4 {
			_ = cmd.Usage()
			return
		}

		err := runCompare(context.Background(), args)
		if err != nil {
			SetError(err, 1)
			return
		}
	},
}

// concurrency returns the --concurrency flag if set, otherwise the
// configured value.
func concurrency(f *pflag.FlagSet) int {
	if f.Changed("concurrency") {
		return flagConcurrency
	}
	return viper.GetInt(configCopyConcurrency)
}

func newProgress(total int64) (*mpb.Progress, *mpb.Bar) {
	if elog.IsJSON || total == 0 {
		return nil, nil
	}
	p := mpb.New(mpb.WithWidth(60))
	bar := p.AddBar(total,
		mpb.PrependDecorators(
			decor.Name("copying blocks", decor.WC{W: 16, C: decor.DidentRight}),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.Percentage(), "done"),
		),
	)
	return p, bar
}

func countBlocks(ctx context.Context, r vhd.Reader) (int64, error) {
	err := r.ReadBlockAllocationTable(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	for i := uint32(0); i < r.Header().MaxTableEntries; i++ {
		if r.ContainsBlock(i) {
			n++
		}
	}
	return n, nil
}

func runCopy(ctx context.Context, args []string, directory bool, workers int) error {

	return storage.Use(func(s *storage.Scope) error {

		src, err := openVhd(ctx, s, args[0], args[1])
		if err != nil {
			return err
		}

		h, err := newHandler(ctx, s, args[2])
		if err != nil {
			return err
		}

		dest, err := vhd.Create(ctx, h, args[3], directory)
		if err != nil {
			return err
		}
		s.Add(dest)

		total, err := countBlocks(ctx, src)
		if err != nil {
			return err
		}

		opts := &vhdcopy.Options{
			Concurrency: workers,
			Logger:      log,
		}

		p, bar := newProgress(total)
		if bar != nil {
			opts.Progress = func(uint32) {
				bar.Increment()
			}
		}

		err = vhdcopy.Copy(ctx, src, dest, opts)
		if p != nil {
			if err != nil {
				bar.Abort(false)
			}
			p.Wait()
		}
		if err != nil {
			return err
		}

		log.Printf("copied %d blocks (%s) to %s %s", total,
			bytefmt.ByteSize(uint64(total*src.Header().BlockAndBitmapSize())), args[2], args[3])

		return nil
	})
}

var copyCmd = &cobra.Command{
	Use:   "copy SOURCE_URL SOURCE_PATH DEST_URL DEST_PATH",
	Short: "Copy the allocated content of a VHD",
	Long: `Copy a dynamic VHD block by block. Sparse blocks are skipped. The destination is
a single VHD file, or with --directory a directory holding one file per
structure and per block.`,
	Example: `  vhd-cli copy file:///backups vm1/disk.vhd s3://bucket/backups vm1/disk.vhd -d`,
	Run: func(cmd *cobra.Command, args []string) {

		if len(args) < 4 {
			_ = cmd.Usage()
			return
		}

		err := runCopy(context.Background(), args, flagDirectory, concurrency(cmd.Flags()))
		if err != nil {
			SetError(err, 2)
			return
		}
	},
}

func init() {
	f := copyCmd.Flags()
	f.BoolVarP(&flagDirectory, "directory", "d", false, "write the destination as a directory")
	f.IntVar(&flagConcurrency, "concurrency", vhdcopy.DefaultConcurrency, "number of blocks copied at once")
}
