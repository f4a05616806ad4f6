package vhd_test

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorteil/vhd-tools/pkg/storage"
	"github.com/vorteil/vhd-tools/pkg/vhd"
	"github.com/vorteil/vhd-tools/pkg/vhd/vhdtest"
)

func tempHandler(t *testing.T) (storage.Handler, func()) {
	dir, err := ioutil.TempDir("", "vhd-test")
	require.NoError(t, err)
	return storage.NewLocalHandler(dir), func() { os.RemoveAll(dir) }
}

func TestFileReadBack(t *testing.T) {

	ctx := context.Background()
	h, cleanup := tempHandler(t)
	defer cleanup()

	img := vhdtest.Image{Entries: 10, Allocated: vhdtest.Sparse, Locators: 2, Seed: 3}
	require.NoError(t, vhdtest.Build(ctx, h, "disk.vhd", img))

	f, err := vhd.OpenFile(ctx, h, "disk.vhd")
	require.NoError(t, err)
	defer f.Close()

	assert.EqualValues(t, 10, f.Header().MaxTableEntries)
	assert.EqualValues(t, vhd.DiskTypeDynamic, f.Footer().DiskType)

	// block queries need the BAT
	_, err = f.ReadBlock(ctx, 0)
	assert.True(t, errors.Is(err, vhd.ErrBATNotLoaded))

	require.NoError(t, f.ReadBlockAllocationTable(ctx))

	for i := uint32(0); i < img.Entries; i++ {
		assert.Equal(t, vhdtest.Sparse(i), f.ContainsBlock(i), "block %d", i)
		if !f.ContainsBlock(i) {
			_, err = f.ReadBlock(ctx, i)
			assert.True(t, errors.Is(err, vhd.ErrBlockNotAllocated))
			continue
		}
		b, err := f.ReadBlock(ctx, i)
		require.NoError(t, err)
		assert.Equal(t, vhdtest.BlockBuffer(img, i), b.Buffer)
		assert.Len(t, b.Bitmap(), 512)
		assert.Len(t, b.Data(), vhdtest.SmallBlockSize)
	}
	assert.False(t, f.ContainsBlock(img.Entries))

	for id := 0; id < vhd.ParentLocatorCount; id++ {
		data, err := f.ReadParentLocatorData(ctx, id)
		require.NoError(t, err)
		if id < img.Locators {
			assert.Equal(t, vhdtest.LocatorData(id), data)
		} else {
			assert.Nil(t, data)
		}
	}

	_, err = f.ReadParentLocator(ctx, 8)
	assert.True(t, errors.Is(err, vhd.ErrBadParentLocator))
}

func TestFileTrailingFooter(t *testing.T) {

	ctx := context.Background()
	h, cleanup := tempHandler(t)
	defer cleanup()

	img := vhdtest.Image{Entries: 4, Allocated: vhdtest.All, Locators: 1}
	require.NoError(t, vhdtest.Build(ctx, h, "disk.vhd", img))

	data, err := h.ReadFile(ctx, "disk.vhd")
	require.NoError(t, err)

	header := vhdtest.Header(img)
	expected := header.DataStart() + vhd.SectorSize + 4*header.BlockAndBitmapSize() + vhd.FooterSize
	assert.EqualValues(t, expected, len(data))
	assert.Equal(t, data[:vhd.FooterSize], data[len(data)-vhd.FooterSize:])
}

func TestBlocksIterator(t *testing.T) {

	ctx := context.Background()
	h, cleanup := tempHandler(t)
	defer cleanup()

	img := vhdtest.Image{Entries: 9, Allocated: vhdtest.Sparse}
	require.NoError(t, vhdtest.Build(ctx, h, "disk.vhd", img))

	r, err := vhd.OpenVhd(ctx, h, "disk.vhd")
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.ReadBlockAllocationTable(ctx))

	collect := func() []uint32 {
		var ids []uint32
		it := r.Blocks()
		for it.Next(ctx) {
			ids = append(ids, it.Block().ID)
		}
		assert.NoError(t, it.Err())
		return ids
	}

	expected := []uint32{0, 2, 3, 5, 6, 8}
	assert.Equal(t, expected, collect())
	// restartable per call
	assert.Equal(t, expected, collect())
}

func TestConcurrentBlockWrites(t *testing.T) {

	ctx := context.Background()
	h, cleanup := tempHandler(t)
	defer cleanup()

	img := vhdtest.Image{Entries: 32, BlockSize: vhdtest.SmallBlockSize}

	w, err := vhd.CreateFile(ctx, h, "disk.vhd")
	require.NoError(t, err)
	w.SetHeader(vhdtest.Header(img))
	w.SetFooter(vhd.NewDynamicFooter(32*vhdtest.SmallBlockSize, timeZero))

	var wg sync.WaitGroup
	errs := make(chan error, img.Entries)
	for i := uint32(0); i < img.Entries; i++ {
		wg.Add(1)
		go func(i uint32) {
			defer wg.Done()
			errs <- w.WriteEntireBlock(ctx, &vhd.Block{ID: i, Buffer: vhdtest.BlockBuffer(img, i), BitmapSize: 512})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	require.NoError(t, w.WriteFooter(ctx))
	require.NoError(t, w.WriteHeader(ctx))
	require.NoError(t, w.WriteBlockAllocationTable(ctx))
	require.NoError(t, w.Close())

	r, err := vhd.OpenFile(ctx, h, "disk.vhd")
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.ReadBlockAllocationTable(ctx))

	for i := uint32(0); i < img.Entries; i++ {
		b, err := r.ReadBlock(ctx, i)
		require.NoError(t, err)
		assert.Equal(t, vhdtest.BlockBuffer(img, i), b.Buffer, "block %d", i)
	}
}

func TestWriteValidation(t *testing.T) {

	ctx := context.Background()
	h, cleanup := tempHandler(t)
	defer cleanup()

	w, err := vhd.CreateFile(ctx, h, "disk.vhd")
	require.NoError(t, err)
	defer w.Close()

	assert.True(t, errors.Is(w.WriteHeader(ctx), vhd.ErrHeaderNotSet))
	assert.True(t, errors.Is(w.WriteFooter(ctx), vhd.ErrFooterNotSet))

	img := vhdtest.Image{Entries: 2, Locators: 1}
	w.SetHeader(vhdtest.Header(img))

	err = w.WriteEntireBlock(ctx, &vhd.Block{ID: 2, Buffer: vhdtest.BlockBuffer(img, 0)})
	assert.Error(t, err)

	err = w.WriteEntireBlock(ctx, &vhd.Block{ID: 0, Buffer: make([]byte, 10)})
	assert.Error(t, err)

	err = w.WriteParentLocator(ctx, &vhd.ParentLocator{ID: 0, Data: make([]byte, 1024)})
	assert.True(t, errors.Is(err, vhd.ErrParentLocatorTooLarge))

	assert.NoError(t, w.WriteParentLocator(ctx, &vhd.ParentLocator{ID: 5}))
	assert.NoError(t, w.WriteParentLocator(ctx, nil))

	bad := vhdtest.Header(img)
	bad.TableOffset = 512
	w.SetHeader(bad)
	err = w.WriteEntireBlock(ctx, &vhd.Block{ID: 0, Buffer: vhdtest.BlockBuffer(img, 0)})
	assert.True(t, errors.Is(err, vhd.ErrInvalidTableOffset))
}
