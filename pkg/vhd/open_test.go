package vhd_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorteil/vhd-tools/pkg/storage"
	"github.com/vorteil/vhd-tools/pkg/storage/s3mem"
	"github.com/vorteil/vhd-tools/pkg/vhd"
	"github.com/vorteil/vhd-tools/pkg/vhd/vhdtest"
)

var timeZero = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

func TestOpenVhdDispatch(t *testing.T) {

	ctx := context.Background()
	h, cleanup := tempHandler(t)
	defer cleanup()

	require.NoError(t, vhdtest.Build(ctx, h, "file.vhd", vhdtest.Image{Entries: 3, Allocated: vhdtest.All}))
	require.NoError(t, vhdtest.Build(ctx, h, "dir.vhd", vhdtest.Image{Entries: 3, Allocated: vhdtest.All, Directory: true}))
	require.NoError(t, vhd.WriteAlias(ctx, h, "sub/link.alias.vhd", "../dir.vhd"))

	r, err := vhd.OpenVhd(ctx, h, "file.vhd")
	require.NoError(t, err)
	assert.IsType(t, &vhd.File{}, r)
	r.Close()

	r, err = vhd.OpenVhd(ctx, h, "dir.vhd")
	require.NoError(t, err)
	assert.IsType(t, &vhd.Directory{}, r)
	r.Close()

	r, err = vhd.OpenVhd(ctx, h, "sub/link.alias.vhd")
	require.NoError(t, err)
	assert.IsType(t, &vhd.Directory{}, r)
	require.NoError(t, r.ReadBlockAllocationTable(ctx))
	assert.True(t, r.ContainsBlock(2))
	r.Close()

	_, err = vhd.OpenVhd(ctx, h, "missing.vhd")
	assert.True(t, storage.IsNotExist(err))

	_, err = vhd.OpenFile(ctx, h, "dir.vhd")
	assert.Error(t, err)
}

func TestAliasChainRejected(t *testing.T) {

	ctx := context.Background()
	h, cleanup := tempHandler(t)
	defer cleanup()

	require.NoError(t, h.WriteFile(ctx, "a.alias.vhd", []byte("b.alias.vhd")))

	_, err := vhd.OpenVhd(ctx, h, "a.alias.vhd")
	assert.True(t, errors.Is(err, vhd.ErrAliasChain))

	err = vhd.WriteAlias(ctx, h, "c.alias.vhd", "a.alias.vhd")
	assert.True(t, errors.Is(err, vhd.ErrAliasChain))

	err = vhd.WriteAlias(ctx, h, "c.vhd", "disk.vhd")
	assert.Error(t, err)
}

func TestDirectoryOnObjectStore(t *testing.T) {

	ctx := context.Background()
	client := s3mem.New()
	h := storage.NewS3Handler(client, "bucket", "backups")

	img := vhdtest.Image{Entries: 5, Allocated: vhdtest.Sparse, Locators: 3, Directory: true}
	require.NoError(t, vhdtest.Build(ctx, h, "vm/disk.vhd", img))

	_, ok := client.Get("bucket", "backups/vm/disk.vhd/blocks/0")
	assert.True(t, ok)
	_, ok = client.Get("bucket", "backups/vm/disk.vhd/blocks/1")
	assert.False(t, ok)
	_, ok = client.Get("bucket", "backups/vm/disk.vhd/parentLocatorEntry2")
	assert.True(t, ok)

	r, err := vhd.OpenVhd(ctx, h, "vm/disk.vhd")
	require.NoError(t, err)
	defer r.Close()
	assert.IsType(t, &vhd.Directory{}, r)
	require.NoError(t, r.ReadBlockAllocationTable(ctx))

	for i := uint32(0); i < img.Entries; i++ {
		assert.Equal(t, vhdtest.Sparse(i), r.ContainsBlock(i))
	}

	b, err := r.ReadBlock(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, vhdtest.BlockBuffer(img, 3), b.Buffer)

	_, err = r.ReadBlock(ctx, 4)
	assert.True(t, errors.Is(err, vhd.ErrBlockNotAllocated))

	data, err := r.ReadParentLocatorData(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, vhdtest.LocatorData(2), data)

	data, err = r.ReadParentLocatorData(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestFileOnObjectStore(t *testing.T) {

	ctx := context.Background()
	client := s3mem.New()
	h := storage.NewS3Handler(client, "bucket", "")

	img := vhdtest.Image{Entries: 4, Allocated: vhdtest.All}
	require.NoError(t, vhdtest.Build(ctx, h, "disk.vhd", img))

	r, err := vhd.OpenVhd(ctx, h, "disk.vhd")
	require.NoError(t, err)
	defer r.Close()
	assert.IsType(t, &vhd.File{}, r)
	require.NoError(t, r.ReadBlockAllocationTable(ctx))

	b, err := r.ReadBlock(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, vhdtest.BlockBuffer(img, 3), b.Buffer)
}

func TestOpenRejectsOversizedHeader(t *testing.T) {

	ctx := context.Background()
	h, cleanup := tempHandler(t)
	defer cleanup()

	img := vhdtest.Image{Entries: 2}
	header := vhdtest.Header(img)
	header.MaxTableEntries = vhd.MaxTableEntries + 1
	footer := vhdtest.Footer(img)

	require.NoError(t, h.WriteFile(ctx, "disk.vhd", append(footer.Bytes(), header.Bytes()...)))

	_, err := vhd.OpenVhd(ctx, h, "disk.vhd")
	assert.True(t, errors.Is(err, vhd.ErrHeaderOutOfRange))

	require.NoError(t, h.MkdirAll(ctx, "dir.vhd"))
	require.NoError(t, h.WriteFile(ctx, "dir.vhd/footer", footer.Bytes()))
	require.NoError(t, h.WriteFile(ctx, "dir.vhd/header", header.Bytes()))

	_, err = vhd.OpenVhd(ctx, h, "dir.vhd")
	assert.True(t, errors.Is(err, vhd.ErrHeaderOutOfRange))
}
