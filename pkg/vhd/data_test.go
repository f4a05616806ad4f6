package vhd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructureSizes(t *testing.T) {
	assert.Len(t, new(Footer).Bytes(), FooterSize)
	assert.Len(t, new(Header).Bytes(), HeaderSize)
}

func TestFooterRoundTrip(t *testing.T) {

	footer := NewDynamicFooter(64<<20, time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC))
	assert.True(t, footer.ValidChecksum())
	assert.True(t, footer.IsDynamic())

	buf := footer.Bytes()
	assert.Equal(t, "conectix", string(buf[:8]))

	decoded, err := UnpackFooter(buf)
	require.NoError(t, err)
	assert.Equal(t, footer, decoded)

	footer.CurrentSize++
	assert.False(t, footer.ValidChecksum())

	_, err = UnpackFooter(buf[:FooterSize-1])
	assert.Error(t, err)
}

func TestHeaderRoundTrip(t *testing.T) {

	header := NewDynamicHeader(100, DefaultBlockSize)
	header.ParentLocatorEntry[3] = ParentLocatorEntry{
		PlatformCode:       PlatformCodeW2ku,
		PlatformDataSpace:  2,
		PlatformDataLength: 20,
		PlatformDataOffset: 9,
	}
	header.UpdateChecksum()

	buf := header.Bytes()
	assert.Equal(t, "cxsparse", string(buf[:8]))

	decoded, err := UnpackHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, header, decoded)
	assert.True(t, decoded.ValidChecksum())

	entry := decoded.ParentLocatorEntry[3]
	assert.False(t, entry.Empty())
	assert.EqualValues(t, 9*SectorSize, entry.Offset())
	assert.EqualValues(t, 2*SectorSize, entry.Size())
	assert.True(t, decoded.ParentLocatorEntry[0].Empty())

	_, err = UnpackHeader(buf[:100])
	assert.Error(t, err)
}

func TestGeometryHelpers(t *testing.T) {

	var tts = []struct {
		entries uint32
		size    int64
	}{
		{0, 512},
		{1, 512},
		{128, 512},
		{129, 1024},
		{1024, 4096},
	}

	for _, tt := range tts {
		assert.Equal(t, tt.size, BATSize(tt.entries), "entries %d", tt.entries)
	}

	assert.EqualValues(t, 512, BitmapSize(512))
	assert.EqualValues(t, 512, BitmapSize(4096))
	assert.EqualValues(t, 512, BitmapSize(DefaultBlockSize))
	assert.EqualValues(t, 1024, BitmapSize(2*DefaultBlockSize))

	header := NewDynamicHeader(10, DefaultBlockSize)
	assert.EqualValues(t, 512+DefaultBlockSize, header.BlockAndBitmapSize())
	assert.EqualValues(t, MinTableOffset+512, header.DataStart())
}

func TestBATEntries(t *testing.T) {

	bat := NewBAT(3)
	assert.Len(t, bat, 512)
	for i := uint32(0); i < 3; i++ {
		assert.EqualValues(t, BlockUnused, BATEntry(bat, i))
	}

	SetBATEntry(bat, 1, 42)
	assert.EqualValues(t, 42, BATEntry(bat, 1))
	assert.Equal(t, []byte{0, 0, 0, 42}, bat[4:8])
}

func TestFieldsFollowLayout(t *testing.T) {

	footer := new(Footer)
	footer.CurrentSize = 7
	fields := footer.Fields()
	assert.Len(t, fields, 16)
	assert.Equal(t, "currentSize", fields[9].Name)
	assert.Equal(t, KindScalar, fields[9].Value.Kind)
	assert.EqualValues(t, 7, fields[9].Value.Scalar)
	assert.Equal(t, KindBytes, fields[0].Value.Kind)

	header := new(Header)
	header.ParentLocatorEntry[7].PlatformDataOffset = 99
	var locators *Field
	for i, f := range header.Fields() {
		if f.Name == "parentLocatorEntry" {
			locators = &header.Fields()[i]
		}
	}
	require.NotNil(t, locators)
	assert.Equal(t, KindStruct, locators.Value.Kind)
	require.Len(t, locators.Value.Fields, ParentLocatorCount)
	last := locators.Value.Fields[7]
	assert.Equal(t, "7", last.Name)
	assert.Equal(t, "platformDataOffset", last.Value.Fields[4].Name)
	assert.EqualValues(t, 99, last.Value.Fields[4].Value.Scalar)
}
