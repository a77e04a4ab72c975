package blockfile_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/chromecache/pkg/blockfile"
)

func Test_NewDataFile_Decodes_Header_Fields(t *testing.T) {
	t.Parallel()

	f := openData(t, buildData(dataSpec{
		minor:      1,
		fileNumber: 3,
		nextFile:   4,
		blockSize:  1024,
		numEntries: 12,
		maxEntries: 1000,
	}))

	assert.Equal(t, "2.1", f.Version())
	assert.Equal(t, uint16(3), f.FileNumber)
	assert.Equal(t, uint16(4), f.NextFileNumber)
	assert.Equal(t, uint32(1024), f.BlockSize)
	assert.Equal(t, uint32(12), f.NumEntries)
	assert.Equal(t, uint32(1000), f.MaxEntries)
}

func Test_NewDataFile_Returns_BadSignature_When_Given_An_Index_File(t *testing.T) {
	t.Parallel()

	// A realistically sized index: its table region covers the whole
	// 8192-byte data header read, so the failure is the signature.
	raw := buildIndex(indexSpec{slots: make([]uint32, 2000)})
	_, err := blockfile.NewDataFile(bytes.NewReader(raw))
	require.ErrorIs(t, err, blockfile.ErrBadSignature)
}

func Test_NewDataFile_Returns_Truncated_When_Header_Short(t *testing.T) {
	t.Parallel()

	raw := buildData(dataSpec{})[:5000]
	_, err := blockfile.NewDataFile(bytes.NewReader(raw))
	require.ErrorIs(t, err, blockfile.ErrTruncated)
}

func Test_NewDataFile_Returns_UnsupportedVersion_When_Version_Unknown(t *testing.T) {
	t.Parallel()

	_, err := blockfile.NewDataFile(bytes.NewReader(buildData(dataSpec{major: 3})))
	require.ErrorIs(t, err, blockfile.ErrUnsupportedVersion)
}

func Test_ReadRecord_Decodes_Entry_At_Block_Offset(t *testing.T) {
	t.Parallel()

	const key = "https://example.com/static/app.js"
	raw := buildData(dataSpec{fileNumber: 1, blocks: 4})
	placeRecord(t, raw, 2, buildRecord(t, recordSpec{
		hash:       0xdeadbeef,
		next:       entryAddr(1, 3),
		state:      2,
		creationUS: 11644473600000000,
		dataSizes:  [4]uint32{64, 1024, 0, 0},
		dataAddrs:  [4]uint32{entryAddr(1, 9), 0x80000000 | 0x2a, 0, 0},
		key:        key,
	}))
	f := openData(t, raw)

	addr := blockfile.CacheAddress(entryAddr(1, 2))
	e, err := f.ReadRecord(addr.BlockOffset())
	require.NoError(t, err)

	assert.Equal(t, uint32(0xdeadbeef), e.Hash)
	assert.Equal(t, blockfile.CacheAddress(entryAddr(1, 3)), e.Next)
	assert.Equal(t, uint32(2), e.State)
	assert.Equal(t, key, string(e.Key))
	assert.Equal(t, uint32(len(key)), e.KeySize)
	assert.False(t, e.KeyTruncated())
	assert.Equal(t, [4]uint32{64, 1024, 0, 0}, e.DataSizes)
	assert.Equal(t, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), e.CreatedAt())

	text, clean := e.KeyText()
	assert.True(t, clean)
	assert.Equal(t, key, text)
}

func Test_ReadRecord_Returns_Truncated_When_Record_Extends_Past_EOF(t *testing.T) {
	t.Parallel()

	f := openData(t, buildData(dataSpec{blocks: 1}))
	size := uint64(dataHdrSize + recordSize)

	_, err := f.ReadRecord(size + 512)
	require.ErrorIs(t, err, blockfile.ErrTruncated)

	_, err = f.ReadRecord(size - 10)
	require.ErrorIs(t, err, blockfile.ErrTruncated)
}

func Test_Entry_KeyText_Replaces_Bytes_Outside_ASCII(t *testing.T) {
	t.Parallel()

	raw := buildData(dataSpec{blocks: 1})
	placeRecord(t, raw, 0, buildRecord(t, recordSpec{key: "caf\xe9 menu"}))
	f := openData(t, raw)

	e, err := f.ReadRecord(dataHdrSize)
	require.NoError(t, err)

	text, clean := e.KeyText()
	assert.False(t, clean)
	assert.Equal(t, "caf� menu", text)
	// The raw bytes stay available untouched.
	assert.Equal(t, []byte("caf\xe9 menu"), e.Key)
}

func Test_Entry_KeyTruncated_When_Declared_Size_Exceeds_Inline_Buffer(t *testing.T) {
	t.Parallel()

	longKey := strings.Repeat("k", 160)
	raw := buildData(dataSpec{blocks: 1})
	placeRecord(t, raw, 0, buildRecord(t, recordSpec{
		key:     longKey,
		keySize: 500,
		longKey: entryAddr(1, 7),
	}))
	f := openData(t, raw)

	e, err := f.ReadRecord(dataHdrSize)
	require.NoError(t, err)

	assert.True(t, e.KeyTruncated())
	assert.Equal(t, uint32(500), e.KeySize)
	assert.Equal(t, blockfile.CacheAddress(entryAddr(1, 7)), e.LongKey)
	assert.Equal(t, longKey, string(e.Key))
}

func Test_Allocated_Exposes_Bitmap_As_Block_Set(t *testing.T) {
	t.Parallel()

	f := openData(t, buildData(dataSpec{
		bitmapWords: map[int]uint32{0: 0b1011, 1: 1 << 5},
	}))

	assert.Equal(t, []uint32{0, 1, 3, 37}, f.Allocated().ToArray())
}

func Test_BlockRanges_Summarizes_Contiguous_Runs(t *testing.T) {
	t.Parallel()

	f := openData(t, buildData(dataSpec{
		bitmapWords: map[int]uint32{0: 0b111011, 63: 1 << 31},
	}))

	want := []blockfile.BlockRange{
		{Start: 0, End: 2},
		{Start: 3, End: 6},
		{Start: 2047, End: 2048},
	}
	got := f.BlockRanges()
	assert.Equal(t, want, got)
	assert.Equal(t, uint32(2), got[0].Len())
}

func Test_OpenDataFile_Maps_File_From_Disk(t *testing.T) {
	t.Parallel()

	raw := buildData(dataSpec{fileNumber: 1, blocks: 1})
	placeRecord(t, raw, 0, buildRecord(t, recordSpec{key: "on-disk"}))

	path := filepath.Join(t.TempDir(), "data_1")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	f, err := blockfile.OpenDataFile(path)
	require.NoError(t, err)

	e, err := f.ReadRecord(dataHdrSize)
	require.NoError(t, err)
	assert.Equal(t, "on-disk", string(e.Key))

	require.NoError(t, f.Close())
	require.NoError(t, f.Close(), "closing twice is fine")
}
