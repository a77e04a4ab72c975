// Package cachetest assembles synthetic blockfile cache directories for
// tests outside pkg/blockfile. The builders write structure bytes by hand
// so the tests exercise the real decoders against layouts the decoders
// did not produce.
package cachetest

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Layout constants are duplicated here on purpose: fixtures must not be
// built with the code they exercise.
const (
	indexMagic   = 0xc103cac3
	dataMagic    = 0xc104cac3
	indexHdrSize = 256
	lruSize      = 112
	tableOffset  = indexHdrSize + lruSize
	dataHdrSize  = 8192
	recordSize   = 256
)

// Addr assembles an initialized block-file cache address from its bit
// fields.
func Addr(fileType, selector, units, block uint32) uint32 {
	return 0x80000000 | fileType<<28 | units<<24 | selector<<16 | block
}

// EntryAddr is the shape entry addresses take in practice: one 256-byte
// block in data_<selector>.
func EntryAddr(selector, block uint32) uint32 {
	return Addr(2, selector, 1, block)
}

// IndexSpec describes an index file to build. Zero values fall back to
// the smallest valid shape: major version 2, empty table.
type IndexSpec struct {
	Minor      uint16
	Major      uint16 // 0 means 2
	NumEntries uint32
	StoredSize uint32
	LastFile   uint32
	TableSize  uint32
	CreationUS uint64
	LruHeads   [5]uint32

	// Slots is the raw index table in position order; zeroes are written
	// as zeroes. Trailing is appended verbatim after the table.
	Slots    []uint32
	Trailing []byte
}

// BuildIndex serializes spec into index file bytes.
func BuildIndex(spec IndexSpec) []byte {
	if spec.Major == 0 {
		spec.Major = 2
	}

	buf := make([]byte, tableOffset+4*len(spec.Slots))
	le := binary.LittleEndian
	le.PutUint32(buf[0x00:], indexMagic)
	le.PutUint16(buf[0x04:], spec.Minor)
	le.PutUint16(buf[0x06:], spec.Major)
	le.PutUint32(buf[0x08:], spec.NumEntries)
	le.PutUint32(buf[0x0c:], spec.StoredSize)
	le.PutUint32(buf[0x10:], spec.LastFile)
	le.PutUint32(buf[0x1c:], spec.TableSize)
	le.PutUint64(buf[0x28:], spec.CreationUS)
	for i, v := range spec.LruHeads {
		le.PutUint32(buf[indexHdrSize+0x20+4*i:], v)
	}
	for i, v := range spec.Slots {
		le.PutUint32(buf[tableOffset+4*i:], v)
	}
	return append(buf, spec.Trailing...)
}

// DataSpec describes a data_N block file to build.
type DataSpec struct {
	Minor       uint16
	Major       uint16 // 0 means 2
	FileNumber  uint16
	NextFile    uint16
	BlockSize   uint32 // 0 means 256
	NumEntries  uint32
	MaxEntries  uint32
	BitmapWords map[int]uint32

	// Blocks sizes the storage area appended after the header, in
	// BlockSize units.
	Blocks uint32
}

// BuildData serializes spec into block file bytes.
func BuildData(spec DataSpec) []byte {
	if spec.Major == 0 {
		spec.Major = 2
	}
	if spec.BlockSize == 0 {
		spec.BlockSize = 256
	}

	buf := make([]byte, dataHdrSize+int(spec.Blocks*spec.BlockSize))
	le := binary.LittleEndian
	le.PutUint32(buf[0x00:], dataMagic)
	le.PutUint16(buf[0x04:], spec.Minor)
	le.PutUint16(buf[0x06:], spec.Major)
	le.PutUint16(buf[0x08:], spec.FileNumber)
	le.PutUint16(buf[0x0a:], spec.NextFile)
	le.PutUint32(buf[0x0c:], spec.BlockSize)
	le.PutUint32(buf[0x10:], spec.NumEntries)
	le.PutUint32(buf[0x14:], spec.MaxEntries)
	for word, v := range spec.BitmapWords {
		le.PutUint32(buf[0x50+4*word:], v)
	}
	return buf
}

// RecordSpec describes a 256-byte entry record.
type RecordSpec struct {
	Hash       uint32
	Next       uint32
	Rankings   uint32
	State      uint32
	CreationUS uint64
	KeySize    uint32 // 0 means len(Key)
	LongKey    uint32
	DataSizes  [4]uint32
	DataAddrs  [4]uint32
	Flags      uint32
	SelfHash   uint32
	Key        string
}

// BuildRecord serializes spec into record bytes.
func BuildRecord(t *testing.T, spec RecordSpec) []byte {
	t.Helper()
	require.LessOrEqual(t, len(spec.Key), 160, "inline key too long for a record fixture")

	if spec.KeySize == 0 {
		spec.KeySize = uint32(len(spec.Key))
	}

	buf := make([]byte, recordSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0x00:], spec.Hash)
	le.PutUint32(buf[0x04:], spec.Next)
	le.PutUint32(buf[0x08:], spec.Rankings)
	le.PutUint32(buf[0x14:], spec.State)
	le.PutUint64(buf[0x18:], spec.CreationUS)
	le.PutUint32(buf[0x20:], spec.KeySize)
	le.PutUint32(buf[0x24:], spec.LongKey)
	for i, v := range spec.DataSizes {
		le.PutUint32(buf[0x28+4*i:], v)
	}
	for i, v := range spec.DataAddrs {
		le.PutUint32(buf[0x38+4*i:], v)
	}
	le.PutUint32(buf[0x48:], spec.Flags)
	le.PutUint32(buf[0x5c:], spec.SelfHash)
	copy(buf[0x60:], spec.Key)
	return buf
}

// PlaceRecord writes rec at the offset of the given 256-byte block.
func PlaceRecord(t *testing.T, file []byte, block uint32, rec []byte) {
	t.Helper()
	off := dataHdrSize + int(block)*recordSize
	require.LessOrEqual(t, off+recordSize, len(file), "block %d outside the fixture", block)
	copy(file[off:], rec)
}

// WriteDir materializes a cache directory: each map entry becomes a file
// named key under dir.
func WriteDir(t *testing.T, dir string, files map[string][]byte) {
	t.Helper()
	for name, raw := range files {
		err := os.WriteFile(filepath.Join(dir, name), raw, 0o600)
		require.NoError(t, err)
	}
}

// SmallCache writes a two-entry cache into dir and returns the keys in
// bucket order. Handy for tests that only need a plausible directory.
func SmallCache(t *testing.T, dir string) []string {
	t.Helper()

	data := BuildData(DataSpec{FileNumber: 1, NumEntries: 2, MaxEntries: 64, Blocks: 8,
		BitmapWords: map[int]uint32{0: 1<<2 | 1<<5}})
	PlaceRecord(t, data, 2, BuildRecord(t, RecordSpec{
		Hash:       0x00000001,
		State:      0,
		CreationUS: 13217200000000000, // 2019-11-02T20:26:40Z
		DataSizes:  [4]uint32{64, 0, 0, 0},
		Key:        "https://example.com/a",
	}))
	PlaceRecord(t, data, 5, BuildRecord(t, RecordSpec{
		Hash:       0x00000003,
		State:      0,
		CreationUS: 13217200100000000,
		DataSizes:  [4]uint32{0, 1500, 0, 0},
		Key:        "https://example.com/b",
	}))

	index := BuildIndex(IndexSpec{
		NumEntries: 2,
		StoredSize: 1564,
		LastFile:   1,
		TableSize:  8,
		CreationUS: 13217100000000000,
		Slots: []uint32{
			0, EntryAddr(1, 2), 0, EntryAddr(1, 5),
			0, 0, 0, 0,
		},
	})

	WriteDir(t, dir, map[string][]byte{
		"index":  index,
		"data_1": data,
	})
	return []string{"https://example.com/a", "https://example.com/b"}
}
