package blockfile_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/chromecache/pkg/blockfile"
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

// blockAddr assembles an initialized block-file cache address from its
// bit fields.
func blockAddr(fileType, selector, units, block uint32) uint32 {
	return 0x80000000 | fileType<<28 | units<<24 | selector<<16 | block
}

// entryAddr is the shape entry addresses take in practice: one 256-byte
// block in data_<selector>.
func entryAddr(selector, block uint32) uint32 {
	return blockAddr(2, selector, 1, block)
}

type indexSpec struct {
	minor      uint16
	major      uint16 // 0 means 2
	numEntries uint32
	storedSize uint32
	lastFile   uint32
	tableSize  uint32
	creationUS uint64
	lruHeads   [5]uint32

	// slots is the raw index table in position order; zeroes are written
	// as zeroes. trailing is appended verbatim after the table.
	slots    []uint32
	trailing []byte
}

func buildIndex(spec indexSpec) []byte {
	if spec.major == 0 {
		spec.major = 2
	}

	buf := make([]byte, tableOffset+4*len(spec.slots))
	le := binary.LittleEndian
	le.PutUint32(buf[0x00:], indexMagic)
	le.PutUint16(buf[0x04:], spec.minor)
	le.PutUint16(buf[0x06:], spec.major)
	le.PutUint32(buf[0x08:], spec.numEntries)
	le.PutUint32(buf[0x0c:], spec.storedSize)
	le.PutUint32(buf[0x10:], spec.lastFile)
	le.PutUint32(buf[0x1c:], spec.tableSize)
	le.PutUint64(buf[0x28:], spec.creationUS)
	for i, v := range spec.lruHeads {
		le.PutUint32(buf[indexHdrSize+0x20+4*i:], v)
	}
	for i, v := range spec.slots {
		le.PutUint32(buf[tableOffset+4*i:], v)
	}
	return append(buf, spec.trailing...)
}

type dataSpec struct {
	minor       uint16
	major       uint16 // 0 means 2
	fileNumber  uint16
	nextFile    uint16
	blockSize   uint32 // 0 means 256
	numEntries  uint32
	maxEntries  uint32
	bitmapWords map[int]uint32

	// blocks sizes the storage area appended after the header, in
	// blockSize units.
	blocks uint32
}

func buildData(spec dataSpec) []byte {
	if spec.major == 0 {
		spec.major = 2
	}
	if spec.blockSize == 0 {
		spec.blockSize = 256
	}

	buf := make([]byte, dataHdrSize+int(spec.blocks*spec.blockSize))
	le := binary.LittleEndian
	le.PutUint32(buf[0x00:], dataMagic)
	le.PutUint16(buf[0x04:], spec.minor)
	le.PutUint16(buf[0x06:], spec.major)
	le.PutUint16(buf[0x08:], spec.fileNumber)
	le.PutUint16(buf[0x0a:], spec.nextFile)
	le.PutUint32(buf[0x0c:], spec.blockSize)
	le.PutUint32(buf[0x10:], spec.numEntries)
	le.PutUint32(buf[0x14:], spec.maxEntries)
	for word, v := range spec.bitmapWords {
		le.PutUint32(buf[0x50+4*word:], v)
	}
	return buf
}

type recordSpec struct {
	hash       uint32
	next       uint32
	rankings   uint32
	state      uint32
	creationUS uint64
	keySize    uint32 // 0 means len(key)
	longKey    uint32
	dataSizes  [4]uint32
	dataAddrs  [4]uint32
	flags      uint32
	selfHash   uint32
	key        string
}

func buildRecord(t *testing.T, spec recordSpec) []byte {
	t.Helper()
	require.LessOrEqual(t, len(spec.key), 160, "inline key too long for a record fixture")

	if spec.keySize == 0 {
		spec.keySize = uint32(len(spec.key))
	}

	buf := make([]byte, recordSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0x00:], spec.hash)
	le.PutUint32(buf[0x04:], spec.next)
	le.PutUint32(buf[0x08:], spec.rankings)
	le.PutUint32(buf[0x14:], spec.state)
	le.PutUint64(buf[0x18:], spec.creationUS)
	le.PutUint32(buf[0x20:], spec.keySize)
	le.PutUint32(buf[0x24:], spec.longKey)
	for i, v := range spec.dataSizes {
		le.PutUint32(buf[0x28+4*i:], v)
	}
	for i, v := range spec.dataAddrs {
		le.PutUint32(buf[0x38+4*i:], v)
	}
	le.PutUint32(buf[0x48:], spec.flags)
	le.PutUint32(buf[0x5c:], spec.selfHash)
	copy(buf[0x60:], spec.key)
	return buf
}

// placeRecord writes rec at the offset of the given 256-byte block.
func placeRecord(t *testing.T, file []byte, block uint32, rec []byte) {
	t.Helper()
	off := dataHdrSize + int(block)*recordSize
	require.LessOrEqual(t, off+recordSize, len(file), "block %d outside the fixture", block)
	copy(file[off:], rec)
}

func parseIndex(t *testing.T, raw []byte) *blockfile.Index {
	t.Helper()
	idx, err := blockfile.ParseIndex(bytes.NewReader(raw))
	require.NoError(t, err)
	return idx
}

func openData(t *testing.T, raw []byte) *blockfile.DataFile {
	t.Helper()
	f, err := blockfile.NewDataFile(bytes.NewReader(raw))
	require.NoError(t, err)
	return f
}

func collectVisits(seq blockfile.Seq) []blockfile.Visit {
	var visits []blockfile.Visit
	seq(func(v blockfile.Visit) bool {
		visits = append(visits, v)
		return true
	})
	return visits
}
