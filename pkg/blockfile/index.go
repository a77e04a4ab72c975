package blockfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"slices"
	"time"
)

// IndexHeader is the decoded 256-byte header of an index file.
type IndexHeader struct {
	MinorVersion uint16
	MajorVersion uint16

	// NumEntries and StoredSize are the counts the cache recorded.
	// Informational; the traversal does not trust them.
	NumEntries uint32
	StoredSize uint32

	// LastCreatedFile is the number of the most recently created separate
	// file, see LastCreatedFileName.
	LastCreatedFile uint32

	Unknown1 uint32
	Unknown2 uint32

	// TableSize is the declared table length. The reader does not trust it:
	// the table is read to end of file regardless (see ParseIndex).
	TableSize uint32

	Unknown3 uint32
	Unknown4 uint32

	// CreationTime is microseconds since 1601-01-01 UTC.
	CreationTime uint64

	reserved [indexReservedSize]byte
}

// Version returns the file format version as "major.minor".
func (h IndexHeader) Version() string { return formatVersion(h.MajorVersion, h.MinorVersion) }

// CreatedAt returns the cache creation time in UTC.
func (h IndexHeader) CreatedAt() time.Time { return WebkitTime(h.CreationTime) }

// LastCreatedFileName returns the filename of the most recently created
// separate file, f_%06x of LastCreatedFile.
func (h IndexHeader) LastCreatedFileName() string {
	return fmt.Sprintf("f_%06x", h.LastCreatedFile)
}

// LruData is the decoded 112-byte eviction control block that follows the
// index header. It is surfaced read-only; this package never walks the
// eviction lists.
type LruData struct {
	FilledFlag    uint32
	Sizes         [5]uint32
	Heads         [5]CacheAddress
	Tails         [5]CacheAddress
	Transaction   CacheAddress
	Operation     uint32
	OperationList uint32

	pad0 [lruPad0Size]byte
	pad1 [lruPad1Size]byte
}

// IndexTable holds the occupied slots of the index hash table, keyed by
// table position. Zero slots are not stored.
type IndexTable map[uint32]CacheAddress

// Buckets returns the occupied table positions in ascending order.
func (t IndexTable) Buckets() []uint32 {
	buckets := make([]uint32, 0, len(t))
	for pos := range t {
		buckets = append(buckets, pos)
	}
	slices.Sort(buckets)
	return buckets
}

// Index is a fully parsed index file.
type Index struct {
	IndexHeader
	Lru   LruData
	Table IndexTable
}

// ParseIndex reads an index file from r: the 256-byte header, the 112-byte
// LRU block, then uint32 cache addresses until end of file. The header's
// declared table size is ignored for reading; truncated images routinely
// disagree with it. A partial trailing value is ignored too. Zero slots
// are skipped. The whole stream is consumed; r is not retained.
func ParseIndex(r io.Reader) (*Index, error) {
	buf := make([]byte, indexTableOffset)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("index header: %w", truncated(err))
	}
	hdr, err := parseIndexHeader(buf)
	if err != nil {
		return nil, err
	}

	idx := &Index{
		IndexHeader: hdr,
		Lru:         parseLruData(buf[indexHeaderSize:]),
		Table:       make(IndexTable),
	}

	var slot [4]byte
	for pos := uint32(0); ; pos++ {
		_, err := io.ReadFull(r, slot[:])
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("index table slot %d: %w", pos, err)
		}
		if v := binary.LittleEndian.Uint32(slot[:]); v != 0 {
			idx.Table[pos] = CacheAddress(v)
		}
	}
	return idx, nil
}

// OpenIndex opens and fully parses the index file at path. The file handle
// is closed before returning; an Index holds no resources.
func OpenIndex(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	idx, err := ParseIndex(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return idx, nil
}
