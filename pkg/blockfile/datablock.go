package blockfile

import (
	"fmt"
	"io"
	"math"
	"math/bits"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/calvinalkan/chromecache/internal/mmapfile"
)

// DataHeader is the decoded 8192-byte header of a data_N block file.
type DataHeader struct {
	MinorVersion   uint16
	MajorVersion   uint16
	FileNumber     uint16 // this file's data_N number
	NextFileNumber uint16 // next file holding blocks of this size, 0 if none
	BlockSize      uint32
	NumEntries     uint32
	MaxEntries     uint32
	Empty          [4]uint32
	Hints          [4]uint32
	Updating       uint32
	User           [5]uint32

	// Bitmap is the raw allocation bitmap: 2028 little-endian words, one
	// bit per block, least significant bit first. See DataFile.Allocated
	// for a set view.
	Bitmap [dataBitmapWords]uint32
}

// Version returns the file format version as "major.minor".
func (h DataHeader) Version() string { return formatVersion(h.MajorVersion, h.MinorVersion) }

// DataFile reads entry records out of one data_N block file. Record reads
// are independent positioned reads; a DataFile is safe for concurrent use
// once constructed.
type DataFile struct {
	DataHeader

	r      io.ReaderAt
	closer io.Closer
}

// NewDataFile decodes and validates the 8192-byte header at the start of r
// and returns a reader for the blocks behind it. r is retained for record
// reads and must stay open as long as the DataFile is used.
func NewDataFile(r io.ReaderAt) (*DataFile, error) {
	buf := make([]byte, dataHeaderSize)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("data file header: %w", truncated(err))
	}
	hdr, err := parseDataHeader(buf)
	if err != nil {
		return nil, err
	}
	return &DataFile{DataHeader: hdr, r: r}, nil
}

// OpenDataFile memory-maps the block file at path. Close releases the
// mapping.
func OpenDataFile(path string) (*DataFile, error) {
	m, err := mmapfile.Open(path)
	if err != nil {
		return nil, err
	}
	f, err := NewDataFile(m)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.closer = m
	return f, nil
}

// Close releases the underlying file when the DataFile owns one. A
// DataFile built with NewDataFile owns nothing and Close is a no-op.
func (f *DataFile) Close() error {
	if f.closer == nil {
		return nil
	}
	err := f.closer.Close()
	f.closer = nil
	return err
}

// ReadRecord reads and decodes the 256-byte entry record at byte offset
// off, which normally comes from CacheAddress.BlockOffset. The record is
// not validated beyond its fixed size; any bit pattern decodes.
func (f *DataFile) ReadRecord(off uint64) (*Entry, error) {
	if off > math.MaxInt64 {
		return nil, fmt.Errorf("record offset 0x%x: %w", off, ErrTruncated)
	}
	buf := make([]byte, entryRecordSize)
	if _, err := f.r.ReadAt(buf, int64(off)); err != nil {
		return nil, fmt.Errorf("record at 0x%08x: %w", off, truncated(err))
	}
	return parseRecord(buf), nil
}

// Allocated returns the allocation bitmap as a set of block numbers. The
// set is built fresh on every call; callers may keep or mutate it.
func (f *DataFile) Allocated() *roaring.Bitmap {
	bm := roaring.New()
	for word, v := range f.Bitmap {
		for v != 0 {
			bit := bits.TrailingZeros32(v)
			bm.Add(uint32(word*32 + bit))
			v &= v - 1
		}
	}
	return bm
}

// BlockRange is a maximal run of consecutively allocated blocks,
// [Start, End).
type BlockRange struct {
	Start uint32
	End   uint32
}

// Len returns the number of blocks in the run.
func (r BlockRange) Len() uint32 { return r.End - r.Start }

// BlockRanges summarizes the allocation bitmap as maximal runs of
// allocated blocks, ascending.
func (f *DataFile) BlockRanges() []BlockRange {
	var ranges []BlockRange
	it := f.Allocated().Iterator()
	for it.HasNext() {
		b := it.Next()
		if n := len(ranges); n > 0 && ranges[n-1].End == b {
			ranges[n-1].End = b + 1
		} else {
			ranges = append(ranges, BlockRange{Start: b, End: b + 1})
		}
	}
	return ranges
}

// Entry is a decoded cache entry record.
type Entry struct {
	Hash         uint32       // SuperFastHash of the full key
	Next         CacheAddress // next entry in the same hash bucket
	RankingsNode CacheAddress
	ReuseCount   uint32
	RefetchCount uint32
	State        uint32
	CreationTime uint64       // microseconds since 1601-01-01 UTC
	KeySize      uint32       // full key length; may exceed the inline buffer
	LongKey      CacheAddress // where the key lives when it is not inline
	DataSizes    [4]uint32    // per-stream payload sizes
	DataAddrs    [4]CacheAddress
	Flags        uint32
	SelfHash     uint32

	// Key is the inline key buffer cut at its first NUL. For long keys it
	// holds only the inline prefix; see KeyTruncated.
	Key []byte

	reserved [entryReservedSize]byte
	rawKey   [entryKeySize]byte
}

// CreatedAt returns the entry creation time in UTC.
func (e *Entry) CreatedAt() time.Time { return WebkitTime(e.CreationTime) }

// KeyTruncated reports whether the full key is longer than the inline
// buffer. The continuation at LongKey is not read by this package.
func (e *Entry) KeyTruncated() bool { return e.KeySize > entryKeySize }

// KeyText returns the inline key as text. Bytes outside 7-bit ASCII are
// replaced with U+FFFD, one rune per byte, and clean reports false when
// any replacement happened. Callers that need the exact bytes use Key.
func (e *Entry) KeyText() (text string, clean bool) {
	clean = true
	for _, c := range e.Key {
		if c >= 0x80 {
			clean = false
			break
		}
	}
	if clean {
		return string(e.Key), true
	}

	var b strings.Builder
	b.Grow(len(e.Key))
	for _, c := range e.Key {
		if c < 0x80 {
			b.WriteByte(c)
		} else {
			b.WriteRune(utf8.RuneError)
		}
	}
	return b.String(), false
}
