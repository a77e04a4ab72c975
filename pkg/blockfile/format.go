package blockfile

import (
	"encoding/binary"
	"fmt"
	"time"
)

// On-disk layout of the blockfile cache format, versions 2.0 and 2.1.
// All integers are little-endian. Offsets below are authoritative; no
// other file hard-codes structure geometry.

// File signatures at offset 0 of each file kind.
const (
	IndexSignature uint32 = 0xc103cac3 // index file
	DataSignature  uint32 = 0xc104cac3 // data_N block file
)

// Structure sizes, exported for tooling that carves raw regions out of
// cache files.
const (
	IndexHeaderSize = indexHeaderSize // index file header
	LruDataSize     = lruDataSize     // eviction control block
	DataHeaderSize  = dataHeaderSize  // data_N block file header
	EntryRecordSize = entryRecordSize // entry record
)

// Index file header, 256 bytes at offset 0.
const (
	idxOffSignature   = 0x00 // uint32, IndexSignature
	idxOffMinor       = 0x04 // uint16
	idxOffMajor       = 0x06 // uint16
	idxOffNumEntries  = 0x08 // uint32
	idxOffStoredSize  = 0x0c // uint32, bytes of stored data
	idxOffLastFile    = 0x10 // uint32, last created f_ file number
	idxOffUnknown1    = 0x14 // uint32
	idxOffUnknown2    = 0x18 // uint32
	idxOffTableSize   = 0x1c // uint32, declared table length
	idxOffUnknown3    = 0x20 // uint32
	idxOffUnknown4    = 0x24 // uint32
	idxOffCreation    = 0x28 // uint64, microseconds since 1601-01-01 UTC
	idxOffReserved    = 0x30 // [208]byte
	indexHeaderSize   = 256
	indexReservedSize = indexHeaderSize - idxOffReserved
)

// LRU control block, 112 bytes directly after the index header.
const (
	lruOffPad0         = 0x00 // [8]byte
	lruOffFilledFlag   = 0x08 // uint32
	lruOffSizes        = 0x0c // [5]uint32, per-list sizes
	lruOffHeads        = 0x20 // [5]uint32, list head addresses
	lruOffTails        = 0x34 // [5]uint32, list tail addresses
	lruOffTransaction  = 0x48 // uint32, in-flight transaction address
	lruOffOperation    = 0x4c // uint32
	lruOffOperationLst = 0x50 // uint32
	lruOffPad1         = 0x54 // [28]byte
	lruDataSize        = 112
	lruPad0Size        = lruOffFilledFlag - lruOffPad0
	lruPad1Size        = lruDataSize - lruOffPad1
)

// Index table: uint32 cache addresses from offset 368 to end of file.
const indexTableOffset = indexHeaderSize + lruDataSize

// Data block file header, 8192 bytes at offset 0. Block storage begins
// immediately after it (see blockFileHeaderSize in address.go).
const (
	dbOffSignature  = 0x00 // uint32, DataSignature
	dbOffMinor      = 0x04 // uint16
	dbOffMajor      = 0x06 // uint16
	dbOffFileNumber = 0x08 // uint16, this file's data_N number
	dbOffNextFile   = 0x0a // uint16, next file in the chain of this block size
	dbOffBlockSize  = 0x0c // uint32
	dbOffNumEntries = 0x10 // uint32, allocated block count
	dbOffMaxEntries = 0x14 // uint32
	dbOffEmpty      = 0x18 // [4]uint32, empty-run counters
	dbOffHints      = 0x28 // [4]uint32, allocation hints
	dbOffUpdating   = 0x38 // uint32
	dbOffUser       = 0x3c // [5]uint32
	dbOffBitmap     = 0x50 // [2028]uint32, allocation bitmap
	dataHeaderSize  = 8192
	dataBitmapWords = 2028
)

// Entry record, 256 bytes within a 256-byte block file.
const (
	entOffHash         = 0x00 // uint32, SuperFastHash of the key
	entOffNext         = 0x04 // uint32, next entry in the bucket chain
	entOffRankingsNode = 0x08 // uint32, rankings node address
	entOffReuseCount   = 0x0c // uint32
	entOffRefetchCount = 0x10 // uint32
	entOffState        = 0x14 // uint32
	entOffCreation     = 0x18 // uint64, microseconds since 1601-01-01 UTC
	entOffKeySize      = 0x20 // uint32, full key length in bytes
	entOffLongKey      = 0x24 // uint32, address of the key when not inline
	entOffDataSizes    = 0x28 // [4]uint32, stream sizes
	entOffDataAddrs    = 0x38 // [4]uint32, stream addresses
	entOffFlags        = 0x48 // uint32
	entOffReserved     = 0x4c // [16]byte
	entOffSelfHash     = 0x5c // uint32
	entOffKey          = 0x60 // [160]byte, inline key buffer
	entryRecordSize    = 256
	entryReservedSize  = entOffSelfHash - entOffReserved
	entryKeySize       = entryRecordSize - entOffKey
)

// versionSupported reports whether a file's version is one this package
// parses. Both file kinds accept exactly 2.0 and 2.1.
func versionSupported(major, minor uint16) bool {
	return major == 2 && minor <= 1
}

// formatVersion renders a version pair the way the format's tooling
// conventionally does, "major.minor".
func formatVersion(major, minor uint16) string {
	return fmt.Sprintf("%d.%d", major, minor)
}

// WebkitTime converts a cache timestamp, microseconds since
// 1601-01-01 00:00:00 UTC, to a time.Time in UTC.
func WebkitTime(us uint64) time.Time {
	const epochOffsetSec = 11644473600 // seconds from 1601-01-01 to 1970-01-01
	sec := int64(us/1e6) - epochOffsetSec
	nsec := int64(us%1e6) * 1000
	return time.Unix(sec, nsec).UTC()
}

func getU32s(buf []byte, off int, dst []uint32) {
	for i := range dst {
		dst[i] = binary.LittleEndian.Uint32(buf[off+4*i:])
	}
}

func putU32s(buf []byte, off int, src []uint32) {
	for i := range src {
		binary.LittleEndian.PutUint32(buf[off+4*i:], src[i])
	}
}

func getAddrs(buf []byte, off int, dst []CacheAddress) {
	for i := range dst {
		dst[i] = CacheAddress(binary.LittleEndian.Uint32(buf[off+4*i:]))
	}
}

func putAddrs(buf []byte, off int, src []CacheAddress) {
	for i := range src {
		binary.LittleEndian.PutUint32(buf[off+4*i:], uint32(src[i]))
	}
}

// parseIndexHeader decodes and validates the 256-byte index file header.
// buf must hold at least indexHeaderSize bytes.
func parseIndexHeader(buf []byte) (IndexHeader, error) {
	_ = buf[indexHeaderSize-1]

	var h IndexHeader
	if sig := binary.LittleEndian.Uint32(buf[idxOffSignature:]); sig != IndexSignature {
		return h, fmt.Errorf("index signature 0x%08x: %w", sig, ErrBadSignature)
	}
	h.MinorVersion = binary.LittleEndian.Uint16(buf[idxOffMinor:])
	h.MajorVersion = binary.LittleEndian.Uint16(buf[idxOffMajor:])
	if !versionSupported(h.MajorVersion, h.MinorVersion) {
		return h, fmt.Errorf("index version %s: %w", h.Version(), ErrUnsupportedVersion)
	}
	h.NumEntries = binary.LittleEndian.Uint32(buf[idxOffNumEntries:])
	h.StoredSize = binary.LittleEndian.Uint32(buf[idxOffStoredSize:])
	h.LastCreatedFile = binary.LittleEndian.Uint32(buf[idxOffLastFile:])
	h.Unknown1 = binary.LittleEndian.Uint32(buf[idxOffUnknown1:])
	h.Unknown2 = binary.LittleEndian.Uint32(buf[idxOffUnknown2:])
	h.TableSize = binary.LittleEndian.Uint32(buf[idxOffTableSize:])
	h.Unknown3 = binary.LittleEndian.Uint32(buf[idxOffUnknown3:])
	h.Unknown4 = binary.LittleEndian.Uint32(buf[idxOffUnknown4:])
	h.CreationTime = binary.LittleEndian.Uint64(buf[idxOffCreation:])
	copy(h.reserved[:], buf[idxOffReserved:indexHeaderSize])
	return h, nil
}

func encodeIndexHeader(h IndexHeader) []byte {
	buf := make([]byte, indexHeaderSize)
	binary.LittleEndian.PutUint32(buf[idxOffSignature:], IndexSignature)
	binary.LittleEndian.PutUint16(buf[idxOffMinor:], h.MinorVersion)
	binary.LittleEndian.PutUint16(buf[idxOffMajor:], h.MajorVersion)
	binary.LittleEndian.PutUint32(buf[idxOffNumEntries:], h.NumEntries)
	binary.LittleEndian.PutUint32(buf[idxOffStoredSize:], h.StoredSize)
	binary.LittleEndian.PutUint32(buf[idxOffLastFile:], h.LastCreatedFile)
	binary.LittleEndian.PutUint32(buf[idxOffUnknown1:], h.Unknown1)
	binary.LittleEndian.PutUint32(buf[idxOffUnknown2:], h.Unknown2)
	binary.LittleEndian.PutUint32(buf[idxOffTableSize:], h.TableSize)
	binary.LittleEndian.PutUint32(buf[idxOffUnknown3:], h.Unknown3)
	binary.LittleEndian.PutUint32(buf[idxOffUnknown4:], h.Unknown4)
	binary.LittleEndian.PutUint64(buf[idxOffCreation:], h.CreationTime)
	copy(buf[idxOffReserved:], h.reserved[:])
	return buf
}

// parseLruData decodes the 112-byte LRU control block. Decoding is total;
// buf must hold at least lruDataSize bytes.
func parseLruData(buf []byte) LruData {
	_ = buf[lruDataSize-1]

	var l LruData
	copy(l.pad0[:], buf[lruOffPad0:lruOffFilledFlag])
	l.FilledFlag = binary.LittleEndian.Uint32(buf[lruOffFilledFlag:])
	getU32s(buf, lruOffSizes, l.Sizes[:])
	getAddrs(buf, lruOffHeads, l.Heads[:])
	getAddrs(buf, lruOffTails, l.Tails[:])
	l.Transaction = CacheAddress(binary.LittleEndian.Uint32(buf[lruOffTransaction:]))
	l.Operation = binary.LittleEndian.Uint32(buf[lruOffOperation:])
	l.OperationList = binary.LittleEndian.Uint32(buf[lruOffOperationLst:])
	copy(l.pad1[:], buf[lruOffPad1:lruDataSize])
	return l
}

func encodeLruData(l LruData) []byte {
	buf := make([]byte, lruDataSize)
	copy(buf[lruOffPad0:], l.pad0[:])
	binary.LittleEndian.PutUint32(buf[lruOffFilledFlag:], l.FilledFlag)
	putU32s(buf, lruOffSizes, l.Sizes[:])
	putAddrs(buf, lruOffHeads, l.Heads[:])
	putAddrs(buf, lruOffTails, l.Tails[:])
	binary.LittleEndian.PutUint32(buf[lruOffTransaction:], uint32(l.Transaction))
	binary.LittleEndian.PutUint32(buf[lruOffOperation:], l.Operation)
	binary.LittleEndian.PutUint32(buf[lruOffOperationLst:], l.OperationList)
	copy(buf[lruOffPad1:], l.pad1[:])
	return buf
}

// parseDataHeader decodes and validates the 8192-byte data block file
// header. buf must hold at least dataHeaderSize bytes.
func parseDataHeader(buf []byte) (DataHeader, error) {
	_ = buf[dataHeaderSize-1]

	var h DataHeader
	if sig := binary.LittleEndian.Uint32(buf[dbOffSignature:]); sig != DataSignature {
		return h, fmt.Errorf("data file signature 0x%08x: %w", sig, ErrBadSignature)
	}
	h.MinorVersion = binary.LittleEndian.Uint16(buf[dbOffMinor:])
	h.MajorVersion = binary.LittleEndian.Uint16(buf[dbOffMajor:])
	if !versionSupported(h.MajorVersion, h.MinorVersion) {
		return h, fmt.Errorf("data file version %s: %w", h.Version(), ErrUnsupportedVersion)
	}
	h.FileNumber = binary.LittleEndian.Uint16(buf[dbOffFileNumber:])
	h.NextFileNumber = binary.LittleEndian.Uint16(buf[dbOffNextFile:])
	h.BlockSize = binary.LittleEndian.Uint32(buf[dbOffBlockSize:])
	h.NumEntries = binary.LittleEndian.Uint32(buf[dbOffNumEntries:])
	h.MaxEntries = binary.LittleEndian.Uint32(buf[dbOffMaxEntries:])
	getU32s(buf, dbOffEmpty, h.Empty[:])
	getU32s(buf, dbOffHints, h.Hints[:])
	h.Updating = binary.LittleEndian.Uint32(buf[dbOffUpdating:])
	getU32s(buf, dbOffUser, h.User[:])
	getU32s(buf, dbOffBitmap, h.Bitmap[:])
	return h, nil
}

func encodeDataHeader(h DataHeader) []byte {
	buf := make([]byte, dataHeaderSize)
	binary.LittleEndian.PutUint32(buf[dbOffSignature:], DataSignature)
	binary.LittleEndian.PutUint16(buf[dbOffMinor:], h.MinorVersion)
	binary.LittleEndian.PutUint16(buf[dbOffMajor:], h.MajorVersion)
	binary.LittleEndian.PutUint16(buf[dbOffFileNumber:], h.FileNumber)
	binary.LittleEndian.PutUint16(buf[dbOffNextFile:], h.NextFileNumber)
	binary.LittleEndian.PutUint32(buf[dbOffBlockSize:], h.BlockSize)
	binary.LittleEndian.PutUint32(buf[dbOffNumEntries:], h.NumEntries)
	binary.LittleEndian.PutUint32(buf[dbOffMaxEntries:], h.MaxEntries)
	putU32s(buf, dbOffEmpty, h.Empty[:])
	putU32s(buf, dbOffHints, h.Hints[:])
	binary.LittleEndian.PutUint32(buf[dbOffUpdating:], h.Updating)
	putU32s(buf, dbOffUser, h.User[:])
	putU32s(buf, dbOffBitmap, h.Bitmap[:])
	return buf
}

// parseRecord decodes a 256-byte entry record. Every bit pattern decodes;
// validation against the key hash is the caller's business. buf must hold
// at least entryRecordSize bytes.
func parseRecord(buf []byte) *Entry {
	_ = buf[entryRecordSize-1]

	e := new(Entry)
	e.Hash = binary.LittleEndian.Uint32(buf[entOffHash:])
	e.Next = CacheAddress(binary.LittleEndian.Uint32(buf[entOffNext:]))
	e.RankingsNode = CacheAddress(binary.LittleEndian.Uint32(buf[entOffRankingsNode:]))
	e.ReuseCount = binary.LittleEndian.Uint32(buf[entOffReuseCount:])
	e.RefetchCount = binary.LittleEndian.Uint32(buf[entOffRefetchCount:])
	e.State = binary.LittleEndian.Uint32(buf[entOffState:])
	e.CreationTime = binary.LittleEndian.Uint64(buf[entOffCreation:])
	e.KeySize = binary.LittleEndian.Uint32(buf[entOffKeySize:])
	e.LongKey = CacheAddress(binary.LittleEndian.Uint32(buf[entOffLongKey:]))
	getU32s(buf, entOffDataSizes, e.DataSizes[:])
	getAddrs(buf, entOffDataAddrs, e.DataAddrs[:])
	e.Flags = binary.LittleEndian.Uint32(buf[entOffFlags:])
	copy(e.reserved[:], buf[entOffReserved:entOffSelfHash])
	e.SelfHash = binary.LittleEndian.Uint32(buf[entOffSelfHash:])
	copy(e.rawKey[:], buf[entOffKey:entryRecordSize])
	e.Key = cutKey(e.rawKey[:])
	return e
}

func encodeRecord(e *Entry) []byte {
	buf := make([]byte, entryRecordSize)
	binary.LittleEndian.PutUint32(buf[entOffHash:], e.Hash)
	binary.LittleEndian.PutUint32(buf[entOffNext:], uint32(e.Next))
	binary.LittleEndian.PutUint32(buf[entOffRankingsNode:], uint32(e.RankingsNode))
	binary.LittleEndian.PutUint32(buf[entOffReuseCount:], e.ReuseCount)
	binary.LittleEndian.PutUint32(buf[entOffRefetchCount:], e.RefetchCount)
	binary.LittleEndian.PutUint32(buf[entOffState:], e.State)
	binary.LittleEndian.PutUint64(buf[entOffCreation:], e.CreationTime)
	binary.LittleEndian.PutUint32(buf[entOffKeySize:], e.KeySize)
	binary.LittleEndian.PutUint32(buf[entOffLongKey:], uint32(e.LongKey))
	putU32s(buf, entOffDataSizes, e.DataSizes[:])
	putAddrs(buf, entOffDataAddrs, e.DataAddrs[:])
	binary.LittleEndian.PutUint32(buf[entOffFlags:], e.Flags)
	copy(buf[entOffReserved:], e.reserved[:])
	binary.LittleEndian.PutUint32(buf[entOffSelfHash:], e.SelfHash)
	copy(buf[entOffKey:], e.rawKey[:])
	return buf
}

// cutKey returns the inline key up to but excluding the first NUL. A
// buffer with no NUL is a full-length key; the whole buffer is the key.
func cutKey(raw []byte) []byte {
	for i, b := range raw {
		if b == 0 {
			return raw[:i]
		}
	}
	return raw
}
