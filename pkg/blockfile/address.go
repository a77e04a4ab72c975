package blockfile

import "fmt"

// CacheAddress is a 32-bit pointer into the cache's storage files.
//
// Bit layout, most significant bit first:
//
//	bit  31     initialized flag
//	bits 28-30  file type
//	bits  0-27  file number              (separate files only)
//	bits 24-25  size in allocation units (block files only)
//	bits 16-23  block file selector      (block files only)
//	bits  0-15  block number             (block files only)
//
// The raw value 0x00000000 never refers to storage: it terminates entry
// chains and marks empty index table slots. Decoding is total; no bit
// pattern is rejected.
type CacheAddress uint32

const (
	addrInitializedMask = 0x80000000
	addrFileTypeMask    = 0x70000000
	addrFileTypeShift   = 28
	addrFileNumberMask  = 0x0fffffff
	addrSizeUnitsMask   = 0x03000000
	addrSizeUnitsShift  = 24
	addrSelectorMask    = 0x00ff0000
	addrSelectorShift   = 16
	addrBlockNumberMask = 0x0000ffff
)

// blockFileHeaderSize is the fixed region every data_N file reserves before
// block storage begins. Block offsets are computed relative to it.
const blockFileHeaderSize = 8192

// FileType identifies which kind of storage file an address points into.
type FileType uint8

const (
	FileTypeSeparate  FileType = 0 // f_XXXXXX external file
	FileTypeRankings  FileType = 1 // data_N file of 36-byte rankings blocks
	FileTypeBlock256  FileType = 2 // data_N file of 256-byte blocks
	FileTypeBlock1024 FileType = 3 // data_N file of 1024-byte blocks
	FileTypeBlock4096 FileType = 4 // data_N file of 4096-byte blocks
)

// IsBlock reports whether t addresses blocks inside a data_N file.
func (t FileType) IsBlock() bool {
	return t >= FileTypeRankings && t <= FileTypeBlock4096
}

// BlockUnit returns the allocation unit of t in bytes, or 0 when t does not
// address fixed-size blocks.
func (t FileType) BlockUnit() uint32 {
	switch t {
	case FileTypeRankings:
		return 36
	case FileTypeBlock256:
		return 256
	case FileTypeBlock1024:
		return 1024
	case FileTypeBlock4096:
		return 4096
	default:
		return 0
	}
}

func (t FileType) String() string {
	switch t {
	case FileTypeSeparate:
		return "separate file"
	case FileTypeRankings:
		return "rankings block file"
	case FileTypeBlock256:
		return "256 byte block file"
	case FileTypeBlock1024:
		return "1024 byte block file"
	case FileTypeBlock4096:
		return "4096 byte block file"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// IsZero reports whether a is the 0x00000000 terminator value.
func (a CacheAddress) IsZero() bool { return a == 0 }

// IsInitialized reports bit 31.
func (a CacheAddress) IsInitialized() bool { return a&addrInitializedMask != 0 }

// Type returns the file type encoded in bits 28-30. Values 5-7 have no
// assigned meaning but still decode; callers see them via FileType.String.
func (a CacheAddress) Type() FileType {
	return FileType((a & addrFileTypeMask) >> addrFileTypeShift)
}

// FileNumber returns bits 0-27, the external file number of a separate-file
// address. Meaningless for block addresses.
func (a CacheAddress) FileNumber() uint32 { return uint32(a & addrFileNumberMask) }

// FileSelector returns bits 16-23, the data_N file number of a block
// address. Meaningless for separate-file addresses.
func (a CacheAddress) FileSelector() uint32 {
	return uint32(a&addrSelectorMask) >> addrSelectorShift
}

// BlockNumber returns bits 0-15, the block index within a data_N file.
func (a CacheAddress) BlockNumber() uint32 { return uint32(a & addrBlockNumberMask) }

// SizeUnits returns bits 24-25, the allocation length in blocks.
func (a CacheAddress) SizeUnits() uint32 {
	return uint32(a&addrSizeUnitsMask) >> addrSizeUnitsShift
}

// BlockSize returns the allocation size in bytes: SizeUnits times the file
// type's block unit. Zero for separate files and unknown types.
func (a CacheAddress) BlockSize() uint32 {
	return a.SizeUnits() * a.Type().BlockUnit()
}

// BlockOffset returns the byte offset of the addressed block within its
// data_N file: the 8192-byte file header plus block number times the block
// unit. The multiplier is the unit size, not the allocation size. Zero for
// separate files and unknown types.
func (a CacheAddress) BlockOffset() uint64 {
	unit := a.Type().BlockUnit()
	if unit == 0 {
		return 0
	}
	return blockFileHeaderSize + uint64(a.BlockNumber())*uint64(unit)
}

// Filename returns the name of the storage file a points into: f_%06x for
// separate files, data_%d for block files. ok is false for the zero address
// and for unknown file types, which name no file.
func (a CacheAddress) Filename() (name string, ok bool) {
	if a.IsZero() {
		return "", false
	}
	switch t := a.Type(); {
	case t == FileTypeSeparate:
		return fmt.Sprintf("f_%06x", a.FileNumber()), true
	case t.IsBlock():
		return fmt.Sprintf("data_%d", a.FileSelector()), true
	default:
		return "", false
	}
}

// String renders the raw value, e.g. "0x80000005".
func (a CacheAddress) String() string { return fmt.Sprintf("0x%08x", uint32(a)) }

// DebugString renders every decoded field of the address.
func (a CacheAddress) DebugString() string {
	if a.IsZero() {
		return fmt.Sprintf("0x%08x (uninitialized)", uint32(a))
	}
	t := a.Type()
	switch {
	case t == FileTypeSeparate:
		name, _ := a.Filename()
		return fmt.Sprintf("0x%08x (initialized: %t, file type: %s, filename: %s)",
			uint32(a), a.IsInitialized(), t, name)
	case t.IsBlock():
		name, _ := a.Filename()
		return fmt.Sprintf("0x%08x (initialized: %t, file type: %s, filename: %s, "+
			"block number: %d, block offset: 0x%08x, block size: %d)",
			uint32(a), a.IsInitialized(), t, name,
			a.BlockNumber(), a.BlockOffset(), a.BlockSize())
	default:
		return fmt.Sprintf("0x%08x (initialized: %t, file type: %s)",
			uint32(a), a.IsInitialized(), t)
	}
}
