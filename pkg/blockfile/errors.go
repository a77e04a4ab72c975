package blockfile

import (
	"errors"
	"fmt"
	"io"
)

// Sentinel errors for cache file parsing and traversal. Callers match them
// with errors.Is; wrapped messages carry file and offset context.
var (
	// ErrBadSignature reports that the magic number at offset 0 is not the
	// one expected for the structure being opened. The file is not a cache
	// file of that kind, or the caller pointed the reader at the wrong path.
	ErrBadSignature = errors.New("blockfile: bad signature")

	// ErrUnsupportedVersion reports that the signature matched but the
	// version is neither 2.0 nor 2.1. Other layouts are not parsed.
	ErrUnsupportedVersion = errors.New("blockfile: unsupported version")

	// ErrTruncated reports that the file ended before a complete structure
	// could be read. The file is unusable as-is; re-acquire the image.
	ErrTruncated = errors.New("blockfile: truncated file")

	// ErrChainTooLong reports that a hash bucket chain exceeded
	// MaxChainLength hops. Healthy caches never chain that deep; the table
	// slot is cyclic or corrupt. Entries read before the bound are still
	// reported.
	ErrChainTooLong = errors.New("blockfile: entry chain too long")

	// ErrMissingDataFile reports that an entry address points into a block
	// file the cache does not have. The remainder of that chain is
	// unreachable; other chains are unaffected.
	ErrMissingDataFile = errors.New("blockfile: missing data file")
)

// ChainError describes why walking one hash bucket chain stopped early.
// It carries the position of the failure and wraps the cause, so
// errors.Is(err, ErrChainTooLong) and friends see through it.
type ChainError struct {
	Bucket uint32       // index table position of the chain
	Hop    int          // zero-based hop at which the walk stopped
	Addr   CacheAddress // address the walk could not follow
	File   string       // block file involved, when known
	Err    error        // one of the sentinels above, or a read error
}

func (e *ChainError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("blockfile: bucket %d hop %d at %s in %s: %v", e.Bucket, e.Hop, e.Addr, e.File, e.Err)
	}
	return fmt.Sprintf("blockfile: bucket %d hop %d at %s: %v", e.Bucket, e.Hop, e.Addr, e.Err)
}

func (e *ChainError) Unwrap() error { return e.Err }

// truncated maps short-read errors onto ErrTruncated. Transport errors
// pass through unchanged.
func truncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrTruncated
	}
	return err
}
