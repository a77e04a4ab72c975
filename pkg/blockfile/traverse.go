package blockfile

// MaxChainLength bounds how many entries a single bucket chain yields.
// A healthy cache never chains this deep; reaching the bound means the
// chain is cyclic or the index is corrupt, and the walk stops with
// ErrChainTooLong after reporting the entries it read.
const MaxChainLength = 64

// Visit is one step of a cache traversal: a decoded entry, or the
// diagnostic that ended its chain. Exactly one of Entry and Err is set.
type Visit struct {
	Bucket uint32       // index table position of the chain
	Hop    int          // zero-based position within the chain
	Addr   CacheAddress // address this visit is about
	Entry  *Entry       // decoded record; nil on a diagnostic visit
	Err    error        // *ChainError; nil on an entry visit
}

// Seq is a lazy, restartable iterator over traversal visits, compatible
// with iter.Seq[Visit]. Ranging over the same Seq twice yields the same
// sequence as long as the underlying files do not change.
type Seq func(yield func(Visit) bool)

// Traverse walks every bucket chain of idx through the opened block
// files, in ascending bucket order and chain order within each bucket.
// A chain ends silently at the zero address, or with one diagnostic
// visit: ErrMissingDataFile when an address names a file not present in
// files, ErrChainTooLong when the chain reaches MaxChainLength hops, or
// the record read error. A diagnostic ends only its own chain; the
// remaining buckets are still walked.
//
// Traverse reads nothing until the Seq is consumed and borrows files for
// the lifetime of each iteration.
func Traverse(idx *Index, files map[string]*DataFile) Seq {
	return func(yield func(Visit) bool) {
		for _, bucket := range idx.Table.Buckets() {
			if !walkChain(bucket, idx.Table[bucket], files, yield) {
				return
			}
		}
	}
}

// walkChain follows one bucket chain, yielding every visit. It reports
// false when the consumer stopped the iteration.
func walkChain(bucket uint32, addr CacheAddress, files map[string]*DataFile, yield func(Visit) bool) bool {
	for hop := 0; !addr.IsZero(); hop++ {
		if hop >= MaxChainLength {
			return yield(Visit{Bucket: bucket, Hop: hop, Addr: addr, Err: &ChainError{
				Bucket: bucket, Hop: hop, Addr: addr, Err: ErrChainTooLong,
			}})
		}

		name, ok := addr.Filename()
		var file *DataFile
		if ok {
			file = files[name]
		}
		if file == nil {
			return yield(Visit{Bucket: bucket, Hop: hop, Addr: addr, Err: &ChainError{
				Bucket: bucket, Hop: hop, Addr: addr, File: name, Err: ErrMissingDataFile,
			}})
		}

		entry, err := file.ReadRecord(addr.BlockOffset())
		if err != nil {
			return yield(Visit{Bucket: bucket, Hop: hop, Addr: addr, Err: &ChainError{
				Bucket: bucket, Hop: hop, Addr: addr, File: name, Err: err,
			}})
		}

		if !yield(Visit{Bucket: bucket, Hop: hop, Addr: addr, Entry: entry}) {
			return false
		}
		addr = entry.Next
	}
	return true
}
