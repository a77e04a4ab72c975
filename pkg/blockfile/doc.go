// Package blockfile parses the on-disk format of the Chrome disk cache
// ("blockfile" backend), versions 2.0 and 2.1.
//
// A cache directory holds one index file, a small set of data_N block
// files and zero or more f_XXXXXX separate files. The index maps hashed
// keys to 32-bit cache addresses (CacheAddress). Small records live in
// fixed-size blocks inside the data_N files; payloads too large for a
// block live in their own f_ file. Entry records chain through their
// Next address when several keys hash into the same index bucket.
//
// The package is strictly read-only and built for forensic use: damaged
// input degrades per chain, not per cache. Opening a file fails only for
// structural reasons (bad signature, unsupported version, truncation).
// Walking entries never fails as a whole; each bucket chain either ends
// cleanly or yields one diagnostic Visit (missing data file, chain too
// long, short read) and the remaining buckets are still walked.
//
// Open a directory with OpenDir and range over Entries:
//
//	c, err := blockfile.OpenDir(dir)
//	if err != nil { ... }
//	defer c.Close()
//	for v := range c.Entries() {
//		if v.Err != nil { ... continue }
//		fmt.Println(v.Entry.CreatedAt(), string(v.Entry.Key))
//	}
//
// Individual files can also be opened on their own via OpenIndex and
// OpenDataFile, and CacheAddress decoding works without any I/O at all.
//
// Payload contents are out of scope: the package locates entries and
// decodes their metadata but does not interpret HTTP responses or stream
// data.
package blockfile
