package blockfile

import "encoding/binary"

// SuperFastHash computes the hash the cache buckets entry keys by: Paul
// Hsieh's SuperFastHash over the raw key bytes. Entry records persist this
// value in their hash field and the index table position of an entry is
// derived from it, so the implementation must stay bit-exact. All
// arithmetic is uint32 and wraps. An empty key hashes to 0.
func SuperFastHash(key []byte) uint32 {
	if len(key) == 0 {
		return 0
	}

	hash := uint32(len(key))
	aligned := len(key) &^ 3

	for i := 0; i < aligned; i += 4 {
		hash += uint32(binary.LittleEndian.Uint16(key[i:]))
		tmp := uint32(binary.LittleEndian.Uint16(key[i+2:]))<<11 ^ hash
		hash = hash<<16 ^ tmp
		hash += hash >> 11
	}

	switch tail := key[aligned:]; len(tail) {
	case 3:
		hash += uint32(binary.LittleEndian.Uint16(tail))
		hash ^= hash << 16
		hash ^= uint32(tail[2]) << 18
		hash += hash >> 11
	case 2:
		hash += uint32(binary.LittleEndian.Uint16(tail))
		hash ^= hash << 11
		hash += hash >> 17
	case 1:
		hash += uint32(tail[0])
		hash ^= hash << 10
		hash += hash >> 1
	}

	// Force "avalanching" of the final bits.
	hash ^= hash << 3
	hash += hash >> 5
	hash ^= hash << 4
	hash += hash >> 17
	hash ^= hash << 25
	hash += hash >> 6

	return hash
}
