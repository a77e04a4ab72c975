package blockfile

import (
	"bytes"
	"math/rand/v2"
	"slices"
	"testing"
)

func Test_SuperFastHash_Returns_Zero_When_Key_Empty(t *testing.T) {
	t.Parallel()

	if got := SuperFastHash(nil); got != 0 {
		t.Errorf("SuperFastHash(nil) = %#08x, want 0", got)
	}
	if got := SuperFastHash([]byte{}); got != 0 {
		t.Errorf("SuperFastHash([]byte{}) = %#08x, want 0", got)
	}
}

func Test_SuperFastHash_Is_Deterministic(t *testing.T) {
	t.Parallel()

	key := []byte("https://example.com/static/app.js")
	first := SuperFastHash(key)
	if again := SuperFastHash(slices.Clone(key)); again != first {
		t.Errorf("SuperFastHash twice on equal keys: %#08x then %#08x", first, again)
	}
}

func Test_SuperFastHash_Differs_When_Single_Byte_Flips(t *testing.T) {
	t.Parallel()

	keys := [][]byte{
		[]byte("a"),
		[]byte("ab"),
		[]byte("abc"),
		[]byte("abcd"),
		[]byte("http://example.com/"),
		bytes.Repeat([]byte{0x7f}, 64),
	}

	for _, key := range keys {
		base := SuperFastHash(key)
		for i := range key {
			mutated := slices.Clone(key)
			mutated[i] ^= 0x01
			if got := SuperFastHash(mutated); got == base {
				t.Errorf("flipping byte %d of %q left hash at %#08x", i, key, base)
			}
		}
	}
}

// The production implementation leans on uint32 wraparound and
// little-endian 16-bit loads. The reference below transliterates the
// published algorithm with explicit masking and byte indexing instead;
// agreement across random keys in every remainder class pins both down.
func Test_SuperFastHash_Matches_Reference_Implementation(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(0xb10c, 0xf11e))
	for length := 0; length <= 67; length++ {
		for rep := 0; rep < 32; rep++ {
			key := make([]byte, length)
			for i := range key {
				key[i] = byte(rng.UintN(256))
			}
			got := SuperFastHash(key)
			want := referenceSuperFastHash(key)
			if got != want {
				t.Fatalf("SuperFastHash(%x) = %#08x, reference says %#08x", key, got, want)
			}
		}
	}
}

func referenceSuperFastHash(key []byte) uint32 {
	if len(key) == 0 {
		return 0
	}

	const mask = 0xffffffff
	h := uint64(len(key)) & mask
	n := len(key)
	r := n & 3
	n -= r

	for i := 0; i < n; i += 4 {
		h = (h + uint64(key[i]) + uint64(key[i+1])<<8) & mask
		tmp := uint64(key[i+2]) + uint64(key[i+3])<<8
		tmp = ((tmp << 11) & mask) ^ h
		h = ((h << 16) & mask) ^ tmp
		h = (h + h>>11) & mask
	}

	i := n
	switch r {
	case 3:
		h = (h + uint64(key[i]) + uint64(key[i+1])<<8) & mask
		h ^= (h << 16) & mask
		h ^= (uint64(key[i+2]) << 18) & mask
		h = (h + h>>11) & mask
	case 2:
		h = (h + uint64(key[i]) + uint64(key[i+1])<<8) & mask
		h ^= (h << 11) & mask
		h = (h + h>>17) & mask
	case 1:
		h = (h + uint64(key[i])) & mask
		h ^= (h << 10) & mask
		h = (h + h>>1) & mask
	}

	h ^= (h << 3) & mask
	h = (h + h>>5) & mask
	h ^= (h << 4) & mask
	h = (h + h>>17) & mask
	h ^= (h << 25) & mask
	h = (h + h>>6) & mask

	return uint32(h)
}
