package countmin

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
)

// FNV-1a parameters. The offset basis differs from hash/fnv; it is the value
// baked into every exported sketch, so changing it would silently re-bucket
// previously stored keys.
const (
	fnvOffset64 uint64 = 14695981039346656073
	fnvPrime64  uint64 = 1099511628211
)

// Hasher derives count independent-enough hash values for key. Value i feeds
// row i. Implementations must be deterministic.
type Hasher interface {
	Hash(key []byte, count uint32) []uint64
}

// HasherFunc adapts an ordinary function to the Hasher interface.
type HasherFunc func(key []byte, count uint32) []uint64

func (f HasherFunc) Hash(key []byte, count uint32) []uint64 {
	return f(key, count)
}

// Hasher names accepted by HasherByName.
const (
	HashFNV1a   = "fnv1a"
	HashXXHash  = "xxhash"
	HashXXH3    = "xxh3"
	HashMurmur3 = "murmur3"
)

// HasherByName returns the built-in hasher registered under name. An empty
// name selects the default FNV-1a chain.
func HasherByName(name string) (Hasher, error) {
	switch name {
	case "", HashFNV1a:
		return FNV1aChain{}, nil
	case HashXXHash:
		return XXHashDouble{}, nil
	case HashXXH3:
		return XXH3Seeded{}, nil
	case HashMurmur3:
		return Murmur3Seeded{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHasher, name)
	}
}

// HasherName reports the registered name of a built-in hasher, or "" for
// custom implementations.
func HasherName(h Hasher) string {
	switch h.(type) {
	case FNV1aChain, *FNV1aChain:
		return HashFNV1a
	case XXHashDouble, *XXHashDouble:
		return HashXXHash
	case XXH3Seeded, *XXH3Seeded:
		return HashXXH3
	case Murmur3Seeded, *Murmur3Seeded:
		return HashMurmur3
	default:
		return ""
	}
}

// FNV1aChain is the default hasher: h0 = FNV-1a(key) and every following
// value is FNV-1a of the previous value's lowercase hex text.
type FNV1aChain struct{}

func (FNV1aChain) Hash(key []byte, count uint32) []uint64 {
	out := make([]uint64, count)
	if count == 0 {
		return out
	}
	out[0] = fnv1a(key)
	// 16 hex digits cover the largest uint64.
	var buf [16]byte
	for i := uint32(1); i < count; i++ {
		out[i] = fnv1a(strconv.AppendUint(buf[:0], out[i-1], 16))
	}
	return out
}

func fnv1a(key []byte) uint64 {
	h := fnvOffset64
	for _, b := range key {
		h ^= uint64(b)
		h *= fnvPrime64
	}
	return h
}

// XXHashDouble derives row hashes from a single xxHash64 digest using
// double hashing (h + i*step).
type XXHashDouble struct{}

func (XXHashDouble) Hash(key []byte, count uint32) []uint64 {
	out := make([]uint64, count)
	h := xxhash.Sum64(key)
	step := (h >> 33) | 1
	for i := range out {
		out[i] = h + uint64(i)*step
	}
	return out
}

// XXH3Seeded hashes the key once per row with the row index as seed.
type XXH3Seeded struct{}

func (XXH3Seeded) Hash(key []byte, count uint32) []uint64 {
	out := make([]uint64, count)
	for i := range out {
		out[i] = xxh3.HashSeed(key, uint64(i))
	}
	return out
}

// Murmur3Seeded hashes the key once per row with the row index as seed.
type Murmur3Seeded struct{}

func (Murmur3Seeded) Hash(key []byte, count uint32) []uint64 {
	out := make([]uint64, count)
	for i := range out {
		out[i] = murmur3.Sum64WithSeed(key, uint32(i))
	}
	return out
}
