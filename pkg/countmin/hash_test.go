package countmin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFNV1a_KnownValues(t *testing.T) {
	cases := map[string]uint64{
		"":               14695981039346656073,
		"a":              12638156414230052088,
		"this is a test": 9816036922139235588,
	}
	for in, want := range cases {
		assert.Equal(t, want, fnv1a([]byte(in)), "fnv1a(%q)", in)
	}
}

func TestFNV1aChain(t *testing.T) {
	got := FNV1aChain{}.Hash([]byte("this is a test"), 3)
	assert.Equal(t, []uint64{9816036922139235588, 2145700485193733482, 7867438058777009799}, got)

	got = FNV1aChain{}.Hash([]byte("alpha"), 5)
	assert.Equal(t, []uint64{
		13946670669411278207,
		14382645500923237042,
		2899327246736158300,
		3693960597347655338,
		16204495952883068500,
	}, got)

	assert.Empty(t, FNV1aChain{}.Hash([]byte("x"), 0))
}

func TestHashers_DeterministicAndPrefixStable(t *testing.T) {
	for _, name := range []string{HashFNV1a, HashXXHash, HashXXH3, HashMurmur3} {
		t.Run(name, func(t *testing.T) {
			h, err := HasherByName(name)
			require.NoError(t, err)
			assert.Equal(t, name, HasherName(h))

			a := h.Hash([]byte("10.0.0.1"), 6)
			b := h.Hash([]byte("10.0.0.1"), 6)
			require.Len(t, a, 6)
			assert.Equal(t, a, b)
			assert.Equal(t, a[:3], h.Hash([]byte("10.0.0.1"), 3))
			assert.NotEqual(t, a, h.Hash([]byte("10.0.0.2"), 6))
		})
	}
}

func TestHasherByName(t *testing.T) {
	h, err := HasherByName("")
	require.NoError(t, err)
	assert.IsType(t, FNV1aChain{}, h)

	_, err = HasherByName("sha1")
	assert.ErrorIs(t, err, ErrUnknownHasher)

	assert.Empty(t, HasherName(HasherFunc(func([]byte, uint32) []uint64 { return nil })))
	assert.Equal(t, HashXXH3, HasherName(&XXH3Seeded{}))
}

func TestSketch_AlternativeHashers(t *testing.T) {
	for _, h := range []Hasher{XXHashDouble{}, XXH3Seeded{}, Murmur3Seeded{}} {
		s, err := NewWithHasher(4096, 4, h)
		require.NoError(t, err)
		_, err = s.AddInc([]byte("flow"), 42)
		require.NoError(t, err)
		v, err := s.Check([]byte("flow"))
		require.NoError(t, err)
		assert.Equal(t, int32(42), v, HasherName(h))
	}
}
