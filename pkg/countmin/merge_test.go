package countmin

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sketchWith(t *testing.T, width, depth uint32, counts map[string]uint32) *Sketch {
	t.Helper()
	s, err := New(width, depth)
	require.NoError(t, err)
	for k, n := range counts {
		_, err := s.AddInc([]byte(k), n)
		require.NoError(t, err)
	}
	return s
}

func check(t *testing.T, s *Sketch, key string) int32 {
	t.Helper()
	v, err := s.Check([]byte(key))
	require.NoError(t, err)
	return v
}

func TestMerge_Sums(t *testing.T) {
	a := sketchWith(t, 1000, 5, map[string]uint32{"alpha": 3})
	b := sketchWith(t, 1000, 5, map[string]uint32{"alpha": 2, "beta": 5})

	m, err := Merge([]*Sketch{a, b})
	require.NoError(t, err)
	assert.Equal(t, int32(5), check(t, m, "alpha"))
	assert.Equal(t, int32(5), check(t, m, "beta"))
	assert.Equal(t, int64(10), m.ElementsAdded())

	// inputs untouched
	assert.Equal(t, int32(3), check(t, a, "alpha"))
	assert.Equal(t, int64(3), a.ElementsAdded())
}

func TestMergeInto_IncludesDestination(t *testing.T) {
	dst := sketchWith(t, 1000, 5, map[string]uint32{"alpha": 3})
	b := sketchWith(t, 1000, 5, map[string]uint32{"alpha": 2, "gamma": 1})

	require.NoError(t, MergeInto(dst, []*Sketch{b}))
	assert.Equal(t, int32(5), check(t, dst, "alpha"))
	assert.Equal(t, int32(1), check(t, dst, "gamma"))
	assert.Equal(t, int64(6), dst.ElementsAdded())

	require.NoError(t, MergeInto(dst, []*Sketch{dst}))
	assert.Equal(t, int32(10), check(t, dst, "alpha"))
}

func TestMerge_DimensionMismatch(t *testing.T) {
	dst := sketchWith(t, 1000, 5, map[string]uint32{"alpha": 3})
	ok := sketchWith(t, 1000, 5, map[string]uint32{"beta": 1})
	bad := sketchWith(t, 999, 5, nil)
	before := dst.Bins()

	err := MergeInto(dst, []*Sketch{ok, bad})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, before, dst.Bins())
	assert.Equal(t, int64(3), dst.ElementsAdded())

	_, err = Merge([]*Sketch{dst, sketchWith(t, 1000, 4, nil)})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMerge_Empty(t *testing.T) {
	_, err := Merge(nil)
	assert.ErrorIs(t, err, ErrNoSketches)

	dst := sketchWith(t, 10, 2, nil)
	assert.ErrorIs(t, MergeInto(dst, nil), ErrNoSketches)
	assert.ErrorIs(t, MergeInto(dst, []*Sketch{nil}), ErrNoSketches)
}

func TestMerge_Saturates(t *testing.T) {
	a := sketchWith(t, 100, 3, map[string]uint32{"big": math.MaxInt32})
	b := sketchWith(t, 100, 3, map[string]uint32{"big": 10})

	m, err := Merge([]*Sketch{a, b})
	require.NoError(t, err)
	assert.Equal(t, int32(math.MaxInt32), check(t, m, "big"))
	assert.Equal(t, int64(math.MaxInt32), m.ElementsAdded())
}
