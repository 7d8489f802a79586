package countmin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedHasher places keys in hand-picked columns so collisions are exact.
func fixedHasher(cols map[string][]uint64) Hasher {
	return HasherFunc(func(key []byte, count uint32) []uint64 {
		return cols[string(key)][:count]
	})
}

func newCollidingSketch(t *testing.T, depth uint32) *Sketch {
	t.Helper()
	s, err := NewWithHasher(4, depth, fixedHasher(map[string][]uint64{
		"a": {0, 0, 0},
		"b": {0, 1, 1},
		"c": {1, 1, 2},
	}))
	require.NoError(t, err)
	for key, n := range map[string]uint32{"a": 10, "b": 6, "c": 2} {
		_, err := s.AddInc([]byte(key), n)
		require.NoError(t, err)
	}
	require.Equal(t, int64(18), s.ElementsAdded())
	return s
}

func TestEstimators_OddDepth(t *testing.T) {
	s := newCollidingSketch(t, 3)

	cases := []struct {
		key            string
		min, mean, mmn int32
	}{
		{"a", 10, 12, 8},
		{"b", 6, 10, 5},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			v, err := s.Check([]byte(tc.key))
			require.NoError(t, err)
			assert.Equal(t, tc.min, v)

			v, err = s.CheckMean([]byte(tc.key))
			require.NoError(t, err)
			assert.Equal(t, tc.mean, v)

			v, err = s.CheckMeanMin([]byte(tc.key))
			require.NoError(t, err)
			assert.Equal(t, tc.mmn, v)
		})
	}
}

func TestEstimators_EvenDepthMedian(t *testing.T) {
	s := newCollidingSketch(t, 2)

	v, err := s.Check([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, int32(8), v)

	v, err = s.CheckMean([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, int32(12), v)

	// rows give 16 and 5; the median of two is their truncated average.
	v, err = s.CheckMeanMin([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, int32(10), v)
}

func TestEstimators_NoCollisions(t *testing.T) {
	s, err := New(1000, 5)
	require.NoError(t, err)
	want := map[string]uint32{"alpha": 3, "beta": 5, "gamma": 7, "this is a test": 4}
	for k, n := range want {
		_, err := s.AddInc([]byte(k), n)
		require.NoError(t, err)
	}
	for k, n := range want {
		for _, q := range []Strategy{StrategyMin, StrategyMean, StrategyMeanMin} {
			v, err := s.Estimate([]byte(k), q)
			require.NoError(t, err)
			assert.Equal(t, int32(n), v, "%s/%s", k, q)
		}
	}
}

func TestCheckMeanMin_WidthTooSmall(t *testing.T) {
	s, err := New(1, 3)
	require.NoError(t, err)
	_, err = s.Add([]byte("x"))
	require.NoError(t, err)

	v, err := s.CheckMeanMin([]byte("x"))
	assert.ErrorIs(t, err, ErrWidthTooSmall)
	assert.Equal(t, ErrorValue, v)

	v, err = s.Check([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), v)
}

func TestParseStrategy(t *testing.T) {
	cases := map[string]Strategy{
		"":         StrategyMin,
		"min":      StrategyMin,
		"MEAN":     StrategyMean,
		"mean_min": StrategyMeanMin,
		"mean-min": StrategyMeanMin,
	}
	for in, want := range cases {
		got, err := ParseStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseStrategy("median")
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	assert.Equal(t, "mean_min", StrategyMeanMin.String())

	s, err := New(10, 2)
	require.NoError(t, err)
	_, err = s.Estimate([]byte("x"), Strategy(9))
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}
