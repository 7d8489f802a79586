package countmin

import (
	"slices"
	"strings"
)

// Hitter is a key with its estimated count.
type Hitter struct {
	Key   string `json:"key"`
	Count int32  `json:"count"`
}

// HeavyHitters tracks the n keys with the largest min estimates seen while
// adding to the underlying sketch. It only supports insertions: once a key
// is evicted from the top list its estimate is no longer tracked.
type HeavyHitters struct {
	*Sketch
	n        int
	top      map[string]int32
	smallest string
}

// NewHeavyHitters wraps s, keeping the top n keys.
func NewHeavyHitters(s *Sketch, n int) *HeavyHitters {
	if n < 1 {
		n = 1
	}
	return &HeavyHitters{
		Sketch: s,
		n:      n,
		top:    make(map[string]int32, n+1),
	}
}

// Add records one occurrence of key.
func (h *HeavyHitters) Add(key []byte) (int32, error) {
	return h.AddInc(key, 1)
}

// AddInc records x occurrences of key and updates the top list.
func (h *HeavyHitters) AddInc(key []byte, x uint32) (int32, error) {
	res, err := h.Sketch.AddInc(key, x)
	if err != nil {
		return res, err
	}
	h.observe(string(key), res)
	return res, nil
}

// AddIncAlt records x occurrences of key from precomputed hashes and
// updates the top list.
func (h *HeavyHitters) AddIncAlt(key []byte, hashes []uint64, x uint32) (int32, error) {
	res, err := h.Sketch.AddIncAlt(hashes, x)
	if err != nil {
		return res, err
	}
	h.observe(string(key), res)
	return res, nil
}

// Observe feeds an estimate obtained elsewhere into the top list without
// touching the sketch. It lets several trackers share one sketch.
func (h *HeavyHitters) Observe(key []byte, count int32) {
	h.observe(string(key), count)
}

// Remove is not supported by the tracker.
func (h *HeavyHitters) Remove([]byte) (int32, error) {
	return ErrorValue, ErrUnsupported
}

// RemoveInc is not supported by the tracker.
func (h *HeavyHitters) RemoveInc([]byte, uint32) (int32, error) {
	return ErrorValue, ErrUnsupported
}

// RemoveIncAlt is not supported by the tracker.
func (h *HeavyHitters) RemoveIncAlt([]uint64, uint32) (int32, error) {
	return ErrorValue, ErrUnsupported
}

// Clear resets the sketch and forgets every tracked key.
func (h *HeavyHitters) Clear() {
	h.Sketch.Clear()
	clear(h.top)
	h.smallest = ""
}

func (h *HeavyHitters) observe(key string, count int32) {
	if _, ok := h.top[key]; ok {
		h.top[key] = count
		h.recomputeSmallest()
		return
	}
	if len(h.top) < h.n {
		h.top[key] = count
		h.recomputeSmallest()
		return
	}
	if count > h.top[h.smallest] {
		delete(h.top, h.smallest)
		h.top[key] = count
		h.recomputeSmallest()
	}
}

func (h *HeavyHitters) recomputeSmallest() {
	first := true
	for k, v := range h.top {
		if first || v < h.top[h.smallest] || (v == h.top[h.smallest] && k > h.smallest) {
			h.smallest = k
			first = false
		}
	}
}

// Hitters returns the tracked keys ordered by descending count, ties by key.
func (h *HeavyHitters) Hitters() []Hitter {
	return sortedHitters(h.top)
}

func sortedHitters(m map[string]int32) []Hitter {
	out := make([]Hitter, 0, len(m))
	for k, v := range m {
		out = append(out, Hitter{Key: k, Count: v})
	}
	slices.SortFunc(out, func(a, b Hitter) int {
		if a.Count != b.Count {
			if a.Count > b.Count {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Key, b.Key)
	})
	return out
}
