// Package countmin implements a Count-Min Sketch: a fixed-size matrix of
// saturating counters that estimates how often keys occur in a stream.
//
// Estimates never undercount for insert-only streams. The over-estimate is
// bounded by errorRate*N with probability confidence, where N is the total
// number of insertions.
//
// A Sketch performs no locking. Callers sharing one between goroutines must
// serialize access themselves.
package countmin

import (
	"math"
)

// Sketch is a width x depth matrix of int32 counters stored row-major.
type Sketch struct {
	width         uint32
	depth         uint32
	errorRate     float64
	confidence    float64
	elementsAdded int64
	bins          []int32
	hasher        Hasher
}

// Info is a read-only summary of a sketch.
type Info struct {
	Width         uint32  `json:"width"`
	Depth         uint32  `json:"depth"`
	ErrorRate     float64 `json:"error_rate"`
	Confidence    float64 `json:"confidence"`
	ElementsAdded int64   `json:"elements_added"`
	Hasher        string  `json:"hasher,omitempty"`
	Bytes         uint64  `json:"bytes"`
}

// New creates a sketch with explicit dimensions and the default hasher.
func New(width, depth uint32) (*Sketch, error) {
	return NewWithHasher(width, depth, nil)
}

// NewWithHasher creates a sketch with explicit dimensions. A nil hasher
// selects FNV1aChain.
func NewWithHasher(width, depth uint32, hasher Hasher) (*Sketch, error) {
	if width == 0 {
		return nil, ErrInvalidWidth
	}
	if depth == 0 {
		return nil, ErrInvalidDepth
	}
	return newSketch(width, depth, 2/float64(width), 1-1/math.Pow(2, float64(depth)), hasher), nil
}

// NewOptimal sizes a sketch from a target error rate and confidence:
// width = ceil(2/errorRate), depth = ceil(-ln(1-confidence)/ln 2).
func NewOptimal(errorRate, confidence float64) (*Sketch, error) {
	return NewOptimalWithHasher(errorRate, confidence, nil)
}

// NewOptimalWithHasher is NewOptimal with a custom hasher.
func NewOptimalWithHasher(errorRate, confidence float64, hasher Hasher) (*Sketch, error) {
	if !(errorRate > 0 && errorRate < 1) {
		return nil, ErrInvalidErrorRate
	}
	if !(confidence > 0 && confidence < 1) {
		return nil, ErrInvalidConfidence
	}
	width := math.Ceil(2 / errorRate)
	depth := math.Ceil(-math.Log(1-confidence) / math.Ln2)
	if width > math.MaxUint32 {
		return nil, ErrInvalidErrorRate
	}
	if depth > math.MaxUint32 {
		return nil, ErrInvalidConfidence
	}
	return newSketch(uint32(width), uint32(depth), errorRate, confidence, hasher), nil
}

func newSketch(width, depth uint32, errorRate, confidence float64, hasher Hasher) *Sketch {
	if hasher == nil {
		hasher = FNV1aChain{}
	}
	return &Sketch{
		width:      width,
		depth:      depth,
		errorRate:  errorRate,
		confidence: confidence,
		bins:       make([]int32, uint64(width)*uint64(depth)),
		hasher:     hasher,
	}
}

func (s *Sketch) Width() uint32 { return s.width }

func (s *Sketch) Depth() uint32 { return s.depth }

func (s *Sketch) ErrorRate() float64 { return s.errorRate }

func (s *Sketch) Confidence() float64 { return s.confidence }

// ElementsAdded returns the saturating net number of insertions.
func (s *Sketch) ElementsAdded() int64 { return s.elementsAdded }

// Hasher returns the hash strategy the sketch was built with.
func (s *Sketch) Hasher() Hasher { return s.hasher }

// Bins returns a copy of the counter matrix in row-major order.
func (s *Sketch) Bins() []int32 {
	if s.bins == nil {
		return nil
	}
	out := make([]int32, len(s.bins))
	copy(out, s.bins)
	return out
}

// Counter returns the counter at (row, col).
func (s *Sketch) Counter(row, col uint32) int32 {
	return s.bins[s.cell(row, col)]
}

// Compatible reports whether o can be merged with s.
func (s *Sketch) Compatible(o *Sketch) bool {
	return o != nil && s.width == o.width && s.depth == o.depth
}

// Info summarizes the sketch.
func (s *Sketch) Info() Info {
	return Info{
		Width:         s.width,
		Depth:         s.depth,
		ErrorRate:     s.errorRate,
		Confidence:    s.confidence,
		ElementsAdded: s.elementsAdded,
		Hasher:        HasherName(s.hasher),
		Bytes:         uint64(len(s.bins))*4 + trailerSize,
	}
}

// Clear resets every counter and the running total. Dimensions are kept.
func (s *Sketch) Clear() {
	clear(s.bins)
	s.elementsAdded = 0
}

// Destroy releases the counter matrix and zeroes the sketch. Any further use
// reports ErrDestroyed.
func (s *Sketch) Destroy() {
	s.bins = nil
	s.width = 0
	s.depth = 0
	s.errorRate = 0
	s.confidence = 0
	s.elementsAdded = 0
	s.hasher = nil
}

// GetHashes returns the depth-length hash vector for key.
func (s *Sketch) GetHashes(key []byte) ([]uint64, error) {
	if s.depth == 0 {
		return nil, ErrDestroyed
	}
	return s.hasher.Hash(key, s.depth), nil
}

// cell maps (row, col) to the flat bins offset.
func (s *Sketch) cell(row, col uint32) int {
	return int(row)*int(s.width) + int(col)
}

// index maps a hash destined for row to the flat bins offset.
func (s *Sketch) index(row uint32, h uint64) int {
	return s.cell(row, uint32(h%uint64(s.width)))
}

// checkHashes validates a precomputed hash vector against the sketch depth.
func (s *Sketch) checkHashes(hashes []uint64) error {
	if s.depth == 0 {
		return ErrDestroyed
	}
	if len(hashes) < int(s.depth) {
		return ErrInsufficientHashes
	}
	return nil
}

// saturate clamps v to the int32 range.
func saturate(v int64) int64 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return v
}
