package countmin

import (
	"fmt"
	"slices"
	"strings"
)

// Strategy selects how the depth row counters are combined into one estimate.
type Strategy uint8

const (
	// StrategyMin is the classic count-min upper bound.
	StrategyMin Strategy = iota
	// StrategyMean averages the row counters. Higher variance than min but
	// less skewed once removals have pushed counters negative.
	StrategyMean
	// StrategyMeanMin subtracts the expected collision noise from each row
	// and takes the median.
	StrategyMeanMin
)

func (q Strategy) String() string {
	switch q {
	case StrategyMin:
		return "min"
	case StrategyMean:
		return "mean"
	case StrategyMeanMin:
		return "mean_min"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(q))
	}
}

// ParseStrategy parses "min", "mean" or "mean_min" ("mean-min" is accepted
// too). An empty string selects StrategyMin.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "min":
		return StrategyMin, nil
	case "mean":
		return StrategyMean, nil
	case "mean_min", "mean-min", "meanmin":
		return StrategyMeanMin, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Estimate dispatches to the estimator selected by q.
func (s *Sketch) Estimate(key []byte, q Strategy) (int32, error) {
	hashes, err := s.GetHashes(key)
	if err != nil {
		return ErrorValue, err
	}
	return s.EstimateAlt(hashes, q)
}

// EstimateAlt is Estimate with a precomputed hash vector.
func (s *Sketch) EstimateAlt(hashes []uint64, q Strategy) (int32, error) {
	switch q {
	case StrategyMin:
		return s.CheckAlt(hashes)
	case StrategyMean:
		return s.CheckMeanAlt(hashes)
	case StrategyMeanMin:
		return s.CheckMeanMinAlt(hashes)
	default:
		return ErrorValue, fmt.Errorf("%w: %s", ErrUnknownStrategy, q)
	}
}

// Check returns the minimum of the counters key hashes to.
func (s *Sketch) Check(key []byte) (int32, error) {
	return s.Estimate(key, StrategyMin)
}

// CheckAlt is Check with a precomputed hash vector.
func (s *Sketch) CheckAlt(hashes []uint64) (int32, error) {
	if err := s.checkHashes(hashes); err != nil {
		return ErrorValue, err
	}
	res := s.bins[s.index(0, hashes[0])]
	for row := uint32(1); row < s.depth; row++ {
		res = min(res, s.bins[s.index(row, hashes[row])])
	}
	return res, nil
}

// CheckMean returns the mean of the counters key hashes to, truncated toward
// zero.
func (s *Sketch) CheckMean(key []byte) (int32, error) {
	return s.Estimate(key, StrategyMean)
}

// CheckMeanAlt is CheckMean with a precomputed hash vector.
func (s *Sketch) CheckMeanAlt(hashes []uint64) (int32, error) {
	if err := s.checkHashes(hashes); err != nil {
		return ErrorValue, err
	}
	var sum int64
	for row := uint32(0); row < s.depth; row++ {
		sum += int64(s.bins[s.index(row, hashes[row])])
	}
	return int32(sum / int64(s.depth)), nil
}

// CheckMeanMin returns the median of the bias-corrected row estimates
// c - (elementsAdded - c)/(width - 1).
func (s *Sketch) CheckMeanMin(key []byte) (int32, error) {
	return s.Estimate(key, StrategyMeanMin)
}

// CheckMeanMinAlt is CheckMeanMin with a precomputed hash vector.
func (s *Sketch) CheckMeanMinAlt(hashes []uint64) (int32, error) {
	if err := s.checkHashes(hashes); err != nil {
		return ErrorValue, err
	}
	if s.width < 2 {
		return ErrorValue, ErrWidthTooSmall
	}
	noise := int64(s.width) - 1
	rows := make([]int64, s.depth)
	for row := range rows {
		c := int64(s.bins[s.index(uint32(row), hashes[row])])
		rows[row] = c - (s.elementsAdded-c)/noise
	}
	slices.Sort(rows)
	n := len(rows)
	if n%2 == 0 {
		return int32(saturate((rows[n/2] + rows[n/2-1]) / 2)), nil
	}
	return int32(saturate(rows[n/2])), nil
}
