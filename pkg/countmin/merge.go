package countmin

// Merge builds a new sketch whose counters are the saturating sums of the
// inputs. All inputs must share width and depth; the result uses the hasher
// of the first input.
func Merge(sketches []*Sketch) (*Sketch, error) {
	if len(sketches) == 0 {
		return nil, ErrNoSketches
	}
	base := sketches[0]
	if base == nil {
		return nil, ErrNoSketches
	}
	if base.depth == 0 {
		return nil, ErrDestroyed
	}
	if err := checkCompatible(base, sketches); err != nil {
		return nil, err
	}
	out := newSketch(base.width, base.depth, base.errorRate, base.confidence, base.hasher)
	out.accumulate(sketches)
	return out, nil
}

// MergeInto adds the counters of every sketch onto dst in place. Nothing is
// modified unless every input matches dst's dimensions.
func MergeInto(dst *Sketch, sketches []*Sketch) error {
	if dst == nil || len(sketches) == 0 {
		return ErrNoSketches
	}
	if dst.depth == 0 {
		return ErrDestroyed
	}
	if err := checkCompatible(dst, sketches); err != nil {
		return err
	}
	dst.accumulate(sketches)
	return nil
}

func checkCompatible(base *Sketch, sketches []*Sketch) error {
	for _, s := range sketches {
		if s == nil {
			return ErrNoSketches
		}
		if !base.Compatible(s) {
			return ErrDimensionMismatch
		}
	}
	return nil
}

// accumulate sums in int64 and clamps once per cell.
func (s *Sketch) accumulate(sketches []*Sketch) {
	for i := range s.bins {
		sum := int64(s.bins[i])
		for _, o := range sketches {
			sum += int64(o.bins[i])
		}
		s.bins[i] = int32(saturate(sum))
	}
	total := s.elementsAdded
	for _, o := range sketches {
		total += o.elementsAdded
	}
	s.elementsAdded = saturate(total)
}
