package countmin

// Add records one occurrence of key and returns the updated min estimate.
func (s *Sketch) Add(key []byte) (int32, error) {
	return s.AddInc(key, 1)
}

// AddInc records x occurrences of key and returns the updated min estimate.
// Counters saturate at math.MaxInt32.
func (s *Sketch) AddInc(key []byte, x uint32) (int32, error) {
	hashes, err := s.GetHashes(key)
	if err != nil {
		return ErrorValue, err
	}
	return s.AddIncAlt(hashes, x)
}

// AddIncAlt is AddInc with a precomputed hash vector.
func (s *Sketch) AddIncAlt(hashes []uint64, x uint32) (int32, error) {
	return s.update(hashes, int64(x))
}

// Remove deletes one occurrence of key and returns the updated min estimate.
func (s *Sketch) Remove(key []byte) (int32, error) {
	return s.RemoveInc(key, 1)
}

// RemoveInc deletes x occurrences of key and returns the updated min
// estimate, which may be negative. Counters saturate at math.MinInt32.
func (s *Sketch) RemoveInc(key []byte, x uint32) (int32, error) {
	hashes, err := s.GetHashes(key)
	if err != nil {
		return ErrorValue, err
	}
	return s.RemoveIncAlt(hashes, x)
}

// RemoveIncAlt is RemoveInc with a precomputed hash vector.
func (s *Sketch) RemoveIncAlt(hashes []uint64, x uint32) (int32, error) {
	return s.update(hashes, -int64(x))
}

func (s *Sketch) update(hashes []uint64, delta int64) (int32, error) {
	if err := s.checkHashes(hashes); err != nil {
		return ErrorValue, err
	}
	var res int64
	for row := uint32(0); row < s.depth; row++ {
		i := s.index(row, hashes[row])
		v := saturate(int64(s.bins[i]) + delta)
		s.bins[i] = int32(v)
		if row == 0 || v < res {
			res = v
		}
	}
	s.elementsAdded = saturate(s.elementsAdded + delta)
	return int32(res), nil
}
