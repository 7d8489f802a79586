package countmin

// StreamThreshold tracks every key whose min estimate is at or above a
// threshold. Keys drop out when a removal takes them below it.
type StreamThreshold struct {
	*Sketch
	threshold int32
	meets     map[string]int32
}

// NewStreamThreshold wraps s with the given threshold.
func NewStreamThreshold(s *Sketch, threshold int32) *StreamThreshold {
	return &StreamThreshold{
		Sketch:    s,
		threshold: threshold,
		meets:     make(map[string]int32),
	}
}

// Threshold returns the configured threshold.
func (t *StreamThreshold) Threshold() int32 { return t.threshold }

// Add records one occurrence of key.
func (t *StreamThreshold) Add(key []byte) (int32, error) {
	return t.AddInc(key, 1)
}

// AddInc records x occurrences of key.
func (t *StreamThreshold) AddInc(key []byte, x uint32) (int32, error) {
	res, err := t.Sketch.AddInc(key, x)
	if err != nil {
		return res, err
	}
	t.Observe(key, res)
	return res, nil
}

// Remove deletes one occurrence of key.
func (t *StreamThreshold) Remove(key []byte) (int32, error) {
	return t.RemoveInc(key, 1)
}

// RemoveInc deletes x occurrences of key.
func (t *StreamThreshold) RemoveInc(key []byte, x uint32) (int32, error) {
	res, err := t.Sketch.RemoveInc(key, x)
	if err != nil {
		return res, err
	}
	t.Observe(key, res)
	return res, nil
}

// AddIncAlt records x occurrences of key from precomputed hashes.
func (t *StreamThreshold) AddIncAlt(key []byte, hashes []uint64, x uint32) (int32, error) {
	res, err := t.Sketch.AddIncAlt(hashes, x)
	if err != nil {
		return res, err
	}
	t.Observe(key, res)
	return res, nil
}

// RemoveIncAlt deletes x occurrences of key from precomputed hashes.
func (t *StreamThreshold) RemoveIncAlt(key []byte, hashes []uint64, x uint32) (int32, error) {
	res, err := t.Sketch.RemoveIncAlt(hashes, x)
	if err != nil {
		return res, err
	}
	t.Observe(key, res)
	return res, nil
}

// Observe records an estimate obtained elsewhere: the key is tracked when
// count is at or above the threshold and dropped otherwise.
func (t *StreamThreshold) Observe(key []byte, count int32) {
	if count < t.threshold {
		delete(t.meets, string(key))
		return
	}
	t.meets[string(key)] = count
}

// Clear resets the sketch and the tracked set.
func (t *StreamThreshold) Clear() {
	t.Sketch.Clear()
	clear(t.meets)
}

// MeetsThreshold returns the tracked keys ordered by descending count.
func (t *StreamThreshold) MeetsThreshold() []Hitter {
	return sortedHitters(t.meets)
}
