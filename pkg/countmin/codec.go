package countmin

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// Serialized layout, in the producing machine's byte order with no padding:
//
//	width*depth x int32   counters, row-major
//	uint32                width
//	uint32                depth
//	int64                 elementsAdded
//
// Error rate and confidence are not stored; they are recomputed from the
// dimensions on import. The format carries no version tag.
const trailerSize = 4 + 4 + 8

var byteOrder = binary.NativeEndian

// WriteTo streams the serialized sketch to w.
func (s *Sketch) WriteTo(w io.Writer) (int64, error) {
	if s.depth == 0 {
		return 0, ErrDestroyed
	}
	bw := bufio.NewWriter(w)
	var n int64
	var buf [4]byte
	for _, v := range s.bins {
		byteOrder.PutUint32(buf[:], uint32(v))
		if _, err := bw.Write(buf[:]); err != nil {
			return n, err
		}
		n += 4
	}
	var trailer [trailerSize]byte
	putTrailer(trailer[:], s.width, s.depth, s.elementsAdded)
	if _, err := bw.Write(trailer[:]); err != nil {
		return n, err
	}
	n += trailerSize
	return n, bw.Flush()
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s *Sketch) MarshalBinary() ([]byte, error) {
	if s.depth == 0 {
		return nil, ErrDestroyed
	}
	out := make([]byte, len(s.bins)*4+trailerSize)
	for i, v := range s.bins {
		byteOrder.PutUint32(out[i*4:], uint32(v))
	}
	putTrailer(out[len(s.bins)*4:], s.width, s.depth, s.elementsAdded)
	return out, nil
}

// Unmarshal rebuilds a sketch from its serialized form. A nil hasher selects
// FNV1aChain.
func Unmarshal(data []byte, hasher Hasher) (*Sketch, error) {
	if len(data) < trailerSize {
		return nil, ErrTruncated
	}
	width, depth, added, err := parseTrailer(data[len(data)-trailerSize:])
	if err != nil {
		return nil, err
	}
	body := data[:len(data)-trailerSize]
	if !fits(width, depth, int64(len(body))) {
		return nil, ErrTruncated
	}
	s := newSketch(width, depth, 2/float64(width), 1-1/math.Pow(2, float64(depth)), hasher)
	s.elementsAdded = added
	for i := range s.bins {
		s.bins[i] = int32(byteOrder.Uint32(body[i*4:]))
	}
	return s, nil
}

// Export writes the sketch to path. The file is written under a temporary
// name and renamed into place once complete.
func (s *Sketch) Export(path string) (err error) {
	if s.depth == 0 {
		return ErrDestroyed
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = s.WriteTo(tmp); err != nil {
		return fmt.Errorf("write sketch: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename export file: %w", err)
	}
	return nil
}

// Import reads a sketch previously written by Export. The trailer is read
// from the end of the file first, then exactly width*depth counters from the
// start. A nil hasher selects FNV1aChain.
func Import(path string, hasher Hasher) (*Sketch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sketch file: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(-trailerSize, io.SeekEnd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	var trailer [trailerSize]byte
	if _, err := io.ReadFull(f, trailer[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	width, depth, added, err := parseTrailer(trailer[:])
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat sketch file: %w", err)
	}
	// Reject before allocating when the file cannot hold the counters.
	if !fits(width, depth, fi.Size()-trailerSize) {
		return nil, ErrTruncated
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind sketch file: %w", err)
	}

	s := newSketch(width, depth, 2/float64(width), 1-1/math.Pow(2, float64(depth)), hasher)
	s.elementsAdded = added
	if err := s.readBins(bufio.NewReader(f)); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sketch) readBins(r io.Reader) error {
	var buf [4]byte
	for i := range s.bins {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return ErrTruncated
			}
			return fmt.Errorf("read counters: %w", err)
		}
		s.bins[i] = int32(byteOrder.Uint32(buf[:]))
	}
	return nil
}

// fits reports whether width*depth counters fit in avail bytes.
func fits(width, depth uint32, avail int64) bool {
	if avail < 0 {
		return false
	}
	cells := uint64(width) * uint64(depth)
	return cells <= uint64(avail)/4 && cells <= math.MaxInt/4
}

func putTrailer(b []byte, width, depth uint32, added int64) {
	byteOrder.PutUint32(b[0:], width)
	byteOrder.PutUint32(b[4:], depth)
	byteOrder.PutUint64(b[8:], uint64(added))
}

func parseTrailer(b []byte) (width, depth uint32, added int64, err error) {
	width = byteOrder.Uint32(b[0:])
	depth = byteOrder.Uint32(b[4:])
	added = int64(byteOrder.Uint64(b[8:]))
	if width == 0 || depth == 0 {
		return 0, 0, 0, ErrTruncated
	}
	return width, depth, added, nil
}
