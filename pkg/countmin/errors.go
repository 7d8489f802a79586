package countmin

import (
	"errors"
	"math"
)

// ErrorValue is the legacy sentinel returned alongside a non-nil error by every
// int32-returning operation. It is also a reachable result of saturating
// removals, so callers must check the error rather than compare against it.
const ErrorValue int32 = math.MinInt32

var (
	ErrInvalidWidth       = errors.New("countmin: width must be greater than zero")
	ErrInvalidDepth       = errors.New("countmin: depth must be greater than zero")
	ErrInvalidErrorRate   = errors.New("countmin: error rate must be in the open interval (0, 1)")
	ErrInvalidConfidence  = errors.New("countmin: confidence must be in the open interval (0, 1)")
	ErrInsufficientHashes = errors.New("countmin: fewer hashes than depth")
	ErrTruncated          = errors.New("countmin: serialized sketch is truncated or corrupt")
	ErrDimensionMismatch  = errors.New("countmin: sketch dimensions do not match")
	ErrNoSketches         = errors.New("countmin: no sketches to merge")
	ErrWidthTooSmall      = errors.New("countmin: mean-min estimate requires width of at least 2")
	ErrUnknownHasher      = errors.New("countmin: unknown hasher")
	ErrUnknownStrategy    = errors.New("countmin: unknown query strategy")
	ErrUnsupported        = errors.New("countmin: operation not supported")
	ErrDestroyed          = errors.New("countmin: sketch has been destroyed")
)
