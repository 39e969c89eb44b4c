package boxslice

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrNonFinite     = errors.New("non-finite number")
	ErrInvertedRange = errors.New("high below low")
	ErrCountMismatch = errors.New("element count mismatch")
	ErrOutOfOrder    = errors.New("timestamp before cursor")
	ErrBadTimestamp  = errors.New("bad timestamp")
	ErrUndecodable   = errors.New("undecodable frame")
)

// ValidationError describes why a single frame was rejected.
type ValidationError struct {
	Timestamp time.Time
	Box       int // -1 when the problem is frame-level
	Err       error
}

func (e *ValidationError) Error() string {
	if e.Box >= 0 {
		return fmt.Sprintf("frame %s box %d: %v", e.Timestamp.Format(time.RFC3339), e.Box, e.Err)
	}
	return fmt.Sprintf("frame %s: %v", e.Timestamp.Format(time.RFC3339), e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks the frame's own shape: finite numbers and High >= Low.
// Stream-level checks (element count, ordering) belong to the frame store.
func Validate(f Frame) error {
	for i, b := range f.Boxes {
		if !finite(b.High) || !finite(b.Low) || !finite(b.Value) {
			return &ValidationError{Timestamp: f.Timestamp, Box: i, Err: ErrNonFinite}
		}
		if b.High < b.Low {
			return &ValidationError{Timestamp: f.Timestamp, Box: i, Err: ErrInvertedRange}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
