// Package framestore owns the authoritative, deduplicated, bounded sequence of
// box-slice frames.
//
// A Store is append-only: frames are never mutated after Ingest accepts them
// and leave only by eviction (oldest first) or Reset. Derived layout is never
// kept here; callers recompute it from Frames on every pass.
package framestore

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/daviddao/boxslice_viewer/internal/boxslice"
)

// DefaultLimit is the retention bound used when New is given a non-positive limit.
const DefaultLimit = 300

var (
	ErrSubscriberExists = errors.New("subscriber already exists")
	ErrNilChannel       = errors.New("nil channel")
)

// IngestResult summarizes one Ingest call.
type IngestResult struct {
	Appended   int
	Duplicates int
	Rejected   int
	Evicted    int
}

// Changed reports whether the retained sequence was modified.
func (r IngestResult) Changed() bool {
	return r.Appended > 0 || r.Evicted > 0
}

// Change is delivered to subscribers after the store's content changes.
type Change struct {
	Appended int
	Evicted  int
	Len      int
	Reset    bool
}

// Store is a bounded, deduplicated, ordered frame sequence.
type Store struct {
	mu     sync.RWMutex
	frames []boxslice.Frame
	limit  int
	cursor time.Time
	logger *slog.Logger
	subs   map[string]chan<- Change
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for rejected frames.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a store retaining at most limit frames.
func New(limit int, opts ...Option) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	s := &Store{
		limit:  limit,
		logger: slog.Default(),
		subs:   make(map[string]chan<- Change),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ingest appends each frame in order unless it equals the current last frame.
// Malformed frames are rejected and logged; the rest of the batch proceeds.
// Cursor advances past every frame newer than it, rejected or not.
// After the batch the oldest frames are evicted down to the limit.
func (s *Store) Ingest(frames []boxslice.Frame) IngestResult {
	s.mu.Lock()
	var res IngestResult
	for _, f := range frames {
		err := s.check(f)
		// The cursor passes rejected frames too, never moving backwards.
		if f.Timestamp.After(s.cursor) {
			s.cursor = f.Timestamp
		}
		if err != nil {
			res.Rejected++
			s.logger.Warn("rejected frame", "timestamp", f.Timestamp, "boxes", len(f.Boxes), "err", err)
			continue
		}
		if n := len(s.frames); n > 0 && s.frames[n-1].Equal(f) {
			res.Duplicates++
			continue
		}
		s.frames = append(s.frames, clone(f))
		res.Appended++
	}
	if over := len(s.frames) - s.limit; over > 0 {
		// Copy down so the backing array does not grow without bound.
		kept := make([]boxslice.Frame, s.limit)
		copy(kept, s.frames[over:])
		s.frames = kept
		res.Evicted = over
	}
	n := len(s.frames)
	s.mu.Unlock()

	if res.Changed() {
		s.notify(Change{Appended: res.Appended, Evicted: res.Evicted, Len: n})
	}
	return res
}

// check applies per-frame and stream-level validation against the current tail.
func (s *Store) check(f boxslice.Frame) error {
	if err := boxslice.Validate(f); err != nil {
		return err
	}
	if !s.cursor.IsZero() && f.Timestamp.Before(s.cursor) {
		return &boxslice.ValidationError{Timestamp: f.Timestamp, Box: -1, Err: boxslice.ErrOutOfOrder}
	}
	if n := len(s.frames); n > 0 {
		if want := s.frames[n-1].Len(); f.Len() != want {
			return &boxslice.ValidationError{
				Timestamp: f.Timestamp,
				Box:       -1,
				Err:       fmt.Errorf("%w: got %d, want %d", boxslice.ErrCountMismatch, f.Len(), want),
			}
		}
	}
	return nil
}

func clone(f boxslice.Frame) boxslice.Frame {
	boxes := make([]boxslice.Box, len(f.Boxes))
	copy(boxes, f.Boxes)
	return boxslice.Frame{Timestamp: f.Timestamp, Boxes: boxes}
}

// Reset drops every frame and the cursor.
func (s *Store) Reset() {
	s.mu.Lock()
	s.frames = nil
	s.cursor = time.Time{}
	s.mu.Unlock()
	s.notify(Change{Reset: true})
}

// Len returns the number of retained frames.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frames)
}

// Limit returns the retention bound.
func (s *Store) Limit() int { return s.limit }

// Frames returns a copy of the retained sequence, oldest first. The frames
// themselves are shared and must not be modified.
func (s *Store) Frames() []boxslice.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]boxslice.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// At returns the i-th retained frame.
func (s *Store) At(i int) (boxslice.Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.frames) {
		return boxslice.Frame{}, false
	}
	return s.frames[i], true
}

// Last returns the newest retained frame.
func (s *Store) Last() (boxslice.Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.frames) == 0 {
		return boxslice.Frame{}, false
	}
	return s.frames[len(s.frames)-1], true
}

// Cursor is the newest timestamp observed, including dropped duplicates.
// The next poll asks only for frames after it.
func (s *Store) Cursor() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}
