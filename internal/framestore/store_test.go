package framestore

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/daviddao/boxslice_viewer/internal/boxslice"
	"github.com/daviddao/boxslice_viewer/internal/position"
)

var t0 = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

func quietStore(limit int) *Store {
	return New(limit, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

// frameAt builds a frame at t0+sec seconds with the given values.
func frameAt(sec int, values ...float64) boxslice.Frame {
	boxes := make([]boxslice.Box, len(values))
	for i, v := range values {
		boxes[i] = boxslice.Box{High: 20, Low: 10, Value: v}
	}
	return boxslice.Frame{Timestamp: t0.Add(time.Duration(sec) * time.Second), Boxes: boxes}
}

func TestScenarioADuplicateDropped(t *testing.T) {
	s := quietStore(10)
	s.Ingest([]boxslice.Frame{frameAt(0, 1, 1, -1)})
	res := s.Ingest([]boxslice.Frame{frameAt(5, 1, 1, -1)})

	if s.Len() != 1 {
		t.Fatalf("store length = %d, want 1", s.Len())
	}
	if res.Duplicates != 1 || res.Appended != 0 {
		t.Errorf("result = %+v, want 1 duplicate", res)
	}
	last, _ := s.Last()
	if !last.Timestamp.Equal(t0) {
		t.Errorf("duplicate replaced the stored timestamp: %v", last.Timestamp)
	}
	if !s.Cursor().Equal(t0.Add(5 * time.Second)) {
		t.Errorf("cursor = %v, want advanced to duplicate's timestamp", s.Cursor())
	}
}

func TestScenarioBChangedFrameAppended(t *testing.T) {
	s := quietStore(10)
	s.Ingest([]boxslice.Frame{frameAt(0, 1, 1, -1)})
	s.Ingest([]boxslice.Frame{frameAt(5, 1, -1, -1)})

	if s.Len() != 2 {
		t.Fatalf("store length = %d, want 2", s.Len())
	}
	second, _ := s.At(1)
	a := position.Resolve(second.Boxes, 0)
	if a.Up() != 1 || a.Down() != 2 {
		t.Errorf("assignment up=%d down=%d, want 1/2", a.Up(), a.Down())
	}
}

func TestDedupIdempotence(t *testing.T) {
	s := quietStore(10)
	s.Ingest([]boxslice.Frame{frameAt(0, 3, -2), frameAt(1, 3, 2)})
	before := s.Frames()
	for i := 0; i < 5; i++ {
		s.Ingest([]boxslice.Frame{frameAt(2+i, 3, 2)})
	}
	after := s.Frames()
	if len(after) != len(before) {
		t.Fatalf("length changed from %d to %d", len(before), len(after))
	}
	for i := range before {
		if !before[i].Timestamp.Equal(after[i].Timestamp) || !before[i].Equal(after[i]) {
			t.Errorf("frame %d changed", i)
		}
	}
}

func TestDuplicateOnlyComparedToLast(t *testing.T) {
	s := quietStore(10)
	s.Ingest([]boxslice.Frame{frameAt(0, 1), frameAt(1, -1), frameAt(2, 1)})
	if s.Len() != 3 {
		t.Errorf("A-B-A should keep all three frames, got %d", s.Len())
	}
}

func TestBoundedRetention(t *testing.T) {
	const bound = 5
	s := quietStore(bound)
	var batch []boxslice.Frame
	for i := 0; i < 12; i++ {
		batch = append(batch, frameAt(i, float64(i+1)))
	}
	res := s.Ingest(batch)

	if s.Len() != bound {
		t.Fatalf("Len = %d, want %d", s.Len(), bound)
	}
	if res.Evicted != 12-bound {
		t.Errorf("Evicted = %d, want %d", res.Evicted, 12-bound)
	}
	for i, f := range s.Frames() {
		want := t0.Add(time.Duration(12-bound+i) * time.Second)
		if !f.Timestamp.Equal(want) {
			t.Errorf("frame %d timestamp = %v, want %v", i, f.Timestamp, want)
		}
	}
}

func TestBoundedRetentionAcrossBatches(t *testing.T) {
	s := quietStore(3)
	for i := 0; i < 10; i++ {
		s.Ingest([]boxslice.Frame{frameAt(i, float64(i%2*2-1)*float64(i+1))})
		if s.Len() > 3 {
			t.Fatalf("after batch %d Len = %d exceeds bound", i, s.Len())
		}
	}
	first, _ := s.At(0)
	if !first.Timestamp.Equal(t0.Add(7 * time.Second)) {
		t.Errorf("oldest retained = %v, want t0+7s", first.Timestamp)
	}
}

func TestMalformedFramesRejectedBatchContinues(t *testing.T) {
	s := quietStore(10)
	nan := frameAt(2, 1, 2)
	nan.Boxes[0].Value = math.NaN()
	inverted := frameAt(3, 1, 2)
	inverted.Boxes[1].High = 0

	res := s.Ingest([]boxslice.Frame{
		frameAt(0, 1, 2),
		frameAt(1, 1, 2, 3), // count mismatch
		nan,
		inverted,
		frameAt(4, -1, 2),
	})
	if res.Rejected != 3 {
		t.Errorf("Rejected = %d, want 3", res.Rejected)
	}
	if res.Appended != 2 || s.Len() != 2 {
		t.Errorf("Appended = %d Len = %d, want 2/2", res.Appended, s.Len())
	}
}

func TestCursorPassesRejectedFrames(t *testing.T) {
	s := quietStore(10)
	nan := frameAt(5, 1, 2)
	nan.Boxes[1].High = math.Inf(1)

	res := s.Ingest([]boxslice.Frame{frameAt(0, 1, 2), nan})
	if res.Rejected != 1 || res.Appended != 1 {
		t.Fatalf("res = %+v", res)
	}
	if !s.Cursor().Equal(nan.Timestamp) {
		t.Errorf("Cursor = %v, want the rejected frame's %v", s.Cursor(), nan.Timestamp)
	}

	// An out-of-order frame is rejected without pulling the cursor back.
	s.Ingest([]boxslice.Frame{frameAt(3, 1, 2)})
	if !s.Cursor().Equal(nan.Timestamp) {
		t.Errorf("Cursor moved back to %v", s.Cursor())
	}

	// A rejected frame with a zero timestamp leaves the cursor alone.
	zero := frameAt(0, 1, 2)
	zero.Timestamp = time.Time{}
	zero.Boxes[0].Value = math.NaN()
	s.Ingest([]boxslice.Frame{zero})
	if !s.Cursor().Equal(nan.Timestamp) {
		t.Errorf("Cursor = %v after zero-time frame", s.Cursor())
	}
}

func TestOutOfOrderRejected(t *testing.T) {
	s := quietStore(10)
	s.Ingest([]boxslice.Frame{frameAt(10, 1)})
	res := s.Ingest([]boxslice.Frame{frameAt(5, -1)})
	if res.Rejected != 1 || s.Len() != 1 {
		t.Errorf("older frame should be rejected: %+v len %d", res, s.Len())
	}
}

func TestCheckErrors(t *testing.T) {
	s := quietStore(10)
	s.Ingest([]boxslice.Frame{frameAt(0, 1, 2)})
	err := s.check(frameAt(1, 1))
	if !errors.Is(err, boxslice.ErrCountMismatch) {
		t.Errorf("check = %v, want ErrCountMismatch", err)
	}
	if err := s.check(frameAt(1, 5, 6)); err != nil {
		t.Errorf("check valid frame = %v", err)
	}
}

func TestStoredFramesAreCopies(t *testing.T) {
	s := quietStore(10)
	f := frameAt(0, 1, 2)
	s.Ingest([]boxslice.Frame{f})
	f.Boxes[0].Value = 99
	got, _ := s.At(0)
	if got.Boxes[0].Value != 1 {
		t.Error("store aliased the caller's box slice")
	}
}

func TestResetClearsCursorAndShape(t *testing.T) {
	s := quietStore(10)
	s.Ingest([]boxslice.Frame{frameAt(10, 1, 2)})
	s.Reset()
	if s.Len() != 0 || !s.Cursor().IsZero() {
		t.Fatalf("Reset left len=%d cursor=%v", s.Len(), s.Cursor())
	}
	res := s.Ingest([]boxslice.Frame{frameAt(0, 1, 2, 3)})
	if res.Appended != 1 {
		t.Errorf("after Reset a new shape and older timestamp should be accepted: %+v", res)
	}
}

func TestEmptyStoreAccessors(t *testing.T) {
	s := New(0)
	if s.Limit() != DefaultLimit {
		t.Errorf("Limit = %d, want default %d", s.Limit(), DefaultLimit)
	}
	if _, ok := s.Last(); ok {
		t.Error("Last on empty store should report false")
	}
	if _, ok := s.At(0); ok {
		t.Error("At(0) on empty store should report false")
	}
	if len(s.Frames()) != 0 {
		t.Error("Frames on empty store should be empty")
	}
}
