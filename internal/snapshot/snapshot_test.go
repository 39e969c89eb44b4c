package snapshot

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/daviddao/boxslice_viewer/internal/boxslice"
	"github.com/daviddao/boxslice_viewer/internal/framestore"
)

var base = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

// newTestStore creates a quiet store preloaded with frames of the given values.
func newTestStore(t *testing.T, frames ...[]float64) *framestore.Store {
	t.Helper()
	s := framestore.New(50, framestore.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	var batch []boxslice.Frame
	for i, vals := range frames {
		boxes := make([]boxslice.Box, len(vals))
		for j, v := range vals {
			boxes[j] = boxslice.Box{High: 3, Low: 1, Value: v}
		}
		batch = append(batch, boxslice.Frame{Timestamp: base.Add(time.Duration(i) * time.Minute), Boxes: boxes})
	}
	if res := s.Ingest(batch); res.Rejected != 0 {
		t.Fatalf("fixture rejected %d frames", res.Rejected)
	}
	return s
}

func TestBuildEmptyStore(t *testing.T) {
	s := newTestStore(t)
	snap := Build(s, boxslice.Window{VisibleCount: 3}, 300)

	if !snap.Empty() {
		t.Error("snapshot of empty store should be Empty")
	}
	if len(snap.Frames) != 0 || len(snap.Layouts) != 0 {
		t.Errorf("expected no frames, got %d/%d", len(snap.Frames), len(snap.Layouts))
	}
	if snap.TotalElements != 0 {
		t.Errorf("TotalElements = %d", snap.TotalElements)
	}
	if snap.BuiltAt.IsZero() {
		t.Error("BuiltAt should not be zero")
	}
	if _, ok := snap.Probe(0, 0, 10); ok {
		t.Error("Probe on empty snapshot should fail")
	}
}

func TestBuildLayouts(t *testing.T) {
	s := newTestStore(t, []float64{1, 1, -1}, []float64{1, -1, -1})
	snap := Build(s, boxslice.Window{VisibleCount: 3}, 300)

	if len(snap.Layouts) != 2 {
		t.Fatalf("layouts = %d, want 2", len(snap.Layouts))
	}
	if mp := snap.Layouts[1].MeetingPoint; mp != 200 {
		t.Errorf("frame 1 meeting point = %v, want 200", mp)
	}
	if mp := snap.Layouts[0].MeetingPoint; mp != 100 {
		t.Errorf("frame 0 meeting point = %v, want 100", mp)
	}
	if a := snap.Layouts[1].Assignment; a.Up() != 1 || a.Down() != 2 {
		t.Errorf("frame 1 up/down = %d/%d", a.Up(), a.Down())
	}
	if snap.UpFrames != 2 || snap.DownFrames != 0 {
		t.Errorf("Up/Down frames = %d/%d (ties keep the first dominant box)", snap.UpFrames, snap.DownFrames)
	}
	if !snap.Cursor.Equal(base.Add(time.Minute)) {
		t.Errorf("Cursor = %v", snap.Cursor)
	}
}

func TestBuildClampsWindow(t *testing.T) {
	s := newTestStore(t, []float64{1, -1, 2, -2, 3})
	snap := Build(s, boxslice.Window{Offset: 9, VisibleCount: 2}, 100)

	if snap.Window.Offset != 3 {
		t.Errorf("Offset = %d, want clamped to 3", snap.Window.Offset)
	}
	l := snap.Layouts[0]
	if len(l.Visible) != 2 || l.Visible[0].Value != -2 {
		t.Errorf("visible = %+v", l.Visible)
	}
	if p, ok := l.Assignment.Lookup(4); !ok || !p.Upward || p.Slot != 0 {
		t.Errorf("box 4 placement = %+v %v", p, ok)
	}
}

func TestMeetingPointsAndBounds(t *testing.T) {
	s := newTestStore(t, []float64{1, -1}, []float64{-1, -1}, []float64{1, 1})
	snap := Build(s, boxslice.Window{VisibleCount: 2}, 100)

	mps := snap.MeetingPoints(-5, 99)
	if len(mps) != 3 || mps[0] != 50 || mps[1] != 100 || mps[2] != 0 {
		t.Errorf("MeetingPoints = %v", mps)
	}
	if got := snap.MeetingPoints(2, 1); len(got) != 0 {
		t.Errorf("inverted range should be empty, got %v", got)
	}
	if got := snap.VisibleBoxes(1, 2); len(got) != 1 || got[0][0].Value != -1 {
		t.Errorf("VisibleBoxes = %v", got)
	}
}

func TestProbe(t *testing.T) {
	s := newTestStore(t, []float64{2, -1}, []float64{-3, 1})
	snap := Build(s, boxslice.Window{VisibleCount: 2}, 100)

	h, ok := snap.Probe(1, 5, 10)
	if !ok {
		t.Fatal("Probe failed")
	}
	if h.FrameIndex != 1 || h.Direction != boxslice.Down {
		t.Errorf("hover = %+v", h)
	}
}

func TestZeroVisibleCountIsEmpty(t *testing.T) {
	s := newTestStore(t, []float64{1})
	snap := Build(s, boxslice.Window{VisibleCount: 0}, 100)
	if !snap.Empty() {
		t.Error("zero visible count should render as empty")
	}
	var nilSnap *DataSnapshot
	if !nilSnap.Empty() {
		t.Error("nil snapshot should be Empty")
	}
}
