// Package snapshot builds immutable layout snapshots from the frame store.
//
// A DataSnapshot captures the retained frames together with everything derived
// from them for one render pass: each frame's visible boxes, stack assignment
// and meeting point. Snapshots are rebuilt whenever the store, the element
// window or the surface height changes and are handed to the render path by
// value, so the render path never sees a half-updated store.
package snapshot

import (
	"time"

	"github.com/daviddao/boxslice_viewer/internal/boxslice"
	"github.com/daviddao/boxslice_viewer/internal/framestore"
	"github.com/daviddao/boxslice_viewer/internal/geometry"
	"github.com/daviddao/boxslice_viewer/internal/position"
)

// FrameLayout is the derived layout of one frame.
type FrameLayout struct {
	Visible      []boxslice.Box
	Base         int // box number of Visible[0]
	Assignment   position.Assignment
	MeetingPoint float64
}

// DataSnapshot is a self-contained view of the store for one render pass.
type DataSnapshot struct {
	Frames  []boxslice.Frame
	Layouts []FrameLayout

	Window boxslice.Window
	Height float64

	// Total elements per frame (taken from the newest frame).
	TotalElements int

	// Counts.
	UpFrames   int
	DownFrames int

	// Newest observed timestamp, including dropped duplicates.
	Cursor time.Time

	// Timestamp of snapshot creation.
	BuiltAt time.Time
}

// Build reads the store and derives layouts for window and height.
func Build(s *framestore.Store, w boxslice.Window, height float64) *DataSnapshot {
	snap := FromFrames(s.Frames(), w, height)
	snap.Cursor = s.Cursor()
	return snap
}

// FromFrames derives a snapshot from an explicit frame sequence.
func FromFrames(frames []boxslice.Frame, w boxslice.Window, height float64) *DataSnapshot {
	total := 0
	if n := len(frames); n > 0 {
		total = frames[n-1].Len()
	}
	w = w.Clamp(total)

	layouts := make([]FrameLayout, len(frames))
	var up, down int
	for i, f := range frames {
		visible, base := f.Visible(w)
		a := position.Resolve(visible, base)
		layouts[i] = FrameLayout{
			Visible:      visible,
			Base:         base,
			Assignment:   a,
			MeetingPoint: geometry.FrameMeetingPoint(a, w.VisibleCount, height),
		}
		if f.Direction() == boxslice.Up {
			up++
		} else {
			down++
		}
	}

	return &DataSnapshot{
		Frames:        frames,
		Layouts:       layouts,
		Window:        w,
		Height:        height,
		TotalElements: total,
		UpFrames:      up,
		DownFrames:    down,
		BuiltAt:       time.Now(),
	}
}

// Empty reports whether there is nothing to draw.
func (s *DataSnapshot) Empty() bool {
	return s == nil || len(s.Frames) == 0 || s.Window.VisibleCount <= 0
}

// MeetingPoints returns the meeting points for frames [lo, hi).
func (s *DataSnapshot) MeetingPoints(lo, hi int) []float64 {
	lo, hi = s.bounds(lo, hi)
	out := make([]float64, 0, hi-lo)
	for _, l := range s.Layouts[lo:hi] {
		out = append(out, l.MeetingPoint)
	}
	return out
}

// VisibleBoxes returns the visible boxes of frames [lo, hi).
func (s *DataSnapshot) VisibleBoxes(lo, hi int) [][]boxslice.Box {
	lo, hi = s.bounds(lo, hi)
	out := make([][]boxslice.Box, 0, hi-lo)
	for _, l := range s.Layouts[lo:hi] {
		out = append(out, l.Visible)
	}
	return out
}

func (s *DataSnapshot) bounds(lo, hi int) (int, int) {
	if lo < 0 {
		lo = 0
	}
	if hi > len(s.Layouts) {
		hi = len(s.Layouts)
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

// Probe resolves a pointer inside frame i using the snapshot's layouts.
func (s *DataSnapshot) Probe(i int, dx, frameWidth float64) (geometry.Hover, bool) {
	if s.Empty() {
		return geometry.Hover{}, false
	}
	return geometry.Probe(s.Frames, s.VisibleBoxes(0, len(s.Frames)), s.MeetingPoints(0, len(s.Frames)), i, dx, frameWidth, s.Height)
}
