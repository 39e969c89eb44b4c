package render

import (
	"github.com/daviddao/boxslice_viewer/internal/boxslice"
	"github.com/daviddao/boxslice_viewer/internal/geometry"
	"github.com/daviddao/boxslice_viewer/internal/snapshot"
)

// Props is what a page or layout hands to the chart surface.
type Props struct {
	Frames             []boxslice.Frame
	PixelHeight        float64
	PixelWidth         float64
	Offset             int
	VisibleCount       int
	SelectedFrameIndex int
}

// Window returns the element window described by the props.
func (p Props) Window() boxslice.Window {
	return boxslice.Window{Offset: p.Offset, VisibleCount: p.VisibleCount}
}

// Snapshot derives the layout snapshot for the props.
func (p Props) Snapshot() *snapshot.DataSnapshot {
	return snapshot.FromFrames(p.Frames, p.Window(), p.PixelHeight)
}

// Scroller is the horizontal state a scene is cut from.
type Scroller interface {
	FrameWidth() float64
	ScrollLeft() float64
	VisibleRange() (first, last int)
}

// Scene cuts a paint pass out of the scroller's visible range, outlining
// SelectedFrameIndex. A nil snap is derived from the props.
func (p Props) Scene(snap *snapshot.DataSnapshot, s Scroller, pal Palette) Scene {
	if snap == nil {
		snap = p.Snapshot()
	}
	first, last := s.VisibleRange()
	return Scene{
		Snapshot:   snap,
		FrameWidth: s.FrameWidth(),
		ScrollLeft: s.ScrollLeft(),
		First:      first,
		Last:       last,
		Selected:   p.SelectedFrameIndex,
		Palette:    pal,
	}
}

// Handlers are the callbacks the chart surface emits. Nil handlers are skipped.
type Handlers struct {
	OnFrameSelect  func(f boxslice.Frame, index int)
	OnOffsetChange func(offset int)
	OnHover        func(h *geometry.Hover)
}

// FrameSelected invokes OnFrameSelect if set.
func (h Handlers) FrameSelected(f boxslice.Frame, index int) {
	if h.OnFrameSelect != nil {
		h.OnFrameSelect(f, index)
	}
}

// OffsetChanged invokes OnOffsetChange if set.
func (h Handlers) OffsetChanged(offset int) {
	if h.OnOffsetChange != nil {
		h.OnOffsetChange(offset)
	}
}

// Hovered invokes OnHover if set. A nil hover means the pointer left.
func (h Handlers) Hovered(hv *geometry.Hover) {
	if h.OnHover != nil {
		h.OnHover(hv)
	}
}
