package boxslice

// Window is the contiguous slice of each frame's elements currently rendered.
type Window struct {
	Offset       int
	VisibleCount int
}

// MaxOffset is the largest valid offset for a frame with total elements.
func (w Window) MaxOffset(total int) int {
	if m := total - w.VisibleCount; m > 0 {
		return m
	}
	return 0
}

// Clamp returns the window with Offset forced into [0, total-VisibleCount]
// and a non-negative VisibleCount.
func (w Window) Clamp(total int) Window {
	if w.VisibleCount < 0 {
		w.VisibleCount = 0
	}
	if w.Offset > w.MaxOffset(total) {
		w.Offset = w.MaxOffset(total)
	}
	if w.Offset < 0 {
		w.Offset = 0
	}
	return w
}
