// Package viewport owns the chart's horizontal scroll position and vertical
// element window, and maps pointer positions to frames.
package viewport

import (
	"math"

	"github.com/daviddao/boxslice_viewer/internal/boxslice"
	"github.com/daviddao/boxslice_viewer/internal/geometry"
	"github.com/daviddao/boxslice_viewer/internal/render"
	"github.com/daviddao/boxslice_viewer/internal/snapshot"
)

// Controller tracks scroll, window and hover state. It is not safe for
// concurrent use; the UI loop owns it.
type Controller struct {
	frameWidth float64
	viewWidth  float64
	scrollLeft float64
	frames     int
	follow     bool

	window boxslice.Window
	total  int

	hover    *geometry.Hover
	handlers render.Handlers
}

// New returns a controller following the newest frame.
func New(frameWidth, viewWidth float64, visibleCount int, h render.Handlers) *Controller {
	return &Controller{
		frameWidth: math.Max(frameWidth, 0),
		viewWidth:  math.Max(viewWidth, 0),
		follow:     true,
		window:     boxslice.Window{VisibleCount: max(visibleCount, 0)},
		handlers:   h,
	}
}

func (c *Controller) FrameWidth() float64 { return c.frameWidth }
func (c *Controller) ViewWidth() float64  { return c.viewWidth }
func (c *Controller) ScrollLeft() float64 { return c.scrollLeft }
func (c *Controller) Follow() bool        { return c.follow }

// Window returns the current element window.
func (c *Controller) Window() boxslice.Window { return c.window }

// SetHandlers replaces the event callbacks.
func (c *Controller) SetHandlers(h render.Handlers) { c.handlers = h }

// maxScroll is the largest scroll offset that still fills the view.
func (c *Controller) maxScroll() float64 {
	return math.Max(0, float64(c.frames)*c.frameWidth-c.viewWidth)
}

func (c *Controller) clampScroll() {
	c.scrollLeft = math.Max(0, math.Min(c.scrollLeft, c.maxScroll()))
}

// SetViewWidth updates the visible width, e.g. on resize.
func (c *Controller) SetViewWidth(w float64) {
	c.viewWidth = math.Max(w, 0)
	if c.follow {
		c.scrollLeft = c.maxScroll()
		return
	}
	c.clampScroll()
}

// SetFrameWidth changes the width of one frame column.
func (c *Controller) SetFrameWidth(w float64) {
	c.frameWidth = math.Max(w, 0)
	if c.follow {
		c.scrollLeft = c.maxScroll()
		return
	}
	c.clampScroll()
}

// ScrollBy moves the scroll position by dx, clamped to the content. Scrolling
// away from the end stops following; reaching the end resumes it.
func (c *Controller) ScrollBy(dx float64) bool {
	prev := c.scrollLeft
	c.scrollLeft += dx
	c.clampScroll()
	c.follow = c.scrollLeft >= c.maxScroll()
	return c.scrollLeft != prev
}

// ScrollToEnd jumps to the newest frame and resumes following.
func (c *Controller) ScrollToEnd() {
	c.follow = true
	c.scrollLeft = c.maxScroll()
}

// OnFramesArrived records the new frame count. While following, the view
// auto-scrolls so the newest frame is visible.
func (c *Controller) OnFramesArrived(n int) {
	c.frames = max(n, 0)
	if c.follow {
		c.scrollLeft = c.maxScroll()
		return
	}
	c.clampScroll()
}

// VisibleRange returns the frames [lo, hi) intersecting the view.
func (c *Controller) VisibleRange() (lo, hi int) {
	if c.frameWidth <= 0 || c.frames == 0 {
		return 0, 0
	}
	lo = int(math.Floor(c.scrollLeft / c.frameWidth))
	hi = int(math.Ceil((c.scrollLeft + c.viewWidth) / c.frameWidth))
	lo = max(0, min(lo, c.frames))
	hi = max(lo, min(hi, c.frames))
	return lo, hi
}

// SetTotal sets the element count per frame and re-clamps the window.
func (c *Controller) SetTotal(total int) {
	c.total = max(total, 0)
	c.setWindow(c.window.Clamp(c.total))
}

// SetVisibleCount changes the window size and re-clamps the offset.
func (c *Controller) SetVisibleCount(n int) {
	w := c.window
	w.VisibleCount = max(n, 0)
	c.setWindow(w.Clamp(c.total))
}

func (c *Controller) setWindow(w boxslice.Window) {
	changed := w.Offset != c.window.Offset
	c.window = w
	if changed {
		c.handlers.OffsetChanged(w.Offset)
	}
}

// CanIncrement reports whether the offset can grow.
func (c *Controller) CanIncrement() bool {
	return c.window.Offset < c.window.MaxOffset(c.total)
}

// CanDecrement reports whether the offset can shrink.
func (c *Controller) CanDecrement() bool {
	return c.window.Offset > 0
}

// Increment moves the window one element up. It is a no-op at the bound.
func (c *Controller) Increment() bool {
	if !c.CanIncrement() {
		return false
	}
	w := c.window
	w.Offset++
	c.setWindow(w)
	return true
}

// Decrement moves the window one element down. It is a no-op at zero.
func (c *Controller) Decrement() bool {
	if !c.CanDecrement() {
		return false
	}
	w := c.window
	w.Offset--
	c.setWindow(w)
	return true
}

// FrameAt maps a view x coordinate to a frame index and the offset within
// that frame. ok is false outside the frame sequence.
func (c *Controller) FrameAt(x float64) (index int, dx float64, ok bool) {
	if c.frameWidth <= 0 || x < 0 || x > c.viewWidth {
		return 0, 0, false
	}
	abs := x + c.scrollLeft
	index = int(math.Floor(abs / c.frameWidth))
	if index < 0 || index >= c.frames {
		return 0, 0, false
	}
	return index, abs - float64(index)*c.frameWidth, true
}

// Hover resolves the pointer at (x, y) against snap and emits OnHover. A
// pointer outside every frame clears the hover.
func (c *Controller) Hover(x, y float64, snap *snapshot.DataSnapshot) *geometry.Hover {
	if snap.Empty() || y < 0 || y > snap.Height {
		c.Leave()
		return nil
	}
	i, dx, ok := c.FrameAt(x)
	if !ok {
		c.Leave()
		return nil
	}
	h, ok := snap.Probe(i, dx, c.frameWidth)
	if !ok {
		c.Leave()
		return nil
	}
	c.hover = &h
	c.handlers.Hovered(c.hover)
	return c.hover
}

// Leave clears the hover. OnHover(nil) fires only if something was hovered.
func (c *Controller) Leave() {
	if c.hover == nil {
		return
	}
	c.hover = nil
	c.handlers.Hovered(nil)
}

// Hovered returns the current hover, or nil.
func (c *Controller) Hovered() *geometry.Hover { return c.hover }

// Select emits OnFrameSelect for the frame under x.
func (c *Controller) Select(x float64, snap *snapshot.DataSnapshot) (int, bool) {
	if snap == nil {
		return 0, false
	}
	i, _, ok := c.FrameAt(x)
	if !ok || i >= len(snap.Frames) {
		return 0, false
	}
	c.handlers.FrameSelected(snap.Frames[i], i)
	return i, true
}
