// Package geometry turns per-frame stack assignments into screen coordinates:
// the meeting point between a frame's upward and downward blocks, the slot
// rectangles, the staircase connector across frames, and pointer hit-testing.
//
// Meeting points are elevations measured from the bottom edge. Everything
// returned as a Point or Rect is in screen coordinates, y growing downward.
// Degenerate inputs (no visible slots, zero height or width) yield zero values
// rather than dividing by zero.
package geometry

import (
	"math"

	"github.com/daviddao/boxslice_viewer/internal/position"
)

// Point is a screen coordinate.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned screen rectangle.
type Rect struct {
	X, Y, W, H float64
}

// Center returns the rectangle's midpoint.
func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Inset shrinks the rectangle around its center to scale times its size.
func (r Rect) Inset(scale float64) Rect {
	w, h := r.W*scale, r.H*scale
	return Rect{X: r.X + (r.W-w)/2, Y: r.Y + (r.H-h)/2, W: w, H: h}
}

// SlotHeight is the height of one stack slot.
func SlotHeight(height float64, visible int) float64 {
	if visible <= 0 || height <= 0 {
		return 0
	}
	return height / float64(visible)
}

// MeetingPoint is the elevation of the boundary between the downward block
// (anchored at the bottom edge) and the upward block (anchored at the top
// edge). The unused band between them is split evenly.
func MeetingPoint(up, down, visible int, height float64) float64 {
	slot := SlotHeight(height, visible)
	if slot == 0 {
		return 0
	}
	d := float64(down) * slot
	u := float64(up) * slot
	return clamp(d+(height-d-u)/2, 0, height)
}

// FrameMeetingPoint is MeetingPoint for a resolved assignment.
func FrameMeetingPoint(a position.Assignment, visible int, height float64) float64 {
	return MeetingPoint(a.Up(), a.Down(), visible, height)
}

// ScreenY converts an elevation to a screen y coordinate.
func ScreenY(elevation, height float64) float64 {
	return height - elevation
}

// SlotRect is the cell occupied by p inside a frame drawn at x. Upward slots
// stack down from the top edge, downward slots stack up from the bottom edge.
func SlotRect(p position.Placement, a position.Assignment, visible int, x, frameWidth, height float64) Rect {
	slot := SlotHeight(height, visible)
	if slot == 0 || frameWidth <= 0 {
		return Rect{X: x}
	}
	var top float64
	if p.Upward {
		top = float64(p.Slot) * slot
	} else {
		fromBottom := a.Len() - p.Slot // 1 for the last slot
		top = height - float64(fromBottom)*slot
	}
	return Rect{X: x, Y: top, W: frameWidth, H: slot}
}

// GridLines returns the y of each slot's top edge, one line per visible slot.
func GridLines(visible int, height float64) []float64 {
	slot := SlotHeight(height, visible)
	if slot == 0 {
		return nil
	}
	ys := make([]float64, visible)
	for i := range ys {
		ys[i] = float64(i) * slot
	}
	return ys
}

// Connector builds the staircase through the meeting points mps of
// consecutive frames, the first starting at originX. Inside frame i it runs
// level at mps[i] to the frame's horizontal midpoint, rises or falls to
// mps[i+1], and continues level to the frame's right edge. The last frame
// stays at its own level.
func Connector(mps []float64, originX, frameWidth, height float64) []Point {
	if len(mps) == 0 || frameWidth <= 0 || height <= 0 {
		return nil
	}
	pts := make([]Point, 0, 3*len(mps)+1)
	x := originX
	pts = append(pts, Point{X: x, Y: ScreenY(mps[0], height)})
	for i, mp := range mps {
		next := mp
		if i+1 < len(mps) {
			next = mps[i+1]
		}
		mid := x + frameWidth/2
		pts = append(pts,
			Point{X: mid, Y: ScreenY(mp, height)},
			Point{X: mid, Y: ScreenY(next, height)},
			Point{X: x + frameWidth, Y: ScreenY(next, height)},
		)
		x += frameWidth
	}
	return pts
}

// HitTest estimates the connector's screen y at within-frame offset dx of
// frame i. It interpolates linearly over the connector's breakpoints: the
// left edge takes the average of the previous and own meeting point, the
// midpoint the own meeting point, the right edge the average of the own and
// next meeting point. Missing neighbours fall back to the own level.
func HitTest(mps []float64, i int, dx, frameWidth, height float64) float64 {
	if i < 0 || i >= len(mps) || frameWidth <= 0 || height <= 0 {
		return 0
	}
	own := mps[i]
	prev, next := own, own
	if i > 0 {
		prev = mps[i-1]
	}
	if i+1 < len(mps) {
		next = mps[i+1]
	}
	half := frameWidth / 2
	dx = clamp(dx, 0, frameWidth)
	var elev float64
	if dx <= half {
		elev = lerp((prev+own)/2, own, dx/half)
	} else {
		elev = lerp(own, (own+next)/2, (dx-half)/half)
	}
	return ScreenY(elev, height)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
