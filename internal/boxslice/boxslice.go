// Package boxslice defines the box-slice data model shared by every stage of
// the viewer: boxes, frames, the element window, and the wire format.
//
// Frames are immutable once they leave this package. Nothing downstream of the
// frame store mutates a Frame or its Boxes slice.
package boxslice

import (
	"math"
	"time"
)

// Direction is the directional state of a box, encoded by the sign of its value.
type Direction int

const (
	Down Direction = iota
	Up
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	}
	return "?"
}

// Box is one signed element of a frame.
type Box struct {
	High  float64
	Low   float64
	Value float64
}

// Direction reports Up for positive values and Down otherwise.
func (b Box) Direction() Direction {
	if b.Value > 0 {
		return Up
	}
	return Down
}

// Magnitude is the absolute strength of the box.
func (b Box) Magnitude() float64 {
	return math.Abs(b.Value)
}

// RangeRatio is (High-Low)/(High+|Low|) clamped to [0, 1]. It sizes the
// range rectangle drawn for the box.
func (b Box) RangeRatio() float64 {
	den := b.High + math.Abs(b.Low)
	if den == 0 || math.IsNaN(den) || math.IsInf(den, 0) {
		return 0
	}
	r := (b.High - b.Low) / den
	switch {
	case math.IsNaN(r) || r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}

// Frame is one timestamped snapshot of boxes.
type Frame struct {
	Timestamp time.Time
	Boxes     []Box
}

// Len returns the element count.
func (f Frame) Len() int { return len(f.Boxes) }

// Equal implements the frame-equality rule: same element count and pairwise
// identical values in index order. High, Low and Timestamp are ignored.
func (f Frame) Equal(o Frame) bool {
	if len(f.Boxes) != len(o.Boxes) {
		return false
	}
	for i := range f.Boxes {
		if f.Boxes[i].Value != o.Boxes[i].Value {
			return false
		}
	}
	return true
}

// Dominant returns the box with the largest magnitude. The first one wins ties.
func (f Frame) Dominant() (Box, bool) {
	if len(f.Boxes) == 0 {
		return Box{}, false
	}
	best := f.Boxes[0]
	for _, b := range f.Boxes[1:] {
		if b.Magnitude() > best.Magnitude() {
			best = b
		}
	}
	return best, true
}

// Direction classifies the whole frame by its dominant box. Empty frames are Down.
func (f Frame) Direction() Direction {
	b, ok := f.Dominant()
	if !ok {
		return Down
	}
	return b.Direction()
}

// Visible returns the window's slice of the frame's boxes and the box number
// of its first element.
func (f Frame) Visible(w Window) ([]Box, int) {
	w = w.Clamp(len(f.Boxes))
	end := w.Offset + w.VisibleCount
	if end > len(f.Boxes) {
		end = len(f.Boxes)
	}
	if w.Offset >= end {
		return nil, w.Offset
	}
	return f.Boxes[w.Offset:end], w.Offset
}

// IsSentinel reports whether the frame is the service's "no real data"
// placeholder: at least one box and every High equal to 1.
func (f Frame) IsSentinel() bool {
	if len(f.Boxes) == 0 {
		return false
	}
	for _, b := range f.Boxes {
		if b.High != 1 {
			return false
		}
	}
	return true
}

// FilterSentinels drops placeholder frames, preserving order.
func FilterSentinels(frames []Frame) []Frame {
	out := frames[:0:0]
	for _, f := range frames {
		if f.IsSentinel() {
			continue
		}
		out = append(out, f)
	}
	return out
}
