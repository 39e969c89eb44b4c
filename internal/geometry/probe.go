package geometry

import (
	"time"

	"github.com/daviddao/boxslice_viewer/internal/boxslice"
)

// Hover is what the pointer resolves to inside a frame.
type Hover struct {
	FrameIndex int
	Timestamp  time.Time
	Y          float64
	Direction  boxslice.Direction
	High       float64
	Low        float64
}

// Representative returns the box closest to equilibrium (smallest magnitude,
// first on ties). Its range is the most sensitive price level of the frame.
func Representative(boxes []boxslice.Box) (boxslice.Box, bool) {
	if len(boxes) == 0 {
		return boxslice.Box{}, false
	}
	best := boxes[0]
	for _, b := range boxes[1:] {
		if b.Magnitude() < best.Magnitude() {
			best = b
		}
	}
	return best, true
}

// Probe resolves a pointer at within-frame offset dx of frames[i]. visible
// holds each frame's visible boxes and mps their meeting points, index-aligned
// with frames.
func Probe(frames []boxslice.Frame, visible [][]boxslice.Box, mps []float64, i int, dx, frameWidth, height float64) (Hover, bool) {
	if i < 0 || i >= len(frames) || i >= len(mps) || i >= len(visible) {
		return Hover{}, false
	}
	rep, ok := Representative(visible[i])
	if !ok {
		return Hover{}, false
	}
	return Hover{
		FrameIndex: i,
		Timestamp:  frames[i].Timestamp,
		Y:          HitTest(mps, i, dx, frameWidth, height),
		Direction:  frames[i].Direction(),
		High:       rep.High,
		Low:        rep.Low,
	}, true
}
