// Package position assigns each box of a frame to a stack slot.
//
// The assignment is a stable partition by sign: upward boxes (value > 0) take
// the first slots in their original order, downward boxes (value <= 0) the
// remaining slots in their original order. Slot 0 is the top of the stack on
// screen for every frame, so transitions between frames stay continuous.
package position

import (
	"sort"

	"github.com/daviddao/boxslice_viewer/internal/boxslice"
)

// Placement is one box's position in the stack.
type Placement struct {
	Box    int // original index within the frame
	Slot   int
	Upward bool
}

// Assignment maps box numbers to stack slots for one frame.
type Assignment struct {
	base   int
	byBox  []Placement // indexed by Box - base
	bySlot []Placement
	up     int
}

// Resolve computes the assignment for boxes, where base is the box number of
// boxes[0]. An empty input yields an empty assignment.
func Resolve(boxes []boxslice.Box, base int) Assignment {
	a := Assignment{
		base:   base,
		byBox:  make([]Placement, len(boxes)),
		bySlot: make([]Placement, 0, len(boxes)),
	}
	for i, b := range boxes {
		if b.Direction() == boxslice.Up {
			a.up++
		}
		a.byBox[i] = Placement{Box: base + i, Upward: b.Direction() == boxslice.Up}
	}
	upSlot, downSlot := 0, a.up
	for i := range a.byBox {
		if a.byBox[i].Upward {
			a.byBox[i].Slot = upSlot
			upSlot++
		} else {
			a.byBox[i].Slot = downSlot
			downSlot++
		}
	}
	a.bySlot = a.bySlot[:len(boxes)]
	for _, p := range a.byBox {
		a.bySlot[p.Slot] = p
	}
	return a
}

// ResolveFrame resolves the window's slice of f.
func ResolveFrame(f boxslice.Frame, w boxslice.Window) Assignment {
	boxes, base := f.Visible(w)
	return Resolve(boxes, base)
}

// Len is the number of placed boxes.
func (a Assignment) Len() int { return len(a.byBox) }

// Up is the size of the upward block.
func (a Assignment) Up() int { return a.up }

// Down is the size of the downward block.
func (a Assignment) Down() int { return len(a.byBox) - a.up }

// Empty reports whether there is nothing to draw.
func (a Assignment) Empty() bool { return len(a.byBox) == 0 }

// Lookup returns the placement of the given box number.
func (a Assignment) Lookup(box int) (Placement, bool) {
	i := box - a.base
	if i < 0 || i >= len(a.byBox) {
		return Placement{}, false
	}
	return a.byBox[i], true
}

// InSlotOrder returns placements ordered by slot.
func (a Assignment) InSlotOrder() []Placement {
	out := make([]Placement, len(a.bySlot))
	copy(out, a.bySlot)
	return out
}

// UpwardOrder returns the box numbers of the upward block in slot order.
func (a Assignment) UpwardOrder() []int {
	out := make([]int, 0, a.up)
	for _, p := range a.bySlot[:a.up] {
		out = append(out, p.Box)
	}
	return out
}

// DownwardOrder returns the box numbers of the downward block in slot order.
func (a Assignment) DownwardOrder() []int {
	out := make([]int, 0, a.Down())
	for _, p := range a.bySlot[a.up:] {
		out = append(out, p.Box)
	}
	return out
}

// ByMagnitude returns indices into boxes ordered by descending magnitude,
// ties kept in original order. It only decides paint order for nesting and
// has no effect on stacking.
func ByMagnitude(boxes []boxslice.Box) []int {
	idx := make([]int, len(boxes))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return boxes[idx[i]].Magnitude() > boxes[idx[j]].Magnitude()
	})
	return idx
}
