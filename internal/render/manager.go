package render

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"log/slog"
	"math"

	"github.com/daviddao/boxslice_viewer/internal/geometry"
	"github.com/daviddao/boxslice_viewer/internal/position"
	"github.com/daviddao/boxslice_viewer/internal/snapshot"
)

// NoDataMessage is painted when there is nothing to draw.
const NoDataMessage = "No data available"

// Scene is everything one pass paints: frames [First, Last) of the snapshot,
// each FrameWidth wide, shifted left by ScrollLeft.
type Scene struct {
	Snapshot   *snapshot.DataSnapshot
	FrameWidth float64
	ScrollLeft float64
	First      int
	Last       int
	Selected   int // -1 for none
	Palette    Palette
}

// degenerate reports whether the scene must short-circuit to the empty state.
func (sc Scene) degenerate(w, h float64) bool {
	return sc.Snapshot.Empty() || sc.FrameWidth <= 0 || w <= 0 || h <= 0 || sc.First >= sc.Last
}

// Manager paints scenes onto a surface, skipping passes whose inputs hash
// identically to the last painted pass.
type Manager struct {
	surface  Surface
	logger   *slog.Logger
	lastHash uint64
	painted  bool
	draws    int
	skips    int
}

// NewManager creates a manager for s. A nil logger uses slog.Default().
func NewManager(s Surface, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{surface: s, logger: logger}
}

// Surface returns the current drawing surface.
func (m *Manager) Surface() Surface { return m.surface }

// SetSurface swaps the drawing surface and forces the next pass to paint.
func (m *Manager) SetSurface(s Surface) {
	m.surface = s
	m.Invalidate()
}

// Invalidate forgets the last painted hash.
func (m *Manager) Invalidate() { m.painted = false }

// Stats returns how many passes painted and how many were suppressed.
func (m *Manager) Stats() (draws, skips int) { return m.draws, m.skips }

// Draw paints sc unless its content hash matches the last painted pass. It
// reports whether the surface was repainted.
func (m *Manager) Draw(sc Scene) (bool, error) {
	sum := m.hashScene(sc)
	if m.painted && sum == m.lastHash {
		m.skips++
		return false, nil
	}

	w, h := m.surface.Size()
	if sc.degenerate(w, h) {
		m.drawEmpty(sc.Palette, w, h)
	} else {
		m.drawFrames(sc, h)
	}
	if err := m.surface.Flush(); err != nil {
		// Leave painted unset so the next tick retries.
		m.painted = false
		m.logger.Warn("render pass failed", "err", err)
		return true, err
	}
	m.lastHash = sum
	m.painted = true
	m.draws++
	return true, nil
}

func (m *Manager) drawEmpty(p Palette, w, h float64) {
	m.surface.Clear(p.Background)
	if w > 0 && h > 0 {
		m.surface.Text(geometry.Point{X: w / 2, Y: h / 2}, NoDataMessage, p.Text)
	}
}

func (m *Manager) drawFrames(sc Scene, h float64) {
	snap := sc.Snapshot
	p := sc.Palette
	fw := sc.FrameWidth
	visible := snap.Window.VisibleCount

	m.surface.Clear(p.Background)
	for i := sc.First; i < sc.Last && i < len(snap.Frames); i++ {
		f := snap.Frames[i]
		layout := snap.Layouts[i]
		x := float64(i)*fw - sc.ScrollLeft
		cell := geometry.Rect{X: x, Y: 0, W: fw, H: h}

		top, bottom := p.Gradient(f.Direction())
		m.surface.FillGradient(cell, top, bottom)

		for _, y := range geometry.GridLines(visible, h) {
			m.surface.HLine(x, x+fw, y, p.Grid)
		}

		// Larger boxes first so smaller ones nest on top.
		slot := geometry.SlotHeight(h, visible)
		for _, idx := range position.ByMagnitude(layout.Visible) {
			b := layout.Visible[idx]
			pl, ok := layout.Assignment.Lookup(layout.Base + idx)
			if !ok {
				continue
			}
			r := geometry.SlotRect(pl, layout.Assignment, visible, x, fw, h)
			m.surface.FillRect(r.Inset(0.8*b.RangeRatio()), p.Box(b.Direction()))
			m.surface.Dot(r.Center(), math.Min(slot, fw)/10, p.Dot)
		}

		if i == sc.Selected {
			m.surface.StrokeRect(cell, p.Selection)
		}
	}

	// One extra meeting point so the last visible riser reaches its neighbour.
	hi := sc.Last + 1
	pts := geometry.Connector(snap.MeetingPoints(sc.First, hi), float64(sc.First)*fw-sc.ScrollLeft, fw, h)
	for j := 1; j < len(pts); j++ {
		a, b := pts[j-1], pts[j]
		switch {
		case a.Y == b.Y && a.X != b.X:
			m.surface.HLine(a.X, b.X, a.Y, p.Connector)
		case a.X == b.X && a.Y != b.Y:
			m.surface.VLine(a.X, a.Y, b.Y, p.Connector)
		}
	}
}

// hashScene folds every pixel-affecting input into one FNV-64a sum.
func (m *Manager) hashScene(sc Scene) uint64 {
	hs := fnv.New64a()
	w, h := m.surface.Size()
	writeFloats(hs, w, h, sc.FrameWidth, sc.ScrollLeft)
	writeInts(hs, sc.First, sc.Last, sc.Selected)
	for _, c := range []Color{
		sc.Palette.Background, sc.Palette.Grid, sc.Palette.Dot, sc.Palette.Connector,
		sc.Palette.Selection, sc.Palette.Text, sc.Palette.UpTop, sc.Palette.UpBottom,
		sc.Palette.DownTop, sc.Palette.DownBottom, sc.Palette.UpBox, sc.Palette.DownBox,
	} {
		hs.Write([]byte(c))
		hs.Write([]byte{0})
	}
	if sc.degenerate(w, h) {
		writeInts(hs, -1)
		return hs.Sum64()
	}
	snap := sc.Snapshot
	writeInts(hs, snap.Window.Offset, snap.Window.VisibleCount)
	writeFloats(hs, snap.Height)
	hi := sc.Last + 1
	if hi > len(snap.Layouts) {
		hi = len(snap.Layouts)
	}
	for i := sc.First; i < hi; i++ {
		l := snap.Layouts[i]
		// The cell gradient follows boxes outside the window too.
		writeInts(hs, i, len(l.Visible), int(snap.Frames[i].Direction()))
		writeFloats(hs, l.MeetingPoint)
		for _, b := range l.Visible {
			writeFloats(hs, b.High, b.Low, b.Value)
		}
	}
	return hs.Sum64()
}

func writeFloats(h hash.Hash64, vs ...float64) {
	var buf [8]byte
	for _, v := range vs {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
}

func writeInts(h hash.Hash64, vs ...int) {
	var buf [8]byte
	for _, v := range vs {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		h.Write(buf[:])
	}
}
