// Package cells implements render.Surface on a terminal character grid. One
// surface unit is one cell; shapes snap to whole cells.
package cells

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/daviddao/boxslice_viewer/internal/geometry"
	"github.com/daviddao/boxslice_viewer/internal/render"
)

const (
	runeH   = '─'
	runeV   = '│'
	runeX   = '┼'
	runeDot = '●'
)

// Cell is one character position.
type Cell struct {
	Rune rune
	FG   render.Color
	BG   render.Color
}

// Surface is a w×h grid of cells.
type Surface struct {
	w, h  int
	cells []Cell
}

var _ render.Surface = (*Surface)(nil)

// New allocates a w×h grid.
func New(w, h int) *Surface {
	s := &Surface{}
	s.Resize(w, h)
	return s
}

// Resize reallocates the grid. Contents are discarded.
func (s *Surface) Resize(w, h int) {
	s.w, s.h = max(w, 0), max(h, 0)
	s.cells = make([]Cell, s.w*s.h)
	for i := range s.cells {
		s.cells[i].Rune = ' '
	}
}

// Size implements render.Surface.
func (s *Surface) Size() (float64, float64) {
	return float64(s.w), float64(s.h)
}

// At returns the cell at column x, row y.
func (s *Surface) At(x, y int) Cell {
	if x < 0 || y < 0 || x >= s.w || y >= s.h {
		return Cell{}
	}
	return s.cells[y*s.w+x]
}

func (s *Surface) at(x, y int) *Cell {
	if x < 0 || y < 0 || x >= s.w || y >= s.h {
		return nil
	}
	return &s.cells[y*s.w+x]
}

// Clear implements render.Surface.
func (s *Surface) Clear(c render.Color) {
	for i := range s.cells {
		s.cells[i] = Cell{Rune: ' ', BG: c}
	}
}

// span maps [a, a+n) to whole cells, always covering at least one.
func span(a, n float64) (int, int) {
	lo := int(math.Round(a))
	hi := int(math.Round(a + n))
	if hi <= lo {
		lo = int(math.Floor(a + n/2))
		hi = lo + 1
	}
	return lo, hi
}

// row maps a y coordinate to a row, folding the bottom edge into the last row.
func (s *Surface) row(y float64) int {
	r := int(math.Floor(y))
	if r == s.h && s.h > 0 {
		r--
	}
	return r
}

// FillGradient implements render.Surface. Rows are blended in Lab space.
func (s *Surface) FillGradient(r geometry.Rect, top, bottom render.Color) {
	c0, err0 := colorful.Hex(string(top))
	c1, err1 := colorful.Hex(string(bottom))
	x0, x1 := span(r.X, r.W)
	y0, y1 := span(r.Y, r.H)
	rows := y1 - y0
	for y := y0; y < y1; y++ {
		bg := top
		switch {
		case rows > 1 && y == y1-1:
			bg = bottom
		case rows > 1 && y > y0 && err0 == nil && err1 == nil:
			t := float64(y-y0) / float64(rows-1)
			bg = render.Color(c0.BlendLab(c1, t).Clamped().Hex())
		}
		for x := x0; x < x1; x++ {
			if c := s.at(x, y); c != nil {
				c.BG = bg
			}
		}
	}
}

// FillRect implements render.Surface.
func (s *Surface) FillRect(r geometry.Rect, c render.Color) {
	if r.W <= 0 || r.H <= 0 {
		return
	}
	x0, x1 := span(r.X, r.W)
	y0, y1 := span(r.Y, r.H)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			if cell := s.at(x, y); cell != nil {
				cell.BG = c
			}
		}
	}
}

// StrokeRect implements render.Surface by recoloring the border glyphs'
// foreground and marking the left and right edges.
func (s *Surface) StrokeRect(r geometry.Rect, c render.Color) {
	x0, x1 := span(r.X, r.W)
	y0, y1 := span(r.Y, r.H)
	for y := y0; y < y1; y++ {
		for _, x := range []int{x0, x1 - 1} {
			if cell := s.at(x, y); cell != nil {
				cell.FG = c
				if cell.Rune == ' ' {
					cell.Rune = '▏'
				}
			}
		}
	}
}

// HLine implements render.Surface.
func (s *Surface) HLine(x0, x1, y float64, c render.Color) {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	r := s.row(y)
	lo, hi := int(math.Round(x0)), int(math.Round(x1))
	for x := lo; x < max(hi, lo+1); x++ {
		cell := s.at(x, r)
		if cell == nil {
			continue
		}
		switch cell.Rune {
		case runeV, runeX:
			cell.Rune = runeX
		case runeDot:
			continue
		default:
			cell.Rune = runeH
		}
		cell.FG = c
	}
}

// VLine implements render.Surface.
func (s *Surface) VLine(x, y0, y1 float64, c render.Color) {
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	col := int(math.Floor(x))
	if col == s.w && s.w > 0 {
		col--
	}
	for y := s.row(y0); y <= s.row(y1); y++ {
		cell := s.at(col, y)
		if cell == nil {
			continue
		}
		switch cell.Rune {
		case runeH, runeX:
			cell.Rune = runeX
		case runeDot:
			continue
		default:
			cell.Rune = runeV
		}
		cell.FG = c
	}
}

// Dot implements render.Surface. The radius is ignored; a dot is one cell.
func (s *Surface) Dot(p geometry.Point, _ float64, c render.Color) {
	if cell := s.at(int(math.Floor(p.X)), s.row(p.Y)); cell != nil {
		cell.Rune = runeDot
		cell.FG = c
	}
}

// Text implements render.Surface.
func (s *Surface) Text(center geometry.Point, str string, c render.Color) {
	runes := []rune(str)
	x := int(math.Floor(center.X)) - len(runes)/2
	y := s.row(center.Y)
	for i, r := range runes {
		if cell := s.at(x+i, y); cell != nil {
			cell.Rune = r
			cell.FG = c
		}
	}
}

// Flush implements render.Surface. Cell drawing cannot fail.
func (s *Surface) Flush() error { return nil }

// String renders the grid with ANSI colors, one line per row. Runs of cells
// sharing colors are styled together.
func (s *Surface) String() string {
	var b strings.Builder
	for y := 0; y < s.h; y++ {
		if y > 0 {
			b.WriteByte('\n')
		}
		row := s.cells[y*s.w : (y+1)*s.w]
		for i := 0; i < len(row); {
			j := i
			var run strings.Builder
			for j < len(row) && row[j].FG == row[i].FG && row[j].BG == row[i].BG {
				run.WriteRune(row[j].Rune)
				j++
			}
			b.WriteString(style(row[i]).Render(run.String()))
			i = j
		}
	}
	return b.String()
}

// Plain renders the grid without colors.
func (s *Surface) Plain() string {
	var b strings.Builder
	for y := 0; y < s.h; y++ {
		if y > 0 {
			b.WriteByte('\n')
		}
		for _, c := range s.cells[y*s.w : (y+1)*s.w] {
			b.WriteRune(c.Rune)
		}
	}
	return b.String()
}

func style(c Cell) lipgloss.Style {
	st := lipgloss.NewStyle()
	if c.FG != "" {
		st = st.Foreground(lipgloss.Color(c.FG))
	}
	if c.BG != "" {
		st = st.Background(lipgloss.Color(c.BG))
	}
	return st
}
