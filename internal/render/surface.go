// Package render paints box-slice frames onto a drawing surface.
//
// The Manager draws a scene (a layout snapshot plus the horizontal viewport)
// and skips the repaint when nothing that affects pixels has changed. The
// Scheduler and Loop decouple repaint requests from the input events that
// cause them: events enqueue requests, and a display tick drains the queue
// and draws once.
package render

import (
	"github.com/daviddao/boxslice_viewer/internal/boxslice"
	"github.com/daviddao/boxslice_viewer/internal/geometry"
)

// Color is a "#RRGGBB" hex color.
type Color string

// Surface is a drawing target. Coordinates are screen coordinates with y
// growing downward; shapes outside the surface are clipped.
type Surface interface {
	Size() (w, h float64)
	Clear(c Color)
	FillGradient(r geometry.Rect, top, bottom Color)
	FillRect(r geometry.Rect, c Color)
	StrokeRect(r geometry.Rect, c Color)
	HLine(x0, x1, y float64, c Color)
	VLine(x, y0, y1 float64, c Color)
	Dot(p geometry.Point, radius float64, c Color)
	Text(center geometry.Point, s string, c Color)
	// Flush completes the pass and reports the first drawing error, if any.
	Flush() error
}

// Palette holds the fixed chart colors.
type Palette struct {
	Background Color
	Grid       Color
	Dot        Color
	Connector  Color
	Selection  Color
	Text       Color

	UpTop      Color
	UpBottom   Color
	DownTop    Color
	DownBottom Color
	UpBox      Color
	DownBox    Color
}

// DefaultPalette returns the chart colors used everywhere.
func DefaultPalette() Palette {
	return Palette{
		Background: "#1E1E2E",
		Grid:       "#45475A",
		Dot:        "#CDD6F4",
		Connector:  "#F9E2AF",
		Selection:  "#89B4FA",
		Text:       "#6C7086",
		UpTop:      "#1F4D2E",
		UpBottom:   "#11241A",
		DownTop:    "#2A1418",
		DownBottom: "#5C1F2A",
		UpBox:      "#A6E3A1",
		DownBox:    "#F38BA8",
	}
}

// Gradient returns the background stops for a frame direction.
func (p Palette) Gradient(d boxslice.Direction) (top, bottom Color) {
	if d == boxslice.Up {
		return p.UpTop, p.UpBottom
	}
	return p.DownTop, p.DownBottom
}

// Box returns the fill color for a box direction.
func (p Palette) Box(d boxslice.Direction) Color {
	if d == boxslice.Up {
		return p.UpBox
	}
	return p.DownBox
}
