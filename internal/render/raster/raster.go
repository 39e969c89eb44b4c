// Package raster implements render.Surface on a gg image context. It backs the
// PNG export and any pixel-accurate rendering of the chart.
package raster

import (
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/daviddao/boxslice_viewer/internal/geometry"
	"github.com/daviddao/boxslice_viewer/internal/render"
)

// FontSize is the point size of overlay text.
const FontSize = 14

var (
	fontOnce sync.Once
	fontSrc  *text.FontSource
	fontErr  error
)

func face() (text.Face, error) {
	fontOnce.Do(func() {
		fontSrc, fontErr = text.NewFontSource(goregular.TTF)
	})
	if fontErr != nil {
		return nil, fontErr
	}
	return fontSrc.Face(FontSize), nil
}

// Surface draws onto an in-memory gg context.
type Surface struct {
	dc  *gg.Context
	err error
}

var _ render.Surface = (*Surface)(nil)

// New allocates a w×h surface.
func New(w, h int) *Surface {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return &Surface{dc: gg.NewContext(w, h)}
}

// Size implements render.Surface.
func (s *Surface) Size() (float64, float64) {
	return float64(s.dc.Width()), float64(s.dc.Height())
}

// Clear implements render.Surface. It also resets the pass error.
func (s *Surface) Clear(c render.Color) {
	s.err = nil
	s.dc.ClearWithColor(gg.Hex(string(c)))
}

// FillGradient implements render.Surface.
func (s *Surface) FillGradient(r geometry.Rect, top, bottom render.Color) {
	brush := gg.NewLinearGradientBrush(r.X, r.Y, r.X, r.Y+r.H).
		AddColorStop(0, gg.Hex(string(top))).
		AddColorStop(1, gg.Hex(string(bottom)))
	s.dc.SetFillBrush(brush)
	s.dc.DrawRectangle(r.X, r.Y, r.W, r.H)
	s.note("gradient", s.dc.Fill())
}

// FillRect implements render.Surface.
func (s *Surface) FillRect(r geometry.Rect, c render.Color) {
	if r.W <= 0 || r.H <= 0 {
		return
	}
	s.dc.SetFillBrush(gg.Solid(gg.Hex(string(c))))
	s.dc.DrawRectangle(r.X, r.Y, r.W, r.H)
	s.note("rect", s.dc.Fill())
}

// StrokeRect implements render.Surface.
func (s *Surface) StrokeRect(r geometry.Rect, c render.Color) {
	s.dc.SetStrokeBrush(gg.Solid(gg.Hex(string(c))))
	s.dc.SetLineWidth(2)
	s.dc.DrawRectangle(r.X+1, r.Y+1, r.W-2, r.H-2)
	s.note("outline", s.dc.Stroke())
}

// HLine implements render.Surface.
func (s *Surface) HLine(x0, x1, y float64, c render.Color) {
	s.line(x0, y, x1, y, 1, c)
}

// VLine implements render.Surface.
func (s *Surface) VLine(x, y0, y1 float64, c render.Color) {
	s.line(x, y0, x, y1, 2, c)
}

func (s *Surface) line(x0, y0, x1, y1, width float64, c render.Color) {
	s.dc.SetStrokeBrush(gg.Solid(gg.Hex(string(c))))
	s.dc.SetLineWidth(width)
	s.dc.DrawLine(x0, y0, x1, y1)
	s.note("line", s.dc.Stroke())
}

// Dot implements render.Surface.
func (s *Surface) Dot(p geometry.Point, radius float64, c render.Color) {
	if radius <= 0 {
		return
	}
	s.dc.SetFillBrush(gg.Solid(gg.Hex(string(c))))
	s.dc.DrawCircle(p.X, p.Y, radius)
	s.note("dot", s.dc.Fill())
}

// Text implements render.Surface.
func (s *Surface) Text(center geometry.Point, str string, c render.Color) {
	f, err := face()
	if err != nil {
		s.note("font", err)
		return
	}
	s.dc.SetFont(f)
	s.dc.SetColor(gg.Hex(string(c)))
	s.dc.DrawStringAnchored(str, center.X, center.Y, 0.5, 0.5)
}

// Flush implements render.Surface and returns the first error of the pass.
func (s *Surface) Flush() error {
	return s.err
}

func (s *Surface) note(op string, err error) {
	if err != nil && s.err == nil {
		s.err = fmt.Errorf("raster %s: %w", op, err)
	}
}

// Image returns the current pixels.
func (s *Surface) Image() image.Image {
	return s.dc.Image()
}

// EncodePNG writes the current pixels as PNG.
func (s *Surface) EncodePNG(w io.Writer) error {
	return s.dc.EncodePNG(w)
}

// Close releases the context.
func (s *Surface) Close() error {
	return s.dc.Close()
}
