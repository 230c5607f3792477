package render

import (
	"fmt"
	"image/color"
	"image/png"
	"math"
	"os"

	"inknote/pkg/sketch"
)

// FillCircle stamps a filled disc, the brush shape for ink strokes.
func (fb *FrameBuffer) FillCircle(cx, cy, r int, c color.RGBA) {
	if r <= 0 {
		fb.FillRect(cx, cy, 1, 1, c)
		return
	}
	rr := r * r
	for dy := -r; dy <= r; dy++ {
		y := cy + dy
		if y < 0 || y >= fb.H {
			continue
		}
		for dx := -r; dx <= r; dx++ {
			x := cx + dx
			if x < 0 || x >= fb.W {
				continue
			}
			if dx*dx+dy*dy > rr {
				continue
			}
			idx := (y*fb.W + x) * 4
			fb.Pixels[idx+0] = c.R
			fb.Pixels[idx+1] = c.G
			fb.Pixels[idx+2] = c.B
			fb.Pixels[idx+3] = c.A
		}
	}
}

// DrawLine stamps the circular brush along the segment so joints between
// consecutive stroke points stay rounded.
func (fb *FrameBuffer) DrawLine(x0, y0, x1, y1 int, width int, c color.RGBA) {
	r := width / 2
	dx := float64(x1 - x0)
	dy := float64(y1 - y0)
	steps := int(math.Hypot(dx, dy))
	if steps == 0 {
		fb.FillCircle(x0, y0, r, c)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		fb.FillCircle(x0+int(dx*t+0.5), y0+int(dy*t+0.5), r, c)
	}
}

// DrawStroke paints one sampled stroke.
func (fb *FrameBuffer) DrawStroke(s sketch.Stroke, offX, offY float32) {
	c := rgba(s.ColorRGBA)
	if s.Tool == sketch.ToolEraser {
		c = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	}
	w := int(s.Width)
	if w < 1 {
		w = 1
	}
	if len(s.Points) == 1 {
		p := s.Points[0]
		fb.FillCircle(int(p.X-offX), int(p.Y-offY), w/2, c)
		return
	}
	for i := 1; i < len(s.Points); i++ {
		a := s.Points[i-1]
		b := s.Points[i]
		fb.DrawLine(int(a.X-offX), int(a.Y-offY), int(b.X-offX), int(b.Y-offY), w, c)
	}
}

// RenderSketch rasterizes the whole model onto a white canvas sized to the
// stroke bounds.
func RenderSketch(m *sketch.Model) *FrameBuffer {
	minX, minY, maxX, maxY, ok := m.Bounds()
	if !ok {
		fb := NewFrameBuffer(1, 1)
		fb.Clear(color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF})
		return fb
	}
	fb := NewFrameBuffer(int(maxX-minX)+1, int(maxY-minY)+1)
	fb.Clear(color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF})
	for _, s := range m.Strokes {
		fb.DrawStroke(s, minX, minY)
	}
	return fb
}

// WritePNG encodes the framebuffer to a PNG file.
func (fb *FrameBuffer) WritePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("render: create %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, fb.Image()); err != nil {
		return fmt.Errorf("render: encode %s: %w", path, err)
	}
	return nil
}

func rgba(v uint32) color.RGBA {
	return color.RGBA{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}
}
