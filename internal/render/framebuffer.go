package render

import (
	"image"
	"image/color"
)

// FrameBuffer is the CPU pixel surface the shell chrome and the ink
// rasterizer paint into before upload.
type FrameBuffer struct {
	W      int
	H      int
	Pixels []uint8 // RGBA
}

func NewFrameBuffer(w, h int) *FrameBuffer {
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	return &FrameBuffer{W: w, H: h, Pixels: make([]uint8, w*h*4)}
}

// Clear floods the buffer with one color by doubling a seeded prefix.
func (fb *FrameBuffer) Clear(c color.RGBA) {
	fb.Pixels[0] = c.R
	fb.Pixels[1] = c.G
	fb.Pixels[2] = c.B
	fb.Pixels[3] = c.A
	for n := 4; n < len(fb.Pixels); n *= 2 {
		copy(fb.Pixels[n:], fb.Pixels[:n])
	}
}

func (fb *FrameBuffer) FillRect(x, y, w, h int, c color.RGBA) {
	if x < 0 {
		w += x
		x = 0
	}
	if y < 0 {
		h += y
		y = 0
	}
	if x+w > fb.W {
		w = fb.W - x
	}
	if y+h > fb.H {
		h = fb.H - y
	}
	if w <= 0 || h <= 0 {
		return
	}
	// paint the first row, then replicate it downward
	first := (y*fb.W + x) * 4
	for col := 0; col < w; col++ {
		idx := first + col*4
		fb.Pixels[idx+0] = c.R
		fb.Pixels[idx+1] = c.G
		fb.Pixels[idx+2] = c.B
		fb.Pixels[idx+3] = c.A
	}
	rowLen := w * 4
	for row := 1; row < h; row++ {
		off := ((y+row)*fb.W + x) * 4
		copy(fb.Pixels[off:off+rowLen], fb.Pixels[first:first+rowLen])
	}
}

func (fb *FrameBuffer) StrokeRect(x, y, w, h, line int, c color.RGBA) {
	if line <= 0 {
		line = 1
	}
	fb.FillRect(x, y, w, line, c)
	fb.FillRect(x, y+h-line, w, line, c)
	fb.FillRect(x, y, line, h, c)
	fb.FillRect(x+w-line, y, line, h, c)
}

// Image wraps the pixel buffer as an RGBA image without copying.
func (fb *FrameBuffer) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    fb.Pixels,
		Stride: fb.W * 4,
		Rect:   image.Rect(0, 0, fb.W, fb.H),
	}
}
