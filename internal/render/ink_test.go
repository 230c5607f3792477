package render

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"inknote/pkg/sketch"
)

func pixelAt(fb *FrameBuffer, x, y int) color.RGBA {
	idx := (y*fb.W + x) * 4
	return color.RGBA{R: fb.Pixels[idx], G: fb.Pixels[idx+1], B: fb.Pixels[idx+2], A: fb.Pixels[idx+3]}
}

func TestFillCircleStaysInBounds(t *testing.T) {
	fb := NewFrameBuffer(10, 10)
	// center outside the canvas must not panic
	fb.FillCircle(-5, -5, 3, color.RGBA{R: 0xFF, A: 0xFF})
	fb.FillCircle(5, 5, 2, color.RGBA{R: 0xFF, A: 0xFF})

	if got := pixelAt(fb, 5, 5); got.R != 0xFF {
		t.Fatalf("center pixel not painted: %+v", got)
	}
	if got := pixelAt(fb, 9, 9); got.R != 0 {
		t.Fatalf("far corner painted: %+v", got)
	}
}

func TestDrawLinePaintsEndpoints(t *testing.T) {
	fb := NewFrameBuffer(20, 20)
	fb.DrawLine(2, 2, 17, 17, 3, color.RGBA{B: 0xFF, A: 0xFF})

	for _, p := range [][2]int{{2, 2}, {17, 17}, {10, 10}} {
		if got := pixelAt(fb, p[0], p[1]); got.B != 0xFF {
			t.Fatalf("pixel (%d,%d) not painted: %+v", p[0], p[1], got)
		}
	}
}

func TestRenderSketchToPNG(t *testing.T) {
	var m sketch.Model
	m.Append(sketch.Stroke{
		Tool:      sketch.ToolPen,
		ColorRGBA: 0x000000FF,
		Width:     3,
		Points: []sketch.Point{
			{X: 10, Y: 10}, {X: 40, Y: 10}, {X: 40, Y: 40},
		},
	})

	fb := RenderSketch(&m)
	if fb.W <= 0 || fb.H <= 0 {
		t.Fatalf("degenerate canvas %dx%d", fb.W, fb.H)
	}

	path := filepath.Join(t.TempDir(), "sketch.png")
	if err := fb.WritePNG(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) < 8 || data[1] != 'P' || data[2] != 'N' || data[3] != 'G' {
		t.Fatalf("output is not a PNG")
	}
}

func TestRenderEmptyModel(t *testing.T) {
	fb := RenderSketch(&sketch.Model{})
	if fb.W != 1 || fb.H != 1 {
		t.Fatalf("empty model canvas %dx%d, want 1x1", fb.W, fb.H)
	}
}
