package ink

import (
	"math"
	"testing"

	"inknote/pkg/sketch"
)

func almost(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-3
}

func TestStarGeometry(t *testing.T) {
	pts := ShapePath(ShapeStar, Pt{0, 0}, Pt{100, 100})
	if len(pts) != 10 {
		t.Fatalf("star path has %d points, want 10", len(pts))
	}
	for i, p := range pts {
		r := float32(50)
		if i%2 == 1 {
			r = 20
		}
		a := -math.Pi/2 + float64(i)*36*math.Pi/180
		wantX := 50 + r*float32(math.Cos(a))
		wantY := 50 + r*float32(math.Sin(a))
		if !almost(p.X, wantX) || !almost(p.Y, wantY) {
			t.Fatalf("vertex %d at (%g,%g), want (%g,%g)", i, p.X, p.Y, wantX, wantY)
		}
		dx := float64(p.X - 50)
		dy := float64(p.Y - 50)
		if got := math.Hypot(dx, dy); math.Abs(got-float64(r)) > 1e-3 {
			t.Fatalf("vertex %d radius %g, want %g", i, got, r)
		}
	}
}

func TestDegenerateDragYieldsAtMostOnePoint(t *testing.T) {
	p := Pt{42, 17}
	for _, kind := range []ShapeKind{ShapeLine, ShapeArrow, ShapeRect, ShapeCircle, ShapeTriangle, ShapeStar} {
		s := Convert(kind, p, p, Style{Width: 3})
		if len(s.Points) > 1 {
			t.Fatalf("kind %d: degenerate drag produced %d points", kind, len(s.Points))
		}
		if len(s.Points) == 1 && (s.Points[0].X != p.X || s.Points[0].Y != p.Y) {
			t.Fatalf("kind %d: collapsed point moved to (%g,%g)", kind, s.Points[0].X, s.Points[0].Y)
		}
	}
}

func TestArrowHeadSegments(t *testing.T) {
	s := Convert(ShapeArrow, Pt{0, 0}, Pt{100, 0}, Style{Width: 2})
	if len(s.Points) != 5 {
		t.Fatalf("arrow stroke has %d points, want 5", len(s.Points))
	}
	tip := s.Points[1]
	if tip.X != 100 || tip.Y != 0 {
		t.Fatalf("tip at (%g,%g)", tip.X, tip.Y)
	}
	if s.Points[3].X != tip.X || s.Points[3].Y != tip.Y {
		t.Fatal("pen must return to the tip between head segments")
	}
	for _, i := range []int{2, 4} {
		h := s.Points[i]
		d := math.Hypot(float64(h.X-tip.X), float64(h.Y-tip.Y))
		if math.Abs(d-20) > 1e-3 {
			t.Fatalf("head segment %d length %g, want 20", i, d)
		}
	}
	// heads sweep back from the tip, one to each side of the shaft
	if !almost(s.Points[2].X, s.Points[4].X) || almost(s.Points[2].Y, s.Points[4].Y) {
		t.Fatalf("head points not mirrored: (%g,%g) vs (%g,%g)",
			s.Points[2].X, s.Points[2].Y, s.Points[4].X, s.Points[4].Y)
	}
}

func TestClosedShapeSampling(t *testing.T) {
	s := Convert(ShapeRect, Pt{0, 0}, Pt{10, 10}, Style{Width: 4})
	if len(s.Points) != 101 {
		t.Fatalf("sampled stroke has %d points, want 101", len(s.Points))
	}
	for i, p := range s.Points {
		if !almost(p.T, float32(i)*0.01) {
			t.Fatalf("point %d time %g, want %g", i, p.T, float32(i)*0.01)
		}
		if p.Size != 4 || p.Opacity != 1 {
			t.Fatalf("point %d size/opacity: %g/%g", i, p.Size, p.Opacity)
		}
		onEdge := almost(p.X, 0) || almost(p.X, 10) || almost(p.Y, 0) || almost(p.Y, 10)
		if !onEdge {
			t.Fatalf("point %d at (%g,%g) off the rectangle perimeter", i, p.X, p.Y)
		}
	}
}

func TestEllipseSamplesStayOnEllipse(t *testing.T) {
	s := Convert(ShapeCircle, Pt{0, 0}, Pt{200, 100}, Style{Width: 1})
	for i, p := range s.Points {
		nx := float64(p.X-100) / 100
		ny := float64(p.Y-50) / 50
		if r := math.Hypot(nx, ny); math.Abs(r-1) > 0.01 {
			t.Fatalf("point %d normalized radius %g", i, r)
		}
	}
}

type fakeSurface struct {
	changed int
}

func (f *fakeSurface) Tool() sketch.Tool { return sketch.ToolMarker }
func (f *fakeSurface) Color() uint32     { return 0x112233FF }
func (f *fakeSurface) Width() float32    { return 6 }
func (f *fakeSurface) StrokeChanged()    { f.changed++ }

func TestInsertAppendsWithSurfaceStyle(t *testing.T) {
	var m sketch.Model
	surf := &fakeSurface{}

	idx := Insert(&m, surf, ShapeLine, Pt{0, 0}, Pt{10, 0})
	if idx != 0 {
		t.Fatalf("undo handle %d, want 0", idx)
	}
	if surf.changed != 1 {
		t.Fatalf("surface notified %d times", surf.changed)
	}
	st := m.Strokes[0]
	if st.Tool != sketch.ToolMarker || st.ColorRGBA != 0x112233FF || st.Width != 6 {
		t.Fatalf("stroke did not inherit surface style: %#v", st)
	}
}
