// Package ink converts dragged geometric gestures into sampled freehand
// strokes. A shape's parametric path exists only inside Convert: the drawing
// model receives an ordinary stroke and the shape definition is discarded.
package ink

import (
	"math"

	"inknote/pkg/sketch"
)

type ShapeKind int

const (
	ShapeLine ShapeKind = iota
	ShapeArrow
	ShapeRect
	ShapeCircle
	ShapeTriangle
	ShapeStar
)

const (
	sampleSteps    = 100
	sampleTimeStep = 0.01

	arrowHeadAngle = 30 * math.Pi / 180
	arrowHeadLen   = 20

	starPoints     = 5
	starInnerRatio = 0.4

	circleSegments = 72
)

type Pt struct {
	X, Y float32
}

// Style is the ink style a converted stroke inherits.
type Style struct {
	Tool      sketch.Tool
	ColorRGBA uint32
	Width     float32
}

// Surface is the drawing surface the shape tools operate on: current ink
// settings plus a change notification after the stroke set is modified.
type Surface interface {
	Tool() sketch.Tool
	Color() uint32
	Width() float32
	StrokeChanged()
}

// Insert converts a gesture with the surface's current ink settings and
// appends the result to the model. The returned index is the undo handle
// for the insertion. Degenerate gestures still produce a stroke so the
// caller never has to special-case an empty result.
func Insert(m *sketch.Model, s Surface, kind ShapeKind, start, end Pt) int {
	st := Style{Tool: s.Tool(), ColorRGBA: s.Color(), Width: s.Width()}
	idx := m.Append(Convert(kind, start, end, st))
	s.StrokeChanged()
	return idx
}

// Convert builds the sampled stroke for a drag from start to end. Line and
// arrow are direct segments; the closed shapes are inscribed in the drag's
// bounding box and resampled at fixed parameter increments with
// arc-length-proportional interpolation. A zero-area drag collapses to a
// single-point stroke.
func Convert(kind ShapeKind, start, end Pt, st Style) sketch.Stroke {
	var pts []Pt
	switch kind {
	case ShapeLine:
		pts = linePath(start, end)
	case ShapeArrow:
		pts = arrowPath(start, end)
	default:
		pts = resampleClosed(ShapePath(kind, start, end), sampleSteps)
	}
	return strokeFrom(pts, st)
}

// ShapePath returns the parametric path vertices for a closed shape
// inscribed in the drag bounding box: 4 corners for a rectangle, 3 for a
// triangle, 10 alternating outer/inner vertices for a star, and a dense
// polygonal approximation for the ellipse.
func ShapePath(kind ShapeKind, start, end Pt) []Pt {
	b := boxOf(start, end)
	switch kind {
	case ShapeRect:
		return []Pt{
			{b.x0, b.y0},
			{b.x1, b.y0},
			{b.x1, b.y1},
			{b.x0, b.y1},
		}
	case ShapeTriangle:
		return []Pt{
			{(b.x0 + b.x1) / 2, b.y0},
			{b.x1, b.y1},
			{b.x0, b.y1},
		}
	case ShapeStar:
		return starPath(b)
	case ShapeCircle:
		return ellipsePath(b)
	}
	return nil
}

type box struct {
	x0, y0, x1, y1 float32
}

func boxOf(a, b Pt) box {
	return box{
		x0: min32(a.X, b.X), y0: min32(a.Y, b.Y),
		x1: max32(a.X, b.X), y1: max32(a.Y, b.Y),
	}
}

func (b box) center() (float32, float32) {
	return (b.x0 + b.x1) / 2, (b.y0 + b.y1) / 2
}

func linePath(start, end Pt) []Pt {
	if start == end {
		return []Pt{start}
	}
	return []Pt{start, end}
}

// arrowPath is the shaft plus two head segments swept back from the tip at
// a fixed angle and length. The pen returns to the tip between the two head
// strokes so the path draws as one continuous mark.
func arrowPath(start, end Pt) []Pt {
	if start == end {
		return []Pt{start}
	}
	dir := math.Atan2(float64(end.Y-start.Y), float64(end.X-start.X))
	head := func(side float64) Pt {
		a := dir + math.Pi + side*arrowHeadAngle
		return Pt{
			X: end.X + float32(arrowHeadLen*math.Cos(a)),
			Y: end.Y + float32(arrowHeadLen*math.Sin(a)),
		}
	}
	return []Pt{start, end, head(1), end, head(-1)}
}

// starPath alternates the outer and inner radius over ten vertices, 36°
// apart, starting straight up. Radii scale per axis so a non-square drag
// yields a stretched star.
func starPath(b box) []Pt {
	cx, cy := b.center()
	rx := (b.x1 - b.x0) / 2
	ry := (b.y1 - b.y0) / 2
	step := math.Pi / starPoints // 36°
	pts := make([]Pt, 0, 2*starPoints)
	for i := 0; i < 2*starPoints; i++ {
		scale := float32(1)
		if i%2 == 1 {
			scale = starInnerRatio
		}
		a := -math.Pi/2 + float64(i)*step
		pts = append(pts, Pt{
			X: cx + rx*scale*float32(math.Cos(a)),
			Y: cy + ry*scale*float32(math.Sin(a)),
		})
	}
	return pts
}

func ellipsePath(b box) []Pt {
	cx, cy := b.center()
	rx := (b.x1 - b.x0) / 2
	ry := (b.y1 - b.y0) / 2
	pts := make([]Pt, 0, circleSegments)
	for i := 0; i < circleSegments; i++ {
		a := 2 * math.Pi * float64(i) / circleSegments
		pts = append(pts, Pt{
			X: cx + rx*float32(math.Cos(a)),
			Y: cy + ry*float32(math.Sin(a)),
		})
	}
	return pts
}

// resampleClosed walks the closed polygon at steps+1 evenly spaced
// arc-length positions, interpolating within segments. A path with zero
// total length collapses to its first vertex.
func resampleClosed(path []Pt, steps int) []Pt {
	if len(path) == 0 {
		return nil
	}
	segs := make([]float32, len(path))
	var total float32
	for i := range path {
		next := path[(i+1)%len(path)]
		segs[i] = dist(path[i], next)
		total += segs[i]
	}
	if total == 0 {
		return []Pt{path[0]}
	}

	out := make([]Pt, 0, steps+1)
	for i := 0; i <= steps; i++ {
		target := total * float32(i) / float32(steps)
		out = append(out, pointAt(path, segs, target))
	}
	return out
}

func pointAt(path []Pt, segs []float32, target float32) Pt {
	for i := range path {
		if target <= segs[i] || i == len(path)-1 {
			if segs[i] == 0 {
				return path[i]
			}
			t := target / segs[i]
			if t > 1 {
				t = 1
			}
			next := path[(i+1)%len(path)]
			return Pt{
				X: path[i].X + (next.X-path[i].X)*t,
				Y: path[i].Y + (next.Y-path[i].Y)*t,
			}
		}
		target -= segs[i]
	}
	return path[len(path)-1]
}

func strokeFrom(pts []Pt, st Style) sketch.Stroke {
	s := sketch.Stroke{
		Tool:      st.Tool,
		ColorRGBA: st.ColorRGBA,
		Width:     st.Width,
		Points:    make([]sketch.Point, 0, len(pts)),
	}
	for i, p := range pts {
		s.Points = append(s.Points, sketch.Point{
			X:       p.X,
			Y:       p.Y,
			T:       float32(i) * sampleTimeStep,
			Size:    st.Width,
			Opacity: 1,
		})
	}
	return s
}

func dist(a, b Pt) float32 {
	dx := float64(b.X - a.X)
	dy := float64(b.Y - a.Y)
	return float32(math.Hypot(dx, dy))
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
