package viz

import (
	"math"

	"github.com/samber/lo"
	"github.com/san-kum/rocketmpc/internal/dynamo"
)

// Point is a position in the flight plane.
type Point struct {
	X, Y float64
}

// Points projects states onto the flight plane.
func Points(states []dynamo.State) []Point {
	return lo.Map(states, func(x dynamo.State, _ int) Point {
		return Point{X: x[dynamo.IdxX], Y: x[dynamo.IdxY]}
	})
}

// Bounds is a world-space window.
type Bounds struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

// FitBounds returns the smallest window holding every point, grown by pad
// (a fraction of each span) on all sides. Degenerate spans widen to one unit.
func FitBounds(pad float64, sets ...[]Point) Bounds {
	b := Bounds{MinX: math.Inf(1), MaxX: math.Inf(-1), MinY: math.Inf(1), MaxY: math.Inf(-1)}
	for _, pts := range sets {
		for _, p := range pts {
			b.MinX = math.Min(b.MinX, p.X)
			b.MaxX = math.Max(b.MaxX, p.X)
			b.MinY = math.Min(b.MinY, p.Y)
			b.MaxY = math.Max(b.MaxY, p.Y)
		}
	}
	if math.IsInf(b.MinX, 1) {
		return Bounds{MaxX: 1, MaxY: 1}
	}

	rx, ry := b.MaxX-b.MinX, b.MaxY-b.MinY
	if rx == 0 {
		rx = 1
		b.MinX -= 0.5
		b.MaxX += 0.5
	}
	if ry == 0 {
		ry = 1
		b.MinY -= 0.5
		b.MaxY += 0.5
	}
	b.MinX -= rx * pad
	b.MaxX += rx * pad
	b.MinY -= ry * pad
	b.MaxY += ry * pad
	return b
}

// Project maps p into a w x h pixel frame with y pointing down.
func (b Bounds) Project(p Point, w, h float64) (float64, float64) {
	px := (p.X - b.MinX) / (b.MaxX - b.MinX) * w
	py := h - (p.Y-b.MinY)/(b.MaxY-b.MinY)*h
	return px, py
}

func (c *Canvas) pixel(b Bounds, p Point) (int, int) {
	w, h := c.Pixels()
	px, py := b.Project(p, float64(w-1), float64(h-1))
	return int(math.Round(px)), int(math.Round(py))
}

// Polyline draws the path through pts.
func (c *Canvas) Polyline(b Bounds, pts []Point) {
	for i, p := range pts {
		x, y := c.pixel(b, p)
		if i == 0 {
			c.Set(x, y)
			continue
		}
		x0, y0 := c.pixel(b, pts[i-1])
		c.DrawLine(x0, y0, x, y)
	}
}

// Markers draws a small cross on every point.
func (c *Canvas) Markers(b Bounds, pts []Point) {
	for _, p := range pts {
		x, y := c.pixel(b, p)
		c.Cross(x, y, 1)
	}
}

// HLine draws a horizontal world line at height y, used for the altitude
// floor.
func (c *Canvas) HLine(b Bounds, y float64) {
	if y < b.MinY || y > b.MaxY {
		return
	}
	w, _ := c.Pixels()
	_, py := c.pixel(b, Point{X: b.MinX, Y: y})
	for x := 0; x < w; x += 2 {
		c.Set(x, py)
	}
}
