// Package geometry holds the planar primitives shared by the cleaning stages:
// points, polygons, bounding boxes, and the lines bounding the field of view.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Point is a position in image pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is an axis-aligned rectangle. Bounds are inclusive.
type Box struct {
	XMin, XMax float64
	YMin, YMax float64
}

// Intersects reports whether the two boxes overlap or touch.
func (b Box) Intersects(o Box) bool {
	return b.XMin <= o.XMax && o.XMin <= b.XMax &&
		b.YMin <= o.YMax && o.YMin <= b.YMax
}

// Polygon is a closed ring of vertices. The closing edge from the last vertex
// back to the first is implicit.
type Polygon []Point

// Bounds returns the smallest box containing every vertex.
func (p Polygon) Bounds() Box {
	if len(p) == 0 {
		return Box{}
	}
	b := Box{XMin: p[0].X, XMax: p[0].X, YMin: p[0].Y, YMax: p[0].Y}
	for _, v := range p[1:] {
		b.XMin = math.Min(b.XMin, v.X)
		b.XMax = math.Max(b.XMax, v.X)
		b.YMin = math.Min(b.YMin, v.Y)
		b.YMax = math.Max(b.YMax, v.Y)
	}
	return b
}

// Contains reports whether pt lies inside the polygon using the even-odd
// crossing rule. Points exactly on an edge may fall either way.
func (p Polygon) Contains(pt Point) bool {
	n := len(p)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		vi, vj := p[i], p[j]
		if (vi.Y > pt.Y) != (vj.Y > pt.Y) {
			xCross := (vj.X-vi.X)*(pt.Y-vi.Y)/(vj.Y-vi.Y) + vi.X
			if pt.X < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// ContainsAny reports whether any of pts lies inside the polygon.
func (p Polygon) ContainsAny(pts []Point) bool {
	for _, pt := range pts {
		if p.Contains(pt) {
			return true
		}
	}
	return false
}

// Rotate returns the polygon's offsets from center rotated counterclockwise
// by deg degrees and translated back onto center.
func Rotate(offsets Polygon, center Point, deg float64) Polygon {
	if len(offsets) == 0 {
		return nil
	}
	rad := deg * math.Pi / 180
	sin, cos := math.Sincos(rad)
	rot := mat.NewDense(2, 2, []float64{
		cos, -sin,
		sin, cos,
	})

	pts := mat.NewDense(2, len(offsets), nil)
	for i, v := range offsets {
		pts.Set(0, i, v.X)
		pts.Set(1, i, v.Y)
	}
	var out mat.Dense
	out.Mul(rot, pts)

	res := make(Polygon, len(offsets))
	for i := range res {
		res[i] = Point{X: center.X + out.At(0, i), Y: center.Y + out.At(1, i)}
	}
	return res
}

// Line is y = Slope*x + Intercept.
type Line struct {
	Slope     float64
	Intercept float64
}

// LineThrough returns the line through a and b. ok is false when the two
// points share an x coordinate and the slope is undefined.
func LineThrough(a, b Point) (l Line, ok bool) {
	if a.X == b.X {
		return Line{}, false
	}
	m := (b.Y - a.Y) / (b.X - a.X)
	return Line{Slope: m, Intercept: a.Y - m*a.X}, true
}

// At evaluates the line at x.
func (l Line) At(x float64) float64 {
	return l.Slope*x + l.Intercept
}

// PerimeterPixels returns the integer pixels on the edge of a bounding box.
// Coordinates are truncated first. The bottom and top rows cover x in
// [xmin, xmax) and the left and right columns cover y in [ymin, ymax), so a
// degenerate box has no perimeter.
func PerimeterPixels(b Box) []Point {
	xmin, xmax := int(b.XMin), int(b.XMax)
	ymin, ymax := int(b.YMin), int(b.YMax)
	if xmax <= xmin && ymax <= ymin {
		return nil
	}

	var pts []Point
	for x := xmin; x < xmax; x++ {
		pts = append(pts,
			Point{X: float64(x), Y: float64(ymin)},
			Point{X: float64(x), Y: float64(ymax)},
		)
	}
	for y := ymin; y < ymax; y++ {
		pts = append(pts,
			Point{X: float64(xmin), Y: float64(y)},
			Point{X: float64(xmax), Y: float64(y)},
		)
	}
	return pts
}
