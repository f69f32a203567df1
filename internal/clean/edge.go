package clean

import (
	"fmt"

	"cosmos/sieve/internal/catalog"
	"cosmos/sieve/internal/geometry"
)

// Field is the usable quadrilateral of a mosaic. A and B bound the left side,
// B and C the top, C and D the right, D and A the bottom.
type Field struct {
	A geometry.Point `json:"a"`
	B geometry.Point `json:"b"`
	C geometry.Point `json:"c"`
	D geometry.Point `json:"d"`
}

// DefaultField is the field of the AEGIS 30mas ACS/WFC tiles.
var DefaultField = Field{
	A: geometry.Point{X: 390, Y: 321},
	B: geometry.Point{X: 498, Y: 6725},
	C: geometry.Point{X: 6898, Y: 7287},
	D: geometry.Point{X: 7002, Y: 806},
}

// Sides returns the four side lines. Every side needs a defined slope.
func (f Field) Sides() (left, top, right, bottom geometry.Line, err error) {
	pairs := []struct {
		name string
		a, b geometry.Point
		dst  *geometry.Line
	}{
		{"left", f.A, f.B, &left},
		{"top", f.B, f.C, &top},
		{"right", f.C, f.D, &right},
		{"bottom", f.D, f.A, &bottom},
	}
	for _, p := range pairs {
		l, ok := geometry.LineThrough(p.a, p.b)
		if !ok {
			return left, top, right, bottom, fmt.Errorf("field %s side (%g,%g)-(%g,%g) is vertical", p.name, p.a.X, p.a.Y, p.b.X, p.b.Y)
		}
		*p.dst = l
	}
	return left, top, right, bottom, nil
}

// Inside reports whether a bounding box passes all four side tests.
// Comparisons are strict so a box touching a side is rejected.
func (f Field) Inside(xmin, xmax, ymin, ymax float64) (bool, error) {
	left, top, right, bottom, err := f.Sides()
	if err != nil {
		return false, err
	}
	return inside(left, top, right, bottom, xmin, xmax, ymin, ymax), nil
}

func inside(left, top, right, bottom geometry.Line, xmin, xmax, ymin, ymax float64) bool {
	return xmin < left.At(xmin) &&
		xmax < right.At(xmax) &&
		ymin > bottom.At(ymin) &&
		ymax < top.At(ymax)
}

// EdgeFilter keeps the records whose bounding box lies inside the field.
// The input header is carried over unchanged.
func EdgeFilter(c *catalog.Catalog, f Field) (*catalog.Catalog, error) {
	if err := c.Require(bboxColumns...); err != nil {
		return nil, err
	}
	left, top, right, bottom, err := f.Sides()
	if err != nil {
		return nil, err
	}
	return c.Filter(func(r catalog.Record) bool {
		return inside(left, top, right, bottom, r.XMin, r.XMax, r.YMin, r.YMax)
	}), nil
}
