// Package segmap rasterizes bright detections into a binary occupancy grid
// and uses it to suppress faint detections of already-claimed pixels.
package segmap

import (
	"fmt"
	"math"

	"cosmos/sieve/internal/catalog"
	"cosmos/sieve/internal/geometry"
	"cosmos/sieve/internal/monitoring"
)

// DefaultMargin is the dilation applied to every bright bounding box.
const DefaultMargin = 20

// BoundsError reports a dilated bounding box lying entirely outside the
// image. It is never fatal; the box simply claims nothing.
type BoundsError struct {
	Number int
	Box    geometry.Box
	Width  int
	Height int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("object %d: box x[%g,%g] y[%g,%g] outside %dx%d image",
		e.Number, e.Box.XMin, e.Box.XMax, e.Box.YMin, e.Box.YMax, e.Width, e.Height)
}

// Map is a width x height occupancy grid indexed [y][x].
type Map struct {
	Width, Height int
	cells         []bool
}

// New returns an empty map.
func New(width, height int) *Map {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Map{Width: width, Height: height, cells: make([]bool, width*height)}
}

// At reports whether cell (x, y) is claimed. Cells off the grid are free.
func (m *Map) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.cells[y*m.Width+x]
}

// Claimed returns the number of claimed cells.
func (m *Map) Claimed() int {
	n := 0
	for _, c := range m.cells {
		if c {
			n++
		}
	}
	return n
}

// Claim marks every cell with x in [floor(xmin)-margin, floor(xmax)+margin)
// and y likewise, clipped to the grid. A box with no overlap at all returns
// a *BoundsError and changes nothing.
func (m *Map) Claim(number int, box geometry.Box, margin int) error {
	x0 := int(math.Floor(box.XMin)) - margin
	x1 := int(math.Floor(box.XMax)) + margin
	y0 := int(math.Floor(box.YMin)) - margin
	y1 := int(math.Floor(box.YMax)) + margin

	if x1 <= 0 || y1 <= 0 || x0 >= m.Width || y0 >= m.Height {
		return &BoundsError{Number: number, Box: box, Width: m.Width, Height: m.Height}
	}
	x0, x1 = max(x0, 0), min(x1, m.Width)
	y0, y1 = max(y0, 0), min(y1, m.Height)

	for y := y0; y < y1; y++ {
		row := m.cells[y*m.Width : (y+1)*m.Width]
		for x := x0; x < x1; x++ {
			row[x] = true
		}
	}
	return nil
}

// FromCatalog claims the dilated bounding box of every record in bright.
// Boxes outside the image are counted and skipped.
func FromCatalog(bright *catalog.Catalog, width, height, margin int) (*Map, error) {
	if err := bright.Require(catalog.ColXMin, catalog.ColXMax, catalog.ColYMin, catalog.ColYMax); err != nil {
		return nil, err
	}
	m := New(width, height)
	outside := 0
	for _, r := range bright.Records {
		xmin, xmax, ymin, ymax := r.BBox()
		err := m.Claim(r.Number, geometry.Box{XMin: xmin, XMax: xmax, YMin: ymin, YMax: ymax}, margin)
		if err != nil {
			outside++
			monitoring.Debugf("[segmap] %v", err)
		}
	}
	if outside > 0 {
		monitoring.Logf("[segmap] %d bright box(es) outside the %dx%d image were skipped", outside, width, height)
	}
	return m, nil
}

// Filter returns the faint records whose truncated centroid cell is free,
// in their original order and with the faint catalog's full schema.
func Filter(m *Map, faint *catalog.Catalog) (*catalog.Catalog, error) {
	if err := faint.Require(catalog.ColX, catalog.ColY); err != nil {
		return nil, err
	}
	return faint.Filter(func(r catalog.Record) bool {
		return !m.At(int(r.X), int(r.Y))
	}), nil
}
