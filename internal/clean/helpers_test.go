package clean

import (
	"cosmos/sieve/internal/catalog"
)

// obj returns a record centred on (x, y) with a square bbox of half-size h.
func obj(number int, x, y, h float64) catalog.Record {
	return catalog.Record{
		Number: number,
		X:      x, Y: y,
		A: h / 2, B: h / 2,
		XMin: x - h, XMax: x + h,
		YMin: y - h, YMax: y + h,
		MagAuto:     -2,
		MuMax:       -5,
		FluxAuto:    100,
		FluxErrAuto: 10,
	}
}

// star returns a bright star record at (x, y) with the given flux.
func star(number int, x, y, flux float64) catalog.Record {
	r := obj(number, x, y, 5)
	r.A, r.B = 6, 4
	r.MagAuto = -7
	r.MuMax = -12
	r.FluxAuto = flux
	yes := true
	r.IsStar = &yes
	return r
}

func galaxy(number int, x, y, h float64) catalog.Record {
	r := obj(number, x, y, h)
	no := false
	r.IsStar = &no
	return r
}

func newCatalog(recs ...catalog.Record) *catalog.Catalog {
	c := catalog.NewWithColumns(catalog.OutputColumns...)
	c.AddColumn(catalog.ColIsStar, "Revised Star-Galaxy Classifier")
	c.Records = recs
	return c
}

func numbers(c *catalog.Catalog) []int {
	out := make([]int, 0, c.Len())
	for _, r := range c.Records {
		out = append(out, r.Number)
	}
	return out
}
