package clean

import (
	"fmt"

	"cosmos/sieve/internal/catalog"
)

type bboxKey struct {
	xmin, xmax, ymin, ymax float64
}

// DropOverlaps removes records whose bounding box exactly repeats an earlier
// record's, which happens when both detection passes found the same object.
// The first row of every duplicate group survives.
func DropOverlaps(c *catalog.Catalog) (*catalog.Catalog, []Deletion, error) {
	if err := c.Require(bboxColumns...); err != nil {
		return nil, nil, err
	}
	uf := newUnionFind(c.Len())
	first := make(map[bboxKey]int, c.Len())
	for i, r := range c.Records {
		k := bboxKey{r.XMin, r.XMax, r.YMin, r.YMax}
		if j, ok := first[k]; ok {
			uf.union(j, i)
			continue
		}
		first[k] = i
	}

	drop := make(map[int]string)
	for _, g := range uf.groups() {
		keeper := c.Records[g[0]].Number
		for _, i := range g[1:] {
			drop[i] = fmt.Sprintf("duplicate of %d", keeper)
		}
	}
	if len(drop) == 0 {
		return c.Clone(), nil, nil
	}

	kept := make([]catalog.Record, 0, c.Len()-len(drop))
	deleted := make([]Deletion, 0, len(drop))
	for i, r := range c.Records {
		if src, ok := drop[i]; ok {
			deleted = append(deleted, Deletion{Number: r.Number, Reason: ReasonOverlap, Source: src})
			continue
		}
		kept = append(kept, r)
	}
	return c.WithRecords(kept), deleted, nil
}

// DropNull removes records whose NUMBER was a null placeholder.
func DropNull(c *catalog.Catalog) (*catalog.Catalog, []Deletion, error) {
	if err := c.Require(catalog.ColNumber); err != nil {
		return nil, nil, err
	}
	var deleted []Deletion
	kept := make([]catalog.Record, 0, c.Len())
	for i, r := range c.Records {
		if r.Number == catalog.NullNumber {
			deleted = append(deleted, Deletion{Number: r.Number, Reason: ReasonNull, Source: fmt.Sprintf("row %d", i+1)})
			continue
		}
		kept = append(kept, r)
	}
	return c.WithRecords(kept), deleted, nil
}

// Finalize runs the overlap and null cleanup and renumbers what is left. The
// order matters: a null row must never receive a valid number.
func Finalize(c *catalog.Catalog) (*catalog.Catalog, []Deletion, error) {
	noOverlap, overlaps, err := DropOverlaps(c)
	if err != nil {
		return nil, nil, err
	}
	noNull, nulls, err := DropNull(noOverlap)
	if err != nil {
		return nil, nil, err
	}
	return catalog.Renumber(noNull), append(overlaps, nulls...), nil
}
