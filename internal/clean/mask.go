package clean

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"cosmos/sieve/internal/catalog"
	"cosmos/sieve/internal/geometry"
	"cosmos/sieve/internal/monitoring"
)

// progressEvery is how often ApplyMasks reports how many objects it has tested.
const progressEvery = 1000

// Mask is a polygon that deletes any object whose bounding-box perimeter
// touches its interior.
type Mask struct {
	Polygon geometry.Polygon
	Source  string

	bounds geometry.Box
}

// NewMask wraps p and caches its bounds.
func NewMask(p geometry.Polygon, source string) Mask {
	return Mask{Polygon: p, Source: source, bounds: p.Bounds()}
}

// MaskOptions controls ApplyMasks.
type MaskOptions struct {
	// Workers is the number of parallel partitions; 0 means runtime.NumCPU().
	Workers int
	// ExemptStars leaves records classified as stars untouched.
	ExemptStars bool
	// Reason labels the returned deletions.
	Reason string
}

// ApplyMasks removes every record with a perimeter pixel inside any mask and
// returns the survivors in their original order under c's header. Records are
// tested in parallel; each partition writes only its own slots of the result.
func ApplyMasks(ctx context.Context, c *catalog.Catalog, masks []Mask, opts MaskOptions) (*catalog.Catalog, []Deletion, error) {
	if err := c.Require(bboxColumns...); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	n := c.Len()
	if n == 0 || len(masks) == 0 {
		return c.Clone(), nil, nil
	}

	prepared := make([]Mask, len(masks))
	for i, m := range masks {
		prepared[i] = NewMask(m.Polygon, m.Source)
	}

	// hit[i] is 1 + the index of the first mask containing record i, or 0.
	hit := make([]int, n)
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, n)
	chunk := (n + workers - 1) / workers

	var tested atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if (i-lo)%256 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				r := &c.Records[i]
				if !opts.ExemptStars || !r.Star() {
					hit[i] = firstHit(r, prepared)
				}
				if k := tested.Add(1); k%progressEvery == 0 {
					monitoring.Logf("[mask] Working on object %d out of %d", k, n)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	kept := make([]catalog.Record, 0, n)
	var deleted []Deletion
	for i, r := range c.Records {
		if hit[i] == 0 {
			kept = append(kept, r)
			continue
		}
		deleted = append(deleted, Deletion{Number: r.Number, Reason: opts.Reason, Source: masks[hit[i]-1].Source})
	}
	return c.WithRecords(kept), deleted, nil
}

// firstHit returns 1 + the index of the first mask touching r's perimeter, or 0.
func firstHit(r *catalog.Record, masks []Mask) int {
	box := geometry.Box{
		XMin: float64(int(r.XMin)), XMax: float64(int(r.XMax)),
		YMin: float64(int(r.YMin)), YMax: float64(int(r.YMax)),
	}
	var perimeter []geometry.Point
	for k, m := range masks {
		if !m.bounds.Intersects(box) {
			continue
		}
		if perimeter == nil {
			perimeter = geometry.PerimeterPixels(box)
			if len(perimeter) == 0 {
				return 0
			}
		}
		if m.Polygon.ContainsAny(perimeter) {
			return k + 1
		}
	}
	return 0
}
