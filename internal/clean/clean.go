// Package clean holds the catalog cleaning stages: merging the two detection
// passes, star/galaxy classification, signal-to-noise, the field-of-view
// filter, diffraction-spike and manual masking, and the final overlap and
// null cleanup.
//
// Every stage takes a catalog and returns a new one. Only ApplyManualMasks
// touches files, rewriting its targets in place.
package clean

import (
	"sort"

	"cosmos/sieve/internal/catalog"
)

// Deletion reasons recorded for removed objects.
const (
	ReasonDiffraction = "diffraction"
	ReasonOverlap     = "overlap"
	ReasonNull        = "null"
	ReasonManual      = "manual"
)

// Deletion records one object removed by a stage.
type Deletion struct {
	Number int
	Reason string
	Source string // mask or row responsible, e.g. "star 12"
}

// DeletedNumbers returns the object numbers in ds, ascending.
func DeletedNumbers(ds []Deletion) []int {
	nums := make([]int, len(ds))
	for i, d := range ds {
		nums[i] = d.Number
	}
	sort.Ints(nums)
	return nums
}

var bboxColumns = []string{catalog.ColXMin, catalog.ColXMax, catalog.ColYMin, catalog.ColYMax}
