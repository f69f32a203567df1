package clean

import (
	"cosmos/sieve/internal/catalog"
)

// Merge concatenates the bright rows and then the faint rows under the bright
// header, and renumbers the result so bright objects keep the lowest numbers.
// The two catalogs must define the same columns in the same order.
func Merge(bright, faint *catalog.Catalog) (*catalog.Catalog, error) {
	if ok, col := catalog.SameSchema(bright, faint); !ok {
		return nil, &catalog.UnknownColumnError{
			Column: col,
			Path:   faint.Path,
			Msg:    "schema mismatch at column",
		}
	}
	recs := make([]catalog.Record, 0, bright.Len()+faint.Len())
	recs = append(recs, bright.Records...)
	recs = append(recs, faint.Records...)
	return catalog.Renumber(bright.WithRecords(recs)), nil
}
