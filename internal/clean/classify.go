package clean

import (
	"fmt"

	"cosmos/sieve/internal/catalog"
)

// ZeroPoint is added to MAG_AUTO before classification and masking.
const ZeroPoint = 25.0

// Boundary is the piecewise-linear star/galaxy decision line in
// (magnitude, surface brightness) space: flat at Y0 below magnitude X0,
// sloped above it.
type Boundary struct {
	X0        float64 `json:"x0"`
	Y0        float64 `json:"y0"`
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// DefaultBoundary is tuned for 30mas ACS/WFC mosaics.
var DefaultBoundary = Boundary{X0: 19.0, Y0: -9.8, Slope: 0.9, Intercept: -26.9}

// IsStar classifies a record from its raw MAG_AUTO and MU_MAX. Points on the
// boundary are galaxies.
func (b Boundary) IsStar(magAuto, muMax float64) bool {
	mag := magAuto + ZeroPoint
	if !(mag < ZeroPoint) {
		return false
	}
	if mag < b.X0 {
		return muMax < b.Y0
	}
	return muMax < b.Slope*mag+b.Intercept
}

func (b Boundary) String() string {
	return fmt.Sprintf("(%g, %g, %g, %g)", b.X0, b.Y0, b.Slope, b.Intercept)
}

// Classify returns a copy of c with IS_STAR set on every record.
func Classify(c *catalog.Catalog, b Boundary) (*catalog.Catalog, error) {
	if err := c.Require(catalog.ColMagAuto, catalog.ColMuMax); err != nil {
		return nil, err
	}
	out := c.Clone()
	out.AddColumn(catalog.ColIsStar, "Revised Star-Galaxy Classifier")
	for i := range out.Records {
		r := &out.Records[i]
		star := b.IsStar(r.MagAuto, r.MuMax)
		r.IsStar = &star
	}
	return out, nil
}
