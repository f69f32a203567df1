package clean

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"cosmos/sieve/internal/catalog"
	"cosmos/sieve/internal/geometry"
	"cosmos/sieve/internal/monitoring"
)

// DefaultMagCutoff is the zero-pointed magnitude below which stars get masks.
const DefaultMagCutoff = 19.0

// SpikeParams describes the diffraction pattern of one filter. Spike length
// scales linearly with flux: length = Slope*FLUX_AUTO + Intercept.
type SpikeParams struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	Width     float64 `json:"width"`
	ThetaDeg  float64 `json:"theta_deg"`
}

// DefaultSpikes holds the fitted spike parameters per ACS/WFC filter.
var DefaultSpikes = map[string]SpikeParams{
	"F606W": {Slope: 0.0350087, Intercept: 64.0863, Width: 40.0, ThetaDeg: 2.614},
	"F814W": {Slope: 0.0367020, Intercept: 77.7674, Width: 40.0, ThetaDeg: 2.180},
}

// FilterName normalizes "606", "f606w" and "F606W" to "F606W".
func FilterName(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return s
	}
	if s[0] != 'F' {
		s = "F" + s
	}
	if !strings.HasSuffix(s, "W") {
		s += "W"
	}
	return s
}

// LookupSpikes returns the parameters for filter from table.
func LookupSpikes(table map[string]SpikeParams, filter string) (SpikeParams, error) {
	name := FilterName(filter)
	p, ok := table[name]
	if !ok {
		known := make([]string, 0, len(table))
		for k := range table {
			known = append(known, k)
		}
		sort.Strings(known)
		return SpikeParams{}, fmt.Errorf("no spike parameters for filter %q (known: %s)", filter, strings.Join(known, ", "))
	}
	return p, nil
}

// SpikeTemplate returns the 16 vertices of the double-cross mask centred on
// the origin, before rotation.
func SpikeTemplate(radius, length, halfWidth float64) geometry.Polygon {
	r, l, w := radius, length, halfWidth
	xs := []float64{-w, -w, w, w, r, l, l, r, w, w, -w, -w, -r, -l, -l, -r}
	ys := []float64{r, l, l, r, w, w, -w, -w, -r, -l, -l, -r, -w, -w, w, w}
	p := make(geometry.Polygon, len(xs))
	for i := range xs {
		p[i] = geometry.Point{X: xs[i], Y: ys[i]}
	}
	return p
}

// SpikeMasks builds one mask per star brighter than magCutoff.
func SpikeMasks(c *catalog.Catalog, p SpikeParams, magCutoff float64) ([]Mask, error) {
	err := c.Require(catalog.ColNumber, catalog.ColX, catalog.ColY, catalog.ColA, catalog.ColB,
		catalog.ColMagAuto, catalog.ColFluxAuto, catalog.ColIsStar)
	if err != nil {
		return nil, err
	}

	halfWidth := p.Width * 0.5
	var masks []Mask
	for _, r := range c.Records {
		if !(r.MagAuto+ZeroPoint < magCutoff) || !r.Star() {
			continue
		}
		radius := stat.Mean([]float64{r.A, r.B}, nil)
		length := p.Slope*r.FluxAuto + p.Intercept
		poly := geometry.Rotate(SpikeTemplate(radius, length, halfWidth), geometry.Point{X: r.X, Y: r.Y}, p.ThetaDeg)
		masks = append(masks, NewMask(poly, fmt.Sprintf("star %d", r.Number)))
	}
	monitoring.Logf("[mask] Built diffraction masks for %d star(s)", len(masks))
	return masks, nil
}
